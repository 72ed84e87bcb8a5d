package dispatch

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenStore supplies the bearer token attached to outgoing requests.
// Token must not block; ClearToken is called once per 401 response.
type TokenStore interface {
	Token() (string, bool)
	ClearToken()
}

// MemoryTokenStore keeps the token in memory.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryTokenStore returns a store holding token ("" means none).
func NewMemoryTokenStore(token string) *MemoryTokenStore {
	return &MemoryTokenStore{token: token}
}

func (s *MemoryTokenStore) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

func (s *MemoryTokenStore) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *MemoryTokenStore) ClearToken() {
	s.SetToken("")
}

// ExpiringTokenStore hides JWTs whose exp claim has passed, so expired
// credentials are never sent. Tokens that are not JWTs pass through.
// Signatures are not verified; that is the server's job.
type ExpiringTokenStore struct {
	TokenStore
	Leeway time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewExpiringTokenStore wraps inner. leeway treats tokens that expire
// within that window as already expired.
func NewExpiringTokenStore(inner TokenStore, leeway time.Duration) *ExpiringTokenStore {
	return &ExpiringTokenStore{
		TokenStore: inner,
		Leeway:     leeway,
		now:        time.Now,
		parser:     jwt.NewParser(),
	}
}

func (s *ExpiringTokenStore) Token() (string, bool) {
	token, ok := s.TokenStore.Token()
	if !ok {
		return "", false
	}
	claims := jwt.MapClaims{}
	if _, _, err := s.parser.ParseUnverified(token, claims); err != nil {
		return token, true
	}
	if !claims.VerifyExpiresAt(s.now().Add(s.Leeway).Unix(), false) {
		return "", false
	}
	return token, true
}
