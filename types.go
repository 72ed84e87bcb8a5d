package dispatch

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Method is an HTTP verb accepted by the coordinator.
type Method string

const (
	MethodGet    Method = http.MethodGet
	MethodPost   Method = http.MethodPost
	MethodPut    Method = http.MethodPut
	MethodDelete Method = http.MethodDelete
	MethodPatch  Method = http.MethodPatch
)

func (m Method) normalize() Method {
	return Method(strings.ToUpper(strings.TrimSpace(string(m))))
}

// Valid reports whether m is one of the supported verbs.
func (m Method) Valid() bool {
	switch m.normalize() {
	case MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch:
		return true
	default:
		return false
	}
}

// Snapshot is the configuration a Client applies to new requests.
type Snapshot struct {
	BaseURL        string
	Timeout        time.Duration
	DefaultHeaders map[string]string
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.DefaultHeaders = cloneHeaders(s.DefaultHeaders)
	return out
}

// DefaultSnapshot mirrors the stock frontend configuration.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		BaseURL: "http://localhost:8726",
		Timeout: 10 * time.Second,
		DefaultHeaders: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// Transport performs the network call. *http.Client satisfies it.
type Transport interface {
	Do(*http.Request) (*http.Response, error)
}

// Middleware represents a middleware function wrapping the transport call.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// DebugConfig selects which request lifecycle steps are logged.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogResponses bool
	LogErrors    bool
	LogRegistry  bool
	RequestIDGen func() string
}

// DefaultDebugConfig returns a disabled config with every category on, so
// enabling it is a single switch.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogResponses: true,
		LogErrors:    true,
		LogRegistry:  true,
		RequestIDGen: uuid.NewString,
	}
}

// Option represents a configuration option
type Option func(*Client)

type contextKey string

const requestIDKey contextKey = "dispatch_request_id"
