// Package tokenstore persists the bearer token between runs.
package tokenstore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	dispatch "github.com/duyl328/argus-dispatch"
)

// DefaultName is the credential row used when Open is given no name.
const DefaultName = "default"

// credential is one stored token.
type credential struct {
	Name      string `gorm:"primaryKey;size:64"`
	Token     string
	UpdatedAt time.Time
}

func (credential) TableName() string { return "argus_credentials" }

// SQLiteStore is a dispatch.TokenStore backed by a SQLite database. Reads
// are served from memory; writes go through to the database.
type SQLiteStore struct {
	db   *gorm.DB
	name string

	mu    sync.RWMutex
	token string
	err   error
}

var _ dispatch.TokenStore = (*SQLiteStore)(nil)

// Option configures a SQLiteStore.
type Option func(*gorm.Config)

// WithLogger routes gorm's SQL logging through logger.
func WithLogger(logger dispatch.Logger) Option {
	return func(c *gorm.Config) {
		c.Logger = NewGormLogger(logger)
	}
}

// Open opens (creating if needed) the database at dsn and loads the token
// stored under name.
func Open(dsn, name string, opts ...Option) (*SQLiteStore, error) {
	if name == "" {
		name = DefaultName
	}
	cfg := &gorm.Config{Logger: gormlogger.Discard}
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, fmt.Errorf("tokenstore: open %s: %w", dsn, err)
	}
	if err := db.AutoMigrate(&credential{}); err != nil {
		return nil, fmt.Errorf("tokenstore: migrate: %w", err)
	}

	s := &SQLiteStore{db: db, name: name}
	var row credential
	err = db.Where("name = ?", name).Take(&row).Error
	switch {
	case err == nil:
		s.token = row.Token
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, fmt.Errorf("tokenstore: load %s: %w", name, err)
	}
	return s, nil
}

// Token returns the cached token.
func (s *SQLiteStore) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// SetToken stores token under the store's name.
func (s *SQLiteStore) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := credential{Name: s.name, Token: token, UpdatedAt: time.Now()}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		s.err = fmt.Errorf("tokenstore: save %s: %w", s.name, err)
		return s.err
	}
	s.token = token
	return nil
}

// ClearToken removes the stored token. The in-memory copy is always
// cleared; a database failure is kept for Err.
func (s *SQLiteStore) ClearToken() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	if err := s.db.Where("name = ?", s.name).Delete(&credential{}).Error; err != nil {
		s.err = fmt.Errorf("tokenstore: clear %s: %w", s.name, err)
	}
}

// Err returns the last write error.
func (s *SQLiteStore) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
