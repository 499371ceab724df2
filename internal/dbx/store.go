package dbx

import (
	"context"
	"database/sql"
	"sync"
)

// Store pairs a database with a reader/writer lock. Ordinary operations run
// under the shared side; bulk replacements take the exclusive side so that no
// reader observes a half-replaced state.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying pool. Callers bypass the lock.
func (s *Store) DB() *sql.DB { return s.db }

// Shared runs fn against the pool while holding the read lock.
func (s *Store) Shared(ctx context.Context, fn func(ctx context.Context, db DBTX) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, s.db)
}

// Exclusive runs fn in a transaction while holding the write lock.
func (s *Store) Exclusive(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return WithTx(ctx, s.db, nil, fn)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
