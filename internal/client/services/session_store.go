package services

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/dmitrijs2005/medkeeper/internal/client/models"
)

// SessionSnapshot is what a SessionStore keeps for an unlocked session.
type SessionSnapshot struct {
	Key     []byte         `json:"key"`
	Profile models.Profile `json:"profile"`
	Token   string         `json:"token"`
}

// SessionStore keeps an unlocked session so that a re-bootstrap within the
// same process can skip the PIN prompt.
type SessionStore interface {
	Save(snap *SessionSnapshot) error
	// Load returns (nil, nil) when nothing is stored.
	Load() (*SessionSnapshot, error)
	Clear()
}

// MemorySessionStore seals the snapshot in a memguard Enclave. It lives only
// as long as the process and never touches disk.
type MemorySessionStore struct {
	mu      sync.Mutex
	enclave *memguard.Enclave
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

// Save seals snap. The snapshot's key slice is wiped.
func (s *MemorySessionStore) Save(snap *SessionSnapshot) error {
	buf, err := json.Marshal(snap)
	memguard.WipeBytes(snap.Key)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// NewEnclave wipes buf
	s.enclave = memguard.NewEnclave(buf)
	return nil
}

func (s *MemorySessionStore) Load() (*SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enclave == nil {
		return nil, nil
	}

	lb, err := s.enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("open session enclave: %w", err)
	}
	defer lb.Destroy()

	snap := &SessionSnapshot{}
	if err := json.Unmarshal(lb.Bytes(), snap); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return snap, nil
}

func (s *MemorySessionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enclave = nil
}
