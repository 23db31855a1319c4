package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/medreflect/medreflect/internal/models"
)

// MemoryStore keeps sessions in process memory. This is the default store;
// nothing survives a restart, which matches the service's persistence
// contract.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.Session)}
}

// Create registers a new session.
func (m *MemoryStore) Create(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID]; exists {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	stored, err := clone(s)
	if err != nil {
		return err
	}
	m.sessions[s.ID] = stored
	return nil
}

// Get returns a snapshot of the session.
func (m *MemoryStore) Get(_ context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s)
}

// Update applies mutate to the stored session under the write lock.
func (m *MemoryStore) Update(_ context.Context, id string, mutate func(*models.Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	mutate(s)
	return nil
}

// List returns snapshots of all sessions ordered by creation time.
func (m *MemoryStore) List(_ context.Context) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		snap, err := clone(s)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
