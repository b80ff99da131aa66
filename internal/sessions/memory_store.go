package sessions

import (
	"context"
	"sort"
	"sync"

	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
)

// MemoryStore is a process-local Store for single-instance deployments and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Session
	byUser map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Session),
		byUser: make(map[string]string),
	}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, notFound(id)
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Put(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.byUser[s.UserID]; ok && prev != s.ID {
		delete(m.byID, prev)
	}
	m.byID[s.ID] = s.Clone()
	m.byUser[s.UserID] = s.ID
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil
	}
	delete(m.byID, id)
	if m.byUser[s.UserID] == id {
		delete(m.byUser, s.UserID)
	}
	return nil
}

func (m *MemoryStore) OpenForUser(_ context.Context, userID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byUser[userID]
	if !ok {
		return nil, nil
	}
	return m.byID[id].Clone(), nil
}

// ListOpen returns open sessions ordered by id.
func (m *MemoryStore) ListOpen(_ context.Context) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.byID))
	for _, s := range m.byID {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func notFound(id string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "session not found").
		WithDetails(map[string]any{"session_id": id})
}
