// Package store holds enrollment template availability. The verification
// core never reads templates itself; provider adapters consult this
// store to decide between real scoring and the unavailable marker.
package store

import (
	"context"
	"sync"

	"github.com/vigil/backend/internal/core"
)

// TemplateStore tracks which biometric templates exist per user.
type TemplateStore interface {
	HasTemplate(ctx context.Context, userID string, kind core.SignalKind) (bool, error)
	PutTemplate(ctx context.Context, userID string, kind core.SignalKind, data []byte) error
	DeleteTemplate(ctx context.Context, userID string, kind core.SignalKind) error
}

// MemoryStore is the in-memory fallback used when Redis is unreachable.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string][]byte
}

// NewMemoryStore creates an empty in-memory template store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{templates: make(map[string][]byte)}
}

func memoryKey(userID string, kind core.SignalKind) string {
	return userID + ":" + string(kind)
}

func (s *MemoryStore) HasTemplate(_ context.Context, userID string, kind core.SignalKind) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.templates[memoryKey(userID, kind)]
	return ok, nil
}

func (s *MemoryStore) PutTemplate(_ context.Context, userID string, kind core.SignalKind, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[memoryKey(userID, kind)] = data
	return nil
}

func (s *MemoryStore) DeleteTemplate(_ context.Context, userID string, kind core.SignalKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.templates, memoryKey(userID, kind))
	return nil
}
