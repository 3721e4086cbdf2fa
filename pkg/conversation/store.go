package conversation

import (
	"context"
	"sync"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
)

var ErrSessionNotFound = errors.New("session not found")

// Store is the persistence collaborator. It is called after every committed
// mutation and after pipeline execution; failures are reported by the
// caller but never roll back in-memory state. The on-disk format belongs to
// the implementation, not to this package.
type Store interface {
	Persist(ctx context.Context, s *Session) error
	Load(ctx context.Context, sessionID string) (*Session, error)
}

// MemoryStore keeps the last persisted snapshot per session id. Used by
// tests and the examples.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]*Session{},
	}
}

func (ms *MemoryStore) Persist(_ context.Context, s *Session) error {
	if s == nil {
		return ErrSessionNil
	}
	snapshot := clone.Clone(s).(*Session)
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.sessions[s.ID] = snapshot
	return nil
}

func (ms *MemoryStore) Load(_ context.Context, sessionID string) (*Session, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	s, exists := ms.sessions[sessionID]
	if !exists {
		return nil, errors.Wrapf(ErrSessionNotFound, "session %s", sessionID)
	}
	return s, nil
}

var _ Store = (*MemoryStore)(nil)
