// In-memory workflow session store.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind session.Store
// - Sessions are deep-copied on the way in and out, so callers never share State

package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/richinex/inkwell/session"
)

// MemorySessionStore implements session.Store with a map.
// Data is lost when the process terminates.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*session.Session),
	}
}

// Load returns a copy of the stored session.
func (s *MemorySessionStore) Load(ctx context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return copySession(stored), nil
}

// Save stores a copy of the session.
func (s *MemorySessionStore) Save(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := copySession(sess)
	if existing, ok := s.sessions[sess.ID]; ok {
		c.CreatedAt = existing.CreatedAt
	}
	c.UpdatedAt = time.Now().UTC()
	s.sessions[sess.ID] = c
	return nil
}

// Delete removes a session.
func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// List returns the session ids for a workflow in sorted order.
func (s *MemorySessionStore) List(ctx context.Context, workflowName string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := []string{}
	for id, sess := range s.sessions {
		if workflowName == "" || sess.WorkflowName == workflowName {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op.
func (s *MemorySessionStore) Close() error {
	return nil
}

func copySession(src *session.Session) *session.Session {
	c := *src
	if src.State != nil {
		c.State = src.State.Clone()
	} else {
		c.State = session.NewState()
	}
	return &c
}

var _ session.Store = (*MemorySessionStore)(nil)
