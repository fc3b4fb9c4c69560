package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Load when no session exists for the id.
var ErrNotFound = errors.New("session not found")

// Store persists sessions. Implementations live in the storage package.
type Store interface {
	// Load returns the session or ErrNotFound.
	Load(ctx context.Context, id string) (*Session, error)

	// Save creates or replaces the session.
	Save(ctx context.Context, s *Session) error

	// Delete removes the session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error

	// List returns the session ids recorded for a workflow.
	List(ctx context.Context, workflowName string) ([]string, error)

	// Close releases backend resources.
	Close() error
}
