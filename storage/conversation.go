package storage

import (
	"context"

	"github.com/richinex/inkwell/llm"
)

// ConversationStorage stores multi-turn chat history for single agents.
// Workflow session state lives in session.Store instead.
type ConversationStorage interface {
	// Save replaces the history for a session.
	Save(ctx context.Context, sessionID string, history []llm.ChatMessage) error

	// Append adds messages after the existing history.
	Append(ctx context.Context, sessionID string, messages ...llm.ChatMessage) error

	// Load returns the history, or an empty slice (not nil) for an unknown session.
	// Errors are reserved for storage failures.
	Load(ctx context.Context, sessionID string) ([]llm.ChatMessage, error)

	// Delete removes a session and its history.
	Delete(ctx context.Context, sessionID string) error

	// ListSessions lists all session IDs.
	ListSessions(ctx context.Context) ([]string, error)

	// Exists reports whether a session has been stored.
	Exists(ctx context.Context, sessionID string) (bool, error)
}
