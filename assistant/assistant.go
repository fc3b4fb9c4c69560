// Package assistant is the single general-purpose chat agent.
//
// Information Hiding:
// - Conversation history persisted per session in storage.ConversationStorage
// - New session ids when the caller has none
package assistant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/richinex/inkwell/agent"
	"github.com/richinex/inkwell/llm"
	"github.com/richinex/inkwell/logging"
	"github.com/richinex/inkwell/storage"
)

const (
	Name        = "Assistant"
	OSID        = "DevOS"
	Description = "My first AgentOS"
)

var Model = llm.ModelSpec{Provider: llm.ProviderOpenAI, Model: llm.ModelOpenAIGPT5Mini}

// ErrEmptyMessage is returned by Send for a blank message.
var ErrEmptyMessage = errors.New("empty message")

// Config describes the assistant persona.
func Config() agent.Config {
	return agent.NewBuilder(Name).
		Instructions("You are a helpful AI assistant.").
		Markdown(true).
		Build()
}

// New builds the assistant agent.
func New(resolve llm.Resolver) (*agent.Agent, error) {
	p, err := resolve(Model)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", Name, err)
	}
	return agent.New(Config(), p), nil
}

// Chat is one multi-turn conversation with an agent.
type Chat struct {
	agent         *agent.Agent
	store         storage.ConversationStorage
	sessionID     string
	maxIterations int
}

// NewChat continues sessionID, or starts a new session when it is empty.
func NewChat(a *agent.Agent, store storage.ConversationStorage, sessionID string, maxIterations int) *Chat {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if maxIterations <= 0 {
		maxIterations = 10
	}
	return &Chat{agent: a, store: store, sessionID: sessionID, maxIterations: maxIterations}
}

func (c *Chat) SessionID() string {
	return c.sessionID
}

// Send runs one turn. Only successful turns are appended to the history.
func (c *Chat) Send(ctx context.Context, message string) (agent.Response, error) {
	if message == "" {
		return agent.Response{}, ErrEmptyMessage
	}
	resp, err := c.agent.ExecuteInSession(ctx, c.store, c.sessionID, message, c.maxIterations)
	if err != nil {
		return resp, err
	}
	if !resp.IsSuccess() {
		logger := logging.Component("assistant")
		logger.Warn().
			Str("session_id", c.sessionID).
			Str("type", resp.Type.String()).
			Msg("turn not recorded")
	}
	return resp, nil
}

// History returns the stored turns.
func (c *Chat) History(ctx context.Context) ([]llm.ChatMessage, error) {
	return c.store.Load(ctx, c.sessionID)
}

// Reset forgets the session.
func (c *Chat) Reset(ctx context.Context) error {
	return c.store.Delete(ctx, c.sessionID)
}
