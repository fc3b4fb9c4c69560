// Provider interface shared by every chat-completion backend.
//
// Information Hiding:
// - Vendor SDK clients and authentication
// - Message, tool and usage conversion per vendor
// - How structured output is requested (native schema, JSON mode or instruction)

package llm

import "context"

// Provider is one model on one backend. Agents and team coordinators only
// ever talk to this interface; llmtest supplies a scripted one for tests.
type Provider interface {
	// Name is the backend ("openai", "gemini", ...) used in metrics and logs.
	Name() string
	Model() string

	Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error)

	// ChatWithFormat enforces a json_schema format natively where the backend
	// can, and falls back to instructing the model otherwise.
	ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (LLMResponse, error)

	// ChatWithTools offers native function calling; calls come back in
	// LLMResponse.ToolCalls.
	ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error)

	// StreamChat sends text deltas to chunks and returns usage when the
	// backend reports it. It does not close chunks.
	StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error)
}
