// Package llmtest provides a scripted llm.Provider for tests.
//
// Information Hiding:
// - Reply queue and per-call recording behind the llm.Provider interface
// - Safe for use from concurrent goroutines

package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/richinex/inkwell/llm"
)

// ErrNoReplies is returned when a call arrives after the script is exhausted.
var ErrNoReplies = errors.New("llmtest: no scripted replies left")

// Reply is one scripted model turn.
type Reply struct {
	Content   string
	ToolCalls []llm.ToolCall
	Err       error
}

// Call records what the provider received.
type Call struct {
	Messages []llm.ChatMessage
	Format   *llm.ResponseFormat
	Tools    []llm.ToolDefinition
}

// Provider replays scripted replies in order.
type Provider struct {
	mu      sync.Mutex
	name    string
	model   string
	replies []Reply
	calls   []Call

	// Respond, when set, is consulted before the queue.
	Respond func(call Call) (Reply, bool)
}

// New creates a provider that answers with the given contents in order.
func New(contents ...string) *Provider {
	p := &Provider{name: "fake", model: "fake-model"}
	for _, c := range contents {
		p.replies = append(p.replies, Reply{Content: c})
	}
	return p
}

// WithName sets the reported provider and model names.
func (p *Provider) WithName(name, model string) *Provider {
	p.name = name
	p.model = model
	return p
}

// Push appends replies to the script.
func (p *Provider) Push(replies ...Reply) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, replies...)
	return p
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns the number of calls received.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// LastUserMessage returns the content of the last user message of call i.
func (p *Provider) LastUserMessage(i int) string {
	calls := p.Calls()
	if i < 0 || i >= len(calls) {
		return ""
	}
	msgs := calls[i].Messages
	for j := len(msgs) - 1; j >= 0; j-- {
		if msgs[j].Role == llm.RoleUser {
			return msgs[j].Content
		}
	}
	return ""
}

// SystemPrompt returns the system message of call i.
func (p *Provider) SystemPrompt(i int) string {
	calls := p.Calls()
	if i < 0 || i >= len(calls) {
		return ""
	}
	var parts []string
	for _, m := range calls[i].Messages {
		if m.Role == llm.RoleSystem {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n")
}

func (p *Provider) Name() string  { return p.name }
func (p *Provider) Model() string { return p.model }

func (p *Provider) Chat(ctx context.Context, messages []llm.ChatMessage) (llm.LLMResponse, error) {
	return p.next(ctx, Call{Messages: messages})
}

func (p *Provider) ChatWithFormat(ctx context.Context, messages []llm.ChatMessage, format *llm.ResponseFormat) (llm.LLMResponse, error) {
	return p.next(ctx, Call{Messages: messages, Format: format})
}

func (p *Provider) ChatWithTools(ctx context.Context, messages []llm.ChatMessage, tools []llm.ToolDefinition) (llm.LLMResponse, error) {
	return p.next(ctx, Call{Messages: messages, Tools: tools})
}

func (p *Provider) StreamChat(ctx context.Context, messages []llm.ChatMessage, chunks chan<- string) (*llm.TokenUsage, error) {
	resp, err := p.next(ctx, Call{Messages: messages})
	if err != nil {
		return nil, err
	}
	for _, word := range strings.SplitAfter(resp.Content, " ") {
		if word == "" {
			continue
		}
		select {
		case chunks <- word:
		case <-ctx.Done():
			return resp.Usage, ctx.Err()
		}
	}
	return resp.Usage, nil
}

func (p *Provider) next(ctx context.Context, call Call) (llm.LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return llm.LLMResponse{}, err
	}

	msgs := make([]llm.ChatMessage, len(call.Messages))
	copy(msgs, call.Messages)
	call.Messages = msgs

	p.mu.Lock()
	p.calls = append(p.calls, call)
	respond := p.Respond
	p.mu.Unlock()

	var reply Reply
	handled := false
	if respond != nil {
		reply, handled = respond(call)
	}
	if !handled {
		p.mu.Lock()
		if len(p.replies) == 0 {
			p.mu.Unlock()
			return llm.LLMResponse{}, ErrNoReplies
		}
		reply = p.replies[0]
		p.replies = p.replies[1:]
		p.mu.Unlock()
	}

	if reply.Err != nil {
		return llm.LLMResponse{}, reply.Err
	}
	usage := &llm.TokenUsage{
		PromptTokens:     uint32(len(msgs)),
		CompletionTokens: uint32(len(strings.Fields(reply.Content))),
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return llm.LLMResponse{Content: reply.Content, ToolCalls: reply.ToolCalls, Usage: usage}, nil
}

var _ llm.Provider = (*Provider)(nil)
