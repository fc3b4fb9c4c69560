// Anthropic provider on anthropic-sdk-go.
//
// Information Hiding:
// - Messages API request assembly (system prompt is a separate field)
// - Structured output requested through a trailing JSON instruction
// - Tool-use and tool-result block mapping

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider serves Claude models. Only used when --provider anthropic
// redirects the personas.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicProvider creates a provider against the public endpoint.
func NewAnthropicProvider(apiKey, model string, maxTokens uint32, temperature float32) *AnthropicProvider {
	return NewAnthropicProviderWithBaseURL(apiKey, "", model, maxTokens, temperature)
}

// NewAnthropicProviderWithBaseURL creates a provider against baseURL when set.
func NewAnthropicProviderWithBaseURL(apiKey, baseURL, model string, maxTokens uint32, temperature float32) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{
		client:      anthropic.NewClient(opts...),
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: float64(temperature),
	}
}

func (p *AnthropicProvider) Name() string  { return "anthropic" }
func (p *AnthropicProvider) Model() string { return p.model }

func (p *AnthropicProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return p.ChatWithFormat(ctx, messages, nil)
}

// ChatWithFormat has no native schema mode on this API; the format is
// appended to the conversation as an instruction instead.
func (p *AnthropicProvider) ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (LLMResponse, error) {
	return p.send(ctx, p.params(appendInstruction(messages, format), nil))
}

func (p *AnthropicProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	return p.send(ctx, p.params(messages, tools))
}

func (p *AnthropicProvider) params(messages []ChatMessage, tools []ToolDefinition) anthropic.MessageNewParams {
	converted, system := toAnthropicMessages(messages)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   p.maxTokens,
		Messages:    converted,
		Temperature: anthropic.Float(p.temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
	}
	return params
}

func (p *AnthropicProvider) send(ctx context.Context, params anthropic.MessageNewParams) (LLMResponse, error) {
	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("anthropic %s: %w", p.model, err)
	}

	var content strings.Builder
	var calls []ToolCall
	for _, block := range message.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			args, _ := json.Marshal(b.Input)
			calls = append(calls, ToolCall{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}
	return LLMResponse{
		Content:   content.String(),
		ToolCalls: calls,
		Usage:     anthropicUsage(message.Usage.InputTokens, message.Usage.OutputTokens),
	}, nil
}

func anthropicUsage(in, out int64) *TokenUsage {
	if in == 0 && out == 0 {
		return nil
	}
	return &TokenUsage{
		PromptTokens:     uint32(in),
		CompletionTokens: uint32(out),
		TotalTokens:      uint32(in + out),
	}
}

// StreamChat forwards text deltas to chunks. Usage arrives split across the
// start and delta events.
func (p *AnthropicProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.params(messages, nil))

	var in, out int64
	for stream.Next() {
		switch ev := stream.Current().AsAny().(type) {
		case anthropic.MessageStartEvent:
			in = ev.Message.Usage.InputTokens
		case anthropic.ContentBlockDeltaEvent:
			delta, ok := ev.Delta.AsAny().(anthropic.TextDelta)
			if !ok || delta.Text == "" {
				continue
			}
			select {
			case chunks <- delta.Text:
			case <-ctx.Done():
				return anthropicUsage(in, out), ctx.Err()
			}
		case anthropic.MessageDeltaEvent:
			out = ev.Usage.OutputTokens
		}
	}
	if err := stream.Err(); err != nil {
		return anthropicUsage(in, out), fmt.Errorf("anthropic stream: %w", err)
	}
	return anthropicUsage(in, out), nil
}

// toAnthropicMessages lifts the system message out and maps tool traffic to
// tool_use / tool_result blocks.
func toAnthropicMessages(messages []ChatMessage) ([]anthropic.MessageParam, string) {
	var out []anthropic.MessageParam
	var system string

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = msg.Content
		case "user":
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case "tool":
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false)))
		case "assistant":
			if len(msg.ToolCalls) == 0 {
				out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
				continue
			}
			param := anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant}
			if msg.Content != "" {
				param.Content = append(param.Content, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]any
				_ = json.Unmarshal(tc.Arguments, &input)
				param.Content = append(param.Content, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{ID: tc.ID, Name: tc.Name, Input: input},
				})
			}
			out = append(out, param)
		}
	}
	return out, system
}

func toAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		properties, _ := t.Parameters["properties"].(map[string]any)
		result[i] = anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   requiredFields(t.Parameters),
			},
		}}
	}
	return result
}

var _ Provider = (*AnthropicProvider)(nil)
