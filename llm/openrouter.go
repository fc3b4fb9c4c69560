// OpenRouter Provider implementation using the official openai-go SDK.
//
// Information Hiding:
// - OpenRouter's OpenAI-compatible base URL
// - openai-go param unions for messages, tools and response formats
// - Streaming via the SDK's SSE iterator

package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterProvider implements the Provider interface for OpenRouter.
type OpenRouterProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewOpenRouterProvider creates a new OpenRouter provider.
func NewOpenRouterProvider(apiKey, model string, maxTokens uint32, temperature float32) *OpenRouterProvider {
	return NewOpenRouterProviderWithBaseURL(apiKey, openRouterBaseURL, model, maxTokens, temperature)
}

// NewOpenRouterProviderWithBaseURL creates an OpenRouter provider against a custom endpoint.
func NewOpenRouterProviderWithBaseURL(apiKey, baseURL, model string, maxTokens uint32, temperature float32) *OpenRouterProvider {
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
	)
	return &OpenRouterProvider{
		client:      &client,
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: float64(temperature),
	}
}

// Name returns the provider name.
func (p *OpenRouterProvider) Name() string {
	return "openrouter"
}

// Model returns the current model.
func (p *OpenRouterProvider) Model() string {
	return p.model
}

// Chat sends a chat completion request.
func (p *OpenRouterProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return p.ChatWithFormat(ctx, messages, nil)
}

// ChatWithFormat sends a chat completion request with optional response format.
func (p *OpenRouterProvider) ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (LLMResponse, error) {
	params := p.newParams(messages)

	if format != nil {
		switch format.Type {
		case ResponseFormatJSONSchema:
			if format.JSONSchema != nil {
				schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   format.JSONSchema.Name,
					Schema: format.JSONSchema.Schema,
					Strict: openai.Bool(format.JSONSchema.Strict),
				}
				if format.JSONSchema.Description != "" {
					schemaParam.Description = openai.String(format.JSONSchema.Description)
				}
				params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
					OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
				}
			}
		case ResponseFormatJSONObject:
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
			}
		}
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}

	content := ""
	if len(completion.Choices) > 0 {
		content = completion.Choices[0].Message.Content
	}

	return LLMResponse{Content: content, Usage: openRouterUsage(completion.Usage)}, nil
}

// ChatWithTools sends a chat completion request with tool definitions.
func (p *OpenRouterProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	params := p.newParams(messages)
	for _, t := range tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(t.Parameters),
			},
		})
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}

	content := ""
	var toolCalls []ToolCall
	if len(completion.Choices) > 0 {
		msg := completion.Choices[0].Message
		content = msg.Content
		for _, tc := range msg.ToolCalls {
			toolCalls = append(toolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: []byte(tc.Function.Arguments),
			})
		}
	}

	return LLMResponse{Content: content, ToolCalls: toolCalls, Usage: openRouterUsage(completion.Usage)}, nil
}

// StreamChat streams a chat completion.
func (p *OpenRouterProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	params := p.newParams(messages)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var usage *TokenUsage
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			usage = openRouterUsage(chunk.Usage)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		select {
		case chunks <- chunk.Choices[0].Delta.Content:
		case <-ctx.Done():
			return usage, ctx.Err()
		}
	}

	if err := stream.Err(); err != nil {
		return usage, fmt.Errorf("stream error: %w", err)
	}
	return usage, nil
}

func (p *OpenRouterProvider) newParams(messages []ChatMessage) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(p.model),
		Messages:            convertToOpenRouterMessages(messages),
		MaxCompletionTokens: openai.Int(p.maxTokens),
	}
	if supportsTemperature(p.model) {
		params.Temperature = openai.Float(p.temperature)
	}
	return params
}

func openRouterUsage(u openai.CompletionUsage) *TokenUsage {
	return &TokenUsage{
		PromptTokens:     uint32(u.PromptTokens),
		CompletionTokens: uint32(u.CompletionTokens),
		TotalTokens:      uint32(u.TotalTokens),
	}
}

// convertToOpenRouterMessages builds openai-go message unions.
func convertToOpenRouterMessages(messages []ChatMessage) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		case RoleUser:
			result = append(result, openai.UserMessage(msg.Content))
		case RoleTool:
			result = append(result, openai.ToolMessage(msg.Content, msg.ToolCallID))
		case RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				result = append(result, openai.AssistantMessage(msg.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content.OfString = openai.String(msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		}
	}
	return result
}

// Verify OpenRouterProvider implements Provider
var _ Provider = (*OpenRouterProvider)(nil)
