// Gemini provider on google.golang.org/genai. Team coordinators and the SEO
// personas run here by default.
//
// Information Hiding:
// - Client creation errors deferred to first use
// - System instruction carried in the generate config
// - Structured output: JSON MIME type plus a converted response schema
// - Function-call parts mapped to and from tool calls

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider serves Gemini models.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
	initErr     error
}

// NewGeminiProvider creates a provider against the public Gemini API.
// A client construction error is returned from the first call.
func NewGeminiProvider(apiKey, model string, maxTokens uint32, temperature float32) *GeminiProvider {
	return NewGeminiProviderWithBaseURL(apiKey, "", model, maxTokens, temperature)
}

// NewGeminiProviderWithBaseURL creates a provider against baseURL when set.
func NewGeminiProviderWithBaseURL(apiKey, baseURL, model string, maxTokens uint32, temperature float32) *GeminiProvider {
	cfg := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	p := &GeminiProvider{model: model, maxTokens: int32(maxTokens), temperature: temperature}
	client, err := genai.NewClient(context.Background(), cfg)
	if err != nil {
		p.initErr = fmt.Errorf("failed to initialize Gemini client: %w", err)
		return p
	}
	p.client = client
	return p
}

func (p *GeminiProvider) Name() string  { return "gemini" }
func (p *GeminiProvider) Model() string { return p.model }

func (p *GeminiProvider) ready() error {
	if p.initErr != nil {
		return p.initErr
	}
	if p.client == nil {
		return errors.New("gemini client not initialized")
	}
	return nil
}

func (p *GeminiProvider) config(system string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(p.temperature),
		MaxOutputTokens: p.maxTokens,
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return cfg
}

func (p *GeminiProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return p.ChatWithFormat(ctx, messages, nil)
}

func (p *GeminiProvider) ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (LLMResponse, error) {
	if err := p.ready(); err != nil {
		return LLMResponse{}, err
	}
	contents, system := toGeminiContents(messages)
	cfg := p.config(system)
	if format.IsStructured() {
		cfg.ResponseMIMEType = "application/json"
		if format.JSONSchema != nil && len(format.JSONSchema.Schema) > 0 {
			schema, err := geminiSchemaFromJSON(format.JSONSchema.Schema)
			if err != nil {
				return LLMResponse{}, err
			}
			cfg.ResponseSchema = schema
		}
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("gemini %s: %w", p.model, err)
	}
	content := resp.Text()
	if content == "" {
		return LLMResponse{}, errors.New("empty response from Gemini")
	}
	return LLMResponse{Content: content, Usage: geminiUsage(resp)}, nil
}

func (p *GeminiProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	if err := p.ready(); err != nil {
		return LLMResponse{}, err
	}
	contents, system := toGeminiContents(messages)
	cfg := p.config(system)
	cfg.Tools = toGeminiTools(tools)

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("gemini %s: %w", p.model, err)
	}

	out := LLMResponse{Usage: geminiUsage(resp)}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		out.Content += part.Text
		if fc := part.FunctionCall; fc != nil {
			args, _ := json.Marshal(fc.Args)
			// Function calls carry no id; the name doubles as one.
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: fc.Name, Name: fc.Name, Arguments: args})
		}
	}
	return out, nil
}

func (p *GeminiProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	contents, system := toGeminiContents(messages)

	var usage *TokenUsage
	for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, p.config(system)) {
		if err != nil {
			return usage, fmt.Errorf("gemini stream: %w", err)
		}
		if u := geminiUsage(resp); u != nil {
			usage = u
		}
		text := resp.Text()
		if text == "" {
			continue
		}
		select {
		case chunks <- text:
		case <-ctx.Done():
			return usage, ctx.Err()
		}
	}
	return usage, nil
}

func geminiUsage(resp *genai.GenerateContentResponse) *TokenUsage {
	if resp == nil || resp.UsageMetadata == nil {
		return nil
	}
	m := resp.UsageMetadata
	return &TokenUsage{
		PromptTokens:     uint32(m.PromptTokenCount),
		CompletionTokens: uint32(m.CandidatesTokenCount),
		TotalTokens:      uint32(m.TotalTokenCount),
	}
}

// toGeminiContents lifts the system message out. Tool results go back as
// user-role function responses keyed by the call name.
func toGeminiContents(messages []ChatMessage) ([]*genai.Content, string) {
	var contents []*genai.Content
	var system string

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = msg.Content
		case "user":
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case "assistant":
			if len(msg.ToolCalls) == 0 {
				contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
				continue
			}
			c := &genai.Content{Role: genai.RoleModel}
			if msg.Content != "" {
				c.Parts = append(c.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal(tc.Arguments, &args)
				c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: args}})
			}
			contents = append(contents, c)
		case "tool":
			var result map[string]any
			_ = json.Unmarshal([]byte(msg.Content), &result)
			if result == nil {
				result = map[string]any{"result": msg.Content}
			}
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{Name: msg.ToolCallID, Response: result},
				}},
			})
		}
	}
	return contents, system
}

func toGeminiTools(tools []ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		decls[i] = &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  geminiObjectSchema(t.Parameters),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// geminiSchemaFromJSON converts a JSON schema document into a response schema.
func geminiSchemaFromJSON(raw json.RawMessage) (*genai.Schema, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid response schema: %w", err)
	}
	return geminiObjectSchema(doc), nil
}

// geminiObjectSchema converts a schema whose root defaults to an object.
func geminiObjectSchema(doc map[string]any) *genai.Schema {
	s := geminiSchema(doc)
	if s.Type == "" || s.Type == genai.TypeUnspecified {
		s.Type = genai.TypeObject
	}
	return s
}

// geminiSchema converts one JSON schema node. Arrays always get items since
// the API rejects arrays without them.
func geminiSchema(node map[string]any) *genai.Schema {
	s := &genai.Schema{}

	switch t := node["type"].(type) {
	case string:
		s.Type = geminiType(t)
	case []any:
		for _, v := range t {
			name, _ := v.(string)
			switch {
			case name == "null":
				s.Nullable = genai.Ptr(true)
			case name != "" && s.Type == "":
				s.Type = geminiType(name)
			}
		}
	}
	if d, ok := node["description"].(string); ok {
		s.Description = d
	}
	s.Required = requiredFields(node)

	if s.Type == "" {
		if _, ok := node["properties"]; ok {
			s.Type = genai.TypeObject
		}
	}

	switch s.Type {
	case genai.TypeArray:
		s.Items = &genai.Schema{Type: genai.TypeString}
		if items, ok := node["items"].(map[string]any); ok {
			s.Items = geminiSchema(items)
		}
	case genai.TypeObject:
		if props, ok := node["properties"].(map[string]any); ok {
			s.Properties = make(map[string]*genai.Schema, len(props))
			for name, p := range props {
				if child, ok := p.(map[string]any); ok {
					s.Properties[name] = geminiSchema(child)
				}
			}
		}
	}
	return s
}

func geminiType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// requiredFields reads "required" as decoded JSON or as a Go literal.
func requiredFields(node map[string]any) []string {
	switch req := node["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

var _ Provider = (*GeminiProvider)(nil)
