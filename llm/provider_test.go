// Provider tests against local HTTP fakes: request shape for structured
// output, and error messages that must not leak API keys.
package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

const testKey = "sk-test-invalid-key-12345xyz"

type capturedRequest struct {
	mu   sync.Mutex
	body map[string]interface{}
	auth string
}

func (c *capturedRequest) get() (map[string]interface{}, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.body, c.auth
}

// chatCompletionsServer answers every POST .../chat/completions with content.
func chatCompletionsServer(t *testing.T, content string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(raw, &body)
		captured.mu.Lock()
		captured.body = body
		captured.auth = r.Header.Get("Authorization")
		captured.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   body["model"],
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]interface{}{"role": "assistant", "content": content},
			}},
			"usage": map[string]interface{}{"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func unauthorizedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"invalid api key","type":"authentication_error"}}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

var searchSchema = json.RawMessage(`{"type":"object","properties":{"articles":{"type":"array","items":{"type":"object","properties":{"title":{"type":"string"},"url":{"type":"string"}},"required":["title","url"]}}},"required":["articles"],"additionalProperties":false}`)

func TestOpenAIJSONSchemaRequest(t *testing.T) {
	srv, captured := chatCompletionsServer(t, `{"articles":[]}`)
	provider := NewOpenAIProviderWithBaseURL(testKey, srv.URL+"/v1", ModelOpenAIGPT5Mini, 256, 0.7)

	resp, err := provider.ChatWithFormat(context.Background(),
		[]ChatMessage{SystemMessage("find sources"), UserMessage("solid-state batteries")},
		NewJSONSchemaFormat("SearchResults", searchSchema))
	if err != nil {
		t.Fatalf("ChatWithFormat failed: %v", err)
	}
	if resp.Content != `{"articles":[]}` {
		t.Errorf("unexpected content: %q", resp.Content)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 10 {
		t.Errorf("expected usage total 10, got %+v", resp.Usage)
	}

	body, auth := captured.get()
	if auth != "Bearer "+testKey {
		t.Errorf("unexpected auth header: %q", auth)
	}
	format, _ := body["response_format"].(map[string]interface{})
	if format["type"] != "json_schema" {
		t.Fatalf("expected json_schema response format, got %v", body["response_format"])
	}
	schema, _ := format["json_schema"].(map[string]interface{})
	if schema["name"] != "SearchResults" || schema["strict"] != true {
		t.Errorf("unexpected json_schema block: %v", schema)
	}
	if _, ok := body["temperature"]; ok {
		t.Errorf("gpt-5-mini request must not carry temperature: %v", body["temperature"])
	}
	if body["max_completion_tokens"] != float64(256) {
		t.Errorf("expected max_completion_tokens 256, got %v", body["max_completion_tokens"])
	}
}

func TestOpenAITemperatureForClassicModels(t *testing.T) {
	srv, captured := chatCompletionsServer(t, "hi")
	provider := NewOpenAIProviderWithBaseURL(testKey, srv.URL+"/v1", ModelOpenAIGPT4o, 64, 0.5)

	if _, err := provider.Chat(context.Background(), []ChatMessage{UserMessage("hello")}); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	body, _ := captured.get()
	if body["temperature"] != 0.5 {
		t.Errorf("expected temperature 0.5, got %v", body["temperature"])
	}
	if _, ok := body["response_format"]; ok {
		t.Errorf("plain chat must not send response_format")
	}
}

func TestDeepSeekDowngradesSchemaToJSONMode(t *testing.T) {
	srv, captured := chatCompletionsServer(t, `{"articles":[]}`)
	provider := NewDeepSeekProviderWithBaseURL(testKey, srv.URL+"/v1", ModelDeepSeekChat, 64, 0.7)

	_, err := provider.ChatWithFormat(context.Background(),
		[]ChatMessage{SystemMessage("find sources"), UserMessage("topic")},
		NewJSONSchemaFormat("SearchResults", searchSchema))
	if err != nil {
		t.Fatalf("ChatWithFormat failed: %v", err)
	}

	body, _ := captured.get()
	format, _ := body["response_format"].(map[string]interface{})
	if format["type"] != "json_object" {
		t.Errorf("expected json_object, got %v", format["type"])
	}
	messages, _ := body["messages"].([]interface{})
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	system, _ := messages[0].(map[string]interface{})
	if !strings.Contains(system["content"].(string), `"articles"`) {
		t.Errorf("schema should be appended to the system prompt: %v", system["content"])
	}
	if provider.Name() != "deepseek" {
		t.Errorf("expected deepseek name, got %s", provider.Name())
	}
}

func TestOpenRouterJSONSchemaRequest(t *testing.T) {
	srv, captured := chatCompletionsServer(t, `{"title":"t","url":"u"}`)
	provider := NewOpenRouterProviderWithBaseURL(testKey, srv.URL+"/api/v1", ModelOpenRouterGPT5Mini, 128, 0.7)

	resp, err := provider.ChatWithFormat(context.Background(),
		[]ChatMessage{UserMessage("scrape")},
		NewJSONSchemaFormat("ScrapedArticle", searchSchema).WithDescription("one article"))
	if err != nil {
		t.Fatalf("ChatWithFormat failed: %v", err)
	}
	if resp.Content != `{"title":"t","url":"u"}` {
		t.Errorf("unexpected content: %q", resp.Content)
	}

	body, auth := captured.get()
	if auth != "Bearer "+testKey {
		t.Errorf("unexpected auth header: %q", auth)
	}
	format, _ := body["response_format"].(map[string]interface{})
	if format["type"] != "json_schema" {
		t.Fatalf("expected json_schema, got %v", body["response_format"])
	}
	schema, _ := format["json_schema"].(map[string]interface{})
	if schema["name"] != "ScrapedArticle" || schema["description"] != "one article" {
		t.Errorf("unexpected json_schema block: %v", schema)
	}
	if body["model"] != ModelOpenRouterGPT5Mini {
		t.Errorf("unexpected model: %v", body["model"])
	}
}

// TestOpenAIErrorNoAPIKeyLeak verifies OpenAI errors don't contain API keys
func TestOpenAIErrorNoAPIKeyLeak(t *testing.T) {
	srv := unauthorizedServer(t)
	provider := NewOpenAIProviderWithBaseURL(testKey, srv.URL+"/v1", ModelOpenAIGPT4o, 100, 0.7)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := provider.Chat(ctx, []ChatMessage{UserMessage("test")})
	if err == nil {
		t.Fatal("expected error from unauthorized endpoint")
	}
	assertNoKey(t, "OpenAI", err)
}

// TestAnthropicErrorNoAPIKeyLeak verifies Anthropic errors don't contain API keys
func TestAnthropicErrorNoAPIKeyLeak(t *testing.T) {
	srv := unauthorizedServer(t)
	provider := NewAnthropicProviderWithBaseURL(testKey, srv.URL, ModelAnthropicClaudeSonnet4, 100, 0.7)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := provider.Chat(ctx, []ChatMessage{UserMessage("test")})
	if err == nil {
		t.Fatal("expected error from unauthorized endpoint")
	}
	assertNoKey(t, "Anthropic", err)
	if strings.Contains(err.Error(), "x-api-key:") || strings.Contains(err.Error(), "X-Api-Key:") {
		t.Errorf("Anthropic error exposed API key header: %v", err)
	}
}

// TestOpenRouterErrorNoAPIKeyLeak verifies OpenRouter errors don't contain API keys
func TestOpenRouterErrorNoAPIKeyLeak(t *testing.T) {
	srv := unauthorizedServer(t)
	provider := NewOpenRouterProviderWithBaseURL(testKey, srv.URL, ModelOpenRouterGPT5Mini, 100, 0.7)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := provider.Chat(ctx, []ChatMessage{UserMessage("test")})
	if err == nil {
		t.Fatal("expected error from unauthorized endpoint")
	}
	assertNoKey(t, "OpenRouter", err)
}

// TestToolCallErrorNoAPIKeyLeak verifies tool call errors don't leak API keys
func TestToolCallErrorNoAPIKeyLeak(t *testing.T) {
	srv := unauthorizedServer(t)
	provider := NewOpenAIProviderWithBaseURL(testKey, srv.URL+"/v1", ModelOpenAIGPT4o, 100, 0.7)

	tools := []ToolDefinition{{
		Name:        "web_search",
		Description: "Search the web",
		Parameters:  map[string]interface{}{"type": "object"},
	}}

	_, err := provider.ChatWithTools(context.Background(), []ChatMessage{UserMessage("test")}, tools)
	if err == nil {
		t.Fatal("expected error from unauthorized endpoint")
	}
	assertNoKey(t, "Tool call", err)
}

func assertNoKey(t *testing.T, name string, err error) {
	t.Helper()
	errStr := err.Error()
	if strings.Contains(errStr, testKey) {
		t.Errorf("%s error message leaked API key: %v", name, errStr)
	}
	if strings.Contains(errStr, "Authorization:") {
		t.Errorf("%s error exposed Authorization header: %v", name, errStr)
	}
}

// TestGeminiInitErrorPreserved verifies Gemini returns initialization errors
func TestGeminiInitErrorPreserved(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	provider := NewGeminiProvider("", ModelGeminiFlash25, 100, 0.7)

	_, err := provider.Chat(context.Background(), []ChatMessage{UserMessage("test")})
	if err == nil {
		t.Fatal("Expected initialization error to be returned, got nil")
	}
	if !strings.Contains(err.Error(), "failed to initialize") {
		t.Errorf("Expected initialization error, got: %v", err)
	}
}

func TestGeminiSchemaFromJSON(t *testing.T) {
	schema, err := geminiSchemaFromJSON(searchSchema)
	if err != nil {
		t.Fatalf("geminiSchemaFromJSON failed: %v", err)
	}
	if schema.Type != "OBJECT" {
		t.Errorf("expected OBJECT, got %s", schema.Type)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "articles" {
		t.Errorf("unexpected required: %v", schema.Required)
	}
	articles := schema.Properties["articles"]
	if articles == nil || articles.Type != "ARRAY" || articles.Items == nil {
		t.Fatalf("articles should be an array with items: %+v", articles)
	}
	if articles.Items.Properties["url"] == nil || len(articles.Items.Required) != 2 {
		t.Errorf("nested object lost properties or required: %+v", articles.Items)
	}

	nullable, err := geminiSchemaFromJSON(json.RawMessage(`{"properties":{"summary":{"type":["string","null"]}}}`))
	if err != nil {
		t.Fatalf("geminiSchemaFromJSON failed: %v", err)
	}
	summary := nullable.Properties["summary"]
	if summary.Type != "STRING" || summary.Nullable == nil || !*summary.Nullable {
		t.Errorf("expected nullable string, got %+v", summary)
	}

	if _, err := geminiSchemaFromJSON(json.RawMessage(`not json`)); err == nil {
		t.Error("expected error for invalid schema")
	}
}

func TestAppendInstruction(t *testing.T) {
	format := NewJSONSchemaFormat("Post", json.RawMessage(`{"type":"object"}`))

	withSystem := appendInstruction([]ChatMessage{SystemMessage("be brief"), UserMessage("x")}, format)
	if len(withSystem) != 2 || !strings.HasPrefix(withSystem[0].Content, "be brief\n\n") {
		t.Errorf("instruction should extend the system message: %+v", withSystem)
	}

	original := []ChatMessage{UserMessage("x")}
	withoutSystem := appendInstruction(original, NewJSONObjectFormat())
	if len(withoutSystem) != 2 || withoutSystem[0].Role != RoleSystem {
		t.Errorf("instruction should be inserted as a system message: %+v", withoutSystem)
	}
	if len(original) != 1 {
		t.Error("input slice must not be modified")
	}

	if got := appendInstruction(original, nil); len(got) != 1 {
		t.Error("nil format must leave messages unchanged")
	}
}

func TestSupportsTemperature(t *testing.T) {
	cases := map[string]bool{
		"gpt-5-mini":    false,
		"o3-mini":       false,
		"gpt-4o":        true,
		"deepseek-chat": true,
	}
	for model, want := range cases {
		if got := supportsTemperature(model); got != want {
			t.Errorf("supportsTemperature(%q) = %v, want %v", model, got, want)
		}
	}
}

func TestParseProviderType(t *testing.T) {
	cases := map[string]ProviderType{
		"openai":     ProviderOpenAI,
		"Claude":     ProviderAnthropic,
		"deepseek":   ProviderDeepSeek,
		"google":     ProviderGemini,
		"OpenRouter": ProviderOpenRouter,
	}
	for in, want := range cases {
		got, err := ParseProviderType(in)
		if err != nil || got != want {
			t.Errorf("ParseProviderType(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseProviderType("mistral"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestBuilderDefaults(t *testing.T) {
	p, err := ProviderOpenAI.APIKey("k")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if p.Model() != ModelOpenAIGPT5Mini || p.Name() != "openai" {
		t.Errorf("unexpected defaults: %s/%s", p.Name(), p.Model())
	}

	p, err = ProviderOpenRouter.Model("anthropic/claude-sonnet-4").BaseURL("http://localhost:1/v1").APIKey("k")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if p.Name() != "openrouter" || p.Model() != "anthropic/claude-sonnet-4" {
		t.Errorf("unexpected provider: %s/%s", p.Name(), p.Model())
	}

	t.Setenv("OPENROUTER_API_KEY", "")
	if _, err := ProviderOpenRouter.FromEnv(); err == nil {
		t.Error("expected error when OPENROUTER_API_KEY is unset")
	}
}

func TestTokenUsageAdd(t *testing.T) {
	total := &TokenUsage{}
	total.Add(&TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5})
	total.Add(nil)
	total.Add(&TokenUsage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2})
	if total.PromptTokens != 4 || total.CompletionTokens != 3 || total.TotalTokens != 7 {
		t.Errorf("unexpected totals: %+v", total)
	}
}
