// Tavily web search tool.
//
// Information Hiding:
// - Tavily REST endpoint, authentication and request shape
// - Markdown rendering of answers and results
// - Token budget applied to the rendered output

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// TavilyConfig configures the web search tool.
type TavilyConfig struct {
	APIKey        string
	Endpoint      string
	SearchDepth   string // basic or advanced
	IncludeAnswer bool
	MaxResults    int
	MaxTokens     int // cap on the rendered markdown; 0 disables
	Timeout       time.Duration
	Counter       TokenCounter
	Client        *http.Client
}

// DefaultTavilyConfig mirrors the research agents' settings: basic depth,
// answer included, output capped at 100 tokens.
func DefaultTavilyConfig() TavilyConfig {
	return TavilyConfig{
		APIKey:        os.Getenv("TAVILY_API_KEY"),
		Endpoint:      tavilyEndpoint,
		SearchDepth:   "basic",
		IncludeAnswer: true,
		MaxResults:    5,
		MaxTokens:     100,
		Timeout:       30 * time.Second,
	}
}

// TavilySearchTool searches the web through the Tavily API.
type TavilySearchTool struct {
	BaseTool
	cfg TavilyConfig
}

// NewTavilySearchTool creates the web_search tool.
func NewTavilySearchTool(cfg TavilyConfig) *TavilySearchTool {
	if cfg.Endpoint == "" {
		cfg.Endpoint = tavilyEndpoint
	}
	if cfg.SearchDepth == "" {
		cfg.SearchDepth = "basic"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	return &TavilySearchTool{cfg: cfg}
}

// Metadata returns the tool metadata.
func (t *TavilySearchTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "web_search",
		Description: "Search the web for recent, authoritative pages about a query. Returns a short answer and a markdown list of results with titles and URLs.",
		Parameters: []ToolParameter{
			{Name: "query", ParamType: "string", Description: "The search query", Required: true},
			{Name: "max_results", ParamType: "integer", Description: "Number of results to return", Required: false},
		},
	}
}

type searchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// Validate validates the arguments.
func (t *TavilySearchTool) Validate(args json.RawMessage) error {
	return validateSearchArgs(args)
}

func validateSearchArgs(args json.RawMessage) error {
	var a searchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(a.Query) == "" {
		return fmt.Errorf("query cannot be empty")
	}
	return nil
}

type tavilyRequest struct {
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results"`
}

type tavilyResponse struct {
	Query   string `json:"query"`
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Execute runs the search.
func (t *TavilySearchTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a searchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}
	if strings.TrimSpace(a.Query) == "" {
		return FailureResultf("query cannot be empty"), nil
	}
	if t.cfg.APIKey == "" {
		return FailureResultf("web search not allowed: TAVILY_API_KEY is not set"), nil
	}

	maxResults := t.cfg.MaxResults
	if a.MaxResults > 0 {
		maxResults = a.MaxResults
	}

	payload, err := json.Marshal(tavilyRequest{
		Query:         a.Query,
		SearchDepth:   t.cfg.SearchDepth,
		IncludeAnswer: t.cfg.IncludeAnswer,
		MaxResults:    maxResults,
	})
	if err != nil {
		return FailureResult(fmt.Errorf("failed to encode request: %w", err)), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return FailureResult(fmt.Errorf("failed to create request: %w", err)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)

	resp, err := t.cfg.Client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return FailureResultf("search request timeout after %s", t.cfg.Timeout), nil
		}
		return FailureResult(fmt.Errorf("search request failed: %w", err)), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return FailureResult(fmt.Errorf("failed to read response body: %w", err)), nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return FailureResultf("search failed: HTTP %d: %s", resp.StatusCode, truncateRunes(string(body), 200)), nil
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return FailureResult(fmt.Errorf("invalid search response: %w", err)), nil
	}

	return SuccessResult(t.render(parsed)), nil
}

// render builds markdown, adding results until the token budget is spent.
func (t *TavilySearchTool) render(r tavilyResponse) string {
	counter := t.cfg.Counter
	if counter == nil {
		counter = DefaultTokenCounter()
	}
	budget := t.cfg.MaxTokens

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Query)
	if t.cfg.IncludeAnswer && r.Answer != "" {
		answer := r.Answer
		if budget > 0 {
			answer = counter.Truncate(answer, budget)
		}
		fmt.Fprintf(&b, "### Summary\n%s\n\n", answer)
	}

	for _, res := range r.Results {
		entry := fmt.Sprintf("### [%s](%s)\n%s\n\n", res.Title, res.URL, res.Content)
		if budget > 0 && counter.Count(b.String()+entry) > budget {
			// Over budget: fall back to a bare link.
			link := fmt.Sprintf("- [%s](%s)\n", res.Title, res.URL)
			if counter.Count(b.String()+link) > budget {
				break
			}
			b.WriteString(link)
			continue
		}
		b.WriteString(entry)
	}

	return strings.TrimSpace(b.String())
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
