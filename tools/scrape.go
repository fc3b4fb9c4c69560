// Article reading tool.
//
// Information Hiding:
// - HTTP fetching with redirect following and domain allowlist
// - HTML extraction (title, description, body paragraphs) via goquery
// - Output size limits

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// DefaultMaxArticleChars caps extracted body text.
	DefaultMaxArticleChars = 20000
	maxArticleBytes        = 5 << 20
	scrapeUserAgent        = "Mozilla/5.0 (compatible; inkwell/1.0; +https://github.com/richinex/inkwell)"
)

// Article is the extracted form of a web page.
type Article struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content"`
}

// Markdown renders the article for an agent observation.
func (a Article) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\nURL: %s\n", a.Title, a.URL)
	if a.Description != "" {
		fmt.Fprintf(&b, "Summary: %s\n", a.Description)
	}
	b.WriteString("\n")
	b.WriteString(a.Content)
	return strings.TrimSpace(b.String())
}

// ArticleScrapeTool fetches a URL and extracts readable article text.
type ArticleScrapeTool struct {
	BaseTool
	client         *http.Client
	timeout        time.Duration
	maxChars       int
	allowedDomains []string
}

// NewArticleScrapeTool creates the read_article tool.
func NewArticleScrapeTool(timeout time.Duration, maxChars int) *ArticleScrapeTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxArticleChars
	}
	return &ArticleScrapeTool{
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
		maxChars: maxChars,
	}
}

// WithAllowedDomains restricts fetching to the given domains and their subdomains.
func (t *ArticleScrapeTool) WithAllowedDomains(domains []string) *ArticleScrapeTool {
	t.allowedDomains = domains
	return t
}

// Metadata returns the tool metadata.
func (t *ArticleScrapeTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "read_article",
		Description: "Fetch a web article and return its title, final URL (after redirects), summary and main text as markdown.",
		Parameters: []ToolParameter{
			{Name: "url", ParamType: "string", Description: "The article URL", Required: true},
		},
	}
}

type scrapeArgs struct {
	URL string `json:"url"`
}

// Validate validates the arguments.
func (t *ArticleScrapeTool) Validate(args json.RawMessage) error {
	var a scrapeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if a.URL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	return nil
}

// Execute fetches and extracts the article.
func (t *ArticleScrapeTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a scrapeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}
	article, err := t.Scrape(ctx, a.URL)
	if err != nil {
		return FailureResult(err), nil
	}
	return SuccessResult(article.Markdown()), nil
}

// Scrape fetches rawURL and extracts the article. Article.URL is the final URL.
func (t *ArticleScrapeTool) Scrape(ctx context.Context, rawURL string) (Article, error) {
	if rawURL == "" {
		return Article{}, fmt.Errorf("URL cannot be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return Article{}, fmt.Errorf("invalid URL %q", rawURL)
	}
	if !t.isDomainAllowed(u) {
		return Article{}, fmt.Errorf("access to domain in '%s' is not allowed", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Article{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", scrapeUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Article{}, fmt.Errorf("request timeout after %s", t.timeout)
		}
		return Article{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Article{}, fmt.Errorf("fetch failed: HTTP %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return Article{}, fmt.Errorf("invalid content type %q", ct)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxArticleBytes))
	if err != nil {
		return Article{}, fmt.Errorf("failed to parse HTML: %w", err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	article := Article{
		Title:       extractTitle(doc),
		URL:         finalURL,
		Description: extractDescription(doc),
		Content:     truncateRunes(extractBody(doc), t.maxChars),
	}
	if article.Content == "" {
		return Article{}, fmt.Errorf("no readable content at %s", finalURL)
	}
	if article.Title == "" {
		article.Title = finalURL
	}
	return article, nil
}

func extractTitle(doc *goquery.Document) string {
	if v, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if v := strings.TrimSpace(doc.Find("title").First().Text()); v != "" {
		return v
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func extractDescription(doc *goquery.Document) string {
	for _, sel := range []string{`meta[name="description"]`, `meta[property="og:description"]`} {
		if v, ok := doc.Find(sel).Attr("content"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// extractBody collects paragraph and heading text from the most specific
// container that has any.
func extractBody(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, header, footer, aside, form").Remove()

	for _, container := range []string{"article", "main", "[role=main]", "body"} {
		var parts []string
		doc.Find(container).First().Find("h2, h3, p, li").Each(func(_ int, s *goquery.Selection) {
			text := strings.Join(strings.Fields(s.Text()), " ")
			if text == "" {
				return
			}
			switch goquery.NodeName(s) {
			case "h2":
				parts = append(parts, "## "+text)
			case "h3":
				parts = append(parts, "### "+text)
			case "li":
				parts = append(parts, "- "+text)
			default:
				parts = append(parts, text)
			}
		})
		if len(parts) > 0 {
			return strings.Join(parts, "\n\n")
		}
	}
	return ""
}

// isDomainAllowed checks the host against the allowlist; subdomains match.
func (t *ArticleScrapeTool) isDomainAllowed(u *url.URL) bool {
	if len(t.allowedDomains) == 0 {
		return true
	}
	host := u.Hostname()
	for _, domain := range t.allowedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
