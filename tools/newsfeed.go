// News feed search tool.
//
// Information Hiding:
// - Feed URL template (Google News RSS by default)
// - RSS/Atom parsing via gofeed
// - HTML stripping of item descriptions

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// DefaultNewsFeedURL is a Google News RSS search URL; %s receives the escaped query.
const DefaultNewsFeedURL = "https://news.google.com/rss/search?q=%s&hl=en-US&gl=US&ceid=US:en"

// NewsFeedSearchTool searches a news RSS feed. It needs no API key and serves
// as the research fallback when web search is not configured.
type NewsFeedSearchTool struct {
	BaseTool
	parser      *gofeed.Parser
	urlTemplate string
	maxResults  int
	timeout     time.Duration
}

// NewNewsFeedSearchTool creates the news_search tool. An empty template selects Google News.
func NewNewsFeedSearchTool(urlTemplate string, maxResults int) *NewsFeedSearchTool {
	if urlTemplate == "" {
		urlTemplate = DefaultNewsFeedURL
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	return &NewsFeedSearchTool{
		parser:      gofeed.NewParser(),
		urlTemplate: urlTemplate,
		maxResults:  maxResults,
		timeout:     30 * time.Second,
	}
}

// Metadata returns the tool metadata.
func (t *NewsFeedSearchTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "news_search",
		Description: "Search recent news articles. Returns a markdown list of headlines with URLs, publication dates and summaries.",
		Parameters: []ToolParameter{
			{Name: "query", ParamType: "string", Description: "The news search query", Required: true},
			{Name: "max_results", ParamType: "integer", Description: "Number of articles to return", Required: false},
		},
	}
}

// Validate validates the arguments.
func (t *NewsFeedSearchTool) Validate(args json.RawMessage) error {
	return validateSearchArgs(args)
}

// Execute fetches and renders the feed.
func (t *NewsFeedSearchTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a searchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}
	if strings.TrimSpace(a.Query) == "" {
		return FailureResultf("query cannot be empty"), nil
	}

	limit := t.maxResults
	if a.MaxResults > 0 && a.MaxResults < limit {
		limit = a.MaxResults
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	feedURL := fmt.Sprintf(t.urlTemplate, url.QueryEscape(a.Query))
	feed, err := t.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return FailureResult(fmt.Errorf("failed to fetch news feed: %w", err)), nil
	}

	if len(feed.Items) == 0 {
		return SuccessResult(fmt.Sprintf("No news articles found for %q.", a.Query)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# News results for %q\n\n", a.Query)
	for i, item := range feed.Items {
		if i >= limit {
			break
		}
		fmt.Fprintf(&b, "%d. [%s](%s)", i+1, item.Title, item.Link)
		if item.PublishedParsed != nil {
			fmt.Fprintf(&b, " (%s)", item.PublishedParsed.Format("2006-01-02"))
		}
		b.WriteString("\n")
		if summary := htmlText(firstNonEmpty(item.Description, item.Content)); summary != "" {
			fmt.Fprintf(&b, "   %s\n", truncateRunes(summary, 300))
		}
	}

	return SuccessResult(strings.TrimSpace(b.String())), nil
}

// htmlText returns the visible text of an HTML fragment.
func htmlText(fragment string) string {
	if fragment == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
