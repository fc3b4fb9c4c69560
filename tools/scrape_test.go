package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const sampleArticle = `<!DOCTYPE html>
<html>
<head>
  <title>Fallback title</title>
  <meta property="og:title" content="Solid-State Batteries Explained">
  <meta name="description" content="Why the electrolyte matters.">
  <script>var tracking = true;</script>
</head>
<body>
  <nav><p>Home | About</p></nav>
  <article>
    <h2>Background</h2>
    <p>Lithium-ion cells use a liquid electrolyte.</p>
    <p>Solid electrolytes promise higher energy density.</p>
    <ul><li>Safer</li></ul>
  </article>
  <footer><p>Copyright</p></footer>
</body>
</html>`

func newArticleServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/short", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/articles/solid-state", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/articles/solid-state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(sampleArticle))
	})
	mux.HandleFunc("/data.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestArticleScrapeFollowsRedirect(t *testing.T) {
	srv := newArticleServer(t)
	tool := NewArticleScrapeTool(0, 0)

	article, err := tool.Scrape(context.Background(), srv.URL+"/short")
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}

	if article.URL != srv.URL+"/articles/solid-state" {
		t.Errorf("URL = %q, want final redirected URL", article.URL)
	}
	if article.Title != "Solid-State Batteries Explained" {
		t.Errorf("Title = %q", article.Title)
	}
	if article.Description != "Why the electrolyte matters." {
		t.Errorf("Description = %q", article.Description)
	}
	for _, want := range []string{"## Background", "Lithium-ion cells use a liquid electrolyte.", "- Safer"} {
		if !strings.Contains(article.Content, want) {
			t.Errorf("content missing %q:\n%s", want, article.Content)
		}
	}
	for _, unwanted := range []string{"Home | About", "Copyright", "tracking"} {
		if strings.Contains(article.Content, unwanted) {
			t.Errorf("content should not contain %q", unwanted)
		}
	}
}

func TestArticleScrapeExecuteMarkdown(t *testing.T) {
	srv := newArticleServer(t)
	tool := NewArticleScrapeTool(0, 0)

	args, _ := json.Marshal(map[string]string{"url": srv.URL + "/articles/solid-state"})
	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !result.Success() {
		t.Fatalf("expected success, got %v", result.Error)
	}
	if !strings.HasPrefix(result.Output, "# Solid-State Batteries Explained") {
		t.Errorf("unexpected output:\n%s", result.Output)
	}
	if !strings.Contains(result.Output, "URL: "+srv.URL+"/articles/solid-state") {
		t.Errorf("output missing URL line:\n%s", result.Output)
	}
}

func TestArticleScrapeFailures(t *testing.T) {
	srv := newArticleServer(t)

	tests := []struct {
		name    string
		tool    *ArticleScrapeTool
		url     string
		wantErr string
	}{
		{"not found", NewArticleScrapeTool(0, 0), srv.URL + "/missing", "HTTP 404"},
		{"non html", NewArticleScrapeTool(0, 0), srv.URL + "/data.json", "invalid content type"},
		{"bad scheme", NewArticleScrapeTool(0, 0), "ftp://example.com/file", "invalid URL"},
		{"domain blocked", NewArticleScrapeTool(0, 0).WithAllowedDomains([]string{"example.org"}), srv.URL + "/short", "not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.tool.Scrape(context.Background(), tt.url)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestArticleScrapeTruncates(t *testing.T) {
	srv := newArticleServer(t)
	tool := NewArticleScrapeTool(0, 20)

	article, err := tool.Scrape(context.Background(), srv.URL+"/articles/solid-state")
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	if len([]rune(article.Content)) != 23 {
		t.Errorf("content length = %d, want 20 runes plus ellipsis", len([]rune(article.Content)))
	}
}
