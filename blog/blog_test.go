package blog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/inkwell/agent"
	"github.com/richinex/inkwell/llm"
	"github.com/richinex/inkwell/llm/llmtest"
	"github.com/richinex/inkwell/retry"
	"github.com/richinex/inkwell/session"
	"github.com/richinex/inkwell/tools"
)

func strPtr(s string) *string { return &s }

type researchReply struct {
	results SearchResults
	err     error
}

type fakeResearcher struct {
	replies []researchReply
	topics  []string
}

func (f *fakeResearcher) Research(ctx context.Context, topic string) (SearchResults, error) {
	f.topics = append(f.topics, topic)
	if len(f.replies) == 0 {
		return SearchResults{}, errors.New("no scripted reply")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.results, r.err
}

func (f *fakeResearcher) calls() int { return len(f.topics) }

type fakeScraper struct {
	// finalURL maps a requested URL to the URL reported after redirects.
	finalURL map[string]string
	failing  map[string]bool
	requests []string
}

func (f *fakeScraper) Scrape(ctx context.Context, article NewsArticle) (ScrapedArticle, error) {
	f.requests = append(f.requests, article.URL)
	if f.failing[article.URL] {
		return ScrapedArticle{}, fmt.Errorf("fetch %s: connection reset", article.URL)
	}
	url := article.URL
	if final, ok := f.finalURL[url]; ok {
		url = final
	}
	return ScrapedArticle{
		Title:   article.Title,
		URL:     url,
		Summary: article.Summary,
		Content: strPtr("Body of " + article.Title),
	}, nil
}

type fakeWriter struct {
	post     string
	err      error
	calls    int
	topic    string
	articles []ScrapedArticle
}

func (f *fakeWriter) Write(ctx context.Context, topic string, articles []ScrapedArticle) (string, error) {
	f.calls++
	f.topic = topic
	f.articles = articles
	return f.post, f.err
}

func twoArticles() SearchResults {
	return SearchResults{Articles: []NewsArticle{
		{Title: "Solid-state batteries explained", URL: "https://example.com/explained", Summary: strPtr("An overview")},
		{Title: "Why solid-state matters for EVs", URL: "https://example.com/evs"},
	}}
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(session.NewState())

	results := twoArticles()
	require.NoError(t, cache.SetSearchResults("batteries", results))
	got, err := cache.SearchResults(ctx, "batteries")
	require.NoError(t, err)
	assert.Equal(t, results, got)

	scraped := NewScrapedArticles()
	scraped.Put("https://b.example.com", ScrapedArticle{Title: "B", URL: "https://b.example.com", Content: strPtr("b")})
	scraped.Put("https://a.example.com", ScrapedArticle{Title: "A", URL: "https://a.example.com"})
	require.NoError(t, cache.SetScrapedArticles("batteries", scraped))
	gotScraped, err := cache.ScrapedArticles(ctx, "batteries")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://b.example.com", "https://a.example.com"}, gotScraped.URLs())
	assert.Equal(t, scraped.List(), gotScraped.List())

	require.NoError(t, cache.SetBlogPost("batteries", "# Post"))
	post, err := cache.BlogPost(ctx, "batteries")
	require.NoError(t, err)
	assert.Equal(t, "# Post", post)
}

func TestCacheSurvivesStateEncoding(t *testing.T) {
	state := session.NewState()
	require.NoError(t, NewCache(state).SetBlogPost("batteries", "# Post"))

	data, err := json.Marshal(state)
	require.NoError(t, err)
	restored := session.NewState()
	require.NoError(t, json.Unmarshal(data, restored))

	post, err := NewCache(restored).BlogPost(context.Background(), "batteries")
	require.NoError(t, err)
	assert.Equal(t, "# Post", post)
}

func TestCacheOverwritesAndKeepsTopicsApart(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(session.NewState())

	require.NoError(t, cache.SetBlogPost("Batteries", "first"))
	require.NoError(t, cache.SetBlogPost("Batteries", "second"))
	require.NoError(t, cache.SetBlogPost("batteries", "lower"))

	post, err := cache.BlogPost(ctx, "Batteries")
	require.NoError(t, err)
	assert.Equal(t, "second", post)

	post, err = cache.BlogPost(ctx, "batteries")
	require.NoError(t, err)
	assert.Equal(t, "lower", post)

	_, err = cache.BlogPost(ctx, " batteries")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCacheMisses(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		raw  string
	}{
		{"unknown version", `{"t":{"kind":"blog_posts","version":99,"topic":"t","payload":"x"}}`},
		{"wrong kind", `{"t":{"kind":"search_results","version":1,"topic":"t","payload":"x"}}`},
		{"wrong topic", `{"t":{"kind":"blog_posts","version":1,"topic":"other","payload":"x"}}`},
		{"bare value", `{"t":"# an unversioned post"}`},
		{"payload type", `{"t":{"kind":"blog_posts","version":1,"topic":"t","payload":42}}`},
		{"mapping not an object", `["t"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := session.NewState()
			state.SetRaw(KindBlogPosts, json.RawMessage(tt.raw))

			_, err := NewCache(state).BlogPost(ctx, "t")
			assert.ErrorIs(t, err, ErrCacheMiss)
		})
	}

	t.Run("absent", func(t *testing.T) {
		_, err := NewCache(session.NewState()).SearchResults(ctx, "t")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("invalid search payload", func(t *testing.T) {
		state := session.NewState()
		state.SetRaw(KindSearchResults, json.RawMessage(
			`{"t":{"kind":"search_results","version":1,"topic":"t","payload":{"articles":[{"title":"T","url":""}]}}}`))
		_, err := NewCache(state).SearchResults(ctx, "t")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})
}

func TestCacheWriteReplacesUnreadableMapping(t *testing.T) {
	state := session.NewState()
	state.SetRaw(KindBlogPosts, json.RawMessage(`"garbage"`))
	cache := NewCache(state)

	require.NoError(t, cache.SetBlogPost("t", "post"))
	post, err := cache.BlogPost(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, "post", post)
}

func TestFetchSearchResultsFirstAttempt(t *testing.T) {
	state := session.NewState()
	r := &fakeResearcher{replies: []researchReply{{results: twoArticles()}}}

	got, err := FetchSearchResults(context.Background(), r, state, "batteries", true, retry.DefaultPolicy())
	require.NoError(t, err)
	assert.Len(t, got.Articles, 2)
	assert.Equal(t, 1, r.calls())

	cached, err := NewCache(state).SearchResults(context.Background(), "batteries")
	require.NoError(t, err)
	assert.Equal(t, got, cached)
}

func TestFetchSearchResultsRetriesMalformed(t *testing.T) {
	r := &fakeResearcher{replies: []researchReply{
		{err: errors.New("model timeout")},
		{results: SearchResults{Articles: []NewsArticle{{Title: "No link"}}}},
		{results: twoArticles()},
	}}

	got, err := FetchSearchResults(context.Background(), r, session.NewState(), "batteries", true, retry.DefaultPolicy())
	require.NoError(t, err)
	assert.Len(t, got.Articles, 2)
	assert.Equal(t, 3, r.calls())
}

func TestFetchSearchResultsExhausted(t *testing.T) {
	state := session.NewState()
	r := &fakeResearcher{replies: []researchReply{
		{err: errors.New("boom")}, {err: errors.New("boom")}, {err: errors.New("boom")}, {results: twoArticles()},
	}}

	_, err := FetchSearchResults(context.Background(), r, state, "batteries", true, retry.DefaultPolicy())
	require.ErrorIs(t, err, ErrSearchExhausted)
	assert.Equal(t, 3, r.calls())

	_, err = NewCache(state).SearchResults(context.Background(), "batteries")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestFetchSearchResultsHonoursPolicyAttempts(t *testing.T) {
	r := &fakeResearcher{}
	policy := retry.Policy{MaxAttempts: 5, Strategy: retry.StrategyConstant, InitialInterval: time.Millisecond}

	_, err := FetchSearchResults(context.Background(), r, session.NewState(), "batteries", false, policy)
	require.ErrorIs(t, err, ErrSearchExhausted)
	assert.Equal(t, 5, r.calls())
}

func TestFetchSearchResultsCache(t *testing.T) {
	state := session.NewState()
	require.NoError(t, NewCache(state).SetSearchResults("batteries", twoArticles()))

	r := &fakeResearcher{replies: []researchReply{{results: SearchResults{Articles: []NewsArticle{}}}}}
	got, err := FetchSearchResults(context.Background(), r, state, "batteries", true, retry.DefaultPolicy())
	require.NoError(t, err)
	assert.Len(t, got.Articles, 2)
	assert.Zero(t, r.calls())

	got, err = FetchSearchResults(context.Background(), r, state, "batteries", false, retry.DefaultPolicy())
	require.NoError(t, err)
	assert.Empty(t, got.Articles)
	assert.Equal(t, 1, r.calls())
}

func TestFetchSearchResultsCachedEmptyListIsHit(t *testing.T) {
	state := session.NewState()
	require.NoError(t, NewCache(state).SetSearchResults("batteries", SearchResults{Articles: []NewsArticle{}}))

	r := &fakeResearcher{replies: []researchReply{{results: twoArticles()}}}
	got, err := FetchSearchResults(context.Background(), r, state, "batteries", true, retry.DefaultPolicy())
	require.NoError(t, err)
	assert.NotNil(t, got.Articles)
	assert.Empty(t, got.Articles)
	assert.Zero(t, r.calls())
}

func TestFetchSearchResultsAcceptsLooseArticles(t *testing.T) {
	r := &fakeResearcher{replies: []researchReply{{results: SearchResults{Articles: []NewsArticle{
		{Title: "A", URL: "https://a.example/1"},
		{Title: "B", URL: "www.example.com/b"},
		{Title: "", URL: "/news/c"},
	}}}}}

	got, err := FetchSearchResults(context.Background(), r, session.NewState(), "batteries", true, retry.DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, 1, r.calls())
	require.Len(t, got.Articles, 3)
	assert.Equal(t, "www.example.com/b", got.Articles[1].URL)
}

type scraperFunc func(ctx context.Context, a NewsArticle) (ScrapedArticle, error)

func (f scraperFunc) Scrape(ctx context.Context, a NewsArticle) (ScrapedArticle, error) {
	return f(ctx, a)
}

func TestScrapeArticlesKeepsSearchTitle(t *testing.T) {
	results := SearchResults{Articles: []NewsArticle{
		{Title: "From search", URL: "https://example.com/1"},
		{Title: "", URL: "https://example.com/2"},
	}}
	s := scraperFunc(func(ctx context.Context, a NewsArticle) (ScrapedArticle, error) {
		return ScrapedArticle{URL: a.URL, Content: strPtr("body")}, nil
	})

	got, err := ScrapeArticles(context.Background(), s, session.NewState(), "batteries", results)
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())
	first, _ := got.Get("https://example.com/1")
	assert.Equal(t, "From search", first.Title)
	second, _ := got.Get("https://example.com/2")
	assert.Empty(t, second.Title)
}

func TestScrapeArticlesSkipsFailures(t *testing.T) {
	state := session.NewState()
	results := SearchResults{Articles: []NewsArticle{
		{Title: "One", URL: "https://example.com/1"},
		{Title: "Two", URL: "https://example.com/2"},
		{Title: "Three", URL: "https://example.com/3"},
	}}
	s := &fakeScraper{
		failing:  map[string]bool{"https://example.com/2": true},
		finalURL: map[string]string{"https://example.com/3": "https://www.example.com/articles/3"},
	}

	got, err := ScrapeArticles(context.Background(), s, state, "batteries", results)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/1", "https://www.example.com/articles/3"}, got.URLs())
	assert.Len(t, s.requests, 3)

	cached, err := NewCache(state).ScrapedArticles(context.Background(), "batteries")
	require.NoError(t, err)
	assert.Equal(t, got.URLs(), cached.URLs())

	_, err = ScrapeArticles(context.Background(), s, state, "batteries", results)
	require.NoError(t, err)
	assert.Len(t, s.requests, 3, "cached articles should not be scraped again")
}

func TestScrapeArticlesNeverExceedsInput(t *testing.T) {
	results := SearchResults{Articles: []NewsArticle{
		{Title: "Short link", URL: "https://t.example/a"},
		{Title: "Canonical", URL: "https://example.com/a"},
	}}
	s := &fakeScraper{finalURL: map[string]string{"https://t.example/a": "https://example.com/a"}}

	got, err := ScrapeArticles(context.Background(), s, session.NewState(), "t", results)
	require.NoError(t, err)
	assert.LessOrEqual(t, got.Len(), len(results.Articles))
	assert.Equal(t, 1, got.Len())
}

func TestScrapeArticlesCachesEmptyResult(t *testing.T) {
	state := session.NewState()
	results := SearchResults{Articles: []NewsArticle{{Title: "One", URL: "https://example.com/1"}}}
	s := &fakeScraper{failing: map[string]bool{"https://example.com/1": true}}

	got, err := ScrapeArticles(context.Background(), s, state, "t", results)
	require.NoError(t, err)
	assert.Zero(t, got.Len())

	_, found := state.Raw(KindScrapedArticles)
	assert.True(t, found)

	// An empty cached set does not short-circuit the next run.
	_, err = ScrapeArticles(context.Background(), s, state, "t", results)
	require.NoError(t, err)
	assert.Len(t, s.requests, 2)
}

func TestScrapeArticlesStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &fakeScraper{}

	_, err := ScrapeArticles(ctx, s, session.NewState(), "t", twoArticles())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.requests)
}

func newTestPipeline(r Researcher, s Scraper, w Writer) *Pipeline {
	return NewPipeline(r, s, w, WithRetryPolicy(retry.DefaultPolicy()))
}

func TestPipelineEndToEnd(t *testing.T) {
	const topic = "solid-state batteries"
	post := "# Solid-State Batteries\n\n## Introduction\nThey are coming.\n\n## Sources\n- example.com"

	state := session.NewState()
	r := &fakeResearcher{replies: []researchReply{{results: twoArticles()}}}
	s := &fakeScraper{}
	w := &fakeWriter{post: post}
	p := newTestPipeline(r, s, w)

	out := p.Run(context.Background(), state, ResearchTopic{Topic: topic})
	require.True(t, out.OK(), out.Text)
	assert.Equal(t, post, out.Text)
	assert.Equal(t, PhaseDone, out.Phase)
	assert.Equal(t, 2, out.Sources)
	assert.False(t, out.Cached)
	assert.Equal(t, topic, w.topic)
	assert.Len(t, w.articles, 2)
	assert.Equal(t, "https://example.com/explained", w.articles[0].URL)

	cached, err := NewCache(state).BlogPost(context.Background(), topic)
	require.NoError(t, err)
	assert.Equal(t, post, cached)

	again := p.Run(context.Background(), state, ResearchTopic{Topic: topic})
	assert.Equal(t, post, again.Text)
	assert.True(t, again.Cached)
	assert.Equal(t, 1, r.calls())
	assert.Len(t, s.requests, 2)
	assert.Equal(t, 1, w.calls)
}

func TestPipelineCachedPostMakesNoCalls(t *testing.T) {
	state := session.NewState()
	require.NoError(t, NewCache(state).SetBlogPost("rust", "cached post"))

	r := &fakeResearcher{}
	s := &fakeScraper{}
	w := &fakeWriter{}
	out := newTestPipeline(r, s, w).Run(context.Background(), state, ResearchTopic{Topic: "rust"})

	assert.Equal(t, "cached post", out.Text)
	assert.True(t, out.Cached)
	assert.Zero(t, r.calls())
	assert.Empty(t, s.requests)
	assert.Zero(t, w.calls)
}

func TestPipelineNoTopic(t *testing.T) {
	r := &fakeResearcher{}
	out := newTestPipeline(r, &fakeScraper{}, &fakeWriter{}).Run(context.Background(), session.NewState(), ResearchTopic{})

	assert.Equal(t, "❌ No blog topic provided. Please specify a topic.", out.Text)
	assert.ErrorIs(t, out.Err, ErrNoTopic)
	assert.Zero(t, r.calls())
}

func TestPipelineZeroResults(t *testing.T) {
	r := &fakeResearcher{replies: []researchReply{{results: SearchResults{Articles: []NewsArticle{}}}}}
	s := &fakeScraper{}
	w := &fakeWriter{post: "never"}

	out := newTestPipeline(r, s, w).Run(context.Background(), session.NewState(), ResearchTopic{Topic: "quantum knitting"})
	assert.Equal(t, "❌ Sorry, could not find any articles on the topic: quantum knitting", out.Text)
	assert.Equal(t, PhaseResearch, out.Phase)
	assert.ErrorIs(t, out.Err, ErrNoResults)
	assert.Equal(t, 1, r.calls())
	assert.Empty(t, s.requests)
	assert.Zero(t, w.calls)
}

func TestPipelineSearchExhausted(t *testing.T) {
	r := &fakeResearcher{}
	w := &fakeWriter{}

	out := newTestPipeline(r, &fakeScraper{}, w).Run(context.Background(), session.NewState(), ResearchTopic{Topic: "t"})
	assert.True(t, strings.HasPrefix(out.Text, "❌"))
	assert.Contains(t, out.Text, "t")
	assert.ErrorIs(t, out.Err, ErrSearchExhausted)
	assert.ErrorIs(t, out.Err, ErrNoResults)
	assert.Equal(t, 3, r.calls())
	assert.Zero(t, w.calls)
}

func TestPipelineAllScrapesFail(t *testing.T) {
	results := twoArticles()
	r := &fakeResearcher{replies: []researchReply{{results: results}}}
	s := &fakeScraper{failing: map[string]bool{results.Articles[0].URL: true, results.Articles[1].URL: true}}
	w := &fakeWriter{post: "never"}

	out := newTestPipeline(r, s, w).Run(context.Background(), session.NewState(), ResearchTopic{Topic: "batteries"})
	assert.Equal(t, "❌ Could not extract content from any articles for topic: batteries", out.Text)
	assert.Equal(t, PhaseExtract, out.Phase)
	assert.ErrorIs(t, out.Err, ErrNoContent)
	assert.Len(t, s.requests, 2)
	assert.Zero(t, w.calls)
}

func TestPipelineEmptyPost(t *testing.T) {
	state := session.NewState()
	r := &fakeResearcher{replies: []researchReply{{results: twoArticles()}}}

	tests := []struct {
		name string
		w    *fakeWriter
	}{
		{"blank", &fakeWriter{post: "  \n"}},
		{"error", &fakeWriter{err: errors.New("model refused")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := newTestPipeline(r, &fakeScraper{}, tt.w).Run(context.Background(), state, ResearchTopic{Topic: "batteries"})
			assert.Equal(t, "❌ Failed to generate blog post for topic: batteries", out.Text)
			assert.ErrorIs(t, out.Err, ErrEmptyPost)
			assert.Equal(t, PhaseWrite, out.Phase)
		})
	}

	// Earlier phases stay cached after a write failure.
	_, err := NewCache(state).ScrapedArticles(context.Background(), "batteries")
	assert.NoError(t, err)
	_, err = NewCache(state).BlogPost(context.Background(), "batteries")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestPipelineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &fakeResearcher{}

	out := newTestPipeline(r, &fakeScraper{}, &fakeWriter{}).Run(ctx, session.NewState(), ResearchTopic{Topic: "t"})
	assert.ErrorIs(t, out.Err, ErrCancelled)
	assert.True(t, strings.HasPrefix(out.Text, "❌"))
	assert.Zero(t, r.calls())
}

func TestAgentCollaborators(t *testing.T) {
	ctx := context.Background()

	researchLLM := llmtest.New(`{"articles":[{"title":"A","url":"https://example.com/a","summary":"s"}]}`)
	researcher := AgentResearcher{
		Agent: agent.New(agent.Config{
			Name:           ResearchAgentName,
			ResponseSchema: agent.SchemaFor[SearchResults](),
		}, researchLLM),
		MaxIterations: 3,
	}
	results, err := researcher.Research(ctx, "batteries")
	require.NoError(t, err)
	require.Len(t, results.Articles, 1)
	assert.Equal(t, "s", *results.Articles[0].Summary)
	assert.Contains(t, researchLLM.LastUserMessage(0), "batteries")

	scrapeLLM := llmtest.New(`{"title":"A","url":"https://example.com/a","content":"body"}`)
	scraper := AgentScraper{
		Agent:         agent.New(agent.Config{Name: ScraperAgentName, ResponseSchema: agent.SchemaFor[ScrapedArticle]()}, scrapeLLM),
		MaxIterations: 3,
	}
	scraped, err := scraper.Scrape(ctx, results.Articles[0])
	require.NoError(t, err)
	assert.Equal(t, "body", *scraped.Content)
	assert.Contains(t, scrapeLLM.LastUserMessage(0), "https://example.com/a")

	writeLLM := llmtest.New("# Post\n")
	writer := AgentWriter{Agent: agent.New(WriterAgentConfig(), writeLLM), MaxIterations: 3}
	post, err := writer.Write(ctx, "batteries", []ScrapedArticle{scraped})
	require.NoError(t, err)
	assert.Equal(t, "# Post", post)
	assert.Contains(t, writeLLM.LastUserMessage(0), `"topic": "batteries"`)
	assert.Contains(t, writeLLM.SystemPrompt(0), "## Key Takeaways")

	failing := AgentWriter{Agent: agent.New(WriterAgentConfig(), llmtest.New().Push(llmtest.Reply{Err: errors.New("quota")})), MaxIterations: 1}
	_, err = failing.Write(ctx, "batteries", nil)
	assert.Error(t, err)
}

func TestToolScraperReportsFinalURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/short", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/articles/solid-state", http.StatusFound)
	})
	mux.HandleFunc("/articles/solid-state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Solid state</title><meta name="description" content="Denser cells"></head>
<body><article><h2>Chemistry</h2><p>Ceramic electrolytes replace liquids.</p></article></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := ToolScraper{Tool: tools.NewArticleScrapeTool(5*time.Second, 0)}
	got, err := s.Scrape(context.Background(), NewsArticle{Title: "Fallback", URL: srv.URL + "/short"})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/articles/solid-state", got.URL)
	assert.Equal(t, "Solid state", got.Title)
	require.NotNil(t, got.Summary)
	assert.Equal(t, "Denser cells", *got.Summary)
	require.NotNil(t, got.Content)
	assert.Contains(t, *got.Content, "Ceramic electrolytes")
}

func TestPipelineWithToolScraper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title></title></head><body><article><p>Ceramic electrolytes.</p></article></body></html>`)
	}))
	defer srv.Close()

	r := &fakeResearcher{replies: []researchReply{{results: SearchResults{Articles: []NewsArticle{
		{Title: "From search", URL: srv.URL + "/a"},
	}}}}}
	unused := &fakeScraper{}
	w := &fakeWriter{post: "# Post"}
	p := NewPipeline(r, unused, w,
		WithScraper(ToolScraper{Tool: tools.NewArticleScrapeTool(5*time.Second, 0)}))

	out := p.Run(context.Background(), session.NewState(), ResearchTopic{Topic: "batteries"})
	require.True(t, out.OK(), out.Text)
	assert.Empty(t, unused.requests)
	require.Len(t, w.articles, 1)
	assert.Equal(t, "From search", w.articles[0].Title)
	require.NotNil(t, w.articles[0].Content)
	assert.Contains(t, *w.articles[0].Content, "Ceramic electrolytes")
}

func TestWriterPayload(t *testing.T) {
	payload, err := WriterPayload("batteries", nil)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"topic\": \"batteries\",\n  \"articles\": []\n}", payload)
}

func TestScrapedArticlesJSONKeepsOrder(t *testing.T) {
	var s ScrapedArticles
	require.NoError(t, json.Unmarshal([]byte(`{"z":{"title":"Z","url":"z"},"a":{"title":"A","url":"a"}}`), &s))
	assert.Equal(t, []string{"z", "a"}, s.URLs())

	data, err := json.Marshal(&s)
	require.NoError(t, err)
	assert.Equal(t, `{"z":{"title":"Z","url":"z"},"a":{"title":"A","url":"a"}}`, string(data))

	assert.Error(t, json.Unmarshal([]byte(`[1]`), &s))
}

func TestPersonas(t *testing.T) {
	search := tools.NewNewsFeedSearchTool("", 0)
	scrape := tools.NewArticleScrapeTool(0, 0)

	research := ResearchAgentConfig(search)
	assert.Equal(t, ResearchAgentName, research.Name)
	assert.True(t, research.HasTools())
	assert.True(t, research.HasResponseSchema())
	assert.Contains(t, string(research.ResponseSchema), `"articles"`)

	scraper := ScraperAgentConfig(scrape)
	assert.Contains(t, string(scraper.ResponseSchema), `"content"`)

	writer := WriterAgentConfig()
	assert.True(t, writer.Markdown)
	assert.False(t, writer.HasTools())

	cfg := TeamConfig()
	assert.Equal(t, TeamName, cfg.Name)
	assert.True(t, cfg.Reasoning)
	assert.True(t, cfg.ShowMemberResponses)
	assert.Len(t, cfg.Instructions, 2)

	assert.Equal(t, "gemini/gemini-2.5-flash", TeamModel.String())
	require.NotNil(t, TeamModel.Temperature)
	assert.InDelta(t, 0.3, *TeamModel.Temperature, 1e-6)
}

func TestNewAgentsAndTeam(t *testing.T) {
	provider := llmtest.New()
	agents, err := NewAgents(llm.StaticResolver(provider), tools.NewNewsFeedSearchTool("", 0), tools.NewArticleScrapeTool(0, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{ResearchAgentName, ScraperAgentName, WriterAgentName},
		[]string{agents.List()[0].Name(), agents.List()[1].Name(), agents.List()[2].Name()})

	tm, err := NewTeam(llm.StaticResolver(provider), agents)
	require.NoError(t, err)
	assert.Equal(t, []string{ResearchAgentName, ScraperAgentName, WriterAgentName}, tm.MemberNames())

	_, err = NewAgents(func(llm.ModelSpec) (llm.Provider, error) { return nil, errors.New("no key") }, nil, nil)
	assert.Error(t, err)
}
