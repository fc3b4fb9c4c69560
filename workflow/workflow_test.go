package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/inkwell/blog"
	"github.com/richinex/inkwell/session"
	"github.com/richinex/inkwell/storage"
)

type countingResearcher struct{ calls int }

func (r *countingResearcher) Research(ctx context.Context, topic string) (blog.SearchResults, error) {
	r.calls++
	return blog.SearchResults{Articles: []blog.NewsArticle{
		{Title: "Solid-state batteries explained", URL: "https://example.com/explained"},
		{Title: "Solid-state in EVs", URL: "https://example.com/evs"},
	}}, nil
}

type echoScraper struct{ calls int }

func (s *echoScraper) Scrape(ctx context.Context, a blog.NewsArticle) (blog.ScrapedArticle, error) {
	s.calls++
	content := "content of " + a.Title
	return blog.ScrapedArticle{Title: a.Title, URL: a.URL, Content: &content}, nil
}

type staticWriter struct{ calls int }

func (w *staticWriter) Write(ctx context.Context, topic string, articles []blog.ScrapedArticle) (string, error) {
	w.calls++
	return "# " + topic + "\n\n## Sources\n- " + articles[0].URL, nil
}

func newGenerator(store session.Store) (*Workflow, *countingResearcher, *echoScraper, *staticWriter) {
	r, s, w := &countingResearcher{}, &echoScraper{}, &staticWriter{}
	return NewBlogPostGenerator(blog.NewPipeline(r, s, w), store), r, s, w
}

func TestBlogPostGeneratorCachesAcrossRuns(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemorySessionStore()
	wf, r, s, w := newGenerator(store)

	first, err := wf.Run(ctx, "sess-1", json.RawMessage(`{"topic":"solid-state batteries"}`))
	require.NoError(t, err)
	assert.Equal(t, "sess-1", first.SessionID)
	assert.Equal(t, BlogPostGeneratorName, first.Workflow)
	assert.Contains(t, first.Content, "# solid-state batteries")
	assert.NotEmpty(t, first.RunID)

	second, err := wf.Run(ctx, "sess-1", json.RawMessage(`"solid-state batteries"`))
	require.NoError(t, err)
	assert.Equal(t, first.Content, second.Content)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, 2, s.calls)
	assert.Equal(t, 1, w.calls)

	// A different session starts cold.
	_, err = wf.Run(ctx, "sess-2", json.RawMessage(`{"topic":"solid-state batteries"}`))
	require.NoError(t, err)
	assert.Equal(t, 2, r.calls)

	ids, err := wf.Sessions(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sess-1", "sess-2"}, ids)
}

func TestBlogPostGeneratorPersistsInSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "blog_generator.db")

	store, err := storage.OpenSQLSessionStore("sqlite", path, "")
	require.NoError(t, err)
	wf, _, _, _ := newGenerator(store)
	first, err := wf.Run(ctx, "", json.RawMessage(`{"topic":"solid-state batteries"}`))
	require.NoError(t, err)
	require.NotEmpty(t, first.SessionID)
	require.NoError(t, store.Close())

	reopened, err := storage.OpenSQLSessionStore("sqlite", path, "")
	require.NoError(t, err)
	defer reopened.Close()
	wf2, r, s, w := newGenerator(reopened)

	second, err := wf2.Run(ctx, first.SessionID, json.RawMessage(`{"topic":"solid-state batteries"}`))
	require.NoError(t, err)
	assert.Equal(t, first.Content, second.Content)
	assert.Zero(t, r.calls+s.calls+w.calls)

	sess, err := wf2.Session(ctx, first.SessionID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{blog.KindBlogPosts, blog.KindScrapedArticles, blog.KindSearchResults}, sess.State.Keys())
}

func TestBlogPostGeneratorTerminalMessages(t *testing.T) {
	wf, r, _, _ := newGenerator(storage.NewMemorySessionStore())

	res, err := wf.Run(context.Background(), "s", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "❌ No blog topic provided. Please specify a topic.", res.Content)
	assert.Zero(t, r.calls)

	_, err = wf.Run(context.Background(), "s", json.RawMessage(`{"topic": 42}`))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDecodeTopic(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{``, ""},
		{`null`, ""},
		{`"Rust"`, "Rust"},
		{`{"topic":"  Go  "}`, "  Go  "},
	}
	for _, tt := range tests {
		got, err := DecodeTopic(json.RawMessage(tt.in))
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got.Topic, tt.in)
	}
}

type failingStore struct {
	session.Store
	loadErr, saveErr error
	saved            int
}

func (f *failingStore) Load(ctx context.Context, id string) (*session.Session, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return nil, session.ErrNotFound
}

func (f *failingStore) Save(ctx context.Context, s *session.Session) error {
	f.saved++
	return f.saveErr
}

func TestRunStoreErrors(t *testing.T) {
	ctx := context.Background()
	step := Step{Name: "noop", Run: func(ctx context.Context, state *session.State, in StepInput) (string, error) {
		return "ok", nil
	}}

	loadFails := &failingStore{loadErr: errors.New("disk gone")}
	_, err := New("wf", "", loadFails, step).Run(ctx, "s", nil)
	require.Error(t, err)
	assert.Zero(t, loadFails.saved)

	saveFails := &failingStore{saveErr: errors.New("read only")}
	_, err = New("wf", "", saveFails, step).Run(ctx, "s", nil)
	assert.ErrorContains(t, err, "read only")
}

func TestRunSavesAfterStepError(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemorySessionStore()

	steps := []Step{
		{Name: "mark", Run: func(ctx context.Context, state *session.State, in StepInput) (string, error) {
			return "marked", state.Set("progress", "phase one")
		}},
		{Name: "explode", Run: func(ctx context.Context, state *session.State, in StepInput) (string, error) {
			assert.Equal(t, "marked", in.Previous)
			return "", errors.New("boom")
		}},
	}
	res, err := New("wf", "", store, steps...).Run(ctx, "s", nil)
	require.ErrorContains(t, err, "step explode: boom")
	assert.Equal(t, "explode", res.Step)

	sess, err := store.Load(ctx, "s")
	require.NoError(t, err)
	var progress string
	found, err := sess.State.Get("progress", &progress)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "phase one", progress)
}

func TestRunSerializesSameSession(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemorySessionStore()
	step := Step{Name: "count", Run: func(ctx context.Context, state *session.State, in StepInput) (string, error) {
		var n int
		if _, err := state.Get("n", &n); err != nil {
			return "", err
		}
		return "", state.Set("n", n+1)
	}}
	wf := New("wf", "", store, step)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := wf.Run(ctx, "shared", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sess, err := store.Load(ctx, "shared")
	require.NoError(t, err)
	var n int
	_, err = sess.State.Get("n", &n)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Empty(t, wf.locks.locks)
}
