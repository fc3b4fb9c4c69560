// Topic-keyed cache over session state.
//
// Information Hiding:
// - Envelope layout {kind, version, topic, saved_at, payload}
// - Top-level mapping per record kind, created on first write
// - Miss classification (absent, unparsable, wrong kind, unknown version)

package blog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/richinex/inkwell/logging"
	"github.com/richinex/inkwell/observability"
	"github.com/richinex/inkwell/session"
)

// State keys of the three topic-keyed mappings.
const (
	KindSearchResults   = "search_results"
	KindScrapedArticles = "scraped_articles"
	KindBlogPosts       = "blog_posts"
)

// recordVersion is the envelope version written by this package.
const recordVersion = 1

// ErrCacheMiss is returned when no usable record exists for a topic.
var ErrCacheMiss = errors.New("cache miss")

type envelope struct {
	Kind    string          `json:"kind"`
	Version int             `json:"version"`
	Topic   string          `json:"topic"`
	SavedAt time.Time       `json:"saved_at"`
	Payload json.RawMessage `json:"payload"`
}

// Cache reads and writes pipeline artifacts in a session state.
// Topics are used verbatim as keys.
type Cache struct {
	state   *session.State
	metrics *observability.Metrics
	now     func() time.Time
}

// NewCache wraps state. Lookups are recorded on the global metrics.
func NewCache(state *session.State) *Cache {
	return &Cache{
		state:   state,
		metrics: observability.GetGlobalMetrics(),
		now:     time.Now,
	}
}

// SearchResults returns the cached search results for topic.
func (c *Cache) SearchResults(ctx context.Context, topic string) (SearchResults, error) {
	var out SearchResults
	err := c.load(ctx, KindSearchResults, topic, &out, func() error { return out.Validate() })
	return out, err
}

// SetSearchResults replaces the cached search results for topic.
func (c *Cache) SetSearchResults(topic string, results SearchResults) error {
	return c.store(KindSearchResults, topic, results)
}

// ScrapedArticles returns the cached scraped articles for topic.
func (c *Cache) ScrapedArticles(ctx context.Context, topic string) (*ScrapedArticles, error) {
	out := NewScrapedArticles()
	if err := c.load(ctx, KindScrapedArticles, topic, out, out.Validate); err != nil {
		return nil, err
	}
	return out, nil
}

// SetScrapedArticles replaces the cached scraped articles for topic.
func (c *Cache) SetScrapedArticles(topic string, articles *ScrapedArticles) error {
	if articles == nil {
		articles = NewScrapedArticles()
	}
	return c.store(KindScrapedArticles, topic, articles)
}

// BlogPost returns the cached post for topic.
func (c *Cache) BlogPost(ctx context.Context, topic string) (string, error) {
	var out string
	err := c.load(ctx, KindBlogPosts, topic, &out, nil)
	return out, err
}

// SetBlogPost replaces the cached post for topic.
func (c *Cache) SetBlogPost(topic, post string) error {
	return c.store(KindBlogPosts, topic, post)
}

func (c *Cache) load(ctx context.Context, kind, topic string, dst any, check func() error) error {
	logger := logging.Component("blog")

	err := c.decode(kind, topic, dst, check)
	c.metrics.RecordCacheLookup(ctx, kind, err == nil)

	if err != nil && !errors.Is(err, errAbsent) {
		logger.Warn().Err(err).Str("kind", kind).Str("topic", topic).Msg("could not validate cached record, treating as miss")
	}
	if err != nil {
		return fmt.Errorf("%s for %q: %w", kind, topic, ErrCacheMiss)
	}
	return nil
}

var errAbsent = errors.New("absent")

func (c *Cache) decode(kind, topic string, dst any, check func() error) error {
	records, err := c.records(kind)
	if err != nil {
		return err
	}
	raw, ok := records[topic]
	if !ok {
		return errAbsent
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.Kind != kind {
		return fmt.Errorf("record kind %q, want %q", env.Kind, kind)
	}
	if env.Version != recordVersion {
		return fmt.Errorf("unknown record version %d", env.Version)
	}
	if env.Topic != topic {
		return fmt.Errorf("record topic %q, want %q", env.Topic, topic)
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if check != nil {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// records returns the topic mapping of kind; absent means empty.
func (c *Cache) records(kind string) (map[string]json.RawMessage, error) {
	records := map[string]json.RawMessage{}
	found, err := c.state.Get(kind, &records)
	if !found {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = map[string]json.RawMessage{}
	}
	return records, nil
}

func (c *Cache) store(kind, topic string, v any) error {
	logger := logging.Component("blog")

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	raw, err := json.Marshal(envelope{
		Kind:    kind,
		Version: recordVersion,
		Topic:   topic,
		SavedAt: c.now().UTC(),
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", kind, err)
	}

	records, err := c.records(kind)
	if err != nil {
		logger.Warn().Err(err).Str("kind", kind).Msg("replacing unreadable cache mapping")
		records = map[string]json.RawMessage{}
	}
	records[topic] = raw

	logger.Info().Str("kind", kind).Str("topic", topic).Msg("saving to cache")
	return c.state.Set(kind, records)
}
