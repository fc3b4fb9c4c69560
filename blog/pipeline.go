// Pipeline driver.
//
// CACHE-CHECK -> RESEARCH -> EXTRACT -> WRITE -> DONE. Each transition needs a
// non-empty result from the phase before it. Terminal conditions come back as
// an Outcome, never as an error.
//
// Information Hiding:
// - Phase ordering and gating
// - Mapping of failures to user-facing messages
// - Phase spans and metrics

package blog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/richinex/inkwell/logging"
	"github.com/richinex/inkwell/observability"
	"github.com/richinex/inkwell/retry"
	"github.com/richinex/inkwell/session"
)

const tracerName = "github.com/richinex/inkwell/blog"

// Phase names a pipeline stage.
type Phase string

const (
	PhaseCacheCheck Phase = "cache_check"
	PhaseResearch   Phase = "research"
	PhaseExtract    Phase = "extract"
	PhaseWrite      Phase = "write"
	PhaseDone       Phase = "done"
)

// Terminal pipeline conditions, carried in Outcome.Err.
var (
	ErrNoTopic   = errors.New("no blog topic provided")
	ErrNoResults = errors.New("no search results")
	ErrNoContent = errors.New("no article content extracted")
	ErrEmptyPost = errors.New("writer returned no content")
	ErrCancelled = errors.New("pipeline cancelled")
)

// Outcome is the result of one pipeline run. Text is either the post or a
// message starting with "❌".
type Outcome struct {
	Text string
	// Phase is PhaseDone on success, otherwise the phase that stopped the run.
	Phase Phase
	// Cached reports the post came from the cache.
	Cached  bool
	Sources int
	Err     error
}

// OK reports whether the run produced a post.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRetryPolicy sets the research retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(pl *Pipeline) {
		pl.policy = p
	}
}

// WithScraper replaces the extraction collaborator, e.g. with a ToolScraper.
func WithScraper(s Scraper) Option {
	return func(pl *Pipeline) {
		pl.scraper = s
	}
}

// WithSearchCache toggles reuse of cached search results.
func WithSearchCache(enabled bool) Option {
	return func(pl *Pipeline) {
		pl.useSearchCache = enabled
	}
}

// Pipeline generates blog posts from a topic.
type Pipeline struct {
	researcher     Researcher
	scraper        Scraper
	writer         Writer
	policy         retry.Policy
	useSearchCache bool
}

// NewPipeline creates a pipeline with the default retry policy and the
// search cache enabled.
func NewPipeline(r Researcher, s Scraper, w Writer, opts ...Option) *Pipeline {
	p := &Pipeline{
		researcher:     r,
		scraper:        s,
		writer:         w,
		policy:         retry.DefaultPolicy(),
		useSearchCache: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run generates a post for input.Topic, reading and writing the cache in state.
func (p *Pipeline) Run(ctx context.Context, state *session.State, input ResearchTopic) Outcome {
	logger := logging.Component("blog")
	metrics := observability.GetGlobalMetrics()
	cache := NewCache(state)
	topic := input.Topic

	ctx, span := observability.Tracer(tracerName).Start(ctx, "blog.pipeline")
	defer span.End()
	span.SetAttributes(attribute.String("blog.topic", topic))

	finish := func(o Outcome) Outcome {
		span.SetAttributes(
			attribute.String("blog.phase", string(o.Phase)),
			attribute.Bool("blog.cached", o.Cached),
			attribute.Int("blog.sources", o.Sources),
		)
		if o.Err != nil {
			span.SetStatus(codes.Error, o.Err.Error())
		}
		return o
	}

	logger.Info().Msgf("Selected topic %q", topic)
	if strings.TrimSpace(topic) == "" {
		return finish(fail(PhaseCacheCheck, ErrNoTopic, "❌ No blog topic provided. Please specify a topic."))
	}

	logger.Info().Msgf("🎨 Generating blog post about: %s", topic)
	logger.Info().Msg(strings.Repeat("=", 60))

	logger.Info().Msg("Checking if cached blog post exists")
	if cached, err := cache.BlogPost(ctx, topic); err == nil && cached != "" {
		logger.Info().Msg("📋 Found cached blog post!")
		metrics.RecordPhase(ctx, string(PhaseCacheCheck), "hit", 0)
		return finish(Outcome{Text: cached, Phase: PhaseDone, Cached: true})
	}

	banner(logger, "🔍 PHASE 1: RESEARCH & SOURCE GATHERING")
	var results SearchResults
	err := p.phase(ctx, PhaseResearch, func(ctx context.Context) error {
		var err error
		results, err = FetchSearchResults(ctx, p.researcher, state, topic, p.useSearchCache, p.policy)
		if err == nil && len(results.Articles) == 0 {
			err = ErrNoResults
		}
		return err
	})
	if err != nil {
		if isCancel(ctx, err) {
			return finish(cancelled(PhaseResearch, topic))
		}
		if !errors.Is(err, ErrNoResults) {
			err = fmt.Errorf("%w: %w", ErrNoResults, err)
		}
		return finish(fail(PhaseResearch, err, fmt.Sprintf("❌ Sorry, could not find any articles on the topic: %s", topic)))
	}

	logger.Info().Msgf("📊 Found %d relevant sources:", len(results.Articles))
	for i, a := range results.Articles {
		logger.Info().Msgf("   %d. %s", i+1, clip(a.Title, 60))
	}

	banner(logger, "📄 PHASE 2: CONTENT EXTRACTION")
	var scraped *ScrapedArticles
	err = p.phase(ctx, PhaseExtract, func(ctx context.Context) error {
		var err error
		scraped, err = ScrapeArticles(ctx, p.scraper, state, topic, results)
		if err == nil && scraped.Len() == 0 {
			err = ErrNoContent
		}
		return err
	})
	if err != nil {
		if isCancel(ctx, err) {
			return finish(cancelled(PhaseExtract, topic))
		}
		return finish(fail(PhaseExtract, err, fmt.Sprintf("❌ Could not extract content from any articles for topic: %s", topic)))
	}
	logger.Info().Msgf("📖 Successfully extracted content from %d articles", scraped.Len())

	banner(logger, "✍️ PHASE 3: BLOG POST CREATION")
	logger.Info().Msg("🤖 AI is crafting your blog post...")
	var post string
	err = p.phase(ctx, PhaseWrite, func(ctx context.Context) error {
		var err error
		post, err = p.writer.Write(ctx, topic, scraped.List())
		if err == nil && strings.TrimSpace(post) == "" {
			err = ErrEmptyPost
		}
		return err
	})
	if err != nil {
		if isCancel(ctx, err) {
			return finish(cancelled(PhaseWrite, topic))
		}
		if !errors.Is(err, ErrEmptyPost) {
			err = fmt.Errorf("%w: %w", ErrEmptyPost, err)
		}
		return finish(fail(PhaseWrite, err, fmt.Sprintf("❌ Failed to generate blog post for topic: %s", topic)))
	}

	if err := cache.SetBlogPost(topic, post); err != nil {
		logger.Warn().Err(err).Msg("could not cache blog post")
	}

	logger.Info().Msg("✅ Blog post generated successfully!")
	logger.Info().Msgf("📝 Length: %d characters", len(post))
	logger.Info().Msgf("📚 Sources: %d articles", scraped.Len())

	return finish(Outcome{Text: post, Phase: PhaseDone, Sources: scraped.Len()})
}

// phase runs fn in its own span and records its duration.
func (p *Pipeline) phase(ctx context.Context, phase Phase, fn func(ctx context.Context) error) error {
	ctx, span := observability.Tracer(tracerName).Start(ctx, "blog."+string(phase), trace.WithAttributes(
		attribute.String("blog.phase", string(phase)),
	))
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	outcome := "ok"
	if err != nil {
		outcome = "failed"
		span.SetStatus(codes.Error, err.Error())
	}
	observability.GetGlobalMetrics().RecordPhase(ctx, string(phase), outcome, time.Since(start))
	return err
}

func fail(phase Phase, err error, text string) Outcome {
	logger := logging.Component("blog")
	logger.Error().Err(err).Str("phase", string(phase)).Msg(text)
	return Outcome{Text: text, Phase: phase, Err: err}
}

func cancelled(phase Phase, topic string) Outcome {
	return fail(phase, ErrCancelled, fmt.Sprintf("❌ Blog generation cancelled for topic: %s", topic))
}

func isCancel(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func banner(logger zerolog.Logger, title string) {
	logger.Info().Msg(title)
	logger.Info().Msg(strings.Repeat("=", 50))
}
