// Research and extraction phases.
//
// Information Hiding:
// - Attempt accounting and logging around the research call
// - Per-article failure isolation during extraction

package blog

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/richinex/inkwell/logging"
	"github.com/richinex/inkwell/observability"
	"github.com/richinex/inkwell/retry"
	"github.com/richinex/inkwell/session"
)

// ErrSearchExhausted is returned when every research attempt failed or
// returned malformed results.
var ErrSearchExhausted = errors.New("search attempts exhausted")

// FetchSearchResults returns search results for topic. With useCache set any
// well-formed cached result, an empty article list included, is returned
// without calling r. Otherwise r is
// called under policy until one call returns well-formed results, which are
// cached and returned.
func FetchSearchResults(ctx context.Context, r Researcher, state *session.State, topic string, useCache bool, policy retry.Policy) (SearchResults, error) {
	logger := logging.Component("blog")
	metrics := observability.GetGlobalMetrics()
	cache := NewCache(state)

	if useCache {
		logger.Info().Msg("Checking if cached search results exist")
		cached, err := cache.SearchResults(ctx, topic)
		if err == nil {
			logger.Info().Msgf("Found %d articles in cache.", len(cached.Articles))
			return cached, nil
		}
	}

	maxAttempts := policy.Attempts()
	var results SearchResults
	attempts, err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		logger.Info().Msgf("🔍 Searching for articles about: %s (attempt %d/%d)", topic, attempt, maxAttempts)

		res, err := r.Research(ctx, topic)
		if err != nil {
			metrics.RecordSearchAttempt(ctx, false)
			logger.Warn().Msgf("Attempt %d/%d failed: %v", attempt, maxAttempts, err)
			return err
		}
		if err := res.Validate(); err != nil {
			metrics.RecordSearchAttempt(ctx, false)
			logger.Warn().Err(err).Msgf("Attempt %d/%d failed: Invalid response type", attempt, maxAttempts)
			return err
		}

		metrics.RecordSearchAttempt(ctx, true)
		logger.Info().Msgf("Found %d articles on attempt %d", len(res.Articles), attempt)
		results = res
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return SearchResults{}, ctxErr
		}
		logger.Error().Msgf("Failed to get search results after %d attempts", attempts)
		return SearchResults{}, fmt.Errorf("%w after %d attempts: %v", ErrSearchExhausted, attempts, err)
	}

	if err := cache.SetSearchResults(topic, results); err != nil {
		logger.Warn().Err(err).Msg("could not cache search results")
	}
	return results, nil
}

// ScrapeArticles extracts every search result in order, one at a time. A
// cached non-empty set for topic is returned as is. Articles that fail are
// logged and left out; the rest are keyed by the URL the scraper reports and
// keep the search title when the scraper found none.
// The set is cached even when empty. A cancelled context stops the batch and
// nothing is cached.
func ScrapeArticles(ctx context.Context, s Scraper, state *session.State, topic string, results SearchResults) (*ScrapedArticles, error) {
	logger := logging.Component("blog")
	metrics := observability.GetGlobalMetrics()
	tracer := observability.Tracer(tracerName)
	cache := NewCache(state)

	logger.Info().Msg("Checking if cached scraped articles exist")
	if cached, err := cache.ScrapedArticles(ctx, topic); err == nil && cached.Len() > 0 {
		logger.Info().Msgf("Found %d scraped articles in cache.", cached.Len())
		return cached, nil
	}

	scraped := NewScrapedArticles()
	total := len(results.Articles)
	logger.Info().Msgf("📄 Scraping %d articles...", total)

	for i, article := range results.Articles {
		if err := ctx.Err(); err != nil {
			return scraped, err
		}
		logger.Info().Msgf("📖 Scraping article %d/%d: %s", i+1, total, clip(article.Title, 50))

		actx, span := tracer.Start(ctx, "blog.scrape_article")
		span.SetAttributes(attribute.String("article.url", article.URL))

		a, err := s.Scrape(actx, article)
		if err == nil {
			if a.Title == "" {
				a.Title = article.Title
			}
			err = a.Validate()
		}
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.End()
			metrics.RecordScrape(ctx, false)
			logger.Warn().Msgf("Failed to scrape %s: %v", article.URL, err)
			logger.Info().Msgf("❌ Error scraping: %s", clip(article.Title, 50))
			continue
		}
		span.End()

		scraped.Put(a.URL, a)
		metrics.RecordScrape(ctx, true)
		logger.Info().Msgf("Scraped article: %s", a.URL)
		logger.Info().Msgf("✅ Successfully scraped: %s", clip(a.Title, 50))
	}

	if err := cache.SetScrapedArticles(topic, scraped); err != nil {
		logger.Warn().Err(err).Msg("could not cache scraped articles")
	}
	return scraped, nil
}
