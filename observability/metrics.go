// Package observability provides OpenTelemetry tracing and Prometheus-exported metrics.
//
// Information Hiding:
// - Exporter wiring (otel prometheus bridge, registry) hidden
// - Instrument names and attribute keys kept in one place
// - Every recorder is nil-safe so callers never branch on "metrics enabled"

package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the instruments recorded by the pipeline, agents and HTTP server.
type Metrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	phaseRuns      metric.Int64Counter
	phaseDuration  metric.Float64Histogram
	cacheLookups   metric.Int64Counter
	searchAttempts metric.Int64Counter
	scrapes        metric.Int64Counter
	llmCalls       metric.Int64Counter
	llmErrors      metric.Int64Counter
	llmDuration    metric.Float64Histogram
	llmTokens      metric.Int64Counter
	httpRequests   metric.Int64Counter
	httpDuration   metric.Float64Histogram
}

// InitMetrics creates metrics backed by a fresh Prometheus registry.
func InitMetrics() (*Metrics, error) {
	return InitMetricsWithRegistry(prometheus.NewRegistry())
}

// InitMetricsWithRegistry creates metrics that export into reg.
func InitMetricsWithRegistry(reg *prometheus.Registry) (*Metrics, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("inkwell")

	m := &Metrics{registry: reg, provider: provider}

	if m.phaseRuns, err = meter.Int64Counter("inkwell_pipeline_phase_runs",
		metric.WithDescription("Pipeline phase executions by phase and outcome")); err != nil {
		return nil, fmt.Errorf("failed to create phase counter: %w", err)
	}
	if m.phaseDuration, err = meter.Float64Histogram("inkwell_pipeline_phase_duration_seconds",
		metric.WithDescription("Pipeline phase duration in seconds")); err != nil {
		return nil, fmt.Errorf("failed to create phase histogram: %w", err)
	}
	if m.cacheLookups, err = meter.Int64Counter("inkwell_cache_lookups",
		metric.WithDescription("Session cache lookups by artifact kind and result")); err != nil {
		return nil, fmt.Errorf("failed to create cache counter: %w", err)
	}
	if m.searchAttempts, err = meter.Int64Counter("inkwell_search_attempts",
		metric.WithDescription("Research attempts by outcome")); err != nil {
		return nil, fmt.Errorf("failed to create search counter: %w", err)
	}
	if m.scrapes, err = meter.Int64Counter("inkwell_article_scrapes",
		metric.WithDescription("Article scrapes by outcome")); err != nil {
		return nil, fmt.Errorf("failed to create scrape counter: %w", err)
	}
	if m.llmCalls, err = meter.Int64Counter("inkwell_llm_calls",
		metric.WithDescription("LLM requests by provider and model")); err != nil {
		return nil, fmt.Errorf("failed to create llm calls counter: %w", err)
	}
	if m.llmErrors, err = meter.Int64Counter("inkwell_llm_errors",
		metric.WithDescription("Failed LLM requests")); err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}
	if m.llmDuration, err = meter.Float64Histogram("inkwell_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds")); err != nil {
		return nil, fmt.Errorf("failed to create llm histogram: %w", err)
	}
	if m.llmTokens, err = meter.Int64Counter("inkwell_llm_tokens",
		metric.WithDescription("Tokens by provider and direction")); err != nil {
		return nil, fmt.Errorf("failed to create llm tokens counter: %w", err)
	}
	if m.httpRequests, err = meter.Int64Counter("inkwell_http_requests",
		metric.WithDescription("HTTP requests by method, route and status")); err != nil {
		return nil, fmt.Errorf("failed to create http counter: %w", err)
	}
	if m.httpDuration, err = meter.Float64Histogram("inkwell_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds")); err != nil {
		return nil, fmt.Errorf("failed to create http histogram: %w", err)
	}

	return m, nil
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// RecordPhase records one pipeline phase execution.
func (m *Metrics) RecordPhase(ctx context.Context, phase, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("phase", phase),
		attribute.String("outcome", outcome),
	)
	m.phaseRuns.Add(ctx, 1, attrs)
	m.phaseDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordCacheLookup records a session cache lookup.
func (m *Metrics) RecordCacheLookup(ctx context.Context, kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("result", result),
	))
}

// RecordSearchAttempt records one research attempt.
func (m *Metrics) RecordSearchAttempt(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	m.searchAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcomeLabel(ok))))
}

// RecordScrape records one article scrape.
func (m *Metrics) RecordScrape(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	m.scrapes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcomeLabel(ok))))
}

// RecordLLMCall records a completed LLM request.
func (m *Metrics) RecordLLMCall(ctx context.Context, provider, model string, d time.Duration, promptTokens, completionTokens int64, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
	)
	m.llmCalls.Add(ctx, 1, attrs)
	m.llmDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		m.llmErrors.Add(ctx, 1, attrs)
		return
	}
	if promptTokens > 0 {
		m.llmTokens.Add(ctx, promptTokens, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("direction", "input"),
		))
	}
	if completionTokens > 0 {
		m.llmTokens.Add(ctx, completionTokens, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("direction", "output"),
		))
	}
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, d.Seconds(), attrs)
}

func outcomeLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

var (
	globalMu      sync.RWMutex
	globalMetrics *Metrics
)

// SetGlobalMetrics installs m as the process-wide metrics.
func SetGlobalMetrics(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide metrics, or nil when metrics are disabled.
func GetGlobalMetrics() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}
