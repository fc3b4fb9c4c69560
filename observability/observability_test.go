package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExportedThroughHandler(t *testing.T) {
	m, err := InitMetrics()
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	ctx := context.Background()
	m.RecordCacheLookup(ctx, "blog_posts", true)
	m.RecordCacheLookup(ctx, "search_results", false)
	m.RecordSearchAttempt(ctx, false)
	m.RecordScrape(ctx, true)
	m.RecordPhase(ctx, "research", "success", 20*time.Millisecond)
	m.RecordLLMCall(ctx, "openai", "gpt-5-mini", time.Second, 10, 5, nil)
	m.RecordLLMCall(ctx, "openai", "gpt-5-mini", time.Second, 0, 0, errors.New("boom"))
	m.RecordHTTPRequest(ctx, "GET", "/config", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, name := range []string{
		"inkwell_cache_lookups",
		"inkwell_search_attempts",
		"inkwell_article_scrapes",
		"inkwell_pipeline_phase_runs",
		"inkwell_llm_calls",
		"inkwell_llm_errors",
		"inkwell_llm_tokens",
		"inkwell_http_requests",
	} {
		assert.Contains(t, body, name)
	}
	assert.Contains(t, body, `kind="blog_posts"`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordCacheLookup(ctx, "x", true)
		m.RecordPhase(ctx, "write", "failure", time.Second)
		m.RecordLLMCall(ctx, "p", "m", time.Second, 1, 1, nil)
		m.RecordHTTPRequest(ctx, "GET", "/", 200, time.Second)
		_ = m.Shutdown(ctx)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestGlobalMetrics(t *testing.T) {
	defer SetGlobalMetrics(nil)

	m, err := InitMetrics()
	require.NoError(t, err)
	SetGlobalMetrics(m)
	assert.Same(t, m, GetGlobalMetrics())
}

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TracingConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracerStdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracer(context.Background(), TracingConfig{
		Enabled:     true,
		Exporter:    "stdout",
		ServiceName: "inkwell-test",
		Writer:      &buf,
	})
	require.NoError(t, err)

	_, span := Tracer("test").Start(context.Background(), "unit-span")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.True(t, strings.Contains(buf.String(), "unit-span"))
}

func TestInitTracerUnknownExporter(t *testing.T) {
	_, err := InitTracer(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"})
	assert.Error(t, err)
}
