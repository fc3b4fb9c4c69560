// Instrumented provider decorator.
//
// Information Hiding:
// - Span naming and attributes for model calls
// - Latency and token accounting through observability.Metrics

package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/richinex/inkwell/observability"
)

const tracerName = "github.com/richinex/inkwell/llm"

type instrumented struct {
	inner   Provider
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// Instrument wraps p so every call produces a span and metric samples.
// A nil metrics value records spans only.
func Instrument(p Provider, metrics *observability.Metrics) Provider {
	if p == nil {
		return nil
	}
	if already, ok := p.(*instrumented); ok {
		p = already.inner
	}
	return &instrumented{
		inner:   p,
		metrics: metrics,
		tracer:  observability.Tracer(tracerName),
	}
}

func (i *instrumented) Name() string  { return i.inner.Name() }
func (i *instrumented) Model() string { return i.inner.Model() }

func (i *instrumented) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return i.ChatWithFormat(ctx, messages, nil)
}

func (i *instrumented) ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (LLMResponse, error) {
	ctx, span, start := i.begin(ctx, "llm.chat", len(messages))
	if format != nil {
		span.SetAttributes(attribute.String("llm.response_format", string(format.Type)))
	}
	resp, err := i.inner.ChatWithFormat(ctx, messages, format)
	i.end(ctx, span, start, resp.Usage, err)
	return resp, err
}

func (i *instrumented) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	ctx, span, start := i.begin(ctx, "llm.chat_with_tools", len(messages))
	span.SetAttributes(attribute.Int("llm.tools", len(tools)))
	resp, err := i.inner.ChatWithTools(ctx, messages, tools)
	if err == nil {
		span.SetAttributes(attribute.Int("llm.tool_calls", len(resp.ToolCalls)))
	}
	i.end(ctx, span, start, resp.Usage, err)
	return resp, err
}

func (i *instrumented) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	ctx, span, start := i.begin(ctx, "llm.stream_chat", len(messages))
	usage, err := i.inner.StreamChat(ctx, messages, chunks)
	i.end(ctx, span, start, usage, err)
	return usage, err
}

func (i *instrumented) begin(ctx context.Context, name string, messages int) (context.Context, trace.Span, time.Time) {
	ctx, span := i.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("llm.provider", i.inner.Name()),
		attribute.String("llm.model", i.inner.Model()),
		attribute.Int("llm.messages", messages),
	))
	return ctx, span, time.Now()
}

func (i *instrumented) end(ctx context.Context, span trace.Span, start time.Time, usage *TokenUsage, err error) {
	defer span.End()

	var prompt, completion int64
	if usage != nil {
		prompt = int64(usage.PromptTokens)
		completion = int64(usage.CompletionTokens)
		span.SetAttributes(
			attribute.Int64("llm.prompt_tokens", prompt),
			attribute.Int64("llm.completion_tokens", completion),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	i.metrics.RecordLLMCall(ctx, i.inner.Name(), i.inner.Model(), time.Since(start), prompt, completion, err)
}

var _ Provider = (*instrumented)(nil)
