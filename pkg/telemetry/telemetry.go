package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Provider struct {
	trace.TracerProvider
}

var (
	provider    = &Provider{}
	tracer      = &noopTracer{}
	span        = &noopSpan{}
	spanContext = trace.SpanContext{}
)

func NewProvider() *Provider {
	return provider
}

func (provider *Provider) Tracer(name string, options ...trace.TracerOption) trace.Tracer {
	return tracer
}

type noopTracer struct {
	trace.Tracer
}

func (tracer *noopTracer) Start(ctx context.Context, name string, options ...trace.SpanStartOption) (context.Context, trace.Span) {
	return ctx, span
}

type noopSpan struct {
	trace.Span
}

func (span *noopSpan) End(options ...trace.SpanEndOption)                  {}
func (span *noopSpan) AddEvent(name string, options ...trace.EventOption)  {}
func (span *noopSpan) AddLink(link trace.Link)                             {}
func (span *noopSpan) IsRecording() bool                                   { return false }
func (span *noopSpan) RecordError(err error, options ...trace.EventOption) {}
func (span *noopSpan) SetAttributes(kv ...attribute.KeyValue)              {}
func (span *noopSpan) SetName(name string)                                 {}
func (span *noopSpan) SetStatus(code codes.Code, description string)       {}
func (span *noopSpan) SpanContext() trace.SpanContext                      { return spanContext }
func (span *noopSpan) TracerProvider() trace.TracerProvider                { return provider }
