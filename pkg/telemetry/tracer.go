package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Step is the structured per-step diagnostic record spec §6 calls for:
// "{event, exited:[ids], effects:[transition-ids], entered:[ids],
// completions:[composite-ids]}". The interpreter fills one in per
// run-to-completion step and hands it to every registered observer in
// addition to recording it as an OTel span.
type Step struct {
	Event       string
	Exited      []string
	Effects     []string
	Entered     []string
	Completions []string
	Dropped     string
}

// Tracer records interpreter steps both as OTel spans (for the teacher's
// trace-hook style live inspection) and as typed Steps (for
// machine.observe callbacks, spec §6).
type Tracer struct {
	tracer trace.Tracer
}

// New builds a Tracer against the given provider. Pass NewProvider() (the
// no-op provider above) when no collector is configured, matching how the
// teacher's own tests avoid requiring a live OTel backend.
func New(provider trace.TracerProvider, name string) *Tracer {
	return &Tracer{tracer: provider.Tracer(name)}
}

// Span starts a span for a named interpreter phase (enter/exit/evaluate/
// execute/transition), returning a function to end it, mirroring the
// teacher's `Trace func(ctx, step string, elements ...) func(...any)` hook.
func (t *Tracer) Span(ctx context.Context, phase string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	if t == nil || t.tracer == nil {
		return ctx, func(error) {}
	}
	spanCtx, span := t.tracer.Start(ctx, phase, trace.WithAttributes(attrs...))
	return spanCtx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// StepSpan records a completed run-to-completion step as a single span
// carrying the Step's fields as attributes. Delivery of the Step to
// machine.observe subscribers is done by the interpreter, not here.
func (t *Tracer) StepSpan(ctx context.Context, step Step) {
	if t == nil || t.tracer == nil {
		return
	}
	_, span := t.tracer.Start(ctx, "hsm.step", trace.WithAttributes(
		attribute.String("event", step.Event),
		attribute.StringSlice("exited", step.Exited),
		attribute.StringSlice("effects", step.Effects),
		attribute.StringSlice("entered", step.Entered),
		attribute.StringSlice("completions", step.Completions),
		attribute.String("dropped", step.Dropped),
	))
	span.End()
}
