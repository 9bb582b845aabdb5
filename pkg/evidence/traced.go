package evidence

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Traced wraps a provider with one span per fetch.
type Traced struct {
	next   Provider
	tracer trace.Tracer
	source string
}

// NewTraced wraps next. source names the backing provider in span attributes.
func NewTraced(next Provider, tracer trace.Tracer, source string) *Traced {
	return &Traced{next: next, tracer: tracer, source: source}
}

// Summary implements Provider.
func (t *Traced) Summary(ctx context.Context, q Query) (Summary, error) {
	scope := q.Scope
	if scope == "" {
		scope = ScopeOrg
	}
	ctx, span := t.tracer.Start(ctx, "evidence.summary",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("vigilaero.framework_id", q.FrameworkID),
			attribute.String("vigilaero.evidence.scope", string(scope)),
			attribute.String("vigilaero.evidence.source", t.source),
		),
	)
	defer span.End()

	s, err := t.next.Summary(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evidence summary failed")
		return Summary{}, err
	}
	span.SetAttributes(attribute.Int("vigilaero.evidence.controls", len(s.Accepted)+len(s.Pending)))
	return s, nil
}
