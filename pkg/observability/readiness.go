package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/scoring"
)

// ReadinessMetrics records readiness scores and evidence refresh outcomes.
type ReadinessMetrics struct {
	score        metric.Int64Gauge
	inReview     metric.Int64Gauge
	refreshes    metric.Int64Counter
	refreshFails metric.Int64Counter
	refreshTime  metric.Float64Histogram
}

// NewReadinessMetrics creates the instruments on m.
func NewReadinessMetrics(m metric.Meter) (*ReadinessMetrics, error) {
	var (
		r   ReadinessMetrics
		err error
	)
	if r.score, err = m.Int64Gauge("vigilaero.readiness.score",
		metric.WithDescription("Latest readiness score per framework"),
		metric.WithUnit("%"),
	); err != nil {
		return nil, err
	}
	if r.inReview, err = m.Int64Gauge("vigilaero.readiness.in_review",
		metric.WithDescription("Controls with evidence pending review"),
		metric.WithUnit("{control}"),
	); err != nil {
		return nil, err
	}
	if r.refreshes, err = m.Int64Counter("vigilaero.evidence.refreshes",
		metric.WithDescription("Evidence summary fetches"),
		metric.WithUnit("{fetch}"),
	); err != nil {
		return nil, err
	}
	if r.refreshFails, err = m.Int64Counter("vigilaero.evidence.refresh_failures",
		metric.WithDescription("Evidence summary fetches that failed"),
		metric.WithUnit("{fetch}"),
	); err != nil {
		return nil, err
	}
	if r.refreshTime, err = m.Float64Histogram("vigilaero.evidence.refresh.duration",
		metric.WithDescription("Evidence summary fetch duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return &r, nil
}

// RecordScore records the summary's score and review backlog.
func (r *ReadinessMetrics) RecordScore(ctx context.Context, frameworkID string, s scoring.FrameworkSummary) {
	attrs := metric.WithAttributes(attribute.String("vigilaero.framework_id", frameworkID))
	r.score.Record(ctx, int64(s.Score), attrs)
	r.inReview.Record(ctx, int64(s.InReview), attrs)
}

// RecordRefresh records one evidence fetch.
func (r *ReadinessMetrics) RecordRefresh(ctx context.Context, frameworkID string, elapsed time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("vigilaero.framework_id", frameworkID))
	r.refreshes.Add(ctx, 1, attrs)
	r.refreshTime.Record(ctx, elapsed.Seconds(), attrs)
	if err != nil {
		r.refreshFails.Add(ctx, 1, attrs)
	}
}
