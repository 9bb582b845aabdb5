package readiness

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/wolfofmycity/vigilaero-platform/pkg/evidence"
)

// Backoff computes retry delays after consecutive refresh failures.
type Backoff struct {
	Base      time.Duration
	Max       time.Duration
	MaxJitter time.Duration
}

// DefaultBackoff starts at one second and caps at two minutes.
var DefaultBackoff = Backoff{Base: time.Second, Max: 2 * time.Minute, MaxJitter: 250 * time.Millisecond}

// Delay returns base*2^attempt capped at Max, plus a jitter derived from key
// and attempt so the same poller always produces the same schedule.
func (b Backoff) Delay(key string, attempt int) time.Duration {
	factor := int64(1)
	if attempt > 0 {
		if attempt > 30 {
			factor = 1 << 30
		} else {
			factor = 1 << attempt
		}
	}
	delay := time.Duration(int64(b.Base) * factor)
	if delay > b.Max || delay < 0 {
		delay = b.Max
	}
	return delay + b.jitter(key, attempt)
}

func (b Backoff) jitter(key string, attempt int) time.Duration {
	if b.MaxJitter <= 0 {
		return 0
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", key, attempt)))
	basis := binary.BigEndian.Uint64(sum[:8])
	return time.Duration(basis % uint64(b.MaxJitter)) //nolint:gosec // MaxJitter is positive here
}

// Poller refreshes one framework on a fixed interval. It follows the
// framework's current selection: once anything has called Refresh, ticks
// reuse that query, and the poller's own query only seeds the first fetch.
type Poller struct {
	controller *Controller
	query      evidence.Query
	interval   time.Duration
	backoff    Backoff
	onSnapshot func(Snapshot)
	logger     *slog.Logger

	// after is swapped in tests.
	after func(time.Duration) <-chan time.Time
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithBackoff sets the failure backoff.
func WithBackoff(b Backoff) PollerOption {
	return func(p *Poller) { p.backoff = b }
}

// OnSnapshot registers a callback invoked after every refresh.
func OnSnapshot(fn func(Snapshot)) PollerOption {
	return func(p *Poller) { p.onSnapshot = fn }
}

// NewPoller creates a poller for q.FrameworkID. q is used until a query is
// selected through the controller.
func NewPoller(c *Controller, q evidence.Query, interval time.Duration, opts ...PollerOption) *Poller {
	p := &Poller{
		controller: c,
		query:      q,
		interval:   interval,
		backoff:    DefaultBackoff,
		logger:     c.logger.With("poller", q.FrameworkID),
		after:      time.After,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run refreshes immediately and then on every tick until ctx is done. A
// degraded refresh schedules the next attempt with backoff instead of the
// interval. Caller errors from Refresh stop the loop.
func (p *Poller) Run(ctx context.Context) error {
	if p.interval <= 0 {
		return fmt.Errorf("poller: interval must be positive, got %s", p.interval)
	}
	if _, err := p.controller.Activate(p.query.FrameworkID); err != nil {
		return err
	}

	failures := 0
	for {
		q := p.query
		if last, ok := p.controller.LastQuery(q.FrameworkID); ok {
			q = last
		}
		snap, err := p.controller.Refresh(ctx, q.FrameworkID, q)
		if err != nil {
			return err
		}
		if p.onSnapshot != nil {
			p.onSnapshot(snap)
		}

		wait := p.interval
		if snap.Degraded {
			wait = p.backoff.Delay(q.Key(), failures)
			failures++
			p.logger.DebugContext(ctx, "refresh degraded, backing off", "attempt", failures, "wait", wait)
		} else {
			failures = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.after(wait):
		}
	}
}
