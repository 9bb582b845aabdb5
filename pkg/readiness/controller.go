// Package readiness owns the live compliance state for one operator session.
//
// A Controller ties the framework registry, the per-framework control state
// and an evidence provider together. Control edits recompute from the last
// evidence snapshot; Refresh fetches new evidence. When the provider fails the
// controller keeps serving the last known summary and flags it degraded.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/catalog"
	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/controlstate"
	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/scoring"
	"github.com/wolfofmycity/vigilaero-platform/pkg/evidence"
)

var (
	ErrUnknownFramework = errors.New("unknown framework")
	ErrNotWired         = errors.New("framework is not wired for editing")
)

// DegradedNotice is shown while scoring falls back to the last known state.
const DegradedNotice = "scoring temporarily unavailable — falling back to static state"

// FrameworkInfo identifies the framework a snapshot belongs to.
type FrameworkInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Wired   bool   `json:"wired"`
}

// Snapshot is the current readiness view of one framework.
type Snapshot struct {
	Framework  FrameworkInfo            `json:"framework"`
	Query      evidence.Query           `json:"query"`
	Summary    scoring.FrameworkSummary `json:"summary"`
	Controls   []scoring.ControlView    `json:"controls"`
	Degraded   bool                     `json:"degraded"`
	Notice     string                   `json:"notice,omitempty"`
	// FailedQuery is the query whose fetch failed, when it differs from Query.
	FailedQuery *evidence.Query `json:"failedQuery,omitempty"`
	EvidenceAt time.Time                `json:"evidenceAt,omitzero"`
	ComputedAt time.Time                `json:"computedAt"`
}

// Recorder receives readiness telemetry. Implementations must be safe for
// concurrent use.
type Recorder interface {
	RecordScore(ctx context.Context, frameworkID string, s scoring.FrameworkSummary)
	RecordRefresh(ctx context.Context, frameworkID string, elapsed time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordScore(context.Context, string, scoring.FrameworkSummary) {}

func (nopRecorder) RecordRefresh(context.Context, string, time.Duration, error) {}

// frameState is the last known evidence for one framework. query is the
// query that produced evidence; selected is the operator's latest choice,
// which differs from query while a fetch for it is failing.
type frameState struct {
	query      evidence.Query
	selected   evidence.Query
	hasChoice  bool
	evidence   evidence.Summary
	evidenceAt time.Time
	degraded   bool
	failed     *evidence.Query
	// seq counts started fetches; only the latest may land.
	seq uint64
}

// Controller is safe for concurrent use.
type Controller struct {
	registry *catalog.Registry
	arena    *controlstate.Arena
	provider evidence.Provider
	recorder Recorder
	logger   *slog.Logger
	clock    func() time.Time

	mu     sync.Mutex
	frames map[string]*frameState
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l.With("component", "readiness")
		}
	}
}

// WithRecorder sets the telemetry sink.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithArena shares an existing control state arena, e.g. one loaded from disk.
func WithArena(a *controlstate.Arena) Option {
	return func(c *Controller) {
		if a != nil {
			c.arena = a
		}
	}
}

// NewController creates a controller over registry and provider.
func NewController(registry *catalog.Registry, provider evidence.Provider, opts ...Option) *Controller {
	c := &Controller{
		registry: registry,
		arena:    controlstate.NewArena(),
		provider: provider,
		recorder: nopRecorder{},
		logger:   slog.Default().With("component", "readiness"),
		clock:    time.Now,
		frames:   make(map[string]*frameState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the framework registry.
func (c *Controller) Registry() *catalog.Registry { return c.registry }

func (c *Controller) wired(frameworkID string) (catalog.Framework, error) {
	f, ok := c.registry.Framework(frameworkID)
	if !ok {
		return catalog.Framework{}, fmt.Errorf("%w: %s", ErrUnknownFramework, frameworkID)
	}
	if !f.Wired {
		return catalog.Framework{}, fmt.Errorf("%w: %s", ErrNotWired, frameworkID)
	}
	return f, nil
}

// Activate seeds default control state for a wired framework. It reports
// whether this call did the seeding.
func (c *Controller) Activate(frameworkID string) (bool, error) {
	f, err := c.wired(frameworkID)
	if err != nil {
		return false, err
	}
	seeded := c.arena.Activate(f.ID, f.Controls)
	if seeded {
		c.logger.Debug("framework activated", "framework_id", f.ID, "controls", len(f.Controls))
	}
	return seeded, nil
}

// UpdateControl applies p to one control and recomputes from the last known
// evidence. No evidence is fetched.
func (c *Controller) UpdateControl(ctx context.Context, frameworkID, controlID string, p controlstate.Patch) (Snapshot, error) {
	if _, err := c.wired(frameworkID); err != nil {
		return Snapshot{}, err
	}
	if err := p.Validate(); err != nil {
		return Snapshot{}, err
	}
	if _, err := c.arena.Patch(frameworkID, controlID, p); err != nil {
		return Snapshot{}, err
	}
	return c.Snapshot(ctx, frameworkID)
}

// Refresh fetches evidence for q and recomputes. Caller errors (unknown or
// placeholder framework, inactive framework, invalid query) are returned.
// Provider failures are not: the snapshot keeps the previous evidence and is
// marked Degraded.
func (c *Controller) Refresh(ctx context.Context, frameworkID string, q evidence.Query) (Snapshot, error) {
	if _, err := c.wired(frameworkID); err != nil {
		return Snapshot{}, err
	}
	if !c.arena.Active(frameworkID) {
		return Snapshot{}, fmt.Errorf("%s: %w", frameworkID, controlstate.ErrNotActivated)
	}
	if q.FrameworkID == "" {
		q.FrameworkID = frameworkID
	}
	if q.FrameworkID != frameworkID {
		return Snapshot{}, fmt.Errorf("%w: query for %s sent to %s", evidence.ErrInvalidQuery, q.FrameworkID, frameworkID)
	}
	if err := q.Validate(); err != nil {
		return Snapshot{}, err
	}

	c.mu.Lock()
	fs := c.frame(frameworkID)
	fs.seq++
	ticket := fs.seq
	fs.selected, fs.hasChoice = q, true
	c.mu.Unlock()

	start := c.clock()
	ev, err := c.provider.Summary(ctx, q)
	c.recorder.RecordRefresh(ctx, frameworkID, c.clock().Sub(start), err)

	c.mu.Lock()
	switch {
	case ticket != fs.seq:
		c.logger.DebugContext(ctx, "discarding superseded evidence fetch",
			"framework_id", frameworkID, "scope", q.Scope)
	case err != nil:
		fs.degraded = true
		if q.Key() != fs.query.Key() {
			failed := q
			fs.failed = &failed
		} else {
			fs.failed = nil
		}
		c.logger.WarnContext(ctx, "evidence fetch failed, serving last known state",
			"framework_id", frameworkID, "scope", q.Scope, "error", err)
	default:
		fs.query = q
		fs.evidence = ev.Normalized()
		fs.evidenceAt = c.clock()
		fs.degraded = false
		fs.failed = nil
	}
	c.mu.Unlock()

	return c.Snapshot(ctx, frameworkID)
}

// LastQuery returns the query most recently passed to Refresh for
// frameworkID. ok is false until the first Refresh.
func (c *Controller) LastQuery(frameworkID string) (q evidence.Query, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fs, found := c.frames[frameworkID]
	if !found || !fs.hasChoice {
		return evidence.Query{}, false
	}
	return fs.selected, true
}

// frame returns the state for frameworkID, creating it. Callers hold c.mu.
func (c *Controller) frame(frameworkID string) *frameState {
	fs, ok := c.frames[frameworkID]
	if !ok {
		fs = &frameState{query: evidence.Query{FrameworkID: frameworkID, Scope: evidence.ScopeOrg}}
		c.frames[frameworkID] = fs
	}
	return fs
}

// Snapshot recomputes the current view without fetching evidence.
func (c *Controller) Snapshot(ctx context.Context, frameworkID string) (Snapshot, error) {
	f, err := c.wired(frameworkID)
	if err != nil {
		return Snapshot{}, err
	}
	state, err := c.arena.Snapshot(frameworkID)
	if err != nil {
		return Snapshot{}, err
	}

	c.mu.Lock()
	fs := *c.frame(frameworkID)
	if fs.failed != nil {
		failed := *fs.failed
		fs.failed = &failed
	}
	c.mu.Unlock()

	a := scoring.Assess(f.Controls, state, fs.evidence)
	snap := Snapshot{
		Framework:  infoOf(f),
		Query:      fs.query,
		Summary:    a.Summary,
		Controls:   a.Controls,
		Degraded:   fs.degraded,
		EvidenceAt: fs.evidenceAt,
		ComputedAt: c.clock().UTC(),
	}
	if fs.degraded {
		snap.Notice = DegradedNotice
		snap.FailedQuery = fs.failed
	}
	c.recorder.RecordScore(ctx, frameworkID, a.Summary)
	return snap, nil
}

// State returns a copy of the framework's control state.
func (c *Controller) State(frameworkID string) (controlstate.StateMap, error) {
	if _, err := c.wired(frameworkID); err != nil {
		return nil, err
	}
	return c.arena.Snapshot(frameworkID)
}

func infoOf(f catalog.Framework) FrameworkInfo {
	return FrameworkInfo{ID: f.ID, Name: f.Name, Version: f.Version, Wired: f.Wired}
}
