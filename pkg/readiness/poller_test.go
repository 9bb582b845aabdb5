package readiness

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/controlstate"
	"github.com/wolfofmycity/vigilaero-platform/pkg/evidence"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: time.Second}

	assert.Equal(t, 100*time.Millisecond, b.Delay("k", 0))
	assert.Equal(t, 200*time.Millisecond, b.Delay("k", 1))
	assert.Equal(t, 800*time.Millisecond, b.Delay("k", 3))
	assert.Equal(t, time.Second, b.Delay("k", 4))
	assert.Equal(t, time.Second, b.Delay("k", 64))
}

func TestBackoff_JitterDeterministic(t *testing.T) {
	b := Backoff{Base: time.Second, Max: time.Minute, MaxJitter: 500 * time.Millisecond}

	first := b.Delay("demo|org||||", 2)
	assert.Equal(t, first, b.Delay("demo|org||||", 2))
	assert.GreaterOrEqual(t, first, 4*time.Second)
	assert.Less(t, first, 4*time.Second+500*time.Millisecond)
}

// stepClock feeds the poller's wait channel and records requested waits.
type stepClock struct {
	mu    sync.Mutex
	ctx   context.Context
	waits []time.Duration
}

func (s *stepClock) after(d time.Duration) <-chan time.Time {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	if s.ctx.Err() != nil {
		return nil
	}
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func TestPoller_BacksOffWhileDegraded(t *testing.T) {
	p := &flakyProvider{fail: true}
	c := NewController(testRegistry(), p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := &stepClock{ctx: ctx}

	var snaps []Snapshot
	poller := NewPoller(c, evidence.Query{FrameworkID: "demo"}, 10*time.Second,
		WithBackoff(Backoff{Base: time.Second, Max: 3 * time.Second}),
		OnSnapshot(func(s Snapshot) {
			snaps = append(snaps, s)
			switch len(snaps) {
			case 3:
				p.setFail(false)
			case 4:
				cancel()
			}
		}),
	)
	poller.after = clock.after

	err := poller.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, snaps, 4)
	assert.True(t, snaps[0].Degraded)
	assert.False(t, snaps[3].Degraded)

	clock.mu.Lock()
	defer clock.mu.Unlock()
	require.GreaterOrEqual(t, len(clock.waits), 4)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 10 * time.Second}, clock.waits[:4])
}

func TestPoller_StopsOnCallerError(t *testing.T) {
	c := NewController(testRegistry(), &flakyProvider{})
	err := NewPoller(c, evidence.Query{FrameworkID: "later"}, time.Second).Run(context.Background())
	assert.ErrorIs(t, err, ErrNotWired)
}

func TestPoller_RejectsZeroInterval(t *testing.T) {
	c := NewController(testRegistry(), &flakyProvider{})
	err := NewPoller(c, evidence.Query{FrameworkID: "demo"}, 0).Run(context.Background())
	assert.Error(t, err)
}

func TestPoller_FollowsSelectedQuery(t *testing.T) {
	c := NewController(testRegistry(), &scopedProvider{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := c.Activate("demo")
	require.NoError(t, err)
	snap, err := c.Refresh(ctx, "demo", assetQuery)
	require.NoError(t, err)
	require.Equal(t, 2, snap.Summary.Met)

	var ticks []Snapshot
	poller := NewPoller(c, evidence.Query{FrameworkID: "demo", Scope: evidence.ScopeOrg}, time.Minute,
		OnSnapshot(func(s Snapshot) {
			ticks = append(ticks, s)
			cancel()
		}),
	)
	poller.after = (&stepClock{ctx: ctx}).after
	assert.ErrorIs(t, poller.Run(ctx), context.Canceled)
	require.Len(t, ticks, 1)
	assert.Equal(t, assetQuery, ticks[0].Query)

	snap, err = c.UpdateControl(context.Background(), "demo", "A",
		controlstate.Patch{Notes: controlstate.StringPtr("logbook checked")})
	require.NoError(t, err)
	assert.Equal(t, evidence.ScopeAsset, snap.Query.Scope)
	assert.Equal(t, 2, snap.Summary.Met)
}
