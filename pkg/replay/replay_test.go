package replay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simforge/simtrace/pkg/event"
	"github.com/simforge/simtrace/pkg/observability"
)

// fakeClock advances instantly on Sleep and records every wait, so pacing
// is verifiable without real delays.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// staticSource serves a fixed snapshot, in whatever order it was given.
type staticSource struct {
	events []*event.Event
}

func (s *staticSource) GetEvents(ctx context.Context, simulationID string, offset, limit int64) []*event.Event {
	if int64(len(s.events)) > limit {
		return s.events[:limit]
	}
	return s.events
}

func makeEvent(simID, eventType string, ts time.Time) *event.Event {
	ev := event.New(simID, eventType, map[string]any{})
	ev.Timestamp = ts
	return ev
}

func TestReplayEvents_TimestampOrderRegardlessOfStorageOrder(t *testing.T) {
	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	// Storage order is head-first (newest first); replay must re-sort.
	source := &staticSource{events: []*event.Event{
		makeEvent("sim-A", "simulation_completed", base.Add(10*time.Second)),
		makeEvent("sim-A", "phase_completed", base.Add(5*time.Second)),
		makeEvent("sim-A", "simulation_started", base),
	}}

	mgr := NewManager(source, WithClock(newFakeClock()))

	var seen []string
	handler := func(ctx context.Context, ev *event.Event) error {
		seen = append(seen, ev.EventType)
		return nil
	}

	summary, err := mgr.ReplayEvents(context.Background(), "sim-A", handler, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"simulation_started", "phase_completed", "simulation_completed"}, seen)
	assert.Equal(t, 3, summary.TotalEvents)
	assert.Equal(t, 3, summary.SuccessfulEvents)
	assert.Equal(t, 0, summary.FailedEvents)
}

func TestReplayEvents_SpeedMultiplierPacing(t *testing.T) {
	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	source := &staticSource{events: []*event.Event{
		makeEvent("sim-A", "simulation_started", base),
		makeEvent("sim-A", "phase_completed", base.Add(5*time.Second)),
		makeEvent("sim-A", "simulation_completed", base.Add(15*time.Second)),
	}}

	clock := newFakeClock()
	mgr := NewManager(source, WithClock(clock))

	var calls int
	handler := func(ctx context.Context, ev *event.Event) error {
		calls++
		return nil
	}

	summary, err := mgr.ReplayEvents(context.Background(), "sim-A", handler, Options{SpeedMultiplier: 10.0})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, summary.TotalEvents)
	assert.Equal(t, 3, summary.SuccessfulEvents)
	assert.Equal(t, 0, summary.FailedEvents)

	// Gaps of 5s and 10s compressed 10x; no wait before the first event.
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, clock.recorded())
	assert.Equal(t, 1500*time.Millisecond, summary.TotalReplayTime)
}

func TestReplayEvents_NoMultiplierNoWaiting(t *testing.T) {
	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	source := &staticSource{events: []*event.Event{
		makeEvent("sim-A", "simulation_started", base),
		makeEvent("sim-A", "simulation_completed", base.Add(time.Hour)),
	}}

	clock := newFakeClock()
	mgr := NewManager(source, WithClock(clock))

	summary, err := mgr.ReplayEvents(context.Background(), "sim-A",
		func(ctx context.Context, ev *event.Event) error { return nil }, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.SuccessfulEvents)
	assert.Empty(t, clock.recorded(), "unset multiplier must not sleep")
}

func TestReplayEvents_FailureIsolation(t *testing.T) {
	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	var events []*event.Event
	for i := 0; i < 5; i++ {
		events = append(events, makeEvent("sim-A", "tick", base.Add(time.Duration(i)*time.Second)))
	}
	source := &staticSource{events: events}

	mgr := NewManager(source, WithClock(newFakeClock()))

	var invoked int
	handler := func(ctx context.Context, ev *event.Event) error {
		invoked++
		if invoked == 3 {
			return errors.New("downstream rejected event")
		}
		return nil
	}

	summary, err := mgr.ReplayEvents(context.Background(), "sim-A", handler, Options{})
	require.NoError(t, err)
	assert.Equal(t, 5, invoked, "events after the failure are still delivered")
	assert.Equal(t, 5, summary.TotalEvents)
	assert.Equal(t, 4, summary.SuccessfulEvents)
	assert.Equal(t, 1, summary.FailedEvents)
}

func TestReplayEvents_HandlerPanicIsolated(t *testing.T) {
	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	source := &staticSource{events: []*event.Event{
		makeEvent("sim-A", "tick", base),
		makeEvent("sim-A", "tick", base.Add(time.Second)),
	}}

	mgr := NewManager(source, WithClock(newFakeClock()))

	var invoked int
	handler := func(ctx context.Context, ev *event.Event) error {
		invoked++
		if invoked == 1 {
			panic("handler bug")
		}
		return nil
	}

	summary, err := mgr.ReplayEvents(context.Background(), "sim-A", handler, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, invoked)
	assert.Equal(t, 1, summary.FailedEvents)
	assert.Equal(t, 1, summary.SuccessfulEvents)
}

func TestReplayEvents_EmptyStream(t *testing.T) {
	mgr := NewManager(&staticSource{}, WithClock(newFakeClock()))

	called := false
	summary, err := mgr.ReplayEvents(context.Background(), "sim-empty",
		func(ctx context.Context, ev *event.Event) error { called = true; return nil },
		Options{SpeedMultiplier: 2.0})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, &Summary{}, summary)
}

func TestReplayEvents_TypeFilter(t *testing.T) {
	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	source := &staticSource{events: []*event.Event{
		makeEvent("sim-A", "simulation_started", base),
		makeEvent("sim-A", "document_generated", base.Add(time.Second)),
		makeEvent("sim-A", "phase_completed", base.Add(2*time.Second)),
		makeEvent("sim-A", "document_generated", base.Add(3*time.Second)),
	}}

	mgr := NewManager(source, WithClock(newFakeClock()))

	var seen []string
	handler := func(ctx context.Context, ev *event.Event) error {
		seen = append(seen, ev.EventType)
		return nil
	}

	summary, err := mgr.ReplayEvents(context.Background(), "sim-A", handler,
		Options{EventTypes: []string{"document_generated"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"document_generated", "document_generated"}, seen)
	assert.Equal(t, 2, summary.TotalEvents)

	// Filtering everything out behaves like an empty stream.
	summary, err = mgr.ReplayEvents(context.Background(), "sim-A", handler,
		Options{EventTypes: []string{"no_such_type"}})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalEvents)
}

func TestReplayEvents_Cancellation(t *testing.T) {
	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	source := &staticSource{events: []*event.Event{
		makeEvent("sim-A", "tick", base),
		makeEvent("sim-A", "tick", base.Add(time.Second)),
		makeEvent("sim-A", "tick", base.Add(2*time.Second)),
	}}

	mgr := NewManager(source, WithClock(newFakeClock()))

	ctx, cancel := context.WithCancel(context.Background())
	var invoked int
	handler := func(ctx context.Context, ev *event.Event) error {
		invoked++
		if invoked == 1 {
			cancel()
		}
		return nil
	}

	summary, err := mgr.ReplayEvents(ctx, "sim-A", handler, Options{SpeedMultiplier: 1.0})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, invoked, "replay stops between events after cancellation")
	assert.Equal(t, 1, summary.TotalEvents)
}

func TestReplayEvents_MaxReplayEventsCap(t *testing.T) {
	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	var events []*event.Event
	for i := 0; i < 10; i++ {
		events = append(events, makeEvent("sim-A", "tick", base.Add(time.Duration(i)*time.Second)))
	}
	source := &staticSource{events: events}

	mgr := NewManager(source, WithClock(newFakeClock()), WithMaxReplayEvents(4))

	summary, err := mgr.ReplayEvents(context.Background(), "sim-A",
		func(ctx context.Context, ev *event.Event) error { return nil }, Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.TotalEvents)
}

func TestReplayEvents_EndToEndWithStore(t *testing.T) {
	// Scenario from the subsystem contract: three events at T, T+5s,
	// T+10s replayed at 10x.
	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	source := &staticSource{events: []*event.Event{
		makeEvent("sim-A", "simulation_completed", base.Add(10*time.Second)),
		makeEvent("sim-A", "phase_completed", base.Add(5*time.Second)),
		makeEvent("sim-A", "simulation_started", base),
	}}

	clock := newFakeClock()
	mgr := NewManager(source, WithClock(clock))

	var order []string
	summary, err := mgr.ReplayEvents(context.Background(), "sim-A",
		func(ctx context.Context, ev *event.Event) error {
			order = append(order, ev.EventType)
			return nil
		}, Options{SpeedMultiplier: 10.0})
	require.NoError(t, err)

	assert.Equal(t, []string{"simulation_started", "phase_completed", "simulation_completed"}, order)
	assert.Equal(t, 3, summary.TotalEvents)
	assert.Equal(t, 3, summary.SuccessfulEvents)
	assert.Equal(t, 0, summary.FailedEvents)
	assert.Equal(t, 1500*time.Millisecond, summary.TotalReplayTime)
}

func TestReplayEvents_WithConstructedTelemetryProvider(t *testing.T) {
	ctx := context.Background()
	obs, err := observability.New(ctx, &observability.Config{Enabled: false})
	require.NoError(t, err)
	t.Cleanup(func() { _ = obs.Shutdown(ctx) })

	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	source := &staticSource{events: []*event.Event{
		makeEvent("sim-A", "tick", base),
		makeEvent("sim-A", "tick", base.Add(time.Second)),
	}}
	mgr := NewManager(source, WithClock(newFakeClock()), WithObservability(obs))

	// Handler failures drive the failure counter through the real provider.
	failing := func(ctx context.Context, ev *event.Event) error {
		return errors.New("handler rejected event")
	}
	summary, err := mgr.ReplayEvents(ctx, "sim-A", failing, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalEvents)
	assert.Equal(t, 2, summary.FailedEvents)
	assert.Equal(t, 0, summary.SuccessfulEvents)
}
