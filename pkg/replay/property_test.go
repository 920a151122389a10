//go:build property
// +build property

// Property-based tests for replay ordering and accounting invariants.
package replay_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/simforge/simtrace/pkg/event"
	"github.com/simforge/simtrace/pkg/replay"
)

type sliceSource struct {
	events []*event.Event
}

func (s *sliceSource) GetEvents(ctx context.Context, simulationID string, offset, limit int64) []*event.Event {
	if int64(len(s.events)) > limit {
		return s.events[:limit]
	}
	return s.events
}

type noopClock struct{ now time.Time }

func (c *noopClock) Now() time.Time { return c.now }
func (c *noopClock) Sleep(ctx context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	return ctx.Err()
}

func eventsFromOffsets(offsets []int64) []*event.Event {
	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	events := make([]*event.Event, 0, len(offsets))
	for _, off := range offsets {
		ev := event.New("sim-prop", "tick", map[string]any{})
		ev.Timestamp = base.Add(time.Duration(off) * time.Millisecond)
		events = append(events, ev)
	}
	return events
}

// TestReplayDeliveryOrder verifies the handler always sees non-decreasing
// timestamps, whatever order the source returns.
func TestReplayDeliveryOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("handler sees non-decreasing timestamps", prop.ForAll(
		func(offsets []int64) bool {
			source := &sliceSource{events: eventsFromOffsets(offsets)}
			mgr := replay.NewManager(source, replay.WithClock(&noopClock{}))

			var last time.Time
			ordered := true
			_, err := mgr.ReplayEvents(context.Background(), "sim-prop",
				func(ctx context.Context, ev *event.Event) error {
					if ev.Timestamp.Before(last) {
						ordered = false
					}
					last = ev.Timestamp
					return nil
				}, replay.Options{})
			return err == nil && ordered
		},
		gen.SliceOf(gen.Int64Range(0, 1_000_000)),
	))

	properties.TestingRun(t)
}

// TestReplayAccounting verifies successful+failed always equals total,
// for any mix of handler outcomes.
func TestReplayAccounting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("successful + failed == total", prop.ForAll(
		func(offsets []int64, failures []bool) bool {
			source := &sliceSource{events: eventsFromOffsets(offsets)}
			mgr := replay.NewManager(source, replay.WithClock(&noopClock{}))

			i := 0
			summary, err := mgr.ReplayEvents(context.Background(), "sim-prop",
				func(ctx context.Context, ev *event.Event) error {
					defer func() { i++ }()
					if i < len(failures) && failures[i] {
						return errors.New("injected failure")
					}
					return nil
				}, replay.Options{})
			if err != nil {
				return false
			}
			return summary.TotalEvents == len(offsets) &&
				summary.SuccessfulEvents+summary.FailedEvents == summary.TotalEvents
		},
		gen.SliceOf(gen.Int64Range(0, 1_000_000)),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
