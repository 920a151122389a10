// Package replay re-drives stored simulation event streams through a
// caller-supplied handler, reproducing original inter-event timing at a
// configurable speed and isolating handler failures per event.
//
// Each ReplayEvents call is a fresh, independent run over a fetched
// snapshot; the manager keeps no state across calls, so concurrent
// replays of the same simulation do not interfere with each other or with
// concurrent writers.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/simforge/simtrace/pkg/event"
	"github.com/simforge/simtrace/pkg/observability"
)

// EventSource provides a simulation's stored events. *store.Store
// satisfies it; tests substitute their own.
type EventSource interface {
	GetEvents(ctx context.Context, simulationID string, offset, limit int64) []*event.Event
}

// Handler consumes one replayed event. A returned error marks that event
// failed; replay continues with the next one. Handlers that need failure
// detail must self-report it, since the manager only counts.
type Handler func(ctx context.Context, ev *event.Event) error

// Clock abstracts now/sleep so replay pacing is testable without real
// delays. Sleep must return early with the context's error when the
// context is canceled.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

func (wallClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Summary aggregates the outcome of one replay run.
type Summary struct {
	TotalEvents           int           `json:"total_events"`
	SuccessfulEvents      int           `json:"successful_events"`
	FailedEvents          int           `json:"failed_events"`
	AverageProcessingTime time.Duration `json:"average_processing_time"`
	TotalReplayTime       time.Duration `json:"total_replay_time"`
}

// Options tunes a single replay run.
type Options struct {
	// EventTypes, when non-empty, restricts replay to events whose type
	// is in the set, preserving relative order.
	EventTypes []string

	// SpeedMultiplier divides original inter-event gaps: 2.0 replays
	// twice as fast. Zero (unset) disables waiting entirely, running as
	// fast as the handler allows.
	SpeedMultiplier float64
}

// DefaultMaxReplayEvents bounds how many events one replay fetches.
const DefaultMaxReplayEvents = 1000

// Manager drives replay runs against an event source.
type Manager struct {
	source          EventSource
	maxReplayEvents int64
	clock           Clock
	logger          *slog.Logger
	obs             *observability.Provider
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the wall clock, for tests.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithMaxReplayEvents caps the snapshot size fetched per run.
func WithMaxReplayEvents(n int64) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxReplayEvents = n
		}
	}
}

// WithLogger overrides the default component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithObservability attaches a telemetry provider.
func WithObservability(p *observability.Provider) Option {
	return func(m *Manager) { m.obs = p }
}

// NewManager creates a replay manager over the given source.
func NewManager(source EventSource, opts ...Option) *Manager {
	m := &Manager{
		source:          source,
		maxReplayEvents: DefaultMaxReplayEvents,
		clock:           wallClock{},
		logger:          slog.Default().With("component", "replay"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ReplayEvents fetches a snapshot of the simulation's stream, sorts it by
// ascending timestamp (storage order is head-first and must not be
// trusted), applies the type filter, and invokes the handler once per
// event. With a speed multiplier set, the gap between consecutive
// timestamps is reproduced divided by the multiplier; the first event is
// dispatched immediately.
//
// Handler errors and panics are absorbed per event and counted in the
// summary. The only error returned is the context's, when the run is
// canceled between events; the partial summary is still returned.
func (m *Manager) ReplayEvents(ctx context.Context, simulationID string, handler Handler, opts Options) (*Summary, error) {
	start := m.clock.Now()
	summary := &Summary{}
	defer func() {
		summary.TotalReplayTime = m.clock.Now().Sub(start)
		m.obs.RecordReplayDuration(ctx, simulationID, summary.TotalReplayTime)
	}()

	// Work on a copy of the snapshot so sorting never mutates whatever
	// slice the source handed out.
	events := append([]*event.Event(nil), m.source.GetEvents(ctx, simulationID, 0, m.maxReplayEvents)...)
	events = filterByType(events, opts.EventTypes)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	if len(events) == 0 {
		return summary, nil
	}

	m.logger.InfoContext(ctx, "starting replay",
		"simulation_id", simulationID,
		"events", len(events),
		"speed_multiplier", opts.SpeedMultiplier)

	var processing time.Duration
	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if i > 0 && opts.SpeedMultiplier > 0 {
			gap := ev.Timestamp.Sub(events[i-1].Timestamp)
			if gap > 0 {
				wait := time.Duration(float64(gap) / opts.SpeedMultiplier)
				if err := m.clock.Sleep(ctx, wait); err != nil {
					return summary, err
				}
			}
		}

		callStart := m.clock.Now()
		err := m.invoke(ctx, handler, ev)
		processing += m.clock.Now().Sub(callStart)

		summary.TotalEvents++
		if err != nil {
			summary.FailedEvents++
			m.obs.CountHandlerFailure(ctx, simulationID)
			m.logger.WarnContext(ctx, "handler failed, continuing replay",
				"simulation_id", simulationID,
				"event_id", ev.EventID,
				"event_type", ev.EventType,
				"error", err)
			continue
		}
		summary.SuccessfulEvents++
	}

	if summary.TotalEvents > 0 {
		summary.AverageProcessingTime = processing / time.Duration(summary.TotalEvents)
	}
	return summary, nil
}

// invoke shields the replay loop from handler panics as well as errors;
// one bad event must not abort the run.
func (m *Manager) invoke(ctx context.Context, handler Handler, ev *event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, ev)
}

func filterByType(events []*event.Event, types []string) []*event.Event {
	if len(types) == 0 {
		return events
	}
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	filtered := make([]*event.Event, 0, len(events))
	for _, ev := range events {
		if _, ok := allowed[ev.EventType]; ok {
			filtered = append(filtered, ev)
		}
	}
	return filtered
}
