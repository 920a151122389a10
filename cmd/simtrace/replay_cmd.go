package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/simforge/simtrace/pkg/event"
	"github.com/simforge/simtrace/pkg/replay"
)

// runReplayCmd implements `simtrace replay`: re-drive a stored stream
// through a handler that logs each event, then print the summary.
//
// Exit codes:
//
//	0 = all events replayed successfully
//	1 = replay completed with handler failures
//	2 = usage or runtime error
func runReplayCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("replay", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		configPath string
		simID      string
		types      string
		speed      float64
	)
	cmd.StringVar(&configPath, "config", "", "Optional YAML config overlay")
	cmd.StringVar(&simID, "sim", "", "Simulation ID (REQUIRED)")
	cmd.StringVar(&types, "types", "", "Comma-separated event types to replay (default all)")
	cmd.Float64Var(&speed, "speed", 0, "Speed multiplier; 0 replays without waiting")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if simID == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -sim is required")
		return 2
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	logger := setupLogging(cfg, stderr)

	ctx := context.Background()
	obs, err := setupTelemetry(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = obs.Shutdown(ctx) }()

	s, client := newEventStore(cfg, obs)
	defer func() { _ = client.Close() }()

	mgr := replay.NewManager(s,
		replay.WithMaxReplayEvents(cfg.MaxReplayEvents),
		replay.WithObservability(obs))

	handler := func(ctx context.Context, ev *event.Event) error {
		logger.InfoContext(ctx, "replayed event",
			"event_id", ev.EventID,
			"event_type", ev.EventType,
			"timestamp", ev.Timestamp,
			"priority", ev.Priority)
		return nil
	}

	opts := replay.Options{SpeedMultiplier: speed}
	if types != "" {
		opts.EventTypes = strings.Split(types, ",")
	}

	summary, err := mgr.ReplayEvents(ctx, simID, handler, opts)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: replay interrupted: %v\n", err)
		return 2
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return 2
	}
	if summary.FailedEvents > 0 {
		return 1
	}
	return 0
}
