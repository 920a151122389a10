package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/simforge/simtrace/pkg/event"
)

// runTailCmd implements `simtrace tail`: print stored events, newest
// first, as JSON lines.
func runTailCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("tail", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		configPath string
		simID      string
		eventType  string
		offset     int64
		limit      int64
	)
	cmd.StringVar(&configPath, "config", "", "Optional YAML config overlay")
	cmd.StringVar(&simID, "sim", "", "Simulation ID (REQUIRED)")
	cmd.StringVar(&eventType, "type", "", "Only print events of this type; -offset/-limit then apply to the filtered stream")
	cmd.Int64Var(&offset, "offset", 0, "Skip this many events from the head")
	cmd.Int64Var(&limit, "limit", 100, "Maximum events to print")

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
	setupLogging(cfg, stderr)

	ctx := context.Background()
	obs, err := setupTelemetry(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = obs.Shutdown(ctx) }()

	s, client := newEventStore(cfg, obs)
	defer func() { _ = client.Close() }()

	var events []*event.Event
	if eventType != "" {
		events = window(s.GetEventsByType(ctx, simID, eventType), offset, limit)
	} else {
		events = s.GetEvents(ctx, simID, offset, limit)
	}

	enc := json.NewEncoder(stdout)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
	}
	return 0
}

// window applies -offset/-limit to an already filtered slice, matching
// the store's permissive bounds policy: out-of-range gives nothing.
func window(events []*event.Event, offset, limit int64) []*event.Event {
	if offset < 0 || limit <= 0 || offset >= int64(len(events)) {
		return nil
	}
	end := offset + limit
	if end > int64(len(events)) {
		end = int64(len(events))
	}
	return events[offset:end]
}
