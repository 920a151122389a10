package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/simforge/simtrace/pkg/event"
)

// runEmitCmd implements `simtrace emit`: store one event from flags.
func runEmitCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("emit", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		configPath string
		simID      string
		eventType  string
		dataJSON   string
		priority   string
	)
	cmd.StringVar(&configPath, "config", "", "Optional YAML config overlay")
	cmd.StringVar(&simID, "sim", "", "Simulation ID (REQUIRED)")
	cmd.StringVar(&eventType, "type", "", "Event type (REQUIRED)")
	cmd.StringVar(&dataJSON, "data", "{}", "Event payload as a JSON object")
	cmd.StringVar(&priority, "priority", string(event.PriorityNormal), "Priority: LOW|NORMAL|HIGH|CRITICAL")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if simID == "" || eventType == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -sim and -type are required")
		return 2
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: -data is not a JSON object: %v\n", err)
		return 2
	}
	p := event.Priority(priority)
	if !p.Valid() {
		_, _ = fmt.Fprintf(stderr, "Error: unknown priority %q\n", priority)
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

	ev := event.New(simID, eventType, data).WithPriority(p)
	if !s.StoreEvent(ctx, ev) {
		_, _ = fmt.Fprintln(stderr, "Error: event was not stored")
		return 1
	}

	_, _ = fmt.Fprintln(stdout, ev.EventID)
	return 0
}
