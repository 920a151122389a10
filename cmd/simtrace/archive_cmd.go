package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/simforge/simtrace/pkg/archive"
)

// runArchiveCmd implements `simtrace archive`: copy a simulation's stored
// stream into the SQLite archive. Re-running is idempotent; already
// archived events are skipped.
func runArchiveCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("archive", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		configPath string
		simID      string
	)
	cmd.StringVar(&configPath, "config", "", "Optional YAML config overlay")
	cmd.StringVar(&simID, "sim", "", "Simulation ID (REQUIRED)")

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

	events := s.GetEvents(ctx, simID, 0, cfg.MaxEventsPerKey)
	if len(events) == 0 {
		_, _ = fmt.Fprintln(stdout, "no events to archive")
		return 0
	}

	arc, err := archive.Open(cfg.ArchivePath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = arc.Close() }()

	written, err := arc.Archive(ctx, events)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: archive failed after %d event(s): %v\n", written, err)
		return 2
	}

	_, _ = fmt.Fprintf(stdout, "archived %d of %d event(s) for %s\n", written, len(events), simID)
	return 0
}
