package main

import (
	"context"
	"flag"
	"fmt"
	"io"
)

// runCleanupCmd implements `simtrace cleanup`: one retention sweep.
func runCleanupCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var configPath string
	cmd.StringVar(&configPath, "config", "", "Optional YAML config overlay")

	if err := cmd.Parse(args); err != nil {
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

	deleted := s.CleanupExpiredEvents(ctx)
	_, _ = fmt.Fprintf(stdout, "deleted %d expired stream key(s)\n", deleted)
	return 0
}
