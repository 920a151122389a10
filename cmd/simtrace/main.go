// Command simtrace is the operations CLI for the simulation event store:
// emitting and tailing event streams, replaying them against a logging
// handler, running retention sweeps, and archiving streams to SQLite.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/simforge/simtrace/pkg/config"
	"github.com/simforge/simtrace/pkg/observability"
	"github.com/simforge/simtrace/pkg/store"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run dispatches to a subcommand. It is the entrypoint for tests.
//
// Exit codes:
//
//	0 = success
//	1 = operation reported failure (write rejected, replay had failures)
//	2 = usage or runtime error
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	cmd := args[1]
	rest := args[2:]

	switch cmd {
	case "emit":
		return runEmitCmd(rest, stdout, stderr)
	case "tail":
		return runTailCmd(rest, stdout, stderr)
	case "replay":
		return runReplayCmd(rest, stdout, stderr)
	case "cleanup":
		return runCleanupCmd(rest, stdout, stderr)
	case "archive":
		return runArchiveCmd(rest, stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command %q\n\n", cmd)
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, `Usage: simtrace <command> [flags]

Commands:
  emit      Store one event for a simulation
  tail      Print a simulation's stored events as JSON lines
  replay    Replay a simulation's events through a logging handler
  cleanup   Delete stream keys whose TTL has elapsed
  archive   Copy a simulation's stream into the SQLite archive

Configuration comes from SIMTRACE_* environment variables; every command
also accepts -config <file> to overlay a YAML file.`)
}

// loadConfig resolves env config plus the optional -config overlay.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load(), nil
	}
	return config.LoadFile(path)
}

// setupTelemetry builds the telemetry provider from config. With
// SIMTRACE_TELEMETRY unset the provider is inert; recording methods are
// no-ops and Shutdown does nothing.
func setupTelemetry(ctx context.Context, cfg *config.Config) (*observability.Provider, error) {
	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.TelemetryEnabled
	if cfg.OTLPEndpoint != "" {
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	}
	return observability.New(ctx, obsCfg)
}

// newEventStore builds the Redis-backed store from config. The returned
// client is owned by the caller.
func newEventStore(cfg *config.Config, obs *observability.Provider) (*store.Store, *redis.Client) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	s := store.New(store.NewRedisBackend(client), store.Config{
		KeyPrefix:       cfg.KeyPrefix,
		MaxEventsPerKey: cfg.MaxEventsPerKey,
		EventTTL:        cfg.EventTTL,
		CleanupScanRate: cfg.CleanupScanRate,
	}, store.WithObservability(obs))
	return s, client
}

// setupLogging installs a text slog handler at the configured level on
// stderr and returns the logger.
func setupLogging(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
