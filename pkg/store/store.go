package store

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/simforge/simtrace/pkg/event"
	"github.com/simforge/simtrace/pkg/observability"
)

// Config holds the store's retention and namespace knobs.
type Config struct {
	// KeyPrefix namespaces every key this store touches.
	KeyPrefix string

	// MaxEventsPerKey is the soft cap used when a caller asks for "all"
	// events of a stream (type-filtered reads, replay fetches).
	MaxEventsPerKey int64

	// EventTTL is the retention window. Every write resets the stream
	// key's TTL to this value, so an actively emitting simulation never
	// expires mid-run.
	EventTTL time.Duration

	// CleanupScanRate caps how many keys per second a cleanup sweep
	// inspects. Zero means unthrottled.
	CleanupScanRate float64
}

// DefaultConfig returns the production defaults: 30-day retention, 1000
// events per "all events" read.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:       "simtrace:events:",
		MaxEventsPerKey: 1000,
		EventTTL:        30 * 24 * time.Hour,
	}
}

// Store is the event store. All operations absorb backend failures:
// StoreEvent reports false and reads report empty slices, never an error.
// Concurrent use is safe as long as the Backend is; the store keeps no
// mutable state of its own.
type Store struct {
	backend     Backend
	cfg         Config
	logger      *slog.Logger
	obs         *observability.Provider
	scanLimiter *rate.Limiter
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger overrides the default component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithObservability attaches a telemetry provider. A nil provider is a
// valid no-op.
func WithObservability(p *observability.Provider) Option {
	return func(s *Store) { s.obs = p }
}

// New creates a store over the given backend. Zero-valued config fields
// fall back to DefaultConfig.
func New(backend Backend, cfg Config, opts ...Option) *Store {
	def := DefaultConfig()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if cfg.MaxEventsPerKey <= 0 {
		cfg.MaxEventsPerKey = def.MaxEventsPerKey
	}
	if cfg.EventTTL <= 0 {
		cfg.EventTTL = def.EventTTL
	}

	limit := rate.Inf
	if cfg.CleanupScanRate > 0 {
		limit = rate.Limit(cfg.CleanupScanRate)
	}

	s := &Store{
		backend:     backend,
		cfg:         cfg,
		logger:      slog.Default().With("component", "event_store"),
		scanLimiter: rate.NewLimiter(limit, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(simulationID string) string {
	return s.cfg.KeyPrefix + simulationID
}

// StoreEvent inserts the event at the head of its simulation's stream and
// resets the stream's TTL to the retention window. It reports false on
// any failure (serialization, connection loss, expired write) so callers
// can decide whether to retry, buffer, or drop.
func (s *Store) StoreEvent(ctx context.Context, ev *event.Event) bool {
	start := time.Now()
	defer func() { s.obs.RecordStoreDuration(ctx, "store_event", time.Since(start)) }()

	if ev == nil || ev.SimulationID == "" {
		s.logger.WarnContext(ctx, "rejecting event without simulation id")
		return false
	}

	raw, err := ev.Encode()
	if err != nil {
		s.logger.WarnContext(ctx, "failed to encode event",
			"event_id", ev.EventID, "simulation_id", ev.SimulationID, "error", err)
		s.obs.CountEventDropped(ctx, ev.SimulationID)
		return false
	}

	key := s.key(ev.SimulationID)
	if err := s.backend.Push(ctx, key, raw); err != nil {
		s.logger.WarnContext(ctx, "failed to push event",
			"event_id", ev.EventID, "simulation_id", ev.SimulationID, "error", err)
		s.obs.CountEventDropped(ctx, ev.SimulationID)
		return false
	}
	if err := s.backend.Expire(ctx, key, s.cfg.EventTTL); err != nil {
		s.logger.WarnContext(ctx, "failed to refresh stream ttl",
			"simulation_id", ev.SimulationID, "error", err)
		s.obs.CountEventDropped(ctx, ev.SimulationID)
		return false
	}

	s.obs.CountEventStored(ctx, ev.SimulationID)
	return true
}

// GetEvents returns up to limit events starting at offset, in stored
// (head-first, most-recently-stored first) order. A missing stream yields
// an empty slice; malformed records are skipped. Non-positive limits and
// negative offsets are treated permissively and yield an empty slice.
func (s *Store) GetEvents(ctx context.Context, simulationID string, offset, limit int64) []*event.Event {
	start := time.Now()
	defer func() { s.obs.RecordStoreDuration(ctx, "get_events", time.Since(start)) }()

	if simulationID == "" || offset < 0 || limit <= 0 {
		return []*event.Event{}
	}

	raw, err := s.backend.Range(ctx, s.key(simulationID), offset, offset+limit-1)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to read event stream",
			"simulation_id", simulationID, "error", err)
		return []*event.Event{}
	}
	return s.decodeAll(ctx, simulationID, raw)
}

// GetEventsByType returns the subset of the stream whose event type
// matches, preserving stored order. The filter is a post-retrieval
// predicate over up to MaxEventsPerKey events, not a server-side index.
func (s *Store) GetEventsByType(ctx context.Context, simulationID, eventType string) []*event.Event {
	start := time.Now()
	defer func() { s.obs.RecordStoreDuration(ctx, "get_events_by_type", time.Since(start)) }()

	all := s.GetEvents(ctx, simulationID, 0, s.cfg.MaxEventsPerKey)
	filtered := make([]*event.Event, 0, len(all))
	for _, ev := range all {
		if ev.EventType == eventType {
			filtered = append(filtered, ev)
		}
	}
	return filtered
}

// CleanupExpiredEvents deletes stream keys whose TTL has elapsed but that
// the backend has not reaped, and returns how many keys were removed. It
// is safe to run concurrently with writers: a concurrent StoreEvent
// either recreates the key or refreshes its TTL, and the delete count
// reflects only keys that actually existed at deletion time. Keys with no
// expiry are left alone.
func (s *Store) CleanupExpiredEvents(ctx context.Context) int {
	start := time.Now()
	defer func() { s.obs.RecordStoreDuration(ctx, "cleanup_expired_events", time.Since(start)) }()

	keys, err := s.backend.Scan(ctx, s.cfg.KeyPrefix+"*")
	if err != nil {
		s.logger.WarnContext(ctx, "cleanup scan failed", "error", err)
		return 0
	}

	var expired []string
	for _, key := range keys {
		if err := s.scanLimiter.Wait(ctx); err != nil {
			break
		}
		ttl, err := s.backend.TTL(ctx, key)
		if err != nil {
			continue // raced with expiry or a concurrent delete
		}
		if ttl == NoExpiry {
			continue
		}
		if ttl <= 0 {
			expired = append(expired, key)
		}
	}
	if len(expired) == 0 {
		return 0
	}

	deleted, err := s.backend.Delete(ctx, expired...)
	if err != nil {
		s.logger.WarnContext(ctx, "cleanup delete failed", "error", err)
		return 0
	}

	s.obs.CountKeysReaped(ctx, deleted)
	s.logger.InfoContext(ctx, "cleanup sweep complete",
		"scanned", len(keys), "deleted", deleted)
	return int(deleted)
}

func (s *Store) decodeAll(ctx context.Context, simulationID string, raw [][]byte) []*event.Event {
	events := make([]*event.Event, 0, len(raw))
	for _, r := range raw {
		ev, err := event.Decode(r)
		if err != nil {
			s.logger.DebugContext(ctx, "skipping malformed record",
				"simulation_id", simulationID,
				"error", err,
				"prefix", recordPrefix(r))
			s.obs.CountRecordSkipped(ctx, simulationID)
			continue
		}
		events = append(events, ev)
	}
	return events
}

// recordPrefix truncates a raw record for debug logging.
func recordPrefix(raw []byte) string {
	const max = 64
	s := string(raw)
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
