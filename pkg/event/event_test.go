package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	ev := New("sim-1", "simulation_started", map[string]any{"phase": "init"})

	assert.NotEmpty(t, ev.EventID)
	assert.Equal(t, "sim-1", ev.SimulationID)
	assert.Equal(t, "simulation_started", ev.EventType)
	assert.Equal(t, PriorityNormal, ev.Priority)
	assert.WithinDuration(t, time.Now().UTC(), ev.Timestamp, 5*time.Second)

	ev2 := New("sim-1", "simulation_started", nil)
	assert.NotNil(t, ev2.Data)
	assert.NotEqual(t, ev.EventID, ev2.EventID)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	ev := New("sim-rt", "phase_completed", map[string]any{"phase": "design", "attempt": float64(2)})
	ev.Priority = PriorityHigh

	raw, err := ev.Encode()
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, ev.EventID, got.EventID)
	assert.Equal(t, ev.EventType, got.EventType)
	assert.Equal(t, ev.SimulationID, got.SimulationID)
	assert.True(t, ev.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, ev.Data, got.Data)
	assert.Equal(t, PriorityHigh, got.Priority)
}

func TestDecode_MissingRequiredFields(t *testing.T) {
	base := map[string]any{
		"event_id":      "evt-1",
		"event_type":    "simulation_started",
		"simulation_id": "sim-1",
		"timestamp":     "2026-08-20T10:00:00Z",
		"data":          map[string]any{},
		"priority":      "NORMAL",
	}

	for _, field := range []string{"event_id", "event_type", "simulation_id", "timestamp", "data", "priority"} {
		record := make(map[string]any, len(base))
		for k, v := range base {
			record[k] = v
		}
		delete(record, field)

		raw, err := json.Marshal(record)
		require.NoError(t, err)

		_, err = Decode(raw)
		assert.ErrorIs(t, err, ErrMalformedRecord, "missing %s should be unparsable", field)
	}
}

func TestDecode_CorruptAndInvalid(t *testing.T) {
	_, err := Decode([]byte(`{"event_id": "evt-1",`))
	assert.ErrorIs(t, err, ErrMalformedRecord)

	_, err = Decode([]byte(`{"event_id":"e","event_type":"t","simulation_id":"s","timestamp":"not-a-time","data":{},"priority":"NORMAL"}`))
	assert.ErrorIs(t, err, ErrMalformedRecord)

	_, err = Decode([]byte(`{"event_id":"e","event_type":"t","simulation_id":"s","timestamp":"2026-08-20T10:00:00Z","data":{},"priority":"URGENT"}`))
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestDecode_IgnoresUnknownFields(t *testing.T) {
	raw := []byte(`{
		"event_id": "evt-fw",
		"event_type": "document_generated",
		"simulation_id": "sim-1",
		"timestamp": "2026-08-20T10:00:00Z",
		"data": {"doc": "readme"},
		"priority": "LOW",
		"introduced_in_v2": true,
		"trace_context": {"span": "abc"}
	}`)

	ev, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "evt-fw", ev.EventID)
	assert.Equal(t, PriorityLow, ev.Priority)
}

func TestContentHash_StableAndDistinct(t *testing.T) {
	ev := New("sim-h", "phase_completed", map[string]any{"b": 2, "a": 1})

	h1, err := ContentHash(ev)
	require.NoError(t, err)
	h2, err := ContentHash(ev)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Contains(t, h1, "sha256:")

	other := New("sim-h", "phase_completed", map[string]any{"b": 2, "a": 1})
	h3, err := ContentHash(other)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3, "different event IDs must hash differently")
}

func TestValidator(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	ev := New("sim-v", "simulation_completed", map[string]any{"ok": true})
	raw, err := ev.Encode()
	require.NoError(t, err)
	assert.NoError(t, v.Validate(raw))

	assert.ErrorIs(t, v.Validate([]byte(`{"event_id": ""}`)), ErrMalformedRecord)
	assert.ErrorIs(t, v.Validate([]byte(`not json`)), ErrMalformedRecord)
}

func TestPriority_Valid(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical} {
		assert.True(t, p.Valid())
	}
	assert.False(t, Priority("URGENT").Valid())
	assert.False(t, Priority("").Valid())
}
