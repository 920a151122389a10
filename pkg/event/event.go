// Package event defines the immutable simulation event record and its
// wire format.
//
// Events are created by collaborators (interpreters, workflow engines,
// generators) at the moment a noteworthy state transition occurs, stored
// once, read many times, and never mutated. Corrections are represented
// as new events.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Priority classifies an event for downstream triage. It is metadata
// only: it does not affect storage or replay ordering.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityNormal   Priority = "NORMAL"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Valid reports whether p is one of the known priority levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// ErrMalformedRecord is returned by Decode when a stored record is not a
// parsable event: corrupt JSON, a missing required field, or an unknown
// priority value. Readers skip such records rather than aborting.
var ErrMalformedRecord = errors.New("malformed event record")

// Event is an immutable record of a noteworthy occurrence within a
// simulation. Timestamp is the moment the event occurred, not the moment
// it was stored; replay pacing is derived from it.
type Event struct {
	EventID      string         `json:"event_id"`
	EventType    string         `json:"event_type"`
	SimulationID string         `json:"simulation_id"`
	Timestamp    time.Time      `json:"timestamp"`
	Data         map[string]any `json:"data"`
	Priority     Priority       `json:"priority"`
}

// New creates an event with a generated UUID and a UTC timestamp of now.
func New(simulationID, eventType string, data map[string]any) *Event {
	if data == nil {
		data = map[string]any{}
	}
	return &Event{
		EventID:      uuid.NewString(),
		EventType:    eventType,
		SimulationID: simulationID,
		Timestamp:    time.Now().UTC(),
		Data:         data,
		Priority:     PriorityNormal,
	}
}

// WithPriority returns the event with its priority set.
func (e *Event) WithPriority(p Priority) *Event {
	e.Priority = p
	return e
}

// Encode serializes the event as a UTF-8 JSON record with an RFC 3339
// timestamp.
func (e *Event) Encode() ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.EventID, err)
	}
	return raw, nil
}

// wireEvent mirrors the stored record with pointer fields so that absent
// and empty values are distinguishable during decoding.
type wireEvent struct {
	EventID      *string        `json:"event_id"`
	EventType    *string        `json:"event_type"`
	SimulationID *string        `json:"simulation_id"`
	Timestamp    *string        `json:"timestamp"`
	Data         map[string]any `json:"data"`
	Priority     *string        `json:"priority"`
}

// Decode parses a stored record. Unknown additional fields are ignored
// for forward compatibility. A record missing any required field, or
// carrying an invalid timestamp or priority, fails with
// ErrMalformedRecord.
func Decode(raw []byte) (*Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	switch {
	case w.EventID == nil || *w.EventID == "":
		return nil, fmt.Errorf("%w: missing event_id", ErrMalformedRecord)
	case w.EventType == nil || *w.EventType == "":
		return nil, fmt.Errorf("%w: missing event_type", ErrMalformedRecord)
	case w.SimulationID == nil || *w.SimulationID == "":
		return nil, fmt.Errorf("%w: missing simulation_id", ErrMalformedRecord)
	case w.Timestamp == nil || *w.Timestamp == "":
		return nil, fmt.Errorf("%w: missing timestamp", ErrMalformedRecord)
	case w.Data == nil:
		return nil, fmt.Errorf("%w: missing data", ErrMalformedRecord)
	case w.Priority == nil || *w.Priority == "":
		return nil, fmt.Errorf("%w: missing priority", ErrMalformedRecord)
	}

	ts, err := parseTimestamp(*w.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp %q", ErrMalformedRecord, *w.Timestamp)
	}

	p := Priority(*w.Priority)
	if !p.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrMalformedRecord, *w.Priority)
	}

	return &Event{
		EventID:      *w.EventID,
		EventType:    *w.EventType,
		SimulationID: *w.SimulationID,
		Timestamp:    ts,
		Data:         w.Data,
		Priority:     p,
	}, nil
}

func parseTimestamp(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}
