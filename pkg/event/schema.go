package event

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// recordSchema is the JSON Schema for the stored event record format.
// Additional properties are allowed so that newer writers remain readable
// by older consumers.
const recordSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["event_id", "event_type", "simulation_id", "timestamp", "data", "priority"],
  "properties": {
    "event_id": {"type": "string", "minLength": 1},
    "event_type": {"type": "string", "minLength": 1},
    "simulation_id": {"type": "string", "minLength": 1},
    "timestamp": {"type": "string", "format": "date-time"},
    "data": {"type": "object"},
    "priority": {"enum": ["LOW", "NORMAL", "HIGH", "CRITICAL"]}
  },
  "additionalProperties": true
}`

// Validator checks raw records against the event record schema. It is
// stricter than Decode (which only enforces required fields) and is used
// by strict readers and conformance tests.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the record schema.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	schemaURL := "https://simtrace.schemas.local/event.schema.json"
	if err := c.AddResource(schemaURL, strings.NewReader(recordSchema)); err != nil {
		return nil, fmt.Errorf("add event schema: %w", err)
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile event schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks a raw stored record against the schema.
func (v *Validator) Validate(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return nil
}
