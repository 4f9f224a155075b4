// Package schema validates transcript event payloads against the JSON
// schemas of the partial and final topics before they are published.
package schema

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"smartspeech-client/internal/models"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

// ErrUnknownEventType is returned for an event type without a schema.
var ErrUnknownEventType = errors.New("no schema for event type")

// FieldError is one schema violation.
type FieldError struct {
	Field       string
	Description string
}

// ValidationError lists every violation of one payload.
type ValidationError struct {
	EventType string
	Fields    []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Description
	}
	return fmt.Sprintf("invalid %s event: %s", e.EventType, strings.Join(parts, "; "))
}

// Validator holds the compiled schemas.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// New compiles the embedded schemas.
func New() (*Validator, error) {
	files := map[string]string{
		models.EventTypePartial: "schemas/transcript_partial.json",
		models.EventTypeFinal:   "schemas/transcript_final.json",
	}
	v := &Validator{schemas: make(map[string]*gojsonschema.Schema, len(files))}
	for eventType, name := range files {
		raw, err := schemaFiles.ReadFile(name)
		if err != nil {
			return nil, err
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		v.schemas[eventType] = s
	}
	return v, nil
}

// Validate checks payload against the schema of eventType. A nil Validator
// accepts everything.
func (v *Validator) Validate(eventType string, payload []byte) error {
	if v == nil {
		return nil
	}
	s, ok := v.schemas[eventType]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownEventType, eventType)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("validate %s event: %w", eventType, err)
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{EventType: eventType}
	for _, e := range result.Errors() {
		verr.Fields = append(verr.Fields, FieldError{Field: e.Field(), Description: e.Description()})
	}
	return verr
}
