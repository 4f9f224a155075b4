package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"smartspeech-client/internal/models"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestValidator_Validate(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	partial := models.TranscriptPartial{
		EventType:   models.EventTypePartial,
		CallID:      "call-1",
		UtteranceID: "call-1-utt-1",
		Timestamp:   1700000000000,
		Text:        "hel",
	}
	final := models.TranscriptFinal{
		EventType:     models.EventTypeFinal,
		CallID:        "call-1",
		UtteranceID:   "call-1-utt-1",
		Timestamp:     1700000000000,
		Text:          "hello",
		AudioOffsetMs: 100,
		AudioEndMs:    900,
		Hypotheses:    []models.Hypothesis{{Text: "hello"}},
		Emotions:      &models.Emotions{Positive: 0.6, Neutral: 0.3, Negative: 0.1},
	}
	noCall := partial
	noCall.CallID = ""
	badEmotions := final
	badEmotions.Emotions = &models.Emotions{Positive: 2}

	tests := []struct {
		name      string
		eventType string
		payload   []byte
		wantErr   bool
	}{
		{"valid partial", models.EventTypePartial, mustJSON(t, partial), false},
		{"valid final", models.EventTypeFinal, mustJSON(t, final), false},
		{"partial on final schema", models.EventTypeFinal, mustJSON(t, partial), true},
		{"empty call id", models.EventTypePartial, mustJSON(t, noCall), true},
		{"emotion out of range", models.EventTypeFinal, mustJSON(t, badEmotions), true},
		{"missing fields", models.EventTypePartial, []byte(`{"text":"x"}`), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.eventType, tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var verr *ValidationError
				if !errors.As(err, &verr) || len(verr.Fields) == 0 {
					t.Errorf("Validate() error = %v, want a ValidationError with fields", err)
				}
			}
		})
	}
}

func TestValidator_UnknownEventType(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Validate("speech.other", []byte(`{}`)); !errors.Is(err, ErrUnknownEventType) {
		t.Errorf("Validate() error = %v, want ErrUnknownEventType", err)
	}
}

func TestValidator_NilAcceptsAll(t *testing.T) {
	var v *Validator
	if err := v.Validate("anything", []byte(`not json`)); err != nil {
		t.Errorf("nil Validate() error = %v", err)
	}
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		EventType: models.EventTypePartial,
		Fields: []FieldError{
			{Field: "callId", Description: "String length must be greater than or equal to 1"},
			{Field: "(root)", Description: "timestamp is required"},
		},
	}
	want := "invalid speech.transcript.partial event: callId: String length must be greater than or equal to 1; (root): timestamp is required"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
