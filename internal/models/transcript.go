// Package models defines the data structures for transcript events.
package models

// Event types carried in the eventType field and Kafka header.
const (
	EventTypePartial = "speech.transcript.partial"
	EventTypeFinal   = "speech.transcript.final"
)

// TranscriptPartial represents an interim/partial transcript result.
type TranscriptPartial struct {
	EventType      string `json:"eventType"`
	CallID         string `json:"callId"`
	UtteranceID    string `json:"utteranceId"`
	Timestamp      int64  `json:"timestamp"`
	Text           string `json:"text"`
	NormalizedText string `json:"normalizedText,omitempty"`
}

// TranscriptFinal represents the result that ends an utterance, with every
// hypothesis the recognizer returned.
type TranscriptFinal struct {
	EventType      string       `json:"eventType"`
	CallID         string       `json:"callId"`
	UtteranceID    string       `json:"utteranceId"`
	Timestamp      int64        `json:"timestamp"`
	Text           string       `json:"text"`
	NormalizedText string       `json:"normalizedText,omitempty"`
	AudioOffsetMs  int64        `json:"audioOffsetMs"`
	AudioEndMs     int64        `json:"audioEndMs"`
	Hypotheses     []Hypothesis `json:"hypotheses,omitempty"`
	Emotions       *Emotions    `json:"emotions,omitempty"`
}

// Hypothesis is one recognition alternative of a final transcript.
type Hypothesis struct {
	Text           string `json:"text"`
	NormalizedText string `json:"normalizedText,omitempty"`
}

// Emotions scores an utterance.
type Emotions struct {
	Positive float32 `json:"positive"`
	Neutral  float32 `json:"neutral"`
	Negative float32 `json:"negative"`
}
