package events

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"smartspeech-client/internal/call"
	"smartspeech-client/internal/models"
	"smartspeech-client/internal/observability/logging"
)

// EventPublisher is what a Sink publishes to. *Publisher implements it.
type EventPublisher interface {
	PublishPartial(ctx context.Context, key string, event any) error
	PublishFinal(ctx context.Context, key string, event any) error
}

// UtteranceState is the lifecycle state of the current utterance.
type UtteranceState int

const (
	// UtteranceEmpty - no result seen for the current utterance yet.
	UtteranceEmpty UtteranceState = iota
	// UtteranceOpen - partials were published, no final yet.
	UtteranceOpen
	// UtteranceDropped - the call ended before the final arrived. Terminal.
	UtteranceDropped
)

// String returns the string representation of the state.
func (s UtteranceState) String() string {
	switch s {
	case UtteranceEmpty:
		return "EMPTY"
	case UtteranceOpen:
		return "OPEN"
	case UtteranceDropped:
		return "DROPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Sink publishes the transcripts of one recognition call and forwards them
// to the next sink. Partials share the utterance id of the final that ends
// them; the next result after a final opens a new utterance.
//
// Handle runs on the dispatcher goroutine like any result sink. Publishing
// only enqueues, so it never waits for the broker.
type Sink struct {
	publisher EventPublisher
	callID    string
	next      call.TranscriptSink
	log       zerolog.Logger
	now       func() time.Time

	seq       int
	state     UtteranceState
	published int
}

// NewSink creates the sink for the call with callID. next may be nil.
func NewSink(p EventPublisher, callID string, next call.TranscriptSink) *Sink {
	return &Sink{
		publisher: p,
		callID:    callID,
		next:      next,
		log:       logging.WithComponent("events").With().Str("callId", callID).Logger(),
		now:       time.Now,
		seq:       1,
	}
}

// UtteranceID returns the id of the current utterance.
func (s *Sink) UtteranceID() string {
	return fmt.Sprintf("%s-utt-%d", s.callID, s.seq)
}

// State returns the state of the current utterance.
func (s *Sink) State() UtteranceState {
	return s.state
}

// Published returns the number of events handed to the publisher.
func (s *Sink) Published() int {
	return s.published
}

// Handle is the call.TranscriptSink.
func (s *Sink) Handle(t call.Transcript) {
	if s.state == UtteranceDropped {
		return
	}

	ctx := context.Background()
	id := s.UtteranceID()
	ts := s.now().UnixMilli()

	if t.EOU {
		final := models.TranscriptFinal{
			EventType:      models.EventTypeFinal,
			CallID:         s.callID,
			UtteranceID:    id,
			Timestamp:      ts,
			Text:           t.Text,
			NormalizedText: t.NormalizedText,
		}
		for _, h := range t.Hypotheses {
			final.Hypotheses = append(final.Hypotheses, models.Hypothesis{Text: h.Text, NormalizedText: h.NormalizedText})
		}
		if len(t.Hypotheses) > 0 {
			final.AudioOffsetMs = t.Hypotheses[0].Start.Milliseconds()
			final.AudioEndMs = t.Hypotheses[0].End.Milliseconds()
		}
		if t.Emotions != nil {
			final.Emotions = &models.Emotions{
				Positive: t.Emotions.Positive,
				Neutral:  t.Emotions.Neutral,
				Negative: t.Emotions.Negative,
			}
		}
		if err := s.publisher.PublishFinal(ctx, s.callID, final); err != nil {
			s.log.Warn().Err(err).Str("utteranceId", id).Msg("final transcript not published")
		} else {
			s.published++
		}
		s.seq++
		s.state = UtteranceEmpty
	} else {
		partial := models.TranscriptPartial{
			EventType:      models.EventTypePartial,
			CallID:         s.callID,
			UtteranceID:    id,
			Timestamp:      ts,
			Text:           t.Text,
			NormalizedText: t.NormalizedText,
		}
		if err := s.publisher.PublishPartial(ctx, s.callID, partial); err != nil {
			s.log.Warn().Err(err).Str("utteranceId", id).Msg("partial transcript not published")
		} else {
			s.published++
		}
		s.state = UtteranceOpen
	}

	if s.next != nil {
		s.next(t)
	}
}

// Close ends the sink once its call is done. An utterance left open is
// dropped: no final is invented for it. It reports whether one was dropped.
func (s *Sink) Close() bool {
	if s.state != UtteranceOpen {
		return false
	}
	s.state = UtteranceDropped
	s.log.Info().
		Str("utteranceId", s.UtteranceID()).
		Msg("utterance dropped without final transcript")
	return true
}
