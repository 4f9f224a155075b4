package smartspeechtest

import (
	"context"
	"errors"
	"io"

	"smartspeech-client/internal/call"
	"smartspeech-client/internal/smartspeech"
)

// Utterance is one scripted recognition result with its progressive
// partials.
type Utterance struct {
	Partials   []string
	Final      string
	Normalized string
}

// DefaultUtterances is used by Scripted when no utterances are given.
var DefaultUtterances = []Utterance{
	{
		Partials:   []string{"I want", "I want to", "I want to cancel"},
		Final:      "I want to cancel my subscription",
		Normalized: "I want to cancel my subscription.",
	},
	{
		Partials:   []string{"Yes", "Yes please"},
		Final:      "Yes please go ahead",
		Normalized: "Yes, please go ahead.",
	},
	{
		Partials:   []string{"Thank you"},
		Final:      "Thank you very much",
		Normalized: "Thank you very much.",
	},
}

// Scripted returns a Recognize handler that plays back utterances: each
// audio message yields the next partial of the current utterance, the
// message after the last partial yields its final. An utterance still open
// at half-close is finalized before the stream ends. Audio beyond the last
// utterance is accepted silently.
func Scripted(utterances ...Utterance) RecognizeFunc {
	if len(utterances) == 0 {
		utterances = DefaultUtterances
	}
	return func(_ context.Context, recv func() (*smartspeech.RecognitionOptions, []byte, error), send func(call.Transcript) error) error {
		var (
			current int
			partial int
			open    bool
		)
		for {
			opts, audio, err := recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			if opts != nil || len(audio) == 0 || current >= len(utterances) {
				continue
			}

			u := utterances[current]
			if partial < len(u.Partials) {
				open = true
				if err := send(call.Transcript{Text: u.Partials[partial]}); err != nil {
					return err
				}
				partial++
				continue
			}
			if err := send(finalOf(u)); err != nil {
				return err
			}
			current, partial, open = current+1, 0, false
		}

		if open {
			return send(finalOf(utterances[current]))
		}
		return nil
	}
}

func finalOf(u Utterance) call.Transcript {
	return call.Transcript{EOU: true, Text: u.Final, NormalizedText: u.Normalized}
}
