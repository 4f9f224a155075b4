// Package google drives Google Cloud Speech-to-Text StreamingRecognize
// through the same duplex call as SmartSpeech recognition.
package google

import (
	"context"
	"fmt"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"smartspeech-client/internal/call"
	"smartspeech-client/internal/transport"
)

// Backend owns the Google Speech client.
type Backend struct {
	client *speech.Client
}

// New creates a Google Speech client. Without options it authenticates
// with application default credentials (GOOGLE_APPLICATION_CREDENTIALS).
func New(ctx context.Context, opts ...option.ClientOption) (*Backend, error) {
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google speech client: %w", err)
	}
	return &Backend{client: c}, nil
}

// Open returns the opener of a StreamingRecognize stream.
func (b *Backend) Open() transport.OpenFunc {
	return func(ctx context.Context) (transport.Stream, error) {
		stream, err := b.client.StreamingRecognize(ctx)
		if err != nil {
			return nil, err
		}
		return stream, nil
	}
}

// Close releases the client connection.
func (b *Backend) Close() error {
	return b.client.Close()
}

// Protocol is the duplex protocol of StreamingRecognize.
type Protocol struct {
	config *speechpb.StreamingRecognitionConfig
}

// NewProtocol prepares the streaming configuration.
func NewProtocol(cfg Config) *Protocol {
	return &Protocol{config: cfg.streamingConfig()}
}

// Options returns the streaming config request.
func (p *Protocol) Options() any {
	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: p.config,
		},
	}
}

// Audio wraps a chunk of audio in a request.
func (p *Protocol) Audio(chunk []byte) any {
	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: chunk,
		},
	}
}

// NewResponse allocates a StreamingRecognizeResponse.
func (p *Protocol) NewResponse() any {
	return &speechpb.StreamingRecognizeResponse{}
}

// Decode converts the first result of a response. A final result ends the
// utterance; so does an end-of-single-utterance event without results.
func (p *Protocol) Decode(resp any) (call.Transcript, bool) {
	r, ok := resp.(*speechpb.StreamingRecognizeResponse)
	if !ok {
		return call.Transcript{}, false
	}

	for _, res := range r.GetResults() {
		if len(res.GetAlternatives()) == 0 {
			continue
		}
		t := call.Transcript{EOU: res.GetIsFinal()}
		end := res.GetResultEndTime().AsDuration()
		for _, alt := range res.GetAlternatives() {
			t.Hypotheses = append(t.Hypotheses, call.Hypothesis{
				Text:           alt.GetTranscript(),
				NormalizedText: alt.GetTranscript(),
				End:            end,
			})
		}
		t.Text = t.Hypotheses[0].Text
		t.NormalizedText = t.Hypotheses[0].NormalizedText
		return t, true
	}

	if r.GetSpeechEventType() == speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE {
		return call.Transcript{EOU: true}, true
	}
	return call.Transcript{}, false
}
