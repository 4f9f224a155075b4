package call

import "time"

// Hypothesis is one recognition alternative.
type Hypothesis struct {
	Text           string
	NormalizedText string
	Start          time.Duration
	End            time.Duration
}

// Emotions scores the utterance, when the server reports them.
type Emotions struct {
	Positive float32
	Neutral  float32
	Negative float32
}

// Transcript is one decoded recognition response. Text and NormalizedText
// mirror the first hypothesis.
type Transcript struct {
	EOU            bool
	Text           string
	NormalizedText string
	Hypotheses     []Hypothesis
	Emotions       *Emotions
}

// Chunk is one decoded unit of a server stream. The last chunk a ReadCall
// delivers has End set and carries the call error, if any.
type Chunk struct {
	Data     []byte
	Duration time.Duration
	End      bool
	Err      error
}

// TranscriptSink receives transcripts on the dispatcher goroutine; it must
// not block.
type TranscriptSink func(Transcript)

// ChunkSink receives chunks on the dispatcher goroutine; it must not block.
type ChunkSink func(Chunk)

// DuplexProtocol builds and decodes the messages of a duplex recognition
// stream.
type DuplexProtocol interface {
	// Options is the first outbound message of the stream.
	Options() any
	// Audio wraps a chunk of fed bytes.
	Audio(chunk []byte) any
	// NewResponse allocates the message a read fills.
	NewResponse() any
	// Decode turns a filled response into a transcript. false means the
	// response carries nothing to deliver.
	Decode(resp any) (Transcript, bool)
}

// ReadProtocol decodes the messages of a server stream.
type ReadProtocol interface {
	NewResponse() any
	Decode(resp any) Chunk
}
