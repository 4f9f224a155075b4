package smartspeech

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"smartspeech-client/internal/call"
)

var (
	ErrUnknownEncoding = errors.New("unknown audio encoding")
	ErrInvalidOptions  = errors.New("invalid options")
)

// Encoding is the audio format of a recognition stream.
type Encoding string

const (
	EncodingPCM16LE Encoding = "pcm16le"
	EncodingOpus    Encoding = "opus"
)

// ParseEncoding accepts "pcm16le" (or "pcm") and "opus", case-insensitively.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pcm", "pcm16le", "pcm_s16le":
		return EncodingPCM16LE, nil
	case "opus":
		return EncodingOpus, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEncoding, s)
	}
}

func encodingFromWire(n protoreflect.EnumNumber) Encoding {
	switch n {
	case 1:
		return EncodingPCM16LE
	case 2:
		return EncodingOpus
	default:
		return ""
	}
}

func (e Encoding) wire() protoreflect.EnumNumber {
	switch e {
	case EncodingPCM16LE:
		return 1
	case EncodingOpus:
		return 2
	default:
		return 0
	}
}

// Hints bias recognition towards expected words.
type Hints struct {
	Words         []string
	EnableLetters bool
	EOUTimeout    time.Duration
}

// RecognitionOptions configures a recognition stream.
type RecognitionOptions struct {
	AudioEncoding         Encoding
	SampleRate            int
	Model                 string
	HypothesesCount       int
	EnablePartialResults  bool
	EnableMultiUtterance  bool
	EnableProfanityFilter bool
	NoSpeechTimeout       time.Duration
	MaxSpeechTimeout      time.Duration
	Hints                 Hints
}

// DefaultRecognitionOptions returns the options the recognition CLI starts from.
func DefaultRecognitionOptions() RecognitionOptions {
	return RecognitionOptions{
		AudioEncoding:        EncodingPCM16LE,
		SampleRate:           8000,
		Model:                "general",
		HypothesesCount:      1,
		EnablePartialResults: true,
		NoSpeechTimeout:      7 * time.Second,
		MaxSpeechTimeout:     20 * time.Second,
	}
}

// Validate checks the options before a stream is opened.
func (o RecognitionOptions) Validate() error {
	if o.AudioEncoding.wire() == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownEncoding, o.AudioEncoding)
	}
	if o.AudioEncoding == EncodingPCM16LE && o.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive for pcm16le, got %d", ErrInvalidOptions, o.SampleRate)
	}
	if o.HypothesesCount < 1 {
		return fmt.Errorf("%w: hypotheses count must be at least 1, got %d", ErrInvalidOptions, o.HypothesesCount)
	}
	if o.NoSpeechTimeout < 0 || o.MaxSpeechTimeout < 0 || o.Hints.EOUTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidOptions)
	}
	return nil
}

func (o RecognitionOptions) message() *dynamicpb.Message {
	m := newMessage(recognitionOptionsDesc)
	set(m, "audio_encoding", protoreflect.ValueOfEnum(o.AudioEncoding.wire()))
	set(m, "sample_rate", protoreflect.ValueOfInt32(int32(o.SampleRate)))
	set(m, "model", protoreflect.ValueOfString(o.Model))
	set(m, "hypotheses_count", protoreflect.ValueOfInt32(int32(o.HypothesesCount)))
	set(m, "enable_profanity_filter", protoreflect.ValueOfBool(o.EnableProfanityFilter))
	set(m, "enable_multi_utterance", protoreflect.ValueOfBool(o.EnableMultiUtterance))
	set(m, "enable_partial_results", protoreflect.ValueOfBool(o.EnablePartialResults))
	setDuration(m, "no_speech_timeout", o.NoSpeechTimeout)
	setDuration(m, "max_speech_timeout", o.MaxSpeechTimeout)

	if len(o.Hints.Words) > 0 || o.Hints.EnableLetters || o.Hints.EOUTimeout > 0 {
		hints := m.Mutable(fieldOf(m, "hints")).Message()
		words := hints.Mutable(fieldOf(hints, "words")).List()
		for _, w := range o.Hints.Words {
			words.Append(protoreflect.ValueOfString(w))
		}
		set(hints, "enable_letters", protoreflect.ValueOfBool(o.Hints.EnableLetters))
		if o.Hints.EOUTimeout > 0 {
			setDuration(hints, "eou_timeout", o.Hints.EOUTimeout)
		}
	}
	return m
}

// Recognition is the duplex protocol of the Recognize stream.
type Recognition struct {
	options *dynamicpb.Message
}

// NewRecognition validates opts and prepares the options message.
func NewRecognition(opts RecognitionOptions) (*Recognition, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Recognition{options: opts.message()}, nil
}

// Options returns the first request of the stream.
func (r *Recognition) Options() any {
	req := newMessage(recognitionRequestDesc)
	set(req, "options", protoreflect.ValueOfMessage(r.options))
	return req
}

// Audio wraps a chunk of audio in a request.
func (r *Recognition) Audio(chunk []byte) any {
	req := newMessage(recognitionRequestDesc)
	set(req, "audio_chunk", protoreflect.ValueOfBytes(chunk))
	return req
}

// NewResponse allocates a RecognitionResponse.
func (r *Recognition) NewResponse() any {
	return newMessage(recognitionResponseDesc)
}

// Decode converts a RecognitionResponse. Responses without hypotheses are
// only delivered when they mark the end of an utterance.
func (r *Recognition) Decode(resp any) (call.Transcript, bool) {
	m, err := reflectAs(resp, recognitionResponseDesc)
	if err != nil {
		return call.Transcript{}, false
	}
	return DecodeTranscript(m)
}

// DecodeTranscript converts a reflected RecognitionResponse.
func DecodeTranscript(m protoreflect.Message) (call.Transcript, bool) {
	t := call.Transcript{EOU: get(m, "eou").Bool()}

	results := get(m, "results").List()
	for i := 0; i < results.Len(); i++ {
		h := results.Get(i).Message()
		t.Hypotheses = append(t.Hypotheses, call.Hypothesis{
			Text:           get(h, "text").String(),
			NormalizedText: get(h, "normalized_text").String(),
			Start:          getDuration(h, "start"),
			End:            getDuration(h, "end"),
		})
	}
	if len(t.Hypotheses) == 0 && !t.EOU {
		return t, false
	}
	if len(t.Hypotheses) > 0 {
		t.Text = t.Hypotheses[0].Text
		t.NormalizedText = t.Hypotheses[0].NormalizedText
	}

	if t.EOU && has(m, "emotions_result") {
		e := get(m, "emotions_result").Message()
		t.Emotions = &call.Emotions{
			Positive: float32(get(e, "positive").Float()),
			Neutral:  float32(get(e, "neutral").Float()),
			Negative: float32(get(e, "negative").Float()),
		}
	}
	return t, true
}

// EncodeTranscript builds a RecognitionResponse; the inverse of Decode.
func EncodeTranscript(t call.Transcript) proto.Message {
	m := newMessage(recognitionResponseDesc)
	set(m, "eou", protoreflect.ValueOfBool(t.EOU))

	hyps := t.Hypotheses
	if len(hyps) == 0 && (t.Text != "" || t.NormalizedText != "") {
		hyps = []call.Hypothesis{{Text: t.Text, NormalizedText: t.NormalizedText}}
	}
	results := m.Mutable(fieldOf(m, "results")).List()
	for _, h := range hyps {
		hm := results.NewElement().Message()
		set(hm, "text", protoreflect.ValueOfString(h.Text))
		set(hm, "normalized_text", protoreflect.ValueOfString(h.NormalizedText))
		if h.Start > 0 {
			setDuration(hm, "start", h.Start)
		}
		if h.End > 0 {
			setDuration(hm, "end", h.End)
		}
		results.Append(protoreflect.ValueOfMessage(hm))
	}

	if t.Emotions != nil {
		em := m.Mutable(fieldOf(m, "emotions_result")).Message()
		set(em, "positive", protoreflect.ValueOfFloat32(t.Emotions.Positive))
		set(em, "neutral", protoreflect.ValueOfFloat32(t.Emotions.Neutral))
		set(em, "negative", protoreflect.ValueOfFloat32(t.Emotions.Negative))
	}
	return m
}

// ParseRecognitionRequest reports what a RecognitionRequest carries: the
// stream options, or a chunk of audio when opts is nil.
func ParseRecognitionRequest(msg proto.Message) (opts *RecognitionOptions, audio []byte, err error) {
	m, err := reflectAs(msg, recognitionRequestDesc)
	if err != nil {
		return nil, nil, err
	}
	if !has(m, "options") {
		return nil, get(m, "audio_chunk").Bytes(), nil
	}

	om := get(m, "options").Message()
	o := RecognitionOptions{
		AudioEncoding:         encodingFromWire(get(om, "audio_encoding").Enum()),
		SampleRate:            int(get(om, "sample_rate").Int()),
		Model:                 get(om, "model").String(),
		HypothesesCount:       int(get(om, "hypotheses_count").Int()),
		EnableProfanityFilter: get(om, "enable_profanity_filter").Bool(),
		EnableMultiUtterance:  get(om, "enable_multi_utterance").Bool(),
		EnablePartialResults:  get(om, "enable_partial_results").Bool(),
		NoSpeechTimeout:       getDuration(om, "no_speech_timeout"),
		MaxSpeechTimeout:      getDuration(om, "max_speech_timeout"),
	}
	if has(om, "hints") {
		hm := get(om, "hints").Message()
		words := get(hm, "words").List()
		for i := 0; i < words.Len(); i++ {
			o.Hints.Words = append(o.Hints.Words, words.Get(i).String())
		}
		o.Hints.EnableLetters = get(hm, "enable_letters").Bool()
		o.Hints.EOUTimeout = getDuration(hm, "eou_timeout")
	}
	return &o, nil, nil
}
