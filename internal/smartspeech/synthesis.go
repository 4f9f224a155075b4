package smartspeech

import (
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"smartspeech-client/internal/call"
)

// SynthesisEncoding is the audio format produced by synthesis.
type SynthesisEncoding string

const (
	SynthesisPCM16LE SynthesisEncoding = "pcm16le"
	SynthesisOpus    SynthesisEncoding = "opus"
	SynthesisWAV     SynthesisEncoding = "wav"
)

// ParseSynthesisEncoding accepts "pcm16le" (or "pcm"), "opus" and "wav".
func ParseSynthesisEncoding(s string) (SynthesisEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pcm", "pcm16le", "pcm_s16le":
		return SynthesisPCM16LE, nil
	case "opus":
		return SynthesisOpus, nil
	case "wav":
		return SynthesisWAV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEncoding, s)
	}
}

func synthesisEncodingFromWire(n protoreflect.EnumNumber) SynthesisEncoding {
	switch n {
	case 1:
		return SynthesisPCM16LE
	case 2:
		return SynthesisOpus
	case 3:
		return SynthesisWAV
	default:
		return ""
	}
}

func (e SynthesisEncoding) wire() protoreflect.EnumNumber {
	switch e {
	case SynthesisPCM16LE:
		return 1
	case SynthesisOpus:
		return 2
	case SynthesisWAV:
		return 3
	default:
		return 0
	}
}

// ContentType tells the server how to read the text.
type ContentType string

const (
	ContentText ContentType = "text"
	ContentSSML ContentType = "ssml"
)

// ParseContentType accepts "text" and "ssml".
func ParseContentType(s string) (ContentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return ContentText, nil
	case "ssml":
		return ContentSSML, nil
	default:
		return "", fmt.Errorf("%w: unknown content type %q", ErrInvalidOptions, s)
	}
}

// SynthesisOptions configures a synthesis request.
type SynthesisOptions struct {
	Text          string
	Language      string
	Voice         string
	ContentType   ContentType
	AudioEncoding SynthesisEncoding
}

// DefaultSynthesisOptions returns the defaults of the synthesis CLI.
func DefaultSynthesisOptions() SynthesisOptions {
	return SynthesisOptions{
		Language:      "ru-RU",
		Voice:         "May_24000",
		ContentType:   ContentText,
		AudioEncoding: SynthesisWAV,
	}
}

// Validate checks the options before the request is sent.
func (o SynthesisOptions) Validate() error {
	if o.Text == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidOptions)
	}
	if o.AudioEncoding.wire() == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownEncoding, o.AudioEncoding)
	}
	if o.ContentType != ContentText && o.ContentType != ContentSSML {
		return fmt.Errorf("%w: unknown content type %q", ErrInvalidOptions, o.ContentType)
	}
	return nil
}

// NewSynthesisRequest builds the single request of a Synthesize stream.
func NewSynthesisRequest(opts SynthesisOptions) (proto.Message, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	contentType := protoreflect.EnumNumber(0)
	if opts.ContentType == ContentSSML {
		contentType = 1
	}

	m := newMessage(synthesisRequestDesc)
	set(m, "text", protoreflect.ValueOfString(opts.Text))
	set(m, "audio_encoding", protoreflect.ValueOfEnum(opts.AudioEncoding.wire()))
	set(m, "language", protoreflect.ValueOfString(opts.Language))
	set(m, "content_type", protoreflect.ValueOfEnum(contentType))
	set(m, "voice", protoreflect.ValueOfString(opts.Voice))
	return m, nil
}

// Synthesis is the read protocol of the Synthesize stream.
type Synthesis struct{}

// NewResponse allocates a SynthesisResponse.
func (Synthesis) NewResponse() any {
	return newMessage(synthesisResponseDesc)
}

// Decode extracts the audio bytes and the duration they cover.
func (Synthesis) Decode(resp any) call.Chunk {
	m, err := reflectAs(resp, synthesisResponseDesc)
	if err != nil {
		return call.Chunk{}
	}
	return call.Chunk{
		Data:     get(m, "data").Bytes(),
		Duration: getDuration(m, "audio_duration"),
	}
}

// ParseSynthesisRequest decodes a SynthesisRequest.
func ParseSynthesisRequest(msg proto.Message) (SynthesisOptions, error) {
	m, err := reflectAs(msg, synthesisRequestDesc)
	if err != nil {
		return SynthesisOptions{}, err
	}
	contentType := ContentText
	if get(m, "content_type").Enum() == 1 {
		contentType = ContentSSML
	}
	return SynthesisOptions{
		Text:          get(m, "text").String(),
		Language:      get(m, "language").String(),
		Voice:         get(m, "voice").String(),
		ContentType:   contentType,
		AudioEncoding: synthesisEncodingFromWire(get(m, "audio_encoding").Enum()),
	}, nil
}

// EncodeSynthesisChunk builds a SynthesisResponse.
func EncodeSynthesisChunk(data []byte, audioDuration time.Duration) proto.Message {
	m := newMessage(synthesisResponseDesc)
	set(m, "data", protoreflect.ValueOfBytes(data))
	if audioDuration > 0 {
		setDuration(m, "audio_duration", audioDuration)
	}
	return m
}
