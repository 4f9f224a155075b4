// Package audiofile detects a WAV container around PCM audio so that only
// the samples are streamed.
package audiofile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// PCMFormat is the WAVE_FORMAT_PCM tag of the fmt chunk.
const PCMFormat = 1

var (
	// ErrNotPCM is returned for WAV files that do not hold integer PCM.
	ErrNotPCM = errors.New("only PCM WAV files are supported")
	// ErrMalformed is returned when the RIFF structure cannot be walked.
	ErrMalformed = errors.New("malformed WAV file")
)

// Format describes the audio found in a WAV header.
type Format struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	// DataSize is the declared size of the data chunk.
	DataSize uint32
}

// Source yields the audio samples of a file.
type Source struct {
	r io.Reader
	// Format is nil for raw input without a RIFF header.
	Format *Format
}

// Read implements io.Reader over the samples only.
func (s *Source) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

// Open inspects the start of r. A RIFF/WAVE stream has its header consumed
// and is limited to the data chunk; anything else is passed through as raw
// audio.
func Open(r io.Reader) (*Source, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(12)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if len(magic) < 12 || !bytes.Equal(magic[0:4], []byte("RIFF")) || !bytes.Equal(magic[8:12], []byte("WAVE")) {
		return &Source{r: br}, nil
	}
	if _, err := br.Discard(12); err != nil {
		return nil, err
	}

	var format *Format
	for {
		id, size, err := readChunkHeader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}

		switch id {
		case "fmt ":
			if format, err = parseFmtChunk(br, size); err != nil {
				return nil, err
			}
		case "data":
			if format == nil {
				return nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrMalformed)
			}
			format.DataSize = size
			return &Source{r: io.LimitReader(br, int64(size)), Format: format}, nil
		default:
			if err := skip(br, size); err != nil {
				return nil, fmt.Errorf("%w: chunk %q: %w", ErrMalformed, id, err)
			}
		}
	}
}

func readChunkHeader(r io.Reader) (string, uint32, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return "", 0, err
	}
	return string(hdr[0:4]), binary.LittleEndian.Uint32(hdr[4:8]), nil
}

func parseFmtChunk(r io.Reader, size uint32) (*Format, error) {
	if size < 16 {
		return nil, fmt.Errorf("%w: fmt chunk too small (%d bytes)", ErrMalformed, size)
	}
	var body [16]byte
	if _, err := io.ReadFull(r, body[:]); err != nil {
		return nil, fmt.Errorf("%w: fmt chunk: %w", ErrMalformed, err)
	}
	if err := skip(r, size-16); err != nil {
		return nil, fmt.Errorf("%w: fmt chunk: %w", ErrMalformed, err)
	}

	f := &Format{
		AudioFormat:   binary.LittleEndian.Uint16(body[0:2]),
		Channels:      binary.LittleEndian.Uint16(body[2:4]),
		SampleRate:    binary.LittleEndian.Uint32(body[4:8]),
		BitsPerSample: binary.LittleEndian.Uint16(body[14:16]),
	}
	if f.AudioFormat != PCMFormat {
		return nil, fmt.Errorf("%w: format tag %d", ErrNotPCM, f.AudioFormat)
	}
	return f, nil
}

// skip discards a chunk body and its pad byte.
func skip(r io.Reader, size uint32) error {
	n := int64(size) + int64(size&1)
	_, err := io.CopyN(io.Discard, r, n)
	return err
}
