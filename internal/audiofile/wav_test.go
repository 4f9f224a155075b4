package audiofile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

type chunk struct {
	id   string
	body []byte
}

func riff(chunks ...chunk) []byte {
	var body bytes.Buffer
	body.WriteString("WAVE")
	for _, c := range chunks {
		body.WriteString(c.id)
		_ = binary.Write(&body, binary.LittleEndian, uint32(len(c.body)))
		body.Write(c.body)
		if len(c.body)%2 == 1 {
			body.WriteByte(0)
		}
	}
	var out bytes.Buffer
	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func fmtChunk(format, channels uint16, rate uint32, bits uint16, extra int) chunk {
	var b bytes.Buffer
	_ = binary.Write(&b, binary.LittleEndian, format)
	_ = binary.Write(&b, binary.LittleEndian, channels)
	_ = binary.Write(&b, binary.LittleEndian, rate)
	_ = binary.Write(&b, binary.LittleEndian, rate*uint32(channels)*uint32(bits/8))
	_ = binary.Write(&b, binary.LittleEndian, channels*(bits/8))
	_ = binary.Write(&b, binary.LittleEndian, bits)
	b.Write(make([]byte, extra))
	return chunk{id: "fmt ", body: b.Bytes()}
}

func TestOpen_WAV(t *testing.T) {
	samples := []byte{1, 2, 3, 4, 5, 6}
	tests := []struct {
		name   string
		chunks []chunk
	}{
		{"canonical", []chunk{fmtChunk(PCMFormat, 1, 8000, 16, 0), {"data", samples}}},
		{"extended fmt", []chunk{fmtChunk(PCMFormat, 1, 8000, 16, 2), {"data", samples}}},
		{"list chunk before data", []chunk{fmtChunk(PCMFormat, 1, 8000, 16, 0), {"LIST", []byte("odd")}, {"data", samples}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Open(bytes.NewReader(append(riff(tt.chunks...), []byte("trailing")...)))
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if src.Format == nil {
				t.Fatal("expected a WAV format")
			}
			if src.Format.SampleRate != 8000 || src.Format.Channels != 1 || src.Format.BitsPerSample != 16 {
				t.Errorf("format = %+v", src.Format)
			}
			if src.Format.DataSize != uint32(len(samples)) {
				t.Errorf("data size = %d, want %d", src.Format.DataSize, len(samples))
			}
			got, err := io.ReadAll(src)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, samples) {
				t.Errorf("samples = %v, want %v", got, samples)
			}
		})
	}
}

func TestOpen_Raw(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"pcm", []byte("0123456789abcdef")},
		{"shorter than header", []byte("RIFF")},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Open(bytes.NewReader(tt.input))
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if src.Format != nil {
				t.Errorf("format = %+v, want raw", src.Format)
			}
			got, _ := io.ReadAll(src)
			if !bytes.Equal(got, tt.input) {
				t.Errorf("read %q, want %q", got, tt.input)
			}
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{"not pcm", riff(fmtChunk(3, 1, 8000, 32, 0), chunk{"data", []byte{0, 0, 0, 0}}), ErrNotPCM},
		{"data before fmt", riff(chunk{"data", []byte{0, 0}}), ErrMalformed},
		{"no data chunk", riff(fmtChunk(PCMFormat, 1, 8000, 16, 0)), ErrMalformed},
		{"short fmt", riff(chunk{"fmt ", []byte{1, 0}}), ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(bytes.NewReader(tt.input))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Open() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
