package app

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"smartspeech-client/internal/call"
	"smartspeech-client/internal/config"
	"smartspeech-client/internal/observability/metrics"
	"smartspeech-client/internal/session"
	"smartspeech-client/internal/smartspeech"
	"smartspeech-client/internal/smartspeech/smartspeechtest"
)

func testConfig() *config.Configuration {
	cfg := config.Default()
	cfg.Service.Address = "passthrough:///bufnet"
	cfg.Service.Insecure = true
	cfg.Recognition.PollInterval = 10 * time.Millisecond
	cfg.Observability.LogLevel = "error"
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Configuration, srv *smartspeechtest.Server) *Application {
	t.Helper()
	srv.Start()
	t.Cleanup(srv.Stop)

	a := New(cfg)
	a.Metrics = metrics.NewMetrics(prometheus.NewRegistry())
	if err := a.Start(session.WithDialOptions(srv.DialOptions()...)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown() })
	return a
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func wavFile(sampleRate uint32, samples []byte) []byte {
	var b bytes.Buffer
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(36+len(samples)))
	b.WriteString("WAVEfmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(16))
	_ = binary.Write(&b, binary.LittleEndian, uint16(1))
	_ = binary.Write(&b, binary.LittleEndian, uint16(1))
	_ = binary.Write(&b, binary.LittleEndian, sampleRate)
	_ = binary.Write(&b, binary.LittleEndian, sampleRate*2)
	_ = binary.Write(&b, binary.LittleEndian, uint16(2))
	_ = binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, uint32(len(samples)))
	b.Write(samples)
	return b.Bytes()
}

// recognizer collects options and audio, then answers with responses once
// the client half-closes.
type recognizer struct {
	mu        sync.Mutex
	opts      *smartspeech.RecognitionOptions
	audio     int
	responses []call.Transcript
}

func (r *recognizer) handle(_ context.Context, recv func() (*smartspeech.RecognitionOptions, []byte, error), send func(call.Transcript) error) error {
	for {
		opts, audio, err := recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		r.mu.Lock()
		if opts != nil {
			r.opts = opts
		}
		r.audio += len(audio)
		r.mu.Unlock()
	}
	for _, t := range r.responses {
		if err := send(t); err != nil {
			return err
		}
	}
	return nil
}

func TestStart_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Service.Insecure = false

	a := New(cfg)
	a.Metrics = metrics.NewMetrics(prometheus.NewRegistry())
	if err := a.Start(); !errors.Is(err, config.ErrMissingToken) {
		t.Fatalf("Start() error = %v, want ErrMissingToken", err)
	}
	if err := a.Shutdown(); err != nil {
		t.Errorf("Shutdown() after failed Start = %v", err)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	a := newTestApp(t, testConfig(), &smartspeechtest.Server{})

	if err := a.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := a.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
	if _, err := a.Session.StartRecognition(smartspeech.DefaultRecognitionOptions(), nil, call.Options{}); !errors.Is(err, session.ErrShutdown) {
		t.Errorf("StartRecognition() after Shutdown = %v, want ErrShutdown", err)
	}
}

func TestRecognize_WAV(t *testing.T) {
	rec := &recognizer{responses: []call.Transcript{
		{Text: "hel"},
		{
			EOU:            true,
			Text:           "hello",
			NormalizedText: "Hello.",
			Hypotheses:     []call.Hypothesis{{Text: "hello", NormalizedText: "Hello."}, {Text: "yellow"}},
		},
	}}
	a := newTestApp(t, testConfig(), &smartspeechtest.Server{Recognize: rec.handle})

	samples := bytes.Repeat([]byte{1, 0}, 2000)
	var out bytes.Buffer
	res, err := a.Recognize(testContext(t), bytes.NewReader(wavFile(16000, samples)), &out, RecognizeOptions{})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}

	if res.BytesFed != int64(len(samples)) || res.Transcripts != 2 || res.Dropped {
		t.Errorf("result = %+v", res)
	}
	want := "partial: hel\nfinal: hello\n  normalized: Hello.\n  alt 1: yellow\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.opts == nil || rec.opts.SampleRate != 16000 || rec.opts.AudioEncoding != smartspeech.EncodingPCM16LE {
		t.Errorf("server options = %+v", rec.opts)
	}
	if rec.audio != len(samples) {
		t.Errorf("server received %d bytes, want %d", rec.audio, len(samples))
	}

	if got := testutil.ToFloat64(a.Metrics.CallsFinished.WithLabelValues("recognize", "OK")); got != 1 {
		t.Errorf("calls_finished_total{recognize,OK} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(a.Metrics.KafkaPublishTotal.WithLabelValues("speech.transcript.final", "final")); got != 1 {
		t.Errorf("kafka_publish_total{final} = %v, want 1", got)
	}
}

func TestRecognize_UnfinishedUtterance(t *testing.T) {
	rec := &recognizer{responses: []call.Transcript{{Text: "cut"}}}
	a := newTestApp(t, testConfig(), &smartspeechtest.Server{Recognize: rec.handle})

	var out bytes.Buffer
	res, err := a.Recognize(testContext(t), bytes.NewReader(make([]byte, 3200)), &out, RecognizeOptions{})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if !res.Dropped {
		t.Error("expected the open utterance to be dropped")
	}
	if res.BytesFed != 3200 {
		t.Errorf("BytesFed = %d, want 3200", res.BytesFed)
	}
}

func TestRecognize_Scripted(t *testing.T) {
	srv := &smartspeechtest.Server{Recognize: smartspeechtest.Scripted(
		smartspeechtest.Utterance{Partials: []string{"a", "ab"}, Final: "abc", Normalized: "Abc."},
		smartspeechtest.Utterance{Partials: []string{"x"}, Final: "xy"},
	)}
	a := newTestApp(t, testConfig(), srv)

	// Four chunk-sized messages: two partials, a final, then a partial the
	// half-close finalizes.
	var out bytes.Buffer
	res, err := a.Recognize(testContext(t), bytes.NewReader(make([]byte, 4*1600)), &out, RecognizeOptions{})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}

	want := "partial: a\npartial: ab\nfinal: abc\n  normalized: Abc.\npartial: x\nfinal: xy\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
	if res.Transcripts != 5 || res.Dropped {
		t.Errorf("result = %+v", res)
	}
	if got := testutil.ToFloat64(a.Metrics.KafkaPublishTotal.WithLabelValues("speech.transcript.partial", "partial")); got != 3 {
		t.Errorf("kafka_publish_total{partial} = %v, want 3", got)
	}
}

func TestRecognize_ServerError(t *testing.T) {
	srv := &smartspeechtest.Server{
		Recognize: func(_ context.Context, recv func() (*smartspeech.RecognitionOptions, []byte, error), _ func(call.Transcript) error) error {
			if _, _, err := recv(); err != nil {
				return err
			}
			return status.Error(codes.PermissionDenied, "token expired")
		},
	}
	a := newTestApp(t, testConfig(), srv)

	_, err := a.Recognize(testContext(t), bytes.NewReader(make([]byte, 1600)), io.Discard, RecognizeOptions{})
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("Recognize() error = %v, want PermissionDenied", err)
	}
}

func TestRecognize_GoogleWithoutBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Recognition.Provider = config.ProviderGoogle
	a := newTestApp(t, cfg, &smartspeechtest.Server{})

	_, err := a.Recognize(testContext(t), bytes.NewReader(nil), io.Discard, RecognizeOptions{})
	if !errors.Is(err, ErrNoBackend) {
		t.Fatalf("Recognize() error = %v, want ErrNoBackend", err)
	}
}

func TestSynthesize(t *testing.T) {
	srv := &smartspeechtest.Server{
		Synthesize: func(_ context.Context, opts smartspeech.SynthesisOptions, send func(proto.Message) error) error {
			if err := send(smartspeech.EncodeSynthesisChunk([]byte(opts.Text), 100*time.Millisecond)); err != nil {
				return err
			}
			return send(smartspeech.EncodeSynthesisChunk([]byte(opts.Voice), 150*time.Millisecond))
		},
	}
	a := newTestApp(t, testConfig(), srv)

	var out bytes.Buffer
	res, err := a.Synthesize(testContext(t), "hi ", &out)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if out.String() != "hi May_24000" {
		t.Errorf("output = %q", out.String())
	}
	if res.Chunks != 2 || res.Bytes != int64(out.Len()) || res.Duration != 250*time.Millisecond {
		t.Errorf("result = %+v", res)
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	a := newTestApp(t, testConfig(), &smartspeechtest.Server{})

	if _, err := a.Synthesize(testContext(t), "", io.Discard); !errors.Is(err, smartspeech.ErrInvalidOptions) {
		t.Errorf("Synthesize() error = %v, want ErrInvalidOptions", err)
	}
}

func TestChunkDuration(t *testing.T) {
	tests := []struct {
		n, rate int
		want    time.Duration
	}{
		{1600, 8000, 100 * time.Millisecond},
		{3200, 16000, 100 * time.Millisecond},
		{320, 16000, 10 * time.Millisecond},
		{1600, 0, 0},
	}
	for _, tt := range tests {
		if got := chunkDuration(tt.n, tt.rate); got != tt.want {
			t.Errorf("chunkDuration(%d, %d) = %v, want %v", tt.n, tt.rate, got, tt.want)
		}
	}
}

func TestPrintTranscript_Emotions(t *testing.T) {
	var out strings.Builder
	printTranscript(&out, call.Transcript{
		EOU:      true,
		Text:     "ok",
		Emotions: &call.Emotions{Positive: 0.5, Neutral: 0.25, Negative: 0.25},
	})
	want := "final: ok\n  emotions: positive=0.50 neutral=0.25 negative=0.25\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestPlaybackLimiter(t *testing.T) {
	if playbackLimiter(0, 1600) != nil {
		t.Error("limiter without a sample rate should be nil")
	}
	l := playbackLimiter(8000, 1600)
	if l == nil {
		t.Fatal("limiter is nil")
	}
	if l.Limit() != 16000 || l.Burst() != 1600 {
		t.Errorf("limit = %v burst = %d, want 16000 and 1600", l.Limit(), l.Burst())
	}
}

func TestRecognize_Realtime(t *testing.T) {
	rec := &recognizer{}
	a := newTestApp(t, testConfig(), &smartspeechtest.Server{Recognize: rec.handle})

	// Three 100ms chunks at 8kHz: the first is covered by the burst.
	start := time.Now()
	res, err := a.Recognize(testContext(t), bytes.NewReader(make([]byte, 3*1600)), io.Discard, RecognizeOptions{Realtime: true})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if res.BytesFed != 3*1600 {
		t.Errorf("BytesFed = %d", res.BytesFed)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("realtime feed took %v, want at least 150ms", elapsed)
	}
}

// lockedBuffer lets a test read output while a sink may still write.
type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Len()
}

func TestRecognize_DeadlineStopsOutput(t *testing.T) {
	srv := &smartspeechtest.Server{
		Recognize: func(ctx context.Context, recv func() (*smartspeech.RecognitionOptions, []byte, error), send func(call.Transcript) error) error {
			if _, _, err := recv(); err != nil {
				return err
			}
			for ctx.Err() == nil {
				if err := send(call.Transcript{Text: "again"}); err != nil {
					return err
				}
			}
			return ctx.Err()
		},
	}
	a := newTestApp(t, testConfig(), srv)

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		out := &lockedBuffer{}
		res, err := a.Recognize(ctx, bytes.NewReader(make([]byte, 1600)), out, RecognizeOptions{})
		cancel()
		if !errors.Is(err, call.ErrCallNotDone) {
			t.Fatalf("Recognize() error = %v, want ErrCallNotDone", err)
		}

		written := out.Len()
		time.Sleep(20 * time.Millisecond)
		if out.Len() != written {
			t.Errorf("output grew after Recognize returned: %d -> %d", written, out.Len())
		}
		if res.Transcripts > 0 && written == 0 {
			t.Errorf("counted %d transcripts but wrote nothing", res.Transcripts)
		}
	}
}

func TestRecognize_RealtimeSkippedForOpus(t *testing.T) {
	rec := &recognizer{}
	cfg := testConfig()
	cfg.Recognition.AudioEncoding = "opus"
	a := newTestApp(t, cfg, &smartspeechtest.Server{Recognize: rec.handle})

	// Paced as PCM this would take 200ms.
	start := time.Now()
	res, err := a.Recognize(testContext(t), bytes.NewReader(make([]byte, 3*1600)), io.Discard, RecognizeOptions{Realtime: true})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if res.BytesFed != 3*1600 {
		t.Errorf("BytesFed = %d", res.BytesFed)
	}
	if elapsed := time.Since(start); elapsed >= 150*time.Millisecond {
		t.Errorf("opus feed took %v, want it unpaced", elapsed)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.opts == nil || rec.opts.AudioEncoding != smartspeech.EncodingOpus {
		t.Errorf("server options = %+v", rec.opts)
	}
}

func TestTranscriptPrinter_Stop(t *testing.T) {
	var out strings.Builder
	p := &transcriptPrinter{out: &out}
	p.handle(call.Transcript{Text: "a"})
	if n := p.stop(); n != 1 {
		t.Fatalf("stop() = %d, want 1", n)
	}
	p.handle(call.Transcript{Text: "b"})
	if out.String() != "partial: a\n" {
		t.Errorf("output = %q", out.String())
	}
}
