package google

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/durationpb"

	"smartspeech-client/internal/call"
	"smartspeech-client/internal/dispatch"
	"smartspeech-client/internal/observability/metrics"
	"smartspeech-client/internal/smartspeech"
	"smartspeech-client/internal/transport"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.LanguageCode)
	}
	if cfg.SampleRateHz != 8000 {
		t.Errorf("expected default sample rate 8000, got %d", cfg.SampleRateHz)
	}
	if cfg.InterimResults != true {
		t.Errorf("expected default interim results true, got %v", cfg.InterimResults)
	}
	if cfg.AudioEncoding != "LINEAR16" {
		t.Errorf("expected default encoding 'LINEAR16', got %s", cfg.AudioEncoding)
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"WEBM_OPUS", speechpb.RecognitionConfig_WEBM_OPUS},
		{"ENCODING_UNSPECIFIED", speechpb.RecognitionConfig_LINEAR16}, // fallback
		{"linear16", speechpb.RecognitionConfig_LINEAR16},             // lowercase -> fallback
		{"invalid", speechpb.RecognitionConfig_LINEAR16},              // fallback
		{"", speechpb.RecognitionConfig_LINEAR16},                     // fallback
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFromRecognitionOptions(t *testing.T) {
	opts := smartspeech.DefaultRecognitionOptions()
	opts.AudioEncoding = smartspeech.EncodingOpus
	opts.SampleRate = 48000
	opts.HypothesesCount = 3
	opts.EnablePartialResults = false
	opts.Hints.Words = []string{"sber"}

	cfg := FromRecognitionOptions(opts, "ru-RU")
	if cfg.LanguageCode != "ru-RU" || cfg.SampleRateHz != 48000 || cfg.MaxAlternatives != 3 {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.AudioEncoding != "OGG_OPUS" || cfg.InterimResults {
		t.Errorf("config = %+v", cfg)
	}

	sc := cfg.streamingConfig()
	if got := sc.GetConfig().GetSpeechContexts(); len(got) != 1 || got[0].GetPhrases()[0] != "sber" {
		t.Errorf("speech contexts = %v", got)
	}
	if sc.GetConfig().GetModel() != "" {
		t.Errorf("model = %q, want service default", sc.GetConfig().GetModel())
	}
}

func TestProtocol_Decode(t *testing.T) {
	p := NewProtocol(DefaultConfig())

	tests := []struct {
		name     string
		resp     *speechpb.StreamingRecognizeResponse
		wantOK   bool
		wantEOU  bool
		wantText string
		wantHyps int
	}{
		{
			name: "interim",
			resp: &speechpb.StreamingRecognizeResponse{Results: []*speechpb.StreamingRecognitionResult{{
				Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "hel"}},
			}}},
			wantOK: true, wantText: "hel", wantHyps: 1,
		},
		{
			name: "final with alternatives",
			resp: &speechpb.StreamingRecognizeResponse{Results: []*speechpb.StreamingRecognitionResult{{
				IsFinal:       true,
				ResultEndTime: durationpb.New(2 * time.Second),
				Alternatives: []*speechpb.SpeechRecognitionAlternative{
					{Transcript: "hello"}, {Transcript: "yellow"},
				},
			}}},
			wantOK: true, wantEOU: true, wantText: "hello", wantHyps: 2,
		},
		{
			name: "result without alternatives skipped",
			resp: &speechpb.StreamingRecognizeResponse{Results: []*speechpb.StreamingRecognitionResult{
				{},
				{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "second"}}},
			}},
			wantOK: true, wantText: "second", wantHyps: 1,
		},
		{
			name: "end of single utterance",
			resp: &speechpb.StreamingRecognizeResponse{
				SpeechEventType: speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE,
			},
			wantOK: true, wantEOU: true,
		},
		{
			name:   "empty",
			resp:   &speechpb.StreamingRecognizeResponse{},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.Decode(tt.resp)
			if ok != tt.wantOK {
				t.Fatalf("Decode() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.EOU != tt.wantEOU || got.Text != tt.wantText || len(got.Hypotheses) != tt.wantHyps {
				t.Errorf("Decode() = %+v", got)
			}
		})
	}

	if _, ok := p.Decode("not a response"); ok {
		t.Error("Decode() accepted a foreign message")
	}
}

type fakeSpeechServer struct {
	speechpb.UnimplementedSpeechServer

	mu     sync.Mutex
	config *speechpb.StreamingRecognitionConfig
	audio  bytes.Buffer
}

func (s *fakeSpeechServer) StreamingRecognize(stream speechpb.Speech_StreamingRecognizeServer) error {
	for {
		req, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		s.mu.Lock()
		if cfg := req.GetStreamingConfig(); cfg != nil {
			s.config = cfg
		} else {
			s.audio.Write(req.GetAudioContent())
		}
		s.mu.Unlock()
	}

	if err := stream.Send(&speechpb.StreamingRecognizeResponse{Results: []*speechpb.StreamingRecognitionResult{{
		Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "hel"}},
	}}}); err != nil {
		return err
	}
	return stream.Send(&speechpb.StreamingRecognizeResponse{Results: []*speechpb.StreamingRecognitionResult{{
		IsFinal:      true,
		Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "hello", Confidence: 0.9}},
	}}})
}

func TestBackend_StreamingRecognize(t *testing.T) {
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	fake := &fakeSpeechServer{}
	speechpb.RegisterSpeechServer(srv, fake)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient() error = %v", err)
	}

	ctx := context.Background()
	backend, err := New(ctx, option.WithGRPCConn(conn))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	q := dispatch.NewQueue(0)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	d := dispatch.Start(q, m)
	t.Cleanup(d.Shutdown)

	var (
		mu  sync.Mutex
		got []call.Transcript
	)
	protocol := NewProtocol(DefaultConfig())
	c := call.NewDuplexCall(
		transport.Bind(ctx, q, backend.Open(), protocol.NewResponse),
		protocol,
		func(tr call.Transcript) {
			mu.Lock()
			got = append(got, tr)
			mu.Unlock()
		},
		call.Options{Kind: "google", Metrics: m},
	)
	c.Start()
	if err := c.Feed(make([]byte, 640)); err != nil {
		t.Fatal(err)
	}
	c.SignalNoMoreInput()

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("call did not finish")
	}
	if err := c.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0].EOU || !got[1].EOU || got[1].Text != "hello" {
		t.Fatalf("transcripts = %+v", got)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.config.GetConfig().GetSampleRateHertz() != 8000 || !fake.config.GetInterimResults() {
		t.Errorf("server config = %v", fake.config)
	}
	if fake.audio.Len() != 640 {
		t.Errorf("server received %d bytes, want 640", fake.audio.Len())
	}
}
