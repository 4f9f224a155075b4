// Package session owns the connection to the service, the shared completion
// queue and the dispatcher goroutine, and creates calls on top of them.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"smartspeech-client/internal/call"
	"smartspeech-client/internal/dispatch"
	"smartspeech-client/internal/observability"
	"smartspeech-client/internal/observability/logging"
	"smartspeech-client/internal/observability/metrics"
	"smartspeech-client/internal/smartspeech"
	"smartspeech-client/internal/transport"
)

// ErrShutdown is returned when a call is requested from a session that was
// shut down.
var ErrShutdown = errors.New("session is shut down")

// Option customizes a Session.
type Option func(*options)

type options struct {
	dialOptions []grpc.DialOption
	metrics     *metrics.Metrics
	queueSize   int
}

// WithDialOptions appends extra dial options, applied after the defaults.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) {
		o.dialOptions = append(o.dialOptions, opts...)
	}
}

// WithMetrics records session and call metrics into m instead of the
// default registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithQueueSize sets the completion queue buffer.
func WithQueueSize(n int) Option {
	return func(o *options) {
		o.queueSize = n
	}
}

// Session is one channel, one completion queue and one dispatcher shared by
// every call created from it.
type Session struct {
	cfg        Config
	conn       *grpc.ClientConn
	queue      *dispatch.Queue
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Metrics
	log        zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// New dials the service and starts the dispatcher.
func New(cfg Config, opts ...Option) (*Session, error) {
	o := options{metrics: metrics.DefaultMetrics}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialOpts, err := credentialOptions(cfg)
	if err != nil {
		return nil, err
	}
	dialOpts = append(dialOpts,
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(observability.UnaryClientInterceptor(o.metrics)),
		grpc.WithChainStreamInterceptor(observability.StreamClientInterceptor(o.metrics)),
	)
	dialOpts = append(dialOpts, o.dialOptions...)

	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Address, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	queue := dispatch.NewQueue(o.queueSize)
	s := &Session{
		cfg:        cfg,
		conn:       conn,
		queue:      queue,
		dispatcher: dispatch.Start(queue, o.metrics),
		metrics:    o.metrics,
		log:        logging.WithSession(cfg.Address),
		ctx:        ctx,
		cancel:     cancel,
	}

	s.log.Info().
		Bool("insecure", cfg.Insecure).
		Bool("customRootCertificate", len(cfg.RootCertificate) > 0).
		Msg("session created")
	return s, nil
}

// Conn returns the channel for unary calls.
func (s *Session) Conn() *grpc.ClientConn {
	return s.conn
}

// Metrics returns the metrics the session records into.
func (s *Session) Metrics() *metrics.Metrics {
	return s.metrics
}

// StartRecognition starts a streaming recognition call. Audio is fed
// through the returned call; transcripts arrive on sink.
func (s *Session) StartRecognition(opts smartspeech.RecognitionOptions, sink call.TranscriptSink, callOpts call.Options) (*call.DuplexCall, error) {
	protocol, err := smartspeech.NewRecognition(opts)
	if err != nil {
		return nil, err
	}
	if callOpts.Kind == "" {
		callOpts.Kind = "recognize"
	}
	return s.StartDuplex(smartspeech.OpenRecognize(s.conn), protocol, sink, callOpts)
}

// StartSynthesis starts a synthesis call. Audio chunks arrive on sink,
// followed by one chunk with End set.
func (s *Session) StartSynthesis(opts smartspeech.SynthesisOptions, sink call.ChunkSink, callOpts call.Options) (*call.ReadCall, error) {
	req, err := smartspeech.NewSynthesisRequest(opts)
	if err != nil {
		return nil, err
	}
	if callOpts.Kind == "" {
		callOpts.Kind = "synthesize"
	}
	return s.StartRead(smartspeech.OpenSynthesize(s.conn, req), smartspeech.Synthesis{}, sink, callOpts)
}

// StartDownload streams the result file of an asynchronous task.
func (s *Session) StartDownload(responseFileID string, sink call.ChunkSink, callOpts call.Options) (*call.ReadCall, error) {
	req, err := smartspeech.NewDownloadRequest(responseFileID)
	if err != nil {
		return nil, err
	}
	if callOpts.Kind == "" {
		callOpts.Kind = "download"
	}
	return s.StartRead(smartspeech.OpenDownload(s.conn, req), smartspeech.Download{}, sink, callOpts)
}

// StartDuplex starts a duplex call over any stream open can produce. The
// stream does not need to use the session channel, only its dispatcher.
func (s *Session) StartDuplex(open transport.OpenFunc, protocol call.DuplexProtocol, sink call.TranscriptSink, callOpts call.Options) (*call.DuplexCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrShutdown
	}

	ctx, callOpts := s.prepare(callOpts)
	c := call.NewDuplexCall(transport.Bind(ctx, s.queue, open, protocol.NewResponse), protocol, sink, callOpts)
	c.Start()
	return c, nil
}

// StartRead starts a streamed-read call over any stream open can produce.
func (s *Session) StartRead(open transport.OpenFunc, protocol call.ReadProtocol, sink call.ChunkSink, callOpts call.Options) (*call.ReadCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrShutdown
	}

	ctx, callOpts := s.prepare(callOpts)
	c := call.NewReadCall(transport.Bind(ctx, s.queue, open, protocol.NewResponse), protocol, sink, callOpts)
	c.Start()
	return c, nil
}

// prepare fills the call defaults owned by the session and derives the
// stream context carrying the call id as request id.
func (s *Session) prepare(callOpts call.Options) (context.Context, call.Options) {
	if callOpts.ID == "" {
		callOpts.ID = uuid.NewString()
	}
	if callOpts.Metrics == nil {
		callOpts.Metrics = s.metrics
	}
	if callOpts.Context == nil {
		callOpts.Context = s.ctx
	}
	return observability.WithRequestID(s.ctx, callOpts.ID), callOpts
}

// Shutdown stops the queue, joins the dispatcher, then releases the
// channel. Calls still in flight receive no further events. Idempotent.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.dispatcher.Shutdown()
	s.cancel()
	err := s.conn.Close()

	s.log.Info().Msg("session shut down")
	return err
}
