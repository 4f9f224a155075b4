// Package call implements the per-call state machines driven by the
// dispatcher: a duplex call with paced writes and concurrent reads, and a
// read call that consumes a server stream after a single request.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"smartspeech-client/internal/observability/logging"
	"smartspeech-client/internal/observability/metrics"
	"smartspeech-client/internal/transport"
)

// DefaultPollInterval is how long a duplex call waits before re-checking an
// empty outbound buffer.
const DefaultPollInterval = 100 * time.Millisecond

// ErrCallNotDone is returned when a call is released or queried before it
// reached StateDone.
var ErrCallNotDone = errors.New("call has not finished")

// State represents the lifecycle state of a call.
type State int32

const (
	// StateStarting - the stream is being opened.
	StateStarting State = iota
	// StateStreaming - reads (and, for duplex calls, writes) are flowing.
	StateStreaming
	// StateWritesFinished - the half-close was acknowledged; reads continue.
	StateWritesFinished
	// StateFinishing - a finish was submitted; waiting for the final status.
	StateFinishing
	// StateDone - the final status is known. Terminal.
	StateDone
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateStreaming:
		return "STREAMING"
	case StateWritesFinished:
		return "WRITES_FINISHED"
	case StateFinishing:
		return "FINISHING"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if no further events are handled in this state.
func (s State) IsTerminal() bool {
	return s == StateDone
}

// Options configures a call.
type Options struct {
	// ID identifies the call in logs and is sent as the request id.
	// Generated when empty.
	ID string
	// Kind labels logs, metrics and spans (e.g. "recognize", "synthesize").
	Kind string
	// PollInterval is the pacing delay of a duplex call. Defaults to
	// DefaultPollInterval.
	PollInterval time.Duration
	// MaxChunk caps the bytes carried by one outbound message. Zero means
	// no cap.
	MaxChunk int
	Metrics  *metrics.Metrics
	Tracer   trace.Tracer
	// Context parents the call span.
	Context context.Context
}

func (o Options) withDefaults() Options {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Kind == "" {
		o.Kind = "call"
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Metrics == nil {
		o.Metrics = metrics.DefaultMetrics
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer("smartspeech-client/call")
	}
	if o.Context == nil {
		o.Context = context.Background()
	}
	return o
}

// core holds what both call variants share. Fields below the marker are
// touched by the dispatcher goroutine only.
type core struct {
	id      string
	kind    string
	ops     transport.Ops
	metrics *metrics.Metrics
	log     zerolog.Logger
	span    trace.Span

	state   atomic.Int32
	started atomic.Bool
	status  atomic.Pointer[status.Status]
	done    chan struct{}
	begin   time.Time

	// dispatcher only
	finishing bool
}

func (c *core) init(opts Options) {
	_, span := opts.Tracer.Start(opts.Context, "smartspeech."+opts.Kind,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("call.id", opts.ID),
			attribute.String("call.kind", opts.Kind),
		),
	)
	c.id = opts.ID
	c.kind = opts.Kind
	c.metrics = opts.Metrics
	c.log = logging.WithCall(opts.ID, opts.Kind)
	c.span = span
	c.done = make(chan struct{})
}

// ID returns the call id.
func (c *core) ID() string {
	return c.id
}

// State returns the current state.
func (c *core) State() State {
	return State(c.state.Load())
}

func (c *core) setState(s State) {
	c.state.Store(int32(s))
}

// Done is closed once the final status is known.
func (c *core) Done() <-chan struct{} {
	return c.done
}

// Status returns the final status, or nil before Done.
func (c *core) Status() *status.Status {
	return c.status.Load()
}

// Err returns the call error once Done: nil when the call ended OK,
// otherwise a gRPC status error. Before Done it returns ErrCallNotDone.
func (c *core) Err() error {
	st := c.status.Load()
	if st == nil {
		return ErrCallNotDone
	}
	return st.Err()
}

// Close waits for the call to reach StateDone. If ctx expires first the
// stream is cancelled and ErrCallNotDone is returned; the call still
// reaches Done on its own once the transport settles.
func (c *core) Close(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	default:
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		c.ops.Cancel()
		return fmt.Errorf("%w: %w", ErrCallNotDone, ctx.Err())
	}
}

// start submits the stream open exactly once.
func (c *core) start() {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	c.begin = time.Now()
	c.metrics.RecordCallStart(c.kind)
	c.log.Debug().Msg("call starting")
	c.ops.Start()
}

// finish submits the single finish operation. Later calls are no-ops.
func (c *core) finish() {
	if c.finishing {
		return
	}
	c.finishing = true
	c.setState(StateFinishing)
	c.ops.CancelAlarm()
	c.ops.Finish()
}

// complete records the final status. It is the only place the call status
// is inspected and reported.
func (c *core) complete() *status.Status {
	st := c.ops.Status()
	if st == nil {
		st = status.New(codes.Unknown, "no status")
	}
	c.status.Store(st)

	elapsed := time.Since(c.begin)
	c.metrics.RecordCallEnd(c.kind, st.Code().String(), elapsed.Seconds())

	requestID := c.ops.RequestID()
	c.span.SetAttributes(attribute.String("rpc.grpc.status_code", st.Code().String()))
	if requestID != "" {
		c.span.SetAttributes(attribute.String("call.server_request_id", requestID))
	}

	if st.Code() == codes.OK {
		c.log.Info().
			Str("requestId", requestID).
			Dur("elapsed", elapsed).
			Msg("call finished")
	} else {
		c.span.RecordError(st.Err())
		c.span.SetStatus(otelcodes.Error, st.Message())
		c.log.Warn().
			Str("code", st.Code().String()).
			Str("message", st.Message()).
			Interface("details", st.Details()).
			Str("requestId", requestID).
			Dur("elapsed", elapsed).
			Msg("call failed")
	}
	c.span.End()
	return st
}

// markDone makes the call terminal. It must follow complete.
func (c *core) markDone() {
	c.setState(StateDone)
	close(c.done)
}
