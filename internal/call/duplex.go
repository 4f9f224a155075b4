package call

import (
	"errors"
	"time"

	"smartspeech-client/internal/buffer"
	"smartspeech-client/internal/dispatch"
	"smartspeech-client/internal/transport"
)

// DuplexCall streams fed bytes to the server while concurrently reading
// responses.
//
// Two independent chains run on the same stream:
//
//	write chain: options → write → write ... → (alarm)* → writes-done
//	read chain:  read → read → ... until the server ends the stream
//
// The write chain only ever has one write, half-close or alarm outstanding.
// An ok=false completion on either chain submits a single finish.
type DuplexCall struct {
	core
	protocol     DuplexProtocol
	sink         TranscriptSink
	buf          *buffer.Buffer
	pollInterval time.Duration

	// dispatcher only
	writePending bool
	alarmArmed   bool
	halfClosed   bool
	response     any
}

// NewDuplexCall creates a call whose stream operations are produced by bind.
// The call does nothing until Start.
func NewDuplexCall(bind transport.Binder, protocol DuplexProtocol, sink TranscriptSink, opts Options) *DuplexCall {
	opts = opts.withDefaults()
	if sink == nil {
		sink = func(Transcript) {}
	}
	c := &DuplexCall{
		protocol:     protocol,
		sink:         sink,
		buf:          buffer.New(opts.MaxChunk),
		pollInterval: opts.PollInterval,
	}
	c.core.init(opts)
	c.ops = bind(c)
	return c
}

// Start opens the stream. Calling it more than once has no effect.
func (c *DuplexCall) Start() {
	c.start()
}

// Feed queues audio to be sent. Safe to call from any goroutine.
// Feeding after SignalNoMoreInput returns buffer.ErrInputClosed and the
// bytes are dropped.
func (c *DuplexCall) Feed(p []byte) error {
	err := c.buf.Feed(p)
	if errors.Is(err, buffer.ErrInputClosed) {
		c.metrics.RecordFeedRejected()
	}
	return err
}

// SignalNoMoreInput marks the end of input. The half-close is sent once
// everything fed so far has been written. Idempotent.
func (c *DuplexCall) SignalNoMoreInput() {
	c.buf.CloseInput()
}

// Proceed advances the state machine. It is called by the dispatcher only.
func (c *DuplexCall) Proceed(cause dispatch.Cause, ok bool) {
	if c.State().IsTerminal() {
		return
	}

	switch cause {
	case dispatch.CauseFinish:
		c.complete()
		c.markDone()
		return
	case dispatch.CauseStartCall:
		if ok {
			c.setState(StateStreaming)
			c.writePending = true
			c.ops.Write(c.protocol.Options())
			c.read()
		}
	case dispatch.CauseWrite:
		c.writePending = false
	case dispatch.CauseWritesDone:
		c.writePending = false
		if ok && !c.finishing {
			c.setState(StateWritesFinished)
			c.log.Debug().Int64("bytesFed", c.buf.Fed()).Msg("writes finished")
		}
	case dispatch.CauseAlarm:
		c.alarmArmed = false
	case dispatch.CauseRead:
		if ok {
			c.deliver()
			if !c.finishing {
				c.read()
			}
		}
	}

	if !ok {
		c.finish()
		return
	}
	if c.finishing {
		return
	}
	if cause == dispatch.CauseWrite || cause == dispatch.CauseAlarm {
		c.pump()
	}
}

// pump decides the next step of the write chain: write what was fed, send
// the half-close once input is closed and drained, or wait for the alarm.
func (c *DuplexCall) pump() {
	if c.writePending || c.halfClosed {
		return
	}

	chunk, drained := c.buf.Take()
	switch {
	case len(chunk) > 0:
		c.writePending = true
		c.metrics.RecordWrite(len(chunk))
		c.ops.Write(c.protocol.Audio(chunk))
	case drained:
		c.writePending = true
		c.halfClosed = true
		c.ops.WritesDone()
	case !c.alarmArmed:
		c.alarmArmed = true
		c.metrics.RecordAlarm()
		c.ops.SetAlarm(c.pollInterval)
	}
}

func (c *DuplexCall) read() {
	c.response = c.protocol.NewResponse()
	c.ops.Read(c.response)
}

func (c *DuplexCall) deliver() {
	c.metrics.RecordRead(c.kind)
	t, ok := c.protocol.Decode(c.response)
	c.response = nil
	if !ok {
		return
	}
	resultType := "partial"
	if t.EOU {
		resultType = "final"
	}
	c.metrics.RecordResult(c.kind, resultType)
	c.sink(t)
}
