package call

import (
	"smartspeech-client/internal/dispatch"
	"smartspeech-client/internal/transport"
)

// ReadCall consumes a server stream whose single request was attached when
// the stream was opened. Every response is handed to the sink, followed by
// one Chunk with End set once the final status is known.
type ReadCall struct {
	core
	protocol ReadProtocol
	sink     ChunkSink

	// dispatcher only
	response any
}

// NewReadCall creates a call whose stream operations are produced by bind.
// The call does nothing until Start.
func NewReadCall(bind transport.Binder, protocol ReadProtocol, sink ChunkSink, opts Options) *ReadCall {
	opts = opts.withDefaults()
	if sink == nil {
		sink = func(Chunk) {}
	}
	c := &ReadCall{
		protocol: protocol,
		sink:     sink,
	}
	c.core.init(opts)
	c.ops = bind(c)
	return c
}

// Start opens the stream and sends the request. Calling it more than once
// has no effect.
func (c *ReadCall) Start() {
	c.start()
}

// Proceed advances the state machine. It is called by the dispatcher only.
func (c *ReadCall) Proceed(cause dispatch.Cause, ok bool) {
	if c.State().IsTerminal() {
		return
	}

	switch cause {
	case dispatch.CauseFinish:
		st := c.complete()
		c.sink(Chunk{End: true, Err: st.Err()})
		c.markDone()
		return
	case dispatch.CauseStartCall:
		if ok {
			c.setState(StateStreaming)
			c.read()
		}
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
	}
}

func (c *ReadCall) read() {
	c.response = c.protocol.NewResponse()
	c.ops.Read(c.response)
}

func (c *ReadCall) deliver() {
	c.metrics.RecordRead(c.kind)
	chunk := c.protocol.Decode(c.response)
	c.response = nil
	c.metrics.RecordBytesReceived(len(chunk.Data))
	c.metrics.RecordResult(c.kind, "data")
	c.sink(chunk)
}
