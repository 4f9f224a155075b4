// Package transport turns a blocking gRPC client stream into asynchronous
// operations whose completions are posted to a dispatch queue.
package transport

import (
	"context"
	"time"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"smartspeech-client/internal/dispatch"
)

// Stream is the blocking client stream the adaptor drives.
// grpc.ClientStream and generated streaming clients satisfy it.
type Stream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
	CloseSend() error
	Header() (metadata.MD, error)
}

// OpenFunc opens a stream. For server-streaming calls it also sends the
// single request and half-closes before returning.
type OpenFunc func(ctx context.Context) (Stream, error)

// Ops is the set of asynchronous operations a call submits. Every method
// returns immediately; the completion arrives later as a Proceed with the
// matching cause. The caller guarantees at most one Write/WritesDone and one
// Read outstanding at a time.
type Ops interface {
	Start()
	Write(msg any)
	Read(msg any)
	WritesDone()
	// Finish reports the final status once inbound traffic has ended.
	// It is the last completion posted for the stream.
	Finish()
	SetAlarm(d time.Duration)
	CancelAlarm()
	// Cancel aborts the stream; outstanding operations complete with ok=false.
	Cancel()
	// Status is valid once the Finish completion was delivered.
	Status() *status.Status
	// RequestID is the server's x-request-id, if it sent one.
	RequestID() string
}

// Binder creates the Ops for a handler. Calls receive a Binder so that the
// Ops can carry the call itself as the completion handler.
type Binder func(h dispatch.Handler) Ops
