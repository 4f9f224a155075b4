package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"smartspeech-client/internal/dispatch"
)

const requestIDHeader = "x-request-id"

// AsyncStream implements Ops on top of a blocking Stream. Each submitted
// operation runs on its own goroutine and posts exactly one completion.
type AsyncStream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	open    OpenFunc
	queue   dispatch.Poster
	handler dispatch.Handler
	newMsg  func() any

	readMu  sync.Mutex // held while RecvMsg is in flight
	writeMu sync.Mutex // held while SendMsg or CloseSend is in flight

	mu        sync.Mutex
	stream    Stream
	err       error // open failure or the first RecvMsg error
	status    *status.Status
	requestID string

	alarmMu sync.Mutex
	alarm   *time.Timer
}

// NewAsyncStream creates the adaptor. newMsg allocates throwaway messages
// used to drain inbound traffic during Finish; nil drains into Empty.
func NewAsyncStream(ctx context.Context, q dispatch.Poster, h dispatch.Handler, open OpenFunc, newMsg func() any) *AsyncStream {
	if newMsg == nil {
		newMsg = func() any { return new(emptypb.Empty) }
	}
	ctx, cancel := context.WithCancel(ctx)
	return &AsyncStream{
		ctx:     ctx,
		cancel:  cancel,
		open:    open,
		queue:   q,
		handler: h,
		newMsg:  newMsg,
	}
}

// Bind returns a Binder producing AsyncStreams on q.
func Bind(ctx context.Context, q dispatch.Poster, open OpenFunc, newMsg func() any) Binder {
	return func(h dispatch.Handler) Ops {
		return NewAsyncStream(ctx, q, h, open, newMsg)
	}
}

func (s *AsyncStream) post(cause dispatch.Cause, ok bool) {
	s.queue.Post(dispatch.Tag{Cause: cause, Handler: s.handler}, ok)
}

func (s *AsyncStream) current() (Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream, s.err
}

func (s *AsyncStream) setTerminal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Start opens the stream.
func (s *AsyncStream) Start() {
	go func() {
		st, err := s.open(s.ctx)
		s.mu.Lock()
		s.stream = st
		if err != nil {
			s.err = err
		}
		s.mu.Unlock()
		s.post(dispatch.CauseStartCall, err == nil && st != nil)
	}()
}

// Write sends msg.
func (s *AsyncStream) Write(msg any) {
	go func() {
		st, _ := s.current()
		if st == nil {
			s.post(dispatch.CauseWrite, false)
			return
		}
		s.writeMu.Lock()
		err := st.SendMsg(msg)
		s.writeMu.Unlock()
		s.post(dispatch.CauseWrite, err == nil)
	}()
}

// Read receives the next inbound message into msg.
func (s *AsyncStream) Read(msg any) {
	go func() {
		st, _ := s.current()
		if st == nil {
			s.post(dispatch.CauseRead, false)
			return
		}
		s.readMu.Lock()
		err := st.RecvMsg(msg)
		if err != nil {
			s.setTerminal(err)
		}
		s.readMu.Unlock()
		s.post(dispatch.CauseRead, err == nil)
	}()
}

// WritesDone half-closes the outbound side.
func (s *AsyncStream) WritesDone() {
	go func() {
		st, _ := s.current()
		if st == nil {
			s.post(dispatch.CauseWritesDone, false)
			return
		}
		s.writeMu.Lock()
		err := st.CloseSend()
		s.writeMu.Unlock()
		s.post(dispatch.CauseWritesDone, err == nil)
	}()
}

// Finish waits for inbound traffic to end, draining and discarding any
// messages nobody reads, lets an in-flight write settle and then posts the
// final status.
func (s *AsyncStream) Finish() {
	go func() {
		s.readMu.Lock()
		st, err := s.current()
		if st != nil && err == nil {
			for {
				if rerr := st.RecvMsg(s.newMsg()); rerr != nil {
					s.setTerminal(rerr)
					break
				}
			}
		}
		s.readMu.Unlock()

		// Wait out an in-flight write.
		s.writeMu.Lock()
		s.writeMu.Unlock() //nolint:staticcheck

		s.CancelAlarm()

		var requestID string
		if st != nil {
			if md, herr := st.Header(); herr == nil {
				if v := md.Get(requestIDHeader); len(v) > 0 {
					requestID = v[0]
				}
			}
		}

		_, err = s.current()
		s.mu.Lock()
		s.status = ToStatus(err)
		s.requestID = requestID
		s.mu.Unlock()

		s.cancel()
		s.post(dispatch.CauseFinish, true)
	}()
}

// SetAlarm arms a one-shot timer that posts an alarm completion after d.
func (s *AsyncStream) SetAlarm(d time.Duration) {
	s.alarmMu.Lock()
	defer s.alarmMu.Unlock()
	if s.alarm != nil {
		s.alarm.Stop()
	}
	s.alarm = time.AfterFunc(d, func() {
		s.post(dispatch.CauseAlarm, true)
	})
}

// CancelAlarm stops a pending timer. A timer that already fired still
// delivers its completion.
func (s *AsyncStream) CancelAlarm() {
	s.alarmMu.Lock()
	defer s.alarmMu.Unlock()
	if s.alarm != nil {
		s.alarm.Stop()
		s.alarm = nil
	}
}

// Cancel aborts the stream.
func (s *AsyncStream) Cancel() {
	s.CancelAlarm()
	s.cancel()
}

// Status returns the final status.
func (s *AsyncStream) Status() *status.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == nil {
		return status.New(codes.Unknown, "call has not finished")
	}
	return s.status
}

// RequestID returns the server's request id.
func (s *AsyncStream) RequestID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestID
}

// ToStatus maps a terminal stream error onto a gRPC status. A clean end of
// stream is OK.
func ToStatus(err error) *status.Status {
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return status.New(codes.OK, "")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if st, ok := status.FromError(err); ok {
			return st
		}
		return status.FromContextError(err)
	default:
		return status.Convert(err)
	}
}
