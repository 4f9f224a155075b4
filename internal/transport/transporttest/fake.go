// Package transporttest provides an instrumented fake of transport.Ops.
// Completions are delivered synchronously by the test, which plays the role
// of the dispatcher.
package transporttest

import (
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"smartspeech-client/internal/dispatch"
	"smartspeech-client/internal/transport"
)

// OpKind names a submitted operation.
type OpKind string

const (
	OpStart      OpKind = "start"
	OpWrite      OpKind = "write"
	OpRead       OpKind = "read"
	OpWritesDone OpKind = "writes_done"
	OpFinish     OpKind = "finish"
	OpAlarm      OpKind = "alarm"
	OpCancel     OpKind = "cancel"
)

// Op is one submitted operation.
type Op struct {
	Kind OpKind
	Msg  any
}

// Fake records submitted operations and tracks how many of each kind are
// outstanding at once.
type Fake struct {
	t       testing.TB
	mu      sync.Mutex
	handler dispatch.Handler

	ops         []Op
	writes      []any
	pendingRead any

	outboundOutstanding int // writes plus half-close
	maxOutbound         int
	readsOutstanding    int
	maxReads            int
	alarmArmed          bool
	alarmsSet           int
	finishes            int
	cancels             int

	final     *status.Status
	requestID string
}

// New creates a fake bound to t.
func New(t testing.TB) *Fake {
	return &Fake{t: t}
}

// Bind satisfies transport.Binder.
func (f *Fake) Bind(h dispatch.Handler) transport.Ops {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
	return f
}

// SetRequestID sets the value returned by RequestID.
func (f *Fake) SetRequestID(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requestID = id
}

func (f *Fake) record(op Op) {
	f.ops = append(f.ops, op)
}

// --- transport.Ops ---

func (f *Fake) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Op{Kind: OpStart})
}

func (f *Fake) Write(msg any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Op{Kind: OpWrite, Msg: msg})
	f.writes = append(f.writes, msg)
	f.outboundOutstanding++
	if f.outboundOutstanding > f.maxOutbound {
		f.maxOutbound = f.outboundOutstanding
	}
}

func (f *Fake) Read(msg any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Op{Kind: OpRead, Msg: msg})
	f.pendingRead = msg
	f.readsOutstanding++
	if f.readsOutstanding > f.maxReads {
		f.maxReads = f.readsOutstanding
	}
}

func (f *Fake) WritesDone() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Op{Kind: OpWritesDone})
	f.outboundOutstanding++
	if f.outboundOutstanding > f.maxOutbound {
		f.maxOutbound = f.outboundOutstanding
	}
}

func (f *Fake) Finish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Op{Kind: OpFinish})
	f.finishes++
}

func (f *Fake) SetAlarm(time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Op{Kind: OpAlarm})
	f.alarmArmed = true
	f.alarmsSet++
}

func (f *Fake) CancelAlarm() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alarmArmed = false
}

func (f *Fake) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Op{Kind: OpCancel})
	f.cancels++
	f.alarmArmed = false
}

func (f *Fake) Status() *status.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.final == nil {
		return status.New(codes.OK, "")
	}
	return f.final
}

func (f *Fake) RequestID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requestID
}

// --- completions, delivered by the test ---

func (f *Fake) proceed(cause dispatch.Cause, ok bool) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h == nil {
		f.t.Fatalf("fake: no handler bound")
	}
	h.Proceed(cause, ok)
}

// CompleteStart delivers the call-started completion.
func (f *Fake) CompleteStart(ok bool) {
	f.t.Helper()
	f.proceed(dispatch.CauseStartCall, ok)
}

// CompleteWrite completes the outstanding write.
func (f *Fake) CompleteWrite(ok bool) {
	f.t.Helper()
	f.mu.Lock()
	if f.outboundOutstanding == 0 {
		f.mu.Unlock()
		f.t.Fatalf("fake: CompleteWrite with no write outstanding")
	}
	f.outboundOutstanding--
	f.mu.Unlock()
	f.proceed(dispatch.CauseWrite, ok)
}

// CompleteWritesDone completes the outstanding half-close.
func (f *Fake) CompleteWritesDone(ok bool) {
	f.t.Helper()
	f.mu.Lock()
	if f.outboundOutstanding == 0 {
		f.mu.Unlock()
		f.t.Fatalf("fake: CompleteWritesDone with no half-close outstanding")
	}
	f.outboundOutstanding--
	f.mu.Unlock()
	f.proceed(dispatch.CauseWritesDone, ok)
}

// CompleteRead completes the outstanding read. When ok is true, fill
// populates the call's scratch message before the call sees it.
func (f *Fake) CompleteRead(ok bool, fill func(msg any)) {
	f.t.Helper()
	f.mu.Lock()
	if f.readsOutstanding == 0 {
		f.mu.Unlock()
		f.t.Fatalf("fake: CompleteRead with no read outstanding")
	}
	f.readsOutstanding--
	msg := f.pendingRead
	f.pendingRead = nil
	f.mu.Unlock()
	if ok && fill != nil {
		fill(msg)
	}
	f.proceed(dispatch.CauseRead, ok)
}

// FireAlarm delivers the pacing timer completion.
func (f *Fake) FireAlarm() {
	f.t.Helper()
	f.mu.Lock()
	if !f.alarmArmed {
		f.mu.Unlock()
		f.t.Fatalf("fake: FireAlarm with no alarm armed")
	}
	f.alarmArmed = false
	f.mu.Unlock()
	f.proceed(dispatch.CauseAlarm, true)
}

// CompleteFinish delivers the finish completion with final status st.
func (f *Fake) CompleteFinish(st *status.Status) {
	f.t.Helper()
	f.mu.Lock()
	f.final = st
	f.mu.Unlock()
	f.proceed(dispatch.CauseFinish, true)
}

// --- inspection ---

// Ops returns every submitted operation in order.
func (f *Fake) Ops() []Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Op(nil), f.ops...)
}

// Writes returns the messages passed to Write, in order.
func (f *Fake) Writes() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.writes...)
}

// Count returns how many operations of kind were submitted.
func (f *Fake) Count(kind OpKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, op := range f.ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// MaxOutstandingOutbound is the highest number of writes and half-closes
// that were ever outstanding at once.
func (f *Fake) MaxOutstandingOutbound() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxOutbound
}

// MaxOutstandingReads is the highest number of reads ever outstanding at once.
func (f *Fake) MaxOutstandingReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxReads
}

// WriteOutstanding reports whether a write or half-close awaits completion.
func (f *Fake) WriteOutstanding() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outboundOutstanding > 0
}

// ReadOutstanding reports whether a read awaits completion.
func (f *Fake) ReadOutstanding() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readsOutstanding > 0
}

// AlarmArmed reports whether the pacing timer is armed.
func (f *Fake) AlarmArmed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alarmArmed
}

// Finishes returns how many Finish operations were submitted.
func (f *Fake) Finishes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finishes
}

// Cancels returns how many times Cancel was called.
func (f *Fake) Cancels() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels
}
