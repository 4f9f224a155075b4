// Package smartspeechtest runs an in-process SmartSpeech server over
// bufconn for end-to-end tests.
package smartspeechtest

import (
	"context"
	"net"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"

	"smartspeech-client/internal/call"
	"smartspeech-client/internal/smartspeech"
)

const bufSize = 1024 * 1024

// RecognizeFunc handles one Recognize stream. recv returns the next request
// (options or an audio chunk) and io.EOF after the client half-closed.
type RecognizeFunc func(ctx context.Context, recv func() (*smartspeech.RecognitionOptions, []byte, error), send func(call.Transcript) error) error

// SynthesizeFunc handles one Synthesize stream.
type SynthesizeFunc func(ctx context.Context, opts smartspeech.SynthesisOptions, send func(proto.Message) error) error

// DownloadFunc handles one Download stream.
type DownloadFunc func(ctx context.Context, fileID string, send func(proto.Message) error) error

// TaskFunc handles GetTask or CancelTask.
type TaskFunc func(ctx context.Context, taskID string) (smartspeech.TaskInfo, error)

// Server is a fake SmartSpeech endpoint. Nil handlers answer Unimplemented.
type Server struct {
	Recognize  RecognizeFunc
	Synthesize SynthesizeFunc
	Download   DownloadFunc
	GetTask    TaskFunc
	CancelTask TaskFunc

	// RequestID is sent back as x-request-id header when set.
	RequestID string

	mu       sync.Mutex
	metadata []metadata.MD

	lis *bufconn.Listener
	srv *grpc.Server
}

// Start serves s on an in-memory listener until Stop.
func (s *Server) Start() {
	s.lis = bufconn.Listen(bufSize)
	s.srv = grpc.NewServer(grpc.UnknownServiceHandler(s.handle))
	go s.srv.Serve(s.lis)
}

// Stop shuts the server down.
func (s *Server) Stop() {
	s.srv.Stop()
}

// Dialer connects to the in-memory listener.
func (s *Server) Dialer() func(context.Context, string) (net.Conn, error) {
	return func(ctx context.Context, _ string) (net.Conn, error) {
		return s.lis.DialContext(ctx)
	}
}

// DialOptions are the client options needed to reach the server.
func (s *Server) DialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithContextDialer(s.Dialer()),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
}

// Metadata returns the incoming metadata of every call received so far.
func (s *Server) Metadata() []metadata.MD {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]metadata.MD(nil), s.metadata...)
}

func (s *Server) handle(_ any, stream grpc.ServerStream) error {
	ctx := stream.Context()
	method, _ := grpc.MethodFromServerStream(stream)

	md, _ := metadata.FromIncomingContext(ctx)
	s.mu.Lock()
	s.metadata = append(s.metadata, md)
	s.mu.Unlock()

	if s.RequestID != "" {
		if err := stream.SendHeader(metadata.Pairs("x-request-id", s.RequestID)); err != nil {
			return err
		}
	}

	switch method {
	case smartspeech.RecognizeMethod:
		if s.Recognize == nil {
			break
		}
		recv := func() (*smartspeech.RecognitionOptions, []byte, error) {
			req := smartspeech.NewInput(method)
			if err := stream.RecvMsg(req); err != nil {
				return nil, nil, err
			}
			return smartspeech.ParseRecognitionRequest(req)
		}
		send := func(t call.Transcript) error {
			return stream.SendMsg(smartspeech.EncodeTranscript(t))
		}
		return s.Recognize(ctx, recv, send)

	case smartspeech.SynthesizeMethod:
		if s.Synthesize == nil {
			break
		}
		req := smartspeech.NewInput(method)
		if err := stream.RecvMsg(req); err != nil {
			return err
		}
		opts, err := smartspeech.ParseSynthesisRequest(req)
		if err != nil {
			return err
		}
		return s.Synthesize(ctx, opts, sender(stream))

	case smartspeech.DownloadMethod:
		if s.Download == nil {
			break
		}
		req := smartspeech.NewInput(method)
		if err := stream.RecvMsg(req); err != nil {
			return err
		}
		id, err := smartspeech.ParseDownloadRequest(req)
		if err != nil {
			return err
		}
		return s.Download(ctx, id, sender(stream))

	case smartspeech.GetTaskMethod, smartspeech.CancelTaskMethod:
		h := s.GetTask
		if method == smartspeech.CancelTaskMethod {
			h = s.CancelTask
		}
		if h == nil {
			break
		}
		req := smartspeech.NewInput(method)
		if err := stream.RecvMsg(req); err != nil {
			return err
		}
		id, err := smartspeech.ParseTaskRequest(req)
		if err != nil {
			return err
		}
		info, err := h(ctx, id)
		if err != nil {
			return err
		}
		return stream.SendMsg(smartspeech.EncodeTask(info))
	}

	return unimplemented(method)
}

func sender(stream grpc.ServerStream) func(proto.Message) error {
	return func(m proto.Message) error {
		return stream.SendMsg(m)
	}
}

func unimplemented(method string) error {
	name := method[strings.LastIndex(method, "/")+1:]
	return status.Errorf(codes.Unimplemented, "method %s not implemented", name)
}
