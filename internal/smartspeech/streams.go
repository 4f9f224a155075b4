package smartspeech

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"

	"smartspeech-client/internal/transport"
)

var (
	recognizeStream  = &grpc.StreamDesc{StreamName: "Recognize", ClientStreams: true, ServerStreams: true}
	synthesizeStream = &grpc.StreamDesc{StreamName: "Synthesize", ServerStreams: true}
	downloadStream   = &grpc.StreamDesc{StreamName: "Download", ServerStreams: true}
)

// OpenRecognize opens the duplex Recognize stream.
func OpenRecognize(conn grpc.ClientConnInterface, opts ...grpc.CallOption) transport.OpenFunc {
	return func(ctx context.Context) (transport.Stream, error) {
		return conn.NewStream(ctx, recognizeStream, RecognizeMethod, opts...)
	}
}

// OpenSynthesize opens a Synthesize stream carrying req.
func OpenSynthesize(conn grpc.ClientConnInterface, req proto.Message, opts ...grpc.CallOption) transport.OpenFunc {
	return openServerStream(conn, synthesizeStream, SynthesizeMethod, req, opts)
}

// OpenDownload opens a storage Download stream carrying req.
func OpenDownload(conn grpc.ClientConnInterface, req proto.Message, opts ...grpc.CallOption) transport.OpenFunc {
	return openServerStream(conn, downloadStream, DownloadMethod, req, opts)
}

// openServerStream sends the single request and half-closes, so the call
// only has to read.
func openServerStream(conn grpc.ClientConnInterface, desc *grpc.StreamDesc, method string, req proto.Message, opts []grpc.CallOption) transport.OpenFunc {
	return func(ctx context.Context) (transport.Stream, error) {
		stream, err := conn.NewStream(ctx, desc, method, opts...)
		if err != nil {
			return nil, err
		}
		// io.EOF means the server already ended the stream; its status
		// surfaces on the first read.
		if err := stream.SendMsg(req); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("send %s request: %w", desc.StreamName, err)
		}
		if err := stream.CloseSend(); err != nil {
			return nil, fmt.Errorf("close %s request: %w", desc.StreamName, err)
		}
		return stream, nil
	}
}
