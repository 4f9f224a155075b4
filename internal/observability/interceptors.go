// Package observability provides gRPC client interceptors for metrics and
// logging, request id propagation and the metrics HTTP server.
package observability

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"smartspeech-client/internal/observability/metrics"
)

// RequestIDHeader is the metadata key carrying the request id in both
// directions.
const RequestIDHeader = "x-request-id"

// WithRequestID attaches id as the outgoing request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, RequestIDHeader, id)
}

// RequestID returns the outgoing request id of ctx, if any.
func RequestID(ctx context.Context) string {
	md, _ := metadata.FromOutgoingContext(ctx)
	if v := md.Get(RequestIDHeader); len(v) > 0 {
		return v[0]
	}
	return ""
}

// ensureRequestID generates a request id when the caller did not set one.
func ensureRequestID(ctx context.Context) (context.Context, string) {
	if id := RequestID(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithRequestID(ctx, id), id
}

// UnaryClientInterceptor returns a gRPC unary interceptor for metrics and logging.
func UnaryClientInterceptor(m *metrics.Metrics) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx, requestID := ensureRequestID(ctx)
		start := time.Now()

		err := invoker(ctx, method, req, reply, cc, opts...)

		duration := time.Since(start)
		st, _ := status.FromError(err)
		m.RecordRPC(method, st.Code().String(), duration.Seconds())

		log.Debug().
			Str("method", method).
			Str("requestId", requestID).
			Str("code", st.Code().String()).
			Dur("duration", duration).
			Msg("gRPC unary call")

		return err
	}
}

// StreamClientInterceptor returns a gRPC stream interceptor for metrics and
// logging. Only the stream open is measured; the call that owns the stream
// reports its final status.
func StreamClientInterceptor(m *metrics.Metrics) grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		ctx, requestID := ensureRequestID(ctx)
		start := time.Now()

		stream, err := streamer(ctx, desc, cc, method, opts...)

		duration := time.Since(start)
		st, _ := status.FromError(err)
		m.RecordRPC(method, st.Code().String(), duration.Seconds())

		if err != nil {
			log.Warn().
				Str("method", method).
				Str("requestId", requestID).
				Str("code", st.Code().String()).
				Str("message", st.Message()).
				Msg("gRPC stream open failed")
			return nil, err
		}

		log.Debug().
			Str("method", method).
			Str("requestId", requestID).
			Dur("duration", duration).
			Msg("gRPC stream opened")

		return stream, nil
	}
}
