package tracing

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/spanwire/internal/infrastructure/resilience"
)

// GRPCUnaryInterceptor creates a gRPC unary server interceptor running the
// same span lifecycle as the HTTP middleware. The handler's response and
// error are returned unchanged.
func GRPCUnaryInterceptor(i *Interceptor) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		r := &Request{
			Method: http.MethodPost,
			URL:    info.FullMethod,
			Route:  info.FullMethod,
			Header: metadataToHeader(ctx),
		}
		if limit := i.BodyLimit(); limit > 0 && req != nil {
			r.Body, r.BodyTruncated = truncate([]byte(fmt.Sprint(req)), limit)
		}
		w := &Response{Header: http.Header{}}

		spanCtx, span := i.Begin(ctx, r, w)
		if span == nil {
			return handler(ctx, req)
		}
		span.SetTag("rpc.system", "grpc")
		span.SetTag("rpc.method", info.FullMethod)

		if len(w.Header) > 0 {
			if err := grpc.SetHeader(ctx, headerToMetadata(w.Header)); err != nil {
				i.logger.Debug("trace context not sent in grpc header", zap.Error(err))
			}
		}

		completed := false
		defer func() {
			if completed {
				return
			}
			v := recover()
			w.StatusCode = int(codes.Internal)
			i.Finish(span, r, w, Failure(recoveredError(v)))
			if v != nil {
				panic(v)
			}
		}()

		resp, err := handler(spanCtx, req)
		completed = true

		w.StatusCode = int(status.Code(err))
		if err != nil {
			i.Finish(span, r, w, Failure(err))
		} else {
			i.Finish(span, r, w, Success(resp))
		}
		return resp, err
	}
}

// GRPCClientInterceptor creates a gRPC client interceptor that propagates
// the request span of ctx to the called service. A failing Inject is logged
// and the call proceeds without trace metadata.
func GRPCClientInterceptor(handle Handle, logger *zap.Logger) grpc.UnaryClientInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		span := SpanFromContext(ctx)
		if span == nil || handle == nil {
			return invoker(ctx, method, req, reply, cc, opts...)
		}

		carrier := propagation.MapCarrier{}
		if err := resilience.Protect(func() error {
			handle.Inject(span, carrier)
			return nil
		}); err != nil {
			logger.Warn("trace context not propagated", zap.String("method", method), zap.Error(err))
			return invoker(ctx, method, req, reply, cc, opts...)
		}

		pairs := make([]string, 0, 2*len(carrier))
		for k, v := range carrier {
			pairs = append(pairs, k, v)
		}
		return invoker(metadata.AppendToOutgoingContext(ctx, pairs...), method, req, reply, cc, opts...)
	}
}

func metadataToHeader(ctx context.Context) http.Header {
	header := http.Header{}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return header
	}
	for key, values := range md {
		for _, v := range values {
			header.Add(key, v)
		}
	}
	return header
}

func headerToMetadata(h http.Header) metadata.MD {
	md := metadata.MD{}
	for key, values := range h {
		md.Append(strings.ToLower(key), values...)
	}
	return md
}

func truncate(b []byte, limit int) ([]byte, bool) {
	if len(b) <= limit {
		return b, false
	}
	return b[:limit], true
}
