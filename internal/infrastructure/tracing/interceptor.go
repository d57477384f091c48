package tracing

import (
	"context"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/spanwire/internal/infrastructure/resilience"
)

// Span events and tag keys written by the interceptor.
const (
	EventRequestReceived  = "request_received"
	EventResponseFinished = "response_finished"

	TagHTTPMethod           = "http.method"
	TagSpanKind             = "span.kind"
	TagHTTPURL              = "http.url"
	TagHTTPStatusCode       = "http.status_code"
	TagRequestBody          = "request.body"
	TagRequestBodyTruncated = "request.body.truncated"
	TagResponseBody         = "response.body"
	TagErrorMessage         = "error.message"
	TagError                = "error"
	TagSamplingPriority     = "sampling.priority"

	SpanKindServer = "server"
)

// Outcome labels reported to the Recorder.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Tracer failure stages reported to the Recorder.
const (
	StageStart  = "start"
	StageInject = "inject"
	StageFinish = "finish"
)

// errNilSpan counts a Handle returning no span as a tracer failure.
var errNilSpan = errors.New("tracer returned no span")

// Request is the inbound side of an exchange as seen by the interceptor.
// Adapters fill it before Begin and may update Route before Finish.
type Request struct {
	Method string
	URL    string
	// Route is the matched route template, e.g. /users/:id. Empty when the
	// pipeline has not routed the request (yet).
	Route  string
	Header http.Header
	// Body is a detached copy of (a prefix of) the request body.
	Body          []byte
	BodyTruncated bool
}

// Response is the outbound side of an exchange. Header is written by Begin;
// StatusCode is read by Finish and should hold whatever the response
// currently reports.
type Response struct {
	StatusCode int
	Header     http.Header
}

// Outcome is the handler's result: either a response value or an error.
type Outcome struct {
	Value any
	Err   error
}

// Success returns an Outcome carrying a response value.
func Success(value any) Outcome {
	return Outcome{Value: value}
}

// Failure returns an Outcome carrying a handler error.
func Failure(err error) Outcome {
	return Outcome{Err: err}
}

// Recorder receives span lifecycle counts.
type Recorder interface {
	SpanFinished(outcome string)
	TracerFailure(stage string)
}

type nopRecorder struct{}

func (nopRecorder) SpanFinished(string)  {}
func (nopRecorder) TracerFailure(string) {}

// Interceptor creates, annotates and finishes one span per request.
type Interceptor struct {
	handle       Handle
	logger       *zap.Logger
	recorder     Recorder
	guard        *resilience.Guard
	captureBody  bool
	maxBodyBytes int
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithLogger sets the logger used to report tracer failures.
func WithLogger(logger *zap.Logger) Option {
	return func(i *Interceptor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(i *Interceptor) {
		if r != nil {
			i.recorder = r
		}
	}
}

// WithGuard routes span creation through guard so a failing tracer is
// skipped entirely once the guard opens.
func WithGuard(g *resilience.Guard) Option {
	return func(i *Interceptor) {
		i.guard = g
	}
}

// WithBodyCapture controls request/response body tags. maxBytes <= 0
// disables capture.
func WithBodyCapture(enabled bool, maxBytes int) Option {
	return func(i *Interceptor) {
		i.captureBody = enabled && maxBytes > 0
		i.maxBodyBytes = maxBytes
	}
}

// NewInterceptor creates an interceptor around handle.
func NewInterceptor(handle Handle, opts ...Option) *Interceptor {
	i := &Interceptor{
		handle:       handle,
		logger:       zap.NewNop(),
		recorder:     nopRecorder{},
		captureBody:  true,
		maxBodyBytes: 4096,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// BodyLimit returns the number of body bytes adapters should capture, or 0
// when body capture is disabled.
func (i *Interceptor) BodyLimit() int {
	if !i.captureBody {
		return 0
	}
	return i.maxBodyBytes
}

// Begin starts the request span and injects its context into resp.Header.
// The returned context carries the span. When the tracer fails, Begin
// returns ctx unchanged and a nil span; the request must proceed untraced.
func (i *Interceptor) Begin(ctx context.Context, req *Request, resp *Response) (context.Context, *Span) {
	var (
		spanCtx context.Context
		span    *Span
	)
	err := i.guard.Do(func() error {
		parent := i.handle.Extract(ctx, propagation.HeaderCarrier(req.Header))
		spanCtx, span = i.handle.StartSpan(parent, req.Route, trace.WithSpanKind(trace.SpanKindServer))
		if span == nil {
			return errNilSpan
		}
		return nil
	})
	if err != nil {
		i.recorder.TracerFailure(StageStart)
		i.logger.Warn("tracing skipped for request",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.Error(err),
		)
		return ctx, nil
	}

	span.Log(EventRequestReceived)
	span.SetTag(TagHTTPMethod, req.Method)
	span.SetTag(TagSpanKind, SpanKindServer)
	span.SetTag(TagHTTPURL, req.URL)
	if i.captureBody && len(req.Body) > 0 {
		span.SetTag(TagRequestBody, string(req.Body))
		if req.BodyTruncated {
			span.SetTag(TagRequestBodyTruncated, true)
		}
	}

	if resp != nil && resp.Header != nil {
		carrier := propagation.MapCarrier{}
		if err := resilience.Protect(func() error {
			i.handle.Inject(span, carrier)
			return nil
		}); err != nil {
			i.recorder.TracerFailure(StageInject)
			i.logger.Warn("trace context injection failed", zap.Error(err))
		} else {
			for _, key := range carrier.Keys() {
				resp.Header.Set(key, carrier.Get(key))
			}
		}
	}

	return spanCtx, span
}

// Finish annotates span with the outcome and finishes it. It never changes
// the outcome; a nil span is ignored.
func (i *Interceptor) Finish(span *Span, req *Request, resp *Response, outcome Outcome) {
	if span == nil {
		return
	}

	err := resilience.Protect(func() error {
		if outcome.Err != nil {
			span.SetTag(TagError, true)
			span.SetTag(TagSamplingPriority, 1)
			span.SetError(outcome.Err)
		}

		span.Log(EventResponseFinished)
		span.SetOperationName(operationName(req))
		if resp != nil {
			span.SetTag(TagHTTPStatusCode, resp.StatusCode)
		}
		if outcome.Err != nil {
			span.SetTag(TagErrorMessage, outcome.Err.Error())
		} else if i.captureBody && outcome.Value != nil {
			span.SetTag(TagResponseBody, outcome.Value)
		}
		return nil
	})
	if err != nil {
		i.recorder.TracerFailure(StageFinish)
		i.logger.Warn("span annotation failed", zap.Error(err))
	}

	var finished bool
	if err := resilience.Protect(func() error {
		finished = span.Finish()
		return nil
	}); err != nil {
		i.recorder.TracerFailure(StageFinish)
		i.logger.Warn("span finish failed", zap.Error(err))
	}
	if !finished {
		return
	}
	if outcome.Err != nil {
		i.recorder.SpanFinished(OutcomeError)
	} else {
		i.recorder.SpanFinished(OutcomeOK)
	}
}

// operationName prefers the route template so spans group by endpoint.
// Unrouted requests fall back to the method.
func operationName(req *Request) string {
	if req == nil {
		return ""
	}
	if req.Route != "" {
		return req.Route
	}
	return req.Method
}
