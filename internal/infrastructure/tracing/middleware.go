package tracing

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/spanwire/internal/infrastructure/resilience"
)

// ErrHandlerAborted is the outcome of a handler that neither returned nor
// panicked, e.g. one that called runtime.Goexit.
var ErrHandlerAborted = errors.New("tracing: handler exited without completing")

// HTTPMiddleware creates Gin middleware for HTTP tracing. Handler errors are
// read from c.Errors and left there untouched; panics are re-raised after
// the span is finished.
func HTTPMiddleware(i *Interceptor) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := &Request{
			Method: c.Request.Method,
			URL:    c.Request.URL.String(),
			Route:  c.FullPath(),
			Header: c.Request.Header,
		}
		limit := i.BodyLimit()
		if limit > 0 {
			req.Body, req.BodyTruncated = captureRequestBody(c.Request, limit)
		}
		resp := &Response{Header: c.Writer.Header()}

		ctx, span := i.Begin(c.Request.Context(), req, resp)
		if span == nil {
			c.Next()
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Set(SpanKey, span)

		var body *bodyCapture
		if limit > 0 {
			writer := &ginBodyWriter{ResponseWriter: c.Writer, body: bodyCapture{limit: limit}}
			c.Writer = writer
			body = &writer.body
		}

		completed := false
		defer func() {
			if completed {
				return
			}
			r := recover()
			req.Route = c.FullPath()
			resp.StatusCode = c.Writer.Status()
			i.Finish(span, req, resp, Failure(recoveredError(r)))
			if r != nil {
				panic(r)
			}
		}()

		c.Next()
		completed = true

		req.Route = c.FullPath()
		resp.StatusCode = c.Writer.Status()
		i.Finish(span, req, resp, ginOutcome(c, body))
	}
}

func ginOutcome(c *gin.Context, body *bodyCapture) Outcome {
	if last := c.Errors.Last(); last != nil {
		return Failure(last.Err)
	}
	if err := c.Request.Context().Err(); err != nil {
		return Failure(err)
	}
	if body == nil {
		return Success(nil)
	}
	return Success(body.String())
}

// Middleware creates net/http middleware for HTTP tracing. The route is
// taken from r.Pattern, which http.ServeMux fills in only once it has
// routed the request, so it is read again when the span finishes.
func Middleware(i *Interceptor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := &Request{
				Method: r.Method,
				URL:    r.URL.String(),
				Route:  r.Pattern,
				Header: r.Header,
			}
			limit := i.BodyLimit()
			if limit > 0 {
				req.Body, req.BodyTruncated = captureRequestBody(r, limit)
			}
			resp := &Response{Header: w.Header()}

			ctx, span := i.Begin(r.Context(), req, resp)
			if span == nil {
				next.ServeHTTP(w, r)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, body: bodyCapture{limit: limit}}
			routed := r.WithContext(ctx)

			completed := false
			defer func() {
				if completed {
					return
				}
				v := recover()
				req.Route = routed.Pattern
				resp.StatusCode = rec.Status()
				i.Finish(span, req, resp, Failure(recoveredError(v)))
				if v != nil {
					panic(v)
				}
			}()

			next.ServeHTTP(rec, routed)
			completed = true

			req.Route = routed.Pattern
			resp.StatusCode = rec.Status()
			outcome := Success(nil)
			if err := routed.Context().Err(); err != nil {
				outcome = Failure(err)
			} else if limit > 0 {
				outcome = Success(rec.body.String())
			}
			i.Finish(span, req, resp, outcome)
		})
	}
}

func recoveredError(r any) error {
	if r == nil {
		return ErrHandlerAborted
	}
	return &resilience.PanicError{Value: r}
}

// captureRequestBody copies up to limit bytes of the body and puts them back
// in front of the unread remainder, so the handler still sees the full body.
func captureRequestBody(r *http.Request, limit int) ([]byte, bool) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, false
	}
	peek, err := io.ReadAll(io.LimitReader(r.Body, int64(limit)+1))
	r.Body = &replayBody{Reader: io.MultiReader(bytes.NewReader(peek), r.Body), Closer: r.Body}
	if err != nil {
		return nil, false
	}

	truncated := len(peek) > limit
	if truncated {
		peek = peek[:limit]
	}
	return bytes.Clone(peek), truncated
}

type replayBody struct {
	io.Reader
	io.Closer
}

// bodyCapture keeps the first limit bytes written to a response.
type bodyCapture struct {
	buf   bytes.Buffer
	limit int
}

func (b *bodyCapture) write(p []byte) {
	if b.limit <= 0 {
		return
	}
	room := b.limit - b.buf.Len()
	if room <= 0 {
		return
	}
	if len(p) > room {
		p = p[:room]
	}
	b.buf.Write(p)
}

func (b *bodyCapture) String() string {
	return b.buf.String()
}

type ginBodyWriter struct {
	gin.ResponseWriter
	body bodyCapture
}

func (w *ginBodyWriter) Write(p []byte) (int, error) {
	w.body.write(p)
	return w.ResponseWriter.Write(p)
}

func (w *ginBodyWriter) WriteString(s string) (int, error) {
	w.body.write([]byte(s))
	return w.ResponseWriter.WriteString(s)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	body   bodyCapture
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.write(p)
	return r.ResponseWriter.Write(p)
}

// Status returns the status written so far, defaulting to 200.
func (r *statusRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
