package tracing

import (
	"context"

	"github.com/gin-gonic/gin"
)

// SpanKey is the gin context key holding the request's *Span.
const SpanKey = "tracing.span"

type contextKey struct{}

// ContextWithSpan returns a copy of ctx carrying span.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, contextKey{}, span)
}

// SpanFromContext returns the request span carried by ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	if ctx == nil {
		return nil
	}
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// SpanFromGin returns the request span stored by HTTPMiddleware, or nil.
func SpanFromGin(c *gin.Context) *Span {
	if v, ok := c.Get(SpanKey); ok {
		if span, ok := v.(*Span); ok {
			return span
		}
	}
	return SpanFromContext(c.Request.Context())
}
