package tracing

import (
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/spanwire/internal/infrastructure/resilience"
)

// ClientConfig configures the downstream HTTP client.
type ClientConfig struct {
	Timeout      time.Duration
	RetryCount   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	UserAgent    string
}

// NewHTTPClient creates a resty client that propagates the span carried by
// each request's context (r.SetContext) to the called service. Requests
// without a span are sent unchanged; a failing Inject never fails a request.
func NewHTTPClient(handle Handle, cfg ClientConfig, logger *zap.Logger) *resty.Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Pooled transport from retryablehttp; retries stay with resty.
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil

	client := resty.New().
		SetTransport(retryClient.HTTPClient.Transport).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount)
	if cfg.RetryWaitMin > 0 {
		client.SetRetryWaitTime(cfg.RetryWaitMin)
	}
	if cfg.RetryWaitMax > 0 {
		client.SetRetryMaxWaitTime(cfg.RetryWaitMax)
	}
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	client.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		span := SpanFromContext(r.Context())
		if span == nil || handle == nil {
			return nil
		}
		if err := resilience.Protect(func() error {
			handle.Inject(span, propagation.HeaderCarrier(r.Header))
			return nil
		}); err != nil {
			logger.Warn("trace context not propagated", zap.String("url", r.URL), zap.Error(err))
		}
		return nil
	})

	return client
}
