package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/spanwire/internal/infrastructure/config"
	"github.com/GriffinCanCode/spanwire/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/spanwire/internal/infrastructure/resilience"
)

// Version is the service version reported by the root endpoint.
var Version = "0.1.0"

// Handlers serves the built-in endpoints.
type Handlers struct {
	config  *config.Config
	metrics *monitoring.Metrics
	guard   *resilience.Guard
}

// NewHandlers creates the built-in handlers. guard is nil when tracing is
// disabled.
func NewHandlers(cfg *config.Config, metrics *monitoring.Metrics, guard *resilience.Guard) *Handlers {
	return &Handlers{config: cfg, metrics: metrics, guard: guard}
}

// Root handles the root endpoint
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": h.config.Tracing.ServiceName,
		"version": Version,
		"api":     h.config.API.BasePath(),
	})
}

// Health handles the health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"tracing": h.tracingStatus(),
	})
}

// Metrics returns the metrics snapshot as JSON
func (h *Handlers) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

// TracingStatus reports tracer configuration and span counters
func (h *Handlers) TracingStatus(c *gin.Context) {
	snap := h.metrics.Snapshot()
	status := h.tracingStatus()
	status["spans_finished"] = snap.SpansFinished
	status["span_errors"] = snap.SpanErrors
	status["tracer_failures"] = snap.TracerFailures
	c.JSON(http.StatusOK, status)
}

func (h *Handlers) tracingStatus() gin.H {
	status := gin.H{
		"enabled":      h.guard != nil,
		"service_name": h.config.Tracing.ServiceName,
		"sample_ratio": h.config.Tracing.SampleRatio,
	}
	if h.guard != nil {
		status["guard"] = h.guard.State().String()
	}
	return status
}
