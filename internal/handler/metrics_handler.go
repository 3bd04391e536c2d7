package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-scheduler/internal/service"
	appErrors "github.com/noah-isme/course-scheduler/pkg/errors"
	"github.com/noah-isme/course-scheduler/pkg/jobs"
	"github.com/noah-isme/course-scheduler/pkg/response"
)

// Pinger checks a backing dependency.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type queueStats interface {
	QueueStats() jobs.Stats
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
	db      Pinger
	queue   queueStats
}

// NewMetricsHandler constructs a metrics handler. db and queue may be nil.
func NewMetricsHandler(metrics *service.MetricsService, db Pinger, queue queueStats) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, db: db, queue: queue}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Summary godoc
// @Summary Generation and request counters
// @Tags Observability
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /metrics/summary [get]
func (h *MetricsHandler) Summary(c *gin.Context) {
	if h.metrics == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "metrics disabled"))
		return
	}
	var meta map[string]interface{}
	if h.queue != nil {
		meta = map[string]interface{}{"queue": h.queue.QueueStats()}
	}
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil, meta)
}

// Health responds with a generic OK payload for liveness usage.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports whether the database is reachable.
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
