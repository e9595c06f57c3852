package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/escolaware/escola-api/internal/service"
	"github.com/escolaware/escola-api/pkg/response"
)

// MetricsHandler exposes runtime counters for operational tooling.
type MetricsHandler struct {
	metrics *service.MetricsService
}

// NewMetricsHandler constructs handler.
func NewMetricsHandler(metrics *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Snapshot returns an aggregate view of request and cache counters.
func (h *MetricsHandler) Snapshot(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}
