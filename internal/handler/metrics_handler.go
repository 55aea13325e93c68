package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/munify/munify-api/internal/service"
)

// MetricsHandler serves the Prometheus scrape endpoint.
type MetricsHandler struct {
	metrics *service.MetricsService
}

// NewMetricsHandler constructs MetricsHandler.
func NewMetricsHandler(metrics *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Scrape exposes the metrics registry.
func (h *MetricsHandler) Scrape() gin.HandlerFunc {
	return gin.WrapH(h.metrics.Handler())
}
