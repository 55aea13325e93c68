package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/munify/munify-api/internal/models"
	"github.com/munify/munify-api/internal/service"
	"github.com/munify/munify-api/pkg/export"
	"github.com/munify/munify-api/pkg/response"
)

// StatisticsHandler exposes platform statistics and admin exports.
type StatisticsHandler struct {
	statistics  *service.StatisticsService
	commitments *service.CommitmentService
	exporter    *export.CSVExporter
}

// NewStatisticsHandler constructs StatisticsHandler.
func NewStatisticsHandler(statistics *service.StatisticsService, commitments *service.CommitmentService) *StatisticsHandler {
	return &StatisticsHandler{
		statistics:  statistics,
		commitments: commitments,
		exporter:    export.NewCSVExporter(),
	}
}

// Platform godoc
// @Summary Get the platform statistics snapshot
// @Tags Statistics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /statistics [get]
func (h *StatisticsHandler) Platform(c *gin.Context) {
	stats, err := h.statistics.Platform(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Invalidate godoc
// @Summary Drop the cached statistics snapshot
// @Tags Statistics
// @Produce json
// @Success 204
// @Router /statistics/cache [delete]
func (h *StatisticsHandler) Invalidate(c *gin.Context) {
	if err := h.statistics.Invalidate(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ExportCommitments godoc
// @Summary Export commitments as CSV
// @Tags Statistics
// @Produce text/csv
// @Param project_reference_id query string false "Filter by project"
// @Param status query string false "Filter by status"
// @Success 200 {file} binary
// @Router /statistics/commitments/export [get]
func (h *StatisticsHandler) ExportCommitments(c *gin.Context) {
	filter := models.CommitmentFilter{
		ProjectReferenceID: c.Query("project_reference_id"),
		Status:             models.CommitmentStatus(c.Query("status")),
	}
	dataset, err := h.commitments.Export(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	payload, err := h.exporter.Render(dataset)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("commitments-%s.csv", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "text/csv", payload)
}
