package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/munify/munify-api/internal/dto"
	"github.com/munify/munify-api/internal/models"
	"github.com/munify/munify-api/internal/service"
	appErrors "github.com/munify/munify-api/pkg/errors"
	"github.com/munify/munify-api/pkg/response"
)

// ProjectHandler exposes project endpoints.
type ProjectHandler struct {
	projects *service.ProjectService
}

// NewProjectHandler constructs ProjectHandler.
func NewProjectHandler(projects *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// List godoc
// @Summary List projects
// @Tags Projects
// @Produce json
// @Param status query string false "Filter by status"
// @Param visibility query string false "Filter by visibility"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /projects [get]
func (h *ProjectHandler) List(c *gin.Context) {
	var filter models.ProjectFilter
	filter.Status = models.ProjectStatus(c.Query("status"))
	filter.Visibility = models.Visibility(c.Query("visibility"))
	limit := 50
	if parsed, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil && parsed > 0 {
		limit = parsed
	}
	page := 1
	if parsed, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && parsed > 0 {
		page = parsed
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	projects, pagination, err := h.projects.List(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	items := make([]dto.ProjectResponse, 0, len(projects))
	for i := range projects {
		items = append(items, dto.NewProjectResponse(&projects[i]))
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a project by reference ID
// @Tags Projects
// @Produce json
// @Param referenceId path string true "Project reference ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{referenceId} [get]
func (h *ProjectHandler) Get(c *gin.Context) {
	project, err := h.projects.Get(c.Request.Context(), claimsFromContext(c), c.Param("referenceId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewProjectResponse(project), nil)
}

// Create godoc
// @Summary List a new project
// @Tags Projects
// @Accept json
// @Produce json
// @Param payload body dto.CreateProjectRequest true "Project payload"
// @Success 201 {object} response.Envelope
// @Router /projects [post]
func (h *ProjectHandler) Create(c *gin.Context) {
	var req dto.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	project, err := h.projects.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewProjectResponse(project))
}

// Update godoc
// @Summary Update a project
// @Tags Projects
// @Accept json
// @Produce json
// @Param referenceId path string true "Project reference ID"
// @Param payload body dto.UpdateProjectRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Router /projects/{referenceId} [put]
func (h *ProjectHandler) Update(c *gin.Context) {
	var req dto.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	project, err := h.projects.Update(c.Request.Context(), claimsFromContext(c), c.Param("referenceId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewProjectResponse(project), nil)
}

// Delete godoc
// @Summary Delete a draft or rejected project
// @Tags Projects
// @Produce json
// @Param referenceId path string true "Project reference ID"
// @Success 204
// @Router /projects/{referenceId} [delete]
func (h *ProjectHandler) Delete(c *gin.Context) {
	if err := h.projects.Delete(c.Request.Context(), claimsFromContext(c), c.Param("referenceId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Submit godoc
// @Summary Submit a draft project for validation
// @Tags Projects
// @Produce json
// @Param referenceId path string true "Project reference ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{referenceId}/submit [post]
func (h *ProjectHandler) Submit(c *gin.Context) {
	project, err := h.projects.Submit(c.Request.Context(), claimsFromContext(c), c.Param("referenceId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewProjectResponse(project), nil)
}

// Approve godoc
// @Summary Approve a pending project
// @Tags Projects
// @Accept json
// @Produce json
// @Param referenceId path string true "Project reference ID"
// @Param payload body dto.ApproveProjectRequest false "Approval payload"
// @Success 200 {object} response.Envelope
// @Router /projects/{referenceId}/approve [post]
func (h *ProjectHandler) Approve(c *gin.Context) {
	var req dto.ApproveProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	project, err := h.projects.Approve(c.Request.Context(), claimsFromContext(c), c.Param("referenceId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewProjectResponse(project), nil)
}

// Reject godoc
// @Summary Reject a pending project
// @Tags Projects
// @Accept json
// @Produce json
// @Param referenceId path string true "Project reference ID"
// @Param payload body dto.RejectProjectRequest true "Rejection payload"
// @Success 200 {object} response.Envelope
// @Router /projects/{referenceId}/reject [post]
func (h *ProjectHandler) Reject(c *gin.Context) {
	var req dto.RejectProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	project, err := h.projects.Reject(c.Request.Context(), claimsFromContext(c), c.Param("referenceId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewProjectResponse(project), nil)
}

// Resubmit godoc
// @Summary Resubmit a rejected project
// @Tags Projects
// @Accept json
// @Produce json
// @Param referenceId path string true "Project reference ID"
// @Param payload body dto.ResubmitProjectRequest false "Resubmission payload"
// @Success 200 {object} response.Envelope
// @Router /projects/{referenceId}/resubmit [post]
func (h *ProjectHandler) Resubmit(c *gin.Context) {
	var req dto.ResubmitProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	project, err := h.projects.Resubmit(c.Request.Context(), claimsFromContext(c), c.Param("referenceId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewProjectResponse(project), nil)
}

// Close godoc
// @Summary Close fundraising for a project
// @Tags Projects
// @Produce json
// @Param referenceId path string true "Project reference ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{referenceId}/close [post]
func (h *ProjectHandler) Close(c *gin.Context) {
	project, err := h.projects.Close(c.Request.Context(), claimsFromContext(c), c.Param("referenceId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewProjectResponse(project), nil)
}

// RecomputeFunding godoc
// @Summary Recompute a project's funding totals
// @Tags Projects
// @Produce json
// @Param referenceId path string true "Project reference ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{referenceId}/recompute-funding [post]
func (h *ProjectHandler) RecomputeFunding(c *gin.Context) {
	totals, err := h.projects.RecomputeFunding(c.Request.Context(), claimsFromContext(c), c.Param("referenceId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, totals, nil)
}

// Rejections godoc
// @Summary Get the latest rejection for a project
// @Tags Projects
// @Produce json
// @Param referenceId path string true "Project reference ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{referenceId}/rejections [get]
func (h *ProjectHandler) Rejections(c *gin.Context) {
	rejection, err := h.projects.Rejections(c.Request.Context(), claimsFromContext(c), c.Param("referenceId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rejection, nil)
}
