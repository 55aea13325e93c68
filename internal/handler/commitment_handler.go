package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/munify/munify-api/internal/dto"
	"github.com/munify/munify-api/internal/models"
	"github.com/munify/munify-api/internal/service"
	appErrors "github.com/munify/munify-api/pkg/errors"
	"github.com/munify/munify-api/pkg/response"
)

// CommitmentHandler exposes commitment lifecycle endpoints.
type CommitmentHandler struct {
	commitments *service.CommitmentService
	receipts    *service.ReceiptService
}

// NewCommitmentHandler constructs CommitmentHandler.
func NewCommitmentHandler(commitments *service.CommitmentService, receipts *service.ReceiptService) *CommitmentHandler {
	return &CommitmentHandler{commitments: commitments, receipts: receipts}
}

func commitmentID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid commitment id"))
		return 0, false
	}
	return id, true
}

// List godoc
// @Summary List commitments
// @Tags Commitments
// @Produce json
// @Param project_reference_id query string false "Filter by project"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /commitments [get]
func (h *CommitmentHandler) List(c *gin.Context) {
	var filter models.CommitmentFilter
	filter.ProjectReferenceID = c.Query("project_reference_id")
	filter.Status = models.CommitmentStatus(c.Query("status"))
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

	commitments, pagination, err := h.commitments.List(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, commitments, pagination)
}

// Get godoc
// @Summary Get a commitment
// @Tags Commitments
// @Produce json
// @Param id path int true "Commitment ID"
// @Success 200 {object} response.Envelope
// @Router /commitments/{id} [get]
func (h *CommitmentHandler) Get(c *gin.Context) {
	id, ok := commitmentID(c)
	if !ok {
		return
	}
	commitment, err := h.commitments.Get(c.Request.Context(), claimsFromContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, commitment, nil)
}

// Create godoc
// @Summary Pledge funds to a project
// @Tags Commitments
// @Accept json
// @Produce json
// @Param payload body dto.CreateCommitmentRequest true "Commitment payload"
// @Success 201 {object} response.Envelope
// @Router /commitments [post]
func (h *CommitmentHandler) Create(c *gin.Context) {
	var req dto.CreateCommitmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	commitment, err := h.commitments.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, commitment)
}

// Update godoc
// @Summary Edit a modifiable commitment
// @Tags Commitments
// @Accept json
// @Produce json
// @Param id path int true "Commitment ID"
// @Param payload body dto.UpdateCommitmentRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Router /commitments/{id} [put]
func (h *CommitmentHandler) Update(c *gin.Context) {
	id, ok := commitmentID(c)
	if !ok {
		return
	}
	var req dto.UpdateCommitmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	commitment, err := h.commitments.Update(c.Request.Context(), claimsFromContext(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, commitment, nil)
}

// Submit godoc
// @Summary Submit a draft commitment for review
// @Tags Commitments
// @Produce json
// @Param id path int true "Commitment ID"
// @Success 200 {object} response.Envelope
// @Router /commitments/{id}/submit [post]
func (h *CommitmentHandler) Submit(c *gin.Context) {
	h.transition(c, h.commitments.Submit)
}

// Claim godoc
// @Summary Take a pending commitment into review
// @Tags Commitments
// @Produce json
// @Param id path int true "Commitment ID"
// @Success 200 {object} response.Envelope
// @Router /commitments/{id}/claim [post]
func (h *CommitmentHandler) Claim(c *gin.Context) {
	h.transition(c, h.commitments.Claim)
}

// Review godoc
// @Summary Approve or reject a commitment under review
// @Tags Commitments
// @Accept json
// @Produce json
// @Param id path int true "Commitment ID"
// @Param payload body dto.ReviewCommitmentRequest true "Review payload"
// @Success 200 {object} response.Envelope
// @Router /commitments/{id}/review [post]
func (h *CommitmentHandler) Review(c *gin.Context) {
	id, ok := commitmentID(c)
	if !ok {
		return
	}
	var req dto.ReviewCommitmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	commitment, err := h.commitments.Review(c.Request.Context(), claimsFromContext(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, commitment, nil)
}

// Withdraw godoc
// @Summary Withdraw a commitment
// @Tags Commitments
// @Produce json
// @Param id path int true "Commitment ID"
// @Success 200 {object} response.Envelope
// @Router /commitments/{id}/withdraw [post]
func (h *CommitmentHandler) Withdraw(c *gin.Context) {
	h.transition(c, h.commitments.Withdraw)
}

// MarkFunded godoc
// @Summary Record disbursement of an approved commitment
// @Tags Commitments
// @Produce json
// @Param id path int true "Commitment ID"
// @Success 200 {object} response.Envelope
// @Router /commitments/{id}/fund [post]
func (h *CommitmentHandler) MarkFunded(c *gin.Context) {
	h.transition(c, h.commitments.MarkFunded)
}

// MarkCompleted godoc
// @Summary Close out a funded commitment
// @Tags Commitments
// @Produce json
// @Param id path int true "Commitment ID"
// @Success 200 {object} response.Envelope
// @Router /commitments/{id}/complete [post]
func (h *CommitmentHandler) MarkCompleted(c *gin.Context) {
	h.transition(c, h.commitments.MarkCompleted)
}

// History godoc
// @Summary Get the audit history of a commitment
// @Tags Commitments
// @Produce json
// @Param id path int true "Commitment ID"
// @Success 200 {object} response.Envelope
// @Router /commitments/{id}/history [get]
func (h *CommitmentHandler) History(c *gin.Context) {
	id, ok := commitmentID(c)
	if !ok {
		return
	}
	history, err := h.commitments.History(c.Request.Context(), claimsFromContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// DownloadReceipt godoc
// @Summary Download an acknowledgment receipt by signed token
// @Tags Commitments
// @Produce application/pdf
// @Param token query string true "Signed receipt token"
// @Success 200 {file} binary
// @Router /receipts/download [get]
func (h *CommitmentHandler) DownloadReceipt(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, err := h.receipts.Open(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck
	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", "attachment; filename=acknowledgment.pdf")
	c.File(file.Name())
}

func (h *CommitmentHandler) transition(c *gin.Context, op func(ctx context.Context, claims *models.JWTClaims, id int64) (*models.Commitment, error)) {
	id, ok := commitmentID(c)
	if !ok {
		return
	}
	commitment, err := op(c.Request.Context(), claimsFromContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, commitment, nil)
}
