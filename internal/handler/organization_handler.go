package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/munify/munify-api/internal/models"
	"github.com/munify/munify-api/internal/service"
	appErrors "github.com/munify/munify-api/pkg/errors"
	"github.com/munify/munify-api/pkg/response"
)

// OrganizationHandler exposes the organization registry.
type OrganizationHandler struct {
	organizations *service.OrganizationService
}

// NewOrganizationHandler constructs OrganizationHandler.
func NewOrganizationHandler(organizations *service.OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{organizations: organizations}
}

// List godoc
// @Summary List organizations
// @Tags Organizations
// @Produce json
// @Param type query string false "Filter by type (municipality|lender)"
// @Success 200 {object} response.Envelope
// @Router /organizations [get]
func (h *OrganizationHandler) List(c *gin.Context) {
	orgs, err := h.organizations.List(c.Request.Context(), claimsFromContext(c), models.OrganizationType(c.Query("type")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, orgs, nil)
}

// Get godoc
// @Summary Get an organization
// @Tags Organizations
// @Produce json
// @Param id path string true "Organization ID"
// @Success 200 {object} response.Envelope
// @Router /organizations/{id} [get]
func (h *OrganizationHandler) Get(c *gin.Context) {
	org, err := h.organizations.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, org, nil)
}

type setFeeStatusRequest struct {
	FeeStatus models.FeeStatus `json:"fee_status" binding:"required"`
}

// SetFeeStatus godoc
// @Summary Update an organization's fee status
// @Tags Organizations
// @Accept json
// @Produce json
// @Param id path string true "Organization ID"
// @Param payload body setFeeStatusRequest true "Fee status payload"
// @Success 200 {object} response.Envelope
// @Router /organizations/{id}/fee-status [put]
func (h *OrganizationHandler) SetFeeStatus(c *gin.Context) {
	var req setFeeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	org, err := h.organizations.SetFeeStatus(c.Request.Context(), claimsFromContext(c), c.Param("id"), req.FeeStatus)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, org, nil)
}
