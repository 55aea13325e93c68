package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/munify/munify-api/internal/models"
	appErrors "github.com/munify/munify-api/pkg/errors"
)

type organizationStore interface {
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	List(ctx context.Context, orgType models.OrganizationType) ([]models.Organization, error)
	SetFeeStatus(ctx context.Context, id string, status models.FeeStatus) error
}

// OrganizationService manages the organization registry and fee gates.
type OrganizationService struct {
	repo   organizationStore
	logger *zap.Logger
}

// NewOrganizationService constructs OrganizationService.
func NewOrganizationService(repo organizationStore, logger *zap.Logger) *OrganizationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrganizationService{repo: repo, logger: logger}
}

// Get returns an organization. Non-admins can only read their own.
func (s *OrganizationService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.Organization, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !claims.IsAdmin() && claims.OrganizationID != id {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot view another organization")
	}
	org, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "organization not found")
	}
	return org, nil
}

// List returns organizations, optionally filtered by type. Admin only.
func (s *OrganizationService) List(ctx context.Context, claims *models.JWTClaims, orgType models.OrganizationType) ([]models.Organization, error) {
	if claims == nil || !claims.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	orgs, err := s.repo.List(ctx, orgType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list organizations")
	}
	return orgs, nil
}

// SetFeeStatus updates an organization's fee status. Admin only.
// Moving to exempt_blocked blocks future commitment submissions; draft
// commitments remain editable.
func (s *OrganizationService) SetFeeStatus(ctx context.Context, claims *models.JWTClaims, id string, status models.FeeStatus) (*models.Organization, error) {
	if claims == nil || !claims.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	if !models.ValidFeeStatus(status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid fee status")
	}
	if err := s.repo.SetFeeStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "organization not found")
	}
	s.logger.Info("organization fee status updated",
		zap.String("organization_id", id),
		zap.String("fee_status", string(status)))
	return s.repo.GetByID(ctx, id)
}
