package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/munify/munify-api/internal/dto"
	"github.com/munify/munify-api/internal/models"
	"github.com/munify/munify-api/internal/repository"
	appErrors "github.com/munify/munify-api/pkg/errors"
)

// referenceIDAttempts bounds the retry loop when two creates race on the
// same reference number.
const referenceIDAttempts = 3

const defaultCurrency = "INR"

type projectStore interface {
	NextReferenceSequence(ctx context.Context, year int) (int, error)
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id int64) (*models.Project, error)
	GetByReferenceID(ctx context.Context, referenceID string) (*models.Project, error)
	List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, int, error)
	Update(ctx context.Context, project *models.Project) error
	SoftDelete(ctx context.Context, id int64) error
	RecomputeFunding(ctx context.Context, referenceID string) (models.FundingTotals, error)
	CreateRejection(ctx context.Context, rejection *models.ProjectRejection) error
	LatestRejection(ctx context.Context, projectID int64) (*models.ProjectRejection, error)
	MarkResubmitted(ctx context.Context, rejectionID int64) error
}

// ProjectService orchestrates the project listing and validation workflow.
type ProjectService struct {
	repo      projectStore
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewProjectService constructs ProjectService.
func NewProjectService(repo projectStore, validate *validator.Validate, logger *zap.Logger) *ProjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectService{repo: repo, validator: validate, logger: logger, now: time.Now}
}

// Create lists a new project in draft with a backend-assigned reference ID.
// The reference sequence is advanced atomically; a unique-constraint race on
// insert retries with a fresh number.
func (s *ProjectService) Create(ctx context.Context, claims *models.JWTClaims, req dto.CreateProjectRequest) (*models.Project, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid project payload")
	}
	if claims.OrganizationType != models.OrgTypeMunicipality && !claims.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only municipalities can list projects")
	}
	stage := req.Stage
	if stage == "" {
		stage = models.ProjectStagePlanning
	}
	if !models.ValidProjectStage(stage) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown project stage")
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = models.VisibilityPrivate
	}
	if !models.ValidVisibility(visibility) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown visibility")
	}
	if req.FundraisingStart != nil && req.FundraisingEnd != nil && req.FundraisingEnd.Before(*req.FundraisingStart) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "fundraising window ends before it starts")
	}

	project := &models.Project{
		OrganizationType:   string(models.OrgTypeMunicipality),
		OrganizationID:     claims.OrganizationID,
		Title:              req.Title,
		Department:         req.Department,
		ContactPerson:      req.ContactPerson,
		ContactEmail:       req.ContactEmail,
		ContactPhone:       req.ContactPhone,
		Category:           req.Category,
		Stage:              stage,
		Description:        req.Description,
		State:              req.State,
		City:               req.City,
		Ward:               req.Ward,
		TotalProjectCost:   req.TotalProjectCost,
		FundingRequirement: req.FundingRequirement,
		Currency:           defaultCurrency,
		FundraisingStart:   req.FundraisingStart,
		FundraisingEnd:     req.FundraisingEnd,
		CreditRating:       req.CreditRating,
		CreditScore:        req.CreditScore,
		Status:             models.ProjectStatusDraft,
		Visibility:         visibility,
		CreatedBy:          &claims.UserID,
	}
	if req.AlreadySecured != nil {
		project.AlreadySecured = *req.AlreadySecured
	}
	if project.AlreadySecured > project.FundingRequirement {
		return nil, appErrors.Clone(appErrors.ErrValidation, "already secured funds exceed the funding requirement")
	}

	year := s.now().UTC().Year()
	for attempt := 0; attempt < referenceIDAttempts; attempt++ {
		seq, err := s.repo.NextReferenceSequence(ctx, year)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate reference id")
		}
		project.ReferenceID = fmt.Sprintf("PROJ-%d-%05d", year, seq)
		err = s.repo.Create(ctx, project)
		if err == nil {
			return project, nil
		}
		if repository.IsUniqueViolation(err) {
			s.logger.Warn("reference id collision, retrying",
				zap.String("reference_id", project.ReferenceID),
				zap.Int("attempt", attempt+1))
			continue
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create project")
	}
	return nil, appErrors.Clone(appErrors.ErrConcurrency, "could not allocate a unique reference id")
}

// Get returns a project by reference ID, enforcing visibility.
func (s *ProjectService) Get(ctx context.Context, claims *models.JWTClaims, referenceID string) (*models.Project, error) {
	project, err := s.load(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if !s.canView(claims, project) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
	}
	return project, nil
}

// List returns projects scoped to the caller's role: municipalities see
// their own listings, lenders and anonymous callers see public active
// projects, admins see all.
func (s *ProjectService) List(ctx context.Context, claims *models.JWTClaims, filter models.ProjectFilter) ([]models.Project, *models.Pagination, error) {
	switch {
	case claims.IsAdmin():
		// unrestricted
	case claims != nil && claims.OrganizationType == models.OrgTypeMunicipality:
		filter.OrganizationID = claims.OrganizationID
	default:
		filter.Visibility = models.VisibilityPublic
		if filter.Status == "" {
			filter.Status = models.ProjectStatusActive
		}
	}
	projects, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list projects")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	page := filter.Offset/limit + 1
	pagination := &models.Pagination{Page: page, PageSize: limit, TotalCount: total}
	return projects, pagination, nil
}

// Update applies a partial edit to a project the caller owns. Projects in
// active or later states are frozen except for admins.
func (s *ProjectService) Update(ctx context.Context, claims *models.JWTClaims, referenceID string, req dto.UpdateProjectRequest) (*models.Project, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid project update")
	}
	project, err := s.load(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if !s.canManage(claims, project) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not the project owner")
	}
	if !claims.IsAdmin() && !projectEditable(project.Status) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "project can no longer be edited")
	}
	applyProjectUpdate(project, req)
	if project.AlreadySecured > project.FundingRequirement {
		return nil, appErrors.Clone(appErrors.ErrValidation, "already secured funds exceed the funding requirement")
	}
	project.UpdatedBy = &claims.UserID
	if err := s.repo.Update(ctx, project); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update project")
	}
	return project, nil
}

// Submit moves a draft project into validation.
func (s *ProjectService) Submit(ctx context.Context, claims *models.JWTClaims, referenceID string) (*models.Project, error) {
	return s.changeStatus(ctx, claims, referenceID, models.ProjectStatusDraft, models.ProjectStatusPendingValidation, false, nil)
}

// Approve validates a pending project and makes it publicly listed.
func (s *ProjectService) Approve(ctx context.Context, claims *models.JWTClaims, referenceID string, req dto.ApproveProjectRequest) (*models.Project, error) {
	if !claims.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	now := s.now().UTC()
	return s.changeStatus(ctx, claims, referenceID, models.ProjectStatusPendingValidation, models.ProjectStatusActive, true, func(p *models.Project) {
		p.ApprovedAt = &now
		p.ApprovedBy = &claims.UserID
		p.Visibility = models.VisibilityPublic
		if req.AdminNotes != "" {
			p.AdminNotes = &req.AdminNotes
		}
	})
}

// Reject declines a pending project with a mandatory note and records the
// rejection for the resubmission audit trail.
func (s *ProjectService) Reject(ctx context.Context, claims *models.JWTClaims, referenceID string, req dto.RejectProjectRequest) (*models.Project, error) {
	if !claims.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "rejection note is required")
	}
	project, err := s.changeStatus(ctx, claims, referenceID, models.ProjectStatusPendingValidation, models.ProjectStatusRejected, true, func(p *models.Project) {
		p.AdminNotes = &req.Note
	})
	if err != nil {
		return nil, err
	}
	rejection := &models.ProjectRejection{
		ProjectID:     project.ID,
		RejectedBy:    claims.UserID,
		RejectionNote: req.Note,
	}
	if err := s.repo.CreateRejection(ctx, rejection); err != nil {
		s.logger.Error("failed to record project rejection",
			zap.String("reference_id", referenceID), zap.Error(err))
	}
	return project, nil
}

// Resubmit reopens a rejected project for validation, applying any edits.
func (s *ProjectService) Resubmit(ctx context.Context, claims *models.JWTClaims, referenceID string, req dto.ResubmitProjectRequest) (*models.Project, error) {
	project, err := s.load(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if !s.canManage(claims, project) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not the project owner")
	}
	if project.Status != models.ProjectStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only rejected projects can be resubmitted")
	}
	applyProjectUpdate(project, req.UpdateProjectRequest)
	project.Status = models.ProjectStatusPendingValidation
	project.UpdatedBy = &claims.UserID
	if err := s.repo.Update(ctx, project); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resubmit project")
	}
	if rejection, err := s.repo.LatestRejection(ctx, project.ID); err == nil {
		if err := s.repo.MarkResubmitted(ctx, rejection.ID); err != nil {
			s.logger.Error("failed to stamp resubmission",
				zap.String("reference_id", referenceID), zap.Error(err))
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.logger.Error("failed to load rejection record",
			zap.String("reference_id", referenceID), zap.Error(err))
	}
	return project, nil
}

// Close ends fundraising for an active or fully funded project.
func (s *ProjectService) Close(ctx context.Context, claims *models.JWTClaims, referenceID string) (*models.Project, error) {
	project, err := s.load(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if !s.canManage(claims, project) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not the project owner")
	}
	if project.Status != models.ProjectStatusActive && project.Status != models.ProjectStatusFundingCompleted {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "project is not open")
	}
	project.Status = models.ProjectStatusClosed
	project.UpdatedBy = &claims.UserID
	if err := s.repo.Update(ctx, project); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close project")
	}
	return project, nil
}

// Delete soft-deletes a project that never went live.
func (s *ProjectService) Delete(ctx context.Context, claims *models.JWTClaims, referenceID string) error {
	project, err := s.load(ctx, referenceID)
	if err != nil {
		return err
	}
	if !s.canManage(claims, project) {
		return appErrors.Clone(appErrors.ErrForbidden, "not the project owner")
	}
	if project.Status != models.ProjectStatusDraft && project.Status != models.ProjectStatusRejected {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "only draft or rejected projects can be deleted")
	}
	if err := s.repo.SoftDelete(ctx, project.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete project")
	}
	return nil
}

// RecomputeFunding rederives the project's funding totals from its
// commitments. Admin repair path; routine transitions keep totals current
// on their own.
func (s *ProjectService) RecomputeFunding(ctx context.Context, claims *models.JWTClaims, referenceID string) (*models.FundingTotals, error) {
	if !claims.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	if _, err := s.load(ctx, referenceID); err != nil {
		return nil, err
	}
	totals, err := s.repo.RecomputeFunding(ctx, referenceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to recompute funding")
	}
	return &totals, nil
}

// Rejections returns the latest rejection record for a project.
func (s *ProjectService) Rejections(ctx context.Context, claims *models.JWTClaims, referenceID string) (*models.ProjectRejection, error) {
	project, err := s.load(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if !s.canManage(claims, project) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not the project owner")
	}
	rejection, err := s.repo.LatestRejection(ctx, project.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no rejection recorded")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rejection")
	}
	return rejection, nil
}

func (s *ProjectService) load(ctx context.Context, referenceID string) (*models.Project, error) {
	project, err := s.repo.GetByReferenceID(ctx, referenceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	return project, nil
}

func (s *ProjectService) changeStatus(ctx context.Context, claims *models.JWTClaims, referenceID string, from, to models.ProjectStatus, adminOnly bool, mutate func(*models.Project)) (*models.Project, error) {
	project, err := s.load(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if adminOnly {
		if !claims.IsAdmin() {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "admin role required")
		}
	} else if !s.canManage(claims, project) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not the project owner")
	}
	if project.Status != from {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("project is %s, expected %s", project.Status, from))
	}
	project.Status = to
	if mutate != nil {
		mutate(project)
	}
	project.UpdatedBy = &claims.UserID
	if err := s.repo.Update(ctx, project); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update project status")
	}
	return project, nil
}

// canView tolerates nil claims: anonymous callers see public projects only.
func (s *ProjectService) canView(claims *models.JWTClaims, project *models.Project) bool {
	if claims != nil && (claims.IsAdmin() || claims.OrganizationID == project.OrganizationID) {
		return true
	}
	return project.Visibility == models.VisibilityPublic
}

func (s *ProjectService) canManage(claims *models.JWTClaims, project *models.Project) bool {
	return claims.IsAdmin() || claims.OrganizationID == project.OrganizationID
}

func projectEditable(status models.ProjectStatus) bool {
	switch status {
	case models.ProjectStatusDraft, models.ProjectStatusPendingValidation, models.ProjectStatusRejected:
		return true
	}
	return false
}

func applyProjectUpdate(project *models.Project, req dto.UpdateProjectRequest) {
	if req.Title != nil {
		project.Title = *req.Title
	}
	if req.Department != nil {
		project.Department = req.Department
	}
	if req.ContactPerson != nil {
		project.ContactPerson = *req.ContactPerson
	}
	if req.ContactEmail != nil {
		project.ContactEmail = req.ContactEmail
	}
	if req.ContactPhone != nil {
		project.ContactPhone = req.ContactPhone
	}
	if req.Category != nil {
		project.Category = req.Category
	}
	if req.Stage != nil {
		project.Stage = *req.Stage
	}
	if req.Description != nil {
		project.Description = req.Description
	}
	if req.State != nil {
		project.State = req.State
	}
	if req.City != nil {
		project.City = req.City
	}
	if req.Ward != nil {
		project.Ward = req.Ward
	}
	if req.TotalProjectCost != nil {
		project.TotalProjectCost = req.TotalProjectCost
	}
	if req.FundingRequirement != nil {
		project.FundingRequirement = *req.FundingRequirement
	}
	if req.AlreadySecured != nil {
		project.AlreadySecured = *req.AlreadySecured
	}
	if req.FundraisingStart != nil {
		project.FundraisingStart = req.FundraisingStart
	}
	if req.FundraisingEnd != nil {
		project.FundraisingEnd = req.FundraisingEnd
	}
	if req.CreditRating != nil {
		project.CreditRating = req.CreditRating
	}
	if req.CreditScore != nil {
		project.CreditScore = req.CreditScore
	}
	if req.Visibility != nil {
		project.Visibility = *req.Visibility
	}
}
