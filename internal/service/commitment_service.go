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
	"github.com/munify/munify-api/pkg/export"
)

type commitmentStore interface {
	Create(ctx context.Context, commitment *models.Commitment) error
	GetByID(ctx context.Context, id int64) (*models.Commitment, error)
	List(ctx context.Context, filter models.CommitmentFilter) ([]models.Commitment, int, error)
	History(ctx context.Context, commitmentID int64) ([]models.CommitmentHistory, error)
	Transition(ctx context.Context, update repository.TransitionUpdate) (*models.Commitment, error)
	UpdateEditable(ctx context.Context, commitment *models.Commitment, actor string) error
	SetReceipt(ctx context.Context, id int64, receiptURL string) error
}

type commitmentProjectStore interface {
	GetByReferenceID(ctx context.Context, referenceID string) (*models.Project, error)
	Update(ctx context.Context, project *models.Project) error
}

type organizationReader interface {
	GetByID(ctx context.Context, id string) (*models.Organization, error)
}

type receiptGenerator interface {
	Generate(commitment *models.Commitment, project *models.Project, organizationName string) (string, error)
}

// CommitmentService is the lifecycle manager for funding commitments. All
// status changes flow through transition, which delegates the atomic write
// (status, history snapshot, funding recompute) to the repository.
type CommitmentService struct {
	repo      commitmentStore
	projects  commitmentProjectStore
	orgs      organizationReader
	receipts  receiptGenerator
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewCommitmentService constructs CommitmentService. The receipt generator
// is optional; approvals proceed without a receipt when it is nil.
func NewCommitmentService(repo commitmentStore, projects commitmentProjectStore, orgs organizationReader, receipts receiptGenerator, validate *validator.Validate, logger *zap.Logger) *CommitmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommitmentService{
		repo:      repo,
		projects:  projects,
		orgs:      orgs,
		receipts:  receipts,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Create pledges funds against an active project. The commitment starts in
// draft, or in pending when SubmitNow is set (the submission gates apply in
// that case).
func (s *CommitmentService) Create(ctx context.Context, claims *models.JWTClaims, req dto.CreateCommitmentRequest) (*models.Commitment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid commitment payload")
	}
	if claims.OrganizationType != models.OrgTypeLender {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only lenders can commit funds")
	}
	if !models.ValidFundingMode(req.FundingMode) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown funding mode")
	}

	project, err := s.loadProject(ctx, req.ProjectReferenceID)
	if err != nil {
		return nil, err
	}
	if project.Status != models.ProjectStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "project is not open for funding")
	}
	if project.FundraisingClosed(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "fundraising window has closed")
	}

	status := models.CommitmentStatusDraft
	if req.SubmitNow {
		if err := s.checkSubmissionGates(ctx, claims.OrganizationID); err != nil {
			return nil, err
		}
		status = models.CommitmentStatusPending
	}

	commitment := &models.Commitment{
		ProjectReferenceID: project.ReferenceID,
		OrganizationType:   string(models.OrgTypeLender),
		OrganizationID:     claims.OrganizationID,
		CommittedBy:        claims.Email,
		Amount:             req.Amount,
		Currency:           project.Currency,
		FundingMode:        req.FundingMode,
		InterestRate:       req.InterestRate,
		TenureMonths:       req.TenureMonths,
		Terms:              req.Terms,
		Status:             status,
		CanModify:          true,
		CreatedBy:          &claims.UserID,
	}
	if err := s.repo.Create(ctx, commitment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create commitment")
	}
	return commitment, nil
}

// Get returns a commitment visible to the caller.
func (s *CommitmentService) Get(ctx context.Context, claims *models.JWTClaims, id int64) (*models.Commitment, error) {
	commitment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeView(ctx, claims, commitment); err != nil {
		return nil, err
	}
	return commitment, nil
}

// List returns commitments scoped to the caller: lenders see their own,
// municipalities see commitments on their projects, admins see everything.
func (s *CommitmentService) List(ctx context.Context, claims *models.JWTClaims, filter models.CommitmentFilter) ([]models.Commitment, *models.Pagination, error) {
	switch {
	case claims.IsAdmin():
		// unrestricted
	case claims.OrganizationType == models.OrgTypeLender:
		filter.OrganizationID = claims.OrganizationID
	case claims.OrganizationType == models.OrgTypeMunicipality:
		if filter.ProjectReferenceID == "" {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "project_reference_id is required")
		}
		project, err := s.loadProject(ctx, filter.ProjectReferenceID)
		if err != nil {
			return nil, nil, err
		}
		if project.OrganizationID != claims.OrganizationID {
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not the project owner")
		}
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "forbidden")
	}
	commitments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list commitments")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	pagination := &models.Pagination{Page: filter.Offset/limit + 1, PageSize: limit, TotalCount: total}
	return commitments, pagination, nil
}

// History returns the append-only snapshots for a commitment.
func (s *CommitmentService) History(ctx context.Context, claims *models.JWTClaims, id int64) ([]models.CommitmentHistory, error) {
	commitment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeView(ctx, claims, commitment); err != nil {
		return nil, err
	}
	history, err := s.repo.History(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
	}
	return history, nil
}

// Update edits the negotiable fields of a commitment that is still
// modifiable by its owner.
func (s *CommitmentService) Update(ctx context.Context, claims *models.JWTClaims, id int64, req dto.UpdateCommitmentRequest) (*models.Commitment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid commitment update")
	}
	commitment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !claims.IsAdmin() && commitment.OrganizationID != claims.OrganizationID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not the commitment owner")
	}
	if !commitment.CanModify || commitment.IsLocked {
		return nil, appErrors.Clone(appErrors.ErrLocked, "commitment is locked against modification")
	}
	if !claims.IsAdmin() {
		if err := s.ensureFundraisingOpen(ctx, commitment.ProjectReferenceID); err != nil {
			return nil, err
		}
	}
	if req.Amount != nil {
		commitment.Amount = *req.Amount
	}
	if req.FundingMode != nil {
		if !models.ValidFundingMode(*req.FundingMode) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown funding mode")
		}
		commitment.FundingMode = *req.FundingMode
	}
	if req.InterestRate != nil {
		commitment.InterestRate = req.InterestRate
	}
	if req.TenureMonths != nil {
		commitment.TenureMonths = req.TenureMonths
	}
	if req.Terms != nil {
		commitment.Terms = req.Terms
	}
	if err := s.repo.UpdateEditable(ctx, commitment, claims.UserID); err != nil {
		if errors.Is(err, repository.ErrStaleRow) {
			return nil, appErrors.Clone(appErrors.ErrLocked, "commitment was locked concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update commitment")
	}
	return commitment, nil
}

// Submit moves a draft commitment into the review queue. Submission is
// refused while the lender organization is blocked on platform fees.
func (s *CommitmentService) Submit(ctx context.Context, claims *models.JWTClaims, id int64) (*models.Commitment, error) {
	commitment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !claims.IsAdmin() && commitment.OrganizationID != claims.OrganizationID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not the commitment owner")
	}
	if err := s.checkSubmissionGates(ctx, commitment.OrganizationID); err != nil {
		return nil, err
	}
	return s.transition(ctx, commitment, repository.TransitionUpdate{
		To:        models.CommitmentStatusPending,
		Action:    models.HistoryActionSubmitted,
		Actor:     claims.UserID,
		CanModify: true,
	})
}

// Claim takes a pending commitment into review, freezing it against lender
// edits for the duration.
func (s *CommitmentService) Claim(ctx context.Context, claims *models.JWTClaims, id int64) (*models.Commitment, error) {
	if !claims.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	commitment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, commitment, repository.TransitionUpdate{
		To:       models.CommitmentStatusUnderReview,
		Action:   models.HistoryActionClaimed,
		Actor:    claims.UserID,
		IsLocked: true,
	})
}

// Review resolves a commitment under review. Approval locks the commitment,
// records the approver, generates the acknowledgment receipt, and may mark
// the project fully funded. Rejection requires a reason.
func (s *CommitmentService) Review(ctx context.Context, claims *models.JWTClaims, id int64, req dto.ReviewCommitmentRequest) (*models.Commitment, error) {
	if !claims.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	commitment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	switch req.Decision {
	case dto.ReviewDecisionApproved:
		now := s.now().UTC()
		updated, err := s.transition(ctx, commitment, repository.TransitionUpdate{
			To:         models.CommitmentStatusApproved,
			Action:     models.HistoryActionApproved,
			Actor:      claims.UserID,
			IsLocked:   true,
			ApprovedBy: &claims.UserID,
			ApprovedAt: &now,
		})
		if err != nil {
			return nil, err
		}
		s.generateReceipt(ctx, updated)
		s.checkFundingCompleted(ctx, updated.ProjectReferenceID, claims.UserID)
		return updated, nil
	case dto.ReviewDecisionRejected:
		if req.Reason == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "rejection reason is required")
		}
		reason := req.Reason
		var notes *string
		if req.Notes != "" {
			notes = &req.Notes
		}
		return s.transition(ctx, commitment, repository.TransitionUpdate{
			To:              models.CommitmentStatusRejected,
			Action:          models.HistoryActionRejected,
			Actor:           claims.UserID,
			IsLocked:        true,
			RejectionReason: &reason,
			RejectionNotes:  notes,
		})
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision must be approved or rejected")
	}
}

// Withdraw retracts a commitment. Owners may withdraw while the commitment
// is still modifiable; admins may withdraw from any non-terminal state.
// Withdrawing a counted commitment reopens the project's funding gap via
// the recompute inside the transition.
func (s *CommitmentService) Withdraw(ctx context.Context, claims *models.JWTClaims, id int64) (*models.Commitment, error) {
	commitment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !claims.IsAdmin() {
		if commitment.OrganizationID != claims.OrganizationID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not the commitment owner")
		}
		if !commitment.CanModify || commitment.IsLocked {
			return nil, appErrors.Clone(appErrors.ErrLocked, "commitment can no longer be withdrawn by its owner")
		}
		if err := s.ensureFundraisingOpen(ctx, commitment.ProjectReferenceID); err != nil {
			return nil, err
		}
	}
	return s.transition(ctx, commitment, repository.TransitionUpdate{
		To:       models.CommitmentStatusWithdrawn,
		Action:   models.HistoryActionWithdrawn,
		Actor:    claims.UserID,
		IsLocked: true,
	})
}

// MarkFunded records the disbursement of an approved commitment.
func (s *CommitmentService) MarkFunded(ctx context.Context, claims *models.JWTClaims, id int64) (*models.Commitment, error) {
	if !claims.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	commitment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, commitment, repository.TransitionUpdate{
		To:       models.CommitmentStatusFunded,
		Action:   models.HistoryActionFunded,
		Actor:    claims.UserID,
		IsLocked: true,
	})
}

// MarkCompleted closes out a funded commitment.
func (s *CommitmentService) MarkCompleted(ctx context.Context, claims *models.JWTClaims, id int64) (*models.Commitment, error) {
	if !claims.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	commitment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, commitment, repository.TransitionUpdate{
		To:       models.CommitmentStatusCompleted,
		Action:   models.HistoryActionCompleted,
		Actor:    claims.UserID,
		IsLocked: true,
	})
}

// Export renders commitments matching the filter as a CSV dataset.
func (s *CommitmentService) Export(ctx context.Context, claims *models.JWTClaims, filter models.CommitmentFilter) (export.Dataset, error) {
	if !claims.IsAdmin() {
		return export.Dataset{}, appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	filter.Limit = 200
	filter.Offset = 0
	var commitments []models.Commitment
	for {
		page, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list commitments")
		}
		commitments = append(commitments, page...)
		filter.Offset += len(page)
		if len(page) == 0 || filter.Offset >= total {
			break
		}
	}
	dataset := export.Dataset{
		Headers: []string{"id", "project_reference_id", "organization_id", "amount", "currency", "funding_mode", "status", "created_at"},
		Rows:    make([]map[string]string, 0, len(commitments)),
	}
	for _, c := range commitments {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"id":                   fmt.Sprintf("%d", c.ID),
			"project_reference_id": c.ProjectReferenceID,
			"organization_id":      c.OrganizationID,
			"amount":               fmt.Sprintf("%.2f", c.Amount),
			"currency":             c.Currency,
			"funding_mode":         string(c.FundingMode),
			"status":               string(c.Status),
			"created_at":           c.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return dataset, nil
}

func (s *CommitmentService) transition(ctx context.Context, commitment *models.Commitment, update repository.TransitionUpdate) (*models.Commitment, error) {
	if !commitment.Status.CanTransitionTo(update.To) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot move commitment from %s to %s", commitment.Status, update.To))
	}
	update.ID = commitment.ID
	update.From = commitment.Status
	updated, err := s.repo.Transition(ctx, update)
	if err != nil {
		if errors.Is(err, repository.ErrStaleRow) {
			return nil, appErrors.Clone(appErrors.ErrConcurrency, "commitment changed concurrently, reload and retry")
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "commitment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply transition")
	}
	return updated, nil
}

// ensureFundraisingOpen enforces the modifiability window: once the
// project's fundraising end passes, owner edits and withdrawals are
// refused even though the stored can_modify flag is untouched. The
// window is evaluated at call time rather than rewritten onto rows.
func (s *CommitmentService) ensureFundraisingOpen(ctx context.Context, referenceID string) error {
	project, err := s.loadProject(ctx, referenceID)
	if err != nil {
		return err
	}
	if project.FundraisingClosed(s.now()) {
		return appErrors.Clone(appErrors.ErrLocked, "fundraising window has closed")
	}
	return nil
}

func (s *CommitmentService) checkSubmissionGates(ctx context.Context, organizationID string) error {
	org, err := s.orgs.GetByID(ctx, organizationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "organization not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load organization")
	}
	if !org.Active {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "organization is inactive")
	}
	if org.FeeStatus == models.FeeStatusExemptBlocked {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "organization is blocked pending platform fees")
	}
	return nil
}

// generateReceipt is best effort: a rendering or storage failure never
// rolls back an approval.
func (s *CommitmentService) generateReceipt(ctx context.Context, commitment *models.Commitment) {
	if s.receipts == nil {
		return
	}
	project, err := s.loadProject(ctx, commitment.ProjectReferenceID)
	if err != nil {
		s.logger.Error("receipt skipped, project unavailable",
			zap.Int64("commitment_id", commitment.ID), zap.Error(err))
		return
	}
	orgName := commitment.OrganizationID
	if org, err := s.orgs.GetByID(ctx, commitment.OrganizationID); err == nil {
		orgName = org.Name
	}
	token, err := s.receipts.Generate(commitment, project, orgName)
	if err != nil {
		s.logger.Error("receipt generation failed",
			zap.Int64("commitment_id", commitment.ID), zap.Error(err))
		return
	}
	if err := s.repo.SetReceipt(ctx, commitment.ID, token); err != nil {
		s.logger.Error("failed to store receipt reference",
			zap.Int64("commitment_id", commitment.ID), zap.Error(err))
		return
	}
	now := s.now().UTC()
	commitment.ReceiptURL = &token
	commitment.ReceiptGeneratedAt = &now
}

// checkFundingCompleted flips the project to funding_completed once raised
// funds cover the requirement. Best effort; the next approval retries.
func (s *CommitmentService) checkFundingCompleted(ctx context.Context, referenceID, actor string) {
	project, err := s.loadProject(ctx, referenceID)
	if err != nil {
		s.logger.Error("funding completion check failed",
			zap.String("reference_id", referenceID), zap.Error(err))
		return
	}
	if project.Status != models.ProjectStatusActive || project.FundingRaised < project.FundingRequirement {
		return
	}
	project.Status = models.ProjectStatusFundingCompleted
	project.UpdatedBy = &actor
	if err := s.projects.Update(ctx, project); err != nil {
		s.logger.Error("failed to mark project funding completed",
			zap.String("reference_id", referenceID), zap.Error(err))
	}
}

func (s *CommitmentService) load(ctx context.Context, id int64) (*models.Commitment, error) {
	commitment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "commitment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load commitment")
	}
	return commitment, nil
}

func (s *CommitmentService) loadProject(ctx context.Context, referenceID string) (*models.Project, error) {
	project, err := s.projects.GetByReferenceID(ctx, referenceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	return project, nil
}

func (s *CommitmentService) authorizeView(ctx context.Context, claims *models.JWTClaims, commitment *models.Commitment) error {
	if claims.IsAdmin() || commitment.OrganizationID == claims.OrganizationID {
		return nil
	}
	if claims.OrganizationType == models.OrgTypeMunicipality {
		project, err := s.loadProject(ctx, commitment.ProjectReferenceID)
		if err != nil {
			return err
		}
		if project.OrganizationID == claims.OrganizationID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrNotFound, "commitment not found")
}
