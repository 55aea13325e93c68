package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munify/munify-api/internal/dto"
	"github.com/munify/munify-api/internal/models"
	"github.com/munify/munify-api/internal/repository"
	appErrors "github.com/munify/munify-api/pkg/errors"
)

type stubCommitmentStore struct {
	createFn     func(ctx context.Context, c *models.Commitment) error
	getFn        func(ctx context.Context, id int64) (*models.Commitment, error)
	listFn       func(ctx context.Context, f models.CommitmentFilter) ([]models.Commitment, int, error)
	historyFn    func(ctx context.Context, id int64) ([]models.CommitmentHistory, error)
	transitionFn func(ctx context.Context, u repository.TransitionUpdate) (*models.Commitment, error)
	updateFn     func(ctx context.Context, c *models.Commitment, actor string) error
	setReceiptFn func(ctx context.Context, id int64, url string) error
}

func (s *stubCommitmentStore) Create(ctx context.Context, c *models.Commitment) error {
	return s.createFn(ctx, c)
}

func (s *stubCommitmentStore) GetByID(ctx context.Context, id int64) (*models.Commitment, error) {
	return s.getFn(ctx, id)
}

func (s *stubCommitmentStore) List(ctx context.Context, f models.CommitmentFilter) ([]models.Commitment, int, error) {
	return s.listFn(ctx, f)
}

func (s *stubCommitmentStore) History(ctx context.Context, id int64) ([]models.CommitmentHistory, error) {
	return s.historyFn(ctx, id)
}

func (s *stubCommitmentStore) Transition(ctx context.Context, u repository.TransitionUpdate) (*models.Commitment, error) {
	return s.transitionFn(ctx, u)
}

func (s *stubCommitmentStore) UpdateEditable(ctx context.Context, c *models.Commitment, actor string) error {
	return s.updateFn(ctx, c, actor)
}

func (s *stubCommitmentStore) SetReceipt(ctx context.Context, id int64, url string) error {
	if s.setReceiptFn != nil {
		return s.setReceiptFn(ctx, id, url)
	}
	return nil
}

type stubProjectReader struct {
	getFn    func(ctx context.Context, ref string) (*models.Project, error)
	updateFn func(ctx context.Context, p *models.Project) error
}

func (s *stubProjectReader) GetByReferenceID(ctx context.Context, ref string) (*models.Project, error) {
	return s.getFn(ctx, ref)
}

func (s *stubProjectReader) Update(ctx context.Context, p *models.Project) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, p)
	}
	return nil
}

type stubOrgReader struct {
	org *models.Organization
	err error
}

func (s *stubOrgReader) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	return s.org, s.err
}

func lenderClaims() *models.JWTClaims {
	return &models.JWTClaims{
		UserID:           "user-lender",
		Role:             models.RoleLender,
		Email:            "analyst@lender.example",
		OrganizationID:   "org-lender-1",
		OrganizationType: models.OrgTypeLender,
	}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-admin", Role: models.RoleAdmin, Email: "admin@munify.example"}
}

func activeProject() *models.Project {
	return &models.Project{
		ID:                 1,
		ReferenceID:        "PROJ-2026-00001",
		OrganizationID:     "org-muni-1",
		Title:              "Ward 12 Water Treatment Upgrade",
		Currency:           "INR",
		FundingRequirement: 1000000,
		Status:             models.ProjectStatusActive,
		Visibility:         models.VisibilityPublic,
	}
}

func activeOrg() *models.Organization {
	return &models.Organization{ID: "org-lender-1", Name: "First Infra Bank", Type: models.OrgTypeLender, FeeStatus: models.FeeStatusActive, Active: true}
}

func TestCommitmentServiceCreateRejectsNonLender(t *testing.T) {
	svc := NewCommitmentService(&stubCommitmentStore{}, &stubProjectReader{}, &stubOrgReader{}, nil, nil, nil)

	claims := &models.JWTClaims{Role: models.RoleMunicipality, OrganizationType: models.OrgTypeMunicipality, OrganizationID: "org-muni-1"}
	_, err := svc.Create(context.Background(), claims, dto.CreateCommitmentRequest{
		ProjectReferenceID: "PROJ-2026-00001",
		Amount:             100000,
		FundingMode:        models.FundingModeLoan,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCommitmentServiceCreateOnInactiveProject(t *testing.T) {
	project := activeProject()
	project.Status = models.ProjectStatusPendingValidation
	projects := &stubProjectReader{getFn: func(ctx context.Context, ref string) (*models.Project, error) {
		return project, nil
	}}
	svc := NewCommitmentService(&stubCommitmentStore{}, projects, &stubOrgReader{org: activeOrg()}, nil, nil, nil)

	_, err := svc.Create(context.Background(), lenderClaims(), dto.CreateCommitmentRequest{
		ProjectReferenceID: project.ReferenceID,
		Amount:             100000,
		FundingMode:        models.FundingModeLoan,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestCommitmentServiceCreateDraftThenSubmitNow(t *testing.T) {
	projects := &stubProjectReader{getFn: func(ctx context.Context, ref string) (*models.Project, error) {
		return activeProject(), nil
	}}
	var created *models.Commitment
	store := &stubCommitmentStore{createFn: func(ctx context.Context, c *models.Commitment) error {
		created = c
		c.ID = 10
		return nil
	}}
	svc := NewCommitmentService(store, projects, &stubOrgReader{org: activeOrg()}, nil, nil, nil)

	commitment, err := svc.Create(context.Background(), lenderClaims(), dto.CreateCommitmentRequest{
		ProjectReferenceID: "PROJ-2026-00001",
		Amount:             250000,
		FundingMode:        models.FundingModeGrant,
		SubmitNow:          true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.CommitmentStatusPending, commitment.Status)
	assert.True(t, created.CanModify)
	assert.Equal(t, "INR", created.Currency)
}

func TestCommitmentServiceSubmitBlockedOnFees(t *testing.T) {
	store := &stubCommitmentStore{getFn: func(ctx context.Context, id int64) (*models.Commitment, error) {
		return &models.Commitment{ID: id, OrganizationID: "org-lender-1", Status: models.CommitmentStatusDraft, CanModify: true}, nil
	}}
	blocked := activeOrg()
	blocked.FeeStatus = models.FeeStatusExemptBlocked
	svc := NewCommitmentService(store, &stubProjectReader{}, &stubOrgReader{org: blocked}, nil, nil, nil)

	_, err := svc.Submit(context.Background(), lenderClaims(), 10)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestCommitmentServiceReviewRejectRequiresReason(t *testing.T) {
	store := &stubCommitmentStore{getFn: func(ctx context.Context, id int64) (*models.Commitment, error) {
		return &models.Commitment{ID: id, OrganizationID: "org-lender-1", Status: models.CommitmentStatusUnderReview, IsLocked: true}, nil
	}}
	svc := NewCommitmentService(store, &stubProjectReader{}, &stubOrgReader{org: activeOrg()}, nil, nil, nil)

	_, err := svc.Review(context.Background(), adminClaims(), 10, dto.ReviewCommitmentRequest{
		Decision: dto.ReviewDecisionRejected,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCommitmentServiceReviewApproveRecordsApproval(t *testing.T) {
	var captured repository.TransitionUpdate
	store := &stubCommitmentStore{
		getFn: func(ctx context.Context, id int64) (*models.Commitment, error) {
			return &models.Commitment{ID: id, ProjectReferenceID: "PROJ-2026-00001", OrganizationID: "org-lender-1", Status: models.CommitmentStatusUnderReview, IsLocked: true}, nil
		},
		transitionFn: func(ctx context.Context, u repository.TransitionUpdate) (*models.Commitment, error) {
			captured = u
			return &models.Commitment{ID: u.ID, ProjectReferenceID: "PROJ-2026-00001", Status: u.To, ApprovedBy: u.ApprovedBy, ApprovedAt: u.ApprovedAt}, nil
		},
	}
	projects := &stubProjectReader{getFn: func(ctx context.Context, ref string) (*models.Project, error) {
		return activeProject(), nil
	}}
	svc := NewCommitmentService(store, projects, &stubOrgReader{org: activeOrg()}, nil, nil, nil)

	updated, err := svc.Review(context.Background(), adminClaims(), 10, dto.ReviewCommitmentRequest{
		Decision: dto.ReviewDecisionApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, models.CommitmentStatusApproved, updated.Status)
	assert.Equal(t, models.CommitmentStatusUnderReview, captured.From)
	assert.True(t, captured.IsLocked)
	require.NotNil(t, captured.ApprovedBy)
	assert.Equal(t, "user-admin", *captured.ApprovedBy)
}

func TestCommitmentServiceApproveMarksProjectFundingCompleted(t *testing.T) {
	store := &stubCommitmentStore{
		getFn: func(ctx context.Context, id int64) (*models.Commitment, error) {
			return &models.Commitment{ID: id, ProjectReferenceID: "PROJ-2026-00001", OrganizationID: "org-lender-1", Status: models.CommitmentStatusUnderReview}, nil
		},
		transitionFn: func(ctx context.Context, u repository.TransitionUpdate) (*models.Commitment, error) {
			return &models.Commitment{ID: u.ID, ProjectReferenceID: "PROJ-2026-00001", Status: u.To}, nil
		},
	}
	project := activeProject()
	project.FundingRaised = project.FundingRequirement
	var savedStatus models.ProjectStatus
	projects := &stubProjectReader{
		getFn: func(ctx context.Context, ref string) (*models.Project, error) {
			copy := *project
			return &copy, nil
		},
		updateFn: func(ctx context.Context, p *models.Project) error {
			savedStatus = p.Status
			return nil
		},
	}
	svc := NewCommitmentService(store, projects, &stubOrgReader{org: activeOrg()}, nil, nil, nil)

	_, err := svc.Review(context.Background(), adminClaims(), 10, dto.ReviewCommitmentRequest{Decision: dto.ReviewDecisionApproved})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusFundingCompleted, savedStatus)
}

func TestCommitmentServiceWithdrawOwnerLocked(t *testing.T) {
	store := &stubCommitmentStore{getFn: func(ctx context.Context, id int64) (*models.Commitment, error) {
		return &models.Commitment{ID: id, OrganizationID: "org-lender-1", Status: models.CommitmentStatusApproved, IsLocked: true}, nil
	}}
	svc := NewCommitmentService(store, &stubProjectReader{}, &stubOrgReader{org: activeOrg()}, nil, nil, nil)

	_, err := svc.Withdraw(context.Background(), lenderClaims(), 10)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrLocked.Code, appErrors.FromError(err).Code)
}

func TestCommitmentServiceWithdrawAdminFromApproved(t *testing.T) {
	var captured repository.TransitionUpdate
	store := &stubCommitmentStore{
		getFn: func(ctx context.Context, id int64) (*models.Commitment, error) {
			return &models.Commitment{ID: id, ProjectReferenceID: "PROJ-2026-00001", OrganizationID: "org-lender-1", Status: models.CommitmentStatusApproved, IsLocked: true}, nil
		},
		transitionFn: func(ctx context.Context, u repository.TransitionUpdate) (*models.Commitment, error) {
			captured = u
			return &models.Commitment{ID: u.ID, Status: u.To}, nil
		},
	}
	svc := NewCommitmentService(store, &stubProjectReader{}, &stubOrgReader{org: activeOrg()}, nil, nil, nil)

	updated, err := svc.Withdraw(context.Background(), adminClaims(), 10)
	require.NoError(t, err)
	assert.Equal(t, models.CommitmentStatusWithdrawn, updated.Status)
	assert.Equal(t, models.CommitmentStatusApproved, captured.From)
}

func TestCommitmentServiceWithdrawTerminalState(t *testing.T) {
	store := &stubCommitmentStore{getFn: func(ctx context.Context, id int64) (*models.Commitment, error) {
		return &models.Commitment{ID: id, OrganizationID: "org-lender-1", Status: models.CommitmentStatusCompleted, IsLocked: true}, nil
	}}
	svc := NewCommitmentService(store, &stubProjectReader{}, &stubOrgReader{org: activeOrg()}, nil, nil, nil)

	_, err := svc.Withdraw(context.Background(), adminClaims(), 10)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestCommitmentServiceStaleTransitionMapsToConcurrency(t *testing.T) {
	store := &stubCommitmentStore{
		getFn: func(ctx context.Context, id int64) (*models.Commitment, error) {
			return &models.Commitment{ID: id, OrganizationID: "org-lender-1", Status: models.CommitmentStatusPending, CanModify: true}, nil
		},
		transitionFn: func(ctx context.Context, u repository.TransitionUpdate) (*models.Commitment, error) {
			return nil, repository.ErrStaleRow
		},
	}
	svc := NewCommitmentService(store, &stubProjectReader{}, &stubOrgReader{org: activeOrg()}, nil, nil, nil)

	_, err := svc.Claim(context.Background(), adminClaims(), 10)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConcurrency.Code, appErrors.FromError(err).Code)
}

func TestCommitmentServiceUpdateLockedCommitment(t *testing.T) {
	store := &stubCommitmentStore{getFn: func(ctx context.Context, id int64) (*models.Commitment, error) {
		return &models.Commitment{ID: id, OrganizationID: "org-lender-1", Status: models.CommitmentStatusUnderReview, IsLocked: true}, nil
	}}
	svc := NewCommitmentService(store, &stubProjectReader{}, &stubOrgReader{org: activeOrg()}, nil, nil, nil)

	amount := 300000.0
	_, err := svc.Update(context.Background(), lenderClaims(), 10, dto.UpdateCommitmentRequest{Amount: &amount})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrLocked.Code, appErrors.FromError(err).Code)
}

func TestCommitmentServiceUpdateBumpsFields(t *testing.T) {
	store := &stubCommitmentStore{
		getFn: func(ctx context.Context, id int64) (*models.Commitment, error) {
			return &models.Commitment{ID: id, OrganizationID: "org-lender-1", Status: models.CommitmentStatusDraft, CanModify: true, Amount: 100000, FundingMode: models.FundingModeLoan}, nil
		},
		updateFn: func(ctx context.Context, c *models.Commitment, actor string) error {
			c.UpdateCount++
			return nil
		},
	}
	projects := &stubProjectReader{getFn: func(ctx context.Context, ref string) (*models.Project, error) {
		return activeProject(), nil
	}}
	svc := NewCommitmentService(store, projects, &stubOrgReader{org: activeOrg()}, nil, nil, nil)

	amount := 300000.0
	updated, err := svc.Update(context.Background(), lenderClaims(), 10, dto.UpdateCommitmentRequest{Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, 300000.0, updated.Amount)
	assert.Equal(t, 1, updated.UpdateCount)
}

func TestCommitmentServiceUpdateAfterFundraisingWindowClosed(t *testing.T) {
	store := &stubCommitmentStore{getFn: func(ctx context.Context, id int64) (*models.Commitment, error) {
		return &models.Commitment{ID: id, ProjectReferenceID: "PROJ-2026-00001", OrganizationID: "org-lender-1", Status: models.CommitmentStatusDraft, CanModify: true}, nil
	}}
	projects := &stubProjectReader{getFn: func(ctx context.Context, ref string) (*models.Project, error) {
		p := activeProject()
		end := time.Now().UTC().Add(-48 * time.Hour)
		p.FundraisingEnd = &end
		return p, nil
	}}
	svc := NewCommitmentService(store, projects, &stubOrgReader{org: activeOrg()}, nil, nil, nil)

	amount := 300000.0
	_, err := svc.Update(context.Background(), lenderClaims(), 10, dto.UpdateCommitmentRequest{Amount: &amount})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrLocked.Code, appErrors.FromError(err).Code)
}

func TestCommitmentServiceWithdrawOwnerAfterFundraisingWindowClosed(t *testing.T) {
	store := &stubCommitmentStore{getFn: func(ctx context.Context, id int64) (*models.Commitment, error) {
		return &models.Commitment{ID: id, ProjectReferenceID: "PROJ-2026-00001", OrganizationID: "org-lender-1", Status: models.CommitmentStatusPending, CanModify: true}, nil
	}}
	projects := &stubProjectReader{getFn: func(ctx context.Context, ref string) (*models.Project, error) {
		p := activeProject()
		end := time.Now().UTC().Add(-time.Hour)
		p.FundraisingEnd = &end
		return p, nil
	}}
	svc := NewCommitmentService(store, projects, &stubOrgReader{org: activeOrg()}, nil, nil, nil)

	_, err := svc.Withdraw(context.Background(), lenderClaims(), 10)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrLocked.Code, appErrors.FromError(err).Code)
}

func TestCommitmentServiceAdminWithdrawIgnoresFundraisingWindow(t *testing.T) {
	store := &stubCommitmentStore{
		getFn: func(ctx context.Context, id int64) (*models.Commitment, error) {
			return &models.Commitment{ID: id, ProjectReferenceID: "PROJ-2026-00001", OrganizationID: "org-lender-1", Status: models.CommitmentStatusPending, CanModify: true}, nil
		},
		transitionFn: func(ctx context.Context, u repository.TransitionUpdate) (*models.Commitment, error) {
			return &models.Commitment{ID: u.ID, Status: u.To}, nil
		},
	}
	projects := &stubProjectReader{getFn: func(ctx context.Context, ref string) (*models.Project, error) {
		p := activeProject()
		end := time.Now().UTC().Add(-time.Hour)
		p.FundraisingEnd = &end
		return p, nil
	}}
	svc := NewCommitmentService(store, projects, &stubOrgReader{org: activeOrg()}, nil, nil, nil)

	updated, err := svc.Withdraw(context.Background(), adminClaims(), 10)
	require.NoError(t, err)
	assert.Equal(t, models.CommitmentStatusWithdrawn, updated.Status)
}

func TestCommitmentServiceListMunicipalityRequiresOwnProject(t *testing.T) {
	projects := &stubProjectReader{getFn: func(ctx context.Context, ref string) (*models.Project, error) {
		p := activeProject()
		p.OrganizationID = "org-muni-other"
		return p, nil
	}}
	svc := NewCommitmentService(&stubCommitmentStore{}, projects, &stubOrgReader{org: activeOrg()}, nil, nil, nil)

	claims := &models.JWTClaims{Role: models.RoleMunicipality, OrganizationID: "org-muni-1", OrganizationType: models.OrgTypeMunicipality}
	_, _, err := svc.List(context.Background(), claims, models.CommitmentFilter{ProjectReferenceID: "PROJ-2026-00001"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCommitmentServiceTransitionNotFound(t *testing.T) {
	store := &stubCommitmentStore{getFn: func(ctx context.Context, id int64) (*models.Commitment, error) {
		return nil, errors.New("boom")
	}}
	svc := NewCommitmentService(store, &stubProjectReader{}, &stubOrgReader{org: activeOrg()}, nil, nil, nil)

	_, err := svc.Claim(context.Background(), adminClaims(), 99)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestCommitmentServiceHistoryVisibleToProjectOwner(t *testing.T) {
	store := &stubCommitmentStore{
		getFn: func(ctx context.Context, id int64) (*models.Commitment, error) {
			return &models.Commitment{ID: id, ProjectReferenceID: "PROJ-2026-00001", OrganizationID: "org-lender-1", Status: models.CommitmentStatusPending}, nil
		},
		historyFn: func(ctx context.Context, id int64) ([]models.CommitmentHistory, error) {
			return []models.CommitmentHistory{
				{CommitmentID: id, Action: models.HistoryActionCreated, CreatedAt: time.Now()},
				{CommitmentID: id, Action: models.HistoryActionSubmitted, CreatedAt: time.Now()},
			}, nil
		},
	}
	projects := &stubProjectReader{getFn: func(ctx context.Context, ref string) (*models.Project, error) {
		p := activeProject()
		p.OrganizationID = "org-muni-1"
		return p, nil
	}}
	svc := NewCommitmentService(store, projects, &stubOrgReader{org: activeOrg()}, nil, nil, nil)

	claims := &models.JWTClaims{Role: models.RoleMunicipality, OrganizationID: "org-muni-1", OrganizationType: models.OrgTypeMunicipality}
	history, err := svc.History(context.Background(), claims, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
