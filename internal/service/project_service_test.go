package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munify/munify-api/internal/dto"
	"github.com/munify/munify-api/internal/models"
	appErrors "github.com/munify/munify-api/pkg/errors"
)

type stubProjectStore struct {
	nextSeqFn     func(ctx context.Context, year int) (int, error)
	createFn      func(ctx context.Context, p *models.Project) error
	getByIDFn     func(ctx context.Context, id int64) (*models.Project, error)
	getByRefFn    func(ctx context.Context, ref string) (*models.Project, error)
	listFn        func(ctx context.Context, f models.ProjectFilter) ([]models.Project, int, error)
	updateFn      func(ctx context.Context, p *models.Project) error
	softDeleteFn  func(ctx context.Context, id int64) error
	recomputeFn   func(ctx context.Context, ref string) (models.FundingTotals, error)
	createRejFn   func(ctx context.Context, r *models.ProjectRejection) error
	latestRejFn   func(ctx context.Context, id int64) (*models.ProjectRejection, error)
	markResubmitFn func(ctx context.Context, id int64) error
}

func (s *stubProjectStore) NextReferenceSequence(ctx context.Context, year int) (int, error) {
	return s.nextSeqFn(ctx, year)
}

func (s *stubProjectStore) Create(ctx context.Context, p *models.Project) error {
	return s.createFn(ctx, p)
}

func (s *stubProjectStore) GetByID(ctx context.Context, id int64) (*models.Project, error) {
	return s.getByIDFn(ctx, id)
}

func (s *stubProjectStore) GetByReferenceID(ctx context.Context, ref string) (*models.Project, error) {
	return s.getByRefFn(ctx, ref)
}

func (s *stubProjectStore) List(ctx context.Context, f models.ProjectFilter) ([]models.Project, int, error) {
	return s.listFn(ctx, f)
}

func (s *stubProjectStore) Update(ctx context.Context, p *models.Project) error {
	return s.updateFn(ctx, p)
}

func (s *stubProjectStore) SoftDelete(ctx context.Context, id int64) error {
	return s.softDeleteFn(ctx, id)
}

func (s *stubProjectStore) RecomputeFunding(ctx context.Context, ref string) (models.FundingTotals, error) {
	return s.recomputeFn(ctx, ref)
}

func (s *stubProjectStore) CreateRejection(ctx context.Context, r *models.ProjectRejection) error {
	return s.createRejFn(ctx, r)
}

func (s *stubProjectStore) LatestRejection(ctx context.Context, id int64) (*models.ProjectRejection, error) {
	return s.latestRejFn(ctx, id)
}

func (s *stubProjectStore) MarkResubmitted(ctx context.Context, id int64) error {
	return s.markResubmitFn(ctx, id)
}

func municipalityClaims() *models.JWTClaims {
	return &models.JWTClaims{
		UserID:           "user-muni",
		Role:             models.RoleMunicipality,
		Email:            "officer@municipality.example",
		OrganizationID:   "org-muni-1",
		OrganizationType: models.OrgTypeMunicipality,
	}
}

func validCreateRequest() dto.CreateProjectRequest {
	return dto.CreateProjectRequest{
		Title:              "Ward 12 Water Treatment Upgrade",
		ContactPerson:      "A. Deshmukh",
		FundingRequirement: 1000000,
	}
}

func TestProjectServiceCreateAssignsReferenceID(t *testing.T) {
	store := &stubProjectStore{
		nextSeqFn: func(ctx context.Context, year int) (int, error) { return 7, nil },
		createFn: func(ctx context.Context, p *models.Project) error {
			p.ID = 1
			return nil
		},
	}
	svc := NewProjectService(store, nil, nil)

	project, err := svc.Create(context.Background(), municipalityClaims(), validCreateRequest())
	require.NoError(t, err)
	year := time.Now().UTC().Year()
	assert.Equal(t, fmt.Sprintf("PROJ-%d-00007", year), project.ReferenceID)
	assert.Equal(t, models.ProjectStatusDraft, project.Status)
	assert.Equal(t, models.VisibilityPrivate, project.Visibility)
	assert.Equal(t, "INR", project.Currency)
}

func TestProjectServiceCreateRetriesOnReferenceCollision(t *testing.T) {
	seq := 0
	attempts := 0
	store := &stubProjectStore{
		nextSeqFn: func(ctx context.Context, year int) (int, error) {
			seq++
			return seq, nil
		},
		createFn: func(ctx context.Context, p *models.Project) error {
			attempts++
			if attempts == 1 {
				return &pq.Error{Code: "23505"}
			}
			return nil
		},
	}
	svc := NewProjectService(store, nil, nil)

	project, err := svc.Create(context.Background(), municipalityClaims(), validCreateRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	year := time.Now().UTC().Year()
	assert.Equal(t, fmt.Sprintf("PROJ-%d-00002", year), project.ReferenceID)
}

func TestProjectServiceCreateExhaustsRetries(t *testing.T) {
	store := &stubProjectStore{
		nextSeqFn: func(ctx context.Context, year int) (int, error) { return 1, nil },
		createFn: func(ctx context.Context, p *models.Project) error {
			return &pq.Error{Code: "23505"}
		},
	}
	svc := NewProjectService(store, nil, nil)

	_, err := svc.Create(context.Background(), municipalityClaims(), validCreateRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConcurrency.Code, appErrors.FromError(err).Code)
}

func TestProjectServiceCreateConcurrentAssignsUniqueReferenceIDs(t *testing.T) {
	const creators = 16
	var mu sync.Mutex
	seq := 0
	issued := make(map[string]struct{}, creators)
	store := &stubProjectStore{
		nextSeqFn: func(ctx context.Context, year int) (int, error) {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return seq, nil
		},
		createFn: func(ctx context.Context, p *models.Project) error {
			mu.Lock()
			defer mu.Unlock()
			if _, dup := issued[p.ReferenceID]; dup {
				return &pq.Error{Code: "23505"}
			}
			issued[p.ReferenceID] = struct{}{}
			return nil
		},
	}
	svc := NewProjectService(store, nil, nil)

	var wg sync.WaitGroup
	refs := make(chan string, creators)
	errs := make(chan error, creators)
	for i := 0; i < creators; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			project, err := svc.Create(context.Background(), municipalityClaims(), validCreateRequest())
			if err != nil {
				errs <- err
				return
			}
			refs <- project.ReferenceID
		}()
	}
	wg.Wait()
	close(refs)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	seen := make(map[string]struct{}, creators)
	for ref := range refs {
		seen[ref] = struct{}{}
	}
	require.Len(t, seen, creators)
	year := time.Now().UTC().Year()
	for i := 1; i <= creators; i++ {
		assert.Contains(t, seen, fmt.Sprintf("PROJ-%d-%05d", year, i))
	}
}

func TestProjectServiceCreateRejectsLender(t *testing.T) {
	svc := NewProjectService(&stubProjectStore{}, nil, nil)

	_, err := svc.Create(context.Background(), lenderClaims(), validCreateRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestProjectServiceCreateSecuredExceedsRequirement(t *testing.T) {
	svc := NewProjectService(&stubProjectStore{}, nil, nil)

	req := validCreateRequest()
	secured := 2000000.0
	req.AlreadySecured = &secured
	_, err := svc.Create(context.Background(), municipalityClaims(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestProjectServiceListScopesLenderToPublicActive(t *testing.T) {
	var captured models.ProjectFilter
	store := &stubProjectStore{listFn: func(ctx context.Context, f models.ProjectFilter) ([]models.Project, int, error) {
		captured = f
		return nil, 0, nil
	}}
	svc := NewProjectService(store, nil, nil)

	_, _, err := svc.List(context.Background(), lenderClaims(), models.ProjectFilter{})
	require.NoError(t, err)
	assert.Equal(t, models.VisibilityPublic, captured.Visibility)
	assert.Equal(t, models.ProjectStatusActive, captured.Status)
}

func TestProjectServiceListScopesMunicipalityToOwn(t *testing.T) {
	var captured models.ProjectFilter
	store := &stubProjectStore{listFn: func(ctx context.Context, f models.ProjectFilter) ([]models.Project, int, error) {
		captured = f
		return nil, 0, nil
	}}
	svc := NewProjectService(store, nil, nil)

	_, _, err := svc.List(context.Background(), municipalityClaims(), models.ProjectFilter{})
	require.NoError(t, err)
	assert.Equal(t, "org-muni-1", captured.OrganizationID)
}

func TestProjectServiceListScopesAnonymousToPublicActive(t *testing.T) {
	var captured models.ProjectFilter
	store := &stubProjectStore{listFn: func(ctx context.Context, f models.ProjectFilter) ([]models.Project, int, error) {
		captured = f
		return nil, 0, nil
	}}
	svc := NewProjectService(store, nil, nil)

	_, _, err := svc.List(context.Background(), nil, models.ProjectFilter{})
	require.NoError(t, err)
	assert.Equal(t, models.VisibilityPublic, captured.Visibility)
	assert.Equal(t, models.ProjectStatusActive, captured.Status)
}

func TestProjectServiceGetAnonymousSeesPublicOnly(t *testing.T) {
	private := activeProject()
	private.Visibility = models.VisibilityPrivate
	store := &stubProjectStore{getByRefFn: func(ctx context.Context, ref string) (*models.Project, error) {
		copy := *private
		return &copy, nil
	}}
	svc := NewProjectService(store, nil, nil)

	_, err := svc.Get(context.Background(), nil, "PROJ-2026-00001")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	private.Visibility = models.VisibilityPublic
	project, err := svc.Get(context.Background(), nil, "PROJ-2026-00001")
	require.NoError(t, err)
	assert.Equal(t, "PROJ-2026-00001", project.ReferenceID)
}

func TestProjectServiceApproveRequiresAdmin(t *testing.T) {
	svc := NewProjectService(&stubProjectStore{}, nil, nil)

	_, err := svc.Approve(context.Background(), municipalityClaims(), "PROJ-2026-00001", dto.ApproveProjectRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestProjectServiceApprovePendingProject(t *testing.T) {
	pending := activeProject()
	pending.Status = models.ProjectStatusPendingValidation
	pending.Visibility = models.VisibilityPrivate
	var saved *models.Project
	store := &stubProjectStore{
		getByRefFn: func(ctx context.Context, ref string) (*models.Project, error) { return pending, nil },
		updateFn: func(ctx context.Context, p *models.Project) error {
			saved = p
			return nil
		},
	}
	svc := NewProjectService(store, nil, nil)

	project, err := svc.Approve(context.Background(), adminClaims(), pending.ReferenceID, dto.ApproveProjectRequest{AdminNotes: "verified"})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusActive, project.Status)
	assert.Equal(t, models.VisibilityPublic, project.Visibility)
	require.NotNil(t, saved.ApprovedAt)
	require.NotNil(t, saved.ApprovedBy)
	assert.Equal(t, "user-admin", *saved.ApprovedBy)
}

func TestProjectServiceApproveWrongState(t *testing.T) {
	store := &stubProjectStore{getByRefFn: func(ctx context.Context, ref string) (*models.Project, error) {
		return activeProject(), nil
	}}
	svc := NewProjectService(store, nil, nil)

	_, err := svc.Approve(context.Background(), adminClaims(), "PROJ-2026-00001", dto.ApproveProjectRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestProjectServiceRejectRequiresNote(t *testing.T) {
	svc := NewProjectService(&stubProjectStore{}, nil, nil)

	_, err := svc.Reject(context.Background(), adminClaims(), "PROJ-2026-00001", dto.RejectProjectRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestProjectServiceRejectRecordsHistory(t *testing.T) {
	pending := activeProject()
	pending.Status = models.ProjectStatusPendingValidation
	var rejection *models.ProjectRejection
	store := &stubProjectStore{
		getByRefFn: func(ctx context.Context, ref string) (*models.Project, error) { return pending, nil },
		updateFn:   func(ctx context.Context, p *models.Project) error { return nil },
		createRejFn: func(ctx context.Context, r *models.ProjectRejection) error {
			rejection = r
			return nil
		},
	}
	svc := NewProjectService(store, nil, nil)

	project, err := svc.Reject(context.Background(), adminClaims(), pending.ReferenceID, dto.RejectProjectRequest{Note: "budget unrealistic"})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusRejected, project.Status)
	require.NotNil(t, rejection)
	assert.Equal(t, "budget unrealistic", rejection.RejectionNote)
	assert.Equal(t, "user-admin", rejection.RejectedBy)
}

func TestProjectServiceResubmitOnlyFromRejected(t *testing.T) {
	store := &stubProjectStore{getByRefFn: func(ctx context.Context, ref string) (*models.Project, error) {
		p := activeProject()
		p.OrganizationID = "org-muni-1"
		return p, nil
	}}
	svc := NewProjectService(store, nil, nil)

	_, err := svc.Resubmit(context.Background(), municipalityClaims(), "PROJ-2026-00001", dto.ResubmitProjectRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestProjectServiceResubmitStampsRejection(t *testing.T) {
	rejected := activeProject()
	rejected.Status = models.ProjectStatusRejected
	rejected.OrganizationID = "org-muni-1"
	var stampedID int64
	store := &stubProjectStore{
		getByRefFn: func(ctx context.Context, ref string) (*models.Project, error) { return rejected, nil },
		updateFn:   func(ctx context.Context, p *models.Project) error { return nil },
		latestRejFn: func(ctx context.Context, id int64) (*models.ProjectRejection, error) {
			return &models.ProjectRejection{ID: 3, ProjectID: id}, nil
		},
		markResubmitFn: func(ctx context.Context, id int64) error {
			stampedID = id
			return nil
		},
	}
	svc := NewProjectService(store, nil, nil)

	project, err := svc.Resubmit(context.Background(), municipalityClaims(), rejected.ReferenceID, dto.ResubmitProjectRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusPendingValidation, project.Status)
	assert.Equal(t, int64(3), stampedID)
}

func TestProjectServiceDeleteActiveProject(t *testing.T) {
	store := &stubProjectStore{getByRefFn: func(ctx context.Context, ref string) (*models.Project, error) {
		p := activeProject()
		p.OrganizationID = "org-muni-1"
		return p, nil
	}}
	svc := NewProjectService(store, nil, nil)

	err := svc.Delete(context.Background(), municipalityClaims(), "PROJ-2026-00001")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestProjectServiceGetHidesPrivateFromStrangers(t *testing.T) {
	store := &stubProjectStore{getByRefFn: func(ctx context.Context, ref string) (*models.Project, error) {
		p := activeProject()
		p.Visibility = models.VisibilityPrivate
		p.OrganizationID = "org-muni-other"
		return p, nil
	}}
	svc := NewProjectService(store, nil, nil)

	_, err := svc.Get(context.Background(), lenderClaims(), "PROJ-2026-00001")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestProjectServiceRecomputeFundingAdminOnly(t *testing.T) {
	svc := NewProjectService(&stubProjectStore{}, nil, nil)

	_, err := svc.RecomputeFunding(context.Background(), municipalityClaims(), "PROJ-2026-00001")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestProjectServiceRecomputeFunding(t *testing.T) {
	store := &stubProjectStore{
		getByRefFn: func(ctx context.Context, ref string) (*models.Project, error) { return activeProject(), nil },
		recomputeFn: func(ctx context.Context, ref string) (models.FundingTotals, error) {
			return models.FundingTotals{FundingRaised: 400000, CommitmentCount: 2}, nil
		},
	}
	svc := NewProjectService(store, nil, nil)

	totals, err := svc.RecomputeFunding(context.Background(), adminClaims(), "PROJ-2026-00001")
	require.NoError(t, err)
	assert.Equal(t, 400000.0, totals.FundingRaised)
	assert.Equal(t, 2, totals.CommitmentCount)
}

func TestProjectServiceGetNotFound(t *testing.T) {
	store := &stubProjectStore{getByRefFn: func(ctx context.Context, ref string) (*models.Project, error) {
		return nil, sql.ErrNoRows
	}}
	svc := NewProjectService(store, nil, nil)

	_, err := svc.Get(context.Background(), adminClaims(), "PROJ-2026-99999")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
