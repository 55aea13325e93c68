package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/munify/munify-api/internal/models"
	"github.com/munify/munify-api/internal/repository"
	"github.com/munify/munify-api/internal/service"
)

type commitmentStoreMock struct {
	commitment *models.Commitment
}

func (m *commitmentStoreMock) Create(ctx context.Context, commitment *models.Commitment) error {
	commitment.ID = 11
	m.commitment = commitment
	return nil
}

func (m *commitmentStoreMock) GetByID(ctx context.Context, id int64) (*models.Commitment, error) {
	if m.commitment == nil || m.commitment.ID != id {
		return nil, sql.ErrNoRows
	}
	copied := *m.commitment
	return &copied, nil
}

func (m *commitmentStoreMock) List(ctx context.Context, filter models.CommitmentFilter) ([]models.Commitment, int, error) {
	return nil, 0, nil
}

func (m *commitmentStoreMock) History(ctx context.Context, commitmentID int64) ([]models.CommitmentHistory, error) {
	return nil, nil
}

func (m *commitmentStoreMock) Transition(ctx context.Context, update repository.TransitionUpdate) (*models.Commitment, error) {
	copied := *m.commitment
	copied.Status = update.To
	return &copied, nil
}

func (m *commitmentStoreMock) UpdateEditable(ctx context.Context, commitment *models.Commitment, actor string) error {
	return nil
}

func (m *commitmentStoreMock) SetReceipt(ctx context.Context, id int64, receiptURL string) error {
	return nil
}

type commitmentProjectsMock struct{}

func (m *commitmentProjectsMock) GetByReferenceID(ctx context.Context, referenceID string) (*models.Project, error) {
	if referenceID != "PROJ-2026-00001" {
		return nil, sql.ErrNoRows
	}
	return publicProject(), nil
}

func (m *commitmentProjectsMock) Update(ctx context.Context, project *models.Project) error {
	return nil
}

func newCommitmentHandlerForTest(store *commitmentStoreMock) *CommitmentHandler {
	svc := service.NewCommitmentService(store, &commitmentProjectsMock{}, nil, nil, nil, nil)
	return NewCommitmentHandler(svc, nil)
}

func TestCommitmentHandlerGetInvalidID(t *testing.T) {
	h := newCommitmentHandlerForTest(&commitmentStoreMock{})

	w, c := newProjectTestContext(t, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})
	req, _ := http.NewRequest(http.MethodGet, "/commitments/abc", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "abc"}}

	h.Get(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCommitmentHandlerCreateRejectsNonLender(t *testing.T) {
	h := newCommitmentHandlerForTest(&commitmentStoreMock{})

	w, c := newProjectTestContext(t, &models.JWTClaims{
		UserID:         "u-2",
		Role:           models.RoleMunicipality,
		OrganizationID: "org-muni-1",
	})
	body := bytes.NewBufferString(`{"project_reference_id":"PROJ-2026-00001","amount":100000,"funding_mode":"loan"}`)
	req, _ := http.NewRequest(http.MethodPost, "/commitments", body)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	h.Create(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestCommitmentHandlerCreateDraft(t *testing.T) {
	store := &commitmentStoreMock{}
	h := newCommitmentHandlerForTest(store)

	w, c := newProjectTestContext(t, &models.JWTClaims{
		UserID:           "u-3",
		Role:             models.RoleLender,
		OrganizationID:   "org-lender-1",
		OrganizationType: models.OrgTypeLender,
	})
	body := bytes.NewBufferString(`{"project_reference_id":"PROJ-2026-00001","amount":100000,"funding_mode":"loan"}`)
	req, _ := http.NewRequest(http.MethodPost, "/commitments", body)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	var envelope struct {
		Data struct {
			Status   string `json:"status"`
			Currency string `json:"currency"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, "draft", envelope.Data.Status)
	require.Equal(t, "INR", envelope.Data.Currency)
}

func TestCommitmentHandlerReviewRejectsInvalidPayload(t *testing.T) {
	h := newCommitmentHandlerForTest(&commitmentStoreMock{})

	w, c := newProjectTestContext(t, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})
	body := bytes.NewBufferString(`{`)
	req, _ := http.NewRequest(http.MethodPost, "/commitments/11/review", body)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "11"}}

	h.Review(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
