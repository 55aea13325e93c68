package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munify/munify-api/internal/dto"
	"github.com/munify/munify-api/internal/models"
	appErrors "github.com/munify/munify-api/pkg/errors"
)

type stubQuestionStore struct {
	createFn   func(ctx context.Context, q *models.Question) error
	getFn      func(ctx context.Context, id int64) (*models.Question, error)
	listFn     func(ctx context.Context, f models.QuestionFilter) ([]models.Question, int, error)
	getReplyFn func(ctx context.Context, id int64) (*models.QuestionReply, error)
	answerFn   func(ctx context.Context, id int64, r *models.QuestionReply) (*models.Question, error)
	closeFn    func(ctx context.Context, id int64, actor string) error
	markFn     func(ctx context.Context, id int64, now time.Time) (bool, error)
	sweepFn    func(ctx context.Context, now time.Time) (int64, error)
}

func (s *stubQuestionStore) Create(ctx context.Context, q *models.Question) error {
	return s.createFn(ctx, q)
}

func (s *stubQuestionStore) GetByID(ctx context.Context, id int64) (*models.Question, error) {
	return s.getFn(ctx, id)
}

func (s *stubQuestionStore) List(ctx context.Context, f models.QuestionFilter) ([]models.Question, int, error) {
	return s.listFn(ctx, f)
}

func (s *stubQuestionStore) GetReply(ctx context.Context, id int64) (*models.QuestionReply, error) {
	if s.getReplyFn != nil {
		return s.getReplyFn(ctx, id)
	}
	return nil, nil
}

func (s *stubQuestionStore) Answer(ctx context.Context, id int64, r *models.QuestionReply) (*models.Question, error) {
	return s.answerFn(ctx, id, r)
}

func (s *stubQuestionStore) Close(ctx context.Context, id int64, actor string) error {
	return s.closeFn(ctx, id, actor)
}

func (s *stubQuestionStore) MarkBreached(ctx context.Context, id int64, now time.Time) (bool, error) {
	if s.markFn != nil {
		return s.markFn(ctx, id, now)
	}
	return false, nil
}

func (s *stubQuestionStore) SweepOverdue(ctx context.Context, now time.Time) (int64, error) {
	return s.sweepFn(ctx, now)
}

func questionProjects(orgID string) *stubProjectReader {
	return &stubProjectReader{getFn: func(ctx context.Context, ref string) (*models.Project, error) {
		p := activeProject()
		p.OrganizationID = orgID
		return p, nil
	}}
}

func TestQuestionServiceCreateDefaultsSLA(t *testing.T) {
	var created *models.Question
	store := &stubQuestionStore{createFn: func(ctx context.Context, q *models.Question) error {
		created = q
		q.ID = 5
		return nil
	}}
	svc := NewQuestionService(store, questionProjects("org-muni-1"), nil, nil)

	before := time.Now().UTC()
	question, err := svc.Create(context.Background(), lenderClaims(), "PROJ-2026-00001", dto.CreateQuestionRequest{
		QuestionText: "What is the repayment schedule?",
	})
	require.NoError(t, err)
	assert.Equal(t, models.QuestionStatusOpen, question.Status)
	assert.Equal(t, "normal", question.Priority)
	require.NotNil(t, created.SLADueAt)
	expected := before.Add(defaultSLAWindow)
	assert.WithinDuration(t, expected, *created.SLADueAt, time.Minute)
}

func TestQuestionServiceCreateRejectsPastDeadline(t *testing.T) {
	svc := NewQuestionService(&stubQuestionStore{}, questionProjects("org-muni-1"), nil, nil)

	past := time.Now().Add(-time.Hour)
	_, err := svc.Create(context.Background(), lenderClaims(), "PROJ-2026-00001", dto.CreateQuestionRequest{
		QuestionText: "Too late?",
		SLADueAt:     &past,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestQuestionServiceAnswerRequiresProjectOwner(t *testing.T) {
	store := &stubQuestionStore{getFn: func(ctx context.Context, id int64) (*models.Question, error) {
		return &models.Question{ID: id, ProjectReferenceID: "PROJ-2026-00001", Status: models.QuestionStatusOpen, IsPublic: true}, nil
	}}
	svc := NewQuestionService(store, questionProjects("org-muni-other"), nil, nil)

	claims := municipalityClaims()
	_, err := svc.Answer(context.Background(), claims, 5, dto.AnswerQuestionRequest{ReplyText: "Here."})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestQuestionServiceAnswerClosedQuestion(t *testing.T) {
	store := &stubQuestionStore{getFn: func(ctx context.Context, id int64) (*models.Question, error) {
		return &models.Question{ID: id, ProjectReferenceID: "PROJ-2026-00001", Status: models.QuestionStatusAnswered, IsPublic: true}, nil
	}}
	svc := NewQuestionService(store, questionProjects("org-muni-1"), nil, nil)

	_, err := svc.Answer(context.Background(), municipalityClaims(), 5, dto.AnswerQuestionRequest{ReplyText: "Again."})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestQuestionServiceAnswerRecordsReply(t *testing.T) {
	store := &stubQuestionStore{
		getFn: func(ctx context.Context, id int64) (*models.Question, error) {
			return &models.Question{ID: id, ProjectReferenceID: "PROJ-2026-00001", Status: models.QuestionStatusOpen, IsPublic: true}, nil
		},
		answerFn: func(ctx context.Context, id int64, r *models.QuestionReply) (*models.Question, error) {
			r.ID = 1
			return &models.Question{ID: id, Status: models.QuestionStatusAnswered}, nil
		},
	}
	svc := NewQuestionService(store, questionProjects("org-muni-1"), nil, nil)

	resp, err := svc.Answer(context.Background(), municipalityClaims(), 5, dto.AnswerQuestionRequest{ReplyText: "Quarterly."})
	require.NoError(t, err)
	assert.Equal(t, models.QuestionStatusAnswered, resp.Status)
	require.NotNil(t, resp.Answer)
	assert.Equal(t, "Quarterly.", resp.Answer.ReplyText)
}

func TestQuestionServiceEvaluateSLAStickyFlag(t *testing.T) {
	marked := false
	store := &stubQuestionStore{
		getFn: func(ctx context.Context, id int64) (*models.Question, error) {
			// Already breached and since answered: the flag must not reset.
			return &models.Question{ID: id, Status: models.QuestionStatusAnswered, SLABreached: true}, nil
		},
		markFn: func(ctx context.Context, id int64, now time.Time) (bool, error) {
			marked = true
			return false, nil
		},
	}
	svc := NewQuestionService(store, questionProjects("org-muni-1"), nil, nil)

	eval, err := svc.EvaluateSLA(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, eval.SLABreached)
	assert.False(t, marked)
}

func TestQuestionServiceEvaluateSLAMarksOverdue(t *testing.T) {
	due := time.Now().Add(-time.Hour)
	var markedID int64
	store := &stubQuestionStore{
		getFn: func(ctx context.Context, id int64) (*models.Question, error) {
			return &models.Question{ID: id, Status: models.QuestionStatusOpen, SLADueAt: &due}, nil
		},
		markFn: func(ctx context.Context, id int64, now time.Time) (bool, error) {
			markedID = id
			return true, nil
		},
	}
	svc := NewQuestionService(store, questionProjects("org-muni-1"), nil, nil)

	eval, err := svc.EvaluateSLA(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, eval.SLABreached)
	assert.Equal(t, int64(5), markedID)
}

func TestQuestionServiceGetEvaluatesOnRead(t *testing.T) {
	due := time.Now().Add(-time.Hour)
	store := &stubQuestionStore{
		getFn: func(ctx context.Context, id int64) (*models.Question, error) {
			return &models.Question{ID: id, ProjectReferenceID: "PROJ-2026-00001", Status: models.QuestionStatusOpen, IsPublic: true, SLADueAt: &due}, nil
		},
	}
	svc := NewQuestionService(store, questionProjects("org-muni-1"), nil, nil)

	resp, err := svc.Get(context.Background(), lenderClaims(), 5)
	require.NoError(t, err)
	assert.True(t, resp.SLABreached)
}

func TestQuestionServiceSweepOverdue(t *testing.T) {
	store := &stubQuestionStore{sweepFn: func(ctx context.Context, now time.Time) (int64, error) {
		return 4, nil
	}}
	svc := NewQuestionService(store, questionProjects("org-muni-1"), nil, nil)

	marked, err := svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), marked)
}
