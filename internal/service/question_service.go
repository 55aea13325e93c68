package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/munify/munify-api/internal/dto"
	"github.com/munify/munify-api/internal/models"
	"github.com/munify/munify-api/internal/repository"
	appErrors "github.com/munify/munify-api/pkg/errors"
)

// defaultSLAWindow applies when a question is created without an explicit
// answer deadline.
const defaultSLAWindow = 72 * time.Hour

type questionStore interface {
	Create(ctx context.Context, question *models.Question) error
	GetByID(ctx context.Context, id int64) (*models.Question, error)
	List(ctx context.Context, filter models.QuestionFilter) ([]models.Question, int, error)
	GetReply(ctx context.Context, questionID int64) (*models.QuestionReply, error)
	Answer(ctx context.Context, questionID int64, reply *models.QuestionReply) (*models.Question, error)
	Close(ctx context.Context, id int64, actor string) error
	MarkBreached(ctx context.Context, id int64, now time.Time) (bool, error)
	SweepOverdue(ctx context.Context, now time.Time) (int64, error)
}

type questionProjectReader interface {
	GetByReferenceID(ctx context.Context, referenceID string) (*models.Project, error)
}

// QuestionService manages project inquiries and their answer SLA.
type QuestionService struct {
	repo      questionStore
	projects  questionProjectReader
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewQuestionService constructs QuestionService.
func NewQuestionService(repo questionStore, projects questionProjectReader, validate *validator.Validate, logger *zap.Logger) *QuestionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionService{repo: repo, projects: projects, validator: validate, logger: logger, now: time.Now}
}

// Create posts a question on an active project with an SLA deadline.
func (s *QuestionService) Create(ctx context.Context, claims *models.JWTClaims, referenceID string, req dto.CreateQuestionRequest) (*models.Question, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid question payload")
	}
	project, err := s.projects.GetByReferenceID(ctx, referenceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	if project.Status != models.ProjectStatusActive && project.Status != models.ProjectStatusFundingCompleted {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "project does not accept questions")
	}

	now := s.now().UTC()
	due := req.SLADueAt
	if due == nil {
		d := now.Add(defaultSLAWindow)
		due = &d
	} else if due.Before(now) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "sla deadline is in the past")
	}
	priority := req.Priority
	if priority == "" {
		priority = "normal"
	}
	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	question := &models.Question{
		ProjectReferenceID: project.ReferenceID,
		AskedBy:            claims.Email,
		QuestionText:       req.QuestionText,
		Category:           req.Category,
		Status:             models.QuestionStatusOpen,
		IsPublic:           isPublic,
		Priority:           priority,
		SLADueAt:           due,
		CreatedBy:          &claims.UserID,
	}
	if err := s.repo.Create(ctx, question); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create question")
	}
	return question, nil
}

// Get returns a question with its answer. Reads evaluate the SLA so an
// overdue question reports its breach without waiting for the sweep.
func (s *QuestionService) Get(ctx context.Context, claims *models.JWTClaims, id int64) (*dto.QuestionResponse, error) {
	question, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !question.IsPublic && !s.canModerate(ctx, claims, question) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "question not found")
	}
	s.evaluateOnRead(ctx, question)
	reply, err := s.repo.GetReply(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load answer")
	}
	return &dto.QuestionResponse{Question: *question, Answer: reply}, nil
}

// List returns questions for a project.
func (s *QuestionService) List(ctx context.Context, claims *models.JWTClaims, filter models.QuestionFilter) ([]models.Question, *models.Pagination, error) {
	questions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list questions")
	}
	now := s.now()
	visible := questions[:0]
	for i := range questions {
		q := &questions[i]
		if !q.IsPublic && !s.canModerate(ctx, claims, q) {
			continue
		}
		// Report overdue state on reads; the stored flag is flipped by
		// writes and the sweep.
		if q.SLAOverdue(now) {
			q.SLABreached = true
		}
		visible = append(visible, *q)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	pagination := &models.Pagination{Page: filter.Offset/limit + 1, PageSize: limit, TotalCount: total}
	return visible, pagination, nil
}

// Answer records the single reply to an open question. Only the project's
// owning municipality or an admin may answer.
func (s *QuestionService) Answer(ctx context.Context, claims *models.JWTClaims, id int64, req dto.AnswerQuestionRequest) (*dto.QuestionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "reply text is required")
	}
	question, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canModerate(ctx, claims, question) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the project owner can answer")
	}
	if question.Status != models.QuestionStatusOpen {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "question is not open")
	}
	reply := &models.QuestionReply{RepliedBy: claims.Email, ReplyText: req.ReplyText}
	answered, err := s.repo.Answer(ctx, id, reply)
	if err != nil {
		if errors.Is(err, repository.ErrStaleRow) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "question was answered concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to answer question")
	}
	return &dto.QuestionResponse{Question: *answered, Answer: reply}, nil
}

// CloseQuestion retires an open question without an answer.
func (s *QuestionService) CloseQuestion(ctx context.Context, claims *models.JWTClaims, id int64) error {
	question, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !s.canModerate(ctx, claims, question) {
		return appErrors.Clone(appErrors.ErrForbidden, "only the project owner can close questions")
	}
	if err := s.repo.Close(ctx, id, claims.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "question is not open")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close question")
	}
	return nil
}

// EvaluateSLA checks one question against its deadline, persisting the
// sticky breach flag when it has lapsed.
func (s *QuestionService) EvaluateSLA(ctx context.Context, id int64) (*dto.SLAEvaluation, error) {
	question, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	breached := question.SLABreached
	if !breached && question.SLAOverdue(s.now()) {
		flipped, err := s.repo.MarkBreached(ctx, id, s.now())
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record breach")
		}
		breached = breached || flipped
	}
	return &dto.SLAEvaluation{QuestionID: id, SLABreached: breached}, nil
}

// SweepOverdue marks every open question past its deadline. Invoked by the
// scheduled job.
func (s *QuestionService) SweepOverdue(ctx context.Context) (int64, error) {
	marked, err := s.repo.SweepOverdue(ctx, s.now())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "sla sweep failed")
	}
	if marked > 0 {
		s.logger.Info("sla sweep marked overdue questions", zap.Int64("count", marked))
	}
	return marked, nil
}

func (s *QuestionService) evaluateOnRead(ctx context.Context, question *models.Question) {
	if question.SLABreached || !question.SLAOverdue(s.now()) {
		return
	}
	question.SLABreached = true
	if _, err := s.repo.MarkBreached(ctx, question.ID, s.now()); err != nil {
		s.logger.Error("failed to persist sla breach",
			zap.Int64("question_id", question.ID), zap.Error(err))
	}
}

func (s *QuestionService) load(ctx context.Context, id int64) (*models.Question, error) {
	question, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "question not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load question")
	}
	return question, nil
}

func (s *QuestionService) canModerate(ctx context.Context, claims *models.JWTClaims, question *models.Question) bool {
	if claims.IsAdmin() {
		return true
	}
	project, err := s.projects.GetByReferenceID(ctx, question.ProjectReferenceID)
	if err != nil {
		return false
	}
	return project.OrganizationID == claims.OrganizationID
}
