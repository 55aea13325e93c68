package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/munify/munify-api/internal/models"
)

const questionColumns = `id, project_reference_id, asked_by, question_text, category,
       status, is_public, priority, sla_due_at, sla_breached,
       created_at, created_by, updated_at, updated_by`

// QuestionRepository persists project inquiries and their single replies.
type QuestionRepository struct {
	db *sqlx.DB
}

// NewQuestionRepository constructs the repository.
func NewQuestionRepository(db *sqlx.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// Create inserts a new question.
func (r *QuestionRepository) Create(ctx context.Context, question *models.Question) error {
	now := time.Now().UTC()
	question.CreatedAt = now
	question.UpdatedAt = now
	const query = `INSERT INTO questions
	(project_reference_id, asked_by, question_text, category, status, is_public,
	 priority, sla_due_at, sla_breached, created_at, created_by, updated_at, updated_by)
	VALUES (:project_reference_id, :asked_by, :question_text, :category, :status, :is_public,
	 :priority, :sla_due_at, :sla_breached, :created_at, :created_by, :updated_at, :updated_by)
	RETURNING id`
	rows, err := r.db.NamedQueryContext(ctx, query, question)
	if err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	if rows.Next() {
		if err := rows.Scan(&question.ID); err != nil {
			return fmt.Errorf("scan question id: %w", err)
		}
	}
	return rows.Err()
}

// GetByID fetches a question by primary key.
func (r *QuestionRepository) GetByID(ctx context.Context, id int64) (*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE id = $1`
	var question models.Question
	if err := r.db.GetContext(ctx, &question, query, id); err != nil {
		return nil, err
	}
	return &question, nil
}

// List returns questions matching the filter, newest first, plus the total count.
func (r *QuestionRepository) List(ctx context.Context, filter models.QuestionFilter) ([]models.Question, int, error) {
	conditions := []string{"1=1"}
	args := make([]interface{}, 0, 4)
	if filter.ProjectReferenceID != "" {
		args = append(args, filter.ProjectReferenceID)
		conditions = append(conditions, fmt.Sprintf("project_reference_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Priority != "" {
		args = append(args, filter.Priority)
		conditions = append(conditions, fmt.Sprintf("priority = $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM questions"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count questions: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + questionColumns + ` FROM questions` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d", limit, offset)

	var questions []models.Question
	if err := r.db.SelectContext(ctx, &questions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list questions: %w", err)
	}
	return questions, total, nil
}

// GetReply returns the question's answer, or nil if none exists yet.
func (r *QuestionRepository) GetReply(ctx context.Context, questionID int64) (*models.QuestionReply, error) {
	const query = `SELECT id, question_id, replied_by, reply_text, created_at
	FROM question_replies WHERE question_id = $1`
	var reply models.QuestionReply
	if err := r.db.GetContext(ctx, &reply, query, questionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load question reply: %w", err)
	}
	return &reply, nil
}

// Answer records the single reply and moves the question to answered, in one
// transaction. The row lock plus the status guard makes double-answering a
// stale-row error rather than a second reply.
func (r *QuestionRepository) Answer(ctx context.Context, questionID int64, reply *models.QuestionReply) (question *models.Question, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin answer: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Question
	lockQuery := `SELECT ` + questionColumns + ` FROM questions WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, questionID); err != nil {
		return nil, err
	}
	if current.Status != models.QuestionStatusOpen {
		err = ErrStaleRow
		return nil, err
	}

	now := time.Now().UTC()
	reply.QuestionID = questionID
	reply.CreatedAt = now
	const insertReply = `INSERT INTO question_replies (question_id, replied_by, reply_text, created_at)
	VALUES (:question_id, :replied_by, :reply_text, :created_at)
	RETURNING id`
	rows, err := tx.NamedQuery(insertReply, reply)
	if err != nil {
		return nil, fmt.Errorf("insert reply: %w", err)
	}
	if rows.Next() {
		if err = rows.Scan(&reply.ID); err != nil {
			rows.Close() //nolint:errcheck
			return nil, fmt.Errorf("scan reply id: %w", err)
		}
	}
	if err = rows.Close(); err != nil {
		return nil, fmt.Errorf("close reply insert: %w", err)
	}

	// The breach flag is sticky: an answer past the deadline records the
	// breach permanently even though the question leaves the open state.
	breached := current.SLABreached || (current.SLADueAt != nil && current.SLADueAt.Before(now))
	current.Status = models.QuestionStatusAnswered
	current.SLABreached = breached
	current.UpdatedAt = now
	current.UpdatedBy = &reply.RepliedBy

	const write = `UPDATE questions
	SET status = :status, sla_breached = :sla_breached, updated_at = :updated_at, updated_by = :updated_by
	WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, write, &current); err != nil {
		return nil, fmt.Errorf("write answered question: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit answer: %w", err)
	}
	return &current, nil
}

// Close marks a question closed without an answer.
func (r *QuestionRepository) Close(ctx context.Context, id int64, actor string) error {
	const query = `UPDATE questions SET status = $1, updated_at = $2, updated_by = $3
	WHERE id = $4 AND status IN ('draft', 'open')`
	result, err := r.db.ExecContext(ctx, query, models.QuestionStatusClosed, time.Now().UTC(), actor, id)
	if err != nil {
		return fmt.Errorf("close question: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check close rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkBreached stamps the sticky breach flag on a single open, overdue
// question. Returns true when the flag flipped on this call.
func (r *QuestionRepository) MarkBreached(ctx context.Context, id int64, now time.Time) (bool, error) {
	const query = `UPDATE questions SET sla_breached = TRUE, updated_at = $1
	WHERE id = $2 AND status = 'open' AND sla_breached = FALSE
	AND sla_due_at IS NOT NULL AND sla_due_at < $1`
	result, err := r.db.ExecContext(ctx, query, now.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("mark question breached: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check breach rows: %w", err)
	}
	return rows > 0, nil
}

// SweepOverdue flips the breach flag on every open question past its
// deadline. Returns the number of questions newly marked.
func (r *QuestionRepository) SweepOverdue(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE questions SET sla_breached = TRUE, updated_at = $1
	WHERE status = 'open' AND sla_breached = FALSE
	AND sla_due_at IS NOT NULL AND sla_due_at < $1`
	result, err := r.db.ExecContext(ctx, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep overdue questions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check sweep rows: %w", err)
	}
	return rows, nil
}
