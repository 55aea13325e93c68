package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/munify/munify-api/internal/models"
)

const projectColumns = `id, organization_type, organization_id, reference_id, title, department,
       contact_person, contact_email, contact_phone, category, stage, description,
       state, city, ward, total_project_cost, funding_requirement, already_secured_funds,
       currency, fundraising_start, fundraising_end, credit_rating, credit_score,
       status, visibility, funding_raised, commitment_count,
       approved_at, approved_by, admin_notes,
       created_at, created_by, updated_at, updated_by, deleted_at`

// ErrStaleRow signals that a guarded write matched no rows because the row
// changed (or vanished) since it was read.
var ErrStaleRow = errors.New("row changed since read")

// ProjectRepository persists marketplace projects and their reference-ID
// counters.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository constructs the repository.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// NextReferenceSequence atomically advances and returns the per-year
// counter backing reference-ID generation. The upsert serializes through
// row-level locking, so concurrent callers observe distinct values.
func (r *ProjectRepository) NextReferenceSequence(ctx context.Context, year int) (int, error) {
	const query = `INSERT INTO project_reference_counters (year, last_value)
	VALUES ($1, 1)
	ON CONFLICT (year) DO UPDATE SET last_value = project_reference_counters.last_value + 1
	RETURNING last_value`
	var seq int
	if err := r.db.GetContext(ctx, &seq, query, year); err != nil {
		return 0, fmt.Errorf("advance reference counter: %w", err)
	}
	return seq, nil
}

// Create inserts a new project row.
func (r *ProjectRepository) Create(ctx context.Context, project *models.Project) error {
	now := time.Now().UTC()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = now
	const query = `INSERT INTO projects
	(organization_type, organization_id, reference_id, title, department,
	 contact_person, contact_email, contact_phone, category, stage, description,
	 state, city, ward, total_project_cost, funding_requirement, already_secured_funds,
	 currency, fundraising_start, fundraising_end, credit_rating, credit_score,
	 status, visibility, funding_raised, commitment_count, created_at, created_by, updated_at, updated_by)
	VALUES (:organization_type, :organization_id, :reference_id, :title, :department,
	 :contact_person, :contact_email, :contact_phone, :category, :stage, :description,
	 :state, :city, :ward, :total_project_cost, :funding_requirement, :already_secured_funds,
	 :currency, :fundraising_start, :fundraising_end, :credit_rating, :credit_score,
	 :status, :visibility, :funding_raised, :commitment_count, :created_at, :created_by, :updated_at, :updated_by)
	RETURNING id`
	rows, err := r.db.NamedQueryContext(ctx, query, project)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	if rows.Next() {
		if err := rows.Scan(&project.ID); err != nil {
			return fmt.Errorf("scan project id: %w", err)
		}
	}
	return rows.Err()
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// failure (used by the reference-ID retry loop).
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// GetByID fetches a project by primary key, excluding soft-deleted rows.
func (r *ProjectRepository) GetByID(ctx context.Context, id int64) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1 AND deleted_at IS NULL`
	var project models.Project
	if err := r.db.GetContext(ctx, &project, query, id); err != nil {
		return nil, err
	}
	return &project, nil
}

// GetByReferenceID fetches a project by its immutable reference ID.
func (r *ProjectRepository) GetByReferenceID(ctx context.Context, referenceID string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE reference_id = $1 AND deleted_at IS NULL`
	var project models.Project
	if err := r.db.GetContext(ctx, &project, query, referenceID); err != nil {
		return nil, err
	}
	return &project, nil
}

// List returns projects matching the filter, newest first, plus the total count.
func (r *ProjectRepository) List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, int, error) {
	conditions := []string{"deleted_at IS NULL"}
	args := make([]interface{}, 0, 4)
	if filter.OrganizationID != "" {
		args = append(args, filter.OrganizationID)
		conditions = append(conditions, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if filter.OrganizationType != "" {
		args = append(args, filter.OrganizationType)
		conditions = append(conditions, fmt.Sprintf("organization_type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Visibility != "" {
		args = append(args, filter.Visibility)
		conditions = append(conditions, fmt.Sprintf("visibility = $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM projects"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + projectColumns + ` FROM projects` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d", limit, offset)

	var projects []models.Project
	if err := r.db.SelectContext(ctx, &projects, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}
	return projects, total, nil
}

// Update persists mutable project fields. Reference ID, currency, and the
// derived funding columns are deliberately absent from the SET list.
func (r *ProjectRepository) Update(ctx context.Context, project *models.Project) error {
	project.UpdatedAt = time.Now().UTC()
	const query = `UPDATE projects SET
	title = :title, department = :department, contact_person = :contact_person,
	contact_email = :contact_email, contact_phone = :contact_phone, category = :category,
	stage = :stage, description = :description, state = :state, city = :city, ward = :ward,
	total_project_cost = :total_project_cost, funding_requirement = :funding_requirement,
	already_secured_funds = :already_secured_funds, fundraising_start = :fundraising_start,
	fundraising_end = :fundraising_end, credit_rating = :credit_rating, credit_score = :credit_score,
	status = :status, visibility = :visibility, approved_at = :approved_at, approved_by = :approved_by,
	admin_notes = :admin_notes, updated_at = :updated_at, updated_by = :updated_by
	WHERE id = :id AND deleted_at IS NULL`
	result, err := r.db.NamedExecContext(ctx, query, project)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check project update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SoftDelete marks the project deleted without removing the row.
func (r *ProjectRepository) SoftDelete(ctx context.Context, id int64) error {
	const query = `UPDATE projects SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("soft delete project: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check project delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RecomputeFunding rederives the project's funding totals in its own
// transaction. Used for repair/reconciliation; lifecycle transitions run
// the same statement inside their own transaction instead.
func (r *ProjectRepository) RecomputeFunding(ctx context.Context, referenceID string) (totals models.FundingTotals, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.FundingTotals{}, fmt.Errorf("begin funding recompute: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	totals, err = recomputeProjectFundingTx(ctx, tx, referenceID)
	if err != nil {
		return models.FundingTotals{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.FundingTotals{}, fmt.Errorf("commit funding recompute: %w", err)
	}
	return totals, nil
}

// CreateRejection appends a rejection-history row for the project.
func (r *ProjectRepository) CreateRejection(ctx context.Context, rejection *models.ProjectRejection) error {
	if rejection.RejectedAt.IsZero() {
		rejection.RejectedAt = time.Now().UTC()
	}
	const query = `INSERT INTO project_rejections
	(project_id, rejected_by, rejection_note, rejected_at, resubmission_count)
	VALUES (:project_id, :rejected_by, :rejection_note, :rejected_at, :resubmission_count)`
	if _, err := r.db.NamedExecContext(ctx, query, rejection); err != nil {
		return fmt.Errorf("create project rejection: %w", err)
	}
	return nil
}

// LatestRejection returns the most recent rejection record for a project.
func (r *ProjectRepository) LatestRejection(ctx context.Context, projectID int64) (*models.ProjectRejection, error) {
	const query = `SELECT id, project_id, rejected_by, rejection_note, rejected_at, resubmitted_at, resubmission_count
	FROM project_rejections WHERE project_id = $1 ORDER BY rejected_at DESC LIMIT 1`
	var rejection models.ProjectRejection
	if err := r.db.GetContext(ctx, &rejection, query, projectID); err != nil {
		return nil, err
	}
	return &rejection, nil
}

// MarkResubmitted stamps the rejection record when the project re-enters validation.
func (r *ProjectRepository) MarkResubmitted(ctx context.Context, rejectionID int64) error {
	const query = `UPDATE project_rejections
	SET resubmitted_at = $1, resubmission_count = resubmission_count + 1
	WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), rejectionID); err != nil {
		return fmt.Errorf("mark project resubmitted: %w", err)
	}
	return nil
}
