package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/munify/munify-api/internal/models"
)

const commitmentColumns = `id, project_reference_id, organization_type, organization_id, committed_by,
       amount, currency, funding_mode, interest_rate, tenure_months, terms,
       status, can_modify, is_locked, approved_by, approved_at,
       rejection_reason, rejection_notes, receipt_url, receipt_generated_at,
       update_count, version, created_at, created_by, updated_at, updated_by`

// CommitmentRepository persists commitments, their append-only history, and
// keeps project funding totals consistent with lifecycle changes. Every
// transition runs as one transaction: row lock, status write, history
// snapshot, funding recompute.
type CommitmentRepository struct {
	db *sqlx.DB
}

// NewCommitmentRepository constructs the repository.
func NewCommitmentRepository(db *sqlx.DB) *CommitmentRepository {
	return &CommitmentRepository{db: db}
}

// TransitionUpdate describes one lifecycle transition to apply atomically.
// From is the status the caller observed; the write is refused if the row
// has moved on since.
type TransitionUpdate struct {
	ID     int64
	From   models.CommitmentStatus
	To     models.CommitmentStatus
	Action models.HistoryAction
	Actor  string

	CanModify bool
	IsLocked  bool

	// Populated on approval.
	ApprovedBy *string
	ApprovedAt *time.Time
	// Populated on rejection.
	RejectionReason *string
	RejectionNotes  *string
}

// Create inserts the commitment and its "created" history snapshot in one
// transaction. New commitments never start in a counted status, so no
// funding recompute is needed here.
func (r *CommitmentRepository) Create(ctx context.Context, commitment *models.Commitment) (err error) {
	now := time.Now().UTC()
	commitment.CreatedAt = now
	commitment.UpdatedAt = now
	commitment.Version = 1

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commitment create: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insert = `INSERT INTO commitments
	(project_reference_id, organization_type, organization_id, committed_by,
	 amount, currency, funding_mode, interest_rate, tenure_months, terms,
	 status, can_modify, is_locked, update_count, version,
	 created_at, created_by, updated_at, updated_by)
	VALUES (:project_reference_id, :organization_type, :organization_id, :committed_by,
	 :amount, :currency, :funding_mode, :interest_rate, :tenure_months, :terms,
	 :status, :can_modify, :is_locked, :update_count, :version,
	 :created_at, :created_by, :updated_at, :updated_by)
	RETURNING id`
	rows, err := tx.NamedQuery(insert, commitment)
	if err != nil {
		return fmt.Errorf("create commitment: %w", err)
	}
	if rows.Next() {
		if err = rows.Scan(&commitment.ID); err != nil {
			rows.Close() //nolint:errcheck
			return fmt.Errorf("scan commitment id: %w", err)
		}
	}
	if err = rows.Close(); err != nil {
		return fmt.Errorf("close commitment insert: %w", err)
	}

	if err = insertHistoryTx(ctx, tx, commitment, models.HistoryActionCreated, commitment.CreatedBy); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit commitment create: %w", err)
	}
	return nil
}

// GetByID fetches a single commitment.
func (r *CommitmentRepository) GetByID(ctx context.Context, id int64) (*models.Commitment, error) {
	query := `SELECT ` + commitmentColumns + ` FROM commitments WHERE id = $1`
	var commitment models.Commitment
	if err := r.db.GetContext(ctx, &commitment, query, id); err != nil {
		return nil, err
	}
	return &commitment, nil
}

// List returns commitments matching the filter, newest first, plus the total count.
func (r *CommitmentRepository) List(ctx context.Context, filter models.CommitmentFilter) ([]models.Commitment, int, error) {
	conditions := []string{"1=1"}
	args := make([]interface{}, 0, 4)
	if filter.ProjectReferenceID != "" {
		args = append(args, filter.ProjectReferenceID)
		conditions = append(conditions, fmt.Sprintf("project_reference_id = $%d", len(args)))
	}
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
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM commitments"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count commitments: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + commitmentColumns + ` FROM commitments` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d", limit, offset)

	var commitments []models.Commitment
	if err := r.db.SelectContext(ctx, &commitments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list commitments: %w", err)
	}
	return commitments, total, nil
}

// History returns the append-only snapshots for a commitment, oldest first.
func (r *CommitmentRepository) History(ctx context.Context, commitmentID int64) ([]models.CommitmentHistory, error) {
	const query = `SELECT id, commitment_id, project_reference_id, organization_type, organization_id,
	committed_by, amount, funding_mode, interest_rate, tenure_months, terms,
	status, action, created_at, created_by
	FROM commitment_history WHERE commitment_id = $1 ORDER BY created_at ASC, id ASC`
	var history []models.CommitmentHistory
	if err := r.db.SelectContext(ctx, &history, query, commitmentID); err != nil {
		return nil, fmt.Errorf("load commitment history: %w", err)
	}
	return history, nil
}

// Transition applies one lifecycle transition atomically. The row is locked,
// the observed status is re-checked under the lock (a mismatch returns
// ErrStaleRow), the new status and bookkeeping fields are written, a history
// snapshot is appended, and funding totals are recomputed whenever the move
// enters or leaves the counted statuses.
func (r *CommitmentRepository) Transition(ctx context.Context, update TransitionUpdate) (commitment *models.Commitment, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Commitment
	lockQuery := `SELECT ` + commitmentColumns + ` FROM commitments WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, update.ID); err != nil {
		return nil, err
	}
	if current.Status != update.From {
		err = ErrStaleRow
		return nil, err
	}

	now := time.Now().UTC()
	current.Status = update.To
	current.CanModify = update.CanModify
	current.IsLocked = update.IsLocked
	current.UpdatedAt = now
	current.UpdatedBy = &update.Actor
	current.Version++
	if update.ApprovedBy != nil {
		current.ApprovedBy = update.ApprovedBy
		current.ApprovedAt = update.ApprovedAt
	}
	if update.RejectionReason != nil {
		current.RejectionReason = update.RejectionReason
		current.RejectionNotes = update.RejectionNotes
	}

	const write = `UPDATE commitments SET
	status = :status, can_modify = :can_modify, is_locked = :is_locked,
	approved_by = :approved_by, approved_at = :approved_at,
	rejection_reason = :rejection_reason, rejection_notes = :rejection_notes,
	version = :version, updated_at = :updated_at, updated_by = :updated_by
	WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, write, &current); err != nil {
		return nil, fmt.Errorf("write transition: %w", err)
	}

	if err = insertHistoryTx(ctx, tx, &current, update.Action, &update.Actor); err != nil {
		return nil, err
	}

	if models.CountsTowardFunding(update.From) || models.CountsTowardFunding(update.To) {
		if _, err = recomputeProjectFundingTx(ctx, tx, current.ProjectReferenceID); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return &current, nil
}

// UpdateEditable rewrites the negotiable fields of a still-modifiable
// commitment and snapshots the result. The can_modify/is_locked gate is
// re-checked under the row lock so a concurrent claim cannot race an edit.
func (r *CommitmentRepository) UpdateEditable(ctx context.Context, commitment *models.Commitment, actor string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commitment update: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Commitment
	lockQuery := `SELECT ` + commitmentColumns + ` FROM commitments WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, commitment.ID); err != nil {
		return err
	}
	if !current.CanModify || current.IsLocked {
		err = ErrStaleRow
		return err
	}

	now := time.Now().UTC()
	current.Amount = commitment.Amount
	current.FundingMode = commitment.FundingMode
	current.InterestRate = commitment.InterestRate
	current.TenureMonths = commitment.TenureMonths
	current.Terms = commitment.Terms
	current.UpdateCount++
	current.Version++
	current.UpdatedAt = now
	current.UpdatedBy = &actor

	const write = `UPDATE commitments SET
	amount = :amount, funding_mode = :funding_mode, interest_rate = :interest_rate,
	tenure_months = :tenure_months, terms = :terms,
	update_count = :update_count, version = :version,
	updated_at = :updated_at, updated_by = :updated_by
	WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, write, &current); err != nil {
		return fmt.Errorf("write commitment update: %w", err)
	}

	if err = insertHistoryTx(ctx, tx, &current, models.HistoryActionUpdated, &actor); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit commitment update: %w", err)
	}
	*commitment = current
	return nil
}

// SetReceipt records the generated acknowledgment receipt on the commitment.
func (r *CommitmentRepository) SetReceipt(ctx context.Context, id int64, receiptURL string) error {
	const query = `UPDATE commitments SET receipt_url = $1, receipt_generated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, receiptURL, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("set commitment receipt: %w", err)
	}
	return nil
}

func insertHistoryTx(ctx context.Context, tx *sqlx.Tx, c *models.Commitment, action models.HistoryAction, actor *string) error {
	snapshot := models.CommitmentHistory{
		CommitmentID:       c.ID,
		ProjectReferenceID: c.ProjectReferenceID,
		OrganizationType:   c.OrganizationType,
		OrganizationID:     c.OrganizationID,
		CommittedBy:        c.CommittedBy,
		Amount:             c.Amount,
		FundingMode:        c.FundingMode,
		InterestRate:       c.InterestRate,
		TenureMonths:       c.TenureMonths,
		Terms:              c.Terms,
		Status:             c.Status,
		Action:             action,
		CreatedAt:          time.Now().UTC(),
		CreatedBy:          actor,
	}
	const query = `INSERT INTO commitment_history
	(commitment_id, project_reference_id, organization_type, organization_id, committed_by,
	 amount, funding_mode, interest_rate, tenure_months, terms, status, action, created_at, created_by)
	VALUES (:commitment_id, :project_reference_id, :organization_type, :organization_id, :committed_by,
	 :amount, :funding_mode, :interest_rate, :tenure_months, :terms, :status, :action, :created_at, :created_by)`
	if _, err := tx.NamedExecContext(ctx, query, &snapshot); err != nil {
		return fmt.Errorf("insert commitment history: %w", err)
	}
	return nil
}
