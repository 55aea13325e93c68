package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/munify/munify-api/internal/models"
)

// OrganizationRepository reads and maintains registered organizations.
type OrganizationRepository struct {
	db *sqlx.DB
}

// NewOrganizationRepository constructs the repository.
func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// GetByID fetches an organization by its identifier.
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	const query = `SELECT id, name, type, fee_status, active, created_at, updated_at
	FROM organizations WHERE id = $1`
	var org models.Organization
	if err := r.db.GetContext(ctx, &org, query, id); err != nil {
		return nil, err
	}
	return &org, nil
}

// List returns organizations, optionally filtered by type.
func (r *OrganizationRepository) List(ctx context.Context, orgType models.OrganizationType) ([]models.Organization, error) {
	query := `SELECT id, name, type, fee_status, active, created_at, updated_at FROM organizations`
	args := []interface{}{}
	if orgType != "" {
		query += ` WHERE type = $1`
		args = append(args, orgType)
	}
	query += ` ORDER BY name ASC`
	var orgs []models.Organization
	if err := r.db.SelectContext(ctx, &orgs, query, args...); err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	return orgs, nil
}

// SetFeeStatus updates the platform fee standing of an organization.
func (r *OrganizationRepository) SetFeeStatus(ctx context.Context, id string, status models.FeeStatus) error {
	const query = `UPDATE organizations SET fee_status = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set fee status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check fee status rows: %w", err)
	}
	if rows == 0 {
		return ErrStaleRow
	}
	return nil
}
