package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/munify/munify-api/internal/models"
)

// recomputeProjectFundingTx rederives funding_raised and commitment_count
// from the commitment rows and writes them back to the project, all within
// the caller's transaction. Only commitments in a counted status contribute
// (see models.CountsTowardFunding).
func recomputeProjectFundingTx(ctx context.Context, tx *sqlx.Tx, referenceID string) (models.FundingTotals, error) {
	const aggregate = `SELECT COALESCE(SUM(amount), 0) AS funding_raised, COUNT(*) AS commitment_count
	FROM commitments
	WHERE project_reference_id = $1 AND status IN ('approved', 'funded', 'completed')`

	var totals models.FundingTotals
	if err := tx.GetContext(ctx, &totals, aggregate, referenceID); err != nil {
		return models.FundingTotals{}, fmt.Errorf("aggregate commitments: %w", err)
	}

	const writeBack = `UPDATE projects
	SET funding_raised = $1, commitment_count = $2, updated_at = NOW()
	WHERE reference_id = $3 AND deleted_at IS NULL`
	if _, err := tx.ExecContext(ctx, writeBack, totals.FundingRaised, totals.CommitmentCount, referenceID); err != nil {
		return models.FundingTotals{}, fmt.Errorf("write funding totals: %w", err)
	}
	return totals, nil
}
