package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/munify/munify-api/internal/dto"
)

// StatisticsRepository aggregates platform-wide marketplace numbers.
type StatisticsRepository struct {
	db *sqlx.DB
}

// NewStatisticsRepository constructs the repository.
func NewStatisticsRepository(db *sqlx.DB) *StatisticsRepository {
	return &StatisticsRepository{db: db}
}

type statusCount struct {
	Status string `db:"status"`
	Total  int    `db:"total"`
}

// PlatformStatistics builds the marketplace snapshot from live tables.
func (r *StatisticsRepository) PlatformStatistics(ctx context.Context) (*dto.PlatformStatistics, error) {
	stats := &dto.PlatformStatistics{
		ProjectsByStatus:    make(map[string]int),
		CommitmentsByStatus: make(map[string]int),
	}

	var projectCounts []statusCount
	const projectQuery = `SELECT status, COUNT(*) AS total FROM projects
	WHERE deleted_at IS NULL GROUP BY status`
	if err := r.db.SelectContext(ctx, &projectCounts, projectQuery); err != nil {
		return nil, fmt.Errorf("count projects by status: %w", err)
	}
	for _, row := range projectCounts {
		stats.ProjectsByStatus[row.Status] = row.Total
	}

	var commitmentCounts []statusCount
	const commitmentQuery = `SELECT status, COUNT(*) AS total FROM commitments GROUP BY status`
	if err := r.db.SelectContext(ctx, &commitmentCounts, commitmentQuery); err != nil {
		return nil, fmt.Errorf("count commitments by status: %w", err)
	}
	for _, row := range commitmentCounts {
		stats.CommitmentsByStatus[row.Status] = row.Total
	}

	const totalsQuery = `SELECT COALESCE(SUM(funding_raised), 0) AS raised, COALESCE(SUM(funding_requirement), 0) AS required
	FROM projects WHERE deleted_at IS NULL`
	var totals struct {
		Raised   float64 `db:"raised"`
		Required float64 `db:"required"`
	}
	if err := r.db.GetContext(ctx, &totals, totalsQuery); err != nil {
		return nil, fmt.Errorf("sum funding totals: %w", err)
	}
	stats.TotalFundingRaised = totals.Raised
	stats.TotalRequirement = totals.Required

	const questionQuery = `SELECT
	COUNT(*) FILTER (WHERE status = 'open') AS open,
	COUNT(*) FILTER (WHERE sla_breached) AS breached
	FROM questions`
	var questions struct {
		Open     int `db:"open"`
		Breached int `db:"breached"`
	}
	if err := r.db.GetContext(ctx, &questions, questionQuery); err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	stats.OpenQuestions = questions.Open
	stats.BreachedQuestions = questions.Breached

	return stats, nil
}
