package dto

import "github.com/munify/munify-api/internal/models"

// CreateCommitmentRequest is the payload for pledging funds to a project.
type CreateCommitmentRequest struct {
	ProjectReferenceID string             `json:"project_reference_id" validate:"required"`
	Amount             float64            `json:"amount" validate:"required,gt=0"`
	FundingMode        models.FundingMode `json:"funding_mode" validate:"required"`
	InterestRate       *float64           `json:"interest_rate,omitempty" validate:"omitempty,gte=0"`
	TenureMonths       *int               `json:"tenure_months,omitempty" validate:"omitempty,gt=0"`
	Terms              *string            `json:"terms,omitempty"`
	// SubmitNow creates the commitment directly in pending instead of draft.
	SubmitNow bool `json:"submit_now,omitempty"`
}

// UpdateCommitmentRequest edits a commitment that is still modifiable.
// This is not a state transition; it bumps update_count and snapshots history.
type UpdateCommitmentRequest struct {
	Amount       *float64            `json:"amount,omitempty" validate:"omitempty,gt=0"`
	FundingMode  *models.FundingMode `json:"funding_mode,omitempty"`
	InterestRate *float64            `json:"interest_rate,omitempty" validate:"omitempty,gte=0"`
	TenureMonths *int                `json:"tenure_months,omitempty" validate:"omitempty,gt=0"`
	Terms        *string             `json:"terms,omitempty"`
}

// ReviewDecision is the admin verdict on a commitment under review.
type ReviewDecision string

const (
	ReviewDecisionApproved ReviewDecision = "approved"
	ReviewDecisionRejected ReviewDecision = "rejected"
)

// ReviewCommitmentRequest carries the admin decision. Reason is mandatory
// for rejections.
type ReviewCommitmentRequest struct {
	Decision ReviewDecision `json:"decision" validate:"required"`
	Reason   string         `json:"reason,omitempty"`
	Notes    string         `json:"notes,omitempty"`
}

// CommitmentQuery filters commitment listings.
type CommitmentQuery struct {
	ProjectReferenceID string                  `form:"project_reference_id"`
	OrganizationID     string                  `form:"organization_id"`
	Status             models.CommitmentStatus `form:"status"`
	Page               int                     `form:"page"`
	Limit              int                     `form:"limit"`
}
