package models

import "time"

// CommitmentStatus captures the lifecycle states of a funding commitment.
type CommitmentStatus string

const (
	CommitmentStatusDraft       CommitmentStatus = "draft"
	CommitmentStatusPending     CommitmentStatus = "pending"
	CommitmentStatusUnderReview CommitmentStatus = "under_review"
	CommitmentStatusApproved    CommitmentStatus = "approved"
	CommitmentStatusRejected    CommitmentStatus = "rejected"
	CommitmentStatusWithdrawn   CommitmentStatus = "withdrawn"
	CommitmentStatusFunded      CommitmentStatus = "funded"
	CommitmentStatusCompleted   CommitmentStatus = "completed"
)

// commitmentTransitions is the exhaustive transition table. Withdrawal is
// reachable from every non-terminal state; the can_modify gate on owner
// withdrawals is enforced by the lifecycle manager, not here.
var commitmentTransitions = map[CommitmentStatus][]CommitmentStatus{
	CommitmentStatusDraft:       {CommitmentStatusPending, CommitmentStatusWithdrawn},
	CommitmentStatusPending:     {CommitmentStatusUnderReview, CommitmentStatusWithdrawn},
	CommitmentStatusUnderReview: {CommitmentStatusApproved, CommitmentStatusRejected, CommitmentStatusWithdrawn},
	CommitmentStatusApproved:    {CommitmentStatusFunded, CommitmentStatusWithdrawn},
	CommitmentStatusFunded:      {CommitmentStatusCompleted, CommitmentStatusWithdrawn},
	CommitmentStatusRejected:    {},
	CommitmentStatusWithdrawn:   {},
	CommitmentStatusCompleted:   {},
}

// ValidCommitmentStatus reports whether the value is a known status.
func ValidCommitmentStatus(s CommitmentStatus) bool {
	_, ok := commitmentTransitions[s]
	return ok
}

// CanTransitionTo reports whether the transition from s to target is legal.
func (s CommitmentStatus) CanTransitionTo(target CommitmentStatus) bool {
	for _, allowed := range commitmentTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is defined from s.
func (s CommitmentStatus) Terminal() bool {
	return len(commitmentTransitions[s]) == 0
}

// CountsTowardFunding reports whether a commitment in this status is
// included in a project's derived funding totals. Disbursed commitments
// stay counted so a project's gap never reopens after funding.
func CountsTowardFunding(s CommitmentStatus) bool {
	switch s {
	case CommitmentStatusApproved, CommitmentStatusFunded, CommitmentStatusCompleted:
		return true
	}
	return false
}

// FundingMode enumerates how committed funds are extended.
type FundingMode string

const (
	FundingModeLoan  FundingMode = "loan"
	FundingModeGrant FundingMode = "grant"
	FundingModeCSR   FundingMode = "csr"
)

// ValidFundingMode reports whether the value is a known funding mode.
func ValidFundingMode(m FundingMode) bool {
	return m == FundingModeLoan || m == FundingModeGrant || m == FundingModeCSR
}

// Commitment is a lender's pledge of funds against one project.
type Commitment struct {
	ID                 int64            `db:"id" json:"id"`
	ProjectReferenceID string           `db:"project_reference_id" json:"project_reference_id"`
	OrganizationType   string           `db:"organization_type" json:"organization_type"`
	OrganizationID     string           `db:"organization_id" json:"organization_id"`
	CommittedBy        string           `db:"committed_by" json:"committed_by"`
	Amount             float64          `db:"amount" json:"amount"`
	Currency           string           `db:"currency" json:"currency"`
	FundingMode        FundingMode      `db:"funding_mode" json:"funding_mode"`
	InterestRate       *float64         `db:"interest_rate" json:"interest_rate,omitempty"`
	TenureMonths       *int             `db:"tenure_months" json:"tenure_months,omitempty"`
	Terms              *string          `db:"terms" json:"terms,omitempty"`
	Status             CommitmentStatus `db:"status" json:"status"`
	CanModify          bool             `db:"can_modify" json:"can_modify"`
	IsLocked           bool             `db:"is_locked" json:"is_locked"`
	ApprovedBy         *string          `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt         *time.Time       `db:"approved_at" json:"approved_at,omitempty"`
	RejectionReason    *string          `db:"rejection_reason" json:"rejection_reason,omitempty"`
	RejectionNotes     *string          `db:"rejection_notes" json:"rejection_notes,omitempty"`
	ReceiptURL         *string          `db:"receipt_url" json:"receipt_url,omitempty"`
	ReceiptGeneratedAt *time.Time       `db:"receipt_generated_at" json:"receipt_generated_at,omitempty"`
	UpdateCount        int              `db:"update_count" json:"update_count"`
	Version            int              `db:"version" json:"-"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	CreatedBy          *string          `db:"created_by" json:"created_by,omitempty"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
	UpdatedBy          *string          `db:"updated_by" json:"updated_by,omitempty"`
}

// HistoryAction labels the event recorded by a history snapshot.
type HistoryAction string

const (
	HistoryActionCreated   HistoryAction = "created"
	HistoryActionUpdated   HistoryAction = "updated"
	HistoryActionSubmitted HistoryAction = "submitted"
	HistoryActionClaimed   HistoryAction = "claimed"
	HistoryActionApproved  HistoryAction = "approved"
	HistoryActionRejected  HistoryAction = "rejected"
	HistoryActionWithdrawn HistoryAction = "withdrawn"
	HistoryActionFunded    HistoryAction = "funded"
	HistoryActionCompleted HistoryAction = "completed"
)

// CommitmentHistory is an immutable snapshot of a commitment at the moment
// of an action. Append-only, one row per transition or edit.
type CommitmentHistory struct {
	ID                 int64            `db:"id" json:"id"`
	CommitmentID       int64            `db:"commitment_id" json:"commitment_id"`
	ProjectReferenceID string           `db:"project_reference_id" json:"project_reference_id"`
	OrganizationType   string           `db:"organization_type" json:"organization_type"`
	OrganizationID     string           `db:"organization_id" json:"organization_id"`
	CommittedBy        string           `db:"committed_by" json:"committed_by"`
	Amount             float64          `db:"amount" json:"amount"`
	FundingMode        FundingMode      `db:"funding_mode" json:"funding_mode"`
	InterestRate       *float64         `db:"interest_rate" json:"interest_rate,omitempty"`
	TenureMonths       *int             `db:"tenure_months" json:"tenure_months,omitempty"`
	Terms              *string          `db:"terms" json:"terms,omitempty"`
	Status             CommitmentStatus `db:"status" json:"status"`
	Action             HistoryAction    `db:"action" json:"action"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	CreatedBy          *string          `db:"created_by" json:"created_by,omitempty"`
}

// CommitmentFilter constrains commitment listing queries.
type CommitmentFilter struct {
	ProjectReferenceID string
	OrganizationID     string
	OrganizationType   string
	Status             CommitmentStatus
	Limit              int
	Offset             int
}
