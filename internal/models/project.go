package models

import "time"

// ProjectStatus enumerates the project validation workflow states.
type ProjectStatus string

const (
	ProjectStatusDraft             ProjectStatus = "draft"
	ProjectStatusPendingValidation ProjectStatus = "pending_validation"
	ProjectStatusActive            ProjectStatus = "active"
	ProjectStatusFundingCompleted  ProjectStatus = "funding_completed"
	ProjectStatusClosed            ProjectStatus = "closed"
	ProjectStatusRejected          ProjectStatus = "rejected"
)

// ValidProjectStatus reports whether the value is a known project status.
func ValidProjectStatus(s ProjectStatus) bool {
	switch s {
	case ProjectStatusDraft, ProjectStatusPendingValidation, ProjectStatusActive,
		ProjectStatusFundingCompleted, ProjectStatusClosed, ProjectStatusRejected:
		return true
	}
	return false
}

// ProjectStage enumerates execution stages of the underlying works.
type ProjectStage string

const (
	ProjectStagePlanning   ProjectStage = "planning"
	ProjectStageInitiated  ProjectStage = "initiated"
	ProjectStageInProgress ProjectStage = "in_progress"
)

// ValidProjectStage reports whether the value is a known project stage.
func ValidProjectStage(s ProjectStage) bool {
	switch s {
	case ProjectStagePlanning, ProjectStageInitiated, ProjectStageInProgress:
		return true
	}
	return false
}

// Visibility controls whether a project is listed to lenders.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// ValidVisibility reports whether the value is a known visibility.
func ValidVisibility(v Visibility) bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

// Project is a municipal funding request listed on the marketplace.
// FundingRaised and CommitmentCount are derived values owned by the
// funding aggregator; nothing else may write them.
type Project struct {
	ID                 int64         `db:"id" json:"id"`
	OrganizationType   string        `db:"organization_type" json:"organization_type"`
	OrganizationID     string        `db:"organization_id" json:"organization_id"`
	ReferenceID        string        `db:"reference_id" json:"reference_id"`
	Title              string        `db:"title" json:"title"`
	Department         *string       `db:"department" json:"department,omitempty"`
	ContactPerson      string        `db:"contact_person" json:"contact_person"`
	ContactEmail       *string       `db:"contact_email" json:"contact_email,omitempty"`
	ContactPhone       *string       `db:"contact_phone" json:"contact_phone,omitempty"`
	Category           *string       `db:"category" json:"category,omitempty"`
	Stage              ProjectStage  `db:"stage" json:"stage"`
	Description        *string       `db:"description" json:"description,omitempty"`
	State              *string       `db:"state" json:"state,omitempty"`
	City               *string       `db:"city" json:"city,omitempty"`
	Ward               *string       `db:"ward" json:"ward,omitempty"`
	TotalProjectCost   *float64      `db:"total_project_cost" json:"total_project_cost,omitempty"`
	FundingRequirement float64       `db:"funding_requirement" json:"funding_requirement"`
	AlreadySecured     float64       `db:"already_secured_funds" json:"already_secured_funds"`
	Currency           string        `db:"currency" json:"currency"`
	FundraisingStart   *time.Time    `db:"fundraising_start" json:"fundraising_start,omitempty"`
	FundraisingEnd     *time.Time    `db:"fundraising_end" json:"fundraising_end,omitempty"`
	CreditRating       *string       `db:"credit_rating" json:"credit_rating,omitempty"`
	CreditScore        *float64      `db:"credit_score" json:"credit_score,omitempty"`
	Status             ProjectStatus `db:"status" json:"status"`
	Visibility         Visibility    `db:"visibility" json:"visibility"`
	FundingRaised      float64       `db:"funding_raised" json:"funding_raised"`
	CommitmentCount    int           `db:"commitment_count" json:"commitment_count"`
	ApprovedAt         *time.Time    `db:"approved_at" json:"approved_at,omitempty"`
	ApprovedBy         *string       `db:"approved_by" json:"approved_by,omitempty"`
	AdminNotes         *string       `db:"admin_notes" json:"admin_notes,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	CreatedBy          *string       `db:"created_by" json:"created_by,omitempty"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
	UpdatedBy          *string       `db:"updated_by" json:"updated_by,omitempty"`
	DeletedAt          *time.Time    `db:"deleted_at" json:"-"`
}

// CommitmentGap is the funding requirement not yet covered by secured funds.
func (p *Project) CommitmentGap() float64 {
	return p.FundingRequirement - p.AlreadySecured
}

// FundingPercentage is funding_raised relative to the requirement; zero
// when no requirement is set.
func (p *Project) FundingPercentage() float64 {
	if p.FundingRequirement <= 0 {
		return 0
	}
	return p.FundingRaised / p.FundingRequirement * 100
}

// FundraisingClosed reports whether the fundraising window has elapsed.
func (p *Project) FundraisingClosed(now time.Time) bool {
	return p.FundraisingEnd != nil && now.After(*p.FundraisingEnd)
}

// ProjectFilter constrains project listing queries.
type ProjectFilter struct {
	OrganizationID   string
	OrganizationType string
	Status           ProjectStatus
	Visibility       Visibility
	Limit            int
	Offset           int
}

// FundingTotals is the aggregator's output for a single project.
type FundingTotals struct {
	FundingRaised   float64 `db:"funding_raised" json:"funding_raised"`
	CommitmentCount int     `db:"commitment_count" json:"commitment_count"`
}

// ProjectRejection is an audit row recorded when an admin rejects a project.
type ProjectRejection struct {
	ID                int64      `db:"id" json:"id"`
	ProjectID         int64      `db:"project_id" json:"project_id"`
	RejectedBy        string     `db:"rejected_by" json:"rejected_by"`
	RejectionNote     string     `db:"rejection_note" json:"rejection_note"`
	RejectedAt        time.Time  `db:"rejected_at" json:"rejected_at"`
	ResubmittedAt     *time.Time `db:"resubmitted_at" json:"resubmitted_at,omitempty"`
	ResubmissionCount int        `db:"resubmission_count" json:"resubmission_count"`
}
