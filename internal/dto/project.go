package dto

import (
	"time"

	"github.com/munify/munify-api/internal/models"
)

// CreateProjectRequest is the payload for listing a new project.
// Reference ID and currency are backend-assigned and not accepted here.
type CreateProjectRequest struct {
	Title              string               `json:"title" validate:"required,max=500"`
	Department         *string              `json:"department,omitempty"`
	ContactPerson      string               `json:"contact_person" validate:"required"`
	ContactEmail       *string              `json:"contact_email,omitempty" validate:"omitempty,email"`
	ContactPhone       *string              `json:"contact_phone,omitempty"`
	Category           *string              `json:"category,omitempty"`
	Stage              models.ProjectStage  `json:"stage,omitempty"`
	Description        *string              `json:"description,omitempty"`
	State              *string              `json:"state,omitempty"`
	City               *string              `json:"city,omitempty"`
	Ward               *string              `json:"ward,omitempty"`
	TotalProjectCost   *float64             `json:"total_project_cost,omitempty"`
	FundingRequirement float64              `json:"funding_requirement" validate:"required,gt=0"`
	AlreadySecured     *float64             `json:"already_secured_funds,omitempty" validate:"omitempty,gte=0"`
	FundraisingStart   *time.Time           `json:"fundraising_start,omitempty"`
	FundraisingEnd     *time.Time           `json:"fundraising_end,omitempty"`
	CreditRating       *string              `json:"credit_rating,omitempty"`
	CreditScore        *float64             `json:"credit_score,omitempty"`
	Visibility         models.Visibility    `json:"visibility,omitempty"`
}

// UpdateProjectRequest carries partial project updates. Nil means "leave
// unchanged". Derived funding fields and the reference ID are immutable.
type UpdateProjectRequest struct {
	Title              *string              `json:"title,omitempty"`
	Department         *string              `json:"department,omitempty"`
	ContactPerson      *string              `json:"contact_person,omitempty"`
	ContactEmail       *string              `json:"contact_email,omitempty" validate:"omitempty,email"`
	ContactPhone       *string              `json:"contact_phone,omitempty"`
	Category           *string              `json:"category,omitempty"`
	Stage              *models.ProjectStage `json:"stage,omitempty"`
	Description        *string              `json:"description,omitempty"`
	State              *string              `json:"state,omitempty"`
	City               *string              `json:"city,omitempty"`
	Ward               *string              `json:"ward,omitempty"`
	TotalProjectCost   *float64             `json:"total_project_cost,omitempty"`
	FundingRequirement *float64             `json:"funding_requirement,omitempty" validate:"omitempty,gt=0"`
	AlreadySecured     *float64             `json:"already_secured_funds,omitempty" validate:"omitempty,gte=0"`
	FundraisingStart   *time.Time           `json:"fundraising_start,omitempty"`
	FundraisingEnd     *time.Time           `json:"fundraising_end,omitempty"`
	CreditRating       *string              `json:"credit_rating,omitempty"`
	CreditScore        *float64             `json:"credit_score,omitempty"`
	Visibility         *models.Visibility   `json:"visibility,omitempty"`
}

// RejectProjectRequest carries the mandatory rejection note.
type RejectProjectRequest struct {
	Note string `json:"note" validate:"required"`
}

// ApproveProjectRequest carries optional admin notes for approval.
type ApproveProjectRequest struct {
	AdminNotes string `json:"admin_notes,omitempty"`
}

// ResubmitProjectRequest reopens a rejected project with updated fields.
type ResubmitProjectRequest struct {
	UpdateProjectRequest
	ResubmissionNotes string `json:"resubmission_notes,omitempty"`
}

// ProjectResponse decorates a project row with its derived read-side values.
type ProjectResponse struct {
	models.Project
	CommitmentGap     float64 `json:"commitment_gap"`
	FundingPercentage float64 `json:"funding_percentage"`
}

// NewProjectResponse computes the derived fields for a project.
func NewProjectResponse(p *models.Project) ProjectResponse {
	return ProjectResponse{
		Project:           *p,
		CommitmentGap:     p.CommitmentGap(),
		FundingPercentage: p.FundingPercentage(),
	}
}
