package models

import "time"

// QuestionStatus tracks the answering workflow of a public inquiry.
type QuestionStatus string

const (
	QuestionStatusDraft    QuestionStatus = "draft"
	QuestionStatusOpen     QuestionStatus = "open"
	QuestionStatusAnswered QuestionStatus = "answered"
	QuestionStatusClosed   QuestionStatus = "closed"
)

// ValidQuestionStatus reports whether the value is a known question status.
func ValidQuestionStatus(s QuestionStatus) bool {
	switch s {
	case QuestionStatusDraft, QuestionStatusOpen, QuestionStatusAnswered, QuestionStatusClosed:
		return true
	}
	return false
}

// Question is a public inquiry raised against a project.
type Question struct {
	ID                 int64          `db:"id" json:"id"`
	ProjectReferenceID string         `db:"project_reference_id" json:"project_reference_id"`
	AskedBy            string         `db:"asked_by" json:"asked_by"`
	QuestionText       string         `db:"question_text" json:"question_text"`
	Category           *string        `db:"category" json:"category,omitempty"`
	Status             QuestionStatus `db:"status" json:"status"`
	IsPublic           bool           `db:"is_public" json:"is_public"`
	Priority           string         `db:"priority" json:"priority"`
	SLADueAt           *time.Time     `db:"sla_due_at" json:"sla_due_at,omitempty"`
	SLABreached        bool           `db:"sla_breached" json:"sla_breached"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	CreatedBy          *string        `db:"created_by" json:"created_by,omitempty"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
	UpdatedBy          *string        `db:"updated_by" json:"updated_by,omitempty"`
}

// SLAOverdue reports whether the question is open with an elapsed deadline.
// The stored sla_breached flag is sticky; this only evaluates the rule.
func (q *Question) SLAOverdue(now time.Time) bool {
	return q.Status == QuestionStatusOpen && q.SLADueAt != nil && q.SLADueAt.Before(now)
}

// QuestionReply is the single answer recorded for a question.
type QuestionReply struct {
	ID         int64     `db:"id" json:"id"`
	QuestionID int64     `db:"question_id" json:"question_id"`
	RepliedBy  string    `db:"replied_by" json:"replied_by"`
	ReplyText  string    `db:"reply_text" json:"reply_text"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// QuestionFilter constrains question listing queries.
type QuestionFilter struct {
	ProjectReferenceID string
	OrganizationID     string
	Status             QuestionStatus
	Category           string
	Priority           string
	Limit              int
	Offset             int
}
