package dto

import (
	"time"

	"github.com/munify/munify-api/internal/models"
)

// CreateQuestionRequest posts a public inquiry on a project.
type CreateQuestionRequest struct {
	QuestionText string     `json:"question_text" validate:"required"`
	Category     *string    `json:"category,omitempty"`
	IsPublic     *bool      `json:"is_public,omitempty"`
	Priority     string     `json:"priority,omitempty"`
	SLADueAt     *time.Time `json:"sla_due_at,omitempty"`
}

// AnswerQuestionRequest records the single reply for a question.
type AnswerQuestionRequest struct {
	ReplyText string `json:"reply_text" validate:"required"`
}

// QuestionQuery filters question listings.
type QuestionQuery struct {
	Status   models.QuestionStatus `form:"status"`
	Category string                `form:"category"`
	Priority string                `form:"priority"`
	Page     int                   `form:"page"`
	Limit    int                   `form:"limit"`
}

// QuestionResponse pairs a question with its answer when present.
type QuestionResponse struct {
	models.Question
	Answer *models.QuestionReply `json:"answer,omitempty"`
}

// SLAEvaluation is the result of an explicit SLA check.
type SLAEvaluation struct {
	QuestionID  int64 `json:"question_id"`
	SLABreached bool  `json:"sla_breached"`
}
