package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/munify/munify-api/internal/dto"
	"github.com/munify/munify-api/internal/models"
	"github.com/munify/munify-api/internal/service"
	appErrors "github.com/munify/munify-api/pkg/errors"
	"github.com/munify/munify-api/pkg/response"
)

// QuestionHandler exposes project Q&A endpoints.
type QuestionHandler struct {
	questions *service.QuestionService
}

// NewQuestionHandler constructs QuestionHandler.
func NewQuestionHandler(questions *service.QuestionService) *QuestionHandler {
	return &QuestionHandler{questions: questions}
}

func questionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid question id"))
		return 0, false
	}
	return id, true
}

// List godoc
// @Summary List questions on a project
// @Tags Questions
// @Produce json
// @Param referenceId path string true "Project reference ID"
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /projects/{referenceId}/questions [get]
func (h *QuestionHandler) List(c *gin.Context) {
	var filter models.QuestionFilter
	filter.ProjectReferenceID = c.Param("referenceId")
	filter.Status = models.QuestionStatus(c.Query("status"))
	filter.Category = c.Query("category")
	filter.Priority = c.Query("priority")
	limit := 50
	if parsed, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil && parsed > 0 {
		limit = parsed
	}
	page := 1
	if parsed, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && parsed > 0 {
		page = parsed
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	questions, pagination, err := h.questions.List(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, questions, pagination)
}

// Get godoc
// @Summary Get a question with its answer
// @Tags Questions
// @Produce json
// @Param id path int true "Question ID"
// @Success 200 {object} response.Envelope
// @Router /questions/{id} [get]
func (h *QuestionHandler) Get(c *gin.Context) {
	id, ok := questionID(c)
	if !ok {
		return
	}
	question, err := h.questions.Get(c.Request.Context(), claimsFromContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, question, nil)
}

// Create godoc
// @Summary Ask a question on a project
// @Tags Questions
// @Accept json
// @Produce json
// @Param referenceId path string true "Project reference ID"
// @Param payload body dto.CreateQuestionRequest true "Question payload"
// @Success 201 {object} response.Envelope
// @Router /projects/{referenceId}/questions [post]
func (h *QuestionHandler) Create(c *gin.Context) {
	var req dto.CreateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	question, err := h.questions.Create(c.Request.Context(), claimsFromContext(c), c.Param("referenceId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, question)
}

// Answer godoc
// @Summary Answer an open question
// @Tags Questions
// @Accept json
// @Produce json
// @Param id path int true "Question ID"
// @Param payload body dto.AnswerQuestionRequest true "Answer payload"
// @Success 200 {object} response.Envelope
// @Router /questions/{id}/answer [post]
func (h *QuestionHandler) Answer(c *gin.Context) {
	id, ok := questionID(c)
	if !ok {
		return
	}
	var req dto.AnswerQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	question, err := h.questions.Answer(c.Request.Context(), claimsFromContext(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, question, nil)
}

// Close godoc
// @Summary Close a question without answering
// @Tags Questions
// @Produce json
// @Param id path int true "Question ID"
// @Success 204
// @Router /questions/{id}/close [post]
func (h *QuestionHandler) Close(c *gin.Context) {
	id, ok := questionID(c)
	if !ok {
		return
	}
	if err := h.questions.CloseQuestion(c.Request.Context(), claimsFromContext(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// EvaluateSLA godoc
// @Summary Evaluate a question's answer SLA
// @Tags Questions
// @Produce json
// @Param id path int true "Question ID"
// @Success 200 {object} response.Envelope
// @Router /questions/{id}/sla/evaluate [post]
func (h *QuestionHandler) EvaluateSLA(c *gin.Context) {
	id, ok := questionID(c)
	if !ok {
		return
	}
	eval, err := h.questions.EvaluateSLA(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, eval, nil)
}
