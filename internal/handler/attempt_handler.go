package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learning-center-api/internal/dto"
	"github.com/noah-isme/learning-center-api/internal/models"
	"github.com/noah-isme/learning-center-api/pkg/response"
)

type attemptService interface {
	SubmitQuizAttempt(ctx context.Context, quizID, studentID int64, req dto.SubmitAttemptRequest) (*models.QuizAttempt, error)
	ListStudentAttempts(ctx context.Context, quizID, studentID int64) ([]models.QuizAttempt, error)
	GetBestAttempt(ctx context.Context, quizID, studentID int64) (*models.QuizAttempt, error)
	GetAttemptResult(ctx context.Context, principal models.Principal, attemptID int64) (*models.QuizAttempt, error)
	ListQuizAttempts(ctx context.Context, quizID, instructorID int64) ([]models.QuizAttempt, error)
}

// AttemptHandler exposes quiz attempt endpoints.
type AttemptHandler struct {
	attempts attemptService
}

// NewAttemptHandler constructs the handler.
func NewAttemptHandler(attempts attemptService) *AttemptHandler {
	return &AttemptHandler{attempts: attempts}
}

// Submit godoc
// @Summary Submit quiz attempt
// @Tags Attempts
// @Accept json
// @Produce json
// @Param id path int true "Quiz ID"
// @Param payload body dto.SubmitAttemptRequest true "Selected answers"
// @Success 201 {object} response.Envelope
// @Router /quizzes/{id}/attempts [post]
func (h *AttemptHandler) Submit(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	quizID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req dto.SubmitAttemptRequest
	if !bindJSON(c, &req) {
		return
	}
	attempt, err := h.attempts.SubmitQuizAttempt(c.Request.Context(), quizID, p.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewAttemptView(attempt))
}

// ListMine godoc
// @Summary List my attempts
// @Tags Attempts
// @Produce json
// @Param id path int true "Quiz ID"
// @Success 200 {object} response.Envelope
// @Router /quizzes/{id}/attempts/me [get]
func (h *AttemptHandler) ListMine(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	quizID, ok := idParam(c, "id")
	if !ok {
		return
	}
	items, err := h.attempts.ListStudentAttempts(c.Request.Context(), quizID, p.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewAttemptViews(items), nil)
}

// Best godoc
// @Summary Best attempt
// @Tags Attempts
// @Produce json
// @Param id path int true "Quiz ID"
// @Success 200 {object} response.Envelope
// @Router /quizzes/{id}/attempts/best [get]
func (h *AttemptHandler) Best(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	quizID, ok := idParam(c, "id")
	if !ok {
		return
	}
	attempt, err := h.attempts.GetBestAttempt(c.Request.Context(), quizID, p.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewAttemptView(attempt), nil)
}

// ListByQuiz godoc
// @Summary List all attempts of a quiz
// @Tags Attempts
// @Produce json
// @Param id path int true "Quiz ID"
// @Success 200 {object} response.Envelope
// @Router /quizzes/{id}/attempts [get]
func (h *AttemptHandler) ListByQuiz(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	quizID, ok := idParam(c, "id")
	if !ok {
		return
	}
	items, err := h.attempts.ListQuizAttempts(c.Request.Context(), quizID, p.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewAttemptViews(items), nil)
}

// Get godoc
// @Summary Get attempt result
// @Tags Attempts
// @Produce json
// @Param id path int true "Attempt ID"
// @Success 200 {object} response.Envelope
// @Router /attempts/{id} [get]
func (h *AttemptHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	attempt, err := h.attempts.GetAttemptResult(c.Request.Context(), p, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewAttemptView(attempt), nil)
}
