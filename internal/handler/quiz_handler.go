package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learning-center-api/internal/dto"
	"github.com/noah-isme/learning-center-api/internal/middleware"
	"github.com/noah-isme/learning-center-api/internal/models"
	appErrors "github.com/noah-isme/learning-center-api/pkg/errors"
	"github.com/noah-isme/learning-center-api/pkg/response"
)

type quizService interface {
	CreateQuiz(ctx context.Context, instructorID int64, req dto.CreateQuizRequest) (*models.Quiz, error)
	UpdateQuiz(ctx context.Context, quizID, instructorID int64, req dto.UpdateQuizRequest) (*models.Quiz, error)
	AddQuestion(ctx context.Context, quizID, instructorID int64, req dto.QuestionRequest) (*models.Question, error)
	UpdateQuestion(ctx context.Context, quizID, questionID, instructorID int64, req dto.QuestionRequest) (*models.Question, error)
	RemoveQuestion(ctx context.Context, quizID, questionID, instructorID int64) error
	DeleteQuiz(ctx context.Context, quizID, instructorID int64) error
	GetQuizForInstructor(ctx context.Context, quizID, instructorID int64) (*models.Quiz, error)
	GetQuizForStudent(ctx context.Context, quizID int64) (*dto.QuizView, bool, error)
}

// QuizHandler exposes quiz authoring and reading endpoints.
type QuizHandler struct {
	quizzes quizService
}

// NewQuizHandler constructs the handler.
func NewQuizHandler(quizzes quizService) *QuizHandler {
	return &QuizHandler{quizzes: quizzes}
}

// Create godoc
// @Summary Create quiz
// @Tags Quizzes
// @Accept json
// @Produce json
// @Param payload body dto.CreateQuizRequest true "Quiz payload"
// @Success 201 {object} response.Envelope
// @Router /quizzes [post]
func (h *QuizHandler) Create(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req dto.CreateQuizRequest
	if !bindJSON(c, &req) {
		return
	}
	quiz, err := h.quizzes.CreateQuiz(c.Request.Context(), p.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewInstructorQuizView(quiz))
}

// Get godoc
// @Summary Get quiz
// @Description The owning instructor sees correct answers; everyone else gets the student view.
// @Tags Quizzes
// @Produce json
// @Param id path int true "Quiz ID"
// @Success 200 {object} response.Envelope
// @Router /quizzes/{id} [get]
func (h *QuizHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if p.Is(models.RoleInstructor) {
		quiz, err := h.quizzes.GetQuizForInstructor(c.Request.Context(), id, p.UserID)
		switch {
		case err == nil:
			response.JSON(c, http.StatusOK, dto.NewInstructorQuizView(quiz), nil)
			return
		case !errors.Is(err, appErrors.ErrAccessDenied):
			response.Error(c, err)
			return
		}
	}

	view, cacheHit, err := h.quizzes.GetQuizForStudent(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, view, nil, middleware.ExtractMeta(c))
}

// Update godoc
// @Summary Update quiz metadata
// @Tags Quizzes
// @Accept json
// @Produce json
// @Param id path int true "Quiz ID"
// @Param payload body dto.UpdateQuizRequest true "Quiz fields"
// @Success 200 {object} response.Envelope
// @Router /quizzes/{id} [patch]
func (h *QuizHandler) Update(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateQuizRequest
	if !bindJSON(c, &req) {
		return
	}
	quiz, err := h.quizzes.UpdateQuiz(c.Request.Context(), id, p.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewInstructorQuizView(quiz), nil)
}

// Delete godoc
// @Summary Delete quiz
// @Description Returns once the quiz is gone; its attempts are purged in the background.
// @Tags Quizzes
// @Param id path int true "Quiz ID"
// @Success 204
// @Router /quizzes/{id} [delete]
func (h *QuizHandler) Delete(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.quizzes.DeleteQuiz(c.Request.Context(), id, p.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddQuestion godoc
// @Summary Add question
// @Tags Quizzes
// @Accept json
// @Produce json
// @Param id path int true "Quiz ID"
// @Param payload body dto.QuestionRequest true "Question payload"
// @Success 201 {object} response.Envelope
// @Router /quizzes/{id}/questions [post]
func (h *QuizHandler) AddQuestion(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req dto.QuestionRequest
	if !bindJSON(c, &req) {
		return
	}
	question, err := h.quizzes.AddQuestion(c.Request.Context(), id, p.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewInstructorQuestionView(question))
}

// UpdateQuestion godoc
// @Summary Replace question
// @Tags Quizzes
// @Accept json
// @Produce json
// @Param id path int true "Quiz ID"
// @Param questionId path int true "Question ID"
// @Param payload body dto.QuestionRequest true "Question payload"
// @Success 200 {object} response.Envelope
// @Router /quizzes/{id}/questions/{questionId} [put]
func (h *QuizHandler) UpdateQuestion(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	questionID, ok := idParam(c, "questionId")
	if !ok {
		return
	}
	var req dto.QuestionRequest
	if !bindJSON(c, &req) {
		return
	}
	question, err := h.quizzes.UpdateQuestion(c.Request.Context(), id, questionID, p.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewInstructorQuestionView(question), nil)
}

// RemoveQuestion godoc
// @Summary Remove question
// @Tags Quizzes
// @Param id path int true "Quiz ID"
// @Param questionId path int true "Question ID"
// @Success 204
// @Router /quizzes/{id}/questions/{questionId} [delete]
func (h *QuizHandler) RemoveQuestion(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	questionID, ok := idParam(c, "questionId")
	if !ok {
		return
	}
	if err := h.quizzes.RemoveQuestion(c.Request.Context(), id, questionID, p.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
