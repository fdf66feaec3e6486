package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learning-center-api/internal/dto"
	"github.com/noah-isme/learning-center-api/internal/models"
	"github.com/noah-isme/learning-center-api/internal/service"
	"github.com/noah-isme/learning-center-api/pkg/response"
)

type enrollmentService interface {
	Enroll(ctx context.Context, studentID int64, req dto.EnrollRequest) (*models.Enrollment, error)
	GetEnrollment(ctx context.Context, principal models.Principal, enrollmentID int64) (*models.Enrollment, error)
	ListStudentEnrollments(ctx context.Context, studentID int64, status models.EnrollmentStatus) ([]models.Enrollment, error)
	ListCourseEnrollments(ctx context.Context, principal models.Principal, courseID int64, query dto.ListCourseEnrollmentsQuery) ([]models.Enrollment, *models.Pagination, error)
	RecalculateProgress(ctx context.Context, enrollmentID int64, percentage int) (*models.Enrollment, error)
	MarkLessonCompleted(ctx context.Context, enrollmentID, lessonID, studentID int64) (*service.LessonCompletion, error)
	ListCompletedLessons(ctx context.Context, enrollmentID, studentID int64) ([]models.CompletedLesson, error)
	CompleteEnrollment(ctx context.Context, enrollmentID, studentID int64) (*models.Enrollment, error)
	DropEnrollment(ctx context.Context, enrollmentID, studentID int64) (*models.Enrollment, error)
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Create godoc
// @Summary Enroll in a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req dto.EnrollRequest
	if !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.enrollments.Enroll(c.Request.Context(), p.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewEnrollmentResponse(enrollment))
}

// ListMine godoc
// @Summary List my enrollments
// @Tags Enrollments
// @Produce json
// @Param status query string false "ACTIVE, COMPLETED or DROPPED"
// @Success 200 {object} response.Envelope
// @Router /enrollments/me [get]
func (h *EnrollmentHandler) ListMine(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	status := models.EnrollmentStatus(strings.ToUpper(c.Query("status")))
	items, err := h.enrollments.ListStudentEnrollments(c.Request.Context(), p.UserID, status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewEnrollmentResponses(items), nil)
}

// Get godoc
// @Summary Get enrollment
// @Tags Enrollments
// @Produce json
// @Param id path int true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	enrollment, err := h.enrollments.GetEnrollment(c.Request.Context(), p, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewEnrollmentResponse(enrollment), nil)
}

// ListByCourse godoc
// @Summary List enrollments of a course
// @Tags Enrollments
// @Produce json
// @Param id path int true "Course ID"
// @Param status query string false "Status filter"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/enrollments [get]
func (h *EnrollmentHandler) ListByCourse(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	courseID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var query dto.ListCourseEnrollmentsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, validationError("invalid query parameters"))
		return
	}
	query.Status = strings.ToUpper(query.Status)
	items, pagination, err := h.enrollments.ListCourseEnrollments(c.Request.Context(), p, courseID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewEnrollmentResponses(items), pagination)
}

// RecalculateProgress godoc
// @Summary Replace enrollment progress
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path int true "Enrollment ID"
// @Param payload body dto.RecalculateProgressRequest true "Progress payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/progress [put]
func (h *EnrollmentHandler) RecalculateProgress(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req dto.RecalculateProgressRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Percentage == nil {
		response.Error(c, validationError("percentage is required"))
		return
	}
	enrollment, err := h.enrollments.RecalculateProgress(c.Request.Context(), id, *req.Percentage)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewEnrollmentResponse(enrollment), nil)
}

// CompleteLesson godoc
// @Summary Mark a lesson completed
// @Description Idempotent: completing the same lesson again returns the current state.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path int true "Enrollment ID"
// @Param payload body dto.MarkLessonCompletedRequest true "Lesson payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/lessons [post]
func (h *EnrollmentHandler) CompleteLesson(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req dto.MarkLessonCompletedRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.enrollments.MarkLessonCompleted(c.Request.Context(), id, req.LessonID, p.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.LessonCompletionResponse{
		Enrollment:     dto.NewEnrollmentResponse(result.Enrollment),
		LessonID:       result.LessonID,
		AlreadyDone:    result.AlreadyCompleted,
		CompletedCount: result.CompletedCount,
		TotalLessons:   result.TotalLessons,
	}, nil)
}

// ListLessons godoc
// @Summary List completed lessons
// @Tags Enrollments
// @Produce json
// @Param id path int true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/lessons [get]
func (h *EnrollmentHandler) ListLessons(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	lessons, err := h.enrollments.ListCompletedLessons(c.Request.Context(), id, p.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]dto.CompletedLessonResponse, len(lessons))
	for i, l := range lessons {
		out[i] = dto.CompletedLessonResponse{LessonID: l.LessonID, CompletedAt: l.CompletedAt}
	}
	response.JSON(c, http.StatusOK, out, nil)
}

// Complete godoc
// @Summary Complete enrollment
// @Tags Enrollments
// @Produce json
// @Param id path int true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/complete [post]
func (h *EnrollmentHandler) Complete(c *gin.Context) {
	h.transition(c, h.enrollments.CompleteEnrollment)
}

// Drop godoc
// @Summary Drop enrollment
// @Tags Enrollments
// @Produce json
// @Param id path int true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/drop [post]
func (h *EnrollmentHandler) Drop(c *gin.Context) {
	h.transition(c, h.enrollments.DropEnrollment)
}

func (h *EnrollmentHandler) transition(c *gin.Context, fn func(ctx context.Context, enrollmentID, studentID int64) (*models.Enrollment, error)) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	enrollment, err := fn(c.Request.Context(), id, p.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewEnrollmentResponse(enrollment), nil)
}
