package dto

import (
	"time"

	"github.com/noah-isme/learning-center-api/internal/models"
)

// EnrollRequest captures POST /enrollments payload.
type EnrollRequest struct {
	CourseID int64 `json:"courseId" validate:"required,gt=0"`
}

// RecalculateProgressRequest replaces an enrollment's progress.
type RecalculateProgressRequest struct {
	Percentage *int `json:"percentage" validate:"required"`
}

// MarkLessonCompletedRequest records a lesson completion.
type MarkLessonCompletedRequest struct {
	LessonID int64 `json:"lessonId" validate:"required,gt=0"`
}

// EnrollmentResponse exposes an enrollment.
type EnrollmentResponse struct {
	ID          int64                   `json:"id"`
	StudentID   int64                   `json:"studentId"`
	CourseID    int64                   `json:"courseId"`
	Progress    int                     `json:"progress"`
	Status      models.EnrollmentStatus `json:"status"`
	EnrolledAt  time.Time               `json:"enrolledAt"`
	CompletedAt *time.Time              `json:"completedAt,omitempty"`
}

// NewEnrollmentResponse maps the aggregate.
func NewEnrollmentResponse(e *models.Enrollment) EnrollmentResponse {
	return EnrollmentResponse{
		ID:          e.ID,
		StudentID:   e.StudentID,
		CourseID:    e.CourseID,
		Progress:    e.Progress.Percentage(),
		Status:      e.Status,
		EnrolledAt:  e.EnrolledAt,
		CompletedAt: e.CompletedAt,
	}
}

// NewEnrollmentResponses maps a list.
func NewEnrollmentResponses(items []models.Enrollment) []EnrollmentResponse {
	out := make([]EnrollmentResponse, len(items))
	for i := range items {
		out[i] = NewEnrollmentResponse(&items[i])
	}
	return out
}

// LessonCompletionResponse reports the outcome of a completion call.
type LessonCompletionResponse struct {
	Enrollment     EnrollmentResponse `json:"enrollment"`
	LessonID       int64              `json:"lessonId"`
	AlreadyDone    bool               `json:"alreadyCompleted"`
	CompletedCount int                `json:"completedCount"`
	TotalLessons   int                `json:"totalLessons"`
}

// CompletedLessonResponse is one ledger row.
type CompletedLessonResponse struct {
	LessonID    int64     `json:"lessonId"`
	CompletedAt time.Time `json:"completedAt"`
}

// ListCourseEnrollmentsQuery filters instructor listings.
type ListCourseEnrollmentsQuery struct {
	Status   string `form:"status" validate:"omitempty,oneof=ACTIVE COMPLETED DROPPED"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// TranscriptQuery selects the export format.
type TranscriptQuery struct {
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
}
