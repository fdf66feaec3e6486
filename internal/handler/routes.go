package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learning-center-api/internal/middleware"
	"github.com/noah-isme/learning-center-api/internal/models"
)

// Handlers groups every HTTP handler mounted under the API prefix.
type Handlers struct {
	Enrollments *EnrollmentHandler
	Transcripts *TranscriptHandler
	Quizzes     *QuizHandler
	Attempts    *AttemptHandler
	Metrics     *MetricsHandler
}

// RegisterRoutes mounts the authenticated API on the given group.
func RegisterRoutes(api *gin.RouterGroup, h Handlers, tokens middleware.TokenValidator) {
	secured := api.Group("")
	secured.Use(middleware.JWT(tokens))

	students := middleware.RequireRoles(models.RoleStudent)
	instructors := middleware.RequireRoles(models.RoleInstructor)
	staff := middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin)
	admins := middleware.RequireRoles(models.RoleAdmin)

	enrollments := secured.Group("/enrollments")
	enrollments.POST("", students, h.Enrollments.Create)
	enrollments.GET("/me", students, h.Enrollments.ListMine)
	enrollments.GET("/me/transcript", students, h.Transcripts.Download)
	enrollments.GET("/:id", h.Enrollments.Get)
	enrollments.PUT("/:id/progress", admins, h.Enrollments.RecalculateProgress)
	enrollments.POST("/:id/lessons", students, h.Enrollments.CompleteLesson)
	enrollments.GET("/:id/lessons", students, h.Enrollments.ListLessons)
	enrollments.POST("/:id/complete", students, h.Enrollments.Complete)
	enrollments.POST("/:id/drop", students, h.Enrollments.Drop)

	secured.GET("/courses/:id/enrollments", staff, h.Enrollments.ListByCourse)

	quizzes := secured.Group("/quizzes")
	quizzes.POST("", instructors, h.Quizzes.Create)
	quizzes.GET("/:id", h.Quizzes.Get)
	quizzes.PATCH("/:id", instructors, h.Quizzes.Update)
	quizzes.DELETE("/:id", instructors, h.Quizzes.Delete)
	quizzes.POST("/:id/questions", instructors, h.Quizzes.AddQuestion)
	quizzes.PUT("/:id/questions/:questionId", instructors, h.Quizzes.UpdateQuestion)
	quizzes.DELETE("/:id/questions/:questionId", instructors, h.Quizzes.RemoveQuestion)

	quizzes.POST("/:id/attempts", students, h.Attempts.Submit)
	quizzes.GET("/:id/attempts/me", students, h.Attempts.ListMine)
	quizzes.GET("/:id/attempts/best", students, h.Attempts.Best)
	quizzes.GET("/:id/attempts", instructors, h.Attempts.ListByQuiz)
	secured.GET("/attempts/:id", h.Attempts.Get)

	if h.Metrics != nil {
		secured.GET("/metrics/summary", admins, h.Metrics.Snapshot)
	}
}
