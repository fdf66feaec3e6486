package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/learning-center-api/internal/models"
)

// CompletedLessonRepository persists the completed-lesson ledger.
type CompletedLessonRepository struct {
	db *sqlx.DB
}

// NewCompletedLessonRepository constructs the repository.
func NewCompletedLessonRepository(db *sqlx.DB) *CompletedLessonRepository {
	return &CompletedLessonRepository{db: db}
}

func (r *CompletedLessonRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Exists reports whether the lesson was already completed for the enrollment.
func (r *CompletedLessonRepository) Exists(ctx context.Context, exec sqlx.ExtContext, enrollmentID, lessonID int64) (bool, error) {
	const query = `SELECT 1 FROM completed_lessons WHERE enrollment_id = $1 AND lesson_id = $2 LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, enrollmentID, lessonID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check completed lesson: %w", err)
	}
	return true, nil
}

// Insert appends a ledger row. It reports false when the row already existed.
func (r *CompletedLessonRepository) Insert(ctx context.Context, exec sqlx.ExtContext, lesson *models.CompletedLesson) (bool, error) {
	const query = `INSERT INTO completed_lessons (enrollment_id, lesson_id, completed_at)
VALUES ($1, $2, $3)
ON CONFLICT (enrollment_id, lesson_id) DO NOTHING RETURNING id`
	if err := sqlx.GetContext(ctx, r.exec(exec), &lesson.ID, query, lesson.EnrollmentID, lesson.LessonID, lesson.CompletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert completed lesson: %w", err)
	}
	return true, nil
}

// CountByEnrollment counts distinct completed lessons.
func (r *CompletedLessonRepository) CountByEnrollment(ctx context.Context, exec sqlx.ExtContext, enrollmentID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM completed_lessons WHERE enrollment_id = $1`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, enrollmentID); err != nil {
		return 0, fmt.Errorf("count completed lessons: %w", err)
	}
	return count, nil
}

// ListByEnrollment returns the ledger ordered by completion time.
func (r *CompletedLessonRepository) ListByEnrollment(ctx context.Context, enrollmentID int64) ([]models.CompletedLesson, error) {
	const query = `SELECT id, enrollment_id, lesson_id, completed_at FROM completed_lessons WHERE enrollment_id = $1 ORDER BY completed_at ASC, id ASC`
	var lessons []models.CompletedLesson
	if err := r.db.SelectContext(ctx, &lessons, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list completed lessons: %w", err)
	}
	return lessons, nil
}
