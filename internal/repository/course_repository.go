package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/learning-center-api/internal/models"
)

// CourseRepository reads the course catalogue.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns the course with its lesson count.
func (r *CourseRepository) FindByID(ctx context.Context, id int64) (*models.Course, error) {
	const query = `SELECT c.id, c.instructor_id, c.title, c.published,
	(SELECT COUNT(*) FROM lessons l WHERE l.course_id = c.id) AS total_lessons
FROM courses c WHERE c.id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// LessonBelongsToCourse checks lesson membership.
func (r *CourseRepository) LessonBelongsToCourse(ctx context.Context, courseID, lessonID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM lessons WHERE id = $1 AND course_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, lessonID, courseID); err != nil {
		return false, fmt.Errorf("check lesson membership: %w", err)
	}
	return exists, nil
}
