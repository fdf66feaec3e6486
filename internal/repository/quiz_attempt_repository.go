package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/learning-center-api/internal/models"
)

const attemptColumns = `id, quiz_id, student_id, score, max_score, score_percentage, passed, attempted_at, answers`

// QuizAttemptRepository stores immutable attempts.
type QuizAttemptRepository struct {
	db *sqlx.DB
}

// NewQuizAttemptRepository constructs the repository.
func NewQuizAttemptRepository(db *sqlx.DB) *QuizAttemptRepository {
	return &QuizAttemptRepository{db: db}
}

func (r *QuizAttemptRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new attempt on exec, or on the pool when exec is nil.
// Attempts are never updated.
func (r *QuizAttemptRepository) Create(ctx context.Context, exec sqlx.ExtContext, attempt *models.QuizAttempt) error {
	const query = `INSERT INTO quiz_attempts (quiz_id, student_id, score, max_score, score_percentage, passed, attempted_at, answers)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	if err := sqlx.GetContext(ctx, r.exec(exec), &attempt.ID, query,
		attempt.QuizID, attempt.StudentID, attempt.Score, attempt.MaxScore, attempt.ScorePercentage, attempt.Passed, attempt.AttemptedAt, attempt.Answers); err != nil {
		return fmt.Errorf("create quiz attempt: %w", err)
	}
	return nil
}

// FindByID returns a single attempt.
func (r *QuizAttemptRepository) FindByID(ctx context.Context, id int64) (*models.QuizAttempt, error) {
	const query = `SELECT ` + attemptColumns + ` FROM quiz_attempts WHERE id = $1`
	var attempt models.QuizAttempt
	if err := r.db.GetContext(ctx, &attempt, query, id); err != nil {
		return nil, err
	}
	return &attempt, nil
}

// ListByQuizAndStudent returns a student's attempts, newest first.
func (r *QuizAttemptRepository) ListByQuizAndStudent(ctx context.Context, quizID, studentID int64) ([]models.QuizAttempt, error) {
	const query = `SELECT ` + attemptColumns + ` FROM quiz_attempts WHERE quiz_id = $1 AND student_id = $2 ORDER BY attempted_at DESC, id DESC`
	var attempts []models.QuizAttempt
	if err := r.db.SelectContext(ctx, &attempts, query, quizID, studentID); err != nil {
		return nil, fmt.Errorf("list student attempts: %w", err)
	}
	return attempts, nil
}

// FindBest returns the highest scoring attempt, earliest on ties.
func (r *QuizAttemptRepository) FindBest(ctx context.Context, quizID, studentID int64) (*models.QuizAttempt, error) {
	const query = `SELECT ` + attemptColumns + ` FROM quiz_attempts WHERE quiz_id = $1 AND student_id = $2
ORDER BY score DESC, attempted_at ASC, id ASC LIMIT 1`
	var attempt models.QuizAttempt
	if err := r.db.GetContext(ctx, &attempt, query, quizID, studentID); err != nil {
		return nil, err
	}
	return &attempt, nil
}

// ListByQuiz returns every attempt of a quiz for its instructor.
func (r *QuizAttemptRepository) ListByQuiz(ctx context.Context, quizID int64) ([]models.QuizAttempt, error) {
	const query = `SELECT ` + attemptColumns + ` FROM quiz_attempts WHERE quiz_id = $1 ORDER BY attempted_at DESC, id DESC`
	var attempts []models.QuizAttempt
	if err := r.db.SelectContext(ctx, &attempts, query, quizID); err != nil {
		return nil, fmt.Errorf("list quiz attempts: %w", err)
	}
	return attempts, nil
}

// DeleteByQuizID purges every attempt of a quiz. Running it twice is harmless.
func (r *QuizAttemptRepository) DeleteByQuizID(ctx context.Context, quizID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM quiz_attempts WHERE quiz_id = $1`, quizID)
	if err != nil {
		return 0, fmt.Errorf("delete quiz attempts: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete quiz attempts rows affected: %w", err)
	}
	return affected, nil
}
