package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/learning-center-api/internal/dto"
	"github.com/noah-isme/learning-center-api/internal/models"
	appErrors "github.com/noah-isme/learning-center-api/pkg/errors"
)

type attemptStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, attempt *models.QuizAttempt) error
	FindByID(ctx context.Context, id int64) (*models.QuizAttempt, error)
	ListByQuizAndStudent(ctx context.Context, quizID, studentID int64) ([]models.QuizAttempt, error)
	FindBest(ctx context.Context, quizID, studentID int64) (*models.QuizAttempt, error)
	ListByQuiz(ctx context.Context, quizID int64) ([]models.QuizAttempt, error)
}

type quizReader interface {
	FindByID(ctx context.Context, id int64) (*models.Quiz, error)
	ShareLockByID(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Quiz, error)
}

// QuizAttemptService grades submissions and exposes attempt history.
type QuizAttemptService struct {
	attempts  attemptStore
	quizzes   quizReader
	tx        txProvider
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewQuizAttemptService constructs the service.
func NewQuizAttemptService(attempts attemptStore, quizzes quizReader, tx txProvider, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *QuizAttemptService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuizAttemptService{
		attempts:  attempts,
		quizzes:   quizzes,
		tx:        tx,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// SubmitQuizAttempt scores the answers against the quiz's current questions
// and stores a new attempt. Earlier attempts are never modified. The quiz row
// stays share-locked until the attempt is written, so a concurrent DeleteQuiz
// either waits for it or leaves nothing to attach to.
func (s *QuizAttemptService) SubmitQuizAttempt(ctx context.Context, quizID, studentID int64, req dto.SubmitAttemptRequest) (*models.QuizAttempt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attempt payload")
	}
	var attempt *models.QuizAttempt
	err := inTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		quiz, err := s.quizzes.ShareLockByID(ctx, tx, quizID)
		if err != nil {
			return storageError(err, "quiz not found", "load quiz")
		}
		attempt, err = models.Grade(quiz, studentID, req.ToStudentAnswers(), s.now())
		if err != nil {
			return err
		}
		if err := s.attempts.Create(ctx, tx, attempt); err != nil {
			return appErrors.Infrastructure(err, "failed to save quiz attempt")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordAttempt(attempt.Passed)
	s.logger.Info("quiz attempt graded",
		zap.Int64("attempt_id", attempt.ID),
		zap.Int64("quiz_id", quizID),
		zap.Int64("student_id", studentID),
		zap.Int("score", attempt.Score),
		zap.Int("max_score", attempt.MaxScore),
		zap.Bool("passed", attempt.Passed))
	return attempt, nil
}

// ListStudentAttempts returns the student's attempts on a quiz, newest first.
func (s *QuizAttemptService) ListStudentAttempts(ctx context.Context, quizID, studentID int64) ([]models.QuizAttempt, error) {
	items, err := s.attempts.ListByQuizAndStudent(ctx, quizID, studentID)
	if err != nil {
		return nil, appErrors.Infrastructure(err, "failed to list quiz attempts")
	}
	return items, nil
}

// GetBestAttempt returns the highest scoring attempt, the earliest on ties.
func (s *QuizAttemptService) GetBestAttempt(ctx context.Context, quizID, studentID int64) (*models.QuizAttempt, error) {
	best, err := s.attempts.FindBest(ctx, quizID, studentID)
	if err != nil {
		return nil, storageError(err, "no attempts for this quiz", "load best attempt")
	}
	return best, nil
}

// GetAttemptResult returns one attempt to its student, an admin, or the
// instructor of a quiz that still exists.
func (s *QuizAttemptService) GetAttemptResult(ctx context.Context, principal models.Principal, attemptID int64) (*models.QuizAttempt, error) {
	attempt, err := s.attempts.FindByID(ctx, attemptID)
	if err != nil {
		return nil, storageError(err, "attempt not found", "load attempt")
	}
	switch {
	case principal.Is(models.RoleAdmin):
		return attempt, nil
	case principal.Is(models.RoleStudent):
		if attempt.BelongsToStudent(principal.UserID) {
			return attempt, nil
		}
	case principal.Is(models.RoleInstructor):
		quiz, err := s.quizzes.FindByID(ctx, attempt.QuizID)
		if err == nil && quiz.IsOwnedBy(principal.UserID) {
			return attempt, nil
		}
	}
	return nil, appErrors.ErrAccessDenied
}

// ListQuizAttempts returns every attempt of a quiz to its instructor.
func (s *QuizAttemptService) ListQuizAttempts(ctx context.Context, quizID, instructorID int64) ([]models.QuizAttempt, error) {
	quiz, err := s.quizzes.FindByID(ctx, quizID)
	if err != nil {
		return nil, storageError(err, "quiz not found", "load quiz")
	}
	if err := quiz.EnsureOwnedBy(instructorID); err != nil {
		return nil, err
	}
	items, err := s.attempts.ListByQuiz(ctx, quizID)
	if err != nil {
		return nil, appErrors.Infrastructure(err, "failed to list quiz attempts")
	}
	return items, nil
}
