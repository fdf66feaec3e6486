package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/learning-center-api/internal/dto"
	"github.com/noah-isme/learning-center-api/internal/models"
	appErrors "github.com/noah-isme/learning-center-api/pkg/errors"
	"github.com/noah-isme/learning-center-api/pkg/jobs"
)

type quizStore interface {
	FindByID(ctx context.Context, id int64) (*models.Quiz, error)
	LockByID(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Quiz, error)
	Save(ctx context.Context, tx *sqlx.Tx, quiz *models.Quiz) error
	Delete(ctx context.Context, tx *sqlx.Tx, id int64) error
}

type outboxWriter interface {
	Insert(ctx context.Context, tx *sqlx.Tx, msg *models.OutboxMessage) error
}

type jobEnqueuer interface {
	TryEnqueue(job jobs.Job) error
}

// QuizService manages quiz authoring. Every mutation runs against a locked
// quiz row and rewrites the aggregate in one transaction.
type QuizService struct {
	quizzes   quizStore
	outbox    outboxWriter
	cleanup   jobEnqueuer
	cache     *CacheService
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewQuizService constructs the service. cleanup may be nil, in which case
// deletions are only picked up by the outbox relay.
func NewQuizService(quizzes quizStore, outbox outboxWriter, cleanup jobEnqueuer, cache *CacheService, tx txProvider, validate *validator.Validate, logger *zap.Logger) *QuizService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuizService{
		quizzes:   quizzes,
		outbox:    outbox,
		cleanup:   cleanup,
		cache:     cache,
		tx:        tx,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateQuiz stores a new quiz, optionally with its initial questions.
func (s *QuizService) CreateQuiz(ctx context.Context, instructorID int64, req dto.CreateQuizRequest) (*models.Quiz, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quiz payload")
	}
	quiz, err := models.NewQuiz(req.Title, req.PassingScore, req.LessonID, instructorID, s.now())
	if err != nil {
		return nil, err
	}
	for _, qr := range req.Questions {
		question, err := buildQuestion(qr)
		if err != nil {
			return nil, err
		}
		if err := quiz.AddQuestion(question); err != nil {
			return nil, err
		}
	}

	err = inTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.quizzes.Save(ctx, tx, quiz); err != nil {
			return storageError(err, "quiz not found", "create quiz")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("quiz created", zap.Int64("quiz_id", quiz.ID), zap.Int64("instructor_id", instructorID), zap.Int("questions", len(quiz.Questions)))
	return quiz, nil
}

// UpdateQuiz patches title, passing score or lesson.
func (s *QuizService) UpdateQuiz(ctx context.Context, quizID, instructorID int64, req dto.UpdateQuizRequest) (*models.Quiz, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quiz payload")
	}
	var quiz *models.Quiz
	err := s.mutate(ctx, quizID, instructorID, func(q *models.Quiz) error {
		quiz = q
		if req.Title != nil {
			if err := q.UpdateTitle(*req.Title); err != nil {
				return err
			}
		}
		if req.PassingScore != nil {
			if err := q.UpdatePassingScore(*req.PassingScore); err != nil {
				return err
			}
		}
		if req.LessonID != nil {
			lessonID := *req.LessonID
			q.LessonID = &lessonID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quiz, nil
}

// AddQuestion appends a question to the quiz.
func (s *QuizService) AddQuestion(ctx context.Context, quizID, instructorID int64, req dto.QuestionRequest) (*models.Question, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid question payload")
	}
	question, err := buildQuestion(req)
	if err != nil {
		return nil, err
	}
	err = s.mutate(ctx, quizID, instructorID, func(q *models.Quiz) error {
		return q.AddQuestion(question)
	})
	if err != nil {
		return nil, err
	}
	return question, nil
}

// UpdateQuestion replaces a question's content in place.
func (s *QuizService) UpdateQuestion(ctx context.Context, quizID, questionID, instructorID int64, req dto.QuestionRequest) (*models.Question, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid question payload")
	}
	replacement, err := buildQuestion(req)
	if err != nil {
		return nil, err
	}
	var updated *models.Question
	err = s.mutate(ctx, quizID, instructorID, func(q *models.Quiz) error {
		var err error
		updated, err = q.UpdateQuestion(questionID, replacement)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveQuestion deletes a question from the quiz.
func (s *QuizService) RemoveQuestion(ctx context.Context, quizID, questionID, instructorID int64) error {
	return s.mutate(ctx, quizID, instructorID, func(q *models.Quiz) error {
		return q.RemoveQuestion(questionID)
	})
}

// DeleteQuiz removes the quiz and records a quiz.deleted outbox message in
// the same transaction. Attempts are purged asynchronously by the cleanup
// worker; the call returns as soon as the transaction commits.
func (s *QuizService) DeleteQuiz(ctx context.Context, quizID, instructorID int64) error {
	var msg *models.OutboxMessage
	err := inTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		quiz, err := s.quizzes.LockByID(ctx, tx, quizID)
		if err != nil {
			return storageError(err, "quiz not found", "load quiz")
		}
		if err := quiz.EnsureOwnedBy(instructorID); err != nil {
			return err
		}
		if err := s.quizzes.Delete(ctx, tx, quizID); err != nil {
			return storageError(err, "quiz not found", "delete quiz")
		}
		msg, err = models.NewQuizDeletedMessage(quizID, instructorID, s.now())
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build outbox message")
		}
		if err := s.outbox.Insert(ctx, tx, msg); err != nil {
			return appErrors.Infrastructure(err, "failed to record quiz deletion")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("quiz deleted", zap.Int64("quiz_id", quizID), zap.String("outbox_id", msg.ID))
	s.invalidate(ctx, quizID)
	if s.cleanup != nil {
		if err := s.cleanup.TryEnqueue(cleanupJob(msg)); err != nil {
			s.logger.Warn("attempt purge deferred to outbox relay", zap.String("outbox_id", msg.ID), zap.Error(err))
		}
	}
	return nil
}

// GetQuizForInstructor returns the full quiz, answers included, to its owner.
func (s *QuizService) GetQuizForInstructor(ctx context.Context, quizID, instructorID int64) (*models.Quiz, error) {
	quiz, err := s.quizzes.FindByID(ctx, quizID)
	if err != nil {
		return nil, storageError(err, "quiz not found", "load quiz")
	}
	if err := quiz.EnsureOwnedBy(instructorID); err != nil {
		return nil, err
	}
	return quiz, nil
}

// GetQuizForStudent returns the quiz without correctness flags, served from
// cache when available. The flag reports a cache hit. A read that races an
// edit may store the pre-edit view; it lives until QUIZ_CACHE_TTL expires.
func (s *QuizService) GetQuizForStudent(ctx context.Context, quizID int64) (*dto.QuizView, bool, error) {
	key := QuizStudentViewKey(quizID)
	var cached dto.QuizView
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	quiz, err := s.quizzes.FindByID(ctx, quizID)
	if err != nil {
		return nil, false, storageError(err, "quiz not found", "load quiz")
	}
	view := dto.NewStudentQuizView(quiz)
	_ = s.cache.Set(ctx, key, view, 0)
	return &view, false, nil
}

func (s *QuizService) mutate(ctx context.Context, quizID, instructorID int64, fn func(*models.Quiz) error) error {
	err := inTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		quiz, err := s.quizzes.LockByID(ctx, tx, quizID)
		if err != nil {
			return storageError(err, "quiz not found", "load quiz")
		}
		if err := quiz.EnsureOwnedBy(instructorID); err != nil {
			return err
		}
		if err := fn(quiz); err != nil {
			return err
		}
		if err := s.quizzes.Save(ctx, tx, quiz); err != nil {
			return storageError(err, "quiz not found", "save quiz")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, quizID)
	return nil
}

func (s *QuizService) invalidate(ctx context.Context, quizID int64) {
	if err := s.cache.Delete(ctx, QuizStudentViewKey(quizID)); err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("failed to drop cached quiz view", zap.Int64("quiz_id", quizID), zap.Error(err))
	}
}

func buildQuestion(req dto.QuestionRequest) (*models.Question, error) {
	answers := make([]models.Answer, 0, len(req.Answers))
	for _, ar := range req.Answers {
		answer, err := models.NewAnswer(ar.Text, ar.Correct)
		if err != nil {
			return nil, err
		}
		answers = append(answers, answer)
	}
	return models.NewQuestion(req.Text, req.Type, req.Points, req.OrderIndex, answers)
}
