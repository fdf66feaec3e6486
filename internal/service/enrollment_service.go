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
	"github.com/noah-isme/learning-center-api/internal/repository"
	appErrors "github.com/noah-isme/learning-center-api/pkg/errors"
)

type enrollmentStore interface {
	FindByID(ctx context.Context, id int64) (*models.Enrollment, error)
	LockByID(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Enrollment, error)
	FindByStudentAndCourse(ctx context.Context, studentID, courseID int64) (*models.Enrollment, error)
	Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	Update(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
}

type lessonLedger interface {
	Exists(ctx context.Context, exec sqlx.ExtContext, enrollmentID, lessonID int64) (bool, error)
	Insert(ctx context.Context, exec sqlx.ExtContext, lesson *models.CompletedLesson) (bool, error)
	CountByEnrollment(ctx context.Context, exec sqlx.ExtContext, enrollmentID int64) (int, error)
	ListByEnrollment(ctx context.Context, enrollmentID int64) ([]models.CompletedLesson, error)
}

type courseCatalog interface {
	FindByID(ctx context.Context, id int64) (*models.Course, error)
	LessonBelongsToCourse(ctx context.Context, courseID, lessonID int64) (bool, error)
}

// EnrollmentService coordinates the enrollment lifecycle and the completed-lesson ledger.
type EnrollmentService struct {
	enrollments enrollmentStore
	lessons     lessonLedger
	courses     courseCatalog
	tx          txProvider
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// LessonCompletion is the outcome of MarkLessonCompleted.
type LessonCompletion struct {
	Enrollment       *models.Enrollment
	LessonID         int64
	AlreadyCompleted bool
	CompletedCount   int
	TotalLessons     int
}

// NewEnrollmentService constructs the service.
func NewEnrollmentService(enrollments enrollmentStore, lessons lessonLedger, courses courseCatalog, tx txProvider, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		enrollments: enrollments,
		lessons:     lessons,
		courses:     courses,
		tx:          tx,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// Enroll creates an ACTIVE enrollment for the student in a published course.
func (s *EnrollmentService) Enroll(ctx context.Context, studentID int64, req dto.EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		return nil, storageError(err, "course not found", "load course")
	}
	if !course.Published {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "course is not published")
	}

	existing, err := s.enrollments.FindByStudentAndCourse(ctx, studentID, req.CourseID)
	if err != nil {
		return nil, appErrors.Infrastructure(err, "failed to check existing enrollment")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this course")
	}

	enrollment := models.NewEnrollment(studentID, req.CourseID, s.now())
	if err := s.enrollments.Create(ctx, nil, enrollment); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this course")
		}
		return nil, appErrors.Infrastructure(err, "failed to create enrollment")
	}
	s.logger.Info("student enrolled",
		zap.Int64("enrollment_id", enrollment.ID),
		zap.Int64("student_id", studentID),
		zap.Int64("course_id", req.CourseID))
	return enrollment, nil
}

// GetEnrollment returns an enrollment visible to the principal: its student,
// the course instructor or an admin.
func (s *EnrollmentService) GetEnrollment(ctx context.Context, principal models.Principal, enrollmentID int64) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, storageError(err, "enrollment not found", "load enrollment")
	}
	switch {
	case principal.Is(models.RoleAdmin):
	case enrollment.BelongsToStudent(principal.UserID) && principal.Is(models.RoleStudent):
	case principal.Is(models.RoleInstructor):
		if err := s.ensureCourseOwner(ctx, enrollment.CourseID, principal.UserID); err != nil {
			return nil, err
		}
	default:
		return nil, appErrors.ErrAccessDenied
	}
	return enrollment, nil
}

// ListStudentEnrollments lists the student's own enrollments.
func (s *EnrollmentService) ListStudentEnrollments(ctx context.Context, studentID int64, status models.EnrollmentStatus) ([]models.Enrollment, error) {
	items, _, err := s.enrollments.List(ctx, models.EnrollmentFilter{StudentID: studentID, Status: status, PageSize: 100})
	if err != nil {
		return nil, appErrors.Infrastructure(err, "failed to list enrollments")
	}
	return items, nil
}

// ListCourseEnrollments lists enrollments of a course for its instructor.
func (s *EnrollmentService) ListCourseEnrollments(ctx context.Context, principal models.Principal, courseID int64, query dto.ListCourseEnrollmentsQuery) ([]models.Enrollment, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query")
	}
	if !principal.Is(models.RoleAdmin) {
		if err := s.ensureCourseOwner(ctx, courseID, principal.UserID); err != nil {
			return nil, nil, err
		}
	}
	filter := models.EnrollmentFilter{
		CourseID: courseID,
		Status:   models.EnrollmentStatus(query.Status),
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	items, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Infrastructure(err, "failed to list enrollments")
	}
	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// RecalculateProgress replaces the progress of an enrollment, auto-completing it at 100.
func (s *EnrollmentService) RecalculateProgress(ctx context.Context, enrollmentID int64, percentage int) (*models.Enrollment, error) {
	return s.transition(ctx, enrollmentID, nil, func(e *models.Enrollment, now time.Time) (models.Transition, error) {
		return e.RecalculateProgress(percentage, now)
	})
}

// CompleteEnrollment forces COMPLETED on the student's own enrollment.
func (s *EnrollmentService) CompleteEnrollment(ctx context.Context, enrollmentID, studentID int64) (*models.Enrollment, error) {
	return s.transition(ctx, enrollmentID, &studentID, func(e *models.Enrollment, now time.Time) (models.Transition, error) {
		return e.Complete(now)
	})
}

// DropEnrollment moves the student's own ACTIVE enrollment to DROPPED.
func (s *EnrollmentService) DropEnrollment(ctx context.Context, enrollmentID, studentID int64) (*models.Enrollment, error) {
	return s.transition(ctx, enrollmentID, &studentID, func(e *models.Enrollment, now time.Time) (models.Transition, error) {
		return e.Drop(now)
	})
}

func (s *EnrollmentService) transition(ctx context.Context, enrollmentID int64, studentID *int64, fire func(*models.Enrollment, time.Time) (models.Transition, error)) (*models.Enrollment, error) {
	var (
		enrollment *models.Enrollment
		applied    models.Transition
	)
	err := inTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		var err error
		enrollment, err = s.enrollments.LockByID(ctx, tx, enrollmentID)
		if err != nil {
			return storageError(err, "enrollment not found", "load enrollment")
		}
		if studentID != nil && !enrollment.BelongsToStudent(*studentID) {
			return appErrors.ErrAccessDenied
		}
		if applied, err = fire(enrollment, s.now()); err != nil {
			return err
		}
		if err := s.enrollments.Update(ctx, tx, enrollment); err != nil {
			return storageError(err, "enrollment not found", "update enrollment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordTransition(enrollment, applied)
	return enrollment, nil
}

// MarkLessonCompleted records the lesson in the ledger and recomputes the
// enrollment's progress from the completed/total ratio. The enrollment row is
// locked for the whole unit of work so concurrent calls serialise; repeating a
// completion succeeds without writing anything.
func (s *EnrollmentService) MarkLessonCompleted(ctx context.Context, enrollmentID, lessonID, studentID int64) (*LessonCompletion, error) {
	if lessonID <= 0 {
		return nil, appErrors.Validation("lessonId is required")
	}
	result := &LessonCompletion{LessonID: lessonID}
	var applied models.Transition

	err := inTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		enrollment, err := s.enrollments.LockByID(ctx, tx, enrollmentID)
		if err != nil {
			return storageError(err, "enrollment not found", "load enrollment")
		}
		if !enrollment.BelongsToStudent(studentID) {
			return appErrors.ErrAccessDenied
		}
		if enrollment.Status == models.EnrollmentStatusDropped {
			return appErrors.Clone(appErrors.ErrInvalidState, "enrollment has been dropped")
		}
		result.Enrollment = enrollment

		course, err := s.courses.FindByID(ctx, enrollment.CourseID)
		if err != nil {
			return storageError(err, "course not found", "load course")
		}
		result.TotalLessons = course.TotalLessons
		member, err := s.courses.LessonBelongsToCourse(ctx, course.ID, lessonID)
		if err != nil {
			return appErrors.Infrastructure(err, "failed to check lesson")
		}
		if !member {
			return appErrors.Clone(appErrors.ErrNotFound, "lesson not found in course")
		}

		done, err := s.lessons.Exists(ctx, tx, enrollmentID, lessonID)
		if err != nil {
			return appErrors.Infrastructure(err, "failed to check completed lesson")
		}
		if !done {
			inserted, err := s.lessons.Insert(ctx, tx, models.NewCompletedLesson(enrollmentID, lessonID, s.now()))
			if err != nil {
				return appErrors.Infrastructure(err, "failed to record completed lesson")
			}
			done = !inserted
		}

		count, err := s.lessons.CountByEnrollment(ctx, tx, enrollmentID)
		if err != nil {
			return appErrors.Infrastructure(err, "failed to count completed lessons")
		}
		result.CompletedCount = count
		if done {
			result.AlreadyCompleted = true
			return nil
		}

		if count > course.TotalLessons {
			count = course.TotalLessons
		}
		progress, err := models.ProgressFromRatio(count, course.TotalLessons)
		if err != nil {
			return err
		}
		if applied, err = enrollment.RecalculateProgress(progress.Percentage(), s.now()); err != nil {
			return err
		}
		if err := s.enrollments.Update(ctx, tx, enrollment); err != nil {
			return storageError(err, "enrollment not found", "update enrollment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordLessonCompletion(result.AlreadyCompleted)
	if !result.AlreadyCompleted {
		s.recordTransition(result.Enrollment, applied)
	}
	return result, nil
}

// ListCompletedLessons returns the ledger of the student's own enrollment.
func (s *EnrollmentService) ListCompletedLessons(ctx context.Context, enrollmentID, studentID int64) ([]models.CompletedLesson, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, storageError(err, "enrollment not found", "load enrollment")
	}
	if !enrollment.BelongsToStudent(studentID) {
		return nil, appErrors.ErrAccessDenied
	}
	lessons, err := s.lessons.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Infrastructure(err, "failed to list completed lessons")
	}
	return lessons, nil
}

func (s *EnrollmentService) ensureCourseOwner(ctx context.Context, courseID, instructorID int64) error {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return storageError(err, "course not found", "load course")
	}
	if !course.IsOwnedBy(instructorID) {
		return appErrors.ErrAccessDenied
	}
	return nil
}

func (s *EnrollmentService) recordTransition(enrollment *models.Enrollment, t models.Transition) {
	s.metrics.RecordTransition(t)
	if t.StatusChanged() {
		s.logger.Info("enrollment status changed",
			zap.Int64("enrollment_id", enrollment.ID),
			zap.String("event", string(t.Event)),
			zap.String("from", string(t.From)),
			zap.String("to", string(t.To)),
			zap.Int("progress", enrollment.Progress.Percentage()))
	}
}
