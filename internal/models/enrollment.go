package models

import (
	"time"

	appErrors "github.com/noah-isme/learning-center-api/pkg/errors"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusDropped   EnrollmentStatus = "DROPPED"
)

// EnrollmentEvent names the input that drives a status transition.
type EnrollmentEvent string

const (
	EventProgressRecalculated EnrollmentEvent = "PROGRESS_RECALCULATED"
	EventCompleted            EnrollmentEvent = "COMPLETED"
	EventDropped              EnrollmentEvent = "DROPPED"
)

// SideEffect describes work a transition requires besides the status change.
type SideEffect string

const (
	EffectReplaceProgress  SideEffect = "REPLACE_PROGRESS"
	EffectStampCompletedAt SideEffect = "STAMP_COMPLETED_AT"
)

// Transition is the planned outcome of applying an event to a status.
type Transition struct {
	Event    EnrollmentEvent
	From     EnrollmentStatus
	To       EnrollmentStatus
	Progress Progress
	Effects  []SideEffect
}

// Has reports whether the transition carries the given effect.
func (t Transition) Has(effect SideEffect) bool {
	for _, e := range t.Effects {
		if e == effect {
			return true
		}
	}
	return false
}

// StatusChanged reports whether From differs from To.
func (t Transition) StatusChanged() bool {
	return t.From != t.To
}

// PlanTransition is the enrollment state machine. It is pure: it computes the
// next status and effects without touching any aggregate.
//
//	ACTIVE    --recalculate(100)--> COMPLETED (+stamp completedAt)
//	ACTIVE    --recalculate(<100)-> ACTIVE
//	ACTIVE    --complete----------> COMPLETED (+stamp completedAt)
//	ACTIVE    --drop--------------> DROPPED
//	COMPLETED --recalculate-------> COMPLETED (progress replaced only)
//	COMPLETED --complete----------> COMPLETED (no-op)
//	COMPLETED --drop--------------> error
//	DROPPED   --any---------------> error
func PlanTransition(from EnrollmentStatus, event EnrollmentEvent, progress Progress) (Transition, error) {
	t := Transition{Event: event, From: from, To: from, Progress: progress}
	switch from {
	case EnrollmentStatusActive, EnrollmentStatusCompleted:
	case EnrollmentStatusDropped:
		return t, appErrors.Clone(appErrors.ErrInvalidState, "enrollment has been dropped")
	default:
		return t, appErrors.Clone(appErrors.ErrInvalidState, "unknown enrollment status "+string(from))
	}

	switch event {
	case EventProgressRecalculated:
		t.Effects = append(t.Effects, EffectReplaceProgress)
		if from == EnrollmentStatusActive && progress.IsCompleted() {
			t.To = EnrollmentStatusCompleted
			t.Effects = append(t.Effects, EffectStampCompletedAt)
		}
	case EventCompleted:
		if from == EnrollmentStatusActive {
			t.To = EnrollmentStatusCompleted
			t.Effects = append(t.Effects, EffectStampCompletedAt)
		}
	case EventDropped:
		if from == EnrollmentStatusCompleted {
			return t, appErrors.Clone(appErrors.ErrInvalidState, "cannot drop a completed enrollment")
		}
		t.To = EnrollmentStatusDropped
	default:
		return t, appErrors.Clone(appErrors.ErrInvalidState, "unknown enrollment event "+string(event))
	}
	return t, nil
}

// Enrollment binds a student to a course. Student and course are referenced
// by id only.
type Enrollment struct {
	ID          int64            `db:"id" json:"id"`
	StudentID   int64            `db:"student_id" json:"student_id"`
	CourseID    int64            `db:"course_id" json:"course_id"`
	Progress    Progress         `db:"progress" json:"progress"`
	EnrolledAt  time.Time        `db:"enrolled_at" json:"enrolled_at"`
	CompletedAt *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	Status      EnrollmentStatus `db:"status" json:"status"`
}

// NewEnrollment starts an ACTIVE enrollment with zero progress.
func NewEnrollment(studentID, courseID int64, now time.Time) *Enrollment {
	return &Enrollment{
		StudentID:  studentID,
		CourseID:   courseID,
		Progress:   ZeroProgress(),
		EnrolledAt: now.UTC(),
		Status:     EnrollmentStatusActive,
	}
}

// BelongsToStudent checks ownership.
func (e *Enrollment) BelongsToStudent(studentID int64) bool {
	return e.StudentID == studentID
}

// IsActive reports the ACTIVE status.
func (e *Enrollment) IsActive() bool {
	return e.Status == EnrollmentStatusActive
}

// IsCompleted reports the COMPLETED status.
func (e *Enrollment) IsCompleted() bool {
	return e.Status == EnrollmentStatusCompleted
}

// Apply executes a planned transition on the aggregate.
func (e *Enrollment) Apply(t Transition, now time.Time) {
	if t.Has(EffectReplaceProgress) {
		e.Progress = t.Progress
	}
	if t.Has(EffectStampCompletedAt) {
		stamp := now.UTC()
		e.CompletedAt = &stamp
	}
	e.Status = t.To
	if e.Status != EnrollmentStatusCompleted {
		e.CompletedAt = nil
	}
}

// RecalculateProgress replaces the progress, auto-completing an ACTIVE
// enrollment when it reaches 100. Lower values than before are accepted.
func (e *Enrollment) RecalculateProgress(percentage int, now time.Time) (Transition, error) {
	progress, err := NewProgress(percentage)
	if err != nil {
		return Transition{}, err
	}
	return e.fire(EventProgressRecalculated, progress, now)
}

// Complete forces COMPLETED regardless of the percentage.
func (e *Enrollment) Complete(now time.Time) (Transition, error) {
	return e.fire(EventCompleted, e.Progress, now)
}

// Drop moves an ACTIVE enrollment to DROPPED.
func (e *Enrollment) Drop(now time.Time) (Transition, error) {
	return e.fire(EventDropped, e.Progress, now)
}

func (e *Enrollment) fire(event EnrollmentEvent, progress Progress, now time.Time) (Transition, error) {
	t, err := PlanTransition(e.Status, event, progress)
	if err != nil {
		return t, err
	}
	e.Apply(t, now)
	return t, nil
}

// CompletedLesson is one row of the completed-lesson ledger.
type CompletedLesson struct {
	ID           int64     `db:"id" json:"id"`
	EnrollmentID int64     `db:"enrollment_id" json:"enrollment_id"`
	LessonID     int64     `db:"lesson_id" json:"lesson_id"`
	CompletedAt  time.Time `db:"completed_at" json:"completed_at"`
}

// NewCompletedLesson records the first completion of a lesson.
func NewCompletedLesson(enrollmentID, lessonID int64, now time.Time) *CompletedLesson {
	return &CompletedLesson{EnrollmentID: enrollmentID, LessonID: lessonID, CompletedAt: now.UTC()}
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID int64
	CourseID  int64
	Status    EnrollmentStatus
	Page      int
	PageSize  int
}
