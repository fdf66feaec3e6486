package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learning-center-api/internal/dto"
	"github.com/noah-isme/learning-center-api/internal/models"
	"github.com/noah-isme/learning-center-api/internal/repository"
	appErrors "github.com/noah-isme/learning-center-api/pkg/errors"
)

var serviceNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type mockEnrollmentStore struct {
	items   map[int64]models.Enrollment
	nextID  int64
	updates int
	dupe    bool
}

func newMockEnrollmentStore(items ...models.Enrollment) *mockEnrollmentStore {
	m := &mockEnrollmentStore{items: make(map[int64]models.Enrollment), nextID: 100}
	for _, e := range items {
		m.items[e.ID] = e
	}
	return m
}

func (m *mockEnrollmentStore) FindByID(ctx context.Context, id int64) (*models.Enrollment, error) {
	if e, ok := m.items[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentStore) LockByID(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Enrollment, error) {
	return m.FindByID(ctx, id)
}

func (m *mockEnrollmentStore) FindByStudentAndCourse(ctx context.Context, studentID, courseID int64) (*models.Enrollment, error) {
	for _, e := range m.items {
		if e.StudentID == studentID && e.CourseID == courseID {
			e := e
			return &e, nil
		}
	}
	return nil, nil
}

func (m *mockEnrollmentStore) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if m.dupe {
		return repository.ErrDuplicate
	}
	m.nextID++
	enrollment.ID = m.nextID
	m.items[enrollment.ID] = *enrollment
	return nil
}

func (m *mockEnrollmentStore) Update(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if _, ok := m.items[enrollment.ID]; !ok {
		return sql.ErrNoRows
	}
	m.updates++
	m.items[enrollment.ID] = *enrollment
	return nil
}

func (m *mockEnrollmentStore) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	var out []models.Enrollment
	for _, e := range m.items {
		if filter.StudentID != 0 && e.StudentID != filter.StudentID {
			continue
		}
		if filter.CourseID != 0 && e.CourseID != filter.CourseID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

type mockLessonLedger struct {
	rows    map[int64]map[int64]time.Time
	inserts int
	// lostInsert makes Insert behave as if another writer stored the row
	// between Exists and Insert.
	lostInsert bool
}

func newMockLessonLedger() *mockLessonLedger {
	return &mockLessonLedger{rows: make(map[int64]map[int64]time.Time)}
}

func (m *mockLessonLedger) Exists(ctx context.Context, exec sqlx.ExtContext, enrollmentID, lessonID int64) (bool, error) {
	_, ok := m.rows[enrollmentID][lessonID]
	return ok, nil
}

func (m *mockLessonLedger) Insert(ctx context.Context, exec sqlx.ExtContext, lesson *models.CompletedLesson) (bool, error) {
	if m.rows[lesson.EnrollmentID] == nil {
		m.rows[lesson.EnrollmentID] = make(map[int64]time.Time)
	}
	if m.lostInsert {
		m.rows[lesson.EnrollmentID][lesson.LessonID] = lesson.CompletedAt
		return false, nil
	}
	if _, ok := m.rows[lesson.EnrollmentID][lesson.LessonID]; ok {
		return false, nil
	}
	m.inserts++
	m.rows[lesson.EnrollmentID][lesson.LessonID] = lesson.CompletedAt
	return true, nil
}

func (m *mockLessonLedger) CountByEnrollment(ctx context.Context, exec sqlx.ExtContext, enrollmentID int64) (int, error) {
	return len(m.rows[enrollmentID]), nil
}

func (m *mockLessonLedger) ListByEnrollment(ctx context.Context, enrollmentID int64) ([]models.CompletedLesson, error) {
	var out []models.CompletedLesson
	for lessonID, at := range m.rows[enrollmentID] {
		out = append(out, models.CompletedLesson{EnrollmentID: enrollmentID, LessonID: lessonID, CompletedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessonID < out[j].LessonID })
	return out, nil
}

type mockCourseCatalog struct {
	courses map[int64]models.Course
	lessons map[int64][]int64
}

func (m *mockCourseCatalog) FindByID(ctx context.Context, id int64) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseCatalog) LessonBelongsToCourse(ctx context.Context, courseID, lessonID int64) (bool, error) {
	for _, id := range m.lessons[courseID] {
		if id == lessonID {
			return true, nil
		}
	}
	return false, nil
}

func newCatalog() *mockCourseCatalog {
	return &mockCourseCatalog{
		courses: map[int64]models.Course{
			1: {ID: 1, InstructorID: 7, Title: "Go", Published: true, TotalLessons: 4},
			2: {ID: 2, InstructorID: 7, Title: "Draft", Published: false, TotalLessons: 1},
			3: {ID: 3, InstructorID: 7, Title: "Three", Published: true, TotalLessons: 3},
		},
		lessons: map[int64][]int64{1: {11, 12, 13, 14}, 2: {21}, 3: {31, 32, 33}},
	}
}

func activeEnrollment(id, studentID, courseID int64) models.Enrollment {
	e := models.NewEnrollment(studentID, courseID, serviceNow.Add(-time.Hour))
	e.ID = id
	return *e
}

type enrollmentFixture struct {
	svc     *EnrollmentService
	store   *mockEnrollmentStore
	ledger  *mockLessonLedger
	catalog *mockCourseCatalog
	mock    sqlmock.Sqlmock
}

func newEnrollmentFixture(t *testing.T, items ...models.Enrollment) enrollmentFixture {
	t.Helper()
	provider, mock := newTxProviderMock(t)
	store := newMockEnrollmentStore(items...)
	ledger := newMockLessonLedger()
	catalog := newCatalog()
	svc := NewEnrollmentService(store, ledger, catalog, provider, NewMetricsService(), nil, nil)
	svc.now = func() time.Time { return serviceNow }
	return enrollmentFixture{svc: svc, store: store, ledger: ledger, catalog: catalog, mock: mock}
}

func TestEnrollCreatesActiveEnrollment(t *testing.T) {
	f := newEnrollmentFixture(t)

	enrollment, err := f.svc.Enroll(context.Background(), 5, dto.EnrollRequest{CourseID: 1})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.Equal(t, 0, enrollment.Progress.Percentage())
	assert.Equal(t, serviceNow, enrollment.EnrolledAt)
	assert.Nil(t, enrollment.CompletedAt)

	_, err = f.svc.Enroll(context.Background(), 5, dto.EnrollRequest{CourseID: 1})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestEnrollRejections(t *testing.T) {
	f := newEnrollmentFixture(t)

	_, err := f.svc.Enroll(context.Background(), 5, dto.EnrollRequest{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.Enroll(context.Background(), 5, dto.EnrollRequest{CourseID: 99})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = f.svc.Enroll(context.Background(), 5, dto.EnrollRequest{CourseID: 2})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidState))

	f.store.dupe = true
	_, err = f.svc.Enroll(context.Background(), 5, dto.EnrollRequest{CourseID: 3})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestMarkLessonCompletedIsIdempotent(t *testing.T) {
	f := newEnrollmentFixture(t, activeEnrollment(1, 5, 1))
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	first, err := f.svc.MarkLessonCompleted(context.Background(), 1, 11, 5)
	require.NoError(t, err)
	assert.False(t, first.AlreadyCompleted)
	assert.Equal(t, 25, first.Enrollment.Progress.Percentage())
	assert.Equal(t, 1, first.CompletedCount)
	assert.Equal(t, 4, first.TotalLessons)

	second, err := f.svc.MarkLessonCompleted(context.Background(), 1, 11, 5)
	require.NoError(t, err)
	assert.True(t, second.AlreadyCompleted)
	assert.Equal(t, 25, second.Enrollment.Progress.Percentage())
	assert.Equal(t, 1, f.ledger.inserts)
	assert.Equal(t, 1, f.store.updates)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMarkLessonCompletedLosesInsertRace(t *testing.T) {
	f := newEnrollmentFixture(t, activeEnrollment(1, 5, 1))
	f.ledger.lostInsert = true
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.svc.MarkLessonCompleted(context.Background(), 1, 11, 5)
	require.NoError(t, err)
	assert.True(t, result.AlreadyCompleted)
	assert.Equal(t, 1, result.CompletedCount)
	assert.Equal(t, 0, f.ledger.inserts)
	assert.Equal(t, 0, f.store.updates)
}

func TestMarkLessonCompletedAutoCompletes(t *testing.T) {
	f := newEnrollmentFixture(t, activeEnrollment(1, 5, 3))
	for i := 0; i < 3; i++ {
		f.mock.ExpectBegin()
		f.mock.ExpectCommit()
	}

	var last *LessonCompletion
	for _, lesson := range []int64{31, 32, 33} {
		var err error
		last, err = f.svc.MarkLessonCompleted(context.Background(), 1, lesson, 5)
		require.NoError(t, err)
	}
	assert.Equal(t, 100, last.Enrollment.Progress.Percentage())
	assert.Equal(t, models.EnrollmentStatusCompleted, last.Enrollment.Status)
	require.NotNil(t, last.Enrollment.CompletedAt)
	assert.Equal(t, serviceNow, *last.Enrollment.CompletedAt)

	stored := f.store.items[1]
	assert.Equal(t, models.EnrollmentStatusCompleted, stored.Status)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMarkLessonCompletedFloorsProgress(t *testing.T) {
	f := newEnrollmentFixture(t, activeEnrollment(1, 5, 3))
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.svc.MarkLessonCompleted(context.Background(), 1, 31, 5)
	require.NoError(t, err)
	assert.Equal(t, 33, result.Enrollment.Progress.Percentage())
}

func TestMarkLessonCompletedDeniesOtherStudent(t *testing.T) {
	f := newEnrollmentFixture(t, activeEnrollment(1, 5, 1))
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.MarkLessonCompleted(context.Background(), 1, 11, 6)
	assert.True(t, errors.Is(err, appErrors.ErrAccessDenied))
	assert.Equal(t, 0, f.ledger.inserts)
	assert.Equal(t, 0, f.store.updates)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMarkLessonCompletedRejections(t *testing.T) {
	dropped := activeEnrollment(2, 5, 1)
	dropped.Status = models.EnrollmentStatusDropped
	f := newEnrollmentFixture(t, activeEnrollment(1, 5, 1), dropped)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.svc.MarkLessonCompleted(context.Background(), 1, 21, 5)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound), "lesson from another course")

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.MarkLessonCompleted(context.Background(), 2, 11, 5)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidState), "dropped enrollment")

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.MarkLessonCompleted(context.Background(), 404, 11, 5)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound), "missing enrollment")

	_, err = f.svc.MarkLessonCompleted(context.Background(), 1, 0, 5)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Equal(t, 0, f.ledger.inserts)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRecalculateProgressTransitions(t *testing.T) {
	f := newEnrollmentFixture(t, activeEnrollment(1, 5, 1))

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	enrollment, err := f.svc.RecalculateProgress(context.Background(), 1, 60)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.RecalculateProgress(context.Background(), 1, 101)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	enrollment, err = f.svc.RecalculateProgress(context.Background(), 1, 100)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	assert.NotNil(t, enrollment.CompletedAt)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	enrollment, err = f.svc.RecalculateProgress(context.Background(), 1, 40)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	assert.Equal(t, 40, enrollment.Progress.Percentage())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCompleteAndDropEnrollment(t *testing.T) {
	f := newEnrollmentFixture(t, activeEnrollment(1, 5, 1), activeEnrollment(2, 5, 3))

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.svc.CompleteEnrollment(context.Background(), 1, 6)
	assert.True(t, errors.Is(err, appErrors.ErrAccessDenied))

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	enrollment, err := f.svc.CompleteEnrollment(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	assert.Equal(t, 0, enrollment.Progress.Percentage())

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.DropEnrollment(context.Background(), 1, 5)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidState))

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	enrollment, err = f.svc.DropEnrollment(context.Background(), 2, 5)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, enrollment.Status)
	assert.Nil(t, enrollment.CompletedAt)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.RecalculateProgress(context.Background(), 2, 10)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidState))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGetEnrollmentVisibility(t *testing.T) {
	f := newEnrollmentFixture(t, activeEnrollment(1, 5, 1))
	ctx := context.Background()

	_, err := f.svc.GetEnrollment(ctx, models.Principal{UserID: 5, Role: models.RoleStudent}, 1)
	assert.NoError(t, err)
	_, err = f.svc.GetEnrollment(ctx, models.Principal{UserID: 7, Role: models.RoleInstructor}, 1)
	assert.NoError(t, err)
	_, err = f.svc.GetEnrollment(ctx, models.Principal{UserID: 1, Role: models.RoleAdmin}, 1)
	assert.NoError(t, err)

	_, err = f.svc.GetEnrollment(ctx, models.Principal{UserID: 6, Role: models.RoleStudent}, 1)
	assert.True(t, errors.Is(err, appErrors.ErrAccessDenied))
	_, err = f.svc.GetEnrollment(ctx, models.Principal{UserID: 8, Role: models.RoleInstructor}, 1)
	assert.True(t, errors.Is(err, appErrors.ErrAccessDenied))
	_, err = f.svc.GetEnrollment(ctx, models.Principal{UserID: 5, Role: models.RoleStudent}, 2)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestListCourseEnrollmentsRequiresInstructor(t *testing.T) {
	completed := activeEnrollment(2, 6, 1)
	completed.Status = models.EnrollmentStatusCompleted
	f := newEnrollmentFixture(t, activeEnrollment(1, 5, 1), completed, activeEnrollment(3, 5, 3))
	ctx := context.Background()

	items, pagination, err := f.svc.ListCourseEnrollments(ctx, models.Principal{UserID: 7, Role: models.RoleInstructor}, 1, dto.ListCourseEnrollmentsQuery{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, pagination.TotalCount)
	assert.Equal(t, 1, pagination.Page)

	items, _, err = f.svc.ListCourseEnrollments(ctx, models.Principal{UserID: 7, Role: models.RoleInstructor}, 1, dto.ListCourseEnrollmentsQuery{Status: "COMPLETED"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].ID)

	_, _, err = f.svc.ListCourseEnrollments(ctx, models.Principal{UserID: 8, Role: models.RoleInstructor}, 1, dto.ListCourseEnrollmentsQuery{})
	assert.True(t, errors.Is(err, appErrors.ErrAccessDenied))

	_, _, err = f.svc.ListCourseEnrollments(ctx, models.Principal{UserID: 7, Role: models.RoleInstructor}, 1, dto.ListCourseEnrollmentsQuery{Status: "PAUSED"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	mine, err := f.svc.ListStudentEnrollments(ctx, 5, "")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestListCompletedLessonsOwnerOnly(t *testing.T) {
	f := newEnrollmentFixture(t, activeEnrollment(1, 5, 1))
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	_, err := f.svc.MarkLessonCompleted(context.Background(), 1, 12, 5)
	require.NoError(t, err)

	lessons, err := f.svc.ListCompletedLessons(context.Background(), 1, 5)
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	assert.Equal(t, int64(12), lessons[0].LessonID)

	_, err = f.svc.ListCompletedLessons(context.Background(), 1, 6)
	assert.True(t, errors.Is(err, appErrors.ErrAccessDenied))
}
