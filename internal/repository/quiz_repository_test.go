package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learning-center-api/internal/models"
)

func newQuizRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestQuizRepositoryFindByIDAssemblesAggregate(t *testing.T) {
	db, mock, cleanup := newQuizRepoMock(t)
	defer cleanup()
	repo := NewQuizRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, passing_score, lesson_id, instructor_id, created_at, updated_at FROM quizzes WHERE id = $1")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "passing_score", "lesson_id", "instructor_id", "created_at", "updated_at"}).
			AddRow(int64(3), "Go basics", int64(60), int64(12), int64(7), now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, quiz_id, text, type, points, order_index FROM questions WHERE quiz_id = $1")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "quiz_id", "text", "type", "points", "order_index"}).
			AddRow(int64(1), int64(3), "first", "SINGLE_CHOICE", int64(10), int64(0)).
			AddRow(int64(2), int64(3), "second", "MULTIPLE_CHOICE", int64(5), int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT qa.question_id, qa.position, qa.answer_text, qa.is_correct")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"question_id", "position", "answer_text", "is_correct"}).
			AddRow(int64(1), int64(0), "a", false).
			AddRow(int64(1), int64(1), "b", true).
			AddRow(int64(2), int64(0), "c", true).
			AddRow(int64(2), int64(1), "d", true))

	quiz, err := repo.FindByID(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, quiz.LessonID)
	assert.Equal(t, int64(12), *quiz.LessonID)
	require.Len(t, quiz.Questions, 2)
	assert.Equal(t, []int{1}, quiz.Questions[0].CorrectIndexes())
	assert.Equal(t, []int{0, 1}, quiz.Questions[1].CorrectIndexes())
	assert.Equal(t, 15, quiz.CalculateMaxScore())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuizRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newQuizRepoMock(t)
	defer cleanup()
	repo := NewQuizRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM quizzes WHERE id = $1")).
		WithArgs(3).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), 3)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuizRepositoryShareLockByID(t *testing.T) {
	db, mock, cleanup := newQuizRepoMock(t)
	defer cleanup()
	repo := NewQuizRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM quizzes WHERE id = $1 FOR SHARE")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "passing_score", "lesson_id", "instructor_id", "created_at", "updated_at"}).
			AddRow(int64(3), "Go basics", int64(60), nil, int64(7), now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM questions WHERE quiz_id = $1")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "quiz_id", "text", "type", "points", "order_index"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM question_answers qa")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"question_id", "position", "answer_text", "is_correct"}))
	mock.ExpectRollback()

	tx, err := db.Beginx()
	require.NoError(t, err)
	quiz, err := repo.ShareLockByID(context.Background(), tx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), quiz.ID)
	assert.Nil(t, quiz.LessonID)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuizRepositoryShareLockByIDMissing(t *testing.T) {
	db, mock, cleanup := newQuizRepoMock(t)
	defer cleanup()
	repo := NewQuizRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR SHARE")).WithArgs(3).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	tx, err := db.Beginx()
	require.NoError(t, err)
	_, err = repo.ShareLockByID(context.Background(), tx, 3)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuizRepositorySaveNewQuiz(t *testing.T) {
	db, mock, cleanup := newQuizRepoMock(t)
	defer cleanup()
	repo := NewQuizRepository(db)

	quiz, err := models.NewQuiz("Go basics", 60, nil, 7, time.Now())
	require.NoError(t, err)
	question, err := models.NewQuestion("pick", models.QuestionTypeSingleChoice, 10, 0, []models.Answer{{Text: "A"}, {Text: "B", Correct: true}})
	require.NoError(t, err)
	require.NoError(t, quiz.AddQuestion(question))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO quizzes (title, passing_score, lesson_id, instructor_id, created_at, updated_at)")).
		WithArgs("Go basics", 60, nil, 7, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM questions WHERE quiz_id = $1 AND NOT (id = ANY($2))")).
		WithArgs(9, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO questions (quiz_id, text, type, points, order_index)")).
		WithArgs(9, "pick", "SINGLE_CHOICE", 10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(21)))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM question_answers WHERE question_id = $1")).
		WithArgs(21).
		WillReturnResult(sqlmock.NewResult(0, 0))
	insertAnswer := regexp.QuoteMeta("INSERT INTO question_answers (question_id, position, answer_text, is_correct)")
	mock.ExpectExec(insertAnswer).WithArgs(21, 0, "A", false).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertAnswer).WithArgs(21, 1, "B", true).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), tx, quiz))
	require.NoError(t, tx.Commit())

	assert.Equal(t, int64(9), quiz.ID)
	assert.Equal(t, int64(21), quiz.Questions[0].ID)
	assert.Equal(t, int64(9), quiz.Questions[0].QuizID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuizRepositorySaveExistingPrunesRemovedQuestions(t *testing.T) {
	db, mock, cleanup := newQuizRepoMock(t)
	defer cleanup()
	repo := NewQuizRepository(db)

	quiz := &models.Quiz{ID: 9, Title: "Go basics", PassingScore: 50, InstructorID: 7, CreatedAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE quizzes SET title = $2, passing_score = $3, lesson_id = $4, updated_at = $5 WHERE id = $1")).
		WithArgs(9, "Go basics", 50, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM questions WHERE quiz_id = $1")).
		WithArgs(9, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), tx, quiz))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuizRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newQuizRepoMock(t)
	defer cleanup()
	repo := NewQuizRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM quizzes WHERE id = $1")).
		WithArgs(9).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM quizzes WHERE id = $1")).
		WithArgs(10).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, repo.Delete(context.Background(), tx, 9))
	assert.ErrorIs(t, repo.Delete(context.Background(), tx, 10), sql.ErrNoRows)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}
