package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learning-center-api/internal/models"
)

func newAttemptRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func attemptRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "quiz_id", "student_id", "score", "max_score", "score_percentage", "passed", "attempted_at", "answers"})
}

func TestQuizAttemptRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newAttemptRepoMock(t)
	defer cleanup()
	repo := NewQuizAttemptRepository(db)

	attempt := &models.QuizAttempt{
		QuizID: 3, StudentID: 5, Score: 10, MaxScore: 10, ScorePercentage: 100, Passed: true,
		AttemptedAt: time.Now(),
		Answers:     models.StudentAnswers{{QuestionID: 1, SelectedAnswerIndexes: []int{1}, Correct: true, AwardedPoints: 10}},
	}
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO quiz_attempts (quiz_id, student_id, score, max_score, score_percentage, passed, attempted_at, answers)")).
		WithArgs(3, 5, 10, 10, 100, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(44)))

	require.NoError(t, repo.Create(context.Background(), nil, attempt))
	assert.Equal(t, int64(44), attempt.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuizAttemptRepositoryCreateInTransaction(t *testing.T) {
	db, mock, cleanup := newAttemptRepoMock(t)
	defer cleanup()
	repo := NewQuizAttemptRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO quiz_attempts")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(45)))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)
	attempt := &models.QuizAttempt{QuizID: 3, StudentID: 5, AttemptedAt: time.Now(), Answers: models.StudentAnswers{}}
	require.NoError(t, repo.Create(context.Background(), tx, attempt))
	require.NoError(t, tx.Commit())
	assert.Equal(t, int64(45), attempt.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuizAttemptRepositoryFindBest(t *testing.T) {
	db, mock, cleanup := newAttemptRepoMock(t)
	defer cleanup()
	repo := NewQuizAttemptRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY score DESC, attempted_at ASC, id ASC LIMIT 1")).
		WithArgs(3, 5).
		WillReturnRows(attemptRows().AddRow(int64(44), int64(3), int64(5), int64(8), int64(10), int64(80), true, time.Now(),
			[]byte(`[{"question_id":1,"selected_answer_indexes":[1],"correct":true,"awarded_points":8}]`)))

	best, err := repo.FindBest(context.Background(), 3, 5)
	require.NoError(t, err)
	assert.Equal(t, 8, best.Score)
	require.Len(t, best.Answers, 1)
	assert.Equal(t, []int{1}, best.Answers[0].SelectedAnswerIndexes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuizAttemptRepositoryListByQuizAndStudent(t *testing.T) {
	db, mock, cleanup := newAttemptRepoMock(t)
	defer cleanup()
	repo := NewQuizAttemptRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM quiz_attempts WHERE quiz_id = $1 AND student_id = $2 ORDER BY attempted_at DESC, id DESC")).
		WithArgs(3, 5).
		WillReturnRows(attemptRows().
			AddRow(int64(2), int64(3), int64(5), int64(0), int64(10), int64(0), false, time.Now(), []byte(`[]`)).
			AddRow(int64(1), int64(3), int64(5), int64(10), int64(10), int64(100), true, time.Now(), []byte(`[]`)))

	attempts, err := repo.ListByQuizAndStudent(context.Background(), 3, 5)
	require.NoError(t, err)
	assert.Len(t, attempts, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuizAttemptRepositoryDeleteByQuizIDIsRepeatable(t *testing.T) {
	db, mock, cleanup := newAttemptRepoMock(t)
	defer cleanup()
	repo := NewQuizAttemptRepository(db)

	query := regexp.QuoteMeta("DELETE FROM quiz_attempts WHERE quiz_id = $1")
	mock.ExpectExec(query).WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(query).WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := repo.DeleteByQuizID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)

	removed, err = repo.DeleteByQuizID(context.Background(), 3)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
