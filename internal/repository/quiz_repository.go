package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/learning-center-api/internal/models"
)

const quizColumns = `id, title, passing_score, lesson_id, instructor_id, created_at, updated_at`

// QuizRepository persists the quiz aggregate across quizzes, questions and
// question_answers.
type QuizRepository struct {
	db *sqlx.DB
}

// NewQuizRepository constructs the repository.
func NewQuizRepository(db *sqlx.DB) *QuizRepository {
	return &QuizRepository{db: db}
}

type answerRow struct {
	QuestionID int64  `db:"question_id"`
	Position   int    `db:"position"`
	Text       string `db:"answer_text"`
	Correct    bool   `db:"is_correct"`
}

type lockMode string

const (
	noLock     lockMode = ""
	lockUpdate lockMode = " FOR UPDATE"
	lockShare  lockMode = " FOR SHARE"
)

// FindByID loads the quiz with its ordered questions and answers.
func (r *QuizRepository) FindByID(ctx context.Context, id int64) (*models.Quiz, error) {
	return r.load(ctx, r.db, id, noLock)
}

// LockByID loads the quiz holding a row lock on the quiz until tx ends.
func (r *QuizRepository) LockByID(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Quiz, error) {
	return r.load(ctx, tx, id, lockUpdate)
}

// ShareLockByID loads the quiz holding a shared lock until tx ends. Readers
// proceed together; a concurrent LockByID or delete waits for tx.
func (r *QuizRepository) ShareLockByID(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Quiz, error) {
	return r.load(ctx, tx, id, lockShare)
}

func (r *QuizRepository) load(ctx context.Context, q sqlx.QueryerContext, id int64, lock lockMode) (*models.Quiz, error) {
	query := `SELECT ` + quizColumns + ` FROM quizzes WHERE id = $1` + string(lock)
	var quiz models.Quiz
	if err := sqlx.GetContext(ctx, q, &quiz, query, id); err != nil {
		return nil, err
	}

	const questionsQuery = `SELECT id, quiz_id, text, type, points, order_index FROM questions WHERE quiz_id = $1 ORDER BY order_index ASC, id ASC`
	var questions []*models.Question
	if err := sqlx.SelectContext(ctx, q, &questions, questionsQuery, id); err != nil {
		return nil, fmt.Errorf("load quiz questions: %w", err)
	}

	const answersQuery = `SELECT qa.question_id, qa.position, qa.answer_text, qa.is_correct
FROM question_answers qa
JOIN questions q ON q.id = qa.question_id
WHERE q.quiz_id = $1
ORDER BY qa.question_id ASC, qa.position ASC`
	var answers []answerRow
	if err := sqlx.SelectContext(ctx, q, &answers, answersQuery, id); err != nil {
		return nil, fmt.Errorf("load quiz answers: %w", err)
	}

	byQuestion := make(map[int64]*models.Question, len(questions))
	for _, question := range questions {
		question.Answers = []models.Answer{}
		byQuestion[question.ID] = question
	}
	for _, a := range answers {
		if question, ok := byQuestion[a.QuestionID]; ok {
			question.Answers = append(question.Answers, models.Answer{Text: a.Text, Correct: a.Correct})
		}
	}
	quiz.Questions = questions
	return &quiz, nil
}

// Save writes the whole aggregate inside tx: the quiz row, its questions
// (removing those no longer present) and every question's answers.
func (r *QuizRepository) Save(ctx context.Context, tx *sqlx.Tx, quiz *models.Quiz) error {
	quiz.UpdatedAt = time.Now().UTC()
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = quiz.UpdatedAt
	}
	if quiz.ID == 0 {
		const insert = `INSERT INTO quizzes (title, passing_score, lesson_id, instructor_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
		if err := tx.GetContext(ctx, &quiz.ID, insert, quiz.Title, quiz.PassingScore, quiz.LessonID, quiz.InstructorID, quiz.CreatedAt, quiz.UpdatedAt); err != nil {
			return fmt.Errorf("insert quiz: %w", err)
		}
	} else {
		const update = `UPDATE quizzes SET title = $2, passing_score = $3, lesson_id = $4, updated_at = $5 WHERE id = $1`
		res, err := tx.ExecContext(ctx, update, quiz.ID, quiz.Title, quiz.PassingScore, quiz.LessonID, quiz.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update quiz: %w", err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return sql.ErrNoRows
		}
	}

	keep := make([]int64, 0, len(quiz.Questions))
	for _, question := range quiz.Questions {
		if question.ID != 0 {
			keep = append(keep, question.ID)
		}
	}
	const prune = `DELETE FROM questions WHERE quiz_id = $1 AND NOT (id = ANY($2))`
	if _, err := tx.ExecContext(ctx, prune, quiz.ID, pq.Array(keep)); err != nil {
		return fmt.Errorf("prune quiz questions: %w", err)
	}

	for _, question := range quiz.Questions {
		question.QuizID = quiz.ID
		if err := r.saveQuestion(ctx, tx, question); err != nil {
			return err
		}
	}
	return nil
}

func (r *QuizRepository) saveQuestion(ctx context.Context, tx *sqlx.Tx, question *models.Question) error {
	if question.ID == 0 {
		const insert = `INSERT INTO questions (quiz_id, text, type, points, order_index) VALUES ($1, $2, $3, $4, $5) RETURNING id`
		if err := tx.GetContext(ctx, &question.ID, insert, question.QuizID, question.Text, question.Type, question.Points, question.OrderIndex); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	} else {
		const update = `UPDATE questions SET text = $3, type = $4, points = $5, order_index = $6 WHERE id = $1 AND quiz_id = $2`
		if _, err := tx.ExecContext(ctx, update, question.ID, question.QuizID, question.Text, question.Type, question.Points, question.OrderIndex); err != nil {
			return fmt.Errorf("update question: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM question_answers WHERE question_id = $1`, question.ID); err != nil {
		return fmt.Errorf("clear question answers: %w", err)
	}
	const insertAnswer = `INSERT INTO question_answers (question_id, position, answer_text, is_correct) VALUES ($1, $2, $3, $4)`
	for i, answer := range question.Answers {
		if _, err := tx.ExecContext(ctx, insertAnswer, question.ID, i, answer.Text, answer.Correct); err != nil {
			return fmt.Errorf("insert question answer: %w", err)
		}
	}
	return nil
}

// Delete removes the quiz; questions and answers cascade.
func (r *QuizRepository) Delete(ctx context.Context, tx *sqlx.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM quizzes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete quiz rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
