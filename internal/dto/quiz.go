package dto

import (
	"time"

	"github.com/noah-isme/learning-center-api/internal/models"
)

// AnswerRequest is one option of a question.
type AnswerRequest struct {
	Text    string `json:"text" validate:"required,max=500"`
	Correct bool   `json:"correct"`
}

// QuestionRequest creates or replaces a question.
type QuestionRequest struct {
	Text       string              `json:"text" validate:"required"`
	Type       models.QuestionType `json:"type" validate:"required,oneof=SINGLE_CHOICE MULTIPLE_CHOICE TRUE_FALSE"`
	Points     int                 `json:"points" validate:"min=1"`
	OrderIndex int                 `json:"orderIndex" validate:"min=0"`
	Answers    []AnswerRequest     `json:"answers" validate:"required,min=1,dive"`
}

// CreateQuizRequest captures POST /quizzes payload.
type CreateQuizRequest struct {
	Title        string            `json:"title" validate:"required,max=200"`
	PassingScore int               `json:"passingScore" validate:"min=0,max=100"`
	LessonID     *int64            `json:"lessonId,omitempty" validate:"omitempty,gt=0"`
	Questions    []QuestionRequest `json:"questions" validate:"omitempty,dive"`
}

// UpdateQuizRequest patches quiz metadata.
type UpdateQuizRequest struct {
	Title        *string `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	PassingScore *int    `json:"passingScore,omitempty" validate:"omitempty,min=0,max=100"`
	LessonID     *int64  `json:"lessonId,omitempty" validate:"omitempty,gt=0"`
}

// AnswerView exposes an answer; Correct is omitted in student views.
type AnswerView struct {
	Index   int    `json:"index"`
	Text    string `json:"text"`
	Correct *bool  `json:"correct,omitempty"`
}

// QuestionView exposes a question.
type QuestionView struct {
	ID         int64               `json:"id"`
	Text       string              `json:"text"`
	Type       models.QuestionType `json:"type"`
	Points     int                 `json:"points"`
	OrderIndex int                 `json:"orderIndex"`
	Answers    []AnswerView        `json:"answers"`
}

// QuizView is the quiz as returned to clients.
type QuizView struct {
	ID           int64          `json:"id"`
	Title        string         `json:"title"`
	PassingScore int            `json:"passingScore"`
	LessonID     *int64         `json:"lessonId,omitempty"`
	InstructorID int64          `json:"instructorId"`
	MaxScore     int            `json:"maxScore"`
	CreatedAt    time.Time      `json:"createdAt"`
	Questions    []QuestionView `json:"questions"`
}

// NewInstructorQuizView reveals which answers are correct.
func NewInstructorQuizView(q *models.Quiz) QuizView {
	return newQuizView(q, true)
}

// NewStudentQuizView hides correctness flags.
func NewStudentQuizView(q *models.Quiz) QuizView {
	return newQuizView(q, false)
}

func newQuizView(q *models.Quiz, revealCorrect bool) QuizView {
	view := QuizView{
		ID:           q.ID,
		Title:        q.Title,
		PassingScore: q.PassingScore,
		LessonID:     q.LessonID,
		InstructorID: q.InstructorID,
		MaxScore:     q.CalculateMaxScore(),
		CreatedAt:    q.CreatedAt,
		Questions:    make([]QuestionView, 0, len(q.Questions)),
	}
	for _, question := range q.Questions {
		view.Questions = append(view.Questions, newQuestionView(question, revealCorrect))
	}
	return view
}

// NewInstructorQuestionView renders a single question with answers revealed.
func NewInstructorQuestionView(q *models.Question) QuestionView {
	return newQuestionView(q, true)
}

func newQuestionView(q *models.Question, revealCorrect bool) QuestionView {
	qv := QuestionView{
		ID:         q.ID,
		Text:       q.Text,
		Type:       q.Type,
		Points:     q.Points,
		OrderIndex: q.OrderIndex,
		Answers:    make([]AnswerView, len(q.Answers)),
	}
	for i, a := range q.Answers {
		av := AnswerView{Index: i, Text: a.Text}
		if revealCorrect {
			correct := a.Correct
			av.Correct = &correct
		}
		qv.Answers[i] = av
	}
	return qv
}
