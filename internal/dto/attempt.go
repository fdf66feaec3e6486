package dto

import (
	"time"

	"github.com/noah-isme/learning-center-api/internal/models"
)

// StudentAnswerRequest is one question's selection.
type StudentAnswerRequest struct {
	QuestionID            int64 `json:"questionId" validate:"required,gt=0"`
	SelectedAnswerIndexes []int `json:"selectedAnswerIndexes" validate:"required,min=1,dive,min=0"`
}

// SubmitAttemptRequest captures POST /quizzes/:id/attempts payload.
type SubmitAttemptRequest struct {
	Answers []StudentAnswerRequest `json:"answers" validate:"required,min=1,dive"`
}

// ToStudentAnswers converts the request into domain answers.
func (r SubmitAttemptRequest) ToStudentAnswers() []models.StudentAnswer {
	out := make([]models.StudentAnswer, len(r.Answers))
	for i, a := range r.Answers {
		out[i] = models.StudentAnswer{QuestionID: a.QuestionID, SelectedAnswerIndexes: a.SelectedAnswerIndexes}
	}
	return out
}

// AttemptAnswerView is one graded response.
type AttemptAnswerView struct {
	QuestionID            int64 `json:"questionId"`
	SelectedAnswerIndexes []int `json:"selectedAnswerIndexes"`
	Correct               bool  `json:"correct"`
	AwardedPoints         int   `json:"awardedPoints"`
}

// AttemptView exposes a graded attempt.
type AttemptView struct {
	ID              int64               `json:"id"`
	QuizID          int64               `json:"quizId"`
	StudentID       int64               `json:"studentId"`
	Score           int                 `json:"score"`
	MaxScore        int                 `json:"maxScore"`
	ScorePercentage int                 `json:"scorePercentage"`
	Passed          bool                `json:"passed"`
	AttemptedAt     time.Time           `json:"attemptedAt"`
	Answers         []AttemptAnswerView `json:"answers"`
}

// NewAttemptView maps the attempt.
func NewAttemptView(a *models.QuizAttempt) AttemptView {
	view := AttemptView{
		ID:              a.ID,
		QuizID:          a.QuizID,
		StudentID:       a.StudentID,
		Score:           a.Score,
		MaxScore:        a.MaxScore,
		ScorePercentage: a.ScorePercentage,
		Passed:          a.Passed,
		AttemptedAt:     a.AttemptedAt,
		Answers:         make([]AttemptAnswerView, len(a.Answers)),
	}
	for i, ans := range a.Answers {
		view.Answers[i] = AttemptAnswerView{
			QuestionID:            ans.QuestionID,
			SelectedAnswerIndexes: ans.SelectedAnswerIndexes,
			Correct:               ans.Correct,
			AwardedPoints:         ans.AwardedPoints,
		}
	}
	return view
}

// NewAttemptViews maps a list.
func NewAttemptViews(items []models.QuizAttempt) []AttemptView {
	out := make([]AttemptView, len(items))
	for i := range items {
		out[i] = NewAttemptView(&items[i])
	}
	return out
}
