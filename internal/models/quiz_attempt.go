package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	appErrors "github.com/noah-isme/learning-center-api/pkg/errors"
)

// StudentAnswer is one question's response within an attempt. Correct and
// AwardedPoints are filled in by grading.
type StudentAnswer struct {
	QuestionID            int64 `json:"question_id"`
	SelectedAnswerIndexes []int `json:"selected_answer_indexes"`
	Correct               bool  `json:"correct"`
	AwardedPoints         int   `json:"awarded_points"`
}

// NewStudentAnswer validates the selection and collapses duplicates.
func NewStudentAnswer(questionID int64, selected []int) (StudentAnswer, error) {
	if len(selected) == 0 {
		return StudentAnswer{}, appErrors.Validation("question %d: at least one answer must be selected", questionID)
	}
	seen := make(map[int]struct{}, len(selected))
	indexes := make([]int, 0, len(selected))
	for _, idx := range selected {
		if idx < 0 {
			return StudentAnswer{}, appErrors.Validation("question %d: answer index must not be negative", questionID)
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	return StudentAnswer{QuestionID: questionID, SelectedAnswerIndexes: indexes}, nil
}

// StudentAnswers is persisted as a JSONB column.
type StudentAnswers []StudentAnswer

// Value encodes the answers as JSON.
func (a StudentAnswers) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

// Scan decodes a JSON column.
func (a *StudentAnswers) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("unsupported type %T for StudentAnswers", value)
	}
}

// QuizAttempt is an immutable scored submission.
type QuizAttempt struct {
	ID              int64          `db:"id" json:"id"`
	QuizID          int64          `db:"quiz_id" json:"quiz_id"`
	StudentID       int64          `db:"student_id" json:"student_id"`
	Score           int            `db:"score" json:"score"`
	MaxScore        int            `db:"max_score" json:"max_score"`
	ScorePercentage int            `db:"score_percentage" json:"score_percentage"`
	Passed          bool           `db:"passed" json:"passed"`
	AttemptedAt     time.Time      `db:"attempted_at" json:"attempted_at"`
	Answers         StudentAnswers `db:"answers" json:"answers"`
}

// Grade scores a submission against the quiz's current questions. Only exact
// matches of the correct answer set earn the question's points; questions
// without a response score zero.
func Grade(quiz *Quiz, studentID int64, answers []StudentAnswer, now time.Time) (*QuizAttempt, error) {
	if quiz == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "quiz not found")
	}
	if len(answers) == 0 {
		return nil, appErrors.Validation("attempt must contain at least one answer")
	}

	graded := make(StudentAnswers, 0, len(answers))
	seen := make(map[int64]struct{}, len(answers))
	score := 0
	for _, raw := range answers {
		if _, dup := seen[raw.QuestionID]; dup {
			return nil, appErrors.Validation("question %d answered more than once", raw.QuestionID)
		}
		seen[raw.QuestionID] = struct{}{}

		answer, err := NewStudentAnswer(raw.QuestionID, raw.SelectedAnswerIndexes)
		if err != nil {
			return nil, err
		}
		question, err := quiz.FindQuestion(answer.QuestionID)
		if err != nil {
			return nil, appErrors.Validation("question %d does not belong to quiz %d", answer.QuestionID, quiz.ID)
		}
		if question.IsAnswerCorrect(answer.SelectedAnswerIndexes) {
			answer.Correct = true
			answer.AwardedPoints = question.Points
			score += question.Points
		}
		graded = append(graded, answer)
	}

	maxScore := quiz.CalculateMaxScore()
	percentage := ScorePercentage(score, maxScore)
	return &QuizAttempt{
		QuizID:          quiz.ID,
		StudentID:       studentID,
		Score:           score,
		MaxScore:        maxScore,
		ScorePercentage: percentage,
		Passed:          quiz.IsPassed(percentage),
		AttemptedAt:     now.UTC(),
		Answers:         graded,
	}, nil
}

// ScorePercentage floors score*100/maxScore, returning 0 for an empty quiz.
func ScorePercentage(score, maxScore int) int {
	if maxScore <= 0 {
		return 0
	}
	return score * 100 / maxScore
}

// BelongsToStudent checks ownership.
func (a *QuizAttempt) BelongsToStudent(studentID int64) bool {
	return a.StudentID == studentID
}

// BetterThan prefers the higher score, then the earlier attempt.
func (a *QuizAttempt) BetterThan(other *QuizAttempt) bool {
	if other == nil {
		return true
	}
	if a.Score != other.Score {
		return a.Score > other.Score
	}
	return a.AttemptedAt.Before(other.AttemptedAt)
}
