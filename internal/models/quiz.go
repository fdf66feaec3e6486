package models

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	appErrors "github.com/noah-isme/learning-center-api/pkg/errors"
)

// QuestionType enumerates supported question kinds.
type QuestionType string

const (
	QuestionTypeSingleChoice   QuestionType = "SINGLE_CHOICE"
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeTrueFalse      QuestionType = "TRUE_FALSE"
)

const (
	maxAnswerTextLength = 500
	maxQuizTitleLength  = 200
	maxPassingScore     = 100
)

// Valid reports whether the type is known.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeSingleChoice, QuestionTypeMultipleChoice, QuestionTypeTrueFalse:
		return true
	}
	return false
}

// Answer is an immutable option of a question.
type Answer struct {
	Text    string `db:"answer_text" json:"text"`
	Correct bool   `db:"is_correct" json:"correct"`
}

// NewAnswer validates the answer text.
func NewAnswer(text string, correct bool) (Answer, error) {
	if strings.TrimSpace(text) == "" {
		return Answer{}, appErrors.Validation("answer text must not be blank")
	}
	if utf8.RuneCountInString(text) > maxAnswerTextLength {
		return Answer{}, appErrors.Validation("answer text must be at most %d characters", maxAnswerTextLength)
	}
	return Answer{Text: text, Correct: correct}, nil
}

// Question belongs to exactly one quiz. Answers keep their submitted order,
// which is the index space students select from.
type Question struct {
	ID         int64        `db:"id" json:"id"`
	QuizID     int64        `db:"quiz_id" json:"quiz_id"`
	Text       string       `db:"text" json:"text"`
	Type       QuestionType `db:"type" json:"type"`
	Points     int          `db:"points" json:"points"`
	OrderIndex int          `db:"order_index" json:"order_index"`
	Answers    []Answer     `db:"-" json:"answers"`
}

// NewQuestion builds a validated question.
func NewQuestion(text string, qType QuestionType, points, orderIndex int, answers []Answer) (*Question, error) {
	q := &Question{
		Text:       strings.TrimSpace(text),
		Type:       qType,
		Points:     points,
		OrderIndex: orderIndex,
		Answers:    append([]Answer(nil), answers...),
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// Validate enforces the structural rules of a question.
func (q *Question) Validate() error {
	if q.Text == "" {
		return appErrors.Validation("question text is required")
	}
	if !q.Type.Valid() {
		return appErrors.Validation("unknown question type %q", q.Type)
	}
	if q.Points < 1 {
		return appErrors.Validation("question points must be at least 1")
	}
	if q.OrderIndex < 0 {
		return appErrors.Validation("question order index must not be negative")
	}
	if len(q.Answers) == 0 {
		return appErrors.Validation("question must have at least one answer")
	}
	for _, a := range q.Answers {
		if _, err := NewAnswer(a.Text, a.Correct); err != nil {
			return err
		}
	}

	correct := len(q.CorrectIndexes())
	if correct == 0 {
		return appErrors.Validation("question must have at least one correct answer")
	}
	switch q.Type {
	case QuestionTypeSingleChoice:
		if correct != 1 {
			return appErrors.Validation("single choice question must have exactly one correct answer")
		}
	case QuestionTypeTrueFalse:
		if len(q.Answers) != 2 || correct != 1 {
			return appErrors.Validation("true/false question must have exactly two answers with one correct")
		}
	}
	return nil
}

// CorrectIndexes lists the positions of answers marked correct.
func (q *Question) CorrectIndexes() []int {
	indexes := make([]int, 0, len(q.Answers))
	for i, a := range q.Answers {
		if a.Correct {
			indexes = append(indexes, i)
		}
	}
	return indexes
}

// IsAnswerCorrect is an exact set match between the selection and the
// correct answers. Duplicate selections collapse.
func (q *Question) IsAnswerCorrect(selected []int) bool {
	chosen := make(map[int]struct{}, len(selected))
	for _, idx := range selected {
		chosen[idx] = struct{}{}
	}
	correct := q.CorrectIndexes()
	if len(chosen) != len(correct) {
		return false
	}
	for _, idx := range correct {
		if _, ok := chosen[idx]; !ok {
			return false
		}
	}
	return true
}

// Quiz is the assessment aggregate. The maximum score is always derived from
// the current questions.
type Quiz struct {
	ID           int64       `db:"id" json:"id"`
	Title        string      `db:"title" json:"title"`
	PassingScore int         `db:"passing_score" json:"passing_score"`
	LessonID     *int64      `db:"lesson_id" json:"lesson_id,omitempty"`
	InstructorID int64       `db:"instructor_id" json:"instructor_id"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
	Questions    []*Question `db:"-" json:"questions"`
}

// NewQuiz creates an empty quiz owned by the instructor.
func NewQuiz(title string, passingScore int, lessonID *int64, instructorID int64, now time.Time) (*Quiz, error) {
	q := &Quiz{InstructorID: instructorID, LessonID: lessonID, CreatedAt: now.UTC(), UpdatedAt: now.UTC()}
	if err := q.UpdateTitle(title); err != nil {
		return nil, err
	}
	if err := q.UpdatePassingScore(passingScore); err != nil {
		return nil, err
	}
	return q, nil
}

// UpdateTitle validates and sets the title.
func (q *Quiz) UpdateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > maxQuizTitleLength {
		return appErrors.Validation("quiz title must be between 1 and %d characters", maxQuizTitleLength)
	}
	q.Title = title
	return nil
}

// UpdatePassingScore sets the passing percentage.
func (q *Quiz) UpdatePassingScore(score int) error {
	if score < 0 || score > maxPassingScore {
		return appErrors.Validation("passing score must be between 0 and %d", maxPassingScore)
	}
	q.PassingScore = score
	return nil
}

// IsOwnedBy checks the instructor.
func (q *Quiz) IsOwnedBy(instructorID int64) bool {
	return q.InstructorID == instructorID
}

// EnsureOwnedBy rejects callers that are not the quiz instructor.
func (q *Quiz) EnsureOwnedBy(instructorID int64) error {
	if !q.IsOwnedBy(instructorID) {
		return appErrors.Clone(appErrors.ErrAccessDenied, "only the quiz instructor can modify this quiz")
	}
	return nil
}

// AddQuestion appends a validated question.
func (q *Quiz) AddQuestion(question *Question) error {
	if question == nil {
		return appErrors.Validation("question is required")
	}
	if err := question.Validate(); err != nil {
		return err
	}
	question.QuizID = q.ID
	q.Questions = append(q.Questions, question)
	q.sortQuestions()
	return nil
}

// FindQuestion returns the question with the given id.
func (q *Quiz) FindQuestion(questionID int64) (*Question, error) {
	for _, question := range q.Questions {
		if question.ID == questionID {
			return question, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "question not found")
}

// UpdateQuestion replaces the content of an existing question.
func (q *Quiz) UpdateQuestion(questionID int64, replacement *Question) (*Question, error) {
	existing, err := q.FindQuestion(questionID)
	if err != nil {
		return nil, err
	}
	if err := replacement.Validate(); err != nil {
		return nil, err
	}
	existing.Text = replacement.Text
	existing.Type = replacement.Type
	existing.Points = replacement.Points
	existing.OrderIndex = replacement.OrderIndex
	existing.Answers = append([]Answer(nil), replacement.Answers...)
	q.sortQuestions()
	return existing, nil
}

// RemoveQuestion drops the question with the given id.
func (q *Quiz) RemoveQuestion(questionID int64) error {
	for i, question := range q.Questions {
		if question.ID == questionID {
			q.Questions = append(q.Questions[:i], q.Questions[i+1:]...)
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrNotFound, "question not found")
}

// CalculateMaxScore sums the points of the current questions.
func (q *Quiz) CalculateMaxScore() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}

// IsPassed compares a percentage with the passing threshold. A quiz without
// questions can never be passed.
func (q *Quiz) IsPassed(scorePercentage int) bool {
	if q.CalculateMaxScore() == 0 {
		return false
	}
	return scorePercentage >= q.PassingScore
}

func (q *Quiz) sortQuestions() {
	sort.SliceStable(q.Questions, func(i, j int) bool {
		return q.Questions[i].OrderIndex < q.Questions[j].OrderIndex
	})
}
