package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learning-center-api/internal/dto"
	"github.com/noah-isme/learning-center-api/internal/models"
	appErrors "github.com/noah-isme/learning-center-api/pkg/errors"
	"github.com/noah-isme/learning-center-api/pkg/jobs"
)

type mockQuizStore struct {
	quizzes    map[int64]*models.Quiz
	nextID     int64
	finds      int
	saveErr    error
	deletedIDs []int64

	sharedTx     *sqlx.Tx
	beforeShared func()
}

func newMockQuizStore() *mockQuizStore {
	return &mockQuizStore{quizzes: make(map[int64]*models.Quiz), nextID: 0}
}

func cloneQuiz(q *models.Quiz) *models.Quiz {
	out := *q
	out.Questions = make([]*models.Question, len(q.Questions))
	for i, question := range q.Questions {
		copied := *question
		copied.Answers = append([]models.Answer(nil), question.Answers...)
		out.Questions[i] = &copied
	}
	return &out
}

func (m *mockQuizStore) FindByID(ctx context.Context, id int64) (*models.Quiz, error) {
	m.finds++
	if q, ok := m.quizzes[id]; ok {
		return cloneQuiz(q), nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockQuizStore) LockByID(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Quiz, error) {
	if q, ok := m.quizzes[id]; ok {
		return cloneQuiz(q), nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockQuizStore) ShareLockByID(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Quiz, error) {
	if m.beforeShared != nil {
		m.beforeShared()
	}
	m.sharedTx = tx
	if q, ok := m.quizzes[id]; ok {
		return cloneQuiz(q), nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockQuizStore) Save(ctx context.Context, tx *sqlx.Tx, quiz *models.Quiz) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if quiz.ID == 0 {
		m.nextID++
		quiz.ID = m.nextID
	}
	for _, question := range quiz.Questions {
		question.QuizID = quiz.ID
		if question.ID == 0 {
			m.nextID++
			question.ID = m.nextID
		}
	}
	m.quizzes[quiz.ID] = cloneQuiz(quiz)
	return nil
}

func (m *mockQuizStore) Delete(ctx context.Context, tx *sqlx.Tx, id int64) error {
	if _, ok := m.quizzes[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.quizzes, id)
	m.deletedIDs = append(m.deletedIDs, id)
	return nil
}

type mockOutbox struct {
	messages  map[string]*models.OutboxMessage
	order     []string
	insertErr error
	failed    map[string]string
}

func newMockOutbox() *mockOutbox {
	return &mockOutbox{messages: make(map[string]*models.OutboxMessage), failed: make(map[string]string)}
}

func (m *mockOutbox) Insert(ctx context.Context, tx *sqlx.Tx, msg *models.OutboxMessage) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	copied := *msg
	m.messages[msg.ID] = &copied
	m.order = append(m.order, msg.ID)
	return nil
}

func (m *mockOutbox) ClaimPending(ctx context.Context, limit int, lease time.Duration, now time.Time) ([]models.OutboxMessage, error) {
	var out []models.OutboxMessage
	for _, id := range m.order {
		msg := m.messages[id]
		if msg.ProcessedAt != nil {
			continue
		}
		if msg.DispatchedAt != nil && !msg.DispatchedAt.Before(now.Add(-lease)) {
			continue
		}
		if len(out) == limit {
			break
		}
		stamp := now
		msg.DispatchedAt = &stamp
		msg.Attempts++
		out = append(out, *msg)
	}
	return out, nil
}

func (m *mockOutbox) FindByID(ctx context.Context, id string) (*models.OutboxMessage, error) {
	if msg, ok := m.messages[id]; ok {
		copied := *msg
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockOutbox) MarkProcessed(ctx context.Context, id string, now time.Time) error {
	if msg, ok := m.messages[id]; ok {
		stamp := now
		msg.ProcessedAt = &stamp
	}
	return nil
}

func (m *mockOutbox) MarkFailed(ctx context.Context, id string, reason string) error {
	if msg, ok := m.messages[id]; ok && msg.ProcessedAt == nil {
		msg.DispatchedAt = nil
		m.failed[id] = reason
	}
	return nil
}

func (m *mockOutbox) MarkDiscarded(ctx context.Context, id string, reason string, now time.Time) error {
	if msg, ok := m.messages[id]; ok && msg.ProcessedAt == nil {
		stamp := now
		msg.ProcessedAt = &stamp
		msg.LastError = &reason
	}
	return nil
}

type mockQueue struct {
	jobs []jobs.Job
	err  error
}

func (m *mockQueue) TryEnqueue(job jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

type memoryCacheRepo struct {
	entries map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: make(map[string][]byte)}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

func singleChoice(text string, points, order int, correct int, options int) dto.QuestionRequest {
	req := dto.QuestionRequest{Text: text, Type: models.QuestionTypeSingleChoice, Points: points, OrderIndex: order}
	for i := 0; i < options; i++ {
		req.Answers = append(req.Answers, dto.AnswerRequest{Text: "option " + string(rune('A'+i)), Correct: i == correct})
	}
	return req
}

type quizFixture struct {
	svc      *QuizService
	provider txProvider
	store  *mockQuizStore
	outbox *mockOutbox
	queue  *mockQueue
	cache  *memoryCacheRepo
}

func newQuizFixture(t *testing.T) (quizFixture, func(commit bool)) {
	t.Helper()
	provider, mock := newTxProviderMock(t)
	store := newMockQuizStore()
	outbox := newMockOutbox()
	queue := &mockQueue{}
	cacheRepo := newMemoryCacheRepo()
	cache := NewCacheService(cacheRepo, NewMetricsService(), time.Minute, nil, true)
	svc := NewQuizService(store, outbox, queue, cache, provider, nil, nil)
	svc.now = func() time.Time { return serviceNow }
	expect := func(commit bool) {
		mock.ExpectBegin()
		if commit {
			mock.ExpectCommit()
		} else {
			mock.ExpectRollback()
		}
	}
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	return quizFixture{svc: svc, provider: provider, store: store, outbox: outbox, queue: queue, cache: cacheRepo}, expect
}

func createTestQuiz(t *testing.T, f quizFixture, expect func(bool)) *models.Quiz {
	t.Helper()
	expect(true)
	quiz, err := f.svc.CreateQuiz(context.Background(), 7, dto.CreateQuizRequest{
		Title:        "Go basics",
		PassingScore: 60,
		Questions:    []dto.QuestionRequest{singleChoice("first", 10, 0, 1, 3)},
	})
	require.NoError(t, err)
	return quiz
}

func TestCreateQuizWithQuestions(t *testing.T) {
	f, expect := newQuizFixture(t)
	quiz := createTestQuiz(t, f, expect)

	assert.NotZero(t, quiz.ID)
	require.Len(t, quiz.Questions, 1)
	assert.NotZero(t, quiz.Questions[0].ID)
	assert.Equal(t, 10, quiz.CalculateMaxScore())
	assert.Equal(t, int64(7), quiz.InstructorID)
}

func TestCreateQuizValidation(t *testing.T) {
	f, _ := newQuizFixture(t)

	_, err := f.svc.CreateQuiz(context.Background(), 7, dto.CreateQuizRequest{Title: "", PassingScore: 50})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	bad := singleChoice("two correct", 5, 0, 0, 2)
	bad.Answers[1].Correct = true
	_, err = f.svc.CreateQuiz(context.Background(), 7, dto.CreateQuizRequest{Title: "Quiz", Questions: []dto.QuestionRequest{bad}})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	noCorrect := singleChoice("none", 5, 0, -1, 2)
	_, err = f.svc.CreateQuiz(context.Background(), 7, dto.CreateQuizRequest{Title: "Quiz", Questions: []dto.QuestionRequest{noCorrect}})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, f.store.quizzes)
}

func TestQuizEditsRequireOwner(t *testing.T) {
	f, expect := newQuizFixture(t)
	quiz := createTestQuiz(t, f, expect)
	ctx := context.Background()

	expect(false)
	_, err := f.svc.AddQuestion(ctx, quiz.ID, 8, singleChoice("intruder", 5, 1, 0, 2))
	assert.True(t, errors.Is(err, appErrors.ErrAccessDenied))

	expect(false)
	err = f.svc.RemoveQuestion(ctx, quiz.ID, quiz.Questions[0].ID, 8)
	assert.True(t, errors.Is(err, appErrors.ErrAccessDenied))

	expect(false)
	err = f.svc.DeleteQuiz(ctx, quiz.ID, 8)
	assert.True(t, errors.Is(err, appErrors.ErrAccessDenied))

	_, err = f.svc.GetQuizForInstructor(ctx, quiz.ID, 8)
	assert.True(t, errors.Is(err, appErrors.ErrAccessDenied))

	stored := f.store.quizzes[quiz.ID]
	assert.Len(t, stored.Questions, 1)
	assert.Empty(t, f.outbox.messages)
}

func TestQuestionLifecycle(t *testing.T) {
	f, expect := newQuizFixture(t)
	quiz := createTestQuiz(t, f, expect)
	ctx := context.Background()

	expect(true)
	added, err := f.svc.AddQuestion(ctx, quiz.ID, 7, singleChoice("second", 5, 1, 0, 2))
	require.NoError(t, err)
	assert.NotZero(t, added.ID)

	expect(true)
	multi := dto.QuestionRequest{Text: "second v2", Type: models.QuestionTypeMultipleChoice, Points: 8, OrderIndex: 1,
		Answers: []dto.AnswerRequest{{Text: "a", Correct: true}, {Text: "b", Correct: true}, {Text: "c"}}}
	updated, err := f.svc.UpdateQuestion(ctx, quiz.ID, added.ID, 7, multi)
	require.NoError(t, err)
	assert.Equal(t, "second v2", updated.Text)

	loaded, err := f.svc.GetQuizForInstructor(ctx, quiz.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 18, loaded.CalculateMaxScore())

	expect(true)
	require.NoError(t, f.svc.RemoveQuestion(ctx, quiz.ID, quiz.Questions[0].ID, 7))
	loaded, err = f.svc.GetQuizForInstructor(ctx, quiz.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 8, loaded.CalculateMaxScore())

	expect(false)
	err = f.svc.RemoveQuestion(ctx, quiz.ID, 9999, 7)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	expect(false)
	_, err = f.svc.UpdateQuestion(ctx, 404, added.ID, 7, multi)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestUpdateQuizMetadata(t *testing.T) {
	f, expect := newQuizFixture(t)
	quiz := createTestQuiz(t, f, expect)

	title := "Go advanced"
	passing := 80
	expect(true)
	updated, err := f.svc.UpdateQuiz(context.Background(), quiz.ID, 7, dto.UpdateQuizRequest{Title: &title, PassingScore: &passing})
	require.NoError(t, err)
	assert.Equal(t, "Go advanced", updated.Title)
	assert.Equal(t, 80, updated.PassingScore)

	tooHigh := 120
	_, err = f.svc.UpdateQuiz(context.Background(), quiz.ID, 7, dto.UpdateQuizRequest{PassingScore: &tooHigh})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestStudentViewHidesCorrectnessAndIsCached(t *testing.T) {
	f, expect := newQuizFixture(t)
	quiz := createTestQuiz(t, f, expect)
	ctx := context.Background()

	view, hit, err := f.svc.GetQuizForStudent(ctx, quiz.ID)
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, view.Questions, 1)
	for _, answer := range view.Questions[0].Answers {
		assert.Nil(t, answer.Correct)
	}
	findsAfterFirst := f.store.finds

	_, hit, err = f.svc.GetQuizForStudent(ctx, quiz.ID)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, findsAfterFirst, f.store.finds, "second read served from cache")

	expect(true)
	_, err = f.svc.AddQuestion(ctx, quiz.ID, 7, singleChoice("second", 5, 1, 0, 2))
	require.NoError(t, err)
	_, cached := f.cache.entries[QuizStudentViewKey(quiz.ID)]
	assert.False(t, cached, "edit drops cached view")

	view, _, err = f.svc.GetQuizForStudent(ctx, quiz.ID)
	require.NoError(t, err)
	assert.Len(t, view.Questions, 2)
	assert.Equal(t, 15, view.MaxScore)

	_, _, err = f.svc.GetQuizForStudent(ctx, 404)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestDeleteQuizWritesOutboxAndEnqueues(t *testing.T) {
	f, expect := newQuizFixture(t)
	quiz := createTestQuiz(t, f, expect)

	expect(true)
	require.NoError(t, f.svc.DeleteQuiz(context.Background(), quiz.ID, 7))

	assert.Equal(t, []int64{quiz.ID}, f.store.deletedIDs)
	require.Len(t, f.outbox.order, 1)
	msg := f.outbox.messages[f.outbox.order[0]]
	assert.Equal(t, models.OutboxQuizDeleted, msg.Type)
	assert.Equal(t, quiz.ID, msg.AggregateID)

	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, msg.ID, f.queue.jobs[0].ID)

	expect(false)
	err := f.svc.DeleteQuiz(context.Background(), quiz.ID, 7)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestDeleteQuizSucceedsWhenQueueIsFull(t *testing.T) {
	f, expect := newQuizFixture(t)
	quiz := createTestQuiz(t, f, expect)
	f.queue.err = jobs.ErrQueueFull

	expect(true)
	require.NoError(t, f.svc.DeleteQuiz(context.Background(), quiz.ID, 7))
	assert.Len(t, f.outbox.messages, 1)
}

func TestDeleteQuizRollsBackWhenOutboxFails(t *testing.T) {
	f, expect := newQuizFixture(t)
	quiz := createTestQuiz(t, f, expect)
	f.outbox.insertErr = errors.New("disk full")

	expect(false)
	err := f.svc.DeleteQuiz(context.Background(), quiz.ID, 7)
	assert.True(t, errors.Is(err, appErrors.ErrInfrastructure))
	assert.Empty(t, f.queue.jobs)
}

func TestCreateQuizStorageFailure(t *testing.T) {
	f, expect := newQuizFixture(t)
	f.store.saveErr = errors.New("connection reset")

	expect(false)
	_, err := f.svc.CreateQuiz(context.Background(), 7, dto.CreateQuizRequest{Title: "Quiz", PassingScore: 10})
	assert.True(t, errors.Is(err, appErrors.ErrInfrastructure))
	assert.Empty(t, f.store.quizzes)
}
