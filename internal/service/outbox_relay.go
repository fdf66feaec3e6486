package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/learning-center-api/internal/models"
	"github.com/noah-isme/learning-center-api/pkg/jobs"
)

const defaultRelayBatch = 50

type outboxClaimer interface {
	ClaimPending(ctx context.Context, limit int, lease time.Duration, now time.Time) ([]models.OutboxMessage, error)
}

type outboxTracker interface {
	FindByID(ctx context.Context, id string) (*models.OutboxMessage, error)
	MarkProcessed(ctx context.Context, id string, now time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
	MarkDiscarded(ctx context.Context, id string, reason string, now time.Time) error
}

type attemptPurger interface {
	DeleteByQuizID(ctx context.Context, quizID int64) (int64, error)
}

func cleanupJob(msg *models.OutboxMessage) jobs.Job {
	return jobs.Job{ID: msg.ID, Type: string(msg.Type), Payload: msg.AggregateID}
}

// OutboxRelay forwards committed outbox messages to the cleanup queue. A
// message stays leased while a worker handles it; if the worker never
// confirms, the lease expires and the next poll hands it out again.
type OutboxRelay struct {
	outbox  outboxClaimer
	queue   jobEnqueuer
	batch   int
	lease   time.Duration
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewOutboxRelay constructs a relay.
func NewOutboxRelay(outbox outboxClaimer, queue jobEnqueuer, batch int, lease time.Duration, metrics *MetricsService, logger *zap.Logger) *OutboxRelay {
	if batch <= 0 {
		batch = defaultRelayBatch
	}
	if lease <= 0 {
		lease = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxRelay{outbox: outbox, queue: queue, batch: batch, lease: lease, metrics: metrics, logger: logger, now: time.Now}
}

// Poll claims one batch and enqueues it. It returns the number of messages
// handed to the queue.
func (r *OutboxRelay) Poll(ctx context.Context) (int, error) {
	messages, err := r.outbox.ClaimPending(ctx, r.batch, r.lease, r.now())
	if err != nil {
		return 0, err
	}
	relayed := make(map[models.OutboxMessageType]int)
	total := 0
	for i := range messages {
		msg := &messages[i]
		if err := r.queue.TryEnqueue(cleanupJob(msg)); err != nil {
			if errors.Is(err, jobs.ErrDuplicate) {
				continue
			}
			// left leased; picked up again once the lease expires
			r.logger.Warn("outbox relay could not enqueue message", zap.String("outbox_id", msg.ID), zap.Error(err))
			continue
		}
		relayed[msg.Type]++
		total++
	}
	for msgType, n := range relayed {
		r.metrics.RecordOutboxRelayed(msgType, n)
	}
	if total > 0 {
		r.logger.Debug("outbox messages relayed", zap.Int("count", total))
	}
	return total, nil
}

// Schedule registers Poll on the cron scheduler.
func (r *OutboxRelay) Schedule(ctx context.Context, c *cron.Cron, schedule string) (cron.EntryID, error) {
	return c.AddFunc(schedule, func() {
		if _, err := r.Poll(ctx); err != nil {
			r.logger.Error("outbox relay poll failed", zap.Error(err))
		}
	})
}

// AttemptPurgeWorker consumes quiz.deleted messages and removes the attempts
// of the deleted quiz. Handling the same message twice is harmless.
type AttemptPurgeWorker struct {
	outbox   outboxTracker
	attempts attemptPurger
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewAttemptPurgeWorker constructs the worker.
func NewAttemptPurgeWorker(outbox outboxTracker, attempts attemptPurger, metrics *MetricsService, logger *zap.Logger) *AttemptPurgeWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttemptPurgeWorker{outbox: outbox, attempts: attempts, metrics: metrics, logger: logger, now: time.Now}
}

// Handle implements jobs.Handler. A returned error makes the queue retry.
func (w *AttemptPurgeWorker) Handle(ctx context.Context, job jobs.Job) error {
	msg, err := w.outbox.FindByID(ctx, job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			w.logger.Warn("outbox message vanished", zap.String("outbox_id", job.ID))
			return nil
		}
		return fmt.Errorf("load outbox message %s: %w", job.ID, err)
	}
	if msg.ProcessedAt != nil {
		return nil
	}
	payload, err := msg.QuizDeleted()
	if err != nil {
		w.logger.Error("discarding unexpected outbox message", zap.String("outbox_id", msg.ID), zap.String("type", string(msg.Type)), zap.Error(err))
		if err := w.outbox.MarkDiscarded(ctx, msg.ID, err.Error(), w.now()); err != nil {
			return fmt.Errorf("discard outbox message %s: %w", msg.ID, err)
		}
		return nil
	}

	removed, err := w.attempts.DeleteByQuizID(ctx, payload.QuizID)
	w.metrics.RecordPurge(removed, err)
	if err != nil {
		return fmt.Errorf("purge attempts of quiz %d: %w", payload.QuizID, err)
	}
	if err := w.outbox.MarkProcessed(ctx, msg.ID, w.now()); err != nil {
		return fmt.Errorf("mark outbox message %s processed: %w", msg.ID, err)
	}
	w.logger.Info("quiz attempts purged", zap.Int64("quiz_id", payload.QuizID), zap.Int64("removed", removed), zap.Int("attempt", job.Attempt))
	return nil
}

// GiveUp releases the message back to the outbox once the queue stops
// retrying, so a later relay pass replays it.
func (w *AttemptPurgeWorker) GiveUp(job jobs.Job, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.outbox.MarkFailed(ctx, job.ID, cause.Error()); err != nil {
		w.logger.Error("failed to release outbox message", zap.String("outbox_id", job.ID), zap.Error(err))
	}
}
