package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/learning-center-api/internal/models"
)

const outboxColumns = `id, type, aggregate_id, payload, created_at, dispatched_at, processed_at, attempts, last_error`

// OutboxRepository stores messages written alongside domain changes.
type OutboxRepository struct {
	db *sqlx.DB
}

// NewOutboxRepository constructs the repository.
func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Insert appends a message inside the caller's transaction.
func (r *OutboxRepository) Insert(ctx context.Context, tx *sqlx.Tx, msg *models.OutboxMessage) error {
	if len(msg.Payload) == 0 {
		msg.Payload = types.JSONText(`{}`)
	}
	const query = `INSERT INTO outbox_messages (id, type, aggregate_id, payload, created_at, attempts) VALUES ($1, $2, $3, $4, $5, 0)`
	if _, err := tx.ExecContext(ctx, query, msg.ID, msg.Type, msg.AggregateID, msg.Payload, msg.CreatedAt); err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// ClaimPending leases up to limit unprocessed messages whose previous lease
// expired. Concurrent relays skip rows another relay is claiming.
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int, lease time.Duration, now time.Time) ([]models.OutboxMessage, error) {
	const query = `UPDATE outbox_messages SET dispatched_at = $1, attempts = attempts + 1
WHERE id IN (
	SELECT id FROM outbox_messages
	WHERE processed_at IS NULL AND (dispatched_at IS NULL OR dispatched_at < $2)
	ORDER BY created_at ASC
	LIMIT $3
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + outboxColumns
	var messages []models.OutboxMessage
	if err := r.db.SelectContext(ctx, &messages, query, now.UTC(), now.Add(-lease).UTC(), limit); err != nil {
		return nil, fmt.Errorf("claim outbox messages: %w", err)
	}
	return messages, nil
}

// FindByID returns a message.
func (r *OutboxRepository) FindByID(ctx context.Context, id string) (*models.OutboxMessage, error) {
	const query = `SELECT ` + outboxColumns + ` FROM outbox_messages WHERE id = $1`
	var msg models.OutboxMessage
	if err := r.db.GetContext(ctx, &msg, query, id); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkProcessed records successful handling.
func (r *OutboxRepository) MarkProcessed(ctx context.Context, id string, now time.Time) error {
	const query = `UPDATE outbox_messages SET processed_at = $2, last_error = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, now.UTC()); err != nil {
		return fmt.Errorf("mark outbox message processed: %w", err)
	}
	return nil
}

// MarkDiscarded settles a message that can never be handled, keeping the
// reason in last_error so it is not relayed again.
func (r *OutboxRepository) MarkDiscarded(ctx context.Context, id string, reason string, now time.Time) error {
	const query = `UPDATE outbox_messages SET processed_at = $3, last_error = $2 WHERE id = $1 AND processed_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, reason, now.UTC()); err != nil {
		return fmt.Errorf("mark outbox message discarded: %w", err)
	}
	return nil
}

// MarkFailed releases the lease so the next relay pass picks the message up again.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	const query = `UPDATE outbox_messages SET dispatched_at = NULL, last_error = $2 WHERE id = $1 AND processed_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, reason); err != nil {
		return fmt.Errorf("mark outbox message failed: %w", err)
	}
	return nil
}
