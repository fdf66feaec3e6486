package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

// OutboxMessageType enumerates events written to the outbox.
type OutboxMessageType string

const (
	OutboxQuizDeleted OutboxMessageType = "quiz.deleted"
)

// OutboxMessage is appended in the same transaction as the change it
// announces and relayed to workers afterwards.
type OutboxMessage struct {
	ID           string            `db:"id" json:"id"`
	Type         OutboxMessageType `db:"type" json:"type"`
	AggregateID  int64             `db:"aggregate_id" json:"aggregate_id"`
	Payload      types.JSONText    `db:"payload" json:"payload"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	DispatchedAt *time.Time        `db:"dispatched_at" json:"dispatched_at,omitempty"`
	ProcessedAt  *time.Time        `db:"processed_at" json:"processed_at,omitempty"`
	Attempts     int               `db:"attempts" json:"attempts"`
	LastError    *string           `db:"last_error" json:"last_error,omitempty"`
}

// QuizDeletedPayload is the body of a quiz.deleted message.
type QuizDeletedPayload struct {
	QuizID       int64     `json:"quiz_id"`
	InstructorID int64     `json:"instructor_id"`
	DeletedAt    time.Time `json:"deleted_at"`
}

// NewQuizDeletedMessage builds the outbox row announcing a quiz deletion.
func NewQuizDeletedMessage(quizID, instructorID int64, now time.Time) (*OutboxMessage, error) {
	body, err := json.Marshal(QuizDeletedPayload{QuizID: quizID, InstructorID: instructorID, DeletedAt: now.UTC()})
	if err != nil {
		return nil, fmt.Errorf("marshal quiz deleted payload: %w", err)
	}
	return &OutboxMessage{
		ID:          uuid.NewString(),
		Type:        OutboxQuizDeleted,
		AggregateID: quizID,
		Payload:     types.JSONText(body),
		CreatedAt:   now.UTC(),
	}, nil
}

// QuizDeleted decodes the payload of a quiz.deleted message.
func (m *OutboxMessage) QuizDeleted() (QuizDeletedPayload, error) {
	var payload QuizDeletedPayload
	if m.Type != OutboxQuizDeleted {
		return payload, fmt.Errorf("outbox message %s has type %s", m.ID, m.Type)
	}
	if err := m.Payload.Unmarshal(&payload); err != nil {
		return payload, fmt.Errorf("unmarshal quiz deleted payload: %w", err)
	}
	return payload, nil
}
