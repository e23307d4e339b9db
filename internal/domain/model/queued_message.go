package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// QueuedMessage wraps an Envelope for durable, retryable delivery through
// the priority queue.
type QueuedMessage struct {
	ID           string   `json:"id"`
	ConnectionID string   `json:"connection_id"`
	Envelope     Envelope `json:"envelope"`
	Priority     Priority `json:"priority"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
	RetryCount   int       `json:"retry_count"`

	// Set when the message is moved into the processing set.
	ProcessingStartedAt time.Time `json:"processing_started_at,omitzero"`
	// Last delivery failure, carried into the dead-letter set for inspection.
	LastError string `json:"last_error,omitempty"`
}

func NewQueuedMessage(env Envelope, connectionID string) QueuedMessage {
	priority := env.Priority
	if !priority.Valid() {
		priority = PriorityNormal
	}
	return QueuedMessage{
		ID:           uuid.NewString(),
		ConnectionID: connectionID,
		Envelope:     env,
		Priority:     priority,
		EnqueuedAt:   time.Now().UTC(),
	}
}

// Expired reports whether the message outlived its TTL regardless of state.
func (m QueuedMessage) Expired(ttl time.Duration) bool {
	return time.Since(m.EnqueuedAt) > ttl
}

// MarshalBinary implements encoding.BinaryMarshaler so the message can be
// handed to the Redis client directly.
func (m QueuedMessage) MarshalBinary() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *QueuedMessage) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, m)
}
