package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quoteflow/realtime-delivery-service/internal/domain/model"
)

func TestSweepRequeuesStuckMessages(t *testing.T) {
	q := newTestQueue(t,
		WithProcessingTimeout(time.Millisecond),
		WithRetryBaseDelay(time.Millisecond),
		WithPollInterval(time.Millisecond),
	)
	ctx := context.Background()
	id := enqueue(t, q, model.PriorityNormal)

	// Dequeue and never acknowledge, simulating a crashed worker.
	msg, err := q.Dequeue(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, id, msg.ID)

	time.Sleep(5 * time.Millisecond)
	q.Sweep(ctx)

	recovered, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, recovered)
	assert.Equal(t, id, recovered.ID)
	assert.Equal(t, 1, recovered.RetryCount)
	assert.Equal(t, "processing timeout", recovered.LastError)
}

func TestSweepLeavesFreshProcessingAlone(t *testing.T) {
	q := newTestQueue(t, WithProcessingTimeout(time.Hour))
	ctx := context.Background()
	id := enqueue(t, q, model.PriorityNormal)

	_, err := q.Dequeue(ctx, 0)
	require.NoError(t, err)

	q.Sweep(ctx)

	// Still claimable by the worker that holds it.
	require.NoError(t, q.Acknowledge(ctx, id))
}

func TestSweepDropsExpiredPendingMessages(t *testing.T) {
	q := newTestQueue(t, WithMessageTTL(time.Millisecond))
	ctx := context.Background()
	enqueue(t, q, model.PriorityCritical)

	time.Sleep(5 * time.Millisecond)
	q.Sweep(ctx)

	// Dropped outright: not delivered, not dead-lettered.
	msg, err := q.Dequeue(ctx, 0)
	require.NoError(t, err)
	assert.Nil(t, msg)
	letters, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, letters)
}

func TestSweepDropsExpiredInFlightMessages(t *testing.T) {
	q := newTestQueue(t, WithMessageTTL(time.Millisecond), WithProcessingTimeout(time.Hour))
	ctx := context.Background()
	id := enqueue(t, q, model.PriorityNormal)

	_, err := q.Dequeue(ctx, 0)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	q.Sweep(ctx)

	err = q.Acknowledge(ctx, id)
	assert.ErrorIs(t, err, model.ErrMessageNotFound)
}

func TestSweepKeepsUnexpiredMessages(t *testing.T) {
	q := newTestQueue(t, WithMessageTTL(time.Hour))
	ctx := context.Background()
	id := enqueue(t, q, model.PriorityNormal)

	q.Sweep(ctx)

	msg, err := q.Dequeue(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, id, msg.ID)
}
