package queue

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quoteflow/realtime-delivery-service/internal/domain/model"
)

type nopObserver struct{}

func (nopObserver) RecordError(string) {}

func newTestQueue(t *testing.T, opts ...Option) *PriorityQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	q := New(rdb, slog.Default(), nopObserver{}, opts...)
	t.Cleanup(q.Close)
	return q
}

func enqueue(t *testing.T, q *PriorityQueue, p model.Priority) string {
	t.Helper()
	env := model.MustEnvelope("quote_update", map[string]any{"tier": p.String()}).WithPriority(p)
	id, err := q.Enqueue(context.Background(), env, "c1")
	require.NoError(t, err)
	return id
}

func TestEnqueueValidation(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, model.Envelope{}, "c1")
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "type", verr.Field)

	_, err = q.Enqueue(ctx, model.MustEnvelope("quote_update", nil), "")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "connection_id", verr.Field)
}

func TestEnqueueDefaultsToNormalPriority(t *testing.T) {
	q := newTestQueue(t)
	env := model.MustEnvelope("quote_update", nil)
	env.Priority = 0

	_, err := q.Enqueue(context.Background(), env, "c1")
	require.NoError(t, err)

	msg, err := q.Dequeue(context.Background(), 0)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, model.PriorityNormal, msg.Priority)
}

func TestDequeueEmptyTimesOut(t *testing.T) {
	q := newTestQueue(t, WithPollInterval(time.Millisecond))

	start := time.Now()
	msg, err := q.Dequeue(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestDequeueStrictPriorityOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	// Enqueued in ascending urgency; must come back in descending urgency.
	enqueue(t, q, model.PriorityLow)
	enqueue(t, q, model.PriorityNormal)
	enqueue(t, q, model.PriorityHigh)
	enqueue(t, q, model.PriorityCritical)

	var got []model.Priority
	for i := 0; i < 4; i++ {
		msg, err := q.Dequeue(ctx, 0)
		require.NoError(t, err)
		require.NotNil(t, msg)
		got = append(got, msg.Priority)
	}
	assert.Equal(t, model.PrioritiesDesc, got)
}

func TestDequeuePreemptsLowerTiers(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	enqueue(t, q, model.PriorityLow)
	enqueue(t, q, model.PriorityLow)
	enqueue(t, q, model.PriorityCritical)

	msg, err := q.Dequeue(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, model.PriorityCritical, msg.Priority,
		"a pending critical message must preempt earlier low ones")
}

func TestDequeueSameTierIsFIFO(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	first := enqueue(t, q, model.PriorityNormal)
	second := enqueue(t, q, model.PriorityNormal)

	msg, err := q.Dequeue(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, first, msg.ID)

	msg, err = q.Dequeue(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, second, msg.ID)
}

func TestAcknowledgeRemovesFromProcessing(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	id := enqueue(t, q, model.PriorityNormal)

	msg, err := q.Dequeue(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, id, msg.ID)
	assert.False(t, msg.ProcessingStartedAt.IsZero())

	require.NoError(t, q.Acknowledge(ctx, id))

	// A second acknowledge has nothing to claim.
	err = q.Acknowledge(ctx, id)
	assert.ErrorIs(t, err, model.ErrMessageNotFound)
}

func TestAcknowledgeUnknownMessage(t *testing.T) {
	q := newTestQueue(t)
	err := q.Acknowledge(context.Background(), "never-enqueued")
	assert.ErrorIs(t, err, model.ErrMessageNotFound)
}

func TestRejectWithRetryRequeuesSameTier(t *testing.T) {
	q := newTestQueue(t, WithRetryBaseDelay(time.Millisecond), WithPollInterval(time.Millisecond))
	ctx := context.Background()
	id := enqueue(t, q, model.PriorityHigh)

	msg, err := q.Dequeue(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, id, msg.ID)

	require.NoError(t, q.Reject(ctx, id, "socket write failed", true))

	retried, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, retried)
	assert.Equal(t, id, retried.ID)
	assert.Equal(t, model.PriorityHigh, retried.Priority)
	assert.Equal(t, 1, retried.RetryCount)
	assert.Equal(t, "socket write failed", retried.LastError)
}

func TestRejectExhaustedGoesToDeadLetter(t *testing.T) {
	q := newTestQueue(t,
		WithMaxRetries(1),
		WithRetryBaseDelay(time.Millisecond),
		WithPollInterval(time.Millisecond),
	)
	ctx := context.Background()
	id := enqueue(t, q, model.PriorityNormal)

	// Attempt 1 fails, retried once.
	msg, err := q.Dequeue(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, id, msg.ID)
	require.NoError(t, q.Reject(ctx, id, "attempt 1 failed", true))

	// Attempt 2 fails; retries are exhausted.
	msg, err = q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.NoError(t, q.Reject(ctx, id, "attempt 2 failed", true))

	// Nothing pending anywhere: dead-lettered, not re-enqueued.
	msg, err = q.Dequeue(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, msg)

	letters, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, id, letters[0].ID)
	assert.Equal(t, 1, letters[0].RetryCount)
	assert.Equal(t, "attempt 2 failed", letters[0].LastError)
}

func TestRejectWithoutRetryDeadLettersImmediately(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	id := enqueue(t, q, model.PriorityNormal)

	_, err := q.Dequeue(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, q.Reject(ctx, id, "poison payload", false))

	letters, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, 0, letters[0].RetryCount)
}

func TestRejectUnknownMessage(t *testing.T) {
	q := newTestQueue(t)
	err := q.Reject(context.Background(), "never-enqueued", "whatever", true)
	assert.ErrorIs(t, err, model.ErrMessageNotFound)
}

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	q := newTestQueue(t,
		WithRetryBaseDelay(100*time.Millisecond),
		WithRetryMaxDelay(time.Second),
	)

	assert.Equal(t, 100*time.Millisecond, q.retryDelay(0))
	assert.Equal(t, 200*time.Millisecond, q.retryDelay(1))
	assert.Equal(t, 400*time.Millisecond, q.retryDelay(2))
	assert.Equal(t, 800*time.Millisecond, q.retryDelay(3))
	assert.Equal(t, time.Second, q.retryDelay(4))
	assert.Equal(t, time.Second, q.retryDelay(63), "shift overflow must clamp to the cap")
}

func TestGetStats(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	ackID := enqueue(t, q, model.PriorityCritical)
	enqueue(t, q, model.PriorityCritical)
	enqueue(t, q, model.PriorityLow)

	_, err := q.Dequeue(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, q.Acknowledge(ctx, ackID))

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, len(model.PrioritiesDesc))

	byTier := make(map[model.Priority]model.QueueStats, len(stats))
	for _, s := range stats {
		byTier[s.Priority] = s
	}
	assert.Equal(t, int64(1), byTier[model.PriorityCritical].Pending)
	assert.Equal(t, int64(1), byTier[model.PriorityLow].Pending)
	assert.Equal(t, int64(0), byTier[model.PriorityCritical].Processing)
}

func TestGetStatsCountsProcessingAndDeadLetters(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	deadID := enqueue(t, q, model.PriorityHigh)
	enqueue(t, q, model.PriorityHigh)

	_, err := q.Dequeue(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, q.Reject(ctx, deadID, "bad", false))

	_, err = q.Dequeue(ctx, 0)
	require.NoError(t, err)

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	for _, s := range stats {
		if s.Priority != model.PriorityHigh {
			continue
		}
		assert.Equal(t, int64(0), s.Pending)
		assert.Equal(t, int64(1), s.Processing)
		assert.Equal(t, int64(1), s.DeadLettered)
	}
}
