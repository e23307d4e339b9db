// Package queue implements the Redis-backed multi-priority delivery queue
// with retry and dead-letter semantics.
//
// Layout in Redis: one pending list per tier, a processing hash holding
// in-flight messages, a parallel hash of processing start timestamps, one
// dead-letter list, and a per-tier aggregate counter hash.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/quoteflow/realtime-delivery-service/internal/domain/model"
)

const (
	pendingKeyPrefix = "rt:queue:pending:"
	processingKey    = "rt:queue:processing"
	startedKey       = "rt:queue:processing_started"
	deadLetterKey    = "rt:queue:deadletter"
	statsKeyPrefix   = "rt:queue:stats:"
)

// dequeueScript pops the head of one pending list and moves it into the
// processing set in a single Redis round-trip, so a crash between dequeue
// and acknowledge leaves the message visible to the cleanup sweep.
var dequeueScript = redis.NewScript(`
local raw = redis.call('LPOP', KEYS[1])
if not raw then
	return false
end
local msg = cjson.decode(raw)
redis.call('HSET', KEYS[2], msg.id, raw)
redis.call('HSET', KEYS[3], msg.id, ARGV[1])
return raw
`)

// Observer receives queue failure events; implementations must never raise
// back into the queue.
type Observer interface {
	RecordError(kind string)
}

type PriorityQueue struct {
	rdb      *redis.Client
	logger   *slog.Logger
	observer Observer
	cfg      config

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(rdb *redis.Client, logger *slog.Logger, observer Observer, opts ...Option) *PriorityQueue {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &PriorityQueue{
		rdb:      rdb,
		logger:   logger,
		observer: observer,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}
}

func pendingKey(p model.Priority) string { return pendingKeyPrefix + p.String() }
func statsKey(p model.Priority) string   { return statsKeyPrefix + p.String() }

// Enqueue appends the envelope to the tier matching its declared priority.
func (q *PriorityQueue) Enqueue(ctx context.Context, env model.Envelope, connectionID string) (string, error) {
	if env.Type == "" {
		return "", model.NewValidationError("type")
	}
	if connectionID == "" {
		return "", model.NewValidationError("connection_id")
	}
	msg := model.NewQueuedMessage(env, connectionID)
	if err := q.rdb.RPush(ctx, pendingKey(msg.Priority), msg).Err(); err != nil {
		q.observer.RecordError("queue_enqueue")
		return "", fmt.Errorf("enqueue %s: %w", msg.ID, err)
	}
	if err := q.rdb.HIncrBy(ctx, statsKey(msg.Priority), "enqueued", 1).Err(); err != nil {
		q.logger.Warn("queue counter update failed", "priority", msg.Priority, "error", err)
	}
	return msg.ID, nil
}

// Dequeue polls the tiers strictly in priority order: a lower-priority
// message is never returned while a higher-priority one is pending.
// Returns (nil, nil) when the timeout elapses with nothing pending.
func (q *PriorityQueue) Dequeue(ctx context.Context, timeout time.Duration) (*model.QueuedMessage, error) {
	deadline := time.Now().Add(timeout)
	for {
		for _, tier := range model.PrioritiesDesc {
			now := time.Now()
			raw, err := dequeueScript.Run(ctx, q.rdb,
				[]string{pendingKey(tier), processingKey, startedKey},
				now.UnixNano(),
			).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				q.observer.RecordError("queue_dequeue")
				return nil, fmt.Errorf("dequeue from %s: %w", tier, err)
			}
			payload, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("dequeue from %s: unexpected script reply %T", tier, raw)
			}
			var msg model.QueuedMessage
			if err := msg.UnmarshalBinary([]byte(payload)); err != nil {
				return nil, fmt.Errorf("decode dequeued message: %w", err)
			}
			msg.ProcessingStartedAt = now
			return &msg, nil
		}

		if !time.Now().Before(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.stopCh:
			return nil, nil
		case <-time.After(q.cfg.pollInterval):
		}
	}
}

// Acknowledge removes a delivered message from the processing set. It fails
// for a message that is not there: already acknowledged, expired, or never
// dequeued.
func (q *PriorityQueue) Acknowledge(ctx context.Context, messageID string) error {
	msg, startedAt, err := q.takeProcessing(ctx, messageID)
	if err != nil {
		return fmt.Errorf("acknowledge %s: %w", messageID, err)
	}

	latency := time.Since(startedAt)
	pipe := q.rdb.Pipeline()
	pipe.HIncrBy(ctx, statsKey(msg.Priority), "delivered", 1)
	pipe.HIncrBy(ctx, statsKey(msg.Priority), "latency_ns_total", latency.Nanoseconds())
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Warn("queue counter update failed", "message_id", messageID, "error", err)
	}
	return nil
}

// Reject removes a message from processing and either re-enqueues it with
// an exponential delay or dead-letters it once retries are exhausted. A
// message is never both re-enqueued and dead-lettered.
func (q *PriorityQueue) Reject(ctx context.Context, messageID, cause string, retry bool) error {
	msg, _, err := q.takeProcessing(ctx, messageID)
	if err != nil {
		return fmt.Errorf("reject %s: %w", messageID, err)
	}
	msg.LastError = cause
	msg.ProcessingStartedAt = time.Time{}

	if retry && msg.RetryCount < q.cfg.maxRetries {
		msg.RetryCount++
		delay := q.retryDelay(msg.RetryCount - 1)
		q.logger.Debug("message scheduled for retry",
			"message_id", msg.ID,
			"retry_count", msg.RetryCount,
			"delay", delay,
			"cause", cause,
		)
		q.scheduleRequeue(*msg, delay)
		if err := q.rdb.HIncrBy(ctx, statsKey(msg.Priority), "retried", 1).Err(); err != nil {
			q.logger.Warn("queue counter update failed", "message_id", messageID, "error", err)
		}
		return nil
	}

	if err := q.rdb.RPush(ctx, deadLetterKey, msg).Err(); err != nil {
		q.observer.RecordError("queue_deadletter")
		return fmt.Errorf("dead-letter %s: %w", messageID, err)
	}
	if err := q.rdb.HIncrBy(ctx, statsKey(msg.Priority), "failed", 1).Err(); err != nil {
		q.logger.Warn("queue counter update failed", "message_id", messageID, "error", err)
	}
	q.observer.RecordError("queue_exhausted")
	q.logger.Warn("message dead-lettered",
		"message_id", msg.ID,
		"connection_id", msg.ConnectionID,
		"attempts", msg.RetryCount+1,
		"cause", cause,
	)
	return nil
}

// takeProcessing atomically claims a message out of the processing set.
func (q *PriorityQueue) takeProcessing(ctx context.Context, messageID string) (*model.QueuedMessage, time.Time, error) {
	payload, err := q.rdb.HGet(ctx, processingKey, messageID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, model.ErrMessageNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	startedRaw, _ := q.rdb.HGet(ctx, startedKey, messageID).Result()

	removed, err := q.rdb.HDel(ctx, processingKey, messageID).Result()
	if err != nil {
		return nil, time.Time{}, err
	}
	if removed == 0 {
		// Lost the race against a concurrent acknowledge/reject.
		return nil, time.Time{}, model.ErrMessageNotFound
	}
	_ = q.rdb.HDel(ctx, startedKey, messageID).Err()

	var msg model.QueuedMessage
	if err := msg.UnmarshalBinary([]byte(payload)); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode processing message: %w", err)
	}

	startedAt := time.Now()
	if ns, parseErr := strconv.ParseInt(startedRaw, 10, 64); parseErr == nil {
		startedAt = time.Unix(0, ns)
	}
	return &msg, startedAt, nil
}

// retryDelay is deterministic given the retry count: base * 2^count, capped.
func (q *PriorityQueue) retryDelay(retryCount int) time.Duration {
	delay := q.cfg.retryBaseDelay << retryCount
	if delay > q.cfg.retryMaxDelay || delay <= 0 {
		return q.cfg.retryMaxDelay
	}
	return delay
}

// scheduleRequeue re-appends the message to its tier after the delay.
// Retries keep the original priority tier. Shutdown flushes pending timers
// immediately so no retry is lost.
func (q *PriorityQueue) scheduleRequeue(msg model.QueuedMessage, delay time.Duration) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		select {
		case <-time.After(delay):
		case <-q.stopCh:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := q.rdb.RPush(ctx, pendingKey(msg.Priority), msg).Err(); err != nil {
			q.observer.RecordError("queue_requeue")
			q.logger.Error("retry re-enqueue failed", "message_id", msg.ID, "error", err)
		}
	}()
}

// DeadLetters returns up to limit dead-lettered messages for inspection,
// newest last. They are left in place.
func (q *PriorityQueue) DeadLetters(ctx context.Context, limit int64) ([]model.QueuedMessage, error) {
	raws, err := q.rdb.LRange(ctx, deadLetterKey, -limit, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read dead letters: %w", err)
	}
	out := make([]model.QueuedMessage, 0, len(raws))
	for _, raw := range raws {
		var msg model.QueuedMessage
		if err := msg.UnmarshalBinary([]byte(raw)); err != nil {
			q.logger.Warn("undecodable dead letter skipped", "error", err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// GetStats reports per-priority pending/processing/dead-letter counts and
// the average processing latency.
func (q *PriorityQueue) GetStats(ctx context.Context) ([]model.QueueStats, error) {
	processingByTier, deadByTier, err := q.countByTier(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.QueueStats, 0, len(model.PrioritiesDesc))
	for _, tier := range model.PrioritiesDesc {
		pending, err := q.rdb.LLen(ctx, pendingKey(tier)).Result()
		if err != nil {
			return nil, fmt.Errorf("stats for %s: %w", tier, err)
		}
		counters, err := q.rdb.HGetAll(ctx, statsKey(tier)).Result()
		if err != nil {
			return nil, fmt.Errorf("stats for %s: %w", tier, err)
		}
		delivered, _ := strconv.ParseInt(counters["delivered"], 10, 64)
		latencyTotal, _ := strconv.ParseInt(counters["latency_ns_total"], 10, 64)
		var avg time.Duration
		if delivered > 0 {
			avg = time.Duration(latencyTotal / delivered)
		}
		out = append(out, model.QueueStats{
			Priority:      tier,
			Pending:       pending,
			Processing:    processingByTier[tier],
			DeadLettered:  deadByTier[tier],
			AvgProcessing: avg,
		})
	}
	return out, nil
}

func (q *PriorityQueue) countByTier(ctx context.Context) (map[model.Priority]int64, map[model.Priority]int64, error) {
	processing := make(map[model.Priority]int64)
	dead := make(map[model.Priority]int64)

	inFlight, err := q.rdb.HVals(ctx, processingKey).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("scan processing set: %w", err)
	}
	for _, raw := range inFlight {
		var msg model.QueuedMessage
		if err := msg.UnmarshalBinary([]byte(raw)); err == nil {
			processing[msg.Priority]++
		}
	}

	letters, err := q.rdb.LRange(ctx, deadLetterKey, 0, -1).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("scan dead letters: %w", err)
	}
	for _, raw := range letters {
		var msg model.QueuedMessage
		if err := msg.UnmarshalBinary([]byte(raw)); err == nil {
			dead[msg.Priority]++
		}
	}
	return processing, dead, nil
}

// Close stops the cleanup loop and waits for in-flight retry timers.
func (q *PriorityQueue) Close() {
	close(q.stopCh)
	q.wg.Wait()
}
