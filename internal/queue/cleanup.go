package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/quoteflow/realtime-delivery-service/internal/domain/model"
)

// StartCleanup launches the background sweep reclaiming stuck and expired
// messages.
func (q *PriorityQueue) StartCleanup() {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(q.cfg.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-q.stopCh:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), q.cfg.cleanupInterval)
				q.Sweep(ctx)
				cancel()
			}
		}
	}()
}

// Sweep applies the two cleanup rules: a message stuck in processing past
// the timeout is treated as a failed delivery and rejected with retry; a
// message older than its TTL, in any state, is dropped with a warning and
// never delivered.
func (q *PriorityQueue) Sweep(ctx context.Context) {
	q.sweepStuck(ctx)
	q.sweepExpired(ctx)
}

func (q *PriorityQueue) sweepStuck(ctx context.Context) {
	started, err := q.rdb.HGetAll(ctx, startedKey).Result()
	if err != nil {
		q.logger.Warn("cleanup: processing scan failed", "error", err)
		return
	}
	now := time.Now()
	for id, raw := range started {
		ns, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		if now.Sub(time.Unix(0, ns)) <= q.cfg.processingTimeout {
			continue
		}
		q.logger.Warn("cleanup: processing timeout", "message_id", id)
		if err := q.Reject(ctx, id, "processing timeout", true); err != nil {
			q.logger.Warn("cleanup: reject failed", "message_id", id, "error", err)
		}
	}
}

func (q *PriorityQueue) sweepExpired(ctx context.Context) {
	// Pending lists.
	for _, tier := range model.PrioritiesDesc {
		key := pendingKey(tier)
		raws, err := q.rdb.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			q.logger.Warn("cleanup: pending scan failed", "priority", tier, "error", err)
			continue
		}
		for _, raw := range raws {
			var msg model.QueuedMessage
			if err := msg.UnmarshalBinary([]byte(raw)); err != nil {
				continue
			}
			if !msg.Expired(q.cfg.messageTTL) {
				continue
			}
			if err := q.rdb.LRem(ctx, key, 1, raw).Err(); err != nil {
				q.logger.Warn("cleanup: expired removal failed", "message_id", msg.ID, "error", err)
				continue
			}
			q.observer.RecordError("queue_expired")
			q.logger.Warn("expired message dropped",
				"message_id", msg.ID,
				"connection_id", msg.ConnectionID,
				"age", time.Since(msg.EnqueuedAt),
			)
		}
	}

	// Processing set.
	inFlight, err := q.rdb.HGetAll(ctx, processingKey).Result()
	if err != nil {
		q.logger.Warn("cleanup: processing scan failed", "error", err)
		return
	}
	for id, raw := range inFlight {
		var msg model.QueuedMessage
		if err := msg.UnmarshalBinary([]byte(raw)); err != nil {
			continue
		}
		if !msg.Expired(q.cfg.messageTTL) {
			continue
		}
		pipe := q.rdb.Pipeline()
		pipe.HDel(ctx, processingKey, id)
		pipe.HDel(ctx, startedKey, id)
		if _, err := pipe.Exec(ctx); err != nil {
			q.logger.Warn("cleanup: expired removal failed", "message_id", id, "error", err)
			continue
		}
		q.observer.RecordError("queue_expired")
		q.logger.Warn("expired in-flight message dropped", "message_id", id, "age", time.Since(msg.EnqueuedAt))
	}
}
