package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/quoteflow/realtime-delivery-service/internal/domain/model"
)

// BreakerStore decorates a Storer with a circuit breaker so a struggling
// Redis cannot stall every connection operation. gobreaker keeps a single
// state machine per breaker, so bursty failures never spawn overlapping
// reset timers.
type BreakerStore struct {
	next Storer
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerStore(next Storer, logger *slog.Logger) *BreakerStore {
	settings := gobreaker.Settings{
		Name:    "durable-store",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("store breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (s *BreakerStore) execute(fn func() error) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

func (s *BreakerStore) SaveConnection(ctx context.Context, rec model.ConnectionRecord) error {
	return s.execute(func() error { return s.next.SaveConnection(ctx, rec) })
}

func (s *BreakerStore) DeleteConnection(ctx context.Context, connectionID string) error {
	return s.execute(func() error { return s.next.DeleteConnection(ctx, connectionID) })
}

func (s *BreakerStore) AddRoomMember(ctx context.Context, roomID, connectionID string) error {
	return s.execute(func() error { return s.next.AddRoomMember(ctx, roomID, connectionID) })
}

func (s *BreakerStore) RemoveRoomMember(ctx context.Context, roomID, connectionID string) error {
	return s.execute(func() error { return s.next.RemoveRoomMember(ctx, roomID, connectionID) })
}

func (s *BreakerStore) RoomMembers(ctx context.Context, roomID string) ([]string, error) {
	var members []string
	err := s.execute(func() error {
		var innerErr error
		members, innerErr = s.next.RoomMembers(ctx, roomID)
		return innerErr
	})
	return members, err
}

func (s *BreakerStore) IncrCounter(ctx context.Context, key, field string, delta int64) error {
	return s.execute(func() error { return s.next.IncrCounter(ctx, key, field, delta) })
}
