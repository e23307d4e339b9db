package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/quoteflow/realtime-delivery-service/internal/domain/model"
)

const (
	connKeyPrefix = "rt:connection:"
	roomKeyPrefix = "rt:room:"
)

// Interface guard
var _ Storer = (*RedisStore)(nil)

// RedisStore implements Storer on the shared Redis instance.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) SaveConnection(ctx context.Context, rec model.ConnectionRecord) error {
	if err := s.rdb.Set(ctx, connKeyPrefix+rec.ConnectionID, rec, s.ttl).Err(); err != nil {
		return fmt.Errorf("save connection %s: %w", rec.ConnectionID, err)
	}
	return nil
}

func (s *RedisStore) DeleteConnection(ctx context.Context, connectionID string) error {
	if err := s.rdb.Del(ctx, connKeyPrefix+connectionID).Err(); err != nil {
		return fmt.Errorf("delete connection %s: %w", connectionID, err)
	}
	return nil
}

func (s *RedisStore) AddRoomMember(ctx context.Context, roomID, connectionID string) error {
	key := roomKeyPrefix + roomID
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, key, connectionID)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add member %s to room %s: %w", connectionID, roomID, err)
	}
	return nil
}

func (s *RedisStore) RemoveRoomMember(ctx context.Context, roomID, connectionID string) error {
	if err := s.rdb.SRem(ctx, roomKeyPrefix+roomID, connectionID).Err(); err != nil {
		return fmt.Errorf("remove member %s from room %s: %w", connectionID, roomID, err)
	}
	return nil
}

func (s *RedisStore) RoomMembers(ctx context.Context, roomID string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, roomKeyPrefix+roomID).Result()
	if err != nil {
		return nil, fmt.Errorf("members of room %s: %w", roomID, err)
	}
	return members, nil
}

func (s *RedisStore) IncrCounter(ctx context.Context, key, field string, delta int64) error {
	if err := s.rdb.HIncrBy(ctx, key, field, delta).Err(); err != nil {
		return fmt.Errorf("increment %s.%s: %w", key, field, err)
	}
	return nil
}
