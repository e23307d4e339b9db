package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"go.uber.org/fx"

	"github.com/quoteflow/realtime-delivery-service/config"
)

// NewRedisClient dials the shared Redis instance, retrying the initial
// ping with exponential backoff so a slow-starting dependency does not
// fail the whole process.
func NewRedisClient(cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ping := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return client.Ping(ctx).Err()
	}
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	if err := backoff.RetryNotify(ping, policy, func(err error, next time.Duration) {
		logger.Warn("redis not reachable, retrying", "error", err, "next_attempt_in", next)
	}); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

var Module = fx.Module("store",
	fx.Provide(
		NewRedisClient,
		func(cfg *config.Config, rdb *redis.Client) *RedisStore {
			return NewRedisStore(rdb, cfg.Store.TTL)
		},
		fx.Annotate(
			func(rs *RedisStore, logger *slog.Logger) Storer {
				return NewBreakerStore(rs, logger)
			},
			fx.As(new(Storer)),
		),
	),
	fx.Invoke(func(lc fx.Lifecycle, rdb *redis.Client) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return rdb.Close()
			},
		})
	}),
)
