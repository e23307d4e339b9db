package queue

import (
	"context"
	"log/slog"

	"github.com/go-redis/redis/v8"
	"go.uber.org/fx"

	appconfig "github.com/quoteflow/realtime-delivery-service/config"
)

var Module = fx.Module("queue",
	fx.Provide(
		func(cfg *appconfig.Config, rdb *redis.Client, logger *slog.Logger, observer Observer) *PriorityQueue {
			return New(rdb, logger, observer,
				WithMaxRetries(cfg.Queue.MaxRetries),
				WithRetryBaseDelay(cfg.Queue.RetryBaseDelay),
				WithRetryMaxDelay(cfg.Queue.RetryMaxDelay),
				WithMessageTTL(cfg.Queue.MessageTTL),
				WithProcessingTimeout(cfg.Queue.ProcessingTimeout),
				WithCleanupInterval(cfg.Queue.CleanupInterval),
			)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, q *PriorityQueue) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				q.StartCleanup()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				q.Close()
				return nil
			},
		})
	}),
)
