package service

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/quoteflow/realtime-delivery-service/internal/domain/registry"
	"github.com/quoteflow/realtime-delivery-service/internal/queue"
)

const permissionCacheSize = 10000

var Module = fx.Module("service",
	fx.Provide(
		fx.Annotate(
			func() (Permissioner, error) {
				return NewCachedPermissioner(AllowAll{}, permissionCacheSize)
			},
			fx.As(new(Permissioner)),
		),
		fx.Annotate(
			func(p Permissioner) registry.PermissionChecker { return p },
			fx.As(new(registry.PermissionChecker)),
		),
		func(q *queue.PriorityQueue, b *registry.Broker, logger *slog.Logger) *DeliveryWorker {
			return NewDeliveryWorker(q, b, logger)
		},
	),

	// Intercept the permissioner to add outcome logging.
	fx.Decorate(func(orig Permissioner, logger *slog.Logger) Permissioner {
		return NewPermissionMiddleware(orig, logger)
	}),

	fx.Invoke(func(lc fx.Lifecycle, w *DeliveryWorker) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				w.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				w.Stop()
				return nil
			},
		})
	}),
)
