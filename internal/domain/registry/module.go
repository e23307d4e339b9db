package registry

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	appconfig "github.com/quoteflow/realtime-delivery-service/config"
	"github.com/quoteflow/realtime-delivery-service/internal/adapter/store"
)

var Module = fx.Module("registry",
	fx.Provide(
		func(cfg *appconfig.Config, logger *slog.Logger, st store.Storer, perms PermissionChecker, observer Observer) *Broker {
			return NewBroker(logger, st, perms, observer,
				WithNodeID(cfg.Broker.NodeID),
				WithMaxConnections(cfg.Broker.MaxConnections),
				WithHeartbeatInterval(cfg.Broker.HeartbeatInterval),
				WithHeartbeatTimeoutMultiple(cfg.Broker.HeartbeatTimeoutMultiple),
				WithHealthInterval(cfg.Broker.HealthInterval),
				WithUtilizationHighWater(cfg.Broker.UtilizationHighWater),
			)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, b *Broker) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				b.StartLoops()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return b.Shutdown(ctx)
			},
		})
	}),
)
