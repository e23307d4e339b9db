package monitor

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/quoteflow/realtime-delivery-service/config"
	"github.com/quoteflow/realtime-delivery-service/internal/domain/registry"
	"github.com/quoteflow/realtime-delivery-service/internal/queue"
)

var Module = fx.Module("monitor",
	fx.Provide(
		func(cfg *config.Config, logger *slog.Logger) *Monitor {
			return New(logger, Thresholds{
				MaxConnections: cfg.Monitor.MaxConnections,
				AvgLatency:     cfg.Monitor.AvgLatencyCeiling,
				ErrorRate:      cfg.Monitor.ErrorRateCeiling,
				MemoryBytes:    cfg.Monitor.MemoryCeilingBytes,
			})
		},
		fx.Annotate(func(m *Monitor) registry.Observer { return m }, fx.As(new(registry.Observer))),
		fx.Annotate(func(m *Monitor) queue.Observer { return m }, fx.As(new(queue.Observer))),
	),
)
