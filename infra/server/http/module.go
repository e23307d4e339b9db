package http

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/quoteflow/realtime-delivery-service/config"
	"github.com/quoteflow/realtime-delivery-service/internal/domain/registry"
	"github.com/quoteflow/realtime-delivery-service/internal/handler/ws"
	"github.com/quoteflow/realtime-delivery-service/internal/monitor"
	"github.com/quoteflow/realtime-delivery-service/internal/queue"
)

var Module = fx.Module("http",
	fx.Provide(
		func(cfg *config.Config, logger *slog.Logger, wsHandler *ws.WSHandler, broker *registry.Broker, mon *monitor.Monitor, pq *queue.PriorityQueue) *Server {
			return NewServer(cfg.HTTP.Addr, logger, wsHandler, broker, mon, pq)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, s *Server) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				s.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return s.Stop(ctx)
			},
		})
	}),
)
