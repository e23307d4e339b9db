package cmd

import (
	"go.uber.org/fx"

	"github.com/quoteflow/realtime-delivery-service/config"
	httpsrv "github.com/quoteflow/realtime-delivery-service/infra/server/http"
	"github.com/quoteflow/realtime-delivery-service/internal/adapter/store"
	"github.com/quoteflow/realtime-delivery-service/internal/domain/registry"
	amqphandler "github.com/quoteflow/realtime-delivery-service/internal/handler/amqp"
	wshandler "github.com/quoteflow/realtime-delivery-service/internal/handler/ws"
	"github.com/quoteflow/realtime-delivery-service/internal/monitor"
	"github.com/quoteflow/realtime-delivery-service/internal/queue"
	"github.com/quoteflow/realtime-delivery-service/internal/service"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
		),
		store.Module,
		monitor.Module,
		registry.Module,
		queue.Module,
		service.Module,
		wshandler.Module,
		amqphandler.Module,
		httpsrv.Module,
	)
}
