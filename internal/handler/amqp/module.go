package amqp

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"

	"github.com/quoteflow/realtime-delivery-service/config"
	"github.com/quoteflow/realtime-delivery-service/internal/adapter/pubsub"
)

var Module = fx.Module("amqp",
	fx.Provide(
		func(cfg *config.Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
			return pubsub.NewAMQPPublisher(cfg.AMQP.URL, logger)
		},
		func(cfg *config.Config, logger watermill.LoggerAdapter) (message.Subscriber, error) {
			return pubsub.NewAMQPSubscriber(cfg.AMQP.URL, logger)
		},
		func(pub message.Publisher) pubsub.EventDispatcher {
			return pubsub.NewEventDispatcher(pub)
		},
		func(logger watermill.LoggerAdapter) (*message.Router, error) {
			return message.NewRouter(message.RouterConfig{}, logger)
		},
		NewEventHandler,
	),
	fx.Invoke(func(lc fx.Lifecycle, h *EventHandler, router *message.Router, sub message.Subscriber) error {
		if err := h.RegisterHandlers(router, sub); err != nil {
			return err
		}
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					if err := router.Run(context.Background()); err != nil {
						h.logger.Error("amqp router stopped", "error", err)
					}
				}()
				<-router.Running()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return router.Close()
			},
		})
		return nil
	}),
)
