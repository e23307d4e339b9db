package amqp

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/quoteflow/realtime-delivery-service/internal/adapter/pubsub"
	"github.com/quoteflow/realtime-delivery-service/internal/domain/registry"
)

const (
	// ------------------- TOPICS (INBOUND) ----------------------
	TopicQuoteUpdated  = "quoteflow.quote.updated.v1"
	TopicAdminAlert    = "quoteflow.admin.alert.v1"
	TopicAnalyticsTick = "quoteflow.analytics.tick.v1"

	// ------------------- TOPICS (OUTBOUND) ---------------------
	TopicDeliveryReceipt = "rt-delivery.quote.delivered.v1"
	PoisonTopic          = "rt-delivery.incoming.poison"
)

// EventHandler routes platform events from AMQP into broker fan-out.
type EventHandler struct {
	broker     *registry.Broker
	logger     *slog.Logger
	dispatcher pubsub.EventDispatcher
}

func NewEventHandler(broker *registry.Broker, logger *slog.Logger, dispatcher pubsub.EventDispatcher) *EventHandler {
	return &EventHandler{broker: broker, logger: logger, dispatcher: dispatcher}
}

// RegisterHandlers mounts the table of domain listeners on the router.
func (h *EventHandler) RegisterHandlers(router *message.Router, sub message.Subscriber) error {
	poison, err := middleware.PoisonQueue(h.dispatcher.Publisher(), PoisonTopic)
	if err != nil {
		return fmt.Errorf("poison queue setup: %w", err)
	}

	configs := []struct {
		name    string
		topic   string
		handler message.NoPublishHandlerFunc
	}{
		{"on_quote_updated", TopicQuoteUpdated, Bind(h, h.OnQuoteUpdatedV1)},
		{"on_admin_alert", TopicAdminAlert, Bind(h, h.OnAdminAlertV1)},
		{"on_analytics_tick", TopicAnalyticsTick, Bind(h, h.OnAnalyticsTickV1)},
	}

	for _, c := range configs {
		router.AddNoPublisherHandler(c.name, c.topic, sub, c.handler).AddMiddleware(
			TraceIDMiddleware,
			LoggingMiddleware(h.logger),
			NewRetryMiddleware().Middleware,
			poison,
		)
	}
	return nil
}
