package amqp

import (
	"context"
	"encoding/json"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill/message"
)

// DomainHandler defines the functional signature for business logic.
type DomainHandler[T any] func(ctx context.Context, payload *T) error

// Bind connects a watermill subscription to domain logic, handling panic
// recovery and poison-pill protection.
func Bind[T any](h *EventHandler, fn DomainHandler[T]) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("panic recovered in amqp handler",
					"err", r,
					"stack", string(debug.Stack()),
					"msg_id", msg.UUID,
				)
			}
		}()

		payload := new(T)
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			h.logger.Error("event decode failed", "err", err, "msg_id", msg.UUID)
			return nil // ACK: an undecodable payload will never succeed.
		}

		// Business failure triggers the retry middleware, then poison.
		return fn(msg.Context(), payload)
	}
}
