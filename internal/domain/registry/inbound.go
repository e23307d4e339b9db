package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/quoteflow/realtime-delivery-service/internal/domain/model"
)

// HandleInbound validates and dispatches one raw client frame. Validation
// failures are answered with an explicit error envelope and leave the
// connection open; there is no silent ignore.
func (b *Broker) HandleInbound(ctx context.Context, connectionID string, raw []byte) error {
	b.mu.RLock()
	conn, ok := b.conns[connectionID]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("inbound from %s: %w", connectionID, model.ErrConnectionNotFound)
	}
	conn.touch()
	b.observer.RecordMessageReceived()

	msg, err := model.ParseInbound(raw)
	if err != nil {
		b.observer.RecordError("validation")
		b.sendError(ctx, conn, err.Error())
		return err
	}

	switch msg.Type {
	case model.TypePing:
		pong := model.MustEnvelope(model.TypePong, map[string]any{
			"server_time": time.Now().UTC().Format(time.RFC3339Nano),
		})
		b.notify(ctx, conn, pong)
		return nil

	case model.TypeSubscribe:
		if msg.RoomID == "" {
			err := model.NewValidationError("room_id")
			b.observer.RecordError("validation")
			b.sendError(ctx, conn, err.Error())
			return err
		}
		if err := b.SubscribeToRoom(ctx, connectionID, msg.RoomID); err != nil {
			b.sendError(ctx, conn, err.Error())
			return err
		}
		return nil

	case model.TypeUnsubscribe:
		if msg.RoomID == "" {
			err := model.NewValidationError("room_id")
			b.observer.RecordError("validation")
			b.sendError(ctx, conn, err.Error())
			return err
		}
		if err := b.UnsubscribeFromRoom(ctx, connectionID, msg.RoomID); err != nil {
			b.sendError(ctx, conn, err.Error())
			return err
		}
		return nil

	default:
		err := model.NewValidationError("type", model.InboundTypes...)
		b.observer.RecordError("validation")
		b.sendError(ctx, conn, fmt.Sprintf("unknown message type %q", msg.Type))
		return fmt.Errorf("message type %q: %w", msg.Type, err)
	}
}

func (b *Broker) sendError(ctx context.Context, conn *connection, detail string) {
	errEnv := model.MustEnvelope(model.TypeError, map[string]any{
		"error":           detail,
		"supported_types": model.InboundTypes,
	})
	b.notify(ctx, conn, errEnv)
}
