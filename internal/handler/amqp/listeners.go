package amqp

import (
	"context"
	"fmt"

	"github.com/quoteflow/realtime-delivery-service/internal/domain/model"
)

// OnQuoteUpdatedV1 fans a quote update into the quote's room. Nodes
// without local members for the room acknowledge without work: the event
// is handled by whichever instance holds the subscribers.
func (h *EventHandler) OnQuoteUpdatedV1(ctx context.Context, p *QuoteUpdateV1) error {
	if p.QuoteID == "" {
		h.logger.Warn("quote update without quote_id dropped")
		return nil
	}
	roomID := model.RoomTypeQuote + ":" + p.QuoteID
	if h.broker.RoomMemberCount(roomID) == 0 {
		return nil
	}

	env, err := model.NewEnvelope("quote_update", map[string]any{
		"quote_id":   p.QuoteID,
		"status":     p.Status,
		"premium":    p.Premium,
		"updated_by": p.UpdatedBy,
	})
	if err != nil {
		return fmt.Errorf("quote update envelope: %w", err)
	}

	delivered, err := h.broker.SendToRoom(ctx, roomID, env.WithPriority(model.PriorityHigh), nil)
	if err != nil {
		return fmt.Errorf("quote update fan-out: %w", err)
	}

	receipt := DeliveryReceiptV1{QuoteID: p.QuoteID, Delivered: delivered}
	if err := h.dispatcher.Publish(ctx, TopicDeliveryReceipt, receipt); err != nil {
		// Receipts are best effort; delivery already happened.
		h.logger.Warn("delivery receipt publish failed", "quote_id", p.QuoteID, "error", err)
	}
	return nil
}

// OnAdminAlertV1 routes an operational alert: critical severity without a
// target escalates to a full broadcast, everything else stays in its
// admin room.
func (h *EventHandler) OnAdminAlertV1(ctx context.Context, p *AdminAlertV1) error {
	env, err := model.NewEnvelope("admin_alert", map[string]any{
		"alert_id": p.AlertID,
		"severity": p.Severity,
		"title":    p.Title,
		"text":     p.Text,
	})
	if err != nil {
		return fmt.Errorf("admin alert envelope: %w", err)
	}
	env = env.WithPriority(model.PriorityCritical)

	if p.Severity == "critical" && p.TargetID == "" {
		if _, err := h.broker.Broadcast(ctx, env, nil); err != nil {
			return fmt.Errorf("admin alert broadcast: %w", err)
		}
		return nil
	}

	roomID := model.RoomTypeAdmin + ":" + p.TargetID
	if p.TargetID == "" {
		roomID = model.OperationsRoom
	}
	if _, err := h.broker.SendToRoom(ctx, roomID, env, nil); err != nil {
		return fmt.Errorf("admin alert fan-out: %w", err)
	}
	return nil
}

// OnAnalyticsTickV1 pushes a dashboard snapshot into its analytics room.
func (h *EventHandler) OnAnalyticsTickV1(ctx context.Context, p *AnalyticsTickV1) error {
	if p.DashboardID == "" {
		h.logger.Warn("analytics tick without dashboard_id dropped")
		return nil
	}
	roomID := model.RoomTypeAnalytics + ":" + p.DashboardID
	if h.broker.RoomMemberCount(roomID) == 0 {
		return nil
	}

	env, err := model.NewEnvelope("analytics_tick", map[string]any{
		"dashboard_id": p.DashboardID,
		"metrics":      p.Metrics,
	})
	if err != nil {
		return fmt.Errorf("analytics tick envelope: %w", err)
	}
	if _, err := h.broker.SendToRoom(ctx, roomID, env.WithPriority(model.PriorityLow), nil); err != nil {
		return fmt.Errorf("analytics tick fan-out: %w", err)
	}
	return nil
}
