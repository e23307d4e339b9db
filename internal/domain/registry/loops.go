package registry

import (
	"context"
	"time"

	"github.com/quoteflow/realtime-delivery-service/internal/domain/model"
)

// StartLoops launches the heartbeat and health background loops. They run
// until Shutdown closes the stop channel.
func (b *Broker) StartLoops() {
	b.wg.Add(2)
	go b.runHeartbeat()
	go b.runHealthCheck()
}

func (b *Broker) runHeartbeat() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.sweepHeartbeats(context.Background())
		}
	}
}

// sweepHeartbeats is the only mechanism that reclaims connections whose
// peer vanished without a clean close: silence past the timeout window
// means disconnect, anything else gets a heartbeat push.
func (b *Broker) sweepHeartbeats(ctx context.Context) {
	cutoff := b.cfg.heartbeatInterval * time.Duration(b.cfg.heartbeatTimeoutMultiple)

	b.mu.RLock()
	conns := make([]*connection, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.RUnlock()

	for _, conn := range conns {
		if time.Since(conn.lastActivity()) > cutoff {
			b.logger.Info("heartbeat timeout", "connection_id", conn.id, "last_activity", conn.lastActivity())
			if err := b.Disconnect(ctx, conn.id, "heartbeat timeout", true); err != nil {
				b.logger.Debug("heartbeat disconnect", "connection_id", conn.id, "error", err)
			}
			continue
		}
		heartbeat := model.MustEnvelope(model.TypeHeartbeat, map[string]any{
			"server_time": time.Now().UTC().Format(time.RFC3339Nano),
		})
		b.notify(ctx, conn, heartbeat)
	}
}

func (b *Broker) runHealthCheck() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.checkHealth(context.Background())
		}
	}
}

// checkHealth recomputes utilization and raises a system alert into the
// reserved operations room above the high-water mark.
func (b *Broker) checkHealth(ctx context.Context) {
	stats := b.Stats()
	if stats.Utilization <= b.cfg.utilizationHighWater {
		return
	}

	b.logger.Warn("connection utilization above high-water mark",
		"utilization", stats.Utilization,
		"active", stats.ActiveConnections,
		"max", stats.MaxConnections,
	)
	alert := model.MustEnvelope(model.TypeSystemAlert, map[string]any{
		"alert":       "connection_utilization",
		"utilization": stats.Utilization,
		"active":      stats.ActiveConnections,
		"max":         stats.MaxConnections,
	})
	if _, err := b.SendToRoom(ctx, model.OperationsRoom, alert, nil); err != nil {
		b.logger.Warn("operations alert delivery failed", "error", err)
	}
}
