// Package registry owns the live connection registry, room membership,
// message sequencing and the send/broadcast fan-out paths.
//
// All registry and room mutation happens inside short critical sections
// guarded by a single RWMutex; transport writes and durable-store
// round-trips are always performed outside of it. Per-connection write
// serialization lives on the connection itself.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quoteflow/realtime-delivery-service/internal/adapter/store"
	"github.com/quoteflow/realtime-delivery-service/internal/domain/model"
)

// Observer receives broker lifecycle events. Implementations must be
// non-blocking and must never raise back into the broker.
type Observer interface {
	RecordConnectionEstablished(connectionID string)
	RecordConnectionClosed(connectionID string)
	RecordMessageSent(latency time.Duration)
	RecordMessageReceived()
	RecordRoomSubscription(roomID string)
	RecordError(kind string)
}

// NopObserver is the default when no monitor is attached.
type NopObserver struct{}

func (NopObserver) RecordConnectionEstablished(string) {}
func (NopObserver) RecordConnectionClosed(string)      {}
func (NopObserver) RecordMessageSent(time.Duration)    {}
func (NopObserver) RecordMessageReceived()             {}
func (NopObserver) RecordRoomSubscription(string)      {}
func (NopObserver) RecordError(string)                 {}

// PermissionChecker answers allow/deny for a (subject, permission) pair.
type PermissionChecker interface {
	Check(ctx context.Context, subjectID, permission string) (bool, error)
}

// Broker is the connection manager: a single owning instance per process,
// never a package-level global.
type Broker struct {
	cfg      config
	logger   *slog.Logger
	store    store.Storer
	perms    PermissionChecker
	observer Observer

	mu    sync.RWMutex
	conns map[string]*connection
	rooms map[string]map[string]struct{}

	startedAt time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewBroker(logger *slog.Logger, st store.Storer, perms PermissionChecker, observer Observer, opts ...Option) *Broker {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Broker{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		perms:     perms,
		observer:  observer,
		conns:     make(map[string]*connection),
		rooms:     make(map[string]map[string]struct{}),
		startedAt: time.Now(),
		stopCh:    make(chan struct{}),
	}
}

// Connect registers an accepted transport under the caller-supplied
// connection id. On any failure after local registration, all local state
// is rolled back so a partial registration is never observable.
func (b *Broker) Connect(ctx context.Context, t Transport, connectionID, subjectID string, metadata map[string]string) error {
	conn := newConnection(t, connectionID, subjectID, metadata)

	b.mu.Lock()
	if _, exists := b.conns[connectionID]; exists {
		b.mu.Unlock()
		return fmt.Errorf("connect %s: %w", connectionID, model.ErrAlreadyRegistered)
	}
	if len(b.conns) >= b.cfg.maxConnections {
		b.mu.Unlock()
		b.observer.RecordError("capacity")
		return fmt.Errorf("connect %s: %w (limit %d)", connectionID, model.ErrCapacityReached, b.cfg.maxConnections)
	}
	b.conns[connectionID] = conn
	active := len(b.conns)
	b.mu.Unlock()

	rec := model.ConnectionRecord{
		ConnectionID: connectionID,
		SubjectID:    subjectID,
		NodeID:       b.cfg.nodeID,
		ConnectedAt:  conn.connectedAt,
	}
	if err := b.store.SaveConnection(ctx, rec); err != nil {
		b.unregister(connectionID)
		b.observer.RecordError("persistence")
		return fmt.Errorf("persist connection %s: %w", connectionID, err)
	}

	welcome := model.MustEnvelope(model.TypeWelcome, map[string]any{
		"connection_id":      connectionID,
		"active_connections": active,
		"max_connections":    b.cfg.maxConnections,
	})
	if err := conn.write(welcome); err != nil {
		// A connection that cannot receive its first message is not live.
		b.unregister(connectionID)
		if delErr := b.store.DeleteConnection(ctx, connectionID); delErr != nil {
			b.logger.Warn("welcome rollback: store delete failed", "connection_id", connectionID, "error", delErr)
		}
		_ = t.Close()
		b.observer.RecordError("transport")
		return fmt.Errorf("welcome send to %s: %w: %v", connectionID, model.ErrTransportClosed, err)
	}

	b.observer.RecordConnectionEstablished(connectionID)
	b.logger.Info("connection established",
		"connection_id", connectionID,
		"subject_id", subjectID,
		"active", active,
	)
	return nil
}

func (b *Broker) unregister(connectionID string) {
	b.mu.Lock()
	delete(b.conns, connectionID)
	b.mu.Unlock()
}

type roomEviction struct {
	roomID    string
	remaining []*connection
}

// Disconnect tears down a connection: optional peer notification, room
// evictions with member-left fan-out, transport close, bookkeeping and
// durable-record removal. A second call for the same id fails cleanly.
func (b *Broker) Disconnect(ctx context.Context, connectionID, reason string, skipNotification bool) error {
	b.mu.Lock()
	conn, ok := b.conns[connectionID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("disconnect %s: %w", connectionID, model.ErrConnectionNotFound)
	}
	delete(b.conns, connectionID)

	var evictions []roomEviction
	for roomID, members := range b.rooms {
		if _, in := members[connectionID]; !in {
			continue
		}
		delete(members, connectionID)
		remaining := make([]*connection, 0, len(members))
		for id := range members {
			if c, live := b.conns[id]; live {
				remaining = append(remaining, c)
			}
		}
		if len(members) == 0 {
			delete(b.rooms, roomID)
		}
		evictions = append(evictions, roomEviction{roomID: roomID, remaining: remaining})
	}
	b.mu.Unlock()

	if !skipNotification {
		notice := model.MustEnvelope(model.TypeDisconnect, map[string]any{"reason": reason})
		if err := conn.writeControl(notice); err != nil {
			b.logger.Debug("disconnect notice not delivered", "connection_id", connectionID, "error", err)
		}
	}
	_ = conn.transport.Close()

	for _, ev := range evictions {
		if err := b.store.RemoveRoomMember(ctx, ev.roomID, connectionID); err != nil {
			b.logger.Warn("room membership removal failed", "room_id", ev.roomID, "connection_id", connectionID, "error", err)
		}
		left := model.MustEnvelope(model.TypeMemberLeft, map[string]any{
			"room_id":       ev.roomID,
			"connection_id": connectionID,
		})
		for _, member := range ev.remaining {
			b.notify(ctx, member, left)
		}
	}

	if err := b.store.DeleteConnection(ctx, connectionID); err != nil {
		b.logger.Warn("connection record removal failed", "connection_id", connectionID, "error", err)
	}

	b.observer.RecordConnectionClosed(connectionID)
	b.logger.Info("connection closed", "connection_id", connectionID, "reason", reason)
	return nil
}

// SubscribeToRoom adds the connection to a room, creating it implicitly on
// first subscribe. Subscribing twice is a no-op success.
func (b *Broker) SubscribeToRoom(ctx context.Context, connectionID, roomID string) error {
	room, err := model.ParseRoomID(roomID)
	if err != nil {
		return err
	}

	b.mu.RLock()
	conn, ok := b.conns[connectionID]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("subscribe %s: %w", connectionID, model.ErrConnectionNotFound)
	}

	allowed, err := b.perms.Check(ctx, conn.subjectID, room.JoinPermission())
	if err != nil {
		return fmt.Errorf("permission check for %s on %s: %w", connectionID, roomID, err)
	}
	if !allowed {
		b.observer.RecordError("permission")
		return fmt.Errorf("subscribe %s to %s: %w", connectionID, roomID, model.ErrPermissionDenied)
	}

	b.mu.Lock()
	if _, live := b.conns[connectionID]; !live {
		b.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", connectionID, model.ErrConnectionNotFound)
	}
	members := b.rooms[roomID]
	if members == nil {
		members = make(map[string]struct{})
		b.rooms[roomID] = members
	}
	if _, already := members[connectionID]; already {
		b.mu.Unlock()
		return nil
	}
	members[connectionID] = struct{}{}
	memberCount := len(members)
	existing := make([]*connection, 0, memberCount-1)
	for id := range members {
		if id == connectionID {
			continue
		}
		if c, live := b.conns[id]; live {
			existing = append(existing, c)
		}
	}
	b.mu.Unlock()

	if err := b.store.AddRoomMember(ctx, roomID, connectionID); err != nil {
		b.removeMembership(roomID, connectionID)
		b.observer.RecordError("persistence")
		return fmt.Errorf("persist membership %s in %s: %w", connectionID, roomID, err)
	}

	joined := model.MustEnvelope(model.TypeMemberJoined, map[string]any{
		"room_id":       roomID,
		"connection_id": connectionID,
	})
	for _, member := range existing {
		b.notify(ctx, member, joined)
	}

	confirm := model.MustEnvelope(model.TypeSubscribed, map[string]any{
		"room_id":      roomID,
		"member_count": memberCount,
	})
	b.notify(ctx, conn, confirm)

	b.observer.RecordRoomSubscription(roomID)
	b.logger.Debug("subscribed", "connection_id", connectionID, "room_id", roomID, "members", memberCount)
	return nil
}

func (b *Broker) removeMembership(roomID, connectionID string) {
	b.mu.Lock()
	if members := b.rooms[roomID]; members != nil {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(b.rooms, roomID)
		}
	}
	b.mu.Unlock()
}

// UnsubscribeFromRoom is idempotent: leaving a room the connection is not
// in succeeds without side effects.
func (b *Broker) UnsubscribeFromRoom(ctx context.Context, connectionID, roomID string) error {
	if _, err := model.ParseRoomID(roomID); err != nil {
		return err
	}

	b.mu.Lock()
	conn, ok := b.conns[connectionID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("unsubscribe %s: %w", connectionID, model.ErrConnectionNotFound)
	}
	members := b.rooms[roomID]
	if _, in := members[connectionID]; !in {
		b.mu.Unlock()
		return nil
	}
	delete(members, connectionID)
	remaining := make([]*connection, 0, len(members))
	for id := range members {
		if c, live := b.conns[id]; live {
			remaining = append(remaining, c)
		}
	}
	if len(members) == 0 {
		delete(b.rooms, roomID)
	}
	b.mu.Unlock()

	if err := b.store.RemoveRoomMember(ctx, roomID, connectionID); err != nil {
		b.logger.Warn("room membership removal failed", "room_id", roomID, "connection_id", connectionID, "error", err)
	}

	left := model.MustEnvelope(model.TypeMemberLeft, map[string]any{
		"room_id":       roomID,
		"connection_id": connectionID,
	})
	for _, member := range remaining {
		b.notify(ctx, member, left)
	}

	confirm := model.MustEnvelope(model.TypeUnsubscribed, map[string]any{"room_id": roomID})
	b.notify(ctx, conn, confirm)
	return nil
}

// SendPersonal transmits one envelope to one connection. Any transmission
// failure disconnects the connection (a socket that fails once is dead) and
// surfaces a transport error to the caller.
func (b *Broker) SendPersonal(ctx context.Context, connectionID string, env model.Envelope) error {
	b.mu.RLock()
	conn, ok := b.conns[connectionID]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("send to %s: %w", connectionID, model.ErrConnectionNotFound)
	}

	start := time.Now()
	if err := conn.write(env); err != nil {
		b.observer.RecordError("transport")
		// Skip notification: notifying over the failed socket would recurse.
		_ = b.Disconnect(ctx, connectionID, "transport failure", true)
		return fmt.Errorf("send to %s terminated the connection: %w: %v", connectionID, model.ErrTransportClosed, err)
	}
	b.observer.RecordMessageSent(time.Since(start))
	return nil
}

// SendToRoom fans the envelope out to every current member not excluded.
// Individual member failures are absorbed (that member is disconnected);
// the returned count is the number of connections that received the message.
func (b *Broker) SendToRoom(ctx context.Context, roomID string, env model.Envelope, exclude []string) (int, error) {
	excluded := toSet(exclude)

	b.mu.RLock()
	targets := make([]*connection, 0, len(b.rooms[roomID]))
	for id := range b.rooms[roomID] {
		if _, skip := excluded[id]; skip {
			continue
		}
		if c, live := b.conns[id]; live {
			targets = append(targets, c)
		}
	}
	b.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if b.deliver(ctx, conn, env) {
			delivered++
		}
	}
	return delivered, nil
}

// Broadcast sends to the entire active registry. Reserved for rare,
// high-visibility events.
func (b *Broker) Broadcast(ctx context.Context, env model.Envelope, exclude []string) (int, error) {
	excluded := toSet(exclude)

	b.mu.RLock()
	targets := make([]*connection, 0, len(b.conns))
	for id, c := range b.conns {
		if _, skip := excluded[id]; skip {
			continue
		}
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if b.deliver(ctx, conn, env) {
			delivered++
		}
	}
	return delivered, nil
}

// deliver writes one sequenced envelope to one member, disconnecting it on
// failure. Fan-out callers keep going regardless of the outcome.
func (b *Broker) deliver(ctx context.Context, conn *connection, env model.Envelope) bool {
	start := time.Now()
	if err := conn.write(env); err != nil {
		b.logger.Warn("delivery failed, dropping connection", "connection_id", conn.id, "error", err)
		b.observer.RecordError("transport")
		_ = b.Disconnect(ctx, conn.id, "transport failure", true)
		return false
	}
	b.observer.RecordMessageSent(time.Since(start))
	return true
}

// notify is deliver for control frames: same failure handling, but the
// envelope goes out without a sequence number.
func (b *Broker) notify(ctx context.Context, conn *connection, env model.Envelope) bool {
	start := time.Now()
	if err := conn.writeControl(env); err != nil {
		b.logger.Warn("notification failed, dropping connection", "connection_id", conn.id, "error", err)
		b.observer.RecordError("transport")
		_ = b.Disconnect(ctx, conn.id, "transport failure", true)
		return false
	}
	b.observer.RecordMessageSent(time.Since(start))
	return true
}

// RoomMemberCount reports local membership for a room; 0 when absent.
func (b *Broker) RoomMemberCount(roomID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[roomID])
}

// Stats returns an eventually consistent snapshot of the registry.
func (b *Broker) Stats() model.BrokerStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rooms := make(map[string]int, len(b.rooms))
	for id, members := range b.rooms {
		rooms[id] = len(members)
	}
	return model.BrokerStats{
		ActiveConnections: len(b.conns),
		MaxConnections:    b.cfg.maxConnections,
		Utilization:       float64(len(b.conns)) / float64(b.cfg.maxConnections),
		Rooms:             rooms,
		Uptime:            time.Since(b.startedAt),
	}
}

// Connections lists per-connection metrics for the operational surface.
func (b *Broker) Connections() []model.ConnectionMetrics {
	b.mu.RLock()
	conns := make([]*connection, 0, len(b.conns))
	roomsByConn := make(map[string][]string)
	for id, c := range b.conns {
		conns = append(conns, c)
		for roomID, members := range b.rooms {
			if _, in := members[id]; in {
				roomsByConn[id] = append(roomsByConn[id], roomID)
			}
		}
	}
	b.mu.RUnlock()

	out := make([]model.ConnectionMetrics, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.metrics(roomsByConn[c.id]))
	}
	return out
}

// Shutdown stops the background loops and closes every connection with a
// going-away notice.
func (b *Broker) Shutdown(ctx context.Context) error {
	close(b.stopCh)
	b.wg.Wait()

	b.mu.RLock()
	ids := make([]string, 0, len(b.conns))
	for id := range b.conns {
		ids = append(ids, id)
	}
	b.mu.RUnlock()

	g, gCtx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := b.Disconnect(gCtx, id, "server shutting down", false); err != nil {
				b.logger.Debug("shutdown disconnect", "connection_id", id, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
