package amqp

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quoteflow/realtime-delivery-service/internal/adapter/pubsub"
	"github.com/quoteflow/realtime-delivery-service/internal/adapter/store"
	"github.com/quoteflow/realtime-delivery-service/internal/domain/model"
	"github.com/quoteflow/realtime-delivery-service/internal/domain/registry"
)

type allowAllPerms struct{}

func (allowAllPerms) Check(context.Context, string, string) (bool, error) { return true, nil }

type memTransport struct {
	mu     sync.Mutex
	frames []model.Envelope
}

func (t *memTransport) WriteJSON(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames = append(t.frames, v.(model.Envelope))
	return nil
}

func (t *memTransport) Close() error { return nil }

func (t *memTransport) last() model.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames[len(t.frames)-1]
}

func (t *memTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.frames)
}

type capturingPublisher struct {
	mu        sync.Mutex
	published map[string][]*message.Message
}

func (p *capturingPublisher) Publish(topic string, msgs ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.published == nil {
		p.published = make(map[string][]*message.Message)
	}
	p.published[topic] = append(p.published[topic], msgs...)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func (p *capturingPublisher) onTopic(topic string) []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published[topic]
}

func newTestHandler(t *testing.T) (*EventHandler, *registry.Broker, *capturingPublisher) {
	t.Helper()
	broker := registry.NewBroker(slog.Default(), store.NewMemoryStore(), allowAllPerms{}, nil)
	pub := &capturingPublisher{}
	h := NewEventHandler(broker, slog.Default(), pubsub.NewEventDispatcher(pub))
	return h, broker, pub
}

func subscribe(t *testing.T, broker *registry.Broker, connectionID, roomID string) *memTransport {
	t.Helper()
	ctx := context.Background()
	tr := &memTransport{}
	require.NoError(t, broker.Connect(ctx, tr, connectionID, "subject-"+connectionID, nil))
	if roomID != "" {
		require.NoError(t, broker.SubscribeToRoom(ctx, connectionID, roomID))
	}
	return tr
}

func TestOnQuoteUpdatedFansOutAndPublishesReceipt(t *testing.T) {
	h, broker, pub := newTestHandler(t)
	tr := subscribe(t, broker, "c1", "quote:q-42")

	err := h.OnQuoteUpdatedV1(context.Background(), &QuoteUpdateV1{
		QuoteID: "q-42",
		Status:  "approved",
		Premium: 1249.99,
	})
	require.NoError(t, err)

	update := tr.last()
	assert.Equal(t, "quote_update", update.Type)
	assert.Equal(t, "q-42", update.Data["quote_id"])
	assert.Equal(t, "approved", update.Data["status"])

	receipts := pub.onTopic(TopicDeliveryReceipt)
	require.Len(t, receipts, 1)
	var receipt DeliveryReceiptV1
	require.NoError(t, json.Unmarshal(receipts[0].Payload, &receipt))
	assert.Equal(t, "q-42", receipt.QuoteID)
	assert.Equal(t, 1, receipt.Delivered)
}

func TestOnQuoteUpdatedSkipsWithoutLocalMembers(t *testing.T) {
	h, broker, pub := newTestHandler(t)
	tr := subscribe(t, broker, "c1", "quote:other")
	before := tr.count()

	err := h.OnQuoteUpdatedV1(context.Background(), &QuoteUpdateV1{QuoteID: "q-42", Status: "approved"})
	require.NoError(t, err)

	assert.Equal(t, before, tr.count())
	assert.Empty(t, pub.onTopic(TopicDeliveryReceipt))
}

func TestOnQuoteUpdatedDropsMissingQuoteID(t *testing.T) {
	h, _, pub := newTestHandler(t)
	require.NoError(t, h.OnQuoteUpdatedV1(context.Background(), &QuoteUpdateV1{Status: "approved"}))
	assert.Empty(t, pub.onTopic(TopicDeliveryReceipt))
}

func TestOnAdminAlertCriticalBroadcasts(t *testing.T) {
	h, broker, _ := newTestHandler(t)
	tr1 := subscribe(t, broker, "c1", "")
	tr2 := subscribe(t, broker, "c2", "quote:q-1")

	err := h.OnAdminAlertV1(context.Background(), &AdminAlertV1{
		AlertID:  "a-1",
		Severity: "critical",
		Title:    "queue backlog",
	})
	require.NoError(t, err)

	assert.Equal(t, "admin_alert", tr1.last().Type)
	assert.Equal(t, "admin_alert", tr2.last().Type)
}

func TestOnAdminAlertTargetedStaysInRoom(t *testing.T) {
	h, broker, _ := newTestHandler(t)
	inRoom := subscribe(t, broker, "c1", "admin:billing")
	outside := subscribe(t, broker, "c2", "")
	before := outside.count()

	err := h.OnAdminAlertV1(context.Background(), &AdminAlertV1{
		AlertID:  "a-2",
		Severity: "critical",
		Title:    "billing drift",
		TargetID: "billing",
	})
	require.NoError(t, err)

	assert.Equal(t, "admin_alert", inRoom.last().Type)
	assert.Equal(t, before, outside.count())
}

func TestOnAdminAlertDefaultsToOperationsRoom(t *testing.T) {
	h, broker, _ := newTestHandler(t)
	ops := subscribe(t, broker, "ops", model.OperationsRoom)
	outside := subscribe(t, broker, "c2", "")
	before := outside.count()

	err := h.OnAdminAlertV1(context.Background(), &AdminAlertV1{
		AlertID:  "a-3",
		Severity: "warning",
		Title:    "elevated latency",
	})
	require.NoError(t, err)

	assert.Equal(t, "admin_alert", ops.last().Type)
	assert.Equal(t, before, outside.count())
}

func TestOnAnalyticsTick(t *testing.T) {
	h, broker, _ := newTestHandler(t)
	tr := subscribe(t, broker, "c1", "analytics:dash-1")

	err := h.OnAnalyticsTickV1(context.Background(), &AnalyticsTickV1{
		DashboardID: "dash-1",
		Metrics:     map[string]float64{"quotes_per_minute": 42},
	})
	require.NoError(t, err)

	tick := tr.last()
	assert.Equal(t, "analytics_tick", tick.Type)
	assert.Equal(t, "dash-1", tick.Data["dashboard_id"])
}

func TestBindDecodesAndDispatches(t *testing.T) {
	h, _, _ := newTestHandler(t)

	var got *QuoteUpdateV1
	handler := Bind(h, func(ctx context.Context, p *QuoteUpdateV1) error {
		got = p
		return nil
	})

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"quote_id":"q-1","status":"draft"}`))
	require.NoError(t, handler(msg))
	require.NotNil(t, got)
	assert.Equal(t, "q-1", got.QuoteID)
	assert.Equal(t, "draft", got.Status)
}

func TestBindAcksUndecodablePayload(t *testing.T) {
	h, _, _ := newTestHandler(t)

	called := false
	handler := Bind(h, func(ctx context.Context, p *QuoteUpdateV1) error {
		called = true
		return nil
	})

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{{{`))
	assert.NoError(t, handler(msg), "an undecodable payload must be acknowledged, not retried")
	assert.False(t, called)
}

func TestBindRecoversPanics(t *testing.T) {
	h, _, _ := newTestHandler(t)

	handler := Bind(h, func(ctx context.Context, p *QuoteUpdateV1) error {
		panic("boom")
	})

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"quote_id":"q-1"}`))
	assert.NotPanics(t, func() { _ = handler(msg) })
}
