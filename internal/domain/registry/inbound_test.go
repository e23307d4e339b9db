package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quoteflow/realtime-delivery-service/internal/domain/model"
)

func TestHandleInboundPing(t *testing.T) {
	b, _ := newTestBroker(t)
	tr := connect(t, b, "c1")

	require.NoError(t, b.HandleInbound(context.Background(), "c1", []byte(`{"type":"ping"}`)))

	pong := tr.last()
	assert.Equal(t, model.TypePong, pong.Type)
	assert.NotEmpty(t, pong.Data["server_time"])
}

func TestHandleInboundSubscribeRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBroker(t)
	tr := connect(t, b, "c1")

	require.NoError(t, b.HandleInbound(ctx, "c1", []byte(`{"type":"subscribe","room_id":"quote:q-9"}`)))
	assert.Equal(t, 1, b.RoomMemberCount("quote:q-9"))
	assert.Equal(t, model.TypeSubscribed, tr.last().Type)

	require.NoError(t, b.HandleInbound(ctx, "c1", []byte(`{"type":"unsubscribe","room_id":"quote:q-9"}`)))
	assert.Equal(t, 0, b.RoomMemberCount("quote:q-9"))
	assert.Equal(t, model.TypeUnsubscribed, tr.last().Type)
}

func TestHandleInboundSubscribeWithoutRoomID(t *testing.T) {
	b, _ := newTestBroker(t)
	tr := connect(t, b, "c1")

	err := b.HandleInbound(context.Background(), "c1", []byte(`{"type":"subscribe"}`))
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "room_id", verr.Field)
	assert.Equal(t, model.TypeError, tr.last().Type)
}

func TestHandleInboundUnknownType(t *testing.T) {
	b, _ := newTestBroker(t)
	tr := connect(t, b, "c1")

	err := b.HandleInbound(context.Background(), "c1", []byte(`{"type":"launch_missiles"}`))
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)

	reply := tr.last()
	assert.Equal(t, model.TypeError, reply.Type)
	assert.Equal(t, model.InboundTypes, reply.Data["supported_types"])
}

func TestHandleInboundMalformedPayload(t *testing.T) {
	b, _ := newTestBroker(t)
	tr := connect(t, b, "c1")

	err := b.HandleInbound(context.Background(), "c1", []byte(`{not json`))
	require.Error(t, err)
	// The connection stays open and receives a structured error instead.
	assert.Equal(t, model.TypeError, tr.last().Type)
	assert.Equal(t, 1, b.Stats().ActiveConnections)
}

func TestHandleInboundMissingType(t *testing.T) {
	b, _ := newTestBroker(t)
	tr := connect(t, b, "c1")

	err := b.HandleInbound(context.Background(), "c1", []byte(`{"data":{"x":1}}`))
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "type", verr.Field)
	assert.Equal(t, model.TypeError, tr.last().Type)
}

func TestHandleInboundUnknownConnection(t *testing.T) {
	b, _ := newTestBroker(t)
	err := b.HandleInbound(context.Background(), "ghost", []byte(`{"type":"ping"}`))
	assert.ErrorIs(t, err, model.ErrConnectionNotFound)
}
