package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/quoteflow/realtime-delivery-service/internal/domain/model"
)

// Transport is the already-accepted socket handed to the broker. A
// *websocket.Conn from gorilla satisfies it directly.
type Transport interface {
	WriteJSON(v any) error
	Close() error
}

// connection is the broker-owned state for one live client. Unexported:
// external layers only ever see connection ids.
type connection struct {
	id        string
	subjectID string
	metadata  map[string]string

	transport   Transport
	connectedAt time.Time

	// writeMu serializes transport writes and sequence assignment so that
	// per-connection sequences stay strictly increasing and gap-free.
	writeMu  sync.Mutex
	sequence int64

	// [ATOMIC_FIELD] unix nanos of the last inbound or outbound activity.
	lastActivityAt int64
}

func newConnection(t Transport, connectionID, subjectID string, metadata map[string]string) *connection {
	return &connection{
		id:             connectionID,
		subjectID:      subjectID,
		metadata:       metadata,
		transport:      t,
		connectedAt:    time.Now(),
		lastActivityAt: time.Now().UnixNano(),
	}
}

func (c *connection) touch() {
	atomic.StoreInt64(&c.lastActivityAt, time.Now().UnixNano())
}

func (c *connection) lastActivity() time.Time {
	return time.Unix(0, atomic.LoadInt64(&c.lastActivityAt))
}

// write stamps the next sequence number (unless the caller already carries
// one) and pushes the envelope down the transport. Only application sends
// go through here; control frames use writeControl so that client-visible
// sequences stay gap-free.
func (c *connection) write(env model.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if env.Sequence == nil {
		c.sequence++
		env = env.WithSequence(c.sequence)
	}
	if err := c.transport.WriteJSON(env); err != nil {
		return err
	}
	c.touch()
	return nil
}

// writeControl pushes a control frame (confirmations, member events, pong,
// heartbeat, errors) without consuming a sequence number.
func (c *connection) writeControl(env model.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.transport.WriteJSON(env); err != nil {
		return err
	}
	c.touch()
	return nil
}

func (c *connection) currentSequence() int64 {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sequence
}

func (c *connection) metrics(rooms []string) model.ConnectionMetrics {
	return model.ConnectionMetrics{
		ConnectionID: c.id,
		SubjectID:    c.subjectID,
		ConnectedAt:  c.connectedAt,
		LastActivity: c.lastActivity(),
		Sequence:     c.currentSequence(),
		Rooms:        rooms,
	}
}
