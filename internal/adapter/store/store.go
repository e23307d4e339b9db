// Package store is the narrow gateway to the shared key/value-and-set
// store. All writes are idempotent (set add/remove, hash increment) so
// concurrent broker instances converge without cross-process locking.
package store

import (
	"context"

	"github.com/quoteflow/realtime-delivery-service/internal/domain/model"
)

// Storer defines the durable-store contract the broker depends on.
type Storer interface {
	// SaveConnection persists the fail-over-visibility record for a live
	// connection, bounded by the configured TTL.
	SaveConnection(ctx context.Context, rec model.ConnectionRecord) error
	DeleteConnection(ctx context.Context, connectionID string) error

	// Room membership sets, one set per room id.
	AddRoomMember(ctx context.Context, roomID, connectionID string) error
	RemoveRoomMember(ctx context.Context, roomID, connectionID string) error
	RoomMembers(ctx context.Context, roomID string) ([]string, error)

	// IncrCounter bumps a field of an aggregate counter hash.
	IncrCounter(ctx context.Context, key, field string, delta int64) error
}
