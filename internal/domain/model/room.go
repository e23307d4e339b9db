package model

import (
	"fmt"
	"strings"
)

// Reserved room type prefixes used by the rest of the platform. The core
// does not interpret the key, only the prefix for permission routing.
const (
	RoomTypeQuote        = "quote"
	RoomTypeAdmin        = "admin"
	RoomTypeAnalytics    = "analytics"
	RoomTypePolicy       = "policy"
	RoomTypeNotification = "notification"
)

// OperationsRoom is the reserved room that receives system alerts from the
// broker health loop.
const OperationsRoom = "admin:operations"

var reservedRoomTypes = []string{
	RoomTypeQuote,
	RoomTypeAdmin,
	RoomTypeAnalytics,
	RoomTypePolicy,
	RoomTypeNotification,
}

// RoomID is a validated "<type>:<key>" room identifier.
type RoomID struct {
	Type string
	Key  string
}

func (r RoomID) String() string {
	return r.Type + ":" + r.Key
}

// ParseRoomID validates the "<type>:<key>" shape and the reserved type
// prefix. The key is opaque to the core.
func ParseRoomID(s string) (RoomID, error) {
	typ, key, ok := strings.Cut(s, ":")
	if !ok || typ == "" || key == "" {
		return RoomID{}, fmt.Errorf("room id %q: %w", s, NewValidationError("room_id"))
	}
	for _, reserved := range reservedRoomTypes {
		if typ == reserved {
			return RoomID{Type: typ, Key: key}, nil
		}
	}
	return RoomID{}, fmt.Errorf("room id %q: %w", s, NewValidationError("room_id", reservedRoomTypes...))
}

// JoinPermission derives the permission name checked before a subject may
// subscribe to a room of this type.
func (r RoomID) JoinPermission() string {
	return "room:join:" + r.Type
}
