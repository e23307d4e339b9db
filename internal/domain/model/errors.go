package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for every failure class the core can detect. Callers are
// expected to branch with errors.Is, so wrapping at boundaries is safe.
var (
	// ErrAlreadyRegistered: a Connect reused a connection id that is still live.
	ErrAlreadyRegistered = errors.New("connection id already registered")

	// ErrConnectionNotFound: the referenced connection is not in the registry.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrCapacityReached: the broker is at its configured connection limit.
	// The caller must wait or scale; the connection is never silently queued.
	ErrCapacityReached = errors.New("connection capacity reached")

	// ErrRoomNotFound: the referenced room has no members on this node.
	ErrRoomNotFound = errors.New("room not found")

	// ErrMessageNotFound: the queued message is not in the processing set
	// (already acknowledged, expired, or never dequeued).
	ErrMessageNotFound = errors.New("message not found in processing set")

	// ErrPermissionDenied: the permission collaborator rejected the subject.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrTransportClosed: the transport failed a write. A socket that fails
	// once is assumed dead and the owning connection is torn down.
	ErrTransportClosed = errors.New("transport closed")
)

// ValidationError reports a malformed inbound payload. It names the violated
// field and, when bounded, the allowed values, so the peer can self-correct.
type ValidationError struct {
	Field   string
	Allowed []string
}

func (e *ValidationError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("invalid message: required field %q is missing", e.Field)
	}
	return fmt.Sprintf("invalid message: field %q must be one of [%s]", e.Field, strings.Join(e.Allowed, ", "))
}

func NewValidationError(field string, allowed ...string) *ValidationError {
	return &ValidationError{Field: field, Allowed: allowed}
}
