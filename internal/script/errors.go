package script

import (
	"errors"
	"fmt"
)

var (
	ErrTransportUnresolved = errors.New("script: no stomp destination or coap port configured")
	ErrMissingEndpoint     = errors.New("script: session line missing to_id")
	ErrInvalidMessageID    = errors.New("script: msg_id is not a non-negative decimal")
	ErrEmptySession        = errors.New("script: empty session line")
)

// CapacityError reports a repeated field that exceeded its bound. Entries
// parsed before the overflow are left intact in the returned directive.
type CapacityError struct {
	Kind  Kind
	Field string
	Bound int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("script: %s %s exceeds capacity %d", e.Kind, e.Field, e.Bound)
}

// UnknownDirectiveError reports a line whose msg_type is not one of the
// supported directives, or which does not start with msg_type at all.
type UnknownDirectiveError struct {
	Name string
	// FirstKey is set when the line's first pair was not msg_type.
	FirstKey string
}

func (e *UnknownDirectiveError) Error() string {
	if e.FirstKey != "" {
		return fmt.Sprintf("script: first parameter must be msg_type, got %q", e.FirstKey)
	}
	return fmt.Sprintf("script: unknown msg_type %q", e.Name)
}
