package socket

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocolViolation is the root of every illegal-state error. It is
	// fatal to the connection.
	ErrProtocolViolation = errors.New("socket: protocol violation")

	// ErrDisconnect is matched by DisconnectError. It marks a normal closure.
	ErrDisconnect = errors.New("socket: disconnected")

	// ErrFrameType is returned when a text read gets bytes or the reverse.
	ErrFrameType = errors.New("socket: unexpected frame type")
)

// StateError reports an operation attempted in an illegal state.
type StateError struct {
	Op    string // "receive", "send", "accept", ...
	Side  string // "client" or "application"
	State State
	Event string // offending event type, if any
}

func (e *StateError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("socket: %s while %s is %s", e.Op, e.Side, e.State)
	}
	return fmt.Sprintf("socket: %s %q while %s is %s", e.Op, e.Event, e.Side, e.State)
}

// Unwrap returns ErrProtocolViolation.
func (e *StateError) Unwrap() error {
	return ErrProtocolViolation
}

// DisconnectError is returned by reads once the client has gone away.
type DisconnectError struct {
	Code   int
	Reason string
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf("socket: disconnected with code %d", e.Code)
}

// Unwrap returns ErrDisconnect.
func (e *DisconnectError) Unwrap() error {
	return ErrDisconnect
}
