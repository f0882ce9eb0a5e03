package core

import "context"

// CloseCode is an application close code sent on teardown.
type CloseCode int

const (
	// CloseNormal ends a session gracefully.
	CloseNormal CloseCode = 1000
	// ClosePolicyViolation rejects a connection whose credential or
	// parameters did not authorize the target conversation.
	ClosePolicyViolation CloseCode = 4401
)

// Conn is the transport seen by a session: a live bidirectional channel
// that can deliver events, surface inbound frames, and be closed with a
// code. The websocket adapter lives in the transport layer so the core
// stays testable with in-memory fakes.
type Conn interface {
	// ReadFrame blocks until a client frame arrives and discards it,
	// returning an error once the transport is gone. The protocol is
	// notification-only; client payloads carry no meaning.
	ReadFrame(ctx context.Context) error

	// WriteEvent delivers one event to the client.
	WriteEvent(ctx context.Context, event *Event) error

	// Close terminates the transport with the given code. Implementations
	// must tolerate repeated calls.
	Close(code CloseCode, reason string) error
}
