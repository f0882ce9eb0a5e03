package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is a session's position in the Pending → Admitted → Active → Closed
// machine. No state is ever skipped and Closed is terminal; a dropped
// connection reconnects from Pending.
type State int32

const (
	// StatePending is a transport-accepted connection awaiting admission.
	StatePending State = iota
	// StateAdmitted has a resolved identity and confirmed membership.
	StateAdmitted
	// StateActive is registered in a room with both duties running.
	StateActive
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAdmitted:
		return "admitted"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrNotAdmitted is returned when Run is called out of order.
var ErrNotAdmitted = errors.New("session not admitted")

// SessionOptions tunes a session's runtime behavior.
type SessionOptions struct {
	// KeepaliveInterval is the fixed period between ping events sent to
	// this single connection. Not client-configurable.
	KeepaliveInterval time.Duration
	// WriteTimeout bounds each delivery attempt so a hung transport cannot
	// stall the write pump.
	WriteTimeout time.Duration
	// EventBuffer sizes the session's delivery queue.
	EventBuffer int
}

func (o *SessionOptions) withDefaults() SessionOptions {
	out := *o
	if out.KeepaliveInterval <= 0 {
		out.KeepaliveInterval = 30 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 10 * time.Second
	}
	if out.EventBuffer <= 0 {
		out.EventBuffer = 16
	}
	return out
}

// Session is the per-connection state machine: admission, keepalive,
// inbound drain, and teardown. A session is bound to exactly one
// conversation for its lifetime.
type Session struct {
	conn     Conn
	registry *Registry
	opts     SessionOptions
	log      zerolog.Logger

	conversationID uuid.UUID
	userID         uuid.UUID

	events    chan *Event
	state     atomic.Int32
	closeOnce sync.Once
}

// NewSession wraps an accepted transport connection in a Pending session.
func NewSession(conn Conn, registry *Registry, opts SessionOptions, logger zerolog.Logger) *Session {
	o := opts.withDefaults()
	return &Session{
		conn:     conn,
		registry: registry,
		opts:     o,
		log:      logger,
		events:   make(chan *Event, o.EventBuffer),
	}
}

// State reports the session's current state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// UserID is the identity that authorized admission. Zero until Admitted.
func (s *Session) UserID() uuid.UUID {
	return s.userID
}

// ConversationID is the room this session is scoped to. Zero until Admitted.
func (s *Session) ConversationID() uuid.UUID {
	return s.conversationID
}

// Admit moves Pending → Admitted through the admitter's credential and
// membership checks. On failure the session closes with the policy
// violation code without ever touching the registry.
func (s *Session) Admit(ctx context.Context, admitter *Admitter, token string, conversationID uuid.UUID) error {
	if s.State() != StatePending {
		return fmt.Errorf("admit from state %s", s.State())
	}

	userID, err := admitter.Admit(ctx, token, conversationID)
	if err != nil {
		s.teardown(ClosePolicyViolation, "unauthorized")
		return err
	}

	s.conversationID = conversationID
	s.userID = userID
	s.state.Store(int32(StateAdmitted))
	return nil
}

// Run moves Admitted → Active: registers into the room and runs the
// keepalive and inbound-drain duties until either fails or the context is
// cancelled. It blocks for the life of the connection and leaves the
// session Closed and deregistered.
func (s *Session) Run(ctx context.Context) error {
	if s.State() != StateAdmitted {
		return ErrNotAdmitted
	}

	s.registry.Register(s.conversationID, s)
	s.state.Store(int32(StateActive))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- s.writePump(ctx)
	}()
	go func() {
		errCh <- s.readPump(ctx)
	}()

	err := <-errCh
	cancel() // stop the keepalive duty first, do not wait for the next tick
	<-errCh

	s.teardown(CloseNormal, "closing")

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Enqueue hands an event to the session's write pump. It never blocks;
// false means the session is closed or its buffer is full, and the event
// is dropped for this member only.
func (s *Session) Enqueue(event *Event) bool {
	if s.State() == StateClosed {
		return false
	}
	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}

// writePump delivers queued events and sends the periodic keepalive ping
// to this single connection. Any write failure is terminal for the session.
func (s *Session) writePump(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-s.events:
			if err := s.write(ctx, event); err != nil {
				return fmt.Errorf("write event: %w", err)
			}
		case <-ticker.C:
			if err := s.write(ctx, Ping()); err != nil {
				return fmt.Errorf("write keepalive: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) write(ctx context.Context, event *Event) error {
	writeCtx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	defer cancel()
	return s.conn.WriteEvent(writeCtx, event)
}

// readPump consumes and discards client frames until the transport closes.
// The protocol is server-to-client only; inbound payloads are never
// interpreted.
func (s *Session) readPump(ctx context.Context) error {
	for {
		if err := s.conn.ReadFrame(ctx); err != nil {
			return err
		}
	}
}

// teardown is the single idempotent exit: deregister, then close the
// transport. Admission rejections land here too, before any registration,
// which Deregister tolerates.
func (s *Session) teardown(code CloseCode, reason string) {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.registry.Deregister(s.conversationID, s)
		if err := s.conn.Close(code, reason); err != nil {
			s.log.Debug().Err(err).Msg("close connection")
		}
	})
}
