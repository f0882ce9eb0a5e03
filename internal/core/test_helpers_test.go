package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// fakeConn is an in-memory core.Conn for exercising sessions without a
// websocket.
type fakeConn struct {
	mu       sync.Mutex
	events   []*Event
	writeErr error

	readCh chan error

	closeOnce sync.Once
	closed    chan struct{}
	closeCode CloseCode
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		readCh: make(chan error, 4),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadFrame(ctx context.Context) error {
	select {
	case err := <-f.readCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeConn) WriteEvent(_ context.Context, event *Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeConn) Close(code CloseCode, _ string) error {
	f.closeOnce.Do(func() {
		f.closeCode = code
		close(f.closed)
	})
	return nil
}

func (f *fakeConn) failWrites(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

func (f *fakeConn) snapshot() []*Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Event, len(f.events))
	copy(out, f.events)
	return out
}

// disconnect simulates the client going away.
func (f *fakeConn) disconnect() {
	f.readCh <- errors.New("connection reset")
}

type stubIdentity struct {
	id  uuid.UUID
	err error
}

func (s stubIdentity) Resolve(context.Context, string) (uuid.UUID, error) {
	return s.id, s.err
}

type stubDirectory struct {
	member bool
	err    error
}

func (s stubDirectory) IsMember(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return s.member, s.err
}

func allowAdmitter(userID uuid.UUID) *Admitter {
	return NewAdmitter(stubIdentity{id: userID}, stubDirectory{member: true})
}

// startSession admits and runs a session over a fake connection, returning
// once it is registered in the room.
func startSession(t *testing.T, registry *Registry, conversationID, userID uuid.UUID, opts SessionOptions) (*Session, *fakeConn, func()) {
	t.Helper()

	conn := newFakeConn()
	session := NewSession(conn, registry, opts, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	if err := session.Admit(ctx, allowAdmitter(userID), "token", conversationID); err != nil {
		cancel()
		t.Fatalf("admit: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = session.Run(ctx)
	}()

	waitFor(t, func() bool { return session.State() == StateActive })

	stop := func() {
		cancel()
		<-done
	}
	return session, conn, stop
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func waitEvents(t *testing.T, conn *fakeConn, n int) []*Event {
	t.Helper()

	waitFor(t, func() bool { return len(conn.snapshot()) >= n })
	return conn.snapshot()
}

func waitClosed(t *testing.T, conn *fakeConn) {
	t.Helper()

	select {
	case <-conn.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection not closed before deadline")
	}
}
