package core

import (
	"sync"

	"github.com/google/uuid"
)

// Registry maps a conversation to the set of live sessions subscribed to
// it. It exclusively owns room membership; sessions never touch the sets
// directly. A single registry-scoped mutex is enough at this scale.
type Registry struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]map[*Session]struct{}
}

// NewRegistry constructs an empty registry. One per process; constructed
// explicitly so tests can substitute their own.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[uuid.UUID]map[*Session]struct{}),
	}
}

// Register adds the session to the conversation's room, creating the room
// lazily. Registering an already-registered session is a no-op.
func (r *Registry) Register(conversationID uuid.UUID, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[conversationID]
	if !ok {
		room = make(map[*Session]struct{})
		r.rooms[conversationID] = room
	}
	room[s] = struct{}{}
}

// Deregister removes the session from its room. The room is dropped in the
// same critical section when it becomes empty, so empty rooms are never
// observable and never accumulate. Safe to call twice.
func (r *Registry) Deregister(conversationID uuid.UUID, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[conversationID]
	if !ok {
		return
	}
	delete(room, s)
	if len(room) == 0 {
		delete(r.rooms, conversationID)
	}
}

// Members returns a point-in-time snapshot of the room. Callers may iterate
// it while other sessions register or deregister.
func (r *Registry) Members(conversationID uuid.UUID) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[conversationID]
	members := make([]*Session, 0, len(room))
	for s := range room {
		members = append(members, s)
	}
	return members
}

// RoomCount reports how many rooms currently exist.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
