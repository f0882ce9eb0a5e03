package core

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Broadcaster fans events out to every session in a conversation's room.
// Broadcast only enqueues a task; a single dispatcher goroutine performs
// the fan-out, so the request path is never blocked by delivery and events
// for one conversation reach each member in Broadcast call order.
type Broadcaster struct {
	registry *Registry
	tasks    chan fanout
	log      *zerolog.Logger
}

type fanout struct {
	conversationID uuid.UUID
	event          *Event
}

// NewBroadcaster builds a broadcaster over the given registry. queueSize
// bounds the deferred-task backlog.
func NewBroadcaster(registry *Registry, queueSize int, logger *zerolog.Logger) *Broadcaster {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Broadcaster{
		registry: registry,
		tasks:    make(chan fanout, queueSize),
		log:      logger,
	}
}

// Run drains the task queue until the context is cancelled. Start exactly
// once, alongside the server.
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case task := <-b.tasks:
			b.deliver(task.conversationID, task.event)
		case <-ctx.Done():
			return
		}
	}
}

// Broadcast schedules delivery of the event to the conversation's room.
// Callers invoke it only after the corresponding state change has been
// durably committed. It never blocks and never reports delivery errors;
// a full backlog drops the event.
func (b *Broadcaster) Broadcast(conversationID uuid.UUID, event *Event) {
	select {
	case b.tasks <- fanout{conversationID: conversationID, event: event}:
	default:
		b.log.Warn().
			Str("conversation_id", conversationID.String()).
			Str("event_type", event.Type).
			Msg("broadcast backlog full, event dropped")
	}
}

func (b *Broadcaster) deliver(conversationID uuid.UUID, event *Event) {
	members := b.registry.Members(conversationID)
	for _, member := range members {
		if !member.Enqueue(event) {
			// Slow or closing member; its own write pump handles teardown.
			b.log.Debug().
				Str("conversation_id", conversationID.String()).
				Str("user_id", member.UserID().String()).
				Str("event_type", event.Type).
				Msg("event dropped for member")
		}
	}
}
