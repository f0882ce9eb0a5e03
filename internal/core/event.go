package core

import (
	"time"

	"github.com/google/uuid"
)

// Event type strings as they appear on the wire.
const (
	EventTypeMessageNew    = "message:new"
	EventTypeMessageUpdate = "message:update"
	EventTypeMessageDelete = "message:delete"
	EventTypePing          = "ping"
)

// Event is an immutable fan-out payload sent server-to-client. Events are
// produced only after the corresponding durable commit; delivery is
// best-effort and never retried.
type Event struct {
	Type string `json:"type"`

	// message:new
	MessageID string `json:"message_id,omitempty"`

	// message:update and message:delete
	ID        string     `json:"id,omitempty"`
	Content   *string    `json:"content,omitempty"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// MessageCreated builds the event announcing a newly committed message.
func MessageCreated(messageID uuid.UUID) *Event {
	return &Event{
		Type:      EventTypeMessageNew,
		MessageID: messageID.String(),
	}
}

// MessageUpdated builds the event announcing a soft edit.
func MessageUpdated(messageID uuid.UUID, content string, editedAt time.Time) *Event {
	return &Event{
		Type:     EventTypeMessageUpdate,
		ID:       messageID.String(),
		Content:  &content,
		EditedAt: &editedAt,
	}
}

// MessageDeleted builds the event announcing a soft delete.
func MessageDeleted(messageID uuid.UUID, deletedAt time.Time) *Event {
	return &Event{
		Type:      EventTypeMessageDelete,
		ID:        messageID.String(),
		DeletedAt: &deletedAt,
	}
}

// Ping builds the keepalive event sent to a single connection.
func Ping() *Event {
	return &Event{Type: EventTypePing}
}
