package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User represents a user in the system. Credentials live in the external
// identity service; this is the directory row the chat backend needs.
type User struct {
	ID        uuid.UUID
	Username  string
	Email     string
	CreatedAt time.Time
}

// Conversation is a unique unordered pair of users. UserAID is always the
// lexicographically smaller UUID so the pair has a single canonical row.
type Conversation struct {
	ID        uuid.UUID
	UserAID   uuid.UUID
	UserBID   uuid.UUID
	CreatedAt time.Time
}

// Peer returns the other participant of the conversation.
func (c *Conversation) Peer(userID uuid.UUID) uuid.UUID {
	if c.UserAID == userID {
		return c.UserBID
	}
	return c.UserAID
}

// HasMember reports whether userID is one of the two participants.
func (c *Conversation) HasMember(userID uuid.UUID) bool {
	return c.UserAID == userID || c.UserBID == userID
}

// Message is a persisted chat message. EditedAt is set on soft edit,
// DeletedAt on soft delete; neither ever moves the (CreatedAt, ID) order key.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Content        *string
	CreatedAt      time.Time
	EditedAt       *time.Time
	DeletedAt      *time.Time
	Attachments    []*Attachment
}

// Attachment is metadata for a file attached to a message. The bytes
// themselves live in external storage addressed by StorageKey.
type Attachment struct {
	ID         uuid.UUID
	MessageID  uuid.UUID
	Filename   string
	Mime       string
	SizeBytes  int64
	CreatedAt  time.Time
	StorageKey string
}

// UserStore handles the user directory.
type UserStore interface {
	// CreateUser inserts a user row. Provisioning only; no credentials.
	CreateUser(ctx context.Context, username, email string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// SearchUsers searches for users by username substring.
	SearchUsers(ctx context.Context, query string) ([]*User, error)
}

// ConversationStore handles conversation persistence.
type ConversationStore interface {
	// GetOrCreateConversation returns the conversation between the two
	// users, creating it exactly once under concurrent first contact.
	// Argument order does not matter. Self-pairs are rejected with
	// ErrSelfConversation.
	GetOrCreateConversation(ctx context.Context, userID, peerID uuid.UUID) (*Conversation, error)

	// GetConversation retrieves a conversation by ID.
	GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error)

	// ListConversations lists the user's conversations, newest first.
	ListConversations(ctx context.Context, userID uuid.UUID) ([]*Conversation, error)

	// IsMember reports whether the user participates in the conversation.
	IsMember(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists a message and its attachment metadata in one
	// transaction and returns the stored row.
	CreateMessage(ctx context.Context, conversationID, senderID uuid.UUID, content *string, attachments []*Attachment) (*Message, error)

	// GetMessage retrieves a message by ID with its attachments.
	GetMessage(ctx context.Context, id uuid.UUID) (*Message, error)

	// UpdateMessage soft-edits a message's content, stamping EditedAt.
	// Returns ErrMessageDeleted when the message is already deleted.
	UpdateMessage(ctx context.Context, id uuid.UUID, content string) (*Message, error)

	// DeleteMessage soft-deletes a message. Deleting an already-deleted
	// message is a no-op that keeps the original DeletedAt; the second
	// return value reports whether this call performed the delete.
	DeleteMessage(ctx context.Context, id uuid.UUID) (*Message, bool, error)

	// ListMessages returns messages of a conversation in strict
	// (created_at DESC, id DESC) order, only those strictly older than the
	// cursor when one is given, clamped to MaxPageSize.
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit int, before *Cursor) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ConversationStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
