package store

import "errors"

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSelfConversation is returned for a conversation between a user and themselves.
	ErrSelfConversation = errors.New("cannot chat with self")
	// ErrMessageDeleted is returned when editing a soft-deleted message.
	ErrMessageDeleted = errors.New("message deleted")
	// ErrBadCursor is returned for a pagination cursor that cannot be parsed.
	ErrBadCursor = errors.New("bad cursor format")
)
