package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Pagination limits for message listing.
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Cursor is the decoded form of an opaque pagination token. The reference
// encoding is an RFC 3339 timestamp; the extended encoding appends the id
// tie-break as "<timestamp>,<uuid>" so that messages sharing a creation
// instant are never skipped.
type Cursor struct {
	CreatedAt time.Time
	ID        *uuid.UUID
}

// ParseCursor decodes an opaque cursor string. Malformed input yields
// ErrBadCursor; it is never silently ignored.
func ParseCursor(raw string) (*Cursor, error) {
	ts := raw
	var id *uuid.UUID

	if i := strings.IndexByte(raw, ','); i >= 0 {
		ts = raw[:i]
		parsed, err := uuid.Parse(raw[i+1:])
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadCursor, raw)
		}
		id = &parsed
	}

	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadCursor, raw)
	}

	return &Cursor{CreatedAt: at, ID: id}, nil
}

// CursorFor encodes the cursor that continues paging strictly after msg.
func CursorFor(msg *Message) string {
	return msg.CreatedAt.UTC().Format(time.RFC3339Nano) + "," + msg.ID.String()
}

// ClampPageSize normalizes a requested page size into [1, MaxPageSize].
func ClampPageSize(requested int) int {
	if requested <= 0 {
		return DefaultPageSize
	}
	if requested > MaxPageSize {
		return MaxPageSize
	}
	return requested
}
