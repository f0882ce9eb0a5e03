package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/pairchat/pairchat-server/internal/store"
)

// Store implements store.Store for SQLite.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	username   TEXT NOT NULL UNIQUE,
	email      TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	user_a_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	user_b_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at DATETIME NOT NULL,
	CHECK (user_a_id < user_b_id),
	UNIQUE (user_a_id, user_b_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	sender_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	content         TEXT,
	created_at      DATETIME NOT NULL,
	edited_at       DATETIME,
	deleted_at      DATETIME
);

CREATE TABLE IF NOT EXISTS attachments (
	id          TEXT PRIMARY KEY,
	message_id  TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	filename    TEXT NOT NULL,
	mime        TEXT NOT NULL,
	size_bytes  INTEGER NOT NULL,
	storage_key TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments(message_id);
CREATE INDEX IF NOT EXISTS idx_conversations_user_a ON conversations(user_a_id);
CREATE INDEX IF NOT EXISTS idx_conversations_user_b ON conversations(user_b_id);
`

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file (":memory:" for tests).
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// ==== UserStore implementation ====

// CreateUser inserts a user directory row.
func (s *Store) CreateUser(ctx context.Context, username, email string) (*store.User, error) {
	u := &store.User{
		ID:        uuid.New(),
		Username:  username,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO users (id, username, email, created_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, u.ID.String(), u.Username, u.Email, u.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return u, nil
}

// GetUserByID retrieves a user by ID.
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*store.User, error) {
	query := `
		SELECT id, username, email, created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id.String()))
}

// GetUserByUsername retrieves a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, email, created_at
		FROM users
		WHERE username = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

// SearchUsers searches for users by username substring.
func (s *Store) SearchUsers(ctx context.Context, q string) ([]*store.User, error) {
	query := `
		SELECT id, username, email, created_at
		FROM users
		WHERE username LIKE ?
		ORDER BY username
		LIMIT 20
	`
	rows, err := s.db.QueryContext(ctx, query, "%"+q+"%")
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	users := make([]*store.User, 0)
	for rows.Next() {
		var u store.User
		var id string
		if err := rows.Scan(&id, &u.Username, &u.Email, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		uid, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse user id: %w", err)
		}
		u.ID = uid
		users = append(users, &u)
	}

	return users, rows.Err()
}

func (s *Store) scanUser(row *sql.Row) (*store.User, error) {
	var u store.User
	var id string
	err := row.Scan(&id, &u.Username, &u.Email, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	u.ID = uid
	return &u, nil
}

// ==== ConversationStore implementation ====

// canonicalPair orders two user IDs so the smaller UUID is always user_a.
// Conversation identity for a pair is then independent of argument order.
func canonicalPair(x, y uuid.UUID) (uuid.UUID, uuid.UUID) {
	if x.String() < y.String() {
		return x, y
	}
	return y, x
}

// GetOrCreateConversation returns the single conversation for the unordered
// pair, creating it if absent. The UNIQUE(user_a_id, user_b_id) constraint
// guards the first-contact race; on a violation the existing row is re-read
// and returned instead of an error.
func (s *Store) GetOrCreateConversation(ctx context.Context, userID, peerID uuid.UUID) (*store.Conversation, error) {
	if userID == peerID {
		return nil, store.ErrSelfConversation
	}

	a, b := canonicalPair(userID, peerID)

	conv, err := s.getConversationByPair(ctx, a, b)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if _, err := s.GetUserByID(ctx, peerID); err != nil {
		return nil, fmt.Errorf("peer lookup: %w", err)
	}

	conv = &store.Conversation{
		ID:        uuid.New(),
		UserAID:   a,
		UserBID:   b,
		CreatedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO conversations (id, user_a_id, user_b_id, created_at)
		VALUES (?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query, conv.ID.String(), a.String(), b.String(), conv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the first-contact race; the row now exists.
			return s.getConversationByPair(ctx, a, b)
		}
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	return conv, nil
}

func (s *Store) getConversationByPair(ctx context.Context, a, b uuid.UUID) (*store.Conversation, error) {
	query := `
		SELECT id, user_a_id, user_b_id, created_at
		FROM conversations
		WHERE user_a_id = ? AND user_b_id = ?
	`
	return s.scanConversation(s.db.QueryRowContext(ctx, query, a.String(), b.String()))
}

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id uuid.UUID) (*store.Conversation, error) {
	query := `
		SELECT id, user_a_id, user_b_id, created_at
		FROM conversations
		WHERE id = ?
	`
	return s.scanConversation(s.db.QueryRowContext(ctx, query, id.String()))
}

// ListConversations lists the user's conversations, newest first.
func (s *Store) ListConversations(ctx context.Context, userID uuid.UUID) ([]*store.Conversation, error) {
	query := `
		SELECT id, user_a_id, user_b_id, created_at
		FROM conversations
		WHERE user_a_id = ? OR user_b_id = ?
		ORDER BY created_at DESC
		LIMIT 50
	`
	rows, err := s.db.QueryContext(ctx, query, userID.String(), userID.String())
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	convs := make([]*store.Conversation, 0)
	for rows.Next() {
		var c store.Conversation
		var id, aID, bID string
		if err := rows.Scan(&id, &aID, &bID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if err := setConversationIDs(&c, id, aID, bID); err != nil {
			return nil, err
		}
		convs = append(convs, &c)
	}

	return convs, rows.Err()
}

// IsMember reports whether the user participates in the conversation.
func (s *Store) IsMember(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return conv.HasMember(userID), nil
}

func (s *Store) scanConversation(row *sql.Row) (*store.Conversation, error) {
	var c store.Conversation
	var id, aID, bID string
	err := row.Scan(&id, &aID, &bID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	if err := setConversationIDs(&c, id, aID, bID); err != nil {
		return nil, err
	}
	return &c, nil
}

func setConversationIDs(c *store.Conversation, id, aID, bID string) error {
	var err error
	if c.ID, err = uuid.Parse(id); err != nil {
		return fmt.Errorf("parse conversation id: %w", err)
	}
	if c.UserAID, err = uuid.Parse(aID); err != nil {
		return fmt.Errorf("parse user_a id: %w", err)
	}
	if c.UserBID, err = uuid.Parse(bID); err != nil {
		return fmt.Errorf("parse user_b id: %w", err)
	}
	return nil
}
