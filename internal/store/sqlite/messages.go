package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pairchat/pairchat-server/internal/store"
)

// CreateMessage persists a message and its attachment metadata in one
// transaction. The (created_at, id) order key is assigned here and never
// changes afterwards.
func (s *Store) CreateMessage(ctx context.Context, conversationID, senderID uuid.UUID, content *string, attachments []*store.Attachment) (*store.Message, error) {
	msg := &store.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO messages (id, conversation_id, sender_id, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	var body sql.NullString
	if content != nil {
		body = sql.NullString{String: *content, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, query, msg.ID.String(), conversationID.String(), senderID.String(), body, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	attQuery := `
		INSERT INTO attachments (id, message_id, filename, mime, size_bytes, storage_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, att := range attachments {
		stored := &store.Attachment{
			ID:         uuid.New(),
			MessageID:  msg.ID,
			Filename:   att.Filename,
			Mime:       att.Mime,
			SizeBytes:  att.SizeBytes,
			StorageKey: att.StorageKey,
			CreatedAt:  msg.CreatedAt,
		}
		if _, err := tx.ExecContext(ctx, attQuery,
			stored.ID.String(), stored.MessageID.String(), stored.Filename,
			stored.Mime, stored.SizeBytes, stored.StorageKey, stored.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("insert attachment: %w", err)
		}
		msg.Attachments = append(msg.Attachments, stored)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return msg, nil
}

// GetMessage retrieves a message by ID with its attachments.
func (s *Store) GetMessage(ctx context.Context, id uuid.UUID) (*store.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, content, created_at, edited_at, deleted_at
		FROM messages
		WHERE id = ?
	`
	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		return nil, err
	}

	if err := s.loadAttachments(ctx, []*store.Message{msg}); err != nil {
		return nil, err
	}
	return msg, nil
}

// UpdateMessage soft-edits the message content. Deleted messages are terminal.
func (s *Store) UpdateMessage(ctx context.Context, id uuid.UUID, content string) (*store.Message, error) {
	msg, err := s.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.DeletedAt != nil {
		return nil, store.ErrMessageDeleted
	}

	editedAt := time.Now().UTC()
	query := `
		UPDATE messages
		SET content = ?, edited_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`
	res, err := s.db.ExecContext(ctx, query, content, editedAt, id.String())
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Deleted between the read and the update.
		return nil, store.ErrMessageDeleted
	}

	msg.Content = &content
	msg.EditedAt = &editedAt
	return msg, nil
}

// DeleteMessage soft-deletes the message. Repeat deletes keep the original
// DeletedAt and report performed=false so no event is re-emitted.
func (s *Store) DeleteMessage(ctx context.Context, id uuid.UUID) (*store.Message, bool, error) {
	msg, err := s.GetMessage(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if msg.DeletedAt != nil {
		return msg, false, nil
	}

	deletedAt := time.Now().UTC()
	query := `
		UPDATE messages
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`
	res, err := s.db.ExecContext(ctx, query, deletedAt, id.String())
	if err != nil {
		return nil, false, fmt.Errorf("delete message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return s.refetchDeleted(ctx, id)
	}

	msg.DeletedAt = &deletedAt
	return msg, true, nil
}

func (s *Store) refetchDeleted(ctx context.Context, id uuid.UUID) (*store.Message, bool, error) {
	msg, err := s.GetMessage(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return msg, false, nil
}

// ListMessages pages through a conversation in strict reverse-chronological
// order with the id tie-break, returning only rows strictly older than the
// cursor. Soft-edited and soft-deleted rows stay at their original position.
func (s *Store) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int, before *store.Cursor) ([]*store.Message, error) {
	limit = store.ClampPageSize(limit)

	query := `
		SELECT id, conversation_id, sender_id, content, created_at, edited_at, deleted_at
		FROM messages
		WHERE conversation_id = ?
	`
	args := []any{conversationID.String()}

	switch {
	case before != nil && before.ID != nil:
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, before.CreatedAt, before.CreatedAt, before.ID.String())
	case before != nil:
		query += ` AND created_at < ?`
		args = append(args, before.CreatedAt)
	}

	query += `
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessageRows(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadAttachments(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *Store) loadAttachments(ctx context.Context, messages []*store.Message) error {
	byID := make(map[uuid.UUID]*store.Message, len(messages))
	for _, msg := range messages {
		byID[msg.ID] = msg
	}
	if len(byID) == 0 {
		return nil
	}

	// One query per message keeps the SQL simple; pages are capped at
	// MaxPageSize and SQLite queries are in-process.
	query := `
		SELECT id, message_id, filename, mime, size_bytes, storage_key, created_at
		FROM attachments
		WHERE message_id = ?
		ORDER BY created_at, id
	`
	for id, msg := range byID {
		rows, err := s.db.QueryContext(ctx, query, id.String())
		if err != nil {
			return fmt.Errorf("query attachments: %w", err)
		}
		for rows.Next() {
			var att store.Attachment
			var attID, msgID string
			if err := rows.Scan(&attID, &msgID, &att.Filename, &att.Mime, &att.SizeBytes, &att.StorageKey, &att.CreatedAt); err != nil {
				rows.Close()
				return fmt.Errorf("scan attachment: %w", err)
			}
			if att.ID, err = uuid.Parse(attID); err != nil {
				rows.Close()
				return fmt.Errorf("parse attachment id: %w", err)
			}
			if att.MessageID, err = uuid.Parse(msgID); err != nil {
				rows.Close()
				return fmt.Errorf("parse attachment message id: %w", err)
			}
			msg.Attachments = append(msg.Attachments, &att)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row *sql.Row) (*store.Message, error) {
	msg, err := scanMessageFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return msg, nil
}

func scanMessageRows(rows *sql.Rows) (*store.Message, error) {
	return scanMessageFrom(rows)
}

func scanMessageFrom(row rowScanner) (*store.Message, error) {
	var msg store.Message
	var id, convID, senderID string
	var content sql.NullString
	var editedAt, deletedAt sql.NullTime

	if err := row.Scan(&id, &convID, &senderID, &content, &msg.CreatedAt, &editedAt, &deletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}

	var err error
	if msg.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse message id: %w", err)
	}
	if msg.ConversationID, err = uuid.Parse(convID); err != nil {
		return nil, fmt.Errorf("parse conversation id: %w", err)
	}
	if msg.SenderID, err = uuid.Parse(senderID); err != nil {
		return nil, fmt.Errorf("parse sender id: %w", err)
	}
	if content.Valid {
		msg.Content = &content.String
	}
	if editedAt.Valid {
		t := editedAt.Time
		msg.EditedAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		msg.DeletedAt = &t
	}

	return &msg, nil
}
