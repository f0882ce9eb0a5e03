package http

import (
	"time"

	"github.com/google/uuid"

	"github.com/pairchat/pairchat-server/internal/store"
)

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// ConversationResponse represents a conversation in API responses.
type ConversationResponse struct {
	ID        string `json:"id"`
	UserAID   string `json:"user_a_id"`
	UserBID   string `json:"user_b_id"`
	PeerID    string `json:"peer_id"`
	CreatedAt string `json:"created_at"`
}

// AttachmentResponse represents attachment metadata in API responses.
type AttachmentResponse struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	Mime       string `json:"mime"`
	SizeBytes  int64  `json:"size_bytes"`
	StorageKey string `json:"storage_key"`
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID             string               `json:"id"`
	ConversationID string               `json:"conversation_id"`
	SenderID       string               `json:"sender_id"`
	Content        *string              `json:"content"`
	CreatedAt      string               `json:"created_at"`
	EditedAt       *string              `json:"edited_at"`
	DeletedAt      *string              `json:"deleted_at"`
	Attachments    []AttachmentResponse `json:"attachments"`
}

func userResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:       u.ID.String(),
		Username: u.Username,
		Email:    u.Email,
	}
}

func conversationResponse(c *store.Conversation, viewer uuid.UUID) ConversationResponse {
	return ConversationResponse{
		ID:        c.ID.String(),
		UserAID:   c.UserAID.String(),
		UserBID:   c.UserBID.String(),
		PeerID:    c.Peer(viewer).String(),
		CreatedAt: formatTime(c.CreatedAt),
	}
}

func messageResponse(m *store.Message) MessageResponse {
	attachments := make([]AttachmentResponse, 0, len(m.Attachments))
	for _, att := range m.Attachments {
		attachments = append(attachments, AttachmentResponse{
			ID:         att.ID.String(),
			Filename:   att.Filename,
			Mime:       att.Mime,
			SizeBytes:  att.SizeBytes,
			StorageKey: att.StorageKey,
		})
	}

	return MessageResponse{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID.String(),
		SenderID:       m.SenderID.String(),
		Content:        m.Content,
		CreatedAt:      formatTime(m.CreatedAt),
		EditedAt:       formatTimePtr(m.EditedAt),
		DeletedAt:      formatTimePtr(m.DeletedAt),
		Attachments:    attachments,
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
