package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pairchat/pairchat-server/internal/core"
	"github.com/pairchat/pairchat-server/internal/store"
)

// MessageHandlers provides HTTP handlers for message endpoints. Mutations
// broadcast a typed event to the conversation's room strictly after the
// durable commit.
type MessageHandlers struct {
	store     store.Store
	broadcast *core.Broadcaster
	log       *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(st store.Store, broadcaster *core.Broadcaster, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		store:     st,
		broadcast: broadcaster,
		log:       logger,
	}
}

// AttachmentRequest declares attachment metadata for a new message. The
// bytes live in external storage addressed by storage_key.
type AttachmentRequest struct {
	Filename   string `json:"filename" binding:"required,max=255"`
	Mime       string `json:"mime" binding:"required,max=100"`
	SizeBytes  int64  `json:"size_bytes" binding:"required,min=1"`
	StorageKey string `json:"storage_key" binding:"required,max=512"`
}

// CreateMessageRequest represents the create message request body.
type CreateMessageRequest struct {
	Content     *string             `json:"content"`
	Attachments []AttachmentRequest `json:"attachments"`
}

// UpdateMessageRequest represents the edit message request body.
type UpdateMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// MessagesPage is the paginated message listing response.
type MessagesPage struct {
	Messages   []MessageResponse `json:"messages"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// CreateMessageResponse acknowledges a stored message.
type CreateMessageResponse struct {
	ID string `json:"id"`
}

// List returns a page of messages strictly older than the cursor, in
// (created_at DESC, id DESC) order.
// GET /api/conversations/:id/messages?cursor=&limit=
func (h *MessageHandlers) List(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	conv, ok := h.memberConversation(c, uid)
	if !ok {
		return
	}

	limit := store.DefaultPageSize
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = parsed
	}

	var cursor *store.Cursor
	if raw := c.Query("cursor"); raw != "" {
		parsed, err := store.ParseCursor(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad cursor format"})
			return
		}
		cursor = parsed
	}

	messages, err := h.store.ListMessages(c.Request.Context(), conv.ID, limit, cursor)
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", conv.ID.String()).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	page := MessagesPage{Messages: make([]MessageResponse, 0, len(messages))}
	for _, msg := range messages {
		page.Messages = append(page.Messages, messageResponse(msg))
	}
	if len(messages) > 0 {
		page.NextCursor = store.CursorFor(messages[len(messages)-1])
	}

	c.JSON(http.StatusOK, page)
}

// Create stores a new message and fans out message:new after the commit.
// POST /api/conversations/:id/messages
func (h *MessageHandlers) Create(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	conv, ok := h.memberConversation(c, uid)
	if !ok {
		return
	}

	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if (req.Content == nil || *req.Content == "") && len(req.Attachments) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "empty message"})
		return
	}

	attachments := make([]*store.Attachment, 0, len(req.Attachments))
	for _, att := range req.Attachments {
		attachments = append(attachments, &store.Attachment{
			Filename:   att.Filename,
			Mime:       att.Mime,
			SizeBytes:  att.SizeBytes,
			StorageKey: att.StorageKey,
		})
	}

	msg, err := h.store.CreateMessage(c.Request.Context(), conv.ID, uid, req.Content, attachments)
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", conv.ID.String()).Msg("failed to create message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.broadcast.Broadcast(conv.ID, core.MessageCreated(msg.ID))
	c.JSON(http.StatusCreated, CreateMessageResponse{ID: msg.ID.String()})
}

// Update soft-edits a message and fans out message:update.
// PATCH /api/messages/:id
func (h *MessageHandlers) Update(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req UpdateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid update message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, ok := h.senderMessage(c, uid)
	if !ok {
		return
	}

	updated, err := h.store.UpdateMessage(c.Request.Context(), msg.ID, req.Content)
	if err != nil {
		if errors.Is(err, store.ErrMessageDeleted) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "message deleted"})
			return
		}
		h.log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("failed to update message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.broadcast.Broadcast(updated.ConversationID, core.MessageUpdated(updated.ID, *updated.Content, *updated.EditedAt))
	c.JSON(http.StatusOK, messageResponse(updated))
}

// Delete soft-deletes a message. Repeats are no-ops: the original
// deleted_at is kept and no event is re-emitted.
// DELETE /api/messages/:id
func (h *MessageHandlers) Delete(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	msg, ok := h.senderMessage(c, uid)
	if !ok {
		return
	}

	deleted, performed, err := h.store.DeleteMessage(c.Request.Context(), msg.ID)
	if err != nil {
		h.log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("failed to delete message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if performed {
		h.broadcast.Broadcast(deleted.ConversationID, core.MessageDeleted(deleted.ID, *deleted.DeletedAt))
	}
	c.JSON(http.StatusOK, messageResponse(deleted))
}

// memberConversation loads the conversation from the :id param and checks
// the caller is a member. Non-members get the same 404 as a missing row.
func (h *MessageHandlers) memberConversation(c *gin.Context, uid uuid.UUID) (*store.Conversation, bool) {
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
		return nil, false
	}

	conv, err := h.store.GetConversation(c.Request.Context(), convID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
			return nil, false
		}
		h.log.Error().Err(err).Str("conversation_id", convID.String()).Msg("failed to load conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return nil, false
	}
	if !conv.HasMember(uid) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
		return nil, false
	}

	return conv, true
}

// senderMessage loads the message from the :id param, hides it from
// non-members, and requires the caller to be its sender.
func (h *MessageHandlers) senderMessage(c *gin.Context, uid uuid.UUID) (*store.Message, bool) {
	msgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
		return nil, false
	}

	msg, err := h.store.GetMessage(c.Request.Context(), msgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
			return nil, false
		}
		h.log.Error().Err(err).Str("message_id", msgID.String()).Msg("failed to load message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return nil, false
	}

	conv, err := h.store.GetConversation(c.Request.Context(), msg.ConversationID)
	if err != nil {
		h.log.Error().Err(err).Str("message_id", msgID.String()).Msg("failed to load conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return nil, false
	}
	if !conv.HasMember(uid) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
		return nil, false
	}
	if msg.SenderID != uid {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not allowed"})
		return nil, false
	}

	return msg, true
}
