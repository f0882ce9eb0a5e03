package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pairchat/pairchat-server/internal/store"
)

// ConversationHandlers provides HTTP handlers for conversation endpoints.
type ConversationHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewConversationHandlers creates a new conversation handlers instance.
func NewConversationHandlers(st store.Store, logger *zerolog.Logger) *ConversationHandlers {
	return &ConversationHandlers{
		store: st,
		log:   logger,
	}
}

// CreateConversationRequest represents the create conversation request body.
type CreateConversationRequest struct {
	PeerID string `json:"peer_id" binding:"required,uuid"`
}

// Create gets or creates the single conversation with a peer. Creation is
// idempotent under concurrent first contact from both sides.
// POST /api/conversations
func (h *ConversationHandlers) Create(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create conversation request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	peerID, err := uuid.Parse(req.PeerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid peer id"})
		return
	}

	conv, err := h.store.GetOrCreateConversation(c.Request.Context(), uid, peerID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrSelfConversation):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot chat with self"})
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "peer not found"})
		default:
			h.log.Error().Err(err).Str("peer_id", req.PeerID).Msg("failed to get or create conversation")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, conversationResponse(conv, uid))
}

// List returns the caller's conversations, newest first.
// GET /api/conversations
func (h *ConversationHandlers) List(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	convs, err := h.store.ListConversations(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", uid.String()).Msg("failed to list conversations")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]ConversationResponse, 0, len(convs))
	for _, conv := range convs {
		response = append(response, conversationResponse(conv, uid))
	}

	c.JSON(http.StatusOK, response)
}
