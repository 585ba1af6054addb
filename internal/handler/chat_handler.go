package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"LegalWise/internal/gateway"
	"LegalWise/internal/model"
	"LegalWise/internal/repo"
)

// ChatHandler exposes the durable-write/read surface of the messaging core.
type ChatHandler interface {
	ListConversations(c *gin.Context)
	EnsureConversation(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkAsRead(c *gin.Context)
}

type chatHandler struct {
	gateway      *gateway.Gateway
	participants repo.ParticipantRepository
	logger       *zap.Logger
}

func NewChatHandler(gw *gateway.Gateway, participants repo.ParticipantRepository, logger *zap.Logger) ChatHandler {
	return &chatHandler{
		gateway:      gw,
		participants: participants,
		logger:       logger,
	}
}

func (h *chatHandler) ListConversations(c *gin.Context) {
	ident, ok := IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	convs, err := h.gateway.ListConversations(c.Request.Context(), ident.ID)
	if err != nil {
		h.logger.Error("list conversations failed", zap.Error(err), zap.String("participant_id", ident.ID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

type ensureConversationRequest struct {
	LawyerID string `json:"lawyerId" binding:"required"`
}

// EnsureConversation lazily creates the channel between the authenticated
// client and a lawyer. Only clients initiate consultations.
func (h *chatHandler) EnsureConversation(c *gin.Context) {
	ident, ok := IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	if ident.Role != model.RoleClient {
		c.JSON(http.StatusForbidden, gin.H{"error": "only clients open consultations"})
		return
	}

	var req ensureConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lawyerId is required"})
		return
	}

	lawyer, err := h.participants.Get(c.Request.Context(), req.LawyerID)
	if err != nil {
		if errors.Is(err, repo.ErrParticipantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "lawyer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve lawyer"})
		return
	}
	if lawyer.Role != model.RoleLawyer {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant is not a lawyer"})
		return
	}

	conv, err := h.gateway.EnsureConversation(c.Request.Context(), ident.ID, req.LawyerID)
	if err != nil {
		h.logger.Error("ensure conversation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

func (h *chatHandler) ListMessages(c *gin.Context) {
	ident, ok := IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	conversationID := c.Param("conversationId")
	msgs, err := h.gateway.ListMessages(c.Request.Context(), conversationID, ident.ID)
	if err != nil {
		h.writeStoreError(c, err, conversationID)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type sendMessageRequest struct {
	ConversationID string `json:"conversationId" binding:"required"`
	Content        string `json:"content" binding:"required"`
	ClientNonce    string `json:"clientNonce"`
}

// SendMessage is the durable-write half of the dual-path send. The caller
// generated the nonce and may have already pushed a provisional frame over
// its live connection; a retry with the same nonce returns the original
// canonical message.
func (h *chatHandler) SendMessage(c *gin.Context) {
	ident, ok := IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId and content are required"})
		return
	}

	msg, err := h.gateway.Persist(c.Request.Context(), req.ConversationID, ident.ID, req.Content, req.ClientNonce)
	if err != nil {
		h.writeStoreError(c, err, req.ConversationID)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *chatHandler) MarkAsRead(c *gin.Context) {
	ident, ok := IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	conversationID := c.Param("conversationId")
	count, err := h.gateway.MarkAsRead(c.Request.Context(), conversationID, ident.ID)
	if err != nil {
		h.writeStoreError(c, err, conversationID)
		return
	}

	c.JSON(http.StatusOK, gin.H{"markedRead": count})
}

func (h *chatHandler) writeStoreError(c *gin.Context, err error, conversationID string) {
	switch {
	case errors.Is(err, repo.ErrConversationNotFound), errors.Is(err, repo.ErrInvalidConversation):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
	case errors.Is(err, repo.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this conversation"})
	case errors.Is(err, repo.ErrEmptyContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message content cannot be empty"})
	default:
		h.logger.Error("chat operation failed",
			zap.Error(err),
			zap.String("conversation_id", conversationID),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "operation failed"})
	}
}
