package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"LegalWise/internal/model"
	"LegalWise/internal/repo"
)

// ParticipantHandler exposes the participant directory: the lawyer listing
// clients browse before opening a consultation, and the sync endpoint the
// marketplace calls to mirror its user records into the messaging side.
type ParticipantHandler interface {
	ListLawyers(c *gin.Context)
	SyncParticipant(c *gin.Context)
}

type participantHandler struct {
	participants repo.ParticipantRepository
	logger       *zap.Logger
}

func NewParticipantHandler(participants repo.ParticipantRepository, logger *zap.Logger) ParticipantHandler {
	return &participantHandler{
		participants: participants,
		logger:       logger,
	}
}

func (h *participantHandler) ListLawyers(c *gin.Context) {
	lawyers, err := h.participants.ListByRole(c.Request.Context(), model.RoleLawyer)
	if err != nil {
		h.logger.Error("list lawyers failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list lawyers"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"lawyers": lawyers})
}

type syncParticipantRequest struct {
	ID          string `json:"id" binding:"required"`
	Role        string `json:"role" binding:"required"`
	DisplayName string `json:"displayName" binding:"required"`
	Email       string `json:"email"`
	Avatar      string `json:"avatar"`
}

// SyncParticipant upserts a marketplace user record. Identity issuance stays
// external; this only mirrors the fields the chat surface renders.
func (h *participantHandler) SyncParticipant(c *gin.Context) {
	var req syncParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id, role and displayName are required"})
		return
	}
	if req.Role != model.RoleClient && req.Role != model.RoleLawyer {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be client or lawyer"})
		return
	}

	p := model.Participant{
		ID:          req.ID,
		Role:        req.Role,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Avatar:      req.Avatar,
	}
	if err := h.participants.Upsert(c.Request.Context(), p); err != nil {
		h.logger.Error("participant sync failed", zap.Error(err), zap.String("participant_id", req.ID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sync participant"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"participant": p})
}
