package http

import (
	"net/http"

	"soundradius/internal/core/domain"
	"soundradius/internal/core/services"
	"soundradius/pkg/utils"
	"soundradius/pkg/validation"

	"github.com/gin-gonic/gin"
)

// AuthHandler issues session join tokens.
type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/tokens", h.IssueJoinToken)
	}
}

// IssueJoinToken mints a join token binding a participant identity to a
// session. Missing IDs are generated server-side.
func (h *AuthHandler) IssueJoinToken(c *gin.Context) {
	var req struct {
		SessionID     string `json:"session_id"`
		ParticipantID string `json:"participant_id"`
		DisplayName   string `json:"display_name" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := validation.ValidateDisplayName(req.DisplayName); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SessionID == "" {
		req.SessionID = utils.GenerateSessionID()
	}
	if req.ParticipantID == "" {
		req.ParticipantID = utils.GenerateParticipantID()
	}
	if err := validation.ValidateSessionID(req.SessionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateParticipantID(req.ParticipantID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.authService.GenerateJoinToken(
		domain.SessionID(req.SessionID),
		domain.ParticipantID(req.ParticipantID),
		req.DisplayName,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token":          token,
		"session_id":     req.SessionID,
		"participant_id": req.ParticipantID,
	})
}
