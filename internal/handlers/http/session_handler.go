package http

import (
	"errors"
	"net/http"

	"soundradius/internal/core/domain"
	"soundradius/internal/core/ports"
	"soundradius/internal/core/services"
	"soundradius/internal/infrastructure/monitoring"
	"soundradius/pkg/validation"

	"github.com/gin-gonic/gin"
)

// SessionHandler exposes the session controls over HTTP.
type SessionHandler struct {
	orchestrator ports.Orchestrator
	capture      ports.CaptureController
	registry     ports.PeerRegistry
	provider     ports.CaptureProvider
	health       *monitoring.HealthChecker

	minRadius float64
	maxRadius float64
}

func NewSessionHandler(
	orchestrator ports.Orchestrator,
	capture ports.CaptureController,
	registry ports.PeerRegistry,
	provider ports.CaptureProvider,
	health *monitoring.HealthChecker,
	minRadius, maxRadius float64,
) *SessionHandler {
	return &SessionHandler{
		orchestrator: orchestrator,
		capture:      capture,
		registry:     registry,
		provider:     provider,
		health:       health,
		minRadius:    minRadius,
		maxRadius:    maxRadius,
	}
}

func (h *SessionHandler) SetupRoutes(router *gin.Engine, authRequired gin.HandlerFunc) {
	router.GET("/health", h.Health)

	api := router.Group("/api/v1", authRequired)
	{
		api.GET("/session/snapshot", h.GetSnapshot)

		api.POST("/session/capture/acquire", h.AcquireCapture)
		api.PUT("/session/capture/audio", h.SetAudio)
		api.PUT("/session/capture/video", h.SetVideo)
		api.PUT("/session/capture/quality", h.SetQuality)
		api.POST("/session/capture/screenshare", h.ToggleScreenShare)
		api.GET("/session/devices", h.ListDevices)

		api.POST("/session/peers", h.JoinPeer)
		api.DELETE("/session/peers/:id", h.LeavePeer)
		api.PUT("/session/peers/:id/radius", h.SetPeerRadius)
		api.PUT("/session/peers/:id/mode", h.SetPeerSpeakingMode)
		api.PUT("/session/peers/:id/audio", h.SetPeerAudio)
		api.PUT("/session/peers/:id/video", h.SetPeerVideo)

		api.PUT("/session/local/radius", h.SetLocalRadius)
		api.PUT("/session/local/mode", h.SetLocalSpeakingMode)

		api.PUT("/session/layout/mode", h.SetLayoutMode)
		api.PUT("/session/layout/positions/:id", h.MoveParticipant)
	}
}

func (h *SessionHandler) GetSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"snapshot": h.orchestrator.Snapshot()})
}

func (h *SessionHandler) AcquireCapture(c *gin.Context) {
	var req struct {
		AudioDeviceID string `json:"audio_device_id"`
		VideoDeviceID string `json:"video_device_id"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.capture.Acquire(c.Request.Context(), req.AudioDeviceID, req.VideoDeviceID); err != nil {
		// Failed first attempt still leaves retries running; tell the
		// caller where the state machine stands.
		c.JSON(http.StatusAccepted, gin.H{
			"state": h.capture.State(),
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": h.capture.State()})
}

func (h *SessionHandler) SetAudio(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.capture.SetAudioEnabled(*req.Enabled)
	c.JSON(http.StatusOK, gin.H{"audio_enabled": h.capture.AudioEnabled()})
}

func (h *SessionHandler) SetVideo(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.capture.SetVideoEnabled(*req.Enabled)
	c.JSON(http.StatusOK, gin.H{
		"video_enabled": h.capture.VideoEnabled(),
		"state":         h.capture.State(),
	})
}

func (h *SessionHandler) SetQuality(c *gin.Context) {
	var req struct {
		Tier domain.QualityTier `json:"tier" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.capture.SetQuality(c.Request.Context(), req.Tier); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tier": h.capture.Quality()})
}

func (h *SessionHandler) ToggleScreenShare(c *gin.Context) {
	sharing, err := h.capture.ToggleScreenShare(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"screen_sharing": sharing})
}

func (h *SessionHandler) ListDevices(c *gin.Context) {
	devices, err := h.provider.EnumerateDevices(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

func (h *SessionHandler) JoinPeer(c *gin.Context) {
	var req struct {
		ID          string `json:"id" binding:"required"`
		DisplayName string `json:"display_name" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateParticipantID(req.ID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateDisplayName(req.DisplayName); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.registry.Join(c.Request.Context(), domain.ParticipantID(req.ID), req.DisplayName); err != nil {
		c.JSON(statusForDomainError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": req.ID})
}

func (h *SessionHandler) LeavePeer(c *gin.Context) {
	id := domain.ParticipantID(c.Param("id"))
	if err := h.registry.Leave(c.Request.Context(), id); err != nil {
		c.JSON(statusForDomainError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *SessionHandler) SetPeerRadius(c *gin.Context) {
	id := domain.ParticipantID(c.Param("id"))
	var req struct {
		Radius float64 `json:"radius"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Out-of-range requests are clamped, not rejected.
	if err := h.registry.UpdateRadius(id, req.Radius); err != nil {
		c.JSON(statusForDomainError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *SessionHandler) SetPeerSpeakingMode(c *gin.Context) {
	id := domain.ParticipantID(c.Param("id"))
	var req struct {
		Mode domain.SpeakingMode `json:"mode" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.registry.UpdateSpeakingMode(id, req.Mode); err != nil {
		c.JSON(statusForDomainError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "mode": req.Mode})
}

func (h *SessionHandler) SetPeerAudio(c *gin.Context) {
	id := domain.ParticipantID(c.Param("id"))
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.registry.UpdateAudio(id, *req.Enabled); err != nil {
		c.JSON(statusForDomainError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *SessionHandler) SetPeerVideo(c *gin.Context) {
	id := domain.ParticipantID(c.Param("id"))
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.registry.UpdateVideo(id, *req.Enabled); err != nil {
		c.JSON(statusForDomainError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *SessionHandler) SetLocalRadius(c *gin.Context) {
	var req struct {
		Radius float64 `json:"radius"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.orchestrator.SetLocalRadius(req.Radius)
	c.JSON(http.StatusOK, gin.H{"radius": h.orchestrator.Snapshot().Local.RadiusSize})
}

func (h *SessionHandler) SetLocalSpeakingMode(c *gin.Context) {
	var req struct {
		Mode domain.SpeakingMode `json:"mode" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.orchestrator.SetLocalSpeakingMode(req.Mode); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": req.Mode})
}

func (h *SessionHandler) SetLayoutMode(c *gin.Context) {
	var req struct {
		Mode domain.LayoutMode `json:"mode" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.orchestrator.SetLayoutMode(req.Mode); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": req.Mode})
}

func (h *SessionHandler) MoveParticipant(c *gin.Context) {
	id := domain.ParticipantID(c.Param("id"))
	var req struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidatePosition(req.X, req.Y); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.orchestrator.MoveParticipant(id, domain.Position{X: req.X, Y: req.Y}); err != nil {
		c.JSON(statusForDomainError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *SessionHandler) Health(c *gin.Context) {
	status := h.health.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// statusForDomainError maps domain sentinel errors to HTTP status codes.
func statusForDomainError(err error) int {
	switch {
	case errors.Is(err, domain.ErrPeerNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPeerExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotMovable), errors.Is(err, domain.ErrWrongLayoutMode):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRegistryClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrTransportOpenFailed):
		return http.StatusBadGateway
	case errors.Is(err, services.ErrInvalidToken), errors.Is(err, services.ErrExpiredToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
