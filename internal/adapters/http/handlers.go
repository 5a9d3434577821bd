package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Call/internal/app"
	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

type Handlers struct {
	Manager *app.Manager
	Self    domain.ParticipantID
}

func (h *Handlers) room(c *gin.Context) domain.RoomID {
	return domain.RoomID(c.Param("room"))
}

// session resolves an existing session or answers 404.
func (h *Handlers) session(c *gin.Context) (*app.Session, bool) {
	s, ok := h.Manager.Get(h.room(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no session for room"})
	}
	return s, ok
}

// fail maps the error taxonomy onto HTTP statuses so callers can decide
// whether to retry.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrDuplicateParticipant),
		errors.Is(err, core.ErrAlreadyRecording),
		errors.Is(err, core.ErrAlreadySharing):
		status = http.StatusConflict
	case errors.Is(err, core.ErrNotRecording), errors.Is(err, core.ErrNotSharing):
		status = http.StatusConflict
	case errors.Is(err, core.ErrMalformed):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrNegotiationTimeout):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handlers) StartCall(c *gin.Context) {
	var req struct {
		Peer string            `json:"peer" binding:"required"`
		Kind domain.CallKind   `json:"kind" binding:"required"`
		Meta map[string]string `json:"meta"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	s := h.Manager.GetOrCreate(h.room(c), h.Self)
	if err := s.Start(domain.ParticipantID(req.Peer), req.Kind, req.Meta); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"state": s.State().String()})
}

func (h *Handlers) AcceptCall(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Accept(); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.State().String()})
}

func (h *Handlers) RejectCall(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Reject(); err != nil {
		fail(c, err)
		return
	}
	h.Manager.Drop(s.Room())
	c.JSON(http.StatusOK, gin.H{"state": s.State().String()})
}

func (h *Handlers) EndCall(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.End(); err != nil {
		fail(c, err)
		return
	}
	h.Manager.Drop(s.Room())
	c.JSON(http.StatusOK, gin.H{"state": s.State().String()})
}

func (h *Handlers) simpleOp(c *gin.Context, op func(*app.Session) error) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := op(s); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) MuteAudio(c *gin.Context)   { h.simpleOp(c, (*app.Session).MuteAudio) }
func (h *Handlers) UnmuteAudio(c *gin.Context) { h.simpleOp(c, (*app.Session).UnmuteAudio) }
func (h *Handlers) MuteVideo(c *gin.Context)   { h.simpleOp(c, (*app.Session).MuteVideo) }
func (h *Handlers) UnmuteVideo(c *gin.Context) { h.simpleOp(c, (*app.Session).UnmuteVideo) }
func (h *Handlers) SwitchCamera(c *gin.Context) {
	h.simpleOp(c, (*app.Session).SwitchCamera)
}

func (h *Handlers) SetMediaControls(c *gin.Context) {
	var mc domain.MediaControls
	if err := c.ShouldBindJSON(&mc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	h.simpleOp(c, func(s *app.Session) error { return s.SetMediaControls(mc) })
}

func (h *Handlers) StartScreenShare(c *gin.Context) {
	var req struct {
		WithAudio bool `json:"with_audio"`
	}
	_ = c.ShouldBindJSON(&req)
	h.simpleOp(c, func(s *app.Session) error { return s.StartScreenShare(req.WithAudio) })
}

func (h *Handlers) StopScreenShare(c *gin.Context) {
	h.simpleOp(c, (*app.Session).StopScreenShare)
}

func (h *Handlers) StartRecording(c *gin.Context) {
	var cfg domain.RecordingConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	handle, err := s.StartRecording(cfg)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"handle": handle})
}

func (h *Handlers) StopRecording(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	path, err := s.StopRecording()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

func (h *Handlers) AddParticipant(c *gin.Context) {
	var req struct {
		ID string `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	h.simpleOp(c, func(s *app.Session) error { return s.AddParticipant(domain.ParticipantID(req.ID)) })
}

func (h *Handlers) RemoveParticipant(c *gin.Context) {
	id := domain.ParticipantID(c.Param("id"))
	h.simpleOp(c, func(s *app.Session) error { return s.RemoveParticipant(id) })
}

func (h *Handlers) GetParticipants(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": s.Participants()})
}

func (h *Handlers) SetNetworkConfig(c *gin.Context) {
	var cfg domain.NetworkConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	h.simpleOp(c, func(s *app.Session) error { return s.SetNetworkConfig(cfg) })
}

func (h *Handlers) GetNetworkStatus(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.NetworkStatus())
}

func (h *Handlers) SetSecurityOptions(c *gin.Context) {
	var opts domain.SecurityOptions
	if err := c.ShouldBindJSON(&opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	h.simpleOp(c, func(s *app.Session) error { return s.SetSecurityOptions(opts) })
}

func (h *Handlers) GenerateToken(c *gin.Context) {
	s := h.Manager.GetOrCreate(h.room(c), h.Self)
	c.JSON(http.StatusOK, gin.H{"token": s.GenerateToken()})
}

func (h *Handlers) ValidateToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.ValidateToken(req.Token); err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "reason": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

func (h *Handlers) SetBackgroundMode(c *gin.Context) {
	var opts domain.BackgroundOptions
	if err := c.ShouldBindJSON(&opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	h.simpleOp(c, func(s *app.Session) error { return s.SetBackgroundMode(opts) })
}

func (h *Handlers) GetMetrics(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Metrics())
}

func (h *Handlers) ExportLogs(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.String(http.StatusOK, s.ExportLogs())
}
