// Package http exposes the call application API over gin.
package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Call/internal/adapters/signalws"
	"github.com/dkeye/Call/internal/app"
	"github.com/dkeye/Call/internal/config"
	"github.com/dkeye/Call/internal/domain"
)

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, mgr *app.Manager, hub *signalws.Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("CallSessions", store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "adapters.http").Int("port", cfg.Port).Msg("router setup")

	h := &Handlers{Manager: mgr, Self: domain.ParticipantID(cfg.SelfID)}

	api := r.Group("/api")
	calls := api.Group("/call/:room")
	{
		calls.POST("/start", h.StartCall)
		calls.POST("/accept", h.AcceptCall)
		calls.POST("/reject", h.RejectCall)
		calls.POST("/end", h.EndCall)

		calls.POST("/audio/mute", h.MuteAudio)
		calls.POST("/audio/unmute", h.UnmuteAudio)
		calls.POST("/video/mute", h.MuteVideo)
		calls.POST("/video/unmute", h.UnmuteVideo)
		calls.POST("/camera/switch", h.SwitchCamera)
		calls.PUT("/media-controls", h.SetMediaControls)

		calls.POST("/screen-share", h.StartScreenShare)
		calls.DELETE("/screen-share", h.StopScreenShare)
		calls.POST("/recording", h.StartRecording)
		calls.DELETE("/recording", h.StopRecording)

		calls.POST("/participants", h.AddParticipant)
		calls.DELETE("/participants/:id", h.RemoveParticipant)
		calls.GET("/participants", h.GetParticipants)

		calls.PUT("/network-config", h.SetNetworkConfig)
		calls.GET("/network-status", h.GetNetworkStatus)
		calls.PUT("/security-options", h.SetSecurityOptions)
		calls.POST("/token", h.GenerateToken)
		calls.POST("/token/validate", h.ValidateToken)
		calls.PUT("/background-mode", h.SetBackgroundMode)

		calls.GET("/metrics", h.GetMetrics)
		calls.GET("/logs", h.ExportLogs)
	}

	ctl := signalws.NewController(hub, mgr, domain.ParticipantID(cfg.SelfID), cfg.ReadLimit, cfg.PingPeriod)
	api.GET("/ws/signal", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})

	return r
}
