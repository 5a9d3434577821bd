package signalws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Call/internal/app"
	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller accepts peer websocket connections and feeds inbound frames
// into the session manager.
type Controller struct {
	Hub     *Hub
	Manager *app.Manager
	Self    domain.ParticipantID

	ReadLimit  int64
	PingPeriod time.Duration
}

func NewController(hub *Hub, mgr *app.Manager, self domain.ParticipantID, readLimit int64, pingPeriod time.Duration) *Controller {
	return &Controller{Hub: hub, Manager: mgr, Self: self, ReadLimit: readLimit, PingPeriod: pingPeriod}
}

// HandleSignal upgrades /api/ws/signal?room=<id>. The connecting peer is
// identified by its client token cookie.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	room := domain.RoomID(c.Query("room"))
	peer := domain.ParticipantID(c.GetString("client_token"))
	if room == "" || peer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room and client token required"})
		return
	}
	log.Info().Str("module", "signalws").Str("room", string(room)).Str("peer", string(peer)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signalws").Msg("ws upgrade")
		return
	}

	conn := newWsConn(ws)
	ctl.Hub.Register(room, peer, conn)

	ctx, cancel := context.WithCancel(ctx)
	go conn.writePump(ctx, ctl.PingPeriod)
	go func() {
		defer cancel()
		defer ctl.Hub.Unregister(room, peer)
		conn.readPump(ctx, ctl.ReadLimit, func(data core.Frame) {
			ctl.Manager.OnMessage(room, ctl.Self, data)
		})
	}()
}
