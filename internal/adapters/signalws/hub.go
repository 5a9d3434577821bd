package signalws

import (
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

const sendRetries = 3

// Hub routes outbound signaling frames to connected peers. It implements
// core.SignalSender for the session layer.
type Hub struct {
	mu    sync.RWMutex
	conns map[domain.ParticipantID]*WsConn
	rooms map[domain.RoomID]map[domain.ParticipantID]struct{}
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[domain.ParticipantID]*WsConn),
		rooms: make(map[domain.RoomID]map[domain.ParticipantID]struct{}),
	}
}

func (h *Hub) Register(room domain.RoomID, id domain.ParticipantID, c *WsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[id] = c
	peers, ok := h.rooms[room]
	if !ok {
		peers = make(map[domain.ParticipantID]struct{})
		h.rooms[room] = peers
	}
	peers[id] = struct{}{}
	log.Info().Str("module", "signalws").Str("room", string(room)).Str("participant", string(id)).Msg("peer registered")
}

func (h *Hub) Unregister(room domain.RoomID, id domain.ParticipantID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, id)
	if peers, ok := h.rooms[room]; ok {
		delete(peers, id)
		if len(peers) == 0 {
			delete(h.rooms, room)
		}
	}
	log.Info().Str("module", "signalws").Str("room", string(room)).Str("participant", string(id)).Msg("peer unregistered")
}

// Send delivers a frame to one peer, or to every peer in the room when no
// addressee is set. Transient backpressure is retried with exponential
// backoff before the frame is dropped.
func (h *Hub) Send(room domain.RoomID, to domain.ParticipantID, data core.Frame) error {
	if to != "" {
		c, ok := h.lookup(to)
		if !ok {
			return fmt.Errorf("no connection for participant %s", to)
		}
		return trySendRetry(c, data)
	}

	h.mu.RLock()
	peers := make([]*WsConn, 0)
	for id := range h.rooms[room] {
		if c, ok := h.conns[id]; ok {
			peers = append(peers, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range peers {
		if err := trySendRetry(c, data); err != nil {
			log.Warn().Err(err).Str("module", "signalws").Str("room", string(room)).Msg("broadcast frame dropped")
		}
	}
	return nil
}

func (h *Hub) lookup(id domain.ParticipantID) (*WsConn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[id]
	return c, ok
}

func trySendRetry(c *WsConn, data core.Frame) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 100 * time.Millisecond
	return backoff.Retry(func() error {
		err := c.TrySend(data)
		if err == nil {
			return nil
		}
		if err == ErrBackpressure {
			return err // retryable
		}
		return backoff.Permanent(err)
	}, backoff.WithMaxRetries(bo, sendRetries))
}
