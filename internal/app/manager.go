package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
	"github.com/dkeye/Call/internal/signal"
)

// Manager owns all live sessions, keyed by room. The map lock is held only
// for lookup and insertion; sessions serialize themselves, so operations
// on different sessions proceed concurrently.
type Manager struct {
	mu       sync.RWMutex
	sessions map[domain.RoomID]*Session

	media  core.MediaLinkFactory
	sender core.SignalSender
	sink   core.EventSink
	opts   Options
}

func NewManager(media core.MediaLinkFactory, sender core.SignalSender, sink core.EventSink, opts Options) *Manager {
	return &Manager{
		sessions: make(map[domain.RoomID]*Session),
		media:    media,
		sender:   sender,
		sink:     sink,
		opts:     opts,
	}
}

// GetOrCreate returns the session for a room, creating it in New state.
func (m *Manager) GetOrCreate(room domain.RoomID, self domain.ParticipantID) *Session {
	m.mu.RLock()
	s, ok := m.sessions[room]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.sessions[room]; !ok {
		s = NewSession(room, self, m.media, m.sender, m.sink, m.opts)
		m.sessions[room] = s
		log.Info().Str("module", "app.manager").Str("room", string(room)).Str("self", string(self)).Msg("session created")
	}
	return s
}

func (m *Manager) Get(room domain.RoomID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[room]
	return s, ok
}

// Drop forgets an ended session. Ending it first is the caller's job.
func (m *Manager) Drop(room domain.RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, room)
	log.Info().Str("module", "app.manager").Str("room", string(room)).Msg("session dropped")
}

// OnMessage is the inbound signaling delivery callback. Malformed frames
// and frames for unknown rooms are logged and dropped, never fatal.
func (m *Manager) OnMessage(room domain.RoomID, self domain.ParticipantID, data core.Frame) {
	msg, err := signal.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.manager").Str("room", string(room)).Msg("dropping malformed signaling payload")
		return
	}
	if msg.Room == "" {
		msg.Room = room
	}
	var s *Session
	if msg.Type == signal.KindOffer {
		// An offer may open a brand-new inbound session.
		s = m.GetOrCreate(msg.Room, self)
	} else {
		var ok bool
		s, ok = m.Get(msg.Room)
		if !ok {
			log.Debug().Str("module", "app.manager").Str("room", string(msg.Room)).
				Str("type", string(msg.Type)).Msg("message for unknown session dropped")
			return
		}
	}
	s.HandleMessage(msg)
}
