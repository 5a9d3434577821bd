package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
	"github.com/dkeye/Call/internal/signal"
)

type CallState int

const (
	CallNew CallState = iota
	CallDialing
	CallRinging
	CallActive
	CallEnding
	CallEnded
)

func (s CallState) String() string {
	switch s {
	case CallNew:
		return "new"
	case CallDialing:
		return "dialing"
	case CallRinging:
		return "ringing"
	case CallActive:
		return "active"
	case CallEnding:
		return "ending"
	case CallEnded:
		return "ended"
	}
	return "unknown"
}

// Options carries per-session policy parameters.
type Options struct {
	NegotiationTimeout time.Duration
	TokenTTL           time.Duration
	TokenSecret        string
	RecordingDir       string
}

// Session is the top-level call orchestrator. Every mutation of its state,
// registry and ledger runs under mu, whether it enters through the public
// API, an inbound signaling message, a transport callback or a timer.
type Session struct {
	mu sync.Mutex

	room      domain.RoomID
	self      domain.ParticipantID
	kind      domain.CallKind
	state     CallState
	createdAt time.Time

	reg      *Registry
	ledger   *Ledger
	metrics  *Collector
	security *SecurityContext

	media  core.MediaLinkFactory
	sender core.SignalSender
	sink   core.EventSink

	opts     Options
	netcfg   domain.NetworkConfig
	controls domain.MediaControls
	bg       domain.BackgroundOptions

	lastQuality domain.NetworkQuality
	pendingIn   []signal.Message // inbound messages buffered while ringing
	watchers    []chan CallState
}

func NewSession(
	room domain.RoomID,
	self domain.ParticipantID,
	media core.MediaLinkFactory,
	sender core.SignalSender,
	sink core.EventSink,
	opts Options,
) *Session {
	s := &Session{
		room:      room,
		self:      self,
		state:     CallNew,
		createdAt: time.Now(),
		reg:       NewRegistry(),
		ledger:    NewLedger(opts.RecordingDir),
		metrics:   NewCollector(),
		security:  NewSecurityContext(room, opts.TokenSecret, opts.TokenTTL),
		media:     media,
		sender:    sender,
		sink:      sink,
		opts:      opts,
	}
	return s
}

func (s *Session) Room() domain.RoomID { return s.room }

func (s *Session) State() CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setState runs under mu and emits exactly one lifecycle event.
func (s *Session) setState(next CallState) {
	if s.state == next {
		return
	}
	log.Info().Str("module", "app.session").Str("room", string(s.room)).
		Str("from", s.state.String()).Str("to", next.String()).Msg("session transition")
	s.state = next
	s.metrics.LogEvent("state", next.String())
	s.notify(core.Event{Kind: core.EventCallStateChanged, State: next.String()})
	for _, w := range s.watchers {
		select {
		case w <- next:
		default:
		}
	}
}

func (s *Session) notify(e core.Event) {
	if s.sink == nil {
		return
	}
	e.Room = s.room
	e.At = time.Now()
	s.sink.Notify(e)
}

// WaitState blocks until the session reaches the target state or the
// timeout passes. Callers that asked for an immediate acknowledgment use
// it to await the terminal outcome of a request.
func (s *Session) WaitState(target CallState, timeout time.Duration) error {
	s.mu.Lock()
	if s.state == target {
		s.mu.Unlock()
		return nil
	}
	w := make(chan CallState, 8)
	s.watchers = append(s.watchers, w)
	s.mu.Unlock()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case st := <-w:
			if st == target {
				return nil
			}
		case <-deadline.C:
			return core.ErrNegotiationTimeout
		}
	}
}

// Start places an outgoing call: New -> Dialing, creates the first
// participant's link and requests an offer. The terminal outcome arrives
// later through observer events.
func (s *Session) Start(peer domain.ParticipantID, kind domain.CallKind, meta map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != CallNew {
		return core.ErrInvalidState
	}
	if !kind.Valid() {
		return fmt.Errorf("call kind %q: %w", kind, core.ErrInvalidState)
	}
	s.kind = kind
	s.ledger.AcquireLocalStream(kind)
	s.setState(CallDialing)
	member, err := s.addMemberLocked(peer)
	if err != nil {
		return err
	}
	return member.Link.StartOffer(meta)
}

// Accept answers the buffered inbound offer: Ringing -> Active. Buffered
// candidates for the caller are replayed in arrival order.
func (s *Session) Accept() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != CallRinging {
		return core.ErrInvalidState
	}
	s.ledger.AcquireLocalStream(s.kind)
	s.setState(CallActive)
	buffered := s.pendingIn
	s.pendingIn = nil
	for _, msg := range buffered {
		s.dispatchLocked(msg)
	}
	return nil
}

// Reject declines a ringing call: emits a Reject message to the caller
// and moves straight to Ended.
func (s *Session) Reject() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != CallRinging {
		return core.ErrInvalidState
	}
	var caller domain.ParticipantID
	for _, msg := range s.pendingIn {
		if msg.Type == signal.KindOffer {
			caller = msg.From
			break
		}
	}
	s.sendLocked(signal.Message{Type: signal.KindReject, Room: s.room, From: s.self, To: caller})
	s.endLocked(false)
	return nil
}

// End tears the session down: Ending, then every participant and the
// ledger, then Ended. Idempotent; repeated calls are no-ops.
func (s *Session) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == CallEnded {
		return nil
	}
	s.endLocked(true)
	return nil
}

func (s *Session) endLocked(sendBye bool) {
	if s.state == CallEnded {
		return
	}
	s.setState(CallEnding)
	for _, m := range s.reg.Members() {
		if sendBye && !m.Link.State().Terminal() {
			s.sendLocked(signal.Message{Type: signal.KindBye, Room: s.room, From: s.self, To: m.Meta.ID})
		}
		s.removeMemberLocked(m.Meta.ID)
	}
	s.ledger.DisposeAll()
	s.pendingIn = nil
	s.setState(CallEnded)
}

// AddParticipant invites another endpoint into an active call.
func (s *Session) AddParticipant(id domain.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != CallActive {
		return core.ErrInvalidState
	}
	member, err := s.addMemberLocked(id)
	if err != nil {
		return err
	}
	return member.Link.StartOffer(nil)
}

func (s *Session) RemoveParticipant(id domain.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == CallNew || s.state == CallEnded {
		return core.ErrInvalidState
	}
	if _, ok := s.reg.Get(id); !ok {
		return core.ErrNotFound
	}
	s.removeMemberLocked(id)
	return nil
}

// Participants returns the live membership as an ordered copy.
func (s *Session) Participants() []domain.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Snapshot()
}

func (s *Session) addMemberLocked(id domain.ParticipantID) (*Member, error) {
	link, err := s.newLinkLocked(id)
	if err != nil {
		return nil, err
	}
	member, err := s.reg.Add(id, link)
	if err != nil {
		link.Close()
		return nil, err
	}
	s.metrics.LogEvent("join", string(id))
	s.notify(core.Event{Kind: core.EventParticipantJoined, Participant: id})
	return member, nil
}

// newLinkLocked builds a Link and binds the media transport callbacks.
// Transport callbacks fire on arbitrary goroutines and re-enter the
// session through the lock; callbacks for a link that has since closed
// are dropped by its terminal-state checks.
func (s *Session) newLinkLocked(remote domain.ParticipantID) (*Link, error) {
	l := &Link{
		room:    s.room,
		local:   s.self,
		remote:  remote,
		kind:    s.kind,
		send:    s.sendLocked,
		timeout: s.opts.NegotiationTimeout,
		onFail:  s.onLinkFailLocked,
		onState: s.onLinkStateLocked,
		onExpire: func(remote domain.ParticipantID, epoch uint64) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if m, ok := s.reg.Get(remote); ok {
				m.Link.Expire(epoch)
			}
		},
	}
	l.fresh = func() (core.MediaLink, error) { return s.bindMedia(l) }
	media, err := s.bindMedia(l)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrTransport, err)
	}
	l.media = media
	return l, nil
}

func (s *Session) bindMedia(l *Link) (core.MediaLink, error) {
	media, err := s.media.NewLink(s.room, l.remote, s.kind)
	if err != nil {
		return nil, err
	}
	remote := l.remote
	media.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.reg.Get(remote); !ok {
			return
		}
		msg := signal.Message{
			Type:          signal.KindCandidate,
			Room:          s.room,
			From:          s.self,
			To:            remote,
			Candidate:     ci.Candidate,
			SDPMid:        ci.SDPMid,
			SDPMLineIndex: ci.SDPMLineIndex,
		}
		s.sendLocked(msg)
	})
	media.OnConnectionState(func(st webrtc.ICEConnectionState) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if m, ok := s.reg.Get(remote); ok {
			m.Link.HandleICEState(st)
		}
	})
	media.OnTrack(func(kind webrtc.RTPCodecType, trackID string) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.reg.Get(remote); !ok {
			return
		}
		rk := ResourceAudioTrack
		if kind == webrtc.RTPCodecTypeVideo {
			rk = ResourceVideoTrack
		}
		s.ledger.AttachRemoteTrack(remote, rk)
	})
	return media, nil
}

// removeMemberLocked closes the link, disposes the participant's media
// resources and drops the registry entry, emitting one left event.
func (s *Session) removeMemberLocked(id domain.ParticipantID) {
	m, ok := s.reg.Get(id)
	if !ok {
		return
	}
	m.Link.Close()
	s.ledger.DisposeOwner(id)
	_ = s.reg.Remove(id)
	s.metrics.LogEvent("leave", string(id))
	s.notify(core.Event{Kind: core.EventParticipantLeft, Participant: id})
}

func (s *Session) sendLocked(msg signal.Message) error {
	frame, err := signal.Encode(msg)
	if err != nil {
		return err
	}
	if s.sender == nil {
		return nil
	}
	return s.sender.Send(s.room, msg.To, frame)
}

// onLinkFailLocked runs inside the session lock (link entry points are
// only reached under it). Async negotiation failures surface as events,
// never into an unrelated caller's stack.
func (s *Session) onLinkFailLocked(remote domain.ParticipantID, err error) {
	s.metrics.LogEvent("link_failed", string(remote))
	s.notify(core.Event{Kind: core.EventNegotiationFailed, Participant: remote, Detail: err.Error()})
	s.removeMemberLocked(remote)
	if s.reg.Len() == 0 && (s.state == CallDialing || s.state == CallActive) {
		s.endLocked(false)
	}
}

func (s *Session) onLinkStateLocked(remote domain.ParticipantID, st LinkState) {
	switch st {
	case LinkConnected:
		if s.state == CallDialing {
			s.setState(CallActive)
		}
		s.notify(core.Event{Kind: core.EventNetworkChanged, Participant: remote, State: "connected"})
	case LinkDisconnected:
		s.notify(core.Event{Kind: core.EventNetworkChanged, Participant: remote, State: "disconnected"})
	}
}

// HandleMessage dispatches one decoded inbound signaling message. Errors
// are logged by the caller and never fatal to the session.
func (s *Session) HandleMessage(msg signal.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == CallEnded || s.state == CallEnding {
		log.Debug().Str("module", "app.session").Str("room", string(s.room)).
			Str("type", string(msg.Type)).Msg("message for ended session dropped")
		return
	}
	s.dispatchLocked(msg)
}

func (s *Session) dispatchLocked(msg signal.Message) {
	switch msg.Type {
	case signal.KindOffer:
		s.handleOfferLocked(msg)
	case signal.KindAnswer:
		s.handleAnswerLocked(msg)
	case signal.KindCandidate:
		s.handleCandidateLocked(msg)
	case signal.KindReject:
		s.handlePeerGoneLocked(msg.From, "rejected")
	case signal.KindBye:
		s.handlePeerGoneLocked(msg.From, "bye")
	case signal.KindPing, signal.KindPong:
		// Transport keep-alive, nothing at session level.
	}
}

func (s *Session) handleOfferLocked(msg signal.Message) {
	switch s.state {
	case CallNew:
		// Incoming call: ring and buffer until the application accepts.
		if msg.CallKind.Valid() {
			s.kind = msg.CallKind
		} else {
			s.kind = domain.CallAudio
		}
		s.pendingIn = append(s.pendingIn, msg)
		s.setState(CallRinging)
	case CallRinging:
		s.pendingIn = append(s.pendingIn, msg)
	case CallDialing, CallActive:
		m, ok := s.reg.Get(msg.From)
		if !ok {
			var err error
			m, err = s.addMemberLocked(msg.From)
			if err != nil {
				log.Warn().Err(err).Str("module", "app.session").Str("from", string(msg.From)).Msg("offer: add participant")
				return
			}
		}
		if err := m.Link.HandleRemoteOffer(msg.SDP); err != nil {
			log.Warn().Err(err).Str("module", "app.session").Str("from", string(msg.From)).Msg("offer rejected")
		}
	}
}

func (s *Session) handleAnswerLocked(msg signal.Message) {
	m, ok := s.reg.Get(msg.From)
	if !ok {
		log.Debug().Str("module", "app.session").Str("from", string(msg.From)).Msg("answer from unknown participant dropped")
		return
	}
	if err := m.Link.HandleAnswer(msg.SDP); err != nil {
		log.Warn().Err(err).Str("module", "app.session").Str("from", string(msg.From)).Msg("answer rejected")
		return
	}
	if s.state == CallDialing {
		s.setState(CallActive)
	}
}

func (s *Session) handleCandidateLocked(msg signal.Message) {
	if s.state == CallRinging {
		s.pendingIn = append(s.pendingIn, msg)
		return
	}
	m, ok := s.reg.Get(msg.From)
	if !ok {
		log.Debug().Str("module", "app.session").Str("from", string(msg.From)).Msg("candidate from unknown participant dropped")
		return
	}
	ci := webrtc.ICECandidateInit{
		Candidate:     msg.Candidate,
		SDPMid:        msg.SDPMid,
		SDPMLineIndex: msg.SDPMLineIndex,
	}
	if err := m.Link.HandleCandidate(ci); err != nil {
		log.Warn().Err(err).Str("module", "app.session").Str("from", string(msg.From)).Msg("candidate rejected")
	}
}

func (s *Session) handlePeerGoneLocked(from domain.ParticipantID, reason string) {
	if s.state == CallRinging {
		// Caller hung up before we answered.
		s.metrics.LogEvent("peer_gone", string(from))
		s.endLocked(false)
		return
	}
	if _, ok := s.reg.Get(from); !ok {
		return
	}
	s.metrics.LogEvent(reason, string(from))
	s.removeMemberLocked(from)
	if s.reg.Len() == 0 {
		s.endLocked(false)
	}
}
