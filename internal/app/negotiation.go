package app

import (
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
	"github.com/dkeye/Call/internal/signal"
)

type LinkState int

const (
	LinkIdle LinkState = iota
	LinkOfferCreated
	LinkOfferSent
	LinkAnswerPending
	LinkOfferReceived
	LinkAnswerCreated
	LinkAnswerSent
	LinkNegotiating
	LinkConnected
	LinkDisconnected
	LinkFailed
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkIdle:
		return "idle"
	case LinkOfferCreated:
		return "offer_created"
	case LinkOfferSent:
		return "offer_sent"
	case LinkAnswerPending:
		return "answer_pending"
	case LinkOfferReceived:
		return "offer_received"
	case LinkAnswerCreated:
		return "answer_created"
	case LinkAnswerSent:
		return "answer_sent"
	case LinkNegotiating:
		return "negotiating"
	case LinkConnected:
		return "connected"
	case LinkDisconnected:
		return "disconnected"
	case LinkFailed:
		return "failed"
	case LinkClosed:
		return "closed"
	}
	return "unknown"
}

// Terminal states accept no further transitions.
func (s LinkState) Terminal() bool { return s == LinkFailed || s == LinkClosed }

// offering states participate in glare resolution.
func (s LinkState) offering() bool {
	return s == LinkOfferCreated || s == LinkOfferSent || s == LinkAnswerPending
}

// waiting states are subject to the negotiation deadline.
func (s LinkState) waiting() bool {
	return s == LinkOfferSent || s == LinkAnswerPending || s == LinkAnswerSent || s == LinkNegotiating
}

// Link drives the offer/answer/candidate exchange for one remote
// participant. It is not self-locking: the owning session serializes
// every entry point, including timer and transport callbacks.
type Link struct {
	room   domain.RoomID
	local  domain.ParticipantID
	remote domain.ParticipantID
	kind   domain.CallKind
	media  core.MediaLink

	// send hands an encoded message to the outbound signaling sink.
	send func(signal.Message) error
	// fresh replaces the media link after yielding an offer in glare.
	fresh func() (core.MediaLink, error)
	// onFail notifies the session of an asynchronous terminal failure.
	onFail func(remote domain.ParticipantID, err error)
	// onState notifies the session of externally meaningful transitions.
	onState func(remote domain.ParticipantID, state LinkState)
	// onExpire re-enters the session lock when the deadline fires.
	onExpire func(remote domain.ParticipantID, epoch uint64)

	state      LinkState
	haveRemote bool
	pending    []webrtc.ICECandidateInit
	timeout    time.Duration
	timer      *time.Timer
	epoch      uint64
}

func (l *Link) State() LinkState             { return l.state }
func (l *Link) Remote() domain.ParticipantID { return l.remote }
func (l *Link) PendingCandidates() int       { return len(l.pending) }

func (l *Link) setState(s LinkState) {
	if l.state == s {
		return
	}
	log.Debug().Str("module", "app.link").Str("remote", string(l.remote)).
		Str("from", l.state.String()).Str("to", s.String()).Msg("link transition")
	l.state = s
	if l.onState != nil {
		l.onState(l.remote, s)
	}
}

// StartOffer runs the outgoing path: create the offer, set it locally and
// hand it to the signaling sink. Local failures transition to Failed and
// are returned to the caller of the originating action.
func (l *Link) StartOffer(meta map[string]string) error {
	if l.state != LinkIdle {
		return core.ErrInvalidState
	}
	offer, err := l.media.CreateOffer(l.kind.WantsVideo())
	if err != nil {
		l.fail(fmt.Errorf("%w: %v", core.ErrLocalDescription, err))
		return core.ErrLocalDescription
	}
	l.setState(LinkOfferCreated)
	if err := l.media.SetLocalDescription(offer); err != nil {
		l.fail(fmt.Errorf("%w: %v", core.ErrLocalDescription, err))
		return core.ErrLocalDescription
	}
	l.setState(LinkOfferSent)
	msg := signal.Message{
		Type:     signal.KindOffer,
		Room:     l.room,
		From:     l.local,
		To:       l.remote,
		SDP:      offer.SDP,
		CallKind: l.kind,
		Meta:     meta,
	}
	if err := l.send(msg); err != nil {
		log.Warn().Err(err).Str("module", "app.link").Str("remote", string(l.remote)).Msg("offer send failed")
	}
	l.armDeadline()
	l.setState(LinkAnswerPending)
	return nil
}

// HandleRemoteOffer runs the incoming path, resolving glare first: when
// both ends offered concurrently, the side with the lexicographically
// smaller participant id yields its own offer and answers the remote one.
func (l *Link) HandleRemoteOffer(sdp string) error {
	if l.state.Terminal() {
		return nil
	}
	if l.state.offering() {
		if l.local >= l.remote {
			// Remote side yields; keep our offer in flight.
			log.Info().Str("module", "app.link").Str("remote", string(l.remote)).Msg("glare: remote yields, ignoring offer")
			return nil
		}
		log.Info().Str("module", "app.link").Str("remote", string(l.remote)).Msg("glare: yielding local offer")
		if err := l.yield(); err != nil {
			l.fail(fmt.Errorf("%w: %v", core.ErrTransport, err))
			return core.ErrTransport
		}
	} else if l.state != LinkIdle {
		// Renegotiation is not modeled; a duplicate offer is dropped.
		return nil
	}
	l.setState(LinkOfferReceived)
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := l.media.SetRemoteDescription(remote); err != nil {
		l.fail(fmt.Errorf("%w: %v", core.ErrRemoteDescription, err))
		return core.ErrRemoteDescription
	}
	l.haveRemote = true
	l.flushPending()
	answer, err := l.media.CreateAnswer(l.kind.WantsVideo())
	if err != nil {
		l.fail(fmt.Errorf("%w: %v", core.ErrLocalDescription, err))
		return core.ErrLocalDescription
	}
	l.setState(LinkAnswerCreated)
	if err := l.media.SetLocalDescription(answer); err != nil {
		l.fail(fmt.Errorf("%w: %v", core.ErrLocalDescription, err))
		return core.ErrLocalDescription
	}
	msg := signal.Message{
		Type: signal.KindAnswer,
		Room: l.room,
		From: l.local,
		To:   l.remote,
		SDP:  answer.SDP,
	}
	if err := l.send(msg); err != nil {
		log.Warn().Err(err).Str("module", "app.link").Str("remote", string(l.remote)).Msg("answer send failed")
	}
	l.armDeadline()
	l.setState(LinkAnswerSent)
	return nil
}

// yield discards the local offer by replacing the media link; the stale
// link's eventual completions are dropped in the terminal-state checks.
func (l *Link) yield() error {
	l.media.Close()
	media, err := l.fresh()
	if err != nil {
		return err
	}
	l.media = media
	l.haveRemote = false
	l.state = LinkIdle
	return nil
}

// HandleAnswer applies the remote answer and flushes candidates buffered
// before the remote description existed, in arrival order.
func (l *Link) HandleAnswer(sdp string) error {
	if l.state.Terminal() {
		return nil
	}
	if l.state != LinkOfferSent && l.state != LinkAnswerPending {
		log.Debug().Str("module", "app.link").Str("remote", string(l.remote)).
			Str("state", l.state.String()).Msg("answer dropped in state")
		return nil
	}
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := l.media.SetRemoteDescription(remote); err != nil {
		l.fail(fmt.Errorf("%w: %v", core.ErrRemoteDescription, err))
		return core.ErrRemoteDescription
	}
	l.haveRemote = true
	l.flushPending()
	l.armDeadline()
	l.setState(LinkNegotiating)
	return nil
}

// HandleCandidate applies a remote candidate immediately when the remote
// description is set, otherwise buffers it FIFO.
func (l *Link) HandleCandidate(ci webrtc.ICECandidateInit) error {
	if l.state.Terminal() {
		return nil
	}
	if !l.haveRemote {
		l.pending = append(l.pending, ci)
		return nil
	}
	if err := l.media.AddICECandidate(ci); err != nil {
		log.Warn().Err(err).Str("module", "app.link").Str("remote", string(l.remote)).Msg("add candidate failed")
	}
	return nil
}

func (l *Link) flushPending() {
	for _, ci := range l.pending {
		if err := l.media.AddICECandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "app.link").Str("remote", string(l.remote)).Msg("flush candidate failed")
		}
	}
	l.pending = nil
}

// HandleICEState maps transport connection-state changes onto link
// transitions. Failures here never propagate into a caller's stack; the
// session is notified through onFail.
func (l *Link) HandleICEState(s webrtc.ICEConnectionState) {
	if l.state.Terminal() {
		return
	}
	switch s {
	case webrtc.ICEConnectionStateChecking:
		if l.state.waiting() && l.state != LinkNegotiating {
			l.setState(LinkNegotiating)
		}
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		l.disarmDeadline()
		l.setState(LinkConnected)
	case webrtc.ICEConnectionStateDisconnected:
		if l.state == LinkConnected {
			l.setState(LinkDisconnected)
		}
	case webrtc.ICEConnectionStateFailed:
		l.fail(fmt.Errorf("%w: ice failed", core.ErrTransport))
	}
}

// Close moves the link to Closed and releases the transport. Redundant
// calls and calls on failed links are no-ops.
func (l *Link) Close() {
	if l.state.Terminal() {
		return
	}
	l.disarmDeadline()
	l.media.Close()
	l.pending = nil
	l.setState(LinkClosed)
}

func (l *Link) fail(err error) {
	if l.state.Terminal() {
		return
	}
	l.disarmDeadline()
	l.media.Close()
	l.pending = nil
	log.Warn().Err(err).Str("module", "app.link").Str("remote", string(l.remote)).Msg("link failed")
	l.setState(LinkFailed)
	if l.onFail != nil {
		l.onFail(l.remote, err)
	}
}

// armDeadline (re)starts the negotiation timer. The epoch guards against
// a timer firing after the link moved on or closed.
func (l *Link) armDeadline() {
	l.disarmDeadline()
	if l.timeout <= 0 {
		return
	}
	epoch := l.epoch
	remote := l.remote
	expire := l.onExpire
	l.timer = time.AfterFunc(l.timeout, func() {
		if expire != nil {
			expire(remote, epoch)
		}
	})
}

func (l *Link) disarmDeadline() {
	l.epoch++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

// Expire forces the link to Failed when the negotiation deadline fires
// while it is still waiting. Stale epochs are ignored.
func (l *Link) Expire(epoch uint64) {
	if epoch != l.epoch || l.state.Terminal() || !l.state.waiting() {
		return
	}
	l.fail(core.ErrNegotiationTimeout)
}
