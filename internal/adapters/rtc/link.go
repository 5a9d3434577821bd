package rtc

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

// StatsFunc receives per-link receive bitrate estimates from the RTP pumps.
type StatsFunc func(room domain.RoomID, remote domain.ParticipantID, bitrateKbps float64)

// Factory builds one peer connection per remote participant.
type Factory struct {
	ICEServers []string
	Stats      StatsFunc
}

func (f *Factory) NewLink(room domain.RoomID, remote domain.ParticipantID, kind domain.CallKind) (core.MediaLink, error) {
	cfg := webrtc.Configuration{}
	if len(f.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: f.ICEServers}}
	}
	pc, err := newPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{pc: pc, room: room, remote: remote, ctx: ctx, cancel: cancel, stats: f.Stats}
	c.bind()
	return c, nil
}

// Conn adapts one pion PeerConnection to core.MediaLink.
type Conn struct {
	pc     *webrtc.PeerConnection
	room   domain.RoomID
	remote domain.ParticipantID
	ctx    context.Context
	cancel context.CancelFunc
	stats  StatsFunc

	onICE   func(webrtc.ICECandidateInit)
	onState func(webrtc.ICEConnectionState)
	onTrack func(kind webrtc.RTPCodecType, trackID string)

	closeOnce sync.Once
}

func (c *Conn) bind() {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("remote", string(c.remote)).Str("ice_state", s.String()).Msg("ICE state")
		if c.onState != nil {
			c.onState(s)
		}
	})
	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().Str("module", "rtc").Str("remote", string(c.remote)).
			Str("kind", track.Kind().String()).Str("track_id", track.ID()).Msg("remote track")
		go c.pump(track)
		if c.onTrack != nil {
			c.onTrack(track.Kind(), track.ID())
		}
	})
}

func (c *Conn) addTransceivers(video bool) error {
	if _, err := c.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	}); err != nil {
		return err
	}
	if !video {
		return nil
	}
	_, err := c.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	return err
}

func (c *Conn) CreateOffer(video bool) (webrtc.SessionDescription, error) {
	if err := c.addTransceivers(video); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return c.pc.CreateOffer(nil)
}

func (c *Conn) CreateAnswer(video bool) (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *Conn) SetLocalDescription(sd webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(sd)
}

func (c *Conn) SetRemoteDescription(sd webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(sd)
}

func (c *Conn) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *Conn) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

func (c *Conn) OnConnectionState(fn func(webrtc.ICEConnectionState)) { c.onState = fn }

func (c *Conn) OnTrack(fn func(kind webrtc.RTPCodecType, trackID string)) { c.onTrack = fn }

func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		if err := c.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("remote", string(c.remote)).Msg("close error")
		} else {
			log.Info().Str("module", "rtc").Str("remote", string(c.remote)).Msg("closed")
		}
	})
}
