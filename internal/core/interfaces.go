package core

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Call/internal/domain"
)

// Frame is a raw binary signaling payload.
type Frame []byte

// SignalSender is the outbound half of the signaling transport.
// Owned by the adapter; Send must not block on a slow peer.
type SignalSender interface {
	Send(room domain.RoomID, to domain.ParticipantID, data Frame) error
}

// MediaLink abstracts one peer link of the media-transport collaborator.
// All Set*/Add* calls complete asynchronously inside the transport; the
// On* callbacks may fire on arbitrary goroutines.
type MediaLink interface {
	CreateOffer(video bool) (webrtc.SessionDescription, error)
	CreateAnswer(video bool) (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error

	// OnICECandidate sets a callback for newly gathered local candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnConnectionState sets a callback for ICE connection state changes.
	OnConnectionState(func(webrtc.ICEConnectionState))
	// OnTrack sets a callback invoked when a remote track arrives.
	OnTrack(func(kind webrtc.RTPCodecType, trackID string))

	// Close stops the underlying transport resources. Idempotent.
	Close()
}

// MediaLinkFactory creates one MediaLink per remote participant.
type MediaLinkFactory interface {
	NewLink(room domain.RoomID, remote domain.ParticipantID, kind domain.CallKind) (MediaLink, error)
}
