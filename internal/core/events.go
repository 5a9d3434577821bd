package core

import (
	"time"

	"github.com/dkeye/Call/internal/domain"
)

// EventKind is the closed set of externally meaningful transitions.
type EventKind string

const (
	EventCallStateChanged   EventKind = "call_state_changed"
	EventParticipantJoined  EventKind = "participant_joined"
	EventParticipantLeft    EventKind = "participant_left"
	EventQualityChanged     EventKind = "quality_changed"
	EventScreenShareChanged EventKind = "screen_share_changed"
	EventRecordingChanged   EventKind = "recording_changed"
	EventNetworkChanged     EventKind = "network_status_changed"
	EventMetricsUpdated     EventKind = "metrics_updated"
	EventBackgroundChanged  EventKind = "background_mode_changed"
	EventNegotiationFailed  EventKind = "negotiation_failed"
)

// Event is delivered exactly once per transition, in transition order.
type Event struct {
	Kind        EventKind            `json:"kind"`
	Room        domain.RoomID        `json:"room"`
	Participant domain.ParticipantID `json:"participant,omitempty"`
	State       string               `json:"state,omitempty"`
	Detail      string               `json:"detail,omitempty"`
	At          time.Time            `json:"at"`
}

// EventSink receives session observability events. Implementations must
// not call back into the session from Notify.
type EventSink interface {
	Notify(Event)
}

// EventSinkFunc adapts a plain function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Notify(e Event) { f(e) }
