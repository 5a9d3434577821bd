// Package signal serializes the call signaling message set to and from
// the transport payload format (JSON with a type discriminator).
package signal

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

type Kind string

const (
	KindOffer     Kind = "offer"
	KindAnswer    Kind = "answer"
	KindCandidate Kind = "candidate"
	KindReject    Kind = "reject"
	KindBye       Kind = "bye"
	KindPing      Kind = "ping"
	KindPong      Kind = "pong"
)

// Message is the wire envelope. Only the fields relevant to Type are set.
type Message struct {
	Type Kind                 `json:"type"`
	Room domain.RoomID        `json:"room"`
	From domain.ParticipantID `json:"from,omitempty"`
	To   domain.ParticipantID `json:"to,omitempty"`

	// offer / answer
	SDP      string            `json:"sdp,omitempty"`
	CallKind domain.CallKind   `json:"call_kind,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`

	// candidate
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

func Encode(m Message) (core.Frame, error) {
	if !known(m.Type) {
		return nil, fmt.Errorf("encode %q: %w", m.Type, core.ErrMalformed)
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", m.Type, core.ErrMalformed)
	}
	return b, nil
}

// Decode parses an inbound payload. Any malformed or unrecognized frame
// yields core.ErrMalformed; callers treat that as a dropped message.
func Decode(data core.Frame) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode: %w", core.ErrMalformed)
	}
	if !known(m.Type) {
		return Message{}, fmt.Errorf("decode %q: %w", m.Type, core.ErrMalformed)
	}
	switch m.Type {
	case KindOffer, KindAnswer:
		if m.SDP == "" {
			return Message{}, fmt.Errorf("decode %q: empty sdp: %w", m.Type, core.ErrMalformed)
		}
	case KindCandidate:
		if m.Candidate == "" {
			return Message{}, fmt.Errorf("decode candidate: empty: %w", core.ErrMalformed)
		}
	}
	return m, nil
}

func known(k Kind) bool {
	switch k {
	case KindOffer, KindAnswer, KindCandidate, KindReject, KindBye, KindPing, KindPong:
		return true
	}
	return false
}
