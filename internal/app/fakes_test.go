package app

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
	"github.com/dkeye/Call/internal/signal"
)

// fakeMedia records every call the engine makes against the transport
// collaborator so tests can assert ordering and exactly-once behavior.
type fakeMedia struct {
	mu        sync.Mutex
	remote    domain.ParticipantID
	localSet  []webrtc.SessionDescription
	remoteSet []webrtc.SessionDescription
	applied   []webrtc.ICECandidateInit
	closed    int

	failCreateOffer  bool
	failCreateAnswer bool
	failSetLocal     bool
	failSetRemote    bool

	onICE   func(webrtc.ICECandidateInit)
	onState func(webrtc.ICEConnectionState)
	onTrack func(webrtc.RTPCodecType, string)
}

func (f *fakeMedia) CreateOffer(video bool) (webrtc.SessionDescription, error) {
	if f.failCreateOffer {
		return webrtc.SessionDescription{}, errors.New("create offer refused")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-for-%s", f.remote)}, nil
}

func (f *fakeMedia) CreateAnswer(video bool) (webrtc.SessionDescription, error) {
	if f.failCreateAnswer {
		return webrtc.SessionDescription{}, errors.New("create answer refused")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer-for-%s", f.remote)}, nil
}

func (f *fakeMedia) SetLocalDescription(sd webrtc.SessionDescription) error {
	if f.failSetLocal {
		return errors.New("set local refused")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.localSet = append(f.localSet, sd)
	return nil
}

func (f *fakeMedia) SetRemoteDescription(sd webrtc.SessionDescription) error {
	if f.failSetRemote {
		return errors.New("set remote refused")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteSet = append(f.remoteSet, sd)
	return nil
}

func (f *fakeMedia) AddICECandidate(ci webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, ci)
	return nil
}

func (f *fakeMedia) OnICECandidate(fn func(webrtc.ICECandidateInit)) { f.onICE = fn }

func (f *fakeMedia) OnConnectionState(fn func(webrtc.ICEConnectionState)) { f.onState = fn }

func (f *fakeMedia) OnTrack(fn func(webrtc.RTPCodecType, string)) { f.onTrack = fn }

func (f *fakeMedia) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeMedia) appliedCandidates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.applied))
	for _, ci := range f.applied {
		out = append(out, ci.Candidate)
	}
	return out
}

// fakeFactory hands out fakeMedia links and remembers them per remote.
type fakeFactory struct {
	mu    sync.Mutex
	links []*fakeMedia
	fail  bool
}

func (f *fakeFactory) NewLink(room domain.RoomID, remote domain.ParticipantID, kind domain.CallKind) (core.MediaLink, error) {
	if f.fail {
		return nil, errors.New("factory refused")
	}
	m := &fakeMedia{remote: remote}
	f.mu.Lock()
	f.links = append(f.links, m)
	f.mu.Unlock()
	return m, nil
}

func (f *fakeFactory) link(remote domain.ParticipantID) *fakeMedia {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.links) - 1; i >= 0; i-- {
		if f.links[i].remote == remote {
			return f.links[i]
		}
	}
	return nil
}

// fakeSender decodes and collects outbound frames.
type fakeSender struct {
	mu   sync.Mutex
	sent []signal.Message
}

func (f *fakeSender) Send(room domain.RoomID, to domain.ParticipantID, data core.Frame) error {
	msg, err := signal.Decode(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) byType(k signal.Kind) []signal.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []signal.Message
	for _, m := range f.sent {
		if m.Type == k {
			out = append(out, m)
		}
	}
	return out
}

// sinkRecorder collects observer events.
type sinkRecorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (s *sinkRecorder) Notify(e core.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *sinkRecorder) byKind(k core.EventKind) []core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Event
	for _, e := range s.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func testOpts() Options {
	return Options{
		NegotiationTimeout: 0, // tests drive timeouts explicitly
		TokenTTL:           time.Hour,
		TokenSecret:        "test-secret",
		RecordingDir:       "/tmp/recordings",
	}
}

func newTestSession(self domain.ParticipantID) (*Session, *fakeFactory, *fakeSender, *sinkRecorder) {
	factory := &fakeFactory{}
	sender := &fakeSender{}
	sink := &sinkRecorder{}
	s := NewSession("room-1", self, factory, sender, sink, testOpts())
	return s, factory, sender, sink
}
