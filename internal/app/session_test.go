package app

import (
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
	"github.com/dkeye/Call/internal/signal"
)

func TestStartOutgoingCall(t *testing.T) {
	s, factory, sender, _ := newTestSession("alice")

	require.NoError(t, s.Start("bob", domain.CallVideo, map[string]string{"display_name": "Alice"}))
	assert.Equal(t, CallDialing, s.State())

	require.NotNil(t, factory.link("bob"))
	offers := sender.byType(signal.KindOffer)
	require.Len(t, offers, 1)
	assert.Equal(t, domain.ParticipantID("bob"), offers[0].To)
	assert.Equal(t, domain.CallVideo, offers[0].CallKind)

	parts := s.Participants()
	require.Len(t, parts, 1)
	assert.Equal(t, domain.ParticipantID("bob"), parts[0].ID)

	assert.ErrorIs(t, s.Start("carol", domain.CallAudio, nil), core.ErrInvalidState)
}

func TestStartRejectsBadKind(t *testing.T) {
	s, _, _, _ := newTestSession("alice")
	assert.ErrorIs(t, s.Start("bob", "screencast", nil), core.ErrInvalidState)
	assert.Equal(t, CallNew, s.State())
}

func TestAnswerActivatesCall(t *testing.T) {
	s, _, _, sink := newTestSession("alice")
	require.NoError(t, s.Start("bob", domain.CallAudio, nil))

	s.HandleMessage(signal.Message{Type: signal.KindAnswer, Room: "room-1", From: "bob", SDP: "answer-sdp"})
	assert.Equal(t, CallActive, s.State())

	states := sink.byKind(core.EventCallStateChanged)
	require.Len(t, states, 2)
	assert.Equal(t, "dialing", states[0].State)
	assert.Equal(t, "active", states[1].State)
}

func TestICEConnectedActivatesCall(t *testing.T) {
	s, factory, _, sink := newTestSession("alice")
	require.NoError(t, s.Start("bob", domain.CallAudio, nil))

	link := factory.link("bob")
	require.NotNil(t, link)
	link.onState(webrtc.ICEConnectionStateConnected)

	assert.Equal(t, CallActive, s.State())
	netEvents := sink.byKind(core.EventNetworkChanged)
	require.NotEmpty(t, netEvents)
	assert.Equal(t, "connected", netEvents[0].State)
	assert.True(t, s.NetworkStatus().Connected)
}

func TestIncomingCallRingAcceptReplaysBuffered(t *testing.T) {
	s, factory, sender, _ := newTestSession("bob")

	s.HandleMessage(signal.Message{Type: signal.KindOffer, Room: "room-1", From: "carol", SDP: "carol-offer", CallKind: domain.CallAudio})
	assert.Equal(t, CallRinging, s.State())
	assert.Empty(t, s.Participants()) // nothing allocated before accept

	s.HandleMessage(signal.Message{Type: signal.KindCandidate, Room: "room-1", From: "carol", Candidate: "c1"})
	s.HandleMessage(signal.Message{Type: signal.KindCandidate, Room: "room-1", From: "carol", Candidate: "c2"})

	require.NoError(t, s.Accept())
	assert.Equal(t, CallActive, s.State())

	media := factory.link("carol")
	require.NotNil(t, media)
	require.Len(t, media.remoteSet, 1)
	assert.Equal(t, "carol-offer", media.remoteSet[0].SDP)
	assert.Equal(t, []string{"c1", "c2"}, media.appliedCandidates())

	answers := sender.byType(signal.KindAnswer)
	require.Len(t, answers, 1)
	assert.Equal(t, domain.ParticipantID("carol"), answers[0].To)

	assert.ErrorIs(t, s.Accept(), core.ErrInvalidState)
}

func TestRejectIncomingCall(t *testing.T) {
	s, _, sender, _ := newTestSession("bob")
	assert.ErrorIs(t, s.Reject(), core.ErrInvalidState)

	s.HandleMessage(signal.Message{Type: signal.KindOffer, Room: "room-1", From: "carol", SDP: "carol-offer", CallKind: domain.CallVideo})
	require.NoError(t, s.Reject())

	assert.Equal(t, CallEnded, s.State())
	rejects := sender.byType(signal.KindReject)
	require.Len(t, rejects, 1)
	assert.Equal(t, domain.ParticipantID("carol"), rejects[0].To)
	assert.Empty(t, s.Participants())
}

func TestEndIsIdempotent(t *testing.T) {
	s, factory, sender, sink := newTestSession("alice")
	require.NoError(t, s.Start("bob", domain.CallAudio, nil))

	require.NoError(t, s.End())
	assert.Equal(t, CallEnded, s.State())
	assert.Len(t, sender.byType(signal.KindBye), 1)
	assert.Equal(t, 1, factory.link("bob").closed)
	assert.Len(t, sink.byKind(core.EventParticipantLeft), 1)
	assert.True(t, s.ledger.Disposed())

	before := len(sink.events)
	require.NoError(t, s.End())
	require.NoError(t, s.End())
	assert.Len(t, sink.events, before) // no duplicate teardown events
	assert.Len(t, sender.byType(signal.KindBye), 1)

	// Messages after the end are dropped.
	s.HandleMessage(signal.Message{Type: signal.KindOffer, Room: "room-1", From: "carol", SDP: "x"})
	assert.Equal(t, CallEnded, s.State())
	assert.Empty(t, s.Participants())
}

func TestEndFromNew(t *testing.T) {
	s, _, sender, _ := newTestSession("alice")
	require.NoError(t, s.End())
	assert.Equal(t, CallEnded, s.State())
	assert.Empty(t, sender.byType(signal.KindBye))
}

func TestAddRemoveParticipant(t *testing.T) {
	s, _, sender, _ := newTestSession("alice")

	assert.ErrorIs(t, s.AddParticipant("dave"), core.ErrInvalidState)

	require.NoError(t, s.Start("bob", domain.CallAudio, nil))
	s.HandleMessage(signal.Message{Type: signal.KindAnswer, Room: "room-1", From: "bob", SDP: "answer-sdp"})
	require.Equal(t, CallActive, s.State())

	require.NoError(t, s.AddParticipant("dave"))
	assert.Len(t, sender.byType(signal.KindOffer), 2)
	assert.ErrorIs(t, s.AddParticipant("dave"), core.ErrDuplicateParticipant)
	assert.ErrorIs(t, s.AddParticipant("bob"), core.ErrDuplicateParticipant)

	assert.ErrorIs(t, s.RemoveParticipant("nobody"), core.ErrNotFound)
	require.NoError(t, s.RemoveParticipant("dave"))

	parts := s.Participants()
	require.Len(t, parts, 1)
	assert.Equal(t, domain.ParticipantID("bob"), parts[0].ID)
}

func TestPeerByeEndsEmptyCall(t *testing.T) {
	s, _, _, _ := newTestSession("alice")
	require.NoError(t, s.Start("bob", domain.CallAudio, nil))

	s.HandleMessage(signal.Message{Type: signal.KindBye, Room: "room-1", From: "bob"})
	assert.Equal(t, CallEnded, s.State())
}

func TestCallerHangupWhileRinging(t *testing.T) {
	s, _, _, _ := newTestSession("bob")
	s.HandleMessage(signal.Message{Type: signal.KindOffer, Room: "room-1", From: "carol", SDP: "x", CallKind: domain.CallAudio})
	require.Equal(t, CallRinging, s.State())

	s.HandleMessage(signal.Message{Type: signal.KindBye, Room: "room-1", From: "carol"})
	assert.Equal(t, CallEnded, s.State())
}

func TestNegotiationFailureTearsDownParticipant(t *testing.T) {
	s, factory, _, sink := newTestSession("alice")
	require.NoError(t, s.Start("bob", domain.CallAudio, nil))

	factory.link("bob").failSetRemote = true
	s.HandleMessage(signal.Message{Type: signal.KindAnswer, Room: "room-1", From: "bob", SDP: "answer-sdp"})

	require.Len(t, sink.byKind(core.EventNegotiationFailed), 1)
	assert.Empty(t, s.Participants())
	assert.Equal(t, CallEnded, s.State()) // last participant gone
}

func TestMuteIsIdempotent(t *testing.T) {
	s, _, _, _ := newTestSession("alice")
	assert.ErrorIs(t, s.MuteAudio(), core.ErrInvalidState)

	require.NoError(t, s.Start("bob", domain.CallAudio, nil))
	assert.False(t, s.AudioMuted())

	require.NoError(t, s.MuteAudio())
	require.NoError(t, s.MuteAudio())
	assert.True(t, s.AudioMuted())

	// The repeated mute must not log a second toggle.
	assert.Equal(t, 1, strings.Count(s.ExportLogs(), "audio_enabled off"))

	require.NoError(t, s.UnmuteAudio())
	assert.False(t, s.AudioMuted())
}

func TestSwitchCameraNeedsVideo(t *testing.T) {
	s, _, _, _ := newTestSession("alice")
	require.NoError(t, s.Start("bob", domain.CallAudio, nil))
	assert.ErrorIs(t, s.SwitchCamera(), core.ErrInvalidState)

	s2, _, _, _ := newTestSession("alice")
	require.NoError(t, s2.Start("bob", domain.CallVideo, nil))
	assert.NoError(t, s2.SwitchCamera())
}

func TestRecordingLifecycle(t *testing.T) {
	s, _, _, sink := newTestSession("alice")
	require.NoError(t, s.Start("bob", domain.CallVideo, nil))

	cfg := domain.RecordingConfig{Kind: domain.RecordBoth, Quality: domain.QualityHigh, Storage: domain.StorageLocal}
	_, err := s.StartRecording(cfg)
	assert.ErrorIs(t, err, core.ErrInvalidState) // not active yet

	s.HandleMessage(signal.Message{Type: signal.KindAnswer, Room: "room-1", From: "bob", SDP: "answer-sdp"})
	require.Equal(t, CallActive, s.State())

	_, err = s.StartRecording(domain.RecordingConfig{Kind: "timelapse"})
	assert.ErrorIs(t, err, core.ErrInvalidState)

	h, err := s.StartRecording(cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, h)

	_, err = s.StartRecording(cfg)
	assert.ErrorIs(t, err, core.ErrAlreadyRecording)

	path, err := s.StopRecording()
	require.NoError(t, err)
	assert.Contains(t, path, string(h))

	_, err = s.StopRecording()
	assert.ErrorIs(t, err, core.ErrNotRecording)

	assert.Len(t, sink.byKind(core.EventRecordingChanged), 2)
}

func TestScreenShareLifecycle(t *testing.T) {
	s, _, _, sink := newTestSession("alice")
	require.NoError(t, s.Start("bob", domain.CallAudio, nil))

	assert.ErrorIs(t, s.StartScreenShare(false), core.ErrInvalidState)

	s.HandleMessage(signal.Message{Type: signal.KindAnswer, Room: "room-1", From: "bob", SDP: "answer-sdp"})
	require.NoError(t, s.StartScreenShare(true))
	assert.ErrorIs(t, s.StartScreenShare(false), core.ErrAlreadySharing)
	require.NoError(t, s.StopScreenShare())
	assert.ErrorIs(t, s.StopScreenShare(), core.ErrNotSharing)

	assert.Len(t, sink.byKind(core.EventScreenShareChanged), 2)
}

func TestSetMediaControls(t *testing.T) {
	s, _, _, _ := newTestSession("alice")
	mc := domain.MediaControls{NoiseSuppression: true, EchoCancellation: true, VideoQuality: "high"}
	require.NoError(t, s.SetMediaControls(mc))

	require.NoError(t, s.Start("bob", domain.CallAudio, nil))
	require.NoError(t, s.End())
	assert.ErrorIs(t, s.SetMediaControls(mc), core.ErrInvalidState)
}

func TestSessionTokens(t *testing.T) {
	s, _, _, _ := newTestSession("alice")
	tok := s.GenerateToken()
	assert.NoError(t, s.ValidateToken(tok))

	factory := &fakeFactory{}
	other := NewSession("room-2", "alice", factory, &fakeSender{}, nil, testOpts())
	assert.ErrorIs(t, other.ValidateToken(tok), core.ErrTokenRoomMismatch)

	opts := testOpts()
	opts.TokenTTL = -time.Minute
	stale := NewSession("room-1", "alice", factory, &fakeSender{}, nil, opts)
	assert.ErrorIs(t, s.ValidateToken(stale.GenerateToken()), core.ErrTokenExpired)

	assert.ErrorIs(t, s.ValidateToken("not-a-token"), core.ErrTokenInvalid)
}

func TestSecurityOptionsOnlyBeforeStart(t *testing.T) {
	s, _, _, _ := newTestSession("alice")
	require.NoError(t, s.SetSecurityOptions(domain.SecurityOptions{E2EE: true}))

	require.NoError(t, s.Start("bob", domain.CallAudio, nil))
	assert.ErrorIs(t, s.SetSecurityOptions(domain.SecurityOptions{}), core.ErrInvalidState)
}

func TestRecordSampleEmitsQualityChange(t *testing.T) {
	s, _, _, sink := newTestSession("alice")
	require.NoError(t, s.Start("bob", domain.CallAudio, nil))

	poor := Sample{Participant: "bob", RTT: 500 * time.Millisecond, PacketLoss: 0.1}
	s.RecordSample(poor)
	s.RecordSample(poor)

	quality := sink.byKind(core.EventQualityChanged)
	require.Len(t, quality, 1) // classification unchanged on the second sample
	assert.Equal(t, string(domain.QualityPoor), quality[0].State)
	assert.Len(t, sink.byKind(core.EventMetricsUpdated), 2)

	sum := s.Metrics()
	assert.Equal(t, 2, sum.Samples)
	assert.Equal(t, sum, s.Metrics()) // reading metrics has no side effects

	status := s.NetworkStatus()
	assert.Equal(t, domain.QualityPoor, status.Quality)
}

func TestBackgroundModeEvent(t *testing.T) {
	s, _, _, sink := newTestSession("alice")

	require.NoError(t, s.SetBackgroundMode(domain.BackgroundOptions{Enabled: true, KeepAlive: true}))
	require.NoError(t, s.SetBackgroundMode(domain.BackgroundOptions{Enabled: true}))
	require.NoError(t, s.SetBackgroundMode(domain.BackgroundOptions{Enabled: false}))

	events := sink.byKind(core.EventBackgroundChanged)
	require.Len(t, events, 2)
	assert.Equal(t, "on", events[0].State)
	assert.Equal(t, "off", events[1].State)
}

func TestWaitState(t *testing.T) {
	s, _, _, _ := newTestSession("alice")
	require.NoError(t, s.Start("bob", domain.CallAudio, nil))

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = s.End()
	}()
	assert.NoError(t, s.WaitState(CallEnded, time.Second))

	// Already in the target state: returns immediately.
	assert.NoError(t, s.WaitState(CallEnded, time.Millisecond))

	assert.ErrorIs(t, s.WaitState(CallActive, 10*time.Millisecond), core.ErrNegotiationTimeout)
}
