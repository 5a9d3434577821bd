package app

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

type ResourceKind int

const (
	ResourceAudioTrack ResourceKind = iota
	ResourceVideoTrack
	ResourceCaptureStream
	ResourceRecorder
	ResourceScreenShare
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceAudioTrack:
		return "audio_track"
	case ResourceVideoTrack:
		return "video_track"
	case ResourceCaptureStream:
		return "capture_stream"
	case ResourceRecorder:
		return "recorder"
	case ResourceScreenShare:
		return "screen_share"
	}
	return "unknown"
}

type resourceState int

const (
	resourceCreated resourceState = iota
	resourceActive
	resourceDisposed
)

// sessionOwner marks resources owned by the session itself rather than
// by a remote participant.
const sessionOwner = domain.ParticipantID("")

type Resource struct {
	ID      string
	Kind    ResourceKind
	Owner   domain.ParticipantID
	Enabled bool
	state   resourceState
}

type RecordingHandle string

type recording struct {
	handle    RecordingHandle
	cfg       domain.RecordingConfig
	startedAt time.Time
}

type screenShare struct {
	withAudio bool
}

// Ledger tracks ownership and lifecycle of media resources for one session.
// Not self-locking: the owning session serializes all access.
type Ledger struct {
	dir       string // recording output directory
	resources []*Resource
	localAud  *Resource
	localVid  *Resource
	capture   *Resource
	rec       *recording
	share     *screenShare
	disposed  bool
}

func NewLedger(recordingDir string) *Ledger {
	return &Ledger{dir: recordingDir}
}

// AcquireLocalStream creates the capture stream and its tracks. The video
// track exists only for video calls.
func (l *Ledger) AcquireLocalStream(kind domain.CallKind) {
	if l.disposed || l.capture != nil {
		return
	}
	l.capture = l.attach(ResourceCaptureStream, sessionOwner)
	l.localAud = l.attach(ResourceAudioTrack, sessionOwner)
	if kind.WantsVideo() {
		l.localVid = l.attach(ResourceVideoTrack, sessionOwner)
	}
}

// AttachRemoteTrack records a remote media resource for a participant.
func (l *Ledger) AttachRemoteTrack(owner domain.ParticipantID, kind ResourceKind) *Resource {
	if l.disposed {
		return nil
	}
	return l.attach(kind, owner)
}

func (l *Ledger) attach(kind ResourceKind, owner domain.ParticipantID) *Resource {
	r := &Resource{
		ID:      uuid.NewString(),
		Kind:    kind,
		Owner:   owner,
		Enabled: true,
		state:   resourceActive,
	}
	l.resources = append(l.resources, r)
	log.Debug().Str("module", "app.ledger").Str("kind", kind.String()).Str("owner", string(owner)).Msg("resource attached")
	return r
}

// SetAudioEnabled mutes or unmutes the local audio track. Idempotent, and
// a silent no-op when the track is absent or already disposed.
func (l *Ledger) SetAudioEnabled(enabled bool) bool {
	return setEnabled(l.localAud, enabled)
}

// SetVideoEnabled mutes or unmutes the local video track. Same policy as
// SetAudioEnabled.
func (l *Ledger) SetVideoEnabled(enabled bool) bool {
	return setEnabled(l.localVid, enabled)
}

// setEnabled reports whether the flag actually changed.
func setEnabled(r *Resource, enabled bool) bool {
	if r == nil || r.state == resourceDisposed {
		return false
	}
	if r.Enabled == enabled {
		return false
	}
	r.Enabled = enabled
	return true
}

func (l *Ledger) AudioEnabled() bool { return l.localAud != nil && l.localAud.Enabled }
func (l *Ledger) VideoEnabled() bool { return l.localVid != nil && l.localVid.Enabled }

func (l *Ledger) StartRecording(cfg domain.RecordingConfig) (RecordingHandle, error) {
	if l.rec != nil {
		return "", core.ErrAlreadyRecording
	}
	h := RecordingHandle(uuid.NewString())
	l.rec = &recording{handle: h, cfg: cfg, startedAt: time.Now()}
	l.attach(ResourceRecorder, sessionOwner)
	log.Info().Str("module", "app.ledger").Str("kind", string(cfg.Kind)).Str("storage", string(cfg.Storage)).Msg("recording started")
	return h, nil
}

// StopRecording returns the output path for the finished recording.
func (l *Ledger) StopRecording() (string, error) {
	if l.rec == nil {
		return "", core.ErrNotRecording
	}
	rec := l.rec
	l.rec = nil
	l.disposeKind(ResourceRecorder)
	ext := "webm"
	if rec.cfg.Kind == domain.RecordAudio {
		ext = "ogg"
	}
	path := filepath.Join(l.dir, fmt.Sprintf("call-%s.%s", rec.handle, ext))
	log.Info().Str("module", "app.ledger").Str("path", path).Msg("recording stopped")
	return path, nil
}

func (l *Ledger) Recording() bool { return l.rec != nil }

func (l *Ledger) StartScreenShare(withAudio bool) error {
	if l.share != nil {
		return core.ErrAlreadySharing
	}
	l.share = &screenShare{withAudio: withAudio}
	l.attach(ResourceScreenShare, sessionOwner)
	log.Info().Str("module", "app.ledger").Bool("with_audio", withAudio).Msg("screen share started")
	return nil
}

func (l *Ledger) StopScreenShare() error {
	if l.share == nil {
		return core.ErrNotSharing
	}
	l.share = nil
	l.disposeKind(ResourceScreenShare)
	log.Info().Str("module", "app.ledger").Msg("screen share stopped")
	return nil
}

func (l *Ledger) Sharing() bool { return l.share != nil }

// DisposeOwner disposes every resource owned by one participant. Safe to
// call for owners with no resources.
func (l *Ledger) DisposeOwner(owner domain.ParticipantID) {
	for _, r := range l.resources {
		if r.Owner == owner && r.state != resourceDisposed {
			r.state = resourceDisposed
			r.Enabled = false
		}
	}
}

func (l *Ledger) disposeKind(kind ResourceKind) {
	for _, r := range l.resources {
		if r.Kind == kind && r.state != resourceDisposed {
			r.state = resourceDisposed
			r.Enabled = false
		}
	}
}

// DisposeAll is the single exit path for resource teardown. It reports
// whether this call actually disposed anything, so callers can assert
// teardown runs exactly once; subsequent calls are no-ops.
func (l *Ledger) DisposeAll() bool {
	if l.disposed {
		return false
	}
	l.disposed = true
	for _, r := range l.resources {
		r.state = resourceDisposed
		r.Enabled = false
	}
	l.rec = nil
	l.share = nil
	l.localAud, l.localVid, l.capture = nil, nil, nil
	log.Info().Str("module", "app.ledger").Int("resources", len(l.resources)).Msg("all resources disposed")
	return true
}

func (l *Ledger) Disposed() bool { return l.disposed }
