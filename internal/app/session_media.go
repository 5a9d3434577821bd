package app

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

// usableLocked reports whether mutating media operations are legal:
// any state except New and Ended.
func (s *Session) usableLocked() bool {
	return s.state != CallNew && s.state != CallEnded
}

func (s *Session) MuteAudio() error   { return s.setAudio(false) }
func (s *Session) UnmuteAudio() error { return s.setAudio(true) }
func (s *Session) MuteVideo() error   { return s.setVideo(false) }
func (s *Session) UnmuteVideo() error { return s.setVideo(true) }

func (s *Session) setAudio(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.usableLocked() {
		return core.ErrInvalidState
	}
	if s.ledger.SetAudioEnabled(enabled) {
		s.metrics.LogEvent("audio_enabled", boolStr(enabled))
	}
	return nil
}

func (s *Session) setVideo(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.usableLocked() {
		return core.ErrInvalidState
	}
	if s.ledger.SetVideoEnabled(enabled) {
		s.metrics.LogEvent("video_enabled", boolStr(enabled))
	}
	return nil
}

func (s *Session) AudioMuted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.ledger.AudioEnabled()
}

func (s *Session) VideoMuted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.ledger.VideoEnabled()
}

// SwitchCamera flips the capture source. Device selection itself lives in
// the capture layer; the session only validates and records the request.
func (s *Session) SwitchCamera() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.usableLocked() || !s.kind.WantsVideo() {
		return core.ErrInvalidState
	}
	s.metrics.LogEvent("switch_camera", "")
	log.Info().Str("module", "app.session").Str("room", string(s.room)).Msg("camera switched")
	return nil
}

func (s *Session) SetMediaControls(mc domain.MediaControls) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == CallEnded {
		return core.ErrInvalidState
	}
	s.controls = mc
	s.metrics.LogEvent("media_controls", mc.VideoQuality)
	return nil
}

func (s *Session) StartScreenShare(withAudio bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != CallActive {
		return core.ErrInvalidState
	}
	if err := s.ledger.StartScreenShare(withAudio); err != nil {
		return err
	}
	s.metrics.LogEvent("screen_share", "started")
	s.notify(core.Event{Kind: core.EventScreenShareChanged, State: "started"})
	return nil
}

func (s *Session) StopScreenShare() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.usableLocked() {
		return core.ErrInvalidState
	}
	if err := s.ledger.StopScreenShare(); err != nil {
		return err
	}
	s.metrics.LogEvent("screen_share", "stopped")
	s.notify(core.Event{Kind: core.EventScreenShareChanged, State: "stopped"})
	return nil
}

func (s *Session) StartRecording(cfg domain.RecordingConfig) (RecordingHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != CallActive {
		return "", core.ErrInvalidState
	}
	if !cfg.Kind.Valid() {
		return "", core.ErrInvalidState
	}
	h, err := s.ledger.StartRecording(cfg)
	if err != nil {
		return "", err
	}
	s.metrics.LogEvent("recording", "started")
	s.notify(core.Event{Kind: core.EventRecordingChanged, State: "started"})
	return h, nil
}

// StopRecording returns the output path of the finished recording.
func (s *Session) StopRecording() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.usableLocked() {
		return "", core.ErrInvalidState
	}
	path, err := s.ledger.StopRecording()
	if err != nil {
		return "", err
	}
	s.metrics.LogEvent("recording", "stopped")
	s.notify(core.Event{Kind: core.EventRecordingChanged, State: "stopped", Detail: path})
	return path, nil
}

func (s *Session) SetNetworkConfig(cfg domain.NetworkConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == CallEnded {
		return core.ErrInvalidState
	}
	s.netcfg = cfg
	return nil
}

// NetworkStatus derives a snapshot from the most recent quality sample.
func (s *Session) NetworkStatus() domain.NetworkStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	connected := false
	for _, m := range s.reg.Members() {
		if m.Link.State() == LinkConnected {
			connected = true
			break
		}
	}
	quality := s.lastQuality
	if quality == "" {
		quality = domain.QualityGood
	}
	sum := s.metrics.Summarize()
	return domain.NetworkStatus{
		Connected:   connected,
		Quality:     quality,
		BitrateKbps: sum.AvgBitrateKbps,
	}
}

// SetSecurityOptions may only be applied before the session leaves New.
func (s *Session) SetSecurityOptions(opts domain.SecurityOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != CallNew {
		return core.ErrInvalidState
	}
	s.security.SetOptions(opts)
	return nil
}

func (s *Session) GenerateToken() string {
	return s.security.Generate()
}

// ValidateToken reports the specific failure: expired, wrong room, or a
// bad signature.
func (s *Session) ValidateToken(token string) error {
	return s.security.Validate(token)
}

// RecordSample feeds one quality measurement into the collector and emits
// the metrics tick plus a quality event when the classification moved.
func (s *Session) RecordSample(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == CallEnded {
		return
	}
	s.metrics.Record(sample)
	q := Classify(sample)
	if q != s.lastQuality {
		s.lastQuality = q
		s.notify(core.Event{Kind: core.EventQualityChanged, Participant: sample.Participant, State: string(q)})
	}
	s.notify(core.Event{Kind: core.EventMetricsUpdated})
}

// Metrics returns an aggregate snapshot; repeated calls observe the same
// samples without side effects.
func (s *Session) Metrics() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics.Summarize()
}

func (s *Session) ExportLogs() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics.ExportLogs()
}

func (s *Session) SetBackgroundMode(opts domain.BackgroundOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == CallEnded {
		return core.ErrInvalidState
	}
	changed := s.bg.Enabled != opts.Enabled
	s.bg = opts
	if changed {
		s.notify(core.Event{Kind: core.EventBackgroundChanged, State: boolStr(opts.Enabled)})
	}
	return nil
}

func (s *Session) Duration() time.Duration {
	return time.Since(s.createdAt)
}

func boolStr(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
