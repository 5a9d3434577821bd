package domain

// RecordingKind selects which tracks end up in the recording file.
type RecordingKind string

const (
	RecordAudio RecordingKind = "audio"
	RecordVideo RecordingKind = "video"
	RecordBoth  RecordingKind = "both"
)

func (k RecordingKind) Valid() bool {
	return k == RecordAudio || k == RecordVideo || k == RecordBoth
}

type RecordingQuality string

const (
	QualityLow    RecordingQuality = "low"
	QualityMedium RecordingQuality = "medium"
	QualityHigh   RecordingQuality = "high"
)

type RecordingStorage string

const (
	StorageLocal RecordingStorage = "local"
	StorageCloud RecordingStorage = "cloud"
)

type RecordingConfig struct {
	Kind    RecordingKind    `json:"kind"`
	Quality RecordingQuality `json:"quality"`
	Storage RecordingStorage `json:"storage"`
}

// MediaControls mirrors capture-side processing toggles.
type MediaControls struct {
	NoiseSuppression bool   `json:"noise_suppression"`
	EchoCancellation bool   `json:"echo_cancellation"`
	AutoGainControl  bool   `json:"auto_gain_control"`
	VideoQuality     string `json:"video_quality,omitempty"`
}

type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type NetworkConfig struct {
	ICEServers        []ICEServer `json:"ice_servers"`
	ReconnectAttempts int         `json:"reconnect_attempts,omitempty"`
}

type NetworkQuality string

const (
	QualityPoor NetworkQuality = "poor"
	QualityMid  NetworkQuality = "medium"
	QualityGood NetworkQuality = "good"
)

type NetworkStatus struct {
	Connected   bool           `json:"connected"`
	Quality     NetworkQuality `json:"quality"`
	BitrateKbps float64        `json:"bitrate_kbps"`
}

type SecurityOptions struct {
	E2EE           bool     `json:"e2ee"`
	RoomPassword   string   `json:"room_password,omitempty"`
	AllowedDomains []string `json:"allowed_domains,omitempty"`
}

type BackgroundOptions struct {
	Enabled   bool `json:"enabled"`
	AudioOnly bool `json:"audio_only,omitempty"`
	KeepAlive bool `json:"keep_alive,omitempty"`
}
