package domain

type RoomID string

// CallKind selects whether video is negotiated alongside audio.
type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

func (k CallKind) Valid() bool {
	return k == CallAudio || k == CallVideo
}

// WantsVideo reports whether this kind negotiates a video track.
func (k CallKind) WantsVideo() bool { return k == CallVideo }
