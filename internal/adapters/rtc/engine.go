// Package rtc implements core.MediaLink on top of pion/webrtc.
package rtc

import (
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	mu  sync.Mutex
	api *webrtc.API
)

var ErrNotInitialized = errors.New("rtc engine not initialized")

// Init builds the process-wide webrtc.API. It must run once before any
// session is constructed and is never implicitly re-initialized.
func Init() error {
	mu.Lock()
	defer mu.Unlock()
	if api != nil {
		return nil
	}
	me := webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return err
	}
	se := webrtc.SettingEngine{}
	se.SetICETimeouts(
		5*time.Second,  // disconnected
		15*time.Second, // failed
		2*time.Second,  // keep-alive
	)
	api = webrtc.NewAPI(
		webrtc.WithMediaEngine(&me),
		webrtc.WithSettingEngine(se),
	)
	log.Info().Str("module", "rtc").Msg("engine initialized")
	return nil
}

// Shutdown tears the engine down; only called when no sessions remain.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	api = nil
	log.Info().Str("module", "rtc").Msg("engine shut down")
}

func newPeerConnection(cfg webrtc.Configuration) (*webrtc.PeerConnection, error) {
	mu.Lock()
	defer mu.Unlock()
	if api == nil {
		return nil, ErrNotInitialized
	}
	return api.NewPeerConnection(cfg)
}
