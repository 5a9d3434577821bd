package rtc

import (
	"errors"
	"io"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const statsInterval = 5 * time.Second

// pump drains RTP from a remote track so the receiver keeps feeding, and
// reports a coarse receive bitrate through the factory's StatsFunc.
func (c *Conn) pump(track *webrtc.TrackRemote) {
	var bytes int
	lastReport := time.Now()
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}
		var pkt *rtp.Packet
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Str("module", "rtc").Str("remote", string(c.remote)).Msg("rtp read ended")
			}
			return
		}
		bytes += pkt.MarshalSize()
		if since := time.Since(lastReport); since >= statsInterval {
			if c.stats != nil {
				kbps := float64(bytes) * 8 / 1000 / since.Seconds()
				c.stats(c.room, c.remote, kbps)
			}
			bytes = 0
			lastReport = time.Now()
		}
	}
}
