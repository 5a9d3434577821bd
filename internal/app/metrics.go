package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Call/internal/domain"
)

// Quality thresholds for classifying a link.
const (
	criticalPacketLoss = 0.05
	warningPacketLoss  = 0.02
	criticalRTT        = 300 * time.Millisecond
	warningRTT         = 150 * time.Millisecond
)

// Sample is one quality measurement. Samples are append-only; the
// collector never mutates a recorded sample.
type Sample struct {
	At          time.Time            `json:"at"`
	Participant domain.ParticipantID `json:"participant,omitempty"`
	RTT         time.Duration        `json:"rtt"`
	PacketLoss  float64              `json:"packet_loss"`
	Jitter      float64              `json:"jitter"`
	BitrateKbps float64              `json:"bitrate_kbps"`
}

type logEntry struct {
	at     time.Time
	kind   string
	detail string
}

// Collector accumulates per-session quality samples and lifecycle events.
// Not self-locking: the owning session serializes all access.
type Collector struct {
	startedAt time.Time
	samples   []Sample
	events    []logEntry
}

func NewCollector() *Collector {
	return &Collector{startedAt: time.Now()}
}

func (c *Collector) Record(s Sample) {
	if s.At.IsZero() {
		s.At = time.Now()
	}
	c.samples = append(c.samples, s)
}

// LogEvent appends a lifecycle entry for ExportLogs.
func (c *Collector) LogEvent(kind, detail string) {
	c.events = append(c.events, logEntry{at: time.Now(), kind: kind, detail: detail})
}

// Summary is an aggregate snapshot over all recorded samples.
type Summary struct {
	Duration       time.Duration `json:"duration"`
	Samples        int           `json:"samples"`
	AvgRTT         time.Duration `json:"avg_rtt"`
	MaxRTT         time.Duration `json:"max_rtt"`
	AvgPacketLoss  float64       `json:"avg_packet_loss"`
	AvgJitter      float64       `json:"avg_jitter"`
	AvgBitrateKbps float64       `json:"avg_bitrate_kbps"`
}

// Summarize is a pure function of the recorded samples; calling it
// repeatedly has no side effects.
func (c *Collector) Summarize() Summary {
	sum := Summary{
		Duration: time.Since(c.startedAt),
		Samples:  len(c.samples),
	}
	if len(c.samples) == 0 {
		return sum
	}
	var rtt time.Duration
	var loss, jitter, bitrate float64
	for _, s := range c.samples {
		rtt += s.RTT
		if s.RTT > sum.MaxRTT {
			sum.MaxRTT = s.RTT
		}
		loss += s.PacketLoss
		jitter += s.Jitter
		bitrate += s.BitrateKbps
	}
	n := len(c.samples)
	sum.AvgRTT = rtt / time.Duration(n)
	sum.AvgPacketLoss = loss / float64(n)
	sum.AvgJitter = jitter / float64(n)
	sum.AvgBitrateKbps = bitrate / float64(n)
	return sum
}

// Classify maps a sample to a coarse network quality bucket.
func Classify(s Sample) domain.NetworkQuality {
	if s.PacketLoss >= criticalPacketLoss || s.RTT >= criticalRTT {
		return domain.QualityPoor
	}
	if s.PacketLoss >= warningPacketLoss || s.RTT >= warningRTT {
		return domain.QualityMid
	}
	return domain.QualityGood
}

// ExportLogs renders the recorded lifecycle events and sample history as
// plain text, one entry per line.
func (c *Collector) ExportLogs() string {
	var b strings.Builder
	fmt.Fprintf(&b, "call started %s\n", c.startedAt.Format(time.RFC3339))
	for _, e := range c.events {
		fmt.Fprintf(&b, "%s %s %s\n", e.at.Format(time.RFC3339), e.kind, e.detail)
	}
	for _, s := range c.samples {
		fmt.Fprintf(&b, "%s sample participant=%s rtt=%s loss=%.3f jitter=%.3f bitrate=%.1fkbps\n",
			s.At.Format(time.RFC3339), s.Participant, s.RTT, s.PacketLoss, s.Jitter, s.BitrateKbps)
	}
	return b.String()
}
