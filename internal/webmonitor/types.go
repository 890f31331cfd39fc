package webmonitor

import (
	"github.com/meryemcrkn/cam-app/internal/recorder"
	"github.com/meryemcrkn/cam-app/internal/stream"
	"github.com/meryemcrkn/cam-app/pkg/types"
)

// Session is the part of the capture session the monitor drives.
type Session interface {
	ID() string
	View() stream.View
	Stats() stream.Stats
	Result() (string, bool)
	SetStreaming(on bool)
}

// Recorder is the cycle archive controlled by /api/recording/*.
type Recorder interface {
	Start() error
	Stop() error
	GetStatus() recorder.RecordingStatus
}

// OfferHandler answers WebRTC offers.
type OfferHandler interface {
	HandleOffer(offerJSON []byte) ([]byte, error)
	GetClientCount() int
}

// FrameProvider returns the most recent encoded still.
type FrameProvider func() ([]byte, bool)

// MonitorStats summarizes completed cycles.
type MonitorStats struct {
	Completed     int     `json:"completed"`
	Succeeded     int     `json:"succeeded"`
	Failed        int     `json:"failed"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	LastLatencyMs int64   `json:"last_latency_ms"`
}

// StatusPayload is the body of /api/status and each /api/status/stream event.
type StatusPayload struct {
	SessionID     string                    `json:"session_id"`
	View          stream.View               `json:"view"`
	Cycles        stream.Stats              `json:"cycles"`
	Monitor       MonitorStats              `json:"monitor"`
	Latest        *types.CycleResult        `json:"latest"`
	History       []types.CycleResult       `json:"history"`
	Recording     *recorder.RecordingStatus `json:"recording,omitempty"`
	WebRTCClients int                       `json:"webrtc_clients"`
	Timestamp     float64                   `json:"timestamp"`
}
