package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meryemcrkn/cam-app/internal/stream"
	"github.com/meryemcrkn/cam-app/pkg/types"
)

// CycleStats is anything that reports session counters.
type CycleStats interface {
	Stats() stream.Stats
}

// Metrics holds all application metrics
type Metrics struct {
	// Last completed cycle
	LastCycleLatencyMs atomic.Uint64
	LastResultOK       atomic.Uint64 // 0 = error, 1 = server JSON
	LastResultSeq      atomic.Uint64

	// Monitor fan-out
	EventsSent    atomic.Uint64
	EventsDropped atomic.Uint64

	// WebRTC client tracking
	ActiveClients      atomic.Uint64
	TotalClients       atomic.Uint64
	WebRTCMessagesSent atomic.Uint64
	WebRTCErrors       atomic.Uint64

	// Recording state
	RecordingActive  atomic.Uint64 // 0 = inactive, 1 = active
	RecordingBytes   atomic.Uint64
	RecordingCycles  atomic.Uint64
	RecordingDropped atomic.Uint64

	cycleDuration prometheus.Histogram
	attachOnce    sync.Once

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "camapp_cycle_duration_seconds",
			Help:    "Capture-and-upload cycle duration",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) gauge(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

func (m *Metrics) counter(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		fn,
	))
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(m.cycleDuration)

	m.gauge("camapp_last_cycle_latency_ms", "Duration of the last completed cycle in milliseconds", &m.LastCycleLatencyMs)
	m.gauge("camapp_last_result_ok", "Last completed cycle returned server JSON (0=error, 1=ok)", &m.LastResultOK)
	m.gauge("camapp_last_result_seq", "Sequence number of the cycle shown on screen", &m.LastResultSeq)

	m.counter("camapp_monitor_events_sent_total", "Result events delivered to monitor subscribers",
		func() float64 { return float64(m.EventsSent.Load()) })
	m.counter("camapp_monitor_events_dropped_total", "Result events dropped for slow subscribers",
		func() float64 { return float64(m.EventsDropped.Load()) })

	m.gauge("camapp_webrtc_active_clients", "Number of active WebRTC clients", &m.ActiveClients)
	m.counter("camapp_webrtc_clients_total", "Total WebRTC clients connected",
		func() float64 { return float64(m.TotalClients.Load()) })
	m.counter("camapp_webrtc_messages_sent_total", "Results sent over WebRTC data channels",
		func() float64 { return float64(m.WebRTCMessagesSent.Load()) })
	m.counter("camapp_webrtc_errors_total", "WebRTC send errors",
		func() float64 { return float64(m.WebRTCErrors.Load()) })

	m.gauge("camapp_recording_active", "Recording active (0=inactive, 1=active)", &m.RecordingActive)
	m.gauge("camapp_recording_bytes", "Bytes written to the current recording", &m.RecordingBytes)
	m.gauge("camapp_recording_cycles", "Cycles written to the current recording", &m.RecordingCycles)
	m.gauge("camapp_recording_dropped", "Cycles the current recording dropped because the writer was busy", &m.RecordingDropped)
}

// AttachSession exposes the session counters. Only the first call registers.
func (m *Metrics) AttachSession(src CycleStats) {
	m.attachOnce.Do(func() {
		m.counter("camapp_cycles_started_total", "Capture cycles started",
			func() float64 { return float64(src.Stats().CyclesStarted) })
		m.counter("camapp_cycles_skipped_total", "Cycles skipped because no frame was captured",
			func() float64 { return float64(src.Stats().CyclesSkipped) })
		m.counter("camapp_capture_errors_total", "Cycles whose capture failed",
			func() float64 { return float64(src.Stats().CaptureErrors) })
		m.counter("camapp_uploads_ok_total", "Uploads answered with JSON",
			func() float64 { return float64(src.Stats().UploadsOK) })
		m.counter("camapp_uploads_failed_total", "Uploads that failed",
			func() float64 { return float64(src.Stats().UploadsFailed) })
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: "camapp_cycles_in_flight", Help: "Cycles currently running"},
			func() float64 { return float64(src.Stats().InFlight) },
		))
	})
}

// UpdateRecording mirrors the recorder status into the recording gauges.
func (m *Metrics) UpdateRecording(active bool, bytes, cycles, dropped uint64) {
	if !active {
		m.RecordingActive.Store(0)
		return
	}
	m.RecordingActive.Store(1)
	m.RecordingBytes.Store(bytes)
	m.RecordingCycles.Store(cycles)
	m.RecordingDropped.Store(dropped)
}

// ObserveCycle records a completed cycle.
func (m *Metrics) ObserveCycle(res types.CycleResult) {
	d := res.Duration()
	m.cycleDuration.Observe(d.Seconds())
	m.LastCycleLatencyMs.Store(uint64(d.Milliseconds()))
	m.LastResultSeq.Store(res.Seq)
	if res.OK {
		m.LastResultOK.Store(1)
	} else {
		m.LastResultOK.Store(0)
	}
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// NewServer returns an HTTP server exposing /metrics on addr
func (m *Metrics) NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
