// Package webmonitor serves the HTTP monitor for the capture session.
package webmonitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/meryemcrkn/cam-app/internal/logger"
	"github.com/meryemcrkn/cam-app/internal/metrics"
	"github.com/meryemcrkn/cam-app/internal/recorder"
	"github.com/meryemcrkn/cam-app/pkg/types"
)

const maxOfferBytes = 64 << 10

// Deps are the collaborators behind the monitor endpoints. Only Session is required.
type Deps struct {
	Session  Session
	Recorder Recorder
	WebRTC   OfferHandler
	Metrics  *metrics.Metrics
	Frames   FrameProvider
}

// Server serves the monitor endpoints.
type Server struct {
	cfg      Config
	session  Session
	recorder Recorder
	webrtc   OfferHandler
	metrics  *metrics.Metrics
	frames   FrameProvider
	monitor  *Monitor
	results  *ResultBroadcaster
	log      logger.Module
}

// NewServer returns a configured monitor server.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Session == nil {
		return nil, errors.New("webmonitor: session is required")
	}
	def := DefaultConfig()
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = def.StatusInterval
	}
	if cfg.MJPEGInterval <= 0 {
		cfg.MJPEGInterval = def.MJPEGInterval
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = def.KeepAlive
	}

	return &Server{
		cfg:      cfg,
		session:  deps.Session,
		recorder: deps.Recorder,
		webrtc:   deps.WebRTC,
		metrics:  deps.Metrics,
		frames:   deps.Frames,
		monitor:  NewMonitor(cfg.HistorySize),
		results:  NewResultBroadcaster(deps.Metrics),
		log:      logger.For("Monitor"),
	}, nil
}

// Observe receives completed cycles from the session.
func (s *Server) Observe(res types.CycleResult) {
	s.monitor.Observe(res)
	s.results.Publish(res)
}

// Close disconnects streaming clients.
func (s *Server) Close() {
	s.results.Stop()
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	if s.cfg.AssetsDir != "" {
		r.PathPrefix("/assets/").Handler(http.StripPrefix("/assets/", newAssetHandler(s.cfg.AssetsDir)))
	}
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/status/stream", s.handleStatusStream).Methods(http.MethodGet)
	api.HandleFunc("/result", s.handleResult).Methods(http.MethodGet)
	api.HandleFunc("/results/stream", s.handleResultsStream).Methods(http.MethodGet)
	api.HandleFunc("/results/ws", s.handleResultsWS).Methods(http.MethodGet)
	api.HandleFunc("/streaming/{action:start|stop}", s.handleStreaming).Methods(http.MethodPost)
	api.HandleFunc("/recording/start", s.handleRecordingStart).Methods(http.MethodPost)
	api.HandleFunc("/recording/stop", s.handleRecordingStop).Methods(http.MethodPost)
	api.HandleFunc("/recording/status", s.handleRecordingStatus).Methods(http.MethodGet)
	api.HandleFunc("/webrtc/offer", s.handleWebRTCOffer).Methods(http.MethodPost)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONWithStatus(w, map[string]any{"error": "Method not allowed"}, http.StatusMethodNotAllowed)
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONWithStatus(w, map[string]any{"error": "Not found"}, http.StatusNotFound)
	})

	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":     "ok",
		"session_id": s.session.ID(),
		"state":      s.session.View().State,
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	streamMJPEG(r.Context(), w, s.cfg.MJPEGInterval, s.frames)
}

func (s *Server) status() StatusPayload {
	monitorStats, latest, history := s.monitor.Snapshot()
	payload := StatusPayload{
		SessionID: s.session.ID(),
		View:      s.session.View(),
		Cycles:    s.session.Stats(),
		Monitor:   monitorStats,
		Latest:    latest,
		History:   history,
		Timestamp: float64(time.Now().Unix()),
	}
	if s.recorder != nil {
		st := s.recorder.GetStatus()
		payload.Recording = &st
	}
	if s.webrtc != nil {
		payload.WebRTCClients = s.webrtc.GetClientCount()
	}
	return payload
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.status())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		if err := writeSSE(w, s.status()); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// handleResult returns the text currently on screen. A JSON server answer is
// embedded as-is so its key order survives.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	view := s.session.View()
	body := map[string]any{
		"state":      view.State,
		"text":       view.Text,
		"has_result": view.HasResult,
		"seq":        view.Seq,
	}
	if text, ok := s.session.Result(); ok && json.Valid([]byte(text)) {
		body["response"] = json.RawMessage(text)
	}
	writeJSON(w, body)
}

func (s *Server) handleResultsStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.results.Subscribe()
	defer s.results.Unsubscribe(id)

	accept := r.Header.Get("Accept")
	useProtobuf := strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf")

	streamEventsFromChannel(r.Context(), w, eventCh, useProtobuf, s.cfg.KeepAlive)
}

func (s *Server) handleStreaming(w http.ResponseWriter, r *http.Request) {
	on := mux.Vars(r)["action"] == "start"
	s.session.SetStreaming(on)
	s.log.Info("Streaming set to %v via API", on)
	writeJSON(w, s.session.View())
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeJSONWithStatus(w, map[string]any{"error": "recorder is not configured"}, http.StatusServiceUnavailable)
		return
	}
	if err := s.recorder.Start(); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return
	}

	st := s.recorder.GetStatus()
	payload := map[string]any{
		"status":     "recording",
		"file":       st.Filename,
		"started_at": float64(st.StartTime.Unix()),
	}
	writeJSON(w, payload)
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeJSONWithStatus(w, map[string]any{"error": "recorder is not configured"}, http.StatusServiceUnavailable)
		return
	}
	if err := s.recorder.Stop(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, recorder.ErrNotRecording) {
			status = http.StatusBadRequest
		}
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, status)
		return
	}

	st := s.recorder.GetStatus()
	payload := map[string]any{
		"status":     "stopped",
		"file":       st.Filename,
		"stats":      st,
		"stopped_at": float64(time.Now().Unix()),
	}
	writeJSON(w, payload)
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeJSON(w, recorder.RecordingStatus{})
		return
	}
	writeJSON(w, s.recorder.GetStatus())
}

func (s *Server) handleWebRTCOffer(w http.ResponseWriter, r *http.Request) {
	if s.webrtc == nil {
		writeJSONWithStatus(w, map[string]any{"error": "WebRTC is not configured"}, http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxOfferBytes))
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": "Invalid offer data"}, http.StatusBadRequest)
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil || payload["sdp"] == nil || payload["type"] == nil {
		writeJSONWithStatus(w, map[string]any{"error": "Invalid offer data"}, http.StatusBadRequest)
		return
	}

	answer, err := s.webrtc.HandleOffer(body)
	if err != nil {
		s.log.Warn("WebRTC offer failed: %v", err)
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(answer)
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":%q}`, err.Error())
	}
}
