// Package webrtc pushes cycle results to browsers over data channels.
package webrtc

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/meryemcrkn/cam-app/internal/logger"
	"github.com/meryemcrkn/cam-app/internal/metrics"
	"github.com/meryemcrkn/cam-app/pkg/types"
)

// ResultsLabel is the data channel label browsers open to receive results.
const ResultsLabel = "results"

var log = logger.For("WebRTC")

// Client is one browser holding a results channel
type Client struct {
	id        string
	peerConn  *webrtc.PeerConnection
	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	channel *webrtc.DataChannel

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// ClientStats are the per-client delivery counters.
type ClientStats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

// Server manages WebRTC connections
type Server struct {
	clients    map[string]*Client
	clientsMu  sync.RWMutex
	config     webrtc.Configuration
	maxClients int
	api        *webrtc.API
	metrics    *metrics.Metrics

	latestMu sync.RWMutex
	latest   []byte
}

// NewServer creates a new WebRTC server. m may be nil.
func NewServer(stunServers []string, maxClients int, m *metrics.Metrics) *Server {
	iceServers := make([]webrtc.ICEServer, 0, len(stunServers))
	for _, url := range stunServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs: []string{url},
		})
	}

	settingsEngine := webrtc.SettingEngine{}
	settingsEngine.SetDTLSRetransmissionInterval(time.Second * 2)
	settingsEngine.SetNetworkTypes([]webrtc.NetworkType{
		webrtc.NetworkTypeUDP4,
		webrtc.NetworkTypeUDP6,
	})

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingsEngine))

	return &Server{
		clients: make(map[string]*Client),
		config: webrtc.Configuration{
			ICEServers: iceServers,
		},
		maxClients: maxClients,
		api:        api,
		metrics:    m,
	}
}

// HandleOffer handles a WebRTC offer and returns an answer
func (s *Server) HandleOffer(offerJSON []byte) ([]byte, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(offerJSON, &offer); err != nil {
		return nil, fmt.Errorf("failed to parse offer: %w", err)
	}
	if offer.Type != webrtc.SDPTypeOffer {
		return nil, fmt.Errorf("expected SDP offer, got %q", offer.Type.String())
	}

	peerConn, err := s.api.NewPeerConnection(s.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	client := &Client{
		id:       "client-" + uuid.NewString(),
		peerConn: peerConn,
		queue:    make(chan []byte, 16),
		done:     make(chan struct{}),
	}

	// The slot is held from here so a state change during negotiation
	// always finds the client to remove.
	s.clientsMu.Lock()
	if s.maxClients > 0 && len(s.clients) >= s.maxClients {
		s.clientsMu.Unlock()
		peerConn.Close()
		return nil, fmt.Errorf("maximum clients reached (%d)", s.maxClients)
	}
	s.clients[client.id] = client
	active := len(s.clients)
	s.clientsMu.Unlock()
	if s.metrics != nil {
		s.metrics.ActiveClients.Store(uint64(active))
	}
	go s.deliver(client)

	peerConn.OnDataChannel(func(dc *webrtc.DataChannel) { s.attachChannel(client, dc) })
	peerConn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug("Client %s connection state: %s", client.id, state)
		switch state {
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			log.Info("Client %s connection lost (%s), removing...", client.id, state)
			s.RemoveClient(client.id)
		}
	})

	answerJSON, err := negotiate(peerConn, offer)
	if err != nil {
		s.RemoveClient(client.id)
		return nil, err
	}
	log.Debug("ICE gathering complete for client %s", client.id)

	if !s.hasClient(client.id) {
		return nil, fmt.Errorf("client %s closed during negotiation", client.id)
	}
	if s.metrics != nil {
		s.metrics.TotalClients.Add(1)
	}

	log.Info("Client %s connected", client.id)
	return answerJSON, nil
}

// negotiate answers offer and waits for ICE gathering so the answer carries
// every candidate.
func negotiate(pc *webrtc.PeerConnection, offer webrtc.SessionDescription) ([]byte, error) {
	if err := pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("failed to set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}
	<-gatherComplete

	local := pc.LocalDescription()
	if local == nil {
		return nil, fmt.Errorf("no local description available")
	}
	return json.Marshal(local)
}

// attachChannel binds the browser's results channel and replays the latest
// result once it opens.
func (s *Server) attachChannel(client *Client, dc *webrtc.DataChannel) {
	if dc.Label() != ResultsLabel {
		log.Debug("Client %s opened unknown channel %q", client.id, dc.Label())
		return
	}
	dc.OnOpen(func() {
		client.mu.Lock()
		client.channel = dc
		client.mu.Unlock()
		log.Info("Client %s results channel open", client.id)

		s.latestMu.RLock()
		latest := s.latest
		s.latestMu.RUnlock()
		if latest != nil {
			client.enqueue(latest)
		}
	})
}

// Broadcast queues res for every client with an open results channel.
func (s *Server) Broadcast(res types.CycleResult) {
	payload, err := json.Marshal(res)
	if err != nil {
		log.Warn("Encode result #%d: %v", res.Seq, err)
		return
	}

	s.latestMu.Lock()
	s.latest = payload
	s.latestMu.Unlock()

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, client := range s.clients {
		client.enqueue(payload)
	}
}

func (c *Client) enqueue(payload []byte) {
	select {
	case <-c.done:
	case c.queue <- payload:
	default:
		c.dropped.Add(1)
	}
}

func (c *Client) openChannel() *webrtc.DataChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == nil || c.channel.ReadyState() != webrtc.DataChannelStateOpen {
		return nil
	}
	return c.channel
}

// deliver drains the client's queue onto its data channel until it closes.
// Payloads queued before the channel opens are discarded.
func (s *Server) deliver(client *Client) {
	for {
		var payload []byte
		select {
		case <-client.done:
			return
		case payload = <-client.queue:
		}

		dc := client.openChannel()
		if dc == nil {
			continue
		}
		if err := dc.SendText(string(payload)); err != nil {
			log.Warn("Send to client %s: %v", client.id, err)
			if s.metrics != nil {
				s.metrics.WebRTCErrors.Add(1)
			}
			continue
		}
		client.sent.Add(1)
		if s.metrics != nil {
			s.metrics.WebRTCMessagesSent.Add(1)
		}
	}
}

// RemoveClient removes a client by ID
func (s *Server) RemoveClient(clientID string) {
	s.clientsMu.Lock()
	client, exists := s.clients[clientID]
	if exists {
		delete(s.clients, clientID)
	}
	remaining := len(s.clients)
	s.clientsMu.Unlock()

	if !exists {
		return
	}
	client.close()
	if s.metrics != nil {
		s.metrics.ActiveClients.Store(uint64(remaining))
	}

	log.Info("Client %s disconnected (sent: %d, dropped: %d)", clientID, client.sent.Load(), client.dropped.Load())
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.peerConn.Close()
	})
}

func (s *Server) hasClient(id string) bool {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	_, ok := s.clients[id]
	return ok
}

// GetClientCount returns the number of connected clients
func (s *Server) GetClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// GetClientStats returns delivery counters keyed by client ID
func (s *Server) GetClientStats() map[string]ClientStats {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	stats := make(map[string]ClientStats, len(s.clients))
	for id, client := range s.clients {
		stats[id] = ClientStats{Sent: client.sent.Load(), Dropped: client.dropped.Load()}
	}
	return stats
}

// Close closes all client connections
func (s *Server) Close() error {
	s.clientsMu.RLock()
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	s.clientsMu.RUnlock()

	for _, id := range ids {
		s.RemoveClient(id)
	}
	return nil
}
