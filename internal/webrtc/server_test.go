package webrtc

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/pion/webrtc/v3"

	"github.com/meryemcrkn/cam-app/internal/metrics"
	"github.com/meryemcrkn/cam-app/pkg/types"
)

func browserOffer(t *testing.T) ([]byte, *webrtc.PeerConnection) {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pc.Close() })

	if _, err := pc.CreateDataChannel(ResultsLabel, nil); err != nil {
		t.Fatal(err)
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		t.Fatal(err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		t.Fatal(err)
	}
	<-gathered

	raw, err := json.Marshal(pc.LocalDescription())
	if err != nil {
		t.Fatal(err)
	}
	return raw, pc
}

func TestHandleOfferRejectsGarbage(t *testing.T) {
	s := NewServer(nil, 1, nil)
	if _, err := s.HandleOffer([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := s.HandleOffer([]byte(`{"type":"answer","sdp":""}`)); err == nil {
		t.Fatal("expected error for non-offer")
	}
}

func TestHandleOfferAnswersAndTracksClient(t *testing.T) {
	m := metrics.New()
	s := NewServer(nil, 1, m)
	defer s.Close()

	offer, _ := browserOffer(t)
	answerJSON, err := s.HandleOffer(offer)
	if err != nil {
		t.Fatalf("HandleOffer: %v", err)
	}

	var answer webrtc.SessionDescription
	if err := json.Unmarshal(answerJSON, &answer); err != nil {
		t.Fatal(err)
	}
	if answer.Type != webrtc.SDPTypeAnswer || !strings.Contains(answer.SDP, "application") {
		t.Fatalf("unexpected answer: %s", answer.Type)
	}
	if s.GetClientCount() != 1 || m.ActiveClients.Load() != 1 || m.TotalClients.Load() != 1 {
		t.Fatalf("clients = %d active=%d total=%d", s.GetClientCount(), m.ActiveClients.Load(), m.TotalClients.Load())
	}

	second, _ := browserOffer(t)
	if _, err := s.HandleOffer(second); err == nil {
		t.Fatal("expected max clients error")
	}

	// Broadcasting before the channel opens must not block or panic.
	for i := 0; i < 64; i++ {
		s.Broadcast(types.CycleResult{Seq: uint64(i), Display: "{}"})
	}
	stats := s.GetClientStats()
	if len(stats) != 1 {
		t.Fatalf("stats = %v", stats)
	}
	for id, st := range stats {
		if st.Sent != 0 {
			t.Fatalf("client %s sent %d before its channel opened", id, st.Sent)
		}
	}

	s.Close()
	if s.GetClientCount() != 0 || m.ActiveClients.Load() != 0 {
		t.Fatalf("clients after Close = %d", s.GetClientCount())
	}
}

func TestFailedNegotiationReleasesSlot(t *testing.T) {
	m := metrics.New()
	s := NewServer(nil, 1, m)
	defer s.Close()

	if _, err := s.HandleOffer([]byte(`{"type":"offer","sdp":"not sdp"}`)); err == nil {
		t.Fatal("expected negotiation error")
	}
	if s.GetClientCount() != 0 || m.ActiveClients.Load() != 0 || m.TotalClients.Load() != 0 {
		t.Fatalf("after failure clients=%d active=%d total=%d", s.GetClientCount(), m.ActiveClients.Load(), m.TotalClients.Load())
	}
	if len(s.GetClientStats()) != 0 {
		t.Fatalf("stats = %v", s.GetClientStats())
	}

	// The single slot must be free again.
	offer, _ := browserOffer(t)
	if _, err := s.HandleOffer(offer); err != nil {
		t.Fatalf("HandleOffer after failure: %v", err)
	}
	if s.GetClientCount() != 1 || m.TotalClients.Load() != 1 {
		t.Fatalf("clients=%d total=%d", s.GetClientCount(), m.TotalClients.Load())
	}
}
