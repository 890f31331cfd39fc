package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/meryemcrkn/cam-app/internal/stream"
	"github.com/meryemcrkn/cam-app/pkg/types"
)

type fixedStats stream.Stats

func (f fixedStats) Stats() stream.Stats { return stream.Stats(f) }

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestSessionCounters(t *testing.T) {
	m := New()
	m.AttachSession(fixedStats{CyclesStarted: 5, CyclesSkipped: 2, UploadsOK: 3, InFlight: 1})
	m.AttachSession(fixedStats{}) // ignored

	body := scrape(t, m)
	for _, want := range []string{
		"camapp_cycles_started_total 5",
		"camapp_cycles_skipped_total 2",
		"camapp_uploads_ok_total 3",
		"camapp_cycles_in_flight 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestObserveCycle(t *testing.T) {
	m := New()
	start := time.Now()
	m.ObserveCycle(types.CycleResult{Seq: 4, StartedAt: start, CompletedAt: start.Add(250 * time.Millisecond), OK: true})

	if got := m.LastCycleLatencyMs.Load(); got != 250 {
		t.Errorf("LastCycleLatencyMs = %d", got)
	}
	if m.LastResultOK.Load() != 1 || m.LastResultSeq.Load() != 4 {
		t.Errorf("last result = ok:%d seq:%d", m.LastResultOK.Load(), m.LastResultSeq.Load())
	}
	if n := testutil.CollectAndCount(m.cycleDuration); n != 1 {
		t.Errorf("histogram collectors = %d", n)
	}
	if !strings.Contains(scrape(t, m), "camapp_cycle_duration_seconds_count 1") {
		t.Error("histogram not exported")
	}

	m.ObserveCycle(types.CycleResult{Seq: 5, StartedAt: start, CompletedAt: start})
	if m.LastResultOK.Load() != 0 {
		t.Error("LastResultOK not cleared on failure")
	}
}

func TestUpdateRecording(t *testing.T) {
	m := New()
	m.UpdateRecording(true, 2048, 12, 1)
	if m.RecordingActive.Load() != 1 || m.RecordingBytes.Load() != 2048 || m.RecordingCycles.Load() != 12 {
		t.Fatalf("recording gauges not set")
	}
	m.UpdateRecording(false, 0, 0, 0)
	if m.RecordingActive.Load() != 0 {
		t.Fatal("RecordingActive not cleared")
	}
	if m.RecordingCycles.Load() != 12 {
		t.Fatal("last recording totals should stay visible")
	}
}
