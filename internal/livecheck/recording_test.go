package livecheck

import (
	"net/http"
	"os"
	"testing"
)

// TestLiveRecordingLifecycle walks start, status, stop and a second stop
// against the running agent.
func TestLiveRecordingLifecycle(t *testing.T) {
	if os.Getenv("CAMAPP_LIVE_RECORDING") == "" {
		t.Skip("set CAMAPP_LIVE_RECORDING=1 to run the recording lifecycle")
	}
	client := newAgentClient(t)

	steps := []struct {
		method string
		path   string
		status int
		check  func(t *testing.T, body map[string]any)
	}{
		{http.MethodGet, "/api/recording/status", http.StatusOK, func(t *testing.T, body map[string]any) {
			requireBool(t, body["recording"], "recording")
		}},
		{http.MethodPost, "/api/recording/start", http.StatusOK, func(t *testing.T, body map[string]any) {
			if got := requireString(t, body["status"], "status"); got != "recording" {
				t.Fatalf("start status = %q", got)
			}
			requireString(t, body["file"], "file")
			requireNumber(t, body["started_at"], "started_at")
		}},
		{http.MethodGet, "/api/recording/status", http.StatusOK, func(t *testing.T, body map[string]any) {
			if !requireBool(t, body["recording"], "recording") {
				t.Fatal("recording status expected true")
			}
			requireNumbers(t, body, "", "cycle_count", "bytes_written", "dropped")
		}},
		{http.MethodPost, "/api/recording/stop", http.StatusOK, func(t *testing.T, body map[string]any) {
			if got := requireString(t, body["status"], "status"); got != "stopped" {
				t.Fatalf("stop status = %q", got)
			}
			requireString(t, body["file"], "file")
			requireNumber(t, body["stopped_at"], "stopped_at")
			requireMap(t, body["stats"], "stats")
		}},
		{http.MethodPost, "/api/recording/stop", http.StatusBadRequest, func(t *testing.T, body map[string]any) {
			requireString(t, body["error"], "error")
		}},
	}

	for _, step := range steps {
		var (
			resp *http.Response
			body []byte
		)
		if step.method == http.MethodPost {
			resp, body = client.post(t, step.path)
		} else {
			resp, body = client.get(t, step.path)
		}
		if resp.StatusCode != step.status {
			t.Fatalf("%s %s status = %d, want %d", step.method, step.path, resp.StatusCode, step.status)
		}
		step.check(t, decodeJSONMap(t, body))
	}
}
