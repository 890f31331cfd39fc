package livecheck

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

const (
	defaultBaseURL        = "http://localhost:8080"
	defaultRequestTimeout = 2 * time.Second
)

// agentClient talks to a running camstream process.
type agentClient struct {
	baseURL string
	client  *http.Client
}

func newAgentClient(t *testing.T) *agentClient {
	t.Helper()
	baseURL := os.Getenv("CAMAPP_LIVE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	client := &http.Client{Timeout: defaultRequestTimeout}

	if !isReachable(client, baseURL+"/health") {
		t.Skipf("agent not reachable at %s (set CAMAPP_LIVE_URL to run)", baseURL)
	}

	return &agentClient{
		baseURL: baseURL,
		client:  client,
	}
}

func isReachable(client *http.Client, url string) bool {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 500
}

func (c *agentClient) do(t *testing.T, method, path string, body io.Reader) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_ = resp.Body.Close()
	return resp, data
}

func (c *agentClient) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	return c.do(t, http.MethodGet, path, nil)
}

func (c *agentClient) post(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	return c.do(t, http.MethodPost, path, bytes.NewReader([]byte("{}")))
}

// getResponse returns the open response; the caller closes the body.
func (c *agentClient) getResponse(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// readSSEEvent returns the first event from url that carries data, skipping
// keepalive comments.
func readSSEEvent(url string, timeout time.Duration) (string, http.Header, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var event []string
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "" && len(event) > 0:
			return strings.Join(event, "\n"), resp.Header, nil
		case line == "", strings.HasPrefix(line, ":"):
		default:
			event = append(event, line)
		}
	}
	if err := sc.Err(); err != nil {
		return "", nil, fmt.Errorf("read sse: %w", err)
	}
	return "", nil, fmt.Errorf("sse stream closed before event")
}

func parseSSEData(t *testing.T, event string) map[string]any {
	t.Helper()
	for _, line := range strings.Split(event, "\n") {
		if strings.HasPrefix(line, "data:") {
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				t.Fatalf("empty sse data line")
			}
			return decodeJSONMap(t, []byte(payload))
		}
	}
	t.Fatalf("no data line in sse event: %q", event)
	return nil
}

func decodeJSONMap(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode json: %v\nbody=%s", err, string(body))
	}
	return payload
}

// want asserts that value has the Go type T that encoding/json decodes into.
func want[T any](t *testing.T, value any, field string) T {
	t.Helper()
	v, ok := value.(T)
	if !ok {
		var zero T
		t.Fatalf("%s: got %T, want %T", field, value, zero)
	}
	return v
}

func requireString(t *testing.T, value any, field string) string {
	t.Helper()
	return want[string](t, value, field)
}

func requireNumber(t *testing.T, value any, field string) float64 {
	t.Helper()
	return want[float64](t, value, field)
}

func requireBool(t *testing.T, value any, field string) bool {
	t.Helper()
	return want[bool](t, value, field)
}

func requireMap(t *testing.T, value any, field string) map[string]any {
	t.Helper()
	return want[map[string]any](t, value, field)
}

func requireSlice(t *testing.T, value any, field string) []any {
	t.Helper()
	return want[[]any](t, value, field)
}

// requireNumbers checks that every key of obj is a number.
func requireNumbers(t *testing.T, obj map[string]any, prefix string, keys ...string) {
	t.Helper()
	for _, key := range keys {
		requireNumber(t, obj[key], prefix+key)
	}
}

var knownStates = map[string]bool{
	"idle":                true,
	"awaiting_permission": true,
	"streaming":           true,
	"paused":              true,
	"closed":              true,
}

func assertView(t *testing.T, payload map[string]any, field string) {
	t.Helper()
	state := requireString(t, payload["state"], field+".state")
	if !knownStates[state] {
		t.Fatalf("%s.state = %q", field, state)
	}
	granted := requireBool(t, payload["permission_granted"], field+".permission_granted")
	requireBool(t, payload["streaming"], field+".streaming")
	requireBool(t, payload["has_result"], field+".has_result")
	requireNumber(t, payload["seq"], field+".seq")
	text := requireString(t, payload["text"], field+".text")
	if !granted && text != "Camera permission required" {
		t.Fatalf("%s.text without permission = %q", field, text)
	}
}

// assertCycle checks one completed cycle and its display rule.
func assertCycle(t *testing.T, payload map[string]any, field string) {
	t.Helper()
	requireNumber(t, payload["seq"], field+".seq")
	requireString(t, payload["started_at"], field+".started_at")
	requireString(t, payload["completed_at"], field+".completed_at")
	display := requireString(t, payload["display"], field+".display")
	if requireBool(t, payload["ok"], field+".ok") {
		if !json.Valid([]byte(display)) {
			t.Fatalf("%s.display is not JSON: %q", field, display)
		}
	} else if !strings.HasPrefix(display, "Upload error: ") {
		t.Fatalf("%s.display missing error prefix: %q", field, display)
	}
}

func assertStatusPayload(t *testing.T, payload map[string]any) {
	t.Helper()
	requireString(t, payload["session_id"], "session_id")
	assertView(t, requireMap(t, payload["view"], "view"), "view")

	requireNumbers(t, requireMap(t, payload["cycles"], "cycles"), "cycles.",
		"cycles_started", "cycles_skipped", "capture_errors", "uploads_ok", "uploads_failed", "in_flight")
	requireNumbers(t, requireMap(t, payload["monitor"], "monitor"), "monitor.",
		"completed", "succeeded", "failed", "uptime_seconds")
	requireNumbers(t, payload, "", "webrtc_clients", "timestamp")

	if payload["latest"] != nil {
		assertCycle(t, requireMap(t, payload["latest"], "latest"), "latest")
	}
	if payload["history"] != nil {
		for i, raw := range requireSlice(t, payload["history"], "history") {
			field := fmt.Sprintf("history[%d]", i)
			assertCycle(t, requireMap(t, raw, field), field)
		}
	}
}
