package stream

import (
	"bytes"
	"strings"
	"testing"
)

func TestTerminalRendererPrintsChanges(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalRenderer(&buf)

	r.Render(View{State: StateAwaitingPermission, Text: PermissionRequired})
	r.Render(View{State: StateAwaitingPermission, Text: PermissionRequired})
	r.Render(View{State: StateStreaming})
	r.Render(View{State: StateStreaming, Text: `{"label":"car"}`})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"[awaiting_permission] Camera permission required",
		"[streaming]",
		`[streaming] {"label":"car"}`,
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines: %q", len(lines), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}
