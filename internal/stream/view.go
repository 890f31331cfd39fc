package stream

import (
	"fmt"
	"io"
	"sync"

	"github.com/meryemcrkn/cam-app/pkg/types"
)

// View is what the screen shows.
type View struct {
	State             State  `json:"state"`
	PermissionGranted bool   `json:"permission_granted"`
	Streaming         bool   `json:"streaming"`
	Text              string `json:"text"`
	HasResult         bool   `json:"has_result"`
	Seq               uint64 `json:"seq"`
}

// View renders the current state. Without permission the text is the fixed
// permission notice; otherwise it is the latest result, empty until the
// first cycle completes.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		State:             s.stateLocked(),
		PermissionGranted: s.granted,
		Streaming:         s.streaming,
		HasResult:         s.hasResult,
		Seq:               s.lastSeq,
	}
	if !s.granted {
		v.Text = PermissionRequired
	} else {
		v.Text = s.result
	}
	return v
}

// TerminalRenderer prints the view whenever its text or state changes.
type TerminalRenderer struct {
	mu   sync.Mutex
	out  io.Writer
	last View
	seen bool
}

// NewTerminalRenderer writes to out.
func NewTerminalRenderer(out io.Writer) *TerminalRenderer {
	return &TerminalRenderer{out: out}
}

// Attach renders s after every completed cycle.
func (r *TerminalRenderer) Attach(s *Session) {
	s.OnResult(func(types.CycleResult) {
		r.Render(s.View())
	})
}

// Render prints v if it differs from the last printed view.
func (r *TerminalRenderer) Render(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen && r.last.Text == v.Text && r.last.State == v.State {
		return
	}
	r.last, r.seen = v, true
	if v.Text == "" {
		fmt.Fprintf(r.out, "[%s]\n", v.State)
		return
	}
	fmt.Fprintf(r.out, "[%s] %s\n", v.State, v.Text)
}
