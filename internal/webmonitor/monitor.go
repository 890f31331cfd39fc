package webmonitor

import (
	"sync"
	"time"

	"github.com/meryemcrkn/cam-app/pkg/types"
)

// Monitor keeps the latest cycle and a short history for the status API.
type Monitor struct {
	startTime   time.Time
	historySize int

	mu        sync.Mutex
	completed int
	succeeded int
	failed    int
	latest    *types.CycleResult
	history   []types.CycleResult // newest first
}

// NewMonitor creates a Monitor retaining historySize cycles.
func NewMonitor(historySize int) *Monitor {
	if historySize <= 0 {
		historySize = DefaultConfig().HistorySize
	}
	return &Monitor{
		startTime:   time.Now(),
		historySize: historySize,
	}
}

// Observe records a completed cycle.
func (m *Monitor) Observe(res types.CycleResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.completed++
	if res.OK {
		m.succeeded++
	} else {
		m.failed++
	}
	latest := res
	m.latest = &latest
	m.history = append([]types.CycleResult{res}, m.history...)
	if len(m.history) > m.historySize {
		m.history = m.history[:m.historySize]
	}
}

// Snapshot returns stats, the latest cycle and a copy of the history.
func (m *Monitor) Snapshot() (MonitorStats, *types.CycleResult, []types.CycleResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := MonitorStats{
		Completed:     m.completed,
		Succeeded:     m.succeeded,
		Failed:        m.failed,
		UptimeSeconds: time.Since(m.startTime).Seconds(),
	}

	var latest *types.CycleResult
	if m.latest != nil {
		l := *m.latest
		latest = &l
		stats.LastLatencyMs = l.Duration().Milliseconds()
	}

	history := make([]types.CycleResult, len(m.history))
	copy(history, m.history)
	return stats, latest, history
}
