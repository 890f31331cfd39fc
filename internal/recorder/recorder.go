// Package recorder archives completed cycles as JSON lines.
package recorder

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meryemcrkn/cam-app/internal/logger"
	"github.com/meryemcrkn/cam-app/pkg/types"
)

var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
)

// entry is one archived line.
type entry struct {
	Seq         uint64    `json:"seq"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	OK          bool      `json:"ok"`
	Display     string    `json:"display"`
	PictureURI  string    `json:"picture_uri,omitempty"`
}

// Recorder writes cycles to cycles_<timestamp>.jsonl
type Recorder struct {
	mu           sync.RWMutex
	file         *os.File
	w            *bufio.Writer
	filename     string
	basePath     string
	recording    bool
	cycleCount   uint64
	bytesWritten uint64
	dropped      atomic.Uint64 // bumped under the read lock
	startTime    time.Time
	cycleChan    chan types.CycleResult
	stopChan     chan struct{}
	wg           sync.WaitGroup
	log          logger.Module
}

// NewRecorder creates a new recorder writing under basePath
func NewRecorder(basePath string) *Recorder {
	return &Recorder{
		basePath: basePath,
		log:      logger.For("Recorder"),
	}
}

// Start starts recording to a new file
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return ErrAlreadyRecording
	}

	if err := os.MkdirAll(r.basePath, 0o755); err != nil {
		return fmt.Errorf("failed to create recording dir: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("cycles_%s.jsonl", timestamp)
	path := filepath.Join(r.basePath, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	r.file = file
	r.w = bufio.NewWriter(file)
	r.filename = filename
	r.recording = true
	r.cycleCount = 0
	r.bytesWritten = 0
	r.dropped.Store(0)
	r.startTime = time.Now()
	r.cycleChan = make(chan types.CycleResult, 64)
	r.stopChan = make(chan struct{})

	r.wg.Add(1)
	go r.writeCycles(r.cycleChan, r.stopChan)

	r.log.Info("Recording to %s", path)
	return nil
}

// Stop stops recording and closes the file
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return ErrNotRecording
	}
	r.recording = false
	close(r.stopChan)
	r.mu.Unlock()

	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	var errs []error
	if err := r.w.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush file: %w", err))
	}
	if err := r.file.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("failed to sync file: %w", err))
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close file: %w", err))
	}
	r.file, r.w = nil, nil
	r.log.Info("Recording stopped: %s (%d cycles, %d bytes)", r.filename, r.cycleCount, r.bytesWritten)
	return errors.Join(errs...)
}

// SendResult hands a cycle to the writer without blocking. It reports false
// when not recording or when the buffer is full.
func (r *Recorder) SendResult(res types.CycleResult) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.recording {
		return false
	}

	select {
	case r.cycleChan <- res:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

func (r *Recorder) writeCycles(in <-chan types.CycleResult, stop <-chan struct{}) {
	defer r.wg.Done()

	for {
		select {
		case res := <-in:
			r.writeCycle(res)
		case <-stop:
			for {
				select {
				case res := <-in:
					r.writeCycle(res)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) writeCycle(res types.CycleResult) {
	line, err := json.Marshal(entry{
		Seq:         res.Seq,
		StartedAt:   res.StartedAt,
		CompletedAt: res.CompletedAt,
		OK:          res.OK,
		Display:     res.Display,
		PictureURI:  res.PictureURI,
	})
	if err != nil {
		r.log.Warn("Encode cycle #%d: %v", res.Seq, err)
		return
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.w == nil {
		return
	}
	n, err := r.w.Write(line)
	if err != nil {
		r.log.Warn("Write cycle #%d: %v", res.Seq, err)
		return
	}
	r.bytesWritten += uint64(n)
	r.cycleCount++
}

// IsRecording returns true if currently recording
func (r *Recorder) IsRecording() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recording
}

// GetStatus returns the current recording status
func (r *Recorder) GetStatus() RecordingStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var duration time.Duration
	if r.recording {
		duration = time.Since(r.startTime)
	}

	return RecordingStatus{
		Recording:    r.recording,
		Filename:     r.filename,
		CycleCount:   r.cycleCount,
		BytesWritten: r.bytesWritten,
		Dropped:      r.dropped.Load(),
		DurationMs:   duration.Milliseconds(),
		StartTime:    r.startTime,
	}
}

// Close stops any active recording
func (r *Recorder) Close() error {
	if r.IsRecording() {
		return r.Stop()
	}
	return nil
}

// RecordingStatus holds the current recording status
type RecordingStatus struct {
	Recording    bool      `json:"recording"`
	Filename     string    `json:"filename"`
	CycleCount   uint64    `json:"cycle_count"`
	BytesWritten uint64    `json:"bytes_written"`
	Dropped      uint64    `json:"dropped"`
	DurationMs   int64     `json:"duration_ms"`
	StartTime    time.Time `json:"start_time"`
}
