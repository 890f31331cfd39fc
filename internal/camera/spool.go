package camera

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meryemcrkn/cam-app/pkg/types"
)

// Spool stores encoded stills on disk and hands out file:// URIs.
// Only the newest Keep files are retained.
type Spool struct {
	dir  string
	keep int

	mu    sync.Mutex
	files []string // oldest first
}

// NewSpool creates dir if needed. keep <= 0 keeps every file.
func NewSpool(dir string, keep int) (*Spool, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("spool dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &Spool{dir: abs, keep: keep}, nil
}

// Dir returns the spool directory.
func (s *Spool) Dir() string {
	return s.dir
}

// Write stores data as a new still.
func (s *Spool) Write(data []byte, width, height int, capturedAt time.Time) (*types.Picture, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("frame-%s.jpg", uuid.NewString()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write still: %w", err)
	}

	s.mu.Lock()
	s.files = append(s.files, path)
	var evict []string
	if s.keep > 0 && len(s.files) > s.keep {
		n := len(s.files) - s.keep
		evict = append(evict, s.files[:n]...)
		s.files = append([]string(nil), s.files[n:]...)
	}
	s.mu.Unlock()

	for _, old := range evict {
		if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
			log.Warn("Failed to evict %s: %v", old, err)
		}
	}

	return &types.Picture{
		URI:        (&url.URL{Scheme: "file", Path: path}).String(),
		Width:      width,
		Height:     height,
		Size:       int64(len(data)),
		CapturedAt: capturedAt,
	}, nil
}

// Latest returns the newest still's bytes, if any.
func (s *Spool) Latest() ([]byte, bool) {
	s.mu.Lock()
	if len(s.files) == 0 {
		s.mu.Unlock()
		return nil, false
	}
	path := s.files[len(s.files)-1]
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Len returns the number of retained stills.
func (s *Spool) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// Clear removes every retained still.
func (s *Spool) Clear() error {
	s.mu.Lock()
	files := s.files
	s.files = nil
	s.mu.Unlock()

	var firstErr error
	for _, f := range files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
