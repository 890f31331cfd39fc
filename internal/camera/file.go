package camera

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/meryemcrkn/cam-app/internal/jpeg"
	"github.com/meryemcrkn/cam-app/pkg/types"
)

// FileSource serves the same JPEG from disk on every read. It stands in for
// a camera during development.
type FileSource struct {
	path    string
	data    []byte
	info    jpeg.Info
	counter atomic.Uint64
}

// NewFileSource loads path and checks that it is a JPEG.
func NewFileSource(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	info, err := jpeg.Inspect(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &FileSource{path: path, data: data, info: info}, nil
}

// ReadLatest returns a copy of the file as a new frame.
func (s *FileSource) ReadLatest() (*types.Frame, error) {
	return &types.Frame{
		Data:      append([]byte(nil), s.data...),
		Timestamp: time.Now(),
		FrameNum:  s.counter.Add(1),
		Width:     s.info.Width,
		Height:    s.info.Height,
		Format:    types.FormatJPEG,
	}, nil
}

// Close is a no-op.
func (s *FileSource) Close() error {
	return nil
}
