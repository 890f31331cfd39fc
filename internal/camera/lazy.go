package camera

import (
	"context"
	"fmt"
	"sync"

	"github.com/meryemcrkn/cam-app/pkg/types"
)

// OpenFunc opens a device.
type OpenFunc func() (Device, error)

// LazyDevice opens its device on the first capture and retries on the next
// capture if opening failed. The device node may not exist, or may not be
// accessible, until permission is granted.
type LazyDevice struct {
	open OpenFunc

	mu     sync.Mutex
	dev    Device
	closed bool
}

// NewLazyDevice wraps open.
func NewLazyDevice(open OpenFunc) *LazyDevice {
	return &LazyDevice{open: open}
}

// TakePicture opens the device if needed and captures from it.
func (l *LazyDevice) TakePicture(ctx context.Context, opts types.CaptureOptions) (*types.Picture, error) {
	dev, err := l.device()
	if err != nil {
		return nil, err
	}
	return dev.TakePicture(ctx, opts)
}

func (l *LazyDevice) device() (Device, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	if l.dev != nil {
		return l.dev, nil
	}
	dev, err := l.open()
	if err != nil {
		return nil, fmt.Errorf("open camera: %w", err)
	}
	l.dev = dev
	return dev, nil
}

// Close closes the device if it was opened.
func (l *LazyDevice) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if l.dev == nil {
		return nil
	}
	return l.dev.Close()
}
