// Package permission answers whether the agent may use the camera.
package permission

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/meryemcrkn/cam-app/internal/logger"
)

var log = logger.For("Permission")

// Status is the camera permission state.
type Status struct {
	Granted     bool `json:"granted"`
	CanAskAgain bool `json:"can_ask_again"`
}

// Provider is the permission subsystem.
type Provider interface {
	// Status reports the current permission without side effects.
	Status(ctx context.Context) (Status, error)
	// Request asks for permission and reports the resulting state.
	Request(ctx context.Context) (Status, error)
}

// Static always answers with the same status.
type Static struct {
	Granted bool
}

func (s Static) Status(context.Context) (Status, error) {
	return Status{Granted: s.Granted}, nil
}

func (s Static) Request(ctx context.Context) (Status, error) {
	return s.Status(ctx)
}

// Device grants access when the process can read and write a device node
// (a V4L2 node such as /dev/video0 or a /dev/shm object).
type Device struct {
	Path string

	mu     sync.Mutex
	asked  bool
	access func(path string, mode uint32) error
}

// NewDevice returns a provider probing path.
func NewDevice(path string) *Device {
	return &Device{Path: path, access: unix.Access}
}

func (d *Device) check() (Status, error) {
	access := d.access
	if access == nil {
		access = unix.Access
	}
	err := access(d.Path, unix.R_OK|unix.W_OK)
	switch {
	case err == nil:
		return Status{Granted: true}, nil
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		d.mu.Lock()
		asked := d.asked
		d.mu.Unlock()
		return Status{Granted: false, CanAskAgain: !asked}, nil
	case errors.Is(err, unix.ENOENT):
		// The device may appear later (hotplug, camera daemon start).
		return Status{Granted: false, CanAskAgain: true}, nil
	default:
		return Status{}, fmt.Errorf("check %s: %w", d.Path, err)
	}
}

// Status checks the device node.
func (d *Device) Status(ctx context.Context) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	return d.check()
}

// Request re-checks once and logs how to grant access when still denied.
func (d *Device) Request(ctx context.Context) (Status, error) {
	st, err := d.Status(ctx)
	if err != nil || st.Granted {
		return st, err
	}

	d.mu.Lock()
	first := !d.asked
	d.asked = true
	d.mu.Unlock()

	if first {
		if _, statErr := os.Stat(d.Path); statErr != nil {
			log.Warn("Camera device %s not present yet", d.Path)
		} else {
			log.Warn("No read/write access to %s; add the user to the device's group (e.g. 'video') or run with -assume-permission", d.Path)
		}
	}
	st.CanAskAgain = false
	return st, nil
}

// Func adapts plain functions to a Provider.
type Func struct {
	StatusFunc  func(ctx context.Context) (Status, error)
	RequestFunc func(ctx context.Context) (Status, error)
}

func (f Func) Status(ctx context.Context) (Status, error) {
	if f.StatusFunc == nil {
		return Status{}, nil
	}
	return f.StatusFunc(ctx)
}

func (f Func) Request(ctx context.Context) (Status, error) {
	if f.RequestFunc == nil {
		return f.Status(ctx)
	}
	return f.RequestFunc(ctx)
}
