// Package app wires configuration into the capture components shared by the
// commands.
package app

import (
	"fmt"
	"os"
	"strconv"

	"github.com/meryemcrkn/cam-app/internal/camera"
	"github.com/meryemcrkn/cam-app/internal/camera/webcam"
	"github.com/meryemcrkn/cam-app/internal/config"
	"github.com/meryemcrkn/cam-app/internal/inference"
	"github.com/meryemcrkn/cam-app/internal/jpeg"
	"github.com/meryemcrkn/cam-app/internal/logger"
	"github.com/meryemcrkn/cam-app/internal/permission"
	"github.com/meryemcrkn/cam-app/internal/shm"
	"github.com/meryemcrkn/cam-app/internal/stream"
	"github.com/meryemcrkn/cam-app/pkg/types"
)

// UserAgent is sent with every upload.
const UserAgent = "cam-app/1"

// SetupLogging initializes the global logger from cfg.
func SetupLogging(cfg config.Config) error {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	format, err := logger.ParseFormat(cfg.LogFormat)
	if err != nil {
		return err
	}
	logger.InitWithFormat(level, os.Stderr, cfg.LogColor, format)
	return nil
}

// SessionConfig maps cfg onto the session tunables.
func SessionConfig(cfg config.Config) stream.Config {
	return stream.Config{
		Interval: cfg.Interval,
		Capture: types.CaptureOptions{
			Quality:        cfg.Quality,
			SkipProcessing: cfg.SkipProcessing,
		},
	}
}

// NewUploader returns the inference client for cfg.
func NewUploader(cfg config.Config) (*inference.Client, error) {
	return inference.NewClient(
		inference.WithBaseURL(cfg.ServerURL),
		inference.WithTimeout(cfg.RequestTimeout),
		inference.WithUserAgent(UserAgent),
	)
}

// OpenCamera builds the device and permission provider for cfg.Source.
// Hardware devices are opened on first capture.
func OpenCamera(cfg config.Config, spool *camera.Spool) (camera.Device, permission.Provider, error) {
	kind, arg, err := config.ParseSource(cfg.Source)
	if err != nil {
		return nil, nil, err
	}
	processor := jpeg.NewProcessor(cfg.MaxWidth)

	var (
		dev        camera.Device
		permPath   string
		alwaysOpen bool
	)
	switch kind {
	case config.SourceWebcam:
		id, err := strconv.Atoi(arg)
		if err != nil {
			return nil, nil, fmt.Errorf("webcam id %q: %w", arg, err)
		}
		dev = camera.NewLazyDevice(func() (camera.Device, error) {
			return webcam.Open(webcam.Config{DeviceID: id, MaxWidth: cfg.MaxWidth}, spool)
		})
		permPath = cfg.PermissionDevice

	case config.SourceSHM:
		dev = camera.NewLazyDevice(func() (camera.Device, error) {
			reader, err := shm.NewReader(arg, 0)
			if err != nil {
				return nil, err
			}
			return camera.NewSourceDevice(reader, spool, processor), nil
		})
		permPath = shm.Path(arg)

	case config.SourceFile:
		src, err := camera.NewFileSource(arg)
		if err != nil {
			return nil, nil, err
		}
		dev = camera.NewSourceDevice(src, spool, processor)
		alwaysOpen = true
	}

	var perm permission.Provider
	switch {
	case cfg.AssumePermission || alwaysOpen:
		perm = permission.Static{Granted: true}
	default:
		perm = permission.NewDevice(permPath)
	}
	return dev, perm, nil
}
