// Package webcam captures stills from a V4L2/OpenCV video device.
package webcam

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/meryemcrkn/cam-app/internal/camera"
	"github.com/meryemcrkn/cam-app/internal/jpeg"
	"github.com/meryemcrkn/cam-app/internal/logger"
	"github.com/meryemcrkn/cam-app/pkg/types"
)

var log = logger.For("Camera")

// Config holds device settings
type Config struct {
	DeviceID int
	Width    int // 0 keeps the driver default
	Height   int
	MaxWidth int // downscale target when processing is enabled
}

// Device reads frames from an OpenCV VideoCapture
type Device struct {
	cfg   Config
	spool *camera.Spool

	mu     sync.Mutex
	cap    *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
}

// Open opens the video device.
func Open(cfg Config, spool *camera.Spool) (*Device, error) {
	vc, err := gocv.VideoCaptureDevice(cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("open video device %d: %w", cfg.DeviceID, err)
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	log.Info("Opened video device %d (%.0fx%.0f)", cfg.DeviceID,
		vc.Get(gocv.VideoCaptureFrameWidth), vc.Get(gocv.VideoCaptureFrameHeight))

	return &Device{
		cfg:   cfg,
		spool: spool,
		cap:   vc,
		mat:   gocv.NewMat(),
	}, nil
}

// TakePicture grabs one frame and spools it as JPEG. An empty read yields
// no picture.
func (d *Device) TakePicture(ctx context.Context, opts types.CaptureOptions) (*types.Picture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, camera.ErrClosed
	}
	if ok := d.cap.Read(&d.mat); !ok || d.mat.Empty() {
		return nil, nil
	}
	capturedAt := time.Now()

	src := d.mat
	if !opts.SkipProcessing && d.cfg.MaxWidth > 0 && src.Cols() > d.cfg.MaxWidth {
		scaled := gocv.NewMat()
		defer scaled.Close()
		h := src.Rows() * d.cfg.MaxWidth / src.Cols()
		gocv.Resize(src, &scaled, image.Pt(d.cfg.MaxWidth, h), 0, 0, gocv.InterpolationArea)
		src = scaled
	}

	quality := 95
	if opts.Quality > 0 {
		quality = jpeg.QualityFromFraction(opts.Quality)
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, src, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	return d.spool.Write(buf.GetBytes(), src.Cols(), src.Rows(), capturedAt)
}

// Close releases the device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.mat.Close()
	return d.cap.Close()
}
