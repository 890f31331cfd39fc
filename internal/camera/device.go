// Package camera produces encoded stills for the capture cycle.
package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/meryemcrkn/cam-app/internal/jpeg"
	"github.com/meryemcrkn/cam-app/internal/logger"
	"github.com/meryemcrkn/cam-app/pkg/types"
)

var log = logger.For("Camera")

// ErrClosed is returned by devices used after Close.
var ErrClosed = errors.New("camera: device closed")

// Device captures still images.
//
// TakePicture returns (nil, nil) when the device had no frame to give; the
// caller treats that as "nothing captured" rather than a failure.
type Device interface {
	TakePicture(ctx context.Context, opts types.CaptureOptions) (*types.Picture, error)
	Close() error
}

// FrameSource yields the most recent raw frame, or nil when none is ready.
type FrameSource interface {
	ReadLatest() (*types.Frame, error)
	Close() error
}

// SourceDevice turns a FrameSource into a Device by encoding and spooling
// each frame it reads.
type SourceDevice struct {
	source    FrameSource
	spool     *Spool
	processor *jpeg.Processor
}

// NewSourceDevice wraps source. Frames are spooled into spool.
func NewSourceDevice(source FrameSource, spool *Spool, processor *jpeg.Processor) *SourceDevice {
	if processor == nil {
		processor = jpeg.NewProcessor(0)
	}
	return &SourceDevice{source: source, spool: spool, processor: processor}
}

// TakePicture reads the latest frame and spools it as JPEG.
func (d *SourceDevice) TakePicture(ctx context.Context, opts types.CaptureOptions) (*types.Picture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame, err := d.source.ReadLatest()
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	if frame == nil || len(frame.Data) == 0 {
		return nil, nil
	}
	if frame.Format != types.FormatJPEG {
		log.Debug("Ignoring frame #%d with format %d", frame.FrameNum, frame.Format)
		return nil, nil
	}
	data := frame.Data
	width, height := frame.Width, frame.Height
	if (opts.Quality > 0 && opts.Quality < 1) || !opts.SkipProcessing {
		out, info, err := d.processor.Recompress(data, jpeg.QualityFromFraction(opts.Quality), opts.SkipProcessing)
		if err != nil {
			return nil, fmt.Errorf("encode frame #%d: %w", frame.FrameNum, err)
		}
		data, width, height = out, info.Width, info.Height
	}

	ts := frame.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return d.spool.Write(data, width, height, ts)
}

// Close closes the underlying source.
func (d *SourceDevice) Close() error {
	return d.source.Close()
}

// Open returns a reader for a picture URI produced by a Spool.
func Open(uri string) (io.ReadCloser, error) {
	path, err := pathFromURI(uri)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open picture: %w", err)
	}
	return f, nil
}

func pathFromURI(uri string) (string, error) {
	if uri == "" {
		return "", errors.New("camera: empty picture URI")
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("camera: parse picture URI: %w", err)
	}
	switch u.Scheme {
	case "file":
		return u.Path, nil
	case "":
		return uri, nil
	default:
		return "", fmt.Errorf("camera: unsupported picture URI scheme %q", u.Scheme)
	}
}
