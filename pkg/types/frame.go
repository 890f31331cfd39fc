package types

import "time"

// Frame represents a raw still read from a frame source
type Frame struct {
	Data      []byte    // Encoded image bytes
	Timestamp time.Time // Frame capture timestamp
	FrameNum  uint64    // Sequential frame number
	Width     int       // Frame width
	Height    int       // Frame height
	Format    int       // One of the Format* constants
}

// Frame format constants (values match the camera daemon's shared memory layout)
const (
	FormatJPEG = 0
	FormatNV12 = 1
	FormatRGB  = 2
	FormatH264 = 3
)

// CaptureOptions controls how a still is produced
type CaptureOptions struct {
	Quality        float64 // Lossy compression quality, 0 (smallest) to 1 (best)
	SkipProcessing bool    // Skip downscaling and re-orientation
}

// Picture is an encoded JPEG still addressable by URI
type Picture struct {
	URI        string    // file:// locator of the encoded image
	Width      int       // Image width, 0 if unknown
	Height     int       // Image height, 0 if unknown
	Size       int64     // Encoded size in bytes
	CapturedAt time.Time // When the still was taken
}

// CycleResult is the outcome of one completed capture-and-upload cycle
type CycleResult struct {
	Seq         uint64    `json:"seq"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Display     string    `json:"display"`         // Text shown to the user
	OK          bool      `json:"ok"`              // True when the server returned JSON
	Err         string    `json:"error,omitempty"` // Underlying error message on failure
	PictureURI  string    `json:"picture_uri,omitempty"`
}

// Duration returns how long the cycle took
func (r CycleResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
