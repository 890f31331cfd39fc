package jpeg

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	stdjpeg "image/jpeg"
	"math"

	"golang.org/x/image/draw"
)

// JPEG marker bytes (second byte after 0xFF)
const (
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOS  = 0xDA
	markerSOF0 = 0xC0 // baseline
	markerSOF2 = 0xC2 // progressive
	markerTEM  = 0x01
	markerRST0 = 0xD0
	markerRST7 = 0xD7
)

var (
	// ErrNotJPEG is returned when data does not start with an SOI marker.
	ErrNotJPEG = errors.New("jpeg: missing SOI marker")
	// ErrTruncated is returned when a segment runs past the end of data.
	ErrTruncated = errors.New("jpeg: truncated segment")
)

// Info describes an encoded JPEG
type Info struct {
	Width       int
	Height      int
	Components  int
	Progressive bool
	HasEOI      bool
}

// Inspect walks the marker segments up to the start of scan and reports the
// frame header. Entropy-coded data is not decoded.
func Inspect(data []byte) (Info, error) {
	var info Info
	if len(data) < 4 || data[0] != 0xFF || data[1] != markerSOI {
		return info, ErrNotJPEG
	}
	info.HasEOI = bytes.HasSuffix(bytes.TrimRight(data, "\x00"), []byte{0xFF, markerEOI})

	offset := 2
	for offset < len(data) {
		// Skip fill bytes
		if data[offset] != 0xFF {
			return info, fmt.Errorf("jpeg: expected marker at offset %d", offset)
		}
		for offset < len(data) && data[offset] == 0xFF {
			offset++
		}
		if offset >= len(data) {
			return info, ErrTruncated
		}
		marker := data[offset]
		offset++

		// Standalone markers carry no length
		if marker == markerTEM || (marker >= markerRST0 && marker <= markerRST7) {
			continue
		}
		if marker == markerEOI {
			break
		}

		if offset+2 > len(data) {
			return info, ErrTruncated
		}
		segLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		if segLen < 2 || offset+segLen > len(data) {
			return info, ErrTruncated
		}

		if isSOF(marker) {
			seg := data[offset+2 : offset+segLen]
			if len(seg) < 6 {
				return info, ErrTruncated
			}
			info.Height = int(binary.BigEndian.Uint16(seg[1:3]))
			info.Width = int(binary.BigEndian.Uint16(seg[3:5]))
			info.Components = int(seg[5])
			info.Progressive = marker == markerSOF2
		}

		if marker == markerSOS {
			// Frame header always precedes the first scan
			break
		}
		offset += segLen
	}

	if info.Width == 0 || info.Height == 0 {
		return info, fmt.Errorf("jpeg: no frame header found")
	}
	return info, nil
}

// isSOF reports whether marker is a start-of-frame marker (C0-CF except DHT, JPG, DAC)
func isSOF(marker byte) bool {
	if marker < 0xC0 || marker > 0xCF {
		return false
	}
	return marker != 0xC4 && marker != 0xC8 && marker != 0xCC
}

// QualityFromFraction maps a 0..1 fraction onto the 1..100 encoder scale.
func QualityFromFraction(q float64) int {
	v := int(math.Round(q * 100))
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}

// Encode encodes img as JPEG at the given 1..100 quality
func Encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := stdjpeg.Encode(&buf, img, &stdjpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("jpeg: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Processor re-encodes stills for upload
type Processor struct {
	MaxWidth int            // 0 disables downscaling
	Scaler   draw.Interpolator
}

// NewProcessor creates a processor that downscales to maxWidth
func NewProcessor(maxWidth int) *Processor {
	return &Processor{
		MaxWidth: maxWidth,
		Scaler:   draw.CatmullRom,
	}
}

// Recompress decodes data and re-encodes it at quality, downscaling first
// unless skipProcessing is set.
func (p *Processor) Recompress(data []byte, quality int, skipProcessing bool) ([]byte, Info, error) {
	img, err := stdjpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Info{}, fmt.Errorf("jpeg: decode: %w", err)
	}

	if !skipProcessing {
		img = p.Downscale(img)
	}

	out, err := Encode(img, quality)
	if err != nil {
		return nil, Info{}, err
	}
	b := img.Bounds()
	return out, Info{Width: b.Dx(), Height: b.Dy(), Components: 3, HasEOI: true}, nil
}

// Downscale shrinks img to MaxWidth keeping the aspect ratio. Smaller images
// are returned unchanged.
func (p *Processor) Downscale(img image.Image) image.Image {
	b := img.Bounds()
	if p.MaxWidth <= 0 || b.Dx() <= p.MaxWidth {
		return img
	}
	h := b.Dy() * p.MaxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, p.MaxWidth, h))
	scaler := p.Scaler
	if scaler == nil {
		scaler = draw.ApproxBiLinear
	}
	scaler.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
