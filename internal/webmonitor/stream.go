package webmonitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/meryemcrkn/cam-app/internal/jpeg"
	"github.com/meryemcrkn/cam-app/internal/logger"
)

const mjpegBoundary = "frame"

func writeSSE(w io.Writer, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// writeSSEEvent writes one cycle event; the id lets EventSource resume.
func writeSSEEvent(w io.Writer, seq uint64, data []byte) error {
	_, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", seq, data)
	return err
}

var (
	placeholderOnce sync.Once
	placeholder     []byte
	placeholderErr  error
)

// placeholderJPEG is shown until the first still is spooled: a dark frame
// with a lighter diagonal cross.
func placeholderJPEG() ([]byte, error) {
	placeholderOnce.Do(func() {
		const w, h = 320, 240
		img := image.NewGray(image.Rect(0, 0, w, h))
		for y := range h {
			for x := range w {
				c := color.Gray{Y: 32}
				if d := x*h - y*w; d > -2*w*h/100 && d < 2*w*h/100 {
					c.Y = 96
				} else if d := x*h - (h-1-y)*w; d > -2*w*h/100 && d < 2*w*h/100 {
					c.Y = 96
				}
				img.SetGray(x, y, c)
			}
		}
		placeholder, placeholderErr = jpeg.Encode(img, 60)
	})
	return placeholder, placeholderErr
}

// streamMJPEG writes the provider's still every interval until ctx is done.
// The same still is not resent.
func streamMJPEG(ctx context.Context, w http.ResponseWriter, interval time.Duration, provider FrameProvider) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	blank, err := placeholderJPEG()
	if err != nil {
		http.Error(w, "Failed to render frame", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-cache")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last []byte
	for {
		still := blank
		if provider != nil {
			if data, ok := provider(); ok {
				still = data
			}
		}

		if last == nil || !bytes.Equal(last, still) {
			if err := writeMJPEGPart(w, still); err != nil {
				logger.Debug("MJPEG", "Client disconnected: %v", err)
				return
			}
			flusher.Flush()
			last = still
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func writeMJPEGPart(w io.Writer, still []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(still)); err != nil {
		return err
	}
	if _, err := w.Write(still); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// streamEventsFromChannel relays serialized cycles to an SSE client, with a
// comment line every keepAlive so proxies keep the connection open.
func streamEventsFromChannel(ctx context.Context, w http.ResponseWriter, eventCh <-chan *SerializedEvent, useProtobuf bool, keepAlive time.Duration) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	format := "application/json"
	if useProtobuf {
		format = "application/protobuf"
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Format", format)
	flusher.Flush()

	keepAliveTicker := time.NewTicker(keepAlive)
	defer keepAliveTicker.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			data := event.JSONData
			if useProtobuf {
				data = event.ProtobufData
			}
			err = writeSSEEvent(w, event.Seq, data)
		case <-keepAliveTicker.C:
			_, err = io.WriteString(w, ": keepalive\n\n")
		}
		if err != nil {
			logger.Debug("SSE", "Client disconnected: %v", err)
			return
		}
		flusher.Flush()
	}
}
