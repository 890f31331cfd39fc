package camera

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	stdjpeg "image/jpeg"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/meryemcrkn/cam-app/internal/jpeg"
	"github.com/meryemcrkn/cam-app/pkg/types"
)

func sampleJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := stdjpeg.Encode(&buf, img, &stdjpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type stubSource struct {
	frame *types.Frame
	err   error
}

func (s *stubSource) ReadLatest() (*types.Frame, error) { return s.frame, s.err }
func (s *stubSource) Close() error                      { return nil }

func TestSpoolWriteAndOpen(t *testing.T) {
	spool, err := NewSpool(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}

	pic, err := spool.Write([]byte("abc"), 1, 1, time.Now())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.HasPrefix(pic.URI, "file://") || !strings.HasSuffix(pic.URI, ".jpg") {
		t.Fatalf("URI = %q", pic.URI)
	}

	rc, err := Open(pic.URI)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "abc" {
		t.Fatalf("content = %q", data)
	}
}

func TestSpoolEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	spool, err := NewSpool(dir, 2)
	if err != nil {
		t.Fatal(err)
	}
	first, _ := spool.Write([]byte("1"), 0, 0, time.Now())
	spool.Write([]byte("2"), 0, 0, time.Now())
	spool.Write([]byte("3"), 0, 0, time.Now())

	if spool.Len() != 2 {
		t.Fatalf("Len = %d, want 2", spool.Len())
	}
	if _, err := Open(first.URI); err == nil {
		t.Fatal("oldest still should be evicted")
	}
	latest, ok := spool.Latest()
	if !ok || string(latest) != "3" {
		t.Fatalf("Latest = %q %v", latest, ok)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Fatalf("files on disk = %d", len(entries))
	}
	if err := spool.Clear(); err != nil {
		t.Fatal(err)
	}
	if spool.Len() != 0 {
		t.Fatal("Clear left stills behind")
	}
}

func TestOpenRejectsOtherSchemes(t *testing.T) {
	if _, err := Open("https://example.com/frame.jpg"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty URI")
	}
}

func TestSourceDeviceNoFrame(t *testing.T) {
	spool, _ := NewSpool(t.TempDir(), 0)
	d := NewSourceDevice(&stubSource{}, spool, nil)

	pic, err := d.TakePicture(context.Background(), types.CaptureOptions{Quality: 0.3, SkipProcessing: true})
	if err != nil || pic != nil {
		t.Fatalf("TakePicture = %v, %v; want nil, nil", pic, err)
	}
}

func TestSourceDeviceIgnoresNonJPEG(t *testing.T) {
	spool, _ := NewSpool(t.TempDir(), 0)
	src := &stubSource{frame: &types.Frame{Data: []byte{0, 0, 1}, Format: types.FormatH264}}
	d := NewSourceDevice(src, spool, nil)

	pic, err := d.TakePicture(context.Background(), types.CaptureOptions{})
	if err != nil || pic != nil {
		t.Fatalf("TakePicture = %v, %v; want nil, nil", pic, err)
	}
}

func TestSourceDeviceReadError(t *testing.T) {
	spool, _ := NewSpool(t.TempDir(), 0)
	boom := errors.New("boom")
	d := NewSourceDevice(&stubSource{err: boom}, spool, nil)

	if _, err := d.TakePicture(context.Background(), types.CaptureOptions{}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
}

func TestSourceDeviceRecompresses(t *testing.T) {
	spool, _ := NewSpool(t.TempDir(), 0)
	data := sampleJPEG(t, 200, 100)
	src := &stubSource{frame: &types.Frame{Data: data, Width: 200, Height: 100, Format: types.FormatJPEG, FrameNum: 3}}
	d := NewSourceDevice(src, spool, jpeg.NewProcessor(100))

	pic, err := d.TakePicture(context.Background(), types.CaptureOptions{Quality: 0.3, SkipProcessing: false})
	if err != nil {
		t.Fatalf("TakePicture: %v", err)
	}
	if pic.Width != 100 || pic.Height != 50 {
		t.Fatalf("size = %dx%d, want 100x50", pic.Width, pic.Height)
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "still.jpg")
	if err := os.WriteFile(path, sampleJPEG(t, 32, 24), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := NewFileSource(path)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	a, _ := src.ReadLatest()
	b, _ := src.ReadLatest()
	if a.Width != 32 || a.Height != 24 || a.Format != types.FormatJPEG {
		t.Fatalf("frame = %+v", a)
	}
	if b.FrameNum != a.FrameNum+1 {
		t.Fatalf("frame numbers %d, %d", a.FrameNum, b.FrameNum)
	}

	bad := filepath.Join(t.TempDir(), "not.jpg")
	os.WriteFile(bad, []byte("text"), 0o644)
	if _, err := NewFileSource(bad); err == nil {
		t.Fatal("expected error for non-JPEG file")
	}
}
