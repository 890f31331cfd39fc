// Package shm reads JPEG stills from the camera daemon's POSIX shared memory
// ring buffer.
//
// The ring is mapped read-only with golang.org/x/sys/unix; the layout mirrors
// the daemon's SharedFrameBuffer on 64-bit little-endian Linux.
package shm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/meryemcrkn/cam-app/internal/logger"
	"github.com/meryemcrkn/cam-app/pkg/types"
)

const (
	// DefaultName is the ring buffer the camera daemon publishes stills to
	DefaultName = "/pet_camera_mjpeg_frame"

	RingBufferSize = 30
	MaxFrameSize   = 1920 * 1080 * 3 / 2
)

// Frame slot layout:
//
//	frame_number u64 | timespec {sec, nsec} | camera_id, width, height, format i32 |
//	data_size u64 | brightness_avg f32 | lux u32 | zone, corrected u8 | 2 reserved | data
const (
	offFrameNumber = 0
	offTimeSec     = 8
	offTimeNsec    = 16
	offCameraID    = 24
	offWidth       = 28
	offHeight      = 32
	offFormat      = 36
	offDataSize    = 40
	offData        = 60
	headerSize     = offData

	frameSlotSize = (offData + MaxFrameSize + 7) &^ 7

	// write_index u32 | frame_interval_ms u32 | sem_t (32 bytes)
	offWriteIndex = 0
	offFrames     = 40

	// RegionSize is the size of the mapped SharedFrameBuffer.
	RegionSize = offFrames + RingBufferSize*frameSlotSize
)

var (
	ErrClosed    = errors.New("shm: reader closed")
	ErrTooSmall  = errors.New("shm: region smaller than the ring buffer")
	ErrFrameSize = errors.New("shm: frame size out of range")
)

var log = logger.For("Reader")

// Reader reads the newest still from a mapped ring buffer
type Reader struct {
	mu        sync.Mutex
	mem       []byte
	name      string
	lastFrame uint64
}

// Path maps a POSIX shared memory name onto its /dev/shm file.
func Path(name string) string {
	if name == "" {
		name = DefaultName
	}
	return filepath.Join("/dev/shm", strings.TrimPrefix(name, "/"))
}

// NewReader opens the shared memory object, waiting up to wait for the
// daemon to create it.
func NewReader(name string, wait time.Duration) (*Reader, error) {
	path := Path(name)

	deadline := time.Now().Add(wait)
	for attempt := 1; ; attempt++ {
		r, err := Open(path)
		if err == nil {
			log.Info("Successfully opened shared memory: %s", path)
			return r, nil
		}
		if !errors.Is(err, os.ErrNotExist) || !time.Now().Before(deadline) {
			return nil, fmt.Errorf("failed to open shared memory %s (waited %v): %w", path, wait, err)
		}
		if attempt%5 == 1 {
			log.Info("Waiting for shared memory %s to appear... (attempt %d)", path, attempt)
		}
		time.Sleep(time.Second)
	}
}

// Open maps the ring buffer stored in the file at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() < RegionSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, need %d", ErrTooSmall, path, fi.Size(), RegionSize)
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, RegionSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &Reader{mem: mem, name: path}, nil
}

// Name returns the mapped file path
func (r *Reader) Name() string {
	return r.name
}

// Close unmaps the region
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mem == nil {
		return nil
	}
	err := unix.Munmap(r.mem)
	r.mem = nil
	return err
}

// ReadLatest returns the newest JPEG frame, or nil when nothing new has been
// written since the previous call or the newest frame is not JPEG
func (r *Reader) ReadLatest() (*types.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mem == nil {
		return nil, ErrClosed
	}

	// The daemon bumps write_index after filling a slot.
	writeIndex := atomic.LoadUint32((*uint32)(unsafe.Pointer(&r.mem[offWriteIndex])))
	if writeIndex == 0 {
		return nil, nil
	}

	slot := r.mem[offFrames+int((writeIndex-1)%RingBufferSize)*frameSlotSize:]
	hdr := make([]byte, headerSize)
	copy(hdr, slot[:headerSize])

	le := binary.LittleEndian
	if int32(le.Uint32(hdr[offFormat:])) != types.FormatJPEG {
		return nil, nil
	}

	frameNum := le.Uint64(hdr[offFrameNumber:])
	if frameNum != 0 && frameNum == r.lastFrame {
		return nil, nil
	}

	size := le.Uint64(hdr[offDataSize:])
	if size == 0 {
		return nil, nil
	}
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame #%d reports %d bytes", ErrFrameSize, frameNum, size)
	}
	r.lastFrame = frameNum

	data := make([]byte, size)
	copy(data, slot[offData:offData+int(size)])

	return &types.Frame{
		Data:      data,
		Timestamp: time.Unix(int64(le.Uint64(hdr[offTimeSec:])), int64(le.Uint64(hdr[offTimeNsec:]))),
		FrameNum:  frameNum,
		Width:     int(int32(le.Uint32(hdr[offWidth:]))),
		Height:    int(int32(le.Uint32(hdr[offHeight:]))),
		Format:    types.FormatJPEG,
	}, nil
}
