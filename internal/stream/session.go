// Package stream runs the capture screen: it waits for camera permission,
// then captures a still every period, uploads it and keeps the latest answer.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/meryemcrkn/cam-app/internal/camera"
	"github.com/meryemcrkn/cam-app/internal/logger"
	"github.com/meryemcrkn/cam-app/internal/permission"
	"github.com/meryemcrkn/cam-app/pkg/types"
)

// Display strings.
const (
	ErrorPrefix        = "Upload error: "
	UnknownError       = "unknown error"
	PermissionRequired = "Camera permission required"
)

var (
	ErrAlreadyStarted = errors.New("stream: session already started")
	ErrClosed         = errors.New("stream: session closed")

	// ErrPermissionDenied is returned by CaptureOnce without camera permission.
	ErrPermissionDenied = errors.New("stream: camera permission not granted")
)

// State is the session lifecycle state.
type State string

const (
	StateIdle               State = "idle"
	StateAwaitingPermission State = "awaiting_permission"
	StateStreaming          State = "streaming"
	StatePaused             State = "paused"
	StateClosed             State = "closed"
)

// Uploader sends a still to the inference service and returns the text to show.
type Uploader interface {
	Predict(ctx context.Context, pic *types.Picture) (string, error)
}

// Config holds session tunables.
type Config struct {
	Interval time.Duration
	Capture  types.CaptureOptions
}

// DefaultConfig returns one capture per second at quality 0.3, unprocessed.
func DefaultConfig() Config {
	return Config{
		Interval: 1000 * time.Millisecond,
		Capture:  types.CaptureOptions{Quality: 0.3, SkipProcessing: true},
	}
}

// Stats is a snapshot of the session counters.
type Stats struct {
	CyclesStarted uint64 `json:"cycles_started"`
	CyclesSkipped uint64 `json:"cycles_skipped"`
	CaptureErrors uint64 `json:"capture_errors"`
	UploadsOK     uint64 `json:"uploads_ok"`
	UploadsFailed uint64 `json:"uploads_failed"`
	InFlight      int64  `json:"in_flight"`
}

// Session is one mounted capture screen.
type Session struct {
	id       string
	cfg      Config
	perm     permission.Provider
	device   camera.Device
	uploader Uploader
	log      logger.Module

	ctx    context.Context
	cancel context.CancelFunc
	loopWG sync.WaitGroup
	cycles sync.WaitGroup
	kick   chan struct{}

	mu        sync.Mutex
	state     State
	granted   bool
	streaming bool
	result    string
	hasResult bool
	lastSeq   uint64
	started   bool
	closed    bool

	// pubMu orders slot writes and observer calls by completion.
	pubMu     sync.Mutex
	observers []func(types.CycleResult)

	seq           atomic.Uint64
	cyclesStarted atomic.Uint64
	cyclesSkipped atomic.Uint64
	captureErrors atomic.Uint64
	uploadsOK     atomic.Uint64
	uploadsFailed atomic.Uint64
	inFlight      atomic.Int64
}

// New creates an idle session. Call Start to begin.
func New(cfg Config, perm permission.Provider, device camera.Device, uploader Uploader) (*Session, error) {
	if perm == nil || device == nil || uploader == nil {
		return nil, errors.New("stream: permission provider, device and uploader are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		perm:      perm,
		device:    device,
		uploader:  uploader,
		log:       logger.For("Session"),
		ctx:       ctx,
		cancel:    cancel,
		kick:      make(chan struct{}, 1),
		state:     StateIdle,
		streaming: true,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// OnResult registers fn to receive every completed cycle, in completion order.
// fn runs on the cycle goroutine and must not block.
func (s *Session) OnResult(fn func(types.CycleResult)) {
	s.pubMu.Lock()
	s.observers = append(s.observers, fn)
	s.pubMu.Unlock()
}

// Start checks permission, requests it once if needed, and starts the timer.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	st, err := s.perm.Status(ctx)
	if err != nil {
		s.log.Warn("Permission status failed: %v", err)
	}
	if !st.Granted {
		s.log.Info("Requesting camera permission")
		st, err = s.perm.Request(ctx)
		if err != nil {
			s.log.Warn("Permission request failed: %v", err)
		}
	}
	s.setGranted(st.Granted)
	if st.Granted {
		s.log.Info("Camera permission granted, capturing every %v", s.cfg.Interval)
	} else {
		s.log.Warn("Camera permission not granted")
	}

	s.loopWG.Add(1)
	go s.run()
	return nil
}

// SetStreaming pauses or resumes the capture timer.
func (s *Session) SetStreaming(on bool) {
	s.mu.Lock()
	if s.streaming == on || s.closed {
		s.mu.Unlock()
		return
	}
	s.streaming = on
	s.state = s.stateLocked()
	s.mu.Unlock()

	if on {
		s.log.Info("Streaming resumed")
	} else {
		s.log.Info("Streaming paused")
	}
	s.notify()
}

// Close stops the timer. Cycles already running keep going and still
// publish their result; use Wait to drain them.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.state = StateClosed
	s.mu.Unlock()

	s.cancel()
	s.loopWG.Wait()
	s.log.Info("Session closed (%d in flight)", s.inFlight.Load())
	return nil
}

// Wait blocks until in-flight cycles finish or ctx is done. Call after Close.
func (s *Session) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.cycles.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result returns the latest displayed result.
func (s *Session) Result() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.hasResult
}

// LastSeq returns the sequence number of the cycle that wrote the result slot.
func (s *Session) LastSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeq
}

// Stats returns a snapshot of the counters.
func (s *Session) Stats() Stats {
	return Stats{
		CyclesStarted: s.cyclesStarted.Load(),
		CyclesSkipped: s.cyclesSkipped.Load(),
		CaptureErrors: s.captureErrors.Load(),
		UploadsOK:     s.uploadsOK.Load(),
		UploadsFailed: s.uploadsFailed.Load(),
		InFlight:      s.inFlight.Load(),
	}
}

func (s *Session) setGranted(granted bool) {
	s.mu.Lock()
	s.granted = granted
	if !s.closed {
		s.state = s.stateLocked()
	}
	s.mu.Unlock()
}

func (s *Session) stateLocked() State {
	switch {
	case s.closed:
		return StateClosed
	case !s.started:
		return StateIdle
	case !s.granted:
		return StateAwaitingPermission
	case !s.streaming:
		return StatePaused
	default:
		return StateStreaming
	}
}

func (s *Session) notify() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// timerWanted reports whether the loop needs a ticker: to capture while
// streaming, or to re-read permission while waiting for it.
func (s *Session) timerWanted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.granted || s.streaming
}

func (s *Session) run() {
	defer s.loopWG.Done()

	var ticker *time.Ticker
	stop := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
		}
	}
	defer stop()

	for {
		var tick <-chan time.Time
		if s.timerWanted() {
			if ticker == nil {
				ticker = time.NewTicker(s.cfg.Interval)
			}
			tick = ticker.C
		} else {
			stop()
		}

		select {
		case <-s.ctx.Done():
			return
		case <-s.kick:
			// Re-arm from scratch so a resumed timer starts a full period later.
			stop()
		case <-tick:
			s.tick()
		}
	}
}

func (s *Session) tick() {
	s.mu.Lock()
	granted, streaming, closed := s.granted, s.streaming, s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	if !granted {
		st, err := s.perm.Status(s.ctx)
		if err != nil {
			s.log.Debug("Permission status failed: %v", err)
			return
		}
		if st.Granted {
			s.setGranted(true)
			s.log.Info("Camera permission granted, capturing every %v", s.cfg.Interval)
			s.notify()
		}
		return
	}
	if !streaming {
		return
	}

	// Access can be revoked at any time; every cycle starts from a fresh read.
	st, err := s.perm.Status(s.ctx)
	if err != nil {
		s.log.Warn("Permission status failed, skipping cycle: %v", err)
		return
	}
	if !st.Granted {
		s.setGranted(false)
		s.log.Warn("Camera permission revoked, waiting for access")
		return
	}

	seq := s.seq.Add(1)
	s.cyclesStarted.Add(1)
	s.cycles.Add(1)
	go s.cycle(context.WithoutCancel(s.ctx), seq)
}

func (s *Session) cycle(ctx context.Context, seq uint64) {
	defer s.cycles.Done()
	if res, ok := s.runCycle(ctx, seq); ok {
		s.publish(res)
	}
}

// runCycle captures, uploads and builds the result. It reports false when
// the device produced no picture.
func (s *Session) runCycle(ctx context.Context, seq uint64) (types.CycleResult, bool) {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	log := logger.For("Cycle")
	res := types.CycleResult{Seq: seq, StartedAt: time.Now()}

	pic, err := s.device.TakePicture(ctx, s.cfg.Capture)
	switch {
	case err != nil:
		s.captureErrors.Add(1)
		log.Warn("#%d capture failed: %v", seq, err)
		res.Err = errorText(err)
		res.Display = ErrorPrefix + res.Err
	case pic == nil || pic.URI == "":
		s.cyclesSkipped.Add(1)
		log.Debug("#%d no frame captured, skipping", seq)
		return res, false
	default:
		log.Info("#%d captured %s", seq, pic.URI)
		res.PictureURI = pic.URI
		body, err := s.uploader.Predict(ctx, pic)
		if err != nil {
			s.uploadsFailed.Add(1)
			log.Warn("#%d upload failed: %v", seq, err)
			res.Err = errorText(err)
			res.Display = ErrorPrefix + res.Err
		} else {
			s.uploadsOK.Add(1)
			log.Info("#%d server result: %s", seq, body)
			res.OK = true
			res.Display = body
		}
	}

	res.CompletedAt = time.Now()
	return res, true
}

// CaptureOnce runs a single cycle on the caller's goroutine without starting
// the timer. Permission is checked but never requested. It reports false
// when no picture was captured.
func (s *Session) CaptureOnce(ctx context.Context) (types.CycleResult, bool, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return types.CycleResult{}, false, ErrClosed
	}

	st, err := s.perm.Status(ctx)
	if err != nil {
		return types.CycleResult{}, false, fmt.Errorf("permission status: %w", err)
	}
	s.setGranted(st.Granted)
	if !st.Granted {
		return types.CycleResult{}, false, ErrPermissionDenied
	}

	seq := s.seq.Add(1)
	s.cyclesStarted.Add(1)
	res, ok := s.runCycle(ctx, seq)
	if ok {
		s.publish(res)
	}
	return res, ok, nil
}

func (s *Session) publish(res types.CycleResult) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	s.result = res.Display
	s.hasResult = true
	s.lastSeq = res.Seq
	s.mu.Unlock()

	for _, fn := range s.observers {
		fn(res)
	}
}

func errorText(err error) string {
	if err == nil || err.Error() == "" {
		return UnknownError
	}
	return err.Error()
}
