package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // Enable pprof
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/meryemcrkn/cam-app/internal/app"
	"github.com/meryemcrkn/cam-app/internal/camera"
	"github.com/meryemcrkn/cam-app/internal/config"
	"github.com/meryemcrkn/cam-app/internal/logger"
	"github.com/meryemcrkn/cam-app/internal/metrics"
	"github.com/meryemcrkn/cam-app/internal/recorder"
	"github.com/meryemcrkn/cam-app/internal/stream"
	"github.com/meryemcrkn/cam-app/internal/webmonitor"
	"github.com/meryemcrkn/cam-app/internal/webrtc"
	"github.com/meryemcrkn/cam-app/pkg/types"
)

// Server is the capture agent
type Server struct {
	cfg    config.Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	spool    *camera.Spool
	device   camera.Device
	session  *stream.Session
	metrics  *metrics.Metrics
	recorder *recorder.Recorder
	webrtc   *webrtc.Server
	monitor  *webmonitor.Server
	renderer *stream.TerminalRenderer

	httpServer    *http.Server
	metricsServer *http.Server
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	cfg := config.Default()
	if err := cfg.ApplyEnv(nil); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := app.SetupLogging(cfg); err != nil {
		log.Fatalf("Invalid log settings: %v", err)
	}

	logger.Info("Main", "Capture agent starting...")
	logger.Info("Main", "Log level: %s", logger.GetLevel())

	srv, err := NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Main", "Shutting down...")

	if err := srv.Shutdown(); err != nil {
		logger.Error("Main", "Error during shutdown: %v", err)
	}

	logger.Info("Main", "Server stopped")
}

// NewServer wires every component from cfg
func NewServer(cfg config.Config) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	spool, err := camera.NewSpool(cfg.SpoolDir, cfg.SpoolKeep)
	if err != nil {
		cancel()
		return nil, err
	}

	device, perm, err := app.OpenCamera(cfg, spool)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to set up camera: %w", err)
	}

	uploader, err := app.NewUploader(cfg)
	if err != nil {
		cancel()
		device.Close()
		return nil, err
	}

	session, err := stream.New(app.SessionConfig(cfg), perm, device, uploader)
	if err != nil {
		cancel()
		device.Close()
		return nil, err
	}

	m := metrics.New()
	m.AttachSession(session)

	rec := recorder.NewRecorder(cfg.RecordPath)
	rtc := webrtc.NewServer(cfg.STUNServers, cfg.MaxClients, m)

	mon, err := webmonitor.NewServer(webmonitor.Config{
		Addr:           cfg.HTTPAddr,
		StatusInterval: 2 * time.Second,
		MJPEGInterval:  cfg.Interval / 2,
	}, webmonitor.Deps{
		Session:  session,
		Recorder: rec,
		WebRTC:   rtc,
		Metrics:  m,
		Frames:   spool.Latest,
	})
	if err != nil {
		cancel()
		device.Close()
		return nil, err
	}

	renderer := stream.NewTerminalRenderer(os.Stdout)
	renderer.Attach(session)
	session.OnResult(m.ObserveCycle)
	session.OnResult(func(res types.CycleResult) { rec.SendResult(res) })
	session.OnResult(mon.Observe)
	session.OnResult(rtc.Broadcast)

	srv := &Server{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		spool:    spool,
		device:   device,
		session:  session,
		metrics:  m,
		recorder: rec,
		webrtc:   rtc,
		monitor:  mon,
	}

	if cfg.HTTPAddr != "" {
		srv.httpServer = &http.Server{Addr: cfg.HTTPAddr, Handler: mon.Handler()}
	}
	if cfg.MetricsAddr != "" && cfg.MetricsAddr != cfg.HTTPAddr {
		srv.metricsServer = m.NewServer(cfg.MetricsAddr)
	}

	srv.renderer = renderer
	return srv, nil
}

// Start starts all server components
func (s *Server) Start() error {
	logger.Info("Main", "Starting capture agent...")
	logger.Info("Main", "  Session: %s", s.session.ID())
	logger.Info("Main", "  Server: %s", s.cfg.ServerURL)
	logger.Info("Main", "  Source: %s", s.cfg.Source)
	logger.Info("Main", "  Interval: %v", s.cfg.Interval)
	logger.Info("Main", "  Spool: %s (keep %d)", s.spool.Dir(), s.cfg.SpoolKeep)
	logger.Info("Main", "  HTTP server: %s", s.cfg.HTTPAddr)
	logger.Info("Main", "  Metrics server: %s", s.cfg.MetricsAddr)
	logger.Info("Main", "  Recording path: %s", s.cfg.RecordPath)

	if s.cfg.PprofAddr != "" {
		go func() {
			logger.Info("Main", "Starting pprof server on %s", s.cfg.PprofAddr)
			if err := http.ListenAndServe(s.cfg.PprofAddr, nil); err != nil {
				logger.Warn("Main", "pprof server error: %v", err)
			}
		}()
	}

	if s.metricsServer != nil {
		go func() {
			logger.Info("Main", "Starting metrics server on %s", s.metricsServer.Addr)
			if err := s.metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("Main", "Metrics server error: %v", err)
			}
		}()
	}

	if s.httpServer != nil {
		go func() {
			logger.Info("Main", "Starting HTTP server on %s", s.httpServer.Addr)
			if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("Main", "HTTP server error: %v", err)
			}
		}()
	}

	s.wg.Add(1)
	go s.updateRecordingMetrics()

	if err := s.session.Start(s.ctx); err != nil {
		return err
	}
	s.renderer.Render(s.session.View())

	logger.Info("Main", "Server started successfully")
	return nil
}

// updateRecordingMetrics mirrors recorder state into metrics
func (s *Server) updateRecordingMetrics() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			st := s.recorder.GetStatus()
			s.metrics.UpdateRecording(st.Recording, st.BytesWritten, st.CycleCount, st.Dropped)
		}
	}
}

// Shutdown stops the timer, drains in-flight cycles and closes every component
func (s *Server) Shutdown() error {
	var errs []error

	if err := s.session.Close(); err != nil {
		errs = append(errs, err)
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout+time.Second)
	if err := s.session.Wait(drainCtx); err != nil {
		logger.Warn("Main", "In-flight cycles still running at shutdown: %v", err)
	}
	drainCancel()

	s.cancel()
	s.wg.Wait()

	s.monitor.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}

	if err := s.webrtc.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.recorder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("recorder: %w", err))
	}
	if err := s.device.Close(); err != nil {
		errs = append(errs, fmt.Errorf("camera: %w", err))
	}

	return errors.Join(errs...)
}
