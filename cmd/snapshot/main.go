// Command snapshot captures one still, uploads it and prints the result.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/meryemcrkn/cam-app/internal/app"
	"github.com/meryemcrkn/cam-app/internal/camera"
	"github.com/meryemcrkn/cam-app/internal/config"
	"github.com/meryemcrkn/cam-app/internal/logger"
	"github.com/meryemcrkn/cam-app/internal/stream"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	cfg := config.Default()
	cfg.LogLevel = "warn"
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

	os.Exit(run(cfg))
}

func run(cfg config.Config) int {
	spool, err := camera.NewSpool(cfg.SpoolDir, cfg.SpoolKeep)
	if err != nil {
		logger.Error("Snapshot", "Spool: %v", err)
		return 1
	}

	device, perm, err := app.OpenCamera(cfg, spool)
	if err != nil {
		logger.Error("Snapshot", "Camera: %v", err)
		return 1
	}
	defer device.Close()

	uploader, err := app.NewUploader(cfg)
	if err != nil {
		logger.Error("Snapshot", "Uploader: %v", err)
		return 1
	}

	session, err := stream.New(app.SessionConfig(cfg), perm, device, uploader)
	if err != nil {
		logger.Error("Snapshot", "Session: %v", err)
		return 1
	}
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout+5*time.Second)
	defer cancel()

	res, ok, err := session.CaptureOnce(ctx)
	switch {
	case err != nil:
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, stream.ErrPermissionDenied) {
			fmt.Println(stream.PermissionRequired)
		}
		return 1
	case !ok:
		fmt.Fprintln(os.Stderr, "no picture captured")
		return 1
	}

	fmt.Println(res.Display)
	if !res.OK {
		return 1
	}
	return 0
}
