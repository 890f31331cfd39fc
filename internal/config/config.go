// Package config holds the runtime configuration of the capture agent.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultServerURL is the inference service the app ships with.
const DefaultServerURL = "https://traffic-1-j4pi.onrender.com"

// Source kinds accepted by Config.Source ("kind:arg").
const (
	SourceWebcam = "webcam"
	SourceSHM    = "shm"
	SourceFile   = "file"
)

// Config defines the runtime configuration for the capture agent.
type Config struct {
	ServerURL      string
	Interval       time.Duration
	RequestTimeout time.Duration
	Quality        float64
	SkipProcessing bool
	MaxWidth       int

	Source           string
	PermissionDevice string
	AssumePermission bool
	SpoolDir         string
	SpoolKeep        int

	HTTPAddr    string
	MetricsAddr string
	PprofAddr   string
	RecordPath  string
	STUNServers []string
	MaxClients  int

	LogLevel  string
	LogColor  bool
	LogFormat string
}

// Default returns the capture settings the app ships with,
// plus defaults for the agent's own surfaces.
func Default() Config {
	return Config{
		ServerURL:      DefaultServerURL,
		Interval:       1000 * time.Millisecond,
		RequestTimeout: 30 * time.Second,
		Quality:        0.3,
		SkipProcessing: true,
		MaxWidth:       1280,

		Source:           SourceWebcam + ":0",
		PermissionDevice: "/dev/video0",
		SpoolDir:         filepath.Join(os.TempDir(), "cam-app"),
		SpoolKeep:        8,

		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",
		RecordPath:  "./recordings",
		STUNServers: []string{"stun:stun.l.google.com:19302"},
		MaxClients:  10,

		LogLevel:  "info",
		LogColor:  true,
		LogFormat: "text",
	}
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from CAMAPP_* environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("CAMAPP_SERVER_URL", &c.ServerURL)
	dur("CAMAPP_INTERVAL", &c.Interval)
	dur("CAMAPP_REQUEST_TIMEOUT", &c.RequestTimeout)
	if v, ok := lookup("CAMAPP_QUALITY"); ok && v != "" {
		q, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("CAMAPP_QUALITY: %w", err))
		} else {
			c.Quality = q
		}
	}
	boolean("CAMAPP_SKIP_PROCESSING", &c.SkipProcessing)
	integer("CAMAPP_MAX_WIDTH", &c.MaxWidth)
	str("CAMAPP_SOURCE", &c.Source)
	str("CAMAPP_PERMISSION_DEVICE", &c.PermissionDevice)
	boolean("CAMAPP_ASSUME_PERMISSION", &c.AssumePermission)
	str("CAMAPP_SPOOL_DIR", &c.SpoolDir)
	integer("CAMAPP_SPOOL_KEEP", &c.SpoolKeep)
	str("CAMAPP_HTTP_ADDR", &c.HTTPAddr)
	str("CAMAPP_METRICS_ADDR", &c.MetricsAddr)
	str("CAMAPP_PPROF_ADDR", &c.PprofAddr)
	str("CAMAPP_RECORD_PATH", &c.RecordPath)
	if v, ok := lookup("CAMAPP_STUN"); ok && v != "" {
		c.STUNServers = splitList(v)
	}
	integer("CAMAPP_MAX_CLIENTS", &c.MaxClients)
	str("CAMAPP_LOG_LEVEL", &c.LogLevel)
	str("CAMAPP_LOG_FORMAT", &c.LogFormat)
	boolean("CAMAPP_LOG_COLOR", &c.LogColor)

	return errors.Join(errs...)
}

// RegisterFlags binds the config fields to command-line flags on fs.
// Values already in c become the flag defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ServerURL, "server", c.ServerURL, "Inference server base URL")
	fs.DurationVar(&c.Interval, "interval", c.Interval, "Capture interval")
	fs.DurationVar(&c.RequestTimeout, "timeout", c.RequestTimeout, "Upload request timeout")
	fs.Float64Var(&c.Quality, "quality", c.Quality, "JPEG quality (0-1)")
	fs.BoolVar(&c.SkipProcessing, "skip-processing", c.SkipProcessing, "Skip downscaling of captured stills")
	fs.IntVar(&c.MaxWidth, "max-width", c.MaxWidth, "Downscale width when processing is enabled")
	fs.StringVar(&c.Source, "source", c.Source, "Frame source (webcam:<id>, shm:<name>, file:<path>)")
	fs.StringVar(&c.PermissionDevice, "permission-device", c.PermissionDevice, "Device node whose access grants camera permission")
	fs.BoolVar(&c.AssumePermission, "assume-permission", c.AssumePermission, "Treat camera permission as granted")
	fs.StringVar(&c.SpoolDir, "spool", c.SpoolDir, "Directory for captured stills")
	fs.IntVar(&c.SpoolKeep, "spool-keep", c.SpoolKeep, "Maximum stills kept in the spool")
	fs.StringVar(&c.HTTPAddr, "http", c.HTTPAddr, "Monitor HTTP address (empty disables)")
	fs.StringVar(&c.MetricsAddr, "metrics", c.MetricsAddr, "Metrics server address (empty disables)")
	fs.StringVar(&c.PprofAddr, "pprof", c.PprofAddr, "pprof server address (empty disables)")
	fs.StringVar(&c.RecordPath, "record-path", c.RecordPath, "Recording output path")
	fs.Func("stun", "STUN server URLs (comma-separated)", func(v string) error {
		c.STUNServers = splitList(v)
		return nil
	})
	fs.IntVar(&c.MaxClients, "max-clients", c.MaxClients, "Maximum WebRTC clients")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error, silent)")
	fs.BoolVar(&c.LogColor, "log-color", c.LogColor, "Enable colored log output")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format (text, json)")
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.ServerURL == "" {
		errs = append(errs, errors.New("server URL is required"))
	} else if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		errs = append(errs, fmt.Errorf("server URL must be http(s): %q", c.ServerURL))
	}
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %v", c.Interval))
	}
	if c.Quality < 0 || c.Quality > 1 {
		errs = append(errs, fmt.Errorf("quality must be between 0 and 1, got %v", c.Quality))
	}
	if _, _, err := ParseSource(c.Source); err != nil {
		errs = append(errs, err)
	}
	if c.MaxClients < 0 {
		errs = append(errs, errors.New("max clients must not be negative"))
	}
	return errors.Join(errs...)
}

// ParseSource splits "kind:arg" into its parts.
func ParseSource(s string) (kind, arg string, err error) {
	kind, arg, ok := strings.Cut(s, ":")
	if !ok || arg == "" {
		return "", "", fmt.Errorf("invalid source %q (want kind:arg)", s)
	}
	switch kind {
	case SourceWebcam, SourceSHM, SourceFile:
		return kind, arg, nil
	default:
		return "", "", fmt.Errorf("unknown source kind %q", kind)
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
