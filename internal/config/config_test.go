package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultMatchesShippedScreen(t *testing.T) {
	c := Default()
	if c.ServerURL != "https://traffic-1-j4pi.onrender.com" {
		t.Errorf("ServerURL = %q", c.ServerURL)
	}
	if c.Interval != time.Second {
		t.Errorf("Interval = %v", c.Interval)
	}
	if c.Quality != 0.3 || !c.SkipProcessing {
		t.Errorf("capture defaults = %v/%v", c.Quality, c.SkipProcessing)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CAMAPP_SERVER_URL":  "http://localhost:5000",
		"CAMAPP_INTERVAL":    "250ms",
		"CAMAPP_QUALITY":     "0.8",
		"CAMAPP_SOURCE":      "file:/tmp/x.jpg",
		"CAMAPP_STUN":        "stun:a:1, stun:b:2",
		"CAMAPP_MAX_WIDTH":   "640",
		"CAMAPP_SPOOL_KEEP":  "3",
		"CAMAPP_MAX_CLIENTS": "2",
		"CAMAPP_LOG_COLOR":   "false",
	}
	c := Default()
	err := c.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if c.ServerURL != "http://localhost:5000" || c.Interval != 250*time.Millisecond || c.Quality != 0.8 {
		t.Fatalf("unexpected config: %+v", c)
	}
	if c.Source != "file:/tmp/x.jpg" {
		t.Errorf("Source = %q", c.Source)
	}
	if len(c.STUNServers) != 2 || c.STUNServers[1] != "stun:b:2" {
		t.Errorf("STUNServers = %v", c.STUNServers)
	}
	if c.MaxWidth != 640 || c.SpoolKeep != 3 || c.MaxClients != 2 || c.LogColor {
		t.Errorf("MaxWidth=%d SpoolKeep=%d MaxClients=%d LogColor=%v", c.MaxWidth, c.SpoolKeep, c.MaxClients, c.LogColor)
	}
}

func TestApplyEnvReportsBadValues(t *testing.T) {
	c := Default()
	err := c.ApplyEnv(func(k string) (string, bool) {
		if k == "CAMAPP_INTERVAL" {
			return "soon", true
		}
		return "", false
	})
	if err == nil {
		t.Fatal("expected error for bad duration")
	}
	if c.Interval != time.Second {
		t.Errorf("Interval changed to %v on error", c.Interval)
	}
}

func TestApplyEnvReportsBadIntegers(t *testing.T) {
	env := map[string]string{
		"CAMAPP_MAX_WIDTH":  "wide",
		"CAMAPP_SPOOL_KEEP": "1.5",
		"CAMAPP_LOG_COLOR":  "maybe",
	}
	c := Default()
	err := c.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err == nil {
		t.Fatal("expected errors for bad values")
	}
	for key := range env {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not name %s", err, key)
		}
	}
	if c.MaxWidth != 1280 || c.SpoolKeep != 8 || !c.LogColor {
		t.Errorf("fields changed on error: %+v", c)
	}
}

func TestFlagsOverrideDefaults(t *testing.T) {
	c := Default()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)
	if err := fs.Parse([]string{"-server", "http://10.0.0.2:8000", "-interval", "2s", "-assume-permission"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.ServerURL != "http://10.0.0.2:8000" || c.Interval != 2*time.Second || !c.AssumePermission {
		t.Fatalf("flags not applied: %+v", c)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no server", func(c *Config) { c.ServerURL = "" }},
		{"bad scheme", func(c *Config) { c.ServerURL = "ftp://x" }},
		{"zero interval", func(c *Config) { c.Interval = 0 }},
		{"quality too high", func(c *Config) { c.Quality = 1.5 }},
		{"bad source", func(c *Config) { c.Source = "tape:1" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestParseSource(t *testing.T) {
	kind, arg, err := ParseSource("shm:/pet_camera_jpeg")
	if err != nil || kind != SourceSHM || arg != "/pet_camera_jpeg" {
		t.Fatalf("ParseSource = %q %q %v", kind, arg, err)
	}
	if _, _, err := ParseSource("webcam"); err == nil {
		t.Fatal("expected error without argument")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("CAMAPP_TEST_DOTENV=loaded\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("CAMAPP_TEST_DOTENV") })

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("CAMAPP_TEST_DOTENV"); got != "loaded" {
		t.Fatalf("env = %q", got)
	}
}
