package webmonitor

import (
	"time"
)

// Config defines the runtime configuration for the web monitor server.
type Config struct {
	Addr           string
	AssetsDir      string // optional directory served under /assets/
	StatusInterval time.Duration
	MJPEGInterval  time.Duration
	KeepAlive      time.Duration
	HistorySize    int
}

// DefaultConfig returns the monitor defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		StatusInterval: 2 * time.Second,
		MJPEGInterval:  500 * time.Millisecond,
		KeepAlive:      30 * time.Second,
		HistorySize:    8,
	}
}
