package inference

import (
	"net/http"
	"time"
)

// Request constants of the predict endpoint.
const (
	PredictPath   = "/predict"
	FieldName     = "file"
	FrameFilename = "frame.jpg"
	FrameMIMEType = "image/jpeg"
)

// Config holds client configuration.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client // overrides Timeout when set
	UserAgent  string
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithBaseURL sets the server base URL, e.g. "https://traffic-1-j4pi.onrender.com".
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithTimeout sets the overall request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Config) { c.HTTPClient = h }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Config) { c.UserAgent = ua }
}

// DefaultConfig returns the defaults.
func DefaultConfig() *Config {
	return &Config{
		Timeout:   30 * time.Second,
		UserAgent: "cam-app/1",
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
