// Package inference uploads captured stills to the remote predict endpoint.
package inference

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/meryemcrkn/cam-app/internal/camera"
	"github.com/meryemcrkn/cam-app/internal/logger"
	"github.com/meryemcrkn/cam-app/pkg/types"
)

// maxErrorBody bounds how much of a failed response is kept for logging.
const maxErrorBody = 512

// Client posts stills to {base}/predict.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	log       logger.Module
	open      func(uri string) (io.ReadCloser, error)
}

// NewClient creates a new inference client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(cfg.Timeout)
	}

	return &Client{
		baseURL:   baseURL,
		userAgent: cfg.UserAgent,
		http:      httpClient,
		log:       logger.For("Inference"),
		open:      camera.Open,
	}, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// Endpoint returns the full predict URL.
func (c *Client) Endpoint() string {
	return c.baseURL + PredictPath
}

// Predict uploads the picture and returns the server's JSON answer in
// compact form, keys in the order the server sent them.
func (c *Client) Predict(ctx context.Context, pic *types.Picture) (string, error) {
	if pic == nil || pic.URI == "" {
		return "", ErrNoPicture
	}

	body, contentType, err := c.buildForm(pic.URI)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post frame: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Debug("Server answered %d in %v: %s", resp.StatusCode, time.Since(start), snippet)
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	out, err := stringify(raw)
	if err != nil {
		return "", err
	}
	c.log.Debug("Server answered %d in %v (%d bytes)", resp.StatusCode, time.Since(start), len(raw))
	return out, nil
}

// buildForm encodes the picture as the single "file" part of a multipart form.
func (c *Client) buildForm(uri string) (*bytes.Buffer, string, error) {
	src, err := c.open(uri)
	if err != nil {
		return nil, "", err
	}
	defer src.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FieldName, FrameFilename))
	h.Set("Content-Type", FrameMIMEType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, "", fmt.Errorf("copy picture: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
