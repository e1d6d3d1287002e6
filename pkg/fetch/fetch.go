// Package fetch downloads uploaded files referenced by link.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for file downloads.
var (
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translator_fetch_requests_total",
		Help: "File downloads by status",
	}, []string{"status"})

	fetchBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "translator_fetch_bytes",
		Help:    "Size of downloaded files in bytes",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	})
)

// ErrTooLarge is returned when a file exceeds the configured size limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// FileRef references an uploaded file.
type FileRef struct {
	Name         string `json:"name"`
	DownloadLink string `json:"download_link"`
	MimeType     string `json:"mime_type"`
}

// Validate checks that the reference can be fetched.
func (r FileRef) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if r.DownloadLink == "" {
		return fmt.Errorf("download_link is required")
	}
	u, err := url.Parse(r.DownloadLink)
	if err != nil {
		return fmt.Errorf("download_link: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("download_link: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("download_link: missing host")
	}
	return nil
}

// IOError is a failed download.
type IOError struct {
	Name       string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *IOError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %q (status %d): %v", e.Name, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("download %q: %v", e.Name, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *IOError) Unwrap() error {
	return e.Err
}

// Config holds fetcher configuration.
type Config struct {
	// Timeout bounds one download.
	Timeout time.Duration

	// MaxBytes caps the size of a downloaded file. 0 disables the cap.
	MaxBytes int64

	// UserAgent header sent with downloads.
	UserAgent string
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:   30 * time.Second,
		MaxBytes:  10 << 20,
		UserAgent: "table-translator",
	}
}

// Fetcher downloads files over HTTP.
type Fetcher struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     log.With().Str("component", "fetch").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (f *Fetcher) SetHTTPClient(client *http.Client) {
	f.httpClient = client
}

// Fetch downloads the referenced file. All failures are returned as *IOError.
func (f *Fetcher) Fetch(ctx context.Context, ref FileRef) ([]byte, error) {
	if err := ref.Validate(); err != nil {
		fetchRequestsTotal.WithLabelValues("invalid").Inc()
		return nil, &IOError{Name: ref.Name, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.DownloadLink, nil)
	if err != nil {
		return nil, &IOError{Name: ref.Name, Err: err}
	}
	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		fetchRequestsTotal.WithLabelValues("network_error").Inc()
		return nil, &IOError{Name: ref.Name, Err: err}
	}
	defer resp.Body.Close()

	fetchRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode != http.StatusOK {
		return nil, &IOError{Name: ref.Name, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	if f.config.MaxBytes > 0 && resp.ContentLength > f.config.MaxBytes {
		return nil, &IOError{Name: ref.Name, StatusCode: resp.StatusCode, Err: ErrTooLarge}
	}

	var body io.Reader = resp.Body
	if f.config.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.config.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &IOError{Name: ref.Name, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if f.config.MaxBytes > 0 && int64(len(data)) > f.config.MaxBytes {
		return nil, &IOError{Name: ref.Name, StatusCode: resp.StatusCode, Err: ErrTooLarge}
	}

	fetchBytes.Observe(float64(len(data)))
	f.logger.Debug().
		Str("name", ref.Name).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("File downloaded")

	return data, nil
}
