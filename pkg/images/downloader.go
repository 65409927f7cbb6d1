// Package images fetches cloud disk images to local storage.
package images

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	// ErrEmpty is returned when the source delivered zero bytes.
	ErrEmpty = errors.New("downloaded file is empty")
	// ErrChecksum is returned when the SHA-256 digest does not match.
	ErrChecksum = errors.New("checksum mismatch")
	// ErrShortRead is returned when fewer bytes arrive than announced.
	ErrShortRead = errors.New("download truncated")
)

// ProgressCallback is called with download progress updates.
// total is -1 when the source did not announce a size.
type ProgressCallback func(downloaded, total int64)

// Source opens a remote image for reading.
type Source interface {
	Open(ctx context.Context, u *url.URL) (body io.ReadCloser, size int64, err error)
}

// SourceFactory lazily builds a Source, so S3 credentials are only loaded
// when an s3:// URL is actually used.
type SourceFactory func(ctx context.Context) (Source, error)

// Downloader handles image downloads.
type Downloader struct {
	client  *http.Client
	timeout time.Duration

	mu        sync.Mutex
	factories map[string]SourceFactory
	sources   map[string]Source
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithTimeout bounds each download, including the transfer itself.
func WithTimeout(d time.Duration) Option {
	return func(dl *Downloader) {
		dl.timeout = d
	}
}

// WithHTTPClient replaces the HTTP client used for http(s) URLs.
func WithHTTPClient(c *http.Client) Option {
	return func(dl *Downloader) {
		dl.client = c
	}
}

// WithSource registers a source for a URL scheme.
func WithSource(scheme string, factory SourceFactory) Option {
	return func(dl *Downloader) {
		dl.factories[scheme] = factory
	}
}

// NewDownloader creates a new downloader.
func NewDownloader(opts ...Option) *Downloader {
	d := &Downloader{
		client: &http.Client{
			Timeout: 0, // Large images; the per-download timeout is applied via context
		},
		factories: make(map[string]SourceFactory),
		sources:   make(map[string]Source),
	}
	for _, opt := range opts {
		opt(d)
	}

	httpFactory := func(context.Context) (Source, error) {
		return &httpSource{client: d.client}, nil
	}
	for _, scheme := range []string{"http", "https"} {
		if _, ok := d.factories[scheme]; !ok {
			d.factories[scheme] = httpFactory
		}
	}
	return d
}

// DownloadOptions configures a download.
type DownloadOptions struct {
	URL        string
	DestPath   string
	SHA256     string // Expected checksum (optional)
	OnProgress ProgressCallback
}

// Download fetches opts.URL into opts.DestPath and returns the number of
// bytes written. The file only appears at DestPath once it is complete and
// verified.
func (d *Downloader) Download(ctx context.Context, opts DownloadOptions) (int64, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return 0, fmt.Errorf("invalid url: %w", err)
	}

	src, err := d.source(ctx, u.Scheme)
	if err != nil {
		return 0, err
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	// Create destination directory
	destDir := filepath.Dir(opts.DestPath)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create destination directory: %w", err)
	}

	// Create temporary file
	tmpPath := opts.DestPath + ".downloading"
	out, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	// Track if we successfully renamed the file
	renamed := false
	defer func() {
		out.Close()
		if !renamed {
			os.Remove(tmpPath)
		}
	}()

	body, total, err := src.Open(ctx, u)
	if err != nil {
		return 0, d.describe(ctx, err)
	}
	defer body.Close()

	reader := &progressReader{
		reader:     body,
		total:      total,
		onProgress: opts.OnProgress,
	}

	hash := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, hash), reader)
	if err != nil {
		return written, d.describe(ctx, err)
	}

	if written == 0 {
		return 0, ErrEmpty
	}
	if total > 0 && written != total {
		return written, fmt.Errorf("%w: got %d of %d bytes", ErrShortRead, written, total)
	}

	// Close file before rename
	if err := out.Close(); err != nil {
		return written, fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}

	if opts.SHA256 != "" {
		got := fmt.Sprintf("%x", hash.Sum(nil))
		if got != opts.SHA256 {
			return written, fmt.Errorf("%w: expected %s, got %s", ErrChecksum, opts.SHA256, got)
		}
	}

	// Move to final destination
	if err := os.Rename(tmpPath, opts.DestPath); err != nil {
		return written, fmt.Errorf("failed to move file: %w", err)
	}
	renamed = true

	return written, nil
}

func (d *Downloader) source(ctx context.Context, scheme string) (Source, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if src, ok := d.sources[scheme]; ok {
		return src, nil
	}
	factory, ok := d.factories[scheme]
	if !ok {
		return nil, fmt.Errorf("unsupported url scheme %q", scheme)
	}
	src, err := factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to set up %s source: %w", scheme, err)
	}
	d.sources[scheme] = src
	return src, nil
}

func (d *Downloader) describe(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("download timed out after %s: %w", d.timeout, err)
	}
	return fmt.Errorf("download failed: %w", err)
}

// httpSource serves http and https URLs.
type httpSource struct {
	client *http.Client
}

func (s *httpSource) Open(ctx context.Context, u *url.URL) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return resp.Body, resp.ContentLength, nil
}

// progressReader wraps a reader and reports progress.
type progressReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	onProgress ProgressCallback
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.downloaded += int64(n)
	if r.onProgress != nil {
		r.onProgress(r.downloaded, r.total)
	}
	return n, err
}
