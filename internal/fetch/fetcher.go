// Package fetch downloads remote images into temporary files.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"imgmigrate/internal/apperr"
	"imgmigrate/internal/models"
)

const (
	DefaultMaxBytes       int64 = 20 << 20
	DefaultTimeout              = 60 * time.Second
	DefaultConnectTimeout       = 10 * time.Second
	DefaultUserAgent            = "imgmigrate/1.0"

	chunkSize    = 8 << 10
	maxRedirects = 10
	tempPattern  = "img-migrate-*"
)

var contentTypeExtensions = map[string]string{
	"image/webp": "webp",
	"image/avif": "avif",
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/gif":  "gif",
}

// ResponseTooLargeError reports a body that exceeded the configured ceiling.
type ResponseTooLargeError struct {
	Limit int64
}

func (e *ResponseTooLargeError) Error() string {
	return fmt.Sprintf("response exceeds %d bytes", e.Limit)
}

// Config controls fetch limits. Zero values take the package defaults.
type Config struct {
	MaxBytes       int64
	Timeout        time.Duration
	ConnectTimeout time.Duration
	TempDir        string
	UserAgent      string
}

// Fetcher downloads images over HTTP.
type Fetcher struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// New creates a fetcher with its own transport.
func New(cfg Config) *Fetcher {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout

	return &Fetcher{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		logger: slog.Default().With("component", "fetch"),
	}
}

// Fetch streams rawURL into a temp file. The caller owns the returned path
// and must remove it. No file is left behind when an error is returned.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (models.DownloadedAsset, error) {
	var zero models.DownloadedAsset

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return zero, apperr.Wrap(apperr.KindFetch, err, "build request for %s", rawURL)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.http.Do(req)
	if err != nil {
		return zero, apperr.Wrap(apperr.KindFetch, err, "download %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return zero, apperr.New(apperr.KindFetch, "download %s: unexpected status %s", rawURL, resp.Status)
	}
	if resp.ContentLength > f.cfg.MaxBytes {
		return zero, apperr.Wrap(apperr.KindFetch, &ResponseTooLargeError{Limit: f.cfg.MaxBytes}, "download %s", rawURL)
	}

	tmp, err := os.CreateTemp(f.cfg.TempDir, tempPattern)
	if err != nil {
		return zero, apperr.Wrap(apperr.KindFetch, err, "create temp file")
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	limited := &io.LimitedReader{R: resp.Body, N: f.cfg.MaxBytes + 1}
	n, err := io.CopyBuffer(tmp, limited, make([]byte, chunkSize))
	if err != nil {
		cleanup()
		return zero, apperr.Wrap(apperr.KindFetch, err, "download %s", rawURL)
	}
	if n > f.cfg.MaxBytes {
		cleanup()
		return zero, apperr.Wrap(apperr.KindFetch, &ResponseTooLargeError{Limit: f.cfg.MaxBytes}, "download %s", rawURL)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return zero, apperr.Wrap(apperr.KindFetch, err, "write temp file")
	}

	declared := declaredMediaType(resp.Header.Get("Content-Type"))
	sniffed := ""
	ext := extensionFromURL(rawURL)
	if ext == "" {
		ext = contentTypeExtensions[declared]
	}
	if ext == "" || declared == "" {
		mt, err := mimetype.DetectFile(tmpPath)
		if err != nil {
			cleanup()
			return zero, apperr.Wrap(apperr.KindFetch, err, "inspect %s", rawURL)
		}
		sniffed = mt.String()
		if ext == "" {
			ext = strings.TrimPrefix(mt.Extension(), ".")
			if mapped, ok := contentTypeExtensions[declaredMediaType(sniffed)]; ok {
				ext = mapped
			}
		}
	}

	mimeType := declared
	if mimeType == "" {
		mimeType = declaredMediaType(sniffed)
	}

	f.logger.Debug("downloaded image", "url", rawURL, "bytes", n, "mime", mimeType, "ext", ext)
	return models.DownloadedAsset{Path: tmpPath, MIMEType: mimeType, Extension: ext, Size: n}, nil
}

func declaredMediaType(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return strings.ToLower(mediaType)
}

func extensionFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	if ext == "jpeg" {
		return "jpg"
	}
	return ext
}

// IsTooLarge reports whether err was caused by the size ceiling.
func IsTooLarge(err error) bool {
	var tooLarge *ResponseTooLargeError
	return errors.As(err, &tooLarge)
}
