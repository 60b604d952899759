// Package backend talks to the SnapGrab conversion and storage service.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"imgmigrate/internal/apperr"
	"imgmigrate/internal/models"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultConnectTimeout = 5 * time.Second

	apiKeyHeader       = "x-snapgrab-key"
	maxErrorBodyBytes  = 200
	truncatedSuffix    = "...[truncated]"
	maxErrorReadBytes  = 64 << 10
	maxResultReadBytes = 1 << 20
)

// UploadResult is the alias used by callers that only import backend.
type UploadResult = models.UploadResult

// SettingsReader supplies backend settings. It is consulted on every call.
type SettingsReader interface {
	Backend(ctx context.Context) (models.BackendConfig, error)
}

// Options tunes the HTTP client. Zero values take the package defaults.
type Options struct {
	Timeout        time.Duration
	ConnectTimeout time.Duration
}

// Client is an HTTP client for the SnapGrab API.
type Client struct {
	settings SettingsReader
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a backend client reading settings from reader.
func NewClient(reader SettingsReader, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext

	return &Client{
		settings: reader,
		http:     &http.Client{Timeout: opts.Timeout, Transport: transport},
		logger:   slog.Default().With("component", "backend"),
	}
}

// NormalizeBaseURL trims whitespace and trailing slashes. Empty means unset.
func NormalizeBaseURL(value string) string {
	return strings.TrimRight(strings.TrimSpace(value), "/")
}

func (c *Client) config(ctx context.Context) (models.BackendConfig, error) {
	if c.settings == nil {
		return models.BackendConfig{}, apperr.New(apperr.KindConfig, "backend settings are not available")
	}
	cfg, err := c.settings.Backend(ctx)
	if err != nil {
		return models.BackendConfig{}, apperr.Wrap(apperr.KindSettings, err, "read backend settings")
	}
	cfg.BaseURL = NormalizeBaseURL(cfg.BaseURL)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Environment = models.NormalizeEnvironment(string(cfg.Environment))
	return cfg, nil
}

// IsConfigured reports whether both base URL and API key are set.
func (c *Client) IsConfigured(ctx context.Context) bool {
	cfg, err := c.config(ctx)
	return err == nil && cfg.BaseURL != "" && cfg.APIKey != ""
}

// EnsureConfigured fails with a config error when the backend is not set up.
func (c *Client) EnsureConfigured(ctx context.Context) error {
	cfg, err := c.config(ctx)
	if err != nil {
		return err
	}
	if cfg.BaseURL == "" || cfg.APIKey == "" {
		return errNotConfigured()
	}
	return nil
}

func errNotConfigured() error {
	return apperr.New(apperr.KindConfig, "backend is not configured: set base URL and API key first")
}

// HealthCheck probes <base>/health. A non-empty override replaces the
// configured base URL, which lets callers validate a value before saving it.
func (c *Client) HealthCheck(ctx context.Context, baseURLOverride string) error {
	baseURL := NormalizeBaseURL(baseURLOverride)
	if baseURL == "" {
		cfg, err := c.config(ctx)
		if err != nil {
			return err
		}
		baseURL = cfg.BaseURL
	}
	if baseURL == "" {
		return apperr.New(apperr.KindHealthCheck, "backend base URL is not configured")
	}

	endpoint := baseURL + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindHealthCheck, err, "build health request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("health check failed", "url", endpoint, "error", err)
		return apperr.Wrap(apperr.KindHealthCheck, err, "unable to reach backend")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperr.New(apperr.KindHealthCheck, "backend responded with HTTP %d", resp.StatusCode)
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResultReadBytes)).Decode(&payload); err != nil || payload.Status != "ok" {
		return apperr.New(apperr.KindHealthCheck, "backend reported non-ok status")
	}
	return nil
}

// Upload streams filePath to <base>/upload and returns the stored asset.
func (c *Client) Upload(ctx context.Context, filePath, sourceURL, format string, options models.UploadOptions) (UploadResult, error) {
	var zero UploadResult
	cfg, err := c.config(ctx)
	if err != nil {
		return zero, err
	}
	if cfg.BaseURL == "" || cfg.APIKey == "" {
		return zero, errNotConfigured()
	}

	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return zero, apperr.Wrap(apperr.KindUpload, err, "encode upload options")
	}
	file, err := os.Open(filePath)
	if err != nil {
		return zero, apperr.Wrap(apperr.KindUpload, err, "open downloaded file")
	}
	defer file.Close()

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, file, map[string]string{
			"sourceUrl": sourceURL,
			"targetEnv": string(cfg.Environment),
			"format":    format,
			"options":   string(optionsJSON),
		}))
	}()

	endpoint := cfg.BaseURL + "/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return zero, apperr.Wrap(apperr.KindUpload, err, "build upload request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(apiKeyHeader, cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("upload failed", "url", endpoint, "error", err)
		return zero, apperr.Wrap(apperr.KindUpload, err, "upload failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorReadBytes))
		if resp.StatusCode == http.StatusConflict {
			if dup := decodeDuplicate(body); dup != nil {
				c.logger.Info("backend already stores image", "source_url", sourceURL, "url", dup.OptimizedURL)
				return zero, apperr.Wrap(apperr.KindUpload, dup, "upload skipped")
			}
		}
		c.logger.Warn("upload rejected", "url", endpoint, "status", resp.StatusCode)
		return zero, apperr.New(apperr.KindUpload, "upload failed with HTTP %d - %s", resp.StatusCode, truncateBody(body))
	}

	return decodeResult(resp.Body)
}

func writeUploadForm(mw *multipart.Writer, file *os.File, fields map[string]string) error {
	part, err := mw.CreateFormFile("file", filepath.Base(file.Name()))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	for _, name := range []string{"sourceUrl", "targetEnv", "format", "options"} {
		if err := mw.WriteField(name, fields[name]); err != nil {
			return err
		}
	}
	return mw.Close()
}

func decodeResult(body io.Reader) (UploadResult, error) {
	var zero UploadResult
	raw := map[string]any{}
	if err := json.NewDecoder(io.LimitReader(body, maxResultReadBytes)).Decode(&raw); err != nil {
		return zero, apperr.Wrap(apperr.KindUpload, err, "upload response is invalid")
	}
	url, _ := raw["url"].(string)
	if strings.TrimSpace(url) == "" {
		return zero, apperr.New(apperr.KindUpload, "upload response is invalid: missing url")
	}
	key, _ := raw["key"].(string)
	originalURL, _ := raw["originalUrl"].(string)
	return UploadResult{URL: url, Key: key, OriginalURL: originalURL, Raw: raw}, nil
}

func decodeDuplicate(body []byte) *DuplicateUploadError {
	var payload struct {
		URL          string `json:"url"`
		OptimizedURL string `json:"optimizedUrl"`
		Key          string `json:"key"`
		OriginalURL  string `json:"originalUrl"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}
	url := payload.URL
	if url == "" {
		url = payload.OptimizedURL
	}
	if strings.TrimSpace(url) == "" {
		return nil
	}
	return &DuplicateUploadError{OptimizedURL: url, Key: payload.Key, OriginalURL: payload.OriginalURL}
}

func truncateBody(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		return string(body[:maxErrorBodyBytes]) + truncatedSuffix
	}
	return string(body)
}

// AsDuplicate extracts a DuplicateUploadError from err.
func AsDuplicate(err error) (*DuplicateUploadError, bool) {
	var dup *DuplicateUploadError
	if errors.As(err, &dup) {
		return dup, true
	}
	return nil, false
}
