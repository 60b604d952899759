package models

import "time"

// MigrationRecord is the persisted fact that one image reference was replaced.
type MigrationRecord struct {
	ID           int64     `json:"id,omitempty" yaml:"id,omitempty"`
	DiscussionID int64     `json:"discussion_id" yaml:"discussion_id"`
	PostID       int64     `json:"post_id" yaml:"post_id"`
	OriginalURL  string    `json:"original_url" yaml:"original_url"`
	NewURL       string    `json:"new_url" yaml:"new_url"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

// DownloadedAsset is a remote image spooled to a local temp file.
// The caller owns Path and must remove it.
type DownloadedAsset struct {
	Path      string
	MIMEType  string
	Extension string
	Size      int64
}

// UploadOptions are the encode parameters sent to the backend.
type UploadOptions struct {
	Lossless    bool           `json:"lossless"`
	ScaleFactor float64        `json:"scaleFactor"`
	Quality     map[string]int `json:"quality"`
	Effort      map[string]int `json:"effort"`
}

// UploadResult is the decoded backend response for a stored asset.
type UploadResult struct {
	URL         string         `json:"url"`
	Key         string         `json:"key,omitempty"`
	OriginalURL string         `json:"originalUrl,omitempty"`
	Raw         map[string]any `json:"-"`
}

// BackendConfig is the connection setup for the asset backend.
type BackendConfig struct {
	BaseURL     string
	APIKey      string
	Environment Environment
}
