// Package migrate moves external images of a post to the asset backend and
// rewrites the post to point at the new copies.
package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"imgmigrate/internal/apperr"
	"imgmigrate/internal/backend"
	"imgmigrate/internal/models"
	"imgmigrate/internal/rewrite"
)

// Fetcher downloads a remote image to a local temp file.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (models.DownloadedAsset, error)
}

// Uploader hands a local file to the asset backend.
type Uploader interface {
	Upload(ctx context.Context, filePath, sourceURL, format string, options models.UploadOptions) (models.UploadResult, error)
}

// MigrationWriter persists rewritten post content together with its log
// entries. Implementations must commit both or neither.
type MigrationWriter interface {
	SavePostMigration(ctx context.Context, postID int64, content string, records []models.MigrationRecord) error
}

// Option customizes a Migrator.
type Option func(*Migrator)

// WithObserver installs an observer for stage outcomes.
func WithObserver(o Observer) Option {
	return func(m *Migrator) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Migrator) {
		if now != nil {
			m.now = now
		}
	}
}

// Migrator runs the per-post migration pipeline.
type Migrator struct {
	fetcher  Fetcher
	uploader Uploader
	writer   MigrationWriter
	policy   UploadPolicy
	forumURL string
	observer Observer
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a migrator.
func New(fetcher Fetcher, uploader Uploader, writer MigrationWriter, policy UploadPolicy, forumURL string, opts ...Option) *Migrator {
	m := &Migrator{
		fetcher:  fetcher,
		uploader: uploader,
		writer:   writer,
		policy:   policy,
		forumURL: forumURL,
		observer: noopObserver{},
		now:      time.Now,
		logger:   slog.Default().With("component", "migrate"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MigratePost migrates every finding of post in order. The first failing
// image aborts the post and nothing is written for it. On success the
// content and one record per changed image are saved in a single write.
func (m *Migrator) MigratePost(ctx context.Context, post models.Post, findings []models.Finding) ([]models.MigrationRecord, error) {
	if !post.Type.IsComment() {
		return nil, apperr.New(apperr.KindMigration, "only comment posts can be migrated (post #%d is %q)", post.ID, post.Type)
	}

	options := m.policy.Options()
	content := post.RawContent
	records := make([]models.MigrationRecord, 0, len(findings))

	for _, finding := range findings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		updated, newURL, err := m.migrateImage(ctx, post, finding, content, options)
		if err != nil {
			return nil, err
		}
		if updated == content {
			continue
		}
		content = updated
		records = append(records, models.MigrationRecord{
			DiscussionID: post.DiscussionID,
			PostID:       post.ID,
			OriginalURL:  finding.ImageURL,
			NewURL:       newURL,
		})
	}

	if content == post.RawContent {
		return nil, nil
	}
	now := m.now().UTC()
	for i := range records {
		records[i].CreatedAt = now
	}
	if err := m.writer.SavePostMigration(ctx, post.ID, content, records); err != nil {
		m.observer.StageFailed(StageSave)
		return nil, fmt.Errorf("save post #%d: %w", post.ID, err)
	}

	for range records {
		m.observer.ImageMigrated()
	}
	m.logger.Info("post migrated", "post_id", post.ID, "discussion_id", post.DiscussionID, "images", len(records))
	return records, nil
}

func (m *Migrator) migrateImage(ctx context.Context, post models.Post, finding models.Finding, content string, options models.UploadOptions) (string, string, error) {
	asset, err := m.fetcher.Fetch(ctx, finding.ImageURL)
	if err != nil {
		m.observer.StageFailed(StageFetch)
		return "", "", err
	}
	defer func() {
		if err := os.Remove(asset.Path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("remove temp file", "path", asset.Path, "error", err)
		}
	}()
	m.observer.ImageDownloaded(asset.Size)

	format := TargetFormat(asset.Extension)
	sourceURL := SourceURL(m.forumURL, post.DiscussionID, finding.PostNumber)

	newURL, err := m.upload(ctx, asset.Path, sourceURL, format, options)
	if err != nil {
		m.observer.StageFailed(StageUpload)
		return "", "", err
	}

	updated, err := rewrite.Replace(content, finding.ImageURL, newURL)
	if err != nil {
		m.observer.StageFailed(StageRewrite)
		return "", "", apperr.Wrap(apperr.KindNotFound, err, "post #%d", post.ID)
	}

	m.logger.Debug("image uploaded", "post_id", post.ID, "original_url", finding.ImageURL, "new_url", newURL, "format", format)
	return updated, newURL, nil
}

func (m *Migrator) upload(ctx context.Context, path, sourceURL, format string, options models.UploadOptions) (string, error) {
	result, err := m.uploader.Upload(ctx, path, sourceURL, format, options)
	if err == nil {
		return result.URL, nil
	}
	if dup, ok := backend.AsDuplicate(err); ok {
		m.observer.DuplicateReused()
		reused := dup.Result()
		m.logger.Info("backend already stores this image, reusing its existing URL", "source_url", sourceURL, "url", reused.URL)
		return reused.URL, nil
	}
	return "", err
}
