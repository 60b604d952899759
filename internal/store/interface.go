package store

import (
	"context"

	"imgmigrate/internal/models"
)

// PostStore abstracts the forum content the migration pipeline works on.
type PostStore interface {
	GetPost(ctx context.Context, id int64) (models.Post, error)
	ListDiscussionPosts(ctx context.Context, discussionID int64) ([]models.Post, error)
	ListPosts(ctx context.Context) ([]models.Post, error)
	UpdatePostContent(ctx context.Context, postID int64, content string) error
}

// LogStore is the append-only migration log.
type LogStore interface {
	AppendMigrationRecords(ctx context.Context, records []models.MigrationRecord) error
	ListMigrationRecords(ctx context.Context, filter RecordFilter) ([]models.MigrationRecord, error)
	SavePostMigration(ctx context.Context, postID int64, content string, records []models.MigrationRecord) error
}

// SettingStore reads prefixed forum settings.
type SettingStore interface {
	Setting(ctx context.Context, key string) (string, bool, error)
}

var (
	_ PostStore    = (*Store)(nil)
	_ LogStore     = (*Store)(nil)
	_ SettingStore = (*Store)(nil)
)
