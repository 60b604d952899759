package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"imgmigrate/internal/models"
)

const defaultRecordLimit = 100

// RecordFilter narrows ListMigrationRecords.
type RecordFilter struct {
	PostID       int64
	DiscussionID int64
	Limit        int
}

// AppendMigrationRecords inserts records in one transaction and fills in their ids.
func (s *Store) AppendMigrationRecords(ctx context.Context, records []models.MigrationRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.insertRecords(ctx, tx, records)
	})
}

// SavePostMigration stores the rewritten content of a post and its log
// entries in one transaction. Either both land or neither does.
func (s *Store) SavePostMigration(ctx context.Context, postID int64, content string, records []models.MigrationRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.updatePostContent(ctx, tx, postID, content); err != nil {
			return err
		}
		return s.insertRecords(ctx, tx, records)
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

func (s *Store) insertRecords(ctx context.Context, tx *sql.Tx, records []models.MigrationRecord) error {
	if len(records) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+s.d.log()+" (discussion_id, post_id, original_url, new_url, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range records {
		createdAt := records[i].CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		res, err := stmt.ExecContext(ctx,
			records[i].DiscussionID,
			records[i].PostID,
			records[i].OriginalURL,
			records[i].NewURL,
			formatTime(createdAt),
		)
		if err != nil {
			return fmt.Errorf("append migration record for post #%d: %w", records[i].PostID, err)
		}
		if id, idErr := res.LastInsertId(); idErr == nil {
			records[i].ID = id
		}
		records[i].CreatedAt = createdAt.UTC()
	}
	return nil
}

// ListMigrationRecords returns log entries, newest first.
func (s *Store) ListMigrationRecords(ctx context.Context, filter RecordFilter) ([]models.MigrationRecord, error) {
	where := []string{}
	args := []any{}
	if filter.PostID > 0 {
		where = append(where, "post_id = ?")
		args = append(args, filter.PostID)
	}
	if filter.DiscussionID > 0 {
		where = append(where, "discussion_id = ?")
		args = append(args, filter.DiscussionID)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultRecordLimit
	}

	query := "SELECT id, discussion_id, post_id, original_url, new_url, created_at FROM " + s.d.log()
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MigrationRecord
	for rows.Next() {
		var rec models.MigrationRecord
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.DiscussionID, &rec.PostID, &rec.OriginalURL, &rec.NewURL, &createdAt); err != nil {
			return nil, err
		}
		parsed, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at of record %d: %w", rec.ID, err)
		}
		rec.CreatedAt = parsed
		out = append(out, rec)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
