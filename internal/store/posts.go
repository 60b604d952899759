package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"imgmigrate/internal/apperr"
	"imgmigrate/internal/models"
)

func (s *Store) postColumns() string {
	return "id, discussion_id, number, type, " + s.d.renderedColumn() + ", content"
}

// GetPost returns a post of any type. Unknown ids yield a not_found error.
func (s *Store) GetPost(ctx context.Context, id int64) (models.Post, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+s.postColumns()+" FROM "+s.d.posts()+" WHERE id = ?", id)
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Post{}, apperr.New(apperr.KindNotFound, "post #%d not found", id)
	}
	if err != nil {
		return models.Post{}, fmt.Errorf("get post #%d: %w", id, err)
	}
	return post, nil
}

// ListDiscussionPosts returns the comment posts of a discussion in id order.
func (s *Store) ListDiscussionPosts(ctx context.Context, discussionID int64) ([]models.Post, error) {
	return s.queryPosts(ctx,
		"SELECT "+s.postColumns()+" FROM "+s.d.posts()+" WHERE discussion_id = ? AND type = ? ORDER BY id",
		discussionID, string(models.PostTypeComment))
}

// ListPosts returns every comment post in id order.
func (s *Store) ListPosts(ctx context.Context) ([]models.Post, error) {
	return s.queryPosts(ctx,
		"SELECT "+s.postColumns()+" FROM "+s.d.posts()+" WHERE type = ? ORDER BY id",
		string(models.PostTypeComment))
}

// UpdatePostContent replaces the stored content of a post.
func (s *Store) UpdatePostContent(ctx context.Context, postID int64, content string) error {
	return s.updatePostContent(ctx, s.db, postID, content)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) updatePostContent(ctx context.Context, db execer, postID int64, content string) error {
	query := "UPDATE " + s.d.posts() + " SET content = ? WHERE id = ?"
	if s.d.ownsHostTables {
		// The cached rendering is stale once content changes.
		query = "UPDATE " + s.d.posts() + " SET content = ?, rendered = NULL WHERE id = ?"
	}
	res, err := db.ExecContext(ctx, query, content, postID)
	if err != nil {
		return fmt.Errorf("update post #%d: %w", postID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.New(apperr.KindNotFound, "post #%d no longer exists", postID)
	}
	return nil
}

// InsertPost adds a post to a standalone database.
func (s *Store) InsertPost(ctx context.Context, post models.Post) error {
	if !s.d.ownsHostTables {
		return fmt.Errorf("posts are managed by the forum database")
	}
	if post.Type == "" {
		post.Type = models.PostTypeComment
	}
	var number any
	if post.Number != nil {
		number = *post.Number
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO "+s.d.posts()+" (id, discussion_id, number, type, content, rendered) VALUES (?, ?, ?, ?, ?, ?)",
		post.ID, post.DiscussionID, number, string(post.Type), post.RawContent, nullIfEmpty(post.RenderedContent))
	return err
}

func (s *Store) queryPosts(ctx context.Context, query string, args ...any) ([]models.Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func scanPost(scanner interface {
	Scan(dest ...any) error
}) (models.Post, error) {
	var post models.Post
	var number sql.NullInt64
	var postType string
	var rendered, content sql.NullString

	if err := scanner.Scan(&post.ID, &post.DiscussionID, &number, &postType, &rendered, &content); err != nil {
		return models.Post{}, err
	}
	if number.Valid {
		n := int(number.Int64)
		post.Number = &n
	}
	post.Type = models.PostType(postType)
	post.RenderedContent = rendered.String
	post.RawContent = content.String
	return post, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
