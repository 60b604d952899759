// Package scan finds images on disallowed origins in forum posts.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"imgmigrate/internal/apperr"
	"imgmigrate/internal/extract"
	"imgmigrate/internal/models"
	"imgmigrate/internal/origin"
)

const DefaultConcurrency = 4

// PostSource reads post snapshots. GetPost returns a not_found error for
// unknown ids; the list methods return comment posts only, in id order.
type PostSource interface {
	GetPost(ctx context.Context, id int64) (models.Post, error)
	ListDiscussionPosts(ctx context.Context, discussionID int64) ([]models.Post, error)
	ListPosts(ctx context.Context) ([]models.Post, error)
}

// AllowlistReader supplies the configured allowed origins.
type AllowlistReader interface {
	AllowedOrigins(ctx context.Context) ([]string, error)
}

type scopeKind int

const (
	scopeAll scopeKind = iota
	scopePost
	scopeDiscussion
)

// Scope selects which posts a scan covers.
type Scope struct {
	kind scopeKind
	id   int64
}

func PostScope(postID int64) Scope             { return Scope{kind: scopePost, id: postID} }
func DiscussionScope(discussionID int64) Scope { return Scope{kind: scopeDiscussion, id: discussionID} }
func AllScope() Scope                          { return Scope{kind: scopeAll} }

func (s Scope) String() string {
	switch s.kind {
	case scopePost:
		return fmt.Sprintf("post #%d", s.id)
	case scopeDiscussion:
		return fmt.Sprintf("discussion #%d", s.id)
	default:
		return "all posts"
	}
}

// UnknownPostError reports a post scope that names no comment post.
type UnknownPostError struct {
	PostID int64
}

func (e *UnknownPostError) Error() string {
	return fmt.Sprintf("post #%d not found", e.PostID)
}

// IsUnknownPost reports whether err comes from a post scope with a bad id.
func IsUnknownPost(err error) bool {
	var unknown *UnknownPostError
	return errors.As(err, &unknown)
}

func unknownPost(id int64) error {
	return &apperr.Error{Kind: apperr.KindNotFound, Err: &UnknownPostError{PostID: id}}
}

// Service scans posts for external images.
type Service struct {
	posts       PostSource
	allowlist   AllowlistReader
	concurrency int
	logger      *slog.Logger
}

// NewService creates a scanner. concurrency <= 0 uses DefaultConcurrency.
func NewService(posts PostSource, allowlist AllowlistReader, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Service{
		posts:       posts,
		allowlist:   allowlist,
		concurrency: concurrency,
		logger:      slog.Default().With("component", "scan"),
	}
}

// Scan returns one finding per external image, in post order then document order.
func (s *Service) Scan(ctx context.Context, scope Scope) ([]models.Finding, error) {
	allowed, err := s.allowlist.AllowedOrigins(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSettings, err, "read allowed origins")
	}

	posts, err := s.load(ctx, scope)
	if err != nil {
		return nil, err
	}

	perPost := make([][]models.Finding, len(posts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, post := range posts {
		i, post := i, post
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perPost[i] = findExternal(post, allowed)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	findings := make([]models.Finding, 0)
	for _, batch := range perPost {
		findings = append(findings, batch...)
	}
	s.logger.Debug("scan complete", "scope", scope.String(), "posts", len(posts), "findings", len(findings))
	return findings, nil
}

func (s *Service) load(ctx context.Context, scope Scope) ([]models.Post, error) {
	switch scope.kind {
	case scopePost:
		post, err := s.posts.GetPost(ctx, scope.id)
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, unknownPost(scope.id)
		}
		if err != nil {
			return nil, err
		}
		if !post.Type.IsComment() {
			return nil, unknownPost(scope.id)
		}
		return []models.Post{post}, nil
	case scopeDiscussion:
		return s.posts.ListDiscussionPosts(ctx, scope.id)
	default:
		return s.posts.ListPosts(ctx)
	}
}

func findExternal(post models.Post, allowed []string) []models.Finding {
	if !post.Type.IsComment() {
		return nil
	}
	var out []models.Finding
	for _, src := range extract.Images(post.RenderedContent) {
		if !origin.IsExternal(src, allowed) {
			continue
		}
		out = append(out, models.Finding{
			DiscussionID: post.DiscussionID,
			PostID:       post.ID,
			PostNumber:   post.Number,
			ImageURL:     src,
		})
	}
	return out
}
