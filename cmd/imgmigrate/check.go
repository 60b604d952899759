package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"imgmigrate/internal/apperr"
	"imgmigrate/internal/config"
	"imgmigrate/internal/models"
	"imgmigrate/internal/scan"
)

type findingScanner interface {
	Scan(ctx context.Context, scope scan.Scope) ([]models.Finding, error)
}

type postLoader interface {
	GetPost(ctx context.Context, id int64) (models.Post, error)
}

type postMigrator interface {
	MigratePost(ctx context.Context, post models.Post, findings []models.Finding) ([]models.MigrationRecord, error)
}

type backendProbe interface {
	EnsureConfigured(ctx context.Context) error
	HealthCheck(ctx context.Context, baseURLOverride string) error
}

type reportSender interface {
	Send(ctx context.Context, forumURL string, findings []models.Finding, recipients []string) error
}

type findingCounter interface {
	FindingsObserved(n int)
}

type checkDeps struct {
	scanner  findingScanner
	posts    postLoader
	migrator postMigrator
	backend  backendProbe
	reports  reportSender
	metrics  findingCounter
	forumURL string
}

type checkRequest struct {
	scope  scan.Scope
	fix    bool
	mailto []string
}

type checkResult struct {
	Scope      string                   `json:"scope" yaml:"scope"`
	Findings   []models.Finding         `json:"findings" yaml:"findings"`
	Migrated   []models.MigrationRecord `json:"migrated,omitempty" yaml:"migrated,omitempty"`
	ReportedTo []string                 `json:"reported_to,omitempty" yaml:"reported_to,omitempty"`
}

// scopeFlags are the mutually exclusive --post/--discussion/--all selectors.
// An id flag counts as selected once it is given, whatever its value.
type scopeFlags struct {
	post          int64
	discussion    int64
	all           bool
	postSet       bool
	discussionSet bool
}

func (f scopeFlags) postSelected() bool       { return f.postSet || f.post != 0 }
func (f scopeFlags) discussionSelected() bool { return f.discussionSet || f.discussion != 0 }

func (f scopeFlags) resolve() (scan.Scope, error) {
	selected := 0
	if f.postSelected() {
		selected++
	}
	if f.discussionSelected() {
		selected++
	}
	if f.all {
		selected++
	}
	switch {
	case selected == 0:
		return scan.Scope{}, errors.New("Please specify one of: --discussion=<id>, --post=<id>, or --all")
	case selected > 1:
		return scan.Scope{}, errors.New("Please specify a single scope: --discussion, --post, or --all.")
	case f.postSelected():
		if f.post <= 0 {
			return scan.Scope{}, fmt.Errorf("Invalid --post value %d: must be a positive id", f.post)
		}
		return scan.PostScope(f.post), nil
	case f.discussionSelected():
		if f.discussion <= 0 {
			return scan.Scope{}, fmt.Errorf("Invalid --discussion value %d: must be a positive id", f.discussion)
		}
		return scan.DiscussionScope(f.discussion), nil
	default:
		return scan.AllScope(), nil
	}
}

func newCheckCmd(cfg *config.Config, out *outputMode) *cobra.Command {
	var (
		scope       scopeFlags
		fix         bool
		mailto      string
		scaleFactor float64
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check posts for external images and optionally migrate them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scope.postSet = cmd.Flags().Changed("post")
			scope.discussionSet = cmd.Flags().Changed("discussion")
			resolved, err := scope.resolve()
			if err != nil {
				return err
			}
			runCfg := *cfg
			if cmd.Flags().Changed("scale-factor") {
				runCfg.Migrate.ScaleFactor = scaleFactor
			}

			return withApp(&runCfg, func(a *app) error {
				defer a.pushMetrics(cmd.Context())
				return runCheck(cmd.Context(), a.checkDeps(), checkRequest{
					scope:  resolved,
					fix:    fix,
					mailto: splitCommaList(mailto),
				}, cmd.OutOrStdout(), out)
			})
		},
	}

	cmd.Flags().Int64Var(&scope.post, "post", 0, "check a single comment post")
	cmd.Flags().Int64Var(&scope.discussion, "discussion", 0, "check the posts of one discussion")
	cmd.Flags().BoolVar(&scope.all, "all", false, "check every comment post")
	cmd.Flags().BoolVar(&fix, "fix", false, "migrate found images to the asset backend; images it already stores keep their existing URL")
	cmd.Flags().StringVar(&mailto, "mailto", "", "comma-separated report recipients")
	cmd.Flags().Float64Var(&scaleFactor, "scale-factor", config.DefaultScaleFactor, "upload scale factor (> 0)")

	return cmd
}

// runCheck scans a scope, then either migrates the findings or prints and
// optionally mails them.
func runCheck(ctx context.Context, deps checkDeps, req checkRequest, w io.Writer, out *outputMode) error {
	plain := out.plainWriter(w)

	findings, err := deps.scanner.Scan(ctx, req.scope)
	if err != nil {
		return err
	}
	if deps.metrics != nil {
		deps.metrics.FindingsObserved(len(findings))
	}

	result := checkResult{Scope: req.scope.String(), Findings: findings}
	if req.fix {
		result.Migrated, err = runFix(ctx, deps, findings, plain)
		if err != nil {
			return err
		}
	} else {
		if err := writeFindings(plain, findings); err != nil {
			return err
		}
		if len(findings) > 0 && len(req.mailto) > 0 {
			if err := deps.reports.Send(ctx, deps.forumURL, findings, req.mailto); err != nil {
				return err
			}
			result.ReportedTo = req.mailto
			if err := writePlain(plain, "Report sent to %s\n", strings.Join(req.mailto, ",")); err != nil {
				return err
			}
		}
	}

	if out.structured() {
		return out.write(w, result)
	}
	return nil
}

func runFix(ctx context.Context, deps checkDeps, findings []models.Finding, w io.Writer) ([]models.MigrationRecord, error) {
	if len(findings) == 0 {
		return nil, writePlain(w, "No external images found. Nothing to migrate.\n")
	}

	if err := deps.backend.EnsureConfigured(ctx); err != nil {
		return nil, fmt.Errorf("Health check failed: %w", err)
	}
	if err := deps.backend.HealthCheck(ctx, ""); err != nil {
		return nil, fmt.Errorf("Health check failed: %w", err)
	}

	order, byPost := models.GroupFindingsByPost(findings)
	if err := writePlain(w, "Migrating %d image(s) across %d post(s)...\n", len(findings), len(order)); err != nil {
		return nil, err
	}

	var migrated []models.MigrationRecord
	for _, postID := range order {
		post, err := deps.posts.GetPost(ctx, postID)
		if apperr.IsKind(err, apperr.KindNotFound) {
			return migrated, apperr.New(apperr.KindNotFound, "Post #%d no longer exists", postID)
		}
		if err != nil {
			return migrated, err
		}

		images := byPost[postID]
		if err := writePlain(w, "  • Post #%d (%d image%s)\n", postID, len(images), plural(len(images))); err != nil {
			return migrated, err
		}
		records, err := deps.migrator.MigratePost(ctx, post, images)
		migrated = append(migrated, records...)
		if err != nil {
			return migrated, fmt.Errorf("Migration failed: %w", err)
		}
	}

	return migrated, writePlain(w, "Migration completed successfully.\n")
}

func writeFindings(w io.Writer, findings []models.Finding) error {
	if len(findings) == 0 {
		return writePlain(w, "No external images found\n")
	}

	discussions, byDiscussion := models.GroupFindingsByDiscussion(findings)
	if err := writePlain(w, "Found %d external image(s) in %d discussion(s)\n\n", len(findings), len(discussions)); err != nil {
		return err
	}
	for _, discussionID := range discussions {
		if err := writePlain(w, "Discussion #%d:\n", discussionID); err != nil {
			return err
		}
		posts, byPost := models.GroupFindingsByPost(byDiscussion[discussionID])
		for _, postID := range posts {
			items := byPost[postID]
			if err := writePlain(w, "  Post #%d: %d image(s)\n", postID, len(items)); err != nil {
				return err
			}
			for _, item := range items {
				if err := writePlain(w, "    - %s\n", item.ImageURL); err != nil {
					return err
				}
			}
		}
		if err := writePlain(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
