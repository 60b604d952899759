package main

import (
	"context"
	"errors"
	"net"

	"imgmigrate/internal/apperr"
	"imgmigrate/internal/backend"
	"imgmigrate/internal/fetch"
	"imgmigrate/internal/scan"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	switch apperr.KindOf(err) {
	case apperr.KindConfig:
		lines = append(lines,
			"hint: set backend.base_url and backend.api_key with: imgmigrate config set",
			"hint: or export IMGMIGRATE_BACKEND_URL and IMGMIGRATE_BACKEND_API_KEY.",
		)
	case apperr.KindHealthCheck:
		lines = append(lines, "hint: verify the backend base URL responds to GET /health with {\"status\":\"ok\"}.")
	case apperr.KindFetch:
		if fetch.IsTooLarge(err) {
			lines = append(lines, "hint: raise fetch.max_bytes to allow larger images.")
		} else {
			lines = append(lines, "hint: the image host did not serve the file; check the URL or add the host to allowed_origins.")
		}
	case apperr.KindUpload:
		if _, ok := backend.AsDuplicate(err); !ok {
			lines = append(lines, "hint: the backend rejected the upload; check backend.api_key and backend.env.")
		}
	case apperr.KindNotFound:
		if scan.IsUnknownPost(err) {
			lines = append(lines, "hint: no comment post has that id; check the --post value.")
		} else {
			lines = append(lines, "hint: the post changed while the run was in progress; re-run check to rescan.")
		}
	case apperr.KindMail:
		lines = append(lines, "hint: set mail.host and mail.from with: imgmigrate config set")
	case apperr.KindSettings:
		lines = append(lines, "hint: settings could not be read; check db.driver and db.dsn.")
	case apperr.KindMigration:
		lines = append(lines, "hint: posts migrated before the failure keep their new URLs; see: imgmigrate log")
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; increase backend.timeout or fetch.timeout.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines, "hint: check network access to the backend and image hosts.")
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
