package migrate

import (
	"fmt"
	"maps"
	"strings"

	"imgmigrate/internal/models"
)

const DefaultScaleFactor = 1.01

var (
	defaultQuality = map[string]int{"webp": 75, "avif": 50}
	defaultEffort  = map[string]int{"webp": 6, "avif": 8}
)

// UploadPolicy holds the encode options sent with every upload. The zero
// value is not useful; build one with DefaultUploadPolicy.
type UploadPolicy struct {
	scaleFactor float64
}

// DefaultUploadPolicy returns the stock encode settings.
func DefaultUploadPolicy() UploadPolicy {
	return UploadPolicy{scaleFactor: DefaultScaleFactor}
}

// WithScaleFactor returns a copy using factor. Non-positive values are rejected.
func (p UploadPolicy) WithScaleFactor(factor float64) (UploadPolicy, error) {
	if factor <= 0 {
		return p, fmt.Errorf("scale factor must be positive, got %v", factor)
	}
	p.scaleFactor = factor
	return p, nil
}

// ScaleFactor returns the configured scale factor.
func (p UploadPolicy) ScaleFactor() float64 {
	if p.scaleFactor <= 0 {
		return DefaultScaleFactor
	}
	return p.scaleFactor
}

// Options builds a fresh options value; callers may not mutate the policy through it.
func (p UploadPolicy) Options() models.UploadOptions {
	return models.UploadOptions{
		Lossless:    false,
		ScaleFactor: p.ScaleFactor(),
		Quality:     maps.Clone(defaultQuality),
		Effort:      maps.Clone(defaultEffort),
	}
}

// TargetFormat maps a source extension to the backend output format.
func TargetFormat(extension string) string {
	switch strings.ToLower(strings.TrimSpace(extension)) {
	case "webp", "png":
		return "webp"
	default:
		return "avif"
	}
}

// SourceURL builds the forum permalink sent along with an upload.
func SourceURL(forumURL string, discussionID int64, postNumber *int) string {
	base := strings.TrimRight(strings.TrimSpace(forumURL), "/")
	if discussionID <= 0 {
		return base
	}
	if postNumber == nil {
		return fmt.Sprintf("%s/d/%d", base, discussionID)
	}
	return fmt.Sprintf("%s/d/%d/%d", base, discussionID, *postNumber)
}
