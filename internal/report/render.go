// Package report renders scan findings as a plain-text report and mails it.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"imgmigrate/internal/models"
)

// Subject returns the mail subject for a report generated at now.
func Subject(now time.Time, imageCount int) string {
	return fmt.Sprintf("External images report - %s (%d images)", now.Format("2006-01-02"), imageCount)
}

// Render builds the report body. Findings are grouped by discussion, then by
// post, in the order they first appear. Links are built from forumURL.
func Render(forumURL string, findings []models.Finding) string {
	forumURL = strings.TrimRight(forumURL, "/")
	discussions, byDiscussion := models.GroupFindingsByDiscussion(findings)

	var b strings.Builder
	b.WriteString("External Images Report\n\n")
	fmt.Fprintf(&b, "Total external images: %d\n", len(findings))
	fmt.Fprintf(&b, "⚠️ Discussions with issues: %d\n", len(discussions))
	b.WriteString(strings.Repeat("=", 50))
	b.WriteString("\n\n")

	for _, discussionID := range discussions {
		items := byDiscussion[discussionID]
		fmt.Fprintf(&b, "\n⚠️ Discussion %d\n", discussionID)
		fmt.Fprintf(&b, "%s/d/%d\n", forumURL, discussionID)
		fmt.Fprintf(&b, " external images in posts (%d)\n", len(items))

		posts, byPost := models.GroupFindingsByPost(items)
		ids := make([]string, 0, len(posts))
		for _, postID := range posts {
			ids = append(ids, strconv.FormatInt(postID, 10))
		}
		fmt.Fprintf(&b, " posts: %s\n", strings.Join(ids, " "))

		for _, postID := range posts {
			postFindings := byPost[postID]
			fmt.Fprintf(&b, "  Post #%d: %d image(s)\n", postID, len(postFindings))
			fmt.Fprintf(&b, "    %s/d/%d/%s\n", forumURL, discussionID, postNumber(postFindings[0]))
			for _, finding := range postFindings {
				fmt.Fprintf(&b, "    - %s\n", finding.ImageURL)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func postNumber(f models.Finding) string {
	if f.PostNumber == nil {
		return ""
	}
	return strconv.Itoa(*f.PostNumber)
}
