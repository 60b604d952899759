package models

// Post is one forum post as exposed by the content source.
type Post struct {
	ID              int64    `json:"id"`
	DiscussionID    int64    `json:"discussion_id"`
	Number          *int     `json:"number,omitempty"`
	Type            PostType `json:"type"`
	RenderedContent string   `json:"-"`
	RawContent      string   `json:"-"`
}

// Finding is one external image occurrence inside a post.
type Finding struct {
	DiscussionID int64  `json:"discussion_id" yaml:"discussion_id"`
	PostID       int64  `json:"post_id" yaml:"post_id"`
	PostNumber   *int   `json:"post_number,omitempty" yaml:"post_number,omitempty"`
	ImageURL     string `json:"image_url" yaml:"image_url"`
}

// GroupFindingsByPost groups findings by post id, keeping the order in which
// posts and images first appear.
func GroupFindingsByPost(findings []Finding) ([]int64, map[int64][]Finding) {
	order := []int64{}
	grouped := map[int64][]Finding{}
	for _, finding := range findings {
		if _, ok := grouped[finding.PostID]; !ok {
			order = append(order, finding.PostID)
		}
		grouped[finding.PostID] = append(grouped[finding.PostID], finding)
	}
	return order, grouped
}

// GroupFindingsByDiscussion groups findings by discussion id in first-seen order.
func GroupFindingsByDiscussion(findings []Finding) ([]int64, map[int64][]Finding) {
	order := []int64{}
	grouped := map[int64][]Finding{}
	for _, finding := range findings {
		if _, ok := grouped[finding.DiscussionID]; !ok {
			order = append(order, finding.DiscussionID)
		}
		grouped[finding.DiscussionID] = append(grouped[finding.DiscussionID], finding)
	}
	return order, grouped
}
