package models

import (
	"fmt"
	"strings"
)

// PostType is the kind of a forum post. Only comment posts carry user content.
type PostType string

const (
	PostTypeComment          PostType = "comment"
	PostTypeDiscussionRename PostType = "discussionRenamed"
	PostTypeDiscussionLock   PostType = "discussionLocked"
	PostTypeDiscussionSticky PostType = "discussionStickied"
)

// Environment selects the backend storage environment for uploads.
type Environment string

const (
	EnvironmentProduction  Environment = "production"
	EnvironmentIntegration Environment = "integration"
)

var validEnvironments = map[Environment]struct{}{
	EnvironmentProduction:  {},
	EnvironmentIntegration: {},
}

// ParseEnvironment validates a backend environment name.
func ParseEnvironment(value string) (Environment, error) {
	normalized := Environment(strings.TrimSpace(value))
	if _, ok := validEnvironments[normalized]; !ok {
		return "", fmt.Errorf("invalid environment %q", value)
	}
	return normalized, nil
}

// NormalizeEnvironment coerces unknown environment names to production.
func NormalizeEnvironment(value string) Environment {
	env, err := ParseEnvironment(value)
	if err != nil {
		return EnvironmentProduction
	}
	return env
}

// IsComment reports whether the post type is the content-bearing kind.
func (t PostType) IsComment() bool {
	return t == PostTypeComment
}
