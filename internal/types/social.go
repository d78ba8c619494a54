package types

import "github.com/google/uuid"

// SocialPlatform identifies a social network a draft targets.
type SocialPlatform string

// Supported platforms for social drafts.
const (
	PlatformTwitter  SocialPlatform = "twitter"
	PlatformLinkedIn SocialPlatform = "linkedin"
)

// ValidSocialPlatform reports whether p is a supported platform.
func ValidSocialPlatform(p SocialPlatform) bool {
	return p == PlatformTwitter || p == PlatformLinkedIn
}

// SocialPostDraft is a best-effort social post generated after publishing.
// Drafts never block or revert a publish.
type SocialPostDraft struct {
	ID       uuid.UUID      `json:"id"`
	TaskID   uuid.UUID      `json:"task_id"`
	Platform SocialPlatform `json:"platform"`
	Content  string         `json:"content"`
	Hashtags []string       `json:"hashtags"`
	Status   string         `json:"status"` // always DRAFT; downstream surfaces own the rest
}

// PublishedArtifact is a published article owned by the content store.
type PublishedArtifact struct {
	ID       uuid.UUID   `json:"id"`
	TaskID   uuid.UUID   `json:"task_id"`
	Title    string      `json:"title"`
	Slug     string      `json:"slug"`
	Body     string      `json:"body"`
	Metadata ArticleMeta `json:"metadata"`
}
