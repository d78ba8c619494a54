package types

import (
	"time"

	"github.com/google/uuid"
)

// SourceKind classifies how a source is fetched and parsed.
type SourceKind string

// Source kinds.
const (
	SourceFeed           SourceKind = "feed"
	SourceRegulatoryBody SourceKind = "regulatory-body"
	SourceReport         SourceKind = "report"
	SourcePaper          SourceKind = "paper"
	SourceSite           SourceKind = "site"
)

// ValidSourceKind reports whether k is a known source kind.
func ValidSourceKind(k SourceKind) bool {
	switch k {
	case SourceFeed, SourceRegulatoryBody, SourceReport, SourcePaper, SourceSite:
		return true
	}
	return false
}

// Source is a content feed owned by the admin surface. The pipeline reads
// active sources and writes LastFetchedAt only.
type Source struct {
	ID                 uuid.UUID  `json:"id"`
	Name               string     `json:"name"`
	URL                string     `json:"url"`
	Kind               SourceKind `json:"kind"`
	Category           string     `json:"category"`
	IsActive           bool       `json:"is_active"`
	FetchIntervalHours int        `json:"fetch_interval_hours"`
	Reliability        float64    `json:"reliability"`
	LastFetchedAt      *time.Time `json:"last_fetched_at,omitempty"`
}
