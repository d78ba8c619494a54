package types

import (
	"time"

	"github.com/google/uuid"
)

// EvidenceCard is a scored, time-bounded extract of research output.
// Immutable after creation except for IsUsed and the expiry sweep.
type EvidenceCard struct {
	ID             uuid.UUID `json:"id"`
	SourceID       uuid.UUID `json:"source_id"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary"`
	KeyFindings    []string  `json:"key_findings"`
	RelevanceScore float64   `json:"relevance_score"`
	IsUsed         bool      `json:"is_used"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Expired reports whether the card is past its expiry at the given instant.
func (c EvidenceCard) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}
