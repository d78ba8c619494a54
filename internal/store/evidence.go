package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/content-pipeline/internal/types"
)

// InsertEvidenceCard persists a new evidence card.
func (s *Store) InsertEvidenceCard(ctx context.Context, card *types.EvidenceCard) error {
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}
	findings, err := json.Marshal(card.KeyFindings)
	if err != nil {
		return fmt.Errorf("failed to marshal key findings: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO evidence_cards
			(id, source_id, title, summary, key_findings, relevance_score, is_used, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, false, $7, $8)`,
		card.ID, card.SourceID, card.Title, card.Summary, findings,
		card.RelevanceScore, card.CreatedAt, card.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert evidence card: %w", err)
	}
	return nil
}

// FreshEvidence returns unused, unexpired cards ranked by relevance, capped
// at limit. Cards at or past expiry are never returned.
func (s *Store) FreshEvidence(ctx context.Context, now time.Time, limit int) ([]types.EvidenceCard, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source_id, title, summary, key_findings, relevance_score, is_used, created_at, expires_at
		 FROM evidence_cards
		 WHERE NOT is_used AND expires_at > $1
		 ORDER BY relevance_score DESC
		 LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fresh evidence: %w", err)
	}
	defer rows.Close()

	var cards []types.EvidenceCard
	for rows.Next() {
		var card types.EvidenceCard
		var findings []byte
		if err := rows.Scan(&card.ID, &card.SourceID, &card.Title, &card.Summary,
			&findings, &card.RelevanceScore, &card.IsUsed, &card.CreatedAt, &card.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan evidence card: %w", err)
		}
		if len(findings) > 0 {
			if err := json.Unmarshal(findings, &card.KeyFindings); err != nil {
				return nil, fmt.Errorf("failed to unmarshal key findings: %w", err)
			}
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// MarkEvidenceUsed flips is_used on the given cards.
func (s *Store) MarkEvidenceUsed(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE evidence_cards SET is_used = true WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("failed to mark evidence used: %w", err)
	}
	return nil
}

// EvidenceForTask returns the cards linked to a task, most relevant first.
func (s *Store) EvidenceForTask(ctx context.Context, taskID uuid.UUID) ([]types.EvidenceCard, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.source_id, c.title, c.summary, c.key_findings, c.relevance_score, c.is_used, c.created_at, c.expires_at
		 FROM evidence_cards c
		 JOIN task_evidence_links l ON l.evidence_id = c.id
		 WHERE l.task_id = $1
		 ORDER BY c.relevance_score DESC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task evidence: %w", err)
	}
	defer rows.Close()

	var cards []types.EvidenceCard
	for rows.Next() {
		var card types.EvidenceCard
		var findings []byte
		if err := rows.Scan(&card.ID, &card.SourceID, &card.Title, &card.Summary,
			&findings, &card.RelevanceScore, &card.IsUsed, &card.CreatedAt, &card.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan evidence card: %w", err)
		}
		if len(findings) > 0 {
			if err := json.Unmarshal(findings, &card.KeyFindings); err != nil {
				return nil, fmt.Errorf("failed to unmarshal key findings: %w", err)
			}
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// SweepExpiredEvidence deletes unused cards past expiry and returns how many
// were removed.
func (s *Store) SweepExpiredEvidence(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM evidence_cards WHERE NOT is_used AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired evidence: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
