package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/content-pipeline/internal/types"
)

// InsertSocialDraft persists a social post draft in DRAFT status.
func (s *Store) InsertSocialDraft(ctx context.Context, draft *types.SocialPostDraft) error {
	if draft.ID == uuid.Nil {
		draft.ID = uuid.New()
	}
	hashtags, err := json.Marshal(draft.Hashtags)
	if err != nil {
		return fmt.Errorf("failed to marshal hashtags: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO social_post_drafts (id, task_id, platform, content, hashtags, status)
		 VALUES ($1, $2, $3, $4, $5, 'DRAFT')`,
		draft.ID, draft.TaskID, draft.Platform, draft.Content, hashtags)
	if err != nil {
		return fmt.Errorf("failed to insert social draft: %w", err)
	}
	draft.Status = "DRAFT"
	return nil
}

// SocialDraftsForTask returns the drafts generated for a task.
func (s *Store) SocialDraftsForTask(ctx context.Context, taskID uuid.UUID) ([]types.SocialPostDraft, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, task_id, platform, content, hashtags, status
		 FROM social_post_drafts WHERE task_id = $1 ORDER BY platform`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list social drafts: %w", err)
	}
	defer rows.Close()

	var drafts []types.SocialPostDraft
	for rows.Next() {
		var draft types.SocialPostDraft
		var hashtags []byte
		if err := rows.Scan(&draft.ID, &draft.TaskID, &draft.Platform,
			&draft.Content, &hashtags, &draft.Status); err != nil {
			return nil, fmt.Errorf("failed to scan social draft: %w", err)
		}
		if len(hashtags) > 0 {
			if err := json.Unmarshal(hashtags, &draft.Hashtags); err != nil {
				return nil, fmt.Errorf("failed to unmarshal hashtags: %w", err)
			}
		}
		drafts = append(drafts, draft)
	}
	return drafts, rows.Err()
}
