package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/content-pipeline/internal/types"
)

// PublishedSlugs returns every slug currently in the content store.
func (s *Store) PublishedSlugs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT slug FROM published_artifacts ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("failed to list published slugs: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("failed to scan slug: %w", err)
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

// SlugExists reports whether a slug is already taken.
func (s *Store) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM published_artifacts WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return exists, nil
}

// PublishTask writes the artifact and moves the task APPROVED -> PUBLISHED in
// a single transaction. Either both land or neither does.
func (s *Store) PublishTask(ctx context.Context, artifact *types.PublishedArtifact) error {
	if artifact.ID == uuid.Nil {
		artifact.ID = uuid.New()
	}
	metaJSON, err := json.Marshal(artifact.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact metadata: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO published_artifacts (id, task_id, title, slug, body, metadata, published_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		artifact.ID, artifact.TaskID, artifact.Title, artifact.Slug, artifact.Body, metaJSON)
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE tasks SET status = 'PUBLISHED', published_artifact_id = $2
		 WHERE id = $1 AND status = 'APPROVED'`,
		artifact.TaskID, artifact.ID)
	if err != nil {
		return fmt.Errorf("failed to mark task published: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrIllegalTransition{TaskID: artifact.TaskID, From: types.TaskApproved, To: types.TaskPublished}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit publish: %w", err)
	}
	return nil
}
