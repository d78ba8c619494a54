package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/content-pipeline/internal/types"
)

const sourceColumns = "id, name, url, kind, category, is_active, fetch_interval_hours, reliability, last_fetched_at"

// CreateSource inserts a new source row.
func (s *Store) CreateSource(ctx context.Context, src *types.Source) error {
	if src.ID == uuid.Nil {
		src.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sources (id, name, url, kind, category, is_active, fetch_interval_hours, reliability)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		src.ID, src.Name, src.URL, src.Kind, src.Category, src.IsActive, src.FetchIntervalHours, src.Reliability)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}
	return nil
}

// GetSource retrieves a source by id.
func (s *Store) GetSource(ctx context.Context, id uuid.UUID) (*types.Source, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)
	src, err := scanSource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "source", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return src, nil
}

// SourceFilters holds optional filters for listing sources.
type SourceFilters struct {
	Kind       types.SourceKind
	Category   string
	OnlyActive bool
}

// ListSources retrieves sources with optional filters.
func (s *Store) ListSources(ctx context.Context, filters SourceFilters) ([]types.Source, error) {
	builder := psql.Select(sourceColumns).From("sources").OrderBy("name ASC")
	if filters.Kind != "" {
		builder = builder.Where("kind = ?", filters.Kind)
	}
	if filters.Category != "" {
		builder = builder.Where("category = ?", filters.Category)
	}
	if filters.OnlyActive {
		builder = builder.Where("is_active")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build source query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []types.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

// UpdateSource replaces the mutable fields of a source.
func (s *Store) UpdateSource(ctx context.Context, src *types.Source) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sources SET name = $2, url = $3, kind = $4, category = $5,
			is_active = $6, fetch_interval_hours = $7, reliability = $8
		 WHERE id = $1`,
		src.ID, src.Name, src.URL, src.Kind, src.Category, src.IsActive,
		src.FetchIntervalHours, src.Reliability)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "source", ID: src.ID.String()}
	}
	return nil
}

// DeleteSource hard-deletes a source.
func (s *Store) DeleteSource(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "source", ID: id.String()}
	}
	return nil
}

// StalestActiveSources returns up to limit active sources, least recently
// fetched first. Never-fetched sources come before all others.
func (s *Store) StalestActiveSources(ctx context.Context, limit int) ([]types.Source, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sourceColumns+` FROM sources
		 WHERE is_active
		 ORDER BY last_fetched_at ASC NULLS FIRST
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale sources: %w", err)
	}
	defer rows.Close()

	var sources []types.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

// TouchSourceFetched records a fetch attempt time. Called regardless of fetch
// success so a broken feed does not hot-loop at the head of the staleness
// ordering.
func (s *Store) TouchSourceFetched(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sources SET last_fetched_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to touch source: %w", err)
	}
	return nil
}

// HasActiveSource reports whether at least one active source exists.
func (s *Store) HasActiveSource(ctx context.Context) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sources WHERE is_active)`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check active sources: %w", err)
	}
	return exists, nil
}

func scanSource(row pgx.Row) (*types.Source, error) {
	var src types.Source
	err := row.Scan(&src.ID, &src.Name, &src.URL, &src.Kind, &src.Category,
		&src.IsActive, &src.FetchIntervalHours, &src.Reliability, &src.LastFetchedAt)
	if err != nil {
		return nil, err
	}
	return &src, nil
}
