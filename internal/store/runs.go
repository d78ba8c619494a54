package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jonathan/content-pipeline/internal/types"
)

const runColumns = `id, status, started_at, completed_at, triggered_by,
	sources_researched, tasks_planned, articles_written, articles_approved, articles_published,
	total_tokens_used, total_cost_usd, error_log`

// CreateRun atomically creates a RUNNING run if and only if no other run is
// currently RUNNING. The conditional insert plus the partial unique index in
// the schema make the single-flight guarantee hold under concurrent triggers.
func (s *Store) CreateRun(ctx context.Context, triggeredBy string) (uuid.UUID, error) {
	id := uuid.New()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO runs (id, status, started_at, triggered_by)
		 SELECT $1, 'RUNNING', NOW(), $2
		 WHERE NOT EXISTS (SELECT 1 FROM runs WHERE status = 'RUNNING')
		 RETURNING id`,
		id, triggeredBy,
	).Scan(&id)
	if err == nil {
		return id, nil
	}

	var pgErr *pgconn.PgError
	lost := errors.Is(err, pgx.ErrNoRows) ||
		(errors.As(err, &pgErr) && pgErr.Code == "23505") // partial index race
	if !lost {
		return uuid.Nil, fmt.Errorf("failed to create run: %w", err)
	}

	inFlight, rerr := s.RunningRun(ctx)
	if rerr != nil || inFlight == nil {
		return uuid.Nil, &ErrRunInFlight{}
	}
	return uuid.Nil, &ErrRunInFlight{RunID: inFlight.ID}
}

// RunningRun returns the RUNNING run, or nil when none exists.
func (s *Store) RunningRun(ctx context.Context) (*types.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM runs WHERE status = 'RUNNING'`)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get running run: %w", err)
	}
	return run, nil
}

// GetRun retrieves a run by id.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*types.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "run", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// LatestRun retrieves the most recently started run, or nil when none exists.
func (s *Store) LatestRun(ctx context.Context) (*types.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// UpdateRunProgress persists counters and usage totals mid-run so a crash
// leaves inspectable state.
func (s *Store) UpdateRunProgress(ctx context.Context, id uuid.UUID, counts types.RunCounts, totalTokens int, totalCostUSD float64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET
			sources_researched = $2, tasks_planned = $3, articles_written = $4,
			articles_approved = $5, articles_published = $6,
			total_tokens_used = $7, total_cost_usd = $8
		 WHERE id = $1`,
		id, counts.SourcesResearched, counts.TasksPlanned, counts.ArticlesWritten,
		counts.ArticlesApproved, counts.ArticlesPublished, totalTokens, totalCostUSD)
	if err != nil {
		return fmt.Errorf("failed to update run progress: %w", err)
	}
	return nil
}

// FinalizeRun sets the terminal status, completion time and error log.
// Only the coordinator calls this.
func (s *Store) FinalizeRun(ctx context.Context, id uuid.UUID, status types.RunStatus, errorLog []types.RunError) error {
	if !status.Terminal() {
		return fmt.Errorf("refusing to finalize run %s with non-terminal status %s", id, status)
	}

	var logJSON []byte
	if len(errorLog) > 0 {
		var err error
		logJSON, err = json.Marshal(errorLog)
		if err != nil {
			return fmt.Errorf("failed to marshal error log: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $2, completed_at = NOW(), error_log = $3 WHERE id = $1`,
		id, status, logJSON)
	if err != nil {
		return fmt.Errorf("failed to finalize run: %w", err)
	}
	return nil
}

// scanRun scans one run row.
func scanRun(row pgx.Row) (*types.Run, error) {
	var run types.Run
	var logJSON []byte
	err := row.Scan(
		&run.ID, &run.Status, &run.StartedAt, &run.CompletedAt, &run.TriggeredBy,
		&run.Counts.SourcesResearched, &run.Counts.TasksPlanned, &run.Counts.ArticlesWritten,
		&run.Counts.ArticlesApproved, &run.Counts.ArticlesPublished,
		&run.TotalTokensUsed, &run.TotalCostUSD, &logJSON,
	)
	if err != nil {
		return nil, err
	}
	if len(logJSON) > 0 {
		if err := json.Unmarshal(logJSON, &run.ErrorLog); err != nil {
			return nil, fmt.Errorf("failed to unmarshal error log: %w", err)
		}
	}
	return &run, nil
}
