package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/content-pipeline/internal/types"
)

const taskColumns = `id, run_id, type, title, slug, brief, target_keywords, target_word_count,
	priority, status, generated_body, generated_meta, qa_score, qa_feedback, rewrite_count,
	published_artifact_id`

// CreateTask inserts a task and its evidence links in one transaction so a
// task never exists without the cards that justify it.
func (s *Store) CreateTask(ctx context.Context, task *types.Task, evidenceIDs []uuid.UUID) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	keywords, err := json.Marshal(task.TargetKeywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO tasks
			(id, run_id, type, title, slug, brief, target_keywords, target_word_count, priority, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'PLANNED')`,
		task.ID, task.RunID, task.Type, task.Title, task.Slug, task.Brief,
		keywords, task.TargetWordCount, task.Priority)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	for _, evidenceID := range evidenceIDs {
		_, err = tx.Exec(ctx,
			`INSERT INTO task_evidence_links (task_id, evidence_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			task.ID, evidenceID)
		if err != nil {
			return fmt.Errorf("failed to link evidence: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit task: %w", err)
	}
	task.Status = types.TaskPlanned
	return nil
}

// GetTask retrieves a task by id.
func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*types.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "task", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// TasksByStatus returns tasks of a run in a given status, highest priority
// first.
func (s *Store) TasksByStatus(ctx context.Context, runID uuid.UUID, status types.TaskStatus) ([]types.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE run_id = $1 AND status = $2
		 ORDER BY priority DESC, id ASC`, runID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []types.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// TransitionTask moves a task from one status to another. The transition table
// is checked before touching the database, and the UPDATE carries the expected
// current status so a concurrent mover loses cleanly.
func (s *Store) TransitionTask(ctx context.Context, id uuid.UUID, from, to types.TaskStatus) error {
	if !types.CanTransition(from, to) {
		return &ErrIllegalTransition{TaskID: id, From: from, To: to}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $3 WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return fmt.Errorf("failed to transition task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrIllegalTransition{TaskID: id, From: from, To: to}
	}
	return nil
}

// UpdateTaskDraft stores a generated article body and metadata on the task.
func (s *Store) UpdateTaskDraft(ctx context.Context, id uuid.UUID, body string, meta *types.ArticleMeta) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal article meta: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET generated_body = $2, generated_meta = $3 WHERE id = $1`,
		id, body, metaJSON)
	if err != nil {
		return fmt.Errorf("failed to update task draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "task", ID: id.String()}
	}
	return nil
}

// UpdateTaskQA records a review outcome and the current rewrite count.
func (s *Store) UpdateTaskQA(ctx context.Context, id uuid.UUID, score float64, feedback string, rewriteCount int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET qa_score = $2, qa_feedback = $3, rewrite_count = $4 WHERE id = $1`,
		id, score, feedback, rewriteCount)
	if err != nil {
		return fmt.Errorf("failed to update task review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "task", ID: id.String()}
	}
	return nil
}

// TaskSummariesForRun returns the lightweight task view for run status
// responses.
func (s *Store) TaskSummariesForRun(ctx context.Context, runID uuid.UUID) ([]types.TaskSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, status, type FROM tasks
		 WHERE run_id = $1
		 ORDER BY priority DESC, id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task summaries: %w", err)
	}
	defer rows.Close()

	var summaries []types.TaskSummary
	for rows.Next() {
		var sum types.TaskSummary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.Status, &sum.Type); err != nil {
			return nil, fmt.Errorf("failed to scan task summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

func scanTask(row pgx.Row) (*types.Task, error) {
	var task types.Task
	var keywords, metaJSON []byte
	err := row.Scan(
		&task.ID, &task.RunID, &task.Type, &task.Title, &task.Slug, &task.Brief,
		&keywords, &task.TargetWordCount, &task.Priority, &task.Status,
		&task.GeneratedBody, &metaJSON, &task.QAScore, &task.QAFeedback,
		&task.RewriteCount, &task.PublishedArtifactID,
	)
	if err != nil {
		return nil, err
	}
	if len(keywords) > 0 {
		if err := json.Unmarshal(keywords, &task.TargetKeywords); err != nil {
			return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
		}
	}
	if len(metaJSON) > 0 {
		var meta types.ArticleMeta
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal article meta: %w", err)
		}
		task.GeneratedMeta = &meta
	}
	return &task, nil
}
