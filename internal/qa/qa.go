// Package qa implements the fourth pipeline stage: scoring drafts and
// deciding approve, rewrite or reject.
package qa

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/content-pipeline/internal/config"
	"github.com/jonathan/content-pipeline/internal/llm"
	"github.com/jonathan/content-pipeline/internal/prompts"
	"github.com/jonathan/content-pipeline/internal/schemas"
	"github.com/jonathan/content-pipeline/internal/types"
)

// Store is the persistence surface the QA stage needs.
type Store interface {
	TasksByStatus(ctx context.Context, runID uuid.UUID, status types.TaskStatus) ([]types.Task, error)
	TransitionTask(ctx context.Context, id uuid.UUID, from, to types.TaskStatus) error
	UpdateTaskQA(ctx context.Context, id uuid.UUID, score float64, feedback string, rewriteCount int) error
}

// Result summarizes one review pass.
type Result struct {
	Approved      int
	SentToRewrite int
	Rejected      int
	BudgetStopped bool
	Errors        []types.RunError
}

// Stage reviews drafts in IN_REVIEW.
type Stage struct {
	store  Store
	caller llm.Caller
	meter  *llm.UsageMeter
	log    *zap.Logger
	now    func() time.Time
}

// NewStage creates a QA stage.
func NewStage(store Store, caller llm.Caller, meter *llm.UsageMeter, log *zap.Logger) *Stage {
	return &Stage{store: store, caller: caller, meter: meter, log: log, now: time.Now}
}

// qaOutput mirrors the reviewer's JSON contract. The scores object is checked
// dimension by dimension after decoding.
type qaOutput struct {
	Scores      map[string]float64 `json:"scores"`
	Feedback    string             `json:"feedback"`
	Suggestions []string           `json:"suggestions"`
}

// Run reviews every draft awaiting review. A draft that cannot be scored is
// never approved: it goes back to rewrite while attempts remain and is
// rejected once they run out.
func (s *Stage) Run(ctx context.Context, runID uuid.UUID, cfg config.Pipeline) (*Result, error) {
	tasks, err := s.store.TasksByStatus(ctx, runID, types.TaskInReview)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks in review: %w", err)
	}

	result := &Result{}
	for _, task := range tasks {
		if !s.meter.Allow() {
			result.BudgetStopped = true
			return result, nil
		}
		if err := s.reviewTask(ctx, task, cfg, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *Stage) reviewTask(ctx context.Context, task types.Task, cfg config.Pipeline, result *Result) error {
	report, scoringErr := s.score(ctx, task, cfg)
	if scoringErr != nil {
		// Unscoreable output counts as a failed review, not an approval.
		s.log.Warn("draft could not be scored",
			zap.String("task", task.Title), zap.Error(scoringErr))
		result.Errors = append(result.Errors, types.RunError{
			Stage:   "qa",
			Message: scoringErr.Error(),
			ItemID:  task.ID.String(),
			At:      s.now(),
		})
		return s.sendBack(ctx, task, cfg, 0,
			fmt.Sprintf("review failed: %v", scoringErr), result)
	}

	if report.AverageScore >= cfg.MinQAScore {
		if err := s.store.UpdateTaskQA(ctx, task.ID, report.AverageScore, report.Feedback, task.RewriteCount); err != nil {
			return err
		}
		if err := s.store.TransitionTask(ctx, task.ID, types.TaskInReview, types.TaskApproved); err != nil {
			return err
		}
		result.Approved++
		s.log.Info("draft approved",
			zap.String("task", task.Title),
			zap.Float64("score", report.AverageScore))
		return nil
	}

	feedback := report.Feedback
	if len(report.Suggestions) > 0 {
		feedback += "\nSuggestions:\n- " + strings.Join(report.Suggestions, "\n- ")
	}
	return s.sendBack(ctx, task, cfg, report.AverageScore, feedback, result)
}

// sendBack routes a failed review: rewrite while attempts remain, reject once
// the rewrite budget is spent.
func (s *Stage) sendBack(ctx context.Context, task types.Task, cfg config.Pipeline, score float64, feedback string, result *Result) error {
	if task.RewriteCount < cfg.MaxRewriteAttempts {
		if err := s.store.UpdateTaskQA(ctx, task.ID, score, feedback, task.RewriteCount+1); err != nil {
			return err
		}
		if err := s.store.TransitionTask(ctx, task.ID, types.TaskInReview, types.TaskWriting); err != nil {
			return err
		}
		result.SentToRewrite++
		s.log.Info("draft sent back for rewrite",
			zap.String("task", task.Title),
			zap.Float64("score", score),
			zap.Int("rewrite", task.RewriteCount+1))
		return nil
	}

	if err := s.store.UpdateTaskQA(ctx, task.ID, score, feedback, task.RewriteCount); err != nil {
		return err
	}
	if err := s.store.TransitionTask(ctx, task.ID, types.TaskInReview, types.TaskRejected); err != nil {
		return err
	}
	result.Rejected++
	s.log.Info("draft rejected",
		zap.String("task", task.Title),
		zap.Float64("score", score),
		zap.Int("rewrites", task.RewriteCount))
	return nil
}

// score calls the reviewer model and builds a report. Every one of the eight
// dimensions must be present; scores are clamped to [1,10] and the average is
// always recomputed here, never taken from the model.
func (s *Stage) score(ctx context.Context, task types.Task, cfg config.Pipeline) (*types.QAReport, error) {
	user := prompts.Format(prompts.MustGet("qa.json", "score-article"), map[string]string{
		"Brief":    task.Brief,
		"Keywords": strings.Join(task.TargetKeywords, ", "),
		"Body":     task.GeneratedBody,
	})

	callResult, err := s.caller.Call(ctx, llm.Request{
		System:     prompts.MustGet("qa.json", "system"),
		User:       user,
		Model:      cfg.QAModel,
		MaxTokens:  2048,
		Structured: true,
	})
	if err != nil {
		return nil, err
	}
	s.meter.Charge(callResult.InputTokens, callResult.OutputTokens, callResult.CostUSD)

	var out qaOutput
	if err := schemas.Decode(schemas.QAOutput, callResult.Content, &out); err != nil {
		return nil, fmt.Errorf("review output rejected: %w", err)
	}

	scores := make(map[string]float64, len(types.QADimensions))
	var sum float64
	for _, dim := range types.QADimensions {
		raw, ok := out.Scores[dim]
		if !ok {
			return nil, fmt.Errorf("review output missing dimension %q", dim)
		}
		scores[dim] = clampScore(raw)
		sum += scores[dim]
	}

	return &types.QAReport{
		TaskID:       task.ID,
		Scores:       scores,
		AverageScore: sum / float64(len(types.QADimensions)),
		Feedback:     out.Feedback,
		Suggestions:  out.Suggestions,
	}, nil
}

func clampScore(v float64) float64 {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}
