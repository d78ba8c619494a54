// Package writing implements the third pipeline stage: drafting articles for
// planned tasks and rewriting drafts that review sent back.
package writing

import (
	"context"
	"encoding/json"
	"errors"
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

const (
	// parseAttempts bounds how many times a malformed draft is re-requested.
	parseAttempts = 3
	// parseRetryTempBump raises the temperature on each retry.
	parseRetryTempBump = 0.15
)

// Store is the persistence surface the writing stage needs.
type Store interface {
	TasksByStatus(ctx context.Context, runID uuid.UUID, status types.TaskStatus) ([]types.Task, error)
	TransitionTask(ctx context.Context, id uuid.UUID, from, to types.TaskStatus) error
	EvidenceForTask(ctx context.Context, taskID uuid.UUID) ([]types.EvidenceCard, error)
	UpdateTaskDraft(ctx context.Context, id uuid.UUID, body string, meta *types.ArticleMeta) error
	PublishedSlugs(ctx context.Context) ([]string, error)
}

// Result summarizes one writing pass.
type Result struct {
	ArticlesWritten int
	Rewrites        int
	BudgetStopped   bool
	Errors          []types.RunError
}

// Stage drafts articles from task briefs.
type Stage struct {
	store  Store
	caller llm.Caller
	meter  *llm.UsageMeter
	log    *zap.Logger
	now    func() time.Time
}

// NewStage creates a writing stage.
func NewStage(store Store, caller llm.Caller, meter *llm.UsageMeter, log *zap.Logger) *Stage {
	return &Stage{store: store, caller: caller, meter: meter, log: log, now: time.Now}
}

// writerOutput mirrors the writer's JSON contract.
type writerOutput struct {
	Title           string   `json:"title"`
	MetaTitle       string   `json:"metaTitle"`
	MetaDescription string   `json:"metaDescription"`
	Excerpt         string   `json:"excerpt"`
	Body            string   `json:"body"`
	Tags            []string `json:"tags"`
	Category        string   `json:"category"`
}

// Run drafts every task awaiting a write. Tasks already in WRITING at entry
// are rewrites and carry review feedback into the prompt verbatim; PLANNED
// tasks are fresh writes. The budget meter is consulted before each task, and
// tasks past the ceiling are left untouched for a later run.
func (s *Stage) Run(ctx context.Context, runID uuid.UUID, cfg config.Pipeline) (*Result, error) {
	rewrites, err := s.store.TasksByStatus(ctx, runID, types.TaskWriting)
	if err != nil {
		return nil, fmt.Errorf("failed to load rewrite tasks: %w", err)
	}
	planned, err := s.store.TasksByStatus(ctx, runID, types.TaskPlanned)
	if err != nil {
		return nil, fmt.Errorf("failed to load planned tasks: %w", err)
	}

	slugs, err := s.store.PublishedSlugs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load published slugs: %w", err)
	}

	result := &Result{}

	for _, task := range rewrites {
		if !s.meter.Allow() {
			result.BudgetStopped = true
			return result, nil
		}
		if err := s.writeTask(ctx, task, cfg, slugs, true, result); err != nil {
			return nil, err
		}
	}

	for _, task := range planned {
		if !s.meter.Allow() {
			result.BudgetStopped = true
			return result, nil
		}
		if err := s.store.TransitionTask(ctx, task.ID, types.TaskPlanned, types.TaskWriting); err != nil {
			return nil, err
		}
		if err := s.writeTask(ctx, task, cfg, slugs, false, result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// writeTask produces one draft. Malformed output is retried with raised
// temperature; a task whose output never parses is rejected with a
// diagnostic rather than left stuck.
func (s *Stage) writeTask(ctx context.Context, task types.Task, cfg config.Pipeline, slugs []string, isRewrite bool, result *Result) error {
	cards, err := s.store.EvidenceForTask(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("failed to load task evidence: %w", err)
	}

	user, err := buildPrompt(task, cards, slugs, isRewrite)
	if err != nil {
		return err
	}

	var lastErr error
	temperature := float32(cfg.WriterTemperature)
	for attempt := 1; attempt <= parseAttempts; attempt++ {
		callResult, err := s.caller.Call(ctx, llm.Request{
			System:      prompts.MustGet("writing.json", "system"),
			User:        user,
			Model:       cfg.WriterModel,
			Temperature: temperature,
			MaxTokens:   int32(cfg.MaxTokensPerArticle),
			Structured:  true,
		})
		if err != nil {
			var authErr *llm.AuthError
			if errors.As(err, &authErr) {
				return err
			}
			return s.rejectTask(ctx, task, fmt.Sprintf("model call failed: %v", err), result)
		}
		s.meter.Charge(callResult.InputTokens, callResult.OutputTokens, callResult.CostUSD)

		var out writerOutput
		decodeErr := schemas.Decode(schemas.WriterOutput, callResult.Content, &out)
		if decodeErr == nil {
			return s.acceptDraft(ctx, task, out, isRewrite, result)
		}
		lastErr = decodeErr
		temperature += parseRetryTempBump
		s.log.Warn("draft output rejected, retrying",
			zap.String("task", task.Title),
			zap.Int("attempt", attempt),
			zap.Error(decodeErr))
	}

	diagnostic := fmt.Sprintf("draft failed contract after %d attempts: %v", parseAttempts, lastErr)
	return s.rejectTask(ctx, task, diagnostic, result)
}

func (s *Stage) acceptDraft(ctx context.Context, task types.Task, out writerOutput, isRewrite bool, result *Result) error {
	meta := &types.ArticleMeta{
		MetaTitle:       out.MetaTitle,
		MetaDescription: out.MetaDescription,
		Excerpt:         out.Excerpt,
		Tags:            out.Tags,
		Category:        out.Category,
	}
	if err := s.store.UpdateTaskDraft(ctx, task.ID, out.Body, meta); err != nil {
		return fmt.Errorf("failed to store draft: %w", err)
	}
	if err := s.store.TransitionTask(ctx, task.ID, types.TaskWriting, types.TaskInReview); err != nil {
		return err
	}

	result.ArticlesWritten++
	if isRewrite {
		result.Rewrites++
	}
	s.log.Info("draft complete",
		zap.String("task", task.Title),
		zap.Bool("rewrite", isRewrite))
	return nil
}

func (s *Stage) rejectTask(ctx context.Context, task types.Task, diagnostic string, result *Result) error {
	if err := s.store.TransitionTask(ctx, task.ID, types.TaskWriting, types.TaskRejected); err != nil {
		return err
	}
	result.Errors = append(result.Errors, types.RunError{
		Stage:   "writing",
		Message: diagnostic,
		ItemID:  task.ID.String(),
		At:      s.now(),
	})
	s.log.Warn("task rejected", zap.String("task", task.Title), zap.String("reason", diagnostic))
	return nil
}

// buildPrompt assembles the writer prompt. On rewrites the review feedback is
// included verbatim.
func buildPrompt(task types.Task, cards []types.EvidenceCard, slugs []string, isRewrite bool) (string, error) {
	evidence, err := renderEvidence(cards)
	if err != nil {
		return "", err
	}

	rewriteSection := "\n"
	if isRewrite {
		rewriteSection = prompts.Format(prompts.MustGet("writing.json", "rewrite-section"), map[string]string{
			"Feedback": task.QAFeedback,
		})
	}

	existingSlugs := "(none)"
	if len(slugs) > 0 {
		existingSlugs = strings.Join(slugs, "\n")
	}

	return prompts.Format(prompts.MustGet("writing.json", "write-article"), map[string]string{
		"Type":           string(task.Type),
		"Brief":          task.Brief,
		"Evidence":       evidence,
		"Keywords":       strings.Join(task.TargetKeywords, ", "),
		"WordCount":      fmt.Sprintf("%d", task.TargetWordCount),
		"ExistingSlugs":  existingSlugs,
		"RewriteSection": rewriteSection,
	}), nil
}

func renderEvidence(cards []types.EvidenceCard) (string, error) {
	type promptCard struct {
		Title       string   `json:"title"`
		Summary     string   `json:"summary"`
		KeyFindings []string `json:"keyFindings,omitempty"`
	}
	rendered := make([]promptCard, 0, len(cards))
	for _, card := range cards {
		rendered = append(rendered, promptCard{
			Title:       card.Title,
			Summary:     card.Summary,
			KeyFindings: card.KeyFindings,
		})
	}
	blob, err := json.MarshalIndent(rendered, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render evidence: %w", err)
	}
	return string(blob), nil
}
