// Package planning implements the second pipeline stage: turning fresh
// evidence into content task briefs.
package planning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
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
	// evidenceCap bounds how many cards are surfaced to the planner at once.
	evidenceCap = 12
	// parseAttempts is how many times malformed planner output is retried.
	parseAttempts = 3
	// parseRetryTempBump raises the temperature on each retry so the model
	// does not deterministically repeat the same malformed output.
	parseRetryTempBump = 0.15
)

// Store is the persistence surface the planning stage needs.
type Store interface {
	FreshEvidence(ctx context.Context, now time.Time, limit int) ([]types.EvidenceCard, error)
	CreateTask(ctx context.Context, task *types.Task, evidenceIDs []uuid.UUID) error
	MarkEvidenceUsed(ctx context.Context, ids []uuid.UUID) error
}

// Result summarizes one planning pass.
type Result struct {
	TasksPlanned  int
	BudgetStopped bool
	Errors        []types.RunError
}

// Stage proposes content tasks from evidence.
type Stage struct {
	store  Store
	caller llm.Caller
	meter  *llm.UsageMeter
	log    *zap.Logger
	now    func() time.Time
}

// NewStage creates a planning stage.
func NewStage(store Store, caller llm.Caller, meter *llm.UsageMeter, log *zap.Logger) *Stage {
	return &Stage{store: store, caller: caller, meter: meter, log: log, now: time.Now}
}

// plannerOutput mirrors the planner's JSON contract.
type plannerOutput struct {
	Tasks []plannedTask `json:"tasks"`
}

type plannedTask struct {
	Title           string   `json:"title"`
	Slug            string   `json:"slug"`
	Type            string   `json:"type"`
	Brief           string   `json:"brief"`
	TargetKeywords  []string `json:"targetKeywords"`
	TargetWordCount int      `json:"targetWordCount"`
	Priority        int      `json:"priority"`
	EvidenceIDs     []string `json:"evidenceIds"`
}

// Run proposes up to the daily target of tasks from unused, unexpired
// evidence. An empty evidence pool under-delivers silently; briefs the
// evidence does not support are dropped rather than repaired.
func (s *Stage) Run(ctx context.Context, runID uuid.UUID, cfg config.Pipeline) (*Result, error) {
	if cfg.DailyArticleTarget == 0 {
		return &Result{}, nil
	}
	if !s.meter.Allow() {
		s.log.Warn("budget ceiling reached, skipping planning")
		return &Result{BudgetStopped: true}, nil
	}

	cards, err := s.store.FreshEvidence(ctx, s.now(), evidenceCap)
	if err != nil {
		return nil, fmt.Errorf("failed to load evidence: %w", err)
	}
	if len(cards) == 0 {
		s.log.Info("no fresh evidence, nothing to plan")
		return &Result{}, nil
	}

	known := make(map[string]uuid.UUID, len(cards))
	for _, card := range cards {
		known[card.ID.String()] = card.ID
	}

	out, err := s.propose(ctx, cfg, cards)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	usedEvidence := make(map[uuid.UUID]struct{})

	for _, proposal := range out.Tasks {
		if result.TasksPlanned == cfg.DailyArticleTarget {
			break
		}

		evidenceIDs, reason := resolveEvidence(proposal.EvidenceIDs, known)
		if reason == "" && !types.ValidTaskType(types.TaskType(proposal.Type)) {
			reason = fmt.Sprintf("unknown task type %q", proposal.Type)
		}
		if reason != "" {
			s.log.Warn("dropping planner proposal",
				zap.String("title", proposal.Title), zap.String("reason", reason))
			result.Errors = append(result.Errors, types.RunError{
				Stage:   "planning",
				Message: fmt.Sprintf("dropped proposal %q: %s", proposal.Title, reason),
				At:      s.now(),
			})
			continue
		}

		task := &types.Task{
			RunID:           runID,
			Type:            types.TaskType(proposal.Type),
			Title:           proposal.Title,
			Slug:            normalizeSlug(proposal.Slug),
			Brief:           proposal.Brief,
			TargetKeywords:  proposal.TargetKeywords,
			TargetWordCount: proposal.TargetWordCount,
			Priority:        proposal.Priority,
		}
		if err := s.store.CreateTask(ctx, task, evidenceIDs); err != nil {
			return nil, fmt.Errorf("failed to create task: %w", err)
		}
		for _, id := range evidenceIDs {
			usedEvidence[id] = struct{}{}
		}
		result.TasksPlanned++
	}

	if len(usedEvidence) > 0 {
		ids := make([]uuid.UUID, 0, len(usedEvidence))
		for id := range usedEvidence {
			ids = append(ids, id)
		}
		if err := s.store.MarkEvidenceUsed(ctx, ids); err != nil {
			return nil, fmt.Errorf("failed to mark evidence used: %w", err)
		}
	}

	s.log.Info("planning pass complete",
		zap.Int("proposed", len(out.Tasks)),
		zap.Int("planned", result.TasksPlanned))
	return result, nil
}

// propose calls the planner model, retrying with raised temperature when the
// output fails the contract.
func (s *Stage) propose(ctx context.Context, cfg config.Pipeline, cards []types.EvidenceCard) (*plannerOutput, error) {
	evidence, err := renderEvidence(cards)
	if err != nil {
		return nil, err
	}

	user := prompts.Format(prompts.MustGet("planning.json", "propose-tasks"), map[string]string{
		"Target":   fmt.Sprintf("%d", cfg.DailyArticleTarget),
		"Types":    "guide, news, analysis, comparison, checklist",
		"Evidence": evidence,
	})

	var lastErr error
	temperature := float32(0.2)
	for attempt := 1; attempt <= parseAttempts; attempt++ {
		result, err := s.caller.Call(ctx, llm.Request{
			System:      prompts.MustGet("planning.json", "system"),
			User:        user,
			Model:       cfg.PlannerModel,
			Temperature: temperature,
			MaxTokens:   4096,
			Structured:  true,
		})
		if err != nil {
			return nil, err
		}
		s.meter.Charge(result.InputTokens, result.OutputTokens, result.CostUSD)

		var out plannerOutput
		decodeErr := schemas.Decode(schemas.PlannerOutput, result.Content, &out)
		if decodeErr == nil {
			return &out, nil
		}

		var parseErr *schemas.ParseError
		var validationErr *schemas.ValidationError
		if !errors.As(decodeErr, &parseErr) && !errors.As(decodeErr, &validationErr) {
			return nil, decodeErr
		}
		lastErr = decodeErr
		temperature += parseRetryTempBump
		s.log.Warn("planner output rejected, retrying",
			zap.Int("attempt", attempt), zap.Error(decodeErr))
	}
	return nil, fmt.Errorf("planner output failed validation after %d attempts: %w", parseAttempts, lastErr)
}

// resolveEvidence maps cited ids onto known cards. A citation of an unknown
// card, or an empty citation list, disqualifies the proposal.
func resolveEvidence(cited []string, known map[string]uuid.UUID) ([]uuid.UUID, string) {
	if len(cited) == 0 {
		return nil, "cites no evidence"
	}
	ids := make([]uuid.UUID, 0, len(cited))
	for _, raw := range cited {
		id, ok := known[raw]
		if !ok {
			return nil, fmt.Sprintf("cites unknown evidence %q", raw)
		}
		ids = append(ids, id)
	}
	return ids, ""
}

// renderEvidence serializes cards for the prompt.
func renderEvidence(cards []types.EvidenceCard) (string, error) {
	type promptCard struct {
		ID          string   `json:"id"`
		Title       string   `json:"title"`
		Summary     string   `json:"summary"`
		KeyFindings []string `json:"keyFindings,omitempty"`
		Relevance   float64  `json:"relevance"`
	}
	rendered := make([]promptCard, 0, len(cards))
	for _, card := range cards {
		rendered = append(rendered, promptCard{
			ID:          card.ID.String(),
			Title:       card.Title,
			Summary:     card.Summary,
			KeyFindings: card.KeyFindings,
			Relevance:   card.RelevanceScore,
		})
	}
	blob, err := json.MarshalIndent(rendered, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render evidence: %w", err)
	}
	return string(blob), nil
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9-]+`)
var slugDashes = regexp.MustCompile(`-{2,}`)

// normalizeSlug lowercases and replaces anything that is not url-safe.
func normalizeSlug(slug string) string {
	s := strings.ToLower(strings.TrimSpace(slug))
	s = slugInvalid.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
