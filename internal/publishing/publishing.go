// Package publishing implements the final pipeline stage: moving approved
// drafts into the content store and drafting social posts for them.
package publishing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/content-pipeline/internal/config"
	"github.com/jonathan/content-pipeline/internal/llm"
	"github.com/jonathan/content-pipeline/internal/prompts"
	"github.com/jonathan/content-pipeline/internal/schemas"
	"github.com/jonathan/content-pipeline/internal/types"
)

// maxSlugProbes bounds collision probing before a task is skipped.
const maxSlugProbes = 50

// Store is the persistence surface the publishing stage needs.
type Store interface {
	TasksByStatus(ctx context.Context, runID uuid.UUID, status types.TaskStatus) ([]types.Task, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	PublishTask(ctx context.Context, artifact *types.PublishedArtifact) error
	InsertSocialDraft(ctx context.Context, draft *types.SocialPostDraft) error
}

// Result summarizes one publishing pass.
type Result struct {
	Published    int
	SocialDrafts int
	Errors       []types.RunError
}

// Stage publishes approved drafts.
type Stage struct {
	store  Store
	caller llm.Caller
	meter  *llm.UsageMeter
	log    *zap.Logger
	now    func() time.Time
}

// NewStage creates a publishing stage.
func NewStage(store Store, caller llm.Caller, meter *llm.UsageMeter, log *zap.Logger) *Stage {
	return &Stage{store: store, caller: caller, meter: meter, log: log, now: time.Now}
}

// socialOutput mirrors the social-draft JSON contract.
type socialOutput struct {
	Posts []struct {
		Platform string   `json:"platform"`
		Content  string   `json:"content"`
		Hashtags []string `json:"hashtags"`
	} `json:"posts"`
}

// Run publishes every approved task. A failing publish is recorded and the
// pass continues; social drafting is best effort and never reverts a
// publish.
func (s *Stage) Run(ctx context.Context, runID uuid.UUID, cfg config.Pipeline) (*Result, error) {
	tasks, err := s.store.TasksByStatus(ctx, runID, types.TaskApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to load approved tasks: %w", err)
	}

	result := &Result{}
	for _, task := range tasks {
		artifact, err := s.publishTask(ctx, task)
		if err != nil {
			s.log.Warn("publish failed", zap.String("task", task.Title), zap.Error(err))
			result.Errors = append(result.Errors, types.RunError{
				Stage:   "publishing",
				Message: err.Error(),
				ItemID:  task.ID.String(),
				At:      s.now(),
			})
			continue
		}
		result.Published++
		s.log.Info("article published",
			zap.String("task", task.Title),
			zap.String("slug", artifact.Slug))

		result.SocialDrafts += s.draftSocialPosts(ctx, task, artifact, cfg, result)
	}
	return result, nil
}

// publishTask resolves a free slug and writes the artifact together with the
// task's terminal transition.
func (s *Stage) publishTask(ctx context.Context, task types.Task) (*types.PublishedArtifact, error) {
	if task.GeneratedBody == "" || task.GeneratedMeta == nil {
		return nil, fmt.Errorf("approved task has no draft")
	}

	slug, err := s.resolveSlug(ctx, task.Slug)
	if err != nil {
		return nil, err
	}

	artifact := &types.PublishedArtifact{
		TaskID:   task.ID,
		Title:    task.Title,
		Slug:     slug,
		Body:     task.GeneratedBody,
		Metadata: *task.GeneratedMeta,
	}
	if err := s.store.PublishTask(ctx, artifact); err != nil {
		return nil, err
	}
	return artifact, nil
}

// resolveSlug returns the base slug if free, otherwise the first free
// numbered variant (base-2, base-3, ...).
func (s *Stage) resolveSlug(ctx context.Context, base string) (string, error) {
	taken, err := s.store.SlugExists(ctx, base)
	if err != nil {
		return "", fmt.Errorf("failed to check slug: %w", err)
	}
	if !taken {
		return base, nil
	}

	for n := 2; n <= maxSlugProbes; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		taken, err := s.store.SlugExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check slug: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free slug found for %q", base)
}

// draftSocialPosts generates and stores drafts for a published article. Every
// failure is recorded and swallowed.
func (s *Stage) draftSocialPosts(ctx context.Context, task types.Task, artifact *types.PublishedArtifact, cfg config.Pipeline, result *Result) int {
	record := func(err error) {
		s.log.Warn("social drafting failed", zap.String("task", task.Title), zap.Error(err))
		result.Errors = append(result.Errors, types.RunError{
			Stage:   "publishing",
			Message: fmt.Sprintf("social drafts skipped: %v", err),
			ItemID:  task.ID.String(),
			At:      s.now(),
		})
	}

	if !s.meter.Allow() {
		s.log.Info("budget ceiling reached, skipping social drafts",
			zap.String("task", task.Title))
		return 0
	}

	user := prompts.Format(prompts.MustGet("publishing.json", "social-posts"), map[string]string{
		"Title":   artifact.Title,
		"Excerpt": artifact.Metadata.Excerpt,
		"Slug":    artifact.Slug,
	})

	callResult, err := s.caller.Call(ctx, llm.Request{
		System:     prompts.MustGet("publishing.json", "system"),
		User:       user,
		Model:      cfg.SocialModel,
		MaxTokens:  1024,
		Structured: true,
	})
	if err != nil {
		record(err)
		return 0
	}
	s.meter.Charge(callResult.InputTokens, callResult.OutputTokens, callResult.CostUSD)

	var out socialOutput
	if err := schemas.Decode(schemas.SocialOutput, callResult.Content, &out); err != nil {
		record(err)
		return 0
	}

	created := 0
	for _, post := range out.Posts {
		platform := types.SocialPlatform(post.Platform)
		if !types.ValidSocialPlatform(platform) {
			record(fmt.Errorf("unknown platform %q", post.Platform))
			continue
		}
		draft := &types.SocialPostDraft{
			TaskID:   task.ID,
			Platform: platform,
			Content:  post.Content,
			Hashtags: post.Hashtags,
		}
		if err := s.store.InsertSocialDraft(ctx, draft); err != nil {
			record(err)
			continue
		}
		created++
	}
	return created
}
