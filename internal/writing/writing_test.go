package writing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/content-pipeline/internal/config"
	"github.com/jonathan/content-pipeline/internal/llm"
	"github.com/jonathan/content-pipeline/internal/store"
	"github.com/jonathan/content-pipeline/internal/types"
	"github.com/jonathan/content-pipeline/pkg/logger"
)

type fakeStore struct {
	tasks    map[uuid.UUID]*types.Task
	evidence map[uuid.UUID][]types.EvidenceCard
	slugs    []string
}

func newFakeStore(tasks ...*types.Task) *fakeStore {
	f := &fakeStore{
		tasks:    make(map[uuid.UUID]*types.Task),
		evidence: make(map[uuid.UUID][]types.EvidenceCard),
	}
	for _, task := range tasks {
		f.tasks[task.ID] = task
	}
	return f
}

func (f *fakeStore) TasksByStatus(_ context.Context, runID uuid.UUID, status types.TaskStatus) ([]types.Task, error) {
	var out []types.Task
	for _, task := range f.tasks {
		if task.RunID == runID && task.Status == status {
			out = append(out, *task)
		}
	}
	return out, nil
}

func (f *fakeStore) TransitionTask(_ context.Context, id uuid.UUID, from, to types.TaskStatus) error {
	task := f.tasks[id]
	if task == nil || task.Status != from || !types.CanTransition(from, to) {
		return &store.ErrIllegalTransition{TaskID: id, From: from, To: to}
	}
	task.Status = to
	return nil
}

func (f *fakeStore) EvidenceForTask(_ context.Context, taskID uuid.UUID) ([]types.EvidenceCard, error) {
	return f.evidence[taskID], nil
}

func (f *fakeStore) UpdateTaskDraft(_ context.Context, id uuid.UUID, body string, meta *types.ArticleMeta) error {
	f.tasks[id].GeneratedBody = body
	f.tasks[id].GeneratedMeta = meta
	return nil
}

func (f *fakeStore) PublishedSlugs(context.Context) ([]string, error) {
	return f.slugs, nil
}

type fakeCaller struct {
	responses []string
	calls     int
	requests  []llm.Request
}

func (f *fakeCaller) Call(_ context.Context, req llm.Request) (*llm.Result, error) {
	f.calls++
	f.requests = append(f.requests, req)
	content := f.responses[len(f.responses)-1]
	if f.calls <= len(f.responses) {
		content = f.responses[f.calls-1]
	}
	return &llm.Result{Content: content, InputTokens: 500, OutputTokens: 1000, CostUSD: 0.05}, nil
}

const validDraft = `{
	"title": "EU AI Act Compliance Guide",
	"metaTitle": "EU AI Act Guide",
	"metaDescription": "What the AI Act requires.",
	"excerpt": "A practical guide.",
	"body": "## Overview\nFull article body.",
	"tags": ["ai-act"],
	"category": "ai regulation"
}`

func plannedTask(runID uuid.UUID) *types.Task {
	return &types.Task{
		ID:              uuid.New(),
		RunID:           runID,
		Type:            types.TaskTypeGuide,
		Title:           "EU AI Act Compliance Guide",
		Slug:            "eu-ai-act-guide",
		Brief:           "Explain the obligations.",
		TargetKeywords:  []string{"eu ai act"},
		TargetWordCount: 1500,
		Status:          types.TaskPlanned,
	}
}

func TestRunWritesPlannedTask(t *testing.T) {
	runID := uuid.New()
	task := plannedTask(runID)
	fs := newFakeStore(task)
	caller := &fakeCaller{responses: []string{validDraft}}

	stage := NewStage(fs, caller, llm.NewUsageMeter(0), logger.Nop())
	result, err := stage.Run(context.Background(), runID, config.Defaults())
	require.NoError(t, err)

	assert.Equal(t, 1, result.ArticlesWritten)
	assert.Zero(t, result.Rewrites)
	assert.Equal(t, types.TaskInReview, task.Status)
	assert.Contains(t, task.GeneratedBody, "Full article body")
	require.NotNil(t, task.GeneratedMeta)
	assert.Equal(t, "EU AI Act Guide", task.GeneratedMeta.MetaTitle)
}

func TestRunRewriteCarriesFeedbackVerbatim(t *testing.T) {
	runID := uuid.New()
	task := plannedTask(runID)
	task.Status = types.TaskWriting
	task.QAFeedback = "The section on penalties misstates the fine ceiling."
	fs := newFakeStore(task)
	caller := &fakeCaller{responses: []string{validDraft}}

	stage := NewStage(fs, caller, llm.NewUsageMeter(0), logger.Nop())
	result, err := stage.Run(context.Background(), runID, config.Defaults())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Rewrites)
	assert.Equal(t, types.TaskInReview, task.Status)
	require.Len(t, caller.requests, 1)
	assert.Contains(t, caller.requests[0].User, "This is a REWRITE")
	assert.Contains(t, caller.requests[0].User, "misstates the fine ceiling")
}

func TestRunFreshWriteHasNoRewriteSection(t *testing.T) {
	runID := uuid.New()
	task := plannedTask(runID)
	fs := newFakeStore(task)
	caller := &fakeCaller{responses: []string{validDraft}}

	stage := NewStage(fs, caller, llm.NewUsageMeter(0), logger.Nop())
	_, err := stage.Run(context.Background(), runID, config.Defaults())
	require.NoError(t, err)

	assert.NotContains(t, caller.requests[0].User, "This is a REWRITE")
}

func TestRunParseRetryRaisesTemperature(t *testing.T) {
	runID := uuid.New()
	task := plannedTask(runID)
	fs := newFakeStore(task)
	caller := &fakeCaller{responses: []string{"garbage", `{"broken": true}`, validDraft}}

	cfg := config.Defaults()
	cfg.WriterTemperature = 0.7
	stage := NewStage(fs, caller, llm.NewUsageMeter(0), logger.Nop())
	result, err := stage.Run(context.Background(), runID, cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, result.ArticlesWritten)
	require.Equal(t, 3, caller.calls)
	assert.InDelta(t, 0.7, caller.requests[0].Temperature, 0.001)
	assert.InDelta(t, 0.85, caller.requests[1].Temperature, 0.001)
	assert.InDelta(t, 1.0, caller.requests[2].Temperature, 0.001)
}

func TestRunRejectsTaskAfterParseExhaustion(t *testing.T) {
	runID := uuid.New()
	task := plannedTask(runID)
	fs := newFakeStore(task)
	caller := &fakeCaller{responses: []string{"bad", "bad", "bad"}}

	stage := NewStage(fs, caller, llm.NewUsageMeter(0), logger.Nop())
	result, err := stage.Run(context.Background(), runID, config.Defaults())
	require.NoError(t, err)

	assert.Equal(t, types.TaskRejected, task.Status)
	assert.Zero(t, result.ArticlesWritten)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "writing", result.Errors[0].Stage)
	assert.Contains(t, result.Errors[0].Message, "after 3 attempts")
	assert.Equal(t, 3, caller.calls)
}

func TestRunStopsAtBudgetCeiling(t *testing.T) {
	runID := uuid.New()
	first := plannedTask(runID)
	second := plannedTask(runID)
	fs := newFakeStore(first, second)
	caller := &fakeCaller{responses: []string{validDraft}}

	meter := llm.NewUsageMeter(2.00)
	meter.Charge(0, 0, 2.50)

	stage := NewStage(fs, caller, meter, logger.Nop())
	result, err := stage.Run(context.Background(), runID, config.Defaults())
	require.NoError(t, err)

	assert.True(t, result.BudgetStopped)
	assert.Zero(t, caller.calls)
	assert.Equal(t, types.TaskPlanned, first.Status)
	assert.Equal(t, types.TaskPlanned, second.Status)
}

func TestRunIncludesExistingSlugsInPrompt(t *testing.T) {
	runID := uuid.New()
	task := plannedTask(runID)
	fs := newFakeStore(task)
	fs.slugs = []string{"gdpr-checklist", "soc2-primer"}
	caller := &fakeCaller{responses: []string{validDraft}}

	stage := NewStage(fs, caller, llm.NewUsageMeter(0), logger.Nop())
	_, err := stage.Run(context.Background(), runID, config.Defaults())
	require.NoError(t, err)

	assert.Contains(t, caller.requests[0].User, "gdpr-checklist")
	assert.Contains(t, caller.requests[0].User, "soc2-primer")
}
