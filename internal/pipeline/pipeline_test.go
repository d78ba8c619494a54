package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/content-pipeline/internal/config"
	"github.com/jonathan/content-pipeline/internal/llm"
	"github.com/jonathan/content-pipeline/internal/planning"
	"github.com/jonathan/content-pipeline/internal/publishing"
	"github.com/jonathan/content-pipeline/internal/qa"
	"github.com/jonathan/content-pipeline/internal/research"
	"github.com/jonathan/content-pipeline/internal/store"
	"github.com/jonathan/content-pipeline/internal/types"
	"github.com/jonathan/content-pipeline/internal/writing"
)

type fakeStore struct {
	settings   map[string]string
	run        *types.Run
	createErr  error
	progresses int
}

func newFakeStore() *fakeStore {
	return &fakeStore{settings: map[string]string{}}
}

func (f *fakeStore) AllSettings(context.Context) (map[string]string, error) {
	return f.settings, nil
}

func (f *fakeStore) CreateRun(_ context.Context, triggeredBy string) (uuid.UUID, error) {
	if f.createErr != nil {
		return uuid.Nil, f.createErr
	}
	f.run = &types.Run{
		ID:          uuid.New(),
		Status:      types.RunRunning,
		StartedAt:   time.Now(),
		TriggeredBy: triggeredBy,
	}
	return f.run.ID, nil
}

func (f *fakeStore) UpdateRunProgress(_ context.Context, _ uuid.UUID, counts types.RunCounts, tokens int, cost float64) error {
	f.progresses++
	f.run.Counts = counts
	f.run.TotalTokensUsed = tokens
	f.run.TotalCostUSD = cost
	return nil
}

func (f *fakeStore) FinalizeRun(_ context.Context, _ uuid.UUID, status types.RunStatus, errorLog []types.RunError) error {
	f.run.Status = status
	f.run.ErrorLog = errorLog
	return nil
}

func (f *fakeStore) GetRun(context.Context, uuid.UUID) (*types.Run, error) {
	return f.run, nil
}

type fakeStages struct {
	researchResult   *research.Result
	researchErr      error
	planningResult   *planning.Result
	writingResults   []*writing.Result
	writingCalls     int
	qaResults        []*qa.Result
	qaCalls          int
	publishingResult *publishing.Result
	charge           func(meter *llm.UsageMeter)
	meter            *llm.UsageMeter
}

func (f *fakeStages) Run(ctx context.Context, cfg config.Pipeline) (*research.Result, error) {
	if f.charge != nil {
		f.charge(f.meter)
	}
	if f.researchErr != nil {
		return nil, f.researchErr
	}
	return f.researchResult, nil
}

type planningRunner struct{ f *fakeStages }

func (p planningRunner) Run(context.Context, uuid.UUID, config.Pipeline) (*planning.Result, error) {
	return p.f.planningResult, nil
}

type writingRunner struct{ f *fakeStages }

func (w writingRunner) Run(context.Context, uuid.UUID, config.Pipeline) (*writing.Result, error) {
	result := w.f.writingResults[len(w.f.writingResults)-1]
	if w.f.writingCalls < len(w.f.writingResults) {
		result = w.f.writingResults[w.f.writingCalls]
	}
	w.f.writingCalls++
	return result, nil
}

type qaRunner struct{ f *fakeStages }

func (q qaRunner) Run(context.Context, uuid.UUID, config.Pipeline) (*qa.Result, error) {
	result := q.f.qaResults[len(q.f.qaResults)-1]
	if q.f.qaCalls < len(q.f.qaResults) {
		result = q.f.qaResults[q.f.qaCalls]
	}
	q.f.qaCalls++
	return result, nil
}

type publishingRunner struct{ f *fakeStages }

func (p publishingRunner) Run(context.Context, uuid.UUID, config.Pipeline) (*publishing.Result, error) {
	return p.f.publishingResult, nil
}

func newCoordinator(fs *fakeStore, stages *fakeStages) *Coordinator {
	return &Coordinator{
		store: fs,
		stages: func(meter *llm.UsageMeter) Stages {
			stages.meter = meter
			return Stages{
				Research:   stages,
				Planning:   planningRunner{stages},
				Writing:    writingRunner{stages},
				QA:         qaRunner{stages},
				Publishing: publishingRunner{stages},
			}
		},
		log: zap.NewNop(),
		now: time.Now,
	}
}

func happyStages() *fakeStages {
	return &fakeStages{
		researchResult:   &research.Result{SourcesResearched: 4, CardsCreated: 9},
		planningResult:   &planning.Result{TasksPlanned: 3},
		writingResults:   []*writing.Result{{ArticlesWritten: 3}},
		qaResults:        []*qa.Result{{Approved: 3}},
		publishingResult: &publishing.Result{Published: 3, SocialDrafts: 6},
	}
}

func TestExecuteCompletedRun(t *testing.T) {
	fs := newFakeStore()
	coordinator := newCoordinator(fs, happyStages())

	run, err := coordinator.Execute(context.Background(), "manual")
	require.NoError(t, err)

	assert.Equal(t, types.RunCompleted, run.Status)
	assert.Equal(t, 4, run.Counts.SourcesResearched)
	assert.Equal(t, 3, run.Counts.TasksPlanned)
	assert.Equal(t, 3, run.Counts.ArticlesWritten)
	assert.Equal(t, 3, run.Counts.ArticlesApproved)
	assert.Equal(t, 3, run.Counts.ArticlesPublished)
	assert.Equal(t, "manual", run.TriggeredBy)
	assert.Greater(t, fs.progresses, 0)
}

func TestExecuteRewriteCycle(t *testing.T) {
	fs := newFakeStore()
	stages := happyStages()
	stages.writingResults = []*writing.Result{
		{ArticlesWritten: 3},
		{ArticlesWritten: 1, Rewrites: 1},
	}
	stages.qaResults = []*qa.Result{
		{Approved: 2, SentToRewrite: 1},
		{Approved: 1},
	}
	coordinator := newCoordinator(fs, stages)

	run, err := coordinator.Execute(context.Background(), "manual")
	require.NoError(t, err)

	assert.Equal(t, types.RunCompleted, run.Status)
	assert.Equal(t, 2, stages.writingCalls)
	assert.Equal(t, 2, stages.qaCalls)
	assert.Equal(t, 4, run.Counts.ArticlesWritten)
	assert.Equal(t, 3, run.Counts.ArticlesApproved)
}

func TestExecuteStageFailureFinalizesFailed(t *testing.T) {
	fs := newFakeStore()
	stages := happyStages()
	stages.researchErr = fmt.Errorf("database gone")
	coordinator := newCoordinator(fs, stages)

	run, err := coordinator.Execute(context.Background(), "manual")
	require.NoError(t, err)

	assert.Equal(t, types.RunFailed, run.Status)
	require.NotEmpty(t, run.ErrorLog)
	assert.Equal(t, "research", run.ErrorLog[0].Stage)
	assert.Contains(t, run.ErrorLog[0].Message, "database gone")
}

func TestExecuteBudgetCrossingFinalizesPartial(t *testing.T) {
	fs := newFakeStore()
	fs.settings["budgetLimitUsd"] = "5.00"
	stages := happyStages()
	// Research spends 4.90, a later call adds 0.22: total 5.12 crosses the
	// 5.00 ceiling so the run ends PARTIAL.
	stages.charge = func(meter *llm.UsageMeter) {
		meter.Charge(1000, 500, 4.90)
		meter.Charge(400, 200, 0.22)
	}
	stages.writingResults = []*writing.Result{{BudgetStopped: true}}
	coordinator := newCoordinator(fs, stages)

	run, err := coordinator.Execute(context.Background(), "manual")
	require.NoError(t, err)

	assert.Equal(t, types.RunPartial, run.Status)
	assert.InDelta(t, 5.12, run.TotalCostUSD, 0.001)
	assert.Equal(t, 2100, run.TotalTokensUsed)
}

func TestExecuteDisabledPipeline(t *testing.T) {
	fs := newFakeStore()
	fs.settings["enabled"] = "false"
	coordinator := newCoordinator(fs, happyStages())

	_, err := coordinator.Execute(context.Background(), "manual")
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Nil(t, fs.run)
}

func TestExecuteSurfacesRunConflict(t *testing.T) {
	fs := newFakeStore()
	inFlight := uuid.New()
	fs.createErr = &store.ErrRunInFlight{RunID: inFlight}
	coordinator := newCoordinator(fs, happyStages())

	_, err := coordinator.Execute(context.Background(), "api")
	var conflict *store.ErrRunInFlight
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, inFlight, conflict.RunID)
}

func TestExecuteItemErrorsFinalizePartialNotFailed(t *testing.T) {
	fs := newFakeStore()
	stages := happyStages()
	stages.researchResult.Errors = []types.RunError{
		{Stage: "research", Message: "source timed out", At: time.Now()},
	}
	coordinator := newCoordinator(fs, stages)

	run, err := coordinator.Execute(context.Background(), "manual")
	require.NoError(t, err)

	// Item-level failures never escalate to FAILED, but the run is no longer
	// clean either.
	assert.Equal(t, types.RunPartial, run.Status)
	require.Len(t, run.ErrorLog, 1)
	assert.Equal(t, "source timed out", run.ErrorLog[0].Message)
	assert.Equal(t, 3, run.Counts.ArticlesPublished)
}

func TestExecuteRejectedTaskFinalizesPartial(t *testing.T) {
	fs := newFakeStore()
	stages := happyStages()
	stages.writingResults = []*writing.Result{{ArticlesWritten: 2}}
	stages.qaResults = []*qa.Result{{Approved: 1, Rejected: 1}}
	stages.publishingResult = &publishing.Result{Published: 1, SocialDrafts: 2}
	coordinator := newCoordinator(fs, stages)

	run, err := coordinator.Execute(context.Background(), "manual")
	require.NoError(t, err)

	assert.Equal(t, types.RunPartial, run.Status)
	assert.Equal(t, 1, run.Counts.ArticlesApproved)
	assert.Equal(t, 1, run.Counts.ArticlesPublished)
}

func TestExecutePlanningBudgetStopSkipsWriting(t *testing.T) {
	fs := newFakeStore()
	stages := happyStages()
	stages.planningResult = &planning.Result{BudgetStopped: true}
	stages.publishingResult = &publishing.Result{}
	coordinator := newCoordinator(fs, stages)

	run, err := coordinator.Execute(context.Background(), "manual")
	require.NoError(t, err)

	assert.Equal(t, types.RunPartial, run.Status)
	assert.Zero(t, stages.writingCalls)
	assert.Zero(t, stages.qaCalls)
}
