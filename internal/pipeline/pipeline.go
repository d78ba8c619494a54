// Package pipeline contains the run coordinator: it owns the run lifecycle,
// sequences the stages, and enforces the budget ceiling between them.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
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

// ErrDisabled is returned when a run is triggered while the pipeline is
// switched off in settings.
var ErrDisabled = fmt.Errorf("pipeline is disabled")

// Store is the persistence surface the coordinator needs.
type Store interface {
	AllSettings(ctx context.Context) (map[string]string, error)
	CreateRun(ctx context.Context, triggeredBy string) (uuid.UUID, error)
	UpdateRunProgress(ctx context.Context, id uuid.UUID, counts types.RunCounts, totalTokens int, totalCostUSD float64) error
	FinalizeRun(ctx context.Context, id uuid.UUID, status types.RunStatus, errorLog []types.RunError) error
	GetRun(ctx context.Context, id uuid.UUID) (*types.Run, error)
}

// Stages bundles the five stage runners for one run.
type Stages struct {
	Research interface {
		Run(ctx context.Context, cfg config.Pipeline) (*research.Result, error)
	}
	Planning interface {
		Run(ctx context.Context, runID uuid.UUID, cfg config.Pipeline) (*planning.Result, error)
	}
	Writing interface {
		Run(ctx context.Context, runID uuid.UUID, cfg config.Pipeline) (*writing.Result, error)
	}
	QA interface {
		Run(ctx context.Context, runID uuid.UUID, cfg config.Pipeline) (*qa.Result, error)
	}
	Publishing interface {
		Run(ctx context.Context, runID uuid.UUID, cfg config.Pipeline) (*publishing.Result, error)
	}
}

// StageFactory builds the stage set for one run around its budget meter.
type StageFactory func(meter *llm.UsageMeter) Stages

// Coordinator drives runs end to end.
type Coordinator struct {
	store  Store
	stages StageFactory
	log    *zap.Logger
	now    func() time.Time
}

// New creates a coordinator wired to the real stages.
func New(st *store.Store, caller llm.Caller, log *zap.Logger) *Coordinator {
	fetcher := research.NewFetcher()
	return &Coordinator{
		store: st,
		stages: func(meter *llm.UsageMeter) Stages {
			return Stages{
				Research:   research.NewStage(st, fetcher, caller, meter, log),
				Planning:   planning.NewStage(st, caller, meter, log),
				Writing:    writing.NewStage(st, caller, meter, log),
				QA:         qa.NewStage(st, caller, meter, log),
				Publishing: publishing.NewStage(st, caller, meter, log),
			}
		},
		log: log,
		now: time.Now,
	}
}

// Execute creates a run and drives it to completion synchronously. The
// single-flight conflict and the disabled switch surface here, before any
// stage work.
func (c *Coordinator) Execute(ctx context.Context, triggeredBy string) (*types.Run, error) {
	cfg, err := c.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	runID, err := c.store.CreateRun(ctx, triggeredBy)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, runID, cfg)
}

func (c *Coordinator) loadConfig(ctx context.Context) (config.Pipeline, error) {
	settings, err := c.store.AllSettings(ctx)
	if err != nil {
		return config.Pipeline{}, fmt.Errorf("failed to load settings: %w", err)
	}
	cfg, err := config.FromSettings(settings)
	if err != nil {
		return config.Pipeline{}, err
	}
	if !cfg.Enabled {
		return config.Pipeline{}, ErrDisabled
	}
	return cfg, nil
}

// execute sequences the stages for an already-created run. A stage failure
// finalizes the run as FAILED; crossing the budget ceiling finalizes it as
// PARTIAL with whatever work completed.
func (c *Coordinator) execute(ctx context.Context, runID uuid.UUID, cfg config.Pipeline) (*types.Run, error) {
	c.log.Info("run started", zap.String("run", runID.String()))

	meter := llm.NewUsageMeter(cfg.BudgetLimitUSD)
	stages := c.stages(meter)

	var counts types.RunCounts
	var errLog []types.RunError
	budgetStopped := false

	fail := func(stage string, err error) (*types.Run, error) {
		errLog = append(errLog, types.RunError{
			Stage:   stage,
			Message: err.Error(),
			At:      c.now(),
		})
		c.progress(ctx, runID, counts, meter)
		if ferr := c.store.FinalizeRun(ctx, runID, types.RunFailed, errLog); ferr != nil {
			c.log.Error("failed to finalize run", zap.Error(ferr))
		}
		c.log.Error("run failed", zap.String("run", runID.String()),
			zap.String("stage", stage), zap.Error(err))
		return c.store.GetRun(ctx, runID)
	}

	researchResult, err := stages.Research.Run(ctx, cfg)
	if err != nil {
		return fail("research", err)
	}
	counts.SourcesResearched = researchResult.SourcesResearched
	errLog = append(errLog, researchResult.Errors...)
	c.progress(ctx, runID, counts, meter)

	planningResult, err := stages.Planning.Run(ctx, runID, cfg)
	if err != nil {
		return fail("planning", err)
	}
	counts.TasksPlanned = planningResult.TasksPlanned
	errLog = append(errLog, planningResult.Errors...)
	budgetStopped = planningResult.BudgetStopped
	c.progress(ctx, runID, counts, meter)

	// Write/review cycles continue until review stops sending drafts back.
	// The rewrite counter bounds each task, so the loop itself is bounded.
	rejected := 0
	for cycle := 0; !budgetStopped && cycle <= cfg.MaxRewriteAttempts; cycle++ {
		writingResult, err := stages.Writing.Run(ctx, runID, cfg)
		if err != nil {
			return fail("writing", err)
		}
		counts.ArticlesWritten += writingResult.ArticlesWritten
		errLog = append(errLog, writingResult.Errors...)
		if writingResult.BudgetStopped {
			budgetStopped = true
			break
		}

		qaResult, err := stages.QA.Run(ctx, runID, cfg)
		if err != nil {
			return fail("qa", err)
		}
		counts.ArticlesApproved += qaResult.Approved
		rejected += qaResult.Rejected
		errLog = append(errLog, qaResult.Errors...)
		c.progress(ctx, runID, counts, meter)
		if qaResult.BudgetStopped {
			budgetStopped = true
			break
		}
		if qaResult.SentToRewrite == 0 {
			break
		}
	}

	publishingResult, err := stages.Publishing.Run(ctx, runID, cfg)
	if err != nil {
		return fail("publishing", err)
	}
	counts.ArticlesPublished = publishingResult.Published
	errLog = append(errLog, publishingResult.Errors...)
	c.progress(ctx, runID, counts, meter)

	// COMPLETED is reserved for clean runs: a budget stop, a rejected task,
	// or any per-item error downgrades the run to PARTIAL.
	status := types.RunCompleted
	if budgetStopped || meter.Exceeded() || rejected > 0 || len(errLog) > 0 {
		status = types.RunPartial
	}
	if err := c.store.FinalizeRun(ctx, runID, status, errLog); err != nil {
		return nil, fmt.Errorf("failed to finalize run: %w", err)
	}

	tokens, cost := meter.Totals()
	c.log.Info("run finished",
		zap.String("run", runID.String()),
		zap.String("status", string(status)),
		zap.Int("published", counts.ArticlesPublished),
		zap.Int("tokens", tokens),
		zap.Float64("cost_usd", cost))
	return c.store.GetRun(ctx, runID)
}

func (c *Coordinator) progress(ctx context.Context, runID uuid.UUID, counts types.RunCounts, meter *llm.UsageMeter) {
	tokens, cost := meter.Totals()
	if err := c.store.UpdateRunProgress(ctx, runID, counts, tokens, cost); err != nil {
		c.log.Warn("failed to persist run progress", zap.Error(err))
	}
}
