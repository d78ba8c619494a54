// Package research implements the first pipeline stage: fetching active
// sources and distilling their items into scored evidence cards.
package research

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/content-pipeline/internal/config"
	"github.com/jonathan/content-pipeline/internal/llm"
	"github.com/jonathan/content-pipeline/internal/types"
)

// sourceWorkers bounds concurrent source fetches.
const sourceWorkers = 4

// Store is the persistence surface the research stage needs.
type Store interface {
	StalestActiveSources(ctx context.Context, limit int) ([]types.Source, error)
	TouchSourceFetched(ctx context.Context, id uuid.UUID, at time.Time) error
	InsertEvidenceCard(ctx context.Context, card *types.EvidenceCard) error
	SweepExpiredEvidence(ctx context.Context, now time.Time) (int, error)
}

// Result summarizes one research pass.
type Result struct {
	SourcesResearched int
	CardsCreated      int
	Errors            []types.RunError
}

// Stage fetches sources and produces evidence cards.
type Stage struct {
	store   Store
	fetcher ItemFetcher
	caller  llm.Caller
	meter   *llm.UsageMeter
	log     *zap.Logger
	now     func() time.Time
}

// NewStage creates a research stage.
func NewStage(store Store, fetcher ItemFetcher, caller llm.Caller, meter *llm.UsageMeter, log *zap.Logger) *Stage {
	return &Stage{
		store:   store,
		fetcher: fetcher,
		caller:  caller,
		meter:   meter,
		log:     log,
		now:     time.Now,
	}
}

// Run fetches the stalest active sources and stores every card that clears
// the relevance floor. A failing source is recorded and skipped; it never
// aborts the pass. Expired unused cards are swept first.
func (s *Stage) Run(ctx context.Context, cfg config.Pipeline) (*Result, error) {
	now := s.now()
	expiry := time.Duration(cfg.EvidenceExpiryDays) * 24 * time.Hour

	swept, err := s.store.SweepExpiredEvidence(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("evidence sweep failed: %w", err)
	}
	if swept > 0 {
		s.log.Info("swept expired evidence", zap.Int("cards", swept))
	}

	sources, err := s.store.StalestActiveSources(ctx, cfg.ResearchSourceLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}

	var (
		mu     sync.Mutex
		result Result
	)
	record := func(source types.Source, err error) {
		mu.Lock()
		defer mu.Unlock()
		result.Errors = append(result.Errors, types.RunError{
			Stage:   "research",
			Message: err.Error(),
			ItemID:  source.ID.String(),
			At:      s.now(),
		})
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(sourceWorkers)

	for _, source := range sources {
		source := source
		group.Go(func() error {
			cards, err := s.processSource(gctx, source, cfg, now, expiry)

			// The fetch time is recorded even on failure so a broken
			// source rotates to the back of the staleness order.
			if terr := s.store.TouchSourceFetched(gctx, source.ID, s.now()); terr != nil {
				s.log.Warn("failed to record source fetch time",
					zap.String("source", source.Name), zap.Error(terr))
			}

			if err != nil {
				s.log.Warn("source failed",
					zap.String("source", source.Name), zap.Error(err))
				record(source, err)
				return nil
			}

			mu.Lock()
			result.SourcesResearched++
			result.CardsCreated += cards
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.log.Info("research pass complete",
		zap.Int("sources", result.SourcesResearched),
		zap.Int("cards", result.CardsCreated),
		zap.Int("failed_sources", len(result.Errors)))
	return &result, nil
}

// processSource fetches one source and stores its qualifying cards, returning
// how many were created.
func (s *Stage) processSource(ctx context.Context, source types.Source, cfg config.Pipeline, now time.Time, expiry time.Duration) (int, error) {
	items, err := s.fetcher.FetchItems(ctx, source)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, item := range items {
		var card *types.EvidenceCard
		if item.Structured {
			card = cardFromStructuredItem(source, item, now, expiry)
		} else {
			if !s.meter.Allow() {
				s.log.Info("budget ceiling reached, skipping model extraction",
					zap.String("source", source.Name))
				break
			}
			card, err = extractWithModel(ctx, s.caller, s.meter, source, item,
				cfg.ResearchModel, now, expiry)
			if err != nil {
				return created, err
			}
		}

		if card.RelevanceScore < minRelevance {
			continue
		}
		if err := s.store.InsertEvidenceCard(ctx, card); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
