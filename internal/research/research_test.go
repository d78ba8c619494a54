package research

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/content-pipeline/internal/config"
	"github.com/jonathan/content-pipeline/internal/llm"
	"github.com/jonathan/content-pipeline/internal/types"
	"github.com/jonathan/content-pipeline/pkg/logger"
)

type fakeStore struct {
	mu      sync.Mutex
	sources []types.Source
	cards   []types.EvidenceCard
	touched map[uuid.UUID]bool
}

func newFakeStore(sources ...types.Source) *fakeStore {
	return &fakeStore{sources: sources, touched: make(map[uuid.UUID]bool)}
}

func (f *fakeStore) StalestActiveSources(_ context.Context, limit int) ([]types.Source, error) {
	if len(f.sources) > limit {
		return f.sources[:limit], nil
	}
	return f.sources, nil
}

func (f *fakeStore) TouchSourceFetched(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[id] = true
	return nil
}

func (f *fakeStore) InsertEvidenceCard(_ context.Context, card *types.EvidenceCard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards = append(f.cards, *card)
	return nil
}

func (f *fakeStore) SweepExpiredEvidence(context.Context, time.Time) (int, error) {
	return 0, nil
}

type fakeFetcher struct {
	items map[uuid.UUID][]Item
	errs  map[uuid.UUID]error
}

func (f *fakeFetcher) FetchItems(_ context.Context, source types.Source) ([]Item, error) {
	if err := f.errs[source.ID]; err != nil {
		return nil, err
	}
	return f.items[source.ID], nil
}

type fakeCaller struct {
	content string
	err     error
	calls   int
}

func (f *fakeCaller) Call(context.Context, llm.Request) (*llm.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Result{Content: f.content, InputTokens: 100, OutputTokens: 50, CostUSD: 0.01}, nil
}

func testSource(kind types.SourceKind, category string, reliability float64) types.Source {
	return types.Source{
		ID:          uuid.New(),
		Name:        "test source",
		URL:         "https://example.com",
		Kind:        kind,
		Category:    category,
		IsActive:    true,
		Reliability: reliability,
	}
}

func TestScoreStructuredItem(t *testing.T) {
	source := testSource(types.SourceFeed, "data privacy", 1.0)

	full := scoreStructuredItem(source, Item{
		Title:   "Data privacy ruling",
		Summary: "A major data privacy decision.",
	})
	assert.InDelta(t, 1.0, full, 0.001)

	none := scoreStructuredItem(source, Item{
		Title:   "Quarterly earnings call",
		Summary: "Revenue grew 4 percent.",
	})
	assert.InDelta(t, 0.3, none, 0.001)

	// Reliability scales the whole score down.
	source.Reliability = 0.5
	half := scoreStructuredItem(source, Item{Title: "Data privacy ruling", Summary: "data privacy"})
	assert.InDelta(t, 0.5, half, 0.001)
}

func TestRunStoresOnlyRelevantCards(t *testing.T) {
	source := testSource(types.SourceFeed, "data privacy", 1.0)
	store := newFakeStore(source)
	fetcher := &fakeFetcher{items: map[uuid.UUID][]Item{
		source.ID: {
			{Title: "Data privacy ruling", Summary: "data privacy decision", Structured: true},
			{Title: "Sports scores", Summary: "last night's results", Structured: true},
		},
	}}

	stage := NewStage(store, fetcher, &fakeCaller{}, llm.NewUsageMeter(0), logger.Nop())
	result, err := stage.Run(context.Background(), config.Defaults())
	require.NoError(t, err)

	assert.Equal(t, 1, result.SourcesResearched)
	assert.Equal(t, 1, result.CardsCreated)
	require.Len(t, store.cards, 1)
	assert.Equal(t, "Data privacy ruling", store.cards[0].Title)
	assert.GreaterOrEqual(t, store.cards[0].RelevanceScore, 0.4)
}

func TestRunFailingSourceDoesNotAbortPass(t *testing.T) {
	bad := testSource(types.SourceFeed, "compliance", 0.9)
	good := testSource(types.SourceFeed, "compliance", 0.9)
	store := newFakeStore(bad, good)
	fetcher := &fakeFetcher{
		items: map[uuid.UUID][]Item{
			good.ID: {{Title: "Compliance update", Summary: "compliance news", Structured: true}},
		},
		errs: map[uuid.UUID]error{bad.ID: fmt.Errorf("connection refused")},
	}

	stage := NewStage(store, fetcher, &fakeCaller{}, llm.NewUsageMeter(0), logger.Nop())
	result, err := stage.Run(context.Background(), config.Defaults())
	require.NoError(t, err)

	assert.Equal(t, 1, result.SourcesResearched)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "research", result.Errors[0].Stage)
	assert.Equal(t, bad.ID.String(), result.Errors[0].ItemID)

	// Both sources were touched, including the failing one.
	assert.True(t, store.touched[bad.ID])
	assert.True(t, store.touched[good.ID])
}

func TestRunModelExtractionForUnstructuredItems(t *testing.T) {
	source := testSource(types.SourceSite, "ai regulation", 0.8)
	store := newFakeStore(source)
	fetcher := &fakeFetcher{items: map[uuid.UUID][]Item{
		source.ID: {{Title: "EU AI office briefing", Content: "long scraped prose"}},
	}}
	caller := &fakeCaller{content: `{
		"title": "AI office briefing",
		"summary": "The AI office outlined enforcement priorities.",
		"keyFindings": ["codes of practice due Q4"],
		"relevanceScore": 0.9
	}`}

	stage := NewStage(store, fetcher, caller, llm.NewUsageMeter(0), logger.Nop())
	result, err := stage.Run(context.Background(), config.Defaults())
	require.NoError(t, err)

	assert.Equal(t, 1, caller.calls)
	require.Len(t, store.cards, 1)
	// Model score weighted by source reliability.
	assert.InDelta(t, 0.72, store.cards[0].RelevanceScore, 0.001)
	assert.Equal(t, []string{"codes of practice due Q4"}, store.cards[0].KeyFindings)
	assert.Equal(t, 1, result.CardsCreated)
}

func TestRunSkipsModelCallsOverBudget(t *testing.T) {
	source := testSource(types.SourceSite, "compliance", 0.9)
	store := newFakeStore(source)
	fetcher := &fakeFetcher{items: map[uuid.UUID][]Item{
		source.ID: {{Title: "Scraped item", Content: "prose"}},
	}}
	caller := &fakeCaller{}

	meter := llm.NewUsageMeter(1.00)
	meter.Charge(0, 0, 1.50)

	stage := NewStage(store, fetcher, caller, meter, logger.Nop())
	result, err := stage.Run(context.Background(), config.Defaults())
	require.NoError(t, err)

	assert.Zero(t, caller.calls)
	assert.Zero(t, result.CardsCreated)
}

func TestRunExpirySetFromConfig(t *testing.T) {
	source := testSource(types.SourceFeed, "compliance", 1.0)
	store := newFakeStore(source)
	fetcher := &fakeFetcher{items: map[uuid.UUID][]Item{
		source.ID: {{Title: "Compliance deadline", Summary: "compliance dates", Structured: true}},
	}}

	stage := NewStage(store, fetcher, &fakeCaller{}, llm.NewUsageMeter(0), logger.Nop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stage.now = func() time.Time { return now }

	cfg := config.Defaults()
	cfg.EvidenceExpiryDays = 3
	_, err := stage.Run(context.Background(), cfg)
	require.NoError(t, err)

	require.Len(t, store.cards, 1)
	assert.Equal(t, now.Add(72*time.Hour), store.cards[0].ExpiresAt)
}
