package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/content-pipeline/internal/llm"
	"github.com/jonathan/content-pipeline/internal/prompts"
	"github.com/jonathan/content-pipeline/internal/schemas"
	"github.com/jonathan/content-pipeline/internal/types"
)

// minRelevance is the floor below which an extracted card is discarded.
const minRelevance = 0.4

// scoreStructuredItem computes a relevance score for a feed entry without a
// model call. The score is the source's reliability weighted by how much of
// the source category's vocabulary appears in the item text.
func scoreStructuredItem(source types.Source, item Item) float64 {
	keywords := strings.Fields(strings.ToLower(source.Category))
	if len(keywords) == 0 {
		return source.Reliability * 0.3
	}

	text := strings.ToLower(item.Title + " " + item.Summary + " " + item.Content)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			matched++
		}
	}
	ratio := float64(matched) / float64(len(keywords))
	score := source.Reliability * (0.3 + 0.7*ratio)
	if score > 1 {
		score = 1
	}
	return score
}

// cardFromStructuredItem builds a card from a feed entry directly. Feed
// entries already carry a title and summary, so no model call is spent.
func cardFromStructuredItem(source types.Source, item Item, now time.Time, expiry time.Duration) *types.EvidenceCard {
	summary := item.Summary
	if summary == "" {
		summary = truncate(item.Content, 400)
	}
	return &types.EvidenceCard{
		SourceID:       source.ID,
		Title:          item.Title,
		Summary:        summary,
		KeyFindings:    nil,
		RelevanceScore: scoreStructuredItem(source, item),
		CreatedAt:      now,
		ExpiresAt:      now.Add(expiry),
	}
}

// extraction mirrors the model's evidence contract.
type extraction struct {
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	KeyFindings    []string `json:"keyFindings"`
	RelevanceScore float64  `json:"relevanceScore"`
}

// extractWithModel asks the model to distill an unstructured item into a
// card. The model's relevance judgement is weighted by the source's
// reliability so a flaky source cannot dominate the evidence pool.
func extractWithModel(ctx context.Context, caller llm.Caller, meter *llm.UsageMeter,
	source types.Source, item Item, model string, now time.Time, expiry time.Duration) (*types.EvidenceCard, error) {

	user := prompts.Format(prompts.MustGet("research.json", "extract-evidence"), map[string]string{
		"SourceName": source.Name,
		"Category":   source.Category,
		"Content":    item.Title + "\n\n" + item.Content,
	})

	result, err := caller.Call(ctx, llm.Request{
		System:     prompts.MustGet("research.json", "system"),
		User:       user,
		Model:      model,
		MaxTokens:  1024,
		Structured: true,
	})
	if err != nil {
		return nil, err
	}
	meter.Charge(result.InputTokens, result.OutputTokens, result.CostUSD)

	var out extraction
	if err := schemas.Decode(schemas.ResearchExtraction, result.Content, &out); err != nil {
		return nil, fmt.Errorf("evidence extraction rejected: %w", err)
	}

	return &types.EvidenceCard{
		SourceID:       source.ID,
		Title:          out.Title,
		Summary:        out.Summary,
		KeyFindings:    out.KeyFindings,
		RelevanceScore: out.RelevanceScore * source.Reliability,
		CreatedAt:      now,
		ExpiresAt:      now.Add(expiry),
	}, nil
}
