// Package llm provides the model gateway: the single chokepoint for all remote
// language-model calls, owning retry/backoff, token accounting and cost.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Request describes one model invocation.
type Request struct {
	System      string
	User        string
	Model       string
	Temperature float32
	MaxTokens   int32
	// Structured asks the provider for a JSON response body.
	Structured bool
}

// Response is the raw provider result for a single attempt.
type Response struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Client is an abstraction over LLM providers.
type Client interface {
	// Generate performs a single generation attempt with no retry.
	Generate(ctx context.Context, req Request) (*Response, error)
	// Probe performs a lightweight connectivity check.
	Probe(ctx context.Context) error
	// Close releases any resources held by the client.
	Close() error
}

// GeminiClient implements Client for Google Gemini.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{client: client}, nil
}

// Generate performs a single generation attempt.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (*Response, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("no model specified")
	}

	model := c.client.GenerativeModel(req.Model)
	model.SetTemperature(req.Temperature)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if req.Structured {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.User))
	if err != nil {
		return nil, err
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return nil, err
	}

	out := &Response{Content: text}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// Probe performs a minimal CountTokens call to verify connectivity and
// credentials without generating content.
func (c *GeminiClient) Probe(ctx context.Context) error {
	model := c.client.GenerativeModel("gemini-2.5-flash-lite")
	if _, err := model.CountTokens(ctx, genai.Text("ping")); err != nil {
		return fmt.Errorf("gateway probe failed: %w", err)
	}
	return nil
}

// Close releases resources held by the client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// extractTextFromResponse extracts text from a Gemini API response.
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
