package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

const (
	maxAttempts      = 3
	baseBackoffDelay = 500 * time.Millisecond
)

// Result is the gateway's accounted response for one call.
type Result struct {
	Content      string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// Caller is the interface stages use to reach the model.
type Caller interface {
	Call(ctx context.Context, req Request) (*Result, error)
}

// AuthError indicates the remote model rejected our credentials. It is never
// retried and is treated as a configuration error.
type AuthError struct {
	Cause error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("model authentication failed: %v", e.Cause)
}

func (e *AuthError) Unwrap() error { return e.Cause }

// ExhaustedError indicates all retry attempts failed on transient errors.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gateway exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Gateway wraps a provider client with retry/backoff and cost accounting.
// Callers are responsible for persisting the usage it reports.
type Gateway struct {
	client Client
	log    *zap.Logger
	// sleep is swappable in tests.
	sleep func(time.Duration)
}

// NewGateway creates a gateway around a provider client.
func NewGateway(client Client, log *zap.Logger) *Gateway {
	return &Gateway{client: client, log: log, sleep: time.Sleep}
}

// Call issues the request with up to maxAttempts attempts. Transient failures
// back off exponentially; auth failures surface immediately.
func (g *Gateway) Call(ctx context.Context, req Request) (*Result, error) {
	delay := baseBackoffDelay
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := g.client.Generate(ctx, req)
		if err == nil {
			return &Result{
				Content:      resp.Content,
				InputTokens:  resp.InputTokens,
				OutputTokens: resp.OutputTokens,
				CostUSD:      EstimateCost(req.Model, resp.InputTokens, resp.OutputTokens),
			}, nil
		}

		if isAuthError(err) {
			return nil, &AuthError{Cause: err}
		}
		if !isRetryable(err) {
			return nil, fmt.Errorf("model call failed: %w", err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		g.log.Warn("model call failed, retrying",
			zap.String("model", req.Model),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt < maxAttempts {
			g.sleep(delay)
			delay *= 2
		}
	}

	return nil, &ExhaustedError{Attempts: maxAttempts, Last: lastErr}
}

// Probe checks connectivity to the provider.
func (g *Gateway) Probe(ctx context.Context) error {
	return g.client.Probe(ctx)
}

// isAuthError reports whether the provider rejected our credentials.
func isAuthError(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden
	}
	return false
}

// isRetryable reports whether the failure is transient. Server-side errors and
// transport failures retry; other API rejections do not.
func isRetryable(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 500 || apiErr.Code == http.StatusTooManyRequests
	}
	// No structured status: assume a transport failure.
	return true
}
