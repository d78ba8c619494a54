package llm

import "sync"

// UsageMeter accumulates token and cost totals for a run and answers whether
// new task-level work may start under the budget ceiling. In-flight calls are
// never interrupted; the meter is only consulted between items.
type UsageMeter struct {
	mu          sync.Mutex
	limitUSD    float64
	totalTokens int
	totalCost   float64
}

// NewUsageMeter creates a meter with the given budget ceiling. A non-positive
// limit disables the ceiling.
func NewUsageMeter(limitUSD float64) *UsageMeter {
	return &UsageMeter{limitUSD: limitUSD}
}

// Charge records usage from one completed call.
func (m *UsageMeter) Charge(inputTokens, outputTokens int, costUSD float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalTokens += inputTokens + outputTokens
	m.totalCost += costUSD
}

// Allow reports whether new work may start. False once the ceiling is crossed.
func (m *UsageMeter) Allow() bool {
	return !m.Exceeded()
}

// Exceeded reports whether accumulated cost has crossed the ceiling.
func (m *UsageMeter) Exceeded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limitUSD > 0 && m.totalCost > m.limitUSD
}

// Totals returns accumulated tokens and cost.
func (m *UsageMeter) Totals() (tokens int, costUSD float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalTokens, m.totalCost
}
