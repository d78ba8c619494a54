package llm

// modelRate holds USD prices per million tokens.
type modelRate struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// modelRates is the fixed pricing table. Unknown models fall back to
// defaultRate, which is deliberately conservative.
var modelRates = map[string]modelRate{
	"gemini-2.5-flash-lite": {InputPerMillion: 0.10, OutputPerMillion: 0.40},
	"gemini-2.5-flash":      {InputPerMillion: 0.30, OutputPerMillion: 2.50},
	"gemini-2.5-pro":        {InputPerMillion: 1.25, OutputPerMillion: 10.00},
}

var defaultRate = modelRate{InputPerMillion: 1.00, OutputPerMillion: 4.00}

// EstimateCost converts token counts to an estimated dollar cost for a model.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	rate, ok := modelRates[model]
	if !ok {
		rate = defaultRate
	}
	in := float64(inputTokens) / 1_000_000 * rate.InputPerMillion
	out := float64(outputTokens) / 1_000_000 * rate.OutputPerMillion
	return in + out
}
