// Package cost maps provider token usage to an estimated USD amount.
package cost

// Rate holds a provider's prices in USD per one million tokens.
type Rate struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

type Table struct {
	rates    map[string]Rate
	fallback Rate
}

// DefaultTable returns the rate table for the configured providers.
func DefaultTable() *Table {
	return NewTable(map[string]Rate{
		"deepseek": {InputPerMTok: 0.14, OutputPerMTok: 0.28},
		"gemini":   {InputPerMTok: 3.5, OutputPerMTok: 10.5},
		"openai":   {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	})
}

// NewTable builds a table; the cheapest configured rate doubles as the
// fallback for unknown providers so estimates never come back zero.
func NewTable(rates map[string]Rate) *Table {
	t := &Table{rates: make(map[string]Rate, len(rates))}
	first := true
	for name, r := range rates {
		t.rates[name] = r
		if first || r.OutputPerMTok < t.fallback.OutputPerMTok {
			t.fallback = r
			first = false
		}
	}
	return t
}

// Estimate computes the cost of a generation. The output rate is applied to
// the total token count; usage is not split into input/output halves. This is
// a deliberate blended-rate approximation, not precise billing.
func (t *Table) Estimate(provider string, totalTokens int) float64 {
	rate, ok := t.rates[provider]
	if !ok {
		rate = t.fallback
	}
	return float64(totalTokens) / 1_000_000 * rate.OutputPerMTok
}
