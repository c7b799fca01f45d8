package tokens

import "sync"

// PriceTable maps a model name to its per-1k-token input/output prices.
// Unknown models contribute zero cost.
type PriceTable interface {
	// Cost computes the dollar cost of inputTokens/outputTokens for model.
	// known is false when model has no price table entry.
	Cost(model string, inputTokens, outputTokens int) (cost float64, known bool)
}

// price holds one model's per-1k-token rates.
type price struct {
	InputPer1K  float64
	OutputPer1K float64
}

// StaticPriceTable is a fixed, in-memory model -> price map, safe for
// concurrent reads and for the rare runtime update (a configured
// override supplied at startup).
type StaticPriceTable struct {
	mu     sync.RWMutex
	prices map[string]price
}

// DefaultPriceTable returns the built-in price table, covering the model
// families the provider implementations (pkg/model/provider)
// target. Prices are nominal placeholders for cost bookkeeping, not a
// pricing guarantee.
func DefaultPriceTable() *StaticPriceTable {
	return &StaticPriceTable{
		prices: map[string]price{
			"gpt-4o":                 {InputPer1K: 0.0025, OutputPer1K: 0.010},
			"gpt-4o-mini":            {InputPer1K: 0.00015, OutputPer1K: 0.0006},
			"claude-3-5-sonnet":      {InputPer1K: 0.003, OutputPer1K: 0.015},
			"claude-3-5-haiku":       {InputPer1K: 0.0008, OutputPer1K: 0.004},
			"gemini-1.5-pro":         {InputPer1K: 0.00125, OutputPer1K: 0.005},
			"gemini-1.5-flash":       {InputPer1K: 0.000075, OutputPer1K: 0.0003},
			"text-embedding-3-small": {InputPer1K: 0.00002, OutputPer1K: 0},
			"text-embedding-3-large": {InputPer1K: 0.00013, OutputPer1K: 0},
		},
	}
}

// WithPrice overrides or adds one model's price entry, used when a
// configured model isn't in DefaultPriceTable.
func (pt *StaticPriceTable) WithPrice(model string, inputPer1K, outputPer1K float64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.prices[model] = price{InputPer1K: inputPer1K, OutputPer1K: outputPer1K}
}

func (pt *StaticPriceTable) Cost(model string, inputTokens, outputTokens int) (float64, bool) {
	pt.mu.RLock()
	p, ok := pt.prices[model]
	pt.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return float64(inputTokens)/1000*p.InputPer1K + float64(outputTokens)/1000*p.OutputPer1K, true
}
