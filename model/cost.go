package model

import (
	"sort"
	"sync"

	"github.com/randalmurphal/esdiag/provider"
)

// Usage tracks token usage for a model.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	Requests     int `json:"requests"`
}

// Add adds the given usage to this usage.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.Requests += other.Requests
}

// TotalTokens returns the total tokens used.
func (u *Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// Pricing holds per-million-token pricing for a model.
type Pricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Cost returns the estimated cost of u at these prices.
func (p Pricing) Cost(u Usage) float64 {
	return float64(u.InputTokens)/1_000_000*p.InputPerMillion +
		float64(u.OutputTokens)/1_000_000*p.OutputPerMillion
}

// Prices contains list pricing in USD for commonly configured models.
var Prices = map[string]Pricing{
	"deepseek-r1-distill-llama-70b": {InputPerMillion: 0.75, OutputPerMillion: 0.99},
	"llama-3.3-70b-versatile":       {InputPerMillion: 0.59, OutputPerMillion: 0.79},
	"llama-3.1-8b-instant":          {InputPerMillion: 0.05, OutputPerMillion: 0.08},
	"gemma2-9b-it":                  {InputPerMillion: 0.20, OutputPerMillion: 0.20},
	"gpt-4o":                        {InputPerMillion: 2.50, OutputPerMillion: 10.0},
	"gpt-4o-mini":                   {InputPerMillion: 0.15, OutputPerMillion: 0.60},
}

// CostTracker tracks token usage and estimated costs across models.
// It is safe for concurrent use.
type CostTracker struct {
	mu     sync.RWMutex
	totals map[string]Usage
	prices map[string]Pricing
}

// NewCostTracker creates a new cost tracker using Prices.
func NewCostTracker() *CostTracker {
	return NewCostTrackerWithPrices(Prices)
}

// NewCostTrackerWithPrices creates a tracker with a custom price table.
func NewCostTrackerWithPrices(prices map[string]Pricing) *CostTracker {
	return &CostTracker{
		totals: make(map[string]Usage),
		prices: prices,
	}
}

// Record adds one engine call's usage for the given model.
func (t *CostTracker) Record(model string, usage provider.TokenUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	u := t.totals[model]
	u.Add(Usage{
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		Requests:     1,
	})
	t.totals[model] = u
}

// Usage returns the usage for a specific model.
func (t *CostTracker) Usage(model string) Usage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totals[model]
}

// TotalUsage returns aggregated usage across all models.
func (t *CostTracker) TotalUsage() Usage {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total Usage
	for _, u := range t.totals {
		total.Add(u)
	}
	return total
}

// EstimatedCost calculates the estimated cost based on the price table.
func (t *CostTracker) EstimatedCost() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total float64
	for model, usage := range t.totals {
		if prices, ok := t.prices[model]; ok {
			total += prices.Cost(usage)
		}
	}
	return total
}

// ModelReport is one row of a usage report.
type ModelReport struct {
	Model         string  `json:"model"`
	Usage         Usage   `json:"usage"`
	EstimatedCost float64 `json:"estimated_cost_usd"`
	Priced        bool    `json:"priced"`
}

// Report returns per-model usage sorted by model name.
func (t *CostTracker) Report() []ModelReport {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]ModelReport, 0, len(t.totals))
	for model, usage := range t.totals {
		row := ModelReport{Model: model, Usage: usage}
		if prices, ok := t.prices[model]; ok {
			row.EstimatedCost = prices.Cost(usage)
			row.Priced = true
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}

// Reset clears all tracked usage.
func (t *CostTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals = make(map[string]Usage)
}
