package domain

import "math"

const (
	tokensPerMillion = 1_000_000.0
	displayPrecision = 100.0 // two decimal places
)

// Accountant converts raw usage into a USD cost and derives the display
// currency figure. The stored value is always USD; the display figure is a
// presentation-layer derivation and is never persisted.
type Accountant struct {
	table        *PriceTable
	exchangeRate float64 // display currency units per USD
}

// NewAccountant creates a cost accountant over a price table.
func NewAccountant(table *PriceTable, exchangeRate float64) *Accountant {
	return &Accountant{
		table:        table,
		exchangeRate: exchangeRate,
	}
}

// TokenCost computes the USD cost of a token-priced request. A nil usage
// means the upstream response reported none and costs nothing.
func (a *Accountant) TokenCost(model string, usage *Usage) float64 {
	if usage == nil {
		return 0
	}

	price := a.table.TokenPrice(model)
	inputCost := float64(usage.PromptTokens) * price.InputPerMillion / tokensPerMillion
	outputCost := float64(usage.CompletionTokens) * price.OutputPerMillion / tokensPerMillion

	return inputCost + outputCost
}

// ImageCost computes the USD cost of count generated images.
func (a *Accountant) ImageCost(model string, count int) float64 {
	return a.table.ImagePrice(model) * float64(count)
}

// Display converts a stored USD cost into the display currency, rounded to
// two decimal places. Re-reading the same stored value always yields the
// same figure.
func (a *Accountant) Display(nativeUSD float64) float64 {
	return math.Round(nativeUSD*a.exchangeRate*displayPrecision) / displayPrecision
}
