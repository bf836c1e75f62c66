package domain

// ModelPrice is the token pricing of one model, in USD per million tokens.
type ModelPrice struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Built-in USD price table. Prices are per million tokens for chat models and
// per generated image for image models.
const (
	gpt4oInputPerMillion  = 2.50
	gpt4oOutputPerMillion = 10.00

	gpt4oMiniInputPerMillion  = 0.15
	gpt4oMiniOutputPerMillion = 0.60

	gpt4TurboInputPerMillion  = 10.00
	gpt4TurboOutputPerMillion = 30.00

	gpt35TurboInputPerMillion  = 0.50
	gpt35TurboOutputPerMillion = 1.50

	dallE3PricePerImage = 0.04
	dallE2PricePerImage = 0.02
)

// PriceTable maps model identifiers to prices. It is built once at startup
// and immutable afterwards.
type PriceTable struct {
	tokenPrices  map[string]ModelPrice
	imagePrices  map[string]float64
	defaultModel string
}

// NewPriceTable builds the static price table. Token pricing for identifiers
// not present in the table falls back to defaultModel's entry; this is a
// policy choice, not an error.
func NewPriceTable(defaultModel string) *PriceTable {
	return &PriceTable{
		tokenPrices: map[string]ModelPrice{
			"gpt-4o":        {InputPerMillion: gpt4oInputPerMillion, OutputPerMillion: gpt4oOutputPerMillion},
			"gpt-4o-mini":   {InputPerMillion: gpt4oMiniInputPerMillion, OutputPerMillion: gpt4oMiniOutputPerMillion},
			"gpt-4-turbo":   {InputPerMillion: gpt4TurboInputPerMillion, OutputPerMillion: gpt4TurboOutputPerMillion},
			"gpt-3.5-turbo": {InputPerMillion: gpt35TurboInputPerMillion, OutputPerMillion: gpt35TurboOutputPerMillion},
		},
		imagePrices: map[string]float64{
			"dall-e-3": dallE3PricePerImage,
			"dall-e-2": dallE2PricePerImage,
		},
		defaultModel: defaultModel,
	}
}

// DefaultModel returns the identifier whose pricing backs unknown models.
func (t *PriceTable) DefaultModel() string {
	return t.defaultModel
}

// TokenPrice returns the per-million-token price for a model, falling back to
// the default model's entry when the identifier is unknown.
func (t *PriceTable) TokenPrice(model string) ModelPrice {
	if price, ok := t.tokenPrices[model]; ok {
		return price
	}
	return t.tokenPrices[t.defaultModel]
}

// ImagePrice returns the flat USD price per generated image for a model,
// falling back to the dall-e-3 entry when the identifier is unknown.
func (t *PriceTable) ImagePrice(model string) float64 {
	if price, ok := t.imagePrices[model]; ok {
		return price
	}
	return t.imagePrices["dall-e-3"]
}
