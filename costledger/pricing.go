package costledger

// price holds per-1K-token input/output prices; the tables below key it by model.
// Values are grounded on the original Python service's ANTHROPIC_PRICING /
// OPENAI_PRICING / EMBEDDING_PRICING tables (original_source/.../cost_tracker.py).
type price struct {
	input  float64
	output float64
}

var anthropicPricing = map[string]price{
	"claude-sonnet-4-20250514":   {0.003, 0.015},
	"claude-3-5-sonnet-20241022": {0.003, 0.015},
	"claude-3-5-sonnet-latest":   {0.003, 0.015},
	"claude-3-opus-20240229":     {0.015, 0.075},
	"claude-3-haiku-20240307":    {0.00025, 0.00125},
}

var openAIPricing = map[string]price{
	"gpt-4o":            {0.0025, 0.01},
	"gpt-4o-2024-11-20":  {0.0025, 0.01},
	"gpt-4o-mini":        {0.00015, 0.0006},
	"gpt-4-turbo":        {0.01, 0.03},
	"gpt-4":              {0.03, 0.06},
	"gpt-3.5-turbo":      {0.0005, 0.0015},
}

var embeddingPricing = map[string]float64{
	"text-embedding-3-small": 0.00002,
	"text-embedding-3-large": 0.00013,
	"text-embedding-ada-002": 0.0001,
}

// defaultPricing is the conservative fallback for unknown (provider, model)
// pairs, per spec section 4.1: "Unknown models fall back to a conservative
// default and are logged."
var defaultPricing = price{0.01, 0.01}

// Pricing returns the (input, output) price per 1K tokens for a provider and
// model, and whether the pair was found in the pricing table.
func Pricing(provider, model string) (inputPrice, outputPrice float64, known bool) {
	switch provider {
	case "anthropic":
		if p, ok := anthropicPricing[model]; ok {
			return p.input, p.output, true
		}
		return defaultPricing.input, defaultPricing.output, false
	case "openai":
		if isEmbeddingModel(model) {
			if p, ok := embeddingPricing[model]; ok {
				return p, 0, true
			}
			return 0.0001, 0, false
		}
		if p, ok := openAIPricing[model]; ok {
			return p.input, p.output, true
		}
		return defaultPricing.input, defaultPricing.output, false
	default:
		return defaultPricing.input, defaultPricing.output, false
	}
}

func isEmbeddingModel(model string) bool {
	for i := 0; i+9 <= len(model); i++ {
		if equalFoldASCII(model[i:i+9], "embedding") {
			return true
		}
	}
	return false
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Cost computes (inputCost, outputCost, totalCost) for token counts against
// a provider/model's pricing, and whether that (provider, model) pair was
// priced from the known table rather than defaultPricing's fallback. For
// embedding models outputCost is always 0.
func Cost(provider, model string, inputTokens, outputTokens int) (inputCost, outputCost, totalCost float64, known bool) {
	inPrice, outPrice, known := Pricing(provider, model)
	inputCost = float64(inputTokens) / 1000.0 * inPrice
	outputCost = float64(outputTokens) / 1000.0 * outPrice
	return inputCost, outputCost, inputCost + outputCost, known
}
