package llm

import (
	"context"
	"strings"
)

// DescribePrompt asks the service to describe a garment using the six labels
// the structured extractor looks for.
var DescribePrompt = strings.Join([]string{
	"Describe the garment in the image and provide the following details:",
	"Garment Type:",
	"Brand:",
	"Size:",
	"Color:",
	"Fabric:",
	"Additional Characteristics:",
}, "\n")

// Usage contains token usage and cost information.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

// Add returns the sum of two usages.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
		TotalTokens:  u.TotalTokens + o.TotalTokens,
		CostUSD:      u.CostUSD + o.CostUSD,
	}
}

// Description is the raw free-text reply for one image.
// Text is empty when the service returned no usable candidate.
type Description struct {
	Text  string
	Usage Usage
}

// Describer sends one JPEG image with DescribePrompt to a multimodal model.
// Transport and authentication failures are returned as errors; an empty or
// malformed reply is not an error and yields an empty Text.
type Describer interface {
	Describe(ctx context.Context, jpegData []byte) (*Description, error)
	// Name identifies the provider and model, e.g. "gemini/gemini-2.5-flash".
	Name() string
}

type price struct {
	inputPerMillion  float64
	outputPerMillion float64
}

// Per million tokens. Unknown models are costed at zero.
var prices = map[string]price{
	"gemini-2.5-flash":      {0.30, 2.50},
	"gemini-2.5-flash-lite": {0.10, 0.40},
	"gemini-2.5-pro":        {1.25, 10.00},
	"gpt-4o-mini":           {0.15, 0.60},
	"gpt-4o":                {2.50, 10.00},
}

func calculateCost(model string, inputTokens, outputTokens int64) float64 {
	p, ok := prices[model]
	if !ok {
		return 0
	}
	inputCost := float64(inputTokens) / 1_000_000 * p.inputPerMillion
	outputCost := float64(outputTokens) / 1_000_000 * p.outputPerMillion
	return inputCost + outputCost
}
