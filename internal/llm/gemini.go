package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// contentGenerator is the subset of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiDescriber uses Google's Gemini API to describe garment images.
type GeminiDescriber struct {
	models contentGenerator
	model  string
}

// NewGeminiDescriber creates a Gemini-backed describer authenticated with apiKey.
func NewGeminiDescriber(ctx context.Context, apiKey, model string) (*GeminiDescriber, error) {
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiDescriber{models: client.Models, model: model}, nil
}

// Name implements Describer.
func (g *GeminiDescriber) Name() string {
	return "gemini/" + g.model
}

// Describe implements Describer.
func (g *GeminiDescriber) Describe(ctx context.Context, jpegData []byte) (*Description, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(DescribePrompt),
		{InlineData: &genai.Blob{Data: jpegData, MIMEType: "image/jpeg"}},
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := g.models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	desc := &Description{Text: firstText(result)}
	if result != nil && result.UsageMetadata != nil {
		desc.Usage.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		desc.Usage.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
		desc.Usage.TotalTokens = int64(result.UsageMetadata.TotalTokenCount)
		desc.Usage.CostUSD = calculateCost(g.model, desc.Usage.InputTokens, desc.Usage.OutputTokens)
	}

	log.Info().
		Str("model", g.model).
		Int("imageBytes", len(jpegData)).
		Int64("inputTokens", desc.Usage.InputTokens).
		Int64("outputTokens", desc.Usage.OutputTokens).
		Float64("costUSD", desc.Usage.CostUSD).
		Bool("empty", desc.Text == "").
		Msg("vision llm call")

	return desc, nil
}

// firstText returns the first non-thought text part of the first candidate.
func firstText(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 {
		return ""
	}
	content := result.Candidates[0].Content
	if content == nil {
		return ""
	}
	for _, p := range content.Parts {
		if p == nil || p.Thought || p.Text == "" {
			continue
		}
		return p.Text
	}
	return ""
}
