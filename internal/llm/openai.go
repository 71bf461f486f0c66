package llm

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIDescriber describes garment images through an OpenAI-compatible
// chat completions API.
type OpenAIDescriber struct {
	client *openai.Client
	model  string
}

// NewOpenAIDescriber creates an OpenAI-backed describer. baseURL may be empty
// to use the default OpenAI endpoint.
func NewOpenAIDescriber(apiKey, model, baseURL string) *OpenAIDescriber {
	if model == "" {
		model = DefaultOpenAIModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIDescriber{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Name implements Describer.
func (o *OpenAIDescriber) Name() string {
	return "openai/" + o.model
}

// Describe implements Describer.
func (o *OpenAIDescriber) Describe(ctx context.Context, jpegData []byte) (*Description, error) {
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegData)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: DescribePrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}

	desc := &Description{
		Usage: Usage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
			TotalTokens:  int64(resp.Usage.TotalTokens),
		},
	}
	desc.Usage.CostUSD = calculateCost(o.model, desc.Usage.InputTokens, desc.Usage.OutputTokens)
	if len(resp.Choices) > 0 {
		desc.Text = resp.Choices[0].Message.Content
	}

	log.Info().
		Str("model", o.model).
		Int("imageBytes", len(jpegData)).
		Int64("inputTokens", desc.Usage.InputTokens).
		Int64("outputTokens", desc.Usage.OutputTokens).
		Float64("costUSD", desc.Usage.CostUSD).
		Bool("empty", desc.Text == "").
		Msg("vision llm call")

	return desc, nil
}
