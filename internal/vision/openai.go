package vision

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider calls OpenAI chat completions with an image_url part.
type OpenAIProvider struct {
	client    *openai.Client
	maxTokens int
}

// NewOpenAIProvider creates an OpenAI client. baseURL is only set in tests.
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(cfg),
		maxTokens: 2048,
	}
}

func (p *OpenAIProvider) Extract(ctx context.Context, model string, req Request) (string, error) {
	if !strings.HasPrefix(req.MIMEType, "image/") {
		return "", fmt.Errorf("OpenAIProvider.Extract: unsupported media type %q", req.MIMEType)
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: p.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    req.DataURI(),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("OpenAIProvider.Extract: chat completion with %s: %w", model, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("OpenAIProvider.Extract: %s: %w", model, ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}
