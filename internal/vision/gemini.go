package vision

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider calls Google's Gemini API.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a Gemini client. baseURL is only set in tests.
func NewGeminiProvider(ctx context.Context, apiKey, baseURL string) (*GeminiProvider, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("NewGeminiProvider: create genai client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Extract(ctx context.Context, model string, req Request) (string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: req.Prompt},
				{
					InlineData: &genai.Blob{
						MIMEType: req.MIMEType,
						Data:     req.Image,
					},
				},
			},
		},
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("GeminiProvider.Extract: generate content with %s: %w", model, err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("GeminiProvider.Extract: %s: %w", model, ErrEmptyResponse)
	}
	return text, nil
}
