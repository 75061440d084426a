package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

var anthropicImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// AnthropicProvider calls the Claude Messages API with a base64 image block.
type AnthropicProvider struct {
	client    sdk.Client
	maxTokens int64
}

// NewAnthropicProvider creates a Claude client. baseURL is only set in tests.
func NewAnthropicProvider(apiKey, baseURL string) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{
		client:    sdk.NewClient(opts...),
		maxTokens: 2048,
	}
}

func (p *AnthropicProvider) Extract(ctx context.Context, model string, req Request) (string, error) {
	if !anthropicImageTypes[req.MIMEType] {
		return "", fmt.Errorf("AnthropicProvider.Extract: unsupported media type %q", req.MIMEType)
	}

	msg, err := p.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: p.maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(
				sdk.NewImageBlockBase64(req.MIMEType, base64.StdEncoding.EncodeToString(req.Image)),
				sdk.NewTextBlock(req.Prompt),
			),
		},
	})
	if err != nil {
		return "", fmt.Errorf("AnthropicProvider.Extract: create message with %s: %w", model, err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("AnthropicProvider.Extract: %s: %w", model, ErrEmptyResponse)
	}
	return b.String(), nil
}
