// Package vision sends a receipt image plus an instruction to a hosted
// multimodal model and returns the model's text reply.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownModel is returned when a model identifier maps to no provider.
	ErrUnknownModel = errors.New("unknown model")
	// ErrProviderNotConfigured is returned when the provider exists but has no credentials.
	ErrProviderNotConfigured = errors.New("provider not configured")
	// ErrEmptyResponse is returned when a model replies without any text.
	ErrEmptyResponse = errors.New("empty response from model")
)

// Provider names used in "provider/model" identifiers.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Request is one user turn: an instruction and an image.
type Request struct {
	Prompt   string
	Image    []byte
	MIMEType string
}

// DataURI renders the image as a base64 data URI.
func (r Request) DataURI() string {
	return "data:" + r.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(r.Image)
}

// Provider calls one vendor's API.
type Provider interface {
	Extract(ctx context.Context, model string, req Request) (string, error)
}

// Router dispatches model identifiers to registered providers.
type Router struct {
	providers map[string]Provider
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{providers: make(map[string]Provider)}
}

// Register binds a provider name to an implementation. A nil provider
// marks the name as known but unconfigured.
func (r *Router) Register(name string, p Provider) {
	r.providers[name] = p
}

// Extract resolves model to a provider and forwards the request.
func (r *Router) Extract(ctx context.Context, model string, req Request) (string, error) {
	provider, name, err := Resolve(model)
	if err != nil {
		return "", err
	}
	p, ok := r.providers[provider]
	if !ok || p == nil {
		return "", fmt.Errorf("Router.Extract: %s: %w", provider, ErrProviderNotConfigured)
	}
	return p.Extract(ctx, name, req)
}

// Resolve splits a model identifier into provider and vendor model name.
// Identifiers are either "provider/model" or a bare model name routed by prefix.
func Resolve(model string) (provider, name string, err error) {
	model = strings.TrimSpace(model)
	if p, n, ok := strings.Cut(model, "/"); ok {
		switch p {
		case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
			if n == "" {
				return "", "", fmt.Errorf("Resolve: %q: %w", model, ErrUnknownModel)
			}
			return p, n, nil
		}
		return "", "", fmt.Errorf("Resolve: %q: %w", model, ErrUnknownModel)
	}

	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "gemini"):
		return ProviderGemini, model, nil
	case strings.HasPrefix(lower, "gpt"),
		strings.HasPrefix(lower, "o1"),
		strings.HasPrefix(lower, "o3"),
		strings.HasPrefix(lower, "o4"):
		return ProviderOpenAI, model, nil
	case strings.HasPrefix(lower, "claude"):
		return ProviderAnthropic, model, nil
	}
	return "", "", fmt.Errorf("Resolve: %q: %w", model, ErrUnknownModel)
}
