package vision

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngRequest = Request{
	Prompt:   "extract the receipt",
	Image:    []byte{0x89, 'P', 'N', 'G'},
	MIMEType: "image/png",
}

func TestOpenAIProvider_Extract(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"model":"gpt-4o"`)
		assert.Contains(t, string(body), "data:image/png;base64,")
		assert.Contains(t, string(body), "extract the receipt")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o",
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": `{"total": 42}`},
				},
			},
		})
	}))
	defer ts.Close()

	p := NewOpenAIProvider("test-key", ts.URL+"/v1")
	text, err := p.Extract(context.Background(), "gpt-4o", pngRequest)
	require.NoError(t, err)
	assert.Equal(t, `{"total": 42}`, text)
}

func TestOpenAIProvider_RejectsPDF(t *testing.T) {
	p := NewOpenAIProvider("test-key", "http://127.0.0.1:1/v1")
	_, err := p.Extract(context.Background(), "gpt-4o", Request{MIMEType: "application/pdf"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported media type")
}

func TestOpenAIProvider_EmptyChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`)) //nolint:errcheck
	}))
	defer ts.Close()

	p := NewOpenAIProvider("test-key", ts.URL+"/v1")
	_, err := p.Extract(context.Background(), "gpt-4o", pngRequest)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestAnthropicProvider_Extract(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "claude-sonnet-4-5-20250929", payload["model"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":   "msg_1",
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": `Here you go: {"total": 7}`},
			},
			"model":       "claude-sonnet-4-5-20250929",
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	defer ts.Close()

	p := NewAnthropicProvider("test-key", ts.URL)
	text, err := p.Extract(context.Background(), "claude-sonnet-4-5-20250929", pngRequest)
	require.NoError(t, err)
	assert.Equal(t, `Here you go: {"total": 7}`, text)
}

func TestAnthropicProvider_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad model"}}`)) //nolint:errcheck
	}))
	defer ts.Close()

	p := NewAnthropicProvider("test-key", ts.URL)
	_, err := p.Extract(context.Background(), "claude-nope", pngRequest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claude-nope")
}

func TestGeminiProvider_Extract(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-2.5-flash:generateContent")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"candidates": []map[string]any{
				{
					"content": map[string]any{
						"role":  "model",
						"parts": []map[string]any{{"text": `{"store_name": "DMart"}`}},
					},
					"finishReason": "STOP",
				},
			},
		})
	}))
	defer ts.Close()

	p, err := NewGeminiProvider(context.Background(), "test-key", ts.URL)
	require.NoError(t, err)

	text, err := p.Extract(context.Background(), "gemini-2.5-flash", pngRequest)
	require.NoError(t, err)
	assert.Equal(t, `{"store_name": "DMart"}`, text)
}
