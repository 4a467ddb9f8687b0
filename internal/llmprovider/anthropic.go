package llmprovider

import (
	"context"
	"fmt"
	"net/http"
)

// anthropicBackend speaks the Anthropic Messages API wire format.
type anthropicBackend struct {
	client   *http.Client
	apiKey   string
	model    string
	endpoint string
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (b *anthropicBackend) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	wireReq := anthropicRequest{
		Model:       b.model,
		System:      req.SystemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: req.UserPrompt}},
		MaxTokens:   maxTokens,
		Temperature: 0.3,
	}

	var wireResp anthropicResponse
	headers := map[string]string{
		"x-api-key":         b.apiKey,
		"anthropic-version": "2023-06-01",
	}
	if err := doJSON(ctx, b.client, http.MethodPost, b.endpoint, headers, wireReq, &wireResp); err != nil {
		return "", err
	}
	if len(wireResp.Content) == 0 {
		return "", fmt.Errorf("provider returned no content blocks")
	}
	return wireResp.Content[0].Text, nil
}
