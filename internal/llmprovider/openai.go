package llmprovider

import (
	"context"
	"fmt"
	"net/http"
)

// openAIBackend speaks the OpenAI chat-completions wire format, also used
// by OpenRouter (spec.md §6.3 "OpenAI-compatible providers").
type openAIBackend struct {
	client   *http.Client
	apiKey   string
	model    string
	endpoint string
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
}

func (b *openAIBackend) Complete(ctx context.Context, req Request) (string, error) {
	wireReq := openAIChatRequest{
		Model: b.model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: 0.3,
	}

	var wireResp openAIChatResponse
	headers := map[string]string{"Authorization": "Bearer " + b.apiKey}
	if err := doJSON(ctx, b.client, http.MethodPost, b.endpoint, headers, wireReq, &wireResp); err != nil {
		return "", err
	}
	if len(wireResp.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}
	return wireResp.Choices[0].Message.Content, nil
}
