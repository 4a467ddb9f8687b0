package llmprovider

import (
	"context"
	"fmt"
	"net/http"
)

// geminiBackend speaks the Google Gemini generateContent wire format.
type geminiBackend struct {
	client   *http.Client
	apiKey   string
	model    string
	endpoint string
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (b *geminiBackend) Complete(ctx context.Context, req Request) (string, error) {
	wireReq := geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.UserPrompt}}}},
		GenerationConfig: geminiGenerationConfig{MaxOutputTokens: req.MaxTokens, Temperature: 0.3},
	}
	if req.SystemPrompt != "" {
		wireReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", b.endpoint, b.model, b.apiKey)

	var wireResp geminiResponse
	if err := doJSON(ctx, b.client, http.MethodPost, url, nil, wireReq, &wireResp); err != nil {
		return "", err
	}
	if len(wireResp.Candidates) == 0 || len(wireResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("provider returned no candidates")
	}
	return wireResp.Candidates[0].Content.Parts[0].Text, nil
}
