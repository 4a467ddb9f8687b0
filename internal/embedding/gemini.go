package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// GeminiEmbedder generates embeddings via Google's Gemini embedContent API.
type GeminiEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	endpoint   string
	httpClient *http.Client
}

// NewGemini creates a Gemini embedder.
func NewGemini(apiKey, model string, dimensions int) *GeminiEmbedder {
	if model == "" {
		model = "text-embedding-004"
	}
	if dimensions <= 0 {
		dimensions = 768
	}
	return &GeminiEmbedder{
		apiKey: apiKey, model: model, dimensions: dimensions,
		endpoint:   "https://generativelanguage.googleapis.com/v1beta/models",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type geminiEmbedRequest struct {
	Model   string             `json:"model"`
	Content geminiEmbedContent `json:"content"`
}

type geminiEmbedContent struct {
	Parts []geminiEmbedPart `json:"parts"`
}

type geminiEmbedPart struct {
	Text string `json:"text"`
}

type geminiEmbedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// Embed generates an embedding for a single text input.
func (g *GeminiEmbedder) Embed(ctx context.Context, text string) (*Embedding, error) {
	wireReq := geminiEmbedRequest{
		Model:   "models/" + g.model,
		Content: geminiEmbedContent{Parts: []geminiEmbedPart{{Text: text}}},
	}
	reqBody, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:embedContent?key=%s", g.endpoint, g.model, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("gemini embedContent returned status %d", resp.StatusCode)
	}

	var wireResp geminiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &Embedding{Text: text, Vector: Vector(wireResp.Embedding.Values), Model: "gemini/" + g.model}, nil
}

// EmbedBatch embeds each text individually: Gemini's embedContent API is
// single-document per call, unlike OpenAI's batched endpoint.
func (g *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]*Embedding, error) {
	out := make([]*Embedding, len(texts))
	for i, text := range texts {
		emb, err := g.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text at index %d: %w", i, err)
		}
		out[i] = emb
	}
	return out, nil
}

// Dimensions returns the vector dimensionality.
func (g *GeminiEmbedder) Dimensions() int { return g.dimensions }

// Model returns the model identifier.
func (g *GeminiEmbedder) Model() string { return "gemini/" + g.model }

// GeminiProvider implements Provider for the Gemini embedder.
type GeminiProvider struct{}

// Name returns the provider identifier.
func (p *GeminiProvider) Name() string { return "gemini" }

// Create instantiates a Gemini embedder with the given configuration.
func (p *GeminiProvider) Create(config map[string]interface{}) (Embedder, error) {
	apiKey, _ := config["api_key"].(string)
	if apiKey == "" {
		return nil, fmt.Errorf("api_key is required for gemini provider")
	}
	model, _ := config["model"].(string)
	dimensions := intFromConfig(config, "dimensions", 768)
	return NewGemini(apiKey, model, dimensions), nil
}
