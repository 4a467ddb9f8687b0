package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OpenAIEmbedder generates embeddings via OpenAI's embeddings endpoint.
type OpenAIEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	endpoint   string
	httpClient *http.Client
}

// NewOpenAI creates an OpenAI embedder.
func NewOpenAI(apiKey, model string, dimensions int) *OpenAIEmbedder {
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &OpenAIEmbedder{
		apiKey: apiKey, model: model, dimensions: dimensions,
		endpoint:   "https://api.openai.com/v1/embeddings",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed generates an embedding for a single text input.
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) (*Embedding, error) {
	embs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request, up
// to MaxBatchSize at a time (spec.md §6.4 "MAX_BATCH_SIZE=100").
func (o *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]*Embedding, error) {
	var out []*Embedding
	for _, batch := range splitBatches(texts, MaxBatchSize) {
		embs, err := o.embedBatchOnce(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, embs...)
	}
	return out, nil
}

func (o *OpenAIEmbedder) embedBatchOnce(ctx context.Context, texts []string) ([]*Embedding, error) {
	reqBody, err := json.Marshal(openAIEmbedRequest{Model: o.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("openai embeddings returned status %d", resp.StatusCode)
	}

	var wireResp openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(wireResp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(wireResp.Data))
	}

	out := make([]*Embedding, len(texts))
	for i, d := range wireResp.Data {
		out[i] = &Embedding{Text: texts[i], Vector: Vector(d.Embedding), Model: "openai/" + o.model}
	}
	return out, nil
}

// Dimensions returns the vector dimensionality.
func (o *OpenAIEmbedder) Dimensions() int { return o.dimensions }

// Model returns the model identifier.
func (o *OpenAIEmbedder) Model() string { return "openai/" + o.model }

// OpenAIProvider implements Provider for the OpenAI embedder.
type OpenAIProvider struct{}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string { return "openai" }

// Create instantiates an OpenAI embedder with the given configuration.
func (p *OpenAIProvider) Create(config map[string]interface{}) (Embedder, error) {
	apiKey, _ := config["api_key"].(string)
	if apiKey == "" {
		return nil, fmt.Errorf("api_key is required for openai provider")
	}
	model, _ := config["model"].(string)
	dimensions := intFromConfig(config, "dimensions", 1536)
	return NewOpenAI(apiKey, model, dimensions), nil
}

func intFromConfig(config map[string]interface{}, key string, def int) int {
	if v, ok := config[key].(int); ok && v > 0 {
		return v
	}
	if v, ok := config[key].(float64); ok && v > 0 {
		return int(v)
	}
	return def
}

// splitBatches chunks texts into groups of at most size, re-chunking any
// request larger than the provider's accepted batch size.
func splitBatches(texts []string, size int) [][]string {
	if size <= 0 || len(texts) <= size {
		return [][]string{texts}
	}
	var out [][]string
	for i := 0; i < len(texts); i += size {
		end := i + size
		if end > len(texts) {
			end = len(texts)
		}
		out = append(out, texts[i:end])
	}
	return out
}
