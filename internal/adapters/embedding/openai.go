package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/datachat/datachat-go/internal/domain/entities"
)

// OpenAIEmbedder generates embeddings via an OpenAI-compatible API.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	batchSize int
}

// NewOpenAIEmbedder creates an embedding adapter for OpenAI-compatible
// endpoints. baseURL overrides the default for self-hosted gateways.
func NewOpenAIEmbedder(apiKey, baseURL, model string, batchSize int) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     openai.EmbeddingModel(model),
		batchSize: batchSize,
	}
}

// Embed generates an embedding for a single text.
func (a *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in API-side batches,
// order-preserving. No retries: a partial batch failure would corrupt
// vector alignment, so the whole call fails instead.
func (a *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += a.batchSize {
		end := start + a.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts[start:end],
			Model: a.model,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", entities.ErrEmbeddingUnavailable, err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", entities.ErrEmbeddingUnavailable, len(resp.Data), end-start)
		}
		for _, item := range resp.Data {
			vectors = append(vectors, item.Embedding)
		}
	}

	return vectors, nil
}
