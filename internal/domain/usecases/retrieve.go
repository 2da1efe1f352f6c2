package usecases

import (
	"context"
	"fmt"

	"github.com/datachat/datachat-go/internal/domain/entities"
	"github.com/datachat/datachat-go/internal/domain/ports"
)

// Retriever embeds a query with the same embedder used at ingestion and
// returns the top-K chunks above the similarity cutoff.
type Retriever struct {
	embedder    ports.EmbeddingService
	vectorStore ports.VectorStore
	topK        int
	minScore    float64
}

// NewRetriever creates a Retriever with injected dependencies.
func NewRetriever(embedder ports.EmbeddingService, vectorStore ports.VectorStore, topK int, minScore float64) *Retriever {
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{
		embedder:    embedder,
		vectorStore: vectorStore,
		topK:        topK,
		minScore:    minScore,
	}
}

// Retrieve returns ranked passages for the query. Reports
// entities.ErrEmptyIndex when no documents are loaded, so callers can show
// "no documents loaded" instead of an empty-but-successful result.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]entities.ScoredChunk, error) {
	count, err := r.vectorStore.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting index entries: %w", err)
	}
	if count == 0 {
		return nil, entities.ErrEmptyIndex
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := r.vectorStore.Search(ctx, embedding, r.topK, r.minScore)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}
	return results, nil
}
