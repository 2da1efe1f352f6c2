package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/datachat/datachat-go/internal/domain/entities"
	"github.com/datachat/datachat-go/internal/domain/ports"
)

// IngestUseCase handles document ingestion into the vector store:
// chunk, embed, upsert.
type IngestUseCase struct {
	chunker     *Chunker
	embedder    ports.EmbeddingService
	vectorStore ports.VectorStore
	parser      ports.DocumentParser
	logger      *slog.Logger
}

// NewIngestUseCase creates an IngestUseCase with injected dependencies.
func NewIngestUseCase(
	chunker *Chunker,
	embedder ports.EmbeddingService,
	vectorStore ports.VectorStore,
	parser ports.DocumentParser,
	logger *slog.Logger,
) *IngestUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestUseCase{
		chunker:     chunker,
		embedder:    embedder,
		vectorStore: vectorStore,
		parser:      parser,
		logger:      logger,
	}
}

// Ingest processes an already-extracted document: chunks it, embeds the
// chunks in one batch, and stores them. Repeating the call for the same
// source overwrites in place (chunk IDs are deterministic).
func (uc *IngestUseCase) Ingest(ctx context.Context, doc *entities.Document) error {
	chunks := uc.chunker.Chunk(doc)
	if len(chunks) == 0 {
		uc.logger.Warn("ingest: empty document", "source_id", doc.SourceID)
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	embeddings, err := uc.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}

	if err := uc.vectorStore.Upsert(ctx, chunks); err != nil {
		return fmt.Errorf("storing chunks: %w", err)
	}

	uc.logger.Info("document ingested",
		"source_id", doc.SourceID,
		"name", doc.Name,
		"chunks", len(chunks),
	)
	return nil
}

// IngestBytes is the external ingestion entrypoint: raw document bytes plus
// a content type, text extraction delegated to the parser. Returns the
// assigned source ID.
func (uc *IngestUseCase) IngestBytes(ctx context.Context, data []byte, contentType string, metadata map[string]string) (string, error) {
	text, err := uc.parser.Parse(ctx, data, contentType)
	if err != nil {
		return "", fmt.Errorf("extracting text: %w", err)
	}

	sourceID := uuid.NewString()
	name := metadata["filename"]
	if name == "" {
		name = sourceID
	}

	doc := &entities.Document{
		SourceID:  sourceID,
		Name:      name,
		Content:   text,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	if err := uc.Ingest(ctx, doc); err != nil {
		return "", err
	}
	return sourceID, nil
}

// Delete removes all chunks of a source document.
func (uc *IngestUseCase) Delete(ctx context.Context, sourceID string) error {
	if err := uc.vectorStore.DeleteBySource(ctx, sourceID); err != nil {
		return fmt.Errorf("deleting source %s: %w", sourceID, err)
	}
	uc.logger.Info("document removed", "source_id", sourceID)
	return nil
}

// Reset discards the whole collection irreversibly. The calling surface is
// expected to confirm with the user before invoking.
func (uc *IngestUseCase) Reset(ctx context.Context) error {
	if err := uc.vectorStore.Reset(ctx); err != nil {
		return fmt.Errorf("resetting index: %w", err)
	}
	uc.logger.Warn("vector index reset, all documents discarded")
	return nil
}
