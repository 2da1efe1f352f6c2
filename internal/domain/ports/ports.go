// Package ports defines interfaces for external dependencies.
// Usecases depend on these abstractions, not concrete implementations;
// adapters implement them.
package ports

import (
	"context"

	"github.com/datachat/datachat-go/internal/domain/entities"
)

// EmbeddingService maps text to fixed-dimensionality dense vectors.
type EmbeddingService interface {
	// Embed generates a vector embedding for a single text (queries).
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, order-preserving,
	// one vector per input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// CompletionService generates text from a prompt.
type CompletionService interface {
	// Complete blocks until the full completion is available.
	Complete(ctx context.Context, system, prompt string) (string, error)

	// CompleteStream produces a token-by-token completion. The returned
	// channel is closed on exhaustion; cancelling ctx stops backend token
	// production and releases the connection.
	CompleteStream(ctx context.Context, system, prompt string) (<-chan StreamToken, error)
}

// StreamToken is a single fragment of a streaming completion.
type StreamToken struct {
	Content string
	Done    bool
	Error   error
}

// VectorStore persists and queries chunk embeddings. Entries are keyed by
// stable chunk ID and survive process restart (for persistent backends).
type VectorStore interface {
	// Upsert inserts or overwrites entries by chunk ID. A document's chunks
	// become searchable atomically, or not at all.
	Upsert(ctx context.Context, chunks []entities.Chunk) error

	// Search returns at most k entries with similarity >= minScore, highest
	// first, ties broken by insertion order.
	Search(ctx context.Context, embedding []float32, k int, minScore float64) ([]entities.ScoredChunk, error)

	// DeleteBySource removes all chunks belonging to a source document.
	DeleteBySource(ctx context.Context, sourceID string) error

	// Count reports how many chunks are stored.
	Count(ctx context.Context) (int, error)

	// Reset discards all entries irreversibly.
	Reset(ctx context.Context) error
}

// DocumentParser extracts plain text from binary document formats.
type DocumentParser interface {
	// Parse extracts text content from document bytes.
	Parse(ctx context.Context, data []byte, contentType string) (string, error)

	// SupportedTypes returns content types this parser handles.
	SupportedTypes() []string
}

// FileWatcher monitors a directory for document changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events until ctx ends.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)

// Authorizer is the access-control collaborator contract. The core trusts
// the caller to have authorized the request; implementations live outside.
type Authorizer interface {
	// Authorize reports whether the session may ask another question,
	// returning the caller's tier for logging.
	Authorize(ctx context.Context, sessionID string) (tier string, err error)
}
