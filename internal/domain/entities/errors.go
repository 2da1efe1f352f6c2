package entities

import "errors"

// Sentinel errors shared across the pipeline. Adapters wrap backend failures
// in the matching sentinel so callers can tell "retry later" from
// "reconfigure and retry" with errors.Is.
var (
	// ErrInvalidConfig rejects bad chunking or budget parameters before any work starts.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingUnavailable signals the embedding backend cannot be reached.
	// Never substituted with zero vectors and never retried: a partial batch
	// failure would corrupt vector alignment.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

	// ErrGenerationUnavailable signals the completion backend cannot be reached
	// after the single bounded retry.
	ErrGenerationUnavailable = errors.New("generation backend unavailable")

	// ErrEmptyIndex is the recoverable "no documents loaded" state, not a fault.
	ErrEmptyIndex = errors.New("vector index is empty")
)
