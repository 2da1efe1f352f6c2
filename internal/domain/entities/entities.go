// Package entities contains core business entities.
// These are the enterprise business rules - pure domain objects with no external dependencies.
package entities

import "time"

// Document represents a source document after text extraction.
// Immutable once created; removed only by source deletion or index reset.
type Document struct {
	SourceID  string
	Name      string
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Chunk is a bounded, overlapping substring of a Document - the unit of retrieval.
type Chunk struct {
	ID          string
	SourceID    string
	Index       int // Position within the document's chunk sequence
	StartOffset int // Byte offset of the chunk text within the document
	OverlapLen  int // Characters shared with the previous chunk
	Text        string
	Embedding   []float32 // Populated by the embedding adapter
	Metadata    map[string]string
}

// ScoredChunk pairs a retrieved chunk with its similarity to the query.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Turn is one (question, answer) exchange kept in conversation memory.
type Turn struct {
	Question  string
	Answer    string
	Timestamp time.Time
}

// Passage is a chunk selected into the prompt, tagged for attribution.
type Passage struct {
	ChunkID  string
	SourceID string
	Source   string // Human-readable source name shown in the prompt
	Text     string
	Score    float64
}

// PromptContext is the bounded context assembled for a single query.
// Ephemeral - built per query, never persisted.
type PromptContext struct {
	Passages []Passage
	History  []Turn
}

// Answer is the generated response plus the passages that informed it.
type Answer struct {
	Text    string
	Sources []Passage
}
