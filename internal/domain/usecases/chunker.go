// Package usecases contains application business rules.
// Usecases orchestrate entities and depend on port interfaces only -
// no framework code, no external dependencies.
package usecases

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/datachat/datachat-go/internal/domain/entities"
)

const (
	DefaultChunkWindow  = 1000
	DefaultChunkOverlap = 200
)

// Chunker splits document text into overlapping fixed-size passages.
// Chunking is pure and stateless; persistence is the vector store's job.
type Chunker struct {
	window  int
	overlap int
}

// NewChunker validates the window/overlap pair up front.
// Rejecting overlap >= window here means no later boundary math can loop.
func NewChunker(window, overlap int) (*Chunker, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: chunk window must be positive, got %d", entities.ErrInvalidConfig, window)
	}
	if overlap < 0 || overlap >= window {
		return nil, fmt.Errorf("%w: chunk overlap %d must satisfy 0 <= overlap < window (%d)", entities.ErrInvalidConfig, overlap, window)
	}
	return &Chunker{window: window, overlap: overlap}, nil
}

// Chunk splits the document into contiguous chunks of at most window bytes,
// each sharing overlap bytes with its predecessor. Offsets are exact: joining
// chunk texts in order and trimming the recorded overlaps reproduces the
// document byte for byte. The last chunk may be shorter than the window.
func (c *Chunker) Chunk(doc *entities.Document) []entities.Chunk {
	content := doc.Content
	if len(content) == 0 {
		return nil
	}

	step := c.window - c.overlap
	var chunks []entities.Chunk
	for start, index := 0, 0; start < len(content); start, index = start+step, index+1 {
		end := start + c.window
		if end > len(content) {
			end = len(content)
		}

		overlapLen := 0
		if index > 0 {
			overlapLen = c.overlap
		}

		chunks = append(chunks, entities.Chunk{
			ID:          chunkID(doc.SourceID, index),
			SourceID:    doc.SourceID,
			Index:       index,
			StartOffset: start,
			OverlapLen:  overlapLen,
			Text:        content[start:end],
			Metadata:    doc.Metadata,
		})

		if end == len(content) {
			break
		}
	}

	return chunks
}

// chunkID derives a deterministic, restart-stable ID from source and position.
func chunkID(sourceID string, index int) string {
	hash := sha256.Sum256([]byte(sourceID + ":" + strconv.Itoa(index)))
	return hex.EncodeToString(hash[:8])
}
