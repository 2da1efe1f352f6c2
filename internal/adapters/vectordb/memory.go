package vectordb

import (
	"context"
	"sort"
	"sync"

	"github.com/datachat/datachat-go/internal/domain/entities"
)

// InMemoryStore is a non-persistent vector store used for tests and for
// running without a data directory.
type InMemoryStore struct {
	mu      sync.RWMutex
	chunks  map[string]entities.Chunk
	order   []string            // chunk IDs in first-insertion order
	sources map[string][]string // sourceID -> chunk IDs
}

// NewInMemoryStore creates a new in-memory vector store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		chunks:  make(map[string]entities.Chunk),
		sources: make(map[string][]string),
	}
}

// Upsert inserts or overwrites chunks by ID. The whole batch is applied
// under one lock, so a document's chunks become visible atomically.
func (s *InMemoryStore) Upsert(ctx context.Context, chunks []entities.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, chunk := range chunks {
		if _, exists := s.chunks[chunk.ID]; !exists {
			s.order = append(s.order, chunk.ID)
			s.sources[chunk.SourceID] = append(s.sources[chunk.SourceID], chunk.ID)
		}
		s.chunks[chunk.ID] = chunk
	}
	return nil
}

// Search scores every chunk and returns at most k with score >= minScore,
// highest first, ties broken by insertion order.
func (s *InMemoryStore) Search(ctx context.Context, embedding []float32, k int, minScore float64) ([]entities.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []entities.ScoredChunk
	for _, id := range s.order {
		chunk := s.chunks[id]
		score := cosineSimilarity(embedding, chunk.Embedding)
		if score < minScore {
			continue
		}
		results = append(results, entities.ScoredChunk{Chunk: chunk, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// DeleteBySource removes all chunks of a source document.
func (s *InMemoryStore) DeleteBySource(ctx context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, ok := s.sources[sourceID]
	if !ok {
		return nil
	}
	removed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		delete(s.chunks, id)
		removed[id] = struct{}{}
	}
	delete(s.sources, sourceID)

	kept := s.order[:0]
	for _, id := range s.order {
		if _, gone := removed[id]; !gone {
			kept = append(kept, id)
		}
	}
	s.order = kept
	return nil
}

// Count returns the number of stored chunks.
func (s *InMemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// Reset discards all entries.
func (s *InMemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chunks = make(map[string]entities.Chunk)
	s.sources = make(map[string][]string)
	s.order = nil
	return nil
}
