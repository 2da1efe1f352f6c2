// Package vectordb provides vector store adapters implementing
// ports.VectorStore.
package vectordb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/datachat/datachat-go/internal/domain/entities"
)

// SQLiteStore is a persistent vector store backed by SQLite. Vectors are
// stored as JSON blobs and searched by brute-force cosine similarity, which
// is adequate for private document collections.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the store under dataPath.
func NewSQLiteStore(dataPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if dataPath == "" {
		dataPath = "./data"
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataPath, "vectors.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		start_offset INTEGER NOT NULL,
		overlap_len INTEGER NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB NOT NULL,
		metadata BLOB,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_source_id ON chunks(source_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Upsert inserts or overwrites chunks by ID inside one transaction, so a
// document's chunks become searchable atomically. ON CONFLICT keeps the
// original rowid, preserving insertion order for tie-breaking.
func (s *SQLiteStore) Upsert(ctx context.Context, chunks []entities.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, source_id, chunk_index, start_offset, overlap_len, text, embedding, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_id = excluded.source_id,
			chunk_index = excluded.chunk_index,
			start_offset = excluded.start_offset,
			overlap_len = excluded.overlap_len,
			text = excluded.text,
			embedding = excluded.embedding,
			metadata = excluded.metadata
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		embJSON, err := json.Marshal(chunk.Embedding)
		if err != nil {
			return fmt.Errorf("encoding embedding: %w", err)
		}
		metaJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		_, err = stmt.ExecContext(ctx,
			chunk.ID, chunk.SourceID, chunk.Index, chunk.StartOffset,
			chunk.OverlapLen, chunk.Text, embJSON, metaJSON,
		)
		if err != nil {
			return fmt.Errorf("inserting chunk %s: %w", chunk.ID, err)
		}
	}

	return tx.Commit()
}

// Search scans all entries, scores them by cosine similarity, and returns at
// most k entries with score >= minScore, highest first. Rows arrive in rowid
// (insertion) order and the sort is stable, so ties keep insertion order.
// Entries that fail to deserialize are skipped and logged, never aborting
// the whole search.
func (s *SQLiteStore) Search(ctx context.Context, embedding []float32, k int, minScore float64) ([]entities.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, chunk_index, start_offset, overlap_len, text, embedding, metadata
		FROM chunks ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var results []entities.ScoredChunk
	for rows.Next() {
		var chunk entities.Chunk
		var embJSON, metaJSON []byte

		err := rows.Scan(&chunk.ID, &chunk.SourceID, &chunk.Index, &chunk.StartOffset,
			&chunk.OverlapLen, &chunk.Text, &embJSON, &metaJSON)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		if err := json.Unmarshal(embJSON, &chunk.Embedding); err != nil {
			s.logger.Warn("skipping corrupt index entry", "chunk_id", chunk.ID, "error", err)
			continue
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &chunk.Metadata); err != nil {
				s.logger.Warn("dropping corrupt chunk metadata", "chunk_id", chunk.ID, "error", err)
				chunk.Metadata = nil
			}
		}

		score := cosineSimilarity(embedding, chunk.Embedding)
		if score < minScore {
			continue
		}
		results = append(results, entities.ScoredChunk{Chunk: chunk, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
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
func (s *SQLiteStore) DeleteBySource(ctx context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE source_id = ?", sourceID)
	return err
}

// Count returns the number of stored chunks.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count)
	return count, err
}

// Reset discards all entries irreversibly.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM chunks")
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// cosineSimilarity calculates cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
