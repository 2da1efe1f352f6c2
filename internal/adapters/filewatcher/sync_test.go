package filewatcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/datachat/datachat-go/internal/adapters/loader"
	"github.com/datachat/datachat-go/internal/adapters/parser"
	"github.com/datachat/datachat-go/internal/domain/entities"
	"github.com/datachat/datachat-go/internal/domain/ports"
	"github.com/datachat/datachat-go/internal/domain/usecases"
)

type stubEmbedder struct{}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type recordingStore struct {
	mu      sync.Mutex
	chunks  map[string]entities.Chunk
	deleted []string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{chunks: make(map[string]entities.Chunk)}
}

func (s *recordingStore) Upsert(ctx context.Context, chunks []entities.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.chunks[c.ID] = c
	}
	return nil
}

func (s *recordingStore) Search(ctx context.Context, embedding []float32, k int, minScore float64) ([]entities.ScoredChunk, error) {
	return nil, nil
}

func (s *recordingStore) DeleteBySource(ctx context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, sourceID)
	for id, c := range s.chunks {
		if c.SourceID == sourceID {
			delete(s.chunks, id)
		}
	}
	return nil
}

func (s *recordingStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks), nil
}

func (s *recordingStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = make(map[string]entities.Chunk)
	return nil
}

func (s *recordingStore) sources() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool)
	for _, c := range s.chunks {
		out[c.SourceID] = true
	}
	return out
}

// scriptedWatcher replays a fixed event sequence, avoiding fsnotify
// timing in sync tests.
type scriptedWatcher struct {
	events []ports.FileEvent
}

func (w *scriptedWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	ch := make(chan ports.FileEvent, len(w.events))
	for _, e := range w.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

func (w *scriptedWatcher) Stop() error { return nil }

func newTestSync(t *testing.T, store *recordingStore, watcher ports.FileWatcher) *DirectorySync {
	t.Helper()
	chunker, err := usecases.NewChunker(usecases.DefaultChunkWindow, usecases.DefaultChunkOverlap)
	if err != nil {
		t.Fatal(err)
	}
	multi := parser.NewMultiParser()
	ingest := usecases.NewIngestUseCase(chunker, &stubEmbedder{}, store, multi, nil)
	return NewDirectorySync(watcher, loader.NewFileLoader(multi), ingest, nil)
}

func TestSyncInitialScan(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.md", "skip.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("content of "+name), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	store := newRecordingStore()
	ds := newTestSync(t, store, &scriptedWatcher{})

	if err := ds.Run(context.Background(), dir); err != nil {
		t.Fatalf("Run: %v", err)
	}

	srcs := store.sources()
	if len(srcs) != 2 {
		t.Errorf("expected 2 ingested sources, got %d", len(srcs))
	}
	if !srcs[loader.SourceIDForPath(filepath.Join(dir, "a.txt"))] {
		t.Error("a.txt not ingested")
	}
	if srcs[loader.SourceIDForPath(filepath.Join(dir, "skip.json"))] {
		t.Error("unsupported file must not be ingested")
	}
}

func TestSyncIngestsCreatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "new.txt")
	if err := os.WriteFile(path, []byte("fresh content"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := newRecordingStore()
	ds := newTestSync(t, store, &scriptedWatcher{events: []ports.FileEvent{
		{Path: path, Operation: ports.FileCreated},
	}})

	empty := t.TempDir() // initial scan sees nothing; the event drives the ingest
	if err := ds.Run(context.Background(), empty); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !store.sources()[loader.SourceIDForPath(path)] {
		t.Error("created file not ingested")
	}
}

func TestSyncRemovesDeletedFile(t *testing.T) {
	path := "/docs/gone.txt"
	store := newRecordingStore()
	ds := newTestSync(t, store, &scriptedWatcher{events: []ports.FileEvent{
		{Path: path, Operation: ports.FileDeleted},
	}})

	if err := ds.Run(context.Background(), t.TempDir()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := loader.SourceIDForPath(path)
	found := false
	for _, id := range store.deleted {
		if id == want {
			found = true
		}
	}
	if !found {
		t.Errorf("DeleteBySource not called with %q (got %v)", want, store.deleted)
	}
}

func TestSyncStopsOnContextCancel(t *testing.T) {
	dir := t.TempDir()

	watcher, err := NewFSNotifyWatcher(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Stop()

	store := newRecordingStore()
	ds := newTestSync(t, store, watcher)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ds.Run(ctx, dir) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
