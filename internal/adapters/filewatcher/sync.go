package filewatcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/datachat/datachat-go/internal/adapters/loader"
	"github.com/datachat/datachat-go/internal/domain/ports"
	"github.com/datachat/datachat-go/internal/domain/usecases"
)

// DirectorySync mirrors a documents directory into the vector index:
// new and modified files are re-ingested, deleted files have their
// chunks removed.
type DirectorySync struct {
	watcher ports.FileWatcher
	loader  *loader.FileLoader
	ingest  *usecases.IngestUseCase
	logger  *slog.Logger
}

// NewDirectorySync creates a directory synchronizer.
func NewDirectorySync(watcher ports.FileWatcher, l *loader.FileLoader, ingest *usecases.IngestUseCase, logger *slog.Logger) *DirectorySync {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectorySync{watcher: watcher, loader: l, ingest: ingest, logger: logger}
}

// Run ingests every supported file already in dir, then follows change
// events until ctx is cancelled.
func (s *DirectorySync) Run(ctx context.Context, dir string) error {
	if err := s.initialScan(ctx, dir); err != nil {
		return err
	}

	events, err := s.watcher.Watch(ctx, dir)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			s.handle(ctx, event)
		}
	}
}

func (s *DirectorySync) initialScan(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if !s.loader.Supported(path) {
			continue
		}
		s.ingestFile(ctx, path)
	}
	return nil
}

func (s *DirectorySync) handle(ctx context.Context, event ports.FileEvent) {
	switch event.Operation {
	case ports.FileCreated, ports.FileModified:
		s.ingestFile(ctx, event.Path)
	case ports.FileDeleted:
		if err := s.ingest.Delete(ctx, loader.SourceIDForPath(event.Path)); err != nil {
			s.logger.Error("removing deleted file from index", "path", event.Path, "error", err)
		}
	}
}

func (s *DirectorySync) ingestFile(ctx context.Context, path string) {
	doc, err := s.loader.Load(ctx, path)
	if err != nil {
		s.logger.Error("loading document", "path", path, "error", err)
		return
	}
	if err := s.ingest.Ingest(ctx, doc); err != nil {
		s.logger.Error("ingesting document", "path", path, "error", err)
	}
}
