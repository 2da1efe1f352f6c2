// Package loader reads documents off the filesystem and runs them through
// the configured parser.
package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/datachat/datachat-go/internal/domain/entities"
	"github.com/datachat/datachat-go/internal/domain/ports"
)

// contentTypes maps file extensions to the content types the parser
// understands.
var contentTypes = map[string]string{
	".txt":      "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".pdf":      "application/pdf",
}

// FileLoader loads documents from disk.
type FileLoader struct {
	parser ports.DocumentParser
}

// NewFileLoader creates a loader backed by the given parser.
func NewFileLoader(parser ports.DocumentParser) *FileLoader {
	return &FileLoader{parser: parser}
}

// Load reads and parses the document at path. The source ID is derived
// from the path, so reloading the same file overwrites its previous
// chunks instead of duplicating them.
func (l *FileLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	contentType, ok := contentTypes[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}

	content, err := l.parser.Parse(ctx, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	return &entities.Document{
		SourceID:  SourceIDForPath(path),
		Name:      filepath.Base(path),
		Content:   content,
		CreatedAt: info.ModTime(),
		Metadata: map[string]string{
			"filename": filepath.Base(path),
			"path":     path,
		},
	}, nil
}

// Supported reports whether the loader handles the file at path.
func (l *FileLoader) Supported(path string) bool {
	_, ok := contentTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

// SourceIDForPath derives the stable source ID for a file path. Watchers
// use it to delete a document's chunks when the file disappears.
func SourceIDForPath(path string) string {
	hash := sha256.Sum256([]byte(path))
	return hex.EncodeToString(hash[:8])
}
