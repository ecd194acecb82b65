package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/confidential-chat-gateway/interfaces"
)

// FileBackend implements a storage backend using the local file system.
// Each key object is a single file under the base directory.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a file storage backend rooted at baseDir, creating
// the directory if necessary.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Fetch reads a key object from disk. Returns ErrObjectNotFound if the file
// does not exist.
func (b *FileBackend) Fetch(ctx context.Context, name interfaces.KeyObjectName) ([]byte, error) {
	if err := name.Validate(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(b.baseDir, name.String()))
	if os.IsNotExist(err) {
		return nil, interfaces.ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key object: %w", err)
	}

	b.log.Debug("Fetched key object from file",
		slog.String("name", name.String()),
		slog.Int("size", len(data)))

	return data, nil
}

// Store writes a key object to disk, overwriting any previous content.
func (b *FileBackend) Store(ctx context.Context, name interfaces.KeyObjectName, data []byte) error {
	if err := name.Validate(); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(b.baseDir, name.String()), data, 0600); err != nil {
		return fmt.Errorf("failed to write key object: %w", err)
	}

	b.log.Debug("Stored key object in file",
		slog.String("name", name.String()),
		slog.Int("size", len(data)))

	return nil
}

// List returns the names of all key objects in the base directory.
func (b *FileBackend) List(ctx context.Context) ([]interfaces.KeyObjectName, error) {
	entries, err := os.ReadDir(b.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list key objects: %w", err)
	}

	names := make([]interfaces.KeyObjectName, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, interfaces.KeyObjectName(entry.Name()))
	}
	return names, nil
}

// Available reports whether the base directory is accessible.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	return err == nil
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", b.baseDir)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}
