package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/medledger/record-custody-backend/interfaces"
)

// FileBackend implements a storage backend using the local file system.
// Intended for development and tests; blobs are stored one file per
// content ID.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a new file storage backend using the specified
// base directory, creating it if needed.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	blobDir := filepath.Join(baseDir, "records")
	if err := os.MkdirAll(blobDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create records directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Store saves a blob to the file system and returns its content ID.
func (b *FileBackend) Store(ctx context.Context, data []byte) (interfaces.ContentID, error) {
	id := interfaces.ComputeContentID(data)
	filePath := b.blobPath(id)

	// Same ID means same bytes; nothing to do.
	if _, err := os.Stat(filePath); err == nil {
		return id, nil
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return id, fmt.Errorf("%w: writing blob file: %v", interfaces.ErrStoreUnavailable, err)
	}

	b.log.Debug("Stored content in file backend",
		slog.String("path", filePath),
		slog.String("contentID", id.String()))

	return id, nil
}

// Fetch retrieves a blob by its content ID.
// Returns ErrContentNotFound if the file doesn't exist.
func (b *FileBackend) Fetch(ctx context.Context, id interfaces.ContentID) ([]byte, error) {
	filePath := b.blobPath(id)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, interfaces.ErrContentNotFound
		}
		return nil, fmt.Errorf("%w: reading blob file: %v", interfaces.ErrStoreUnavailable, err)
	}

	b.log.Debug("Fetched content from file backend",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return data, nil
}

// Available checks if the base directory is accessible.
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

func (b *FileBackend) blobPath(id interfaces.ContentID) string {
	return filepath.Join(b.baseDir, "records", id.String())
}
