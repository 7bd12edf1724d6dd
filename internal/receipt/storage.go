package receipt

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage holds the uploaded receipt originals. The image is kept verbatim
// so the dashboard can show it next to the extracted fields and a later
// re-scan stays possible; only the path is recorded on the Receipt.
type Storage interface {
	// Save stores an original and returns the path the Receipt should carry
	Save(filename string, data []byte) (string, error)

	// Get retrieves an original by the path Save returned
	Get(path string) ([]byte, error)

	// Delete removes an original
	Delete(path string) error
}

// LocalStorage keeps the originals as plain files under one directory.
// Filenames arrive already ID-prefixed and sanitized by the service, so
// collisions and path traversal are not a concern at this layer.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a LocalStorage rooted at basePath, creating the
// directory if needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Save writes an uploaded original to disk.
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	path := filepath.Join(l.basePath, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return filename, nil
}

// Get reads an original back for display or download.
func (l *LocalStorage) Get(path string) ([]byte, error) {
	fullPath := filepath.Join(l.basePath, path)
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes an original, either with its receipt or when a failed
// scan is rolled back.
func (l *LocalStorage) Delete(path string) error {
	fullPath := filepath.Join(l.basePath, path)
	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
