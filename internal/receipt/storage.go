package receipt

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage holds the original uploads so a reviewer can see the source image
// next to the extracted candidates.
type Storage interface {
	// Save stores a file and returns the key it can be fetched under.
	Save(filename string, data []byte) (string, error)

	// Get retrieves a file by key.
	Get(key string) ([]byte, error)

	// Delete removes a file.
	Delete(key string) error
}

// LocalStorage implements Storage on a local directory. Keys are flattened to
// their base name so an upload can never escape the directory.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the storage directory if needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Save stores a file, flattening any path components in the name.
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	key := filepath.Base(filename)
	if key == "." || key == string(filepath.Separator) {
		return "", fmt.Errorf("unusable filename %q", filename)
	}
	if err := os.WriteFile(filepath.Join(l.basePath, key), data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return key, nil
}

// Get retrieves a file by key.
func (l *LocalStorage) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, filepath.Base(key)))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a file.
func (l *LocalStorage) Delete(key string) error {
	if err := os.Remove(filepath.Join(l.basePath, filepath.Base(key))); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
