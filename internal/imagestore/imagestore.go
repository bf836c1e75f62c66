// Package imagestore persists generated image bytes on the local filesystem
// under uuid-derived filenames.
package imagestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	dirMode  = 0o755
	fileMode = 0o644
)

// Store writes generated images to a directory and maps filenames to the
// public path they are served at.
type Store struct {
	dir      string
	basePath string
}

// New creates the image store, ensuring the target directory exists.
func New(dir, basePath string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("image directory is empty")
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}
	return &Store{
		dir:      dir,
		basePath: strings.TrimSuffix(basePath, "/"),
	}, nil
}

// Save writes data under a generated filename and returns that filename.
func (s *Store) Save(data []byte, ext string) (string, error) {
	if ext == "" {
		ext = ".png"
	}
	filename := uuid.New().String() + ext

	if err := os.WriteFile(filepath.Join(s.dir, filename), data, fileMode); err != nil {
		return "", fmt.Errorf("write image file: %w", err)
	}
	return filename, nil
}

// Remove deletes a stored file. A file already gone is not an error.
func (s *Store) Remove(filename string) error {
	err := os.Remove(filepath.Join(s.dir, filepath.Base(filename)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove image file: %w", err)
	}
	return nil
}

// URLPath returns the public path a stored file is served at.
func (s *Store) URLPath(filename string) string {
	return path.Join(s.basePath, filename)
}

// Dir returns the directory files are written to, for static serving.
func (s *Store) Dir() string {
	return s.dir
}
