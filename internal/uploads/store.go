// Package uploads stores user images on local disk, keeping a file only when
// it decodes as a supported image.
package uploads

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrInvalidFileType = errors.New("file type not allowed")
	ErrInvalidImage    = errors.New("file is not a valid image")
	ErrTooLarge        = errors.New("file exceeds upload limit")
)

var allowedExtensions = map[string]string{
	".png":  "png",
	".jpg":  "jpeg",
	".jpeg": "jpeg",
}

// AllowedFile reports whether the file name has a supported image extension
func AllowedFile(name string) bool {
	_, ok := allowedExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Store saves uploads under a directory with random names
type Store struct {
	dir      string
	maxBytes int64
}

// NewStore creates the upload directory if needed
func NewStore(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload folder: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

// Save writes r under a fresh name with the original extension and verifies
// that it decodes as the image type its extension claims. On any failure the
// partially written file is removed before returning.
func (s *Store) Save(originalName string, r io.Reader) (path string, err error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	wantFormat, ok := allowedExtensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileType, originalName)
	}

	path = filepath.Join(s.dir, strings.ReplaceAll(uuid.NewString(), "-", "")+ext)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(path)
		}
	}()

	written, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}
	if written > s.maxBytes {
		return "", ErrTooLarge
	}

	if err = verifyImage(path, wantFormat); err != nil {
		return "", err
	}

	return path, nil
}

func verifyImage(path, wantFormat string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to reopen upload file: %w", err)
	}
	defer f.Close()

	_, format, err := image.DecodeConfig(f)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if format != wantFormat {
		return fmt.Errorf("%w: content is %s", ErrInvalidImage, format)
	}
	return nil
}

// Remove deletes a previously saved upload
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove upload: %w", err)
	}
	return nil
}
