// Package files stores task attachments on disk under the configured
// upload directory.
package files

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrTooLarge     = errors.New("file exceeds the upload size limit")
	ErrExtension    = errors.New("file extension not allowed")
	ErrOutsideStore = errors.New("path escapes the upload directory")
)

// Store writes attachment files under a single directory with an
// extension allow-list and a size cap.
type Store struct {
	dir      string
	maxBytes int64
	allowed  map[string]bool
}

// NewStore creates the upload directory if needed and returns a Store.
func NewStore(dir string, maxBytes int64, allowedExt []string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	allowed := make(map[string]bool, len(allowedExt))
	for _, e := range allowedExt {
		allowed[strings.ToLower(e)] = true
	}

	return &Store{dir: abs, maxBytes: maxBytes, allowed: allowed}, nil
}

// Dir returns the absolute upload directory.
func (s *Store) Dir() string { return s.dir }

// Allowed reports whether the filename carries an allow-listed extension.
func (s *Store) Allowed(filename string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return false
	}
	return s.allowed[ext]
}

// SanitizeFilename strips path components and reduces the name to a
// safe character set, keeping the extension.
func SanitizeFilename(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		out = "file"
	}
	return out
}

// Save writes the reader to disk as {taskID}_{uuid}_{sanitized-name}
// and returns the stored path and size. The file is removed again when
// the size cap is exceeded.
func (s *Store) Save(taskID int64, filename string, r io.Reader) (string, int64, error) {
	if !s.Allowed(filename) {
		return "", 0, ErrExtension
	}

	name := fmt.Sprintf("%d_%s_%s", taskID, uuid.New().String(), SanitizeFilename(filename))
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}

	// One extra byte past the cap detects oversized input.
	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}
	if n > s.maxBytes {
		os.Remove(path)
		return "", 0, ErrTooLarge
	}

	return path, n, nil
}

// Resolve verifies that a stored path still lives under the upload
// directory and points at an existing file.
func (s *Store) Resolve(storedPath string) (string, error) {
	abs, err := filepath.Abs(storedPath)
	if err != nil {
		return "", err
	}
	if abs != s.dir && !strings.HasPrefix(abs, s.dir+string(filepath.Separator)) {
		return "", ErrOutsideStore
	}
	if _, err := os.Stat(abs); err != nil {
		return "", err
	}
	return abs, nil
}
