// Package workspace writes generated files under a project root.
package workspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrOutsideRoot is returned for paths that escape the workspace root.
var ErrOutsideRoot = errors.New("path escapes workspace root")

// FileWriter reads and writes files relative to a root directory.
type FileWriter struct {
	fs   afero.Fs
	root string
}

// New returns a writer rooted at root on the OS filesystem.
func New(root string) (*FileWriter, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	return NewWithFs(afero.NewOsFs(), abs), nil
}

// NewWithFs returns a writer over an arbitrary filesystem. Tests use
// afero.NewMemMapFs.
func NewWithFs(fs afero.Fs, root string) *FileWriter {
	return &FileWriter{fs: fs, root: filepath.Clean(root)}
}

// Root returns the workspace root.
func (w *FileWriter) Root() string {
	return w.root
}

// Resolve maps a relative path to its location under the root.
func (w *FileWriter) Resolve(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", fmt.Errorf("empty path")
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) {
		r, err := filepath.Rel(w.root, clean)
		if err != nil || strings.HasPrefix(r, "..") {
			return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
		}
		return clean, nil
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	return filepath.Join(w.root, clean), nil
}

// WriteFile writes content, creating parent directories. It returns the
// full path written.
func (w *FileWriter) WriteFile(rel, content string) (string, error) {
	full, err := w.Resolve(rel)
	if err != nil {
		return "", err
	}
	if err := w.fs.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("create directory for %s: %w", rel, err)
	}
	if err := afero.WriteFile(w.fs, full, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	return full, nil
}

// ReadFile returns the content of a file under the root.
func (w *FileWriter) ReadFile(rel string) (string, error) {
	full, err := w.Resolve(rel)
	if err != nil {
		return "", err
	}
	data, err := afero.ReadFile(w.fs, full)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Exists reports whether a file exists under the root.
func (w *FileWriter) Exists(rel string) bool {
	full, err := w.Resolve(rel)
	if err != nil {
		return false
	}
	_, err = w.fs.Stat(full)
	return err == nil
}
