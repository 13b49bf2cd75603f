package fileio

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/google/renameio"
)

// FileWriter writes files relative to an optional root directory. Writes are
// atomic: content lands in a temp file that is renamed into place, so a
// partially transferred artifact never appears under its final name.
type FileWriter struct {
	// rootDir is prepended to every path, useful for testing
	rootDir string
}

func NewWriter() *FileWriter {
	return &FileWriter{}
}

// SetRootdir sets the root directory for the writer, useful for testing
func (w *FileWriter) SetRootdir(path string) {
	w.rootDir = path
}

func (w *FileWriter) pathFor(filePath string) string {
	return path.Join(w.rootDir, filePath)
}

// WriteFile writes the provided data to the file at the path with the provided permissions
func (w *FileWriter) WriteFile(name string, data []byte, perm fs.FileMode) error {
	fpath := w.pathFor(name)
	if err := os.MkdirAll(filepath.Dir(fpath), defaultDirectoryPermissions); err != nil {
		return fmt.Errorf("creating directory for %q: %w", name, err)
	}
	return renameio.WriteFile(fpath, data, perm)
}

// WriteStream copies the reader into the file at the path, replacing it
// atomically once the full stream has been consumed.
func (w *FileWriter) WriteStream(name string, reader io.Reader, perm fs.FileMode) (int64, error) {
	fpath := w.pathFor(name)
	dir := filepath.Dir(fpath)
	if err := os.MkdirAll(dir, defaultDirectoryPermissions); err != nil {
		return 0, fmt.Errorf("creating directory for %q: %w", name, err)
	}

	t, err := renameio.TempFile(dir, fpath)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = t.Cleanup()
	}()

	if err := t.Chmod(perm); err != nil {
		return 0, err
	}

	buffered := bufio.NewWriter(t)
	n, err := io.Copy(buffered, reader)
	if err != nil {
		return n, err
	}
	if err := buffered.Flush(); err != nil {
		return n, err
	}

	return n, t.CloseAtomicallyReplace()
}

// MkdirAll creates the directory and any missing parents
func (w *FileWriter) MkdirAll(name string, perm fs.FileMode) error {
	return os.MkdirAll(w.pathFor(name), perm)
}

// RemoveFile removes the file if it exists
func (w *FileWriter) RemoveFile(name string) error {
	if err := os.Remove(w.pathFor(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing file %q: %w", name, err)
	}
	return nil
}
