package fileio

import (
	"fmt"
	"os"
	"path"
)

// FileReader reads files relative to an optional root directory.
type FileReader struct {
	// rootDir is prepended to every path, useful for testing
	rootDir string
}

func NewReader() *FileReader {
	return &FileReader{}
}

// SetRootdir sets the root directory for the reader, useful for testing
func (r *FileReader) SetRootdir(path string) {
	r.rootDir = path
}

// PathFor returns the full path for the provided file, useful for using
// functions and libraries that don't work with the fileio.Reader
func (r *FileReader) PathFor(filePath string) string {
	return path.Join(r.rootDir, filePath)
}

// ReadFile reads the file at the provided path
func (r *FileReader) ReadFile(filePath string) ([]byte, error) {
	return os.ReadFile(r.PathFor(filePath))
}

// FileExists checks if a path exists and returns a boolean indicating
// existence, and an error if there was a problem checking the path.
func (r *FileReader) FileExists(filePath string) (bool, error) {
	_, err := os.Stat(r.PathFor(filePath))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking path %q: %w", filePath, err)
	}
	return true, nil
}
