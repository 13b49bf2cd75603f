package fileio

import (
	"io"
	"io/fs"
	"os"
)

type Writer interface {
	SetRootdir(path string)
	WriteFile(name string, data []byte, perm fs.FileMode) error
	// WriteStream copies the reader to the named file atomically and returns
	// the number of bytes written.
	WriteStream(name string, reader io.Reader, perm fs.FileMode) (int64, error)
	MkdirAll(name string, perm fs.FileMode) error
	RemoveFile(name string) error
}

type Reader interface {
	SetRootdir(path string)
	PathFor(filePath string) string
	ReadFile(filePath string) ([]byte, error)
	FileExists(filePath string) (bool, error)
}

type ReadWriter interface {
	Reader
	Writer
}

type readWriter struct {
	*FileReader
	*FileWriter
}

func NewReadWriter(opts ...Option) ReadWriter {
	rw := &readWriter{
		FileReader: NewReader(),
		FileWriter: NewWriter(),
	}
	for _, opt := range opts {
		opt(rw)
	}
	return rw
}

func (rw *readWriter) SetRootdir(path string) {
	rw.FileReader.SetRootdir(path)
	rw.FileWriter.SetRootdir(path)
}

type Option func(*readWriter)

// WithTestRootDir sets the root directory for the reader and writer, useful for testing.
func WithTestRootDir(rootDir string) Option {
	return func(rw *readWriter) {
		if rootDir != "" {
			rw.SetRootdir(rootDir)
		}
	}
}

// DefaultFilePermissions is the mode used when callers do not provide one.
const DefaultFilePermissions os.FileMode = 0o644

const defaultDirectoryPermissions os.FileMode = 0o755
