package fileio

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAndReadFile(t *testing.T) {
	require := require.New(t)
	rw := NewReadWriter(WithTestRootDir(t.TempDir()))

	require.NoError(rw.MkdirAll("/etc/updatectl", 0o755))
	require.NoError(rw.WriteFile("/etc/updatectl/config.yaml", []byte("log-level: debug\n"), DefaultFilePermissions))

	contents, err := rw.ReadFile("/etc/updatectl/config.yaml")
	require.NoError(err)
	require.Equal("log-level: debug\n", string(contents))
}

func TestWriteStream(t *testing.T) {
	require := require.New(t)
	rw := NewReadWriter(WithTestRootDir(t.TempDir()))

	require.NoError(rw.MkdirAll("/artifacts", 0o755))
	n, err := rw.WriteStream("/artifacts/payload.bin", bytes.NewReader([]byte("payload bytes")), DefaultFilePermissions)
	require.NoError(err)
	require.Equal(int64(len("payload bytes")), n)

	contents, err := rw.ReadFile("/artifacts/payload.bin")
	require.NoError(err)
	require.Equal("payload bytes", string(contents))
}

func TestWriteStreamReplacesAtomically(t *testing.T) {
	require := require.New(t)
	rw := NewReadWriter(WithTestRootDir(t.TempDir()))

	require.NoError(rw.MkdirAll("/artifacts", 0o755))
	_, err := rw.WriteStream("/artifacts/payload.bin", strings.NewReader("first"), DefaultFilePermissions)
	require.NoError(err)
	_, err = rw.WriteStream("/artifacts/payload.bin", strings.NewReader("second"), DefaultFilePermissions)
	require.NoError(err)

	contents, err := rw.ReadFile("/artifacts/payload.bin")
	require.NoError(err)
	require.Equal("second", string(contents))

	// no temp file left behind next to the target
	entries, err := os.ReadDir(filepath.Dir(rw.PathFor("/artifacts/payload.bin")))
	require.NoError(err)
	require.Len(entries, 1)
}

func TestFileExists(t *testing.T) {
	require := require.New(t)
	rw := NewReadWriter(WithTestRootDir(t.TempDir()))

	exists, err := rw.FileExists("/missing")
	require.NoError(err)
	require.False(exists)

	require.NoError(rw.WriteFile("/present", []byte("x"), DefaultFilePermissions))
	exists, err = rw.FileExists("/present")
	require.NoError(err)
	require.True(exists)
}

func TestRemoveFile(t *testing.T) {
	require := require.New(t)
	rw := NewReadWriter(WithTestRootDir(t.TempDir()))

	require.NoError(rw.WriteFile("/victim", []byte("x"), DefaultFilePermissions))
	require.NoError(rw.RemoveFile("/victim"))

	exists, err := rw.FileExists("/victim")
	require.NoError(err)
	require.False(exists)

	// removing a missing file is not an error
	require.NoError(rw.RemoveFile("/victim"))
}

func TestPathForIsScopedToRootDir(t *testing.T) {
	require := require.New(t)
	root := t.TempDir()
	rw := NewReadWriter(WithTestRootDir(root))

	require.Equal(filepath.Join(root, "etc/hosts"), rw.PathFor("/etc/hosts"))
}
