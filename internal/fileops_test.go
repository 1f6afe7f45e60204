package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "writeall")
	f, err := os.Create(path)
	assert.NoError(t, err)

	data := []byte("some bytes that must land on disk in full")
	n, err := WriteAll(f, data)
	assert.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.NoError(t, f.Close())

	got, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestWriteAllEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	f, err := os.Create(path)
	assert.NoError(t, err)
	defer f.Close()

	n, err := WriteAll(f, nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}
