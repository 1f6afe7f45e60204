package rebuild

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/restitch/restitch/internal"
	"github.com/stretchr/testify/assert"
)

func TestFileSinkSequentialWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	sink, err := NewFileSink(path)
	assert.NoError(t, err)

	first := make([]byte, SectorSize)
	for i := range first {
		first[i] = 0x11
	}
	tail := []byte("short final sector")

	assert.NoError(t, sink.WriteSector(0, first))
	assert.ErrorIs(t, sink.WriteSector(2, tail), internal.ErrNonSequential)
	assert.NoError(t, sink.WriteSector(1, tail))
	assert.NoError(t, sink.Close())

	got, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Equal(t, append(first, tail...), got)
}
