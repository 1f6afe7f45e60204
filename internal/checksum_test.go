package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateCRC32(t *testing.T) {
	data := []byte("the quick brown fox")
	crc := CalculateCRC32(data)
	assert.True(t, VerifyCRC32(data, crc))
	assert.False(t, VerifyCRC32([]byte("the quick brown fix"), crc))
}

func TestUpdateCRC32Streaming(t *testing.T) {
	data := []byte("0123456789abcdef0123456789abcdef")

	var crc uint32
	crc = UpdateCRC32(crc, data[:7])
	crc = UpdateCRC32(crc, data[7:20])
	crc = UpdateCRC32(crc, data[20:])

	assert.Equal(t, CalculateCRC32(data), crc)
}
