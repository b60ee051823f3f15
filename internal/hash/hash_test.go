package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC32C(t *testing.T) {
	// Known vector for "123456789".
	assert.Equal(t, uint32(0xE3069283), CRC32C([]byte("123456789")))

	h := NewCRC32C()
	_, _ = h.Write([]byte("1234"))
	_, _ = h.Write([]byte("56789"))
	assert.Equal(t, uint32(0xE3069283), h.Sum32())
}

func TestKeyIsStable(t *testing.T) {
	// FNV-1a 64 of the empty input is the offset basis.
	assert.Equal(t, uint64(0xcbf29ce484222325), Key(nil))
	assert.Equal(t, Key([]byte("abc")), Key([]byte("abc")))
	assert.NotEqual(t, Key([]byte("abc")), Key([]byte("abd")))
}
