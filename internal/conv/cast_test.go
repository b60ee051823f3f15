package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntToUint32(t *testing.T) {
	v, err := IntToUint32(42)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), v)

	_, err = IntToUint32(-1)
	assert.Error(t, err)

	_, err = IntToUint32(math.MaxUint32 + 1)
	assert.Error(t, err)
}

func TestUint64Conversions(t *testing.T) {
	n, err := Uint64ToInt(7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = Uint64ToInt64(math.MaxUint64)
	assert.Error(t, err)

	p, err := Uint64ToInt64(1 << 40)
	require.NoError(t, err)
	assert.Equal(t, int64(1<<40), p)
}

func TestInt64ToInt(t *testing.T) {
	_, err := Int64ToInt(-5)
	assert.Error(t, err)

	n, err := Int64ToInt(1024)
	require.NoError(t, err)
	assert.Equal(t, 1024, n)

	u, err := Uint32ToInt(math.MaxUint32)
	require.NoError(t, err)
	assert.Equal(t, math.MaxUint32, u)
}
