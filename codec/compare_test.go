package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	now := time.Now()
	tests := []struct {
		a, b any
		want int
	}{
		{int64(1), int64(2), -1},
		{int8(5), int64(5), 0},
		{uint64(1 << 63), int64(-1), 1},
		{int32(-1), uint8(0), -1},
		{2.5, int64(2), 1},
		{float32(1.5), 1.5, 0},
		{"a", "b", -1},
		{[]byte("b"), []byte("a"), 1},
		{false, true, -1},
		{now, now.Add(time.Second), -1},
		{time.Second, time.Millisecond, 1},
		{ptr(int64(3)), int64(3), 0},
		{Enum{Type: "c", Value: "a"}, Enum{Type: "c", Value: "b"}, -1},
	}
	for _, tt := range tests {
		got, err := Compare(tt.a, tt.b)
		require.NoError(t, err, "%v vs %v", tt.a, tt.b)
		assert.Equal(t, tt.want, got, "%v vs %v", tt.a, tt.b)
	}
}

func TestCompare_NotComparable(t *testing.T) {
	for _, pair := range [][2]any{
		{"a", int64(1)},
		{nil, int64(1)},
		{[]any{1}, []any{1}},
		{Enum{Type: "x"}, Enum{Type: "y"}},
	} {
		_, err := Compare(pair[0], pair[1])
		assert.ErrorIs(t, err, ErrNotComparable)
	}
}

func TestOrder(t *testing.T) {
	assert.Equal(t, -1, Order(nil, false))
	assert.Equal(t, -1, Order(true, int64(0)))
	assert.Equal(t, -1, Order(int64(100), time.Nanosecond))
	assert.Equal(t, -1, Order(time.Hour, "a"))
	assert.Equal(t, 1, Order([]byte("a"), "z"))
	assert.Equal(t, 0, Order(int64(5), 5))
	assert.Equal(t, 0, Order(struct{}{}, struct{}{}))
	assert.Equal(t, -1, Order(ptr(int64(1)), int64(2)))

	assert.True(t, Ordered(ptr("x")))
	assert.False(t, Ordered(nil))
	assert.False(t, Ordered([]any{}))
}
