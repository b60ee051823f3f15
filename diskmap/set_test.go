package diskmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	for _, lf := range []uint8{Ordered, 2} {
		st := newTestStore(t)
		ser := newSerializer()
		s, err := NewSet(st, ser, lf)
		require.NoError(t, err)

		added, err := s.Add("x")
		require.NoError(t, err)
		assert.True(t, added)

		added, err = s.Add("x")
		require.NoError(t, err)
		assert.False(t, added)

		_, err = s.Add("y")
		require.NoError(t, err)
		assert.Equal(t, int64(2), s.Len())

		ok, err := s.Contains("y")
		require.NoError(t, err)
		assert.True(t, ok)

		removed, err := s.Remove("y")
		require.NoError(t, err)
		assert.True(t, removed)
		removed, err = s.Remove("y")
		require.NoError(t, err)
		assert.False(t, removed)

		var members []any
		for v, err := range s.All() {
			require.NoError(t, err)
			members = append(members, v)
		}
		assert.Equal(t, []any{"x"}, members)

		require.NoError(t, s.Flush())
		re, err := OpenSet(st, ser, s.HeaderPos())
		require.NoError(t, err)
		assert.Equal(t, int64(1), re.Len())

		_, err = Open(st, ser, s.HeaderPos())
		require.ErrorIs(t, err, ErrKindMismatch)

		require.NoError(t, re.Clear())
		assert.Equal(t, int64(0), re.Len())
	}
}
