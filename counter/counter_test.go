package counter

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/burrow/codec"
	"github.com/hupe1980/burrow/store"
)

func setup(t *testing.T) (store.Store, *codec.Serializer) {
	t.Helper()
	st, err := store.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, codec.NewSerializer(codec.NewRegistry())
}

func TestCounter(t *testing.T) {
	st, ser := setup(t)
	c, err := New(st, ser)
	require.NoError(t, err)

	assert.Equal(t, int64(0), c.Get())
	assert.Equal(t, int64(0), c.GetAndAdd(5))
	assert.Equal(t, int64(7), c.AddAndGet(2))
	c.Set(42)
	assert.Equal(t, int64(42), c.Get())

	require.NoError(t, c.Flush())
	re, err := Open(st, ser, c.Position())
	require.NoError(t, err)
	assert.Equal(t, int64(42), re.Get())
}

func TestCounter_UnflushedChangesAreNotPersisted(t *testing.T) {
	st, ser := setup(t)
	c, err := New(st, ser)
	require.NoError(t, err)
	c.Set(9)

	re, err := Open(st, ser, c.Position())
	require.NoError(t, err)
	assert.Equal(t, int64(0), re.Get())
}

func TestCounter_ConcurrentGetAndAdd(t *testing.T) {
	st, ser := setup(t)
	c, err := New(st, ser)
	require.NoError(t, err)

	const workers, perWorker = 8, 1000
	seen := make([]int64, 0, workers*perWorker)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, perWorker)
			for range perWorker {
				local = append(local, c.GetAndAdd(1))
			}
			mu.Lock()
			seen = append(seen, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(workers*perWorker), c.Get())
	unique := make(map[int64]struct{}, len(seen))
	for _, v := range seen {
		unique[v] = struct{}{}
	}
	assert.Len(t, unique, workers*perWorker)
}

func TestCounter_OpenWrongPosition(t *testing.T) {
	st, ser := setup(t)
	c, err := New(st, ser)
	require.NoError(t, err)
	other, err := New(st, ser)
	require.NoError(t, err)

	// A slot copied to another position keeps its position tag.
	b, err := st.Read(c.Position(), SlotSize)
	require.NoError(t, err)
	_, err = st.Write(b, other.Position())
	require.NoError(t, err)

	_, err = Open(st, ser, other.Position())
	require.ErrorIs(t, err, codec.ErrChecksum)
}
