package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRU_Eviction(t *testing.T) {
	c := NewLRU[string, int](2)

	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a") // a is now most recent
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted")

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Len())
}

func TestLRU_UpdateAndDelete(t *testing.T) {
	c := NewLRU[int, string](4)

	c.Set(1, "one")
	c.Set(1, "uno")
	v, _ := c.Get(1)
	assert.Equal(t, "uno", v)

	c.Delete(1)
	_, ok := c.Get(1)
	assert.False(t, ok)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	c.Set(2, "two")
	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestLRU_Concurrent(t *testing.T) {
	c := NewLRU[string, int](64)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 500 {
				k := fmt.Sprintf("%d-%d", g, i%100)
				c.Set(k, i)
				_, _ = c.Get(k)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 64)
}
