package diskmap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const settle = 20 * time.Millisecond

func TestGate(t *testing.T) {
	t.Run("hold waits for mutations", func(t *testing.T) {
		g := NewGate()
		g.Enter()

		held := make(chan func(), 1)
		go func() { held <- g.Hold() }()

		// A nested entry while the barrier is pending must not block.
		g.Enter()
		g.Exit()

		select {
		case <-held:
			t.Fatal("barrier acquired while a mutation is in flight")
		case <-time.After(settle):
		}

		g.Exit()
		release := <-held
		release()
	})

	t.Run("mutations wait while held", func(t *testing.T) {
		g := NewGate()
		release := g.Hold()

		entered := make(chan struct{})
		go func() {
			g.Enter()
			close(entered)
			g.Exit()
		}()

		select {
		case <-entered:
			t.Fatal("mutation entered while the barrier is held")
		case <-time.After(settle):
		}

		release()
		<-entered

		// The gate is reusable.
		release = g.Hold()
		release()
	})

	t.Run("nil gate", func(t *testing.T) {
		var g *Gate
		g.Enter()
		g.Exit()
	})
}

func TestMap_GateBlocksMutations(t *testing.T) {
	g := NewGate()
	m := newTestMap(t, 3, func(o *Options) { o.Gate = g })

	_, _, err := m.Put("a", 1)
	require.NoError(t, err)

	release := g.Hold()
	done := make(chan error, 1)
	go func() {
		_, _, err := m.Put("b", 2)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("put completed while the barrier is held")
	case <-time.After(settle):
	}

	// Reads pass the barrier.
	v, ok, err := m.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, v)
	require.NoError(t, m.Flush())

	release()
	require.NoError(t, <-done)
	require.Equal(t, int64(2), m.Len())
}
