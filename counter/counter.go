// Package counter implements a persisted sequence counter.
//
// The value lives in a fixed-size slot of the store, encoded as a
// position-tagged codec value so that a slot read from the wrong place is
// detected instead of silently yielding a bogus sequence.
package counter

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/burrow/codec"
	"github.com/hupe1980/burrow/store"
)

// SlotSize is the number of bytes reserved per counter.
const SlotSize = 32

// ErrBadSlot is returned when a slot does not hold an int64.
var ErrBadSlot = errors.New("counter: slot does not hold a counter")

// Counter is a persisted int64. Mutations are atomic with respect to each
// other and become durable on Flush.
type Counter struct {
	st  store.Store
	ser *codec.Serializer
	pos int64

	mu    sync.Mutex
	v     int64
	dirty bool
}

// New allocates a counter slot holding zero.
func New(st store.Store, ser *codec.Serializer) (*Counter, error) {
	pos, err := st.Allocate(SlotSize)
	if err != nil {
		return nil, err
	}
	c := &Counter{st: st, ser: ser, pos: pos, dirty: true}
	if err := c.Flush(); err != nil {
		return nil, err
	}
	return c, nil
}

// Open loads the counter stored at pos.
func Open(st store.Store, ser *codec.Serializer, pos int64) (*Counter, error) {
	b, err := st.Read(pos, SlotSize)
	if err != nil {
		return nil, err
	}
	v, err := ser.ReadValueAt(codec.NewBuffer(b), pos)
	if err != nil {
		return nil, fmt.Errorf("counter: read slot %d: %w", pos, err)
	}
	n, ok := v.(int64)
	if !ok {
		return nil, fmt.Errorf("%w: %T at %d", ErrBadSlot, v, pos)
	}
	return &Counter{st: st, ser: ser, pos: pos, v: n}, nil
}

// Position returns the slot position.
func (c *Counter) Position() int64 { return c.pos }

// Get returns the current value.
func (c *Counter) Get() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

// Set replaces the value.
func (c *Counter) Set(v int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v = v
	c.dirty = true
}

// GetAndAdd adds n and returns the previous value.
func (c *Counter) GetAndAdd(n int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.v
	c.v += n
	c.dirty = true
	return old
}

// AddAndGet adds n and returns the new value.
func (c *Counter) AddAndGet(n int64) int64 {
	return c.GetAndAdd(n) + n
}

// Flush writes the value to its slot if it changed since the last flush.
func (c *Counter) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}

	buf := codec.NewBuffer(make([]byte, 0, SlotSize))
	if _, err := c.ser.WriteValueAt(buf, c.v, c.pos); err != nil {
		return err
	}
	slot := make([]byte, SlotSize)
	copy(slot, buf.Bytes())
	if _, err := c.st.Write(slot, c.pos); err != nil {
		return fmt.Errorf("counter: write slot %d: %w", c.pos, err)
	}
	c.dirty = false
	return nil
}
