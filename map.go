package burrow

import (
	"context"
	"iter"
	"time"

	"github.com/hupe1980/burrow/diskmap"
)

// Map is a named map of a DB. Point operations are reported to the
// metrics collector and logger of the DB.
type Map struct {
	m       *diskmap.Map
	metrics MetricsCollector
	logger  *Logger
}

func (db *DB) wrap(name string, m *diskmap.Map) *Map {
	return &Map{m: m, metrics: db.metrics, logger: db.logger.WithStructure(name)}
}

// Get returns the value stored under k.
func (m *Map) Get(k any) (any, bool, error) {
	start := time.Now()
	v, ok, err := m.m.Get(k)
	err = translateError(err)
	m.metrics.RecordGet(time.Since(start), ok, err)
	m.logger.LogOperation(context.Background(), "get", k, err)
	return v, ok, err
}

// Put stores v under k and returns the previous value.
func (m *Map) Put(k, v any) (any, bool, error) {
	start := time.Now()
	old, ok, err := m.m.Put(k, v)
	err = translateError(err)
	m.metrics.RecordPut(time.Since(start), err)
	m.logger.LogOperation(context.Background(), "put", k, err)
	return old, ok, err
}

// PutIfAbsent stores v unless k exists; it returns the existing value.
func (m *Map) PutIfAbsent(k, v any) (any, bool, error) {
	start := time.Now()
	old, ok, err := m.m.PutIfAbsent(k, v)
	err = translateError(err)
	m.metrics.RecordPut(time.Since(start), err)
	m.logger.LogOperation(context.Background(), "put_if_absent", k, err)
	return old, ok, err
}

// Remove deletes k and returns the removed value.
func (m *Map) Remove(k any) (any, bool, error) {
	start := time.Now()
	old, ok, err := m.m.Remove(k)
	err = translateError(err)
	m.metrics.RecordRemove(time.Since(start), err)
	m.logger.LogOperation(context.Background(), "remove", k, err)
	return old, ok, err
}

// Compute atomically replaces the value of k with the result of fn.
func (m *Map) Compute(k any, fn diskmap.ComputeFunc) (any, error) {
	start := time.Now()
	v, err := m.m.Compute(k, fn)
	err = translateError(err)
	m.metrics.RecordCompute(time.Since(start), err)
	m.logger.LogOperation(context.Background(), "compute", k, err)
	return v, err
}

// ContainsKey reports whether k is present.
func (m *Map) ContainsKey(k any) (bool, error) {
	ok, err := m.m.ContainsKey(k)
	return ok, translateError(err)
}

// Len returns the number of entries.
func (m *Map) Len() int64 { return m.m.Len() }

// IsOrdered reports whether the map keeps its keys sorted.
func (m *Map) IsOrdered() bool { return m.m.IsOrdered() }

// All iterates over all entries.
func (m *Map) All() iter.Seq2[diskmap.Entry, error] { return m.m.All() }

// Keys iterates over all keys.
func (m *Map) Keys() iter.Seq2[any, error] { return m.m.Keys() }

// Range iterates in key order over the entries between lo and hi.
func (m *Map) Range(lo, hi diskmap.Bound) iter.Seq2[diskmap.Entry, error] {
	return m.m.Range(lo, hi)
}

// Ascend iterates over all entries in key order.
func (m *Map) Ascend() iter.Seq2[diskmap.Entry, error] { return m.m.Ascend() }

// Stats walks the map structure.
func (m *Map) Stats() (diskmap.Stats, error) {
	s, err := m.m.Stats()
	return s, translateError(err)
}

// Clear removes all entries.
func (m *Map) Clear() error { return translateError(m.m.Clear()) }

// Flush persists the header of the map.
func (m *Map) Flush() error { return translateError(m.m.Flush()) }

// Unwrap returns the underlying map.
func (m *Map) Unwrap() *diskmap.Map { return m.m }
