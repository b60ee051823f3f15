package diskmap

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/hupe1980/burrow/codec"
	"github.com/hupe1980/burrow/internal/hash"
	"github.com/hupe1980/burrow/layout"
	"github.com/hupe1980/burrow/store"
)

// Options configures a map.
type Options struct {
	// Locking selects the synchronization strategy. Defaults to
	// StripedLocking(DefaultStripes).
	Locking Locking

	// Gate, when set, is entered by every mutation so that a barrier can
	// wait for the volume to be at rest. Maps of one volume share it.
	Gate *Gate

	// Logger receives structural events such as bucket conversions.
	Logger *slog.Logger
}

func buildOptions(optFns []func(o *Options)) Options {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Locking == nil {
		opts.Locking = StripedLocking(DefaultStripes)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return opts
}

// Entry is a key/value pair produced by iteration.
type Entry struct {
	Key   any
	Value any
}

// Map is a disk-backed associative container. It is safe for concurrent use
// unless constructed with NoLocking.
type Map struct {
	st     store.Store
	ser    *codec.Serializer
	lock   Locking
	gate   *Gate
	logger *slog.Logger

	params params
	header *layout.Header // Root changes only under the exclusive structure lock
	count  atomic.Int64
}

// New allocates a new, empty map in st.
func New(st store.Store, ser *codec.Serializer, loadFactor uint8, optFns ...func(o *Options)) (*Map, error) {
	return create(st, ser, loadFactor, layout.MapKindMap, optFns)
}

// NewOrdered allocates a new, empty ordered map in st.
func NewOrdered(st store.Store, ser *codec.Serializer, optFns ...func(o *Options)) (*Map, error) {
	return create(st, ser, Ordered, layout.MapKindMap, optFns)
}

// Open loads the map whose header is at pos.
func Open(st store.Store, ser *codec.Serializer, pos int64, optFns ...func(o *Options)) (*Map, error) {
	return open(st, ser, pos, layout.MapKindMap, optFns)
}

func create(st store.Store, ser *codec.Serializer, loadFactor uint8, kind layout.MapKind, optFns []func(o *Options)) (*Map, error) {
	p, err := paramsFor(loadFactor)
	if err != nil {
		return nil, err
	}
	opts := buildOptions(optFns)
	opts.Gate.Enter()
	defer opts.Gate.Exit()

	h, err := layout.NewHeader(st, loadFactor, kind)
	if err != nil {
		return nil, fmt.Errorf("diskmap: allocate header: %w", err)
	}
	m := newMap(st, ser, p, h, opts)
	if h.Root, err = m.newRoot(); err != nil {
		return nil, err
	}
	if err := h.Write(st); err != nil {
		return nil, fmt.Errorf("diskmap: write header: %w", err)
	}
	m.logger.Debug("map created", slog.Int("load_factor", int(loadFactor)))
	return m, nil
}

func open(st store.Store, ser *codec.Serializer, pos int64, kind layout.MapKind, optFns []func(o *Options)) (*Map, error) {
	h, err := layout.ReadHeader(st, pos)
	if err != nil {
		return nil, fmt.Errorf("diskmap: read header: %w", err)
	}
	if h.Kind != kind {
		return nil, fmt.Errorf("%w: header at %d", ErrKindMismatch, pos)
	}
	p, err := paramsFor(h.LoadFactor)
	if err != nil {
		return nil, err
	}
	m := newMap(st, ser, p, h, buildOptions(optFns))
	m.count.Store(h.Count)
	return m, nil
}

func newMap(st store.Store, ser *codec.Serializer, p params, h *layout.Header, opts Options) *Map {
	return &Map{
		st:     st,
		ser:    ser,
		lock:   opts.Locking,
		gate:   opts.Gate,
		logger: opts.Logger.With(slog.Int64("header", h.Self)),
		params: p,
		header: h,
	}
}

// newRoot allocates the root: a trie node, or the single bucket of an
// ordered map.
func (m *Map) newRoot() (int64, error) {
	if m.params.depth == 0 {
		leaf, err := layout.NewLeaf(m.st, layout.KindSkipList)
		if err != nil {
			return 0, err
		}
		return leaf.Self, nil
	}
	node, err := layout.NewBitMapNode(m.st)
	if err != nil {
		return 0, err
	}
	return node.Self, nil
}

// HeaderPos returns the position of the map header.
func (m *Map) HeaderPos() int64 { return m.header.Self }

// LoadFactor returns the load factor the map was created with.
func (m *Map) LoadFactor() uint8 { return m.header.LoadFactor }

// IsOrdered reports whether the map is a single ordered skip list.
func (m *Map) IsOrdered() bool { return m.params.depth == 0 }

// Len returns the number of entries.
func (m *Map) Len() int64 { return m.count.Load() }

// Serializer returns the serializer used for keys and values.
func (m *Map) Serializer() *codec.Serializer { return m.ser }

// key is an encoded lookup key.
type key struct {
	enc  []byte
	hash uint64
	val  any
}

func (m *Map) makeKey(k any) (key, error) {
	enc, err := m.ser.MarshalKey(k)
	if err != nil {
		return key{}, fmt.Errorf("diskmap: encode key: %w", err)
	}
	if m.IsOrdered() && !codec.Ordered(k) {
		return key{}, fmt.Errorf("%w: key of type %T in ordered map", codec.ErrNotComparable, k)
	}
	return key{enc: enc, hash: hash.Key(enc), val: k}, nil
}

func (m *Map) writeValue(v any) (int64, error) {
	b, err := m.ser.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("diskmap: encode value: %w", err)
	}
	pos, err := m.st.Allocate(store.PayloadSize(len(b)))
	if err != nil {
		return 0, err
	}
	if err := m.st.WritePayload(pos, b); err != nil {
		return 0, err
	}
	return pos, nil
}

func (m *Map) readValue(pos int64) (any, error) {
	if pos == 0 {
		return nil, nil
	}
	b, err := m.st.ReadPayload(pos)
	if err != nil {
		return nil, err
	}
	v, err := m.ser.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("diskmap: decode value at %d: %w", pos, err)
	}
	return v, nil
}

// Get returns the value stored under k.
func (m *Map) Get(k any) (any, bool, error) {
	kk, err := m.makeKey(k)
	if err != nil {
		return nil, false, err
	}
	var valuePos int64
	found := false
	if err := m.withBucket(kk.hash, false, false, func(b *bucket) error {
		valuePos, found, err = b.lookup(kk)
		return err
	}); err != nil || !found {
		return nil, false, err
	}
	v, err := m.readValue(valuePos)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// ContainsKey reports whether k is present.
func (m *Map) ContainsKey(k any) (bool, error) {
	kk, err := m.makeKey(k)
	if err != nil {
		return false, err
	}
	found := false
	err = m.withBucket(kk.hash, false, false, func(b *bucket) error {
		_, found, err = b.lookup(kk)
		return err
	})
	return found, err
}

// Put stores v under k and returns the previous value, if any.
func (m *Map) Put(k, v any) (any, bool, error) {
	m.gate.Enter()
	defer m.gate.Exit()

	kk, err := m.makeKey(k)
	if err != nil {
		return nil, false, err
	}
	valuePos, err := m.writeValue(v)
	if err != nil {
		return nil, false, err
	}
	var (
		oldPos int64
		found  bool
	)
	if err := m.withBucket(kk.hash, true, true, func(b *bucket) error {
		oldPos, found, err = b.upsert(kk, valuePos, true)
		return err
	}); err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	old, err := m.readValue(oldPos)
	return old, true, err
}

// PutIfAbsent stores v only if k is absent. It returns the existing value
// and true if k was present.
func (m *Map) PutIfAbsent(k, v any) (any, bool, error) {
	m.gate.Enter()
	defer m.gate.Exit()

	kk, err := m.makeKey(k)
	if err != nil {
		return nil, false, err
	}
	var (
		oldPos int64
		found  bool
	)
	if err := m.withBucket(kk.hash, true, true, func(b *bucket) error {
		if oldPos, found, err = b.lookup(kk); err != nil || found {
			return err
		}
		valuePos, err := m.writeValue(v)
		if err != nil {
			return err
		}
		_, _, err = b.upsert(kk, valuePos, true)
		return err
	}); err != nil || !found {
		return nil, false, err
	}
	old, err := m.readValue(oldPos)
	return old, true, err
}

// Remove deletes k and returns the removed value, if any. The space of the
// entry is not reclaimed.
func (m *Map) Remove(k any) (any, bool, error) {
	m.gate.Enter()
	defer m.gate.Exit()

	kk, err := m.makeKey(k)
	if err != nil {
		return nil, false, err
	}
	var (
		oldPos int64
		found  bool
	)
	if err := m.withBucket(kk.hash, false, true, func(b *bucket) error {
		oldPos, found, err = b.remove(kk)
		return err
	}); err != nil || !found {
		return nil, false, err
	}
	old, err := m.readValue(oldPos)
	return old, true, err
}

// ComputeFunc receives the current value (ok is false when absent) and
// returns the new value. Returning keep == false removes the entry.
type ComputeFunc func(old any, ok bool) (v any, keep bool, err error)

// Compute atomically replaces the value of k with the result of fn. fn runs
// under the bucket lock and must not access the map. It returns the value
// stored after the call (nil when the entry was removed or not created).
func (m *Map) Compute(k any, fn ComputeFunc) (any, error) {
	m.gate.Enter()
	defer m.gate.Exit()

	kk, err := m.makeKey(k)
	if err != nil {
		return nil, err
	}
	var result any
	err = m.withBucket(kk.hash, true, true, func(b *bucket) error {
		oldPos, found, err := b.lookup(kk)
		if err != nil {
			return err
		}
		var old any
		if found {
			if old, err = m.readValue(oldPos); err != nil {
				return err
			}
		}
		v, keep, err := fn(old, found)
		if err != nil {
			return err
		}
		if !keep {
			if found {
				_, _, err = b.remove(kk)
			}
			return err
		}
		valuePos, err := m.writeValue(v)
		if err != nil {
			return err
		}
		if _, _, err = b.upsert(kk, valuePos, true); err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// Clear removes every entry. The previous structure becomes unreachable;
// its space is reused only after a store reset.
func (m *Map) Clear() error {
	m.gate.Enter()
	defer m.gate.Exit()

	sl := m.lock.Structure()
	sl.Lock()
	defer sl.Unlock()

	root, err := m.newRoot()
	if err != nil {
		return err
	}
	m.header.Root = root
	m.header.Count = 0
	m.count.Store(0)
	if err := m.header.Write(m.st); err != nil {
		return err
	}
	m.logger.Debug("map cleared")
	return nil
}

// Flush persists the header, including the entry count.
func (m *Map) Flush() error {
	sl := m.lock.Structure()
	sl.Lock()
	defer sl.Unlock()

	m.header.Count = m.count.Load()
	return m.header.Write(m.st)
}
