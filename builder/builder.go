package builder

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/burrow/codec"
	"github.com/hupe1980/burrow/counter"
	"github.com/hupe1980/burrow/diskmap"
	"github.com/hupe1980/burrow/internal/resource"
	"github.com/hupe1980/burrow/store"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("builder: closed")

	// ErrKindMismatch is returned when a name is reused for a different
	// kind of structure.
	ErrKindMismatch = errors.New("builder: name bound to another kind")

	// ErrReservedName is returned for names starting with "__".
	ErrReservedName = errors.New("builder: reserved name")
)

// Kind identifies the structure a catalog name is bound to.
type Kind int64

const (
	KindMap Kind = iota + 1
	KindOrderedMap
	KindSet
	KindCounter
)

func (k Kind) String() string {
	switch k {
	case KindMap:
		return "map"
	case KindOrderedMap:
		return "ordered map"
	case KindSet:
		return "set"
	case KindCounter:
		return "counter"
	default:
		return fmt.Sprintf("kind(%d)", int64(k))
	}
}

const (
	typesName         = "__types"
	catalogLoadFactor = 2
)

// Builder creates and recycles the structures of one store.
type Builder struct {
	st     store.Store
	reg    *codec.Registry
	ser    *codec.Serializer
	opts   Options
	logger *slog.Logger
	gate   *diskmap.Gate

	mu       sync.Mutex
	closed   bool
	catalog  *diskmap.Map
	types    *diskmap.Map
	maps     map[string]*diskmap.Map
	sets     map[string]*diskmap.Set
	counters map[string]*counter.Counter

	pool *tempPool
}

// New opens the catalog of st, creating it when the store is empty.
func New(st store.Store, optFns ...func(o *Options)) (*Builder, error) {
	opts := buildOptions(optFns)

	var serOpts []func(o *codec.Options)
	if opts.CompressThreshold > 0 {
		serOpts = append(serOpts, func(o *codec.Options) { o.CompressThreshold = opts.CompressThreshold })
	}

	b := &Builder{
		st:     st,
		reg:    opts.Registry,
		ser:    codec.NewSerializer(opts.Registry, serOpts...),
		opts:   opts,
		logger: opts.Logger,
		gate:   diskmap.NewGate(),
	}
	b.pool = newTempPool(opts.TempPoolSize)
	if err := b.init(); err != nil {
		return nil, err
	}
	b.reg.OnAssign(b.persistType)
	return b, nil
}

func (b *Builder) mapOptions(o *diskmap.Options) {
	o.Locking = b.opts.Locking()
	o.Gate = b.gate
	o.Logger = b.logger
}

// init loads or creates the catalog and the type table.
func (b *Builder) init() error {
	b.maps = make(map[string]*diskmap.Map)
	b.sets = make(map[string]*diskmap.Set)
	b.counters = make(map[string]*counter.Counter)

	if root := b.st.Root(); root != 0 {
		catalog, err := diskmap.Open(b.st, b.ser, root, b.mapOptions)
		if err != nil {
			return fmt.Errorf("builder: open catalog: %w", err)
		}
		b.catalog = catalog
		if b.types, err = b.openTypes(); err != nil {
			return err
		}
		b.logger.Info("catalog opened", slog.Int64("root", root), slog.Int64("entries", catalog.Len()))
		return nil
	}

	catalog, err := diskmap.New(b.st, b.ser, catalogLoadFactor, b.mapOptions)
	if err != nil {
		return fmt.Errorf("builder: create catalog: %w", err)
	}
	b.catalog = catalog
	types, err := diskmap.New(b.st, b.ser, catalogLoadFactor, b.mapOptions)
	if err != nil {
		return fmt.Errorf("builder: create type table: %w", err)
	}
	b.types = types
	if _, _, err := catalog.Put(typesName, []int64{int64(KindMap), types.HeaderPos()}); err != nil {
		return err
	}
	// Ids assigned before a reset must stay resolvable.
	for name, id := range b.reg.Table() {
		if err := b.persistType(name, id); err != nil {
			return err
		}
	}
	if err := b.flushCatalog(); err != nil {
		return err
	}
	b.st.SetRoot(catalog.HeaderPos())
	b.logger.Info("catalog created", slog.Int64("root", catalog.HeaderPos()))
	return nil
}

func (b *Builder) openTypes() (*diskmap.Map, error) {
	kind, pos, ok, err := b.lookup(typesName)
	if err != nil {
		return nil, err
	}
	if !ok || kind != KindMap {
		return nil, fmt.Errorf("builder: type table missing from catalog")
	}
	types, err := diskmap.Open(b.st, b.ser, pos, b.mapOptions)
	if err != nil {
		return nil, fmt.Errorf("builder: open type table: %w", err)
	}
	table := make(map[string]uint32, types.Len())
	for e, err := range types.All() {
		if err != nil {
			return nil, err
		}
		name, _ := e.Key.(string)
		id, ok := e.Value.(uint32)
		if name == "" || !ok {
			return nil, fmt.Errorf("builder: malformed type table entry %v", e.Key)
		}
		table[name] = id
	}
	if err := b.reg.Load(table); err != nil {
		return nil, err
	}
	return types, nil
}

func (b *Builder) persistType(name string, id uint32) error {
	b.logger.Debug("type id assigned", slog.String("type", name), slog.Any("id", id))
	_, _, err := b.types.Put(name, id)
	return err
}

// lookup resolves a catalog name.
func (b *Builder) lookup(name string) (Kind, int64, bool, error) {
	v, ok, err := b.catalog.Get(name)
	if err != nil || !ok {
		return 0, 0, false, err
	}
	ref, valid := v.([]int64)
	if !valid || len(ref) != 2 {
		return 0, 0, false, fmt.Errorf("builder: malformed catalog entry %q", name)
	}
	return Kind(ref[0]), ref[1], true, nil
}

// resolve returns the header position bound to name, calling create when
// the name is new. The caller holds b.mu.
func (b *Builder) resolve(name string, kind Kind, create func() (int64, error)) (int64, bool, error) {
	if b.closed {
		return 0, false, ErrClosed
	}
	if len(name) >= 2 && name[:2] == "__" {
		return 0, false, fmt.Errorf("%w: %q", ErrReservedName, name)
	}
	got, pos, ok, err := b.lookup(name)
	if err != nil {
		return 0, false, err
	}
	if ok {
		if got != kind {
			return 0, false, fmt.Errorf("%w: %q is a %s, not a %s", ErrKindMismatch, name, got, kind)
		}
		return pos, false, nil
	}
	if pos, err = create(); err != nil {
		return 0, false, err
	}
	if _, _, err := b.catalog.Put(name, []int64{int64(kind), pos}); err != nil {
		return 0, false, err
	}
	b.logger.Info("structure created", slog.String("name", name), slog.String("kind", kind.String()), slog.Int64("header", pos))
	return pos, true, nil
}

// GetMap returns the hash map called name, creating it with loadFactor when
// it does not exist. The load factor of an existing map is kept.
func (b *Builder) GetMap(name string, loadFactor uint8) (*diskmap.Map, error) {
	return b.getMap(name, KindMap, loadFactor)
}

// GetOrderedMap returns the ordered map called name.
func (b *Builder) GetOrderedMap(name string) (*diskmap.Map, error) {
	return b.getMap(name, KindOrderedMap, diskmap.Ordered)
}

func (b *Builder) getMap(name string, kind Kind, loadFactor uint8) (*diskmap.Map, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if m, ok := b.maps[name]; ok {
		if m.IsOrdered() != (kind == KindOrderedMap) {
			return nil, fmt.Errorf("%w: %q", ErrKindMismatch, name)
		}
		return m, nil
	}
	var created *diskmap.Map
	pos, isNew, err := b.resolve(name, kind, func() (int64, error) {
		m, err := diskmap.New(b.st, b.ser, loadFactor, b.mapOptions)
		if err != nil {
			return 0, err
		}
		created = m
		return m.HeaderPos(), nil
	})
	if err != nil {
		return nil, err
	}
	m := created
	if !isNew {
		if m, err = diskmap.Open(b.st, b.ser, pos, b.mapOptions); err != nil {
			return nil, err
		}
	}
	b.maps[name] = m
	return m, nil
}

// GetSet returns the set called name.
func (b *Builder) GetSet(name string, loadFactor uint8) (*diskmap.Set, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.sets[name]; ok {
		return s, nil
	}
	var created *diskmap.Set
	pos, isNew, err := b.resolve(name, KindSet, func() (int64, error) {
		s, err := diskmap.NewSet(b.st, b.ser, loadFactor, b.mapOptions)
		if err != nil {
			return 0, err
		}
		created = s
		return s.HeaderPos(), nil
	})
	if err != nil {
		return nil, err
	}
	s := created
	if !isNew {
		if s, err = diskmap.OpenSet(b.st, b.ser, pos, b.mapOptions); err != nil {
			return nil, err
		}
	}
	b.sets[name] = s
	return s, nil
}

// GetCounter returns the counter called name.
func (b *Builder) GetCounter(name string) (*counter.Counter, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.counters[name]; ok {
		return c, nil
	}
	var created *counter.Counter
	pos, isNew, err := b.resolve(name, KindCounter, func() (int64, error) {
		c, err := counter.New(b.st, b.ser)
		if err != nil {
			return 0, err
		}
		created = c
		return c.Position(), nil
	})
	if err != nil {
		return nil, err
	}
	c := created
	if !isNew {
		if c, err = counter.Open(b.st, b.ser, pos); err != nil {
			return nil, err
		}
	}
	b.counters[name] = c
	return c, nil
}

// NewMapHeader allocates an anonymous map. It is not recorded in the
// catalog; the caller keeps its HeaderPos to reopen it.
func (b *Builder) NewMapHeader(loadFactor uint8) (*diskmap.Map, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return diskmap.New(b.st, b.ser, loadFactor, b.mapOptions)
}

// Names returns the catalog names in sorted order.
func (b *Builder) Names() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	var names []string
	for k, err := range b.catalog.Keys() {
		if err != nil {
			return nil, err
		}
		if name, ok := k.(string); ok && name != typesName {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// Store returns the underlying store.
func (b *Builder) Store() store.Store { return b.st }

// Registry returns the codec registry.
func (b *Builder) Registry() *codec.Registry { return b.reg }

// Serializer returns the shared serializer.
func (b *Builder) Serializer() *codec.Serializer { return b.ser }

// Resources returns the shared resource controller, which may be nil.
func (b *Builder) Resources() *resource.Controller { return b.opts.Resources }

// Logger returns the builder logger.
func (b *Builder) Logger() *slog.Logger { return b.logger }

func (b *Builder) flushCatalog() error {
	if err := b.types.Flush(); err != nil {
		return err
	}
	return b.catalog.Flush()
}

// Commit flushes every structure handed out, then the store.
func (b *Builder) Commit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	return b.commitLocked()
}

func (b *Builder) commitLocked() error {
	var g errgroup.Group
	for _, m := range b.maps {
		g.Go(m.Flush)
	}
	for _, s := range b.sets {
		g.Go(s.Flush)
	}
	for _, c := range b.counters {
		g.Go(c.Flush)
	}
	g.Go(b.flushCatalog)
	if err := g.Wait(); err != nil {
		return fmt.Errorf("builder: flush: %w", err)
	}
	return b.st.Commit()
}

// Quiesce commits and then runs fn while no mutation is in flight, so fn
// sees the store exactly as committed. Mutations arriving meanwhile wait
// until fn returns. fn must not mutate structures of this builder.
func (b *Builder) Quiesce(fn func() error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	release := b.gate.Hold()
	defer release()
	if err := b.commitLocked(); err != nil {
		return err
	}
	return fn()
}

// Close commits and closes the store.
func (b *Builder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	err := b.commitLocked()
	b.closed = true
	b.pool.drain()
	return errors.Join(err, b.st.Close())
}

// Reset truncates the store and starts an empty catalog. Structures handed
// out before the reset must not be used afterwards. Registered types and
// their ids survive.
func (b *Builder) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	b.pool.drain()
	if err := b.st.Reset(); err != nil {
		return err
	}
	if err := b.init(); err != nil {
		return err
	}
	b.logger.Info("builder reset")
	return nil
}

// Reload reopens the catalog after the store contents were replaced
// underneath the builder, as a backup import does. Structures handed out
// before must not be used afterwards.
func (b *Builder) Reload() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	b.pool.drain()
	if err := b.init(); err != nil {
		return err
	}
	b.logger.Info("builder reloaded", slog.Int64("root", b.st.Root()))
	return nil
}
