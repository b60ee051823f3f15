package codec

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/hupe1980/burrow/internal/cache"
)

// Codec encodes and decodes one registered Go type.
// Implementations must be safe for concurrent use.
type Codec interface {
	Encode(buf *Buffer, v any) error
	Decode(buf *Buffer) (any, error)
}

// Enum is a value of a registered enumeration.
type Enum struct {
	Type  string
	Value string
}

// EntityDescriptor describes the persisted field lists of an entity type.
// Versions are append-only: Versions[len-1] is written, older versions are
// still readable and yield nil for fields they do not carry.
type EntityDescriptor struct {
	Name     string
	Versions [][]string
}

// Fields returns the field list of the current version.
func (d EntityDescriptor) Fields() []string {
	if len(d.Versions) == 0 {
		return nil
	}
	return d.Versions[len(d.Versions)-1]
}

// Entity is an attribute set of a registered entity type.
type Entity struct {
	Type   string
	Values map[string]any
}

type entryKind uint8

const (
	kindCustom entryKind = iota + 1
	kindEnum
	kindEntity
)

type entry struct {
	name string
	kind entryKind
	id   uint32 // 0 until first use

	codec  Codec
	goType reflect.Type

	enumValues []string
	enumIndex  map[string]int

	entity EntityDescriptor
}

// AssignFunc is called once for every newly assigned type id.
type AssignFunc func(name string, id uint32) error

// DefaultClassCacheSize bounds the reflect.Type resolution cache.
const DefaultClassCacheSize = 256

// Registry holds the type tables of one volume. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]*entry
	byID     map[uint32]*entry
	byType   map[reflect.Type]*entry
	reserved map[string]uint32 // ids loaded for names not registered yet
	nextID   uint32
	onAssign AssignFunc

	classes *cache.LRU[reflect.Type, *entry]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:   make(map[string]*entry),
		byID:     make(map[uint32]*entry),
		byType:   make(map[reflect.Type]*entry),
		reserved: make(map[string]uint32),
		nextID:   FirstDynamicID,
		classes:  cache.NewLRU[reflect.Type, *entry](DefaultClassCacheSize),
	}
}

// OnAssign installs the hook called after a new id is assigned.
func (r *Registry) OnAssign(fn AssignFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAssign = fn
}

// Load restores previously assigned ids. It must run before the first
// encode; names may be registered before or after.
func (r *Registry) Load(table map[string]uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, id := range table {
		if id < FirstDynamicID {
			return fmt.Errorf("codec: type %q has reserved id %d", name, id)
		}
		if other, ok := r.byID[id]; ok && other.name != name {
			return fmt.Errorf("%w: id %d bound to %q and %q", ErrDuplicateType, id, other.name, name)
		}
		if e, ok := r.byName[name]; ok {
			if e.id != 0 && e.id != id {
				return fmt.Errorf("%w: %q has ids %d and %d", ErrDuplicateType, name, e.id, id)
			}
			e.id = id
			r.byID[id] = e
		} else {
			r.reserved[name] = id
		}
		if id >= r.nextID {
			r.nextID = id + 1
		}
	}
	return nil
}

// Table returns a copy of all assigned ids by name.
func (r *Registry) Table() map[string]uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := maps.Clone(r.reserved)
	for name, e := range r.byName {
		if e.id != 0 {
			out[name] = e.id
		}
	}
	return out
}

// Register binds a custom Codec to name and to the dynamic type of sample.
func (r *Registry) Register(name string, sample any, c Codec) error {
	if sample == nil || c == nil {
		return fmt.Errorf("%w: %q needs a sample value and a codec", ErrUnsupportedType, name)
	}
	return r.add(&entry{name: name, kind: kindCustom, codec: c, goType: reflect.TypeOf(sample)})
}

// RegisterEnum registers an enumeration with its values in ordinal order.
func (r *Registry) RegisterEnum(name string, values ...string) error {
	if len(values) == 0 {
		return fmt.Errorf("%w: enum %q has no values", ErrUnsupportedType, name)
	}
	idx := make(map[string]int, len(values))
	for i, v := range values {
		if _, dup := idx[v]; dup {
			return fmt.Errorf("%w: enum %q repeats %q", ErrDuplicateType, name, v)
		}
		idx[v] = i
	}
	return r.add(&entry{name: name, kind: kindEnum, enumValues: slices.Clone(values), enumIndex: idx})
}

// RegisterEntity registers an entity descriptor.
func (r *Registry) RegisterEntity(d EntityDescriptor) error {
	if len(d.Versions) == 0 {
		return fmt.Errorf("%w: entity %q has no versions", ErrUnsupportedType, d.Name)
	}
	d.Versions = slices.Clone(d.Versions)
	return r.add(&entry{name: d.Name, kind: kindEntity, entity: d})
}

func (r *Registry) add(e *entry) error {
	if e.name == "" {
		return fmt.Errorf("%w: empty type name", ErrUnsupportedType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[e.name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateType, e.name)
	}
	if e.goType != nil {
		if other, ok := r.byType[e.goType]; ok {
			return fmt.Errorf("%w: %s already registered as %q", ErrDuplicateType, e.goType, other.name)
		}
		r.byType[e.goType] = e
	}
	if id, ok := r.reserved[e.name]; ok {
		e.id = id
		r.byID[id] = e
		delete(r.reserved, e.name)
	}
	r.byName[e.name] = e
	return nil
}

// Entity returns the descriptor registered under name.
func (r *Registry) Entity(name string) (EntityDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byName[name]
	if !ok || e.kind != kindEntity {
		return EntityDescriptor{}, false
	}
	return e.entity, true
}

// ID returns the id assigned to name, if any.
func (r *Registry) ID(name string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.byName[name]; ok && e.id != 0 {
		return e.id, true
	}
	id, ok := r.reserved[name]
	return id, ok
}

// Name returns the type name bound to id.
func (r *Registry) Name(id uint32) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.byID[id]; ok {
		return e.name, true
	}
	for name, rid := range r.reserved {
		if rid == id {
			return name, true
		}
	}
	return "", false
}

func (r *Registry) lookupName(name string, kind entryKind) (*entry, error) {
	r.mu.RLock()
	e, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok || e.kind != kind {
		return nil, fmt.Errorf("%w: %q", ErrUnregisteredType, name)
	}
	return e, nil
}

func (r *Registry) lookupID(id uint32) (*entry, error) {
	r.mu.RLock()
	e, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		if name, known := r.Name(id); known {
			return nil, fmt.Errorf("%w: %q (id %d)", ErrUnregisteredType, name, id)
		}
		return nil, fmt.Errorf("%w: id %d", ErrUnregisteredType, id)
	}
	return e, nil
}

// lookupType resolves the custom codec for a Go type. Pointers resolve to
// the codec of their element type when the pointer type itself is unknown.
func (r *Registry) lookupType(t reflect.Type) (*entry, bool) {
	if e, ok := r.classes.Get(t); ok {
		return e, true
	}

	r.mu.RLock()
	e, ok := r.byType[t]
	if !ok && t.Kind() == reflect.Pointer {
		e, ok = r.byType[t.Elem()]
	}
	r.mu.RUnlock()

	if ok {
		r.classes.Set(t, e)
	}
	return e, ok
}

// ensureID assigns the next id to e on first use and reports whether the id
// is new, in which case the encoder writes the full name.
func (r *Registry) ensureID(e *entry) (uint32, bool, error) {
	r.mu.RLock()
	id := e.id
	r.mu.RUnlock()
	if id != 0 {
		return id, false, nil
	}

	r.mu.Lock()
	if e.id != 0 {
		id = e.id
		r.mu.Unlock()
		return id, false, nil
	}
	e.id = r.nextID
	r.nextID++
	r.byID[e.id] = e
	id, hook := e.id, r.onAssign
	r.mu.Unlock()

	if hook != nil {
		if err := hook(e.name, id); err != nil {
			return 0, false, fmt.Errorf("codec: persist id for %q: %w", e.name, err)
		}
	}
	return id, true, nil
}
