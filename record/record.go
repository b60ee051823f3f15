// Package record stores entities in a map keyed by a generated identifier
// and keeps their secondary indexes in step.
package record

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/burrow/builder"
	"github.com/hupe1980/burrow/codec"
	"github.com/hupe1980/burrow/counter"
	"github.com/hupe1980/burrow/diskmap"
	"github.com/hupe1980/burrow/index"
)

var (
	// ErrWrongType is returned when saving an entity of another type.
	ErrWrongType = errors.New("record: entity type mismatch")

	// ErrUnknownField is returned for an identifier or index field that the
	// entity does not declare.
	ErrUnknownField = errors.New("record: unknown field")

	// ErrInvalidIdentifier is returned when the identifier field holds a
	// non-integer value.
	ErrInvalidIdentifier = errors.New("record: invalid identifier")
)

// Descriptor declares an entity type and how it is stored.
type Descriptor struct {
	Entity codec.EntityDescriptor

	// Identifier names the field holding the record id. When the field is
	// set to a positive integer on Save it is used as the id; otherwise the
	// next sequence value is assigned and written back. Empty means ids are
	// only kept as map keys.
	Identifier string

	// Indexes lists the fields with a secondary index.
	Indexes []string
}

// Options configures a Controller.
type Options struct {
	// LoadFactor of the entity map.
	LoadFactor uint8

	Logger *slog.Logger
}

// DefaultOptions are the defaults applied by New.
var DefaultOptions = Options{
	LoadFactor: 4,
}

// Record is an entity with its id.
type Record struct {
	ID     int64
	Entity codec.Entity
}

// Controller stores the entities of one type.
type Controller struct {
	desc     Descriptor
	entities *diskmap.Map
	seq      *counter.Counter
	indexes  map[string]*index.Controller
	logger   *slog.Logger

	// mu orders writers so that index updates follow map updates.
	mu sync.Mutex
}

// New opens the maps of desc in b, registering the entity type first when
// the registry does not know it yet.
func New(b *builder.Builder, desc Descriptor, optFns ...func(o *Options)) (*Controller, error) {
	opts := DefaultOptions
	opts.Logger = b.Logger()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	name := desc.Entity.Name
	if _, ok := b.Registry().Entity(name); !ok {
		if err := b.Registry().RegisterEntity(desc.Entity); err != nil {
			return nil, err
		}
	}
	fields := desc.Entity.Fields()
	for _, f := range append([]string{desc.Identifier}, desc.Indexes...) {
		if f != "" && !slices.Contains(fields, f) {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, name, f)
		}
	}

	entities, err := b.GetMap(name, opts.LoadFactor)
	if err != nil {
		return nil, err
	}
	seq, err := b.GetCounter(name + ".seq")
	if err != nil {
		return nil, err
	}
	c := &Controller{
		desc:     desc,
		entities: entities,
		seq:      seq,
		indexes:  make(map[string]*index.Controller, len(desc.Indexes)),
		logger:   opts.Logger.With(slog.String("entity", name)),
	}
	for _, field := range desc.Indexes {
		idx, err := index.New(b, name+"."+field, func(o *index.Options) {
			o.Source = entities.All()
			o.Extract = extractor(field)
		})
		if err != nil {
			return nil, err
		}
		c.indexes[field] = idx
	}
	return c, nil
}

func extractor(field string) index.Extractor {
	return func(e diskmap.Entry) (int64, any, error) {
		id, ok := e.Key.(int64)
		if !ok {
			return 0, nil, fmt.Errorf("%w: key %v", ErrInvalidIdentifier, e.Key)
		}
		ent, ok := e.Value.(codec.Entity)
		if !ok {
			return 0, nil, fmt.Errorf("record %d: stored value is %T", id, e.Value)
		}
		return id, ent.Values[field], nil
	}
}

// identifier converts an integer field value to an id.
func identifier(v any) (int64, bool, error) {
	switch x := v.(type) {
	case nil:
		return 0, false, nil
	case int:
		return int64(x), x > 0, nil
	case int32:
		return int64(x), x > 0, nil
	case int64:
		return x, x > 0, nil
	case uint32:
		return int64(x), x > 0, nil
	default:
		return 0, false, fmt.Errorf("%w: %T", ErrInvalidIdentifier, v)
	}
}

// Save stores e and returns its id. An existing record with the same id is
// replaced and its index entries are moved.
func (c *Controller) Save(e codec.Entity) (int64, error) {
	if e.Type == "" {
		e.Type = c.desc.Entity.Name
	}
	if e.Type != c.desc.Entity.Name {
		return 0, fmt.Errorf("%w: %q, want %q", ErrWrongType, e.Type, c.desc.Entity.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.assignID(&e)
	if err != nil {
		return 0, err
	}
	_, found, err := c.entities.Put(id, e)
	if err != nil {
		return 0, err
	}
	oldRef := int64(0)
	if found {
		oldRef = id
	}
	for field, idx := range c.indexes {
		if err := idx.Save(e.Values[field], oldRef, id); err != nil {
			return 0, fmt.Errorf("record %d: index %s: %w", id, field, err)
		}
	}
	c.logger.Debug("record saved", slog.Int64("id", id), slog.Bool("replaced", found))
	return id, nil
}

func (c *Controller) assignID(e *codec.Entity) (int64, error) {
	field := c.desc.Identifier
	if field != "" {
		id, ok, err := identifier(e.Values[field])
		if err != nil {
			return 0, err
		}
		if ok {
			// Keep the sequence ahead of explicit ids.
			if id > c.seq.Get() {
				c.seq.Set(id)
			}
			return id, nil
		}
	}
	id := c.seq.AddAndGet(1)
	if field != "" {
		values := make(map[string]any, len(e.Values)+1)
		for k, v := range e.Values {
			values[k] = v
		}
		values[field] = id
		e.Values = values
	}
	return id, nil
}

// Get returns the record with the given id.
func (c *Controller) Get(id int64) (codec.Entity, bool, error) {
	v, ok, err := c.entities.Get(id)
	if err != nil || !ok {
		return codec.Entity{}, false, err
	}
	e, valid := v.(codec.Entity)
	if !valid {
		return codec.Entity{}, false, fmt.Errorf("record %d: stored value is %T", id, v)
	}
	return e, true, nil
}

// Delete removes the record and its index entries.
func (c *Controller) Delete(id int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, found, err := c.entities.Remove(id)
	if err != nil || !found {
		return false, err
	}
	for field, idx := range c.indexes {
		if err := idx.Delete(id); err != nil {
			return true, fmt.Errorf("record %d: index %s: %w", id, field, err)
		}
	}
	return true, nil
}

// Len returns the number of records.
func (c *Controller) Len() int64 { return c.entities.Len() }

// All iterates over every record.
func (c *Controller) All() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for e, err := range c.entities.All() {
			if err != nil {
				if !yield(Record{}, err) {
					return
				}
				continue
			}
			id, _ := e.Key.(int64)
			ent, _ := e.Value.(codec.Entity)
			if !yield(Record{ID: id, Entity: ent}, nil) {
				return
			}
		}
	}
}

// Index returns the index of field.
func (c *Controller) Index(field string) (*index.Controller, bool) {
	idx, ok := c.indexes[field]
	return idx, ok
}

// RebuildIndexes rebuilds every index in parallel.
func (c *Controller) RebuildIndexes(ctx context.Context) (map[string]index.RebuildStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		mu    sync.Mutex
		stats = make(map[string]index.RebuildStats, len(c.indexes))
	)
	g, ctx := errgroup.WithContext(ctx)
	for field, idx := range c.indexes {
		g.Go(func() error {
			s, err := idx.Rebuild(ctx)
			if err != nil {
				return fmt.Errorf("index %s: %w", field, err)
			}
			mu.Lock()
			stats[field] = s
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}
