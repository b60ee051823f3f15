package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/burrow/builder"
	"github.com/hupe1980/burrow/diskmap"
	"github.com/hupe1980/burrow/internal/resource"
)

var (
	// ErrInconsistent is returned by Verify when the two directions disagree.
	ErrInconsistent = errors.New("index: inconsistent")

	// ErrNoSource is returned by Rebuild when no source was configured.
	ErrNoSource = errors.New("index: no rebuild source")

	// ErrInvalidReference is returned for references <= 0.
	ErrInvalidReference = errors.New("index: invalid reference")
)

// Extractor derives the reference and the indexed value of a source entry.
type Extractor func(e diskmap.Entry) (ref int64, value any, err error)

// Options configures a Controller.
type Options struct {
	// LoadFactor of the reference-to-value map.
	LoadFactor uint8

	// Source and Extract are used by Rebuild.
	Source  iter.Seq2[diskmap.Entry, error]
	Extract Extractor

	// Resources provides the maintenance slot held during Rebuild.
	Resources *resource.Controller

	Logger *slog.Logger
}

// DefaultOptions are the defaults applied by New.
var DefaultOptions = Options{
	LoadFactor: 4,
}

// Controller is the index of one attribute.
type Controller struct {
	name   string
	refs   *diskmap.Map
	values *diskmap.Map
	opts   Options
	logger *slog.Logger

	// mu serializes writers so that both maps change together.
	mu sync.RWMutex
}

// New returns the index called name, creating its maps in b when needed.
func New(b *builder.Builder, name string, optFns ...func(o *Options)) (*Controller, error) {
	opts := DefaultOptions
	opts.Resources = b.Resources()
	opts.Logger = b.Logger()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	refs, err := b.GetOrderedMap(name + ".refs")
	if err != nil {
		return nil, err
	}
	values, err := b.GetMap(name+".values", opts.LoadFactor)
	if err != nil {
		return nil, err
	}
	return &Controller{
		name:   name,
		refs:   refs,
		values: values,
		opts:   opts,
		logger: opts.Logger.With(slog.String("index", name)),
	}, nil
}

// Name returns the index name.
func (c *Controller) Name() string { return c.name }

// Len returns the number of indexed references.
func (c *Controller) Len() int64 { return c.values.Len() }

func decodeBitmap(v any) (*roaring64.Bitmap, error) {
	bm := roaring64.New()
	if v == nil {
		return bm, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: reference set of type %T", ErrInconsistent, v)
	}
	if err := bm.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("index: decode reference set: %w", err)
	}
	return bm, nil
}

// Save moves oldRef out of its previous value's reference set, then, unless
// value is nil, records newRef under value. Either reference may be 0.
func (c *Controller) Save(value any, oldRef, newRef int64) error {
	if oldRef < 0 || newRef < 0 {
		return ErrInvalidReference
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if oldRef > 0 {
		if err := c.unlink(oldRef); err != nil {
			return err
		}
	}
	if value == nil || newRef == 0 {
		return nil
	}
	// A reference is bound to a single value.
	if newRef != oldRef {
		if err := c.unlink(newRef); err != nil {
			return err
		}
	}
	return c.bind(value, newRef)
}

// bind records ref under value in both maps, the value map first. A failed
// link drops the value again so neither map holds a half-indexed reference.
func (c *Controller) bind(value any, ref int64) error {
	if _, _, err := c.values.Put(ref, value); err != nil {
		return err
	}
	if err := c.link(value, ref); err != nil {
		if _, _, rerr := c.values.Remove(ref); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}

// Delete removes ref from the index.
func (c *Controller) Delete(ref int64) error {
	if ref <= 0 {
		return ErrInvalidReference
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unlink(ref)
}

func (c *Controller) link(value any, ref int64) error {
	_, err := c.refs.Compute(value, func(old any, _ bool) (any, bool, error) {
		bm, err := decodeBitmap(old)
		if err != nil {
			return nil, false, err
		}
		bm.Add(uint64(ref))
		b, err := bm.MarshalBinary()
		return b, err == nil, err
	})
	return err
}

func (c *Controller) unlink(ref int64) error {
	value, ok, err := c.values.Remove(ref)
	if err != nil || !ok {
		return err
	}
	_, err = c.refs.Compute(value, func(old any, found bool) (any, bool, error) {
		if !found {
			return nil, false, nil
		}
		bm, err := decodeBitmap(old)
		if err != nil {
			return nil, false, err
		}
		bm.Remove(uint64(ref))
		if bm.IsEmpty() {
			return nil, false, nil
		}
		b, err := bm.MarshalBinary()
		return b, err == nil, err
	})
	return err
}

// FindAll returns the references whose value equals value. Equality follows
// the natural ordering, so numbers of different widths match.
func (c *Controller) FindAll(value any) (*roaring64.Bitmap, error) {
	return c.union(diskmap.Incl(value), diskmap.Incl(value))
}

// FindAllAbove returns the references whose value is greater than value,
// or equal to it when inclusive is set.
func (c *Controller) FindAllAbove(value any, inclusive bool) (*roaring64.Bitmap, error) {
	lo := diskmap.Excl(value)
	if inclusive {
		lo = diskmap.Incl(value)
	}
	return c.union(lo, diskmap.Bound{})
}

// FindAllBelow returns the references whose value is less than value, or
// equal to it when inclusive is set.
func (c *Controller) FindAllBelow(value any, inclusive bool) (*roaring64.Bitmap, error) {
	hi := diskmap.Excl(value)
	if inclusive {
		hi = diskmap.Incl(value)
	}
	return c.union(diskmap.Bound{}, hi)
}

func (c *Controller) union(lo, hi diskmap.Bound) (*roaring64.Bitmap, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := roaring64.New()
	for e, err := range c.refs.Range(lo, hi) {
		if err != nil {
			return nil, err
		}
		bm, err := decodeBitmap(e.Value)
		if err != nil {
			return nil, err
		}
		out.Or(bm)
	}
	return out, nil
}

// ValueOf returns the value ref is indexed under.
func (c *Controller) ValueOf(ref int64) (any, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values.Get(ref)
}

// Verify checks that every reference maps to a value whose reference set
// contains it, and the other way round.
func (c *Controller) Verify() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ser := c.values.Serializer()
	var total uint64
	for e, err := range c.refs.All() {
		if err != nil {
			return err
		}
		bm, err := decodeBitmap(e.Value)
		if err != nil {
			return err
		}
		if bm.IsEmpty() {
			return fmt.Errorf("%w: empty reference set for %v", ErrInconsistent, e.Key)
		}
		want, err := ser.MarshalKey(e.Key)
		if err != nil {
			return err
		}
		for it := bm.Iterator(); it.HasNext(); {
			ref := int64(it.Next()) //nolint:gosec // G115: references are positive int64
			v, ok, err := c.values.Get(ref)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: reference %d of %v has no value", ErrInconsistent, ref, e.Key)
			}
			got, err := ser.MarshalKey(v)
			if err != nil {
				return err
			}
			if !bytes.Equal(got, want) {
				return fmt.Errorf("%w: reference %d listed under %v but maps to %v", ErrInconsistent, ref, e.Key, v)
			}
		}
		total += bm.GetCardinality()
	}
	if n := c.values.Len(); total != uint64(n) { //nolint:gosec // G115: Len is non-negative
		return fmt.Errorf("%w: %d references in sets, %d values", ErrInconsistent, total, n)
	}
	return nil
}

// RebuildStats summarizes a Rebuild.
type RebuildStats struct {
	Scanned int64
	Indexed int64
	// Empty counts entries without a value for the indexed field.
	Empty int64
	// Skipped counts entries the extractor or the index rejected.
	Skipped int64
}

// Rebuild clears the index and re-derives it from the configured source.
// Entries that fail are logged and skipped. It holds a maintenance slot of
// the resource controller for its duration.
func (c *Controller) Rebuild(ctx context.Context) (RebuildStats, error) {
	var stats RebuildStats
	if c.opts.Source == nil || c.opts.Extract == nil {
		return stats, ErrNoSource
	}
	rc := c.opts.Resources
	if err := rc.AcquireMaintenance(ctx); err != nil {
		return stats, err
	}
	defer rc.ReleaseMaintenance()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refs.Clear(); err != nil {
		return stats, err
	}
	if err := c.values.Clear(); err != nil {
		return stats, err
	}

	for e, err := range c.opts.Source {
		if cerr := ctx.Err(); cerr != nil {
			return stats, cerr
		}
		stats.Scanned++
		if err != nil {
			c.logger.Warn("rebuild: unreadable entry skipped", slog.Any("error", err))
			stats.Skipped++
			continue
		}
		indexed, err := c.reindex(e)
		switch {
		case err != nil:
			c.logger.Warn("rebuild: entry skipped", slog.Any("key", e.Key), slog.Any("error", err))
			stats.Skipped++
		case indexed:
			stats.Indexed++
		default:
			stats.Empty++
		}
	}
	c.logger.Info("index rebuilt",
		slog.Int64("scanned", stats.Scanned),
		slog.Int64("indexed", stats.Indexed),
		slog.Int64("empty", stats.Empty),
		slog.Int64("skipped", stats.Skipped),
	)
	return stats, nil
}

func (c *Controller) reindex(e diskmap.Entry) (bool, error) {
	ref, value, err := c.opts.Extract(e)
	if err != nil {
		return false, err
	}
	if ref <= 0 {
		return false, ErrInvalidReference
	}
	if value == nil {
		return false, nil
	}
	if err := c.bind(value, ref); err != nil {
		return false, err
	}
	return true, nil
}
