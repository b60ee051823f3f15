package diskmap

import (
	"iter"

	"github.com/hupe1980/burrow/codec"
	"github.com/hupe1980/burrow/layout"
	"github.com/hupe1980/burrow/store"
)

// Set is a disk-backed set. Members are stored as map keys without a value
// payload.
type Set struct {
	m *Map
}

// NewSet allocates a new, empty set in st.
func NewSet(st store.Store, ser *codec.Serializer, loadFactor uint8, optFns ...func(o *Options)) (*Set, error) {
	m, err := create(st, ser, loadFactor, layout.MapKindSet, optFns)
	if err != nil {
		return nil, err
	}
	return &Set{m: m}, nil
}

// OpenSet loads the set whose header is at pos.
func OpenSet(st store.Store, ser *codec.Serializer, pos int64, optFns ...func(o *Options)) (*Set, error) {
	m, err := open(st, ser, pos, layout.MapKindSet, optFns)
	if err != nil {
		return nil, err
	}
	return &Set{m: m}, nil
}

// Add inserts v and reports whether it was absent.
func (s *Set) Add(v any) (bool, error) {
	kk, err := s.m.makeKey(v)
	if err != nil {
		return false, err
	}
	found := false
	err = s.m.withBucket(kk.hash, true, true, func(b *bucket) error {
		_, found, err = b.upsert(kk, 0, false)
		return err
	})
	return !found, err
}

// Remove deletes v and reports whether it was present.
func (s *Set) Remove(v any) (bool, error) {
	kk, err := s.m.makeKey(v)
	if err != nil {
		return false, err
	}
	found := false
	err = s.m.withBucket(kk.hash, false, true, func(b *bucket) error {
		_, found, err = b.remove(kk)
		return err
	})
	return found, err
}

// Contains reports whether v is a member.
func (s *Set) Contains(v any) (bool, error) { return s.m.ContainsKey(v) }

// Len returns the number of members.
func (s *Set) Len() int64 { return s.m.Len() }

// All iterates over the members.
func (s *Set) All() iter.Seq2[any, error] { return s.m.Keys() }

// Clear removes every member.
func (s *Set) Clear() error { return s.m.Clear() }

// Flush persists the header.
func (s *Set) Flush() error { return s.m.Flush() }

// HeaderPos returns the position of the set header.
func (s *Set) HeaderPos() int64 { return s.m.HeaderPos() }

// Stats reports the shape of the underlying structure.
func (s *Set) Stats() (Stats, error) { return s.m.Stats() }
