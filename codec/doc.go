// Package codec implements the tagged binary value encoding used for every
// key and value persisted by burrow.
//
// Every value starts with a one-byte Tag selecting the decode path. Numerics
// are little-endian and fixed width, strings and byte slices carry a uvarint
// length, collections a uvarint count followed by the recursive encoding of
// each element.
//
// Types outside the built-in set are handled by a Registry owned by the
// caller (normally the builder of a volume). Enums, entities and custom
// codecs are referenced by type: the first encoding of a type carries its
// full name, every later encoding a short numeric id. Ids below
// FirstDynamicID are reserved; assigned ids are append-only and are reported
// through the OnAssign hook so they can be persisted next to the data.
//
//	reg := codec.NewRegistry()
//	_ = reg.RegisterEntity(codec.EntityDescriptor{
//	    Name:     "user",
//	    Versions: [][]string{{"name"}, {"name", "email"}},
//	})
//	s := codec.NewSerializer(reg)
//	b, _ := s.Marshal(codec.Entity{Type: "user", Values: map[string]any{"name": "ada"}})
package codec
