// Package index maintains a secondary index for one attribute of a record
// map.
//
// Two maps back every index: references, an ordered map from attribute value
// to a roaring64 bitmap of record references, and values, a hash map from
// reference back to the value. Save and Delete keep both directions in step;
// Verify checks them and Rebuild re-derives them from the record map.
//
// Indexed values must have a natural ordering (numbers, strings, bytes,
// times, booleans, enums) so that FindAllAbove and FindAllBelow can walk the
// ordered map. A nil value is not indexed.
package index
