package codec

import (
	"bytes"
	"cmp"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Compare orders two values by their natural ordering. Integers of any width
// compare by value, floats against integers compare as float64, strings and
// byte slices compare lexically, times chronologically and false < true.
// Pointers to primitives compare by their targets. Any other combination
// fails with ErrNotComparable.
func Compare(a, b any) (int, error) {
	a, b = deref(a), deref(b)

	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case []byte:
		if y, ok := b.([]byte); ok {
			return bytes.Compare(x, y), nil
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, nil
			case !x:
				return -1, nil
			default:
				return 1, nil
			}
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), nil
		}
	case Enum:
		if y, ok := b.(Enum); ok && x.Type == y.Type {
			return strings.Compare(x.Value, y.Value), nil
		}
	}

	if na, ok := toNumber(a); ok {
		if nb, ok := toNumber(b); ok {
			return na.compare(nb), nil
		}
	}
	return 0, fmt.Errorf("%w: %T and %T", ErrNotComparable, a, b)
}

func deref(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() && isPrimitive(rv.Type().Elem().Kind()) {
		return rv.Elem().Interface()
	}
	return v
}

type numKind uint8

const (
	numInt numKind = iota
	numUint
	numFloat
)

type number struct {
	kind numKind
	i    int64
	u    uint64
	f    float64
}

func toNumber(v any) (number, bool) {
	switch x := v.(type) {
	case int:
		return number{kind: numInt, i: int64(x)}, true
	case int8:
		return number{kind: numInt, i: int64(x)}, true
	case int16:
		return number{kind: numInt, i: int64(x)}, true
	case int32:
		return number{kind: numInt, i: int64(x)}, true
	case int64:
		return number{kind: numInt, i: x}, true
	case time.Duration:
		return number{kind: numInt, i: int64(x)}, true
	case uint:
		return number{kind: numUint, u: uint64(x)}, true
	case uint8:
		return number{kind: numUint, u: uint64(x)}, true
	case uint16:
		return number{kind: numUint, u: uint64(x)}, true
	case uint32:
		return number{kind: numUint, u: uint64(x)}, true
	case uint64:
		return number{kind: numUint, u: x}, true
	case float32:
		return number{kind: numFloat, f: float64(x)}, true
	case float64:
		return number{kind: numFloat, f: x}, true
	default:
		return number{}, false
	}
}

func (n number) float() float64 {
	switch n.kind {
	case numInt:
		return float64(n.i)
	case numUint:
		return float64(n.u)
	default:
		return n.f
	}
}

func (n number) compare(o number) int {
	switch {
	case n.kind == numFloat || o.kind == numFloat:
		return cmp.Compare(n.float(), o.float())
	case n.kind == numInt && o.kind == numInt:
		return cmp.Compare(n.i, o.i)
	case n.kind == numUint && o.kind == numUint:
		return cmp.Compare(n.u, o.u)
	case n.kind == numInt: // int vs uint
		if n.i < 0 {
			return -1
		}
		return cmp.Compare(uint64(n.i), o.u)
	default: // uint vs int
		if o.i < 0 {
			return 1
		}
		return cmp.Compare(n.u, uint64(o.i))
	}
}

// rank groups values into classes that are ordered against each other.
func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return 2
	case time.Duration:
		return 3
	case string:
		return 4
	case []byte:
		return 5
	case time.Time:
		return 6
	case Enum:
		return 7
	default:
		return 8
	}
}

// Ordered reports whether v belongs to a class with a natural ordering.
func Ordered(v any) bool {
	r := rank(deref(v))
	return r > 0 && r < 8
}

// Order is a total preorder over all values: values of different classes
// are ordered by class (nil, bool, numbers, durations, strings, bytes,
// times, enums, others), values of the same class by Compare. Values Compare
// cannot order report 0 and must be tie-broken by the caller, usually on
// their encoding.
func Order(a, b any) int {
	a, b = deref(a), deref(b)
	if ra, rb := rank(a), rank(b); ra != rb {
		return cmp.Compare(ra, rb)
	}
	c, err := Compare(a, b)
	if err != nil {
		return 0
	}
	return c
}
