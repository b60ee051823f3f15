package codec

import (
	"fmt"
	"slices"
	"time"
)

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func contains(list []string, s string) bool {
	return slices.Contains(list, s)
}

// pointerTo boxes a decoded primitive back into a pointer of its own type.
func pointerTo(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return &x, nil
	case int8:
		return &x, nil
	case int16:
		return &x, nil
	case int32:
		return &x, nil
	case int64:
		return &x, nil
	case int:
		return &x, nil
	case uint8:
		return &x, nil
	case uint16:
		return &x, nil
	case uint32:
		return &x, nil
	case uint64:
		return &x, nil
	case uint:
		return &x, nil
	case float32:
		return &x, nil
	case float64:
		return &x, nil
	case string:
		return &x, nil
	case time.Duration:
		return &x, nil
	default:
		return nil, fmt.Errorf("%w: pointer to %T", ErrUnsupportedType, v)
	}
}
