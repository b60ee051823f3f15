package diskmap

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLoadFactor is returned for load factors outside 0..10.
	ErrInvalidLoadFactor = errors.New("diskmap: invalid load factor")

	// ErrKindMismatch is returned when a set header is opened as a map or
	// the other way round.
	ErrKindMismatch = errors.New("diskmap: header kind mismatch")
)

// Ordered is the load factor of an ordered map: no trie, one skip list.
const Ordered uint8 = 0

// MaxLoadFactor is the highest supported load factor.
const MaxLoadFactor uint8 = 10

type params struct {
	depth     int
	threshold int64
}

var loadFactors = [...]params{
	0:  {depth: 0, threshold: 0},
	1:  {depth: 1, threshold: 8},
	2:  {depth: 2, threshold: 8},
	3:  {depth: 3, threshold: 8},
	4:  {depth: 4, threshold: 8},
	5:  {depth: 4, threshold: 16},
	6:  {depth: 5, threshold: 16},
	7:  {depth: 5, threshold: 32},
	8:  {depth: 6, threshold: 32},
	9:  {depth: 6, threshold: 64},
	10: {depth: 7, threshold: 64},
}

func paramsFor(loadFactor uint8) (params, error) {
	if int(loadFactor) >= len(loadFactors) {
		return params{}, fmt.Errorf("%w: %d", ErrInvalidLoadFactor, loadFactor)
	}
	return loadFactors[loadFactor], nil
}

var pow10 = [...]uint64{1, 10, 100, 1_000, 10_000, 100_000, 1_000_000, 10_000_000}

// slotAt returns the child slot of hash at trie level.
func slotAt(hash uint64, level int) int {
	return int((hash / pow10[level]) % 10) //nolint:gosec // G115: result < 10
}
