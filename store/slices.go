package store

// spans splits [off, off+n) at slice boundaries and calls fn for each piece
// with the slice index, the offset inside the slice and the range [lo, hi)
// of the caller's buffer.
func spans(off int64, n int, sliceSize int64, fn func(idx int, inner int64, lo, hi int)) {
	lo := 0
	for lo < n {
		abs := off + int64(lo)
		idx := abs / sliceSize
		inner := abs % sliceSize
		hi := lo + int(min(sliceSize-inner, int64(n-lo)))
		fn(int(idx), inner, lo, hi)
		lo = hi
	}
}
