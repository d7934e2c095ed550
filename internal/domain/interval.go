package domain

// Ordered is satisfied by time.Time and TimeOfDay.
type Ordered[T any] interface {
	Compare(T) int
}

// Overlaps reports whether the half-open intervals [aStart, aEnd) and [bStart, bEnd)
// share an instant. Intervals that only touch at an endpoint do not overlap.
func Overlaps[T Ordered[T]](aStart, aEnd, bStart, bEnd T) bool {
	return aStart.Compare(bEnd) < 0 && aEnd.Compare(bStart) > 0
}
