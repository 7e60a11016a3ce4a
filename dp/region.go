package dp

import (
	"fmt"
)

// Region is a rectangle of the alignment lattice in absolute sequence
// coordinates.
type Region struct {
	QueryStart   int
	TargetStart  int
	QueryLength  int
	TargetLength int
}

// NewRegion returns the region with the given bounds.
func NewRegion(queryStart, targetStart, queryLength, targetLength int) Region {
	return Region{
		QueryStart:   queryStart,
		TargetStart:  targetStart,
		QueryLength:  queryLength,
		TargetLength: targetLength,
	}
}

// QueryEnd returns the exclusive query bound.
func (r Region) QueryEnd() int { return r.QueryStart + r.QueryLength }

// TargetEnd returns the exclusive target bound.
func (r Region) TargetEnd() int { return r.TargetStart + r.TargetLength }

// IsValid reports whether all starts and lengths are non-negative.
func (r Region) IsValid() bool {
	return r.QueryStart >= 0 && r.TargetStart >= 0 &&
		r.QueryLength >= 0 && r.TargetLength >= 0
}

// EQ reports whether r and r1 cover the same rectangle.
func (r Region) EQ(r1 Region) bool { return r == r1 }

// Within reports whether r1 lies entirely inside r.
func (r Region) Within(r1 Region) bool {
	return r1.QueryStart >= r.QueryStart &&
		r1.TargetStart >= r.TargetStart &&
		r1.QueryEnd() <= r.QueryEnd() &&
		r1.TargetEnd() <= r.TargetEnd()
}

// Intersects reports whether (r ∩ r1) != ∅.
func (r Region) Intersects(r1 Region) bool {
	return r.QueryStart < r1.QueryEnd() && r1.QueryStart < r.QueryEnd() &&
		r.TargetStart < r1.TargetEnd() && r1.TargetStart < r.TargetEnd()
}

func (r Region) String() string {
	return fmt.Sprintf("q[%d,%d) t[%d,%d)",
		r.QueryStart, r.QueryEnd(), r.TargetStart, r.TargetEnd())
}
