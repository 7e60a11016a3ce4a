package sdp

// BoundaryInterval is a run of query positions on one target row at which
// a seed was still viable during the reverse pass.
type BoundaryInterval struct {
	QueryPos int
	SeedID   int
	Length   int
}

// BoundaryRow lists the viable intervals of one target row in ascending
// query order.
type BoundaryRow struct {
	TargetPos int
	Intervals []BoundaryInterval
}

// Prepend records queryPos at the front of the row, extending the first
// interval when it is the adjacent position of the same seed.  Rows are
// filled back to front, so the result stays sorted.
func (r *BoundaryRow) Prepend(queryPos, seedID int) {
	if len(r.Intervals) > 0 {
		first := &r.Intervals[0]
		if first.SeedID == seedID && first.QueryPos == queryPos+1 {
			first.QueryPos = queryPos
			first.Length++
			return
		}
	}
	r.Intervals = append([]BoundaryInterval{{QueryPos: queryPos, SeedID: seedID, Length: 1}},
		r.Intervals...)
}

// Boundary records, per target row, which seeds remained viable in the
// reverse pass.  It drives the forward pass's seed enumeration.
type Boundary struct {
	Rows []*BoundaryRow
}

// NewBoundary returns an empty boundary.
func NewBoundary() *Boundary { return &Boundary{} }

// AddRow appends a row for targetPos and returns it.
func (b *Boundary) AddRow(targetPos int) *BoundaryRow {
	row := &BoundaryRow{TargetPos: targetPos}
	b.Rows = append(b.Rows, row)
	return row
}

// LastRow returns the row added most recently.
func (b *Boundary) LastRow() *BoundaryRow {
	return b.Rows[len(b.Rows)-1]
}

// RemoveEmptyLastRow discards the most recent row if nothing was recorded
// on it.
func (b *Boundary) RemoveEmptyLastRow() {
	if n := len(b.Rows); n > 0 && len(b.Rows[n-1].Intervals) == 0 {
		b.Rows = b.Rows[:n-1]
	}
}

// Reverse flips the row order.  The reverse pass emits rows in descending
// target order; reversal puts them in forward DP order.
func (b *Boundary) Reverse() {
	for a, z := 0, len(b.Rows)-1; a < z; a, z = a+1, z-1 {
		b.Rows[a], b.Rows[z] = b.Rows[z], b.Rows[a]
	}
}
