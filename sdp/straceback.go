package sdp

import (
	"github.com/grailbio/base/log"

	"github.com/grailbio/align/model"
)

// CellID names a cell of an STraceback arena.  The zero CellID is the nil
// cell.
type CellID int32

type stCell struct {
	transition *model.Transition
	length     int
	prev       CellID
	refCount   int32
}

// STraceback is a shared traceback DAG: reference-counted
// (transition, length, prev) records in an arena, shared between the
// alternative paths of a sparse DP.  Freed cells are recycled.
type STraceback struct {
	forward bool
	cells   []stCell
	free    []CellID
}

// NewSTraceback returns an empty arena for one DP direction.
func NewSTraceback(forward bool) *STraceback {
	return &STraceback{forward: forward, cells: make([]stCell, 1)} // cell 0 is nil
}

func (st *STraceback) cell(id CellID) *stCell {
	if id <= 0 || int(id) >= len(st.cells) {
		log.Panicf("bad straceback cell %d", id)
	}
	return &st.cells[id]
}

// Add appends a run of transition t to the path ending at prev (0 for a
// path head) and returns the new cell with one reference.  prev gains a
// reference.
func (st *STraceback) Add(t *model.Transition, length int, prev CellID) CellID {
	if prev != 0 {
		st.Share(prev)
	}
	var id CellID
	if n := len(st.free); n > 0 {
		id = st.free[n-1]
		st.free = st.free[:n-1]
	} else {
		st.cells = append(st.cells, stCell{})
		id = CellID(len(st.cells) - 1)
	}
	*st.cell(id) = stCell{transition: t, length: length, prev: prev, refCount: 1}
	return id
}

// Share takes another reference on id and returns it.  Sharing the nil
// cell is a no-op.
func (st *STraceback) Share(id CellID) CellID {
	if id == 0 {
		return 0
	}
	st.cell(id).refCount++
	return id
}

// Drop releases one reference on id, recycling the cell and releasing its
// prev when the count reaches zero.
func (st *STraceback) Drop(id CellID) {
	for id != 0 {
		c := st.cell(id)
		c.refCount--
		if c.refCount > 0 {
			return
		}
		prev := c.prev
		*c = stCell{}
		st.free = append(st.free, id)
		id = prev
	}
}

// coalesce merges id's exclusively-held prev into id when both carry the
// same transition, summing the run lengths.  Total emission along the path
// is unchanged.
func (st *STraceback) coalesce(id CellID) {
	c := st.cell(id)
	if c.prev == 0 {
		return
	}
	prev := st.cell(c.prev)
	if prev.refCount != 1 || prev.transition != c.transition {
		return
	}
	prevID := c.prev
	if prev.prev != 0 {
		c.prev = st.Share(prev.prev)
	} else {
		c.prev = 0
	}
	c.length += prev.length
	st.Drop(prevID)
}

// Operation is one run of a traceback path.
type Operation struct {
	Transition *model.Transition
	Length     int
}

// List materializes the path ending at id, oldest run first.
func (st *STraceback) List(id CellID) []Operation {
	var ops []Operation
	for id != 0 {
		c := st.cell(id)
		ops = append(ops, Operation{Transition: c.transition, Length: c.length})
		id = c.prev
	}
	for a, z := 0, len(ops)-1; a < z; a, z = a+1, z-1 {
		ops[a], ops[z] = ops[z], ops[a]
	}
	return ops
}
