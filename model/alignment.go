package model

import (
	"github.com/grailbio/align/dp"
)

// AlignmentOp is one run of a transition in an alignment path.
type AlignmentOp struct {
	Transition *Transition
	Length     int
}

// Alignment is a scored run-length-encoded path through a model, covering
// a lattice region.
type Alignment struct {
	Region dp.Region
	Score  dp.Score
	Ops    []AlignmentOp
}

// NewAlignment returns an empty alignment over region.
func NewAlignment(region dp.Region, score dp.Score) *Alignment {
	return &Alignment{Region: region, Score: score}
}

// Add appends length firings of t, coalescing with the previous op when the
// transition repeats.
func (a *Alignment) Add(t *Transition, length int) {
	if length <= 0 {
		panicf("alignment op on %q with length %d", t.Name, length)
	}
	if n := len(a.Ops); n > 0 && a.Ops[n-1].Transition == t {
		a.Ops[n-1].Length += length
		return
	}
	a.Ops = append(a.Ops, AlignmentOp{Transition: t, Length: length})
}

// QueryAdvance returns the total query emission of the path.
func (a *Alignment) QueryAdvance() int {
	total := 0
	for _, op := range a.Ops {
		total += op.Transition.AdvanceQuery * op.Length
	}
	return total
}

// TargetAdvance returns the total target emission of the path.
func (a *Alignment) TargetAdvance() int {
	total := 0
	for _, op := range a.Ops {
		total += op.Transition.AdvanceTarget * op.Length
	}
	return total
}

// IsValid reports whether the path's emissions sum to the region's
// dimensions.
func (a *Alignment) IsValid() bool {
	return a.QueryAdvance() == a.Region.QueryLength &&
		a.TargetAdvance() == a.Region.TargetLength
}

// MapTransitions returns a copy of the alignment with every transition
// replaced through the map, for lifting derived-model results onto the
// original model.
func (a *Alignment) MapTransitions(transitionMap []*Transition) *Alignment {
	mapped := NewAlignment(a.Region, a.Score)
	for _, op := range a.Ops {
		mapped.Add(transitionMap[op.Transition.ID], op.Length)
	}
	return mapped
}
