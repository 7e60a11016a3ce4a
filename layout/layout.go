// Package layout precomputes, for each edge-coordinate cell of the
// alignment lattice, the set of transitions whose input and output states
// are both in scope there.  The DP hot loops consult the layout with a
// single bit test instead of re-deriving scope rules per cell.
package layout

import (
	"github.com/grailbio/base/bitset"
	"github.com/grailbio/base/log"

	"github.com/grailbio/align/model"
)

// probeLength is the lattice size used while discovering the repeating
// pattern.  Any model advance is far below it.
const probeLength = 1024

// mask holds one validity bit per transition id.
type mask []uintptr

func newMask(m *model.Model, queryPos, targetPos, queryLength, targetLength int) mask {
	words := (len(m.Transitions) + bitset.BitsPerWord - 1) / bitset.BitsPerWord
	mk := make(mask, words)
	for _, t := range m.Transitions {
		if transitionIsValid(m, t, queryPos, targetPos, queryLength, targetLength) {
			mk[t.ID/bitset.BitsPerWord] |= uintptr(1) << uint(t.ID%bitset.BitsPerWord)
		}
	}
	return mk
}

func (mk mask) equal(o mask) bool {
	if (mk == nil) != (o == nil) {
		return false
	}
	for i := range mk {
		if mk[i] != o[i] {
			return false
		}
	}
	return true
}

// cell carries up to four masks; an elided (nil) mask falls back to another:
// corner to endTarget, then to normal; endQuery and endTarget to normal.
type cell struct {
	normal    mask
	endQuery  mask
	endTarget mask
	corner    mask
}

func newCell(m *model.Model, queryPos, targetPos int) *cell {
	c := &cell{
		normal:    newMask(m, queryPos, targetPos, probeLength, probeLength),
		endQuery:  newMask(m, queryPos, targetPos, queryPos, probeLength),
		endTarget: newMask(m, queryPos, targetPos, probeLength, targetPos),
		corner:    newMask(m, queryPos, targetPos, queryPos, targetPos),
	}
	if c.normal.equal(c.endQuery) {
		c.endQuery = nil
	}
	if c.corner.equal(c.endTarget) {
		c.corner = nil
		if c.normal.equal(c.endTarget) {
			c.endTarget = nil
		}
	}
	return c
}

func (c *cell) equal(o *cell) bool {
	return c.normal.equal(o.normal) &&
		c.endQuery.equal(o.endQuery) &&
		c.endTarget.equal(o.endTarget) &&
		c.corner.equal(o.corner)
}

type row struct {
	cells []*cell
}

func newRow(m *model.Model, targetPos int) *row {
	r := &row{}
	for {
		c := newCell(m, len(r.cells), targetPos)
		if len(r.cells) > 0 && len(r.cells) >= m.MaxQueryAdvance &&
			c.equal(r.cells[len(r.cells)-1]) {
			break
		}
		r.cells = append(r.cells, c)
		if len(r.cells) >= probeLength {
			log.Panicf("layout row for model %q does not stabilize", m.Name)
		}
	}
	return r
}

func (r *row) equal(o *row) bool {
	if len(r.cells) != len(o.cells) {
		return false
	}
	for i := range r.cells {
		if !r.cells[i].equal(o.cells[i]) {
			return false
		}
	}
	return true
}

// Layout is the bounded validity pattern of a closed model.  It applies to
// any lattice whose dimensions are at least the pattern extent.
type Layout struct {
	model *model.Model
	rows  []*row
}

// New builds the layout of a closed model.
func New(m *model.Model) *Layout {
	if m.IsOpen() {
		log.Panicf("layout requires a closed model")
	}
	l := &Layout{model: m}
	for {
		r := newRow(m, len(l.rows))
		if len(l.rows) > 0 && len(l.rows) >= m.MaxTargetAdvance &&
			r.equal(l.rows[len(l.rows)-1]) {
			break
		}
		l.rows = append(l.rows, r)
		if len(l.rows) >= probeLength {
			log.Panicf("layout for model %q does not stabilize", m.Name)
		}
	}
	return l
}

// IsTransitionValid reports whether t may fire into destination cell
// (queryPos, targetPos) of a queryLength x targetLength lattice.
func (l *Layout) IsTransitionValid(t *model.Transition,
	queryPos, targetPos, queryLength, targetLength int) bool {
	r := l.rows[min(targetPos, len(l.rows)-1)]
	c := r.cells[min(queryPos, len(r.cells)-1)]
	var mk mask
	if queryPos == queryLength {
		if targetPos == targetLength {
			mk = c.corner
			if mk == nil {
				mk = c.endTarget
			}
		} else {
			mk = c.endQuery
		}
	} else if targetPos == targetLength {
		mk = c.endTarget
	}
	if mk == nil {
		mk = c.normal
	}
	return bitset.Test(mk, t.ID)
}

// transitionIsValid is the direct scope check the masks cache: the
// transition's input state must be in scope at the source cell and its
// output state in scope at the destination cell.
func transitionIsValid(m *model.Model, t *model.Transition,
	queryPos, targetPos, queryLength, targetLength int) bool {
	if !stateActive(m, t.Input,
		queryPos-t.AdvanceQuery, targetPos-t.AdvanceTarget,
		queryLength, targetLength) {
		return false
	}
	return stateActive(m, t.Output, queryPos, targetPos, queryLength, targetLength)
}

func stateActive(m *model.Model, state *model.State,
	queryPos, targetPos, queryLength, targetLength int) bool {
	if queryPos < 0 || targetPos < 0 ||
		queryPos > queryLength || targetPos > targetLength {
		return false
	}
	if state == m.Start.State {
		switch m.Start.Scope {
		case model.ScopeAnywhere:
		case model.ScopeEdge:
			if queryPos != 0 && targetPos != 0 {
				return false
			}
		case model.ScopeQuery:
			if queryPos != 0 {
				return false
			}
		case model.ScopeTarget:
			if targetPos != 0 {
				return false
			}
		case model.ScopeCorner:
			if queryPos != 0 || targetPos != 0 {
				return false
			}
		}
	}
	if state == m.End.State {
		switch m.End.Scope {
		case model.ScopeAnywhere:
		case model.ScopeEdge:
			if queryPos != queryLength && targetPos != targetLength {
				return false
			}
		case model.ScopeQuery:
			if queryPos != queryLength {
				return false
			}
		case model.ScopeTarget:
			if targetPos != targetLength {
				return false
			}
		case model.ScopeCorner:
			if queryPos != queryLength || targetPos != targetLength {
				return false
			}
		}
	}
	return true
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
