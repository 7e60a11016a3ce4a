package model

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// sortTransitions reorders Transitions into a valid per-cell update order
// and reassigns their ids: emitting transitions first, in insertion order,
// then the silent transitions topologically sorted so that every silent
// transition writing a state precedes the silent transitions reading it in
// the same lattice cell.  The ordering is deterministic and a fixed point,
// so closing an untouched reopened model reproduces the same ids.
func (m *Model) sortTransitions() error {
	var emitting, silent []*Transition
	for _, t := range m.Transitions {
		if t.IsSilent() {
			if t.Input == t.Output {
				return errors.Errorf("silent self-loop on state %q", t.Input.Name)
			}
			silent = append(silent, t)
		} else {
			emitting = append(emitting, t)
		}
	}
	if len(silent) > 0 {
		g := simple.NewDirectedGraph()
		for _, t := range silent {
			g.AddNode(simple.Node(t.ID))
		}
		// Edge producer -> consumer: a silent transition writing a state
		// must run before the silent transitions reading it.
		for _, t := range silent {
			for _, in := range t.Input.Inputs {
				if in.IsSilent() {
					g.SetEdge(simple.Edge{F: simple.Node(in.ID), T: simple.Node(t.ID)})
				}
			}
		}
		sorted, err := topo.SortStabilized(g, nil)
		if err != nil {
			return errors.Wrap(err, "silent transitions form a cycle")
		}
		if len(sorted) != len(silent) {
			panicf("model %q: topological sort dropped transitions", m.Name)
		}
		byID := make(map[int64]*Transition, len(silent))
		for _, t := range silent {
			byID[int64(t.ID)] = t
		}
		silent = silent[:0]
		for _, n := range sorted {
			silent = append(silent, byID[n.ID()])
		}
	}
	m.Transitions = append(emitting, silent...)
	for i, t := range m.Transitions {
		t.ID = i
	}
	return nil
}
