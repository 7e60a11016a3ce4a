package layout

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grailbio/align/dp"
	"github.com/grailbio/align/model"
)

// buildAffine returns a closed affine-gap model with the given terminal
// scopes.
func buildAffine(startScope, endScope model.Scope) *model.Model {
	b := model.NewBuilder(fmt.Sprintf("affine %v %v", startScope, endScope))
	sub := b.AddCalc("substitute", 5, nil, nil, nil, dp.ProtectNone)
	gapOpen := b.AddCalc("gap open", -12, nil, nil, nil, dp.ProtectNone)
	gapExtend := b.AddCalc("gap extend", -2, nil, nil, nil, dp.ProtectNone)
	m := b.AddState("match state")
	ins := b.AddState("insert state")
	del := b.AddState("delete state")
	b.AddTransition("start to match", nil, m, 1, 1, sub, model.LabelMatch, nil)
	b.AddTransition("match", m, m, 1, 1, sub, model.LabelMatch, nil)
	b.AddTransition("open insert", m, ins, 0, 1, gapOpen, model.LabelGap, nil)
	b.AddTransition("extend insert", ins, ins, 0, 1, gapExtend, model.LabelGap, nil)
	b.AddTransition("close insert", ins, m, 1, 1, sub, model.LabelMatch, nil)
	b.AddTransition("open delete", m, del, 1, 0, gapOpen, model.LabelGap, nil)
	b.AddTransition("extend delete", del, del, 1, 0, gapExtend, model.LabelGap, nil)
	b.AddTransition("close delete", del, m, 1, 1, sub, model.LabelMatch, nil)
	b.AddTransition("match to end", m, nil, 0, 0, nil, model.LabelNone, nil)
	b.ConfigureStartState(startScope, nil)
	b.ConfigureEndState(endScope, nil)
	return b.MustClose()
}

// The mask lookup must agree with the direct scope check at every lattice
// position, for every scope combination.
func TestLayoutMatchesScopeCheck(t *testing.T) {
	scopes := []model.Scope{
		model.ScopeAnywhere, model.ScopeEdge, model.ScopeQuery,
		model.ScopeTarget, model.ScopeCorner,
	}
	const queryLen, targetLen = 7, 9
	for _, ss := range scopes {
		for _, es := range scopes {
			m := buildAffine(ss, es)
			lay := New(m)
			for q := 0; q <= queryLen; q++ {
				for tp := 0; tp <= targetLen; tp++ {
					for _, tr := range m.Transitions {
						want := transitionIsValid(m, tr, q, tp, queryLen, targetLen)
						got := lay.IsTransitionValid(tr, q, tp, queryLen, targetLen)
						require.Equal(t, want, got,
							"scopes %v/%v transition %q at (%d,%d)",
							ss, es, tr.Name, q, tp)
					}
				}
			}
		}
	}
}

// Small lattices, down to a single cell, must also be covered by the
// repeating pattern.
func TestLayoutTinyLattice(t *testing.T) {
	m := buildAffine(model.ScopeCorner, model.ScopeCorner)
	lay := New(m)
	for queryLen := 0; queryLen <= 3; queryLen++ {
		for targetLen := 0; targetLen <= 3; targetLen++ {
			for q := 0; q <= queryLen; q++ {
				for tp := 0; tp <= targetLen; tp++ {
					for _, tr := range m.Transitions {
						want := transitionIsValid(m, tr, q, tp, queryLen, targetLen)
						got := lay.IsTransitionValid(tr, q, tp, queryLen, targetLen)
						require.Equal(t, want, got,
							"transition %q at (%d,%d) of %dx%d",
							tr.Name, q, tp, queryLen, targetLen)
					}
				}
			}
		}
	}
}
