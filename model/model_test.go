package model

import (
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/align/dp"
)

func constCalc(b *Builder, name string, score dp.Score) *Calc {
	return b.AddCalc(name, score, nil, nil, nil, dp.ProtectNone)
}

// buildMatch returns an open three-state match model: START -> M -> END
// with a match self-loop.
func buildMatch(calcFn CalcFunc) *Builder {
	b := NewBuilder("match")
	match := b.AddCalc("match", 5, calcFn, nil, nil, dp.ProtectNone)
	m := b.AddState("match state")
	b.AddTransition("start to match", nil, m, 1, 1, match, LabelMatch, nil)
	b.AddTransition("match", m, m, 1, 1, match, LabelMatch, nil)
	b.AddTransition("match to end", m, nil, 0, 0, nil, LabelNone, nil)
	return b
}

func TestCloseAssignsIDs(t *testing.T) {
	m := buildMatch(nil).MustClose()
	require.Equal(t, 3, len(m.States))
	expect.EQ(t, m.States[0].Name, "START")
	expect.EQ(t, m.States[1].Name, "END")
	for i, state := range m.States {
		expect.EQ(t, state.ID, i)
	}
	for i, tr := range m.Transitions {
		expect.EQ(t, tr.ID, i)
	}
	expect.EQ(t, m.MaxQueryAdvance, 1)
	expect.EQ(t, m.MaxTargetAdvance, 1)
}

func TestCloseRejectsDanglingState(t *testing.T) {
	b := buildMatch(nil)
	b.AddState("orphan")
	_, err := b.Close()
	require.Error(t, err)
}

func TestCloseRejectsUnreachableEnd(t *testing.T) {
	b := NewBuilder("no path")
	m := b.AddState("m")
	b.AddTransition("start to m", nil, m, 1, 1, nil, LabelNone, nil)
	b.AddTransition("m loop", m, m, 1, 1, nil, LabelNone, nil)
	// END has no inputs at all.
	_, err := b.Close()
	require.Error(t, err)
}

func TestCloseRejectsSilentCycle(t *testing.T) {
	b := NewBuilder("silent cycle")
	x := b.AddState("x")
	y := b.AddState("y")
	b.AddTransition("start to x", nil, x, 1, 1, nil, LabelNone, nil)
	b.AddTransition("x to y", x, y, 0, 0, nil, LabelNone, nil)
	b.AddTransition("y to x", y, x, 0, 0, nil, LabelNone, nil)
	b.AddTransition("y to end", y, nil, 1, 1, nil, LabelNone, nil)
	_, err := b.Close()
	require.Error(t, err)
}

// Every silent transition must come after the silent transitions that feed
// its input state, and after all emitting transitions.
func TestTopologicalOrder(t *testing.T) {
	b := NewBuilder("silent chain")
	x := b.AddState("x")
	y := b.AddState("y")
	z := b.AddState("z")
	b.AddTransition("start to x", nil, x, 1, 1, nil, LabelNone, nil)
	b.AddTransition("y to z", y, z, 0, 0, nil, LabelNone, nil)
	b.AddTransition("x to y", x, y, 0, 0, nil, LabelNone, nil)
	b.AddTransition("z to end", z, nil, 1, 1, nil, LabelNone, nil)
	m := b.MustClose()

	firstSilent := -1
	for i, tr := range m.Transitions {
		if tr.IsSilent() {
			if firstSilent < 0 {
				firstSilent = i
			}
			continue
		}
		if firstSilent >= 0 {
			t.Fatalf("emitting transition %q after silent block", tr.Name)
		}
	}
	for _, tr := range m.Transitions {
		if !tr.IsSilent() {
			continue
		}
		for _, producer := range m.Transitions {
			if producer.IsSilent() && producer.Output == tr.Input {
				assert.True(t, producer.ID < tr.ID,
					"%q must precede %q", producer.Name, tr.Name)
			}
		}
	}
}

func TestCloseIdempotent(t *testing.T) {
	m := buildMatch(nil).MustClose()
	again := m.Reopen().MustClose()
	require.Equal(t, len(m.States), len(again.States))
	require.Equal(t, len(m.Transitions), len(again.Transitions))
	for i := range m.States {
		expect.EQ(t, again.States[i].Name, m.States[i].Name)
		expect.EQ(t, again.States[i].ID, m.States[i].ID)
	}
	for i := range m.Transitions {
		expect.EQ(t, again.Transitions[i].Name, m.Transitions[i].Name)
		expect.EQ(t, again.Transitions[i].ID, m.Transitions[i].ID)
		expect.EQ(t, again.Transitions[i].AdvanceQuery, m.Transitions[i].AdvanceQuery)
		expect.EQ(t, again.Transitions[i].AdvanceTarget, m.Transitions[i].AdvanceTarget)
	}
}

func TestCopyPreservesStructure(t *testing.T) {
	m := buildMatch(nil).MustClose()
	cp := m.Copy()
	require.Equal(t, len(m.States), len(cp.States))
	require.Equal(t, len(m.Transitions), len(cp.Transitions))
	for i := range m.Transitions {
		expect.EQ(t, cp.Transitions[i].Name, m.Transitions[i].Name)
		expect.EQ(t, cp.Transitions[i].ID, m.Transitions[i].ID)
		expect.EQ(t, cp.Transitions[i].Input.ID, m.Transitions[i].Input.ID)
		expect.EQ(t, cp.Transitions[i].Output.ID, m.Transitions[i].Output.ID)
	}
	expect.EQ(t, cp.TotalShadowDesignations, m.TotalShadowDesignations)
	// The copy is a distinct graph.
	assert.True(t, cp.States[0] != m.States[0])
}

func TestPathIsPossible(t *testing.T) {
	b := NewBuilder("path")
	x := b.AddState("x")
	y := b.AddState("y")
	b.AddTransition("start to x", nil, x, 1, 0, nil, LabelNone, nil)
	b.AddTransition("x to end", x, nil, 1, 0, nil, LabelNone, nil)
	b.AddTransition("start to y", nil, y, 0, 1, nil, LabelNone, nil)
	b.AddTransition("y to end", y, nil, 0, 1, nil, LabelNone, nil)
	m := b.MustClose()
	expect.True(t, m.PathIsPossible(x, m.End.State))
	expect.False(t, m.PathIsPossible(x, y))
}

func TestRemoveStateDropsBothSides(t *testing.T) {
	b := NewBuilder("remove")
	x := b.AddState("x")
	y := b.AddState("y")
	b.AddTransition("start to x", nil, x, 1, 1, nil, LabelNone, nil)
	b.AddTransition("x to y", x, y, 1, 1, nil, LabelNone, nil)
	b.AddTransition("y to x", y, x, 1, 1, nil, LabelNone, nil)
	b.AddTransition("y to end", y, nil, 1, 1, nil, LabelNone, nil)
	b.AddTransition("start to y", nil, y, 1, 1, nil, LabelNone, nil)
	b.RemoveState(x)
	m := b.MustClose()
	require.Equal(t, 2, len(m.Transitions))
	for _, tr := range m.Transitions {
		assert.True(t, tr.Input != x && tr.Output != x, "transition %q still touches x", tr.Name)
	}
}

func TestMakeStereo(t *testing.T) {
	m := buildMatch(nil).MustClose()
	b := m.Reopen()
	MakeStereo(b, "+", "-")
	stereo := b.MustClose()
	expect.EQ(t, len(stereo.States), 2*len(m.States)-2)
	expect.EQ(t, len(stereo.Transitions), 2*len(m.Transitions))
	// No transition crosses the halves.
	for _, tr := range stereo.Transitions {
		inPlus := tr.Input.Name == "START" || tr.Input.Name[len(tr.Input.Name)-1] == '+'
		outPlus := tr.Output.Name == "END" || tr.Output.Name[len(tr.Output.Name)-1] == '+'
		inMinus := tr.Input.Name == "START" || tr.Input.Name[len(tr.Input.Name)-1] == '-'
		outMinus := tr.Output.Name == "END" || tr.Output.Name[len(tr.Output.Name)-1] == '-'
		assert.True(t, (inPlus && outPlus) || (inMinus && outMinus),
			"transition %q crosses strands", tr.Name)
	}
}

func TestInsertDedupesCalcs(t *testing.T) {
	insert := func() *Model {
		b := NewBuilder("gap piece")
		g := b.AddState("gap state")
		calc := constCalc(b, "gap", -4)
		b.AddTransition("open", nil, g, 0, 1, calc, LabelGap, nil)
		b.AddTransition("close", g, nil, 0, 0, nil, LabelNone, nil)
		return b.MustClose()
	}()
	b := NewBuilder("target")
	m := b.AddState("m")
	calc := constCalc(b, "gap", -4)
	b.AddTransition("start to m", nil, m, 1, 1, calc, LabelNone, nil)
	b.AddTransition("m to end", m, nil, 1, 1, nil, LabelNone, nil)
	Insert(b, insert, m, m)
	closed := b.MustClose()
	expect.EQ(t, len(closed.Calcs), 1)
}

func TestShadowDesignationSharing(t *testing.T) {
	b := NewBuilder("shadows")
	x := b.AddState("x")
	y := b.AddState("y")
	startFn := func(q, t int, _ interface{}) dp.Score { return dp.Score(q) }
	endFn := func(v dp.Score, q, t int, _ interface{}) {}
	b.AddTransition("start to x", nil, x, 1, 1, nil, LabelNone, nil)
	xe := b.AddTransition("x to end", x, nil, 1, 1, nil, LabelNone, nil)
	b.AddTransition("start to y", nil, y, 1, 1, nil, LabelNone, nil)
	ye := b.AddTransition("y to end", y, nil, 1, 1, nil, LabelNone, nil)
	// Two shadows over disjoint halves of the graph can share a slot; a
	// third over one of the same halves cannot.
	b.AddShadow("over x", x, xe, startFn, endFn)
	b.AddShadow("over y", y, ye, startFn, endFn)
	b.AddShadow("over x again", x, xe, startFn, endFn)
	m := b.MustClose()
	expect.EQ(t, m.Shadows[0].Designation, 0)
	expect.EQ(t, m.Shadows[1].Designation, 0)
	expect.EQ(t, m.Shadows[2].Designation, 1)
	expect.EQ(t, m.TotalShadowDesignations, 2)
}

func TestDerivedModel(t *testing.T) {
	b := NewBuilder("base")
	x := b.AddState("x")
	y := b.AddState("y")
	z := b.AddState("z")
	b.AddTransition("start to x", nil, x, 1, 1, nil, LabelNone, nil)
	b.AddTransition("x to y", x, y, 1, 1, nil, LabelNone, nil)
	b.AddTransition("y to z", y, z, 1, 1, nil, LabelNone, nil)
	b.AddTransition("x to z", x, z, 2, 2, nil, LabelNone, nil)
	b.AddTransition("z to end", z, nil, 0, 0, nil, LabelNone, nil)
	m := b.MustClose()

	dm := NewDerivedModel(m, x, z,
		ScopeCorner, nil, ScopeCorner, nil)
	derived := dm.Derived
	// The x..z segment holds y plus the terminals.
	require.Equal(t, 3, len(derived.States))
	require.Equal(t, 3, len(derived.Transitions))
	for _, dt := range derived.Transitions {
		orig := dm.TransitionMap[dt.ID]
		require.NotNil(t, orig)
		expect.EQ(t, dt.AdvanceQuery, orig.AdvanceQuery)
		expect.EQ(t, dt.AdvanceTarget, orig.AdvanceTarget)
		expect.EQ(t, int(dt.Label), int(orig.Label))
		expect.EQ(t, dt.Name, orig.Name)
	}
}

func TestAlignmentCoalesce(t *testing.T) {
	m := buildMatch(nil).MustClose()
	match := m.Transitions[1]
	a := NewAlignment(dp.NewRegion(0, 0, 3, 3), 15)
	a.Add(match, 1)
	a.Add(match, 1)
	a.Add(match, 1)
	require.Equal(t, 1, len(a.Ops))
	expect.EQ(t, a.Ops[0].Length, 3)
	expect.EQ(t, a.QueryAdvance(), 3)
	expect.True(t, a.IsValid())
}
