package sdp

import (
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/align/model"
)

func twoTransitions() (*model.Transition, *model.Transition) {
	b := model.NewBuilder("pair")
	m := b.AddState("m")
	t1 := b.AddTransition("one", nil, m, 1, 1, nil, model.LabelNone, nil)
	t2 := b.AddTransition("two", m, nil, 1, 0, nil, model.LabelNone, nil)
	b.MustClose()
	return t1, t2
}

func TestSTracebackListOrder(t *testing.T) {
	t1, t2 := twoTransitions()
	st := NewSTraceback(true)
	a := st.Add(t1, 1, 0)
	c := st.Add(t2, 2, a)
	ops := st.List(c)
	require.Equal(t, 2, len(ops))
	// Oldest run first.
	require.True(t, ops[0].Transition == t1)
	require.True(t, ops[1].Transition == t2)
	expect.EQ(t, ops[1].Length, 2)
}

func TestSTracebackSharingAndRecycle(t *testing.T) {
	t1, _ := twoTransitions()
	st := NewSTraceback(true)
	a := st.Add(t1, 1, 0)
	b := st.Add(t1, 1, a) // b holds a
	st.Drop(a)            // creation reference gone; b keeps a alive
	expect.EQ(t, len(st.List(b)), 2)
	st.Drop(b)
	// Both cells are recycled now.
	require.Equal(t, 2, len(st.free))
}

// Coalescing adjacent identical runs must preserve the total emission.
func TestSTracebackCoalesce(t *testing.T) {
	t1, t2 := twoTransitions()
	st := NewSTraceback(true)
	head := st.Add(t2, 3, 0)
	mid := st.Add(t1, 2, head)
	st.Drop(head)
	tip := st.Add(t1, 4, mid)
	st.Drop(mid)

	total := 0
	for _, op := range st.List(tip) {
		total += op.Length * op.Transition.AdvanceQuery
	}
	st.coalesce(tip)
	ops := st.List(tip)
	require.Equal(t, 2, len(ops))
	expect.EQ(t, ops[1].Length, 6) // 2+4 merged
	after := 0
	for _, op := range ops {
		after += op.Length * op.Transition.AdvanceQuery
	}
	expect.EQ(t, after, total)
}

func TestBoundaryPrependAndReverse(t *testing.T) {
	b := NewBoundary()
	row := b.AddRow(7)
	row.Prepend(12, 1)
	row.Prepend(11, 1)
	row.Prepend(10, 1)
	row.Prepend(5, 2)
	require.Equal(t, 2, len(row.Intervals))
	expect.EQ(t, row.Intervals[0], BoundaryInterval{QueryPos: 5, SeedID: 2, Length: 1})
	expect.EQ(t, row.Intervals[1], BoundaryInterval{QueryPos: 10, SeedID: 1, Length: 3})

	b.AddRow(6)
	b.RemoveEmptyLastRow()
	require.Equal(t, 1, len(b.Rows))

	b.AddRow(6).Prepend(1, 0)
	b.Reverse()
	expect.EQ(t, b.Rows[0].TargetPos, 6)
	expect.EQ(t, b.Rows[1].TargetPos, 7)
}
