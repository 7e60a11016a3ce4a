package subopt

import (
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/align/dp"
	"github.com/grailbio/align/model"
)

func matchModel() *model.Model {
	b := model.NewBuilder("match")
	calc := b.AddCalc("match", 5, nil, nil, nil, dp.ProtectNone)
	m := b.AddState("match state")
	b.AddTransition("start to match", nil, m, 1, 1, calc, model.LabelMatch, nil)
	b.AddTransition("match", m, m, 1, 1, calc, model.LabelMatch, nil)
	b.AddTransition("match to end", m, nil, 0, 0, nil, model.LabelNone, nil)
	return b.MustClose()
}

func diagonal(m *model.Model, queryStart, targetStart, length int) *model.Alignment {
	a := model.NewAlignment(dp.NewRegion(queryStart, targetStart, length, length), 0)
	a.Add(m.Transitions[0], 1)
	if length > 1 {
		a.Add(m.Transitions[1], length-1)
	}
	return a
}

func TestBlockAndQuery(t *testing.T) {
	m := matchModel()
	s := New()
	s.BlockAlignment(diagonal(m, 10, 20, 5))

	x := s.NewIndex(dp.NewRegion(0, 0, 100, 100))
	x.SetRow(19)
	expect.False(t, x.IsBlocked(10))
	x.SetRow(20)
	expect.True(t, x.IsBlocked(10))
	expect.False(t, x.IsBlocked(11))
	x.SetRow(22)
	expect.True(t, x.IsBlocked(12))
	expect.False(t, x.IsBlocked(13))
	x.SetRow(24)
	expect.True(t, x.IsBlocked(14))
	x.SetRow(25)
	expect.False(t, x.IsBlocked(15))
}

func TestIndexIsRegionRelative(t *testing.T) {
	m := matchModel()
	s := New()
	s.BlockAlignment(diagonal(m, 10, 20, 5))
	x := s.NewIndex(dp.NewRegion(8, 18, 50, 50))
	x.SetRow(2) // absolute target row 20
	expect.True(t, x.IsBlocked(2))
	expect.False(t, x.IsBlocked(3))
}

func TestOverlapsAlignment(t *testing.T) {
	m := matchModel()
	s := New()
	s.BlockAlignment(diagonal(m, 10, 20, 5))
	require.True(t, s.OverlapsAlignment(diagonal(m, 12, 22, 5)))
	require.False(t, s.OverlapsAlignment(diagonal(m, 30, 40, 5)))
	// The transposed diagonal covers different cells and does not collide.
	require.False(t, s.OverlapsAlignment(diagonal(m, 20, 10, 5)))
}

func TestNilSubOpt(t *testing.T) {
	var s *SubOpt
	x := s.NewIndex(dp.NewRegion(0, 0, 10, 10))
	x.SetRow(0)
	expect.False(t, x.IsBlocked(0))
}
