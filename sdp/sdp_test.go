package sdp

import (
	"strings"
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/align/dp"
	"github.com/grailbio/align/model"
	"github.com/grailbio/align/subopt"
)

type seqPair struct {
	query  string
	target string
}

func substituteCalc(match, mismatch dp.Score) model.CalcFunc {
	return func(queryPos, targetPos int, userData interface{}) dp.Score {
		seqs := userData.(*seqPair)
		if seqs.query[queryPos] == seqs.target[targetPos] {
			return match
		}
		return mismatch
	}
}

// buildUngapped returns the local single-match model the direct SDP mode
// requires: one portal over one match self-loop, no shadows, no spans.
func buildUngapped() *model.Model {
	b := model.NewBuilder("ungapped")
	calc := b.AddCalc("substitute", 5, substituteCalc(5, -4), nil, nil, dp.ProtectNone)
	m := b.AddState("match state")
	b.AddTransition("start to match", nil, m, 0, 0, nil, model.LabelNone, nil)
	b.AddTransition("match", m, m, 1, 1, calc, model.LabelMatch, nil)
	b.AddTransition("match to end", m, nil, 0, 0, nil, model.LabelNone, nil)
	b.AddPortal("match portal", calc, 1, 1)
	return b.MustClose()
}

// buildIntron returns a spliced model: matches interrupted by a bounded
// zero-cost intron span on the target axis.
func buildIntron() *model.Model {
	b := model.NewBuilder("spliced")
	sub := b.AddCalc("substitute", 5, substituteCalc(5, -4), nil, nil, dp.ProtectNone)
	open := b.AddCalc("intron open", -10, nil, nil, nil, dp.ProtectNone)
	m := b.AddState("match state")
	intron := b.AddState("intron state")
	b.AddTransition("start to match", nil, m, 0, 0, nil, model.LabelNone, nil)
	b.AddTransition("match", m, m, 1, 1, sub, model.LabelMatch, nil)
	b.AddTransition("intron open", m, intron, 0, 1, open, model.Label5SS, nil)
	b.AddTransition("intron extend", intron, intron, 0, 1, nil, model.LabelIntron, nil)
	b.AddTransition("intron close", intron, m, 0, 1, nil, model.Label3SS, nil)
	b.AddTransition("match to end", m, nil, 0, 0, nil, model.LabelNone, nil)
	b.AddSpan("intron span", intron, 0, 0, 20, 10000)
	return b.MustClose()
}

// Two anchors separated by a long mismatch run must yield two alignments,
// neither bridging the gap, under a tight X-drop.
func TestXDropSeparation(t *testing.T) {
	m := buildUngapped()
	const length = 600
	query := strings.Repeat("ACGT", length/4)
	target := []byte(query)
	for i := 250; i < 275; i++ {
		target[i] = 'N' // mismatches against everything
	}
	seqs := &seqPair{query: query, target: string(target)}

	opts := dp.DefaultOpts
	opts.ExtensionThreshold = 20
	s := NewSDP(m, opts)
	require.False(t, s.useBoundary)

	comparison := &dp.Comparison{
		QueryLength:  length,
		TargetLength: length,
		HSPs: []dp.HSP{
			{QueryCobs: 10, TargetCobs: 10, Score: 100},
			{QueryCobs: 500, TargetCobs: 500, Score: 100},
		},
	}
	so := subopt.New()
	pair := NewSDPPair(s, so, comparison, seqs)

	first := pair.NextPath(1)
	require.NotNil(t, first)
	expect.EQ(t, first.Region, dp.NewRegion(275, 275, 325, 325))
	expect.EQ(t, first.Score, dp.Score(325*5))
	so.BlockAlignment(first)

	second := pair.NextPath(1)
	require.NotNil(t, second)
	expect.EQ(t, second.Region, dp.NewRegion(0, 0, 250, 250))
	expect.EQ(t, second.Score, dp.Score(250*5))
	expect.False(t, first.Region.Intersects(second.Region))
	so.BlockAlignment(second)

	require.Nil(t, pair.NextPath(1))
}

// A bounded intron span must be bridged by freezing the cell entering the
// span and thawing it at the far side, reproducing the exact path score.
func TestSpanThaw(t *testing.T) {
	m := buildIntron()
	const exon, intronLen = 20, 5000
	query := strings.Repeat("AC", exon/2) + strings.Repeat("GT", exon/2)
	target := query[:exon] + strings.Repeat("x", intronLen) + query[exon:]
	seqs := &seqPair{query: query, target: target}

	s := NewSDP(m, dp.DefaultOpts)
	require.True(t, s.useBoundary)

	comparison := &dp.Comparison{
		QueryLength:  len(query),
		TargetLength: len(target),
		HSPs: []dp.HSP{
			{QueryCobs: 10, TargetCobs: 10, Score: 100},
			{QueryCobs: 30, TargetCobs: exon + intronLen + 10, Score: 100},
		},
	}
	so := subopt.New()
	pair := NewSDPPair(s, so, comparison, seqs)

	a := pair.NextPath(50)
	require.NotNil(t, a)
	expect.EQ(t, a.Score, dp.Score(2*exon*5-10))
	expect.EQ(t, a.Region, dp.NewRegion(0, 0, 2*exon, 2*exon+intronLen))
	require.True(t, a.IsValid())
	intronTarget := 0
	for _, op := range a.Ops {
		switch op.Transition.Label {
		case model.LabelIntron, model.Label5SS, model.Label3SS:
			intronTarget += op.Transition.AdvanceTarget * op.Length
		}
	}
	expect.EQ(t, intronTarget, intronLen)

	so.BlockAlignment(a)
	require.Nil(t, pair.NextPath(50))
}
