// Package subopt tracks the lattice cells consumed by previously reported
// alignments, so that successive DP runs are excluded from re-using them.
// Blocked cells are kept per target row as query intervals in an interval
// tree; a per-run Index projects one row at a time as sorted intervals for
// binary-search membership tests in the DP inner loop.
package subopt

import (
	"sort"

	"github.com/biogo/store/interval"
	"github.com/grailbio/base/log"

	"github.com/grailbio/align/dp"
	"github.com/grailbio/align/model"
)

type blockedInterval struct {
	start, end int // query positions, half-open
	id         uintptr
}

func (b blockedInterval) ID() uintptr { return b.id }
func (b blockedInterval) Range() interval.IntRange {
	return interval.IntRange{Start: b.start, End: b.end}
}
func (b blockedInterval) Overlap(o interval.IntRange) bool {
	return b.end > o.Start && b.start < o.End
}

// SubOpt records blocked cells in absolute sequence coordinates.
type SubOpt struct {
	rows   map[int]*interval.IntTree
	nextID uintptr
}

// New returns an empty exclusion set.
func New() *SubOpt {
	return &SubOpt{rows: map[int]*interval.IntTree{}}
}

// blockCell marks one lattice cell.  Adjacent cells on the same row merge
// lazily at query time.
func (s *SubOpt) blockCell(queryPos, targetPos, queryLen int) {
	t := s.rows[targetPos]
	if t == nil {
		t = &interval.IntTree{}
		s.rows[targetPos] = t
	}
	s.nextID++
	if err := t.Insert(blockedInterval{queryPos, queryPos + queryLen, s.nextID}, true); err != nil {
		log.Panicf("subopt insert: %v", err)
	}
}

// BlockAlignment marks every cell consumed by a match-labelled operation of
// the alignment.
func (s *SubOpt) BlockAlignment(a *model.Alignment) {
	queryPos := a.Region.QueryStart
	targetPos := a.Region.TargetStart
	for _, op := range a.Ops {
		t := op.Transition
		for i := 0; i < op.Length; i++ {
			if t.IsMatch() {
				for dt := 0; dt < t.AdvanceTarget; dt++ {
					s.blockCell(queryPos, targetPos+dt, t.AdvanceQuery)
				}
			}
			queryPos += t.AdvanceQuery
			targetPos += t.AdvanceTarget
		}
	}
	for _, t := range s.rows {
		t.AdjustRanges()
	}
}

// OverlapsAlignment reports whether any match cell of the alignment is
// already blocked.
func (s *SubOpt) OverlapsAlignment(a *model.Alignment) bool {
	queryPos := a.Region.QueryStart
	targetPos := a.Region.TargetStart
	for _, op := range a.Ops {
		t := op.Transition
		for i := 0; i < op.Length; i++ {
			if t.IsMatch() {
				for dt := 0; dt < t.AdvanceTarget; dt++ {
					tree := s.rows[targetPos+dt]
					if tree == nil {
						continue
					}
					hits := tree.Get(blockedInterval{start: queryPos, end: queryPos + t.AdvanceQuery})
					if len(hits) > 0 {
						return true
					}
				}
			}
			queryPos += t.AdvanceQuery
			targetPos += t.AdvanceTarget
		}
	}
	return false
}

// Index is the projection of a SubOpt onto one DP region, loaded one
// target row at a time.
type Index struct {
	subopt *SubOpt
	region dp.Region
	// blocked is the current row's interval list in region-relative query
	// coordinates, sorted by end.
	blocked []blockedInterval
}

// NewIndex returns an index of s over region.  A nil s yields a nil index,
// on which every query is unblocked.
func (s *SubOpt) NewIndex(region dp.Region) *Index {
	if s == nil {
		return nil
	}
	return &Index{subopt: s, region: region}
}

// SetRow loads the blocked intervals of region-relative target row.
func (x *Index) SetRow(targetRow int) {
	if x == nil {
		return
	}
	x.blocked = x.blocked[:0]
	tree := x.subopt.rows[x.region.TargetStart+targetRow]
	if tree == nil {
		return
	}
	span := blockedInterval{start: x.region.QueryStart, end: x.region.QueryEnd() + 1}
	for _, hit := range tree.Get(span) {
		r := hit.Range()
		x.blocked = append(x.blocked, blockedInterval{
			start: r.Start - x.region.QueryStart,
			end:   r.End - x.region.QueryStart,
		})
	}
	sort.Slice(x.blocked, func(i, j int) bool {
		return x.blocked[i].start < x.blocked[j].start
	})
	// Merge overlaps so membership is a single binary search.
	merged := x.blocked[:0]
	for _, iv := range x.blocked {
		if n := len(merged); n > 0 && iv.start <= merged[n-1].end {
			if iv.end > merged[n-1].end {
				merged[n-1].end = iv.end
			}
			continue
		}
		merged = append(merged, iv)
	}
	x.blocked = merged
}

// IsBlocked reports whether the region-relative query position is blocked
// on the current row.
func (x *Index) IsBlocked(queryPos int) bool {
	if x == nil {
		return false
	}
	i := sort.Search(len(x.blocked), func(i int) bool {
		return x.blocked[i].end > queryPos
	})
	return i < len(x.blocked) && x.blocked[i].start <= queryPos
}
