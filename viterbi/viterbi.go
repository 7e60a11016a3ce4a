// Package viterbi implements the exhaustive lattice DP over a closed
// model: a strictly row-sequential sweep of the (query+1) x (target+1)
// lattice, interpreting the model's transitions in their closed order.
// Four modes are supported: a bare maximum score, best-region discovery,
// full-path traceback, and sparse checkpoint recording for reduced-space
// traceback of large regions.
package viterbi

import (
	"github.com/grailbio/base/log"

	"github.com/grailbio/align/dp"
	"github.com/grailbio/align/layout"
	"github.com/grailbio/align/matrix"
	"github.com/grailbio/align/model"
	"github.com/grailbio/align/subopt"
)

// Mode selects what a Viterbi run records beyond its score.
type Mode int

const (
	// ScoreOnly computes the maximum score.
	ScoreOnly Mode = iota
	// FindRegion additionally reports the region of the best path.
	FindRegion
	// FindPath records a full traceback matrix.
	FindPath
	// FindCheckpoints records sparse row snapshots for reduced-space
	// traceback.
	FindCheckpoints
)

// Viterbi is a reusable engine: a closed model, its layout, and the run
// mode.  It holds no per-run state; concurrent Calculate calls may share
// it, each with its own Data.
type Viterbi struct {
	m         *model.Model
	lay       *layout.Layout
	mode      Mode
	continued bool
	cellSize  int
	opts      dp.Opts
}

// New returns an engine for m.  When continued is set, the engine runs
// continuation DP: the model is copied with corner-scoped terminals, the
// sweep is seeded from a caller-supplied first cell and the final cell is
// copied back out.
func New(m *model.Model, mode Mode, continued bool, opts dp.Opts) *Viterbi {
	if m.IsOpen() {
		log.Panicf("viterbi requires a closed model")
	}
	if continued {
		// Continuation resumes from and deposits into exact lattice
		// corners, so the engine works on a corner-scoped copy.
		b := m.Reopen()
		b.ConfigureStartState(model.ScopeCorner, m.Start.CellStart)
		b.ConfigureEndState(model.ScopeCorner, m.End.CellEnd)
		m = b.MustClose()
	}
	v := &Viterbi{m: m, mode: mode, continued: continued, opts: opts}
	v.cellSize = v.computeCellSize()
	v.lay = layout.New(m)
	return v
}

// Model returns the engine's (possibly copied) model.
func (v *Viterbi) Model() *model.Model { return v.m }

// CellSize returns the width of one DP cell in score slots.
func (v *Viterbi) CellSize() int { return v.cellSize }

func (v *Viterbi) computeCellSize() int {
	size := 1 + v.m.TotalShadowDesignations
	if v.mode == FindRegion && v.m.Start.Scope != model.ScopeCorner {
		if v.m.Start.Scope != model.ScopeQuery {
			size++
		}
		if v.m.Start.Scope != model.ScopeTarget {
			size++
		}
	}
	if v.mode == FindCheckpoints {
		size++
	}
	return size
}

// rowBytes returns the memory footprint of the rolling row window for
// region, or 0 on overflow.
func (v *Viterbi) rowBytes(region dp.Region) int {
	cells := matrix.Size4(v.m.MaxTargetAdvance+1, region.QueryLength+1,
		len(v.m.States), v.cellSize)
	return cells * 8
}

// tracebackBytes returns the memory footprint of the FindPath traceback
// matrix for region, or 0 on overflow.
func (v *Viterbi) tracebackBytes(region dp.Region) int {
	cells := matrix.Size3(region.QueryLength+1, region.TargetLength+1,
		len(v.m.States))
	return cells * 8
}

// UseReducedSpace reports whether a FindPath traceback over region should
// go through checkpoints instead: always when either size computation
// overflows, never when the region is within six advances of the model,
// otherwise when the memory budget is exceeded.
func (v *Viterbi) UseReducedSpace(region dp.Region) bool {
	if !region.IsValid() {
		log.Panicf("invalid region %v", region)
	}
	if v.m.MaxQueryAdvance == 0 || v.m.MaxTargetAdvance == 0 {
		return false
	}
	if region.QueryLength <= v.m.MaxQueryAdvance*6 {
		return false
	}
	if region.TargetLength <= v.m.MaxTargetAdvance*6 {
		return false
	}
	rowMem := v.rowBytes(region)
	tbMem := v.tracebackBytes(region)
	if rowMem == 0 || tbMem == 0 {
		return true
	}
	return rowMem+tbMem > v.opts.DPMemory<<20
}

// continuation carries the boundary cells of a resumed DP.
type continuation struct {
	firstState *model.State
	firstCell  []dp.Score
	finalState *model.State
	finalCell  []dp.Score
}

// Data is the per-run state of one Calculate call.
type Data struct {
	v *Viterbi
	// rows is the rolling window of maxTargetAdvance+1 score rows.
	rows [][][][]dp.Score

	regionStartQueryID  int
	regionStartTargetID int
	checkpointID        int

	traceback  [][][]*model.Transition
	checkpoint *checkpointStore
	cont       *continuation

	alignmentRegion dp.Region

	currQueryStart  int
	currTargetStart int
	currQueryEnd    int
	currTargetEnd   int
}

// NewData allocates run state for one Calculate over region.
func NewData(v *Viterbi, region dp.Region) *Data {
	d := &Data{
		v:                   v,
		regionStartQueryID:  -1,
		regionStartTargetID: -1,
		checkpointID:        -1,
	}
	size := 1 + v.m.TotalShadowDesignations
	if v.mode == FindRegion {
		d.alignmentRegion = region
		if v.m.Start.Scope != model.ScopeCorner {
			if v.m.Start.Scope != model.ScopeQuery {
				d.regionStartQueryID = size
				size++
			}
			if v.m.Start.Scope != model.ScopeTarget {
				d.regionStartTargetID = size
				size++
			}
		}
	}
	if v.mode == FindCheckpoints {
		d.checkpointID = size
		size++
	}
	if size != v.cellSize {
		log.Panicf("cell size mismatch: %d != %d", size, v.cellSize)
	}
	d.rows = matrix.New4(v.m.MaxTargetAdvance+1, region.QueryLength+1,
		len(v.m.States), v.cellSize)
	for _, row := range d.rows {
		for _, states := range row {
			for _, cell := range states {
				cell[0] = dp.ImpossiblyLow
			}
		}
	}
	switch v.mode {
	case FindPath:
		d.traceback = make([][][]*model.Transition, region.QueryLength+1)
		for i := range d.traceback {
			d.traceback[i] = make([][]*model.Transition, region.TargetLength+1)
			for j := range d.traceback[i] {
				d.traceback[i][j] = make([]*model.Transition, len(v.m.States))
			}
		}
	case FindCheckpoints:
		d.checkpoint = newCheckpointStore(v, region)
	}
	return d
}

// SetContinuation arranges for the next Calculate to resume from firstCell
// in firstState at the region origin, and to deposit the final cell of
// finalState at the region corner into finalCell.  Both cells are
// cellSize-wide score slices.
func (d *Data) SetContinuation(firstState *model.State, firstCell []dp.Score,
	finalState *model.State, finalCell []dp.Score) {
	if d.cont != nil {
		log.Panicf("continuation already set")
	}
	d.cont = &continuation{
		firstState: firstState,
		firstCell:  firstCell,
		finalState: finalState,
		finalCell:  finalCell,
	}
}

// ClearContinuation removes a previously set continuation.
func (d *Data) ClearContinuation() { d.cont = nil }

// shadowStart refreshes the region-start registers and shadow slots of a
// source cell before its contents are transported.
func (d *Data) shadowStart(t *model.Transition, region dp.Region,
	src []dp.Score, queryPos, targetPos int, userData interface{}) {
	if t.Input == d.v.m.Start.State {
		if d.regionStartQueryID != -1 {
			src[d.regionStartQueryID] = dp.Score(queryPos - t.AdvanceQuery)
		}
		if d.regionStartTargetID != -1 {
			src[d.regionStartTargetID] = dp.Score(targetPos - t.AdvanceTarget)
		}
	}
	for _, shadow := range t.Input.SrcShadows {
		src[1+shadow.Designation] = shadow.StartFn(
			region.QueryStart+queryPos-t.AdvanceQuery,
			region.TargetStart+targetPos-t.AdvanceTarget,
			userData)
	}
}

// shadowEnd pops the shadows whose destination is t.
func (d *Data) shadowEnd(t *model.Transition, region dp.Region,
	src []dp.Score, queryPos, targetPos int, userData interface{}) {
	for _, shadow := range t.DstShadows {
		shadow.EndFn(src[1+shadow.Designation],
			region.QueryStart+queryPos-t.AdvanceQuery,
			region.TargetStart+targetPos-t.AdvanceTarget,
			userData)
	}
}

// assign accepts a challenge: writes the score, transports the shadow
// slots and records the traceback pointer.
func (d *Data) assign(src, dst []dp.Score, score dp.Score,
	queryPos, targetPos int, t *model.Transition, region dp.Region,
	userData interface{}) {
	dst[0] = score
	d.shadowStart(t, region, src, queryPos, targetPos, userData)
	copy(dst[1:d.v.cellSize], src[1:d.v.cellSize])
	if d.v.mode == FindPath {
		d.traceback[queryPos][targetPos][t.Output.ID] = t
	}
}

func (d *Data) registerEnd(cell []dp.Score, queryPos, targetPos int) {
	d.currQueryEnd = queryPos
	d.currTargetEnd = targetPos
	if d.regionStartQueryID != -1 {
		d.currQueryStart = int(cell[d.regionStartQueryID])
	}
	if d.regionStartTargetID != -1 {
		d.currTargetStart = int(cell[d.regionStartTargetID])
	}
}

// finalise fixes up the FindRegion result once the sweep completes.
func (d *Data) finalise(region dp.Region) {
	if d.v.mode != FindRegion {
		return
	}
	if d.regionStartQueryID != -1 {
		d.alignmentRegion.QueryStart = d.currQueryStart + region.QueryStart
	}
	if d.regionStartTargetID != -1 {
		d.alignmentRegion.TargetStart = d.currTargetStart + region.TargetStart
	}
	d.alignmentRegion.QueryLength = d.currQueryEnd - d.currQueryStart
	d.alignmentRegion.TargetLength = d.currTargetEnd - d.currTargetStart
	if !d.alignmentRegion.IsValid() {
		log.Panicf("bad alignment region %v", d.alignmentRegion)
	}
}

// Region returns the best path's region after a FindRegion run, in
// absolute sequence coordinates.
func (d *Data) Region() dp.Region { return d.alignmentRegion }

// Calculate sweeps region and returns the best END score.  so may be nil.
func (v *Viterbi) Calculate(region dp.Region, d *Data,
	userData interface{}, so *subopt.SubOpt) dp.Score {
	if !region.IsValid() {
		log.Panicf("invalid region %v", region)
	}
	soi := so.NewIndex(region)
	m := v.m
	score := dp.ImpossiblyLow
	endIsSet := false
	finalState := m.End.State
	if d.cont != nil {
		finalState = d.cont.finalState
	}
	m.Init(region, userData)
	for _, calc := range m.Calcs {
		calc.Init(region, userData)
	}
	prevRow := make([][][][]dp.Score, m.MaxTargetAdvance+1)
	for i := range prevRow {
		prevRow[i] = d.rows[i]
	}
	stateIsSet := make([]bool, len(m.States))
	dummyStart := make([]dp.Score, v.cellSize)

	for j := 0; j <= region.TargetLength; j++ {
		soi.SetRow(j)
		for i := 0; i <= region.QueryLength; i++ {
			for k := range stateIsSet {
				stateIsSet[k] = false
				prevRow[0][i][k][0] = dp.ImpossiblyLow
			}
			if d.cont != nil && i == 0 && j == 0 {
				copy(prevRow[0][0][d.cont.firstState.ID], d.cont.firstCell)
				stateIsSet[d.cont.firstState.ID] = true
			}
			for _, t := range m.Transitions {
				if !v.lay.IsTransitionValid(t, i, j,
					region.QueryLength, region.TargetLength) {
					continue
				}
				if t.IsMatch() && soi.IsBlocked(i) {
					continue
				}
				src := prevRow[t.AdvanceTarget][i-t.AdvanceQuery][t.Input.ID]
				dst := prevRow[0][i][t.Output.ID]
				var candidate dp.Score
				if t.Input == m.Start.State {
					if d.cont != nil {
						// Continuation replaces the START bootstrap; the
						// seeded first cell is reachable through the
						// normal read when it is the START state.
						candidate = src[0]
					} else if m.Start.CellStart != nil {
						tmp := m.Start.CellStart(
							region.QueryStart+i-t.AdvanceQuery,
							region.TargetStart+j-t.AdvanceTarget,
							userData)
						copy(dummyStart, tmp)
						src = dummyStart
						candidate = src[0]
					}
				} else {
					candidate = src[0]
				}
				d.shadowEnd(t, region, src, i, j, userData)
				candidate += t.Calc.Score(
					region.QueryStart+i-t.AdvanceQuery,
					region.TargetStart+j-t.AdvanceTarget,
					userData)
				if t.Calc != nil {
					candidate = t.Calc.Protect.Clamp(candidate)
				}
				if !stateIsSet[t.Output.ID] {
					stateIsSet[t.Output.ID] = true
					d.assign(src, dst, candidate, i, j, t, region, userData)
				} else if dst[0] < candidate {
					d.assign(src, dst, candidate, i, j, t, region, userData)
				}
			}
			if d.cont != nil {
				if i == region.QueryLength && j == region.TargetLength {
					score = prevRow[0][i][finalState.ID][0]
					endIsSet = true
					d.registerEnd(prevRow[0][i][finalState.ID], i, j)
				}
			} else if stateIsSet[m.End.State.ID] {
				t := prevRow[0][i][finalState.ID][0]
				if !endIsSet || score < t {
					score = t
					endIsSet = true
					d.registerEnd(prevRow[0][i][finalState.ID], i, j)
				}
				if m.End.CellEnd != nil {
					m.End.CellEnd(prevRow[0][i][m.End.State.ID],
						region.QueryStart+i, region.TargetStart+j, userData)
				}
			}
		}
		if v.mode == FindCheckpoints {
			d.checkpoint.process(m, region, j, prevRow)
		}
		swap := prevRow[m.MaxTargetAdvance]
		for i := m.MaxTargetAdvance; i > 0; i-- {
			prevRow[i] = prevRow[i-1]
		}
		prevRow[0] = swap
	}
	if !endIsSet {
		log.Panicf("viterbi: no END cell was reached in %v", region)
	}
	d.finalise(region)
	// After the final rotation the last target row sits one slot back,
	// except in a query-only model whose window has a single row.
	lastRow := prevRow[0]
	if m.MaxTargetAdvance > 0 {
		lastRow = prevRow[1]
	}
	if v.mode == FindCheckpoints {
		d.checkpoint.lastSRP = lastRow[region.QueryLength][finalState.ID][v.cellSize-1]
	}
	for _, calc := range m.Calcs {
		calc.Exit(region, userData)
	}
	m.Exit(region, userData)
	if d.cont != nil {
		copy(d.cont.finalCell, lastRow[region.QueryLength][finalState.ID])
	}
	return score
}

// Alignment reconstructs the best path from a FindPath run over region.
func (d *Data) Alignment(region dp.Region, score dp.Score) *model.Alignment {
	if d.traceback == nil {
		log.Panicf("alignment requires a FindPath run")
	}
	m := d.v.m
	i, j := d.currQueryEnd, d.currTargetEnd
	var path []*model.Transition
	var t *model.Transition
	if d.cont != nil {
		t = d.traceback[i][j][d.cont.finalState.ID]
	} else {
		t = d.traceback[i][j][m.End.State.ID]
	}
	if t == nil {
		log.Panicf("no traceback at end cell (%d,%d)", i, j)
	}
	for {
		path = append(path, t)
		i -= t.AdvanceQuery
		j -= t.AdvanceTarget
		next := d.traceback[i][j][t.Input.ID]
		if next == nil {
			break
		}
		t = next
		if t.Input == m.Start.State {
			path = append(path, t)
			i -= t.AdvanceQuery
			j -= t.AdvanceTarget
			break
		}
		if d.cont != nil && i == 0 && j == 0 && t.Output == d.cont.firstState {
			break
		}
	}
	alignmentRegion := dp.NewRegion(region.QueryStart+i, region.TargetStart+j,
		d.currQueryEnd-i, d.currTargetEnd-j)
	a := model.NewAlignment(alignmentRegion, score)
	for k := len(path) - 1; k >= 0; k-- {
		a.Add(path[k], 1)
	}
	return a
}
