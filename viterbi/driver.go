package viterbi

import (
	"github.com/grailbio/base/log"

	"github.com/grailbio/align/dp"
	"github.com/grailbio/align/model"
	"github.com/grailbio/align/subopt"
)

// Align returns the best path over region, choosing automatically between
// a direct FindPath run and checkpointed reduced-space traceback under the
// opts.DPMemory budget.  The best path must span region corner to corner
// (a global model, or a region already narrowed by a FindRegion run).
func Align(m *model.Model, region dp.Region, userData interface{},
	so *subopt.SubOpt, opts dp.Opts) *model.Alignment {
	v := New(m, FindPath, false, opts)
	if !v.UseReducedSpace(region) {
		d := NewData(v, region)
		score := v.Calculate(region, d, userData, so)
		return d.Alignment(region, score)
	}
	log.Debug.Printf("align %v: reduced-space traceback", region)
	cv := New(m, FindCheckpoints, false, opts)
	d := NewData(cv, region)
	score := cv.Calculate(region, d, userData, so)
	sections := d.CheckpointTraceback(region, m.Start.State,
		make([]dp.Score, cv.CellSize()))
	pathEngine := New(m, FindPath, true, opts)
	pm := pathEngine.Model()
	stitched := model.NewAlignment(region, score)
	for k, sec := range sections {
		firstState := pm.States[sec.FirstState.ID]
		var firstCell []dp.Score
		if k == 0 {
			// The opening section bootstraps from START with an empty
			// cell rather than a recorded crossing.
			firstState = pm.Start.State
			firstCell = make([]dp.Score, pathEngine.CellSize())
		} else {
			firstCell = sections[k-1].FinalCell
		}
		finalState := pm.End.State
		if k+1 < len(sections) {
			finalState = pm.States[sections[k+1].FirstState.ID]
		}
		sub := continuePath(m, pathEngine, sec.Region,
			firstState, firstCell, finalState, userData, so, opts)
		for _, op := range sub.Ops {
			stitched.Add(op.Transition, op.Length)
		}
	}
	if !stitched.IsValid() {
		log.Panicf("stitched alignment does not cover %v", region)
	}
	return stitched
}

// continuePath solves one section as a continuation DP from firstState /
// firstCell to finalState across region, recursing through checkpoints
// when the section itself exceeds the memory budget.  The returned ops
// refer to m's transitions.
func continuePath(m *model.Model, pathEngine *Viterbi, region dp.Region,
	firstState *model.State, firstCell []dp.Score,
	finalState *model.State, userData interface{},
	so *subopt.SubOpt, opts dp.Opts) *model.Alignment {
	if !pathEngine.UseReducedSpace(region) {
		d := NewData(pathEngine, region)
		fc := make([]dp.Score, pathEngine.CellSize())
		copy(fc, firstCell)
		finalCell := make([]dp.Score, pathEngine.CellSize())
		d.SetContinuation(firstState, fc, finalState, finalCell)
		score := pathEngine.Calculate(region, d, userData, so)
		// The engine's model is a corner-scoped copy; ids line up with m.
		return d.Alignment(region, score).MapTransitions(m.Transitions)
	}
	cv := New(m, FindCheckpoints, true, opts)
	cm := cv.Model()
	d := NewData(cv, region)
	fc := make([]dp.Score, cv.CellSize())
	copy(fc, firstCell)
	finalCell := make([]dp.Score, cv.CellSize())
	d.SetContinuation(cm.States[firstState.ID], fc,
		cm.States[finalState.ID], finalCell)
	score := cv.Calculate(region, d, userData, so)
	sections := d.CheckpointTraceback(region, cm.States[firstState.ID], finalCell)
	pm := pathEngine.Model()
	sub := model.NewAlignment(region, score)
	for k, sec := range sections {
		fState := pm.States[sec.FirstState.ID]
		var cell []dp.Score
		if k == 0 {
			fState = pm.States[firstState.ID]
			cell = firstCell
		} else {
			cell = sections[k-1].FinalCell
		}
		fFinal := pm.States[finalState.ID]
		if k+1 < len(sections) {
			fFinal = pm.States[sections[k+1].FirstState.ID]
		}
		piece := continuePath(m, pathEngine, sec.Region,
			fState, cell, fFinal, userData, so, opts)
		for _, op := range piece.Ops {
			sub.Add(op.Transition, op.Length)
		}
	}
	return sub
}
