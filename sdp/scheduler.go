package sdp

import (
	"github.com/grailbio/base/log"

	"github.com/grailbio/align/dp"
	"github.com/grailbio/align/model"
	"github.com/grailbio/align/subopt"
)

// shadowStart is the index of the first shadow slot in a scheduler cell:
// slot 0 is the score, 1 the best score seen on the path, 2 the seed id.
const shadowStart = 3

// Seed is one growth point handed to a Pair.  During the reverse pass
// positions carry reversed signs so that processing order stays ascending.
type Seed struct {
	QueryPos   int
	TargetPos  int
	SeedID     int
	StartScore dp.Score
}

// SeedSource enumerates seeds in DP order and receives the best terminals
// discovered for each.  Start and End are only invoked on schedulers
// created with the corresponding recording flag.
type SeedSource interface {
	Init()
	Next()
	Get(*Seed) bool
	Start(seedID int, score dp.Score, queryPos, targetPos int, cell CellID)
	End(seedID int, score dp.Score, queryPos, targetPos int, cell CellID)
}

// Scheduler fixes the direction and recording behaviour of sparse DP runs
// over one model.  It holds no per-run state.
type Scheduler struct {
	m            *model.Model
	forward      bool
	hasTraceback bool
	useBoundary  bool
	recordStarts bool
	recordEnds   bool
	dropoff      dp.Score
	// spanMap indexes spans by their state id.
	spanMap []*model.Span
}

// NewScheduler returns a scheduler over the closed model m.
func NewScheduler(m *model.Model, forward, hasTraceback, useBoundary,
	recordStarts, recordEnds bool, dropoff dp.Score) *Scheduler {
	if m.IsOpen() {
		log.Panicf("scheduler requires a closed model")
	}
	if forward && recordStarts {
		log.Panicf("start recording belongs to the reverse pass")
	}
	if useBoundary && recordStarts {
		log.Panicf("boundary passes record starts through the boundary")
	}
	if !forward && recordEnds {
		log.Panicf("end recording belongs to the forward pass")
	}
	s := &Scheduler{
		m:            m,
		forward:      forward,
		hasTraceback: hasTraceback,
		useBoundary:  useBoundary,
		recordStarts: recordStarts,
		recordEnds:   recordEnds,
		dropoff:      dropoff,
		spanMap:      make([]*model.Span, len(m.States)),
	}
	for _, span := range m.Spans {
		s.spanMap[span.State.ID] = span
	}
	return s
}

// cell is one sparse lattice column entry: per-state score tuples and
// traceback heads.
type cell struct {
	queryPos       int
	permitSpanThaw bool
	score          [][]dp.Score
	traceback      []CellID
}

// row holds the live cells of one target position: a query lookahead plus
// the pending (unused) and finished (used) queues.
type row struct {
	targetPos int
	cells     *Lookahead
	unused    []*cell
	used      []*cell
}

func (r *row) popUnused() *cell {
	c := r.unused[0]
	r.unused = r.unused[1:]
	return c
}

// reset recovers every live cell into the pending queue, preserving query
// order, so the row can be processed from its earliest cell.
func (r *row) reset() {
	r.cells.Reset()
	merged := make([]*cell, 0, len(r.used)+len(r.unused))
	merged = append(merged, r.used...)
	merged = append(merged, r.unused...)
	r.used = nil
	r.unused = merged
}

// Pair is one sparse DP run: a scheduler bound to a region, a seed source
// and the shared traceback.
type Pair struct {
	sched    *Scheduler
	st       *STraceback
	region   dp.Region
	seeds    SeedSource
	userData interface{}

	rowIndex  *Lookahead
	boundary  *Boundary
	spanCache *spanCache
	spanData  []*spanData
	soi       *subopt.Index

	freeCells []*cell
}

// NewPair assembles a run over a queryLen x targetLen lattice.  st is
// required when the scheduler records traceback; boundary when it uses
// one.
func NewPair(sched *Scheduler, st *STraceback, queryLen, targetLen int,
	so *subopt.SubOpt, boundary *Boundary, seeds SeedSource,
	userData interface{}) *Pair {
	if sched.hasTraceback && st == nil {
		log.Panicf("scheduler traceback requires an arena")
	}
	if sched.useBoundary && boundary == nil {
		log.Panicf("boundary scheduler requires a boundary")
	}
	region := dp.NewRegion(0, 0, queryLen, targetLen)
	p := &Pair{
		sched:    sched,
		st:       st,
		region:   region,
		seeds:    seeds,
		userData: userData,
		boundary: boundary,
	}
	origin := 0
	if !sched.forward {
		origin = -targetLen
	}
	p.rowIndex = NewLookahead(origin, sched.m.MaxTargetAdvance, func(v interface{}) {
		p.destroyRow(v.(*row))
	})
	if sched.useBoundary && sched.forward && len(sched.m.Spans) > 0 {
		p.spanCache = newSpanCache(len(sched.m.Spans), st)
		p.spanData = make([]*spanData, len(sched.m.Spans))
		for i, span := range sched.m.Spans {
			p.spanData[i] = &spanData{span: span}
		}
	}
	p.soi = so.NewIndex(region)
	return p
}

func (p *Pair) newCell(queryPos int, permitSpanThaw bool) *cell {
	var c *cell
	if n := len(p.freeCells); n > 0 {
		c = p.freeCells[n-1]
		p.freeCells = p.freeCells[:n-1]
	} else {
		c = &cell{}
		width := shadowStart + p.sched.m.TotalShadowDesignations
		c.score = make([][]dp.Score, len(p.sched.m.States))
		backing := make([]dp.Score, len(p.sched.m.States)*width)
		for i := range c.score {
			c.score[i] = backing[i*width : (i+1)*width]
		}
		if p.sched.hasTraceback {
			c.traceback = make([]CellID, len(p.sched.m.States))
		}
	}
	c.queryPos = queryPos
	c.permitSpanThaw = permitSpanThaw
	for i := range c.score {
		c.score[i][0] = dp.ImpossiblyLow
		for j := 1; j < len(c.score[i]); j++ {
			c.score[i][j] = 0
		}
		if c.traceback != nil {
			c.traceback[i] = 0
		}
	}
	return c
}

func (p *Pair) freeCell(c *cell) {
	p.freeCells = append(p.freeCells, c)
}

func (p *Pair) newRow(targetPos int) *row {
	r := &row{targetPos: targetPos}
	origin := 0
	if !p.sched.forward {
		origin = -p.region.QueryEnd()
	}
	r.cells = NewLookahead(origin, p.sched.m.MaxQueryAdvance, func(v interface{}) {
		r.used = append(r.used, v.(*cell))
	})
	return r
}

// seedCell primes the seed terminal state of a cell, keeping a better
// score already present.
func (p *Pair) seedCell(c *cell, seed *Seed) {
	stateID := p.sched.m.End.State.ID
	if p.sched.forward {
		stateID = p.sched.m.Start.State.ID
	}
	if c.score[stateID][0] >= seed.StartScore {
		return
	}
	c.score[stateID][0] = seed.StartScore
	c.score[stateID][1] = seed.StartScore
	c.score[stateID][2] = dp.Score(seed.SeedID)
	if c.traceback != nil {
		if c.traceback[stateID] != 0 {
			p.st.Drop(c.traceback[stateID])
		}
		c.traceback[stateID] = 0
	}
}

func (p *Pair) addSeedToRow(r *row, seed *Seed) {
	permit := p.sched.forward && p.sched.useBoundary
	if r.cells.Empty() {
		c := p.newCell(seed.QueryPos, permit)
		r.cells.Move(seed.QueryPos)
		r.cells.Set(0, c)
		p.seedCell(c, seed)
		return
	}
	advance := seed.QueryPos - r.cells.Pos()
	if advance < 0 {
		log.Panicf("seed behind row origin")
	}
	if advance >= r.cells.MaxAdvance() {
		c := p.newCell(seed.QueryPos, permit)
		r.unused = append(r.unused, c)
		p.seedCell(c, seed)
		return
	}
	if existing, ok := r.cells.Get(advance).(*cell); ok && existing != nil {
		// A scattered cell already sits at the seed point; fold the seed
		// into it.
		existing.permitSpanThaw = existing.permitSpanThaw || permit
		p.seedCell(existing, seed)
		return
	}
	c := p.newCell(seed.QueryPos, permit)
	r.cells.Set(advance, c)
	p.seedCell(c, seed)
}

func (p *Pair) addSeed(seed *Seed) {
	first := p.rowIndex.Get(0).(*row)
	advance := seed.TargetPos - first.targetPos
	if advance < 0 || advance > p.rowIndex.MaxAdvance() {
		log.Panicf("seed outside row window")
	}
	r, _ := p.rowIndex.Get(advance).(*row)
	if r == nil {
		r = p.newRow(seed.TargetPos)
		p.rowIndex.Set(advance, r)
	}
	p.addSeedToRow(r, seed)
}

// Calculate runs the sparse DP to exhaustion: rows are processed in target
// order, admitting queued seeds as the window reaches them.
func (p *Pair) Calculate() {
	m := p.sched.m
	m.Init(p.region, p.userData)
	for _, calc := range m.Calcs {
		calc.Init(p.region, p.userData)
	}
	p.seeds.Init()
	for {
		if p.rowIndex.Empty() {
			var seed Seed
			if !p.seeds.Get(&seed) {
				break
			}
			r := p.newRow(seed.TargetPos)
			p.addSeedToRow(r, &seed)
			p.rowIndex.Move(r.targetPos)
			p.rowIndex.Set(0, r)
			p.seeds.Next()
		}
		r := p.rowIndex.Get(0).(*row)
		var seed Seed
		for p.seeds.Get(&seed) {
			if seed.TargetPos-r.targetPos > m.MaxTargetAdvance {
				break
			}
			p.addSeed(&seed)
			p.seeds.Next()
		}
		p.resetRows()
		p.processRow(r)
		p.rowIndex.Next()
	}
	for _, calc := range m.Calcs {
		calc.Exit(p.region, p.userData)
	}
	m.Exit(p.region, p.userData)
}

// Close releases cached span seeds.  The boundary and traceback arenas
// remain usable afterwards.
func (p *Pair) Close() {
	if p.spanCache != nil {
		p.spanCache.drain()
	}
}

func (p *Pair) resetRows() {
	for k := 0; k <= p.rowIndex.MaxAdvance(); k++ {
		if rv := p.rowIndex.Get(k); rv != nil {
			rv.(*row).reset()
		}
	}
}

// alignRows moves every other live row's window to the first row's current
// column so that scatters land on aligned offsets.
func (p *Pair) alignRows() {
	first := p.rowIndex.Get(0).(*row)
	fc := first.cells.Get(0).(*cell)
	for k := 1; k <= p.rowIndex.MaxAdvance(); k++ {
		rv := p.rowIndex.Get(k)
		if rv == nil {
			continue
		}
		p.moveRow(rv.(*row), fc.queryPos)
	}
}

func (p *Pair) moveRow(r *row, queryPos int) {
	r.cells.Move(queryPos)
	for len(r.unused) > 0 && r.unused[0].queryPos < queryPos {
		r.used = append(r.used, r.popUnused())
	}
	for len(r.unused) > 0 {
		advance := r.unused[0].queryPos - queryPos
		if advance > r.cells.MaxAdvance() {
			break
		}
		r.cells.Set(advance, r.popUnused())
	}
}

func (p *Pair) processRow(r *row) {
	if p.sched.forward {
		p.soi.SetRow(r.targetPos - p.region.TargetStart)
	} else {
		p.soi.SetRow(-r.targetPos - p.region.TargetStart)
	}
	for {
		if r.cells.Empty() {
			if len(r.unused) == 0 {
				break
			}
			c := r.popUnused()
			r.cells.Move(c.queryPos)
			r.cells.Set(0, c)
		}
		c := r.cells.Get(0).(*cell)
		for len(r.unused) > 0 {
			advance := r.unused[0].queryPos - c.queryPos
			if advance < 0 {
				log.Panicf("pending cell behind row scan")
			}
			if advance > r.cells.MaxAdvance() {
				break
			}
			r.cells.Set(advance, r.popUnused())
		}
		p.alignRows()
		p.processCell(c, r)
		r.cells.Next()
	}
}

// addSpanRuns appends the synthetic span loop runs bridging a thawed seed
// to the current position.  The returned cell carries one reference owned
// by the caller.
func (p *Pair) addSpanRuns(prev CellID, span *model.Span, queryLen, targetLen int) CellID {
	cur := prev
	owned := false
	if queryLen > 0 {
		if span.QueryLoop == nil {
			log.Panicf("span %q has no query loop for run %d", span.Name, queryLen)
		}
		next := p.st.Add(span.QueryLoop, queryLen, cur)
		if owned {
			p.st.Drop(cur)
		}
		cur, owned = next, true
	}
	if targetLen > 0 {
		if span.TargetLoop == nil {
			log.Panicf("span %q has no target loop for run %d", span.Name, targetLen)
		}
		next := p.st.Add(span.TargetLoop, targetLen, cur)
		if owned {
			p.st.Drop(cur)
		}
		cur, owned = next, true
	}
	if !owned && cur != 0 {
		cur = p.st.Share(cur)
	}
	return cur
}

// processCell scatters one cell across every transition, in reverse model
// order.
func (p *Pair) processCell(c *cell, r *row) {
	m := p.sched.m
	var srcQ, srcT int
	if p.sched.forward {
		srcQ, srcT = c.queryPos, r.targetPos
	} else {
		srcQ, srcT = -c.queryPos, -r.targetPos
	}
	for i := len(m.Transitions) - 1; i >= 0; i-- {
		t := m.Transitions[i]
		if t.SpanLoop != nil {
			// Span loops are never walked.  The cell where the span state is
			// entered is instead frozen into the span cache; transitions
			// leaving the span state thaw it.
			if p.sched.forward && p.sched.useBoundary && p.spanCache != nil {
				span := p.sched.spanMap[t.Output.ID]
				if span != nil {
					inputPos := t.Input.ID
					if score := c.score[inputPos][0]; score >= 0 {
						p.spanData[span.ID].submit(p.spanCache, SpanSeed{
							Score:       score,
							Max:         c.score[inputPos][1],
							SeedID:      int(c.score[inputPos][2]),
							QueryEntry:  srcQ,
							TargetEntry: srcT,
							Cell:        c.traceback[inputPos],
							Shadows:     c.score[inputPos][shadowStart:],
						})
					}
				}
			}
			continue
		}
		var dstQ, dstT, relQ, relT, inputPos, outputPos int
		var transitionScore dp.Score
		if p.sched.forward {
			dstQ = srcQ + t.AdvanceQuery
			dstT = srcT + t.AdvanceTarget
			if dstQ > p.region.QueryEnd() || dstT > p.region.TargetEnd() {
				continue
			}
			inputPos, outputPos = t.Input.ID, t.Output.ID
			relQ, relT = dstQ, dstT
			if c.permitSpanThaw && p.spanCache != nil {
				if span := p.sched.spanMap[t.Input.ID]; span != nil {
					sd := p.spanData[span.ID]
					sd.getCurr(p.spanCache, c.queryPos, r.targetPos)
					if sd.curr != nil && c.score[inputPos][0] < sd.curr.Score {
						c.score[inputPos][0] = sd.curr.Score
						c.score[inputPos][1] = sd.curr.Max
						c.score[inputPos][2] = dp.Score(sd.curr.SeedID)
						if old := c.traceback[inputPos]; old != 0 {
							p.st.Drop(old)
						}
						c.traceback[inputPos] = p.addSpanRuns(sd.curr.Cell, span,
							srcQ-sd.curr.QueryEntry, srcT-sd.curr.TargetEntry)
						for j := 0; j < m.TotalShadowDesignations; j++ {
							c.score[inputPos][shadowStart+j] = sd.curr.Shadows[j]
						}
					}
				}
			}
			for _, shadow := range t.DstShadows {
				shadow.EndFn(c.score[inputPos][shadowStart+shadow.Designation],
					dstQ, dstT, p.userData)
			}
			transitionScore = t.Calc.Score(srcQ, srcT, p.userData)
		} else {
			dstQ = srcQ - t.AdvanceQuery
			dstT = srcT - t.AdvanceTarget
			if dstQ < p.region.QueryStart || dstT < p.region.TargetStart {
				continue
			}
			relQ, relT = -dstQ, -dstT
			inputPos, outputPos = t.Output.ID, t.Input.ID
			// Shadow scoring happens forward only; the reverse pass must
			// still extend through shadowed transitions.
			if len(t.DstShadows) > 0 {
				transitionScore = 0
			} else {
				transitionScore = t.Calc.Score(dstQ, dstT, p.userData)
			}
		}
		srcScore := c.score[inputPos][0]
		maxSeen := c.score[inputPos][1]
		seedID := c.score[inputPos][2]
		dstScore := srcScore + transitionScore
		if p.sched.forward && dstScore < 0 {
			continue
		}
		if maxSeen-dstScore > p.sched.dropoff {
			continue
		}
		if t.IsMatch() && p.soi.IsBlocked(srcQ-p.region.QueryStart) {
			continue
		}
		dstRow, _ := p.rowIndex.Get(t.AdvanceTarget).(*row)
		if dstRow == nil {
			dstRow = p.newRow(relT)
			p.rowIndex.Set(t.AdvanceTarget, dstRow)
			dstRow.cells.Move(c.queryPos)
		}
		dstCell, _ := dstRow.cells.Get(t.AdvanceQuery).(*cell)
		if dstCell != nil {
			// Keep the higher score; no tie break on the path maximum.
			if dstScore <= dstCell.score[outputPos][0] {
				continue
			}
		} else {
			dstCell = p.newCell(relQ, false)
			dstRow.cells.Set(t.AdvanceQuery, dstCell)
		}
		p.assign(c, inputPos, dstCell, outputPos, dstScore, maxSeen, t, seedID, dstQ, dstT)
	}
}

// assign writes an accepted challenge into the destination cell.
func (p *Pair) assign(src *cell, inputPos int, dst *cell, outputPos int,
	dstScore, maxSeen dp.Score, t *model.Transition, seedID dp.Score,
	dstQ, dstT int) {
	m := p.sched.m
	dst.score[outputPos][0] = dstScore
	dst.score[outputPos][2] = seedID
	if p.sched.hasTraceback {
		if old := dst.traceback[outputPos]; old != 0 {
			p.st.Drop(old)
		}
		dst.traceback[outputPos] = p.st.Add(t, 1, src.traceback[inputPos])
	}
	if p.sched.forward {
		for _, shadow := range t.Input.SrcShadows {
			src.score[inputPos][shadowStart+shadow.Designation] = shadow.StartFn(
				dstQ-t.AdvanceQuery, dstT-t.AdvanceTarget, p.userData)
		}
		for j := 0; j < m.TotalShadowDesignations; j++ {
			dst.score[outputPos][shadowStart+j] = src.score[inputPos][shadowStart+j]
		}
	}
	if dstScore < maxSeen {
		dst.score[outputPos][1] = maxSeen
		return
	}
	// Best score on this path so far.
	dst.score[outputPos][1] = dstScore
	if p.sched.recordStarts && t.Input == m.Start.State {
		var cb CellID
		if p.sched.hasTraceback {
			cb = dst.traceback[outputPos]
		}
		p.seeds.Start(int(seedID), dstScore, dstQ, dstT, cb)
	}
	if p.sched.recordEnds && t.Output == m.End.State {
		if dst.traceback[outputPos] == 0 {
			log.Panicf("END reached without traceback")
		}
		p.seeds.End(int(seedID), dstScore, dstQ, dstT, dst.traceback[outputPos])
	}
}

// destroyRow retires a row leaving the window: traceback chains are
// coalesced and released, and during a reverse boundary pass the surviving
// seed intervals are recorded.
func (p *Pair) destroyRow(r *row) {
	var brow *BoundaryRow
	if !p.sched.forward && p.boundary != nil {
		brow = p.boundary.AddRow(-r.targetPos)
	}
	r.cells.Reset()
	for _, c := range r.used {
		p.finalizeCell(c, brow)
	}
	for _, c := range r.unused {
		p.finalizeCell(c, brow)
	}
	r.used = nil
	r.unused = nil
	if brow != nil {
		p.boundary.RemoveEmptyLastRow()
	}
}

func (p *Pair) finalizeCell(c *cell, brow *BoundaryRow) {
	m := p.sched.m
	if p.sched.hasTraceback {
		for i := range c.traceback {
			if id := c.traceback[i]; id != 0 {
				p.st.coalesce(id)
				p.st.Drop(id)
				c.traceback[i] = 0
			}
		}
	}
	if brow != nil {
		if c.score[m.Start.State.ID][0] >= 0 {
			brow.Prepend(-c.queryPos, int(c.score[m.Start.State.ID][2]))
		} else {
			for _, span := range m.Spans {
				if c.score[span.State.ID][0] > 0 {
					brow.Prepend(-c.queryPos, int(c.score[span.State.ID][2]))
					break
				}
			}
		}
	}
	p.freeCell(c)
}
