package sdp

import (
	"sort"

	"github.com/grailbio/base/log"

	"github.com/grailbio/align/dp"
	"github.com/grailbio/align/model"
	"github.com/grailbio/align/subopt"
)

// Terminal is the best start or end discovered for one seed.
type Terminal struct {
	QueryPos  int
	TargetPos int
	Score     dp.Score
	Cell      CellID
}

// sdpSeed wraps one deduplicated HSP anchor with its discovered terminals.
type sdpSeed struct {
	id       int
	hsp      dp.HSP
	maxStart Terminal
	maxEnd   Terminal
}

// SDP fixes the sparse-DP strategy for one model: either direct
// bidirectional extension (exactly one portal, holding a single match
// transition; no shadows or spans)
// or boundary-mediated discovery (reverse start pass records a boundary
// that seeds the forward end pass).
type SDP struct {
	m           *model.Model
	opts        dp.Opts
	useBoundary bool
	findStarts  *Scheduler
	findEnds    *Scheduler
}

// NewSDP returns the strategy for the closed model m.
func NewSDP(m *model.Model, opts dp.Opts) *SDP {
	if m.IsOpen() {
		log.Panicf("sdp requires a closed model")
	}
	s := &SDP{m: m, opts: opts, useBoundary: true}
	if len(m.Shadows) == 0 && len(m.Spans) == 0 && len(m.Portals) == 1 &&
		len(m.Portals[0].Transitions) == 1 {
		s.useBoundary = false
	}
	dropoff := opts.ExtensionThreshold
	if s.useBoundary {
		s.findStarts = NewScheduler(m, false, false, true, false, false, dropoff)
		s.findEnds = NewScheduler(m, true, true, true, false, true, dropoff)
	} else {
		s.findStarts = NewScheduler(m, false, true, false, true, false, dropoff)
		s.findEnds = NewScheduler(m, true, true, false, false, true, dropoff)
	}
	return s
}

// SDPPair enumerates the alignments between one sequence pair: successive
// NextPath calls return non-increasing scores.  Callers wanting
// non-overlapping output block each returned alignment on the shared
// SubOpt before asking for the next.
type SDPPair struct {
	sdp        *SDP
	comparison *dp.Comparison
	so         *subopt.SubOpt
	userData   interface{}

	seeds          []*sdpSeed
	seedsByScore   []*sdpSeed
	singlePassPos  int
	boundary       *Boundary
	alignmentCount int
	lastScore      dp.Score

	fwd *STraceback
	rev *STraceback
}

// NewSDPPair prepares the enumeration over comparison's HSPs.
func NewSDPPair(s *SDP, so *subopt.SubOpt, comparison *dp.Comparison,
	userData interface{}) *SDPPair {
	if !comparison.HasHSPs() {
		log.Panicf("sdp needs at least one HSP")
	}
	p := &SDPPair{
		sdp:        s,
		comparison: comparison,
		so:         so,
		userData:   userData,
		lastScore:  dp.ImpossiblyLow,
		fwd:        NewSTraceback(true),
		rev:        NewSTraceback(false),
	}
	p.seeds = buildSeedList(comparison)
	return p
}

// buildSeedList sorts the HSPs into forward DP order on their
// center-of-best-segment and makes one seed per unique position.
func buildSeedList(comparison *dp.Comparison) []*sdpSeed {
	hsps := append([]dp.HSP(nil), comparison.HSPs...)
	sort.SliceStable(hsps, func(i, j int) bool {
		if hsps[i].TargetCobs != hsps[j].TargetCobs {
			return hsps[i].TargetCobs < hsps[j].TargetCobs
		}
		return hsps[i].QueryCobs < hsps[j].QueryCobs
	})
	var seeds []*sdpSeed
	for i, hsp := range hsps {
		if i > 0 && hsp.QueryCobs == hsps[i-1].QueryCobs &&
			hsp.TargetCobs == hsps[i-1].TargetCobs {
			continue
		}
		seeds = append(seeds, &sdpSeed{
			id:       len(seeds),
			hsp:      hsp,
			maxStart: Terminal{Score: dp.ImpossiblyLow},
			maxEnd:   Terminal{Score: dp.ImpossiblyLow},
		})
	}
	return seeds
}

// listSource enumerates the raw seed list, reversed for the reverse pass.
type listSource struct {
	pair    *SDPPair
	forward bool
	pos     int
}

func (ls *listSource) Init() {
	if ls.forward {
		ls.pos = 0
	} else {
		ls.pos = len(ls.pair.seeds) - 1
	}
}

func (ls *listSource) Next() {
	if ls.forward {
		ls.pos++
	} else {
		ls.pos--
	}
}

func (ls *listSource) Get(seed *Seed) bool {
	if ls.pos < 0 || ls.pos >= len(ls.pair.seeds) {
		return false
	}
	s := ls.pair.seeds[ls.pos]
	if ls.forward {
		seed.QueryPos = s.hsp.QueryCobs
		seed.TargetPos = s.hsp.TargetCobs
		seed.StartScore = s.maxStart.Score - s.hsp.Score>>1
	} else {
		seed.QueryPos = -s.hsp.QueryCobs
		seed.TargetPos = -s.hsp.TargetCobs
		seed.StartScore = s.hsp.Score >> 1
	}
	seed.SeedID = s.id
	return true
}

func (ls *listSource) Start(seedID int, score dp.Score, queryPos, targetPos int, cell CellID) {
	s := ls.pair.seeds[seedID]
	if s.maxStart.Score >= score {
		return
	}
	if s.maxStart.Cell != 0 {
		ls.pair.rev.Drop(s.maxStart.Cell)
	}
	s.maxStart = Terminal{QueryPos: queryPos, TargetPos: targetPos, Score: score}
	if cell != 0 {
		s.maxStart.Cell = ls.pair.rev.Share(cell)
	}
}

func (ls *listSource) End(seedID int, score dp.Score, queryPos, targetPos int, cell CellID) {
	s := ls.pair.seeds[seedID]
	if s.maxEnd.Score >= score {
		return
	}
	if s.maxEnd.Cell != 0 {
		ls.pair.fwd.Drop(s.maxEnd.Cell)
	}
	s.maxEnd = Terminal{QueryPos: queryPos, TargetPos: targetPos, Score: score,
		Cell: ls.pair.fwd.Share(cell)}
}

// boundarySource walks the reverse pass's boundary intervals as forward
// seeds.
type boundarySource struct {
	pair     *SDPPair
	boundary *Boundary
	row      int
	interval int
	offset   int
	finished bool
}

func (bs *boundarySource) Init() {
	bs.row, bs.interval, bs.offset = 0, 0, 0
	bs.finished = len(bs.boundary.Rows) == 0
}

func (bs *boundarySource) Next() {
	row := bs.boundary.Rows[bs.row]
	iv := row.Intervals[bs.interval]
	if bs.offset < iv.Length-1 {
		bs.offset++
		return
	}
	if bs.interval < len(row.Intervals)-1 {
		bs.interval++
		bs.offset = 0
		return
	}
	if bs.row < len(bs.boundary.Rows)-1 {
		bs.row++
		bs.interval = 0
		bs.offset = 0
		return
	}
	bs.finished = true
}

func (bs *boundarySource) Get(seed *Seed) bool {
	if bs.finished {
		return false
	}
	row := bs.boundary.Rows[bs.row]
	iv := row.Intervals[bs.interval]
	seed.QueryPos = iv.QueryPos + bs.offset
	seed.TargetPos = row.TargetPos
	seed.SeedID = iv.SeedID
	seed.StartScore = 0
	return true
}

func (bs *boundarySource) Start(int, dp.Score, int, int, CellID) {}

func (bs *boundarySource) End(seedID int, score dp.Score, queryPos, targetPos int, cell CellID) {
	s := bs.pair.seeds[seedID]
	if s.maxEnd.Score >= score {
		return
	}
	if s.maxEnd.Cell != 0 {
		bs.pair.fwd.Drop(s.maxEnd.Cell)
	}
	s.maxEnd = Terminal{QueryPos: queryPos, TargetPos: targetPos, Score: score,
		Cell: bs.pair.fwd.Share(cell)}
}

func (p *SDPPair) findStartPoints() *Boundary {
	src := &listSource{pair: p, forward: false}
	var boundary *Boundary
	if p.sdp.useBoundary {
		boundary = NewBoundary()
	}
	pair := NewPair(p.sdp.findStarts, p.rev,
		p.comparison.QueryLength, p.comparison.TargetLength,
		p.so, boundary, src, p.userData)
	pair.Calculate()
	pair.Close()
	if boundary != nil {
		boundary.Reverse()
	}
	return boundary
}

func (p *SDPPair) findEndPoints() {
	var src SeedSource
	if p.boundary != nil {
		if len(p.boundary.Rows) == 0 {
			log.Panicf("empty boundary from reverse pass")
		}
		src = &boundarySource{pair: p, boundary: p.boundary}
	} else {
		src = &listSource{pair: p, forward: true}
	}
	pair := NewPair(p.sdp.findEnds, p.fwd,
		p.comparison.QueryLength, p.comparison.TargetLength,
		p.so, p.boundary, src, p.userData)
	pair.Calculate()
	pair.Close()
}

func (p *SDPPair) updateStarts() *Boundary {
	for _, s := range p.seeds {
		s.maxStart.Score = dp.ImpossiblyLow
		if !p.sdp.useBoundary && s.maxStart.Cell != 0 {
			p.rev.Drop(s.maxStart.Cell)
			s.maxStart.Cell = 0
		}
	}
	return p.findStartPoints()
}

func (p *SDPPair) updateEnds() {
	for _, s := range p.seeds {
		s.maxEnd.Score = dp.ImpossiblyLow
		if s.maxEnd.Cell != 0 {
			p.fwd.Drop(s.maxEnd.Cell)
			s.maxEnd.Cell = 0
		}
	}
	p.findEndPoints()
}

// addTraceback appends one direction's traceback runs onto the alignment.
func (p *SDPPair) addTraceback(best *sdpSeed, forward bool, a *model.Alignment) {
	if forward {
		if best.maxEnd.Cell == 0 {
			log.Panicf("seed %d has no end traceback", best.id)
		}
		ops := p.fwd.List(best.maxEnd.Cell)
		start := 1
		if p.sdp.useBoundary {
			// Boundary seeds start cold, so every operation counts.  In
			// direct mode the opening operation re-fires the seed entry
			// already covered by the reverse piece.
			start = 0
		} else if len(a.Ops) > 0 && len(ops) > 0 {
			last := a.Ops[len(a.Ops)-1].Transition
			if last.Output != ops[0].Transition.Output {
				log.Panicf("traceback pieces do not join at the seed point")
			}
		}
		for _, op := range ops[start:] {
			a.Add(op.Transition, op.Length)
		}
	} else {
		if best.maxStart.Cell == 0 {
			log.Panicf("seed %d has no start traceback", best.id)
		}
		// Newest first puts the START side in path order; the oldest run
		// leaves the seeded END state and is not part of the path.
		ops := p.rev.List(best.maxStart.Cell)
		for i := len(ops) - 1; i >= 1; i-- {
			a.Add(ops[i].Transition, ops[i].Length)
		}
	}
}

// findStart walks the forward traceback to recover the start terminal of a
// boundary-mode seed.
func (p *SDPPair) findStart(best *sdpSeed) {
	best.maxStart.QueryPos = best.maxEnd.QueryPos
	best.maxStart.TargetPos = best.maxEnd.TargetPos
	id := best.maxEnd.Cell
	if id == 0 {
		log.Panicf("seed %d has no end traceback", best.id)
	}
	for id != 0 {
		c := p.fwd.cell(id)
		best.maxStart.QueryPos -= c.transition.AdvanceQuery * c.length
		best.maxStart.TargetPos -= c.transition.AdvanceTarget * c.length
		id = c.prev
	}
}

func (p *SDPPair) findPath(best *sdpSeed) *model.Alignment {
	if p.sdp.useBoundary {
		p.findStart(best)
	}
	region := dp.NewRegion(best.maxStart.QueryPos, best.maxStart.TargetPos,
		best.maxEnd.QueryPos-best.maxStart.QueryPos,
		best.maxEnd.TargetPos-best.maxStart.TargetPos)
	a := model.NewAlignment(region, best.maxEnd.Score)
	if p.sdp.useBoundary {
		p.addTraceback(best, true, a)
	} else {
		p.addTraceback(best, false, a)
		p.addTraceback(best, true, a)
	}
	if !a.IsValid() {
		log.Panicf("sdp alignment does not cover %v", region)
	}
	return a
}

// NextPath returns the next-best alignment scoring at least threshold, or
// nil when none remains.  Scores are non-increasing across calls.
func (p *SDPPair) NextPath(threshold dp.Score) *model.Alignment {
	if p.alignmentCount > 0 {
		if !p.sdp.opts.SinglePassSubopt {
			p.boundary = p.updateStarts()
			p.updateEnds()
		}
	} else {
		p.boundary = p.findStartPoints()
		p.findEndPoints()
		if p.sdp.opts.SinglePassSubopt {
			p.seedsByScore = append([]*sdpSeed(nil), p.seeds...)
			sort.SliceStable(p.seedsByScore, func(i, j int) bool {
				return p.seedsByScore[i].maxEnd.Score > p.seedsByScore[j].maxEnd.Score
			})
			p.singlePassPos = 0
		}
	}
	var best *sdpSeed
	var a *model.Alignment
	if p.sdp.opts.SinglePassSubopt {
		for p.singlePassPos < len(p.seedsByScore) {
			candidate := p.seedsByScore[p.singlePassPos]
			p.singlePassPos++
			if candidate.maxEnd.Score < threshold {
				return nil
			}
			a = p.findPath(candidate)
			if p.so != nil && p.so.OverlapsAlignment(a) {
				a = nil
				continue
			}
			best = candidate
			break
		}
		if best == nil {
			return nil
		}
	} else {
		best = p.seeds[0]
		for _, s := range p.seeds[1:] {
			if best.maxEnd.Score < s.maxEnd.Score {
				best = s
			}
		}
		if best.maxEnd.Score < threshold {
			return nil
		}
		a = p.findPath(best)
	}
	if p.lastScore >= 0 && best.maxEnd.Score > p.lastScore {
		log.Panicf("sdp scores must not increase (%d after %d)",
			best.maxEnd.Score, p.lastScore)
	}
	p.alignmentCount++
	p.lastScore = best.maxEnd.Score
	best.maxEnd.Score = dp.ImpossiblyLow
	return a
}
