package viterbi

import (
	"github.com/grailbio/base/log"

	"github.com/grailbio/align/dp"
	"github.com/grailbio/align/matrix"
	"github.com/grailbio/align/model"
)

// checkpointStore holds the sparse row snapshots of a FindCheckpoints run.
// The target axis is cut into len(snapshots)+1 sections; at each snapshot
// row the rolling window is copied aside and the last cell slot of every
// live cell is overwritten with an SRP code, which then propagates through
// subsequent updates and reveals, at the end of the sweep, where the best
// path crossed each snapshot.
type checkpointStore struct {
	snapshots     [][][][][]dp.Score
	sectionLength int
	cellSize      int
	counter       int
	lastSRP       dp.Score
}

func newCheckpointStore(v *Viterbi, region dp.Region) *checkpointStore {
	rowMem := v.rowBytes(region)
	if rowMem == 0 {
		log.Panicf("checkpoint row for %v overflows", region)
	}
	availRows := (v.opts.DPMemory<<20)/rowMem - 1
	maxRows := region.TargetLength/(v.m.MaxTargetAdvance<<1) - 2
	if maxRows <= 0 {
		log.Panicf("region %v too small for checkpointing", region)
	}
	count := availRows
	if count < 1 {
		count = 1
	}
	if count > maxRows {
		count = maxRows
	}
	cs := &checkpointStore{cellSize: v.cellSize}
	for i := 0; i < count; i++ {
		cs.snapshots = append(cs.snapshots,
			matrix.New4(v.m.MaxTargetAdvance+1, region.QueryLength+1,
				len(v.m.States), v.cellSize))
	}
	cs.sectionLength = region.TargetLength / (count + 1)
	// The SRP codes must be invertible within the score type.
	if matrix.Size3(region.QueryLength+1, len(v.m.States), v.m.MaxTargetAdvance) == 0 {
		log.Panicf("SRP encoding overflows for %v", region)
	}
	return cs
}

func srpEncode(m *model.Model, stateID, rowID, queryPos int) dp.Score {
	return dp.Score(((queryPos*len(m.States))+stateID)*m.MaxTargetAdvance + rowID)
}

type srp struct {
	state *model.State
	row   int
	pos   int
}

func srpDecode(m *model.Model, code dp.Score) srp {
	var s srp
	s.row = int(code) % m.MaxTargetAdvance
	rem := int(code) / m.MaxTargetAdvance
	s.state = m.States[rem%len(m.States)]
	s.pos = rem / len(m.States)
	return s
}

// process snapshots the rolling window when the sweep crosses a section
// boundary, then floods the window's SRP slots.
func (cs *checkpointStore) process(m *model.Model, region dp.Region,
	targetPos int, prevRow [][][][]dp.Score) {
	if targetPos == 0 || targetPos%cs.sectionLength != 0 {
		return
	}
	if cs.counter >= len(cs.snapshots) {
		return
	}
	snapshot := cs.snapshots[cs.counter]
	cs.counter++
	for i := 0; i < m.MaxTargetAdvance; i++ {
		for j := 0; j <= region.QueryLength; j++ {
			for k := range m.States {
				copy(snapshot[i][j][k], prevRow[i][j][k][:cs.cellSize])
				prevRow[i][j][k][cs.cellSize-1] = srpEncode(m, k, i, j)
			}
		}
	}
}

// SubAlignment is one section of a checkpointed traceback: the lattice
// rectangle it covers, the state the path enters it in, and the cell
// contents at its exit corner.
type SubAlignment struct {
	Region     dp.Region
	FirstState *model.State
	FinalCell  []dp.Score
}

// CheckpointTraceback cuts the region at the recorded crossings.  The
// sections are returned in forward target order; each is reconstructed by
// a continuation FindPath run seeded with the preceding section's exit
// cell.
func (d *Data) CheckpointTraceback(region dp.Region,
	firstState *model.State, finalCell []dp.Score) []SubAlignment {
	if d.checkpoint == nil {
		log.Panicf("checkpoint traceback requires a FindCheckpoints run")
	}
	cs := d.checkpoint
	m := d.v.m
	code := srpDecode(m, cs.lastSRP)
	queryStart := region.QueryStart + code.pos
	targetStart := region.TargetStart + cs.sectionLength*cs.counter - code.row
	sections := []SubAlignment{{
		Region: dp.NewRegion(queryStart, targetStart,
			region.QueryEnd()-queryStart, region.TargetEnd()-targetStart),
		FirstState: code.state,
		FinalCell:  append([]dp.Score(nil), finalCell...),
	}}
	last := func() *SubAlignment { return &sections[len(sections)-1] }
	if !region.Within(last().Region) {
		log.Panicf("checkpoint section %v escapes %v", last().Region, region)
	}
	for i := cs.counter - 1; i >= 1; i-- {
		snapshot := cs.snapshots[i]
		prevRowID := code.row
		cur := last()
		cell := snapshot[prevRowID][cur.Region.QueryStart-region.QueryStart][cur.FirstState.ID]
		code = srpDecode(m, cell[cs.cellSize-1])
		queryStart = region.QueryStart + code.pos
		targetStart = cur.Region.TargetStart - cs.sectionLength - code.row + prevRowID
		sections = append(sections, SubAlignment{
			Region: dp.NewRegion(queryStart, targetStart,
				cur.Region.QueryStart-queryStart,
				cur.Region.TargetStart-targetStart),
			FirstState: code.state,
			FinalCell:  append([]dp.Score(nil), cell[:cs.cellSize]...),
		})
		if !region.Within(last().Region) {
			log.Panicf("checkpoint section %v escapes %v", last().Region, region)
		}
	}
	snapshot := cs.snapshots[0]
	cur := last()
	cell := snapshot[code.row][cur.Region.QueryStart-region.QueryStart][cur.FirstState.ID]
	sections = append(sections, SubAlignment{
		Region: dp.NewRegion(region.QueryStart, region.TargetStart,
			cur.Region.QueryStart-region.QueryStart,
			cur.Region.TargetStart-region.TargetStart),
		FirstState: firstState,
		FinalCell:  append([]dp.Score(nil), cell[:cs.cellSize]...),
	})
	// Reverse into forward target order.
	for a, z := 0, len(sections)-1; a < z; a, z = a+1, z-1 {
		sections[a], sections[z] = sections[z], sections[a]
	}
	return sections
}
