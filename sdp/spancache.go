package sdp

import (
	"github.com/grailbio/align/dp"
	"github.com/grailbio/align/model"
)

// SpanSeed is a frozen cell snapshot taken where a forward path enters a
// span state.  Thawing it later lets the DP jump the span's bounded
// self-loop without walking it.
type SpanSeed struct {
	Score       dp.Score
	Max         dp.Score
	SeedID      int
	QueryEntry  int
	TargetEntry int
	Cell        CellID
	Shadows     []dp.Score
}

const spanCachePageSize = 1024

// spanCache is a sparse per-query-column store of span seeds, paged so
// that only touched stretches of a long query allocate memory.
type spanCache struct {
	nSpans int
	pages  map[int][]*SpanSeed
	st     *STraceback
}

func newSpanCache(nSpans int, st *STraceback) *spanCache {
	return &spanCache{nSpans: nSpans, pages: map[int][]*SpanSeed{}, st: st}
}

func (c *spanCache) get(spanID, queryPos int) *SpanSeed {
	page := c.pages[queryPos/spanCachePageSize]
	if page == nil {
		return nil
	}
	return page[(queryPos%spanCachePageSize)*c.nSpans+spanID]
}

func (c *spanCache) set(spanID, queryPos int, seed *SpanSeed) {
	key := queryPos / spanCachePageSize
	page := c.pages[key]
	if page == nil {
		page = make([]*SpanSeed, spanCachePageSize*c.nSpans)
		c.pages[key] = page
	}
	page[(queryPos%spanCachePageSize)*c.nSpans+spanID] = seed
}

// drain releases every stored seed's traceback reference.
func (c *spanCache) drain() {
	for _, page := range c.pages {
		for i, seed := range page {
			if seed != nil {
				c.st.Drop(seed.Cell)
				page[i] = nil
			}
		}
	}
}

// spanData tracks, per span, the best seed currently in scope while the
// forward pass advances.
type spanData struct {
	span *model.Span
	curr *SpanSeed
}

// getCurr refreshes curr for position (queryPos, targetPos): expired seeds
// are dropped and the stored seed of this query column is challenged in.
func (sd *spanData) getCurr(cache *spanCache, queryPos, targetPos int) {
	if sd.curr != nil {
		if sd.curr.QueryEntry > queryPos ||
			sd.curr.QueryEntry+sd.span.MaxQuery < queryPos ||
			sd.curr.TargetEntry+sd.span.MaxTarget < targetPos {
			sd.curr = nil
		}
	}
	stored := cache.get(sd.span.ID, queryPos)
	if stored == nil {
		return
	}
	if stored.TargetEntry+sd.span.MaxTarget >= targetPos {
		if sd.curr == nil || sd.curr.Score < stored.Score {
			sd.curr = stored
		}
	} else {
		cache.st.Drop(stored.Cell)
		cache.set(sd.span.ID, queryPos, nil)
	}
}

// submit offers a freshly frozen seed to the cache, keeping the higher
// score per query column.  Seeds of spans whose MaxTarget is 0 are not
// stored, so such spans are never thawed.
func (sd *spanData) submit(cache *spanCache, seed SpanSeed) {
	if sd.span.MaxTarget == 0 {
		return
	}
	stored := cache.get(sd.span.ID, seed.QueryEntry)
	if stored != nil {
		if stored.Score <= seed.Score {
			cache.st.Drop(stored.Cell)
			stored.Score = seed.Score
			stored.Max = seed.Max
			stored.SeedID = seed.SeedID
			stored.QueryEntry = seed.QueryEntry
			stored.TargetEntry = seed.TargetEntry
			stored.Cell = cache.st.Share(seed.Cell)
			copy(stored.Shadows, seed.Shadows)
		}
		return
	}
	fresh := seed
	fresh.Cell = cache.st.Share(seed.Cell)
	fresh.Shadows = append([]dp.Score(nil), seed.Shadows...)
	cache.set(sd.span.ID, seed.QueryEntry, &fresh)
}
