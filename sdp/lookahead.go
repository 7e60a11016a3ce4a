// Package sdp implements the seeded (sparse) dynamic programming engine: a
// priority-limited DP that grows only from seed points under an X-drop,
// with span memoization, bidirectional start/end discovery and successive
// non-overlapping alignment enumeration.
package sdp

import (
	"math/bits"

	"github.com/grailbio/base/log"
)

// lookaheadWidth bounds a ring to one occupancy word.
const lookaheadWidth = 64

// Lookahead is a small bitmap-indexed ring over positions [pos,
// pos+maxAdvance].  Entries falling off the origin are handed to the
// eviction callback.
type Lookahead struct {
	pos        int
	maxAdvance int
	mask       uint64
	ring       []interface{}
	base       int // ring index of offset 0
	evict      func(interface{})
}

// NewLookahead returns a ring at pos covering offsets 0..maxAdvance.
func NewLookahead(pos, maxAdvance int, evict func(interface{})) *Lookahead {
	if maxAdvance+1 > lookaheadWidth {
		log.Panicf("lookahead width %d exceeds %d", maxAdvance+1, lookaheadWidth)
	}
	return &Lookahead{
		pos:        pos,
		maxAdvance: maxAdvance,
		ring:       make([]interface{}, maxAdvance+1),
		evict:      evict,
	}
}

// Pos returns the origin position.
func (l *Lookahead) Pos() int { return l.pos }

// MaxAdvance returns the largest valid offset.
func (l *Lookahead) MaxAdvance() int { return l.maxAdvance }

// Empty reports whether no slot is occupied.
func (l *Lookahead) Empty() bool { return l.mask == 0 }

func (l *Lookahead) slot(k int) int {
	s := l.base + k
	if s >= len(l.ring) {
		s -= len(l.ring)
	}
	return s
}

// Get returns the entry at offset k, or nil.
func (l *Lookahead) Get(k int) interface{} {
	if k < 0 || k > l.maxAdvance || l.mask&(1<<uint(k)) == 0 {
		return nil
	}
	return l.ring[l.slot(k)]
}

// Set stores an entry at offset k, which must be vacant.
func (l *Lookahead) Set(k int, v interface{}) {
	if k < 0 || k > l.maxAdvance {
		log.Panicf("lookahead offset %d out of range", k)
	}
	if l.mask&(1<<uint(k)) != 0 {
		log.Panicf("lookahead offset %d already occupied", k)
	}
	l.mask |= 1 << uint(k)
	l.ring[l.slot(k)] = v
}

func (l *Lookahead) evictSlot(k int) {
	s := l.slot(k)
	v := l.ring[s]
	l.ring[s] = nil
	l.mask &^= 1 << uint(k)
	if l.evict != nil {
		l.evict(v)
	}
}

// Move shifts the origin forward to pos, evicting entries left behind.
// With an empty ring any reposition is allowed.
func (l *Lookahead) Move(pos int) {
	if l.mask == 0 {
		l.pos = pos
		l.base = 0
		return
	}
	delta := pos - l.pos
	if delta < 0 {
		log.Panicf("lookahead cannot move backwards (%d < %d)", pos, l.pos)
	}
	for k := 0; k < delta && l.mask != 0; k++ {
		if l.mask&(1<<uint(k)) != 0 {
			l.evictSlot(k)
		}
	}
	if l.mask == 0 {
		l.pos = pos
		l.base = 0
		return
	}
	l.mask >>= uint(delta)
	l.base = l.slot(delta)
	l.pos = pos
}

// Next evicts the entry at the origin and advances to the next occupied
// slot (or just past the origin when the ring empties).
func (l *Lookahead) Next() {
	if l.mask&1 != 0 {
		l.evictSlot(0)
	}
	if l.mask == 0 {
		l.pos++
		l.base = 0
		return
	}
	delta := bits.TrailingZeros64(l.mask)
	l.mask >>= uint(delta)
	l.base = l.slot(delta)
	l.pos += delta
}

// Reset evicts every entry without moving the origin.
func (l *Lookahead) Reset() {
	for k := 0; l.mask != 0 && k <= l.maxAdvance; k++ {
		if l.mask&(1<<uint(k)) != 0 {
			l.evictSlot(k)
		}
	}
	l.base = 0
}
