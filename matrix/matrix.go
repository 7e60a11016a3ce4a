// Package matrix provides single-allocation rectangular arrays of score
// cells.  A multi-rank matrix stores all its cells in one flat slice, so the
// innermost rank stays contiguous; the index slices that address it are
// allocated separately.
package matrix

import (
	"math"

	"github.com/grailbio/align/dp"
)

// Size2 returns the number of elements needed for an a x b matrix, or 0 if
// the computation overflows.
func Size2(a, b int) int {
	return checkedProduct(a, b)
}

// Size3 returns the number of elements needed for an a x b x c matrix, or 0
// on overflow.
func Size3(a, b, c int) int {
	return checkedProduct(checkedProduct(a, b), c)
}

// Size4 returns the number of elements needed for an a x b x c x d matrix,
// or 0 on overflow.
func Size4(a, b, c, d int) int {
	return checkedProduct(Size3(a, b, c), d)
}

func checkedProduct(a, b int) int {
	if a <= 0 || b <= 0 {
		return 0
	}
	if a > math.MaxInt64/b {
		return 0
	}
	return a * b
}

// New2 returns an a x b score matrix backed by a single allocation.
func New2(a, b int) [][]dp.Score {
	data := make([]dp.Score, Size2(a, b))
	m := make([][]dp.Score, a)
	for i := range m {
		m[i] = data[i*b : (i+1)*b : (i+1)*b]
	}
	return m
}

// New3 returns an a x b x c score matrix backed by a single allocation.
func New3(a, b, c int) [][][]dp.Score {
	data := make([]dp.Score, Size3(a, b, c))
	rows := make([][]dp.Score, a*b)
	for i := range rows {
		rows[i] = data[i*c : (i+1)*c : (i+1)*c]
	}
	m := make([][][]dp.Score, a)
	for i := range m {
		m[i] = rows[i*b : (i+1)*b : (i+1)*b]
	}
	return m
}

// New4 returns an a x b x c x d score matrix backed by a single allocation.
func New4(a, b, c, d int) [][][][]dp.Score {
	data := make([]dp.Score, Size4(a, b, c, d))
	rows := make([][]dp.Score, a*b*c)
	for i := range rows {
		rows[i] = data[i*d : (i+1)*d : (i+1)*d]
	}
	planes := make([][][]dp.Score, a*b)
	for i := range planes {
		planes[i] = rows[i*c : (i+1)*c : (i+1)*c]
	}
	m := make([][][][]dp.Score, a)
	for i := range m {
		m[i] = planes[i*b : (i+1)*b : (i+1)*b]
	}
	return m
}
