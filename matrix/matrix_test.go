package matrix

import (
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"

	"github.com/grailbio/align/dp"
)

func TestSize(t *testing.T) {
	expect.EQ(t, Size2(3, 4), 12)
	expect.EQ(t, Size3(2, 3, 4), 24)
	expect.EQ(t, Size4(2, 3, 4, 5), 120)
	// Degenerate dimensions.
	expect.EQ(t, Size2(0, 4), 0)
	expect.EQ(t, Size3(2, -1, 4), 0)
	// Overflow is reported as zero, not wrapped.
	const huge = 1 << 62
	expect.EQ(t, Size2(huge, huge), 0)
	expect.EQ(t, Size4(huge, 2, 2, 2), 0)
}

func TestNewShapes(t *testing.T) {
	m2 := New2(3, 4)
	assert.Equal(t, 3, len(m2))
	for _, row := range m2 {
		assert.Equal(t, 4, len(row))
	}
	m4 := New4(2, 3, 4, 5)
	assert.Equal(t, 2, len(m4))
	assert.Equal(t, 3, len(m4[0]))
	assert.Equal(t, 4, len(m4[0][0]))
	assert.Equal(t, 5, len(m4[0][0][0]))
}

// Writes through one rank must not bleed into neighbouring cells.
func TestNewBacking(t *testing.T) {
	m3 := New3(2, 3, 4)
	for i := range m3 {
		for j := range m3[i] {
			for k := range m3[i][j] {
				m3[i][j][k] = dp.Score(i*100 + j*10 + k)
			}
		}
	}
	expect.EQ(t, int(m3[1][2][3]), 123)
	expect.EQ(t, int(m3[0][2][3]), 23)
}
