package sdp

import (
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func TestLookaheadBasics(t *testing.T) {
	var evicted []int
	l := NewLookahead(10, 3, func(v interface{}) {
		evicted = append(evicted, v.(int))
	})
	expect.True(t, l.Empty())
	l.Set(0, 100)
	l.Set(2, 102)
	expect.EQ(t, l.Get(0).(int), 100)
	expect.True(t, l.Get(1) == nil)
	expect.EQ(t, l.Get(2).(int), 102)

	// Next drops the origin entry and lands on the next occupied slot.
	l.Next()
	require.Equal(t, []int{100}, evicted)
	expect.EQ(t, l.Pos(), 12)
	expect.EQ(t, l.Get(0).(int), 102)

	// Moving forward evicts what falls off.
	l.Set(3, 105)
	l.Move(15)
	require.Equal(t, []int{100, 102}, evicted)
	expect.EQ(t, l.Get(0).(int), 105)

	l.Reset()
	require.Equal(t, []int{100, 102, 105}, evicted)
	expect.True(t, l.Empty())
}

func TestLookaheadRepositionWhenEmpty(t *testing.T) {
	l := NewLookahead(0, 2, nil)
	l.Move(1000)
	expect.EQ(t, l.Pos(), 1000)
	l.Set(1, 7)
	expect.EQ(t, l.Get(1).(int), 7)
}
