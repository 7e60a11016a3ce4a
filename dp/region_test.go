package dp

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestRegion(t *testing.T) {
	r := NewRegion(2, 3, 10, 20)
	expect.EQ(t, r.QueryEnd(), 12)
	expect.EQ(t, r.TargetEnd(), 23)
	expect.True(t, r.IsValid())
	expect.False(t, NewRegion(-1, 0, 1, 1).IsValid())

	expect.True(t, r.Within(NewRegion(2, 3, 10, 20)))
	expect.True(t, r.Within(NewRegion(4, 5, 2, 2)))
	expect.False(t, r.Within(NewRegion(0, 3, 10, 20)))

	expect.True(t, r.Intersects(NewRegion(11, 22, 5, 5)))
	expect.False(t, r.Intersects(NewRegion(12, 3, 5, 5)))
}

func TestProtect(t *testing.T) {
	expect.EQ(t, ProtectNone.Clamp(ImpossiblyLow-10), ImpossiblyLow-10)
	expect.EQ(t, ProtectUnderflow.Clamp(ImpossiblyLow-10), ImpossiblyLow)
	expect.EQ(t, ProtectOverflow.Clamp(ImpossiblyHigh+10), ImpossiblyHigh)
	expect.EQ(t, (ProtectUnderflow | ProtectOverflow).Clamp(5), Score(5))
}
