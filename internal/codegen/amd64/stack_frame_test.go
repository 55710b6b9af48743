package amd64

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sourcehut-mirrors/kefir-sub015/internal/abiamd64"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/ir"
)

// TestFrameCalculateOrdersRegionsBottomToTop exercises the full region
// layout spec §4.6 names -- previous-base, preserved-regs, local-area,
// spill-area, temporary-area, vararg-area -- asserting each one's offset
// is both correctly ordered relative to its neighbors and aligned,
// following goat's testify `require` idiom rather than a hand-rolled
// t.Fatalf per assertion.
func TestFrameCalculateOrdersRegionsBottomToTop(t *testing.T) {
	localsType := ir.NewType()
	localsType.Append(ir.TypeEntry{Code: ir.TypeStruct, Param: 1})
	localsType.Append(ir.TypeEntry{Code: ir.TypeLong, Alignment: 8})
	localsLayout, err := abiamd64.Compute(localsType, abiamd64.VariantSystemV, abiamd64.ContextStack)
	require.NoError(t, err)

	f := NewFrame()
	f.UseRegister("rbx")
	f.EnsureSpillArea(2)
	f.EnsureTemporaryArea(24, 16)
	f.Vararg()

	require.NoError(t, f.Calculate(abiamd64.VariantSystemV, localsType, localsLayout))

	require.EqualValues(t, 8, f.Sizes.PreservedRegs)
	require.EqualValues(t, 8, f.Sizes.LocalArea)
	require.EqualValues(t, 16, f.Sizes.SpillArea)
	require.EqualValues(t, 24, f.Sizes.TemporaryArea)
	require.Greater(t, f.Sizes.VarargArea, int64(0))

	// Every region sits strictly below (more negative than) the one
	// above it in the fixed bottom-to-top order.
	require.Less(t, f.Offsets.PreservedRegs, f.Offsets.PreviousBase)
	require.Less(t, f.Offsets.LocalArea, f.Offsets.PreservedRegs)
	require.Less(t, f.Offsets.SpillArea, f.Offsets.LocalArea)
	require.Less(t, f.Offsets.TemporaryArea, f.Offsets.SpillArea)
	require.Less(t, f.Offsets.VarargArea, f.Offsets.TemporaryArea)

	require.Zero(t, f.Sizes.TotalSize%16)
}

// TestFrameCalculateNoLocalsLeavesLocalAreaZero confirms the nil/nil
// shorthand (a function with no alloc-locals) produces a genuinely empty
// local area rather than silently defaulting to some nonzero footprint.
func TestFrameCalculateNoLocalsLeavesLocalAreaZero(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.Calculate(abiamd64.VariantSystemV, nil, nil))
	require.Zero(t, f.Sizes.LocalArea)
}
