package abiamd64

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sourcehut-mirrors/kefir-sub015/internal/ir"
)

// TestComputeStructLayoutMatchesGolden exercises Compute over a
// multi-member struct (two scalars needing padding plus a nested array)
// and diffs the whole Entries vector against a hand-computed golden copy
// in one shot, the way ajroetker-goat's test suite uses go-cmp for
// structural comparisons instead of a field-by-field t.Fatalf per member.
func TestComputeStructLayoutMatchesGolden(t *testing.T) {
	ty := ir.NewType()
	ty.Append(ir.TypeEntry{Code: ir.TypeStruct, Param: 3})
	ty.Append(ir.TypeEntry{Code: ir.TypeI8, Alignment: 1})
	ty.Append(ir.TypeEntry{Code: ir.TypeI32, Alignment: 4})
	ty.Append(ir.TypeEntry{Code: ir.TypeArray, Param: 2})
	ty.Append(ir.TypeEntry{Code: ir.TypeI16, Alignment: 2})

	got, err := Compute(ty, VariantSystemV, ContextGeneric)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	want := &Layout{Entries: []Entry{
		{Size: 12, Alignment: 4, Aligned: true},                   // struct header
		{Size: 1, Alignment: 1, RelativeOffset: 0, Aligned: true}, // i8 member
		{Size: 4, Alignment: 4, RelativeOffset: 4, Aligned: true}, // i32 member
		{Size: 4, Alignment: 2, RelativeOffset: 8, Aligned: true}, // array[2] of i16
		{Size: 2, Alignment: 2, Aligned: true},                    // array element entry
	}}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("layout mismatch (-want +got):\n%s", diff)
	}
}
