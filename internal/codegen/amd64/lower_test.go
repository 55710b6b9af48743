package amd64

import (
	"testing"

	"github.com/sourcehut-mirrors/kefir-sub015/internal/abiamd64"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/asmcmp"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/ssa"
)

// buildTwoLocalsFunc builds: alloc a; alloc b; store 7 into a; load b; ret.
func buildTwoLocalsFunc() *ssa.Func {
	fn := ssa.NewFunc("two_locals")
	entry := fn.NewBlock()

	a, _ := fn.AppendInstruction(entry, ssa.OpAllocLocal, nil, ssa.Params{})
	b, _ := fn.AppendInstruction(entry, ssa.OpAllocLocal, nil, ssa.Params{})
	c, _ := fn.AppendInstruction(entry, ssa.OpConstInt, nil, ssa.Params{ImmInt: 7})
	fn.AppendInstruction(entry, ssa.OpStore, []ssa.InstrID{a, c}, ssa.Params{})
	loaded, _ := fn.AppendInstruction(entry, ssa.OpLoad, []ssa.InstrID{b}, ssa.Params{})
	fn.AppendInstruction(entry, ssa.OpReturn, []ssa.InstrID{loaded}, ssa.Params{})

	return fn
}

func TestLowerBuildsLocalsLayout(t *testing.T) {
	fn := buildTwoLocalsFunc()

	_, _, localsType, localsLayout, err := Lower(fn)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	if localsType == nil || localsLayout == nil {
		t.Fatal("expected a non-nil locals type/layout for a function with alloc-locals")
	}
	if got := localsLayout.Entries[0].Size; got != 16 {
		t.Fatalf("locals area size = %d, want 16 (two eightbyte locals)", got)
	}
	// One child entry per OpAllocLocal, at distinct, 8-byte-separated
	// offsets within the area.
	offA := localsLayout.Entries[1].RelativeOffset
	offB := localsLayout.Entries[2].RelativeOffset
	if offA == offB {
		t.Fatalf("both locals resolved to the same offset: %d", offA)
	}
	if (offA - offB) != 8 && (offB - offA) != 8 {
		t.Fatalf("locals are not packed 8 bytes apart: %d, %d", offA, offB)
	}
}

func TestLowerNoLocalsYieldsNilLayout(t *testing.T) {
	fn := ssa.NewFunc("no_locals")
	entry := fn.NewBlock()
	c, _ := fn.AppendInstruction(entry, ssa.OpConstInt, nil, ssa.Params{ImmInt: 1})
	fn.AppendInstruction(entry, ssa.OpReturn, []ssa.InstrID{c}, ssa.Params{})

	_, _, localsType, localsLayout, err := Lower(fn)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	if localsType != nil || localsLayout != nil {
		t.Fatal("expected a nil locals type/layout for a function with no alloc-locals")
	}
}

// TestLoadStoreOfLocalResolvesToFrameMemory exercises review comment (a)
// end to end: a Load/Store of an alloc-local must never route through
// vregFor (which would allocate an address vreg no instruction defines);
// it must instead produce a localAreaBase-anchored memory operand that
// Devirtualize resolves to a concrete rbp-relative address once
// Frame.Calculate has fixed the local area's offset.
func TestLoadStoreOfLocalResolvesToFrameMemory(t *testing.T) {
	fn := buildTwoLocalsFunc()

	ctx, _, localsType, localsLayout, err := Lower(fn)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}

	var sawStoreMem, sawLoadMem asmcmp.MemOperand
	var foundStore, foundLoad bool
	ctx.Walk(func(idx asmcmp.InstrIndex, in *asmcmp.Instr) bool {
		switch in.Op {
		case asmcmp.OpMovMR:
			sawStoreMem, foundStore = in.Args[0].Mem, true
		case asmcmp.OpMovRM:
			if !foundLoad {
				sawLoadMem, foundLoad = in.Args[1].Mem, true
			}
		}
		return true
	})
	if !foundStore || !foundLoad {
		t.Fatal("expected both a store and a load of a local to be lowered")
	}
	if sawStoreMem.Base.Virtual || sawStoreMem.Base != localAreaBase {
		t.Fatalf("store's address operand is not anchored at localAreaBase: %+v", sawStoreMem)
	}
	if sawLoadMem.Base.Virtual || sawLoadMem.Base != localAreaBase {
		t.Fatalf("load's address operand is not anchored at localAreaBase: %+v", sawLoadMem)
	}

	frame := NewFrame()
	if err := frame.Calculate(abiamd64.VariantSystemV, localsType, localsLayout); err != nil {
		t.Fatalf("frame.Calculate: %v", err)
	}
	if frame.Sizes.LocalArea == 0 {
		t.Fatal("Frame.Calculate left LocalArea at zero despite a real locals layout")
	}

	if err := Devirtualize(ctx, frame); err != nil {
		t.Fatalf("Devirtualize: %v", err)
	}

	var resolved int
	ctx.Walk(func(idx asmcmp.InstrIndex, in *asmcmp.Instr) bool {
		for _, a := range in.Args {
			if a.Kind == asmcmp.OperandMemory && a.Mem.HasBase {
				if a.Mem.Base.Name == localAreaBase.Name {
					t.Fatalf("localAreaBase survived devirtualization: %+v", a.Mem)
				}
				if a.Mem.Base.Name == "rbp" {
					resolved++
				}
			}
		}
		return true
	})
	if resolved == 0 {
		t.Fatal("expected at least one memory operand resolved to an rbp-relative address")
	}
}
