package passes

import (
	"testing"

	"github.com/sourcehut-mirrors/kefir-sub015/internal/ssa"
)

func TestDeadAllocRemovesAllocWithOnlyLifetimeMarks(t *testing.T) {
	fn := ssa.NewFunc("f")
	entry := fn.NewBlock()

	alloc, _ := fn.AppendInstruction(entry, ssa.OpAllocLocal, nil, ssa.Params{TypeRef: 1})
	mark, _ := fn.AppendInstruction(entry, ssa.OpLocalLifetimeMark, []ssa.InstrID{alloc}, ssa.Params{})
	_, _ = fn.AppendInstruction(entry, ssa.OpReturn, nil, ssa.Params{})

	res, err := (deadAllocPass{}).Apply(fn, Config{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Changed {
		t.Fatalf("expected dead-alloc to report a change")
	}
	if fn.Instr(alloc) != nil || fn.Instr(mark) != nil {
		t.Fatalf("expected alloc and its lifetime mark to be removed")
	}
}

func TestDeadAllocKeepsAllocWithRealUse(t *testing.T) {
	fn := ssa.NewFunc("f")
	entry := fn.NewBlock()

	alloc, _ := fn.AppendInstruction(entry, ssa.OpAllocLocal, nil, ssa.Params{TypeRef: 1})
	store, _ := fn.AppendInstruction(entry, ssa.OpStore, []ssa.InstrID{alloc}, ssa.Params{})
	_, _ = fn.AppendInstruction(entry, ssa.OpReturn, nil, ssa.Params{})

	res, err := (deadAllocPass{}).Apply(fn, Config{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Changed {
		t.Fatalf("expected no change: alloc has a real (non-lifetime-mark) use")
	}
	if fn.Instr(alloc) == nil || fn.Instr(store) == nil {
		t.Fatalf("alloc/store should both survive")
	}
}

func TestDeadCodeRemovesUnreachableBlockAndUnusedValue(t *testing.T) {
	fn := ssa.NewFunc("f")
	entry := fn.NewBlock()
	unreachable := fn.NewBlock()

	_, _ = fn.AppendInstruction(entry, ssa.OpReturn, nil, ssa.Params{})
	// unreachable block: never reached from entry, should be dropped whole.
	_, _ = fn.AppendInstruction(unreachable, ssa.OpConstInt, nil, ssa.Params{ImmInt: 7})
	_, _ = fn.AppendInstruction(unreachable, ssa.OpReturn, nil, ssa.Params{})

	unused, _ := fn.AppendInstruction(entry, ssa.OpIAdd, nil, ssa.Params{})
	_ = unused

	res, err := (deadCodePass{}).Apply(fn, Config{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Changed {
		t.Fatalf("expected a change")
	}
	if fn.Block(unreachable) != nil {
		t.Fatalf("expected unreachable block to be deleted")
	}
	if fn.Instr(unused) != nil {
		t.Fatalf("expected unused non-pinned instruction to be deleted")
	}
}

func TestGVNDeduplicatesIdenticalAddInSameBlock(t *testing.T) {
	fn := ssa.NewFunc("f")
	entry := fn.NewBlock()

	a, _ := fn.AppendInstruction(entry, ssa.OpConstInt, nil, ssa.Params{ImmInt: 1})
	b, _ := fn.AppendInstruction(entry, ssa.OpConstInt, nil, ssa.Params{ImmInt: 2})
	add1, _ := fn.AppendInstruction(entry, ssa.OpIAdd, []ssa.InstrID{a, b}, ssa.Params{})
	add2, _ := fn.AppendInstruction(entry, ssa.OpIAdd, []ssa.InstrID{b, a}, ssa.Params{}) // commutative, swapped
	user1, _ := fn.AppendInstruction(entry, ssa.OpStore, []ssa.InstrID{add1}, ssa.Params{})
	user2, _ := fn.AppendInstruction(entry, ssa.OpStore, []ssa.InstrID{add2}, ssa.Params{})
	_, _ = fn.AppendInstruction(entry, ssa.OpReturn, nil, ssa.Params{})
	_ = user1
	_ = user2

	res, err := (gvnPass{}).Apply(fn, Config{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Changed {
		t.Fatalf("expected GVN to merge the commutative duplicate")
	}
	if fn.Instr(add2) != nil {
		t.Fatalf("expected the duplicate add to be removed")
	}
	if fn.Instr(add1) == nil {
		t.Fatalf("expected the surviving representative to remain")
	}
}

func TestConstFoldIntAdd(t *testing.T) {
	fn := ssa.NewFunc("f")
	entry := fn.NewBlock()

	a, _ := fn.AppendInstruction(entry, ssa.OpConstInt, nil, ssa.Params{ImmInt: 3})
	b, _ := fn.AppendInstruction(entry, ssa.OpConstInt, nil, ssa.Params{ImmInt: 4})
	sum, _ := fn.AppendInstruction(entry, ssa.OpIAdd, []ssa.InstrID{a, b}, ssa.Params{Width: 32, Signed: true})
	_, _ = fn.AppendInstruction(entry, ssa.OpStore, []ssa.InstrID{sum}, ssa.Params{})
	_, _ = fn.AppendInstruction(entry, ssa.OpReturn, nil, ssa.Params{})

	res, err := (constFoldPass{}).Apply(fn, Config{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Changed {
		t.Fatalf("expected folding to report a change")
	}
	in := fn.Instr(sum)
	if in.Op != ssa.OpConstInt || in.Params.ImmInt != 7 {
		t.Fatalf("expected folded const 7, got op=%v imm=%d", in.Op, in.Params.ImmInt)
	}
}

func TestConstFoldSignedAddOverflow(t *testing.T) {
	fn := ssa.NewFunc("f")
	entry := fn.NewBlock()

	a, _ := fn.AppendInstruction(entry, ssa.OpConstInt, nil, ssa.Params{ImmInt: 127})
	b, _ := fn.AppendInstruction(entry, ssa.OpConstInt, nil, ssa.Params{ImmInt: 1})
	res, _ := fn.AppendInstruction(entry, ssa.OpSAddOverflow, []ssa.InstrID{a, b}, ssa.Params{Width: 8})
	_, _ = fn.AppendInstruction(entry, ssa.OpStore, []ssa.InstrID{res}, ssa.Params{})
	_, _ = fn.AppendInstruction(entry, ssa.OpReturn, nil, ssa.Params{})

	if _, err := (constFoldPass{}).Apply(fn, Config{}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	in := fn.Instr(res)
	if in.Op != ssa.OpConstInt {
		t.Fatalf("expected folded to const, got %v", in.Op)
	}
	if !in.Params.Signed {
		t.Fatalf("expected overflow flag set for 127+1 at width 8")
	}
}

func TestStrengthReducePowerOfTwoMul(t *testing.T) {
	fn := ssa.NewFunc("f")
	entry := fn.NewBlock()

	lhs, _ := fn.AppendInstruction(entry, ssa.OpLoad, nil, ssa.Params{})
	eight, _ := fn.AppendInstruction(entry, ssa.OpConstInt, nil, ssa.Params{ImmInt: 8})
	mul, _ := fn.AppendInstruction(entry, ssa.OpIMul, []ssa.InstrID{lhs, eight}, ssa.Params{Width: 32})
	_, _ = fn.AppendInstruction(entry, ssa.OpStore, []ssa.InstrID{mul}, ssa.Params{})
	_, _ = fn.AppendInstruction(entry, ssa.OpReturn, nil, ssa.Params{})

	res, err := (strengthReducePass{}).Apply(fn, Config{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Changed {
		t.Fatalf("expected a change")
	}
	in := fn.Instr(mul)
	if in.Op != ssa.OpShl || in.Params.ImmInt != 3 || len(in.Args) != 1 || in.Args[0] != lhs {
		t.Fatalf("expected mul by 8 rewritten to shl by 3 of lhs, got op=%v imm=%d args=%v", in.Op, in.Params.ImmInt, in.Args)
	}
}

func TestStrengthReduceAddZeroIdentity(t *testing.T) {
	fn := ssa.NewFunc("f")
	entry := fn.NewBlock()

	lhs, _ := fn.AppendInstruction(entry, ssa.OpLoad, nil, ssa.Params{})
	zero, _ := fn.AppendInstruction(entry, ssa.OpConstInt, nil, ssa.Params{ImmInt: 0})
	add, _ := fn.AppendInstruction(entry, ssa.OpIAdd, []ssa.InstrID{lhs, zero}, ssa.Params{})
	store, _ := fn.AppendInstruction(entry, ssa.OpStore, []ssa.InstrID{add}, ssa.Params{})
	_, _ = fn.AppendInstruction(entry, ssa.OpReturn, nil, ssa.Params{})

	if _, err := (strengthReducePass{}).Apply(fn, Config{}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if fn.Instr(add) != nil {
		t.Fatalf("expected `x + 0` to be eliminated")
	}
	storeIn := fn.Instr(store)
	if storeIn.Args[0] != lhs {
		t.Fatalf("expected store's operand forwarded to lhs, got %d", storeIn.Args[0])
	}
}

// TestBoolSimplifyCollapsesBranchToPhi builds the `cond ? 1 : 0` diamond
// shape and checks the phi collapses to the condition value directly.
func TestBoolSimplifyCollapsesBranchToPhi(t *testing.T) {
	fn := ssa.NewFunc("f")
	entry := fn.NewBlock()
	thenB := fn.NewBlock()
	elseB := fn.NewBlock()
	merge := fn.NewBlock()

	cond, _ := fn.AppendInstruction(entry, ssa.OpCmpEqI, nil, ssa.Params{})
	one, _ := fn.AppendInstruction(entry, ssa.OpConstInt, nil, ssa.Params{ImmInt: 1})
	zero, _ := fn.AppendInstruction(entry, ssa.OpConstInt, nil, ssa.Params{ImmInt: 0})
	_, _ = fn.AppendInstruction(entry, ssa.OpBranch, []ssa.InstrID{cond}, ssa.Params{})
	fn.AddEdge(entry, thenB)
	fn.AddEdge(entry, elseB)

	_, _ = fn.AppendInstruction(thenB, ssa.OpJump, nil, ssa.Params{})
	fn.AddEdge(thenB, merge)

	_, _ = fn.AppendInstruction(elseB, ssa.OpJump, nil, ssa.Params{})
	fn.AddEdge(elseB, merge)

	phi, _ := fn.AppendInstruction(merge, ssa.OpPhi, []ssa.InstrID{one, zero}, ssa.Params{})
	store, _ := fn.AppendInstruction(merge, ssa.OpStore, []ssa.InstrID{phi}, ssa.Params{})
	_, _ = fn.AppendInstruction(merge, ssa.OpReturn, nil, ssa.Params{})

	res, err := (boolSimplifyPass{}).Apply(fn, Config{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Changed {
		t.Fatalf("expected a change")
	}
	if fn.Instr(phi) != nil {
		t.Fatalf("expected the phi to be eliminated")
	}
	storeIn := fn.Instr(store)
	if storeIn.Args[0] != cond {
		t.Fatalf("expected store operand forwarded to cond, got %d", storeIn.Args[0])
	}
}

func TestTailCallMarksReturnOfInvoke(t *testing.T) {
	fn := ssa.NewFunc("f")
	entry := fn.NewBlock()

	call, _ := fn.AppendInstruction(entry, ssa.OpInvoke, nil, ssa.Params{SymbolRef: "callee"})
	_, _ = fn.AppendInstruction(entry, ssa.OpReturn, []ssa.InstrID{call}, ssa.Params{})

	res, err := (tailCallPass{}).Apply(fn, Config{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Changed {
		t.Fatalf("expected a change")
	}
	if fn.Instr(call).Params.MemFlags&tailCallFlag == 0 {
		t.Fatalf("expected tail-call flag set")
	}
}

func TestTailCallSkipsNonTerminalInvoke(t *testing.T) {
	fn := ssa.NewFunc("f")
	entry := fn.NewBlock()

	call, _ := fn.AppendInstruction(entry, ssa.OpInvoke, nil, ssa.Params{SymbolRef: "callee"})
	_, _ = fn.AppendInstruction(entry, ssa.OpStore, []ssa.InstrID{call}, ssa.Params{})
	_, _ = fn.AppendInstruction(entry, ssa.OpReturn, nil, ssa.Params{})

	res, err := (tailCallPass{}).Apply(fn, Config{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Changed {
		t.Fatalf("expected no change: invoke's result escapes to a store, not a direct return")
	}
}

func TestParsePipelineResolvesRegisteredPasses(t *testing.T) {
	p, err := ParsePipeline("dead-alloc:dead-code:gvn:const-fold:strength-reduce:bool-simplify:tail-call")
	if err != nil {
		t.Fatalf("ParsePipeline: %v", err)
	}
	if len(p.Passes) != 7 {
		t.Fatalf("expected 7 passes, got %d", len(p.Passes))
	}
}

func TestParsePipelineRejectsUnknownPass(t *testing.T) {
	if _, err := ParsePipeline("not-a-real-pass"); err == nil {
		t.Fatalf("expected an error for an unregistered pass name")
	}
}

func TestPipelineRunConvergesConstFoldIntoDeadCode(t *testing.T) {
	fn := ssa.NewFunc("f")
	entry := fn.NewBlock()

	a, _ := fn.AppendInstruction(entry, ssa.OpConstInt, nil, ssa.Params{ImmInt: 1})
	b, _ := fn.AppendInstruction(entry, ssa.OpConstInt, nil, ssa.Params{ImmInt: 2})
	sum, _ := fn.AppendInstruction(entry, ssa.OpIAdd, []ssa.InstrID{a, b}, ssa.Params{})
	_, _ = fn.AppendInstruction(entry, ssa.OpReturn, nil, ssa.Params{})
	_ = sum // folded to a constant, then never used by the return -> dead-code eligible

	p, err := ParsePipeline("const-fold:dead-code")
	if err != nil {
		t.Fatalf("ParsePipeline: %v", err)
	}
	if err := p.Run(fn, Config{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fn.Instr(sum) != nil {
		t.Fatalf("expected the folded, unused sum to be removed by dead-code")
	}
}
