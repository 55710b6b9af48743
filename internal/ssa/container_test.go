package ssa

import "testing"

func TestAppendInstructionUpdatesUseDefIndex(t *testing.T) {
	fn := NewFunc("f")
	b := fn.NewBlock()
	c1, _ := fn.AppendInstruction(b, OpConstInt, nil, Params{ImmInt: 1, Width: 32})
	c2, _ := fn.AppendInstruction(b, OpConstInt, nil, Params{ImmInt: 2, Width: 32})
	add, _ := fn.AppendInstruction(b, OpIAdd, []InstrID{c1, c2}, Params{Width: 32})

	if got := fn.UseCount(c1); got != 1 {
		t.Fatalf("UseCount(c1) = %d, want 1", got)
	}
	uses := fn.Uses(c1)
	if len(uses) != 1 || uses[0] != add {
		t.Fatalf("Uses(c1) = %v, want [%d]", uses, add)
	}
	if err := Verify(fn); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestAppendTerminatorTwiceFails(t *testing.T) {
	fn := NewFunc("f")
	b := fn.NewBlock()
	if _, err := fn.AppendInstruction(b, OpReturn, nil, Params{}); err != nil {
		t.Fatalf("first terminator append: %v", err)
	}
	if _, err := fn.AppendInstruction(b, OpReturn, nil, Params{}); err == nil {
		t.Fatalf("expected error appending a second terminator")
	}
}

func TestDropInstructionFailsWithUses(t *testing.T) {
	fn := NewFunc("f")
	b := fn.NewBlock()
	c1, _ := fn.AppendInstruction(b, OpConstInt, nil, Params{ImmInt: 1})
	_, _ = fn.AppendInstruction(b, OpIAdd, []InstrID{c1, c1}, Params{})

	if err := fn.DropInstruction(c1); err == nil {
		t.Fatalf("expected DropInstruction to fail while c1 still has uses")
	}
}

func TestReplaceUsesRewritesOperandsAndIndex(t *testing.T) {
	fn := NewFunc("f")
	b := fn.NewBlock()
	c1, _ := fn.AppendInstruction(b, OpConstInt, nil, Params{ImmInt: 1})
	c2, _ := fn.AppendInstruction(b, OpConstInt, nil, Params{ImmInt: 2})
	add, _ := fn.AppendInstruction(b, OpIAdd, []InstrID{c1, c1}, Params{})

	fn.ReplaceUses(c1, c2)

	in := fn.Instr(add)
	if in.Args[0] != c2 || in.Args[1] != c2 {
		t.Fatalf("ReplaceUses did not rewrite operands: %v", in.Args)
	}
	if fn.UseCount(c1) != 0 {
		t.Fatalf("UseCount(c1) = %d, want 0 after ReplaceUses", fn.UseCount(c1))
	}
	if fn.UseCount(c2) != 2 {
		t.Fatalf("UseCount(c2) = %d, want 2 after ReplaceUses", fn.UseCount(c2))
	}
}

func TestPhiSetInputRejectsUnknownPredecessor(t *testing.T) {
	fn := NewFunc("f")
	entry := fn.NewBlock()
	other := fn.NewBlock()
	target := fn.NewBlock()
	fn.AddEdge(entry, target)
	phi, _ := fn.AppendInstruction(target, OpPhi, nil, Params{})

	if err := fn.PhiSetInput(phi, other, NoInstr); err == nil {
		t.Fatalf("expected error setting phi input for a non-predecessor block")
	}
}
