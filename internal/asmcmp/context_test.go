package asmcmp

import "testing"

func TestAppendAndWalkPreservesOrder(t *testing.T) {
	c := NewContext()
	i0 := c.Append(OpMovRR, Reg(PhysicalReg("rax")), Reg(PhysicalReg("rbx")), SideEffects{})
	i1 := c.Append(OpAdd, Reg(PhysicalReg("rax")), ImmInt(1), DefaultSideEffects(OpAdd))

	var order []InstrIndex
	c.Walk(func(idx InstrIndex, in *Instr) bool {
		order = append(order, idx)
		return true
	})
	if len(order) != 2 || order[0] != i0 || order[1] != i1 {
		t.Fatalf("walk order = %v, want [%d %d]", order, i0, i1)
	}
}

func TestRemoveKeepsIndexStableAndSkipsInWalk(t *testing.T) {
	c := NewContext()
	i0 := c.Append(OpNop, None, None, SideEffects{})
	i1 := c.Append(OpNop, None, None, SideEffects{})
	i2 := c.Append(OpNop, None, None, SideEffects{})

	if err := c.Remove(i1); err != nil {
		t.Fatal(err)
	}

	var order []InstrIndex
	c.Walk(func(idx InstrIndex, in *Instr) bool {
		order = append(order, idx)
		return true
	})
	if len(order) != 2 || order[0] != i0 || order[1] != i2 {
		t.Fatalf("walk order after remove = %v, want [%d %d]", order, i0, i2)
	}

	if _, live := c.Get(i1); live {
		t.Fatalf("removed instruction %d should no longer be live", i1)
	}
}

func TestInsertBeforeSplicesCorrectly(t *testing.T) {
	c := NewContext()
	i0 := c.Append(OpNop, None, None, SideEffects{})
	i2 := c.Append(OpNop, None, None, SideEffects{})
	i1, err := c.InsertBefore(i2, OpNop, None, None, SideEffects{})
	if err != nil {
		t.Fatal(err)
	}

	var order []InstrIndex
	c.Walk(func(idx InstrIndex, in *Instr) bool {
		order = append(order, idx)
		return true
	})
	if len(order) != 3 || order[0] != i0 || order[1] != i1 || order[2] != i2 {
		t.Fatalf("walk order = %v, want [%d %d %d]", order, i0, i1, i2)
	}
}

func TestSourceMapRejectsOverlap(t *testing.T) {
	var m SourceMap
	if err := m.Insert(0, 5, SourcePos{File: "a.c", Line: 1}); err != nil {
		t.Fatal(err)
	}
	if err := m.Insert(5, 10, SourcePos{File: "a.c", Line: 2}); err != nil {
		t.Fatal(err)
	}
	if err := m.Insert(3, 7, SourcePos{File: "a.c", Line: 3}); err == nil {
		t.Fatalf("overlapping range should be rejected")
	}
}

func TestSourceMapLookupByLowerBound(t *testing.T) {
	var m SourceMap
	if err := m.Insert(0, 5, SourcePos{File: "a.c", Line: 1}); err != nil {
		t.Fatal(err)
	}
	if err := m.Insert(10, 15, SourcePos{File: "a.c", Line: 2}); err != nil {
		t.Fatal(err)
	}
	pos, ok := m.Lookup(12)
	if !ok || pos.Line != 2 {
		t.Fatalf("lookup(12) = %+v, %v", pos, ok)
	}
	if _, ok := m.Lookup(7); ok {
		t.Fatalf("lookup(7) should miss, no range covers it")
	}
}

func TestVRegTableAssignment(t *testing.T) {
	var tbl VRegTable
	id := tbl.New(VRegGeneralPurpose, HintPreferPhysical)
	tbl.SetAssignment(id, Assignment{Kind: AssignmentPhysicalReg, PhysicalReg: "rcx"})
	if got := tbl.Get(id).Assignment.PhysicalReg; got != "rcx" {
		t.Fatalf("assignment = %q, want rcx", got)
	}
}
