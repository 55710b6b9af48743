package amd64

import (
	"testing"

	"github.com/sourcehut-mirrors/kefir-sub015/internal/asmcmp"
)

func TestParseVirtualPipelineUnknownPass(t *testing.T) {
	if _, err := ParseVirtualPipeline("virtual-canon:bogus-pass"); err == nil {
		t.Fatal("expected an error for an unregistered pass name")
	}
}

func TestParseVirtualPipelineDefault(t *testing.T) {
	p, err := ParseVirtualPipeline("virtual-canon:virtual-dce:devirt-memfold:devirt-two-operand")
	if err != nil {
		t.Fatalf("ParseVirtualPipeline: %v", err)
	}
	got := p.PassNames()
	want := []string{"virtual-canon", "virtual-dce", "devirt-memfold", "devirt-two-operand"}
	if len(got) != len(want) {
		t.Fatalf("got %d passes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pass[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestVirtualCanonRemovesSelfMove(t *testing.T) {
	ctx := asmcmp.NewContext()
	r := asmcmp.Reg(asmcmp.PhysicalReg("rax"))
	ctx.Append(asmcmp.OpMovRR, r, r, asmcmp.DefaultSideEffects(asmcmp.OpMovRR))
	ctx.Append(asmcmp.OpRet, asmcmp.None, asmcmp.None, asmcmp.DefaultSideEffects(asmcmp.OpRet))

	changed, err := (virtualCanonPass{}).Apply(ctx)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !changed {
		t.Fatal("expected the self-move to be removed")
	}

	count := 0
	ctx.Walk(func(idx asmcmp.InstrIndex, in *asmcmp.Instr) bool {
		count++
		if in.Op == asmcmp.OpMovRR {
			t.Fatal("self-move survived virtual-canon")
		}
		return true
	})
	if count != 1 {
		t.Fatalf("expected 1 surviving instruction, got %d", count)
	}
}

func TestVirtualCanonRemovesIdentityArith(t *testing.T) {
	ctx := asmcmp.NewContext()
	r := asmcmp.Reg(asmcmp.PhysicalReg("rbx"))
	ctx.Append(asmcmp.OpAdd, r, asmcmp.ImmInt(0), asmcmp.DefaultSideEffects(asmcmp.OpAdd))

	changed, err := (virtualCanonPass{}).Apply(ctx)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !changed {
		t.Fatal("expected add r, 0 to be removed")
	}
}

func TestVirtualCanonKeepsRealMoves(t *testing.T) {
	ctx := asmcmp.NewContext()
	ctx.Append(asmcmp.OpMovRR, asmcmp.Reg(asmcmp.PhysicalReg("rax")), asmcmp.Reg(asmcmp.PhysicalReg("rbx")), asmcmp.DefaultSideEffects(asmcmp.OpMovRR))

	changed, err := (virtualCanonPass{}).Apply(ctx)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if changed {
		t.Fatal("a genuine mov rax, rbx must survive virtual-canon")
	}
}

func TestVirtualDCERemovesDeadDefinition(t *testing.T) {
	ctx := asmcmp.NewContext()
	v0 := ctx.VRegs.New(asmcmp.VRegGeneralPurpose, asmcmp.HintPreferPhysical)
	ctx.Append(asmcmp.OpMovRR, asmcmp.Reg(asmcmp.VirtualReg(v0)), asmcmp.Reg(asmcmp.PhysicalReg("rax")), asmcmp.DefaultSideEffects(asmcmp.OpMovRR))
	ctx.Append(asmcmp.OpRet, asmcmp.None, asmcmp.None, asmcmp.DefaultSideEffects(asmcmp.OpRet))

	changed, err := (virtualDCEPass{}).Apply(ctx)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !changed {
		t.Fatal("expected the dead vreg definition to be removed")
	}

	count := 0
	ctx.Walk(func(idx asmcmp.InstrIndex, in *asmcmp.Instr) bool { count++; return true })
	if count != 1 {
		t.Fatalf("expected only the ret to survive, got %d instructions", count)
	}
}

func TestVirtualDCEKeepsUsedDefinition(t *testing.T) {
	ctx := asmcmp.NewContext()
	v0 := ctx.VRegs.New(asmcmp.VRegGeneralPurpose, asmcmp.HintPreferPhysical)
	ctx.Append(asmcmp.OpMovRR, asmcmp.Reg(asmcmp.VirtualReg(v0)), asmcmp.Reg(asmcmp.PhysicalReg("rax")), asmcmp.DefaultSideEffects(asmcmp.OpMovRR))
	ctx.Append(asmcmp.OpMovMR, asmcmp.Reg(asmcmp.PhysicalReg("rbx")), asmcmp.Reg(asmcmp.VirtualReg(v0)), asmcmp.DefaultSideEffects(asmcmp.OpMovMR))

	changed, err := (virtualDCEPass{}).Apply(ctx)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if changed {
		t.Fatal("a definition consumed by a later instruction must not be removed")
	}
}

func TestVirtualPipelineRunFixpoint(t *testing.T) {
	ctx := asmcmp.NewContext()
	v0 := ctx.VRegs.New(asmcmp.VRegGeneralPurpose, asmcmp.HintPreferPhysical)
	v1 := ctx.VRegs.New(asmcmp.VRegGeneralPurpose, asmcmp.HintPreferPhysical)
	// v0 <- rax; v1 <- v0 + 0; v1 is never used again, so once
	// virtual-canon drops the "+0" it becomes a plain self/dead chain that
	// virtual-dce then removes in the same pipeline iteration.
	ctx.Append(asmcmp.OpMovRR, asmcmp.Reg(asmcmp.VirtualReg(v0)), asmcmp.Reg(asmcmp.PhysicalReg("rax")), asmcmp.DefaultSideEffects(asmcmp.OpMovRR))
	ctx.Append(asmcmp.OpMovRR, asmcmp.Reg(asmcmp.VirtualReg(v1)), asmcmp.Reg(asmcmp.VirtualReg(v0)), asmcmp.DefaultSideEffects(asmcmp.OpMovRR))
	ctx.Append(asmcmp.OpAdd, asmcmp.Reg(asmcmp.VirtualReg(v1)), asmcmp.ImmInt(0), asmcmp.DefaultSideEffects(asmcmp.OpAdd))
	ctx.Append(asmcmp.OpRet, asmcmp.None, asmcmp.None, asmcmp.DefaultSideEffects(asmcmp.OpRet))

	p, err := ParseVirtualPipeline("virtual-canon:virtual-dce")
	if err != nil {
		t.Fatalf("ParseVirtualPipeline: %v", err)
	}
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	count := 0
	ctx.Walk(func(idx asmcmp.InstrIndex, in *asmcmp.Instr) bool { count++; return true })
	if count != 1 {
		t.Fatalf("expected the whole dead chain collapsed to just ret, got %d instructions", count)
	}
}
