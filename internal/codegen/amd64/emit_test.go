package amd64

import (
	"strings"
	"testing"

	"github.com/sourcehut-mirrors/kefir-sub015/internal/asmcmp"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/config"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/ssa"
)

func TestCondSuffixTable(t *testing.T) {
	cases := map[int64]string{
		0x4: "e",
		0x5: "ne",
		0xc: "l",
		0xd: "ge",
		0xe: "le",
		0xf: "g",
	}
	for code, want := range cases {
		if got := condSuffix(code); got != want {
			t.Errorf("condSuffix(%#x) = %q, want %q", code, got, want)
		}
	}
}

func TestEmitterOperandRendering(t *testing.T) {
	e := &emitter{b: &strings.Builder{}, att: true}

	if got, want := e.operand(asmcmp.Reg(asmcmp.PhysicalReg("rax"))), "%rax"; got != want {
		t.Errorf("register operand = %q, want %q", got, want)
	}
	if got, want := e.operand(asmcmp.ImmInt(42)), "$42"; got != want {
		t.Errorf("immediate operand = %q, want %q", got, want)
	}
	mem := asmcmp.Memory(asmcmp.MemOperand{HasBase: true, Base: asmcmp.PhysicalReg("rbp"), Disp: -24})
	if got, want := e.operand(mem), "-24(%rbp)"; got != want {
		t.Errorf("memory operand = %q, want %q", got, want)
	}
	indexed := asmcmp.Memory(asmcmp.MemOperand{
		HasBase: true, Base: asmcmp.PhysicalReg("rax"),
		HasIndex: true, Index: asmcmp.PhysicalReg("rcx"), Scale: 8,
		Disp: 16,
	})
	if got, want := e.operand(indexed), "16(%rax,%rcx,8)"; got != want {
		t.Errorf("indexed memory operand = %q, want %q", got, want)
	}
}

func TestEmitAssemblyFramingAndATTOperandOrder(t *testing.T) {
	fn := ssa.NewFunc("add_one")
	ctx := asmcmp.NewContext()
	ctx.Append(asmcmp.OpMovRR, asmcmp.Reg(asmcmp.PhysicalReg("rax")), asmcmp.Reg(asmcmp.PhysicalReg("rdi")), asmcmp.DefaultSideEffects(asmcmp.OpMovRR))
	ctx.Append(asmcmp.OpAdd, asmcmp.Reg(asmcmp.PhysicalReg("rax")), asmcmp.ImmInt(1), asmcmp.DefaultSideEffects(asmcmp.OpAdd))
	ctx.Append(asmcmp.OpRet, asmcmp.None, asmcmp.None, asmcmp.DefaultSideEffects(asmcmp.OpRet))

	cfg := config.Default()
	out := EmitAssembly(fn, ctx, cfg)

	for _, want := range []string{
		"  .text\n",
		"  .globl add_one\n",
		"add_one:\n",
		"  mov %rdi, %rax\n",
		"  add $1, %rax\n",
		"  ret\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q; full output:\n%s", want, out)
		}
	}
}

func TestEmitAssemblyBlockLabelMarker(t *testing.T) {
	fn := ssa.NewFunc("labeled")
	ctx := asmcmp.NewContext()
	ctx.Append(asmcmp.OpNop, asmcmp.ImmLabel(".Llabeled_0"), asmcmp.None, asmcmp.SideEffects{})
	ctx.Append(asmcmp.OpRet, asmcmp.None, asmcmp.None, asmcmp.DefaultSideEffects(asmcmp.OpRet))

	out := EmitAssembly(fn, ctx, config.Default())
	if !strings.Contains(out, ".Llabeled_0:\n") {
		t.Errorf("expected a bare label line, got:\n%s", out)
	}
}

func TestEmitAssemblyInlineAsmPassthrough(t *testing.T) {
	fn := ssa.NewFunc("with_asm")
	ctx := asmcmp.NewContext()
	idx := ctx.Append(asmcmp.OpInlineAsm, asmcmp.None, asmcmp.None, asmcmp.SideEffects{})
	ctx.SetInlineAsm(idx, &asmcmp.InlineAsmBinding{Template: "nop\nnop"})
	ctx.Append(asmcmp.OpRet, asmcmp.None, asmcmp.None, asmcmp.DefaultSideEffects(asmcmp.OpRet))

	out := EmitAssembly(fn, ctx, config.Default())
	if strings.Count(out, "nop\n") != 2 {
		t.Errorf("expected both inline-asm template lines emitted verbatim, got:\n%s", out)
	}
}
