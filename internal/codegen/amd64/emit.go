package amd64

import (
	"fmt"
	"strings"

	"github.com/sourcehut-mirrors/kefir-sub015/internal/asmcmp"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/config"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/ssa"
)

// EmitAssembly walks ctx (spec §4.7 stage 8, after Devirtualize, ResolvePhis
// and the prologue/epilogue splice have all run, so every operand is either
// a concrete register, a frame-relative memory reference, or an immediate)
// and renders it as textual assembly, grounded on the teacher's
// compile/codegen/asm_x86.go Assembler.emit/emit0/emit1/emit2/operand shape.
//
// Unlike the teacher, asmcmp carries no per-operand width (its concrete
// registers are always full names like "rax" or "xmm3", never "eax"/"ax"),
// so this emitter never computes a b/w/l/q suffix the way suffix(t) does --
// there is nothing here for it to be derived from. Intel-syntax output is
// supported since config.Syntax names it, but AT&T is config.Default's
// syntax and the one exercised by the rest of this package's operand
// construction (mov arg1, arg0 ordering, $imm, %reg).
func EmitAssembly(fn *ssa.Func, ctx *asmcmp.Context, cfg config.Config) string {
	var b strings.Builder
	e := &emitter{b: &b, att: cfg.Syntax != config.SyntaxIntel}

	b.WriteString("  .text\n")
	fmt.Fprintf(&b, "  .globl %s\n", fn.Name)
	fmt.Fprintf(&b, "%s:\n", fn.Name)

	ctx.Walk(func(idx asmcmp.InstrIndex, in *asmcmp.Instr) bool {
		if in.Op == asmcmp.OpInlineAsm {
			if binding, ok := ctx.InlineAsmAt(idx); ok {
				e.inlineAsm(binding)
			}
			return true
		}
		e.instr(in)
		return true
	})

	return b.String()
}

type emitter struct {
	b   *strings.Builder
	att bool
}

func (e *emitter) instr(in *asmcmp.Instr) {
	switch in.Op {
	case asmcmp.OpNop:
		if in.Args[0].Kind == asmcmp.OperandImmLabel {
			fmt.Fprintf(e.b, "%s:\n", in.Args[0].Label)
		}
		return
	case asmcmp.OpRet, asmcmp.OpLeave:
		fmt.Fprintf(e.b, "  %s\n", in.Op.String())
		return
	case asmcmp.OpCall:
		fmt.Fprintf(e.b, "  call %s\n", e.operand(in.Args[0]))
		return
	case asmcmp.OpJmp:
		fmt.Fprintf(e.b, "  jmp %s\n", e.target(in.Args[0]))
		return
	case asmcmp.OpJcc:
		fmt.Fprintf(e.b, "  j%s %s\n", condSuffix(in.Args[1].ImmInt), e.target(in.Args[0]))
		return
	case asmcmp.OpSetCC:
		fmt.Fprintf(e.b, "  set%s %s\n", condSuffix(in.Args[1].ImmInt), e.operand(in.Args[0]))
		return
	case asmcmp.OpPush, asmcmp.OpPop, asmcmp.OpNot, asmcmp.OpNeg:
		fmt.Fprintf(e.b, "  %s %s\n", in.Op.String(), e.operand(in.Args[0]))
		return
	}

	if e.att {
		fmt.Fprintf(e.b, "  %s %s, %s\n", in.Op.String(), e.operand(in.Args[1]), e.operand(in.Args[0]))
	} else {
		fmt.Fprintf(e.b, "  %s %s, %s\n", in.Op.String(), e.operand(in.Args[0]), e.operand(in.Args[1]))
	}
}

// inlineAsm emits a user inline-assembly block's already-resolved template
// text (spec §4.8): expandAsmTemplate substituted every %N/%[name]/%%
// reference against the binding's bound operands at lowering time, so this
// is verbatim passthrough, one output line per template line, indented to
// match the rest of the function body.
func (e *emitter) inlineAsm(b *asmcmp.InlineAsmBinding) {
	for _, line := range strings.Split(b.Template, "\n") {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			continue
		}
		fmt.Fprintf(e.b, "  %s\n", line)
	}
}

// target renders a branch/call target operand: a label reference as a bare
// symbol, anything else (an indirect call through a resolved register or
// memory operand) through the ordinary operand path.
func (e *emitter) target(o asmcmp.Operand) string {
	if o.Kind == asmcmp.OperandImmLabel {
		return o.Label
	}
	return e.operand(o)
}

func (e *emitter) operand(o asmcmp.Operand) string {
	switch o.Kind {
	case asmcmp.OperandReg:
		return e.reg(o.Reg)
	case asmcmp.OperandImmInt:
		return fmt.Sprintf("$%d", o.ImmInt)
	case asmcmp.OperandImmSymbol:
		if o.ImmSymbolOff != 0 {
			return fmt.Sprintf("$%s+%d", o.ImmSymbol, o.ImmSymbolOff)
		}
		return "$" + o.ImmSymbol
	case asmcmp.OperandImmLabel:
		return fmt.Sprintf("$%s", o.Label)
	case asmcmp.OperandMemory:
		return e.mem(o.Mem)
	default:
		return ""
	}
}

func (e *emitter) reg(r asmcmp.RegRef) string {
	if r.Virtual {
		// Devirtualize resolves every real operand before EmitAssembly
		// runs; a live virtual reference reaching here means a vreg with
		// no recorded use ever made it into an instruction argument, and
		// is rendered as-is rather than masked.
		return r.String()
	}
	return "%" + r.Name
}

func (e *emitter) mem(m asmcmp.MemOperand) string {
	var disp string
	switch {
	case m.DispSymbol != "":
		disp = m.DispSymbol
		if m.Disp != 0 {
			disp += fmt.Sprintf("+%d", m.Disp)
		}
	case m.Disp != 0:
		disp = fmt.Sprintf("%d", m.Disp)
	}

	var seg string
	if m.Segment != "" {
		seg = "%" + m.Segment + ":"
	}

	if !m.HasBase && !m.HasIndex {
		return seg + disp
	}

	var base, index string
	if m.HasBase {
		base = e.reg(m.Base)
	}
	if m.HasIndex {
		index = fmt.Sprintf(",%s,%d", e.reg(m.Index), m.Scale)
	}
	return fmt.Sprintf("%s%s(%s%s)", disp, seg, base, index)
}

// condSuffix maps an x86-64 4-bit condition-code encoding to its AT&T
// mnemonic suffix (used after both "j" and "set"), per the ISA's standard
// Jcc/SETcc condition table.
func condSuffix(code int64) string {
	switch code & 0xf {
	case 0x0:
		return "o"
	case 0x1:
		return "no"
	case 0x2:
		return "b"
	case 0x3:
		return "ae"
	case 0x4:
		return "e"
	case 0x5:
		return "ne"
	case 0x6:
		return "be"
	case 0x7:
		return "a"
	case 0x8:
		return "s"
	case 0x9:
		return "ns"
	case 0xa:
		return "p"
	case 0xb:
		return "np"
	case 0xc:
		return "l"
	case 0xd:
		return "ge"
	case 0xe:
		return "le"
	default:
		return "g"
	}
}
