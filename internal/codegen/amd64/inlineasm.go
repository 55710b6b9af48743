package amd64

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sourcehut-mirrors/kefir-sub015/internal/asmcmp"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/ssa"
)

// lowerInlineAsm implements spec §4.8's backend contract: bind each
// parameter to a vreg/memory operand per its constraint (the bound operand
// is used in place; no separate load or store instruction is emitted for
// any direction), resolve the template's %N/%[name]/
// %% substitutions against the bound operands, and emit one opaque
// OpInlineAsm instruction carrying the result plus the clobber list and
// any asm-goto jump-trampoline labels.
func (l *Lowerer) lowerInlineAsm(in *ssa.Instruction) {
	info := l.fn.InlineAsms[in.ID]
	if info == nil {
		// No structured binding was attached by the IR builder: still
		// emit the opaque marker so devirtualization has something
		// concrete to walk, conservatively clobbering everything.
		idx := l.ctx.Append(asmcmp.OpInlineAsm, asmcmp.None, asmcmp.None,
			asmcmp.SideEffects{ClobbersFlags: true, ReadsMemory: true, WritesMemory: true})
		l.ctx.SetInlineAsm(idx, &asmcmp.InlineAsmBinding{Template: in.Params.SymbolRef})
		return
	}

	bound := make([]asmcmp.Operand, len(info.Params))
	var defs, uses []asmcmp.Operand
	for i, p := range info.Params {
		operand := l.bindInlineAsmParam(in, p)
		bound[i] = operand

		switch p.Direction {
		case ssa.DirRead:
			uses = append(uses, operand)
		case ssa.DirWrite:
			defs = append(defs, operand)
		case ssa.DirReadWrite, ssa.DirLoadStore:
			uses = append(uses, operand)
			defs = append(defs, operand)
		}
	}

	var jumpLabels []string
	for _, target := range info.JumpTargets {
		jumpLabels = append(jumpLabels, l.blockLabel[target])
	}

	se := asmcmp.SideEffects{ClobbersFlags: true, ReadsMemory: true, WritesMemory: true, ClobberedRegs: info.Clobbers}
	idx := l.ctx.Append(asmcmp.OpInlineAsm, asmcmp.None, asmcmp.None, se)
	l.ctx.SetInlineAsm(idx, &asmcmp.InlineAsmBinding{
		Template:   expandAsmTemplate(info.Template, bound),
		Defs:       defs,
		Uses:       uses,
		Clobbers:   info.Clobbers,
		JumpLabels: jumpLabels,
	})
}

// bindInlineAsmParam resolves one parameter binding to a concrete asmcmp
// operand per its constraint: a specific-reg constraint pins a physical
// register directly, immediate passes the argument through unchanged,
// memory yields a memory operand based on the register holding the
// argument, and reg/reg-or-memory both bind the argument's own virtual
// register (via vregFor); reg-or-memory is not folded into a memory
// operand here.
func (l *Lowerer) bindInlineAsmParam(in *ssa.Instruction, p ssa.ParamBinding) asmcmp.Operand {
	arg := in.Args[p.SlotIndex]
	switch p.Constraint {
	case ssa.ConstraintImmediate:
		return l.operandFor(arg)
	case ssa.ConstraintSpecificReg:
		return asmcmp.Reg(asmcmp.PhysicalReg(p.SpecificReg))
	case ssa.ConstraintMemory:
		return asmcmp.Memory(asmcmp.MemOperand{HasBase: true, Base: regRefOf(l.operandFor(arg))})
	default: // ConstraintReg, ConstraintRegOrMemory
		return l.vregFor(arg, asmcmp.VRegGeneralPurpose)
	}
}

// expandAsmTemplate resolves %N (positional), %[name] (by parameter
// index, since bindings carry no separate name table), and %% (literal
// percent) substitutions against the bound operand list, matching the
// inline-asm template syntax spec §4.8 names.
func expandAsmTemplate(template string, bound []asmcmp.Operand) string {
	var b strings.Builder
	for i := 0; i < len(template); i++ {
		c := template[i]
		if c != '%' || i == len(template)-1 {
			b.WriteByte(c)
			continue
		}
		next := template[i+1]
		switch {
		case next == '%':
			b.WriteByte('%')
			i++
		case next == '[':
			closeIdx := strings.IndexByte(template[i+2:], ']')
			if closeIdx < 0 {
				b.WriteByte(c)
				continue
			}
			name := template[i+2 : i+2+closeIdx]
			if idx, err := strconv.Atoi(name); err == nil && idx >= 0 && idx < len(bound) {
				b.WriteString(bound[idx].String())
			} else {
				b.WriteString(fmt.Sprintf("%%[%s]", name))
			}
			i += 2 + closeIdx
		case next >= '0' && next <= '9':
			j := i + 1
			for j < len(template) && template[j] >= '0' && template[j] <= '9' {
				j++
			}
			idx, _ := strconv.Atoi(template[i+1 : j])
			if idx >= 0 && idx < len(bound) {
				b.WriteString(bound[idx].String())
			}
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
