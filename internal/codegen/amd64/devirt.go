package amd64

import "github.com/sourcehut-mirrors/kefir-sub015/internal/asmcmp"

// localAreaBase marks a memory operand's base as "frame-relative to the
// local-variable area", left unresolved by Lower because the area's base
// offset (frame.Offsets.LocalArea) isn't known until Frame.Calculate runs
// at stage 5 -- Lower (stage 1) only has each local's offset *within* the
// area, carried as the operand's Disp. resolveOperand rewrites this
// sentinel to the real rbp-relative address once the frame is final, the
// same early-index/late-resolve split spillSlotOperand already uses for
// spilled vregs.
var localAreaBase = asmcmp.RegRef{Name: "#local-area"}

// resolveOperand replaces every virtual-register reference in o (as the
// operand itself, or as a memory operand's base/index) with its final
// asmcmp.Assignment -- a concrete register, or a frame-relative memory
// operand for a spilled vreg -- and resolves localAreaBase-anchored
// memory operands to their final rbp-relative address. Operands needing
// neither pass through unchanged.
func resolveOperand(ctx *asmcmp.Context, frame *Frame, o asmcmp.Operand) asmcmp.Operand {
	switch o.Kind {
	case asmcmp.OperandReg:
		if !o.Reg.Virtual {
			return o
		}
		return resolvedOperandFor(ctx, frame, o.Reg.VReg)
	case asmcmp.OperandMemory:
		m := o.Mem
		if m.HasBase && !m.Base.Virtual && m.Base == localAreaBase {
			m.Base = asmcmp.PhysicalReg("rbp")
			m.Disp += frame.Offsets.LocalArea
		} else if m.HasBase && m.Base.Virtual {
			m.Base = resolvedRegRefFor(ctx, frame, m.Base.VReg, &m)
		}
		if m.HasIndex && m.Index.Virtual {
			m.Index = resolvedRegRefFor(ctx, frame, m.Index.VReg, &m)
		}
		return asmcmp.Memory(m)
	default:
		return o
	}
}

// resolvedOperandFor returns the concrete operand a vreg's Assignment
// resolves to: a register operand for AssignmentPhysicalReg/Memory, or a
// frame-relative [rbp-disp] memory operand for AssignmentSpillSlot.
func resolvedOperandFor(ctx *asmcmp.Context, frame *Frame, id asmcmp.VRegID) asmcmp.Operand {
	a := ctx.VRegs.Get(id).Assignment
	switch a.Kind {
	case asmcmp.AssignmentPhysicalReg:
		return asmcmp.Reg(asmcmp.PhysicalReg(a.PhysicalReg))
	case asmcmp.AssignmentMemory:
		return asmcmp.Memory(a.MemoryOperand)
	default:
		return asmcmp.Memory(spillSlotOperand(frame, a.SpillSlot))
	}
}

// resolvedRegRefFor resolves a vreg used as a memory operand's base/index
// to a concrete RegRef. A vreg that itself resolved to a spill slot can't
// serve as an address component directly (spec §4.7's devirtualizer must
// materialize it into the shared scratch register first); since base/index
// vregs only ever arise from addressing computations the allocator always
// keeps in a register class vreg, this is reported as a backend defect
// via a zero RegRef rather than silently emitting broken addressing --
// devirt's caller is expected to never hand a spilled vreg to address
// math (lower.go never spills the base of a Load/Store address itself,
// only the loaded/stored value).
func resolvedRegRefFor(ctx *asmcmp.Context, frame *Frame, id asmcmp.VRegID, _ *asmcmp.MemOperand) asmcmp.RegRef {
	a := ctx.VRegs.Get(id).Assignment
	if a.Kind == asmcmp.AssignmentPhysicalReg {
		return asmcmp.PhysicalReg(a.PhysicalReg)
	}
	return asmcmp.RegRef{}
}

func spillSlotOperand(frame *Frame, slot int) asmcmp.MemOperand {
	return asmcmp.MemOperand{
		HasBase: true,
		Base:    asmcmp.PhysicalReg("rbp"),
		Disp:    frame.Offsets.SpillArea + int64(slot)*8,
	}
}

// Devirtualize runs spec §4.7 stage 5 over ctx: it rewrites every
// instruction's virtual-register operands to their final register/memory
// form (per stage 4's Assignment) and legalises the two-memory-operand
// case x86 can't encode by routing one side through a scratch register.
// Must run after AllocateRegisters (stage 4) and after frame.Calculate
// has fixed the spill area's offset (this implementation finalises the
// frame immediately once spill slots are known, ahead of the original
// seven-stage sketch's later frame-finalisation step, since this
// devirtualizer never grows the frame further -- see DESIGN.md).
func Devirtualize(ctx *asmcmp.Context, frame *Frame) error {
	var rewrites []struct {
		idx    asmcmp.InstrIndex
		a0, a1 asmcmp.Operand
	}
	ctx.Walk(func(idx asmcmp.InstrIndex, in *asmcmp.Instr) bool {
		if in.Op == asmcmp.OpInlineAsm {
			if b, ok := ctx.InlineAsmAt(idx); ok {
				for i := range b.Defs {
					b.Defs[i] = resolveOperand(ctx, frame, b.Defs[i])
				}
				for i := range b.Uses {
					b.Uses[i] = resolveOperand(ctx, frame, b.Uses[i])
				}
			}
			return true
		}
		rewrites = append(rewrites, struct {
			idx    asmcmp.InstrIndex
			a0, a1 asmcmp.Operand
		}{idx, resolveOperand(ctx, frame, in.Args[0]), resolveOperand(ctx, frame, in.Args[1])})
		return true
	})

	for _, r := range rewrites {
		in, _ := ctx.Get(r.idx)
		in.Args[0], in.Args[1] = r.a0, r.a1
		if needsMemoryLegalisation(in.Op, r.a0, r.a1) {
			if err := legalizeTwoMemoryOperands(ctx, r.idx, in); err != nil {
				return err
			}
		}
	}
	return nil
}

// needsMemoryLegalisation reports whether op's two resolved operands
// include two memory references, which no instruction in asmcmp's opcode
// set can encode directly (x86-64 allows at most one memory operand per
// instruction).
func needsMemoryLegalisation(op asmcmp.Op, a0, a1 asmcmp.Operand) bool {
	switch op {
	case asmcmp.OpNop, asmcmp.OpJmp, asmcmp.OpJcc, asmcmp.OpCall, asmcmp.OpRet, asmcmp.OpLeave, asmcmp.OpInlineAsm:
		return false
	default:
		return a0.Kind == asmcmp.OperandMemory && a1.Kind == asmcmp.OperandMemory
	}
}

// legalizeTwoMemoryOperands inserts `mov scratch, arg1` immediately
// before idx and rewrites arg1 to reference the scratch register instead,
// picking the GP or SSE scratch per the instruction's operand class.
func legalizeTwoMemoryOperands(ctx *asmcmp.Context, idx asmcmp.InstrIndex, in *asmcmp.Instr) error {
	scratch := gpScratch
	if single, double := isFloatOp(in.Op); single || double {
		scratch = sseScratch
	}
	scratchReg := asmcmp.Reg(asmcmp.PhysicalReg(scratch))
	if _, err := ctx.InsertBefore(idx, asmcmp.OpMovRM, scratchReg, in.Args[1], asmcmp.DefaultSideEffects(asmcmp.OpMovRM)); err != nil {
		return err
	}
	in.Args[1] = scratchReg
	return nil
}

// isFloatOp reports whether op operates on single- or double-precision
// SSE operands (mutually exclusive; both false for a GP/X87 op).
func isFloatOp(op asmcmp.Op) (single, double bool) {
	switch op {
	case asmcmp.OpAddSS, asmcmp.OpSubSS, asmcmp.OpMulSS, asmcmp.OpDivSS, asmcmp.OpMovSS:
		return true, false
	case asmcmp.OpAddSD, asmcmp.OpSubSD, asmcmp.OpMulSD, asmcmp.OpDivSD, asmcmp.OpMovSD:
		return false, true
	default:
		return false, false
	}
}
