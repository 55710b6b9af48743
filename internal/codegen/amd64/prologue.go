package amd64

import "github.com/sourcehut-mirrors/kefir-sub015/internal/asmcmp"

// Prologue emits the function entry sequence into ctx ahead of at (via
// repeated InsertBefore, so the sequence appears in program order
// immediately before the first lowered instruction): push rbp / mov
// rbp,rsp if the frame requires a frame pointer, subtract the total
// frame size from rsp, store each used callee-saved GPR into its
// preserved-regs slot, and save the x87 control word / MXCSR if the
// frame's requirements flagged either (spec §4.6).
func Prologue(ctx *asmcmp.Context, at asmcmp.InstrIndex, f *Frame, omitFramePointer bool) error {
	needsFP := f.RequiresFramePointer(omitFramePointer)

	insert := func(op asmcmp.Op, a0, a1 asmcmp.Operand) error {
		_, err := ctx.InsertBefore(at, op, a0, a1, asmcmp.DefaultSideEffects(op))
		return err
	}

	if needsFP {
		if err := insert(asmcmp.OpPush, asmcmp.Reg(asmcmp.PhysicalReg("rbp")), asmcmp.None); err != nil {
			return err
		}
		if err := insert(asmcmp.OpMovRR, asmcmp.Reg(asmcmp.PhysicalReg("rbp")), asmcmp.Reg(asmcmp.PhysicalReg("rsp"))); err != nil {
			return err
		}
	}

	if f.Sizes.TotalSize > 0 {
		if err := insert(asmcmp.OpSub, asmcmp.Reg(asmcmp.PhysicalReg("rsp")), asmcmp.ImmInt(f.Sizes.TotalSize)); err != nil {
			return err
		}
	}

	for i, reg := range f.UsedCalleeSavedRegs() {
		mem := asmcmp.Memory(asmcmp.MemOperand{HasBase: true, Base: asmcmp.PhysicalReg("rbp"), Disp: f.Offsets.PreservedRegs + int64(i)*8})
		if err := insert(asmcmp.OpMovMR, mem, asmcmp.Reg(asmcmp.PhysicalReg(reg))); err != nil {
			return err
		}
	}

	if f.Requirements.X87ControlWordSave {
		mem := asmcmp.Memory(asmcmp.MemOperand{HasBase: true, Base: asmcmp.PhysicalReg("rbp"), Disp: f.Offsets.X87ControlWord})
		if err := insert(asmcmp.OpMovMR, mem, asmcmp.None); err != nil {
			return err
		}
	}
	if f.Requirements.MXCSRSave {
		mem := asmcmp.Memory(asmcmp.MemOperand{HasBase: true, Base: asmcmp.PhysicalReg("rbp"), Disp: f.Offsets.MXCSR})
		if err := insert(asmcmp.OpMovMR, mem, asmcmp.None); err != nil {
			return err
		}
	}
	return nil
}

// Epilogue emits the function exit sequence into ctx ahead of at (a
// return instruction): if the frame has a varying stack pointer (a VLA
// or alloca ran), reset rsp from rbp rather than trusting the
// compile-time total size; restore each preserved callee-saved GPR;
// restore the frame pointer (pop rbp) if one was established; and leave
// the return instruction itself for the caller to emit.
func Epilogue(ctx *asmcmp.Context, at asmcmp.InstrIndex, f *Frame, omitFramePointer bool) error {
	needsFP := f.RequiresFramePointer(omitFramePointer)

	insert := func(op asmcmp.Op, a0, a1 asmcmp.Operand) error {
		_, err := ctx.InsertBefore(at, op, a0, a1, asmcmp.DefaultSideEffects(op))
		return err
	}

	if f.Requirements.X87ControlWordSave {
		mem := asmcmp.Memory(asmcmp.MemOperand{HasBase: true, Base: asmcmp.PhysicalReg("rbp"), Disp: f.Offsets.X87ControlWord})
		if err := insert(asmcmp.OpMovRM, asmcmp.None, mem); err != nil {
			return err
		}
	}
	if f.Requirements.MXCSRSave {
		mem := asmcmp.Memory(asmcmp.MemOperand{HasBase: true, Base: asmcmp.PhysicalReg("rbp"), Disp: f.Offsets.MXCSR})
		if err := insert(asmcmp.OpMovRM, asmcmp.None, mem); err != nil {
			return err
		}
	}

	regs := f.UsedCalleeSavedRegs()
	for i := len(regs) - 1; i >= 0; i-- {
		mem := asmcmp.Memory(asmcmp.MemOperand{HasBase: true, Base: asmcmp.PhysicalReg("rbp"), Disp: f.Offsets.PreservedRegs + int64(i)*8})
		if err := insert(asmcmp.OpMovRM, asmcmp.Reg(asmcmp.PhysicalReg(regs[i])), mem); err != nil {
			return err
		}
	}

	if needsFP {
		if f.Requirements.ResetStackPointer {
			if err := insert(asmcmp.OpMovRR, asmcmp.Reg(asmcmp.PhysicalReg("rsp")), asmcmp.Reg(asmcmp.PhysicalReg("rbp"))); err != nil {
				return err
			}
		}
		if err := insert(asmcmp.OpLeave, asmcmp.None, asmcmp.None); err != nil {
			return err
		}
	} else if f.Sizes.TotalSize > 0 {
		if err := insert(asmcmp.OpAdd, asmcmp.Reg(asmcmp.PhysicalReg("rsp")), asmcmp.ImmInt(f.Sizes.TotalSize)); err != nil {
			return err
		}
	}
	return nil
}
