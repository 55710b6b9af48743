package amd64

import (
	"github.com/sourcehut-mirrors/kefir-sub015/internal/asmcmp"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/ssa"
)

// phiCopy is one simultaneous froms[i] -> tos[i] assignment a predecessor
// edge must perform before falling into its successor, plus the vreg
// class it was built from (needed to pick a GP or SSE scratch register
// for a spill-to-spill copy, since a bare memory operand carries no class
// of its own).
type phiCopy struct {
	from, to asmcmp.Operand
	class    asmcmp.VRegClass
}

// ResolvePhis inserts the copies lower.go defers until after register
// allocation: selectInstr reserves a vreg for each phi result but never
// writes to it, since which predecessor's value to copy depends on where
// control arrived from, and that predecessor's asmcmp span doesn't exist
// yet during lower.go's single forward pass.
//
// Grounded on the teacher's lsra_moveResolver.go MoveResolver, generalized
// from its per-edge design to asmcmp operands. The teacher's resolve()
// exists to repair an interval that was *split* at a block boundary under
// two different assignments; this allocator never splits an interval (see
// lsra.go), so the only parallel-copy problem left here is phi-input
// placement -- still solved with the teacher's temp-register
// cycle-breaking move() shape, since two phis in the same block can name
// each other's physical registers as their own source (a swap).
func ResolvePhis(fn *ssa.Func, ctx *asmcmp.Context, valueVReg map[ssa.InstrID]asmcmp.VRegID, blockLabel map[ssa.BlockID]string, frame *Frame) error {
	spans := splitBlocks(ctx)
	byLabel := make(map[string]*blockSpan, len(spans))
	for _, s := range spans {
		byLabel[s.label] = s
	}

	for _, bid := range fn.Blocks() {
		b := fn.Block(bid)
		if len(b.Phis) == 0 {
			continue
		}
		for pi, pred := range b.Preds {
			span, ok := byLabel[blockLabel[pred]]
			if !ok || len(span.instrs) == 0 {
				continue
			}

			var copies []phiCopy
			for _, phiID := range b.Phis {
				phi := fn.Instr(phiID)
				if pi >= len(phi.Args) {
					continue
				}
				srcVReg, ok := valueVReg[phi.Args[pi]]
				if !ok {
					continue
				}
				dstVReg, ok := valueVReg[phiID]
				if !ok || srcVReg == dstVReg {
					continue
				}
				copies = append(copies, phiCopy{
					from:  resolvedOperandFor(ctx, frame, srcVReg),
					to:    resolvedOperandFor(ctx, frame, dstVReg),
					class: ctx.VRegs.Get(dstVReg).Class,
				})
			}
			if len(copies) == 0 {
				continue
			}

			at, before := insertionPoint(ctx, span)
			if err := emitParallelCopy(ctx, at, before, copies); err != nil {
				return err
			}
		}
	}
	return nil
}

// insertionPoint returns where a predecessor's phi-resolving copies
// belong: immediately before its terminator if it ends in one (so the
// copy runs before the jump/branch decision it can't affect), otherwise
// at the tail of its span (plain fallthrough).
func insertionPoint(ctx *asmcmp.Context, span *blockSpan) (at asmcmp.InstrIndex, before bool) {
	last := span.instrs[len(span.instrs)-1]
	in, _ := ctx.Get(last)
	if in.Op.IsTerminator() {
		return last, true
	}
	return last, false
}

// scratchFor returns the reserved scratch register operand for class.
func scratchFor(class asmcmp.VRegClass) asmcmp.Operand {
	if class == asmcmp.VRegSSE || class == asmcmp.VRegX87 {
		return asmcmp.Reg(asmcmp.PhysicalReg(sseScratch))
	}
	return asmcmp.Reg(asmcmp.PhysicalReg(gpScratch))
}

// emitParallelCopy inserts the simultaneous copies at the given point,
// breaking register-to-register cycles (two phis whose physical registers
// are each other's source) with a scratch register, mirroring the
// teacher's MoveResolver.move()'s cycleStart bookkeeping.
func emitParallelCopy(ctx *asmcmp.Context, at asmcmp.InstrIndex, before bool, copies []phiCopy) error {
	insert := func(op asmcmp.Op, a0, a1 asmcmp.Operand) error {
		if before {
			_, err := ctx.InsertBefore(at, op, a0, a1, asmcmp.DefaultSideEffects(op))
			return err
		}
		idx, err := ctx.InsertAfter(at, op, a0, a1, asmcmp.DefaultSideEffects(op))
		at = idx
		return err
	}

	// doCopy emits dst <- src, legalising the memory-to-memory case (a
	// spilled phi fed by a spilled source) through the class scratch
	// register, matching devirt.go's own two-memory-operand legalisation.
	doCopy := func(dst, src asmcmp.Operand, class asmcmp.VRegClass) error {
		switch {
		case dst.Kind == asmcmp.OperandReg && src.Kind == asmcmp.OperandMemory:
			return insert(asmcmp.OpMovRM, dst, src)
		case dst.Kind == asmcmp.OperandMemory && src.Kind == asmcmp.OperandReg:
			return insert(asmcmp.OpMovMR, dst, src)
		case dst.Kind == asmcmp.OperandMemory && src.Kind == asmcmp.OperandMemory:
			scratch := scratchFor(class)
			if err := insert(asmcmp.OpMovRM, scratch, src); err != nil {
				return err
			}
			return insert(asmcmp.OpMovMR, dst, scratch)
		default: // reg <- reg
			return insert(asmcmp.OpMovRR, dst, src)
		}
	}

	n := len(copies)
	done := make([]bool, n)
	regOwner := make(map[string]int, n) // physical reg name -> index of the pair whose *source* it is
	for i, c := range copies {
		if c.from.Kind == asmcmp.OperandReg && !c.from.Reg.Virtual {
			regOwner[c.from.Reg.Name] = i
		}
	}

	var moveOne func(i int, chain map[int]bool) error
	moveOne = func(i int, chain map[int]bool) error {
		if done[i] {
			return nil
		}
		if chain[i] {
			return nil
		}
		chain[i] = true

		if copies[i].to.Kind == asmcmp.OperandReg && !copies[i].to.Reg.Virtual {
			if owner, ok := regOwner[copies[i].to.Reg.Name]; ok && owner != i && !done[owner] {
				if chain[owner] {
					// Cycle: owner's source is exactly the register we're
					// about to overwrite, and owner is itself waiting on
					// us (directly or transitively) further down this
					// same chain. Save the value into scratch before it's
					// clobbered and redirect owner's eventual move to
					// read from there instead.
					scratch := scratchFor(copies[owner].class)
					if err := doCopy(scratch, copies[owner].from, copies[owner].class); err != nil {
						return err
					}
					copies[owner].from = scratch
				} else if err := moveOne(owner, chain); err != nil {
					return err
				}
			}
		}

		if err := doCopy(copies[i].to, copies[i].from, copies[i].class); err != nil {
			return err
		}
		done[i] = true
		return nil
	}

	for i := range copies {
		if err := moveOne(i, map[int]bool{}); err != nil {
			return err
		}
	}
	return nil
}
