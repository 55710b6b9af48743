package passes

import "github.com/sourcehut-mirrors/kefir-sub015/internal/ssa"

// boolSimplifyPass implements spec §4.5's boolean-op simplification:
// recognise the "branch materialises a phi of 0/1" shape the front end
// lowers `a ? 1 : 0` into, and collapse it back to the condition itself
// (arms 1/0) or its boolean negation (arms 0/1) instead of leaving a
// conditional branch and a merge phi in place. Grounded on the teacher's
// compile/ssa/optimize.go boolean-peephole cases, generalized to the
// closed Op set. Only the single-level two-predecessor diamond is
// recognised; the two-level short-circuit `&&`/`||` shape is left
// unchanged.
//
// Only the exact shape below is recognised; a block whose arms do
// anything beyond an unconditional jump to the merge block is left alone,
// matching spec §4.5's description of this as a narrow peephole rather
// than a general boolean-expression rebuilder.
type boolSimplifyPass struct{}

func (boolSimplifyPass) Name() string { return "bool-simplify" }

func (boolSimplifyPass) Apply(fn *ssa.Func, _ Config) (Result, error) {
	changed := false
	for _, bid := range fn.Blocks() {
		b := fn.Block(bid)
		for _, pid := range append([]ssa.InstrID(nil), b.Phis...) {
			if simplifyBranchPhi(fn, bid, pid) {
				changed = true
			}
		}
	}
	return Result{Changed: changed}, nil
}

// simplifyBranchPhi collapses phi in merge block m when m has exactly two
// predecessors that are empty arms jumping from one shared block whose
// terminator is Branch(cond, trueSucc, falseSucc), and the phi's inputs
// are the constants 1/0 or 0/1. Any other shape, including the two-level
// `&&`/`||` shape, is left unchanged and false is returned.
func simplifyBranchPhi(fn *ssa.Func, merge ssa.BlockID, phi ssa.InstrID) bool {
	mb := fn.Block(merge)
	in := fn.Instr(phi)
	if in == nil || !in.IsPhi() || len(in.Args) != len(mb.Preds) {
		return false
	}

	// Single-level: exactly two preds, each an unconditional jump from one
	// shared branch block.
	if len(mb.Preds) == 2 {
		trueVal, trueOK := constOperandInt(fn, in.Args[0])
		falseVal, falseOK := constOperandInt(fn, in.Args[1])
		if !trueOK || !falseOK {
			return false
		}
		branchBlock, cond, tSucc, fSucc, ok := findSharedBranch(fn, mb.Preds[0], mb.Preds[1])
		if !ok {
			return false
		}
		if tSucc != mb.Preds[0] || fSucc != mb.Preds[1] {
			return false
		}
		return rewritePhiFromCond(fn, branchBlock, phi, cond, trueVal, falseVal)
	}
	return false
}

// findSharedBranch reports whether a and b are both single-instruction
// (terminator-only) blocks that unconditionally jump to a shared
// predecessor branch block, returning that branch's condition and its
// true/false successors.
func findSharedBranch(fn *ssa.Func, a, b ssa.BlockID) (branch ssa.BlockID, cond ssa.InstrID, tSucc, fSucc ssa.BlockID, ok bool) {
	ba, bb := fn.Block(a), fn.Block(b)
	if ba == nil || bb == nil || len(ba.Preds) != 1 || len(bb.Preds) != 1 {
		return 0, 0, 0, 0, false
	}
	if ba.Preds[0] != bb.Preds[0] {
		return 0, 0, 0, 0, false
	}
	if len(ba.Phis) != 0 || len(bb.Phis) != 0 || len(ba.Instrs) != 0 || len(bb.Instrs) != 0 {
		return 0, 0, 0, 0, false
	}
	p := fn.Block(ba.Preds[0])
	term := fn.Instr(p.Terminator)
	if term == nil || term.Op != ssa.OpBranch || len(term.Args) != 1 {
		return 0, 0, 0, 0, false
	}
	// Succs[0] is the true-edge, Succs[1] the false-edge -- the order
	// AddEdge is always called in when lowering a branch (spec §3.4).
	return ba.Preds[0], term.Args[0], p.Succs[0], p.Succs[1], true
}

// rewritePhiFromCond replaces phi's uses with cond itself when the arms
// materialise (1, 0), or with a boolean negation of cond when the arms
// materialise (0, 1).
func rewritePhiFromCond(fn *ssa.Func, branchBlock ssa.BlockID, phi, cond ssa.InstrID, trueVal, falseVal int64) bool {
	if trueVal == 1 && falseVal == 0 {
		fn.ReplaceUses(phi, cond)
		if fn.UseCount(phi) == 0 {
			_ = fn.DropInstruction(phi)
		}
		return true
	}
	if trueVal == 0 && falseVal == 1 {
		negated, err := fn.AppendInstruction(branchBlock, ssa.OpBoolNot, []ssa.InstrID{cond}, ssa.Params{Width: 1})
		if err != nil {
			return false
		}
		fn.ReplaceUses(phi, negated)
		if fn.UseCount(phi) == 0 {
			_ = fn.DropInstruction(phi)
		}
		return true
	}
	return false
}
