package ssa

import "github.com/sourcehut-mirrors/kefir-sub015/internal/errkind"

// Verify checks the quantified invariants spec §8 requires of every
// optimizer function:
//
//   - for every instruction i, i belongs to exactly the block it names and
//     for every operand o of i, i is in use-set(o);
//   - for every block b, phi-input-count(b, p) == 1 for each predecessor p.
//
// Dominance (def dominates use; phi args dominate their predecessor) is
// checked separately by VerifyDominance since it requires building a
// DomTree and callers may want to skip that cost in hot loops (e.g. after
// every single pass iteration vs. once at pipeline completion).
func Verify(fn *Func) error {
	for _, bid := range fn.Blocks() {
		b := fn.Block(bid)
		all := append(append([]InstrID{}, b.Phis...), b.Instrs...)
		if b.Terminator != NoInstr {
			all = append(all, b.Terminator)
		}
		for _, iid := range all {
			in := fn.Instr(iid)
			if in == nil {
				return errkind.New(errkind.KindInvalidState, "block %d references missing instruction %d", bid, iid)
			}
			if in.Block != bid {
				return errkind.New(errkind.KindInvalidState, "instruction %d claims block %d but is listed under block %d", iid, in.Block, bid)
			}
			for _, op := range in.Args {
				if op == NoInstr {
					continue
				}
				if !fn.uses[op][iid] {
					return errkind.New(errkind.KindInvalidState, "instruction %d uses %d but is missing from its use-set", iid, op)
				}
			}
		}

		for _, phi := range b.Phis {
			in := fn.Instr(phi)
			if len(in.Args) != len(b.Preds) {
				return errkind.New(errkind.KindInvalidState,
					"phi %d has %d input(s) but block %d has %d predecessor(s)", phi, len(in.Args), bid, len(b.Preds))
			}
		}
	}
	return nil
}

// VerifyDeadCodeInvariant checks spec §8's post-DCE invariant: every
// surviving non-terminator instruction either has at least one use, or has
// an observable side effect.
func VerifyDeadCodeInvariant(fn *Func) error {
	for _, bid := range fn.Blocks() {
		b := fn.Block(bid)
		for _, iid := range b.Instrs {
			in := fn.Instr(iid)
			if fn.UseCount(iid) == 0 && !IsPinned(in.Op) {
				return errkind.New(errkind.KindAnalysisError,
					"instruction %d (%s) has no uses and no side effect after dead-code elimination", iid, in.Op)
			}
		}
	}
	return nil
}
