package passes

import (
	"fmt"

	"github.com/sourcehut-mirrors/kefir-sub015/internal/ssa"
)

// gvnPass implements spec §4.5's global value numbering: canonicalise
// commutative operations by operand-id order, then hash (opcode,
// operand-ids, immediate) and elect a representative. Value numbering is
// local (intra-block) unless the dominator tree shows the candidate
// representative's block dominates the duplicate's block, in which case
// the dominating instruction is reused across blocks too. Grounded on the
// teacher's compile/ssa/optimize.go hash() scaffold, generalized from a
// stub into a working table keyed across the whole function and gated by
// BuildDomTree instead of only ever comparing within one block.
type gvnPass struct{}

func (gvnPass) Name() string { return "gvn" }

// excludedFromGVN reports opcodes that must never be value-numbered: pinned
// (side-effecting) and terminator ops obviously, plus alloc-local (each
// allocation names a distinct storage location even with identical
// parameters), phi (already the join point, not a candidate for merging
// with a non-phi value), load (may observe an intervening store), and
// invoke (a call's result depends on visible side effects, not just its
// argument list).
func excludedFromGVN(op ssa.Op) bool {
	if ssa.IsPinned(op) || ssa.IsTerminator(op) {
		return true
	}
	switch op {
	case ssa.OpAllocLocal, ssa.OpPhi, ssa.OpLoad, ssa.OpInvoke:
		return true
	}
	return false
}

func (gvnPass) Apply(fn *ssa.Func, _ Config) (Result, error) {
	dt := ssa.BuildDomTree(fn)
	table := make(map[string]ssa.InstrID)
	changed := false

	for _, bid := range fn.Blocks() {
		b := fn.Block(bid)
		for _, iid := range append([]ssa.InstrID(nil), b.Instrs...) {
			in := fn.Instr(iid)
			if in == nil || excludedFromGVN(in.Op) {
				continue
			}

			args := append([]ssa.InstrID(nil), in.Args...)
			if ssa.IsCommutative(in.Op) && len(args) == 2 && args[1] < args[0] {
				args[0], args[1] = args[1], args[0]
			}
			key := canonicalKey(in.Op, args, in.Params)

			if existing, ok := table[key]; ok {
				existingIn := fn.Instr(existing)
				if existingIn != nil && (existingIn.Block == bid || dt.Dominates(existingIn.Block, bid)) {
					fn.ReplaceUses(iid, existing)
					if fn.UseCount(iid) == 0 {
						_ = fn.DropInstruction(iid)
					}
					changed = true
					continue
				}
			}
			table[key] = iid
		}
	}
	return Result{Changed: changed}, nil
}

func canonicalKey(op ssa.Op, args []ssa.InstrID, p ssa.Params) string {
	return fmt.Sprintf("%d|%v|%d|%f|%d|%d|%s", op, args, p.ImmInt, p.ImmFloat, p.TypeRef, p.Width, p.SymbolRef)
}
