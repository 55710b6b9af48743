package passes

import "github.com/sourcehut-mirrors/kefir-sub015/internal/ssa"

// deadCodePass implements spec §4.5's dead-code pass: delete unreachable
// blocks (walked from entry), then within each remaining block delete any
// instruction with no control-side-effect and no uses, iterating to
// fixpoint. Grounded on the teacher's compile/ssa/optimize.go dce()/isPinned
// shape, generalized to the full IsPinned opcode table (spec §3.4.1).
type deadCodePass struct{}

func (deadCodePass) Name() string { return "dead-code" }

func (deadCodePass) Apply(fn *ssa.Func, _ Config) (Result, error) {
	changed := removeUnreachableBlocks(fn)
	for {
		localChanged := false
		for _, bid := range fn.Blocks() {
			b := fn.Block(bid)
			for _, iid := range append([]ssa.InstrID(nil), b.Instrs...) {
				in := fn.Instr(iid)
				if in == nil {
					continue
				}
				if ssa.IsPinned(in.Op) {
					continue
				}
				if fn.UseCount(iid) > 0 {
					continue
				}
				if err := fn.DropInstruction(iid); err != nil {
					// An instruction with remaining uses can't be here
					// (UseCount checked above), so any error is a real bug
					// worth surfacing rather than silently skipping.
					return Result{}, err
				}
				localChanged = true
			}
			for _, pid := range append([]ssa.InstrID(nil), b.Phis...) {
				if fn.UseCount(pid) > 0 {
					continue
				}
				if err := fn.DropInstruction(pid); err != nil {
					return Result{}, err
				}
				localChanged = true
			}
		}
		if !localChanged {
			break
		}
		changed = true
	}
	return Result{Changed: changed}, nil
}

func removeUnreachableBlocks(fn *ssa.Func) bool {
	reachable := map[ssa.BlockID]bool{fn.Entry: true}
	worklist := []ssa.BlockID{fn.Entry}
	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, s := range fn.Block(b).Succs {
			if !reachable[s] {
				reachable[s] = true
				worklist = append(worklist, s)
			}
		}
	}

	changed := false
	for _, bid := range fn.Blocks() {
		if reachable[bid] {
			continue
		}
		b := fn.Block(bid)
		// Drop this block's own contribution to any still-reachable
		// block's phi inputs and predecessor lists before deleting it, so
		// the surviving phi's Args stay aligned with its (shrunk) Preds.
		for _, s := range b.Succs {
			if !reachable[s] {
				continue
			}
			sb := fn.Block(s)
			for i, p := range sb.Preds {
				if p == bid {
					sb.Preds = append(sb.Preds[:i], sb.Preds[i+1:]...)
					for _, pid := range sb.Phis {
						pin := fn.Instr(pid)
						if i < len(pin.Args) {
							pin.Args = append(pin.Args[:i], pin.Args[i+1:]...)
						}
					}
					break
				}
			}
		}
		fn.DeleteBlock(bid)
		changed = true
	}
	return changed
}
