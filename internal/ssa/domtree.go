package ssa

import "github.com/sourcehut-mirrors/kefir-sub015/internal/errkind"

// DomTree is the dominator relation over a function's blocks, computed by
// the classic iterative intersect/union algorithm ("Graph-theoretic
// constructs for program flow analysis"), same approach as the teacher's
// compile/ssa/domtree.go but re-expressed over BlockID rather than *Block
// so it composes with the id-keyed container (spec §9).
type DomTree struct {
	Func *Func
	dom  map[BlockID][]BlockID
}

// Dominates reports whether a dominates b (every path from entry to b
// passes through a).
func (dt *DomTree) Dominates(a, b BlockID) bool {
	for _, d := range dt.dom[b] {
		if d == a {
			return true
		}
	}
	return false
}

// StrictlyDominates reports a sdom b: a dom b and a != b.
func (dt *DomTree) StrictlyDominates(a, b BlockID) bool {
	return dt.Dominates(a, b) && a != b
}

// ImmediatelyDominates reports a idom b.
func (dt *DomTree) ImmediatelyDominates(a, b BlockID) bool {
	return dt.StrictlyDominates(a, b) && !dt.StrictlyDominates(b, a)
}

func intersectBlocks(a, b []BlockID) []BlockID {
	if len(a) > len(b) {
		a, b = b, a
	}
	res := make([]BlockID, 0, len(a))
	for _, x := range a {
		for _, y := range b {
			if x == y {
				res = append(res, x)
				break
			}
		}
	}
	return res
}

func unionBlocks(a, b []BlockID) []BlockID {
	seen := make(map[BlockID]bool)
	for _, x := range a {
		seen[x] = true
	}
	for _, x := range b {
		seen[x] = true
	}
	res := make([]BlockID, 0, len(seen))
	for x := range seen {
		res = append(res, x)
	}
	return res
}

// BuildDomTree computes the dominator relation for fn in O(n^2) worst case.
func BuildDomTree(fn *Func) *DomTree {
	blocks := fn.Blocks()
	dom := make(map[BlockID][]BlockID, len(blocks))
	dom[fn.Entry] = []BlockID{fn.Entry}
	for _, b := range blocks {
		if b == fn.Entry {
			continue
		}
		dom[b] = blocks
	}

	changed := true
	for changed {
		changed = false
		for _, b := range blocks {
			if b == fn.Entry {
				continue
			}
			preds := fn.Block(b).Preds
			var newDom []BlockID
			if len(preds) > 0 {
				newDom = dom[preds[0]]
				for _, p := range preds[1:] {
					newDom = intersectBlocks(newDom, dom[p])
				}
			}
			newDom = unionBlocks(newDom, []BlockID{b})
			if len(newDom) != len(dom[b]) {
				changed = true
				dom[b] = newDom
			}
		}
	}
	return &DomTree{Func: fn, dom: dom}
}

// VerifyDominance checks the dominance-based SSA invariants from spec §8:
// every def dominates each of its (non-phi) uses, and every phi argument
// dominates the corresponding predecessor block.
func VerifyDominance(fn *Func) error {
	dt := BuildDomTree(fn)
	for _, bid := range fn.Blocks() {
		b := fn.Block(bid)
		for _, iid := range append(append(append([]InstrID{}, b.Phis...), b.Instrs...), b.Terminator) {
			if iid == NoInstr {
				continue
			}
			for _, user := range fn.Uses(iid) {
				uin := fn.Instr(user)
				if uin.IsPhi() {
					for idx, pred := range fn.Block(uin.Block).Preds {
						if idx >= len(uin.Args) || uin.Args[idx] != iid {
							continue
						}
						if !dt.Dominates(bid, pred) {
							return errkind.New(errkind.KindAnalysisError,
								"block %d does not dominate block %d (phi %d argument from def %d)", bid, pred, uin.ID, iid)
						}
					}
					continue
				}
				if !dt.Dominates(bid, uin.Block) {
					return errkind.New(errkind.KindAnalysisError,
						"def %d (block %d) does not dominate use %d (block %d)", iid, bid, uin.ID, uin.Block)
				}
			}
		}
	}
	return nil
}
