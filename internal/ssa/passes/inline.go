package passes

import "github.com/sourcehut-mirrors/kefir-sub015/internal/ssa"

// InlineCandidate names one call site eligible for inlining: the invoke
// instruction itself, the block it lives in, and the name of the callee
// function it targets.
type InlineCandidate struct {
	Block  ssa.BlockID
	Invoke ssa.InstrID
	Callee string
}

// CollectInlineCandidates walks fn looking for OpInvoke instructions whose
// target function is still eligible per fn.Inlines.CanInline, up to
// maxDepth. This is bookkeeping only (spec §3.4's "inlines map" query
// surface); no body-splicing transform exists in this module, and
// MarkInlined only records a splice made elsewhere.
func CollectInlineCandidates(fn *ssa.Func, maxDepth int) []InlineCandidate {
	var out []InlineCandidate
	for _, bid := range fn.Blocks() {
		b := fn.Block(bid)
		for _, iid := range b.Instrs {
			in := fn.Instr(iid)
			if in == nil || in.Op != ssa.OpInvoke {
				continue
			}
			callee := in.Params.SymbolRef
			if callee == "" {
				continue
			}
			if !fn.Inlines.CanInline(bid, callee, maxDepth) {
				continue
			}
			out = append(out, InlineCandidate{Block: bid, Invoke: iid, Callee: callee})
		}
	}
	return out
}

// MarkInlined records that srcBlock (believed already-inlined from
// srcFn) has now been spliced into dstBlock of dstFn, so later candidate
// collection on dstFn correctly refuses to re-inline anything already on
// that path (spec §3.4).
func MarkInlined(fn *ssa.Func, dstBlock ssa.BlockID, dstFn, srcFn string, srcBlock ssa.BlockID) {
	fn.Inlines.BlockInlinedFrom(dstBlock, dstFn, srcFn, srcBlock)
}
