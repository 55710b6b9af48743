package passes

import "github.com/sourcehut-mirrors/kefir-sub015/internal/ssa"

// tailCallPass implements spec §4.5's tail-call marking: when a block's
// terminator is `return(invoke(f, args))` -- an invoke instruction whose
// sole use is the block's own return, with no instruction between the
// invoke and the return -- stamp the invoke with a tail-call marker. The
// codegen lowering (internal/codegen/amd64/lower.go) does not read this
// marker and lowers every OpInvoke as a call. Grounded on the teacher's compile/ssa/optimize.go terminal-call
// detection, generalized from the teacher's single hardwired shape to the
// full closed Op set's OpInvoke/OpReturn pair.
//
// No local-variable-escape check is run here beyond requiring the invoke
// to be the last non-terminator instruction in its block, and the
// stack-frame model (internal/codegen/amd64) makes no such check either.
type tailCallPass struct{}

func (tailCallPass) Name() string { return "tail-call" }

func (tailCallPass) Apply(fn *ssa.Func, _ Config) (Result, error) {
	changed := false
	for _, bid := range fn.Blocks() {
		b := fn.Block(bid)
		ret := fn.Instr(b.Terminator)
		if ret == nil || ret.Op != ssa.OpReturn || len(ret.Args) != 1 {
			continue
		}
		if len(b.Instrs) == 0 {
			continue
		}
		last := fn.Instr(b.Instrs[len(b.Instrs)-1])
		if last == nil || last.Op != ssa.OpInvoke {
			continue
		}
		if ret.Args[0] != last.ID {
			continue
		}
		if fn.UseCount(last.ID) != 1 {
			continue
		}
		if last.Params.MemFlags&tailCallFlag != 0 {
			continue
		}
		last.Params.MemFlags |= tailCallFlag
		changed = true
	}
	return Result{Changed: changed}, nil
}

// tailCallFlag is the MemFlags bit this pass sets on a qualifying invoke
// in place of a separate OpTailCallMarker instruction, since the marker is
// a property of the call site and not an independent value. Nothing in
// codegen reads it.
const tailCallFlag uint32 = 1 << 31
