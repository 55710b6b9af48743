package amd64

import (
	"github.com/sourcehut-mirrors/kefir-sub015/internal/asmcmp"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/utils"
)

// blockSpan is one label-delimited region of the linear asmcmp instruction
// list -- the unit liveness's block-level gen/kill/in/out dataflow runs
// over, reconstructed from the OpNop label markers lower.go leaves behind
// since asmcmp's Context has no block structure of its own (spec §3.5
// deliberately keeps asmcmp block-agnostic; only the lowering stage knows
// block boundaries).
type blockSpan struct {
	label   string
	instrs  []asmcmp.InstrIndex
	succs   []string
	fallsThrough bool
}

// splitBlocks reconstructs blockSpans by walking ctx in list order and
// starting a new span at every OpNop whose arg0 is a label (lower.go's
// block-entry marker).
func splitBlocks(ctx *asmcmp.Context) []*blockSpan {
	var spans []*blockSpan
	var cur *blockSpan
	ctx.Walk(func(idx asmcmp.InstrIndex, in *asmcmp.Instr) bool {
		if in.Op == asmcmp.OpNop && in.Args[0].Kind == asmcmp.OperandImmLabel {
			cur = &blockSpan{label: in.Args[0].Label}
			spans = append(spans, cur)
			return true
		}
		if cur == nil {
			cur = &blockSpan{label: ""}
			spans = append(spans, cur)
		}
		cur.instrs = append(cur.instrs, idx)
		return true
	})
	for i, s := range spans {
		if len(s.instrs) == 0 {
			continue
		}
		last, _ := ctx.Get(s.instrs[len(s.instrs)-1])
		switch last.Op {
		case asmcmp.OpJmp:
			s.succs = []string{last.Args[0].Label}
		case asmcmp.OpJcc:
			s.succs = []string{last.Args[0].Label}
			if i+1 < len(spans) {
				s.succs = append(s.succs, spans[i+1].label)
			}
		case asmcmp.OpRet:
			// no successors
		default:
			if i+1 < len(spans) {
				s.succs = []string{spans[i+1].label}
				s.fallsThrough = true
			}
		}
	}
	return spans
}

// InstrDefUse extracts the virtual-register def/use sets of the
// instruction at idx, per asmcmp's two-operand convention (arg0 is both
// destination and first source for any opcode that writes one). OpInlineAsm
// instead reports the explicit Defs/Uses recorded on its InlineAsmBinding.
func InstrDefUse(ctx *asmcmp.Context, idx asmcmp.InstrIndex) (defs, uses []asmcmp.VRegID) {
	in, live := ctx.Get(idx)
	if !live {
		return nil, nil
	}
	vregsIn := func(o asmcmp.Operand) []asmcmp.VRegID {
		switch o.Kind {
		case asmcmp.OperandReg:
			if o.Reg.Virtual {
				return []asmcmp.VRegID{o.Reg.VReg}
			}
		case asmcmp.OperandMemory:
			var out []asmcmp.VRegID
			if o.Mem.HasBase && o.Mem.Base.Virtual {
				out = append(out, o.Mem.Base.VReg)
			}
			if o.Mem.HasIndex && o.Mem.Index.Virtual {
				out = append(out, o.Mem.Index.VReg)
			}
			return out
		}
		return nil
	}

	switch in.Op {
	case asmcmp.OpInlineAsm:
		if b, ok := ctx.InlineAsmAt(idx); ok {
			for _, o := range b.Defs {
				defs = append(defs, vregsIn(o)...)
			}
			for _, o := range b.Uses {
				uses = append(uses, vregsIn(o)...)
			}
		}
	case asmcmp.OpNop, asmcmp.OpJmp, asmcmp.OpJcc, asmcmp.OpRet, asmcmp.OpLeave, asmcmp.OpCall:
		// no vreg-typed operands (labels/none); call args travel through
		// explicit pushes, already accounted for at their own OpPush site.
	case asmcmp.OpCmp, asmcmp.OpTest:
		uses = append(uses, vregsIn(in.Args[0])...)
		uses = append(uses, vregsIn(in.Args[1])...)
	case asmcmp.OpSetCC, asmcmp.OpPop:
		defs = append(defs, vregsIn(in.Args[0])...)
	case asmcmp.OpPush:
		uses = append(uses, vregsIn(in.Args[0])...)
	case asmcmp.OpMovMR:
		uses = append(uses, vregsIn(in.Args[0])...) // memory base/index
		uses = append(uses, vregsIn(in.Args[1])...)
	case asmcmp.OpMovRM, asmcmp.OpLea:
		defs = append(defs, vregsIn(in.Args[0])...)
		uses = append(uses, vregsIn(in.Args[1])...)
	case asmcmp.OpNot, asmcmp.OpNeg:
		defs = append(defs, vregsIn(in.Args[0])...)
		uses = append(uses, vregsIn(in.Args[0])...)
	case asmcmp.OpMovRR, asmcmp.OpMovSS, asmcmp.OpMovSD,
		asmcmp.OpCvtSI2SS, asmcmp.OpCvtSI2SD, asmcmp.OpCvtTSS2SI, asmcmp.OpCvtTSD2SI:
		defs = append(defs, vregsIn(in.Args[0])...)
		uses = append(uses, vregsIn(in.Args[1])...)
	default:
		// Two-operand arithmetic/logic (add/sub/imul/idiv/and/or/xor/
		// shl/shr/sar and the SS/SD float variants): arg0 is both a
		// source and the destination.
		defs = append(defs, vregsIn(in.Args[0])...)
		uses = append(uses, vregsIn(in.Args[0])...)
		uses = append(uses, vregsIn(in.Args[1])...)
	}
	return defs, uses
}

// LivenessResult is the per-block and per-instruction liveness information
// stage 3 produces for stage 4 (register allocation) to build intervals
// from.
type LivenessResult struct {
	spans  []*blockSpan
	liveIn map[string]*utils.BitMap
	liveOut map[string]*utils.BitMap
}

// ComputeLiveness runs the classic backward gen/kill fixpoint (spec §4.7
// stage 3), mirroring the teacher's computeGenKillMap/computeLiveInOutMap
// shape but keyed by label instead of LIR block-int-id since asmcmp has no
// integer block ids of its own.
func ComputeLiveness(ctx *asmcmp.Context) *LivenessResult {
	spans := splitBlocks(ctx)
	n := ctx.VRegs.Len()

	gen := make(map[string]*utils.BitMap, len(spans))
	kill := make(map[string]*utils.BitMap, len(spans))
	for _, s := range spans {
		g := utils.NewBitMap(n)
		k := utils.NewBitMap(n)
		for _, idx := range s.instrs {
			defs, uses := InstrDefUse(ctx, idx)
			for _, u := range uses {
				if !k.IsSet(int(u)) {
					g.Set(int(u))
				}
			}
			for _, d := range defs {
				k.Set(int(d))
			}
		}
		gen[s.label] = g
		kill[s.label] = k
	}

	liveIn := make(map[string]*utils.BitMap, len(spans))
	liveOut := make(map[string]*utils.BitMap, len(spans))
	for _, s := range spans {
		liveIn[s.label] = utils.NewBitMap(n)
		liveOut[s.label] = utils.NewBitMap(n)
	}

	changed := true
	for changed {
		changed = false
		for i := len(spans) - 1; i >= 0; i-- {
			s := spans[i]
			out := liveOut[s.label]
			for _, succ := range s.succs {
				if out.Unite(liveIn[succ]) {
					changed = true
				}
			}
			in := out.Copy()
			in.Remove(kill[s.label])
			in.Unite(gen[s.label])
			if liveIn[s.label].SetFrom(in) {
				changed = true
			}
		}
	}

	return &LivenessResult{spans: spans, liveIn: liveIn, liveOut: liveOut}
}
