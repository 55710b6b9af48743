package amd64

import (
	"strings"

	"github.com/sourcehut-mirrors/kefir-sub015/internal/asmcmp"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/errkind"
)

// virtualPass is one transformation over a still-virtual asmcmp.Context
// (spec §4.7 stage 2), resolved by name the same way internal/ssa/passes
// resolves optimizer passes -- generalizing the teacher's single hardwired
// Optimizer.Ideal() shape into a configurable pipeline a second time, now
// at the virtual-assembly level, per config's CodegenPipelineSpec.
type virtualPass interface {
	Name() string
	Apply(ctx *asmcmp.Context) (changed bool, err error)
}

var virtualRegistry = map[string]virtualPass{}

func registerVirtualPass(p virtualPass) { virtualRegistry[p.Name()] = p }

func init() {
	registerVirtualPass(virtualCanonPass{})
	registerVirtualPass(virtualDCEPass{})
	registerVirtualPass(devirtMemfoldPass{})
	registerVirtualPass(devirtTwoOperandPass{})
}

// VirtualPipeline is an ordered, name-resolved sequence of stage-2 passes.
type VirtualPipeline struct {
	passes []virtualPass
}

// ParseVirtualPipeline resolves a colon-separated pass-name spec (the
// shape of config.Config.CodegenPipelineSpec) into a VirtualPipeline.
func ParseVirtualPipeline(spec string) (*VirtualPipeline, error) {
	var passes []virtualPass
	for _, name := range strings.Split(spec, ":") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		p, ok := virtualRegistry[name]
		if !ok {
			return nil, errkind.New(errkind.KindNotFound, "unable to find requested codegen pipeline pass %q", name)
		}
		passes = append(passes, p)
	}
	return &VirtualPipeline{passes: passes}, nil
}

// PassNames returns the resolved pipeline's pass names in run order, for
// reporting (e.g. the CLI's selftest command).
func (p *VirtualPipeline) PassNames() []string {
	names := make([]string, len(p.passes))
	for i, pass := range p.passes {
		names[i] = pass.Name()
	}
	return names
}

// Run applies every pass in order to a fixpoint, mirroring
// internal/ssa/passes.Pipeline.Run's shape at the virtual-assembly level.
func (p *VirtualPipeline) Run(ctx *asmcmp.Context) error {
	for {
		anyChanged := false
		for _, pass := range p.passes {
			changed, err := pass.Apply(ctx)
			if err != nil {
				return errkind.Wrap(err, errkind.KindAnalysisError, "virtual pass %q failed", pass.Name())
			}
			anyChanged = anyChanged || changed
		}
		if !anyChanged {
			return nil
		}
	}
}

// virtualCanonPass removes canonically-redundant instructions a
// straightforward pattern match on asmcmp's two-operand form can spot
// without needing liveness: self-moves (mov v, v) and additive/bitwise
// identities against an immediate zero (add/sub/or/xor/shl/shr/sar v, 0),
// generalizing the teacher's const-fold/strength-reduce "identity
// simplifications" (see internal/ssa/passes/strength_reduce.go) down to
// the virtual-instruction level.
type virtualCanonPass struct{}

func (virtualCanonPass) Name() string { return "virtual-canon" }

func (virtualCanonPass) Apply(ctx *asmcmp.Context) (bool, error) {
	changed := false
	var dead []asmcmp.InstrIndex
	ctx.Walk(func(idx asmcmp.InstrIndex, in *asmcmp.Instr) bool {
		if isSelfMove(in) || isIdentityArith(in) {
			dead = append(dead, idx)
		}
		return true
	})
	for _, idx := range dead {
		if err := ctx.Remove(idx); err != nil {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}

func isSelfMove(in *asmcmp.Instr) bool {
	if in.Op != asmcmp.OpMovRR && in.Op != asmcmp.OpMovSS && in.Op != asmcmp.OpMovSD {
		return false
	}
	a0, a1 := in.Args[0], in.Args[1]
	return a0.Kind == asmcmp.OperandReg && a1.Kind == asmcmp.OperandReg && sameReg(a0.Reg, a1.Reg)
}

func sameReg(a, b asmcmp.RegRef) bool {
	if a.Virtual != b.Virtual {
		return false
	}
	if a.Virtual {
		return a.VReg == b.VReg
	}
	return a.Name == b.Name
}

func isIdentityArith(in *asmcmp.Instr) bool {
	switch in.Op {
	case asmcmp.OpAdd, asmcmp.OpSub, asmcmp.OpOr, asmcmp.OpXor, asmcmp.OpShl, asmcmp.OpShr, asmcmp.OpSar:
	default:
		return false
	}
	return in.Args[1].Kind == asmcmp.OperandImmInt && in.Args[1].ImmInt == 0
}

// virtualDCE removes an instruction whose only defined virtual register
// is never subsequently used and which carries no side effect -- each
// vreg is written exactly once (lower.go hands out a fresh one per SSA
// value), so a single backward sweep tracking which vregs are still
// needed is a complete dead-code elimination, no fixpoint required beyond
// the pipeline's own outer loop (removing one dead producer can make an
// earlier one dead in turn, which the pipeline's repeat-to-fixpoint loop
// picks up on its next iteration).
type virtualDCEPass struct{}

func (virtualDCEPass) Name() string { return "virtual-dce" }

func (virtualDCEPass) Apply(ctx *asmcmp.Context) (bool, error) {
	used := make(map[asmcmp.VRegID]bool)
	var dead []asmcmp.InstrIndex

	var order []asmcmp.InstrIndex
	ctx.Walk(func(idx asmcmp.InstrIndex, in *asmcmp.Instr) bool {
		order = append(order, idx)
		return true
	})

	for i := len(order) - 1; i >= 0; i-- {
		idx := order[i]
		in, _ := ctx.Get(idx)
		if hasSideEffects(in) || in.Op == asmcmp.OpCall || in.Op == asmcmp.OpInlineAsm || in.Op.IsTerminator() {
			_, uses := InstrDefUse(ctx, idx)
			for _, u := range uses {
				used[u] = true
			}
			continue
		}
		defs, uses := InstrDefUse(ctx, idx)
		if len(defs) > 0 && !anyUsed(defs, used) {
			dead = append(dead, idx)
			continue
		}
		for _, u := range uses {
			used[u] = true
		}
	}

	if len(dead) == 0 {
		return false, nil
	}
	for _, idx := range dead {
		if err := ctx.Remove(idx); err != nil {
			return false, err
		}
	}
	return true, nil
}

func hasSideEffects(in *asmcmp.Instr) bool {
	se := in.SideEffects
	return se.ClobbersFlags || se.ReadsMemory || se.WritesMemory || len(se.ClobberedRegs) > 0
}

func anyUsed(defs []asmcmp.VRegID, used map[asmcmp.VRegID]bool) bool {
	for _, d := range defs {
		if used[d] {
			return true
		}
	}
	return false
}

// devirtMemfoldPass and devirtTwoOperandPass are named placeholders
// resolving config.Config's default CodegenPipelineSpec entries: the
// behaviours they name (folding a resolved vreg straight into a memory
// operand, legalising two resolved memory operands) are not optional --
// x86-64 can't encode two memory operands on one instruction full stop --
// so they always run unconditionally as part of Devirtualize (stage 5)
// rather than being toggled here. They are registered so a
// CodegenPipelineSpec naming them resolves instead of failing, and do not
// themselves touch ctx.
type devirtMemfoldPass struct{}

func (devirtMemfoldPass) Name() string                        { return "devirt-memfold" }
func (devirtMemfoldPass) Apply(*asmcmp.Context) (bool, error) { return false, nil }

type devirtTwoOperandPass struct{}

func (devirtTwoOperandPass) Name() string                        { return "devirt-two-operand" }
func (devirtTwoOperandPass) Apply(*asmcmp.Context) (bool, error) { return false, nil }
