package amd64

import (
	"fmt"

	"github.com/sourcehut-mirrors/kefir-sub015/internal/abiamd64"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/asmcmp"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/config"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/errkind"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/ssa"
)

// CompileFunction runs the full per-function codegen driver (spec §4.7)
// over fn and returns its textual AMD64/System-V assembly:
//
//  1. Lower        -- SSA to asmcmp, in reverse-post-order; also builds
//     the synthetic locals ir.Type/abiamd64.Layout pair fn's
//     alloc-locals are classified into, for stage 5 to size the
//     local-area region from.
//  2. VirtualPipeline -- canonicalisation + dead virtual-instruction
//     elimination, per cfg.CodegenPipelineSpec.
//  3. ComputeLiveness -- block-level gen/kill/in/out dataflow.
//  4. AllocateRegisters -- linear-scan, spilling into the frame's spill
//     area as needed.
//  5. Frame.Calculate -- now that the spill area is finalised (this
//     implementation never grows the frame past this point, see
//     devirt.go's doc comment) and the locals layout is in hand, fix
//     every region's size and offset.
//  6. Devirtualize -- resolve every vreg operand to its stage-4
//     Assignment and legalise the two-memory-operand case.
//  7. ResolvePhis -- insert the parallel copies lower.go's phi handling
//     deferred, now that every operand devirtualize resolved is a
//     concrete register or frame-relative memory reference.
//  8. Prologue/Epilogue splice, then textual emission.
//
// ResolvePhis runs after Devirtualize rather than before: it calls the
// same resolvedOperandFor helper Devirtualize's own rewrite pass uses, so
// running after just means its copies are built from already-concrete
// operands instead of duplicating that resolution itself.
func CompileFunction(fn *ssa.Func, cfg config.Config) (string, error) {
	frame := NewFrame()

	ctx, valueVReg, localsType, localsLayout, err := Lower(fn)
	if err != nil {
		return "", errkind.Wrap(err, errkind.KindAnalysisError, "lowering %s", fn.Name)
	}

	vp, err := ParseVirtualPipeline(cfg.CodegenPipelineSpec)
	if err != nil {
		return "", errkind.Wrap(err, errkind.KindInvalidParameter, "codegen-pipeline-spec")
	}
	if err := vp.Run(ctx); err != nil {
		return "", errkind.Wrap(err, errkind.KindAnalysisError, "virtual pipeline on %s", fn.Name)
	}

	if err := AllocateRegisters(ctx, frame); err != nil {
		return "", errkind.Wrap(err, errkind.KindAnalysisError, "register allocation on %s", fn.Name)
	}

	if err := frame.Calculate(abiamd64.VariantSystemV, localsType, localsLayout); err != nil {
		return "", errkind.Wrap(err, errkind.KindAnalysisError, "frame layout for %s", fn.Name)
	}

	if err := Devirtualize(ctx, frame); err != nil {
		return "", errkind.Wrap(err, errkind.KindAnalysisError, "devirtualization on %s", fn.Name)
	}

	blockLabel := make(map[ssa.BlockID]string, len(fn.Blocks()))
	for _, b := range fn.Blocks() {
		blockLabel[b] = labelFor(fn, b)
	}
	if err := ResolvePhis(fn, ctx, valueVReg, blockLabel, frame); err != nil {
		return "", errkind.Wrap(err, errkind.KindAnalysisError, "phi resolution on %s", fn.Name)
	}

	if err := spliceFrameSequences(ctx, frame, cfg); err != nil {
		return "", errkind.Wrap(err, errkind.KindAnalysisError, "prologue/epilogue for %s", fn.Name)
	}

	return EmitAssembly(fn, ctx, cfg), nil
}

// labelFor reproduces lower.go's block-label naming scheme so
// ResolvePhis can look up a predecessor's span by the same key Lower
// used when it emitted that span's OpNop marker.
func labelFor(fn *ssa.Func, b ssa.BlockID) string {
	return fmt.Sprintf(".L%s_%d", fn.Name, b)
}

// spliceFrameSequences inserts Prologue immediately before the function's
// first instruction and Epilogue immediately before every OpRet, per
// spec §4.6's prologue/epilogue contract.
func spliceFrameSequences(ctx *asmcmp.Context, frame *Frame, cfg config.Config) error {
	first := ctx.First()
	if first >= 0 {
		if err := Prologue(ctx, first, frame, cfg.OmitFramePointer); err != nil {
			return err
		}
	}

	var rets []asmcmp.InstrIndex
	ctx.Walk(func(idx asmcmp.InstrIndex, in *asmcmp.Instr) bool {
		if in.Op == asmcmp.OpRet {
			rets = append(rets, idx)
		}
		return true
	})
	for _, idx := range rets {
		if err := Epilogue(ctx, idx, frame, cfg.OmitFramePointer); err != nil {
			return err
		}
	}
	return nil
}
