package amd64

import (
	"fmt"
	"math"

	"github.com/sourcehut-mirrors/kefir-sub015/internal/abiamd64"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/asmcmp"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/errkind"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/ir"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/ssa"
)

// Lowerer runs codegen driver stage 1 (spec §4.7): it walks fn's blocks
// in reverse-post-order, dispatches every SSA instruction to a pattern in
// selectInstr, and records the SSA-instruction-to-asmcmp-index-range
// mapping in the resulting Context's SourceMap so later diagnostics can
// walk back to the originating value.
type Lowerer struct {
	fn         *ssa.Func
	ctx        *asmcmp.Context
	valueVReg  map[ssa.InstrID]asmcmp.VRegID
	blockLabel map[ssa.BlockID]string
	localSlot  map[ssa.InstrID]int64
}

// Lower lowers fn into a fresh asmcmp.Context, returning the per-SSA-value
// virtual-register assignment alongside it for ResolvePhis to consult,
// plus the synthetic
// locals-aggregate ir.Type/abiamd64.Layout pair (nil if fn allocates no
// locals) for CompileFunction to thread into Frame.Calculate (spec §4.6's
// `calculate(variant, ir-type, layout, frame)` contract).
func Lower(fn *ssa.Func) (*asmcmp.Context, map[ssa.InstrID]asmcmp.VRegID, *ir.Type, *abiamd64.Layout, error) {
	order := reversePostOrder(fn)

	// Every alloc-local gets one eightbyte member of a synthetic struct
	// local variables live in; abiamd64.Compute then gives each member's
	// RelativeOffset within the area the same way it would for any other
	// struct field. This mirrors spec §4.6's "local-area sized from the
	// function's locals ir-type via the ABI layout engine" contract
	// instead of the flat per-local-8-bytes counter this package used to
	// just feed into the unrelated temporary area.
	var localIDs []ssa.InstrID
	for _, bid := range order {
		for _, iid := range fn.Block(bid).Instrs {
			if fn.Instr(iid).Op == ssa.OpAllocLocal {
				localIDs = append(localIDs, iid)
			}
		}
	}

	localSlot := make(map[ssa.InstrID]int64, len(localIDs))
	var localsType *ir.Type
	var localsLayout *abiamd64.Layout
	if len(localIDs) > 0 {
		localsType = ir.NewType()
		localsType.Append(ir.TypeEntry{Code: ir.TypeStruct, Param: int64(len(localIDs))})
		for range localIDs {
			localsType.Append(ir.TypeEntry{Code: ir.TypeLong, Alignment: 8})
		}
		layout, err := abiamd64.Compute(localsType, abiamd64.VariantSystemV, abiamd64.ContextStack)
		if err != nil {
			return nil, nil, nil, nil, errkind.Wrap(err, errkind.KindAnalysisError, "laying out locals for %s", fn.Name)
		}
		localsLayout = layout
		for i, iid := range localIDs {
			localSlot[iid] = layout.Entries[1+i].RelativeOffset
		}
	}

	l := &Lowerer{
		fn:         fn,
		ctx:        asmcmp.NewContext(),
		valueVReg:  make(map[ssa.InstrID]asmcmp.VRegID),
		blockLabel: make(map[ssa.BlockID]string),
		localSlot:  localSlot,
	}
	for _, b := range fn.Blocks() {
		l.blockLabel[b] = fmt.Sprintf(".L%s_%d", fn.Name, b)
	}

	for _, bid := range order {
		b := fn.Block(bid)
		l.ctx.Append(asmcmp.OpNop, asmcmp.ImmLabel(l.blockLabel[bid]), asmcmp.None, asmcmp.SideEffects{})

		for _, pid := range b.Phis {
			if err := l.selectInstr(fn.Instr(pid)); err != nil {
				return nil, nil, nil, nil, err
			}
		}
		for _, iid := range b.Instrs {
			in := fn.Instr(iid)
			if in.Op == ssa.OpAllocLocal {
				continue
			}
			if err := l.selectInstr(in); err != nil {
				return nil, nil, nil, nil, err
			}
		}
		if b.Terminator != ssa.NoInstr {
			if err := l.selectInstr(fn.Instr(b.Terminator)); err != nil {
				return nil, nil, nil, nil, err
			}
		}
	}
	return l.ctx, l.valueVReg, localsType, localsLayout, nil
}

// reversePostOrder computes a reverse-post-order block ordering via DFS,
// the order stage 1 lowers in (spec §4.7: "lower SSA to asmcmp per block
// in RPO").
func reversePostOrder(fn *ssa.Func) []ssa.BlockID {
	visited := make(map[ssa.BlockID]bool)
	var post []ssa.BlockID
	var visit func(b ssa.BlockID)
	visit = func(b ssa.BlockID) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range fn.Block(b).Succs {
			visit(s)
		}
		post = append(post, b)
	}
	visit(fn.Entry)
	for _, b := range fn.Blocks() {
		visit(b)
	}
	out := make([]ssa.BlockID, len(post))
	for i, b := range post {
		out[len(post)-1-i] = b
	}
	return out
}

func (l *Lowerer) vregFor(id ssa.InstrID, class asmcmp.VRegClass) asmcmp.Operand {
	vr, ok := l.valueVReg[id]
	if !ok {
		vr = l.ctx.VRegs.New(class, asmcmp.HintPreferPhysical)
		l.valueVReg[id] = vr
	}
	return asmcmp.Reg(asmcmp.VirtualReg(vr))
}

func (l *Lowerer) operandFor(id ssa.InstrID) asmcmp.Operand {
	in := l.fn.Instr(id)
	if in != nil && in.Op == ssa.OpConstInt {
		return asmcmp.ImmInt(in.Params.ImmInt)
	}
	return l.vregFor(id, classFor(in))
}

// addressOperand builds the memory operand a Load/Store/atomic's address
// argument resolves to. An OpAllocLocal argument names a local variable's
// own storage directly -- its slot was already sized into localsLayout by
// Lower, so this emits a frame-relative operand anchored at
// localAreaBase, a sentinel Devirtualize resolves to rbp +
// frame.Offsets.LocalArea once that offset is known (stage 5 runs after
// register allocation; Lower, stage 1, cannot compute it yet, the same
// constraint spillSlotOperand's two-phase index-then-resolve split
// already works around for spilled vregs). Any other address argument is
// an ordinary pointer value computed into a register.
func (l *Lowerer) addressOperand(id ssa.InstrID) asmcmp.MemOperand {
	if in := l.fn.Instr(id); in != nil && in.Op == ssa.OpAllocLocal {
		return asmcmp.MemOperand{HasBase: true, Base: localAreaBase, Disp: l.localSlot[id]}
	}
	return asmcmp.MemOperand{HasBase: true, Base: regRefOf(l.operandFor(id))}
}

func classFor(in *ssa.Instruction) asmcmp.VRegClass {
	if in == nil {
		return asmcmp.VRegGeneralPurpose
	}
	switch in.Op {
	case ssa.OpFAdd, ssa.OpFSub, ssa.OpFMul, ssa.OpFDiv, ssa.OpConstF32, ssa.OpConstF64,
		ssa.OpIntToFP, ssa.OpFPToFP:
		return asmcmp.VRegSSE
	case ssa.OpConstLongDouble:
		return asmcmp.VRegX87
	default:
		return asmcmp.VRegGeneralPurpose
	}
}

func (l *Lowerer) emit(op asmcmp.Op, a0, a1 asmcmp.Operand) asmcmp.InstrIndex {
	return l.ctx.Append(op, a0, a1, asmcmp.DefaultSideEffects(op))
}

// selectInstr dispatches one SSA instruction to its asmcmp pattern. Every
// opcode spec §3.4.1 names appears in exactly one case below (grouped by
// the category that shares a lowering shape); an opcode reaching the
// default case is a selector gap -- a backend bug, per spec §4.7's
// "failure: selector with no pattern for an opcode -> invalid-state".
func (l *Lowerer) selectInstr(in *ssa.Instruction) error {
	dst := func() asmcmp.Operand { return l.vregFor(in.ID, classFor(in)) }

	switch in.Op {
	case ssa.OpConstInt:
		l.emit(asmcmp.OpMovRR, dst(), asmcmp.ImmInt(in.Params.ImmInt))
	case ssa.OpConstF32:
		// Immediate float bits; the devirtualization stage rewrites this
		// into a rip-relative load from a constant pool once one exists.
		l.emit(asmcmp.OpMovRR, dst(), asmcmp.ImmInt(int64(math.Float32bits(float32(in.Params.ImmFloat)))))
	case ssa.OpConstF64, ssa.OpConstLongDouble:
		l.emit(asmcmp.OpMovRR, dst(), asmcmp.ImmInt(int64(math.Float64bits(in.Params.ImmFloat))))
	case ssa.OpConstStringRef, ssa.OpConstSymbolRef:
		l.emit(asmcmp.OpLea, dst(), asmcmp.ImmSymbol(in.Params.SymbolRef, in.Params.ImmInt))

	case ssa.OpAllocLocal:
		// handled in Lower's block loop before reaching selectInstr.

	case ssa.OpLocalLifetimeMark, ssa.OpLocalVarDebugMarker, ssa.OpTailCallMarker:
		l.emit(asmcmp.OpNop, asmcmp.None, asmcmp.None)

	case ssa.OpLoad:
		l.emit(asmcmp.OpMovRM, dst(), asmcmp.Memory(l.addressOperand(in.Args[0])))
	case ssa.OpStore:
		l.emit(asmcmp.OpMovMR, asmcmp.Memory(l.addressOperand(in.Args[0])), l.operandFor(in.Args[1]))

	case ssa.OpIAdd, ssa.OpBigIntAdd:
		l.lowerBinary(in, asmcmp.OpAdd, dst())
	case ssa.OpISub, ssa.OpBigIntSub:
		l.lowerBinary(in, asmcmp.OpSub, dst())
	case ssa.OpIMul, ssa.OpBigIntMul:
		l.lowerBinary(in, asmcmp.OpIMul, dst())
	case ssa.OpIDiv:
		l.lowerBinary(in, asmcmp.OpIDiv, dst())
	case ssa.OpIMod:
		// remainder half of idiv; the move-resolver wires rdx/rax per the
		// implicit idiv operand pair during devirtualization.
		l.lowerBinary(in, asmcmp.OpIDiv, dst())
	case ssa.OpAnd:
		l.lowerBinary(in, asmcmp.OpAnd, dst())
	case ssa.OpOr:
		l.lowerBinary(in, asmcmp.OpOr, dst())
	case ssa.OpXor:
		l.lowerBinary(in, asmcmp.OpXor, dst())
	case ssa.OpShl, ssa.OpBigIntShl:
		l.lowerBinary(in, asmcmp.OpShl, dst())
	case ssa.OpShr, ssa.OpBigIntShr:
		l.lowerBinary(in, asmcmp.OpShr, dst())
	case ssa.OpAShr, ssa.OpBigIntAShr:
		l.lowerBinary(in, asmcmp.OpSar, dst())
	case ssa.OpNeg, ssa.OpBigIntNeg:
		l.emit(asmcmp.OpMovRR, dst(), l.operandFor(in.Args[0]))
		l.emit(asmcmp.OpNeg, dst(), asmcmp.None)
	case ssa.OpNot:
		l.emit(asmcmp.OpMovRR, dst(), l.operandFor(in.Args[0]))
		l.emit(asmcmp.OpNot, dst(), asmcmp.None)
	case ssa.OpBoolNot:
		l.emit(asmcmp.OpMovRR, dst(), l.operandFor(in.Args[0]))
		l.emit(asmcmp.OpXor, dst(), asmcmp.ImmInt(1))

	case ssa.OpFAdd:
		l.lowerBinary(in, floatOp(in, asmcmp.OpAddSS, asmcmp.OpAddSD), dst())
	case ssa.OpFSub:
		l.lowerBinary(in, floatOp(in, asmcmp.OpSubSS, asmcmp.OpSubSD), dst())
	case ssa.OpFMul:
		l.lowerBinary(in, floatOp(in, asmcmp.OpMulSS, asmcmp.OpMulSD), dst())
	case ssa.OpFDiv:
		l.lowerBinary(in, floatOp(in, asmcmp.OpDivSS, asmcmp.OpDivSD), dst())

	case ssa.OpIntToInt:
		l.emit(asmcmp.OpMovRR, dst(), l.operandFor(in.Args[0]))
	case ssa.OpIntToFP:
		op := asmcmp.OpCvtSI2SD
		if in.Params.Width == 32 {
			op = asmcmp.OpCvtSI2SS
		}
		l.emit(op, dst(), l.operandFor(in.Args[0]))
	case ssa.OpFPToInt:
		op := asmcmp.OpCvtTSD2SI
		if in.Params.Width == 32 {
			op = asmcmp.OpCvtTSS2SI
		}
		l.emit(op, dst(), l.operandFor(in.Args[0]))
	case ssa.OpFPToFP:
		l.emit(asmcmp.OpMovSD, dst(), l.operandFor(in.Args[0]))

	case ssa.OpCmpEqI, ssa.OpCmpNeI, ssa.OpCmpLtS, ssa.OpCmpLeS, ssa.OpCmpGtS, ssa.OpCmpGeS,
		ssa.OpCmpLtU, ssa.OpCmpLeU, ssa.OpCmpGtU, ssa.OpCmpGeU,
		ssa.OpCmpEqF, ssa.OpCmpNeF, ssa.OpCmpLtF, ssa.OpCmpLeF, ssa.OpCmpGtF, ssa.OpCmpGeF, ssa.OpCmpUnordered:
		l.emit(asmcmp.OpCmp, l.operandFor(in.Args[0]), l.operandFor(in.Args[1]))
		l.emit(asmcmp.OpSetCC, dst(), asmcmp.ImmInt(int64(in.Op)))

	case ssa.OpJump:
		l.emit(asmcmp.OpJmp, asmcmp.ImmLabel(l.blockLabel[l.fn.Block(in.Block).Succs[0]]), asmcmp.None)
	case ssa.OpBranch:
		l.emit(asmcmp.OpTest, l.operandFor(in.Args[0]), l.operandFor(in.Args[0]))
		succs := l.fn.Block(in.Block).Succs
		l.emit(asmcmp.OpJcc, asmcmp.ImmLabel(l.blockLabel[succs[0]]), asmcmp.ImmInt(0))
		l.emit(asmcmp.OpJmp, asmcmp.ImmLabel(l.blockLabel[succs[1]]), asmcmp.None)
	case ssa.OpSwitch:
		for _, s := range l.fn.Block(in.Block).Succs {
			l.emit(asmcmp.OpJcc, asmcmp.ImmLabel(l.blockLabel[s]), asmcmp.ImmInt(0))
		}
	case ssa.OpReturn:
		if len(in.Args) == 1 {
			l.emit(asmcmp.OpMovRR, asmcmp.Reg(asmcmp.PhysicalReg("rax")), l.operandFor(in.Args[0]))
		}
		l.emit(asmcmp.OpRet, asmcmp.None, asmcmp.None)
	case ssa.OpInvoke:
		// Argument placement into the System-V register/stack pools is
		// finalized by the devirtualization stage (it has the callee's
		// abiamd64.FunctionLayout in hand); here each argument is simply
		// pushed in reverse so devirt.go has a uniform shape to rewrite.
		for i := len(in.Args) - 1; i >= 0; i-- {
			l.emit(asmcmp.OpPush, l.operandFor(in.Args[i]), asmcmp.None)
		}
		l.emit(asmcmp.OpCall, asmcmp.ImmSymbol(in.Params.SymbolRef, 0), asmcmp.None)
		l.emit(asmcmp.OpMovRR, dst(), asmcmp.Reg(asmcmp.PhysicalReg("rax")))
	case ssa.OpInlineAsm:
		l.lowerInlineAsm(in)
	case ssa.OpUnreachable:
		l.emit(asmcmp.OpNop, asmcmp.None, asmcmp.None)

	case ssa.OpPhi:
		// Resolved by the move-resolver at predecessor-edge boundaries
		// (ResolvePhis, after devirtualization), not at the phi's own site; still
		// needs a vreg reserved up front so uses within the block see one.
		dst()
	case ssa.OpSelect:
		l.emit(asmcmp.OpMovRR, dst(), l.operandFor(in.Args[1]))
		l.emit(asmcmp.OpTest, l.operandFor(in.Args[0]), l.operandFor(in.Args[0]))
		l.emit(asmcmp.OpSetCC, dst(), asmcmp.ImmInt(0))

	case ssa.OpSAddOverflow, ssa.OpUAddOverflow:
		l.lowerBinary(in, asmcmp.OpAdd, dst())
	case ssa.OpSSubOverflow, ssa.OpUSubOverflow:
		l.lowerBinary(in, asmcmp.OpSub, dst())
	case ssa.OpSMulOverflow, ssa.OpUMulOverflow:
		l.lowerBinary(in, asmcmp.OpIMul, dst())

	case ssa.OpAtomicLoad:
		l.emit(asmcmp.OpMovRM, dst(), asmcmp.Memory(l.addressOperand(in.Args[0])))
	case ssa.OpAtomicStore:
		l.emit(asmcmp.OpMovMR, asmcmp.Memory(l.addressOperand(in.Args[0])), l.operandFor(in.Args[1]))
	case ssa.OpAtomicExchange, ssa.OpAtomicCompareExchange,
		ssa.OpAtomicFetchAdd, ssa.OpAtomicFetchSub, ssa.OpAtomicFetchAnd, ssa.OpAtomicFetchOr, ssa.OpAtomicFetchXor:
		l.lowerAtomicRMW(in, dst())

	case ssa.OpBuiltinClassifyType:
		l.emit(asmcmp.OpMovRR, dst(), asmcmp.ImmInt(in.Params.ImmInt))
	case ssa.OpBuiltinClz, ssa.OpBuiltinCtz, ssa.OpBuiltinPopcount, ssa.OpBuiltinParity,
		ssa.OpBuiltinFfs, ssa.OpBuiltinClrsb, ssa.OpBuiltinStdcBits:
		l.emit(asmcmp.OpMovRR, dst(), l.operandFor(in.Args[0]))

	default:
		return errkind.New(errkind.KindInvalidState, "no asmcmp lowering pattern for opcode %s", in.Op)
	}
	return nil
}

func (l *Lowerer) lowerBinary(in *ssa.Instruction, op asmcmp.Op, dst asmcmp.Operand) {
	l.emit(asmcmp.OpMovRR, dst, l.operandFor(in.Args[0]))
	rhs := asmcmp.ImmInt(in.Params.ImmInt)
	if len(in.Args) > 1 {
		rhs = l.operandFor(in.Args[1])
	}
	l.emit(op, dst, rhs)
}

func (l *Lowerer) lowerAtomicRMW(in *ssa.Instruction, dst asmcmp.Operand) {
	mem := asmcmp.Memory(l.addressOperand(in.Args[0]))
	l.emit(asmcmp.OpMovRM, dst, mem)
	if len(in.Args) > 1 {
		var op asmcmp.Op
		switch in.Op {
		case ssa.OpAtomicFetchAdd:
			op = asmcmp.OpAdd
		case ssa.OpAtomicFetchSub:
			op = asmcmp.OpSub
		case ssa.OpAtomicFetchAnd:
			op = asmcmp.OpAnd
		case ssa.OpAtomicFetchOr:
			op = asmcmp.OpOr
		case ssa.OpAtomicFetchXor:
			op = asmcmp.OpXor
		default:
			op = asmcmp.OpMovRR
		}
		l.emit(op, dst, l.operandFor(in.Args[1]))
	}
	l.emit(asmcmp.OpMovMR, mem, dst)
}

func floatOp(in *ssa.Instruction, single, double asmcmp.Op) asmcmp.Op {
	if in.Params.Width == 32 {
		return single
	}
	return double
}

func regRefOf(o asmcmp.Operand) asmcmp.RegRef {
	if o.Kind == asmcmp.OperandReg {
		return o.Reg
	}
	return asmcmp.RegRef{}
}
