// Package ssa implements the optimizer's SSA-form code container: the
// instruction/block data structure, the use-def index, the dominator and
// loop-nesting analyses, debug-info/inline bookkeeping, and (in the
// sibling passes package) the transformation pipeline. See spec §3.4 and
// §4.4.
package ssa

import "fmt"

// Op is the closed opcode enum described by spec §3.4.1. Unlike the
// teacher's ssa.Op (which only covered the handful of opcodes its toy
// front-end needed), this enumerates every opcode family the spec names so
// the codegen selector table (internal/codegen/amd64) has one opcode per
// pattern to dispatch on.
type Op int

const (
	OpInvalid Op = iota

	// Constants.
	OpConstInt
	OpConstF32
	OpConstF64
	OpConstLongDouble
	OpConstStringRef
	OpConstSymbolRef

	// Memory.
	OpLoad
	OpStore
	OpAllocLocal
	OpLocalLifetimeMark

	// Integer arithmetic.
	OpIAdd
	OpISub
	OpIMul
	OpIDiv
	OpIMod
	// Float arithmetic.
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	// Bitwise / shifts.
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr   // logical right shift
	OpAShr  // arithmetic right shift
	OpNeg
	OpNot
	OpBoolNot

	// BigInt arithmetic variants (operate over a raw digit buffer operand
	// pair rather than a scalar register -- spec §4.1/§3.4.1).
	OpBigIntAdd
	OpBigIntSub
	OpBigIntMul
	OpBigIntNeg
	OpBigIntShl
	OpBigIntShr
	OpBigIntAShr

	// Conversions.
	OpIntToInt // width + signedness change, encoded in Params
	OpIntToFP
	OpFPToInt
	OpFPToFP

	// Comparisons.
	OpCmpEqI
	OpCmpNeI
	OpCmpLtS
	OpCmpLeS
	OpCmpGtS
	OpCmpGeS
	OpCmpLtU
	OpCmpLeU
	OpCmpGtU
	OpCmpGeU
	OpCmpEqF
	OpCmpNeF
	OpCmpLtF
	OpCmpLeF
	OpCmpGtF
	OpCmpGeF
	OpCmpUnordered

	// Control.
	OpJump
	OpBranch
	OpSwitch
	OpReturn
	OpInvoke
	OpInlineAsm
	OpUnreachable

	OpPhi
	OpSelect

	// Overflow-checked arithmetic: result is a (value, overflow-bool)
	// pair.
	OpSAddOverflow
	OpUAddOverflow
	OpSSubOverflow
	OpUSubOverflow
	OpSMulOverflow
	OpUMulOverflow

	// Atomics.
	OpAtomicLoad
	OpAtomicStore
	OpAtomicExchange
	OpAtomicCompareExchange
	OpAtomicFetchAdd
	OpAtomicFetchSub
	OpAtomicFetchAnd
	OpAtomicFetchOr
	OpAtomicFetchXor

	// Builtins.
	OpBuiltinClassifyType
	OpBuiltinClz
	OpBuiltinCtz
	OpBuiltinPopcount
	OpBuiltinParity
	OpBuiltinFfs
	OpBuiltinClrsb
	OpBuiltinStdcBits

	OpTailCallMarker
	OpLocalVarDebugMarker
)

// pinned marks an opcode as having an unconditional side effect: it may
// never be removed by dead-code elimination even with zero uses. Spec §4.5
// "dead-code": "an instruction with no control-side-effect and no uses is
// deleted" -- these are the ones the dead-code pass must never delete for
// having "no control-side-effect".
var pinnedOps = map[Op]bool{
	OpStore:                 true,
	OpInvoke:                true,
	OpReturn:                true,
	OpJump:                  true,
	OpBranch:                true,
	OpSwitch:                true,
	OpUnreachable:           true,
	OpInlineAsm:             true,
	OpAtomicStore:           true,
	OpAtomicExchange:        true,
	OpAtomicCompareExchange: true,
	OpAtomicFetchAdd:        true,
	OpAtomicFetchSub:        true,
	OpAtomicFetchAnd:        true,
	OpAtomicFetchOr:         true,
	OpAtomicFetchXor:        true,
	OpLocalLifetimeMark:     true,
	OpLocalVarDebugMarker:   true,
	OpTailCallMarker:        true,
}

// IsPinned reports whether op has an observable side effect that dead-code
// elimination must never strip regardless of use count.
func IsPinned(op Op) bool { return pinnedOps[op] }

// IsTerminator reports whether op ends a block's instruction stream.
func IsTerminator(op Op) bool {
	switch op {
	case OpJump, OpBranch, OpSwitch, OpReturn, OpUnreachable:
		return true
	default:
		return false
	}
}

// IsCommutative reports whether operand order does not affect the result,
// used by GVN's canonicalisation step (spec §4.5).
func IsCommutative(op Op) bool {
	switch op {
	case OpIAdd, OpIMul, OpFAdd, OpFMul, OpAnd, OpOr, OpXor,
		OpCmpEqI, OpCmpNeI, OpCmpEqF, OpCmpNeF,
		OpSAddOverflow, OpUAddOverflow, OpSMulOverflow, OpUMulOverflow:
		return true
	default:
		return false
	}
}

func (op Op) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", int(op))
}

var opNames = map[Op]string{
	OpConstInt: "const.int", OpConstF32: "const.f32", OpConstF64: "const.f64",
	OpConstLongDouble: "const.ldouble", OpConstStringRef: "const.strref", OpConstSymbolRef: "const.symref",
	OpLoad: "load", OpStore: "store", OpAllocLocal: "alloc.local", OpLocalLifetimeMark: "local.lifetime.mark",
	OpIAdd: "i.add", OpISub: "i.sub", OpIMul: "i.mul", OpIDiv: "i.div", OpIMod: "i.mod",
	OpFAdd: "f.add", OpFSub: "f.sub", OpFMul: "f.mul", OpFDiv: "f.div",
	OpAnd: "and", OpOr: "or", OpXor: "xor", OpShl: "shl", OpShr: "shr", OpAShr: "ashr",
	OpNeg: "neg", OpNot: "not", OpBoolNot: "bool.not",
	OpBigIntAdd: "bigint.add", OpBigIntSub: "bigint.sub", OpBigIntMul: "bigint.mul",
	OpBigIntNeg: "bigint.neg", OpBigIntShl: "bigint.shl", OpBigIntShr: "bigint.shr", OpBigIntAShr: "bigint.ashr",
	OpIntToInt: "conv.i2i", OpIntToFP: "conv.i2f", OpFPToInt: "conv.f2i", OpFPToFP: "conv.f2f",
	OpCmpEqI: "cmp.eq.i", OpCmpNeI: "cmp.ne.i", OpCmpLtS: "cmp.lt.s", OpCmpLeS: "cmp.le.s",
	OpCmpGtS: "cmp.gt.s", OpCmpGeS: "cmp.ge.s", OpCmpLtU: "cmp.lt.u", OpCmpLeU: "cmp.le.u",
	OpCmpGtU: "cmp.gt.u", OpCmpGeU: "cmp.ge.u",
	OpCmpEqF: "cmp.eq.f", OpCmpNeF: "cmp.ne.f", OpCmpLtF: "cmp.lt.f", OpCmpLeF: "cmp.le.f",
	OpCmpGtF: "cmp.gt.f", OpCmpGeF: "cmp.ge.f", OpCmpUnordered: "cmp.unordered",
	OpJump: "jump", OpBranch: "branch", OpSwitch: "switch", OpReturn: "return",
	OpInvoke: "invoke", OpInlineAsm: "inline.asm", OpUnreachable: "unreachable",
	OpPhi: "phi", OpSelect: "select",
	OpSAddOverflow: "sadd.overflow", OpUAddOverflow: "uadd.overflow",
	OpSSubOverflow: "ssub.overflow", OpUSubOverflow: "usub.overflow",
	OpSMulOverflow: "smul.overflow", OpUMulOverflow: "umul.overflow",
	OpAtomicLoad: "atomic.load", OpAtomicStore: "atomic.store", OpAtomicExchange: "atomic.exchange",
	OpAtomicCompareExchange: "atomic.cmpxchg",
	OpAtomicFetchAdd:        "atomic.fetch.add", OpAtomicFetchSub: "atomic.fetch.sub",
	OpAtomicFetchAnd: "atomic.fetch.and", OpAtomicFetchOr: "atomic.fetch.or", OpAtomicFetchXor: "atomic.fetch.xor",
	OpBuiltinClassifyType: "builtin.classify_type", OpBuiltinClz: "builtin.clz", OpBuiltinCtz: "builtin.ctz",
	OpBuiltinPopcount: "builtin.popcount", OpBuiltinParity: "builtin.parity", OpBuiltinFfs: "builtin.ffs",
	OpBuiltinClrsb: "builtin.clrsb", OpBuiltinStdcBits: "builtin.stdc_bits",
	OpTailCallMarker: "tail.call.marker", OpLocalVarDebugMarker: "local.var.debug.marker",
}
