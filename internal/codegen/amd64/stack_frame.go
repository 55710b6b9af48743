// Package amd64 implements the AMD64/System-V codegen core named by spec
// §4.6-§4.8: the stack-frame model, the seven-stage per-function codegen
// driver (SSA-to-asmcmp lowering, the virtual pipeline, liveness,
// register allocation, devirtualization, frame finalisation, and
// textual emission), and inline-assembly binding. Grounded on the
// teacher's compile/codegen/{lower_x86,lsra,lsra_interval,
// lsra_moveResolver,register_x86,arch_x86,asm_x86}.go, wazevo's
// backend/regalloc/api.go Function/Block/Instr interface shape, and
// original_source's kefir/codegen/amd64/stack_frame.h field set.
package amd64

import (
	"github.com/sourcehut-mirrors/kefir-sub015/internal/abiamd64"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/errkind"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/ir"
)

// FrameSizes mirrors stack_frame.h's `sizes` struct field-for-field: the
// byte footprint of each frame region before any of them are assigned an
// offset.
type FrameSizes struct {
	PreservedRegs          int64
	LocalArea              int64
	LocalAreaAlignment     int
	SpillArea              int64
	TemporaryArea          int64
	TemporaryAreaAlignment int
	VarargArea             int64
	VarargAreaAlignment    int
	AllocatedSize          int64
	TotalSize              int64
}

// FrameOffsets mirrors stack_frame.h's `offsets` struct: each region's
// byte offset from rbp, negative for anything below the saved frame
// pointer (the conventional AMD64 stack-growth direction).
type FrameOffsets struct {
	PreviousBase  int64
	PreservedRegs int64
	X87ControlWord int64
	MXCSR         int64
	LocalArea     int64
	SpillArea     int64
	TemporaryArea int64
	VarargArea    int64
	TopOfFrame    int64
}

// FrameRequirements mirrors stack_frame.h's `requirements` struct: the
// accumulated, still-growing demands codegen stages register before
// Calculate freezes them into FrameSizes/FrameOffsets.
type FrameRequirements struct {
	SpillAreaSlots         int64
	UsedRegisters          map[string]bool
	TemporaryAreaSize      int64
	TemporaryAreaAlignment int
	ResetStackPointer      bool // a VLA/alloca is present: sp varies at runtime
	Vararg                 bool
	X87ControlWordSave     bool
	MXCSRSave              bool
	FramePointer           bool
}

// Frame is the per-function stack-frame model (spec §4.6): bottom-to-top
// regions at entry are previous-base, preserved-regs, x87-control-word,
// mxcsr, local-area, spill-area, temporary-area, vararg-area,
// top-of-frame.
type Frame struct {
	Sizes        FrameSizes
	Offsets      FrameOffsets
	Requirements FrameRequirements
}

// NewFrame returns a zeroed frame with its requirements tracking set
// ready for codegen stages to accumulate into.
func NewFrame() *Frame {
	return &Frame{Requirements: FrameRequirements{UsedRegisters: make(map[string]bool)}}
}

// EnsureSpillArea grows the spill area to hold at least n eightbyte
// slots.
func (f *Frame) EnsureSpillArea(n int64) {
	if n > f.Requirements.SpillAreaSlots {
		f.Requirements.SpillAreaSlots = n
	}
}

// EnsureTemporaryArea grows the temporary area to hold at least size
// bytes aligned to align.
func (f *Frame) EnsureTemporaryArea(size int64, align int) {
	if size > f.Requirements.TemporaryAreaSize {
		f.Requirements.TemporaryAreaSize = size
	}
	if align > f.Requirements.TemporaryAreaAlignment {
		f.Requirements.TemporaryAreaAlignment = align
	}
}

// UseRegister records that a callee-saved physical register is live
// somewhere in the function body and must be preserved across the call
// by the prologue/epilogue.
func (f *Frame) UseRegister(reg string) {
	f.Requirements.UsedRegisters[reg] = true
}

// VaryingStackPointer marks the frame as containing a VLA or alloca:
// the epilogue must restore rsp from rbp rather than popping a fixed
// amount, since the compile-time frame size no longer reflects the
// runtime stack depth (spec §4.6).
func (f *Frame) VaryingStackPointer() { f.Requirements.ResetStackPointer = true }

// Vararg marks the function as variadic, which reserves the vararg save
// area in the frame layout. Prologue does not store the integer/SSE
// argument registers into that area.
func (f *Frame) Vararg() { f.Requirements.Vararg = true }

// PreserveX87ControlWord / PreserveMXCSR mark that the function's body
// mutates the x87 control word / MXCSR and the caller's value must be
// restored on return.
func (f *Frame) PreserveX87ControlWord() { f.Requirements.X87ControlWordSave = true }
func (f *Frame) PreserveMXCSR()          { f.Requirements.MXCSRSave = true }

// RequireFramePointer forces the frame to keep rbp even if the
// configuration otherwise permits omitting it (e.g. the function uses
// alloca, or debug info needs a stable frame-base register).
func (f *Frame) RequireFramePointer() { f.Requirements.FramePointer = true }

const (
	x87ControlWordSize = 2
	mxcsrSize          = 4
	eightbyteSize      = 8
)

// calleeSavedGPRs is the System-V callee-saved integer register set,
// mirroring arch_x86.go's register table restricted to the
// callee-preserved subset.
var calleeSavedGPRs = []string{"rbx", "r12", "r13", "r14", "r15"}

// Calculate computes byte sizes and offsets for every frame region from
// the accumulated Requirements, plus the local-variable area derived
// from irType's layout -- spec §4.6's `calculate(variant, ir-type,
// layout, frame) -> ok`.
func (f *Frame) Calculate(variant abiamd64.Variant, localsType *ir.Type, localsLayout *abiamd64.Layout) error {
	if variant != abiamd64.VariantSystemV {
		return errkind.New(errkind.KindInvalidParameter, "unknown ABI variant %d", variant)
	}

	var localSize int64
	localAlign := 1
	if localsType != nil && localsLayout != nil && len(localsLayout.Entries) > 0 {
		root := localsLayout.Entries[0]
		localSize = root.Size
		if root.Alignment > localAlign {
			localAlign = root.Alignment
		}
	}

	var usedRegs int64
	for _, r := range calleeSavedGPRs {
		if f.Requirements.UsedRegisters[r] {
			usedRegs++
		}
	}

	f.Sizes = FrameSizes{
		PreservedRegs:          usedRegs * eightbyteSize,
		LocalArea:              localSize,
		LocalAreaAlignment:     localAlign,
		SpillArea:              f.Requirements.SpillAreaSlots * eightbyteSize,
		TemporaryArea:          f.Requirements.TemporaryAreaSize,
		TemporaryAreaAlignment: max64(f.Requirements.TemporaryAreaAlignment, 1),
		VarargArea:             0,
	}
	if f.Requirements.Vararg {
		f.Sizes.VarargArea = int64(len(abiamd64.IntArgPool))*eightbyteSize + int64(len(abiamd64.SSEArgPool))*16
		f.Sizes.VarargAreaAlignment = 16
	}

	// Walk the regions bottom-to-top from the saved rbp (offset 0),
	// each one's offset is negative (below rbp) and aligned to its own
	// requirement, matching the region order spec §4.6 names:
	// previous-base, preserved-regs, x87-control-word, mxcsr,
	// local-area, spill-area, temporary-area, vararg-area, top-of-frame.
	var cursor int64
	f.Offsets.PreviousBase = 0
	cursor -= eightbyteSize // the pushed return address / saved rbp slot itself

	cursor -= f.Sizes.PreservedRegs
	f.Offsets.PreservedRegs = cursor

	if f.Requirements.X87ControlWordSave {
		cursor -= x87ControlWordSize
		f.Offsets.X87ControlWord = cursor
	}
	if f.Requirements.MXCSRSave {
		cursor -= mxcsrSize
		f.Offsets.MXCSR = cursor
	}

	cursor = alignDown(cursor, f.Sizes.LocalAreaAlignment)
	cursor -= f.Sizes.LocalArea
	f.Offsets.LocalArea = cursor

	cursor = alignDown(cursor, 8)
	cursor -= f.Sizes.SpillArea
	f.Offsets.SpillArea = cursor

	if f.Sizes.TemporaryArea > 0 {
		cursor = alignDown(cursor, f.Sizes.TemporaryAreaAlignment)
		cursor -= f.Sizes.TemporaryArea
	}
	f.Offsets.TemporaryArea = cursor

	if f.Sizes.VarargArea > 0 {
		cursor = alignDown(cursor, f.Sizes.VarargAreaAlignment)
		cursor -= f.Sizes.VarargArea
	}
	f.Offsets.VarargArea = cursor

	f.Sizes.AllocatedSize = -cursor
	f.Sizes.TotalSize = alignUp64(f.Sizes.AllocatedSize, 16)
	f.Offsets.TopOfFrame = 0

	return nil
}

func max64(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func alignDown(v int64, align int) int64 {
	if align <= 1 {
		return v
	}
	a := int64(align)
	return v - (((v % a) + a) % a)
}

func alignUp64(v int64, align int) int64 {
	if align <= 1 {
		return v
	}
	a := int64(align)
	return (v + a - 1) / a * a
}

// RequiresFramePointer reports whether the prologue must push/keep rbp:
// a VLA/alloca, an explicit requirement, or a configuration that hasn't
// asked to omit it.
func (f *Frame) RequiresFramePointer(omitFramePointer bool) bool {
	return f.Requirements.FramePointer || f.Requirements.ResetStackPointer || !omitFramePointer
}

// UsedCalleeSavedRegs returns the callee-saved GPRs actually referenced
// in the function body, in the fixed save/restore order the
// prologue/epilogue pair must agree on.
func (f *Frame) UsedCalleeSavedRegs() []string {
	var out []string
	for _, r := range calleeSavedGPRs {
		if f.Requirements.UsedRegisters[r] {
			out = append(out, r)
		}
	}
	return out
}
