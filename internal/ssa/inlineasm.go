package ssa

// Constraint names how an inline-asm parameter binding may be satisfied
// (spec §4.8: "constraint ∈ {reg, memory, reg-or-memory, immediate,
// specific-reg(r)}").
type Constraint int

const (
	ConstraintReg Constraint = iota
	ConstraintMemory
	ConstraintRegOrMemory
	ConstraintImmediate
	ConstraintSpecificReg
)

// Direction names how the backend must treat a bound operand around the
// asm text (spec §4.8: "direction ∈ {read, write, read-write,
// load-store}").
type Direction int

const (
	DirRead Direction = iota
	DirWrite
	DirReadWrite
	DirLoadStore
)

// ParamBinding is one inline-asm parameter binding (spec §4.8).
// SlotIndex indexes the owning OpInlineAsm instruction's Args, not a raw
// InstrID, so the binding survives Args being rewritten by earlier passes.
type ParamBinding struct {
	Constraint Constraint
	Direction  Direction
	TypeRef    int
	SlotIndex  int
	Aliases    []string

	// SpecificReg names the fixed physical register an r(reg) constraint
	// pins the operand to; empty for every other constraint.
	SpecificReg string
}

// InlineAsmInfo is the full inline-asm payload for one OpInlineAsm
// instruction: template string, parameter bindings, clobber list, and
// (for `asm goto`) jump targets. Params' compact scalar union has no room
// for a variable-length structure like this, so it is kept in a side
// table on Func instead (spec §4.8).
type InlineAsmInfo struct {
	Template    string
	Params      []ParamBinding
	Clobbers    []string
	JumpTargets []BlockID
}

// SetInlineAsm attaches info to the OpInlineAsm instruction id. Callers
// building the IR must call this immediately after emitting the
// instruction; the codegen lowering stage looks it up by id.
func (f *Func) SetInlineAsm(id InstrID, info *InlineAsmInfo) {
	if f.InlineAsms == nil {
		f.InlineAsms = make(map[InstrID]*InlineAsmInfo)
	}
	f.InlineAsms[id] = info
}
