package ssa

// InstrID and BlockID are the small integer ids spec §9 requires in place
// of raw pointers: "represent as arena-allocated entities owned by the
// optimizer function, keyed by small integer ids... Never store raw
// pointers." NoInstr/NoBlock are the sentinel "absent" values.
type InstrID int
type BlockID int

const (
	NoInstr InstrID = -1
	NoBlock BlockID = -1
)

// Params is the compact parameter union every opcode carries alongside its
// operand slots (spec §3.4.1: "a compact parameter union (immediate int,
// immediate float, type-ref, block-ref, symbol-ref, memory-flags)").
type Params struct {
	ImmInt    int64
	ImmFloat  float64
	TypeRef   int
	BlockRef  BlockID
	SymbolRef string
	MemFlags  uint32

	// Width is the scalar bit-width the opcode operates at (8/16/32/64/
	// 128 for bigint-backed ops); Signed distinguishes signed/unsigned
	// variants for conversions, divisions and comparisons that share one
	// opcode across signedness (e.g. atomic fetch-ops do not need it).
	Width  int
	Signed bool
}

// Instruction is one SSA value: an operation, the block that owns it, and
// its operand list. Phi instructions store one operand per predecessor,
// aligned by index with the owning block's Preds slice.
type Instruction struct {
	ID     InstrID
	Op     Op
	Block  BlockID
	Args   []InstrID
	Params Params

	// Comment carries an optional human-readable annotation (propagated
	// into asmcmp's Comment field by the codegen lowering stage).
	Comment string
}

// IsPhi reports whether this instruction is a phi node.
func (i *Instruction) IsPhi() bool { return i.Op == OpPhi }
