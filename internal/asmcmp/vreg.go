package asmcmp

// VRegID is a virtual register's identity, drawn from asmcmp's own id
// space (spec §3.5: "virtual register (own id space)") -- distinct from
// any SSA value id or concrete-register enumeration.
type VRegID int

// VRegClass is the storage class a virtual register is destined for.
type VRegClass int

const (
	VRegGeneralPurpose VRegClass = iota
	VRegSSE
	VRegX87
	VRegFlagBit
	VRegIndirectSpillSlot
)

// PreallocHint is the allocator-facing hint recorded at vreg creation,
// before the allocator has run.
type PreallocHint int

const (
	HintPreferPhysical PreallocHint = iota
	HintPreferSpillArea
	HintMemoryOnly
)

// AssignmentKind tags which alternative of a vreg's post-allocation
// Assignment is populated.
type AssignmentKind int

const (
	AssignmentNone AssignmentKind = iota
	AssignmentPhysicalReg
	AssignmentSpillSlot
	AssignmentMemory
)

// Assignment is what the register allocator ultimately resolves a vreg
// to: a physical register id, a spill-slot index, or a direct memory
// operand (for HintMemoryOnly / indirect-spill-slot vregs that were never
// candidates for a physical register in the first place).
type Assignment struct {
	Kind          AssignmentKind
	PhysicalReg   string
	SpillSlot     int
	MemoryOperand MemOperand
}

// VRegInfo is one row of the virtual-register table (spec §3.5).
type VRegInfo struct {
	ID         VRegID
	Class      VRegClass
	Hint       PreallocHint
	Assignment Assignment
}

// VRegTable owns the id space and per-vreg metadata for one asmcmp
// Context.
type VRegTable struct {
	regs []VRegInfo
}

// New allocates a fresh virtual register and returns its id.
func (t *VRegTable) New(class VRegClass, hint PreallocHint) VRegID {
	id := VRegID(len(t.regs))
	t.regs = append(t.regs, VRegInfo{ID: id, Class: class, Hint: hint})
	return id
}

// Get returns the metadata row for id.
func (t *VRegTable) Get(id VRegID) VRegInfo { return t.regs[id] }

// SetAssignment records the allocator's decision for id.
func (t *VRegTable) SetAssignment(id VRegID, a Assignment) { t.regs[id].Assignment = a }

// Len returns the number of virtual registers allocated so far.
func (t *VRegTable) Len() int { return len(t.regs) }

// All returns every row currently in the table, in id order.
func (t *VRegTable) All() []VRegInfo { return t.regs }
