package ssa

import (
	"github.com/sourcehut-mirrors/kefir-sub015/internal/errkind"
)

// Listener receives code-container mutation events (spec §3.4: "An
// optional event listener receives instruction-added / instruction-removed
// / operand-changed callbacks. The debug-info tracker subscribes..."). A
// container has at most one listener, matching spec §9's "narrow
// handler-table recorded on the container" guidance over general observer
// registration.
type Listener interface {
	OnInstructionAdded(id InstrID)
	OnInstructionRemoved(id InstrID)
	OnOperandChanged(user InstrID, old, new InstrID)
}

// Func is an optimizer function: the SSA code container plus its analysis
// side-tables (spec §3.4). All cross-references are small integer ids, per
// spec §9.
type Func struct {
	Name  string
	Entry BlockID

	blocks      map[BlockID]*Block
	blockOrder  []BlockID
	nextBlockID BlockID

	instrs      map[InstrID]*Instruction
	nextInstrID InstrID

	// uses maps a defining instruction id to the set of instruction ids
	// that currently reference it as an operand -- the use-def index.
	uses map[InstrID]map[InstrID]bool

	listener Listener

	Debug   *DebugInfo
	Inlines *InlineTracker

	// InlineAsms holds the structured §4.8 inline-asm payload for each
	// OpInlineAsm instruction, keyed by instruction id; see SetInlineAsm.
	InlineAsms map[InstrID]*InlineAsmInfo
}

// NewFunc creates an empty optimizer function with no blocks.
func NewFunc(name string) *Func {
	f := &Func{
		Name:   name,
		Entry:  NoBlock,
		blocks: make(map[BlockID]*Block),
		instrs: make(map[InstrID]*Instruction),
		uses:   make(map[InstrID]map[InstrID]bool),
	}
	f.Debug = newDebugInfo()
	f.Inlines = newInlineTracker()
	f.listener = f.Debug
	return f
}

// SetListener installs a listener, replacing any previous one. Passing nil
// disables callbacks. internal/ssa wires the function's own DebugInfo
// tracker as the default listener at construction time; callers that need
// a different listener must chain through it explicitly.
func (f *Func) SetListener(l Listener) { f.listener = l }

func (f *Func) emitAdded(id InstrID) {
	if f.listener != nil {
		f.listener.OnInstructionAdded(id)
	}
}

func (f *Func) emitRemoved(id InstrID) {
	if f.listener != nil {
		f.listener.OnInstructionRemoved(id)
	}
}

func (f *Func) emitOperandChanged(user InstrID, old, new InstrID) {
	if f.listener != nil {
		f.listener.OnOperandChanged(user, old, new)
	}
}

// NewBlock creates an empty, unterminated block with no terminator (spec
// §4.4: "creates an empty block with no terminator").
func (f *Func) NewBlock() BlockID {
	id := f.nextBlockID
	f.nextBlockID++
	f.blocks[id] = &Block{ID: id, Kind: BlockPlain, Terminator: NoInstr}
	f.blockOrder = append(f.blockOrder, id)
	if f.Entry == NoBlock {
		f.Entry = id
		f.blocks[id].Hint = HintEntry
	}
	return id
}

// Block returns the block for id, or nil if unknown.
func (f *Func) Block(id BlockID) *Block { return f.blocks[id] }

// Instr returns the instruction for id, or nil if unknown.
func (f *Func) Instr(id InstrID) *Instruction { return f.instrs[id] }

// Blocks returns every block id in insertion order.
func (f *Func) Blocks() []BlockID {
	out := make([]BlockID, len(f.blockOrder))
	copy(out, f.blockOrder)
	return out
}

func (f *Func) addUse(def, user InstrID) {
	if def == NoInstr {
		return
	}
	s, ok := f.uses[def]
	if !ok {
		s = make(map[InstrID]bool)
		f.uses[def] = s
	}
	s[user] = true
}

func (f *Func) removeUse(def, user InstrID) {
	if s, ok := f.uses[def]; ok {
		delete(s, user)
	}
}

// Uses returns the instruction ids currently using instr as an operand
// (spec §4.4 "instr-use-iterator"; returned as a snapshot slice here since
// Go's map iteration already invalidates under concurrent mutation --
// taking a snapshot gives callers the "safe against concurrent removal of
// the user" guarantee the spec asks for without a bespoke iterator type).
func (f *Func) Uses(instr InstrID) []InstrID {
	s := f.uses[instr]
	out := make([]InstrID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

// UseCount reports how many instructions use instr.
func (f *Func) UseCount(instr InstrID) int { return len(f.uses[instr]) }

// AppendInstruction appends a new instruction before the block's
// terminator (spec §4.4). Appending a terminator opcode to a block that
// already has one fails with invalid-state.
func (f *Func) AppendInstruction(block BlockID, op Op, args []InstrID, params Params) (InstrID, error) {
	b, ok := f.blocks[block]
	if !ok {
		return NoInstr, errkind.New(errkind.KindInvalidParameter, "unknown block %d", block)
	}
	if IsTerminator(op) && b.HasTerminator() {
		return NoInstr, errkind.New(errkind.KindInvalidState, "block %d already has a terminator", block)
	}

	id := f.nextInstrID
	f.nextInstrID++
	argsCopy := append([]InstrID(nil), args...)
	instr := &Instruction{ID: id, Op: op, Block: block, Args: argsCopy, Params: params}
	f.instrs[id] = instr

	for _, a := range argsCopy {
		f.addUse(a, id)
	}

	if op == OpPhi {
		b.Phis = append(b.Phis, id)
	} else if IsTerminator(op) {
		b.Terminator = id
		f.retagBlockKind(b, op)
	} else {
		b.Instrs = append(b.Instrs, id)
	}

	f.emitAdded(id)
	return id, nil
}

func (f *Func) retagBlockKind(b *Block, op Op) {
	switch op {
	case OpJump:
		b.Kind = BlockGoto
	case OpBranch:
		b.Kind = BlockIf
	case OpSwitch:
		b.Kind = BlockSwitch
	case OpReturn:
		b.Kind = BlockReturn
	case OpUnreachable:
		b.Kind = BlockUnreachable
	}
}

// AddEdge records a CFG edge from -> to. The codegen/builder call this
// after appending a control-flow terminator whose Params.BlockRef(s)
// reference the target(s); it is not inferred automatically since switch
// targets are not representable in a single BlockRef field.
func (f *Func) AddEdge(from, to BlockID) {
	fb, tb := f.blocks[from], f.blocks[to]
	if fb == nil || tb == nil {
		return
	}
	fb.Succs = append(fb.Succs, to)
	tb.Preds = append(tb.Preds, from)
}

// DropInstruction removes instr from its block and the use-def index. It
// fails if instr still has uses (spec §4.4).
func (f *Func) DropInstruction(instr InstrID) error {
	in, ok := f.instrs[instr]
	if !ok {
		return errkind.New(errkind.KindInvalidParameter, "unknown instruction %d", instr)
	}
	if f.UseCount(instr) > 0 {
		return errkind.New(errkind.KindInvalidState, "cannot drop instruction %d: still has %d use(s)", instr, f.UseCount(instr))
	}
	b := f.blocks[in.Block]
	if b != nil {
		if in.IsPhi() {
			b.Phis = removeID(b.Phis, instr)
		} else if b.Terminator == instr {
			b.Terminator = NoInstr
		} else {
			b.Instrs = removeID(b.Instrs, instr)
		}
	}
	for _, a := range in.Args {
		f.removeUse(a, instr)
	}
	delete(f.instrs, instr)
	delete(f.uses, instr)
	f.emitRemoved(instr)
	return nil
}

// DropControl detaches instr's control-flow effect so a pass can
// substitute a different terminator shape in its place (spec §4.4). It
// acts only when instr is its block's terminator: the block's Terminator
// is cleared, its successor edges are removed (and the block is removed
// from every block's Preds), and its Kind is reset to BlockPlain. The
// instruction stays in the function but is no longer listed in the block.
// For any other instruction it does nothing. The caller is responsible for
// appending a replacement terminator and re-adding edges via AddEdge.
func (f *Func) DropControl(instr InstrID) error {
	in, ok := f.instrs[instr]
	if !ok {
		return errkind.New(errkind.KindInvalidParameter, "unknown instruction %d", instr)
	}
	b := f.blocks[in.Block]
	if b != nil && b.Terminator == instr {
		b.Terminator = NoInstr
		b.Succs = nil
		for _, s := range f.blocks {
			s.Preds = removeBlockID(s.Preds, in.Block)
		}
		b.Kind = BlockPlain
	}
	return nil
}

// Rewrite replaces instr's opcode, operand list and params in place,
// keeping the use-def index exact (dropping uses of any old operand no
// longer present, adding uses of any new one) without disturbing instr's
// identity -- existing uses of instr keep pointing at the same InstrID.
// Used by the constant-folding and strength-reduction passes to turn one
// operation into another cheaper or already-evaluated one.
func (f *Func) Rewrite(instr InstrID, op Op, args []InstrID, params Params) error {
	in, ok := f.instrs[instr]
	if !ok {
		return errkind.New(errkind.KindInvalidParameter, "unknown instruction %d", instr)
	}
	for _, a := range in.Args {
		f.removeUse(a, instr)
	}
	argsCopy := append([]InstrID(nil), args...)
	in.Op = op
	in.Args = argsCopy
	in.Params = params
	for _, a := range argsCopy {
		f.addUse(a, instr)
	}
	return nil
}

// RewriteToConst collapses instr in place into a constant-producing
// instruction (op must be one of the OpConst* family), dropping its old
// argument list from the use-def index.
func (f *Func) RewriteToConst(instr InstrID, op Op, params Params) error {
	return f.Rewrite(instr, op, nil, params)
}

// SetArg rewrites instr's operand at index to newVal, keeping the use-def
// index exact, without touching the instruction's opcode or its other
// operands.
func (f *Func) SetArg(instr InstrID, index int, newVal InstrID) error {
	in, ok := f.instrs[instr]
	if !ok {
		return errkind.New(errkind.KindInvalidParameter, "unknown instruction %d", instr)
	}
	if index < 0 || index >= len(in.Args) {
		return errkind.New(errkind.KindInvalidParameter, "operand index %d out of range for instruction %d", index, instr)
	}
	old := in.Args[index]
	if old == newVal {
		return nil
	}
	in.Args[index] = newVal
	f.removeUse(old, instr)
	f.addUse(newVal, instr)
	f.emitOperandChanged(instr, old, newVal)
	return nil
}

// ReplaceUses rewrites every use of old to point at new, keeping the
// use-def index exact (spec §4.4).
func (f *Func) ReplaceUses(old, new InstrID) {
	if old == new {
		return
	}
	users := f.Uses(old)
	for _, u := range users {
		in := f.instrs[u]
		if in == nil {
			continue
		}
		for i, a := range in.Args {
			if a == old {
				in.Args[i] = new
			}
		}
		f.removeUse(old, u)
		f.addUse(new, u)
		f.emitOperandChanged(u, old, new)
	}
}

// PhiSetInput adds or updates phi's input for predecessor pred (spec
// §4.4). pred must already be listed in the phi's block's Preds.
func (f *Func) PhiSetInput(phi InstrID, pred BlockID, value InstrID) error {
	in := f.instrs[phi]
	if in == nil || !in.IsPhi() {
		return errkind.New(errkind.KindInvalidParameter, "instruction %d is not a phi", phi)
	}
	b := f.blocks[in.Block]
	idx := -1
	for i, p := range b.Preds {
		if p == pred {
			idx = i
			break
		}
	}
	if idx == -1 {
		return errkind.New(errkind.KindInvalidParameter, "block %d is not a predecessor of phi %d's block", pred, phi)
	}
	for len(in.Args) <= idx {
		in.Args = append(in.Args, NoInstr)
	}
	if old := in.Args[idx]; old != NoInstr {
		f.removeUse(old, phi)
	}
	in.Args[idx] = value
	f.addUse(value, phi)
	return nil
}

// BlockInstrHead returns the first non-terminator instruction in block, or
// NoInstr if empty.
func (f *Func) BlockInstrHead(block BlockID) InstrID {
	b := f.blocks[block]
	if b == nil || len(b.Instrs) == 0 {
		return NoInstr
	}
	return b.Instrs[0]
}

// BlockInstrTail returns the terminator of block, or NoInstr if not yet
// set.
func (f *Func) BlockInstrTail(block BlockID) InstrID {
	b := f.blocks[block]
	if b == nil {
		return NoInstr
	}
	return b.Terminator
}

// Sibling returns the next instruction after instr in program order
// (following non-terminator instructions, then the terminator, then
// NoInstr). Per spec §4.4, callers that drop instr mid-traversal must fetch
// Sibling before dropping.
func (f *Func) Sibling(instr InstrID) InstrID {
	in := f.instrs[instr]
	if in == nil {
		return NoInstr
	}
	b := f.blocks[in.Block]
	if b == nil {
		return NoInstr
	}
	if in.IsPhi() {
		for i, id := range b.Phis {
			if id == instr && i+1 < len(b.Phis) {
				return b.Phis[i+1]
			}
		}
		return NoInstr
	}
	for i, id := range b.Instrs {
		if id == instr {
			if i+1 < len(b.Instrs) {
				return b.Instrs[i+1]
			}
			return b.Terminator
		}
	}
	if instr == b.Terminator {
		return NoInstr
	}
	return NoInstr
}

// ContainerIter begins iteration over blocks in insertion order; it
// returns the first block id, or NoBlock if the function has none.
func (f *Func) ContainerIter() (BlockID, int) {
	if len(f.blockOrder) == 0 {
		return NoBlock, 0
	}
	return f.blockOrder[0], 1
}

// ContainerNext advances iteration state (the int cursor returned by
// ContainerIter/ContainerNext) and returns the next block, or (NoBlock,
// cursor) at end.
func (f *Func) ContainerNext(cursor int) (BlockID, int) {
	if cursor >= len(f.blockOrder) {
		return NoBlock, cursor
	}
	id := f.blockOrder[cursor]
	return id, cursor + 1
}

// DeleteBlock forcibly removes block and every instruction it owns,
// regardless of remaining use count, and severs it from the CFG (removing
// it from any remaining successor's Preds; phi inputs in those successors
// are left unchanged). This is reserved for
// whole-block removal of a block already proven unreachable from entry
// (dead-code elimination, spec §4.5) -- ordinary single-instruction removal
// must go through DropInstruction's use-count check instead.
func (f *Func) DeleteBlock(id BlockID) {
	b, ok := f.blocks[id]
	if !ok {
		return
	}
	all := append(append([]InstrID(nil), b.Phis...), b.Instrs...)
	if b.Terminator != NoInstr {
		all = append(all, b.Terminator)
	}
	for _, iid := range all {
		in := f.instrs[iid]
		if in == nil {
			continue
		}
		for _, a := range in.Args {
			f.removeUse(a, iid)
		}
		delete(f.instrs, iid)
		delete(f.uses, iid)
		f.emitRemoved(iid)
	}
	for _, s := range b.Succs {
		if sb, ok := f.blocks[s]; ok {
			sb.Preds = removeBlockID(sb.Preds, id)
		}
	}
	delete(f.blocks, id)
	for i, bid := range f.blockOrder {
		if bid == id {
			f.blockOrder = append(f.blockOrder[:i], f.blockOrder[i+1:]...)
			break
		}
	}
}

func removeID(s []InstrID, id InstrID) []InstrID {
	for i, v := range s {
		if v == id {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

func removeBlockID(s []BlockID, id BlockID) []BlockID {
	for i, v := range s {
		if v == id {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
