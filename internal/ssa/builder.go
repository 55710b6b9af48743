package ssa

// Builder implements Braun et al., "Simple and Efficient Construction of
// SSA Form": it lets the (out-of-scope) AST->IR translator emit
// instructions block-by-block without first computing dominance frontiers,
// inserting phi nodes lazily and eliminating trivial ones on the fly. This
// generalizes the teacher's compile/ssa/graph.go GraphBuilder, which
// implements the same algorithm specialized to its own toy-language
// expression/statement shapes, to an opcode-agnostic variable/value
// mapping driven by integer variable ids instead of AST identifier nodes.
type Builder struct {
	Func *Func

	// currentDef[variable][block] is the reaching definition of variable
	// at the end of block, once known.
	currentDef map[int]map[BlockID]InstrID

	// incompletePhis[block][variable] is a phi placeholder inserted
	// because block was not yet sealed (not all predecessors known) when
	// variable was first read there.
	incompletePhis map[BlockID]map[int]InstrID

	sealed map[BlockID]bool

	varType map[int]Params // per-variable Params template for phi construction (Width/Signed/TypeRef)
}

// NewBuilder creates a builder over fn.
func NewBuilder(fn *Func) *Builder {
	return &Builder{
		Func:           fn,
		currentDef:     make(map[int]map[BlockID]InstrID),
		incompletePhis: make(map[BlockID]map[int]InstrID),
		sealed:         make(map[BlockID]bool),
		varType:        make(map[int]Params),
	}
}

// DeclareVariable records the Params template (width/signedness/type) used
// when the builder must synthesize a phi for variable.
func (bd *Builder) DeclareVariable(variable int, params Params) {
	bd.varType[variable] = params
}

// WriteVariable records value as variable's reaching definition at the end
// of block.
func (bd *Builder) WriteVariable(variable int, block BlockID, value InstrID) {
	m, ok := bd.currentDef[variable]
	if !ok {
		m = make(map[BlockID]InstrID)
		bd.currentDef[variable] = m
	}
	m[block] = value
}

// ReadVariable resolves variable's reaching definition at the end of
// block, inserting a phi (possibly trivial, possibly incomplete) if the
// value is not locally available.
func (bd *Builder) ReadVariable(variable int, block BlockID) InstrID {
	if m, ok := bd.currentDef[variable]; ok {
		if v, ok := m[block]; ok {
			return v
		}
	}
	return bd.readVariableRecursive(variable, block)
}

func (bd *Builder) readVariableRecursive(variable int, block BlockID) InstrID {
	var val InstrID
	if !bd.sealed[block] {
		// Block has predecessors not yet known: place an incomplete phi
		// placeholder to be filled in once sealed.
		phi, _ := bd.Func.AppendInstruction(block, OpPhi, nil, bd.varType[variable])
		im, ok := bd.incompletePhis[block]
		if !ok {
			im = make(map[int]InstrID)
			bd.incompletePhis[block] = im
		}
		im[variable] = phi
		val = phi
	} else if preds := bd.Func.Block(block).Preds; len(preds) == 1 {
		val = bd.ReadVariable(variable, preds[0])
	} else if len(preds) == 0 {
		// Unreachable/entry-without-writes: no value available.
		val = NoInstr
	} else {
		phi, _ := bd.Func.AppendInstruction(block, OpPhi, nil, bd.varType[variable])
		bd.WriteVariable(variable, block, phi)
		val = bd.addPhiOperands(variable, phi, block)
	}
	bd.WriteVariable(variable, block, val)
	return val
}

func (bd *Builder) addPhiOperands(variable int, phi InstrID, block BlockID) InstrID {
	for _, pred := range bd.Func.Block(block).Preds {
		v := bd.ReadVariable(variable, pred)
		_ = bd.Func.PhiSetInput(phi, pred, v)
	}
	return bd.tryRemoveTrivialPhi(phi)
}

// tryRemoveTrivialPhi collapses a phi whose non-self operands are all the
// same value (or absent) into that value, rewriting uses and recursing
// into phi users that might become trivial as a result -- the standard
// Braun-algorithm cleanup that keeps the construction from leaving
// degenerate single-input phis behind.
func (bd *Builder) tryRemoveTrivialPhi(phi InstrID) InstrID {
	in := bd.Func.Instr(phi)
	if in == nil {
		return phi
	}
	var same InstrID = NoInstr
	trivial := true
	for _, op := range in.Args {
		if op == phi || op == same {
			continue
		}
		if same != NoInstr {
			trivial = false
			break
		}
		same = op
	}
	if !trivial {
		return phi
	}
	if same == NoInstr {
		same = NoInstr // unreachable phi: leave as-is, caller holds no value
	}

	users := bd.Func.Uses(phi)
	bd.Func.ReplaceUses(phi, same)
	_ = bd.Func.DropInstruction(phi)

	for _, u := range users {
		if uin := bd.Func.Instr(u); uin != nil && uin.IsPhi() && u != phi {
			bd.tryRemoveTrivialPhi(u)
		}
	}
	return same
}

// SealBlock marks block as having all its predecessors known, filling in
// operands for any incomplete phis placed there.
func (bd *Builder) SealBlock(block BlockID) {
	if im, ok := bd.incompletePhis[block]; ok {
		for variable, phi := range im {
			bd.addPhiOperands(variable, phi, block)
		}
	}
	bd.sealed[block] = true
}
