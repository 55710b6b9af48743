package ir

import (
	"github.com/samber/lo"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/errkind"
)

// IdentifierKind classifies a named module-level entity.
type IdentifierKind int

const (
	IdentFunction IdentifierKind = iota
	IdentGlobalData
	IdentThreadLocalData
)

// IdentifierScope controls linkage visibility.
type IdentifierScope int

const (
	ScopeLocal IdentifierScope = iota
	ScopeExport
	ScopeImport
)

// Identifier is one entry of the module's name->identifier-record mapping
// (spec §3.1).
type Identifier struct {
	Name        string
	Kind        IdentifierKind
	Scope       IdentifierScope
	Alias       string // empty if this identifier is not an alias
	DebugTypeID int
	HasDebugType bool
}

// FunctionDecl is a function's declaration half: parameter/result type ids
// and variadic flag.
type FunctionDecl struct {
	Name       string
	ParamTypes []int // type-ids
	ResultType int   // type-id, TypeVoid allowed
	Variadic   bool
}

// Function is an IR function: its declaration, legacy stack-machine body
// (opaque to the optimizer core -- it is consumed by the AST->IR translator
// stage that lowers it into the optimizer's SSA form, out of this module's
// scope per spec §1), and a locals type.
type Function struct {
	Decl        FunctionDecl
	Body        []byte // legacy IR opcode stream, opaque here
	LocalsType  int    // type-id describing the function's local-variable aggregate
	Name        string // symbol-pool backed name (interned via Module.Intern)
}

// DebugEntry is one node of the debug-info side-table tree (spec §3.1).
type DebugEntry struct {
	ID         int
	Parent     int // -1 for roots
	Attributes map[string]interface{}
	Children   []int
}

// Module owns every mapping described by spec §3.1.
type Module struct {
	Identifiers map[string]*Identifier
	Types       map[int]*Type
	Functions   map[string]*Function
	Data        map[int]*Data

	stringPool []string
	internIdx  map[string]int

	DebugEntries map[int]*DebugEntry
	nextDebugID  int
	nextTypeID   int
	nextDataID   int
}

// NewModule returns an empty module ready for incremental construction by
// the (out-of-scope) AST->IR translator.
func NewModule() *Module {
	return &Module{
		Identifiers:  make(map[string]*Identifier),
		Types:        make(map[int]*Type),
		Functions:    make(map[string]*Function),
		Data:         make(map[int]*Data),
		internIdx:    make(map[string]int),
		DebugEntries: make(map[int]*DebugEntry),
	}
}

// Intern adds s to the shared string pool if not already present and
// returns its stable id. Identity comparison by pool id is the only
// comparison the optimizer and codegen ever need to perform on names
// (spec §9 "hashed containers over raw strings").
func (m *Module) Intern(s string) int {
	if id, ok := m.internIdx[s]; ok {
		return id
	}
	id := len(m.stringPool)
	m.stringPool = append(m.stringPool, s)
	m.internIdx[s] = id
	return id
}

// String resolves a previously interned string by id.
func (m *Module) String(id int) string {
	if id < 0 || id >= len(m.stringPool) {
		return ""
	}
	return m.stringPool[id]
}

// AddType registers a new type and returns its type-id.
func (m *Module) AddType(t *Type) int {
	id := m.nextTypeID
	m.nextTypeID++
	m.Types[id] = t
	return id
}

// AddFunction registers fn's identifier and body under its declaration
// name.
func (m *Module) AddFunction(fn *Function, scope IdentifierScope) error {
	if _, exists := m.Functions[fn.Decl.Name]; exists {
		return errkind.New(errkind.KindAlreadyExists, "function %q already declared", fn.Decl.Name)
	}
	m.Functions[fn.Decl.Name] = fn
	m.Identifiers[fn.Decl.Name] = &Identifier{Name: fn.Decl.Name, Kind: IdentFunction, Scope: scope}
	return nil
}

// AddData registers a new data entry and returns its data-id.
func (m *Module) AddData(d *Data, name string, scope IdentifierScope, storage Storage) int {
	id := m.nextDataID
	m.nextDataID++
	m.Data[id] = d
	kind := IdentGlobalData
	if storage == StorageThreadLocal {
		kind = IdentThreadLocalData
	}
	if name != "" {
		m.Identifiers[name] = &Identifier{Name: name, Kind: kind, Scope: scope}
	}
	return id
}

// AddDebugEntry inserts a node into the debug-info tree under parent (-1 for
// a root) and returns its id.
func (m *Module) AddDebugEntry(parent int, attrs map[string]interface{}) int {
	id := m.nextDebugID
	m.nextDebugID++
	entry := &DebugEntry{ID: id, Parent: parent, Attributes: attrs}
	m.DebugEntries[id] = entry
	if parent >= 0 {
		if p, ok := m.DebugEntries[parent]; ok {
			p.Children = append(p.Children, id)
		}
	}
	return id
}

// FunctionNames returns every declared function name, sorted, for
// deterministic iteration (e.g. by the codegen driver assembling a module in
// a stable order).
func (m *Module) FunctionNames() []string {
	names := lo.Keys(m.Functions)
	return lo.Uniq(sortedStrings(names))
}

func sortedStrings(ss []string) []string {
	out := make([]string, len(ss))
	copy(out, ss)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
