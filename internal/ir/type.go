// Package ir implements the input data model consumed by the optimizer and
// codegen core: the IR module, the flattened IR type representation, and IR
// data (global initialisers). See spec §3.1-§3.3.
package ir

import "fmt"

// TypeCode is the closed set of IR type-entry tags (spec §3.2).
type TypeCode int

const (
	TypeNone TypeCode = iota

	// Aggregate markers.
	TypeStruct
	TypeArray
	TypeUnion

	// Fixed-width scalars.
	TypeI8
	TypeI16
	TypeI32
	TypeI64
	TypeF32
	TypeF64
	TypeComplexFloat32
	TypeComplexFloat64

	// Platform scalars.
	TypeBool
	TypeChar
	TypeShort
	TypeInt
	TypeLong
	TypeWord
	TypeLongDouble
	TypeComplexLongDouble

	TypeBitfield
)

func (c TypeCode) IsAggregate() bool {
	return c == TypeStruct || c == TypeArray || c == TypeUnion
}

func (c TypeCode) IsScalar() bool {
	return !c.IsAggregate() && c != TypeNone && c != TypeBitfield
}

func (c TypeCode) String() string {
	switch c {
	case TypeNone:
		return "none"
	case TypeStruct:
		return "struct"
	case TypeArray:
		return "array"
	case TypeUnion:
		return "union"
	case TypeI8:
		return "i8"
	case TypeI16:
		return "i16"
	case TypeI32:
		return "i32"
	case TypeI64:
		return "i64"
	case TypeF32:
		return "f32"
	case TypeF64:
		return "f64"
	case TypeComplexFloat32:
		return "cfloat32"
	case TypeComplexFloat64:
		return "cfloat64"
	case TypeBool:
		return "bool"
	case TypeChar:
		return "char"
	case TypeShort:
		return "short"
	case TypeInt:
		return "int"
	case TypeLong:
		return "long"
	case TypeWord:
		return "word"
	case TypeLongDouble:
		return "long-double"
	case TypeComplexLongDouble:
		return "clong-double"
	case TypeBitfield:
		return "bitfield"
	default:
		return fmt.Sprintf("typecode(%d)", int(c))
	}
}

// TypeEntry is one flattened node of an IR type tree (spec §3.2). Alignment
// is stored in its own field rather than packed into 8 bits of some larger
// word -- the packing described in the spec is a C-struct-layout concern
// that has no equivalent benefit in a Go slice of entries, so this is the
// one place SPEC_FULL.md's "keep the HOW" guidance yields to an idiomatic
// Go field instead of bit-packing an int.
type TypeEntry struct {
	Code      TypeCode
	Alignment int
	Atomic    bool

	// Param holds the typecode-dependent auxiliary value: child count for
	// aggregate headers, element count for arrays, and
	// (width<<32)|baseSize for bitfields.
	Param int64
}

// BitfieldWidth decodes the width component of Param for a TypeBitfield
// entry.
func (e TypeEntry) BitfieldWidth() int { return int(e.Param >> 32) }

// BitfieldBaseSize decodes the base-type size component of Param for a
// TypeBitfield entry.
func (e TypeEntry) BitfieldBaseSize() int { return int(e.Param & 0xFFFFFFFF) }

// MakeBitfieldParam packs a bitfield's width and base size the way the
// classifier and layout engine expect to read it back.
func MakeBitfieldParam(width, baseSize int) int64 {
	return (int64(width) << 32) | int64(baseSize)
}

// Type is a flat sequence of type entries forming a depth-first-flattened
// tree: struct/union headers are immediately followed by their Param child
// entries in order; array headers are followed by exactly one element
// entry; scalar entries have no children.
type Type struct {
	Entries []TypeEntry
}

// NewType constructs an empty type; entries are appended with Append.
func NewType() *Type { return &Type{} }

// Append adds one entry to the flattened vector and returns its slot index.
func (t *Type) Append(e TypeEntry) int {
	t.Entries = append(t.Entries, e)
	return len(t.Entries) - 1
}

// Len returns the number of slots (flattened entries) in the type.
func (t *Type) Len() int { return len(t.Entries) }

// At returns the entry at the given slot index.
func (t *Type) At(slot int) TypeEntry { return t.Entries[slot] }

// ChildrenOf returns the slot indices of the immediate children of the
// aggregate header at slot, walking depth-first past each child's own
// subtree so siblings (not descendants) are returned.
func (t *Type) ChildrenOf(slot int) []int {
	e := t.Entries[slot]
	switch {
	case e.Code == TypeStruct || e.Code == TypeUnion:
		children := make([]int, 0, e.Param)
		cursor := slot + 1
		for i := int64(0); i < e.Param; i++ {
			children = append(children, cursor)
			cursor = t.skipSubtree(cursor)
		}
		return children
	case e.Code == TypeArray:
		return []int{slot + 1}
	default:
		return nil
	}
}

// skipSubtree returns the slot index immediately following the subtree
// rooted at slot (i.e. slot's next sibling).
func (t *Type) skipSubtree(slot int) int {
	e := t.Entries[slot]
	switch e.Code {
	case TypeStruct, TypeUnion:
		cursor := slot + 1
		for i := int64(0); i < e.Param; i++ {
			cursor = t.skipSubtree(cursor)
		}
		return cursor
	case TypeArray:
		return t.skipSubtree(slot + 1)
	default:
		return slot + 1
	}
}

// Scalar builds a fresh one-entry type for a platform scalar on each call,
// re-expressing the teacher's ast.Type "pre-defined basic types" idiom
// (ast/type.go) over the IR's flattened-slot model instead of a
// pointer-identity type tree.
func Scalar(code TypeCode, alignment int) *Type {
	return &Type{Entries: []TypeEntry{{Code: code, Alignment: alignment}}}
}
