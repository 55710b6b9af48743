package abiamd64

import (
	"github.com/samber/lo"

	"github.com/sourcehut-mirrors/kefir-sub015/internal/errkind"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/ir"
)

// Variant selects the ABI the layout engine targets. System-V is the only
// one spec §4.2 names; Variant exists so an unknown value has somewhere to
// land as errkind.KindInvalidParameter rather than silently defaulting.
type Variant int

const (
	VariantSystemV Variant = iota
)

// Context selects which size/alignment a platform-dependent scalar
// (long, word, long-double) takes, per spec §4.2: the same IR type can be
// laid out differently depending on whether it sits in a stack slot, a
// global/static object, or a generic (register/temporary) context.
type Context int

const (
	ContextGeneric Context = iota
	ContextStack
	ContextGlobal
)

// Entry is one slot of a computed Layout, parallel to the input Type's
// Entries vector. Aligned reports whether RelativeOffset already sits on
// a natural-alignment boundary for Size/Alignment -- always true for
// anything this engine itself places (it never emits a misaligned
// offset), but kept as its own field per spec §4.2's output shape so a
// caller inspecting a manually-constructed Layout can tell without
// redoing the arithmetic.
type Entry struct {
	Size           int64
	Alignment      int
	Aligned        bool
	RelativeOffset int64
}

// Layout is the parallel vector of Entry produced by Compute, one per
// slot of the input ir.Type.
type Layout struct {
	Entries []Entry
}

const longDoubleSize = 16
const longDoubleAlign = 16

// scalarSizeAlign returns the (size, alignment) in bytes for a scalar
// TypeCode under the given variant/context. Platform scalars (bool, char,
// short, int, long, word, long-double) resolve to their System-V AMD64
// sizes; spec §4.2 notes "long" and "word" can vary by context in other
// ABI variants, which System-V does not exercise (LP64 throughout), so
// ctx only affects which branch a future non-SystemV variant would take.
func scalarSizeAlign(code ir.TypeCode, variant Variant, ctx Context) (int64, int, error) {
	if variant != VariantSystemV {
		return 0, 0, errkind.New(errkind.KindInvalidParameter, "unknown ABI variant %d", variant)
	}
	switch code {
	case ir.TypeBool, ir.TypeChar, ir.TypeI8:
		return 1, 1, nil
	case ir.TypeShort, ir.TypeI16:
		return 2, 2, nil
	case ir.TypeInt, ir.TypeI32, ir.TypeF32:
		return 4, 4, nil
	case ir.TypeLong, ir.TypeWord, ir.TypeI64, ir.TypeF64:
		return 8, 8, nil
	case ir.TypeComplexFloat32:
		return 8, 4, nil
	case ir.TypeComplexFloat64:
		return 16, 8, nil
	case ir.TypeLongDouble:
		return longDoubleSize, longDoubleAlign, nil
	case ir.TypeComplexLongDouble:
		return 2 * longDoubleSize, longDoubleAlign, nil
	default:
		return 0, 0, errkind.New(errkind.KindInvalidParameter, "not a scalar type code: %s", code)
	}
}

// alignUp rounds offset up to the next multiple of align.
func alignUp(offset int64, align int) int64 {
	if align <= 1 {
		return offset
	}
	a := int64(align)
	return (offset + a - 1) / a * a
}

// Compute walks t depth-first and produces the parallel Layout vector
// per spec §4.2: structs lay members out in declaration order inserting
// padding for alignment, unions take the max size/alignment of all
// members with every member at relative offset 0, arrays are
// element-size*count with the element's own alignment, and bitfields
// borrow their base type's size/alignment (spec's "bitfields carry
// synthetic size/alignment from their base type" rule); Compute treats
// each TypeBitfield entry as an ordinary struct member for byte-level
// placement purposes. Sub-byte LSB-first packing of consecutive
// bitfields sharing one allocation unit -- which bit offset within that
// unit each field starts at -- is tracked separately by BitOffsetsOf
// (bitfield.go), since Entry's RelativeOffset is byte-granular and has
// nowhere to record a bit position.
func Compute(t *ir.Type, variant Variant, ctx Context) (*Layout, error) {
	if variant != VariantSystemV {
		return nil, errkind.New(errkind.KindInvalidParameter, "unknown ABI variant %d", variant)
	}
	l := &Layout{Entries: make([]Entry, t.Len())}
	if t.Len() == 0 {
		return l, nil
	}
	if _, err := computeSlot(t, l, 0, variant, ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// computeSlot computes the layout of the subtree rooted at slot and
// returns its (size, alignment); it recurses into computeSlot for every
// child so the whole Layout vector is filled by the time the top-level
// Compute call returns.
func computeSlot(t *ir.Type, l *Layout, slot int, variant Variant, ctx Context) (Entry, error) {
	e := t.At(slot)
	switch {
	case e.Code == ir.TypeStruct:
		return computeStruct(t, l, slot, variant, ctx)
	case e.Code == ir.TypeUnion:
		return computeUnion(t, l, slot, variant, ctx)
	case e.Code == ir.TypeArray:
		return computeArray(t, l, slot, variant, ctx)
	case e.Code == ir.TypeBitfield:
		return computeBitfield(t, l, slot, e)
	default:
		size, align, err := scalarSizeAlign(e.Code, variant, ctx)
		if err != nil {
			return Entry{}, err
		}
		if e.Atomic && align < int(size) {
			align = int(size)
		}
		ent := Entry{Size: size, Alignment: align, Aligned: true}
		l.Entries[slot] = ent
		return ent, nil
	}
}

func computeStruct(t *ir.Type, l *Layout, slot int, variant Variant, ctx Context) (Entry, error) {
	children := t.ChildrenOf(slot)
	var offset int64
	align := 1
	for _, c := range children {
		childEnt, err := computeSlot(t, l, c, variant, ctx)
		if err != nil {
			return Entry{}, err
		}
		offset = alignUp(offset, childEnt.Alignment)
		l.Entries[c] = Entry{Size: childEnt.Size, Alignment: childEnt.Alignment, RelativeOffset: offset, Aligned: true}
		offset += childEnt.Size
		align = lo.Max([]int{align, childEnt.Alignment})
	}
	size := alignUp(offset, align)
	ent := Entry{Size: size, Alignment: align, Aligned: true}
	l.Entries[slot] = ent
	return ent, nil
}

func computeUnion(t *ir.Type, l *Layout, slot int, variant Variant, ctx Context) (Entry, error) {
	children := t.ChildrenOf(slot)
	var size int64
	align := 1
	for _, c := range children {
		childEnt, err := computeSlot(t, l, c, variant, ctx)
		if err != nil {
			return Entry{}, err
		}
		l.Entries[c] = Entry{Size: childEnt.Size, Alignment: childEnt.Alignment, RelativeOffset: 0, Aligned: true}
		size = lo.Max([]int64{size, childEnt.Size})
		align = lo.Max([]int{align, childEnt.Alignment})
	}
	size = alignUp(size, align)
	ent := Entry{Size: size, Alignment: align, Aligned: true}
	l.Entries[slot] = ent
	return ent, nil
}

func computeArray(t *ir.Type, l *Layout, slot int, variant Variant, ctx Context) (Entry, error) {
	children := t.ChildrenOf(slot)
	if len(children) != 1 {
		return Entry{}, errkind.New(errkind.KindInvalidState, "array type at slot %d has %d children, want 1", slot, len(children))
	}
	elemEnt, err := computeSlot(t, l, children[0], variant, ctx)
	if err != nil {
		return Entry{}, err
	}
	count := t.At(slot).Param
	ent := Entry{Size: elemEnt.Size * count, Alignment: elemEnt.Alignment, Aligned: true}
	l.Entries[slot] = ent
	return ent, nil
}

func computeBitfield(t *ir.Type, l *Layout, slot int, e ir.TypeEntry) (Entry, error) {
	baseSize := int64(e.BitfieldBaseSize())
	ent := Entry{Size: baseSize, Alignment: int(baseSize), Aligned: true}
	l.Entries[slot] = ent
	return ent, nil
}

// TypeProperties is the (size, alignment) pair returned by
// CalculateTypeProperties.
type TypeProperties struct {
	Size      int64
	Alignment int
}

// CalculateTypeProperties returns the size and alignment that the
// already-computed Layout l records for the entry at slot. It does not
// walk the type's children or re-derive the footprint from them; t is
// not consulted.
func CalculateTypeProperties(t *ir.Type, l *Layout, slot int) (TypeProperties, error) {
	if slot < 0 || slot >= len(l.Entries) {
		return TypeProperties{}, errkind.New(errkind.KindOutOfBounds, "slot %d out of range for layout of length %d", slot, len(l.Entries))
	}
	ent := l.Entries[slot]
	return TypeProperties{Size: ent.Size, Alignment: ent.Alignment}, nil
}
