package abiamd64

import (
	"github.com/sourcehut-mirrors/kefir-sub015/internal/errkind"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/ir"
)

// Class is one of the System-V eightbyte classification tags named by
// spec §4.3.
type Class int

const (
	ClassNone Class = iota
	ClassInteger
	ClassSSE
	ClassSSEUp
	ClassX87
	ClassX87Up
	ClassComplexX87
	ClassMemory
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "no-class"
	case ClassInteger:
		return "integer"
	case ClassSSE:
		return "sse"
	case ClassSSEUp:
		return "sse-up"
	case ClassX87:
		return "x87"
	case ClassX87Up:
		return "x87-up"
	case ClassComplexX87:
		return "complex-x87"
	case ClassMemory:
		return "memory"
	default:
		return "unknown-class"
	}
}

// mergeClass implements spec §4.3's documented merge precedence between
// two classes assigned to the same eightbyte by overlapping members.
func mergeClass(a, b Class) Class {
	switch {
	case a == b:
		return a
	case a == ClassNone:
		return b
	case b == ClassNone:
		return a
	case a == ClassMemory || b == ClassMemory:
		return ClassMemory
	case a == ClassInteger || b == ClassInteger:
		return ClassInteger
	case a == ClassX87 || a == ClassX87Up || a == ClassComplexX87 ||
		b == ClassX87 || b == ClassX87Up || b == ClassComplexX87:
		return ClassMemory
	default:
		return ClassSSE
	}
}

// maxEightbytes is the eightbyte-classification cap: spec §4.3 ("aggregates
// larger than 16 bytes... go to memory") means no object this classifier
// ever returns a register class for occupies more than two eightbytes.
const maxEightbytes = 2

// Classification is the result of classifying one IR type for parameter
// or return-value purposes.
type Classification struct {
	Size      int64
	Alignment int
	// Eightbytes holds one Class per 8-byte chunk, length 0, 1 or 2.
	// A Memory classification is signalled by Memory=true instead of a
	// populated Eightbytes, since a memory-classified object's size can
	// exceed two eightbytes.
	Eightbytes []Class
	Memory     bool
}

// ClassifyType implements spec §4.3's recursive eightbyte classification.
func ClassifyType(t *ir.Type, variant Variant, ctx Context) (*Classification, error) {
	layout, err := Compute(t, variant, ctx)
	if err != nil {
		return nil, err
	}
	return classifyWithLayout(t, layout, 0, variant)
}

func classifyWithLayout(t *ir.Type, l *Layout, slot int, variant Variant) (*Classification, error) {
	root := l.Entries[slot]
	if root.Size > 16 || root.Alignment > 16 || hasUnalignedField(t, l, slot, 0) {
		return &Classification{Size: root.Size, Alignment: root.Alignment, Memory: true}, nil
	}

	e := t.At(slot)
	if e.Code == ir.TypeComplexLongDouble {
		return &Classification{Size: root.Size, Alignment: root.Alignment, Memory: true}, nil
	}

	n := maxEightbytes
	if root.Size <= 8 {
		n = 1
	}
	eightbytes := make([]Class, n)
	if err := accumulateClasses(t, l, slot, 0, eightbytes); err != nil {
		return nil, err
	}

	// Post-merge fixup per spec: an X87 in eightbyte 0 requires X87Up in
	// eightbyte 1 or the whole object goes to memory.
	if len(eightbytes) == 2 && eightbytes[0] == ClassX87 && eightbytes[1] != ClassX87Up {
		return &Classification{Size: root.Size, Alignment: root.Alignment, Memory: true}, nil
	}
	for i, c := range eightbytes {
		if c == ClassNone {
			eightbytes[i] = ClassSSE
		}
	}
	return &Classification{Size: root.Size, Alignment: root.Alignment, Eightbytes: eightbytes}, nil
}

// hasUnalignedField walks the subtree at slot, reporting whether any
// leaf member's absolute offset violates its own natural alignment --
// per spec §4.3 such an aggregate is forced to memory regardless of its
// overall size.
func hasUnalignedField(t *ir.Type, l *Layout, slot, baseOffset int) bool {
	ent := l.Entries[slot]
	abs := baseOffset + int(ent.RelativeOffset)
	if ent.Alignment > 0 && abs%ent.Alignment != 0 {
		return true
	}
	for _, c := range t.ChildrenOf(slot) {
		if hasUnalignedField(t, l, c, abs) {
			return true
		}
	}
	return false
}

// accumulateClasses merges every leaf member's class into the eightbyte
// slots it overlaps, recursing into aggregate children. baseOffset is the
// absolute byte offset of slot's RelativeOffset within the root object.
func accumulateClasses(t *ir.Type, l *Layout, slot, baseOffset int, eightbytes []Class) error {
	ent := l.Entries[slot]
	abs := baseOffset + int(ent.RelativeOffset)
	e := t.At(slot)

	switch e.Code {
	case ir.TypeStruct, ir.TypeUnion:
		for _, c := range t.ChildrenOf(slot) {
			if err := accumulateClasses(t, l, c, abs, eightbytes); err != nil {
				return err
			}
		}
		return nil
	case ir.TypeArray:
		children := t.ChildrenOf(slot)
		if len(children) != 1 {
			return errkind.New(errkind.KindInvalidState, "array at slot %d missing element entry", slot)
		}
		elemSize := int(l.Entries[children[0]].Size)
		count := int(e.Param)
		if elemSize == 0 {
			return nil
		}
		for i := 0; i < count; i++ {
			if err := accumulateClasses(t, l, children[0], abs+i*elemSize, eightbytes); err != nil {
				return err
			}
		}
		return nil
	}

	leafClasses, size := leafClass(e)
	merge1(eightbytes, abs, size, leafClasses)
	return nil
}

// leafClass returns the per-half class sequence for a scalar or bitfield
// leaf type and its byte size.
func leafClass(e ir.TypeEntry) ([2]Class, int) {
	switch e.Code {
	case ir.TypeF32, ir.TypeF64, ir.TypeComplexFloat32, ir.TypeComplexFloat64:
		size := 4
		switch e.Code {
		case ir.TypeF64:
			size = 8
		case ir.TypeComplexFloat32:
			size = 8
		case ir.TypeComplexFloat64:
			size = 16
		}
		return [2]Class{ClassSSE, ClassSSE}, size
	case ir.TypeLongDouble:
		return [2]Class{ClassX87, ClassX87Up}, longDoubleSize
	case ir.TypeBitfield:
		return [2]Class{ClassInteger, ClassInteger}, e.BitfieldBaseSize()
	default:
		size := 8
		switch e.Code {
		case ir.TypeBool, ir.TypeChar, ir.TypeI8:
			size = 1
		case ir.TypeShort, ir.TypeI16:
			size = 2
		case ir.TypeInt, ir.TypeI32:
			size = 4
		}
		return [2]Class{ClassInteger, ClassInteger}, size
	}
}

// merge1 merges class cls into every eightbyte slot the half-open byte
// range [absOffset, absOffset+size) overlaps.
func merge1(eightbytes []Class, absOffset, size int, cls [2]Class) {
	if size <= 0 {
		return
	}
	idx0 := absOffset / 8
	idx1 := (absOffset + size - 1) / 8
	for idx := idx0; idx <= idx1 && idx < len(eightbytes); idx++ {
		half := cls[0]
		if idx > idx0 {
			half = cls[1]
		}
		eightbytes[idx] = mergeClass(eightbytes[idx], half)
	}
}
