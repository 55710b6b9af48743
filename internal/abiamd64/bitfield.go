package abiamd64

import "github.com/sourcehut-mirrors/kefir-sub015/internal/ir"

// BitOffsetsOf computes, for each TypeBitfield child of the struct
// rooted at slot, the bit offset within its shared allocation unit --
// per spec §4.2's "consecutive bitfields sharing a base-type allocation
// unit pack LSB-first until the unit is full" rule. Non-bitfield
// children get a zero entry; a new allocation unit starts whenever the
// running bit offset would overflow the current field's base size, or
// whenever the base size itself changes.
func BitOffsetsOf(t *ir.Type, slot int) []int {
	children := t.ChildrenOf(slot)
	offsets := make([]int, len(children))

	unitBits := 0
	bitCursor := 0
	for i, c := range children {
		e := t.At(c)
		if e.Code != ir.TypeBitfield {
			unitBits, bitCursor = 0, 0
			continue
		}
		baseBits := e.BitfieldBaseSize() * 8
		width := e.BitfieldWidth()
		if unitBits != baseBits || bitCursor+width > unitBits {
			unitBits = baseBits
			bitCursor = 0
		}
		offsets[i] = bitCursor
		bitCursor += width
	}
	return offsets
}
