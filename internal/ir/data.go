package ir

import "github.com/sourcehut-mirrors/kefir-sub015/internal/errkind"

// Storage is the linkage class of an IR data entry (spec §3.3).
type Storage int

const (
	StorageGlobal Storage = iota
	StorageThreadLocal
)

// Charset tags a string data value's character width.
type Charset int

const (
	CharsetMBChar Charset = iota
	CharsetUTF16
	CharsetUTF32
)

// ValueKind is the closed tag of a DataValue.
type ValueKind int

const (
	ValueUndefined ValueKind = iota
	ValueInteger
	ValueF32
	ValueF64
	ValueLongDouble
	ValueComplexF32
	ValueComplexF64
	ValueComplexLongDouble
	ValueString
	ValuePointer
	ValueStringPointer
	ValueRawBytes
	ValueAggregate
)

// DataValue is one tagged value in a data entry's value-tree (spec §3.3).
type DataValue struct {
	Kind ValueKind

	Integer    int64
	F32        float32
	F64        float64
	LongDouble [2]uint64 // raw 80-bit extended-precision storage, two qwords

	// String data.
	StringLiteral string
	Charset       Charset

	// Pointer data: symbol-ref + offset, or string-id + offset.
	SymbolRef   string
	StringID    int
	PointerOff  int64

	RawBytes []byte

	// Aggregate data holds nested (slot, value) pairs for composite
	// initialisers.
	Aggregate []AggregateMember
}

// AggregateMember pairs a slot index (within the enclosing type) with its
// initialising DataValue.
type AggregateMember struct {
	Slot  int
	Value DataValue
}

// ValueRange records a DataValue occupying positions [Begin, End) within
// the data entry, in the same units as TotalLength; Finalize does not
// convert them.
// Ranges without an explicit entry are implicitly zero-initialised once the
// entry is finalized -- the "skip-to iteration" the spec describes.
type ValueRange struct {
	Begin, End int
	Value      DataValue
}

// Data is one global/thread-local initialiser (spec §3.3: ir-data).
type Data struct {
	Storage     Storage
	TypeID      int
	TotalLength int
	finalized   bool
	ranges      []ValueRange
}

// NewData creates an unfinalized data entry of the given total length (in
// slots).
func NewData(storage Storage, typeID, totalLength int) *Data {
	return &Data{Storage: storage, TypeID: typeID, TotalLength: totalLength}
}

// SetValue installs a value at [begin, end), inserting in sorted, no-overlap
// order. Mirrors the source map's "insertion checks ranges do not overlap"
// discipline (spec §3.5) reused here for the data value-tree.
func (d *Data) SetValue(begin, end int, v DataValue) error {
	if d.finalized {
		return errkind.New(errkind.KindInvalidState, "data entry already finalized")
	}
	if begin < 0 || end > d.TotalLength || begin >= end {
		return errkind.New(errkind.KindOutOfBounds, "value range [%d,%d) outside data entry of length %d", begin, end, d.TotalLength)
	}
	for _, r := range d.ranges {
		if begin < r.End && r.Begin < end {
			return errkind.New(errkind.KindInvalidChange, "value range [%d,%d) overlaps existing [%d,%d)", begin, end, r.Begin, r.End)
		}
	}
	if v.Kind == ValueString {
		if err := validateStringCharset(v); err != nil {
			return err
		}
	}
	d.ranges = append(d.ranges, ValueRange{Begin: begin, End: end, Value: v})
	return nil
}

// validateStringCharset implements the open-question decision recorded in
// DESIGN.md: the translator's contract is required to emit only
// byte-exact/utf16/utf32 strings; an mbchar-tagged string whose bytes do
// not already look like one-byte-per-character data is rejected here
// rather than silently promoted.
func validateStringCharset(v DataValue) error {
	if v.Charset != CharsetMBChar {
		return nil
	}
	for i := 0; i < len(v.StringLiteral); i++ {
		if v.StringLiteral[i] == 0 && i != len(v.StringLiteral)-1 {
			return errkind.New(errkind.KindInvalidState,
				"mbchar string contains an embedded NUL; translator must resolve to byte-exact/utf16/utf32 before handing data to the IR")
		}
	}
	return nil
}

// Finalize marks the entry immutable; subsequent SetValue calls fail.
func (d *Data) Finalize() { d.finalized = true }

// Finalized reports whether Finalize was called.
func (d *Data) Finalized() bool { return d.finalized }

// ValueAt returns the DataValue covering position pos, or (zero, false) if
// pos falls in an implicit zero-initialized gap.
func (d *Data) ValueAt(pos int) (DataValue, bool) {
	for _, r := range d.ranges {
		if pos >= r.Begin && pos < r.End {
			return r.Value, true
		}
	}
	return DataValue{}, false
}

// Ranges returns the explicit value ranges in ascending begin order.
func (d *Data) Ranges() []ValueRange {
	out := make([]ValueRange, len(d.ranges))
	copy(out, d.ranges)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Begin < out[j-1].Begin; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
