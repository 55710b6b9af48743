package asmcmp

import (
	"sort"

	"github.com/sourcehut-mirrors/kefir-sub015/internal/errkind"
)

// SourcePos is one source-level position an instruction range maps to.
type SourcePos struct {
	File   string
	Line   int
	Column int
}

// sourceMapEntry is one half-open instruction-index range and the
// position it maps to.
type sourceMapEntry struct {
	Begin, End InstrIndex
	Pos        SourcePos
}

// SourceMap associates half-open asmcmp-instruction index ranges with
// source positions (spec §3.5). Entries are kept sorted by Begin so
// lookup is a binary search ("lookup is by lower-bound").
type SourceMap struct {
	entries []sourceMapEntry
}

// Insert records that [begin, end) maps to pos. It fails with
// errkind.KindInvalidChange if the new range overlaps any existing one,
// per spec §3.5's "insertion checks that ranges do not overlap".
func (m *SourceMap) Insert(begin, end InstrIndex, pos SourcePos) error {
	if begin >= end {
		return errkind.New(errkind.KindInvalidParameter, "empty or inverted range [%d, %d)", begin, end)
	}
	i := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].Begin >= begin })
	if i > 0 && m.entries[i-1].End > begin {
		return errkind.New(errkind.KindInvalidChange, "range [%d, %d) overlaps existing [%d, %d)", begin, end, m.entries[i-1].Begin, m.entries[i-1].End)
	}
	if i < len(m.entries) && m.entries[i].Begin < end {
		return errkind.New(errkind.KindInvalidChange, "range [%d, %d) overlaps existing [%d, %d)", begin, end, m.entries[i].Begin, m.entries[i].End)
	}
	entry := sourceMapEntry{Begin: begin, End: end, Pos: pos}
	m.entries = append(m.entries, sourceMapEntry{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = entry
	return nil
}

// Lookup finds the source position covering idx, if any, via a
// lower-bound binary search over the sorted range table.
func (m *SourceMap) Lookup(idx InstrIndex) (SourcePos, bool) {
	i := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].End > idx })
	if i < len(m.entries) && m.entries[i].Begin <= idx && idx < m.entries[i].End {
		return m.entries[i].Pos, true
	}
	return SourcePos{}, false
}

// DebugInfo extends the source map with DWARF-scoped entries (spec §3.5:
// "an optional linked debug-info object"). Scopes nest by index: Parent
// -1 marks a top-level (function-body) scope.
type DebugInfo struct {
	Scopes []DebugScope
}

// DebugScope is one DWARF lexical-block-equivalent scope covering a
// half-open instruction range, optionally nested within a parent scope.
type DebugScope struct {
	Begin, End InstrIndex
	Parent     int // index into DebugInfo.Scopes, or -1
	Variables  []DebugVariable
}

// DebugVariable names one local variable's location within a DebugScope,
// expressed as a vreg; its post-allocation location is that vreg's
// Assignment in the context's VRegTable.
type DebugVariable struct {
	Name string
	VReg VRegID
}

// NewScope appends a new debug scope and returns its index.
func (d *DebugInfo) NewScope(begin, end InstrIndex, parent int) int {
	d.Scopes = append(d.Scopes, DebugScope{Begin: begin, End: end, Parent: parent})
	return len(d.Scopes) - 1
}
