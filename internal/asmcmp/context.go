package asmcmp

import "github.com/sourcehut-mirrors/kefir-sub015/internal/errkind"

// InstrIndex is a stable identifier for one virtual instruction: once
// issued it never changes, even as later passes insert or delete
// neighbors, so the source map and debug-info tables (which key off
// index ranges) never need renumbering (spec §3.5: "indices are stable
// identifiers independent of list order").
type InstrIndex int

const invalidIndex InstrIndex = -1

// Instr is one virtual-instruction node of the intrusive doubly-linked
// list.
type Instr struct {
	Op          Op
	Args        [2]Operand
	SideEffects SideEffects

	prev, next InstrIndex
	live       bool
}

// Context is one function's complete asmcmp state: the instruction list,
// the virtual-register table, and the source map, per spec §3.5.
type Context struct {
	instrs     []Instr
	head, tail InstrIndex

	VRegs     VRegTable
	SourceMap SourceMap
	DebugInfo *DebugInfo

	inlineAsm map[InstrIndex]*InlineAsmBinding
}

// NewContext returns an empty asmcmp context.
func NewContext() *Context {
	return &Context{head: invalidIndex, tail: invalidIndex}
}

// Append adds a new instruction at the tail of the list and returns its
// stable index.
func (c *Context) Append(op Op, a0, a1 Operand, se SideEffects) InstrIndex {
	idx := InstrIndex(len(c.instrs))
	c.instrs = append(c.instrs, Instr{Op: op, Args: [2]Operand{a0, a1}, SideEffects: se, prev: c.tail, next: invalidIndex, live: true})
	if c.tail != invalidIndex {
		c.instrs[c.tail].next = idx
	} else {
		c.head = idx
	}
	c.tail = idx
	return idx
}

// InsertBefore splices a new instruction immediately before at, returning
// its stable index.
func (c *Context) InsertBefore(at InstrIndex, op Op, a0, a1 Operand, se SideEffects) (InstrIndex, error) {
	target := &c.instrs[at]
	if !target.live {
		return invalidIndex, errkind.New(errkind.KindInvalidParameter, "instruction %d is not live", at)
	}
	idx := InstrIndex(len(c.instrs))
	c.instrs = append(c.instrs, Instr{Op: op, Args: [2]Operand{a0, a1}, SideEffects: se, prev: target.prev, next: at, live: true})
	if target.prev != invalidIndex {
		c.instrs[target.prev].next = idx
	} else {
		c.head = idx
	}
	target.prev = idx
	return idx, nil
}

// InsertAfter splices a new instruction immediately after at, returning
// its stable index.
func (c *Context) InsertAfter(at InstrIndex, op Op, a0, a1 Operand, se SideEffects) (InstrIndex, error) {
	target := &c.instrs[at]
	if !target.live {
		return invalidIndex, errkind.New(errkind.KindInvalidParameter, "instruction %d is not live", at)
	}
	idx := InstrIndex(len(c.instrs))
	c.instrs = append(c.instrs, Instr{Op: op, Args: [2]Operand{a0, a1}, SideEffects: se, prev: at, next: target.next, live: true})
	if target.next != invalidIndex {
		c.instrs[target.next].prev = idx
	} else {
		c.tail = idx
	}
	target.next = idx
	return idx, nil
}

// Remove unlinks idx from the list; its index stays reserved (not
// reused) so existing references to it remain distinguishable (Get
// reports it no longer Live) rather than silently aliasing a future
// instruction.
func (c *Context) Remove(idx InstrIndex) error {
	in := &c.instrs[idx]
	if !in.live {
		return errkind.New(errkind.KindInvalidParameter, "instruction %d already removed", idx)
	}
	if in.prev != invalidIndex {
		c.instrs[in.prev].next = in.next
	} else {
		c.head = in.next
	}
	if in.next != invalidIndex {
		c.instrs[in.next].prev = in.prev
	} else {
		c.tail = in.prev
	}
	in.live = false
	return nil
}

// Get returns the instruction at idx and whether it is still live.
func (c *Context) Get(idx InstrIndex) (*Instr, bool) {
	if int(idx) < 0 || int(idx) >= len(c.instrs) {
		return nil, false
	}
	in := &c.instrs[idx]
	return in, in.live
}

// First returns the index of the first live instruction, or invalidIndex
// if the list is empty.
func (c *Context) First() InstrIndex { return c.head }

// Last returns the index of the last live instruction, or invalidIndex if
// the list is empty.
func (c *Context) Last() InstrIndex { return c.tail }

// Next returns idx's successor in list order, or invalidIndex at the
// tail.
func (c *Context) Next(idx InstrIndex) InstrIndex { return c.instrs[idx].next }

// Prev returns idx's predecessor in list order, or invalidIndex at the
// head.
func (c *Context) Prev(idx InstrIndex) InstrIndex { return c.instrs[idx].prev }

// Walk calls fn for every live instruction in list order, stopping early
// if fn returns false.
func (c *Context) Walk(fn func(idx InstrIndex, in *Instr) bool) {
	for idx := c.head; idx != invalidIndex; idx = c.instrs[idx].next {
		if !fn(idx, &c.instrs[idx]) {
			return
		}
	}
}

// Len returns the total number of instruction slots ever allocated,
// including tombstoned ones -- the upper bound on a valid InstrIndex,
// used by the source map to validate range endpoints.
func (c *Context) Len() int { return len(c.instrs) }
