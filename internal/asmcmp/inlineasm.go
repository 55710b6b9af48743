package asmcmp

// InlineAsmBinding is the opaque payload an OpInlineAsm instruction carries
// instead of the usual two-operand shape: the template text with every
// %N/%[name]/%% substitution already resolved against bound operands, the
// operands it defines and uses (for liveness/allocation to see through the
// otherwise-opaque instruction), the physical registers it clobbers beyond
// its own Defs, and the labels of any jump trampolines a contained `asm
// goto` target requires (spec §4.8).
type InlineAsmBinding struct {
	Template   string
	Defs       []Operand
	Uses       []Operand
	Clobbers   []string
	JumpLabels []string
}

// SetInlineAsm attaches b to the OpInlineAsm instruction at idx.
func (c *Context) SetInlineAsm(idx InstrIndex, b *InlineAsmBinding) {
	if c.inlineAsm == nil {
		c.inlineAsm = make(map[InstrIndex]*InlineAsmBinding)
	}
	c.inlineAsm[idx] = b
}

// InlineAsmAt returns the binding attached to idx, if any.
func (c *Context) InlineAsmAt(idx InstrIndex) (*InlineAsmBinding, bool) {
	b, ok := c.inlineAsm[idx]
	return b, ok
}
