// Package abiamd64 implements the ABI-facing components named by spec
// §4.1–§4.3: BigInt arithmetic over a raw digit buffer (used by the
// optimizer's bigint opcodes and by the `__kefirrt_bigint_*` runtime
// helper surface), System-V struct/union/array/bitfield type layout, and
// the System-V eightbyte parameter classifier and register allocator.
// Grounded on the teacher's compile/codegen/arch_x86.go register-pool
// idiom and original_source's ABI headers, generalized from the teacher's
// fixed-width int64 arithmetic to the spec's arbitrary-width digit model.
package abiamd64

import "math/bits"

// digitBits is the native digit width BigInt operates over (spec §4.1:
// "the natural native digit width... fixed at build time"). uint64 is the
// natural choice on amd64 since math/bits already exposes 64-bit
// carrying add/sub/mul primitives.
const digitBits = 64

// BigInt is a raw mutable digit array representing an arbitrary-width
// two's-complement integer, little-endian by digit (Digits[0] holds the
// least-significant 64 bits). All operations are pure over the buffer:
// no allocation happens inside an operation beyond what the caller
// supplies via NewBigInt / scratch arguments, matching spec §4.1's "no
// allocation" operation contract.
type BigInt struct {
	Digits []uint64
	Width  int
}

// digitCount returns the number of 64-bit digits needed to hold width
// bits, with width 0 correctly yielding zero digits (spec §4.1: "width 0
// is valid and is a no-op that returns a default for readers").
func digitCount(width int) int {
	if width <= 0 {
		return 0
	}
	return (width + digitBits - 1) / digitBits
}

// NewBigInt allocates a zeroed buffer sized for width bits.
func NewBigInt(width int) *BigInt {
	return &BigInt{Digits: make([]uint64, digitCount(width)), Width: width}
}

// Zero clears b's buffer in place.
func (b *BigInt) Zero() {
	for i := range b.Digits {
		b.Digits[i] = 0
	}
}

// Copy overwrites dst's buffer with src's, widths must already match
// (the caller resizes via CastSigned/CastUnsigned first if not).
func (dst *BigInt) Copy(src *BigInt) {
	copy(dst.Digits, src.Digits)
	dst.Width = src.Width
}

// maskTopDigit clears any bits above Width within the top digit, so
// readers never observe garbage left over from a wider previous use of
// the same buffer (spec §4.1's shift-right precondition: "masks off bits
// above width first so it cannot leak garbage from storage beyond
// width").
func (b *BigInt) maskTopDigit() {
	if b.Width <= 0 || len(b.Digits) == 0 {
		return
	}
	bitsInTop := b.Width % digitBits
	if bitsInTop == 0 {
		return
	}
	top := len(b.Digits) - 1
	b.Digits[top] &= (uint64(1) << uint(bitsInTop)) - 1
}

// SetSignedInt stores value, sign-extending or truncating to Width.
func (b *BigInt) SetSignedInt(value int64) {
	b.Zero()
	if len(b.Digits) > 0 {
		b.Digits[0] = uint64(value)
		if value < 0 {
			for i := 1; i < len(b.Digits); i++ {
				b.Digits[i] = ^uint64(0)
			}
		}
	}
	b.maskTopDigit()
}

// SetUnsignedInt stores value, zero-extending or truncating to Width.
func (b *BigInt) SetUnsignedInt(value uint64) {
	b.Zero()
	if len(b.Digits) > 0 {
		b.Digits[0] = value
	}
	b.maskTopDigit()
}

// GetUnsignedValue reads the low 64 bits as unsigned, zero-filled if
// Width is narrower than 64.
func (b *BigInt) GetUnsignedValue() uint64 {
	if len(b.Digits) == 0 {
		return 0
	}
	v := b.Digits[0]
	if b.Width < digitBits {
		v &= (uint64(1) << uint(b.Width)) - 1
	}
	return v
}

// GetSignedValue reads the low 64 bits as signed, sign-extended from bit
// Width-1 if Width is narrower than 64.
func (b *BigInt) GetSignedValue() int64 {
	if len(b.Digits) == 0 || b.Width <= 0 {
		return 0
	}
	v := b.Digits[0]
	if b.Width < digitBits {
		signBit := uint64(1) << uint(b.Width-1)
		v &= signBit<<1 - 1
		if v&signBit != 0 {
			v |= ^(signBit<<1 - 1)
		}
	}
	return int64(v)
}

// resize returns a new digit slice of digitCount(toWidth) length,
// preserving the low digits of the source.
func resize(src []uint64, toWidth int) []uint64 {
	out := make([]uint64, digitCount(toWidth))
	n := len(src)
	if n > len(out) {
		n = len(out)
	}
	copy(out, src[:n])
	return out
}

// CastSigned sign-extends (widening) or masks (narrowing) b from fromW
// to toW bits, resizing the buffer as needed.
func (b *BigInt) CastSigned(fromW, toW int) {
	negative := fromW > 0 && b.GetSignedValueAtWidth(fromW) < 0
	b.Width = fromW
	out := resize(b.Digits, toW)
	if negative && toW > fromW {
		extendOnes(out, fromW, toW)
	}
	b.Digits = out
	b.Width = toW
	b.maskTopDigit()
}

// GetSignedValueAtWidth reads the value as if Width were w, without
// mutating b; used internally to decide sign-extension direction before
// Width is updated.
func (b *BigInt) GetSignedValueAtWidth(w int) int64 {
	saved := b.Width
	b.Width = w
	v := b.GetSignedValue()
	b.Width = saved
	return v
}

// CastUnsigned zero-extends or masks b from fromW to toW bits.
func (b *BigInt) CastUnsigned(fromW, toW int) {
	b.Width = fromW
	out := resize(b.Digits, toW)
	b.Digits = out
	b.Width = toW
	b.maskTopDigit()
}

// extendOnes sets every bit from fromW up to toW (exclusive of padding
// beyond toW, which maskTopDigit handles) to 1, completing a sign
// extension after resize zero-filled the new high digits.
func extendOnes(digits []uint64, fromW, toW int) {
	for bit := fromW; bit < toW; bit++ {
		digits[bit/digitBits] |= uint64(1) << uint(bit%digitBits)
	}
}

// Add computes lhs+rhs into b (b may alias lhs or rhs), all three at the
// given width.
func (b *BigInt) Add(lhs, rhs *BigInt, width int) {
	n := digitCount(width)
	var carry uint64
	for i := 0; i < n; i++ {
		var l, r uint64
		if i < len(lhs.Digits) {
			l = lhs.Digits[i]
		}
		if i < len(rhs.Digits) {
			r = rhs.Digits[i]
		}
		sum, c := bits.Add64(l, r, carry)
		b.Digits[i] = sum
		carry = c
	}
	b.Width = width
	b.maskTopDigit()
}

// Subtract computes lhs-rhs into b.
func (b *BigInt) Subtract(lhs, rhs *BigInt, width int) {
	n := digitCount(width)
	var borrow uint64
	for i := 0; i < n; i++ {
		var l, r uint64
		if i < len(lhs.Digits) {
			l = lhs.Digits[i]
		}
		if i < len(rhs.Digits) {
			r = rhs.Digits[i]
		}
		diff, bo := bits.Sub64(l, r, borrow)
		b.Digits[i] = diff
		borrow = bo
	}
	b.Width = width
	b.maskTopDigit()
}

// Negate computes the two's-complement negation of src into b.
func (b *BigInt) Negate(src *BigInt, width int) {
	b.Invert(src, width)
	one := NewBigInt(width)
	one.SetUnsignedInt(1)
	tmp := NewBigInt(width)
	copy(tmp.Digits, b.Digits)
	tmp.Width = width
	b.Add(tmp, one, width)
}

// Invert computes the bitwise complement of src into b.
func (b *BigInt) Invert(src *BigInt, width int) {
	n := digitCount(width)
	for i := 0; i < n; i++ {
		var s uint64
		if i < len(src.Digits) {
			s = src.Digits[i]
		}
		b.Digits[i] = ^s
	}
	b.Width = width
	b.maskTopDigit()
}

func clampShift(n, width int) int {
	if n < 0 {
		return 0
	}
	if n > width {
		return width
	}
	return n
}

// ShiftLeft shifts src left by n bits (clamped to [0,width]) into b.
func (b *BigInt) ShiftLeft(src *BigInt, n, width int) {
	n = clampShift(n, width)
	nd := digitCount(width)
	digitShift, bitShift := n/digitBits, n%digitBits
	for i := nd - 1; i >= 0; i-- {
		srcIdx := i - digitShift
		var lo, hi uint64
		if srcIdx >= 0 && srcIdx < len(src.Digits) {
			lo = src.Digits[srcIdx]
		}
		if bitShift != 0 {
			if srcIdx-1 >= 0 && srcIdx-1 < len(src.Digits) {
				hi = src.Digits[srcIdx-1]
			}
			lo = lo<<uint(bitShift) | hi>>uint(digitBits-bitShift)
		}
		b.Digits[i] = lo
	}
	b.Width = width
	b.maskTopDigit()
}

// ShiftRight performs a logical (zero-filling) right shift of src by n
// bits (clamped to [0,width]) into b. Per spec §4.1, bits above width in
// src are masked off first so a shift can never leak storage garbage.
func (b *BigInt) ShiftRight(src *BigInt, n, width int) bool {
	n = clampShift(n, width)
	nd := digitCount(width)
	masked := NewBigInt(width)
	copy(masked.Digits, src.Digits[:min(len(src.Digits), nd)])
	masked.Width = width
	masked.maskTopDigit()

	digitShift, bitShift := n/digitBits, n%digitBits
	for i := 0; i < nd; i++ {
		srcIdx := i + digitShift
		var lo, hi uint64
		if srcIdx < len(masked.Digits) {
			lo = masked.Digits[srcIdx]
		}
		if bitShift != 0 {
			if srcIdx+1 < len(masked.Digits) {
				hi = masked.Digits[srcIdx+1]
			}
			lo = lo>>uint(bitShift) | hi<<uint(digitBits-bitShift)
		}
		b.Digits[i] = lo
	}
	b.Width = width
	b.maskTopDigit()
	return true
}

// ArithmeticRightShift performs a sign-propagating right shift of src by
// n bits (clamped to [0,width]) into b.
func (b *BigInt) ArithmeticRightShift(src *BigInt, n, width int) {
	negative := src.GetSignedValueAtWidth(width) < 0
	b.ShiftRight(src, n, width)
	if negative {
		n = clampShift(n, width)
		for bit := width - n; bit < width; bit++ {
			if bit < 0 {
				continue
			}
			b.Digits[bit/digitBits] |= uint64(1) << uint(bit%digitBits)
		}
		b.maskTopDigit()
	}
}

// UnsignedMultiply computes lhs*rhs (both operandWidth bits, unsigned)
// into result (resultWidth bits) via classical schoolbook multiplication
// with per-digit carry propagation, per spec §4.1. tmpRow is
// caller-provided scratch of resultWidth length, used as the
// accumulation row for each partial product.
func UnsignedMultiply(result, tmpRow, lhs, rhs *BigInt, resultWidth, operandWidth int) {
	result.Zero()
	result.Width = resultWidth
	nOperand := digitCount(operandWidth)
	nResult := digitCount(resultWidth)

	for i := 0; i < nOperand; i++ {
		if i >= len(lhs.Digits) {
			break
		}
		li := lhs.Digits[i]
		if li == 0 {
			continue
		}
		for k := range tmpRow.Digits {
			tmpRow.Digits[k] = 0
		}
		var carry uint64
		for j := 0; j < nOperand && i+j < nResult; j++ {
			var rj uint64
			if j < len(rhs.Digits) {
				rj = rhs.Digits[j]
			}
			hi, lo := bits.Mul64(li, rj)
			lo2, c := bits.Add64(lo, carry, 0)
			carry = c
			tmpRow.Digits[i+j] = lo2
			carry += hi
		}
		if i+nOperand < nResult {
			tmpRow.Digits[i+nOperand] = carry
		}
		addInto(result.Digits, tmpRow.Digits, nResult)
	}
	result.maskTopDigit()
}

func addInto(dst, add []uint64, n int) {
	var carry uint64
	for i := 0; i < n; i++ {
		var a uint64
		if i < len(add) {
			a = add[i]
		}
		sum, c := bits.Add64(dst[i], a, carry)
		dst[i] = sum
		carry = c
	}
}

// SignedMultiply implements the Booth-style recoding described by spec
// §4.1: iterate operandWidth times, inspecting the previous and current
// LSB of the multiplier to decide an add/subtract of rhs into acc, then
// shift the combined (acc‖lhs) register right by one arithmetically (acc's
// sign bit is replicated). On return, the
// combined acc‖result buffer holds the signed product; result receives
// the final lhs half (the low resultWidth/2 ... operandWidth bits) and
// acc the high half, mirroring the hardware shift-register algorithm this
// is modelled on (original_source's bigint Booth multiplier).
func SignedMultiply(result, acc, lhs, rhs *BigInt, resultWidth, operandWidth int) {
	acc.Zero()
	acc.Width = operandWidth
	result.Zero()
	result.Width = operandWidth
	copy(result.Digits, lhs.Digits)
	result.maskTopDigit()

	negRhs := NewBigInt(operandWidth)
	negRhs.Negate(rhs, operandWidth)

	prevBit := uint64(0)
	for i := 0; i < operandWidth; i++ {
		curBit := bitAt(result.Digits, 0)
		switch {
		case curBit == 1 && prevBit == 0:
			acc.Add(acc, negRhs, operandWidth)
		case curBit == 0 && prevBit == 1:
			acc.Add(acc, rhs, operandWidth)
		}
		shiftRightPair(acc.Digits, result.Digits, operandWidth)
		prevBit = curBit
	}

	full := NewBigInt(resultWidth)
	for i := 0; i < digitCount(operandWidth) && i < len(full.Digits); i++ {
		full.Digits[i] = result.Digits[i]
	}
	shifted := NewBigInt(resultWidth)
	shifted.ShiftLeft(acc, operandWidth, resultWidth)
	full.Add(full, shifted, resultWidth)
	result.Digits = result.Digits[:digitCount(operandWidth)]
	copy(result.Digits, full.Digits[:digitCount(operandWidth)])
	result.Width = resultWidth
	acc.Width = resultWidth
}

func bitAt(digits []uint64, bit int) uint64 {
	idx, off := bit/digitBits, bit%digitBits
	if idx >= len(digits) {
		return 0
	}
	return (digits[idx] >> uint(off)) & 1
}

// shiftRightPair shifts the combined (acc:result) register, treated as one
// 2*width-bit value with acc as the high half, right by one bit
// arithmetically: acc's sign bit is replicated and acc's low bit moves into
// result's top bit.
func shiftRightPair(acc, result []uint64, width int) {
	carry := bitAt(acc, 0)
	sign := bitAt(acc, width-1)
	shiftRightOneInPlace(acc)
	shiftRightOneInPlace(result)
	topBit := width - 1
	if sign != 0 {
		acc[topBit/digitBits] |= uint64(1) << uint(topBit%digitBits)
	}
	if carry != 0 {
		result[topBit/digitBits] |= uint64(1) << uint(topBit%digitBits)
	}
}

// shiftRightOneInPlace shifts digits right by one bit in place, returning
// the bit shifted out of digit 0.
func shiftRightOneInPlace(digits []uint64) uint64 {
	var carry uint64
	out := bitAt(digits, 0)
	for i := len(digits) - 1; i >= 0; i-- {
		newCarry := digits[i] & 1
		digits[i] = digits[i]>>1 | carry<<63
		carry = newCarry
	}
	return out
}

// UnsignedCompare returns -1, 0 or 1 comparing lhs and rhs as width-bit
// unsigned integers, most-significant digit first.
func UnsignedCompare(lhs, rhs *BigInt, width int) int {
	n := digitCount(width)
	for i := n - 1; i >= 0; i-- {
		var l, r uint64
		if i < len(lhs.Digits) {
			l = lhs.Digits[i]
		}
		if i < len(rhs.Digits) {
			r = rhs.Digits[i]
		}
		if l != r {
			if l < r {
				return -1
			}
			return 1
		}
	}
	return 0
}

// SignedCompare returns -1, 0 or 1 comparing lhs and rhs as width-bit
// two's-complement integers.
func SignedCompare(lhs, rhs *BigInt, width int) int {
	lNeg := lhs.GetSignedValueAtWidth(width) < 0
	rNeg := rhs.GetSignedValueAtWidth(width) < 0
	if lNeg != rNeg {
		if lNeg {
			return -1
		}
		return 1
	}
	return UnsignedCompare(lhs, rhs, width)
}

// LeadingZeros returns the number of leading (most-significant) zero
// bits within Width.
func (b *BigInt) LeadingZeros() int {
	n := digitCount(b.Width)
	count := 0
	for i := n - 1; i >= 0; i-- {
		var d uint64
		if i < len(b.Digits) {
			d = b.Digits[i]
		}
		bitsInDigit := digitBits
		if i == n-1 && b.Width%digitBits != 0 {
			bitsInDigit = b.Width % digitBits
			d <<= uint(digitBits - bitsInDigit)
		}
		if d == 0 {
			count += bitsInDigit
			continue
		}
		count += bits.LeadingZeros64(d)
		return count
	}
	return b.Width
}

// TrailingZeros returns the number of trailing (least-significant) zero
// bits within Width.
func (b *BigInt) TrailingZeros() int {
	n := digitCount(b.Width)
	count := 0
	for i := 0; i < n; i++ {
		var d uint64
		if i < len(b.Digits) {
			d = b.Digits[i]
		}
		if d == 0 {
			count += digitBits
			continue
		}
		tz := bits.TrailingZeros64(d)
		count += tz
		if count > b.Width {
			return b.Width
		}
		return count
	}
	return b.Width
}

// LeastSignificantNonzero returns the bit index of the least-significant
// set bit, or -1 if the value is zero.
func (b *BigInt) LeastSignificantNonzero() int {
	tz := b.TrailingZeros()
	if tz >= b.Width {
		return -1
	}
	return tz
}

// SignedToFloat converts b (interpreted as a Width-bit signed integer)
// to a float64 mantissa/exponent pair, rounding ties-to-even via the
// guard/round/sticky technique described in spec §4.1. mantDig is the
// target mantissa precision in bits (53 for float64, 24 for float32).
func SignedToFloat(b *BigInt, mantDig int) float64 {
	neg := b.GetSignedValueAtWidth(b.Width) < 0
	mag := NewBigInt(b.Width)
	if neg {
		mag.Negate(b, b.Width)
	} else {
		copy(mag.Digits, b.Digits)
		mag.Width = b.Width
	}

	highBit := mag.Width - 1 - mag.LeadingZeros()
	if highBit < 0 {
		return 0
	}

	keep := mantDig
	dropped := highBit + 1 - keep
	if dropped <= 0 {
		v := float64(mag.GetUnsignedValue())
		if neg {
			v = -v
		}
		return v
	}

	guardBit := bitAt(mag.Digits, dropped-1)
	sticky := uint64(0)
	for i := 0; i < dropped-1; i++ {
		if bitAt(mag.Digits, i) != 0 {
			sticky = 1
			break
		}
	}

	shifted := NewBigInt(mag.Width)
	shifted.ShiftRight(mag, dropped, mag.Width)
	mantissa := shifted.GetUnsignedValue()

	roundUp := false
	if guardBit == 1 {
		if sticky == 1 {
			roundUp = true
		} else {
			roundUp = mantissa&1 == 1 // ties to even
		}
	}
	if roundUp {
		mantissa++
		if mantissa>>uint(keep) != 0 {
			mantissa >>= 1
			dropped++
		}
	}

	v := float64(mantissa) * pow2(dropped)
	if neg {
		v = -v
	}
	return v
}

func pow2(n int) float64 {
	if n >= 0 {
		return float64(uint64(1) << uint(min(n, 62)))
	}
	return 1
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
