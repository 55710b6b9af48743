package abiamd64

import "testing"

func TestBigIntAddWraps(t *testing.T) {
	a := NewBigInt(8)
	a.SetUnsignedInt(200)
	b := NewBigInt(8)
	b.SetUnsignedInt(100)
	out := NewBigInt(8)
	out.Add(a, b, 8)
	if got := out.GetUnsignedValue(); got != 44 { // (200+100) mod 256
		t.Fatalf("got %d, want 44", got)
	}
}

func TestBigIntSignedRoundTrip(t *testing.T) {
	b := NewBigInt(16)
	b.SetSignedInt(-5)
	if got := b.GetSignedValue(); got != -5 {
		t.Fatalf("got %d, want -5", got)
	}
}

func TestBigIntCastSignedWidensNegative(t *testing.T) {
	b := NewBigInt(8)
	b.SetSignedInt(-1)
	b.CastSigned(8, 32)
	if got := b.GetSignedValue(); got != -1 {
		t.Fatalf("got %d, want -1", got)
	}
}

func TestBigIntCastUnsignedWidensZeroFills(t *testing.T) {
	b := NewBigInt(8)
	b.SetUnsignedInt(0xFF)
	b.CastUnsigned(8, 32)
	if got := b.GetUnsignedValue(); got != 0xFF {
		t.Fatalf("got %#x, want 0xff", got)
	}
}

func TestBigIntShiftLeftAndRight(t *testing.T) {
	b := NewBigInt(32)
	b.SetUnsignedInt(1)
	shifted := NewBigInt(32)
	shifted.ShiftLeft(b, 10, 32)
	if got := shifted.GetUnsignedValue(); got != 1<<10 {
		t.Fatalf("got %d, want %d", got, 1<<10)
	}
	back := NewBigInt(32)
	back.ShiftRight(shifted, 10, 32)
	if got := back.GetUnsignedValue(); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
}

func TestBigIntArithmeticRightShiftSignExtends(t *testing.T) {
	b := NewBigInt(16)
	b.SetSignedInt(-8)
	out := NewBigInt(16)
	out.ArithmeticRightShift(b, 1, 16)
	if got := out.GetSignedValue(); got != -4 {
		t.Fatalf("got %d, want -4", got)
	}
}

func TestBigIntUnsignedMultiply(t *testing.T) {
	lhs := NewBigInt(32)
	lhs.SetUnsignedInt(1000)
	rhs := NewBigInt(32)
	rhs.SetUnsignedInt(1000)
	result := NewBigInt(64)
	tmp := NewBigInt(64)
	UnsignedMultiply(result, tmp, lhs, rhs, 64, 32)
	if got := result.GetUnsignedValue(); got != 1_000_000 {
		t.Fatalf("got %d, want 1000000", got)
	}
}

func TestBigIntUnsignedCompare(t *testing.T) {
	a := NewBigInt(32)
	a.SetUnsignedInt(5)
	b := NewBigInt(32)
	b.SetUnsignedInt(9)
	if UnsignedCompare(a, b, 32) != -1 {
		t.Fatalf("want -1")
	}
	if UnsignedCompare(b, a, 32) != 1 {
		t.Fatalf("want 1")
	}
	if UnsignedCompare(a, a, 32) != 0 {
		t.Fatalf("want 0")
	}
}

func TestBigIntSignedCompareHandlesSign(t *testing.T) {
	neg := NewBigInt(32)
	neg.SetSignedInt(-1)
	pos := NewBigInt(32)
	pos.SetSignedInt(1)
	if SignedCompare(neg, pos, 32) != -1 {
		t.Fatalf("want negative < positive")
	}
}

func TestBigIntLeadingTrailingZeros(t *testing.T) {
	b := NewBigInt(32)
	b.SetUnsignedInt(0x00000010)
	if got := b.TrailingZeros(); got != 4 {
		t.Fatalf("trailing zeros got %d, want 4", got)
	}
	if got := b.LeadingZeros(); got != 27 {
		t.Fatalf("leading zeros got %d, want 27", got)
	}
}

func TestBigIntLeastSignificantNonzeroOfZeroIsNegativeOne(t *testing.T) {
	b := NewBigInt(32)
	b.SetUnsignedInt(0)
	if got := b.LeastSignificantNonzero(); got != -1 {
		t.Fatalf("got %d, want -1", got)
	}
}

func TestBigIntSignedToFloatSmallExact(t *testing.T) {
	b := NewBigInt(32)
	b.SetSignedInt(-42)
	if got := SignedToFloat(b, 53); got != -42 {
		t.Fatalf("got %v, want -42", got)
	}
}
