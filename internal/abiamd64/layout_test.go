package abiamd64

import (
	"testing"

	"github.com/sourcehut-mirrors/kefir-sub015/internal/ir"
)

func structOf(entries ...ir.TypeEntry) *ir.Type {
	t := ir.NewType()
	header := ir.TypeEntry{Code: ir.TypeStruct, Param: int64(len(entries))}
	t.Append(header)
	for _, e := range entries {
		t.Append(e)
	}
	return t
}

func TestLayoutStructPadsForAlignment(t *testing.T) {
	ty := structOf(
		ir.TypeEntry{Code: ir.TypeI8, Alignment: 1},
		ir.TypeEntry{Code: ir.TypeI32, Alignment: 4},
	)
	l, err := Compute(ty, VariantSystemV, ContextGeneric)
	if err != nil {
		t.Fatal(err)
	}
	if l.Entries[0].Size != 8 || l.Entries[0].Alignment != 4 {
		t.Fatalf("struct layout = %+v, want size 8 align 4", l.Entries[0])
	}
	if l.Entries[2].RelativeOffset != 4 {
		t.Fatalf("second member offset = %d, want 4", l.Entries[2].RelativeOffset)
	}
}

func TestLayoutUnionTakesMaxAndZeroOffsets(t *testing.T) {
	ty := ir.NewType()
	ty.Append(ir.TypeEntry{Code: ir.TypeUnion, Param: 2})
	ty.Append(ir.TypeEntry{Code: ir.TypeI8, Alignment: 1})
	ty.Append(ir.TypeEntry{Code: ir.TypeI64, Alignment: 8})

	l, err := Compute(ty, VariantSystemV, ContextGeneric)
	if err != nil {
		t.Fatal(err)
	}
	if l.Entries[0].Size != 8 || l.Entries[0].Alignment != 8 {
		t.Fatalf("union layout = %+v, want size 8 align 8", l.Entries[0])
	}
	if l.Entries[1].RelativeOffset != 0 || l.Entries[2].RelativeOffset != 0 {
		t.Fatalf("union members must sit at offset 0")
	}
}

func TestLayoutLongDoubleIsSixteenBytes(t *testing.T) {
	ty := ir.Scalar(ir.TypeLongDouble, 16)
	l, err := Compute(ty, VariantSystemV, ContextGeneric)
	if err != nil {
		t.Fatal(err)
	}
	if l.Entries[0].Size != 16 || l.Entries[0].Alignment != 16 {
		t.Fatalf("long double layout = %+v, want 16/16", l.Entries[0])
	}
}

func TestClassifySmallStructIsTwoIntegerEightbytes(t *testing.T) {
	ty := structOf(
		ir.TypeEntry{Code: ir.TypeI64, Alignment: 8},
		ir.TypeEntry{Code: ir.TypeI32, Alignment: 4},
	)
	cls, err := ClassifyType(ty, VariantSystemV, ContextGeneric)
	if err != nil {
		t.Fatal(err)
	}
	if cls.Memory {
		t.Fatalf("12-byte struct should not be classified memory")
	}
	if len(cls.Eightbytes) != 2 || cls.Eightbytes[0] != ClassInteger || cls.Eightbytes[1] != ClassInteger {
		t.Fatalf("eightbytes = %v, want [integer integer]", cls.Eightbytes)
	}
}

func TestClassifyAllFloatStructIsSSE(t *testing.T) {
	ty := structOf(
		ir.TypeEntry{Code: ir.TypeF64, Alignment: 8},
	)
	cls, err := ClassifyType(ty, VariantSystemV, ContextGeneric)
	if err != nil {
		t.Fatal(err)
	}
	if len(cls.Eightbytes) != 1 || cls.Eightbytes[0] != ClassSSE {
		t.Fatalf("eightbytes = %v, want [sse]", cls.Eightbytes)
	}
}

func TestClassifyLargeAggregateIsMemory(t *testing.T) {
	ty := structOf(
		ir.TypeEntry{Code: ir.TypeI64, Alignment: 8},
		ir.TypeEntry{Code: ir.TypeI64, Alignment: 8},
		ir.TypeEntry{Code: ir.TypeI64, Alignment: 8},
	)
	cls, err := ClassifyType(ty, VariantSystemV, ContextGeneric)
	if err != nil {
		t.Fatal(err)
	}
	if !cls.Memory {
		t.Fatalf("24-byte struct must classify as memory")
	}
}

func TestClassifyFunctionAllocatesIntegerArgRegistersInOrder(t *testing.T) {
	params := []*ir.Type{
		ir.Scalar(ir.TypeInt, 4),
		ir.Scalar(ir.TypeLong, 8),
	}
	ret := ir.Scalar(ir.TypeInt, 4)
	fl, err := ClassifyFunction(params, ret, false, VariantSystemV)
	if err != nil {
		t.Fatal(err)
	}
	if fl.Params[0].Registers[0] != "rdi" || fl.Params[1].Registers[0] != "rsi" {
		t.Fatalf("param registers = %+v", fl.Params)
	}
	if fl.Return.Registers[0] != "rax" {
		t.Fatalf("return register = %v, want rax", fl.Return.Registers)
	}
}

func TestClassifyFunctionLargeReturnUsesImplicitPointer(t *testing.T) {
	ret := structOf(
		ir.TypeEntry{Code: ir.TypeI64, Alignment: 8},
		ir.TypeEntry{Code: ir.TypeI64, Alignment: 8},
		ir.TypeEntry{Code: ir.TypeI64, Alignment: 8},
	)
	fl, err := ClassifyFunction(nil, ret, false, VariantSystemV)
	if err != nil {
		t.Fatal(err)
	}
	if !fl.Return.ImplicitPointer || fl.Return.ImplicitPointerReg != "rdi" {
		t.Fatalf("return placement = %+v, want implicit rdi pointer", fl.Return)
	}
}

func TestClassifyFunctionOverflowsToStack(t *testing.T) {
	var params []*ir.Type
	for i := 0; i < 8; i++ {
		params = append(params, ir.Scalar(ir.TypeLong, 8))
	}
	fl, err := ClassifyFunction(params, nil, false, VariantSystemV)
	if err != nil {
		t.Fatal(err)
	}
	if fl.Params[5].Location != LocationRegister {
		t.Fatalf("6th integer param should still be in a register")
	}
	if fl.Params[6].Location != LocationStack || fl.Params[7].Location != LocationStack {
		t.Fatalf("7th/8th integer params should overflow to stack, got %+v", fl.Params[6:8])
	}
}
