package abiamd64

import (
	"github.com/sourcehut-mirrors/kefir-sub015/internal/errkind"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/ir"
)

// Location tags where a ParamPlacement or ReturnPlacement's value lives.
type Location int

const (
	LocationRegister Location = iota
	LocationStack
)

// ParamPlacement is where one function parameter ends up: either one or
// two argument registers (one per eightbyte), or a stack slot.
type ParamPlacement struct {
	Location    Location
	Registers   []string
	StackOffset int64
	Size        int64
	Alignment   int
}

// ReturnPlacement is where a function's return value ends up, per spec
// §4.3: scalar/small-aggregate values come back in (rax,rdx)/(xmm0,xmm1)
// eightbyte-by-eightbyte; aggregates needing more than two eightbytes
// come back through a hidden pointer parameter, which the callee also
// echoes back in rax.
type ReturnPlacement struct {
	Registers          []string
	ImplicitPointer    bool
	ImplicitPointerReg string
	Size               int64
}

// FunctionLayout is the full parameter/return placement for one function
// declaration, plus the variadic-prologue "al" hint (spec §4.3's "is SSE
// register count required" query).
type FunctionLayout struct {
	Params           []ParamPlacement
	Return           ReturnPlacement
	SSERegistersUsed int
	Variadic         bool
}

const (
	maxIntArgRegs = 6
	maxSSEArgRegs = 8
)

// ClassifyFunction computes the full parameter/return register
// assignment for a function with the given parameter and return IR
// types, per spec §4.3's classifier plus register-pool allocation rules.
func ClassifyFunction(params []*ir.Type, ret *ir.Type, variadic bool, variant Variant) (*FunctionLayout, error) {
	layout := &FunctionLayout{Variadic: variadic}

	intUsed, sseUsed := 0, 0

	if ret != nil {
		retClass, err := ClassifyType(ret, variant, ContextGeneric)
		if err != nil {
			return nil, err
		}
		if retClass.Memory {
			layout.Return = ReturnPlacement{
				ImplicitPointer:    true,
				ImplicitPointerReg: ImplicitReturnPointerReg,
				Registers:          []string{"rax"},
				Size:               retClass.Size,
			}
			intUsed++ // the hidden pointer parameter consumes rdi up front.
		} else if len(retClass.Eightbytes) > 0 {
			regs, err := allocateFromClasses(retClass.Eightbytes, IntReturnPool, SSEReturnPool, 0, 0)
			if err != nil {
				return nil, err
			}
			layout.Return = ReturnPlacement{Registers: regs, Size: retClass.Size}
		}
	}

	var stackOffset int64
	for _, p := range params {
		cls, err := ClassifyType(p, variant, ContextStack)
		if err != nil {
			return nil, err
		}
		if cls.Memory {
			stackOffset = alignUp(stackOffset, max(int(cls.Alignment), 8))
			layout.Params = append(layout.Params, ParamPlacement{
				Location: LocationStack, StackOffset: stackOffset,
				Size: cls.Size, Alignment: cls.Alignment,
			})
			stackOffset += alignUp(cls.Size, 8)
			continue
		}

		neededInt, neededSSE := countClasses(cls.Eightbytes)
		if intUsed+neededInt > maxIntArgRegs || sseUsed+neededSSE > maxSSEArgRegs {
			stackOffset = alignUp(stackOffset, max(int(cls.Alignment), 8))
			layout.Params = append(layout.Params, ParamPlacement{
				Location: LocationStack, StackOffset: stackOffset,
				Size: cls.Size, Alignment: cls.Alignment,
			})
			stackOffset += alignUp(cls.Size, 8)
			continue
		}

		regs, err := allocateFromClasses(cls.Eightbytes, IntArgPool, SSEArgPool, intUsed, sseUsed)
		if err != nil {
			return nil, err
		}
		for _, c := range cls.Eightbytes {
			if c == ClassSSE || c == ClassSSEUp {
				sseUsed++
			} else {
				intUsed++
			}
		}
		layout.Params = append(layout.Params, ParamPlacement{
			Location: LocationRegister, Registers: regs, Size: cls.Size, Alignment: cls.Alignment,
		})
	}

	layout.SSERegistersUsed = sseUsed
	return layout, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// countClasses returns how many eightbytes in classes need an integer
// register and how many need an SSE register.
func countClasses(classes []Class) (intCount, sseCount int) {
	for _, c := range classes {
		if c == ClassSSE || c == ClassSSEUp {
			sseCount++
		} else {
			intCount++
		}
	}
	return
}

// allocateFromClasses walks classes in eightbyte order, taking the next
// free register from intPool or ssePool as each eightbyte's class
// demands, starting at intStart/sseStart.
func allocateFromClasses(classes []Class, intPool, ssePool []string, intStart, sseStart int) ([]string, error) {
	regs := make([]string, 0, len(classes))
	intIdx, sseIdx := intStart, sseStart
	for _, c := range classes {
		switch c {
		case ClassSSE, ClassSSEUp:
			if sseIdx >= len(ssePool) {
				return nil, errkind.New(errkind.KindInvalidState, "sse register pool exhausted during classification")
			}
			regs = append(regs, ssePool[sseIdx])
			sseIdx++
		default:
			if intIdx >= len(intPool) {
				return nil, errkind.New(errkind.KindInvalidState, "integer register pool exhausted during classification")
			}
			regs = append(regs, intPool[intIdx])
			intIdx++
		}
	}
	return regs, nil
}
