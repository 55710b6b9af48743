package passes

import (
	"github.com/sourcehut-mirrors/kefir-sub015/internal/errkind"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/ssa"
)

// deadAllocPass implements spec §4.5's dead-alloc pass, following the exact
// traversal shape of original_source/source/optimizer/pipeline/dead_alloc.c:
// for every alloc-local instruction, scan its users; if every user is a
// local-lifetime-mark, drop all users then drop the allocation itself. A
// user with any other opcode disqualifies the allocation from removal.
type deadAllocPass struct{}

func (deadAllocPass) Name() string { return "dead-alloc" }

func (deadAllocPass) Apply(fn *ssa.Func, _ Config) (Result, error) {
	changed := false
	for _, bid := range fn.Blocks() {
		b := fn.Block(bid)
		for _, iid := range append([]ssa.InstrID(nil), b.Instrs...) {
			in := fn.Instr(iid)
			if in == nil || in.Op != ssa.OpAllocLocal {
				continue
			}

			users := fn.Uses(iid)
			onlyLifetimeMarks := true
			for _, u := range users {
				if fn.Instr(u).Op != ssa.OpLocalLifetimeMark {
					onlyLifetimeMarks = false
					break
				}
			}
			if !onlyLifetimeMarks {
				continue
			}

			for _, u := range users {
				if err := fn.DropInstruction(u); err != nil {
					return Result{}, err
				}
			}
			if err := fn.DropInstruction(iid); err != nil {
				return Result{}, err
			}
			changed = true
		}
	}

	// Converse invariant: every surviving lifetime mark references an
	// alloc-local.
	for _, bid := range fn.Blocks() {
		for _, iid := range fn.Block(bid).Instrs {
			in := fn.Instr(iid)
			if in == nil || in.Op != ssa.OpLocalLifetimeMark {
				continue
			}
			if len(in.Args) != 1 || fn.Instr(in.Args[0]) == nil || fn.Instr(in.Args[0]).Op != ssa.OpAllocLocal {
				return Result{}, errkind.New(errkind.KindInvalidState, "lifetime mark %d does not reference an alloc-local", iid)
			}
		}
	}
	return Result{Changed: changed}, nil
}
