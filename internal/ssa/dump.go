package ssa

import (
	"fmt"
	"strings"
)

// DumpDot renders fn as a Graphviz dot graph, in the same spirit as the
// teacher's compile/ssa/hir.go DumpSSAToDotFile debug helper, generalized
// to the id-keyed container.
func DumpDot(fn *Func) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "digraph %s {\n", fn.Name)
	for _, bid := range fn.Blocks() {
		b := fn.Block(bid)
		label := fmt.Sprintf("b%d (%v)\\n", bid, b.Kind)
		for _, pid := range b.Phis {
			label += instrLabel(fn, pid) + "\\n"
		}
		for _, iid := range b.Instrs {
			label += instrLabel(fn, iid) + "\\n"
		}
		if b.Terminator != NoInstr {
			label += instrLabel(fn, b.Terminator) + "\\n"
		}
		fmt.Fprintf(&sb, "  b%d [shape=box label=\"%s\"];\n", bid, label)
		for _, s := range b.Succs {
			fmt.Fprintf(&sb, "  b%d -> b%d;\n", bid, s)
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func instrLabel(fn *Func, iid InstrID) string {
	in := fn.Instr(iid)
	if in == nil {
		return fmt.Sprintf("v%d=<missing>", iid)
	}
	args := make([]string, len(in.Args))
	for i, a := range in.Args {
		args[i] = fmt.Sprintf("v%d", a)
	}
	return fmt.Sprintf("v%d = %s(%s)", iid, in.Op, strings.Join(args, ", "))
}

func (fn *Func) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "func %s {\n", fn.Name)
	for _, bid := range fn.Blocks() {
		b := fn.Block(bid)
		fmt.Fprintf(&sb, "b%d:\n", bid)
		for _, pid := range b.Phis {
			fmt.Fprintf(&sb, "  %s\n", instrLabel(fn, pid))
		}
		for _, iid := range b.Instrs {
			fmt.Fprintf(&sb, "  %s\n", instrLabel(fn, iid))
		}
		if b.Terminator != NoInstr {
			fmt.Fprintf(&sb, "  %s\n", instrLabel(fn, b.Terminator))
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}
