// Package dis renders a lowered function's control-flow graph as a
// human-readable listing, for debugging the unwind lowering and for the
// sable-cfg command.
package dis

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/sable-lang/sable/ir"
)

var (
	labelColor  = color.New(color.FgCyan, color.Bold)
	calleeColor = color.New(color.FgYellow)
)

// Print writes the listing for f to w.
func Print(f *ir.Func, w io.Writer) {
	fmt.Fprintf(w, "function %s (id=%s)\n", f.Name(), f.ID())
	for ref := ir.BlockRef(0); int(ref) < f.NumBlocks(); ref++ {
		blk := f.Block(ref)
		fmt.Fprintf(w, "\n%s\n", labelColor.Sprintf("%s:", label(f, ref)))
		for i := range blk.Instrs {
			fmt.Fprintf(w, "  %s\n", formatInstr(f, &blk.Instrs[i]))
		}
		if blk.Term.Kind != ir.TermNone {
			fmt.Fprintf(w, "  %s\n", formatTerm(f, &blk.Term))
		}
	}
}

// Listing returns the listing for f as a string.
func Listing(f *ir.Func) string {
	var sb strings.Builder
	Print(f, &sb)
	return sb.String()
}

// label renders a block reference. Block names are not unique (cleanup
// copies, per-catch dispatch blocks), so the arena index is part of the
// label.
func label(f *ir.Func, ref ir.BlockRef) string {
	if ref == ir.NoBlock {
		return "caller"
	}
	return fmt.Sprintf("bb%d.%s", ref, f.Block(ref).Name)
}

func target(f *ir.Func, ref ir.BlockRef) string {
	if ref == ir.NoBlock {
		return "to caller"
	}
	return "label %" + label(f, ref)
}

func args(f *ir.Func, refs []ir.ValueRef) string {
	parts := make([]string, len(refs))
	for i, ref := range refs {
		parts[i] = f.ValueName(ref)
	}
	return strings.Join(parts, ", ")
}

func formatInstr(f *ir.Func, in *ir.Instr) string {
	var body string
	switch in.Kind {
	case ir.InstrAlloca:
		body = fmt.Sprintf("%s = alloca", f.ValueName(in.Result))
	case ir.InstrLoad:
		body = fmt.Sprintf("%s = load %s", f.ValueName(in.Result), f.ValueName(in.Args[0]))
	case ir.InstrStore:
		body = fmt.Sprintf("store %s, %s", f.ValueName(in.Args[0]), f.ValueName(in.Args[1]))
	case ir.InstrCall:
		body = fmt.Sprintf("%s = call %s(%s)",
			f.ValueName(in.Result), calleeColor.Sprintf("@%s", in.Callee), args(f, in.Args))
	case ir.InstrICmpEq:
		body = fmt.Sprintf("%s = icmp eq %s, %s",
			f.ValueName(in.Result), f.ValueName(in.Args[0]), f.ValueName(in.Args[1]))
	case ir.InstrExtract:
		body = fmt.Sprintf("%s = extractvalue %s, %d",
			f.ValueName(in.Result), f.ValueName(in.Args[0]), in.Index)
	case ir.InstrLandingPad:
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s = landingpad", f.ValueName(in.Result))
		if in.Cleanup {
			sb.WriteString(" cleanup")
		}
		for _, clause := range in.Clauses {
			fmt.Fprintf(&sb, " catch %s", f.ValueName(clause))
		}
		body = sb.String()
	case ir.InstrCatchPad:
		body = fmt.Sprintf("%s = catchpad [%s]", f.ValueName(in.Result), args(f, in.Args))
	case ir.InstrCleanupPad:
		body = fmt.Sprintf("%s = cleanuppad", f.ValueName(in.Result))
	default:
		body = fmt.Sprintf("<unknown instr %d>", in.Kind)
	}
	if in.Parent != ir.NoValue && (in.Kind != ir.InstrCatchPad && in.Kind != ir.InstrCleanupPad) {
		body += fmt.Sprintf(" [within %s]", f.ValueName(in.Parent))
	}
	return body
}

func formatTerm(f *ir.Func, t *ir.Term) string {
	switch t.Kind {
	case ir.TermBr:
		return fmt.Sprintf("br %s", target(f, t.Succs[0]))
	case ir.TermCondBr:
		return fmt.Sprintf("br %s, %s, %s",
			f.ValueName(t.Cond), target(f, t.Succs[0]), target(f, t.Succs[1]))
	case ir.TermSwitch:
		var sb strings.Builder
		fmt.Fprintf(&sb, "switch %s, %s [", f.ValueName(t.Cond), target(f, t.Succs[0]))
		for i, c := range t.Cases {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%d: %s", c, target(f, t.Succs[i+1]))
		}
		sb.WriteString("]")
		return sb.String()
	case ir.TermRet:
		if len(t.Args) == 0 {
			return "ret"
		}
		return fmt.Sprintf("ret %s", args(f, t.Args))
	case ir.TermUnreachable:
		return "unreachable"
	case ir.TermInvoke:
		return fmt.Sprintf("%s = invoke %s(%s) to %s unwind %s",
			f.ValueName(t.Result), calleeColor.Sprintf("@%s", t.Callee),
			args(f, t.Args), target(f, t.Succs[0]), target(f, t.Succs[1]))
	case ir.TermCatchSwitch:
		handlers := make([]string, len(t.Succs))
		for i, succ := range t.Succs {
			handlers[i] = target(f, succ)
		}
		return fmt.Sprintf("catchswitch [%s] unwind %s",
			strings.Join(handlers, ", "), target(f, t.Unwind))
	case ir.TermCatchRet:
		return fmt.Sprintf("catchret from %s to %s", f.ValueName(t.Pad), target(f, t.Succs[0]))
	case ir.TermCleanupRet:
		return fmt.Sprintf("cleanupret from %s unwind %s", f.ValueName(t.Pad), target(f, t.Unwind))
	default:
		return fmt.Sprintf("<unknown terminator %d>", t.Kind)
	}
}
