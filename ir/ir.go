// Package ir provides the basic-block and value primitives that the Sable
// backend mutates while lowering structured control flow. A function owns an
// arena of block records addressed by stable integer handles; every
// cross-reference between blocks (successors, unwind destinations, cached
// landing pads) is a handle, never a pointer, so interlinked graphs carry no
// ownership cycles.
//
// The package intentionally models only what the exception-handling lowering
// needs: allocas, loads/stores, calls, landing pads and funclet pads, and the
// terminators that wire them together. Instruction selection and everything
// below it consume this graph elsewhere.
package ir

import (
	"fmt"

	"github.com/gofrs/uuid"
)

// BlockRef is a stable handle for a basic block within a Func.
type BlockRef int

// NoBlock marks an absent block reference: an unset cache entry, or an
// "unwind to caller" destination on funclet terminators.
const NoBlock BlockRef = -1

// ValueRef is a stable handle for an SSA value or stack slot within a Func.
type ValueRef int

// NoValue marks an absent value reference.
const NoValue ValueRef = -1

// InstrKind identifies a non-terminator instruction.
type InstrKind int

const (
	// InstrAlloca reserves a stack slot. Allocas live at the top of the
	// entry block so they dominate every use.
	InstrAlloca InstrKind = iota
	// InstrLoad reads a stack slot: Args[0] is the slot.
	InstrLoad
	// InstrStore writes a stack slot: Args[0] is the value, Args[1] the slot.
	InstrStore
	// InstrCall calls the runtime or user function named by Callee.
	InstrCall
	// InstrICmpEq compares Args[0] and Args[1] for equality.
	InstrICmpEq
	// InstrExtract projects element Index out of the aggregate Args[0].
	InstrExtract
	// InstrLandingPad captures the in-flight exception as a
	// {pointer, selector} aggregate. Clauses lists the catch descriptors the
	// pad claims; Cleanup marks pads that must run cleanup code even when no
	// clause matches.
	InstrLandingPad
	// InstrCatchPad begins a catch funclet: Args[0] is the matched class
	// descriptor, Args[1] the slot the caught object is stored into.
	InstrCatchPad
	// InstrCleanupPad begins a cleanup funclet.
	InstrCleanupPad
)

// Instr is one non-terminator instruction.
type Instr struct {
	Kind    InstrKind
	Result  ValueRef // NoValue when the instruction produces nothing
	Args    []ValueRef
	Callee  string     // InstrCall
	Name    string     // InstrAlloca
	Index   int        // InstrExtract
	Cleanup bool       // InstrLandingPad
	Clauses []ValueRef // InstrLandingPad
	Parent  ValueRef   // funclet pad token the instruction executes under
}

// TermKind identifies a block terminator.
type TermKind int

const (
	// TermNone is an unterminated block, legal only mid-generation.
	TermNone TermKind = iota
	// TermBr branches unconditionally to Succs[0].
	TermBr
	// TermCondBr branches on Cond to Succs[0] (true) or Succs[1] (false).
	TermCondBr
	// TermSwitch dispatches on Cond: Succs[0] is the default, Succs[1+i]
	// is taken when Cond equals Cases[i].
	TermSwitch
	// TermRet returns from the function, with Args[0] if present.
	TermRet
	// TermUnreachable ends a block that control never falls out of.
	TermUnreachable
	// TermInvoke calls Callee and continues at Succs[0], unwinding to
	// Succs[1] if the callee throws.
	TermInvoke
	// TermCatchSwitch dispatches an in-flight exception to one of the
	// catchpad blocks in Succs, unwinding to Unwind (or the caller when
	// Unwind is NoBlock) if none matches.
	TermCatchSwitch
	// TermCatchRet leaves the catch funclet Pad and resumes normal control
	// flow at Succs[0].
	TermCatchRet
	// TermCleanupRet leaves the cleanup funclet Pad and continues unwinding
	// at Unwind (or the caller when Unwind is NoBlock).
	TermCleanupRet
)

// Term is a block terminator.
type Term struct {
	Kind   TermKind
	Cond   ValueRef
	Succs  []BlockRef
	Cases  []int64
	Callee string
	Args   []ValueRef
	Result ValueRef
	Pad    ValueRef
	Unwind BlockRef
	// Weights is an opaque branch-likelihood hint handed through to
	// downstream optimization; the lowering never inspects it.
	Weights any
}

// Successors returns every block the terminator can transfer control to,
// including funclet unwind destinations.
func (t *Term) Successors() []BlockRef {
	succs := make([]BlockRef, 0, len(t.Succs)+1)
	succs = append(succs, t.Succs...)
	if t.Unwind != NoBlock && (t.Kind == TermCatchSwitch || t.Kind == TermCleanupRet) {
		succs = append(succs, t.Unwind)
	}
	return succs
}

// Block is one basic block record. Instrs execute in order, then Term
// transfers control. A block with Term.Kind == TermNone is still being
// generated.
type Block struct {
	Name   string
	Instrs []Instr
	Term   Term
}

// Terminated reports whether the block already has a terminator.
func (b *Block) Terminated() bool {
	return b.Term.Kind != TermNone
}

type valueKind int

const (
	valInstr valueKind = iota
	valConst
	valGlobal
)

type value struct {
	kind valueKind
	name string
	i64  int64
}

// Func is the per-function generation context: the block arena, the value
// arena, and interned global references. All handles issued by a Func are
// meaningless outside it.
type Func struct {
	id      string
	name    string
	blocks  []*Block
	values  []value
	globals map[string]ValueRef
}

// NewFunc creates a function with an empty entry block.
func NewFunc(name string) *Func {
	f := &Func{
		id:      uuid.Must(uuid.NewV4()).String(),
		name:    name,
		globals: map[string]ValueRef{},
	}
	f.NewBlock("entry")
	return f
}

// ID returns the unique generation ID assigned to this function.
func (f *Func) ID() string { return f.id }

// Name returns the function name.
func (f *Func) Name() string { return f.name }

// NumBlocks returns the number of blocks in the arena, including dead ones.
func (f *Func) NumBlocks() int { return len(f.blocks) }

// Entry returns the handle of the entry block.
func (f *Func) Entry() BlockRef { return 0 }

// NewBlock appends a fresh, unterminated block to the arena.
func (f *Func) NewBlock(name string) BlockRef {
	f.blocks = append(f.blocks, &Block{Name: name})
	return BlockRef(len(f.blocks) - 1)
}

// Block resolves a handle. Out-of-range handles are programmer errors.
func (f *Func) Block(ref BlockRef) *Block {
	if ref < 0 || int(ref) >= len(f.blocks) {
		panic(fmt.Sprintf("ir: invalid block handle %d in %q", ref, f.name))
	}
	return f.blocks[ref]
}

func (f *Func) newValue(v value) ValueRef {
	f.values = append(f.values, v)
	return ValueRef(len(f.values) - 1)
}

// NewResult allocates a fresh instruction-result handle. Most callers go
// through Builder; the unwind lowering uses this directly when it rewrites
// already-terminated blocks.
func (f *Func) NewResult(name string) ValueRef {
	return f.newValue(value{kind: valInstr, name: name})
}

// AllocaInEntry reserves a named stack slot at the top of the entry block,
// after any slots already reserved there, so it dominates every use.
func (f *Func) AllocaInEntry(name string) ValueRef {
	ref := f.newValue(value{kind: valInstr, name: name})
	entry := f.Block(f.Entry())
	at := 0
	for at < len(entry.Instrs) && entry.Instrs[at].Kind == InstrAlloca {
		at++
	}
	entry.Instrs = append(entry.Instrs, Instr{})
	copy(entry.Instrs[at+1:], entry.Instrs[at:])
	entry.Instrs[at] = Instr{Kind: InstrAlloca, Result: ref, Name: name, Parent: NoValue}
	return ref
}

// ConstInt returns a handle for an integer constant.
func (f *Func) ConstInt(v int64) ValueRef {
	return f.newValue(value{kind: valConst, i64: v})
}

// Global returns the interned handle for a named global, such as a class
// descriptor consumed by the runtime type-matching routine.
func (f *Func) Global(name string) ValueRef {
	if ref, ok := f.globals[name]; ok {
		return ref
	}
	ref := f.newValue(value{kind: valGlobal, name: name})
	f.globals[name] = ref
	return ref
}

// ValueName renders a value handle for listings.
func (f *Func) ValueName(ref ValueRef) string {
	if ref == NoValue {
		return "<none>"
	}
	v := f.values[ref]
	switch v.kind {
	case valConst:
		return fmt.Sprintf("%d", v.i64)
	case valGlobal:
		return "@" + v.name
	default:
		if v.name != "" {
			return "%" + v.name
		}
		return fmt.Sprintf("%%v%d", ref)
	}
}

// ConstValue returns the integer behind ref when it is a constant.
func (f *Func) ConstValue(ref ValueRef) (int64, bool) {
	if ref == NoValue {
		return 0, false
	}
	v := f.values[ref]
	if v.kind != valConst {
		return 0, false
	}
	return v.i64, true
}

// IsGlobal reports whether the handle names a global.
func (f *Func) IsGlobal(ref ValueRef) bool {
	return ref != NoValue && f.values[ref].kind == valGlobal
}

// Predecessors returns every block whose terminator can reach ref. The scan
// walks the whole arena; the lowering only needs this for assertions and
// tests, never on a hot path.
func (f *Func) Predecessors(ref BlockRef) []BlockRef {
	var preds []BlockRef
	for i, blk := range f.blocks {
		for _, succ := range blk.Term.Successors() {
			if succ == ref {
				preds = append(preds, BlockRef(i))
				break
			}
		}
	}
	return preds
}

// ReplaceBlockUses redirects every terminator edge targeting from so that it
// targets to, returning the number of edges rewritten. Goto resolution uses
// this to retire placeholder targets once the real label block exists.
func (f *Func) ReplaceBlockUses(from, to BlockRef) int {
	n := 0
	for _, blk := range f.blocks {
		for i, succ := range blk.Term.Succs {
			if succ == from {
				blk.Term.Succs[i] = to
				n++
			}
		}
		if blk.Term.Unwind == from &&
			(blk.Term.Kind == TermCatchSwitch || blk.Term.Kind == TermCleanupRet) {
			blk.Term.Unwind = to
			n++
		}
	}
	return n
}

// SetLandingPadCleanup marks the landing pad instruction in blk as also
// covering cleanup-only unwinds.
func (f *Func) SetLandingPadCleanup(blk BlockRef) {
	pad := f.landingPadInstr(blk)
	pad.Cleanup = true
}

// AddLandingPadClause appends a catch clause descriptor to the landing pad
// instruction in blk.
func (f *Func) AddLandingPadClause(blk BlockRef, class ValueRef) {
	pad := f.landingPadInstr(blk)
	pad.Clauses = append(pad.Clauses, class)
}

func (f *Func) landingPadInstr(blk BlockRef) *Instr {
	instrs := f.Block(blk).Instrs
	for i := range instrs {
		if instrs[i].Kind == InstrLandingPad {
			return &instrs[i]
		}
	}
	panic(fmt.Sprintf("ir: block %q has no landing pad instruction", f.Block(blk).Name))
}
