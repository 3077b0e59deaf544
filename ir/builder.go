package ir

import "fmt"

// Builder appends instructions and terminators to one block at a time. The
// statement walker and the unwind lowering share a single builder so that
// "the current block" means the same thing to both.
type Builder struct {
	f   *Func
	cur BlockRef
}

// NewBuilder returns a builder positioned at the function's entry block.
func NewBuilder(f *Func) *Builder {
	return &Builder{f: f, cur: f.Entry()}
}

// Fn returns the function being built.
func (b *Builder) Fn() *Func { return b.f }

// Block returns the current insertion block.
func (b *Builder) Block() BlockRef { return b.cur }

// SetBlock moves the insertion point to blk.
func (b *Builder) SetBlock(blk BlockRef) {
	b.f.Block(blk) // validate the handle
	b.cur = blk
}

// Terminated reports whether the current block already has a terminator.
func (b *Builder) Terminated() bool {
	return b.f.Block(b.cur).Terminated()
}

func (b *Builder) append(in Instr) ValueRef {
	blk := b.f.Block(b.cur)
	blk.Instrs = append(blk.Instrs, in)
	return in.Result
}

func (b *Builder) result(name string) ValueRef {
	return b.f.newValue(value{kind: valInstr, name: name})
}

// Alloca reserves a named stack slot at the top of the entry block, after
// any slots already reserved there, so it dominates every use.
func (b *Builder) Alloca(name string) ValueRef {
	return b.f.AllocaInEntry(name)
}

// Load reads a stack slot.
func (b *Builder) Load(slot ValueRef) ValueRef {
	return b.append(Instr{Kind: InstrLoad, Result: b.result(""), Args: []ValueRef{slot}, Parent: NoValue})
}

// Store writes val into a stack slot.
func (b *Builder) Store(val, slot ValueRef) {
	b.append(Instr{Kind: InstrStore, Result: NoValue, Args: []ValueRef{val, slot}, Parent: NoValue})
}

// Call emits a call to the named function.
func (b *Builder) Call(callee string, args ...ValueRef) ValueRef {
	return b.append(Instr{Kind: InstrCall, Result: b.result(""), Callee: callee, Args: args, Parent: NoValue})
}

// ICmpEq compares two values for equality.
func (b *Builder) ICmpEq(x, y ValueRef) ValueRef {
	return b.append(Instr{Kind: InstrICmpEq, Result: b.result(""), Args: []ValueRef{x, y}, Parent: NoValue})
}

// Extract projects element idx out of an aggregate value.
func (b *Builder) Extract(agg ValueRef, idx int) ValueRef {
	return b.append(Instr{Kind: InstrExtract, Result: b.result(""), Args: []ValueRef{agg}, Index: idx, Parent: NoValue})
}

// LandingPad emits a landing pad instruction capturing the in-flight
// exception. Clauses and the cleanup flag are added afterwards, as the
// unwind dispatch is laid out.
func (b *Builder) LandingPad() ValueRef {
	return b.append(Instr{Kind: InstrLandingPad, Result: b.result("eh"), Parent: NoValue})
}

// CatchPad emits a catch funclet entry.
func (b *Builder) CatchPad(class, slot ValueRef) ValueRef {
	return b.append(Instr{Kind: InstrCatchPad, Result: b.result("catchpad"), Args: []ValueRef{class, slot}, Parent: NoValue})
}

// CleanupPad emits a cleanup funclet entry.
func (b *Builder) CleanupPad() ValueRef {
	return b.append(Instr{Kind: InstrCleanupPad, Result: b.result("cleanuppad"), Parent: NoValue})
}

func (b *Builder) terminate(t Term) {
	blk := b.f.Block(b.cur)
	if blk.Terminated() {
		panic(fmt.Sprintf("ir: block %q is already terminated", blk.Name))
	}
	blk.Term = t
}

// Br terminates the current block with an unconditional branch.
func (b *Builder) Br(target BlockRef) {
	b.terminate(Term{Kind: TermBr, Succs: []BlockRef{target}})
}

// CondBr terminates the current block with a conditional branch. weights is
// an opaque likelihood hint carried through untouched; pass nil for none.
func (b *Builder) CondBr(cond ValueRef, then, els BlockRef, weights any) {
	b.terminate(Term{Kind: TermCondBr, Cond: cond, Succs: []BlockRef{then, els}, Weights: weights})
}

// Ret terminates the current block with a return.
func (b *Builder) Ret(vals ...ValueRef) {
	b.terminate(Term{Kind: TermRet, Args: vals})
}

// Unreachable terminates a block control never falls out of.
func (b *Builder) Unreachable() {
	b.terminate(Term{Kind: TermUnreachable})
}

// Invoke emits a call that continues at normal and unwinds to unwind when
// the callee throws. Pass NoBlock to unwind straight to the caller.
func (b *Builder) Invoke(callee string, args []ValueRef, normal, unwind BlockRef) ValueRef {
	ref := b.result("")
	b.terminate(Term{
		Kind:   TermInvoke,
		Callee: callee,
		Args:   args,
		Result: ref,
		Succs:  []BlockRef{normal, unwind},
	})
	return ref
}

// CatchRet leaves a catch funclet and resumes normal flow at target.
func (b *Builder) CatchRet(pad ValueRef, target BlockRef) {
	b.terminate(Term{Kind: TermCatchRet, Pad: pad, Succs: []BlockRef{target}, Unwind: NoBlock})
}
