package unwind

import (
	"fmt"

	"github.com/sable-lang/sable/ir"
)

// cleanupState tracks how many distinct continuations a cleanup scope has
// been asked to resume at. Promotion is one-way: Unused -> SingleTarget on
// the first request, SingleTarget -> Multiplexed when a second distinct
// continuation appears.
type cleanupState int

const (
	cleanupUnused cleanupState = iota
	cleanupSingleTarget
	cleanupMultiplexed
)

// exitTarget describes one way to leave a cleanup scope and continue
// execution somewhere else (normal exit, early return, break/continue,
// exception, goto). Its index in the target list doubles as the branch
// selector value for that continuation.
type exitTarget struct {
	// The block to branch to after running the cleanup.
	branchTarget ir.BlockRef

	// The blocks that want to continue at branchTarget after the cleanup.
	// Kept so selector stores can be inserted retroactively when the scope
	// is promoted from one target to two.
	sourceBlocks []ir.BlockRef

	// The physical copy of the cleanup body serving this target under the
	// funclet model, where the body cannot be shared across targets.
	cleanupBlocks []ir.BlockRef
}

// CleanupScope is a region of code that must run whenever control leaves an
// enclosing block, by any path, exactly once: a finally body or the
// destructor calls for scope-local values.
//
// Each cleanup body is materialized once under the selector model, however
// many ways there are to leave the scope; this is what keeps deeply nested
// scopes from exploding into an exponential number of blocks.
type CleanupScope struct {
	blocks   []ir.BlockRef
	state    cleanupState
	selector ir.ValueRef
	targets  []*exitTarget
}

// newCleanupScope captures the cleanup body, which must have been emitted
// into the contiguous block range [begin, end] immediately before pushing.
func newCleanupScope(f *ir.Func, begin, end ir.BlockRef) *CleanupScope {
	if end < begin {
		panic(fmt.Sprintf("unwind: cleanup body range inverted (%s after %s)",
			f.Block(begin).Name, f.Block(end).Name))
	}
	blocks := make([]ir.BlockRef, 0, end-begin+1)
	for b := begin; b <= end; b++ {
		blocks = append(blocks, b)
	}
	return &CleanupScope{blocks: blocks, selector: ir.NoValue}
}

// Begin returns the entry block of the cleanup body.
func (c *CleanupScope) Begin() ir.BlockRef { return c.blocks[0] }

// End returns the exit block of the cleanup body, which holds the
// continuation branch or selector dispatch.
func (c *CleanupScope) End() ir.BlockRef { return c.blocks[len(c.blocks)-1] }

// run arranges for the cleanup body to continue at continueWith once it has
// executed, and returns the block the caller should branch to from source.
// The first continuation costs nothing; a second distinct one promotes the
// scope to a branch-selector dispatch.
func (c *CleanupScope) run(f *ir.Func, source, continueWith ir.BlockRef) ir.BlockRef {
	switch c.state {
	case cleanupUnused:
		f.Block(c.End()).Term = ir.Term{Kind: ir.TermBr, Succs: []ir.BlockRef{continueWith}}
		c.targets = []*exitTarget{{
			branchTarget: continueWith,
			sourceBlocks: []ir.BlockRef{source},
		}}
		c.state = cleanupSingleTarget
		return c.Begin()

	case cleanupSingleTarget:
		if c.targets[0].branchTarget == continueWith {
			c.targets[0].sourceBlocks = append(c.targets[0].sourceBlocks, source)
			return c.Begin()
		}
		c.promote(f)
		return c.runMultiplexed(f, source, continueWith)

	case cleanupMultiplexed:
		return c.runMultiplexed(f, source, continueWith)
	}
	panic(fmt.Sprintf("unwind: cleanup scope in unknown state %d", c.state))
}

// promote converts the single unconditional continuation into a dispatch on
// a lazily created branch selector: the end block's branch is rewritten into
// a switch on the loaded selector, and every predecessor recorded so far gets
// a retroactive store of tag 0.
func (c *CleanupScope) promote(f *ir.Func) {
	end := f.Block(c.End())
	c.selector = f.AllocaInEntry(end.Name + ".sel")

	load := ir.Instr{
		Kind:   ir.InstrLoad,
		Result: f.NewResult(""),
		Args:   []ir.ValueRef{c.selector},
		Parent: ir.NoValue,
	}
	end.Instrs = append(end.Instrs, load)
	end.Term = ir.Term{
		Kind:  ir.TermSwitch,
		Cond:  load.Result,
		Succs: []ir.BlockRef{c.targets[0].branchTarget},
	}
	for _, src := range c.targets[0].sourceBlocks {
		c.storeTag(f, src, 0)
	}
	c.state = cleanupMultiplexed
}

func (c *CleanupScope) runMultiplexed(f *ir.Func, source, continueWith ir.BlockRef) ir.BlockRef {
	for i, t := range c.targets {
		if t.branchTarget == continueWith {
			t.sourceBlocks = append(t.sourceBlocks, source)
			c.storeTag(f, source, int64(i))
			return c.Begin()
		}
	}
	tag := int64(len(c.targets))
	c.targets = append(c.targets, &exitTarget{
		branchTarget: continueWith,
		sourceBlocks: []ir.BlockRef{source},
	})
	end := f.Block(c.End())
	end.Term.Succs = append(end.Term.Succs, continueWith)
	end.Term.Cases = append(end.Term.Cases, tag)
	c.storeTag(f, source, tag)
	return c.Begin()
}

// storeTag records which continuation to resume at in the branch selector,
// in the block that is about to enter the cleanup. The store lands before
// the block's terminator regardless of when it is inserted.
func (c *CleanupScope) storeTag(f *ir.Func, blk ir.BlockRef, tag int64) {
	b := f.Block(blk)
	b.Instrs = append(b.Instrs, ir.Instr{
		Kind:   ir.InstrStore,
		Result: ir.NoValue,
		Args:   []ir.ValueRef{f.ConstInt(tag), c.selector},
		Parent: ir.NoValue,
	})
}

// runCopying is the funclet-model counterpart of run: cleanup bodies inside
// funclets cannot be multiply entered and exited, so every distinct
// continuation gets its own physical copy of the body. Copies are bounded by
// the number of distinct targets, not call sites; a repeated target reuses
// its existing copy.
//
// When pad is a valid funclet token the copy executes inside that funclet and
// ends by resuming unwinding at unwindTo (NoBlock for the caller); otherwise
// it ends with a plain branch to continueWith.
func (c *CleanupScope) runCopying(f *ir.Func, source, continueWith, unwindTo ir.BlockRef, pad ir.ValueRef) ir.BlockRef {
	if c.selector != ir.NoValue {
		panic("unwind: cleanup scope already multiplexed with a branch selector")
	}
	for _, t := range c.targets {
		if t.branchTarget == continueWith && len(t.cleanupBlocks) > 0 {
			t.sourceBlocks = append(t.sourceBlocks, source)
			return t.cleanupBlocks[0]
		}
	}
	copies := f.CloneBlocks(c.blocks, fmt.Sprintf(".copy%d", len(c.targets)))
	endCopy := f.Block(copies[len(copies)-1])
	if pad != ir.NoValue {
		for _, ref := range copies {
			blk := f.Block(ref)
			for i := range blk.Instrs {
				blk.Instrs[i].Parent = pad
			}
		}
		endCopy.Term = ir.Term{Kind: ir.TermCleanupRet, Pad: pad, Unwind: unwindTo}
	} else {
		endCopy.Term = ir.Term{Kind: ir.TermBr, Succs: []ir.BlockRef{continueWith}}
	}
	c.targets = append(c.targets, &exitTarget{
		branchTarget:  continueWith,
		sourceBlocks:  []ir.BlockRef{source},
		cleanupBlocks: copies,
	})
	return copies[0]
}

// numExitTargets is used by assertions and tests.
func (c *CleanupScope) numExitTargets() int { return len(c.targets) }

// hasSelector reports whether the scope was promoted to selector dispatch.
func (c *CleanupScope) hasSelector() bool { return c.selector != ir.NoValue }
