package unwind

import (
	"github.com/sable-lang/sable/ir"
)

// personality is the capability interface the orchestrator delegates
// model-specific graph construction to. The two implementations are
// structurally parallel renditions of the same contract; one is chosen per
// function by target ABI and injected at construction.
type personality interface {
	model() Model

	// newTryCatchScope emits the catch bodies and any model-specific
	// dispatch structure for one try/catch construct.
	newTryCatchScope(s *Scopes, catches []Catch, end ir.BlockRef) *TryCatchScope

	// runCleanups terminates the builder's current block with a chain that
	// runs cleanups (target, source], innermost first, then continues at
	// continueWith. Only called with target < source.
	runCleanups(s *Scopes, sourceScope, targetScope Cursor, continueWith ir.BlockRef)

	// threadGotoCleanup wires one cleanup scope between a pending goto and
	// continueWith, returning the block the goto's placeholder should be
	// redirected to.
	threadGotoCleanup(s *Scopes, c *CleanupScope, g gotoJump, continueWith ir.BlockRef) ir.BlockRef

	// emitLandingPad builds the unwind dispatch for the current depth.
	emitLandingPad(s *Scopes) ir.BlockRef
}

// selectorModel lowers against table-based unwinding: landing pad
// instructions capture the exception, cleanups are shared bodies multiplexed
// by branch selectors, and handler dispatch is a chain of type-id compares.
type selectorModel struct{}

func (p *selectorModel) model() Model { return ModelSelector }

func (p *selectorModel) newTryCatchScope(s *Scopes, catches []Catch, end ir.BlockRef) *TryCatchScope {
	f, b := s.f, s.b
	saved := b.Block()
	tcs := &TryCatchScope{
		cleanupScope: s.CurrentCleanupScope(),
		catchSwitch:  ir.NoBlock,
	}
	for _, cat := range catches {
		body := f.NewBlock("catch." + cat.Class.Name)
		b.SetBlock(body)
		ptr := b.Load(s.getOrCreateEhPtrSlot())
		exc := b.Call("sable.eh.enterCatch", ptr)
		if cat.Body != nil {
			cat.Body(b, exc)
		}
		if !b.Terminated() {
			b.Br(end)
		}
		tcs.catchBlocks = append(tcs.catchBlocks, CatchBlock{
			ClassInfo: f.Global("typeinfo." + cat.Class.Name),
			Body:      body,
			Slot:      ir.NoValue,
			Weights:   cat.Weights,
		})
		tcs.catchesNonExceptions = tcs.catchesNonExceptions || cat.Class.NonException
	}
	b.SetBlock(saved)
	return tcs
}

func (p *selectorModel) runCleanups(s *Scopes, sourceScope, targetScope Cursor, continueWith ir.BlockRef) {
	// All selector stores land in the origin block, which dominates the
	// whole chain; the cleanups themselves are wired outermost-first so
	// that each inner one continues at the entry of the next-outer one.
	origin := s.b.Block()
	for i := targetScope; i < sourceScope; i++ {
		continueWith = s.cleanupScopes[i].run(s.f, origin, continueWith)
	}
	s.b.Br(continueWith)
}

func (p *selectorModel) threadGotoCleanup(s *Scopes, c *CleanupScope, g gotoJump, continueWith ir.BlockRef) ir.BlockRef {
	return c.run(s.f, g.sourceBlock, continueWith)
}

// emitLandingPad builds one landing pad for the current depth: capture the
// exception into the singleton slots, then walk the active try/catch scopes
// innermost-out, interleaving cleanup runs where cleanup depths lie between
// adjacent scopes, testing each scope's catches in declared order, and
// finally either running the remaining cleanups into the shared resume
// block or branching to it directly.
func (p *selectorModel) emitLandingPad(s *Scopes) ir.BlockRef {
	f, b := s.f, s.b
	saved := b.Block()

	pad := f.NewBlock("landing.pad")
	b.SetBlock(pad)
	agg := b.LandingPad()
	ptr := b.Extract(agg, 0)
	sel := b.Extract(agg, 1)
	b.Store(ptr, s.getOrCreateEhPtrSlot())
	b.Store(sel, s.getOrCreateEhSelectorSlot())

	lastCleanup := s.CurrentCleanupScope()
	for i := len(s.tryCatchScopes) - 1; i >= 0; i-- {
		tcs := s.tryCatchScopes[i]
		if tcs.cleanupScope < lastCleanup {
			f.SetLandingPadCleanup(pad)
			next := f.NewBlock("eh.dispatch")
			s.runCleanups(lastCleanup, tcs.cleanupScope, next)
			lastCleanup = tcs.cleanupScope
			b.SetBlock(next)
			// The selector value no longer dominates this block; reload it.
			sel = b.Load(s.getOrCreateEhSelectorSlot())
		}
		for _, cb := range tcs.catchBlocks {
			f.AddLandingPadClause(pad, cb.ClassInfo)
			typeID := b.Call("sable.eh.typeidFor", cb.ClassInfo)
			match := b.ICmpEq(sel, typeID)
			next := f.NewBlock("eh.next")
			b.CondBr(match, cb.Body, next, cb.Weights)
			b.SetBlock(next)
		}
	}
	if lastCleanup > 0 {
		f.SetLandingPadCleanup(pad)
		s.runCleanups(lastCleanup, 0, s.getOrCreateResumeUnwindBlock())
	} else {
		b.Br(s.getOrCreateResumeUnwindBlock())
	}

	b.SetBlock(saved)
	return pad
}

// funcletModel lowers against funclet-based unwinding: catch dispatch is a
// catchswitch over catchpads, cleanups on the unwind path run inside
// cleanuppad funclets, and every distinct cleanup exit target gets its own
// physical copy of the body, since funclet regions cannot share entries and
// exits.
type funcletModel struct{}

func (p *funcletModel) model() Model { return ModelFunclet }

func (p *funcletModel) newTryCatchScope(s *Scopes, catches []Catch, end ir.BlockRef) *TryCatchScope {
	f, b := s.f, s.b
	saved := b.Block()
	tcs := &TryCatchScope{
		cleanupScope: s.CurrentCleanupScope(),
		catchSwitch:  ir.NoBlock,
	}

	// The catchswitch continues unwinding at whatever pad was active before
	// this scope, fixed now, at construction.
	outer := ir.NoBlock
	if !s.Empty() {
		outer = s.LandingPad()
	}

	for _, cat := range catches {
		slot := f.AllocaInEntry("catch." + cat.Class.Name + ".slot")
		body := f.NewBlock("catch." + cat.Class.Name)
		b.SetBlock(body)
		exc := b.Load(slot)
		if cat.Body != nil {
			cat.Body(b, exc)
		}
		if !b.Terminated() {
			b.Br(end)
		}
		tcs.catchBlocks = append(tcs.catchBlocks, CatchBlock{
			ClassInfo: f.Global("typeinfo." + cat.Class.Name),
			Body:      body,
			Slot:      slot,
			Weights:   cat.Weights,
		})
		tcs.catchesNonExceptions = tcs.catchesNonExceptions || cat.Class.NonException
	}

	dispatch := f.NewBlock("catch.dispatch")
	pads := make([]ir.BlockRef, 0, len(tcs.catchBlocks))
	for _, cb := range tcs.catchBlocks {
		padBlk := f.NewBlock("catch.pad")
		b.SetBlock(padBlk)
		token := b.CatchPad(cb.ClassInfo, cb.Slot)
		b.CatchRet(token, cb.Body)
		pads = append(pads, padBlk)
	}
	f.Block(dispatch).Term = ir.Term{
		Kind:   ir.TermCatchSwitch,
		Succs:  pads,
		Unwind: outer,
	}
	tcs.catchSwitch = dispatch

	b.SetBlock(saved)
	return tcs
}

func (p *funcletModel) runCleanups(s *Scopes, sourceScope, targetScope Cursor, continueWith ir.BlockRef) {
	origin := s.b.Block()
	for i := targetScope; i < sourceScope; i++ {
		continueWith = s.cleanupScopes[i].runCopying(s.f, origin, continueWith, ir.NoBlock, ir.NoValue)
	}
	s.b.Br(continueWith)
}

func (p *funcletModel) threadGotoCleanup(s *Scopes, c *CleanupScope, g gotoJump, continueWith ir.BlockRef) ir.BlockRef {
	return c.runCopying(s.f, g.sourceBlock, continueWith, ir.NoBlock, ir.NoValue)
}

func (p *funcletModel) emitLandingPad(s *Scopes) ir.BlockRef {
	return p.padFor(s, s.CurrentCleanupScope())
}

// padFor returns the unwind destination for code at the given cleanup depth:
// the innermost catchswitch, reached through one cleanup pad per cleanup
// depth in between, built outermost-first and cached per depth. NoBlock
// means unwind straight to the caller.
func (p *funcletModel) padFor(s *Scopes, depth Cursor) ir.BlockRef {
	var covered Cursor
	pad := ir.NoBlock
	if n := len(s.tryCatchScopes); n > 0 {
		top := s.tryCatchScopes[n-1]
		covered = top.cleanupScope
		pad = top.catchSwitch
	}
	for i := covered + 1; i <= depth; i++ {
		if cached := s.cachedPadAt(i); cached != ir.NoBlock {
			pad = cached
			continue
		}
		pad = p.runCleanupPad(s, i, pad)
		s.setCachedPadAt(i, pad)
	}
	return pad
}

// runCleanupPad builds the cleanup funclet entry for one cleanup depth: a
// cleanuppad token followed by a fresh copy of the cleanup body ending in a
// cleanupret to the next-outer unwind destination.
func (p *funcletModel) runCleanupPad(s *Scopes, scope Cursor, unwindTo ir.BlockRef) ir.BlockRef {
	f, b := s.f, s.b
	saved := b.Block()
	padBlk := f.NewBlock("cleanup.pad")
	b.SetBlock(padBlk)
	token := b.CleanupPad()
	body := s.cleanupScopes[scope-1].runCopying(f, padBlk, unwindTo, unwindTo, token)
	b.Br(body)
	b.SetBlock(saved)
	return padBlk
}

func (s *Scopes) cachedPadAt(depth Cursor) ir.BlockRef {
	pads := s.landingPads[depth]
	return pads[len(pads)-1]
}

func (s *Scopes) setCachedPadAt(depth Cursor, pad ir.BlockRef) {
	pads := s.landingPads[depth]
	pads[len(pads)-1] = pad
}
