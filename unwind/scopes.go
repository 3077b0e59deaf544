// Package unwind lowers structured try/catch/finally constructs and
// automatic-destruction obligations into an unwind-based control-flow graph.
//
// A tree-walking code generator pushes a cleanup or try/catch scope on
// entering a block, emits the block's body, and pops on exit, in strict
// depth-first correspondence with the syntax tree. Whenever code must leave
// a scope early (fallthrough, return, break/continue, goto, exception) it
// asks the Scopes orchestrator to wire a branch through the cleanups between
// the current depth and a target depth. Cursors, cached landing pads, and
// pending-goto lists are only meaningful relative to that traversal and
// become invalid if scopes are popped out of order.
//
// Two unwind personality models are supported: selector multiplexing, where
// one materialized cleanup body dispatches on a branch-selector variable,
// and funclet copying, where each distinct exit target gets its own physical
// copy of the cleanup body. The model is chosen once per function by target
// ABI.
package unwind

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/sable-lang/sable/ir"
)

// Cursor identifies a position on the stack of active cleanup scopes. Since
// a contiguous part of the stack always runs in order, two cursors (one of
// which is usually the top of the stack) identify a sequence of cleanups to
// run. A cursor is only valid until a scope at or below it is popped.
type Cursor int

// Model selects the unwind personality the function is lowered against.
type Model int

const (
	// ModelSelector shares one cleanup body per scope and multiplexes its
	// continuation through a branch-selector variable (table-based
	// unwinding).
	ModelSelector Model = iota

	// ModelFunclet copies the cleanup body per distinct exit target and
	// wires explicit catchswitch/catchpad/cleanuppad regions (funclet-based
	// unwinding).
	ModelFunclet
)

func (m Model) String() string {
	switch m {
	case ModelSelector:
		return "selector"
	case ModelFunclet:
		return "funclet"
	default:
		return fmt.Sprintf("model(%d)", int(m))
	}
}

// Config holds orchestrator options. Pass nil for defaults.
type Config struct {
	// Model is the unwind personality to lower against.
	Model Model

	// Logger receives debug-level trace events for scope pushes and pops,
	// landing pad emission, and goto resolution. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Scopes manages the try/catch and cleanup scope stacks for one function's
// generation pass, mirroring the lexical nesting currently being generated.
// All of its state lives exactly as long as that pass.
type Scopes struct {
	f *ir.Func
	b *ir.Builder
	p personality

	log zerolog.Logger

	// Function-wide singletons, created lazily on first need. The slots live
	// in the entry block so they dominate every use; the resume block is
	// shared by every landing pad that must re-raise.
	ehPtrSlot         ir.ValueRef
	ehSelectorSlot    ir.ValueRef
	resumeUnwindBlock ir.BlockRef

	tryCatchScopes []*TryCatchScope

	// cleanupScopes[i] holds the information to go from cursor i+1 to
	// cursor i.
	cleanupScopes []*CleanupScope

	// unresolvedGotos[i] are the pending gotos registered at cleanup depth
	// i; index 0 is the top level. When depth i is popped, its records are
	// rewired through the popped cleanup and migrate to depth i-1.
	unresolvedGotos [][]gotoJump

	// landingPads[i] is a stack of cached landing pads for cleanup depth i;
	// one entry is pushed/popped per try/catch scope entered/left at that
	// depth, on top of a base entry for "no try/catch".
	landingPads [][]ir.BlockRef
}

// New creates the scope orchestrator for one function. The builder is the
// same one the statement walker emits through, so "the current block" is
// shared between them.
func New(b *ir.Builder, cfg *Config) *Scopes {
	s := &Scopes{
		f:                 b.Fn(),
		b:                 b,
		log:               zerolog.Nop(),
		ehPtrSlot:         ir.NoValue,
		ehSelectorSlot:    ir.NoValue,
		resumeUnwindBlock: ir.NoBlock,
		unresolvedGotos:   [][]gotoJump{nil},
		landingPads:       [][]ir.BlockRef{{ir.NoBlock}},
	}
	model := ModelSelector
	if cfg != nil {
		model = cfg.Model
		if cfg.Logger != nil {
			s.log = *cfg.Logger
		}
	}
	switch model {
	case ModelSelector:
		s.p = &selectorModel{}
	case ModelFunclet:
		s.p = &funcletModel{}
	default:
		panic(fmt.Sprintf("unwind: unknown personality model %d", model))
	}
	return s
}

// Model returns the personality model the function is lowered against.
func (s *Scopes) Model() Model { return s.p.model() }

// Empty reports whether no try/catch or cleanup scope is active.
func (s *Scopes) Empty() bool {
	return len(s.tryCatchScopes) == 0 && len(s.cleanupScopes) == 0
}

// CurrentCleanupScope returns a cursor for the current cleanup depth, for
// later use with RunCleanups et al. The cursor is invalidated when a scope
// at or below it is popped.
func (s *Scopes) CurrentCleanupScope() Cursor {
	return Cursor(len(s.cleanupScopes))
}

// PushTryCatch registers a try/catch scope. The catch bodies are emitted
// immediately, before the scope becomes reachable from any landing pad, so
// they are shared rather than duplicated per pad. end is the try
// continuation block that handler bodies fall through to.
func (s *Scopes) PushTryCatch(catches []Catch, end ir.BlockRef) {
	tcs := s.p.newTryCatchScope(s, catches, end)
	s.tryCatchScopes = append(s.tryCatchScopes, tcs)
	cur := s.CurrentCleanupScope()
	s.landingPads[cur] = append(s.landingPads[cur], ir.NoBlock)
	s.log.Debug().
		Int("depth", int(cur)).
		Int("catches", len(catches)).
		Msg("push try/catch scope")
}

// PopTryCatch unregisters the innermost try/catch scope.
func (s *Scopes) PopTryCatch() {
	n := len(s.tryCatchScopes)
	if n == 0 {
		panic("unwind: no try/catch scope to pop")
	}
	s.tryCatchScopes = s.tryCatchScopes[:n-1]
	cur := s.CurrentCleanupScope()
	pads := s.landingPads[cur]
	if len(pads) < 2 {
		panic("unwind: try/catch popped at a different cleanup depth than it was pushed")
	}
	s.landingPads[cur] = pads[:len(pads)-1]
	s.log.Debug().Int("depth", int(cur)).Msg("pop try/catch scope")
}

// IsCatchingNonExceptions reports whether any active catch handles
// throwables outside the standard exception hierarchy.
func (s *Scopes) IsCatchingNonExceptions() bool {
	for _, tcs := range s.tryCatchScopes {
		if tcs.catchesNonExceptions {
			return true
		}
	}
	return false
}

// PushCleanup registers a piece of cleanup code emitted into the contiguous
// block range [begin, end]. The end block must not be terminated yet; its
// terminator is added as needed, based on what follow-up blocks code from
// within the scope branches to.
func (s *Scopes) PushCleanup(begin, end ir.BlockRef) {
	if s.f.Block(end).Terminated() {
		panic(fmt.Sprintf("unwind: cleanup end block %q is already terminated",
			s.f.Block(end).Name))
	}
	s.cleanupScopes = append(s.cleanupScopes, newCleanupScope(s.f, begin, end))
	s.unresolvedGotos = append(s.unresolvedGotos, nil)
	s.landingPads = append(s.landingPads, []ir.BlockRef{ir.NoBlock})
	s.log.Debug().
		Int("depth", int(s.CurrentCleanupScope())).
		Str("begin", s.f.Block(begin).Name).
		Msg("push cleanup scope")
}

// RunCleanups terminates the current block with a branch chain that runs
// every cleanup between the current depth and targetScope, innermost first,
// finally continuing at continueWith.
func (s *Scopes) RunCleanups(targetScope Cursor, continueWith ir.BlockRef) {
	s.runCleanups(s.CurrentCleanupScope(), targetScope, continueWith)
}

func (s *Scopes) runCleanups(sourceScope, targetScope Cursor, continueWith ir.BlockRef) {
	if targetScope > sourceScope {
		panic(fmt.Sprintf("unwind: cleanup cursor %d above current depth %d",
			targetScope, sourceScope))
	}
	if targetScope == sourceScope {
		s.b.Br(continueWith)
		return
	}
	s.p.runCleanups(s, sourceScope, targetScope, continueWith)
}

// PopCleanups pops every cleanup scope above targetScope. This is pure
// bookkeeping and emits no control flow; call RunCleanups beforehand. It is
// decoupled because a scope may serve several run requests (a goto, then a
// later fallthrough) before it is finally popped.
//
// Gotos still unresolved at a popped depth necessarily leave that scope, so
// its cleanup is threaded in at each goto site and the record migrates one
// level out.
func (s *Scopes) PopCleanups(targetScope Cursor) {
	cur := s.CurrentCleanupScope()
	if targetScope > cur {
		panic(fmt.Sprintf("unwind: cleanup cursor %d above current depth %d",
			targetScope, cur))
	}
	for i := cur; i > targetScope; i-- {
		for _, g := range s.unresolvedGotos[i] {
			after := s.f.NewBlock("goto.unresolved")
			entry := s.p.threadGotoCleanup(s, s.cleanupScopes[i-1], g, after)
			s.f.ReplaceBlockUses(g.tentativeTarget, entry)
			g.tentativeTarget = after
			s.unresolvedGotos[i-1] = append(s.unresolvedGotos[i-1], g)
			s.log.Debug().
				Str("label", g.targetLabel).
				Int("depth", int(i)).
				Msg("goto migrated out of popped cleanup scope")
		}
		s.unresolvedGotos = s.unresolvedGotos[:i]
		s.landingPads = s.landingPads[:i]
		s.cleanupScopes = s.cleanupScopes[:i-1]
	}
}

// RegisterUnresolvedGoto terminates the current block with a jump to a
// placeholder target, to be wired to the real label block by a later
// TryResolveGotos call.
func (s *Scopes) RegisterUnresolvedGoto(loc ir.Loc, label string) {
	tentative := s.f.NewBlock("goto.unresolved")
	source := s.b.Block()
	s.b.Br(tentative)
	cur := s.CurrentCleanupScope()
	s.unresolvedGotos[cur] = append(s.unresolvedGotos[cur], gotoJump{
		loc:             loc,
		sourceBlock:     source,
		tentativeTarget: tentative,
		targetLabel:     label,
	})
	s.log.Debug().Str("label", label).Int("depth", int(cur)).Msg("register unresolved goto")
}

// TryResolveGotos wires every pending goto naming label to targetBlock,
// running any cleanup scopes between the goto's recorded depth and the
// current depth, innermost first. Records registered below the current
// depth are jumps into a scope still being generated; they stay pending for
// the caller to diagnose.
func (s *Scopes) TryResolveGotos(label string, targetBlock ir.BlockRef) {
	cur := s.CurrentCleanupScope()
	for depth := range s.unresolvedGotos {
		kept := s.unresolvedGotos[depth][:0]
		for _, g := range s.unresolvedGotos[depth] {
			if g.targetLabel != label {
				kept = append(kept, g)
				continue
			}
			switch {
			case Cursor(depth) == cur:
				s.f.ReplaceBlockUses(g.tentativeTarget, targetBlock)
			case Cursor(depth) > cur:
				// The label lies outside cleanups still active at the goto
				// site; thread them now, innermost first.
				continueWith := targetBlock
				for i := cur; i < Cursor(depth); i++ {
					continueWith = s.p.threadGotoCleanup(s, s.cleanupScopes[i], g, continueWith)
				}
				s.f.ReplaceBlockUses(g.tentativeTarget, continueWith)
			default:
				kept = append(kept, g)
				continue
			}
			s.log.Debug().Str("label", label).Msg("goto resolved")
		}
		s.unresolvedGotos[depth] = kept
	}
}

// LandingPad returns the landing pad honoring the current catches and
// cleanups, emitting and caching it on first request at this depth. Many
// throw sites at the same depth share one pad. Under the funclet model with
// nothing to unwind through, NoBlock is returned, meaning unwind straight to
// the caller.
func (s *Scopes) LandingPad() ir.BlockRef {
	cur := s.CurrentCleanupScope()
	pads := s.landingPads[cur]
	if pads[len(pads)-1] == ir.NoBlock {
		pads[len(pads)-1] = s.p.emitLandingPad(s)
		s.log.Debug().Int("depth", int(cur)).Msg("landing pad emitted")
	}
	return pads[len(pads)-1]
}

// Finish reports every goto still unresolved when the function's generation
// completes. A non-nil result means the generation is incomplete; the
// front end owns the user-facing diagnostic.
func (s *Scopes) Finish() error {
	var result *multierror.Error
	for _, gotos := range s.unresolvedGotos {
		for _, g := range gotos {
			result = multierror.Append(result, &UnresolvedGotoError{
				Label: g.targetLabel,
				Loc:   g.loc,
			})
		}
	}
	return result.ErrorOrNil()
}

// getOrCreateEhPtrSlot returns the slot holding the exception object pointer
// while a landing pad is active. A single entry-block slot dominates every
// use, including the shared resume block and any cleanup joined from
// multiple predecessors.
func (s *Scopes) getOrCreateEhPtrSlot() ir.ValueRef {
	if s.ehPtrSlot == ir.NoValue {
		s.ehPtrSlot = s.f.AllocaInEntry("eh.ptr")
	}
	return s.ehPtrSlot
}

// getOrCreateEhSelectorSlot is the selector-value counterpart of
// getOrCreateEhPtrSlot; dispatch blocks downstream of a cleanup reload the
// selector from here.
func (s *Scopes) getOrCreateEhSelectorSlot() ir.ValueRef {
	if s.ehSelectorSlot == ir.NoValue {
		s.ehSelectorSlot = s.f.AllocaInEntry("eh.selector")
	}
	return s.ehSelectorSlot
}

// getOrCreateResumeUnwindBlock returns the block that re-raises the captured
// exception. One shared block suffices because the exception pointer is
// reloaded from its slot.
func (s *Scopes) getOrCreateResumeUnwindBlock() ir.BlockRef {
	if s.resumeUnwindBlock == ir.NoBlock {
		saved := s.b.Block()
		s.resumeUnwindBlock = s.f.NewBlock("eh.resume")
		s.b.SetBlock(s.resumeUnwindBlock)
		ptr := s.b.Load(s.getOrCreateEhPtrSlot())
		s.b.Call("sable.eh.resumeUnwind", ptr)
		s.b.Unreachable()
		s.b.SetBlock(saved)
	}
	return s.resumeUnwindBlock
}
