package unwind

import (
	"github.com/sable-lang/sable/ir"
)

// Class describes a catchable throwable class, matched against the in-flight
// exception by the runtime's type-matching routine.
type Class struct {
	Name string

	// NonException marks classes outside the standard exception hierarchy
	// (the throwable root itself, or unrecoverable error classes). Catching
	// one means the function's unwind dispatch must consider throwables the
	// default tables would skip.
	NonException bool
}

// Catch is one catch clause as supplied by the front end: the class to
// match, an emitter for the handler body, and an opaque branch-likelihood
// hint forwarded to the type-match branch.
type Catch struct {
	Class   *Class
	Body    func(b *ir.Builder, exc ir.ValueRef)
	Weights any
}

// CatchBlock is the emitted form of a catch clause, consumed during landing
// pad construction. Each catch body is emitted exactly once but may be the
// target of many landing pads, in case of nested catch or cleanup scopes.
type CatchBlock struct {
	// ClassInfo references the class descriptor global the runtime matches
	// the exception object against.
	ClassInfo ir.ValueRef

	// Body is the block to branch to when the exception type matches.
	Body ir.BlockRef

	// Slot is the stack slot the catchpad stores the caught object into.
	// Funclet model only.
	Slot ir.ValueRef

	// Weights is the branch-likelihood hint for the match branch.
	Weights any
}

// TryCatchScope is the scope for one try/catch construct. The catch bodies
// are emitted when the scope is constructed, before any landing pad can
// reach them.
type TryCatchScope struct {
	// The cleanup depth at try entry. Cleanups pushed inside the try body
	// lie inside the try and are skipped when transferring to a handler.
	cleanupScope Cursor

	catchesNonExceptions bool
	catchBlocks          []CatchBlock

	// catchSwitch is the dispatch block under the funclet model, where catch
	// selection happens in a catchswitch rather than a landing pad chain.
	catchSwitch ir.BlockRef
}

// CleanupScope returns the cleanup depth that was active at try entry.
func (t *TryCatchScope) CleanupScope() Cursor { return t.cleanupScope }

// IsCatchingNonExceptions reports whether any handler matches a throwable
// class broader than the standard exception root.
func (t *TryCatchScope) IsCatchingNonExceptions() bool { return t.catchesNonExceptions }

// CatchBlocks returns the catch descriptors in declared order; dispatch is
// first match wins.
func (t *TryCatchScope) CatchBlocks() []CatchBlock { return t.catchBlocks }
