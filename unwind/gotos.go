package unwind

import (
	"fmt"

	"github.com/sable-lang/sable/ir"
)

// gotoJump records a forward jump whose label has not been visited yet.
// Generation is a single depth-first pass, so the target block literally
// does not exist at the time the goto is emitted; the jump branches to a
// placeholder until the label is resolved.
type gotoJump struct {
	// Where the goto appears in the source, for diagnostics.
	loc ir.Loc

	// The block ending in the goto.
	sourceBlock ir.BlockRef

	// The placeholder branched to until the real target exists. As cleanup
	// scopes between the goto and its label are popped, the placeholder is
	// rewired through their cleanup code and replaced by a fresh one.
	tentativeTarget ir.BlockRef

	// The label the goto names.
	targetLabel string
}

// UnresolvedGotoError reports a goto whose label never appeared before the
// function's generation finished.
type UnresolvedGotoError struct {
	Label string
	Loc   ir.Loc
}

func (e *UnresolvedGotoError) Error() string {
	return fmt.Sprintf("goto label %q was never defined (at %s)", e.Label, e.Loc)
}
