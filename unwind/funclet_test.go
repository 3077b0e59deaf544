package unwind

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sable-lang/sable/ir"
)

func TestFuncletCatchDispatch(t *testing.T) {
	f, b, s := newTestScopes(ModelFunclet)
	end := f.NewBlock("try.cont")
	s.PushTryCatch([]Catch{
		{Class: &Class{Name: "E1"}, Body: func(b *ir.Builder, exc ir.ValueRef) {
			b.Call("handleE1", exc)
		}},
		{Class: &Class{Name: "E2"}},
	}, end)

	// The innermost unwind destination is the catchswitch itself, which at
	// the outermost level continues unwinding to the caller.
	dispatch := s.LandingPad()
	term := f.Block(dispatch).Term
	require.Equal(t, ir.TermCatchSwitch, term.Kind)
	require.Equal(t, ir.NoBlock, term.Unwind)
	require.Len(t, term.Succs, 2)

	// Each successor is a catchpad funclet that stores the caught object
	// into the handler's slot and transfers to the shared body.
	catchE1 := findBlocks(f, "catch.E1")
	require.Len(t, catchE1, 1)
	padBlk := f.Block(term.Succs[0])
	require.Equal(t, ir.InstrCatchPad, padBlk.Instrs[0].Kind)
	require.Equal(t, f.Global("typeinfo.E1"), padBlk.Instrs[0].Args[0])
	slot := padBlk.Instrs[0].Args[1]
	require.NotEqual(t, ir.NoValue, slot)
	require.Equal(t, ir.TermCatchRet, padBlk.Term.Kind)
	require.Equal(t, padBlk.Instrs[0].Result, padBlk.Term.Pad)
	require.Equal(t, catchE1[0], padBlk.Term.Succs[0])

	// The body reads the slot, runs the handler, and falls through to the
	// try continuation.
	body := f.Block(catchE1[0])
	require.Equal(t, ir.InstrLoad, body.Instrs[0].Kind)
	require.Equal(t, slot, body.Instrs[0].Args[0])
	require.Equal(t, "handleE1", body.Instrs[1].Callee)
	require.Equal(t, []ir.BlockRef{end}, body.Term.Succs)
	_ = b
}

func TestFuncletLandingPadEmptyUnwindsToCaller(t *testing.T) {
	_, _, s := newTestScopes(ModelFunclet)
	require.Equal(t, ir.NoBlock, s.LandingPad())
}

func TestFuncletCleanupPadChainsToCatchSwitch(t *testing.T) {
	f, b, s := newTestScopes(ModelFunclet)
	end := f.NewBlock("try.cont")
	s.PushTryCatch([]Catch{{Class: &Class{Name: "E1"}}}, end)
	dispatch := s.LandingPad()

	cleanup := emitCleanupBody(b, "finally", "cleanup")
	s.PushCleanup(cleanup, cleanup)

	pad := s.LandingPad()
	require.NotEqual(t, dispatch, pad)
	require.Equal(t, pad, s.LandingPad())

	// The pad opens a cleanup funclet, runs a private copy of the body
	// inside it, and resumes unwinding at the catchswitch.
	padBlk := f.Block(pad)
	require.Equal(t, ir.InstrCleanupPad, padBlk.Instrs[0].Kind)
	token := padBlk.Instrs[0].Result
	copies := findBlocks(f, "finally.copy0")
	require.Len(t, copies, 1)
	require.Equal(t, []ir.BlockRef{copies[0]}, padBlk.Term.Succs)

	body := f.Block(copies[0])
	for _, in := range body.Instrs {
		require.Equal(t, token, in.Parent)
	}
	require.Equal(t, ir.TermCleanupRet, body.Term.Kind)
	require.Equal(t, token, body.Term.Pad)
	require.Equal(t, dispatch, body.Term.Unwind)
}

func TestFuncletOutermostCleanupRetToCaller(t *testing.T) {
	f, b, s := newTestScopes(ModelFunclet)
	cleanup := emitCleanupBody(b, "finally", "cleanup")
	s.PushCleanup(cleanup, cleanup)

	pad := s.LandingPad()
	copies := findBlocks(f, "finally.copy0")
	require.Len(t, copies, 1)
	term := f.Block(copies[0]).Term
	require.Equal(t, ir.TermCleanupRet, term.Kind)
	require.Equal(t, ir.NoBlock, term.Unwind)
	_ = pad
}

func TestFuncletGotoThreadsThroughCopies(t *testing.T) {
	f, b, s := newTestScopes(ModelFunclet)
	cleanup := emitCleanupBody(b, "finally", "cleanup")
	s.PushCleanup(cleanup, cleanup)

	src := f.NewBlock("src")
	b.SetBlock(src)
	s.RegisterUnresolvedGoto(ir.Loc{Line: 5}, "out")
	s.PopCleanups(0)

	label := f.NewBlock("label.out")
	s.TryResolveGotos("out", label)
	require.NoError(t, s.Finish())

	// Normal-path threading gets a plain copy, not a funclet: the goto
	// branches into the copy, which branches on to the label.
	copies := findBlocks(f, "finally.copy0")
	require.Len(t, copies, 1)
	body := f.Block(copies[0])
	require.Equal(t, []ir.BlockRef{copies[0]}, f.Block(src).Term.Succs)
	require.Equal(t, ir.TermBr, body.Term.Kind)
	require.Equal(t, []ir.BlockRef{label}, body.Term.Succs)
	for _, in := range body.Instrs {
		require.Equal(t, ir.NoValue, in.Parent)
	}
}
