package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFuncHasEntryBlock(t *testing.T) {
	f := NewFunc("demo")
	require.Equal(t, 1, f.NumBlocks())
	require.Equal(t, "entry", f.Block(f.Entry()).Name)
	require.NotEmpty(t, f.ID())
}

func TestBuilderBranchAndPredecessors(t *testing.T) {
	f := NewFunc("demo")
	b := NewBuilder(f)
	then := f.NewBlock("then")
	els := f.NewBlock("else")
	join := f.NewBlock("join")

	cond := b.Call("cond")
	b.CondBr(cond, then, els, nil)
	b.SetBlock(then)
	b.Br(join)
	b.SetBlock(els)
	b.Br(join)

	require.ElementsMatch(t, []BlockRef{then, els}, f.Predecessors(join))
	require.ElementsMatch(t, []BlockRef{f.Entry()}, f.Predecessors(then))
}

func TestTerminateTwicePanics(t *testing.T) {
	f := NewFunc("demo")
	b := NewBuilder(f)
	target := f.NewBlock("target")
	b.Br(target)
	require.Panics(t, func() { b.Br(target) })
}

func TestInvalidBlockHandlePanics(t *testing.T) {
	f := NewFunc("demo")
	require.Panics(t, func() { f.Block(BlockRef(42)) })
	require.Panics(t, func() { f.Block(NoBlock) })
}

func TestAllocasStayAtTopOfEntry(t *testing.T) {
	f := NewFunc("demo")
	b := NewBuilder(f)
	b.Call("first")
	a1 := f.AllocaInEntry("slot.a")
	a2 := f.AllocaInEntry("slot.b")

	entry := f.Block(f.Entry())
	require.Equal(t, InstrAlloca, entry.Instrs[0].Kind)
	require.Equal(t, a1, entry.Instrs[0].Result)
	require.Equal(t, InstrAlloca, entry.Instrs[1].Kind)
	require.Equal(t, a2, entry.Instrs[1].Result)
	require.Equal(t, InstrCall, entry.Instrs[2].Kind)
}

func TestGlobalsAreInterned(t *testing.T) {
	f := NewFunc("demo")
	g1 := f.Global("typeinfo.E1")
	g2 := f.Global("typeinfo.E1")
	g3 := f.Global("typeinfo.E2")
	require.Equal(t, g1, g2)
	require.NotEqual(t, g1, g3)
	require.True(t, f.IsGlobal(g1))
	require.Equal(t, "@typeinfo.E1", f.ValueName(g1))
}

func TestConstValue(t *testing.T) {
	f := NewFunc("demo")
	c := f.ConstInt(7)
	v, ok := f.ConstValue(c)
	require.True(t, ok)
	require.Equal(t, int64(7), v)

	_, ok = f.ConstValue(f.Global("g"))
	require.False(t, ok)
	_, ok = f.ConstValue(NoValue)
	require.False(t, ok)
}

func TestReplaceBlockUses(t *testing.T) {
	f := NewFunc("demo")
	b := NewBuilder(f)
	old := f.NewBlock("placeholder")
	replacement := f.NewBlock("label")
	other := f.NewBlock("other")

	b.Br(old)
	b.SetBlock(other)
	cond := f.ConstInt(1)
	b.CondBr(cond, old, replacement, nil)

	n := f.ReplaceBlockUses(old, replacement)
	require.Equal(t, 2, n)
	require.Equal(t, replacement, f.Block(f.Entry()).Term.Succs[0])
	require.Equal(t, replacement, f.Block(other).Term.Succs[0])
	require.Empty(t, f.Predecessors(old))
}

func TestReplaceBlockUsesRewritesFuncletUnwind(t *testing.T) {
	f := NewFunc("demo")
	old := f.NewBlock("old.pad")
	newPad := f.NewBlock("new.pad")
	sw := f.NewBlock("dispatch")
	f.Block(sw).Term = Term{Kind: TermCatchSwitch, Unwind: old}

	require.Equal(t, 1, f.ReplaceBlockUses(old, newPad))
	require.Equal(t, newPad, f.Block(sw).Term.Unwind)
}

func TestCloneBlocksRemapsValuesAndEdges(t *testing.T) {
	f := NewFunc("demo")
	b := NewBuilder(f)
	first := f.NewBlock("body")
	second := f.NewBlock("body.tail")
	outside := f.NewBlock("outside")

	b.SetBlock(first)
	v := b.Call("produce")
	b.Br(second)
	b.SetBlock(second)
	b.Call("consume", v)
	b.Br(outside)

	clones := f.CloneBlocks([]BlockRef{first, second}, ".copy0")
	require.Len(t, clones, 2)
	c1, c2 := f.Block(clones[0]), f.Block(clones[1])
	require.Equal(t, "body.copy0", c1.Name)
	require.Equal(t, "body.tail.copy0", c2.Name)

	// Internal edge remapped, external edge preserved.
	require.Equal(t, clones[1], c1.Term.Succs[0])
	require.Equal(t, outside, c2.Term.Succs[0])

	// The cloned consume reads the cloned produce, not the original.
	origProduce := f.Block(first).Instrs[0].Result
	cloneProduce := c1.Instrs[0].Result
	require.NotEqual(t, origProduce, cloneProduce)
	require.Equal(t, cloneProduce, c2.Instrs[0].Args[0])
}

func TestLandingPadClauseHelpers(t *testing.T) {
	f := NewFunc("demo")
	b := NewBuilder(f)
	pad := f.NewBlock("landing.pad")
	b.SetBlock(pad)
	b.LandingPad()

	ti := f.Global("typeinfo.E1")
	f.AddLandingPadClause(pad, ti)
	f.SetLandingPadCleanup(pad)

	in := f.Block(pad).Instrs[0]
	require.Equal(t, InstrLandingPad, in.Kind)
	require.True(t, in.Cleanup)
	require.Equal(t, []ValueRef{ti}, in.Clauses)

	empty := f.NewBlock("no.pad")
	require.Panics(t, func() { f.SetLandingPadCleanup(empty) })
}

func TestLocString(t *testing.T) {
	require.Equal(t, "<unknown>", Loc{}.String())
	require.Equal(t, "a.sb:3:7", Loc{File: "a.sb", Line: 3, Column: 7}.String())
	require.Equal(t, "3:7", Loc{Line: 3, Column: 7}.String())
}
