package unwind

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sable-lang/sable/ir"
)

func newTestScopes(model Model) (*ir.Func, *ir.Builder, *Scopes) {
	f := ir.NewFunc("test")
	b := ir.NewBuilder(f)
	return f, b, New(b, &Config{Model: model})
}

// emitCleanupBody emits a single-block cleanup body calling callee, leaving
// the builder where it was.
func emitCleanupBody(b *ir.Builder, name, callee string) ir.BlockRef {
	saved := b.Block()
	blk := b.Fn().NewBlock(name)
	b.SetBlock(blk)
	b.Call(callee)
	b.SetBlock(saved)
	return blk
}

func findBlocks(f *ir.Func, name string) []ir.BlockRef {
	var refs []ir.BlockRef
	for ref := ir.BlockRef(0); int(ref) < f.NumBlocks(); ref++ {
		if f.Block(ref).Name == name {
			refs = append(refs, ref)
		}
	}
	return refs
}

// lastStore returns the tag and slot of the last store in blk.
func lastStore(t *testing.T, f *ir.Func, blk ir.BlockRef) (int64, ir.ValueRef) {
	t.Helper()
	instrs := f.Block(blk).Instrs
	for i := len(instrs) - 1; i >= 0; i-- {
		if instrs[i].Kind == ir.InstrStore {
			tag, ok := f.ConstValue(instrs[i].Args[0])
			require.True(t, ok)
			return tag, instrs[i].Args[1]
		}
	}
	t.Fatalf("no store in block %s", f.Block(blk).Name)
	return 0, ir.NoValue
}

func TestCleanupSingleTargetNeedsNoSelector(t *testing.T) {
	f, b, s := newTestScopes(ModelSelector)
	body := emitCleanupBody(b, "finally", "cleanup")
	s.PushCleanup(body, body)
	scope := s.cleanupScopes[0]

	done := f.NewBlock("done")
	s.RunCleanups(0, done)

	require.False(t, scope.hasSelector())
	require.Equal(t, 1, scope.numExitTargets())

	// Straight-line wiring: origin -> body -> done, and no tag store
	// anywhere.
	require.Equal(t, body, f.Block(f.Entry()).Term.Succs[0])
	require.Equal(t, ir.TermBr, f.Block(body).Term.Kind)
	require.Equal(t, done, f.Block(body).Term.Succs[0])
	for _, in := range f.Block(f.Entry()).Instrs {
		require.NotEqual(t, ir.InstrStore, in.Kind)
	}
}

func TestCleanupSharedTargetRecordsPredecessorOnly(t *testing.T) {
	f, b, s := newTestScopes(ModelSelector)
	body := emitCleanupBody(b, "finally", "cleanup")
	s.PushCleanup(body, body)
	scope := s.cleanupScopes[0]

	done := f.NewBlock("done")
	s.RunCleanups(0, done)
	second := f.NewBlock("second")
	b.SetBlock(second)
	s.RunCleanups(0, done)

	require.False(t, scope.hasSelector())
	require.Equal(t, 1, scope.numExitTargets())
	require.Equal(t, []ir.BlockRef{f.Entry(), second}, scope.targets[0].sourceBlocks)
	require.Equal(t, body, f.Block(second).Term.Succs[0])
}

func TestCleanupPromotionToSelector(t *testing.T) {
	f, b, s := newTestScopes(ModelSelector)
	body := emitCleanupBody(b, "finally", "cleanup")
	s.PushCleanup(body, body)
	scope := s.cleanupScopes[0]

	t1 := f.NewBlock("exit.one")
	t2 := f.NewBlock("exit.two")
	s.RunCleanups(0, t1)
	second := f.NewBlock("second")
	b.SetBlock(second)
	s.RunCleanups(0, t2)

	require.True(t, scope.hasSelector())
	require.Equal(t, 2, scope.numExitTargets())

	// One materialized body, dispatching on the loaded selector.
	require.Len(t, findBlocks(f, "finally"), 1)
	term := f.Block(body).Term
	require.Equal(t, ir.TermSwitch, term.Kind)
	require.Equal(t, []ir.BlockRef{t1, t2}, term.Succs)
	require.Equal(t, []int64{1}, term.Cases)

	// Every predecessor stores its tag before entering the cleanup,
	// including the one recorded before promotion.
	tag, slot := lastStore(t, f, f.Entry())
	require.Equal(t, int64(0), tag)
	require.Equal(t, scope.selector, slot)
	tag, slot = lastStore(t, f, second)
	require.Equal(t, int64(1), tag)
	require.Equal(t, scope.selector, slot)
}

func TestCleanupThirdTargetExtendsDispatch(t *testing.T) {
	f, b, s := newTestScopes(ModelSelector)
	body := emitCleanupBody(b, "finally", "cleanup")
	s.PushCleanup(body, body)
	scope := s.cleanupScopes[0]

	targets := []ir.BlockRef{
		f.NewBlock("exit.one"),
		f.NewBlock("exit.two"),
		f.NewBlock("exit.three"),
	}
	s.RunCleanups(0, targets[0])
	for i := 1; i < 3; i++ {
		src := f.NewBlock("src")
		b.SetBlock(src)
		s.RunCleanups(0, targets[i])
		tag, _ := lastStore(t, f, src)
		require.Equal(t, int64(i), tag)
	}

	require.Equal(t, 3, scope.numExitTargets())
	term := f.Block(body).Term
	require.Equal(t, targets, term.Succs)
	require.Equal(t, []int64{1, 2}, term.Cases)
}

func TestCleanupCopyingMakesOneCopyPerTarget(t *testing.T) {
	f, b, s := newTestScopes(ModelFunclet)
	body := emitCleanupBody(b, "finally", "cleanup")
	s.PushCleanup(body, body)
	scope := s.cleanupScopes[0]

	t1 := f.NewBlock("exit.one")
	t2 := f.NewBlock("exit.two")
	s.RunCleanups(0, t1)
	second := f.NewBlock("second")
	b.SetBlock(second)
	s.RunCleanups(0, t2)
	// A repeated target reuses its copy rather than cloning again.
	third := f.NewBlock("third")
	b.SetBlock(third)
	s.RunCleanups(0, t1)

	require.Equal(t, 2, scope.numExitTargets())
	require.False(t, scope.hasSelector())

	copy0 := findBlocks(f, "finally.copy0")
	copy1 := findBlocks(f, "finally.copy1")
	require.Len(t, copy0, 1)
	require.Len(t, copy1, 1)

	// Each copy branches solely to its own designated continuation.
	require.Equal(t, []ir.BlockRef{t1}, f.Block(copy0[0]).Term.Succs)
	require.Equal(t, []ir.BlockRef{t2}, f.Block(copy1[0]).Term.Succs)

	// Both call sites for t1 enter the same copy.
	require.Equal(t, copy0[0], f.Block(f.Entry()).Term.Succs[0])
	require.Equal(t, copy0[0], f.Block(third).Term.Succs[0])
	require.Equal(t, copy1[0], f.Block(second).Term.Succs[0])
}

func TestCleanupBodyRangeValidation(t *testing.T) {
	f, b, s := newTestScopes(ModelSelector)
	begin := emitCleanupBody(b, "finally", "cleanup")
	end := emitCleanupBody(b, "finally.tail", "more")
	require.Panics(t, func() { s.PushCleanup(end, begin) })

	// A terminated end block is a contract violation.
	saved := b.Block()
	b.SetBlock(end)
	b.Ret()
	b.SetBlock(saved)
	require.Panics(t, func() { s.PushCleanup(begin, end) })
	_ = f
}
