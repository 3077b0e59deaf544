package main

import (
	"github.com/sable-lang/sable/ir"
	"github.com/sable-lang/sable/unwind"
)

// A scenario builds one function the way a statement walker would: pushing
// scopes on entry, emitting bodies, and popping on exit.
type scenario struct {
	describe string
	build    func(cfg *unwind.Config) (*ir.Func, error)
}

var scenarios = map[string]scenario{
	"nested-finally": {
		describe: "try { try { risky() } finally { cleanupA() } } catch (E1) catch (E2)",
		build:    nestedFinally,
	},
	"multi-exit": {
		describe: "one finally left by fallthrough, break, and return",
		build:    multiExit,
	},
	"goto": {
		describe: "forward goto out of a finally-guarded block",
		build:    gotoAcrossCleanup,
	},
}

// emitCleanup emits a single-block cleanup body calling the given function
// and returns its block, leaving the builder where it was.
func emitCleanup(b *ir.Builder, name, callee string) ir.BlockRef {
	saved := b.Block()
	blk := b.Fn().NewBlock(name)
	b.SetBlock(blk)
	b.Call(callee)
	b.SetBlock(saved)
	return blk
}

func nestedFinally(cfg *unwind.Config) (*ir.Func, error) {
	f := ir.NewFunc("nested_finally")
	b := ir.NewBuilder(f)
	s := unwind.New(b, cfg)

	done := f.NewBlock("done")
	s.PushTryCatch([]unwind.Catch{
		{Class: &unwind.Class{Name: "E1"}, Body: func(b *ir.Builder, exc ir.ValueRef) {
			b.Call("handleE1", exc)
		}},
		{Class: &unwind.Class{Name: "E2"}, Body: func(b *ir.Builder, exc ir.ValueRef) {
			b.Call("handleE2", exc)
		}},
	}, done)

	cleanupA := emitCleanup(b, "finally.a", "cleanupA")
	mark := s.CurrentCleanupScope()
	s.PushCleanup(cleanupA, cleanupA)

	body := f.NewBlock("try.body")
	b.Br(body)
	b.SetBlock(body)
	after := f.NewBlock("try.cont")
	b.Invoke("riskyCall", nil, after, s.LandingPad())

	b.SetBlock(after)
	s.RunCleanups(mark, done)
	s.PopCleanups(mark)
	s.PopTryCatch()

	b.SetBlock(done)
	b.Ret()
	return f, s.Finish()
}

func multiExit(cfg *unwind.Config) (*ir.Func, error) {
	f := ir.NewFunc("multi_exit")
	b := ir.NewBuilder(f)
	s := unwind.New(b, cfg)

	loopExit := f.NewBlock("loop.exit")
	retBlock := f.NewBlock("return")

	cleanup := emitCleanup(b, "finally", "cleanup")
	mark := s.CurrentCleanupScope()
	s.PushCleanup(cleanup, cleanup)

	// Three ways out of the guarded block: fallthrough, break, return.
	cond := b.Call("someCondition")
	breakPath := f.NewBlock("do.break")
	stay := f.NewBlock("stay")
	b.CondBr(cond, breakPath, stay, nil)

	b.SetBlock(breakPath)
	s.RunCleanups(mark, loopExit)

	b.SetBlock(stay)
	cond2 := b.Call("otherCondition")
	retPath := f.NewBlock("do.return")
	fall := f.NewBlock("fallthrough")
	b.CondBr(cond2, retPath, fall, nil)

	b.SetBlock(retPath)
	s.RunCleanups(mark, retBlock)

	b.SetBlock(fall)
	next := f.NewBlock("after")
	s.RunCleanups(mark, next)
	s.PopCleanups(mark)

	b.SetBlock(next)
	b.Br(loopExit)
	b.SetBlock(loopExit)
	b.Ret()
	b.SetBlock(retBlock)
	b.Ret()
	return f, s.Finish()
}

func gotoAcrossCleanup(cfg *unwind.Config) (*ir.Func, error) {
	f := ir.NewFunc("goto_across_cleanup")
	b := ir.NewBuilder(f)
	s := unwind.New(b, cfg)

	cleanup := emitCleanup(b, "finally", "cleanup")
	mark := s.CurrentCleanupScope()
	s.PushCleanup(cleanup, cleanup)

	inner := f.NewBlock("guarded")
	b.Br(inner)
	b.SetBlock(inner)
	s.RegisterUnresolvedGoto(ir.Loc{File: "demo.sb", Line: 4, Column: 3}, "out")

	// Normal exit from the guarded block.
	rest := f.NewBlock("rest")
	b.SetBlock(rest)
	after := f.NewBlock("after")
	s.RunCleanups(mark, after)
	s.PopCleanups(mark)

	b.SetBlock(after)
	labelBlock := f.NewBlock("label.out")
	b.Br(labelBlock)
	s.TryResolveGotos("out", labelBlock)

	b.SetBlock(labelBlock)
	b.Ret()
	return f, s.Finish()
}
