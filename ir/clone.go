package ir

// CloneBlocks duplicates the given blocks into fresh arena records, appending
// suffix to each name. Instruction results get fresh value handles; operands
// and terminator edges that point inside the cloned set are remapped, while
// references to anything outside it are preserved. The funclet personality
// uses this to give each distinct cleanup exit target its own physical copy
// of the cleanup body.
func (f *Func) CloneBlocks(blocks []BlockRef, suffix string) []BlockRef {
	blockMap := make(map[BlockRef]BlockRef, len(blocks))
	clones := make([]BlockRef, 0, len(blocks))
	for _, ref := range blocks {
		clone := f.NewBlock(f.Block(ref).Name + suffix)
		blockMap[ref] = clone
		clones = append(clones, clone)
	}

	// Allocate fresh handles for every result first, so operands can be
	// remapped regardless of which block defines them.
	valueMap := map[ValueRef]ValueRef{}
	for _, ref := range blocks {
		src := f.Block(ref)
		for _, in := range src.Instrs {
			if in.Result != NoValue {
				valueMap[in.Result] = f.newValue(f.values[in.Result])
			}
		}
		if src.Term.Kind == TermInvoke && src.Term.Result != NoValue {
			valueMap[src.Term.Result] = f.newValue(f.values[src.Term.Result])
		}
	}

	mapValue := func(ref ValueRef) ValueRef {
		if mapped, ok := valueMap[ref]; ok {
			return mapped
		}
		return ref
	}
	mapBlock := func(ref BlockRef) BlockRef {
		if mapped, ok := blockMap[ref]; ok {
			return mapped
		}
		return ref
	}

	for _, ref := range blocks {
		src := f.Block(ref)
		dst := f.Block(blockMap[ref])
		dst.Instrs = make([]Instr, len(src.Instrs))
		for i, in := range src.Instrs {
			clone := in
			clone.Args = make([]ValueRef, len(in.Args))
			for j, arg := range in.Args {
				clone.Args[j] = mapValue(arg)
			}
			clone.Clauses = append([]ValueRef(nil), in.Clauses...)
			clone.Result = mapValue(in.Result)
			dst.Instrs[i] = clone
		}
		term := src.Term
		term.Succs = make([]BlockRef, len(src.Term.Succs))
		for i, succ := range src.Term.Succs {
			term.Succs[i] = mapBlock(succ)
		}
		term.Cases = append([]int64(nil), src.Term.Cases...)
		term.Args = make([]ValueRef, len(src.Term.Args))
		for i, arg := range src.Term.Args {
			term.Args[i] = mapValue(arg)
		}
		term.Cond = mapValue(src.Term.Cond)
		term.Pad = mapValue(src.Term.Pad)
		term.Result = mapValue(src.Term.Result)
		if term.Kind == TermCatchSwitch || term.Kind == TermCleanupRet {
			term.Unwind = mapBlock(src.Term.Unwind)
		}
		dst.Term = term
	}
	return clones
}
