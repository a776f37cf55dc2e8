package lower

import "github.com/rayzor-lang/rayzor/internal/mir"

// lowerMatch desugars a pattern-match statement into a Switch over the
// subject's variant tag, one block per arm, each ending with its own
// field-extraction-then-bindings sequence before falling into a shared
// merge block (§4.2).
func (fb *funcBuilder) lowerMatch(st *Match) {
	subject := fb.lowerExpr(st.Subject)
	subjTy := typeOfExpr(st.Subject)

	tagTy := mir.I32()
	tag := fb.freshReg(tagTy)
	fb.emit(mir.Instruction{Op: mir.OpLoad, Dest: tag, Type: tagTy, Ptr: subject})

	mergeBlock := fb.newBlock()

	armBlocks := make([]*mir.Block, len(st.Arms))
	var cases []mir.SwitchCase
	var defaultBlock *mir.Block
	for i, arm := range st.Arms {
		armBlocks[i] = fb.newBlock()
		tags, isCatchAll := patternTags(arm.Pattern)
		if isCatchAll {
			if defaultBlock == nil {
				defaultBlock = armBlocks[i]
			}
			continue
		}
		for _, t := range tags {
			cases = append(cases, mir.SwitchCase{Value: int64(t), Target: armBlocks[i].ID})
		}
	}
	if defaultBlock == nil {
		// No variable/wildcard arm: an unmatched tag is a lowering-time
		// assumption that upstream exhaustiveness checking already
		// guarantees can't happen, so unmatched control falls straight to
		// the merge block rather than a dedicated trap block.
		defaultBlock = mergeBlock
	}

	fb.terminate(mir.Switch(mir.RegValue(tagTy, tag), cases, defaultBlock.ID))

	for i, arm := range st.Arms {
		fb.cur = armBlocks[i]
		fb.pushScope()
		fb.bindPattern(arm.Pattern, subject, subjTy)
		fb.lowerStmts(arm.Body)
		fb.popScope(fb.cur)
		fb.terminate(mir.Branch(mergeBlock.ID))
	}

	fb.cur = mergeBlock
}

// patternTags returns the variant tags a pattern matches, and whether
// it additionally (or instead) catches anything regardless of tag.
func patternTags(p Pattern) (tags []int, catchAll bool) {
	switch pp := p.(type) {
	case *ConstructorPattern:
		return []int{pp.VariantTag}, false
	case *VariablePattern, *WildcardPattern:
		return nil, true
	case *OrPattern:
		for _, alt := range pp.Alternatives {
			t, wild := patternTags(alt)
			if wild {
				catchAll = true
			}
			tags = append(tags, t...)
		}
		return tags, catchAll
	}
	return nil, false
}

// bindPattern introduces the pattern's bindings into the arm's scope.
// A ConstructorPattern extracts each named payload field in source
// order; "_" binds nothing (§4.2).
func (fb *funcBuilder) bindPattern(p Pattern, subject mir.Value, subjTy *mir.Type) {
	switch pp := p.(type) {
	case *ConstructorPattern:
		variant := unionVariant(subjTy, pp.VariantTag)
		for i, name := range pp.Bindings {
			if name == "" || name == "_" || variant == nil || i >= len(variant.Fields) {
				continue
			}
			fieldTy := variant.Fields[i].Type
			dest := fb.freshReg(fieldTy)
			fb.emit(mir.Instruction{
				Op: mir.OpExtractValue, Dest: dest, Type: fieldTy,
				Aggregate: subject, ExtractIdx: []int{i + 1}, // index 0 is the tag (§3 union layout)
			})
			fb.bind(name, dest, fieldTy)
		}

	case *VariablePattern:
		dest := fb.freshReg(subjTy)
		fb.emit(mir.Instruction{Op: mir.OpCopy, Dest: dest, Type: subjTy, Src: subject})
		fb.bind(pp.Name, dest, subjTy)

	case *WildcardPattern:
		// binds nothing

	case *OrPattern:
		// Every alternative binds an identical name set (checked upstream by
		// the checker); any one of them determines the binding shape.
		if len(pp.Alternatives) > 0 {
			fb.bindPattern(pp.Alternatives[0], subject, subjTy)
		}
	}
}

func unionVariant(t *mir.Type, tag int) *mir.UnionVariant {
	if t == nil {
		return nil
	}
	for i := range t.Variants {
		if t.Variants[i].Tag == tag {
			return &t.Variants[i]
		}
	}
	return nil
}
