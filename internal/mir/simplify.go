package mir

// Simplify removes blocks unreachable from the entry block and prunes any
// phi incoming entries naming a removed predecessor.
//
// Adapted from the teacher's dce.go, which eliminated dead labels and
// jumps from a flat stack-machine instruction stream after the register
// allocator ran. Here the same "drop what can no longer be reached"
// policy operates over the CFG instead of a label table: this is the
// pass lower (C2) runs before Validate, which is why §8 lists
// "unreachable block still present after simplification" as a distinct
// validation error rather than something Validate silently tolerates.
func Simplify(f *Function) {
	if f.IsExternDecl() {
		return
	}
	reachable := reachableBlocks(f.CFG)
	newOrder := make([]BlockID, 0, len(f.CFG.Order))
	for _, id := range f.CFG.Order {
		if reachable[id] {
			newOrder = append(newOrder, id)
		} else {
			delete(f.CFG.Blocks, id)
		}
	}
	f.CFG.Order = newOrder
	for _, id := range f.CFG.Order {
		b := f.CFG.Blocks[id]
		for pi := range b.PhiNodes {
			kept := b.PhiNodes[pi].Incoming[:0]
			for _, inc := range b.PhiNodes[pi].Incoming {
				if reachable[inc.Pred] {
					kept = append(kept, inc)
				}
			}
			b.PhiNodes[pi].Incoming = kept
		}
	}
}
