package dback

// ConcatNodes merges src into dst, leaving dst with all of both pages'
// keys/values in order and src empty. Both pages must already be held
// under exclusive locks by the caller; ConcatNodes takes no locks of
// its own.
//
// dstIsFirst tells ConcatNodes which side holds the smaller keys: true
// means every key in dst compares Less than every key in src, false is
// the mirror. ConcatNodes trusts this flag - it does not itself compare
// keys across the two pages - so a caller that passes the wrong
// direction silently breaks the ordering invariant on dst.
//
// Unlike the strict dst.NumKeys+src.NumKeys==MaxKeys[t] rule in the
// source this is generalized from, ConcatNodes only requires the sum
// fit within MaxKeys[t] (Q2 in the design notes), so both the
// exactly-full and interior-fill cases are legal merges.
func ConcatNodes(dst, src *PageView, dstIsFirst bool) error {
	if dst == nil || src == nil {
		return newError(CodeBadArg, "concat nodes: nil view")
	}
	if dst.header == src.header {
		return newError(CodeBadArg, "concat nodes: dst and src are the same page")
	}
	pt := dst.PageType()
	if src.PageType() != pt {
		return newError(CodeBadArg, "concat nodes: page type mismatch")
	}
	if dst.ih != src.ih {
		return newError(CodeBadArg, "concat nodes: geometry mismatch")
	}
	ih := dst.ih
	maxKeys := ih.MaxKeys[pt]
	dn, sn := dst.NumKeys(), src.NumKeys()
	if dn+sn > maxKeys {
		return newError(CodeBadArg, "concat nodes: combined keys exceed max_keys")
	}

	ks := ih.KeySize
	vs := ih.ValueSize[pt]
	dVals := valSlotCount(pt, dn)
	sVals := valSlotCount(pt, sn)

	// tailShift is 1 for non-leaf pages, 0 for leaf. A non-leaf page
	// whose key[0] equals its own parent separator (true of every
	// sibling except the tree's leftmost path) has a dead value[0]:
	// split.go duplicates the promoted separator as that page's key[0]
	// while copying the same value that precedes it in the original
	// page, so nothing ever searches into value[0] - keys equal to
	// key[0] route rightward, and no key can be less than it. Merging
	// that side in as the *second* half must drop its dead value[0] and
	// keep the rest (its own trailing child pointer included); the side
	// that ends up *first* keeps every one of its value slots as-is,
	// because its own trailing pointer becomes the live value
	// immediately preceding the merged node's new internal separator
	// (the other side's former key[0]). For leaf pages tailShift == 0,
	// so both branches collapse to a plain concatenation.
	tailShift := uint32(0)
	if pt == NonLeaf {
		tailShift = 1
	}

	if dstIsFirst {
		copy(dst.Keys[dn*ks:(dn+sn)*ks], src.Keys[:sn*ks])
		copy(dst.Values[dVals*vs:(dVals+sn)*vs], src.Values[tailShift*vs:(tailShift+sn)*vs])
	} else {
		// Make room for src's entries ahead of dst's own by shifting
		// dst's keys right by src's count, then drop src's keys into
		// the freed prefix.
		copy(dst.Keys[sn*ks:(sn+dn)*ks], dst.Keys[:dn*ks])
		copy(dst.Keys[:sn*ks], src.Keys[:sn*ks])

		// Values: dst's own dead value[0] is dropped, the rest of its
		// values (tail included) shift right to make room for src's
		// full value range, which lands at the front.
		copy(dst.Values[sVals*vs:(sVals+dn)*vs], dst.Values[tailShift*vs:(tailShift+dn)*vs])
		copy(dst.Values[:sVals*vs], src.Values[:sVals*vs])
	}

	dst.setCounts(dn + sn)
	src.setCounts(0)

	return nil
}
