package dback

// findKeyPosition locates key within view's key array. It returns
// found=true and the index of an exact match, or found=false and the
// index at which key would be inserted to keep the array sorted.
//
// The shape of this loop - handle 0 and 1 keys directly, otherwise
// narrow a [lo, hi] window by comparing against the midpoint until the
// window is down to two adjacent slots - mirrors
// findKeyPositionInLeaf in the original C++ source rather than a
// textbook sort.Search binary search, since the original already
// specifies the exact collapsing rule this package's callers were
// tested against.
func findKeyPosition(v *PageView, key []byte, cmp KeyComparator) (found bool, idx uint32) {
	n := v.NumKeys()
	if n == 0 {
		return false, 0
	}
	if n == 1 {
		switch cmp.Compare(key, v.KeyAt(0)) {
		case Equal:
			return true, 0
		case Less:
			return false, 0
		default:
			return false, 1
		}
	}

	lo, hi := uint32(0), n-1
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		switch cmp.Compare(key, v.KeyAt(mid)) {
		case Equal:
			return true, mid
		case Less:
			hi = mid
		default:
			lo = mid
		}
	}

	switch cmp.Compare(key, v.KeyAt(lo)) {
	case Equal:
		return true, lo
	case Less:
		return false, lo
	}
	switch cmp.Compare(key, v.KeyAt(hi)) {
	case Equal:
		return true, hi
	case Less:
		return false, hi
	default:
		return false, hi + 1
	}
}
