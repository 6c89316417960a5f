package dback

import "sync"

// BlockInsert adds (key, value) to view under an exclusive lock. It
// fails with ErrNodeFull if the page is already at max_keys for its
// type, and with ErrDuplicateInsert if key is already present.
//
// value must be exactly ValueSize[view.PageType()] bytes: for a leaf
// page that is the caller's payload width, for a non-leaf page that is
// always a 4-byte child page number.
func BlockInsert(lock *sync.RWMutex, v *PageView, key, value []byte, cmp KeyComparator) (bool, error) {
	if v == nil || cmp == nil {
		return false, newError(CodeBadArg, "block insert: nil view or comparator")
	}
	if uint32(len(key)) != v.ih.KeySize {
		return false, newError(CodeBadArg, "block insert: wrong key width")
	}
	pt := v.PageType()
	if uint32(len(value)) != v.ih.ValueSize[pt] {
		return false, newError(CodeBadArg, "block insert: wrong value width")
	}

	lock.Lock()
	defer lock.Unlock()

	numKeys := v.NumKeys()
	if numKeys >= v.ih.MaxKeys[pt] {
		return false, ErrNodeFull
	}

	found, idx := findKeyPosition(v, key, cmp)
	if found {
		return false, ErrDuplicateInsert
	}

	ks := v.ih.KeySize
	vs := v.ih.ValueSize[pt]
	numVals := valSlotCount(pt, numKeys)

	// Shift the key tail right by one slot, then write the new key.
	copy(v.Keys[(idx+1)*ks:(numKeys+1)*ks], v.Keys[idx*ks:numKeys*ks])
	copy(v.KeyAt(idx), key)

	// Shift the value tail right by one slot, then write the new value.
	// The value-array shift range uses numVals (not numKeys): for a
	// non-leaf page there is always one more value slot than keys, and
	// that extra trailing slot must move with the rest of the tail or
	// it would be silently overwritten.
	copy(v.Values[(idx+1)*vs:(numVals+1)*vs], v.Values[idx*vs:numVals*vs])
	copy(v.ValueAt(idx), value)

	v.setCounts(numKeys + 1)
	return true, nil
}
