package dback

import "sync"

// DeleteFlags modifies BlockDelete's underflow check, in the same
// bitmask-of-constants style the teacher uses for Env/Txn open flags.
type DeleteFlags uint

const (
	// AllowUnderflow permits a delete that leaves the page below
	// min_keys[t]. Only the tree package's merge/redistribute
	// orchestration should ever pass this: it deletes a key from a page
	// it already knows it is about to rebalance via concat_nodes or
	// redistribute_nodes, and the strict check would reject the
	// intermediate state.
	AllowUnderflow DeleteFlags = 1 << iota
)

// BlockDelete removes key from view under an exclusive lock. It fails
// with ErrKeyNotFound if key is absent, and - unless AllowUnderflow is
// set - with ErrUnderflow if removing it would leave the page with
// fewer than min_keys[t] keys.
func BlockDelete(lock *sync.RWMutex, v *PageView, key []byte, cmp KeyComparator, flags DeleteFlags) (bool, error) {
	if v == nil || cmp == nil {
		return false, newError(CodeBadArg, "block delete: nil view or comparator")
	}
	if uint32(len(key)) != v.ih.KeySize {
		return false, newError(CodeBadArg, "block delete: wrong key width")
	}

	lock.Lock()
	defer lock.Unlock()

	pt := v.PageType()
	numKeys := v.NumKeys()

	found, idx := findKeyPosition(v, key, cmp)
	if !found {
		return false, ErrKeyNotFound
	}

	if flags&AllowUnderflow == 0 && numKeys-1 < v.ih.MinKeys[pt] {
		return false, ErrUnderflow
	}

	ks := v.ih.KeySize
	vs := v.ih.ValueSize[pt]
	numVals := valSlotCount(pt, numKeys)

	copy(v.Keys[idx*ks:(numKeys-1)*ks], v.Keys[(idx+1)*ks:numKeys*ks])
	copy(v.Values[idx*vs:(numVals-1)*vs], v.Values[(idx+1)*vs:numVals*vs])

	v.setCounts(numKeys - 1)
	return true, nil
}
