// Package tree orchestrates dback's single-page algebra into a
// multi-level B+-tree: root descent, structural growth (splitting a
// full page and threading the new separator into its parent, possibly
// all the way up to a new root) and structural shrink (merging or
// rebalancing an underflowing page with a sibling, possibly collapsing
// the root). dback's own core intentionally never touches more than
// one or two caller-supplied pages per call and never allocates a
// page itself (spec.md §1); this package is the caller spec.md always
// assumed existed.
//
// A single Tree serializes every structural mutation behind
// structuralMu, in the same spirit as gdbx's single-writer transaction
// model: only one Insert or Delete runs at a time, while Find only
// takes the shared per-page lock BlockFind already acquires, so reads
// are never blocked by a writer except at the specific pages it is
// actively mutating.
package tree

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zurgzurg/dback"
	"github.com/zurgzurg/dback/pagestore"
	"github.com/zurgzurg/dback/serialbuf"
)

// rootPgno is fixed: the tree's root always lives at page 0, so a
// freshly opened Tree never needs to record where the root is.
const rootPgno uint32 = 0

// Tree is a B+-tree backed by a pagestore.Store, holding key-ordered
// fixed-width keys and values per dback's geometry.
type Tree struct {
	store *pagestore.Store
	ih    *dback.IndexHeader
	cmp   dback.KeyComparator

	structuralMu sync.Mutex

	locksMu sync.Mutex
	locks   map[uint32]*sync.RWMutex

	log *slog.Logger
}

// Option configures a Tree at Open time.
type Option func(*Tree)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tree) { t.log = l }
}

// Open wires a Tree to store using the given geometry and comparator,
// initializing page 0 as an empty leaf root if store has no pages yet.
func Open(store *pagestore.Store, ih *dback.IndexHeader, cmp dback.KeyComparator, opts ...Option) (*Tree, error) {
	if store == nil || ih == nil || cmp == nil {
		return nil, fmt.Errorf("tree: nil store, index header, or comparator")
	}
	t := &Tree{
		store: store,
		ih:    ih,
		cmp:   cmp,
		locks: make(map[uint32]*sync.RWMutex),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}

	if store.NumPages() == 0 {
		pgno, buf, err := store.Allocate()
		if err != nil {
			return nil, err
		}
		if pgno != rootPgno {
			return nil, fmt.Errorf("tree: expected root page 0, got %d", pgno)
		}
		dback.InitLeafPage(buf)
	}

	t.log.Info("tree opened", "num_pages", store.NumPages())
	return t, nil
}

// Stats summarizes a tree's current shape.
type Stats struct {
	NumPages uint32
	RootType dback.PageType
}

// Stats reports the current page count and root page type.
func (t *Tree) Stats() (Stats, error) {
	buf, err := t.store.Page(rootPgno)
	if err != nil {
		return Stats{}, err
	}
	view, err := dback.InitPageView(buf, t.ih)
	if err != nil {
		return Stats{}, err
	}
	return Stats{NumPages: t.store.NumPages(), RootType: view.PageType()}, nil
}

func (t *Tree) lockFor(pgno uint32) *sync.RWMutex {
	t.locksMu.Lock()
	defer t.locksMu.Unlock()
	l, ok := t.locks[pgno]
	if !ok {
		l = &sync.RWMutex{}
		t.locks[pgno] = l
	}
	return l
}

// encodePgno frames a child page number the way it's written into a
// non-leaf value slot, routed through serialbuf.Buffer (the same
// fixed-capacity cursor the original serialbuffer.cpp used for framing
// RPC scratch) rather than calling encoding/binary directly.
func encodePgno(pgno uint32) []byte {
	buf := serialbuf.New(4)
	if !buf.PutUint32(pgno) {
		panic("tree: 4-byte serialbuf too small for a page number")
	}
	return buf.Bytes()
}

func decodePgno(b []byte) uint32 {
	v, ok := serialbuf.Wrap(b).GetUint32()
	if !ok {
		panic("tree: child pointer slot too short to hold a page number")
	}
	return v
}

// pathEntry is one level of a root-to-leaf descent: the page itself,
// plus (for every level but the root) the index into its parent's
// value array that was followed to reach it.
type pathEntry struct {
	pgno     uint32
	buf      []byte
	view     *dback.PageView
	childIdx uint32 // valid only for entries with a parent (index > 0 in the path slice)
}

// childIndex returns the index i (0 <= i <= NumKeys) of the child of
// view that covers key, under the convention value[i] holds keys less
// than key[i] (value[NumKeys] is the catch-all for keys >= the last
// separator). This is the same "first separator strictly greater than
// the target" rule findKeyPosition uses when it reports an insertion
// point, so a value inserted at array index i via BlockInsert always
// lines up with the child chosen here for the same key.
func (t *Tree) childIndex(view *dback.PageView, key []byte) uint32 {
	n := view.NumKeys()
	lo, hi := uint32(0), n
	for lo < hi {
		mid := lo + (hi-lo)/2
		if t.cmp.Compare(view.KeyAt(mid), key) == dback.Greater {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func (t *Tree) loadPage(pgno uint32) (*pathEntry, error) {
	buf, err := t.store.Page(pgno)
	if err != nil {
		return nil, err
	}
	view, err := dback.InitPageView(buf, t.ih)
	if err != nil {
		return nil, err
	}
	return &pathEntry{pgno: pgno, buf: buf, view: view}, nil
}

// descend walks from the root to the leaf that would hold key,
// recording the index followed at every non-leaf level.
func (t *Tree) descend(key []byte) ([]*pathEntry, error) {
	entry, err := t.loadPage(rootPgno)
	if err != nil {
		return nil, err
	}
	path := []*pathEntry{entry}
	for entry.view.PageType() != dback.Leaf {
		lock := t.lockFor(entry.pgno)
		lock.RLock()
		idx := t.childIndex(entry.view, key)
		childPgno := decodePgno(entry.view.ValueAt(idx))
		lock.RUnlock()
		next, err := t.loadPage(childPgno)
		if err != nil {
			return nil, err
		}
		next.childIdx = idx
		path = append(path, next)
		entry = next
	}
	return path, nil
}

// Find looks up key, copying its value into a freshly-allocated slice.
func (t *Tree) Find(key []byte) ([]byte, bool, error) {
	path, err := t.descend(key)
	if err != nil {
		return nil, false, err
	}
	leaf := path[len(path)-1]
	out := make([]byte, t.ih.ValueSize[dback.Leaf])
	ok, err := dback.BlockFind(t.lockFor(leaf.pgno), leaf.view, key, t.cmp, out)
	if err != nil {
		if errors.Is(err, dback.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return out, ok, nil
}

// Insert adds (key, value) to the tree, splitting pages and growing
// the root as needed.
func (t *Tree) Insert(key, value []byte) error {
	t.structuralMu.Lock()
	defer t.structuralMu.Unlock()

	path, err := t.descend(key)
	if err != nil {
		return err
	}
	return t.insertAndPropagate(path, key, value)
}

// insertAndPropagate inserts (key, value) into path's deepest page,
// splitting (and recursing into path's prefix to thread the new
// separator upward) if that page is full.
func (t *Tree) insertAndPropagate(path []*pathEntry, key, value []byte) error {
	last := len(path) - 1
	cur := path[last]

	if _, err := dback.BlockInsert(t.lockFor(cur.pgno), cur.view, key, value, t.cmp); err == nil {
		return nil
	} else if !errors.Is(err, dback.ErrNodeFull) {
		return err
	}

	if last == 0 {
		return t.splitRootAndInsert(cur, key, value)
	}

	newPgno, newView, promoted, err := t.splitKeepingUpper(cur)
	if err != nil {
		return err
	}
	parent := path[last-1]
	newView.SetParentPage(parent.pgno)

	target, targetPgno := cur.view, cur.pgno
	if t.cmp.Compare(key, promoted) == dback.Less {
		target, targetPgno = newView, newPgno
	}
	if _, err := dback.BlockInsert(t.lockFor(targetPgno), target, key, value, t.cmp); err != nil {
		return err
	}

	t.log.Debug("tree: split page", "pgno", cur.pgno, "new_pgno", newPgno)
	return t.insertAndPropagate(path[:last], promoted, encodePgno(newPgno))
}

// splitKeepingUpper splits cur's full page in two, leaving the lower
// half on a newly allocated page and the upper half on cur's own
// page. Parking the upper half on cur's existing page number, rather
// than the lower half, is required by BlockInsert's shift direction:
// when the caller inserts the returned separator and new page number
// into cur's parent, the parent's pre-existing pointer to cur (at the
// separator's insertion index) is what shifts one slot to the right,
// so whatever ends up referenced by that pre-existing pointer must be
// the *upper* sibling for the resulting array to stay correctly
// ordered.
func (t *Tree) splitKeepingUpper(cur *pathEntry) (uint32, *dback.PageView, []byte, error) {
	newPgno, newBuf, err := t.store.Allocate()
	if err != nil {
		return 0, nil, nil, err
	}
	copy(newBuf, cur.buf)
	newView, err := dback.InitPageView(newBuf, t.ih)
	if err != nil {
		return 0, nil, nil, err
	}

	curLock := t.lockFor(cur.pgno)
	curLock.Lock()
	defer curLock.Unlock()
	if cur.view.PageType() == dback.Leaf {
		dback.InitLeafPage(cur.buf)
	} else {
		dback.InitNonLeafPage(cur.buf)
	}

	promoted := make([]byte, t.ih.KeySize)
	if err := dback.SplitNode(newView, cur.view, promoted); err != nil {
		return 0, nil, nil, err
	}
	return newPgno, newView, promoted, nil
}

// splitRootAndInsert handles overflow of the root itself: the root's
// page number must stay fixed at 0, so (unlike splitKeepingUpper) both
// halves move to freshly allocated pages and page 0 is rebuilt as a
// brand-new non-leaf page pointing at them.
func (t *Tree) splitRootAndInsert(root *pathEntry, key, value []byte) error {
	pt := root.view.PageType()

	lowerPgno, lowerBuf, err := t.store.Allocate()
	if err != nil {
		return err
	}
	copy(lowerBuf, root.buf)
	lowerView, err := dback.InitPageView(lowerBuf, t.ih)
	if err != nil {
		return err
	}

	upperPgno, upperBuf, err := t.store.Allocate()
	if err != nil {
		return err
	}
	if pt == dback.Leaf {
		dback.InitLeafPage(upperBuf)
	} else {
		dback.InitNonLeafPage(upperBuf)
	}
	upperView, err := dback.InitPageView(upperBuf, t.ih)
	if err != nil {
		return err
	}

	promoted := make([]byte, t.ih.KeySize)
	if err := dback.SplitNode(lowerView, upperView, promoted); err != nil {
		return err
	}
	lowerView.SetParentPage(rootPgno)
	upperView.SetParentPage(rootPgno)

	target, targetPgno := lowerView, lowerPgno
	if t.cmp.Compare(key, promoted) != dback.Less {
		target, targetPgno = upperView, upperPgno
	}
	if _, err := dback.BlockInsert(t.lockFor(targetPgno), target, key, value, t.cmp); err != nil {
		return err
	}

	rootLock := t.lockFor(rootPgno)
	rootLock.Lock()
	dback.InitNonLeafPage(root.buf)
	newRoot, err := dback.InitPageView(root.buf, t.ih)
	if err == nil {
		// Pre-seed slot 0 with the upper child so it lands at slot 1 once
		// BlockInsert's shift moves it out of the way of the new separator.
		copy(newRoot.ValueAt(0), encodePgno(upperPgno))
	}
	rootLock.Unlock()
	if err != nil {
		return err
	}
	if _, err := dback.BlockInsert(t.lockFor(rootPgno), newRoot, promoted, encodePgno(lowerPgno), t.cmp); err != nil {
		return err
	}

	t.log.Debug("tree: split root", "lower_pgno", lowerPgno, "upper_pgno", upperPgno)
	return nil
}

// Delete removes key from the tree, merging or rebalancing pages (and
// collapsing the root) as needed to maintain min_keys.
func (t *Tree) Delete(key []byte) error {
	t.structuralMu.Lock()
	defer t.structuralMu.Unlock()

	path, err := t.descend(key)
	if err != nil {
		return err
	}
	last := len(path) - 1
	leaf := path[last]

	_, err = dback.BlockDelete(t.lockFor(leaf.pgno), leaf.view, key, t.cmp, 0)
	if err == nil {
		return nil
	}
	if !errors.Is(err, dback.ErrUnderflow) {
		return err
	}
	if _, err := dback.BlockDelete(t.lockFor(leaf.pgno), leaf.view, key, t.cmp, dback.AllowUnderflow); err != nil {
		return err
	}
	return t.rebalance(path, last)
}

// rebalance repairs an underflowing page at path[idx], merging it
// into a sibling (or, failing that, borrowing from one), and recurses
// up path's prefix if the merge emptied a key out of the parent too.
// idx == 0 (the root) is exempt from min_keys and is instead collapsed
// by one level if it becomes an empty non-leaf with a single child.
func (t *Tree) rebalance(path []*pathEntry, idx int) error {
	if idx == 0 {
		return t.maybeCollapseRoot(path[0])
	}

	cur := path[idx]
	parent := path[idx-1]
	pt := cur.view.PageType()

	siblingIdx, isLeft := t.pickSibling(parent, cur.childIdx)
	sibling, err := t.loadPage(decodePgno(parent.view.ValueAt(siblingIdx)))
	if err != nil {
		return err
	}

	var left, right *pathEntry
	var leftSlot uint32
	if isLeft {
		left, right, leftSlot = sibling, cur, siblingIdx
	} else {
		left, right, leftSlot = cur, sibling, cur.childIdx
	}

	leftLock, rightLock := t.lockFor(left.pgno), t.lockFor(right.pgno)

	if left.view.NumKeys()+right.view.NumKeys() <= t.ih.MaxKeys[pt] {
		// Merge into right, not left: BlockDelete always discards the
		// value at the index of the key it removes and keeps the
		// following value shifted down into that slot (see delete.go),
		// so whichever page survives under its own page number must be
		// the one sitting one slot past the separator being deleted.
		leftLock.Lock()
		rightLock.Lock()
		err := dback.ConcatNodes(right.view, left.view, false)
		rightLock.Unlock()
		leftLock.Unlock()
		if err != nil {
			return err
		}
		t.log.Debug("tree: merged pages", "into", right.pgno, "from", left.pgno)
		sepKey := append([]byte{}, parent.view.KeyAt(leftSlot)...)
		_, err = dback.BlockDelete(t.lockFor(parent.pgno), parent.view, sepKey, t.cmp, dback.AllowUnderflow)
		if err != nil {
			return err
		}
		return t.rebalance(path, idx-1)
	}

	leftLock.Lock()
	rightLock.Lock()
	err = dback.RedistributeNodes(left.view, right.view)
	rightLock.Unlock()
	leftLock.Unlock()
	if err != nil {
		return err
	}
	t.log.Debug("tree: redistributed pages", "left", left.pgno, "right", right.pgno)
	parentLock := t.lockFor(parent.pgno)
	parentLock.Lock()
	copy(parent.view.KeyAt(leftSlot), right.view.KeyAt(0))
	parentLock.Unlock()
	return nil
}

// pickSibling returns the parent value-array index of a sibling of
// the child at childIdx, preferring the left neighbor, plus whether
// that neighbor is to the left.
func (t *Tree) pickSibling(parent *pathEntry, childIdx uint32) (siblingIdx uint32, isLeft bool) {
	if childIdx > 0 {
		return childIdx - 1, true
	}
	return childIdx + 1, false
}

// maybeCollapseRoot shrinks the tree by one level when the root is a
// non-leaf page left with zero keys (a single remaining child) after
// a merge propagated all the way up to it.
func (t *Tree) maybeCollapseRoot(root *pathEntry) error {
	if root.view.PageType() != dback.NonLeaf || root.view.NumKeys() != 0 {
		return nil
	}
	onlyChildPgno := decodePgno(root.view.ValueAt(0))
	childBuf, err := t.store.Page(onlyChildPgno)
	if err != nil {
		return err
	}
	rootLock := t.lockFor(rootPgno)
	rootLock.Lock()
	copy(root.buf, childBuf)
	newRootView, err := dback.InitPageView(root.buf, t.ih)
	if err == nil {
		newRootView.SetParentPage(0)
	}
	rootLock.Unlock()
	if err != nil {
		return err
	}
	t.log.Debug("tree: collapsed root", "absorbed_pgno", onlyChildPgno)
	return nil
}
