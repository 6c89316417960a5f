package tree

import (
	"path/filepath"
	"testing"

	"github.com/zurgzurg/dback"
	"github.com/zurgzurg/dback/pagestore"
)

// testGeometry yields MaxKeys[Leaf]=4, MinKeys[Leaf]=2 and
// MaxKeys[NonLeaf]=6, MinKeys[NonLeaf]=3 - small enough that a
// handful of single-byte-key inserts exercises leaf splits, root
// splits, and (on delete) merges and root collapse.
func testGeometry(t *testing.T) *dback.IndexHeader {
	t.Helper()
	ih, err := dback.NewIndexHeader(44, 1, 8)
	if err != nil {
		t.Fatalf("NewIndexHeader: %v", err)
	}
	return ih
}

func openTestTree(t *testing.T) *Tree {
	t.Helper()
	ih := testGeometry(t)
	store, err := pagestore.Open(filepath.Join(t.TempDir(), "pages.db"), ih.PageSize)
	if err != nil {
		t.Fatalf("pagestore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	tr, err := Open(store, ih, dback.ByteComparator{})
	if err != nil {
		t.Fatalf("tree.Open: %v", err)
	}
	return tr
}

func val(b byte) []byte { return []byte{b, 0, 0, 0, 0, 0, 0, 0} }

func mustFind(t *testing.T, tr *Tree, key byte, want byte) {
	t.Helper()
	got, ok, err := tr.Find([]byte{key})
	if err != nil {
		t.Fatalf("Find(%d): %v", key, err)
	}
	if !ok {
		t.Fatalf("Find(%d): not found", key)
	}
	if got[0] != want {
		t.Fatalf("Find(%d) = %d, want %d", key, got[0], want)
	}
}

func mustNotFind(t *testing.T, tr *Tree, key byte) {
	t.Helper()
	_, ok, err := tr.Find([]byte{key})
	if err != nil {
		t.Fatalf("Find(%d): %v", key, err)
	}
	if ok {
		t.Fatalf("Find(%d): unexpectedly found", key)
	}
}

func TestTreeInsertFindRoundTrip(t *testing.T) {
	tr := openTestTree(t)
	for _, k := range []byte{3, 1, 2} {
		if err := tr.Insert([]byte{k}, val(k)); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}
	for _, k := range []byte{1, 2, 3} {
		mustFind(t, tr, k, k)
	}
	mustNotFind(t, tr, 9)
}

func TestTreeInsertDuplicateRejected(t *testing.T) {
	tr := openTestTree(t)
	if err := tr.Insert([]byte{1}, val(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	err := tr.Insert([]byte{1}, val(99))
	if !isDupErr(err) {
		t.Fatalf("second Insert(1) err = %v, want duplicate", err)
	}
}

func isDupErr(err error) bool {
	code, ok := dback.Code(err)
	return ok && code == dback.CodeDuplicateInsert
}

// TestTreeRootSplitsOnOverflow drives the root leaf past MaxKeys[Leaf]
// (4), forcing it to become a 2-child non-leaf root, and checks every
// key inserted so far is still reachable afterward.
func TestTreeRootSplitsOnOverflow(t *testing.T) {
	tr := openTestTree(t)
	keys := []byte{1, 2, 3, 4, 5}
	for _, k := range keys {
		if err := tr.Insert([]byte{k}, val(k)); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}
	stats, err := tr.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.RootType != dback.NonLeaf {
		t.Fatalf("RootType = %v, want NonLeaf after 5 inserts into a 4-key-max leaf", stats.RootType)
	}
	for _, k := range keys {
		mustFind(t, tr, k, k)
	}
}

// TestTreeManyInsertsStayFindable drives enough inserts to split more
// than once (including a second-level non-leaf overflow), and checks
// every key remains findable and every absent key reports not found.
func TestTreeManyInsertsStayFindable(t *testing.T) {
	tr := openTestTree(t)
	const n = 40
	for k := 0; k < n; k++ {
		if err := tr.Insert([]byte{byte(k)}, val(byte(k))); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}
	for k := 0; k < n; k++ {
		mustFind(t, tr, byte(k), byte(k))
	}
	mustNotFind(t, tr, byte(n))
	mustNotFind(t, tr, 250)
}

// TestTreeDeleteMergesLeavesAndCollapsesRoot builds a root that has
// just split into two leaves, deletes every key out of one side, and
// checks the tree collapses back to a single-leaf root with the
// surviving keys intact.
func TestTreeDeleteMergesLeavesAndCollapsesRoot(t *testing.T) {
	tr := openTestTree(t)
	for _, k := range []byte{0, 1, 2, 3, 4} {
		if err := tr.Insert([]byte{k}, val(k)); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}
	stats, err := tr.Stats()
	if err != nil || stats.RootType != dback.NonLeaf {
		t.Fatalf("expected a split root before deleting, stats=%+v err=%v", stats, err)
	}

	for _, k := range []byte{0, 1} {
		if err := tr.Delete([]byte{k}); err != nil {
			t.Fatalf("Delete(%d): %v", k, err)
		}
	}

	stats, err = tr.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.RootType != dback.Leaf {
		t.Fatalf("RootType = %v, want Leaf after collapsing back down", stats.RootType)
	}

	mustNotFind(t, tr, 0)
	mustNotFind(t, tr, 1)
	for _, k := range []byte{2, 3, 4} {
		mustFind(t, tr, k, k)
	}
}

func TestTreeDeleteAbsentKeyFails(t *testing.T) {
	tr := openTestTree(t)
	if err := tr.Insert([]byte{1}, val(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	err := tr.Delete([]byte{9})
	code, ok := dback.Code(err)
	if !ok || code != dback.CodeKeyNotFound {
		t.Fatalf("Delete(9) err = %v, want CodeKeyNotFound", err)
	}
}

// TestTreeInsertDeleteManyRoundTrip exercises a larger randomized-ish
// (but deterministic) sequence of inserts and deletes, checking the
// tree's answers against a plain map kept alongside it.
func TestTreeInsertDeleteManyRoundTrip(t *testing.T) {
	tr := openTestTree(t)
	present := map[byte]bool{}

	insertAll := func(keys []byte) {
		for _, k := range keys {
			if present[k] {
				continue
			}
			if err := tr.Insert([]byte{k}, val(k)); err != nil {
				t.Fatalf("Insert(%d): %v", k, err)
			}
			present[k] = true
		}
	}
	deleteAll := func(keys []byte) {
		for _, k := range keys {
			if !present[k] {
				continue
			}
			if err := tr.Delete([]byte{k}); err != nil {
				t.Fatalf("Delete(%d): %v", k, err)
			}
			delete(present, k)
		}
	}

	insertAll([]byte{10, 20, 30, 40, 50, 60, 70, 80})
	deleteAll([]byte{30, 70})
	insertAll([]byte{25, 35, 45, 55, 65, 75, 15, 5})
	deleteAll([]byte{10, 20, 80})

	for k := byte(0); k < 100; k++ {
		if present[k] {
			mustFind(t, tr, k, k)
		} else {
			mustNotFind(t, tr, k)
		}
	}
}

// TestTreeDeepRandomizedRoundTripForcesNonLeafMerges drives every byte
// key through the tree and back out again. With MaxKeys[NonLeaf]=6,
// 256 leaves-worth of keys pushes the tree past two levels of
// non-leaf, and the interleaved delete passes below force non-leaf
// siblings to merge or redistribute with each other (not just leaves)
// - the path ConcatNodes/RedistributeNodes' non-leaf branches cover.
// Every answer is checked against a plain map kept alongside the tree,
// so a misrouted child pointer after a non-leaf merge shows up as a
// wrong Find result here rather than only a slot-count mismatch.
func TestTreeDeepRandomizedRoundTripForcesNonLeafMerges(t *testing.T) {
	tr := openTestTree(t)
	present := map[byte]bool{}

	insertAll := func(keys []byte) {
		for _, k := range keys {
			if present[k] {
				continue
			}
			if err := tr.Insert([]byte{k}, val(k)); err != nil {
				t.Fatalf("Insert(%d): %v", k, err)
			}
			present[k] = true
		}
	}
	deleteAll := func(keys []byte) {
		for _, k := range keys {
			if !present[k] {
				continue
			}
			if err := tr.Delete([]byte{k}); err != nil {
				t.Fatalf("Delete(%d): %v", k, err)
			}
			delete(present, k)
		}
	}
	checkAll := func() {
		for k := 0; k < 256; k++ {
			kb := byte(k)
			if present[kb] {
				mustFind(t, tr, kb, kb)
			} else {
				mustNotFind(t, tr, kb)
			}
		}
	}

	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	insertAll(all)
	checkAll()

	// Thin the tree down to every eighth key - deep enough, and sparse
	// enough, that whole non-leaf subtrees collapse and their parents
	// have to merge or redistribute with a sibling non-leaf.
	var toDelete []byte
	for k := 0; k < 256; k++ {
		if k%8 != 0 {
			toDelete = append(toDelete, byte(k))
		}
	}
	deleteAll(toDelete)
	checkAll()

	// Refill every third of the now-sparse key space and re-check, so
	// the freshly-redistributed/merged nodes also absorb new splits
	// correctly.
	var toReinsert []byte
	for k := 0; k < 256; k += 3 {
		toReinsert = append(toReinsert, byte(k))
	}
	insertAll(toReinsert)
	checkAll()

	deleteAll(all)
	checkAll()
}
