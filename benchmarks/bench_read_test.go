package benchmarks

import (
	"fmt"
	"testing"

	"go.etcd.io/bbolt"
)

// BenchmarkFind compares dback's tree.Find against bbolt's
// bucket.Get for random lookups against an identically sized,
// identically keyed pre-populated database.
func BenchmarkFind(b *testing.B) {
	sizes := []int{1_000, 10_000, 100_000}

	for _, size := range sizes {
		sizeName := formatSize(size)

		b.Run(fmt.Sprintf("tree/%s", sizeName), func(b *testing.B) {
			benchFindTree(b, size)
		})
		b.Run(fmt.Sprintf("bolt/%s", sizeName), func(b *testing.B) {
			benchFindBolt(b, size)
		})
	}
}

func benchFindTree(b *testing.B, numKeys int) {
	t := getCachedTree(b, numKeys)
	keys := uuidKeys(numKeys)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		k := keys[i%numKeys]
		if _, ok, err := t.Find(k); err != nil {
			b.Fatal(err)
		} else if !ok {
			b.Fatalf("key %d missing from tree fixture", i%numKeys)
		}
	}
}

func benchFindBolt(b *testing.B, numKeys int) {
	db := getCachedBoltDB(b, numKeys)
	keys := uuidKeys(numKeys)

	b.ResetTimer()
	b.ReportAllocs()

	err := db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte("bench"))
		for i := 0; i < b.N; i++ {
			k := keys[i%numKeys]
			if v := bucket.Get(k); v == nil {
				b.Fatalf("key %d missing from bolt fixture", i%numKeys)
			}
		}
		return nil
	})
	if err != nil {
		b.Fatal(err)
	}
}
