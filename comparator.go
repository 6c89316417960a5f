package dback

import (
	"bytes"

	"github.com/google/uuid"
)

// CompareResult is the outcome of a KeyComparator.Compare call.
type CompareResult int

const (
	Less    CompareResult = -1
	Equal   CompareResult = 0
	Greater CompareResult = 1
)

// KeyComparator imposes a total order on fixed-width key byte spans.
// Implementations must be pure and depend only on the bytes given; the
// core never hands a comparator anything other than two KeySize-wide
// slices.
type KeyComparator interface {
	Compare(a, b []byte) CompareResult
}

// ByteComparator orders single-byte keys by unsigned value. Used
// throughout the exhaustive small-page tests, where a 1-byte key space
// is large enough to cover every page fill level.
type ByteComparator struct{}

func (ByteComparator) Compare(a, b []byte) CompareResult {
	switch {
	case a[0] < b[0]:
		return Less
	case a[0] > b[0]:
		return Greater
	default:
		return Equal
	}
}

// UUIDComparator orders 16-byte keys as RFC 4122 UUIDs in their raw
// byte-array (not textual) form, which is also a valid lexicographic
// byte compare. It is the comparator spec.md's primary use case - a
// 16-byte UUID primary key - maps to.
type UUIDComparator struct{}

func (UUIDComparator) Compare(a, b []byte) CompareResult {
	// bytes.Compare on the raw 16-byte array agrees with UUID ordering;
	// github.com/google/uuid is used by callers to construct/parse the
	// keys themselves, not needed here for the comparison.
	switch bytes.Compare(a, b) {
	case -1:
		return Less
	case 1:
		return Greater
	default:
		return Equal
	}
}

// ParseUUIDKey is a convenience used by tests and example callers to
// turn a textual UUID into the 16-byte key this package expects.
func ParseUUIDKey(s string) ([]byte, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, wrapError(CodeBadArg, "parse uuid key", err)
	}
	b := id[:]
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// NewUUIDKey generates a random UUID key in the 16-byte form this
// package expects.
func NewUUIDKey() ([]byte, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, wrapError(CodeConfigError, "generate uuid key", err)
	}
	b := id[:]
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}
