package dback

// PageType distinguishes leaf pages (which hold user values) from
// non-leaf pages (which hold child page numbers).
type PageType uint8

const (
	NonLeaf PageType = 0
	Leaf    PageType = 1
)

func (t PageType) String() string {
	if t == Leaf {
		return "leaf"
	}
	return "non-leaf"
}

func (t PageType) valid() bool { return t == NonLeaf || t == Leaf }

// headerSize is the fixed packed size of a page header: a 4-byte parent
// page number, two 1-byte counts, a 1-byte page-type tag, and a 1-byte
// pad, laid out so the values array that follows starts on a 4-byte
// boundary.
const headerSize = 8

// childPgnoSize is the width of a non-leaf value slot: a page number.
const childPgnoSize = 4

// IndexHeader is the geometry calculator: it holds the numbers every
// other core operation needs (key/value widths and the max/min key
// counts per page type) and is computed once per open index from the
// page size and key/value widths.
type IndexHeader struct {
	PageSize  uint32
	KeySize   uint32
	ValueSize [2]uint32 // indexed by PageType; ValueSize[NonLeaf] is always childPgnoSize
	MaxKeys   [2]uint32 // indexed by PageType
	MinKeys   [2]uint32 // indexed by PageType
}

// NewIndexHeader computes the page geometry for a given page size, key
// width, and leaf value width, rejecting any combination that cannot
// host at least two keys per page type (a page that can never reach
// min_keys is unusable).
func NewIndexHeader(pageSize, keySize, valueSize uint32) (*IndexHeader, error) {
	if keySize == 0 {
		return nil, newError(CodeConfigError, "key size must be nonzero")
	}
	if valueSize == 0 {
		return nil, newError(CodeConfigError, "value size must be nonzero")
	}
	if pageSize <= headerSize {
		return nil, newError(CodeConfigError, "page size too small for header")
	}

	ih := &IndexHeader{PageSize: pageSize, KeySize: keySize}
	ih.ValueSize[Leaf] = valueSize
	ih.ValueSize[NonLeaf] = childPgnoSize

	perKeyLeaf := keySize + valueSize
	maxLeaf := (pageSize - headerSize) / perKeyLeaf
	maxLeaf -= maxLeaf % 2

	if pageSize <= headerSize+childPgnoSize {
		return nil, newError(CodeConfigError, "page size too small for non-leaf header")
	}
	perKeyNonLeaf := keySize + childPgnoSize
	maxNonLeaf := (pageSize - headerSize - childPgnoSize) / perKeyNonLeaf
	maxNonLeaf -= maxNonLeaf % 2

	if maxLeaf < 2 || maxNonLeaf < 2 {
		return nil, newError(CodeConfigError, "geometry yields fewer than 2 keys per page")
	}

	ih.MaxKeys[Leaf] = maxLeaf
	ih.MaxKeys[NonLeaf] = maxNonLeaf
	ih.MinKeys[Leaf] = maxLeaf / 2
	ih.MinKeys[NonLeaf] = maxNonLeaf / 2

	return ih, nil
}

// valSlotCount returns the number of physical value slots a page of the
// given type holds when it has numKeys keys: numKeys for a leaf page,
// numKeys+1 for a non-leaf page (the extra trailing child pointer).
func valSlotCount(t PageType, numKeys uint32) uint32 {
	if t == NonLeaf {
		return numKeys + 1
	}
	return numKeys
}

// valuesCapacity returns the physical length, in slots, of the values
// array for a fully-populated page of the given type (numKeys ==
// MaxKeys[t]).
func (ih *IndexHeader) valuesCapacity(t PageType) uint32 {
	return valSlotCount(t, ih.MaxKeys[t])
}

// keysOffset returns the byte offset of the keys array within a page
// buffer, which is constant regardless of how many keys are currently
// populated (invariant: the keys array location depends only on the
// page type and geometry, never on fill level).
func (ih *IndexHeader) keysOffset(t PageType) uint32 {
	return headerSize + ih.valuesCapacity(t)*ih.ValueSize[t]
}

// pageBytes returns the total buffer length a page of this geometry
// requires; callers should size page buffers at least this large.
func (ih *IndexHeader) pageBytes(t PageType) uint32 {
	return ih.keysOffset(t) + ih.MaxKeys[t]*ih.KeySize
}
