package dback

import "unsafe"

// pageHeader is the packed 8-byte header that begins every page buffer.
// Its field order and widths are load-bearing: this struct is overlaid
// directly onto a page buffer via unsafe.Pointer, the same zero-copy
// technique the teacher's pageHeader/nodeHeader types use, so field
// order here IS the on-disk layout.
type pageHeader struct {
	ParentPage uint32
	NumKeys    uint8
	NumVals    uint8
	Type       uint8
	_          uint8 // pad, keeps the struct 4-byte aligned and 8 bytes wide
}

// PageView is a page's header plus its values and keys arrays, all
// sliced directly over the caller-supplied buffer. No PageView method
// copies the buffer; every accessor returns or writes through the
// original backing array.
type PageView struct {
	buf    []byte
	header *pageHeader
	Values []byte
	Keys   []byte
	ih     *IndexHeader
}

func pageHeaderOf(buf []byte) *pageHeader {
	return (*pageHeader)(unsafe.Pointer(&buf[0]))
}

// PageType returns the page's type as recorded in its header.
func (v *PageView) PageType() PageType { return PageType(v.header.Type) }

// NumKeys returns the page's current key count.
func (v *PageView) NumKeys() uint32 { return uint32(v.header.NumKeys) }

// NumVals returns the page's current value-slot count.
func (v *PageView) NumVals() uint32 { return uint32(v.header.NumVals) }

// ParentPage returns the page number of this page's parent, or 0 if unset/root.
func (v *PageView) ParentPage() uint32 { return v.header.ParentPage }

// SetParentPage records this page's parent page number.
func (v *PageView) SetParentPage(p uint32) { v.header.ParentPage = p }

func (v *PageView) setCounts(numKeys uint32) {
	v.header.NumKeys = uint8(numKeys)
	v.header.NumVals = uint8(valSlotCount(v.PageType(), numKeys))
}

// KeyAt returns the key-sized slice at logical key index i (0 <= i < NumKeys).
func (v *PageView) KeyAt(i uint32) []byte {
	ks := v.ih.KeySize
	return v.Keys[i*ks : (i+1)*ks]
}

// ValueAt returns the value-sized slice at logical value-slot index i
// (0 <= i < NumVals).
func (v *PageView) ValueAt(i uint32) []byte {
	vs := v.ih.ValueSize[v.PageType()]
	return v.Values[i*vs : (i+1)*vs]
}

// initPage zeroes the page buffer and writes a header of the given
// type, giving callers a known-empty page (State == Empty).
func initPage(buf []byte, t PageType) {
	for i := range buf {
		buf[i] = 0
	}
	h := pageHeaderOf(buf)
	h.Type = uint8(t)
	h.NumKeys = 0
	h.NumVals = 0
}

// InitLeafPage zeroes buf and initializes it as an empty leaf page.
func InitLeafPage(buf []byte) { initPage(buf, Leaf) }

// InitNonLeafPage zeroes buf and initializes it as an empty non-leaf page.
func InitNonLeafPage(buf []byte) { initPage(buf, NonLeaf) }

// InitPageView builds a PageView over buf using the page type recorded
// in buf's header plus the supplied geometry. buf must already have
// been initialized (InitLeafPage/InitNonLeafPage) or loaded from a
// previously-initialized page.
func InitPageView(buf []byte, ih *IndexHeader) (*PageView, error) {
	if ih == nil {
		return nil, wrapError(CodeBadArg, "init page view", errNilIndexHeader)
	}
	if uint32(len(buf)) < ih.pageBytes(Leaf) && uint32(len(buf)) < ih.pageBytes(NonLeaf) {
		return nil, newError(CodeBadArg, "buffer too small for geometry")
	}
	h := pageHeaderOf(buf)
	t := PageType(h.Type)
	if !t.valid() {
		return nil, newError(CodeBadArg, "buffer has an invalid page-type tag")
	}

	valCap := ih.valuesCapacity(t)
	valBytes := valCap * ih.ValueSize[t]
	keyBytes := ih.MaxKeys[t] * ih.KeySize
	keysOff := headerSize + valBytes

	if uint32(len(buf)) < keysOff+keyBytes {
		return nil, newError(CodeBadArg, "buffer too small for this page's geometry")
	}

	return &PageView{
		buf:    buf,
		header: h,
		Values: buf[headerSize : headerSize+valBytes],
		Keys:   buf[keysOff : keysOff+keyBytes],
		ih:     ih,
	}, nil
}

var errNilIndexHeader = newError(CodeBadArg, "nil index header")
