// Package serialbuf implements the fixed-capacity, position-tracked
// byte cursor spec.md's purpose section acknowledges as a peripheral
// collaborator ("a companion 'serial buffer' fixed-size scratch used
// by RPC framing") without specifying it further. The tree package
// uses it to frame the child page numbers it stores in non-leaf value
// slots, in the style of the original C++ serialbuffer.cpp: every
// accessor takes either the cursor's own running position or an
// explicit offset, and every call reports success/failure instead of
// panicking on a short buffer.
package serialbuf

import "encoding/binary"

// Buffer is a fixed-capacity byte scratch with independent read and
// write cursors, matching the original SerialBuffer's separate
// writeIdx/readIdx. Unlike the C++ source (which used network byte
// order via htons/htonl for wire framing), integers here are written
// host-native: this buffer only ever moves bytes between the tree
// layer and the page store on the same machine, never across a wire.
type Buffer struct {
	buf      []byte
	writeIdx int
	readIdx  int
}

// New allocates a Buffer with the given fixed capacity.
func New(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, capacity)}
}

// Wrap constructs a Buffer over an existing byte slice without
// copying; writes and reads go directly into buf.
func Wrap(buf []byte) *Buffer {
	return &Buffer{buf: buf}
}

// Reset rewinds both cursors to the start of the buffer without
// touching its bytes.
func (b *Buffer) Reset() {
	b.writeIdx = 0
	b.readIdx = 0
}

// Bytes returns the buffer's full backing storage.
func (b *Buffer) Bytes() []byte { return b.buf }

// Len returns the buffer's fixed capacity.
func (b *Buffer) Len() int { return len(b.buf) }

// PutUint8 appends a single byte at the write cursor, advancing it.
func (b *Buffer) PutUint8(v uint8) bool {
	if b.writeIdx >= len(b.buf) {
		return false
	}
	b.buf[b.writeIdx] = v
	b.writeIdx++
	return true
}

// PutUint8At writes a single byte at idx without moving the write cursor.
func (b *Buffer) PutUint8At(v uint8, idx int) bool {
	if idx < 0 || idx >= len(b.buf) {
		return false
	}
	b.buf[idx] = v
	return true
}

// PutUint32 appends a 4-byte value at the write cursor, advancing it
// by 4. Used to frame page numbers exchanged with the page store.
func (b *Buffer) PutUint32(v uint32) bool {
	if b.writeIdx+4 > len(b.buf) {
		return false
	}
	binary.NativeEndian.PutUint32(b.buf[b.writeIdx:], v)
	b.writeIdx += 4
	return true
}

// PutUint32At writes a 4-byte value at idx without moving the write cursor.
func (b *Buffer) PutUint32At(v uint32, idx int) bool {
	if idx < 0 || idx+4 > len(b.buf) {
		return false
	}
	binary.NativeEndian.PutUint32(b.buf[idx:], v)
	return true
}

// PutBytes appends raw bytes at the write cursor, advancing it by
// len(p). Used to frame opaque fixed-width keys.
func (b *Buffer) PutBytes(p []byte) bool {
	if b.writeIdx+len(p) > len(b.buf) {
		return false
	}
	copy(b.buf[b.writeIdx:], p)
	b.writeIdx += len(p)
	return true
}

// GetUint8 reads a single byte at the read cursor, advancing it.
func (b *Buffer) GetUint8() (uint8, bool) {
	if b.readIdx >= len(b.buf) {
		return 0, false
	}
	v := b.buf[b.readIdx]
	b.readIdx++
	return v, true
}

// GetUint32 reads a 4-byte value at the read cursor, advancing it by 4.
func (b *Buffer) GetUint32() (uint32, bool) {
	if b.readIdx+4 > len(b.buf) {
		return 0, false
	}
	v := binary.NativeEndian.Uint32(b.buf[b.readIdx:])
	b.readIdx += 4
	return v, true
}

// GetUint32At reads a 4-byte value at idx without moving the read cursor.
func (b *Buffer) GetUint32At(idx int) (uint32, bool) {
	if idx < 0 || idx+4 > len(b.buf) {
		return 0, false
	}
	return binary.NativeEndian.Uint32(b.buf[idx:]), true
}

// GetBytes reads n raw bytes at the read cursor into a fresh slice,
// advancing the cursor by n.
func (b *Buffer) GetBytes(n int) ([]byte, bool) {
	if b.readIdx+n > len(b.buf) {
		return nil, false
	}
	out := make([]byte, n)
	copy(out, b.buf[b.readIdx:b.readIdx+n])
	b.readIdx += n
	return out, true
}
