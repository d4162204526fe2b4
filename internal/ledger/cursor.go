package ledger

import (
	"encoding/binary"
	"fmt"
)

// cursor is a bounds-checked reader over raw account data. Every read either
// yields exactly the requested bytes or marks the cursor failed; decode
// helpers check Err once at the end instead of threading an error through
// every field.
type cursor struct {
	data []byte
	off  int
	err  error
}

func newCursor(data []byte) *cursor { return &cursor{data: data} }

func (c *cursor) fail(format string, args ...any) {
	if c.err == nil {
		c.err = fmt.Errorf("%w: %s", ErrMalformedAccountData, fmt.Sprintf(format, args...))
	}
}

func (c *cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if c.off+n > len(c.data) {
		c.fail("need %d bytes at offset %d, have %d", n, c.off, len(c.data)-c.off)
		return nil
	}
	out := c.data[c.off : c.off+n]
	c.off += n
	return out
}

func (c *cursor) u8() uint8 {
	b := c.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (c *cursor) bool() bool { return c.u8() != 0 }

func (c *cursor) u16() uint16 {
	b := c.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (c *cursor) u32() uint32 {
	b := c.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (c *cursor) u64() uint64 {
	b := c.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (c *cursor) i64() int64 { return int64(c.u64()) }

func (c *cursor) bytes(dst []byte) {
	b := c.take(len(dst))
	if b != nil {
		copy(dst, b)
	}
}

func (c *cursor) pubkey() PublicKey {
	var pk PublicKey
	c.bytes(pk[:])
	return pk
}

// finish rejects trailing bytes: a longer-than-expected account is as
// malformed as a truncated one.
func (c *cursor) finish() error {
	if c.err != nil {
		return c.err
	}
	if c.off != len(c.data) {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformedAccountData, len(c.data)-c.off)
	}
	return nil
}

// writer builds account and instruction payloads in layout order.
type writer struct {
	buf []byte
}

func newWriter(capacity int) *writer { return &writer{buf: make([]byte, 0, capacity)} }

func (w *writer) u8(v uint8)       { w.buf = append(w.buf, v) }
func (w *writer) bool(v bool)      { w.u8(boolByte(v)) }
func (w *writer) u16(v uint16)     { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32)     { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64)     { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *writer) i64(v int64)      { w.u64(uint64(v)) }
func (w *writer) bytes(b []byte)   { w.buf = append(w.buf, b...) }
func (w *writer) pubkey(pk PublicKey) { w.bytes(pk[:]) }

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
