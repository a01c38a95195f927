// Package pbz writes and reads protobuf wire data without generated code.
//
// Message appends fields to a growable buffer. Nested messages reserve a
// four byte size prefix up front and patch it when the nested message is
// closed, so a message can be written in one forward pass without knowing
// its size. The prefix is a redundant varint: every byte but the last has
// the continuation bit set, which any protobuf decoder accepts.
package pbz

import (
	"fmt"
	"math"

	"fortio.org/safecast"
	"google.golang.org/protobuf/encoding/protowire"
)

// SizePrefixLen is the width of a reserved nested-message size prefix.
const SizePrefixLen = 4

// MaxNestedSize is the largest nested message a reserved prefix can hold.
const MaxNestedSize = 1<<(7*SizePrefixLen) - 1

// Message is a protobuf message under construction. The zero value is ready
// to use. A Message is not safe for concurrent use.
type Message struct {
	buf    []byte
	nested []int // offsets of the open size prefixes, innermost last
}

// NewMessage returns a Message whose buffer starts with capacity sizeHint.
func NewMessage(sizeHint int) *Message {
	return &Message{buf: make([]byte, 0, sizeHint)}
}

// Reset empties the message, keeping its buffer.
func (m *Message) Reset() {
	m.buf = m.buf[:0]
	m.nested = m.nested[:0]
}

// Len is the number of bytes written so far, including open prefixes.
func (m *Message) Len() int {
	return len(m.buf)
}

// Depth is the number of nested messages still open.
func (m *Message) Depth() int {
	return len(m.nested)
}

// Bytes returns the encoded message. It panics if a nested message is still
// open. The slice aliases the internal buffer until the next Reset.
func (m *Message) Bytes() []byte {
	if len(m.nested) > 0 {
		panic(fmt.Sprintf("pbz: %d nested messages still open", len(m.nested)))
	}
	return m.buf
}

// AppendVarint writes a varint field.
func (m *Message) AppendVarint(num protowire.Number, v uint64) {
	m.buf = protowire.AppendTag(m.buf, num, protowire.VarintType)
	m.buf = protowire.AppendVarint(m.buf, v)
}

// AppendInt64 writes an int64 field (two's complement varint).
func (m *Message) AppendInt64(num protowire.Number, v int64) {
	m.AppendVarint(num, uint64(v))
}

// AppendSint64 writes a zigzag encoded sint64 field.
func (m *Message) AppendSint64(num protowire.Number, v int64) {
	m.AppendVarint(num, protowire.EncodeZigZag(v))
}

// AppendBool writes a bool field.
func (m *Message) AppendBool(num protowire.Number, v bool) {
	m.AppendVarint(num, protowire.EncodeBool(v))
}

// AppendFixed64 writes a fixed64 field.
func (m *Message) AppendFixed64(num protowire.Number, v uint64) {
	m.buf = protowire.AppendTag(m.buf, num, protowire.Fixed64Type)
	m.buf = protowire.AppendFixed64(m.buf, v)
}

// AppendFixed32 writes a fixed32 field.
func (m *Message) AppendFixed32(num protowire.Number, v uint32) {
	m.buf = protowire.AppendTag(m.buf, num, protowire.Fixed32Type)
	m.buf = protowire.AppendFixed32(m.buf, v)
}

// AppendDouble writes a double field.
func (m *Message) AppendDouble(num protowire.Number, v float64) {
	m.AppendFixed64(num, math.Float64bits(v))
}

// AppendString writes a length-delimited string field.
func (m *Message) AppendString(num protowire.Number, s string) {
	m.buf = protowire.AppendTag(m.buf, num, protowire.BytesType)
	m.buf = protowire.AppendString(m.buf, s)
}

// AppendBytes writes a length-delimited bytes field.
func (m *Message) AppendBytes(num protowire.Number, b []byte) {
	m.buf = protowire.AppendTag(m.buf, num, protowire.BytesType)
	m.buf = protowire.AppendBytes(m.buf, b)
}

// AppendRaw copies already encoded fields into the message.
func (m *Message) AppendRaw(b []byte) {
	m.buf = append(m.buf, b...)
}

// BeginNested opens a nested message field. Every BeginNested must be paired
// with an EndNested.
func (m *Message) BeginNested(num protowire.Number) {
	m.buf = protowire.AppendTag(m.buf, num, protowire.BytesType)
	m.nested = append(m.nested, len(m.buf))
	m.buf = append(m.buf, 0, 0, 0, 0)
}

// EndNested closes the innermost open nested message and patches its size.
// It panics when nothing is open or the nested message exceeds MaxNestedSize.
func (m *Message) EndNested() {
	if len(m.nested) == 0 {
		panic("pbz: EndNested without BeginNested")
	}
	off := m.nested[len(m.nested)-1]
	m.nested = m.nested[:len(m.nested)-1]

	size, err := safecast.Conv[uint32](len(m.buf) - off - SizePrefixLen)
	if err != nil || size > MaxNestedSize {
		panic(fmt.Sprintf("pbz: nested message of %d bytes exceeds size prefix", len(m.buf)-off-SizePrefixLen))
	}
	PutRedundantVarint(m.buf[off:off+SizePrefixLen], size)
}

// PutRedundantVarint writes v into dst as a varint padded to len(dst) bytes.
// It panics if v does not fit.
func PutRedundantVarint(dst []byte, v uint32) {
	n := len(dst)
	if n == 0 || (n < 5 && uint64(v) >= 1<<(7*n)) {
		panic(fmt.Sprintf("pbz: %d does not fit in %d varint bytes", v, n))
	}
	for i := 0; i < n-1; i++ {
		dst[i] = byte(v&0x7f) | 0x80
		v >>= 7
	}
	dst[n-1] = byte(v & 0x7f)
}
