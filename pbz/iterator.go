package pbz

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed reports wire data that cannot be parsed.
var ErrMalformed = errors.New("pbz: malformed wire data")

// Field is one decoded field. Which value member is meaningful depends on
// Type: Varint for VarintType, Fixed for Fixed32Type and Fixed64Type, Bytes
// for BytesType. Group fields carry their raw encoding in Bytes.
type Field struct {
	Number protowire.Number
	Type   protowire.Type
	Varint uint64
	Fixed  uint64
	Bytes  []byte
}

// Int64 interprets a varint field as int64.
func (f Field) Int64() int64 { return int64(f.Varint) }

// Sint64 interprets a varint field as a zigzag sint64.
func (f Field) Sint64() int64 { return protowire.DecodeZigZag(f.Varint) }

// Bool interprets a varint field as bool.
func (f Field) Bool() bool { return protowire.DecodeBool(f.Varint) }

// Double interprets a fixed64 field as a double.
func (f Field) Double() float64 { return math.Float64frombits(f.Fixed) }

// String interprets a length-delimited field as a string.
func (f Field) String() string { return string(f.Bytes) }

// Iterator walks the top-level fields of one message. Fields the caller does
// not know about are returned like any other and can simply be ignored.
type Iterator struct {
	data  []byte
	field Field
	err   error
}

// NewIterator returns an iterator over the fields encoded in b.
func NewIterator(b []byte) *Iterator {
	return &Iterator{data: b}
}

// Next advances to the next field. It returns false at the end of the data
// or on a parse error, which Err then reports.
func (it *Iterator) Next() bool {
	if it.err != nil || len(it.data) == 0 {
		return false
	}
	num, typ, n := protowire.ConsumeTag(it.data)
	if n < 0 {
		return it.fail(n)
	}
	rest := it.data[n:]
	f := Field{Number: num, Type: typ}

	switch typ {
	case protowire.VarintType:
		v, m := protowire.ConsumeVarint(rest)
		if m < 0 {
			return it.fail(m)
		}
		f.Varint, n = v, m
	case protowire.Fixed32Type:
		v, m := protowire.ConsumeFixed32(rest)
		if m < 0 {
			return it.fail(m)
		}
		f.Fixed, n = uint64(v), m
	case protowire.Fixed64Type:
		v, m := protowire.ConsumeFixed64(rest)
		if m < 0 {
			return it.fail(m)
		}
		f.Fixed, n = v, m
	case protowire.BytesType:
		v, m := protowire.ConsumeBytes(rest)
		if m < 0 {
			return it.fail(m)
		}
		f.Bytes, n = v, m
	default:
		m := protowire.ConsumeFieldValue(num, typ, rest)
		if m < 0 {
			return it.fail(m)
		}
		f.Bytes, n = rest[:m], m
	}

	it.field = f
	it.data = rest[n:]
	return true
}

func (it *Iterator) fail(n int) bool {
	it.err = fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
	it.data = nil
	return false
}

// Field returns the field Next stopped on.
func (it *Iterator) Field() Field {
	return it.field
}

// Err returns the parse error that ended iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Decode returns every top-level field of b in wire order.
func Decode(b []byte) ([]Field, error) {
	var out []Field
	it := NewIterator(b)
	for it.Next() {
		out = append(out, it.Field())
	}
	return out, it.Err()
}

// FindAll returns the top-level fields of b numbered num, stopping silently
// at malformed data.
func FindAll(b []byte, num protowire.Number) []Field {
	var out []Field
	it := NewIterator(b)
	for it.Next() {
		if f := it.Field(); f.Number == num {
			out = append(out, f)
		}
	}
	return out
}

// Find returns the last top-level field of b numbered num. For a singular
// field the last occurrence is the effective value.
func Find(b []byte, num protowire.Number) (Field, bool) {
	fields := FindAll(b, num)
	if len(fields) == 0 {
		return Field{}, false
	}
	return fields[len(fields)-1], true
}
