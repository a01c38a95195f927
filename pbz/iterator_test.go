package pbz_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/zoobzio/probez/pbz"
)

var _ = Describe("Iterator", func() {
	// field 3 = 5, field 5 = { field 1 = "hello", field 5 = max uint64 }
	encoded := []byte("\x18\x05\x2a\x12\x0a\x05hello\x28\xff\xff\xff\xff\xff\xff\xff\xff\xff\x01")

	It("should walk top-level fields in order", func() {
		it := pbz.NewIterator(encoded)

		Expect(it.Next()).To(BeTrue())
		Expect(it.Field().Number).To(Equal(protowire.Number(3)))
		Expect(it.Field().Type).To(Equal(protowire.VarintType))
		Expect(it.Field().Varint).To(Equal(uint64(5)))

		Expect(it.Next()).To(BeTrue())
		Expect(it.Field().Number).To(Equal(protowire.Number(5)))
		Expect(it.Field().Type).To(Equal(protowire.BytesType))
		Expect(it.Field().Bytes).To(HaveLen(0x12))

		Expect(it.Next()).To(BeFalse())
		Expect(it.Err()).NotTo(HaveOccurred())
	})

	It("should decode nested payloads", func() {
		nested, ok := pbz.Find(encoded, 5)
		Expect(ok).To(BeTrue())

		fields, err := pbz.Decode(nested.Bytes)
		Expect(err).NotTo(HaveOccurred())
		Expect(fields).To(HaveLen(2))
		Expect(fields[0].String()).To(Equal("hello"))
		Expect(fields[1].Varint).To(Equal(uint64(math.MaxUint64)))
	})

	It("should skip unknown groups", func() {
		var b []byte
		b = protowire.AppendTag(b, 9, protowire.StartGroupType)
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
		b = protowire.AppendTag(b, 9, protowire.EndGroupType)
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, 77)

		v, ok := pbz.Find(b, 2)
		Expect(ok).To(BeTrue())
		Expect(v.Varint).To(Equal(uint64(77)))
	})

	It("should report truncated input", func() {
		truncated := encoded[:len(encoded)-3]
		fields, err := pbz.Decode(truncated)
		Expect(err).To(MatchError(pbz.ErrMalformed))
		Expect(fields).To(HaveLen(1))
	})

	It("should return the last occurrence and all occurrences", func() {
		m := &pbz.Message{}
		m.AppendVarint(1, 1)
		m.AppendVarint(2, 9)
		m.AppendVarint(1, 2)

		last, ok := pbz.Find(m.Bytes(), 1)
		Expect(ok).To(BeTrue())
		Expect(last.Varint).To(Equal(uint64(2)))
		Expect(pbz.FindAll(m.Bytes(), 1)).To(HaveLen(2))

		_, ok = pbz.Find(m.Bytes(), 3)
		Expect(ok).To(BeFalse())
	})
})
