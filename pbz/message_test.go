package pbz_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/zoobzio/probez/pbz"
)

var _ = Describe("Message", func() {
	var m *pbz.Message

	BeforeEach(func() {
		m = pbz.NewMessage(64)
	})

	It("should encode scalar fields like protowire", func() {
		m.AppendVarint(1, 150)
		m.AppendString(2, "testing")
		m.AppendBool(3, true)
		m.AppendInt64(4, -1)

		var want []byte
		want = protowire.AppendTag(want, 1, protowire.VarintType)
		want = protowire.AppendVarint(want, 150)
		want = protowire.AppendTag(want, 2, protowire.BytesType)
		want = protowire.AppendString(want, "testing")
		want = protowire.AppendTag(want, 3, protowire.VarintType)
		want = protowire.AppendVarint(want, 1)
		want = protowire.AppendTag(want, 4, protowire.VarintType)
		want = protowire.AppendVarint(want, math.MaxUint64)

		Expect(m.Bytes()).To(Equal(want))
	})

	It("should reserve a four byte prefix for nested messages", func() {
		m.BeginNested(5)
		m.AppendString(1, "hello")
		m.EndNested()

		Expect(m.Bytes()).To(Equal([]byte{
			0x2a, 0x87, 0x80, 0x80, 0x00,
			0x0a, 0x05, 'h', 'e', 'l', 'l', 'o',
		}))
	})

	It("should patch nested prefixes innermost first", func() {
		m.BeginNested(1)
		m.BeginNested(2)
		m.AppendVarint(1, 7)
		m.EndNested()
		m.EndNested()

		outer, ok := pbz.Find(m.Bytes(), 1)
		Expect(ok).To(BeTrue())
		Expect(outer.Bytes).To(HaveLen(1 + pbz.SizePrefixLen + 2))

		inner, ok := pbz.Find(outer.Bytes, 2)
		Expect(ok).To(BeTrue())
		v, ok := pbz.Find(inner.Bytes, 1)
		Expect(ok).To(BeTrue())
		Expect(v.Varint).To(Equal(uint64(7)))
	})

	It("should refuse to expose bytes while a nested message is open", func() {
		m.BeginNested(1)
		Expect(m.Depth()).To(Equal(1))
		Expect(func() { m.Bytes() }).To(Panic())
	})

	It("should panic on EndNested without BeginNested", func() {
		Expect(func() { m.EndNested() }).To(Panic())
	})

	It("should keep the buffer across Reset", func() {
		m.AppendVarint(1, 1)
		m.BeginNested(2)
		m.Reset()
		Expect(m.Len()).To(BeZero())
		Expect(m.Depth()).To(BeZero())
		Expect(m.Bytes()).To(BeEmpty())
	})

	It("should round trip doubles and fixed values", func() {
		m.AppendDouble(1, 3.5)
		m.AppendFixed64(2, 42)
		m.AppendFixed32(3, 7)
		m.AppendSint64(4, -3)

		fields, err := pbz.Decode(m.Bytes())
		Expect(err).NotTo(HaveOccurred())
		Expect(fields).To(HaveLen(4))
		Expect(fields[0].Double()).To(Equal(3.5))
		Expect(fields[1].Fixed).To(Equal(uint64(42)))
		Expect(fields[2].Fixed).To(Equal(uint64(7)))
		Expect(fields[3].Sint64()).To(Equal(int64(-3)))
	})
})

var _ = Describe("PutRedundantVarint", func() {
	It("should set the continuation bit on all but the last byte", func() {
		dst := make([]byte, 4)
		pbz.PutRedundantVarint(dst, 300)
		Expect(dst).To(Equal([]byte{0xac, 0x82, 0x80, 0x00}))

		v, n := protowire.ConsumeVarint(dst)
		Expect(n).To(Equal(4))
		Expect(v).To(Equal(uint64(300)))
	})

	It("should panic when the value does not fit", func() {
		Expect(func() { pbz.PutRedundantVarint(make([]byte, 1), 128) }).To(Panic())
		Expect(func() { pbz.PutRedundantVarint(make([]byte, 4), pbz.MaxNestedSize+1) }).To(Panic())
	})
})
