package memory_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/instbuf/timing/memory"
)

var _ = Describe("Memory", func() {
	var m *memory.Memory

	BeforeEach(func() {
		m = memory.NewMemory()
	})

	It("should read zero from unwritten addresses", func() {
		Expect(m.Read8(0x1234)).To(BeZero())
		Expect(m.Read32(0xFFFF_0000)).To(BeZero())
		Expect(m.NumPages()).To(BeZero())
	})

	It("should store little-endian words", func() {
		m.Write32(0x100, 0xDEADBEEF)

		Expect(m.Read8(0x100)).To(Equal(uint8(0xEF)))
		Expect(m.Read8(0x103)).To(Equal(uint8(0xDE)))
		Expect(m.Read32(0x100)).To(Equal(uint32(0xDEADBEEF)))
	})

	It("should handle accesses that cross a page boundary", func() {
		m.Write32(0x0FFE, 0x11223344)

		Expect(m.Read32(0x0FFE)).To(Equal(uint32(0x11223344)))
		Expect(m.Read8(0x1000)).To(Equal(uint8(0x22)))
		Expect(m.NumPages()).To(Equal(2))
	})

	It("should read and write byte ranges", func() {
		m.WriteBytes(0x2000, []byte{1, 2, 3, 4, 5})

		dst := make([]byte, 8)
		m.ReadBytes(0x1FFE, dst)
		Expect(dst).To(Equal([]byte{0, 0, 1, 2, 3, 4, 5, 0}))
	})

	It("should zero-fill the tail of a segment", func() {
		m.WriteBytes(0x3000, []byte{9, 9, 9, 9, 9, 9, 9, 9})
		m.LoadSegment(0x3000, []byte{1, 2}, 6)

		dst := make([]byte, 8)
		m.ReadBytes(0x3000, dst)
		Expect(dst).To(Equal([]byte{1, 2, 0, 0, 0, 0, 9, 9}))
	})
})
