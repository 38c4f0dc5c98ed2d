package loader_test

import (
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/instbuf/loader"
	"github.com/sarchlab/instbuf/timing/memory"
)

const (
	machineX86   = 62
	machineARM64 = 183
	machineRISCV = 243

	flagsRX = 0x5 // PF_R | PF_X
	flagsRW = 0x6 // PF_R | PF_W
)

// rv32 code: addi x1, x0, 42; jal x0, 0
var rvCode = []byte{
	0x93, 0x00, 0xa0, 0x02,
	0x6f, 0x00, 0x00, 0x00,
}

type phdr struct {
	typ     uint32
	flags   uint32
	vaddr   uint64
	data    []byte
	memSize uint64
}

func load(vaddr uint64, flags uint32, data []byte) phdr {
	return phdr{typ: 1, flags: flags, vaddr: vaddr, data: data, memSize: uint64(len(data))}
}

// writeELF64 writes an ELF64 executable with the given program headers,
// followed by the segment contents in order.
func writeELF64(path string, order binary.ByteOrder, machine uint16, entry uint64, phdrs []phdr) {
	const ehsize, phentsize = 64, 56

	hdr := make([]byte, ehsize)
	copy(hdr[0:4], []byte{0x7f, 'E', 'L', 'F'})
	hdr[4] = 2 // ELFCLASS64
	hdr[5] = dataByte(order)
	hdr[6] = 1
	order.PutUint16(hdr[16:18], 2) // ET_EXEC
	order.PutUint16(hdr[18:20], machine)
	order.PutUint32(hdr[20:24], 1)
	order.PutUint64(hdr[24:32], entry)
	order.PutUint64(hdr[32:40], ehsize)
	order.PutUint16(hdr[52:54], ehsize)
	order.PutUint16(hdr[54:56], phentsize)
	order.PutUint16(hdr[56:58], uint16(len(phdrs)))
	order.PutUint16(hdr[58:60], 64)

	out := hdr
	offset := uint64(ehsize + phentsize*len(phdrs))
	for _, p := range phdrs {
		ph := make([]byte, phentsize)
		order.PutUint32(ph[0:4], p.typ)
		order.PutUint32(ph[4:8], p.flags)
		order.PutUint64(ph[8:16], offset)
		order.PutUint64(ph[16:24], p.vaddr)
		order.PutUint64(ph[24:32], p.vaddr)
		order.PutUint64(ph[32:40], uint64(len(p.data)))
		order.PutUint64(ph[40:48], p.memSize)
		order.PutUint64(ph[48:56], 0x1000)
		out = append(out, ph...)
		offset += uint64(len(p.data))
	}
	for _, p := range phdrs {
		out = append(out, p.data...)
	}

	Expect(os.WriteFile(path, out, 0644)).To(Succeed())
}

// writeELF32 writes an ELF32 executable with the given program headers.
func writeELF32(path string, machine uint16, entry uint32, phdrs []phdr) {
	const ehsize, phentsize = 52, 32
	order := binary.LittleEndian

	hdr := make([]byte, ehsize)
	copy(hdr[0:4], []byte{0x7f, 'E', 'L', 'F'})
	hdr[4] = 1 // ELFCLASS32
	hdr[5] = 1
	hdr[6] = 1
	order.PutUint16(hdr[16:18], 2)
	order.PutUint16(hdr[18:20], machine)
	order.PutUint32(hdr[20:24], 1)
	order.PutUint32(hdr[24:28], entry)
	order.PutUint32(hdr[28:32], ehsize)
	order.PutUint16(hdr[40:42], ehsize)
	order.PutUint16(hdr[42:44], phentsize)
	order.PutUint16(hdr[44:46], uint16(len(phdrs)))
	order.PutUint16(hdr[46:48], 40)

	out := hdr
	offset := uint32(ehsize + phentsize*len(phdrs))
	for _, p := range phdrs {
		ph := make([]byte, phentsize)
		order.PutUint32(ph[0:4], p.typ)
		order.PutUint32(ph[4:8], offset)
		order.PutUint32(ph[8:12], uint32(p.vaddr))
		order.PutUint32(ph[12:16], uint32(p.vaddr))
		order.PutUint32(ph[16:20], uint32(len(p.data)))
		order.PutUint32(ph[20:24], uint32(p.memSize))
		order.PutUint32(ph[24:28], p.flags)
		order.PutUint32(ph[28:32], 0x1000)
		out = append(out, ph...)
		offset += uint32(len(p.data))
	}
	for _, p := range phdrs {
		out = append(out, p.data...)
	}

	Expect(os.WriteFile(path, out, 0644)).To(Succeed())
}

func dataByte(order binary.ByteOrder) byte {
	if order == binary.ByteOrder(binary.BigEndian) {
		return 2
	}
	return 1
}

var _ = Describe("ELF Loader", func() {
	var tempDir string

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
	})

	Context("with a RISC-V ELF32 binary", func() {
		var path string

		BeforeEach(func() {
			path = filepath.Join(tempDir, "rv32.elf")
			writeELF32(path, machineRISCV, 0x200, []phdr{
				load(0x200, flagsRX, rvCode),
			})
		})

		It("should extract the entry point and machine", func() {
			prog, err := loader.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.EntryPoint).To(Equal(uint64(0x200)))
			Expect(prog.Machine).To(Equal(elf.EM_RISCV))
		})

		It("should load the code segment", func() {
			prog, err := loader.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments).To(HaveLen(1))
			Expect(prog.Segments[0].Data).To(Equal(rvCode))
			Expect(prog.Segments[0].End()).To(Equal(uint64(0x208)))
		})

		It("should load into memory", func() {
			prog, err := loader.Load(path)
			Expect(err).NotTo(HaveOccurred())

			mem := memory.NewMemory()
			prog.LoadInto(mem)
			Expect(mem.Read32(0x200)).To(Equal(uint32(0x02a00093)))
			Expect(mem.Read32(0x204)).To(Equal(uint32(0x0000006f)))
		})
	})

	Context("with an ARM64 ELF64 binary", func() {
		It("should load code and data segments", func() {
			path := filepath.Join(tempDir, "multi.elf")
			code := []byte{0x40, 0x05, 0x80, 0xd2, 0xc0, 0x03, 0x5f, 0xd6}
			data := []byte{0x01, 0x02, 0x03, 0x04}
			writeELF64(path, binary.LittleEndian, machineARM64, 0x400000, []phdr{
				load(0x400000, flagsRX, code),
				load(0x600000, flagsRW, data),
			})

			prog, err := loader.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Machine).To(Equal(elf.EM_AARCH64))
			Expect(prog.Segments).To(HaveLen(2))

			text := prog.TextSegments()
			Expect(text).To(HaveLen(1))
			Expect(text[0].VirtAddr).To(Equal(uint64(0x400000)))
			Expect(text[0].Data).To(Equal(code))
			Expect(text[0].Flags & loader.SegmentFlagRead).NotTo(BeZero())

			Expect(prog.Segments[1].Data).To(Equal(data))
			Expect(prog.Segments[1].Flags & loader.SegmentFlagWrite).NotTo(BeZero())
			Expect(prog.Segments[1].Flags & loader.SegmentFlagExecute).To(BeZero())
		})

		It("should keep the memory size of BSS segments", func() {
			path := filepath.Join(tempDir, "bss.elf")
			seg := load(0x600000, flagsRW, []byte{1, 2, 3, 4})
			seg.memSize = 1024
			writeELF64(path, binary.LittleEndian, machineARM64, 0x400000, []phdr{seg})

			prog, err := loader.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments[0].Data).To(Equal([]byte{1, 2, 3, 4}))
			Expect(prog.Segments[0].MemSize).To(Equal(uint64(1024)))
			Expect(prog.TextSegments()).To(BeEmpty())
		})

		It("should handle segments with zero file size", func() {
			path := filepath.Join(tempDir, "zero.elf")
			writeELF64(path, binary.LittleEndian, machineARM64, 0x400000, []phdr{
				{typ: 1, flags: flagsRW, vaddr: 0x700000, memSize: 4096},
			})

			prog, err := loader.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments[0].Data).To(BeEmpty())
			Expect(prog.Segments[0].MemSize).To(Equal(uint64(4096)))
		})

		It("should skip non-loadable segments", func() {
			path := filepath.Join(tempDir, "note.elf")
			writeELF64(path, binary.LittleEndian, machineARM64, 0x400000, []phdr{
				{typ: 4, flags: 0x4},
			})

			prog, err := loader.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments).To(BeEmpty())
			Expect(prog.EntryPoint).To(Equal(uint64(0x400000)))
		})
	})

	Context("with an invalid file", func() {
		It("should return error for non-existent file", func() {
			_, err := loader.Load("/nonexistent/path/to/file.elf")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("failed to open"))
		})

		It("should return error for non-ELF file", func() {
			path := filepath.Join(tempDir, "not-elf.bin")
			Expect(os.WriteFile(path, []byte("not an elf file"), 0644)).To(Succeed())

			_, err := loader.Load(path)
			Expect(err).To(HaveOccurred())
		})

		It("should reject other architectures", func() {
			path := filepath.Join(tempDir, "x86.elf")
			writeELF64(path, binary.LittleEndian, machineX86, 0, nil)

			_, err := loader.Load(path)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unsupported ELF machine"))
		})

		It("should reject big-endian files", func() {
			path := filepath.Join(tempDir, "be.elf")
			writeELF64(path, binary.BigEndian, machineRISCV, 0, nil)

			_, err := loader.Load(path)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("little-endian"))
		})
	})
})
