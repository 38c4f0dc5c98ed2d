// Package loader reads program images from ELF executables so their code can
// be placed in the backing memory of the instruction buffer.
package loader

import (
	"debug/elf"
	"fmt"
	"io"
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// Segment represents a loadable segment from an ELF binary.
type Segment struct {
	// VirtAddr is the virtual address where this segment should be loaded.
	VirtAddr uint64
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint64
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// End returns the first address past the segment in memory.
func (s Segment) End() uint64 {
	return s.VirtAddr + s.MemSize
}

// Program is the loadable image of an ELF executable.
type Program struct {
	// EntryPoint is the virtual address where execution should begin.
	EntryPoint uint64
	// Machine is the target architecture of the file.
	Machine elf.Machine
	// Segments contains all loadable segments from the ELF file.
	Segments []Segment
}

// TextSegments returns the executable segments.
func (p *Program) TextSegments() []Segment {
	var text []Segment
	for _, seg := range p.Segments {
		if seg.Flags&SegmentFlagExecute != 0 {
			text = append(text, seg)
		}
	}
	return text
}

// SegmentLoader receives program segments. memory.Memory implements it.
type SegmentLoader interface {
	LoadSegment(addr uint64, data []byte, memSize uint64)
}

// LoadInto writes every segment of the program into mem.
func (p *Program) LoadInto(mem SegmentLoader) {
	for _, seg := range p.Segments {
		mem.LoadSegment(seg.VirtAddr, seg.Data, seg.MemSize)
	}
}

var supportedMachines = map[elf.Machine]bool{
	elf.EM_RISCV:   true,
	elf.EM_AARCH64: true,
}

// Load parses a little-endian RISC-V or ARM64 ELF executable, 32- or 64-bit,
// and returns its loadable segments.
func Load(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.Data != elf.ELFDATA2LSB {
		return nil, fmt.Errorf("not a little-endian ELF file")
	}

	if !supportedMachines[f.Machine] {
		return nil, fmt.Errorf("unsupported ELF machine type: %v", f.Machine)
	}

	prog := &Program{
		EntryPoint: f.Entry,
		Machine:    f.Machine,
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		seg, err := readSegment(phdr)
		if err != nil {
			return nil, err
		}

		prog.Segments = append(prog.Segments, seg)
	}

	return prog, nil
}

func readSegment(phdr *elf.Prog) (Segment, error) {
	data := make([]byte, phdr.Filesz)
	if phdr.Filesz > 0 {
		n, err := phdr.ReadAt(data, 0)
		if err != nil && err != io.EOF {
			return Segment{}, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
		}
		if uint64(n) != phdr.Filesz {
			return Segment{}, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
				phdr.Vaddr, n, phdr.Filesz)
		}
	}

	var flags SegmentFlags
	if phdr.Flags&elf.PF_X != 0 {
		flags |= SegmentFlagExecute
	}
	if phdr.Flags&elf.PF_W != 0 {
		flags |= SegmentFlagWrite
	}
	if phdr.Flags&elf.PF_R != 0 {
		flags |= SegmentFlagRead
	}

	return Segment{
		VirtAddr: phdr.Vaddr,
		Data:     data,
		MemSize:  phdr.Memsz,
		Flags:    flags,
	}, nil
}
