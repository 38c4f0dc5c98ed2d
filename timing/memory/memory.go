// Package memory provides the backing store behind the instruction buffer and
// a cycle-level model of the memory that serves its refill requests.
package memory

import "encoding/binary"

const (
	pageBits = 12
	pageSize = 1 << pageBits
	pageMask = pageSize - 1
)

// Memory is a sparse, little-endian byte-addressed memory. Pages are
// allocated on first write. Unwritten bytes read as zero.
type Memory struct {
	pages map[uint64][]byte
}

// NewMemory creates an empty memory.
func NewMemory() *Memory {
	return &Memory{pages: make(map[uint64][]byte)}
}

func (m *Memory) page(addr uint64, alloc bool) []byte {
	num := addr >> pageBits
	p, ok := m.pages[num]
	if !ok && alloc {
		p = make([]byte, pageSize)
		m.pages[num] = p
	}
	return p
}

// Read8 reads a byte.
func (m *Memory) Read8(addr uint64) uint8 {
	p := m.page(addr, false)
	if p == nil {
		return 0
	}
	return p[addr&pageMask]
}

// Write8 writes a byte.
func (m *Memory) Write8(addr uint64, value uint8) {
	m.page(addr, true)[addr&pageMask] = value
}

// Read32 reads a little-endian 32-bit word. The address need not be aligned.
func (m *Memory) Read32(addr uint64) uint32 {
	var buf [4]byte
	m.ReadBytes(addr, buf[:])
	return binary.LittleEndian.Uint32(buf[:])
}

// Write32 writes a little-endian 32-bit word.
func (m *Memory) Write32(addr uint64, value uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	m.WriteBytes(addr, buf[:])
}

// ReadBytes fills dst with the bytes starting at addr.
func (m *Memory) ReadBytes(addr uint64, dst []byte) {
	for len(dst) > 0 {
		off := addr & pageMask
		n := pageSize - int(off)
		if n > len(dst) {
			n = len(dst)
		}

		if p := m.page(addr, false); p != nil {
			copy(dst[:n], p[off:])
		} else {
			clear(dst[:n])
		}

		dst = dst[n:]
		addr += uint64(n)
	}
}

// WriteBytes stores src starting at addr.
func (m *Memory) WriteBytes(addr uint64, src []byte) {
	for len(src) > 0 {
		off := addr & pageMask
		n := copy(m.page(addr, true)[off:], src)
		src = src[n:]
		addr += uint64(n)
	}
}

// LoadSegment writes a program segment. memSize may exceed len(data), in
// which case the remainder is zero-filled.
func (m *Memory) LoadSegment(addr uint64, data []byte, memSize uint64) {
	m.WriteBytes(addr, data)
	for i := uint64(len(data)); i < memSize; i++ {
		m.Write8(addr+i, 0)
	}
}

// NumPages returns the number of allocated pages.
func (m *Memory) NumPages() int {
	return len(m.pages)
}
