package core

// Stream produces the fetch addresses the Core issues, in program order.
type Stream interface {
	// Next returns the next fetch address. ok is false once the stream is
	// exhausted.
	Next() (pc uint32, ok bool)

	// Reset rewinds the stream to its first address.
	Reset()
}

// SequentialStream fetches count consecutive words starting at start.
type SequentialStream struct {
	start uint32
	count int
	idx   int
}

// NewSequentialStream creates a SequentialStream.
func NewSequentialStream(start uint32, count int) *SequentialStream {
	return &SequentialStream{start: start, count: count}
}

// Next returns the next sequential address.
func (s *SequentialStream) Next() (uint32, bool) {
	if s.idx >= s.count {
		return 0, false
	}
	pc := s.start + uint32(s.idx)*4
	s.idx++
	return pc, true
}

// Reset rewinds the stream.
func (s *SequentialStream) Reset() {
	s.idx = 0
}

// SliceStream replays a fixed list of addresses.
type SliceStream struct {
	pcs []uint32
	idx int
}

// NewSliceStream creates a SliceStream over pcs.
func NewSliceStream(pcs []uint32) *SliceStream {
	return &SliceStream{pcs: pcs}
}

// Next returns the next address of the list.
func (s *SliceStream) Next() (uint32, bool) {
	if s.idx >= len(s.pcs) {
		return 0, false
	}
	pc := s.pcs[s.idx]
	s.idx++
	return pc, true
}

// Reset rewinds the stream.
func (s *SliceStream) Reset() {
	s.idx = 0
}

// Len returns the number of addresses in the stream.
func (s *SliceStream) Len() int {
	return len(s.pcs)
}
