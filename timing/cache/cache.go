// Package cache provides the line store of the instruction buffer, built on
// Akita's cache directory for tag and valid-bit management.
package cache

import (
	"encoding/binary"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config holds line store geometry.
type Config struct {
	// NumEntries is the total number of cached lines.
	NumEntries int
	// LineBytes is the number of bytes per line.
	LineBytes int
	// Associativity is the number of entries searched per lookup.
	// One selects direct-mapped indexing.
	Associativity int
}

// NumSets returns the number of candidate sets an address can map to.
func (c Config) NumSets() int {
	return c.NumEntries / c.Associativity
}

// Location identifies one entry of the line store. The zero Location refers
// to no entry.
type Location struct {
	block *akitacache.Block
}

// Valid returns true if the location refers to an entry.
func (l Location) Valid() bool {
	return l.block != nil
}

// SetID returns the set index of the entry.
func (l Location) SetID() int {
	return l.block.SetID
}

// WayID returns the way index of the entry within its set.
func (l Location) WayID() int {
	return l.block.WayID
}

// Occupied returns true if the entry currently holds a valid line.
func (l Location) Occupied() bool {
	return l.block != nil && l.block.IsValid
}

// Tag returns the line-aligned address held by the entry.
func (l Location) Tag() uint64 {
	return l.block.Tag
}

// Entry is a snapshot of one line store entry.
type Entry struct {
	SetID int
	WayID int
	Valid bool
	// Tag is the line-aligned address of the cached line.
	Tag  uint64
	Data []byte
}

// LineStore holds NumEntries lines. An address maps to exactly one set,
// index (addr / LineBytes) mod NumSets, and only that set is searched.
type LineStore struct {
	config Config

	// Akita cache directory for tag/valid management
	directory *akitacache.DirectoryImpl

	// Line data - indexed by (setID * associativity + wayID)
	dataStore [][]byte
}

// New creates an empty line store. The configuration must have been
// validated by the caller.
func New(config Config) *LineStore {
	dataStore := make([][]byte, config.NumEntries)
	for i := range dataStore {
		dataStore[i] = make([]byte, config.LineBytes)
	}

	return &LineStore{
		config: config,
		directory: akitacache.NewDirectory(
			config.NumSets(),
			config.Associativity,
			config.LineBytes,
			akitacache.NewLRUVictimFinder(),
		),
		dataStore: dataStore,
	}
}

// Config returns the line store geometry.
func (s *LineStore) Config() Config {
	return s.config
}

// LineAddr returns the line-aligned address of addr.
func (s *LineStore) LineAddr(addr uint64) uint64 {
	lineBytes := uint64(s.config.LineBytes)
	return (addr / lineBytes) * lineBytes
}

// SetIndex returns the set an address maps to.
func (s *LineStore) SetIndex(addr uint64) int {
	return int(addr / uint64(s.config.LineBytes) % uint64(s.config.NumSets()))
}

func (s *LineStore) dataIndex(block *akitacache.Block) int {
	return block.SetID*s.config.Associativity + block.WayID
}

// Lookup checks the candidate set of addr for a valid entry with a matching
// tag. It does not modify the store.
func (s *LineStore) Lookup(addr uint64) (Location, bool) {
	block := s.directory.Lookup(0, s.LineAddr(addr))
	if block == nil || !block.IsValid {
		return Location{}, false
	}

	return Location{block: block}, true
}

// Victim selects the entry a refill of addr replaces: an invalid way of the
// candidate set if there is one, the least recently used way otherwise.
func (s *LineStore) Victim(addr uint64) Location {
	block := s.directory.FindVictim(s.LineAddr(addr))
	return Location{block: block}
}

// Touch records a use of the entry for replacement ordering.
func (s *LineStore) Touch(loc Location) {
	if !loc.Valid() {
		return
	}

	s.directory.Visit(loc.block)
}

// Install writes a full line for addr into the entry at loc and marks it
// valid.
func (s *LineStore) Install(loc Location, addr uint64, line []byte) {
	if !loc.Valid() {
		return
	}

	data := s.dataStore[s.dataIndex(loc.block)]
	n := copy(data, line)
	for i := n; i < len(data); i++ {
		data[i] = 0
	}

	loc.block.Tag = s.LineAddr(addr)
	loc.block.IsValid = true
	loc.block.IsDirty = false

	s.directory.Visit(loc.block)
}

// Word returns the 32-bit little-endian word containing addr from the entry
// at loc. The address is aligned down to a word boundary.
func (s *LineStore) Word(loc Location, addr uint64) uint32 {
	if !loc.Valid() {
		return 0
	}

	data := s.dataStore[s.dataIndex(loc.block)]
	offset := int(addr%uint64(s.config.LineBytes)) &^ 3

	return extractWord(data, offset)
}

// Line returns a copy of the raw line held at loc.
func (s *LineStore) Line(loc Location) []byte {
	if !loc.Valid() {
		return nil
	}

	data := s.dataStore[s.dataIndex(loc.block)]
	line := make([]byte, len(data))
	copy(line, data)

	return line
}

// Invalidate drops the line holding addr, if present.
func (s *LineStore) Invalidate(addr uint64) {
	loc, hit := s.Lookup(addr)
	if hit {
		loc.block.IsValid = false
		loc.block.IsDirty = false
	}
}

// Entries returns a snapshot of every entry, ordered by set then way.
func (s *LineStore) Entries() []Entry {
	entries := make([]Entry, 0, s.config.NumEntries)

	for _, set := range s.directory.GetSets() {
		for _, block := range set.Blocks {
			data := s.dataStore[block.SetID*s.config.Associativity+block.WayID]
			line := make([]byte, len(data))
			copy(line, data)

			entries = append(entries, Entry{
				SetID: block.SetID,
				WayID: block.WayID,
				Valid: block.IsValid,
				Tag:   block.Tag,
				Data:  line,
			})
		}
	}

	return entries
}

// ValidCount returns the number of valid entries.
func (s *LineStore) ValidCount() int {
	n := 0
	for _, e := range s.Entries() {
		if e.Valid {
			n++
		}
	}

	return n
}

// Reset invalidates all entries and clears their data.
func (s *LineStore) Reset() {
	s.directory.Reset()
	for _, data := range s.dataStore {
		for i := range data {
			data[i] = 0
		}
	}
}

func extractWord(data []byte, offset int) uint32 {
	if offset < 0 || offset+4 > len(data) {
		return 0
	}

	return binary.LittleEndian.Uint32(data[offset : offset+4])
}
