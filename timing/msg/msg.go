// Package msg defines the messages carried on the instruction buffer's
// processor-facing and memory-facing valid/ready interfaces.
package msg

import "fmt"

// WordBytes is the size of a processor-facing word access.
const WordBytes = 4

// Type is the opcode of a memory message.
type Type uint8

const (
	// TypeRead reads data.
	TypeRead Type = iota
	// TypeWrite writes data.
	TypeWrite
	// TypeInit initializes memory without timing side effects.
	TypeInit
)

func (t Type) String() string {
	switch t {
	case TypeRead:
		return "rd"
	case TypeWrite:
		return "wr"
	case TypeInit:
		return "in"
	default:
		return "??"
	}
}

// Request is a word-sized request from the processor fetch port.
type Request struct {
	Type Type
	// Opaque is echoed back in the matching Response.
	Opaque uint8
	Addr   uint32
	// Len is the access size in bytes. Zero encodes a full word.
	Len  uint8
	Data uint32
}

// ByteSize returns the number of bytes the request accesses.
func (r Request) ByteSize() int {
	if r.Len == 0 {
		return WordBytes
	}
	return int(r.Len)
}

func (r Request) String() string {
	return fmt.Sprintf("%s:%02x:%08x", r.Type, r.Opaque, r.Addr)
}

// Response is a word-sized response to the processor fetch port.
type Response struct {
	Type   Type
	Opaque uint8
	// Test is reserved for test-harness annotations and is always zero
	// when produced by the instruction buffer.
	Test uint8
	Len  uint8
	Data uint32
}

func (r Response) String() string {
	return fmt.Sprintf("%s:%02x:%08x", r.Type, r.Opaque, r.Data)
}

// MemRequest is a line-granularity request to the backing memory.
type MemRequest struct {
	Type   Type
	Opaque uint8
	Addr   uint32
	// Len is the number of bytes to access, one full line for refills.
	Len int
	// Data is the write payload. Reads carry none.
	Data []byte
}

func (r MemRequest) String() string {
	return fmt.Sprintf("%s:%02x:%08x:%d", r.Type, r.Opaque, r.Addr, r.Len)
}

// MemResponse is a line-granularity response from the backing memory.
type MemResponse struct {
	Type   Type
	Opaque uint8
	Test   uint8
	Len    int
	Data   []byte
}

func (r MemResponse) String() string {
	return fmt.Sprintf("%s:%02x:%d", r.Type, r.Opaque, r.Len)
}
