package benchmarks

import (
	"math/rand"

	"github.com/sarchlab/instbuf/loader"
	"github.com/sarchlab/instbuf/timing/core"
	"github.com/sarchlab/instbuf/timing/memory"
)

// codeBase is where synthetic programs are placed.
const codeBase = 0x1000

// GetMicrobenchmarks returns the standard set of fetch patterns. Each one
// targets a specific buffer characteristic.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		sequentialSweep(),
		tightLoop(),
		conflictThrash(),
		stridedFetch(),
		randomFetch(),
	}
}

// GetCoreBenchmarks returns a minimal set for quick validation: one
// hit-dominated, one miss-dominated and one conflict pattern.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		tightLoop(),
		stridedFetch(),
		conflictThrash(),
	}
}

// fillCode writes a recognizable word at every address of [base, base+n).
func fillCode(mem *memory.Memory, base uint64, n uint64) {
	for addr := base; addr < base+n; addr += 4 {
		mem.Write32(addr, 0x13|uint32(addr)<<12)
	}
}

func slice(pcs []uint32) func() core.Stream {
	return func() core.Stream {
		return core.NewSliceStream(pcs)
	}
}

// 1. Sequential sweep - straight-line code larger than the buffer
func sequentialSweep() Benchmark {
	const words = 1024
	return Benchmark{
		Name:        "sequential_sweep",
		Description: "1024 sequential words - one miss per line, the rest hit",
		Setup: func(mem *memory.Memory) {
			fillCode(mem, codeBase, words*4)
		},
		Stream: func() core.Stream {
			return core.NewSequentialStream(codeBase, words)
		},
	}
}

// 2. Tight loop - a small body executed many times
func tightLoop() Benchmark {
	const body, iterations = 12, 100

	pcs := make([]uint32, 0, body*iterations)
	for i := 0; i < iterations; i++ {
		for j := 0; j < body; j++ {
			pcs = append(pcs, codeBase+uint32(j)*4)
		}
	}

	return Benchmark{
		Name:        "tight_loop",
		Description: "12-word loop body x 100 - measures hit latency",
		Setup: func(mem *memory.Memory) {
			fillCode(mem, codeBase, body*4)
		},
		Stream: slice(pcs),
	}
}

// 3. Conflict thrash - a caller and a callee whose lines share an entry
func conflictThrash() Benchmark {
	const calls = 200
	const callee = codeBase + 0x4000

	pcs := make([]uint32, 0, calls*4)
	for i := 0; i < calls; i++ {
		pcs = append(pcs, codeBase, codeBase+4, callee, callee+4)
	}

	return Benchmark{
		Name:        "conflict_thrash",
		Description: "alternating lines 16 KiB apart - every switch misses when direct-mapped",
		Setup: func(mem *memory.Memory) {
			fillCode(mem, codeBase, 16)
			fillCode(mem, callee, 16)
		},
		Stream: slice(pcs),
	}
}

// 4. Strided fetch - jumps of 64 bytes, one word per line
func stridedFetch() Benchmark {
	const jumps, stride = 256, 64

	pcs := make([]uint32, 0, jumps)
	for i := 0; i < jumps; i++ {
		pcs = append(pcs, codeBase+uint32(i)*stride)
	}

	return Benchmark{
		Name:        "strided_fetch",
		Description: "256 fetches 64 bytes apart - every fetch misses",
		Setup: func(mem *memory.Memory) {
			fillCode(mem, codeBase, jumps*stride)
		},
		Stream: slice(pcs),
	}
}

// 5. Random fetch - uniformly random words in a 1 KiB window
func randomFetch() Benchmark {
	const fetches, window = 1000, 1024

	rng := rand.New(rand.NewSource(1))
	pcs := make([]uint32, 0, fetches)
	for i := 0; i < fetches; i++ {
		pcs = append(pcs, codeBase+uint32(rng.Intn(window/4))*4)
	}

	return Benchmark{
		Name:        "random_fetch",
		Description: "1000 random words in a 1 KiB window",
		Setup: func(mem *memory.Memory) {
			fillCode(mem, codeBase, window)
		},
		Stream: slice(pcs),
	}
}

// ProgramBenchmark fetches every word of the executable segments of prog in
// address order, repeated passes times.
func ProgramBenchmark(name string, prog *loader.Program, passes int) Benchmark {
	var pcs []uint32
	for p := 0; p < passes; p++ {
		for _, seg := range prog.TextSegments() {
			for addr := seg.VirtAddr; addr+4 <= seg.End(); addr += 4 {
				pcs = append(pcs, uint32(addr))
			}
		}
	}

	return Benchmark{
		Name:        name,
		Description: "sequential fetch of the program's text segments",
		Setup: func(mem *memory.Memory) {
			prog.LoadInto(mem)
		},
		Stream: slice(pcs),
	}
}
