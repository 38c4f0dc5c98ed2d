// Package benchmarks provides fetch-pattern benchmarks for the instruction
// buffer and a harness that runs them and reports the results.
package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/sarchlab/instbuf/timing/core"
	"github.com/sarchlab/instbuf/timing/instbuffer"
	"github.com/sarchlab/instbuf/timing/memory"
)

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// SimulatedCycles is the total cycle count
	SimulatedCycles uint64 `json:"simulated_cycles"`

	// Fetched is the number of instruction words delivered
	Fetched uint64 `json:"fetched"`

	// CPF is cycles per fetched word
	CPF float64 `json:"cpf"`

	// FetchStalls counts cycles a fetch waited to be accepted
	FetchStalls uint64 `json:"fetch_stalls"`

	// Buffer counters
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	HitRate     float64 `json:"hit_rate"`
	MemRequests uint64  `json:"mem_requests"`

	// RefillWaitCycles is the time spent waiting for memory
	RefillWaitCycles uint64 `json:"refill_wait_cycles"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`

	// Err is set if the benchmark did not finish
	Err string `json:"error,omitempty"`
}

// Benchmark defines a single fetch workload.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Setup prepares the backing memory, e.g. writes the program image.
	Setup func(mem *memory.Memory)

	// Stream returns a fresh stream of fetch addresses.
	Stream func() core.Stream
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Buffer configures the instruction buffer under test
	Buffer instbuffer.Config

	// Memory configures the memory behind the buffer
	Memory memory.ControllerConfig

	// MaxCycles bounds each run
	MaxCycles uint64

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Logger receives per-run diagnostics
	Logger zerolog.Logger

	// Verbose enables detailed output
	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Buffer:    *instbuffer.DefaultConfig(),
		Memory:    *memory.DefaultControllerConfig(),
		MaxCycles: 10_000_000,
		Output:    os.Stdout,
		Logger:    zerolog.Nop(),
	}
}

// Harness runs fetch benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
	units      []*instbuffer.Unit
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// Units returns the instruction buffers built by the last RunAll, one per
// benchmark.
func (h *Harness) Units() []*instbuffer.Unit {
	return h.units
}

// RunAll executes all benchmarks and returns results. It fails only if the
// configuration cannot build a buffer or memory. A benchmark that does not
// finish in MaxCycles reports the error in its result.
func (h *Harness) RunAll() ([]BenchmarkResult, error) {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))
	h.units = h.units[:0]

	for _, bench := range h.benchmarks {
		result, err := h.runBenchmark(bench)
		if err != nil {
			return nil, fmt.Errorf("benchmark %s: %w", bench.Name, err)
		}
		results = append(results, result)
	}

	return results, nil
}

// runBenchmark executes a single benchmark on fresh components.
func (h *Harness) runBenchmark(bench Benchmark) (BenchmarkResult, error) {
	mem := memory.NewMemory()
	if bench.Setup != nil {
		bench.Setup(mem)
	}

	logger := h.config.Logger.With().Str("benchmark", bench.Name).Logger()

	unit, err := instbuffer.New(h.config.Buffer,
		instbuffer.WithLogger(logger))
	if err != nil {
		return BenchmarkResult{}, err
	}

	ctrl, err := memory.NewController(h.config.Memory, mem,
		memory.WithControllerLogger(logger))
	if err != nil {
		return BenchmarkResult{}, err
	}

	c := core.NewCore(unit, ctrl, bench.Stream(), core.WithLogger(logger))

	start := time.Now()
	runErr := c.Run(h.config.MaxCycles)
	wallTime := time.Since(start)

	h.units = append(h.units, unit)

	stats := c.Stats()
	bufStats := unit.Stats()
	result := BenchmarkResult{
		Name:             bench.Name,
		Description:      bench.Description,
		SimulatedCycles:  stats.Cycles,
		Fetched:          stats.Fetched,
		CPF:              stats.CPF(),
		FetchStalls:      stats.StallCycles,
		Hits:             bufStats.Hits,
		Misses:           bufStats.Misses,
		Evictions:        bufStats.Evictions,
		HitRate:          bufStats.HitRate(),
		MemRequests:      bufStats.MemRequests,
		RefillWaitCycles: bufStats.RefillWaitCycles,
		WallTime:         wallTime,
	}
	if runErr != nil {
		result.Err = runErr.Error()
		logger.Warn().Err(runErr).Msg("benchmark did not finish")
	}

	return result, nil
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	out := h.config.Output
	_, _ = fmt.Fprintln(out, "=== Instruction Buffer Fetch Benchmark Results ===")
	_, _ = fmt.Fprintf(out, "Buffer: %d entries x %d B, %d-way; memory latency %d\n",
		h.config.Buffer.NumEntries, h.config.Buffer.LineBytes,
		h.config.Buffer.Associativity, h.config.Memory.Latency)
	_, _ = fmt.Fprintln(out, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(out, "Benchmark: %s\n", r.Name)
		if h.config.Verbose {
			_, _ = fmt.Fprintf(out, "  Description: %s\n", r.Description)
		}
		_, _ = fmt.Fprintln(out, "  --- Timing ---")
		_, _ = fmt.Fprintf(out, "  Simulated Cycles: %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(out, "  Words Fetched:    %d\n", r.Fetched)
		_, _ = fmt.Fprintf(out, "  CPF:              %.3f\n", r.CPF)
		_, _ = fmt.Fprintf(out, "  Fetch Stalls:     %d\n", r.FetchStalls)
		_, _ = fmt.Fprintln(out, "  --- Buffer ---")
		_, _ = fmt.Fprintf(out, "  Hits:         %d\n", r.Hits)
		_, _ = fmt.Fprintf(out, "  Misses:       %d\n", r.Misses)
		_, _ = fmt.Fprintf(out, "  Evictions:    %d\n", r.Evictions)
		_, _ = fmt.Fprintf(out, "  Hit Rate:     %.1f%%\n", r.HitRate*100)
		_, _ = fmt.Fprintf(out, "  Mem Requests: %d\n", r.MemRequests)
		if r.Err != "" {
			_, _ = fmt.Fprintf(out, "  Error: %s\n", r.Err)
		}
		_, _ = fmt.Fprintf(out, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(out, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,cycles,fetched,cpf,fetch_stalls,hits,misses,evictions,hit_rate,mem_requests,refill_wait_cycles")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%.3f,%d,%d,%d,%d,%.3f,%d,%d\n",
			r.Name,
			r.SimulatedCycles,
			r.Fetched,
			r.CPF,
			r.FetchStalls,
			r.Hits,
			r.Misses,
			r.Evictions,
			r.HitRate,
			r.MemRequests,
			r.RefillWaitCycles,
		)
	}
}

// PrintJSON outputs benchmark results as an indented JSON array.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	enc := json.NewEncoder(h.config.Output)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}
