package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sarchlab/instbuf/loader"
	"github.com/sarchlab/instbuf/logging"
	"github.com/sarchlab/instbuf/metrics"
	"github.com/sarchlab/instbuf/timing/harness"
	"github.com/sarchlab/instbuf/timing/instbuffer"
	"github.com/sarchlab/instbuf/timing/memory"
	"github.com/sarchlab/instbuf/tracing"
)

var errNoWorkload = errors.New("either a program or --addrs is required")

type runOptions struct {
	addrs     []string
	passes    int
	trace     bool
	traceDB   string
	metrics   string
	stallProb float64
	srcDelay  int
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run [program.elf]",
	Short: "Fetch a program or an address list through the buffer.",
	Long: `Sends one word request per address to the instruction buffer and ` +
		`checks every response against the backing memory. With a program, ` +
		`the addresses are the words of its executable segments in order.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkload(cmd, args)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringSliceVar(&runOpts.addrs, "addrs", nil, "Comma-separated fetch addresses, e.g. 0x0,0x4,0x40")
	f.IntVar(&runOpts.passes, "passes", 1, "Number of passes over the program text")
	f.BoolVar(&runOpts.trace, "trace", false, "Print a line trace per cycle")
	f.StringVar(&runOpts.traceDB, "trace-db", "", "Record hook events into a SQLite database")
	f.StringVar(&runOpts.metrics, "metrics", "", "Write buffer statistics to a Prometheus text file")
	f.Float64Var(&runOpts.stallProb, "stall-prob", 0, "Probability the processor stalls a response each cycle")
	f.IntVar(&runOpts.srcDelay, "src-delay", 0, "Maximum random delay between processor requests")
	rootCmd.AddCommand(runCmd)
}

func runWorkload(cmd *cobra.Command, args []string) error {
	bufConfig, err := bufferConfig(cmd)
	if err != nil {
		return err
	}
	memConfig, err := memoryConfig()
	if err != nil {
		return err
	}

	mem := memory.NewMemory()
	addrs, err := workload(mem, args)
	if err != nil {
		return err
	}

	reqs, expected := harness.Reads(mem, addrs...)
	src := harness.NewSource(reqs,
		harness.WithSourceDelay(runOpts.srcDelay, opts.seed))
	sink := harness.NewSink(expected,
		harness.WithRandomStall(runOpts.stallProb, opts.seed))

	harnessOpts := []harness.Option{
		harness.WithLogger(logging.NewLogger("run")),
	}
	if runOpts.trace {
		harnessOpts = append(harnessOpts, harness.WithTrace(cmd.OutOrStdout()))
	}

	var recorder *tracing.Recorder
	if runOpts.traceDB != "" {
		writer := tracing.NewSQLiteWriter(runOpts.traceDB)
		if err := writer.Init(); err != nil {
			return err
		}
		recorder = tracing.NewRecorder(writer)
		harnessOpts = append(harnessOpts, harness.WithHook(recorder))
	}

	bench, err := harness.NewBench(harness.Config{
		Buffer: *bufConfig,
		Memory: *memConfig,
	}, mem, src, sink, harnessOpts...)
	if err != nil {
		return err
	}

	runErr := bench.Run(opts.maxCycles)

	if recorder != nil {
		if err := recorder.Flush(); err != nil {
			return err
		}
		if err := recorder.Err(); err != nil {
			return err
		}
	}

	printRunSummary(cmd.OutOrStdout(), bench, bufConfig, memConfig)

	if runOpts.metrics != "" {
		collector := metrics.NewCollector()
		if err := collector.Add(bench.Unit().Name(), bench.Unit()); err != nil {
			return err
		}
		if err := collector.WriteTextfile(runOpts.metrics); err != nil {
			return err
		}
	}

	return runErr
}

// workload returns the fetch addresses and prepares mem. Without a program
// the memory keeps its address-pattern contents.
func workload(mem *memory.Memory, args []string) ([]uint32, error) {
	if len(args) == 1 {
		prog, err := loader.Load(args[0])
		if err != nil {
			return nil, err
		}
		prog.LoadInto(mem)

		var addrs []uint32
		for p := 0; p < runOpts.passes; p++ {
			for _, seg := range prog.TextSegments() {
				for addr := seg.VirtAddr; addr+4 <= seg.End(); addr += 4 {
					addrs = append(addrs, uint32(addr))
				}
			}
		}
		return addrs, nil
	}

	if len(runOpts.addrs) == 0 {
		return nil, errNoWorkload
	}

	addrs := make([]uint32, 0, len(runOpts.addrs))
	for _, s := range runOpts.addrs {
		v, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", s, err)
		}
		addrs = append(addrs, uint32(v))
	}

	fillPattern(mem, addrs)

	return addrs, nil
}

// fillPattern writes each touched line with words equal to their address so
// responses are distinguishable.
func fillPattern(mem *memory.Memory, addrs []uint32) {
	for _, addr := range addrs {
		word := uint64(addr &^ 3)
		mem.Write32(word, uint32(word))
	}
}

func printRunSummary(
	out io.Writer,
	bench *harness.Bench,
	buf *instbuffer.Config,
	mem *memory.ControllerConfig,
) {
	stats := bench.Unit().Stats()
	xfers := bench.Transfers()

	_, _ = fmt.Fprintf(out, "Buffer: %d entries x %d B, %d-way; memory latency %d\n",
		buf.NumEntries, buf.LineBytes, buf.Associativity, mem.Latency)
	_, _ = fmt.Fprintf(out, "Cycles:       %d\n", bench.Cycle())
	_, _ = fmt.Fprintf(out, "Responses:    %d\n", xfers.BuffResp)
	_, _ = fmt.Fprintf(out, "Hits:         %d\n", stats.Hits)
	_, _ = fmt.Fprintf(out, "Misses:       %d\n", stats.Misses)
	_, _ = fmt.Fprintf(out, "Evictions:    %d\n", stats.Evictions)
	_, _ = fmt.Fprintf(out, "Hit Rate:     %.1f%%\n", stats.HitRate()*100)
	_, _ = fmt.Fprintf(out, "Mem Requests: %d\n", xfers.MemReq)
	_, _ = fmt.Fprintf(out, "Resp Stalls:  %d\n", stats.RespStallCycles)
}
