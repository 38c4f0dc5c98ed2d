package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/instbuf/benchmarks"
	"github.com/sarchlab/instbuf/loader"
	"github.com/sarchlab/instbuf/logging"
	"github.com/sarchlab/instbuf/metrics"
)

type benchOptions struct {
	format  string
	core    bool
	elf     string
	passes  int
	metrics string
	verbose bool
}

var benchOpts benchOptions

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run the fetch-pattern benchmarks.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBenchmarks(cmd)
	},
}

func init() {
	f := benchCmd.Flags()
	f.StringVar(&benchOpts.format, "format", "text", "Output format: text, csv, json")
	f.BoolVar(&benchOpts.core, "core", false, "Run only the small core benchmark set")
	f.StringVar(&benchOpts.elf, "elf", "", "Add a benchmark fetching the text of this ELF program")
	f.IntVar(&benchOpts.passes, "passes", 1, "Passes over the ELF program text")
	f.StringVar(&benchOpts.metrics, "metrics", "", "Write per-benchmark statistics to a Prometheus text file")
	f.BoolVarP(&benchOpts.verbose, "verbose", "v", false, "Print benchmark descriptions")
	rootCmd.AddCommand(benchCmd)
}

func runBenchmarks(cmd *cobra.Command) error {
	bufConfig, err := bufferConfig(cmd)
	if err != nil {
		return err
	}
	memConfig, err := memoryConfig()
	if err != nil {
		return err
	}

	config := benchmarks.DefaultConfig()
	config.Buffer = *bufConfig
	config.Memory = *memConfig
	config.MaxCycles = opts.maxCycles
	config.Output = cmd.OutOrStdout()
	config.Logger = logging.NewLogger("bench")
	config.Verbose = benchOpts.verbose

	h := benchmarks.NewHarness(config)
	if benchOpts.core {
		h.AddBenchmarks(benchmarks.GetCoreBenchmarks())
	} else {
		h.AddBenchmarks(benchmarks.GetMicrobenchmarks())
	}

	if benchOpts.elf != "" {
		prog, err := loader.Load(benchOpts.elf)
		if err != nil {
			return err
		}
		h.AddBenchmark(benchmarks.ProgramBenchmark(benchOpts.elf, prog, benchOpts.passes))
	}

	results, err := h.RunAll()
	if err != nil {
		return err
	}

	switch benchOpts.format {
	case "text":
		h.PrintResults(results)
	case "csv":
		h.PrintCSV(results)
	case "json":
		if err := h.PrintJSON(results); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown output format %q", benchOpts.format)
	}

	if benchOpts.metrics == "" {
		return nil
	}

	collector := metrics.NewCollector()
	for i, unit := range h.Units() {
		if err := collector.Add(results[i].Name, unit); err != nil {
			return err
		}
	}

	return collector.WriteTextfile(benchOpts.metrics)
}
