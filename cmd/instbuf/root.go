package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/instbuf/logging"
	"github.com/sarchlab/instbuf/timing/instbuffer"
	"github.com/sarchlab/instbuf/timing/memory"
)

// options holds the flags shared by every command.
type options struct {
	configPath string
	logLevel   string
	logJSON    bool

	entries    int
	lineBytes  int
	assoc      int
	memLatency int
	memDepth   int
	memJitter  int
	seed       int64
	maxCycles  uint64
}

var opts options

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "instbuf",
	Short: "Cycle-level instruction buffer simulator.",
	Long: `instbuf runs instruction fetch streams through a cycle-level model ` +
		`of a small instruction buffer backed by a fixed-latency memory, and ` +
		`reports hits, misses, refills and cycles per fetched word.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := logging.ParseLevel(opts.logLevel); err != nil {
			return err
		}
		logging.Setup(logging.Config{
			Level:  logging.LogLevel(opts.logLevel),
			Pretty: !opts.logJSON,
			Output: os.Stderr,
		})
		return nil
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "Path to instruction buffer configuration JSON file")
	f.StringVar(&opts.logLevel, "log-level", "warn", "Log level: trace, debug, info, warn, error")
	f.BoolVar(&opts.logJSON, "log-json", false, "Write logs as JSON instead of console text")

	f.IntVar(&opts.entries, "entries", 4, "Number of buffer lines (overrides config)")
	f.IntVar(&opts.lineBytes, "line-bytes", 16, "Bytes per line (overrides config)")
	f.IntVar(&opts.assoc, "assoc", 1, "Associativity, 1 for direct-mapped (overrides config)")
	f.IntVar(&opts.memLatency, "mem-latency", 1, "Memory latency in cycles")
	f.IntVar(&opts.memDepth, "mem-depth", 1, "Memory requests in flight")
	f.IntVar(&opts.memJitter, "mem-jitter", 0, "Maximum random extra memory latency")
	f.Int64Var(&opts.seed, "seed", 1, "Random seed")
	f.Uint64Var(&opts.maxCycles, "max-cycles", 100_000_000, "Cycle limit per run")
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

// bufferConfig returns the instruction buffer configuration: the config
// file, if any, with explicitly set flags applied on top.
func bufferConfig(cmd *cobra.Command) (*instbuffer.Config, error) {
	config := instbuffer.DefaultConfig()
	if opts.configPath != "" {
		var err error
		config, err = instbuffer.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("entries") {
		config.NumEntries = opts.entries
	}
	if flags.Changed("line-bytes") {
		config.LineBytes = opts.lineBytes
	}
	if flags.Changed("assoc") {
		config.Associativity = opts.assoc
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid instruction buffer config: %w", err)
	}

	return config, nil
}

// memoryConfig returns the memory controller configuration from flags.
func memoryConfig() (*memory.ControllerConfig, error) {
	config := &memory.ControllerConfig{
		Latency:    opts.memLatency,
		QueueDepth: opts.memDepth,
		MaxJitter:  opts.memJitter,
		Seed:       opts.seed,
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid memory config: %w", err)
	}

	return config, nil
}
