package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/instbuf/timing/instbuffer"
	"github.com/sarchlab/instbuf/timing/memory"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create configuration files.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as JSON.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		buf, err := bufferConfig(cmd)
		if err != nil {
			return err
		}
		mem, err := memoryConfig()
		if err != nil {
			return err
		}

		out := struct {
			Buffer *instbuffer.Config        `json:"buffer"`
			Memory *memory.ControllerConfig `json:"memory"`
		}{buf, mem}

		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize config: %w", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))

		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write an instruction buffer configuration file.",
	Long: `Writes the default configuration, with any --entries, --line-bytes ` +
		`and --assoc flags applied, to the given path.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := bufferConfig(cmd)
		if err != nil {
			return err
		}

		if err := config.SaveConfig(args[0]); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[0])

		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
