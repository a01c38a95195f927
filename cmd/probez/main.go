// Command probez records, inspects and exports probez traces.
package main

import (
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/zoobzio/probez"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "probez",
		Short: "Record and inspect probez traces",
		Long: `probez drives an instrumented synthetic workload, records it into a
trace file and decodes trace files for humans or SQLite.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			mode, err := cmd.Flags().GetString("color")
			if err != nil {
				return fmt.Errorf("failed to get color flag: %w", err)
			}
			switch mode {
			case "auto":
			case "on":
				color.NoColor = false
			case "off":
				color.NoColor = true
			default:
				return fmt.Errorf("invalid --color %q (auto|on|off)", mode)
			}
			return nil
		},
	}

	root.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	root.PersistentFlags().BoolP("verbose", "v", false, "log producer activity to stderr")

	root.AddCommand(newRecordCmd(), newDumpCmd(), newTriggersCmd())
	return root
}

// producerOptions turns the persistent flags into producer options.
func producerOptions(cmd *cobra.Command) []probez.Option {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return nil
	}
	h := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug})
	return []probez.Option{probez.WithLogger(probez.NewSlogLogger(slog.New(h)))}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

