package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tlsify/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "tlsify",
	Short: "Make C global and static variables thread-local",
	Long: `tlsify scans a C source tree and inserts a thread-local storage keyword
into every global and static variable declaration that is not a constant,
so that a program written for one process per instance can run several
instances as threads of one process.`,
	SilenceUsage:      true,
	PersistentPreRunE: applyColorFlag,
}

func init() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(rewriteCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(symbolsCmd)
	rootCmd.AddCommand(versionCmd)

	// Глобальные флаги
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Bool("timings", false, "show timing information")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (auto|console|json)")
	rootCmd.PersistentFlags().String("trace", "", "write trace events to file (\"-\" for stderr)")
	rootCmd.PersistentFlags().String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	rootCmd.PersistentFlags().String("trace-mode", "stream", "trace storage (stream|ring|both)")
	rootCmd.PersistentFlags().Int("trace-ring-size", 4096, "events kept in ring mode")
	rootCmd.PersistentFlags().Duration("trace-heartbeat", 0, "emit heartbeat trace events at this interval (0 = off)")
	rootCmd.PersistentFlags().String("cpu-profile", "", "write a CPU profile of the parent process to file")
	rootCmd.PersistentFlags().String("mem-profile", "", "write a heap profile of the parent process to file")
	rootCmd.PersistentFlags().String("runtime-trace", "", "write a Go runtime execution trace to file")
}

// main executes the root command. Any error exits with status 1.
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func applyColorFlag(cmd *cobra.Command, _ []string) error {
	mode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		color.NoColor = !isTerminal(os.Stdout)
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		return fmt.Errorf("invalid --color value %q (expected auto|on|off)", mode)
	}
	return nil
}

// isTerminal проверяет, является ли файл терминалом
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
