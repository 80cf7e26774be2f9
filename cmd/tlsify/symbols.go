package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tlsify/internal/diag"
	"tlsify/internal/symtab"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols [flags] object-or-archive...",
	Short: "List writable data symbols left in compiled objects",
	Long: `Reads ELF objects and ar archives and prints every defined data symbol
in a writable section. Run it on the build output after a rewrite to find
globals the rewrite could not reach.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSymbols,
}

func init() {
	symbolsCmd.Flags().Bool("skip-tls", false, "hide symbols that are already thread-local")
	symbolsCmd.Flags().Bool("check", false, "fail when any symbol that is not thread-local remains")
}

func runSymbols(cmd *cobra.Command, args []string) error {
	skipTLS, err := cmd.Flags().GetBool("skip-tls")
	if err != nil {
		return err
	}
	check, err := cmd.Flags().GetBool("check")
	if err != nil {
		return err
	}
	logLevel, err := cmd.Root().PersistentFlags().GetString("log-level")
	if err != nil {
		return err
	}
	logFormat, err := cmd.Root().PersistentFlags().GetString("log-format")
	if err != nil {
		return err
	}
	stderr := cmd.ErrOrStderr()
	logger := diag.NewLogger(diag.LogOptions{
		Level:  logLevel,
		Format: logFormat,
		Color:  !color.NoColor,
		TTY:    isTerminal(os.Stderr),
		Writer: stderr,
	})
	reporter := &diag.CountingReporter{Next: diag.NewLogReporter(logger)}

	out := cmd.OutOrStdout()
	tlsLabel := color.New(color.FgGreen).Sprint("tls")
	remaining := 0
	for _, path := range args {
		syms, err := symtab.ReadFile(path)
		if err != nil {
			diag.ReportError(reporter, diag.SymReadError, "cannot read symbols").Path(path).Err(err).Emit()
			continue
		}
		for _, s := range syms {
			if s.TLS {
				if !skipTLS {
					fmt.Fprintf(out, "%s [%s]\n", s, tlsLabel)
				}
				continue
			}
			remaining++
			if s.Common {
				// -fcommon: такой символ нельзя сделать thread-local без extern-определения
				diag.ReportWarning(reporter, diag.SymCommon, "common symbol").
					Path(s.Location()).
					Str("name", s.Name).
					Emit()
			}
			fmt.Fprintln(out, s.String())
		}
	}

	if n := reporter.Count(diag.SevError); n > 0 {
		return fmt.Errorf("%d file(s) could not be read", n)
	}
	if check && remaining > 0 {
		return fmt.Errorf("%d writable symbol(s) are not thread-local", remaining)
	}
	return nil
}
