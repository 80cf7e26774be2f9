package main

import (
	"os"

	"github.com/spf13/cobra"

	"tlsify/internal/pool"
)

// workerCmd is started by the rewrite command once per shard. It reads one
// request from stdin and writes one response to stdout.
var workerCmd = &cobra.Command{
	Use:    pool.WorkerCommand,
	Short:  "Analyse one shard (internal)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return pool.ServeStream(cmd.Context(), os.Stdin, os.Stdout, nil)
	},
}
