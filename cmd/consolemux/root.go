package main

import (
	"github.com/spf13/cobra"
)

// exitCode is set by subcommands that report a status of their own.
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "consolemux",
	Short: "Share a child process's stdin over a Unix socket",
	Long: `consolemux starts a child process and forwards every newline-delimited
line received on a Unix socket into the child's standard input. Lines from
different clients never interleave. When the child exits, consolemux closes
all client connections and exits with the child's status.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(newRunCmd(&runOptions{}), sendCmd)
}
