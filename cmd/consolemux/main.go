// Command consolemux runs a child process and lets any number of local
// clients type into its standard input through a Unix socket.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	os.Exit(exitCode)
}
