package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cyberinferno/consolemux/client"
	"github.com/spf13/cobra"
)

var (
	sendSocket  string
	sendTimeout time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send --socket path [line...]",
	Short: "Send lines to a running consolemux",
	Long: `Send each argument as one line to the child's stdin. With no arguments,
lines are read from standard input until end of file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if sendSocket == "" {
			return fmt.Errorf("--socket is required")
		}

		cfg := client.DefaultConfig(sendSocket)
		cfg.DialTimeout = sendTimeout
		cfg.WriteTimeout = sendTimeout

		c := client.New(cfg)
		if err := c.Connect(); err != nil {
			return err
		}
		defer c.Close()

		if len(args) == 0 {
			_, err := c.SendFrom(os.Stdin)
			return err
		}

		for _, line := range args {
			if err := c.SendLine(line); err != nil {
				return err
			}
		}

		return nil
	},
}

func init() {
	sendCmd.Flags().StringVarP(&sendSocket, "socket", "s", "", "Path of the consolemux socket")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 10*time.Second, "Dial and write timeout")
}
