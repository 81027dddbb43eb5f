package main

import (
	"fmt"

	"github.com/cyberinferno/consolemux/config"
	"github.com/cyberinferno/consolemux/console"
	"github.com/cyberinferno/consolemux/eventloop"
	"github.com/cyberinferno/consolemux/launcher"
	"github.com/cyberinferno/consolemux/logger"
	"github.com/cyberinferno/consolemux/registry"
	"github.com/spf13/cobra"
)

const serviceName = "consolemux"

type runOptions struct {
	configPath     string
	socket         string
	logLevel       string
	logDir         string
	maxConnections int64
	force          bool
}

func newRunCmd(opts *runOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] [-- command [args...]]",
		Short: "Start a child process and serve its stdin",
		Long: `Start the child process and accept client connections on the socket
until the child exits. The exit status is the child's exit code, or 255
when the child was killed by a signal.

The command may come from the config file or from the arguments after --.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve(cmd, args)
			if err != nil {
				return err
			}

			status, err := supervise(cfg)
			if err != nil {
				return err
			}

			exitCode = status
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	cmd.Flags().StringVarP(&opts.socket, "socket", "s", "", "Path of the Unix socket to listen on")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&opts.logDir, "log-dir", "", "Also write daily rotated log files to this directory")
	cmd.Flags().Int64Var(&opts.maxConnections, "max-connections", 0, "Maximum concurrent clients (0 = unlimited)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Remove a stale socket file left by a previous run")

	return cmd
}

// resolve loads the config file, if any, then applies flags that were set
// explicitly and the command after --.
func (o *runOptions) resolve(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("socket") {
		cfg.Socket = o.socket
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("log-dir") {
		cfg.Log.Dir = o.logDir
	}
	if flags.Changed("max-connections") {
		cfg.MaxConnections = o.maxConnections
	}
	if flags.Changed("force") {
		cfg.RemoveStaleSocket = o.force
	}

	if len(args) > 0 {
		cfg.Command = args[0]
		cfg.Args = args[1:]
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// supervise starts the child and runs the event loop until it exits.
func supervise(cfg *config.Config) (int, error) {
	log, err := logger.NewLogger(logger.Options{
		Service: serviceName,
		Level:   cfg.Log.Level,
		Dir:     cfg.Log.Dir,
	})
	if err != nil {
		return 0, err
	}
	defer log.Close()

	child, err := launcher.Launch(cfg.Command, cfg.Args...)
	if err != nil {
		log.Error("failed to start child", logger.Err(err))
		return 0, err
	}

	log.Info("child started",
		logger.Field{Key: "pid", Value: child.Pid},
		logger.Field{Key: "command", Value: cfg.Command})

	con := console.New(child.Console)
	defer con.Close()

	reg := registry.New(registry.Options{
		Logger:         log,
		MaxConnections: cfg.MaxConnections,
	})

	loop, err := eventloop.New(eventloop.Config{
		SocketPath:        cfg.Socket,
		RemoveStaleSocket: cfg.RemoveStaleSocket,
	}, child.Pid, con, reg, log)
	if err != nil {
		log.Error("failed to set up event loop", logger.Err(err))
		if abortErr := child.Abort(); abortErr != nil {
			log.Warn("failed to stop child", logger.Err(abortErr))
		}
		return 0, err
	}

	return loop.Run()
}
