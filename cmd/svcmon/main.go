package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, _ := buildRoot(nil)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// buildRoot creates the root command. A nil opener selects the default
// backend: the daemon at --api-url when set, otherwise an in-process manager.
func buildRoot(open opener) (*cobra.Command, *command) {
	globalFlags := &GlobalFlags{}
	c := &command{flags: globalFlags, open: open}
	if c.open == nil {
		c.open = c.defaultBackend
	}

	root := createRootCommand(c, globalFlags)
	root.AddCommand(
		createServicesCommand(c),
		createFindCommand(c),
		createControlCommand(c, "start", "Start a service"),
		createControlCommand(c, "stop", "Stop a service"),
		createControlCommand(c, "restart", "Restart a service"),
		createReloadCommand(c),
		createDetectCommand(c),
		createRetryCommand(c),
		createQueueCommand(c),
		createLogsCommand(c),
		createProcessesCommand(c),
		createMonitorCommand(c),
		createMenuCommand(c),
		createServeCommand(c),
	)
	return root, c
}

// createRootCommand creates the root command with the persistent flags.
func createRootCommand(c *command, flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "svcmon",
		Short: "systemd service monitor",
		Long: `svcmon lists systemd services, starts, stops and restarts them, detects
failed units and retries them from a bounded queue. Commands run against an
in-process manager or a remote daemon started with 'svcmon serve'.

Examples:
  svcmon services --status=FAILED
  svcmon restart nginx.service
  svcmon monitor --cycles=0 --auto-retry
  svcmon serve --monitor
  svcmon services --api-url=http://remote:8080/api`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.teardown()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	pf.StringVar(&flags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080/api)")
	pf.DurationVar(&flags.APITimeout, "api-timeout", 30*time.Second, "request timeout")
	pf.StringVar(&flags.LogLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	pf.BoolVar(&flags.JSON, "json", false, "print JSON instead of tables")
	return root
}

func createServicesCommand(c *command) *cobra.Command {
	f := &ServicesFlags{}
	cmd := &cobra.Command{
		Use:   "services",
		Short: "List services",
		Long: `List every loaded service with its status, PID and last transition time.

Examples:
  svcmon services
  svcmon services --status=FAILED`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, b backend) error {
				return c.Services(ctx, b, *f, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "only show services in this status (ACTIVE, INACTIVE, FAILED, RUNNING, STOPPED)")
	return cmd
}

func createFindCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "find NAME",
		Short: "Show one service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, b backend) error {
				return c.Find(ctx, b, args[0], cmd.OutOrStdout())
			})
		},
	}
}

func createControlCommand(c *command, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " NAME",
		Short: short,
		Long: short + ` through systemctl. A failed command marks the service
FAILED and queues it for retry.

Examples:
  svcmon ` + verb + ` nginx.service
  svcmon ` + verb + ` nginx.service --api-url=http://remote:8080/api`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, b backend) error {
				return c.Control(ctx, b, verb, args[0], cmd.OutOrStdout())
			})
		},
	}
}

func createReloadCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the service list from systemd",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, b backend) error {
				return c.Reload(ctx, b, cmd.OutOrStdout())
			})
		},
	}
}

func createDetectCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Mark failed services and queue them for retry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, b backend) error {
				return c.Detect(ctx, b, cmd.OutOrStdout())
			})
		},
	}
}

func createRetryCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Restart every queued failed service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, b backend) error {
				return c.Retry(ctx, b, cmd.OutOrStdout())
			})
		},
	}
}

func createQueueCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show the failed services queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, b backend) error {
				return c.Queue(ctx, b, cmd.OutOrStdout())
			})
		},
	}
}

func createLogsCommand(c *command) *cobra.Command {
	f := &LogsFlags{}
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the action log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, b backend) error {
				return c.Logs(ctx, b, *f, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "show at most N entries (0 shows all)")
	return cmd
}

func createProcessesCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:     "ps",
		Aliases: []string{"processes"},
		Short:   "Show the host process table",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, b backend) error {
				return c.Processes(ctx, b, cmd.OutOrStdout())
			})
		},
	}
}

func createMonitorCommand(c *command) *cobra.Command {
	f := &MonitorFlags{}
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Periodically reload services and detect failures",
		Long: `Run the monitor loop: every interval reload the service list, print it and
queue failed services. Unset flags fall back to the [monitor] config section.

Examples:
  svcmon monitor                          # 3 cycles every 5s
  svcmon monitor --cycles=0 --auto-retry  # run until interrupted`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mf := c.monitorFlags(cmd, *f)
			return c.run(cmd, func(ctx context.Context, b backend) error {
				return runMonitor(ctx, b, mf, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().IntVar(&f.Cycles, "cycles", 3, "number of cycles (0 runs until interrupted)")
	cmd.Flags().DurationVar(&f.Interval, "interval", 5*time.Second, "time between cycles")
	cmd.Flags().BoolVar(&f.AutoRetry, "auto-retry", false, "restart queued services after each cycle")
	return cmd
}

func createMenuCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Interactive menu",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mf := c.monitorFlags(cmd, MonitorFlags{})
			return c.run(cmd, func(ctx context.Context, b backend) error {
				return runMenu(ctx, c, b, mf, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}

func createServeCommand(c *command) *cobra.Command {
	f := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the svcmon daemon",
		Long: `Start the HTTP API over an in-process manager. Settings come from the
[server], [metrics] and [monitor] config sections; flags override them.

Examples:
  svcmon serve --config=svcmon.toml
  svcmon serve --listen=0.0.0.0:9000 --monitor`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Serve(cmd.Context(), *f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&f.Listen, "listen", "", "listen address (default from [server].listen)")
	cmd.Flags().StringVar(&f.BasePath, "base-path", "", "API base path (default from [server].base_path)")
	cmd.Flags().BoolVar(&f.Monitor, "monitor", false, "run the monitor loop until shutdown")
	return cmd
}
