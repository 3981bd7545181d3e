package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/loykin/svcmon"
	"github.com/loykin/svcmon/internal/logger"
	"github.com/loykin/svcmon/pkg/client"
	"github.com/spf13/cobra"
)

type opener func(ctx context.Context) (backend, error)

type command struct {
	flags    *GlobalFlags
	cfg      *svcmon.Config
	logger   *slog.Logger
	logClose io.Closer
	open     opener
}

// setup loads the configuration and installs the process logger.
func (c *command) setup(stderr io.Writer) error {
	cfg, err := svcmon.LoadConfig(c.flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if c.flags.LogLevel != "" {
		cfg.Logging.Level = c.flags.LogLevel
	}
	c.cfg = cfg
	c.logger, c.logClose = logger.NewWithWriter(cfg.Logging, stderr)
	slog.SetDefault(c.logger)
	return nil
}

func (c *command) teardown() error {
	if c.logClose == nil {
		return nil
	}
	err := c.logClose.Close()
	c.logClose = nil
	return err
}

func (c *command) defaultBackend(ctx context.Context) (backend, error) {
	if c.flags.APIUrl == "" {
		return newLocalBackend(ctx, c.cfg, c.logger)
	}
	cc := client.New(client.Config{
		BaseURL: c.flags.APIUrl,
		Timeout: c.flags.APITimeout,
		Logger:  c.logger,
	})
	if !cc.IsReachable(ctx) {
		return nil, fmt.Errorf("daemon not reachable at %s - please start daemon first with 'svcmon serve'", c.flags.APIUrl)
	}
	return &remoteBackend{c: cc}, nil
}

// run opens a backend for one command and closes it afterwards.
func (c *command) run(cmd *cobra.Command, fn func(context.Context, backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()
	return fn(ctx, b)
}

// monitorFlags fills the flags the user did not set from the config file.
func (c *command) monitorFlags(cmd *cobra.Command, f MonitorFlags) MonitorFlags {
	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}
	if !changed("cycles") {
		f.Cycles = c.cfg.Monitor.Cycles
	}
	if !changed("interval") {
		f.Interval = c.cfg.Monitor.Interval
	}
	if !changed("auto-retry") {
		f.AutoRetry = c.cfg.Monitor.AutoRetry
	}
	return f
}

func (c *command) Services(ctx context.Context, b backend, f ServicesFlags, w io.Writer) error {
	svcs, err := b.Services(ctx, f.Status)
	if err != nil {
		return err
	}
	if c.flags.JSON {
		printJSON(w, svcs)
		return nil
	}
	printServices(w, svcs)
	return nil
}

func (c *command) Find(ctx context.Context, b backend, name string, w io.Writer) error {
	s, err := b.Service(ctx, name)
	if err != nil {
		if errors.Is(err, svcmon.ErrNotFound) || errors.Is(err, client.ErrNotFound) {
			return fmt.Errorf("service %s not found", name)
		}
		return err
	}
	if c.flags.JSON {
		printJSON(w, s)
		return nil
	}
	printServices(w, []client.Service{s})
	return nil
}

// Control runs start, stop or restart. A command systemctl rejected is
// reported but does not fail the CLI invocation.
func (c *command) Control(ctx context.Context, b backend, verb, name string, w io.Writer) error {
	r, err := b.Control(ctx, verb, name)
	if err != nil {
		return err
	}
	if c.flags.JSON {
		printJSON(w, r)
		return nil
	}
	printResult(w, r)
	return nil
}

func (c *command) Reload(ctx context.Context, b backend, w io.Writer) error {
	n, err := b.Reload(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "loaded %d service(s)\n", n)
	return nil
}

func (c *command) Detect(ctx context.Context, b backend, w io.Writer) error {
	r, err := b.Detect(ctx)
	if err != nil {
		return err
	}
	if c.flags.JSON {
		printJSON(w, map[string]int{"count": r.Detected, "rejected": r.Rejected})
		return nil
	}
	printDetect(w, r)
	return nil
}

func (c *command) Retry(ctx context.Context, b backend, w io.Writer) error {
	rep, err := b.ProcessQueue(ctx)
	if err != nil {
		return err
	}
	if c.flags.JSON {
		printJSON(w, rep)
		return nil
	}
	if rep.Processed == 0 {
		_, _ = fmt.Fprintln(w, "no failed services in queue")
		return nil
	}
	printQueueReport(w, rep)
	return nil
}

func (c *command) Queue(ctx context.Context, b backend, w io.Writer) error {
	q, err := b.Queue(ctx)
	if err != nil {
		return err
	}
	if c.flags.JSON {
		printJSON(w, q)
		return nil
	}
	printQueue(w, q)
	return nil
}

func (c *command) Logs(ctx context.Context, b backend, f LogsFlags, w io.Writer) error {
	if f.Limit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}
	entries, err := b.Logs(ctx, f.Limit)
	if err != nil {
		return err
	}
	if c.flags.JSON {
		printJSON(w, entries)
		return nil
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "no actions logged")
		return nil
	}
	printLogs(w, entries)
	return nil
}

func (c *command) Processes(ctx context.Context, b backend, w io.Writer) error {
	lines, err := b.Processes(ctx)
	if err != nil {
		return err
	}
	if c.flags.JSON {
		printJSON(w, lines)
		return nil
	}
	for _, l := range lines {
		_, _ = fmt.Fprintln(w, l)
	}
	return nil
}

// Serve runs the HTTP API until ctx is canceled.
func (c *command) Serve(ctx context.Context, f ServeFlags, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := c.cfg
	listen := f.Listen
	if listen == "" {
		listen = cfg.Server.Listen
	}
	base := f.BasePath
	if base == "" {
		base = cfg.Server.BasePath
	}

	mountMetrics := false
	if cfg.Metrics.Enabled {
		if err := svcmon.RegisterMetricsDefault(); err != nil {
			c.logger.Warn("failed to register metrics", "error", err)
		}
		if cfg.Metrics.Listen != "" {
			go func() {
				if err := svcmon.ServeMetrics(cfg.Metrics.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
					c.logger.Error("metrics server error", "error", err)
				}
			}()
		} else {
			mountMetrics = true
		}
	}

	mgr, err := svcmon.NewFromConfig(cfg, c.logger)
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}
	defer func() { _ = mgr.Close() }()

	if n, err := mgr.Load(ctx); err != nil {
		c.logger.Warn("initial service load failed", "error", err)
	} else {
		c.logger.Info("services loaded", "count", n)
	}

	protocol := "HTTP"
	var server *http.Server
	tc, err := svcmon.SetupTLS(cfg.Server.TLS)
	if err != nil {
		return fmt.Errorf("failed to set up TLS: %w", err)
	}
	if tc != nil {
		protocol = "HTTPS"
		server, err = svcmon.NewTLSServer(listen, base, mgr, tc, mountMetrics)
	} else {
		server, err = svcmon.NewHTTPServer(listen, base, mgr, mountMetrics)
	}
	if err != nil {
		return fmt.Errorf("failed to create %s server: %w", protocol, err)
	}
	_, _ = fmt.Fprintf(w, "Starting svcmon %s server on %s%s\n", protocol, listen, base)

	if f.Monitor {
		go func() {
			err := mgr.Monitor(ctx, svcmon.MonitorOptions{
				Interval:  cfg.Monitor.Interval,
				AutoRetry: cfg.Monitor.AutoRetry,
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Error("monitor stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()
	_, _ = fmt.Fprintln(w, "Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return server.Close()
	}
	return nil
}
