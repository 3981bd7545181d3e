package svcmon

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/loykin/svcmon/internal/actionlog"
	cfg "github.com/loykin/svcmon/internal/config"
	"github.com/loykin/svcmon/internal/history"
	"github.com/loykin/svcmon/internal/history/factory"
	"github.com/loykin/svcmon/internal/manager"
	"github.com/loykin/svcmon/internal/metrics"
	"github.com/loykin/svcmon/internal/proclist"
	"github.com/loykin/svcmon/internal/registry"
	"github.com/loykin/svcmon/internal/retryqueue"
	iapi "github.com/loykin/svcmon/internal/server"
	"github.com/loykin/svcmon/internal/status"
	"github.com/loykin/svcmon/internal/systemd"
	tlsx "github.com/loykin/svcmon/internal/tls"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Service = registry.Service

type Status = status.Status

const (
	StatusActive    = status.Active
	StatusInactive  = status.Inactive
	StatusFailed    = status.Failed
	StatusSuspended = status.Suspended
	StatusRunning   = status.Running
	StatusStopped   = status.Stopped
)

type (
	Result         = manager.Result
	QueueReport    = manager.QueueReport
	DetectReport   = manager.DetectReport
	CycleReport    = manager.CycleReport
	MonitorOptions = manager.MonitorOptions
	Options        = manager.Options
	Controller     = manager.Controller
	LogEntry       = actionlog.Entry
	QueueEntry     = retryqueue.Entry
	Config         = cfg.Config
	HistoryConfig  = cfg.HistoryConfig
	HistorySink    = history.Sink
	TLSConfig      = tlsx.Config
	Unit           = systemd.Unit
)

var (
	ErrNotFound      = manager.ErrNotFound
	ErrQueueFull     = manager.ErrQueueFull
	ErrCommandFailed = manager.ErrCommandFailed
)

// ParseStatus accepts a rendered status label such as "FAILED".
func ParseStatus(s string) (Status, error) { return status.Parse(s) }

// ClassifyStatus maps free-form status text to a Status.
func ClassifyStatus(s string) Status { return status.Classify(s) }

// Manager is a thin facade over internal/manager.Manager.
// It provides a stable public API for embedding.
type Manager struct {
	inner *manager.Manager
	sinks []history.Sink
}

// New wraps a manager around any Controller.
func New(ctl Controller, opts Options) *Manager {
	return &Manager{inner: manager.New(ctl, opts)}
}

// NewFromConfig builds a manager backed by systemctl, the host process table
// and the configured history sinks. Close releases the sinks.
func NewFromConfig(c *Config, logger *slog.Logger) (*Manager, error) {
	ctl := &systemd.Client{
		Path:        c.Systemctl.Path,
		UseSudo:     c.Systemctl.UseSudo,
		SudoCommand: c.Systemctl.SudoCommand,
		Timeout:     c.Systemctl.Timeout,
	}
	sinks, err := factory.NewSinks(c.HistoryDSNs())
	if err != nil {
		return nil, err
	}
	m := New(ctl, Options{
		QueueCapacity:   c.Queue.Capacity,
		RetainSucceeded: c.Queue.RetainSucceeded,
		MaxLogEntries:   c.Log.MaxEntries,
		CommandTimeout:  c.Systemctl.Timeout,
		Processes:       proclist.Lister{},
		Logger:          logger,
	})
	if len(sinks) > 0 {
		m.sinks = sinks
		m.inner.SetHistorySinks(sinks...)
	}
	return m, nil
}

func (m *Manager) SetHistorySinks(sinks ...HistorySink) { m.inner.SetHistorySinks(sinks...) }

func (m *Manager) Load(ctx context.Context) (int, error) { return m.inner.Load(ctx) }
func (m *Manager) Start(ctx context.Context, name string) (Result, error) {
	return m.inner.Start(ctx, name)
}
func (m *Manager) Stop(ctx context.Context, name string) (Result, error) {
	return m.inner.Stop(ctx, name)
}
func (m *Manager) Restart(ctx context.Context, name string) (Result, error) {
	return m.inner.Restart(ctx, name)
}
func (m *Manager) DetectFailed(ctx context.Context) (DetectReport, error) {
	return m.inner.DetectFailed(ctx)
}
func (m *Manager) ProcessQueue(ctx context.Context) (QueueReport, error) {
	return m.inner.ProcessQueue(ctx)
}
func (m *Manager) Monitor(ctx context.Context, opts MonitorOptions) error {
	return m.inner.Monitor(ctx, opts)
}
func (m *Manager) Find(name string) (Service, error) { return m.inner.Find(name) }
func (m *Manager) Services() []Service               { return m.inner.Services() }
func (m *Manager) Filter(st Status) []Service        { return m.inner.Filter(st) }
func (m *Manager) Logs(limit int) []LogEntry         { return m.inner.Logs(limit) }
func (m *Manager) Queue() []QueueEntry               { return m.inner.Queue() }
func (m *Manager) QueueCap() int                     { return m.inner.QueueCap() }
func (m *Manager) Processes(ctx context.Context) ([]string, error) {
	return m.inner.Processes(ctx)
}

// Close releases history sinks created by NewFromConfig.
func (m *Manager) Close() error {
	sinks := m.sinks
	m.sinks = nil
	return factory.CloseAll(sinks)
}

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// Handler returns the HTTP API for m rooted at basePath.
func Handler(m *Manager, basePath string, withMetrics bool) http.Handler {
	return iapi.NewRouter(m.inner, basePath, routerOpts(withMetrics)...).Handler()
}

// NewHTTPServer starts an HTTP server exposing the internal API using the given manager.
func NewHTTPServer(addr, basePath string, m *Manager, withMetrics bool) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, m.inner, routerOpts(withMetrics)...)
}

// NewTLSServer is NewHTTPServer over HTTPS.
func NewTLSServer(addr, basePath string, m *Manager, tc *tls.Config, withMetrics bool) (*http.Server, error) {
	return iapi.NewTLSServer(addr, basePath, m.inner, tc, routerOpts(withMetrics)...)
}

// SetupTLS builds the daemon's tls.Config from the [server.tls] section.
// It returns nil when TLS is disabled.
func SetupTLS(c TLSConfig) (*tls.Config, error) { return tlsx.Setup(c) }

func routerOpts(withMetrics bool) []iapi.RouterOption {
	if withMetrics {
		return []iapi.RouterOption{iapi.WithMetrics()}
	}
	return nil
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
