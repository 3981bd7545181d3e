package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loykin/svcmon"
	"github.com/loykin/svcmon/pkg/client"
)

// backend is what the CLI drives: an in-process manager or a remote daemon.
// Both report through the client wire types so output is rendered once.
type backend interface {
	Services(ctx context.Context, status string) ([]client.Service, error)
	Service(ctx context.Context, name string) (client.Service, error)
	Control(ctx context.Context, verb, name string) (client.Result, error)
	Reload(ctx context.Context) (int, error)
	Detect(ctx context.Context) (client.DetectReport, error)
	ProcessQueue(ctx context.Context) (client.QueueReport, error)
	Queue(ctx context.Context) (client.Queue, error)
	Logs(ctx context.Context, limit int) ([]client.LogEntry, error)
	Processes(ctx context.Context) ([]string, error)
	Close() error
}

type localBackend struct {
	mgr *svcmon.Manager
}

// newLocalBackend builds a manager from cfg and loads the current unit list.
func newLocalBackend(ctx context.Context, cfg *svcmon.Config, logger *slog.Logger) (*localBackend, error) {
	mgr, err := svcmon.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	if _, err := mgr.Load(ctx); err != nil {
		_ = mgr.Close()
		return nil, fmt.Errorf("load services: %w", err)
	}
	return &localBackend{mgr: mgr}, nil
}

func toService(s svcmon.Service) client.Service {
	return client.Service{Name: s.Name, Status: s.Status.String(), PID: s.PID, LastTransition: s.LastTransition}
}

func toServices(in []svcmon.Service) []client.Service {
	out := make([]client.Service, 0, len(in))
	for _, s := range in {
		out = append(out, toService(s))
	}
	return out
}

func (b *localBackend) Services(_ context.Context, status string) ([]client.Service, error) {
	if status == "" {
		return toServices(b.mgr.Services()), nil
	}
	st, err := svcmon.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return toServices(b.mgr.Filter(st)), nil
}

func (b *localBackend) Service(_ context.Context, name string) (client.Service, error) {
	s, err := b.mgr.Find(name)
	if err != nil {
		return client.Service{}, err
	}
	return toService(s), nil
}

func (b *localBackend) Control(ctx context.Context, verb, name string) (client.Result, error) {
	var (
		r   svcmon.Result
		err error
	)
	switch verb {
	case "start":
		r, err = b.mgr.Start(ctx, name)
	case "stop":
		r, err = b.mgr.Stop(ctx, name)
	case "restart":
		r, err = b.mgr.Restart(ctx, name)
	default:
		return client.Result{}, fmt.Errorf("unsupported verb %q", verb)
	}
	if err != nil {
		return client.Result{}, err
	}
	return client.Result{Service: toService(r.Service), Action: r.Action, OK: r.OK, Enqueued: r.Enqueued, Error: r.Error}, nil
}

func (b *localBackend) Reload(ctx context.Context) (int, error) { return b.mgr.Load(ctx) }

func (b *localBackend) Detect(ctx context.Context) (client.DetectReport, error) {
	r, err := b.mgr.DetectFailed(ctx)
	return client.DetectReport(r), err
}

func (b *localBackend) ProcessQueue(ctx context.Context) (client.QueueReport, error) {
	r, err := b.mgr.ProcessQueue(ctx)
	return client.QueueReport(r), err
}

func (b *localBackend) Queue(context.Context) (client.Queue, error) {
	entries := b.mgr.Queue()
	q := client.Queue{Capacity: b.mgr.QueueCap(), Size: len(entries), Entries: make([]client.QueueEntry, 0, len(entries))}
	for _, e := range entries {
		q.Entries = append(q.Entries, client.QueueEntry(e))
	}
	return q, nil
}

func (b *localBackend) Logs(_ context.Context, limit int) ([]client.LogEntry, error) {
	entries := b.mgr.Logs(limit)
	out := make([]client.LogEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, client.LogEntry(e))
	}
	return out, nil
}

func (b *localBackend) Processes(ctx context.Context) ([]string, error) { return b.mgr.Processes(ctx) }

func (b *localBackend) Close() error { return b.mgr.Close() }

type remoteBackend struct {
	c *client.Client
}

func (b *remoteBackend) Services(ctx context.Context, status string) ([]client.Service, error) {
	return b.c.Services(ctx, status)
}

func (b *remoteBackend) Service(ctx context.Context, name string) (client.Service, error) {
	return b.c.Service(ctx, name)
}

func (b *remoteBackend) Control(ctx context.Context, verb, name string) (client.Result, error) {
	switch verb {
	case "start":
		return b.c.Start(ctx, name)
	case "stop":
		return b.c.Stop(ctx, name)
	case "restart":
		return b.c.Restart(ctx, name)
	}
	return client.Result{}, fmt.Errorf("unsupported verb %q", verb)
}

func (b *remoteBackend) Reload(ctx context.Context) (int, error) { return b.c.Reload(ctx) }

func (b *remoteBackend) Detect(ctx context.Context) (client.DetectReport, error) {
	return b.c.Detect(ctx)
}

func (b *remoteBackend) ProcessQueue(ctx context.Context) (client.QueueReport, error) {
	return b.c.ProcessQueue(ctx)
}

func (b *remoteBackend) Queue(ctx context.Context) (client.Queue, error) { return b.c.Queue(ctx) }

func (b *remoteBackend) Logs(ctx context.Context, limit int) ([]client.LogEntry, error) {
	return b.c.Logs(ctx, limit)
}

func (b *remoteBackend) Processes(ctx context.Context) ([]string, error) { return b.c.Processes(ctx) }

func (b *remoteBackend) Close() error { return nil }
