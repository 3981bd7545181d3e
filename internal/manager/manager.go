package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/svcmon/internal/actionlog"
	"github.com/loykin/svcmon/internal/history"
	"github.com/loykin/svcmon/internal/metrics"
	"github.com/loykin/svcmon/internal/registry"
	"github.com/loykin/svcmon/internal/retryqueue"
	"github.com/loykin/svcmon/internal/status"
	"github.com/loykin/svcmon/internal/systemd"
)

var (
	ErrNotFound      = registry.ErrNotFound
	ErrInvalidName   = registry.ErrInvalidName
	ErrQueueFull     = retryqueue.ErrQueueFull
	ErrCommandFailed = errors.New("service command failed")
	ErrNoProcesses   = errors.New("process listing not configured")
)

// Controller is the service manager the registry is reconciled against.
type Controller interface {
	ListServices(ctx context.Context) ([]systemd.Unit, error)
	ListFailed(ctx context.Context) ([]string, error)
	Issue(ctx context.Context, name string, verb systemd.Verb) error
}

// PIDResolver is optionally implemented by a Controller to report the main
// PID of a freshly started service.
type PIDResolver interface {
	MainPID(ctx context.Context, name string) (int, error)
}

// ProcessLister supplies raw process table lines. The manager passes them
// through untouched.
type ProcessLister interface {
	Lines(ctx context.Context) ([]string, error)
}

type Options struct {
	QueueCapacity int
	// RetainSucceeded keeps queue entries after their retry succeeds.
	RetainSucceeded bool
	MaxLogEntries   int
	// CommandTimeout bounds every controller call; 0 leaves it to the controller.
	CommandTimeout time.Duration
	Processes      ProcessLister
	Logger         *slog.Logger
}

// Result describes the outcome of one control command. Err carries the
// controller failure (wrapping ErrCommandFailed) and, when the follow-up
// enqueue was rejected, ErrQueueFull.
type Result struct {
	Service  registry.Service `json:"service"`
	Action   string           `json:"action"`
	OK       bool             `json:"ok"`
	Enqueued bool             `json:"enqueued"`
	Error    string           `json:"error,omitempty"`
	Err      error            `json:"-"`
}

// QueueReport summarizes one pass over the retry queue.
type QueueReport struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

// DetectReport summarizes one failed-service scan. Rejected counts detected
// services that were marked Failed but found the retry queue full.
type DetectReport struct {
	Detected int `json:"detected"`
	Rejected int `json:"rejected"`
}

// Manager reconciles command outcomes into the registry, the action log and
// the retry queue. All three are guarded by mu; controller calls run outside it.
type Manager struct {
	mu    sync.RWMutex
	reg   *registry.Registry
	log   *actionlog.Log
	queue *retryqueue.Queue

	// drainMu serializes ProcessQueue runs.
	drainMu sync.Mutex

	ctl       Controller
	procs     ProcessLister
	opts      Options
	logger    *slog.Logger
	histSinks []history.Sink
}

func New(ctl Controller, opts Options) *Manager {
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Manager{
		reg:    registry.New(),
		log:    actionlog.New(opts.MaxLogEntries),
		queue:  retryqueue.New(opts.QueueCapacity),
		ctl:    ctl,
		procs:  opts.Processes,
		opts:   opts,
		logger: lg,
	}
}

// SetHistorySinks configures external history sinks. Every action-log entry
// is forwarded to them after it is recorded. Passing no sinks clears the list.
func (m *Manager) SetHistorySinks(sinks ...history.Sink) {
	m.mu.Lock()
	m.histSinks = append([]history.Sink(nil), sinks...)
	m.mu.Unlock()
}

func (m *Manager) cmdCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opts.CommandTimeout > 0 {
		return context.WithTimeout(ctx, m.opts.CommandTimeout)
	}
	return context.WithCancel(ctx)
}

// Load bulk-populates the registry from the controller's unit listing.
// Known services are refreshed in place; a still-active service keeps its PID.
func (m *Manager) Load(ctx context.Context) (int, error) {
	cctx, cancel := m.cmdCtx(ctx)
	units, err := m.ctl.ListServices(cctx)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("list services: %w", err)
	}

	m.mu.Lock()
	n := 0
	for _, u := range units {
		name := systemd.ServiceName(u.Name)
		st := status.FromUnitStates(u.Active, u.Sub)
		pid := 0
		if prev, ok := m.reg.Find(name); ok && isUp(st) {
			pid = prev.PID
		}
		if _, _, err := m.reg.Upsert(name, st, pid); err != nil {
			m.logger.Warn("skip unit", "unit", u.Name, "error", err)
			continue
		}
		n++
	}
	m.publishCountsLocked()
	m.mu.Unlock()

	m.logger.Debug("services loaded", "count", n)
	return n, nil
}

func isUp(st status.Status) bool { return st == status.Active || st == status.Running }

// Start issues start for a known service.
func (m *Manager) Start(ctx context.Context, name string) (Result, error) {
	return m.control(ctx, name, systemd.VerbStart, actionlog.Started, actionlog.StartFailed)
}

// Stop issues stop for a known service. A failed stop is logged but leaves
// the service status unchanged and does not enqueue a retry.
func (m *Manager) Stop(ctx context.Context, name string) (Result, error) {
	return m.control(ctx, name, systemd.VerbStop, actionlog.Stopped, actionlog.StopFailed)
}

// Restart issues restart for a known service.
func (m *Manager) Restart(ctx context.Context, name string) (Result, error) {
	return m.control(ctx, name, systemd.VerbRestart, actionlog.Restarted, actionlog.RestartFailed)
}

func (m *Manager) control(ctx context.Context, name string, verb systemd.Verb, okLabel, failLabel string) (Result, error) {
	if err := registry.ValidateName(name); err != nil {
		return Result{}, err
	}
	m.mu.RLock()
	_, ok := m.reg.Find(name)
	m.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	// a caller that gave up is not a service failure
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	cctx, cancel := m.cmdCtx(ctx)
	cmdErr := m.ctl.Issue(cctx, name, verb)
	cancel()
	if cmdErr != nil && ctx.Err() != nil {
		m.logger.Debug("service command abandoned", "service", name, "verb", verb, "error", cmdErr)
		return Result{}, fmt.Errorf("%s %s: %w", verb, name, ctx.Err())
	}

	pid := 0
	if cmdErr == nil && verb != systemd.VerbStop {
		pid = m.resolvePID(ctx, name)
	}

	var (
		res    Result
		events []history.Event
	)
	m.mu.Lock()
	if cmdErr == nil {
		now := m.reg.Now()
		svc, err := m.reg.Update(name, func(s *registry.Service) {
			if verb == systemd.VerbStop {
				if s.Status != status.Inactive {
					s.LastTransition = now
				}
				s.Status = status.Inactive
				s.PID = 0
				return
			}
			s.Status = status.Active
			s.PID = pid
			s.LastTransition = now
		})
		if err != nil {
			m.mu.Unlock()
			return Result{}, err
		}
		events = append(events, m.recordLocked(svc, okLabel))
		res = Result{Service: svc, Action: okLabel, OK: true}
	} else {
		res.Action = failLabel
		res.Err = fmt.Errorf("%w: %s %s: %w", ErrCommandFailed, verb, name, cmdErr)
		var svc registry.Service
		var err error
		if verb == systemd.VerbStop {
			var found bool
			if svc, found = m.reg.Find(name); found {
				events = append(events, m.recordLocked(svc, failLabel))
			} else {
				svc = registry.Service{Name: name}
				events = append(events, m.recordNameLocked(name, failLabel))
			}
		} else {
			svc, err = m.reg.Update(name, markFailed(m.reg.Now()))
			if err != nil {
				m.mu.Unlock()
				return Result{}, err
			}
			events = append(events, m.recordLocked(svc, failLabel))
		}
		if verb != systemd.VerbStop {
			ev, qerr := m.enqueueLocked(svc)
			events = append(events, ev)
			if qerr != nil {
				res.Err = errors.Join(res.Err, qerr)
			} else {
				res.Enqueued = true
			}
		}
		res.Service = svc
	}
	m.publishCountsLocked()
	sinks := m.histSinks
	m.mu.Unlock()

	if res.Err != nil {
		res.Error = res.Err.Error()
		metrics.IncCommandFailure(string(verb))
		m.logger.Warn("service command failed", "service", name, "verb", verb, "error", cmdErr)
	} else {
		m.logger.Info("service command succeeded", "service", name, "verb", verb, "pid", res.Service.PID)
	}
	m.export(ctx, sinks, events)
	return res, nil
}

func (m *Manager) resolvePID(ctx context.Context, name string) int {
	r, ok := m.ctl.(PIDResolver)
	if !ok {
		return 0
	}
	cctx, cancel := m.cmdCtx(ctx)
	defer cancel()
	pid, err := r.MainPID(cctx, name)
	if err != nil {
		m.logger.Debug("main pid unavailable", "service", name, "error", err)
		return 0
	}
	if pid < 0 {
		return 0
	}
	return pid
}

func markFailed(now time.Time) func(*registry.Service) {
	return func(s *registry.Service) {
		if s.Status != status.Failed {
			s.LastTransition = now
		}
		s.Status = status.Failed
	}
}

// recordLocked appends to the action log and returns the matching export event.
func (m *Manager) recordLocked(svc registry.Service, action string) history.Event {
	ev := m.recordNameLocked(svc.Name, action)
	ev.Status = svc.Status.String()
	ev.PID = svc.PID
	return ev
}

// recordNameLocked records an action for a name with no registry record.
// The export event carries no status.
func (m *Manager) recordNameLocked(name, action string) history.Event {
	e := m.log.Record(name, action)
	metrics.IncAction(action)
	return history.Event{OccurredAt: e.Time, Service: e.Service, Action: e.Action}
}

// enqueueLocked queues svc for retry and logs the insert. A rejected insert
// is logged as QueueFull and returned as ErrQueueFull.
func (m *Manager) enqueueLocked(svc registry.Service) (history.Event, error) {
	if _, err := m.queue.Enqueue(svc.Name); err != nil {
		metrics.IncQueueRejection()
		m.logger.Warn("retry queue full", "service", svc.Name, "capacity", m.queue.Cap())
		return m.recordLocked(svc, actionlog.QueueFull), err
	}
	metrics.SetQueueSize(m.queue.Size())
	return m.recordLocked(svc, actionlog.AddedToQueue), nil
}

// DetectFailed marks every service the controller reports as failed and
// queues it for retry. Unknown names are ignored. A full queue does not stop
// the scan; the report counts the services that could not be queued.
func (m *Manager) DetectFailed(ctx context.Context) (DetectReport, error) {
	cctx, cancel := m.cmdCtx(ctx)
	names, err := m.ctl.ListFailed(cctx)
	cancel()
	if err != nil {
		return DetectReport{}, fmt.Errorf("list failed services: %w", err)
	}

	var (
		rep    DetectReport
		events []history.Event
	)
	m.mu.Lock()
	for _, raw := range names {
		name := systemd.ServiceName(raw)
		svc, err := m.reg.Update(name, markFailed(m.reg.Now()))
		if err != nil {
			continue
		}
		rep.Detected++
		ev, qerr := m.enqueueLocked(svc)
		events = append(events, ev)
		if qerr != nil {
			rep.Rejected++
		}
	}
	m.publishCountsLocked()
	sinks := m.histSinks
	m.mu.Unlock()

	switch {
	case rep.Rejected > 0:
		m.logger.Warn("failed services detected", "count", rep.Detected, "rejected", rep.Rejected)
	case rep.Detected > 0:
		m.logger.Info("failed services detected", "count", rep.Detected)
	}
	m.export(ctx, sinks, events)
	return rep, nil
}

// ProcessQueue retries every queued service front to back. A successful
// restart sets the service Active and, unless RetainSucceeded is set, removes
// the entry; a failed one bumps the entry's failure count.
func (m *Manager) ProcessQueue(ctx context.Context) (QueueReport, error) {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()

	m.mu.RLock()
	pending := m.queue.Entries()
	m.mu.RUnlock()

	outcomes := make([]error, len(pending))
	for i, e := range pending {
		if err := ctx.Err(); err != nil {
			// unvisited entries are applied as untouched
			outcomes = outcomes[:i]
			break
		}
		cctx, cancel := m.cmdCtx(ctx)
		outcomes[i] = m.ctl.Issue(cctx, e.Name, systemd.VerbRestart)
		cancel()
		if outcomes[i] != nil {
			metrics.IncCommandFailure(string(systemd.VerbRestart))
			m.logger.Warn("auto-restart failed", "service", e.Name, "failures", e.FailureCount+1, "error", outcomes[i])
		}
	}

	var (
		rep    QueueReport
		events []history.Event
	)
	m.mu.Lock()
	i := 0
	m.queue.Each(func(e *retryqueue.Entry) retryqueue.Disposition {
		defer func() { i++ }()
		if i >= len(outcomes) {
			return retryqueue.Keep
		}
		rep.Processed++
		if outcomes[i] == nil {
			rep.Succeeded++
			if svc, err := m.reg.Update(e.Name, func(s *registry.Service) { s.Status = status.Active }); err == nil {
				events = append(events, m.recordLocked(svc, actionlog.AutoRestarted))
			} else {
				events = append(events, m.recordNameLocked(e.Name, actionlog.AutoRestarted))
			}
			if m.opts.RetainSucceeded {
				return retryqueue.Keep
			}
			return retryqueue.Remove
		}
		rep.Failed++
		if svc, ok := m.reg.Find(e.Name); ok {
			events = append(events, m.recordLocked(svc, actionlog.AutoRestartFailed))
		} else {
			events = append(events, m.recordNameLocked(e.Name, actionlog.AutoRestartFailed))
		}
		m.queue.MarkFailed(e)
		return retryqueue.Keep
	})
	rep.Remaining = m.queue.Size()
	metrics.SetQueueSize(rep.Remaining)
	m.publishCountsLocked()
	sinks := m.histSinks
	m.mu.Unlock()

	m.logger.Info("failed services processed", "processed", rep.Processed, "succeeded", rep.Succeeded, "failed", rep.Failed)
	m.export(ctx, sinks, events)
	if err := ctx.Err(); err != nil && rep.Processed < len(pending) {
		return rep, err
	}
	return rep, nil
}

func (m *Manager) export(ctx context.Context, sinks []history.Sink, events []history.Event) {
	if len(sinks) == 0 || len(events) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, e := range events {
		cctx, cancel := m.cmdCtx(ctx)
		err := history.Fanout(cctx, sinks, e)
		cancel()
		if err != nil {
			metrics.IncHistoryError()
			m.logger.Warn("history export failed", "service", e.Service, "action", e.Action, "error", err)
		}
	}
}

func (m *Manager) publishCountsLocked() {
	counts := m.reg.Counts()
	all := make([]string, 0, len(status.All))
	byLabel := make(map[string]int, len(counts))
	for _, st := range status.All {
		all = append(all, st.String())
		byLabel[st.String()] = counts[st]
	}
	metrics.SetServiceCounts(all, byLabel)
}

// Find returns the named service or ErrNotFound.
func (m *Manager) Find(name string) (registry.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	svc, ok := m.reg.Find(name)
	if !ok {
		return registry.Service{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return svc, nil
}

// Services returns every known service, most recently discovered first.
func (m *Manager) Services() []registry.Service {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reg.Enumerate()
}

// Filter returns services with the given status in enumeration order.
func (m *Manager) Filter(st status.Status) []registry.Service {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reg.Filter(func(s status.Status) bool { return s == st })
}

// Counts returns the number of known services per status.
func (m *Manager) Counts() map[status.Status]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reg.Counts()
}

// Logs returns up to limit action-log entries, most recent first. A
// non-positive limit returns the whole log.
func (m *Manager) Logs(limit int) []actionlog.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.log.Entries()
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Queue returns the retry queue front first.
func (m *Manager) Queue() []retryqueue.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queue.Entries()
}

// QueueCap returns the retry queue capacity.
func (m *Manager) QueueCap() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queue.Cap()
}

// Processes returns the raw process table lines from the configured lister.
func (m *Manager) Processes(ctx context.Context) ([]string, error) {
	if m.procs == nil {
		return nil, ErrNoProcesses
	}
	cctx, cancel := m.cmdCtx(ctx)
	defer cancel()
	return m.procs.Lines(cctx)
}

// Reset drops the registry, the action log and the retry queue.
func (m *Manager) Reset() {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()
	m.mu.Lock()
	m.reg.Reset()
	m.log.Reset()
	m.queue.Reset()
	metrics.SetQueueSize(0)
	m.publishCountsLocked()
	m.mu.Unlock()
}
