package manager

import (
	"context"
	"time"

	"github.com/loykin/svcmon/internal/metrics"
	"github.com/loykin/svcmon/internal/registry"
)

type MonitorOptions struct {
	Interval time.Duration
	// Cycles bounds the number of iterations; 0 runs until ctx is canceled.
	Cycles int
	// AutoRetry drains the retry queue at the end of every cycle.
	AutoRetry bool
	// OnCycle receives each cycle's report. It runs on the monitor goroutine.
	OnCycle func(CycleReport)
}

// CycleReport is the outcome of one monitor iteration. Err holds the first
// step error; later steps still run.
type CycleReport struct {
	Cycle    int                `json:"cycle"`
	Time     time.Time          `json:"time"`
	Loaded   int                `json:"loaded"`
	Detected int                `json:"detected"`
	Rejected int                `json:"rejected,omitempty"`
	Queue    *QueueReport       `json:"queue,omitempty"`
	Services []registry.Service `json:"services"`
	Err      error              `json:"-"`
}

// Monitor periodically reloads the registry and detects failed services.
// There is no wait after the final cycle. It returns ctx.Err() when canceled
// and nil once the configured number of cycles completes.
func (m *Manager) Monitor(ctx context.Context, opts MonitorOptions) error {
	var t *time.Timer
	defer func() {
		if t != nil {
			t.Stop()
		}
	}()
	for cycle := 1; opts.Cycles == 0 || cycle <= opts.Cycles; cycle++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rep := m.cycle(ctx, cycle, opts.AutoRetry)
		metrics.IncMonitorCycle()
		if rep.Err != nil {
			m.logger.Warn("monitor cycle error", "cycle", cycle, "error", rep.Err)
		}
		if opts.OnCycle != nil {
			opts.OnCycle(rep)
		}
		if opts.Cycles != 0 && cycle == opts.Cycles {
			break
		}
		if t == nil {
			t = time.NewTimer(opts.Interval)
		} else {
			t.Reset(opts.Interval)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

func (m *Manager) cycle(ctx context.Context, n int, autoRetry bool) CycleReport {
	rep := CycleReport{Cycle: n, Time: time.Now()}
	keep := func(err error) {
		if err != nil && rep.Err == nil {
			rep.Err = err
		}
	}
	var err error
	rep.Loaded, err = m.Load(ctx)
	keep(err)
	rep.Services = m.Services()
	dr, err := m.DetectFailed(ctx)
	keep(err)
	rep.Detected, rep.Rejected = dr.Detected, dr.Rejected
	if autoRetry {
		qr, err := m.ProcessQueue(ctx)
		keep(err)
		rep.Queue = &qr
	}
	return rep
}
