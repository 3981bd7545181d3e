package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/loykin/svcmon"
	"github.com/loykin/svcmon/pkg/client"
)

func printCycleHeader(w io.Writer, n int, t time.Time) {
	_, _ = fmt.Fprintf(w, "\n=== Monitor Cycle %d ===\nTime: %s\n", n, t.Local().Format(timeLayout))
}

// runMonitor reloads and scans for failed services on every cycle. A local
// backend uses the manager's monitor; a remote daemon is polled over the API.
func runMonitor(ctx context.Context, b backend, f MonitorFlags, w io.Writer) error {
	if f.Cycles == 0 {
		_, _ = fmt.Fprintf(w, "Starting service monitor (every %s, Ctrl+C to stop)...\n", f.Interval)
	} else {
		_, _ = fmt.Fprintf(w, "Starting service monitor (%d cycles every %s)...\n", f.Cycles, f.Interval)
	}
	var err error
	if lb, ok := b.(*localBackend); ok {
		err = lb.mgr.Monitor(ctx, svcmon.MonitorOptions{
			Interval:  f.Interval,
			Cycles:    f.Cycles,
			AutoRetry: f.AutoRetry,
			OnCycle: func(r svcmon.CycleReport) {
				printCycleHeader(w, r.Cycle, r.Time)
				if r.Err != nil {
					_, _ = fmt.Fprintf(w, "warning: %v\n", r.Err)
				}
				printServices(w, toServices(r.Services))
				printDetect(w, client.DetectReport{Detected: r.Detected, Rejected: r.Rejected})
				if r.Queue != nil {
					printQueueReport(w, client.QueueReport(*r.Queue))
				}
			},
		})
	} else {
		err = pollMonitor(ctx, b, f, w)
	}
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, "Monitoring completed.")
	return nil
}

func pollMonitor(ctx context.Context, b backend, f MonitorFlags, w io.Writer) error {
	t := time.NewTicker(max(f.Interval, time.Millisecond))
	defer t.Stop()
	for cycle := 1; f.Cycles == 0 || cycle <= f.Cycles; cycle++ {
		printCycleHeader(w, cycle, time.Now())
		if _, err := b.Reload(ctx); err != nil {
			_, _ = fmt.Fprintf(w, "warning: %v\n", err)
		}
		svcs, err := b.Services(ctx, "")
		if err != nil {
			return err
		}
		printServices(w, svcs)
		dr, err := b.Detect(ctx)
		if err != nil {
			return err
		}
		printDetect(w, dr)
		if f.AutoRetry {
			rep, err := b.ProcessQueue(ctx)
			if err != nil {
				return err
			}
			printQueueReport(w, rep)
		}
		if f.Cycles != 0 && cycle == f.Cycles {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}
