package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/loykin/svcmon/pkg/client"
)

const timeLayout = "2006-01-02 15:04:05"

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(b))
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func fmtPID(pid int) string {
	if pid <= 0 {
		return "-"
	}
	return fmt.Sprint(pid)
}

func printServices(w io.Writer, svcs []client.Service) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tSTATUS\tPID\tLAST CHANGE")
	for _, s := range svcs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.Status, fmtPID(s.PID), fmtTime(s.LastTransition))
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintf(w, "%d service(s)\n", len(svcs))
}

func printResult(w io.Writer, r client.Result) {
	if r.OK {
		_, _ = fmt.Fprintf(w, "%s: %s (status %s, pid %s)\n", r.Service.Name, r.Action, r.Service.Status, fmtPID(r.Service.PID))
		return
	}
	_, _ = fmt.Fprintf(w, "%s: %s: %s\n", r.Service.Name, r.Action, r.Error)
	if r.Enqueued {
		_, _ = fmt.Fprintln(w, "queued for automatic retry")
	}
}

func printLogs(w io.Writer, entries []client.LogEntry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tSERVICE\tACTION")
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", fmtTime(e.Time), e.Service, e.Action)
	}
	_ = tw.Flush()
}

func printQueue(w io.Writer, q client.Queue) {
	_, _ = fmt.Fprintf(w, "failed services queue: %d/%d\n", q.Size, q.Capacity)
	if len(q.Entries) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tFAILURES\tLAST FAILURE")
	for _, e := range q.Entries {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\n", e.Name, e.FailureCount, fmtTime(e.LastFailure))
	}
	_ = tw.Flush()
}

func printQueueReport(w io.Writer, r client.QueueReport) {
	_, _ = fmt.Fprintf(w, "processed %d failed service(s): %d restarted, %d still failing, %d queued\n",
		r.Processed, r.Succeeded, r.Failed, r.Remaining)
}

func printDetect(w io.Writer, r client.DetectReport) {
	_, _ = fmt.Fprintf(w, "detected %d failed service(s)\n", r.Detected)
	if r.Rejected > 0 {
		_, _ = fmt.Fprintf(w, "warning: failed services queue full, %d service(s) not queued\n", r.Rejected)
	}
}
