// Package proclist renders the host process table as ps aux style text lines.
// The lines are opaque to the service manager and only passed through to callers.
package proclist

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// Proc is one row of the process table.
type Proc struct {
	User    string
	PID     int32
	CPU     float64
	Mem     float32
	VSZKiB  uint64
	RSSKiB  uint64
	Stat    string
	Command string
}

// Lister produces process table rows via gopsutil.
type Lister struct {
	// Limit truncates the output to the first Limit rows by PID; 0 means no limit.
	Limit int
}

// Header returns the column header matching Format.
func Header() string {
	return fmt.Sprintf("%-12s %7s %5s %5s %10s %9s %-5s %s", "USER", "PID", "%CPU", "%MEM", "VSZ", "RSS", "STAT", "COMMAND")
}

// Format renders p in the column layout of Header.
func Format(p Proc) string {
	user := p.User
	if user == "" {
		user = "?"
	}
	stat := p.Stat
	if stat == "" {
		stat = "?"
	}
	return fmt.Sprintf("%-12s %7d %5.1f %5.1f %10d %9d %-5s %s", user, p.PID, p.CPU, p.Mem, p.VSZKiB, p.RSSKiB, stat, p.Command)
}

// Procs snapshots the process table ordered by PID. Processes that exit while
// being inspected keep whatever fields were already read.
func (l Lister) Procs(ctx context.Context) ([]Proc, error) {
	ps, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].Pid < ps[j].Pid })
	if l.Limit > 0 && len(ps) > l.Limit {
		ps = ps[:l.Limit]
	}
	out := make([]Proc, 0, len(ps))
	for _, p := range ps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, snapshot(ctx, p))
	}
	return out, nil
}

// Lines returns the header followed by one formatted line per process.
func (l Lister) Lines(ctx context.Context) ([]string, error) {
	procs, err := l.Procs(ctx)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(procs)+1)
	lines = append(lines, Header())
	for _, p := range procs {
		lines = append(lines, Format(p))
	}
	return lines, nil
}

func snapshot(ctx context.Context, p *process.Process) Proc {
	r := Proc{PID: p.Pid}
	if u, err := p.UsernameWithContext(ctx); err == nil {
		r.User = u
	}
	if c, err := p.CPUPercentWithContext(ctx); err == nil {
		r.CPU = c
	}
	if m, err := p.MemoryPercentWithContext(ctx); err == nil {
		r.Mem = m
	}
	if mi, err := p.MemoryInfoWithContext(ctx); err == nil && mi != nil {
		r.VSZKiB = mi.VMS / 1024
		r.RSSKiB = mi.RSS / 1024
	}
	if st, err := p.StatusWithContext(ctx); err == nil {
		r.Stat = statCode(st)
	}
	if cmd, err := p.CmdlineWithContext(ctx); err == nil && cmd != "" {
		r.Command = cmd
	} else if name, err := p.NameWithContext(ctx); err == nil {
		r.Command = "[" + name + "]"
	}
	return r
}

// statCode maps gopsutil status names back to the single-letter ps codes.
func statCode(st []string) string {
	var b strings.Builder
	for _, s := range st {
		switch s {
		case process.Running:
			b.WriteByte('R')
		case process.Sleep:
			b.WriteByte('S')
		case process.Stop:
			b.WriteByte('T')
		case process.Idle:
			b.WriteByte('I')
		case process.Zombie:
			b.WriteByte('Z')
		case process.Wait:
			b.WriteByte('D')
		case process.Lock:
			b.WriteByte('L')
		default:
			if s != "" {
				b.WriteString(strings.ToUpper(s[:1]))
			}
		}
	}
	return b.String()
}
