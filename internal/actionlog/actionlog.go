// Package actionlog is the append-only audit trail of state-changing actions.
// Entries are read most recent first.
package actionlog

import "time"

const (
	MaxServiceLen = 255
	MaxActionLen  = 63
)

// Action labels recorded by the manager.
const (
	Started           = "STARTED"
	StartFailed       = "START FAILED"
	Stopped           = "STOPPED"
	StopFailed        = "STOP FAILED"
	Restarted         = "RESTARTED"
	RestartFailed     = "RESTART FAILED"
	AddedToQueue      = "ADDED TO FAILED QUEUE"
	QueueFull         = "FAILED QUEUE FULL"
	AutoRestarted     = "AUTO-RESTARTED FROM FAILED QUEUE"
	AutoRestartFailed = "AUTO-RESTART FAILED"
)

// Entry is immutable once recorded.
type Entry struct {
	Service string    `json:"service"`
	Action  string    `json:"action"`
	Time    time.Time `json:"time"`
}

// Log keeps entries newest first. MaxEntries > 0 caps retention by
// dropping the oldest entry. Not safe for concurrent use.
type Log struct {
	MaxEntries int

	// entries[len-1] is the head
	entries []Entry
	now     func() time.Time
}

func New(maxEntries int) *Log {
	return &Log{MaxEntries: maxEntries, now: time.Now}
}

// Record pushes a new head entry stamped with the current time (seconds).
func (l *Log) Record(service, action string) Entry {
	e := Entry{
		Service: truncate(service, MaxServiceLen),
		Action:  truncate(action, MaxActionLen),
		Time:    l.now().Truncate(time.Second),
	}
	l.entries = append(l.entries, e)
	if l.MaxEntries > 0 && len(l.entries) > l.MaxEntries {
		drop := len(l.entries) - l.MaxEntries
		l.entries = append(l.entries[:0:0], l.entries[drop:]...)
	}
	return e
}

// Entries returns a copy of the log, most recent first.
func (l *Log) Entries() []Entry {
	out := make([]Entry, 0, len(l.entries))
	for i := len(l.entries) - 1; i >= 0; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

// Head returns the most recent entry.
func (l *Log) Head() (Entry, bool) {
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

func (l *Log) Len() int { return len(l.entries) }

func (l *Log) Reset() { l.entries = nil }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
