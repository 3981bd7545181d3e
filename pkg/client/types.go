package client

import "time"

// Service mirrors the daemon's service record. Status is the rendered label
// (ACTIVE, INACTIVE, FAILED, SUSPENDED, RUNNING, STOPPED).
type Service struct {
	Name           string    `json:"name"`
	Status         string    `json:"status"`
	PID            int       `json:"pid"`
	LastTransition time.Time `json:"last_transition"`
}

// Result is the outcome of a start, stop or restart command. OK is false when
// systemctl rejected the command; Error then carries its message.
type Result struct {
	Service  Service `json:"service"`
	Action   string  `json:"action"`
	OK       bool    `json:"ok"`
	Enqueued bool    `json:"enqueued"`
	Error    string  `json:"error,omitempty"`
}

// LogEntry is one action-log record.
type LogEntry struct {
	Service string    `json:"service"`
	Action  string    `json:"action"`
	Time    time.Time `json:"time"`
}

// QueueEntry is one failed service awaiting retry.
type QueueEntry struct {
	Name         string    `json:"name"`
	FailureCount int       `json:"failure_count"`
	LastFailure  time.Time `json:"last_failure"`
}

// Queue is the retry queue snapshot.
type Queue struct {
	Capacity int          `json:"capacity"`
	Size     int          `json:"size"`
	Entries  []QueueEntry `json:"entries"`
}

// QueueReport summarizes one retry pass.
type QueueReport struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

// DetectReport is the outcome of a failed-service scan. Rejected services
// were marked failed but did not fit in the retry queue.
type DetectReport struct {
	Detected int
	Rejected int
}

type countResponse struct {
	Count    int `json:"count"`
	Rejected int `json:"rejected,omitempty"`
}

type processesResponse struct {
	Lines []string `json:"lines"`
}

// ErrorResponse represents an error response from the API
type ErrorResponse struct {
	Error string `json:"error"`
}
