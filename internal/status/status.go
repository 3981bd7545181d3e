// Package status defines the closed vocabulary of service states and the
// mapping between free-text tokens reported by systemd and that vocabulary.
package status

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the observed state of a service.
type Status int

const (
	Active Status = iota
	Inactive
	Failed
	Suspended
	Running
	Stopped
)

// All lists every status in declaration order.
var All = []Status{Active, Inactive, Failed, Suspended, Running, Stopped}

var labels = [...]string{
	Active:    "ACTIVE",
	Inactive:  "INACTIVE",
	Failed:    "FAILED",
	Suspended: "SUSPENDED",
	Running:   "RUNNING",
	Stopped:   "STOPPED",
}

// String renders the display label. Values outside the enum render as UNKNOWN.
func (s Status) String() string {
	if s < 0 || int(s) >= len(labels) {
		return "UNKNOWN"
	}
	return labels[s]
}

// Valid reports whether s is one of the declared values.
func (s Status) Valid() bool { return s >= 0 && int(s) < len(labels) }

// Classify maps a free-text status token to a Status. Rules are applied in
// priority order against the lower-cased token; anything unmatched is Inactive.
func Classify(token string) Status {
	t := strings.ToLower(token)
	switch {
	case strings.Contains(t, "active") && strings.Contains(t, "running"):
		return Running
	case strings.Contains(t, "active"):
		return Active
	case strings.Contains(t, "inactive") || strings.Contains(t, "dead"):
		return Inactive
	case strings.Contains(t, "failed"):
		return Failed
	case strings.Contains(t, "exited"):
		return Stopped
	case strings.Contains(t, "suspended"):
		return Suspended
	case t == "running":
		return Running
	case t == "stopped":
		return Stopped
	}
	return Inactive
}

// FromUnitStates maps the ACTIVE and SUB columns of a systemd unit listing.
// Unrecognised active states fall back to classifying the sub-state.
func FromUnitStates(active, sub string) Status {
	switch active {
	case "active":
		if sub == "running" {
			return Running
		}
		return Active
	case "inactive":
		return Inactive
	case "failed":
		return Failed
	}
	return Classify(sub)
}

// Parse accepts a rendered label (case-insensitive) and returns its Status.
func Parse(label string) (Status, error) {
	l := strings.ToUpper(strings.TrimSpace(label))
	for i, v := range labels {
		if v == l {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", label)
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var l string
	if err := json.Unmarshal(b, &l); err != nil {
		return err
	}
	v, err := Parse(l)
	if err != nil {
		return err
	}
	*s = v
	return nil
}
