// Package registry holds the observed state of every known service.
//
// Records live in a single insertion-ordered arena; a name index holds
// handles into it. Both views are updated together so a name is never
// present in one and missing from the other. The registry is not safe for
// concurrent use; the manager serializes access.
package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/loykin/svcmon/internal/status"
)

// MaxNameLen bounds service names (bytes).
const MaxNameLen = 255

var (
	ErrNotFound    = errors.New("service not found")
	ErrInvalidName = errors.New("invalid service name")
)

// Service is the registry's view of one managed unit.
// PID 0 means not running or unknown.
type Service struct {
	Name           string        `json:"name"`
	Status         status.Status `json:"status"`
	PID            int           `json:"pid"`
	LastTransition time.Time     `json:"last_transition"`
}

type Registry struct {
	arena []*Service
	index map[string]int
	now   func() time.Time
}

func New() *Registry {
	return &Registry{
		index: make(map[string]int),
		now:   time.Now,
	}
}

// ValidateName checks the identity constraints of a service name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, MaxNameLen)
	}
	return nil
}

// Now returns the current time truncated to second precision.
func (r *Registry) Now() time.Time { return r.now().Truncate(time.Second) }

// Upsert records an observation. A new name is appended to the arena and
// indexed with LastTransition set to now. A known name has its status and
// pid refreshed in place and keeps its position.
func (r *Registry) Upsert(name string, st status.Status, pid int) (Service, bool, error) {
	if err := ValidateName(name); err != nil {
		return Service{}, false, err
	}
	if pid < 0 {
		pid = 0
	}
	if i, ok := r.index[name]; ok {
		svc := r.arena[i]
		if svc.Status != st {
			svc.LastTransition = r.Now()
		}
		svc.Status = st
		svc.PID = pid
		return *svc, false, nil
	}
	svc := &Service{Name: name, Status: st, PID: pid, LastTransition: r.Now()}
	r.arena = append(r.arena, svc)
	r.index[name] = len(r.arena) - 1
	return *svc, true, nil
}

// Find looks a service up by exact name.
func (r *Registry) Find(name string) (Service, bool) {
	i, ok := r.index[name]
	if !ok {
		return Service{}, false
	}
	return *r.arena[i], true
}

// Update applies fn to the named record in place.
func (r *Registry) Update(name string, fn func(*Service)) (Service, error) {
	i, ok := r.index[name]
	if !ok {
		return Service{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	svc := r.arena[i]
	fn(svc)
	if svc.PID < 0 {
		svc.PID = 0
	}
	return *svc, nil
}

// Enumerate returns copies of all records, most recently added first.
func (r *Registry) Enumerate() []Service {
	return r.Filter(nil)
}

// Filter returns records whose status satisfies pred, most recently added
// first. A nil pred matches everything.
func (r *Registry) Filter(pred func(status.Status) bool) []Service {
	out := make([]Service, 0, len(r.arena))
	for i := len(r.arena) - 1; i >= 0; i-- {
		svc := r.arena[i]
		if pred == nil || pred(svc.Status) {
			out = append(out, *svc)
		}
	}
	return out
}

// Counts returns the number of records per status.
func (r *Registry) Counts() map[status.Status]int {
	m := make(map[status.Status]int, len(status.All))
	for _, svc := range r.arena {
		m[svc.Status]++
	}
	return m
}

func (r *Registry) Len() int { return len(r.arena) }

// Reset drops every record.
func (r *Registry) Reset() {
	r.arena = nil
	r.index = make(map[string]int)
}
