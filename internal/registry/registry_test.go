package registry

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/svcmon/internal/status"
)

func names(svcs []Service) []string {
	out := make([]string, 0, len(svcs))
	for _, s := range svcs {
		out = append(out, s.Name)
	}
	return out
}

func TestUpsertFindEnumerate(t *testing.T) {
	r := New()
	in := []string{"sshd", "cron", "nginx", "atd", "zebra"}
	for i, n := range in {
		_, created, err := r.Upsert(n, status.Running, i+1)
		require.NoError(t, err)
		assert.True(t, created)
	}
	for i, n := range in {
		svc, ok := r.Find(n)
		require.True(t, ok, n)
		assert.Equal(t, n, svc.Name)
		assert.Equal(t, i+1, svc.PID)
	}
	assert.Equal(t, []string{"zebra", "atd", "nginx", "cron", "sshd"}, names(r.Enumerate()))
	assert.Equal(t, len(in), r.Len())
}

func TestSortedInsertStillFindsEverything(t *testing.T) {
	r := New()
	for i := 0; i < 500; i++ {
		_, _, err := r.Upsert(fmt.Sprintf("svc-%04d", i), status.Active, 0)
		require.NoError(t, err)
	}
	for i := 0; i < 500; i++ {
		_, ok := r.Find(fmt.Sprintf("svc-%04d", i))
		require.True(t, ok)
	}
}

func TestFindIsCaseSensitive(t *testing.T) {
	r := New()
	_, _, err := r.Upsert("Docker", status.Active, 0)
	require.NoError(t, err)
	_, ok := r.Find("docker")
	assert.False(t, ok)
}

func TestUpsertExistingRefreshesInPlace(t *testing.T) {
	r := New()
	_, _, _ = r.Upsert("a", status.Running, 10)
	_, _, _ = r.Upsert("b", status.Running, 11)

	svc, created, err := r.Upsert("a", status.Failed, 0)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, status.Failed, svc.Status)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"b", "a"}, names(r.Enumerate()))
}

func TestUpsertTouchesTimestampOnlyOnChange(t *testing.T) {
	r := New()
	base := time.Date(2026, 1, 2, 3, 4, 5, 600, time.UTC)
	r.now = func() time.Time { return base }
	svc, _, _ := r.Upsert("a", status.Running, 1)
	assert.Equal(t, base.Truncate(time.Second), svc.LastTransition)

	r.now = func() time.Time { return base.Add(time.Minute) }
	svc, _, _ = r.Upsert("a", status.Running, 1)
	assert.Equal(t, base.Truncate(time.Second), svc.LastTransition)

	svc, _, _ = r.Upsert("a", status.Failed, 0)
	assert.Equal(t, base.Add(time.Minute).Truncate(time.Second), svc.LastTransition)
}

func TestUpsertRejectsInvalidNames(t *testing.T) {
	r := New()
	_, _, err := r.Upsert("", status.Active, 0)
	assert.ErrorIs(t, err, ErrInvalidName)
	_, _, err = r.Upsert(strings.Repeat("x", MaxNameLen+1), status.Active, 0)
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.Equal(t, 0, r.Len())

	_, _, err = r.Upsert(strings.Repeat("x", MaxNameLen), status.Active, 0)
	assert.NoError(t, err)
}

func TestFilter(t *testing.T) {
	r := New()
	_, _, _ = r.Upsert("a", status.Failed, 0)
	_, _, _ = r.Upsert("b", status.Running, 3)
	_, _, _ = r.Upsert("c", status.Failed, 0)

	failed := r.Filter(func(s status.Status) bool { return s == status.Failed })
	assert.Equal(t, []string{"c", "a"}, names(failed))
	assert.Empty(t, r.Filter(func(s status.Status) bool { return s == status.Suspended }))
	assert.Equal(t, map[status.Status]int{status.Failed: 2, status.Running: 1}, r.Counts())
}

func TestUpdate(t *testing.T) {
	r := New()
	_, _, _ = r.Upsert("a", status.Inactive, 0)

	svc, err := r.Update("a", func(s *Service) {
		s.Status = status.Active
		s.PID = -5
	})
	require.NoError(t, err)
	assert.Equal(t, status.Active, svc.Status)
	assert.Equal(t, 0, svc.PID)

	got, _ := r.Find("a")
	assert.Equal(t, status.Active, got.Status)

	_, err = r.Update("missing", func(*Service) {})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	r := New()
	_, _, _ = r.Upsert("a", status.Running, 1)
	svc, _ := r.Find("a")
	svc.Status = status.Failed
	got, _ := r.Find("a")
	assert.Equal(t, status.Running, got.Status)
}

func TestReset(t *testing.T) {
	r := New()
	_, _, _ = r.Upsert("a", status.Running, 1)
	r.Reset()
	assert.Equal(t, 0, r.Len())
	_, ok := r.Find("a")
	assert.False(t, ok)
	assert.Empty(t, r.Enumerate())
}
