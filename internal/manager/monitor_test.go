package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loykin/svcmon/internal/status"
	"github.com/loykin/svcmon/internal/systemd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorRunsFixedCycles(t *testing.T) {
	ctl := newFakeCtl(unit("web", "active", "running"), unit("db", "active", "running"))
	ctl.failed = []string{"db"}
	m := New(ctl, Options{})

	var reports []CycleReport
	start := time.Now()
	err := m.Monitor(context.Background(), MonitorOptions{
		Interval: 20 * time.Millisecond,
		Cycles:   3,
		OnCycle:  func(r CycleReport) { reports = append(reports, r) },
	})
	require.NoError(t, err)
	// two waits between three cycles
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	require.Len(t, reports, 3)
	for i, r := range reports {
		assert.Equal(t, i+1, r.Cycle)
		assert.Equal(t, 2, r.Loaded)
		assert.Equal(t, 1, r.Detected)
		assert.Nil(t, r.Queue)
		assert.NoError(t, r.Err)
		assert.Len(t, r.Services, 2)
	}
	db, _ := m.Find("db")
	assert.Equal(t, status.Failed, db.Status)
	assert.Len(t, m.Queue(), 3)
}

func TestMonitorAutoRetry(t *testing.T) {
	ctl := newFakeCtl(unit("db", "failed", "failed"))
	ctl.failed = []string{"db"}
	m := New(ctl, Options{})

	var last CycleReport
	err := m.Monitor(context.Background(), MonitorOptions{
		Cycles:    1,
		AutoRetry: true,
		OnCycle:   func(r CycleReport) { last = r },
	})
	require.NoError(t, err)
	require.NotNil(t, last.Queue)
	assert.Equal(t, 1, last.Queue.Succeeded)
	assert.Empty(t, m.Queue())
	db, _ := m.Find("db")
	assert.Equal(t, status.Active, db.Status)
}

func TestMonitorCancel(t *testing.T) {
	ctl := newFakeCtl(unit("web", "active", "running"))
	m := New(ctl, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cycles := 0
	done := make(chan error, 1)
	go func() {
		done <- m.Monitor(ctx, MonitorOptions{
			Interval: time.Hour,
			OnCycle: func(CycleReport) {
				cycles++
				cancel()
			},
		})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop after cancel")
	}
	assert.Equal(t, 1, cycles)
}

func TestMonitorKeepsGoingOnErrors(t *testing.T) {
	ctl := newFakeCtl()
	ctl.listErr = errors.New("bus unavailable")
	m := New(ctl, Options{})

	var reports []CycleReport
	err := m.Monitor(context.Background(), MonitorOptions{
		Interval: time.Millisecond,
		Cycles:   2,
		OnCycle:  func(r CycleReport) { reports = append(reports, r) },
	})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Error(t, reports[0].Err)
	assert.Error(t, reports[1].Err)
}

func TestMonitorAlreadyCanceled(t *testing.T) {
	ctl := newFakeCtl(unit("web", "active", "running"))
	ctl.setFail(systemd.VerbRestart, "web", true)
	m := New(ctl, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Monitor(ctx, MonitorOptions{Cycles: 3})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, m.Services())
}
