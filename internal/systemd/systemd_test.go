package systemd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listing = `  cron.service                loaded active   running Regular background program processing daemon
● nginx.service               loaded failed   failed  A high performance web server
  systemd-fsck-root.service   loaded active   exited  File System Check on Root Device
  broken line
  plymouth-quit.service       loaded inactive dead    Terminate Plymouth Boot Screen

`

func TestParseUnits(t *testing.T) {
	units, err := ParseUnits(strings.NewReader(listing))
	require.NoError(t, err)
	require.Len(t, units, 4)
	assert.Equal(t, Unit{Name: "cron", Load: "loaded", Active: "active", Sub: "running"}, units[0])
	assert.Equal(t, Unit{Name: "nginx", Load: "loaded", Active: "failed", Sub: "failed"}, units[1])
	assert.Equal(t, "systemd-fsck-root", units[2].Name)
	assert.Equal(t, "dead", units[3].Sub)
}

func TestParseUnitNames(t *testing.T) {
	in := "● nginx.service loaded failed failed web\n\nfoo.service loaded failed failed foo\n"
	names, err := ParseUnitNames(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"nginx", "foo"}, names)
}

func TestUnitNames(t *testing.T) {
	assert.Equal(t, "a.service", UnitName("a"))
	assert.Equal(t, "a.service", UnitName("a.service"))
	assert.Equal(t, "a", ServiceName("a.service"))
}

func TestVerbValid(t *testing.T) {
	assert.True(t, VerbStart.Valid())
	assert.True(t, VerbStop.Valid())
	assert.True(t, VerbRestart.Valid())
	assert.False(t, Verb("enable").Valid())
}

// fakeSystemctl writes a shell script that mimics the subset of systemctl
// used by Client.
func fakeSystemctl(t *testing.T) *Client {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	dir := t.TempDir()
	script := `#!/bin/sh
case "$1" in
  list-units)
    case "$3" in
      --state=failed) echo "● bad.service loaded failed failed Bad" ;;
      *) printf '%s\n' "good.service loaded active running Good" "bad.service loaded failed failed Bad" ;;
    esac ;;
  show) echo 4242 ;;
  start|restart)
    [ "$2" = "good.service" ] && exit 0
    echo "Job for $2 failed" >&2; exit 1 ;;
  stop) exit 0 ;;
  sleep) exec sleep 5 ;;
esac
`
	p := filepath.Join(dir, "systemctl")
	require.NoError(t, os.WriteFile(p, []byte(script), 0o755))
	return &Client{Path: p, Timeout: 2 * time.Second}
}

func TestClientAgainstFakeSystemctl(t *testing.T) {
	c := fakeSystemctl(t)
	ctx := context.Background()

	units, err := c.ListServices(ctx)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "good", units[0].Name)

	failed, err := c.ListFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bad"}, failed)

	require.NoError(t, c.Issue(ctx, "good", VerbStart))
	require.NoError(t, c.Issue(ctx, "bad", VerbStop))

	err = c.Issue(ctx, "bad", VerbRestart)
	var ce *CommandError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Error(), "Job for bad.service failed")

	pid, err := c.MainPID(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)

	assert.ErrorIs(t, c.Issue(ctx, "good", Verb("mask")), ErrUnsupportedVerb)
}

func TestClientTimeout(t *testing.T) {
	c := fakeSystemctl(t)
	c.Timeout = 100 * time.Millisecond
	start := time.Now()
	_, err := c.run(context.Background(), "sleep")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)
}
