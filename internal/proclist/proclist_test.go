package proclist

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	line := Format(Proc{User: "root", PID: 1, CPU: 0.5, Mem: 1.25, VSZKiB: 1000, RSSKiB: 200, Stat: "S", Command: "/sbin/init"})
	fields := strings.Fields(line)
	require.Len(t, fields, 8)
	assert.Equal(t, []string{"root", "1", "0.5", "1.2", "1000", "200", "S", "/sbin/init"}, fields)

	blank := strings.Fields(Format(Proc{PID: 2}))
	assert.Equal(t, "?", blank[0])
	assert.Equal(t, "?", blank[6])
}

func TestHeader(t *testing.T) {
	assert.Equal(t, []string{"USER", "PID", "%CPU", "%MEM", "VSZ", "RSS", "STAT", "COMMAND"}, strings.Fields(Header()))
}

func TestStatCode(t *testing.T) {
	assert.Equal(t, "R", statCode([]string{process.Running}))
	assert.Equal(t, "SL", statCode([]string{process.Sleep, process.Lock}))
	assert.Equal(t, "", statCode(nil))
}

func TestLinesIncludesSelf(t *testing.T) {
	lines, err := Lister{}.Lines(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, lines)
	assert.Equal(t, Header(), lines[0])

	self := strconv.Itoa(os.Getpid())
	found := false
	for _, l := range lines[1:] {
		f := strings.Fields(l)
		if len(f) > 1 && f[1] == self {
			found = true
			break
		}
	}
	assert.True(t, found, "own pid %s not listed", self)
}

func TestLimitAndCancel(t *testing.T) {
	procs, err := Lister{Limit: 1}.Procs(context.Background())
	require.NoError(t, err)
	assert.Len(t, procs, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Lister{}.Procs(ctx)
	assert.Error(t, err)
}
