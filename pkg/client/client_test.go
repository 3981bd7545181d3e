package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	mng "github.com/loykin/svcmon/internal/manager"
	"github.com/loykin/svcmon/internal/server"
	"github.com/loykin/svcmon/internal/systemd"
	tlsx "github.com/loykin/svcmon/internal/tls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCtl struct{}

func (stubCtl) ListServices(context.Context) ([]systemd.Unit, error) {
	return []systemd.Unit{
		{Name: "nginx.service", Load: "loaded", Active: "active", Sub: "running"},
		{Name: "worker.service", Load: "loaded", Active: "inactive", Sub: "dead"},
	}, nil
}

func (stubCtl) ListFailed(context.Context) ([]string, error) {
	return []string{"worker.service"}, nil
}

func (stubCtl) Issue(_ context.Context, name string, verb systemd.Verb) error {
	if name == "worker" && verb != systemd.VerbStop {
		return errors.New("exit status 1")
	}
	return nil
}

type stubLister struct{}

func (stubLister) Lines(context.Context) ([]string, error) { return []string{"HEADER", "row"}, nil }

func newDaemon(t *testing.T) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mgr := mng.New(stubCtl{}, mng.Options{Processes: stubLister{}})
	_, err := mgr.Load(context.Background())
	require.NoError(t, err)
	ts := httptest.NewServer(server.NewRouter(mgr, "/api").Handler())
	t.Cleanup(ts.Close)
	return New(Config{BaseURL: ts.URL + "/api", Timeout: 5 * time.Second})
}

func TestClientReadSide(t *testing.T) {
	c := newDaemon(t)
	ctx := context.Background()

	assert.True(t, c.IsReachable(ctx))

	svcs, err := c.Services(ctx, "")
	require.NoError(t, err)
	require.Len(t, svcs, 2)
	assert.Equal(t, "worker", svcs[0].Name)

	svcs, err = c.Services(ctx, "RUNNING")
	require.NoError(t, err)
	require.Len(t, svcs, 1)
	assert.Equal(t, "nginx", svcs[0].Name)

	svc, err := c.Service(ctx, "nginx")
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", svc.Status)

	_, err = c.Service(ctx, "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	lines, err := c.Processes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"HEADER", "row"}, lines)

	n, err := c.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestClientCommands(t *testing.T) {
	c := newDaemon(t)
	ctx := context.Background()

	res, err := c.Restart(ctx, "nginx")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "RESTARTED", res.Action)
	assert.Equal(t, "ACTIVE", res.Service.Status)

	res, err = c.Start(ctx, "worker")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.True(t, res.Enqueued)
	assert.NotEmpty(t, res.Error)

	res, err = c.Stop(ctx, "worker")
	require.NoError(t, err)
	assert.True(t, res.OK)

	dr, err := c.Detect(ctx)
	require.NoError(t, err)
	assert.Equal(t, DetectReport{Detected: 1}, dr)

	q, err := c.Queue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, q.Size)
	assert.Equal(t, 100, q.Capacity)

	rep, err := c.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueReport{Processed: 2, Failed: 2, Remaining: 2}, rep)

	logs, err := c.Logs(ctx, 3)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "AUTO-RESTART FAILED", logs[0].Action)

	all, err := c.Logs(ctx, 0)
	require.NoError(t, err)
	assert.Greater(t, len(all), 3)
}

func TestClientDetectRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/detect", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count":3,"rejected":2}`))
	}))
	defer ts.Close()

	dr, err := New(Config{BaseURL: ts.URL}).Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DetectReport{Detected: 3, Rejected: 2}, dr)
}

func TestClientErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("not json"))
	}))
	defer ts.Close()
	c := New(Config{BaseURL: ts.URL})

	_, err := c.Detect(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.False(t, c.IsReachable(context.Background()))

	unreachable := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	assert.False(t, unreachable.IsReachable(context.Background()))
	_, err = unreachable.Queue(context.Background())
	assert.Error(t, err)
}

func TestSetupClientTLS(t *testing.T) {
	cfg, err := setupClientTLS(Config{Insecure: true})
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)

	_, err = setupClientTLS(Config{CACert: filepath.Join(t.TempDir(), "missing.pem")})
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o600))
	_, err = setupClientTLS(Config{CACert: bad})
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, DefaultConfig().BaseURL, c.baseURL)
	assert.Equal(t, DefaultConfig().Timeout, c.client.Timeout)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestClientTLS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := filepath.Join(t.TempDir(), "tls")
	tcfg := tlsx.Config{Enabled: true, Dir: dir, AutoGenerate: true}
	tc, err := tlsx.Setup(tcfg)
	require.NoError(t, err)

	mgr := mng.New(stubCtl{}, mng.Options{})
	_, err = mgr.Load(context.Background())
	require.NoError(t, err)
	addr := freeAddr(t)
	srv, err := server.NewTLSServer(addr, "/api", mgr, tc)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	base := "https://" + addr + "/api"
	trusted := New(Config{BaseURL: base, Timeout: 5 * time.Second, CACert: tcfg.CACertPath()})
	require.Eventually(t, func() bool { return trusted.IsReachable(context.Background()) },
		5*time.Second, 20*time.Millisecond)

	svcs, err := trusted.Services(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, svcs, 2)

	insecure := New(Config{BaseURL: base, Timeout: 5 * time.Second, Insecure: true})
	assert.True(t, insecure.IsReachable(context.Background()))

	untrusted := New(Config{BaseURL: base, Timeout: 5 * time.Second})
	assert.False(t, untrusted.IsReachable(context.Background()))
}
