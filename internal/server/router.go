package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/labstack/echo/v4"
	mng "github.com/loykin/svcmon/internal/manager"
	"github.com/loykin/svcmon/internal/metrics"
	"github.com/loykin/svcmon/internal/retryqueue"
	"github.com/loykin/svcmon/internal/status"
)

// Router provides embeddable HTTP handlers over a service manager.
// Endpoints (relative to basePath):
//
//	GET  /services               query: status=FAILED (optional)
//	GET  /services/:name
//	POST /services/:name/start|stop|restart
//	POST /reload                 reload the registry from systemd
//	POST /detect                 mark failed services and queue them
//	GET  /queue
//	POST /queue/process          retry every queued service
//	GET  /logs                   query: limit=N (optional)
//	GET  /processes
//	GET  /metrics                only with WithMetrics
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	mgr      *mng.Manager
	basePath string
	metrics  bool
}

type RouterOption func(*Router)

// WithMetrics exposes the Prometheus handler at {basePath}/metrics.
func WithMetrics() RouterOption {
	return func(r *Router) { r.metrics = true }
}

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(mgr *mng.Manager, basePath string, opts ...RouterOption) *Router {
	r := &Router{mgr: mgr, basePath: sanitizeBase(basePath)}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/services", r.handleList)
	group.GET("/services/:name", r.handleFind)
	group.POST("/services/:name/start", r.handleControl(r.mgr.Start))
	group.POST("/services/:name/stop", r.handleControl(r.mgr.Stop))
	group.POST("/services/:name/restart", r.handleControl(r.mgr.Restart))
	group.POST("/reload", r.handleReload)
	group.POST("/detect", r.handleDetect)
	group.GET("/queue", r.handleQueue)
	group.POST("/queue/process", r.handleProcessQueue)
	group.GET("/logs", r.handleLogs)
	group.GET("/processes", r.handleProcesses)
	if r.metrics {
		group.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// MountEcho mounts h under base on an echo instance.
func MountEcho(e *echo.Echo, base string, h http.Handler) {
	base = sanitizeBase(base)
	e.Any(base, echo.WrapHandler(h))
	e.Any(base+"/*", echo.WrapHandler(h))
}

// NewServer starts a standalone HTTP server on addr using this router.
// Callers stop it with Shutdown or Close.
func NewServer(addr, basePath string, mgr *mng.Manager, opts ...RouterOption) (*http.Server, error) {
	server := newHTTPServer(addr, NewRouter(mgr, basePath, opts...))
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// NewTLSServer is NewServer over HTTPS. tc must provide the certificate,
// usually through GetCertificate.
func NewTLSServer(addr, basePath string, mgr *mng.Manager, tc *tls.Config, opts ...RouterOption) (*http.Server, error) {
	if tc == nil {
		return nil, errors.New("server: nil TLS config")
	}
	server := newHTTPServer(addr, NewRouter(mgr, basePath, opts...))
	server.TLSConfig = tc
	go func() { _ = server.ListenAndServeTLS("", "") }()
	return server, nil
}

func newHTTPServer(addr string, r *Router) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

// QueueResp is the body of GET /queue.
type QueueResp struct {
	Capacity int                `json:"capacity"`
	Size     int                `json:"size"`
	Entries  []retryqueue.Entry `json:"entries"`
}

// CountResp is the body of POST /reload and POST /detect. Rejected is the
// number of detected services the full retry queue turned away.
type CountResp struct {
	Count    int `json:"count"`
	Rejected int `json:"rejected,omitempty"`
}

// ProcessesResp is the body of GET /processes.
type ProcessesResp struct {
	Lines []string `json:"lines"`
}

func (r *Router) handleList(c *gin.Context) {
	if s := c.Query("status"); s != "" {
		st, err := status.Parse(s)
		if err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusOK, r.mgr.Filter(st))
		return
	}
	writeJSON(c, http.StatusOK, r.mgr.Services())
}

func (r *Router) handleFind(c *gin.Context) {
	name := c.Param("name")
	if !isSafeUnitName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid service name"})
		return
	}
	svc, err := r.mgr.Find(name)
	if err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, svc)
}

// handleControl wraps a manager command. A command the controller rejected is
// still a handled outcome: it answers 200 with ok=false and the error text.
func (r *Router) handleControl(fn func(context.Context, string) (mng.Result, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		if !isSafeUnitName(name) {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid service name"})
			return
		}
		res, err := fn(c.Request.Context(), name)
		if err != nil {
			writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusOK, res)
	}
}

func (r *Router) handleReload(c *gin.Context) {
	n, err := r.mgr.Load(c.Request.Context())
	if err != nil {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, CountResp{Count: n})
}

func (r *Router) handleDetect(c *gin.Context) {
	rep, err := r.mgr.DetectFailed(c.Request.Context())
	if err != nil {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, CountResp{Count: rep.Detected, Rejected: rep.Rejected})
}

func (r *Router) handleQueue(c *gin.Context) {
	entries := r.mgr.Queue()
	writeJSON(c, http.StatusOK, QueueResp{Capacity: r.mgr.QueueCap(), Size: len(entries), Entries: entries})
}

func (r *Router) handleProcessQueue(c *gin.Context) {
	rep, err := r.mgr.ProcessQueue(c.Request.Context())
	if err != nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, rep)
}

func (r *Router) handleLogs(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	writeJSON(c, http.StatusOK, r.mgr.Logs(limit))
}

func (r *Router) handleProcesses(c *gin.Context) {
	lines, err := r.mgr.Processes(c.Request.Context())
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, mng.ErrNoProcesses) {
			code = http.StatusNotImplemented
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, ProcessesResp{Lines: lines})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, mng.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, mng.ErrInvalidName):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
