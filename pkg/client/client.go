package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

// ErrNotFound is matched by errors returned for unknown services.
var ErrNotFound = errors.New("service not found")

// APIError is a non-200 answer from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 answers.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client provides HTTP client functionality to communicate with the svcmon daemon
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
	// CACert is a PEM file trusted for a daemon serving HTTPS.
	CACert   string
	Insecure bool // Skip TLS verification
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8080/api",
		Timeout: 30 * time.Second,
	}
}

// New creates a new svcmon API client
func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if config.CACert != "" || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/queue", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	ok := resp.StatusCode == http.StatusOK
	c.logger.Debug("Daemon reachability check", "reachable", ok, "status", resp.StatusCode)
	return ok
}

// Services lists known services; a non-empty status filters by label.
func (c *Client) Services(ctx context.Context, status string) ([]Service, error) {
	path := "/services"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var out []Service
	err := c.do(ctx, http.MethodGet, path, &out)
	return out, err
}

// Service returns one service by name.
func (c *Client) Service(ctx context.Context, name string) (Service, error) {
	var out Service
	err := c.do(ctx, http.MethodGet, "/services/"+url.PathEscape(name), &out)
	return out, err
}

func (c *Client) Start(ctx context.Context, name string) (Result, error) {
	return c.control(ctx, name, "start")
}

func (c *Client) Stop(ctx context.Context, name string) (Result, error) {
	return c.control(ctx, name, "stop")
}

func (c *Client) Restart(ctx context.Context, name string) (Result, error) {
	return c.control(ctx, name, "restart")
}

func (c *Client) control(ctx context.Context, name, verb string) (Result, error) {
	c.logger.Debug("Issuing service command", "service", name, "verb", verb)
	var out Result
	err := c.do(ctx, http.MethodPost, "/services/"+url.PathEscape(name)+"/"+verb, &out)
	return out, err
}

// Reload asks the daemon to refresh its registry from systemd.
func (c *Client) Reload(ctx context.Context) (int, error) {
	var out countResponse
	err := c.do(ctx, http.MethodPost, "/reload", &out)
	return out.Count, err
}

// Detect marks failed services and reports how many were found and how many
// the retry queue rejected.
func (c *Client) Detect(ctx context.Context) (DetectReport, error) {
	var out countResponse
	err := c.do(ctx, http.MethodPost, "/detect", &out)
	return DetectReport{Detected: out.Count, Rejected: out.Rejected}, err
}

func (c *Client) Queue(ctx context.Context) (Queue, error) {
	var out Queue
	err := c.do(ctx, http.MethodGet, "/queue", &out)
	return out, err
}

func (c *Client) ProcessQueue(ctx context.Context) (QueueReport, error) {
	var out QueueReport
	err := c.do(ctx, http.MethodPost, "/queue/process", &out)
	return out, err
}

// Logs returns up to limit entries, most recent first; 0 returns all.
func (c *Client) Logs(ctx context.Context, limit int) ([]LogEntry, error) {
	path := "/logs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []LogEntry
	err := c.do(ctx, http.MethodGet, path, &out)
	return out, err
}

// Processes returns the daemon host's process table lines.
func (c *Client) Processes(ctx context.Context) ([]string, error) {
	var out processesResponse
	err := c.do(ctx, http.MethodGet, "/processes", &out)
	return out.Lines, err
}

// setupClientTLS configures TLS settings for HTTP client
func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true // #nosec G402 -- explicit opt-in
		return tlsConfig, nil
	}
	caCert, err := os.ReadFile(config.CACert)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

// do performs the request and decodes a 200 answer into out.
func (c *Client) do(ctx context.Context, method, path string, out any) error {
	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", u)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	c.logger.Debug("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return &APIError{StatusCode: resp.StatusCode, Message: errorResp.Error}
}
