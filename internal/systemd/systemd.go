// Package systemd talks to the service manager through systemctl.
package systemd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Verb is a control action accepted by Issue.
type Verb string

const (
	VerbStart   Verb = "start"
	VerbStop    Verb = "stop"
	VerbRestart Verb = "restart"
)

func (v Verb) Valid() bool {
	switch v {
	case VerbStart, VerbStop, VerbRestart:
		return true
	}
	return false
}

var ErrUnsupportedVerb = errors.New("systemd: unsupported verb")

// CommandError reports a failed systemctl invocation.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("systemctl %s: %v", strings.Join(e.Args, " "), e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += " (stderr: " + s + ")"
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// Unit is one row of `systemctl list-units`.
type Unit struct {
	Name   string `json:"name"`
	Load   string `json:"load"`
	Active string `json:"active"`
	Sub    string `json:"sub"`
}

// Client runs systemctl, optionally through sudo. Every call is bounded by
// Timeout.
type Client struct {
	Path        string
	UseSudo     bool
	SudoCommand string
	Timeout     time.Duration
}

// NewClient returns a client using sudo when not running as root.
func NewClient() *Client {
	return &Client{
		Path:        "systemctl",
		UseSudo:     os.Geteuid() != 0,
		SudoCommand: "sudo",
		Timeout:     10 * time.Second,
	}
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	path := c.Path
	if path == "" {
		path = "systemctl"
	}
	var cmd *exec.Cmd
	if c.UseSudo {
		sudo := c.SudoCommand
		if sudo == "" {
			sudo = "sudo"
		}
		// #nosec G204 -- arguments are fixed verbs and validated unit names
		cmd = exec.CommandContext(ctx, sudo, append([]string{path}, args...)...)
	} else {
		// #nosec G204
		cmd = exec.CommandContext(ctx, path, args...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		return nil, &CommandError{Args: args, Stderr: stderr.String(), Err: err}
	}
	return stdout.Bytes(), nil
}

// ListServices returns every service unit known to systemd.
func (c *Client) ListServices(ctx context.Context) ([]Unit, error) {
	out, err := c.run(ctx, "list-units", "--type=service", "--all", "--no-pager", "--no-legend")
	if err != nil {
		return nil, err
	}
	return ParseUnits(bytes.NewReader(out))
}

// ListFailed returns the names of service units in the failed state.
func (c *Client) ListFailed(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "list-units", "--type=service", "--state=failed", "--no-pager", "--no-legend")
	if err != nil {
		return nil, err
	}
	return ParseUnitNames(bytes.NewReader(out))
}

// Issue runs a control verb against name.service.
func (c *Client) Issue(ctx context.Context, name string, verb Verb) error {
	if !verb.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedVerb, verb)
	}
	_, err := c.run(ctx, string(verb), UnitName(name))
	return err
}

// MainPID reports the main process id of name.service, 0 when not running.
func (c *Client) MainPID(ctx context.Context, name string) (int, error) {
	out, err := c.run(ctx, "show", "-p", "MainPID", "--value", UnitName(name))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("parse MainPID: %w", err)
	}
	return pid, nil
}

// UnitName appends the .service suffix when missing.
func UnitName(name string) string {
	if strings.HasSuffix(name, ".service") {
		return name
	}
	return name + ".service"
}

// ServiceName strips the .service suffix.
func ServiceName(unit string) string {
	return strings.TrimSuffix(unit, ".service")
}

// fields splits a listing line, dropping the status glyph systemctl prints
// in front of failed or not-found units.
func fields(line string) []string {
	f := strings.Fields(line)
	if len(f) > 0 && (f[0] == "●" || f[0] == "*" || f[0] == "○") {
		f = f[1:]
	}
	return f
}

// ParseUnits parses `list-units` output (UNIT LOAD ACTIVE SUB DESCRIPTION).
// Lines with fewer than four columns are skipped.
func ParseUnits(r io.Reader) ([]Unit, error) {
	var units []Unit
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		f := fields(sc.Text())
		if len(f) < 4 {
			continue
		}
		units = append(units, Unit{
			Name:   ServiceName(f[0]),
			Load:   f[1],
			Active: f[2],
			Sub:    f[3],
		})
	}
	return units, sc.Err()
}

// ParseUnitNames returns the first column of each non-empty line.
func ParseUnitNames(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		f := fields(sc.Text())
		if len(f) == 0 {
			continue
		}
		names = append(names, ServiceName(f[0]))
	}
	return names, sc.Err()
}
