// Package sandbox defines the container engine capabilities consumed by the anvil
// lifecycle manager. Implementations live in internal/libdocker (Docker Engine API)
// and internal/libtc (testcontainers).
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Launcher starts sandboxed processes.
type Launcher interface {
	// Launch creates and starts a process and blocks until a line of its output
	// matches opt.ReadyPattern, the process exits, or ctx is done. On failure the
	// process has already been removed and the error is a *LaunchError.
	Launch(ctx context.Context, opt LaunchOptions) (Process, error)
}

// Process is a running sandboxed process.
type Process interface {
	// ID returns the short engine identifier of the process.
	ID() string
	// Host returns the host name under which mapped ports are reachable.
	Host(ctx context.Context) (string, error)
	// MappedPort returns the host port bound to the given internal TCP port.
	MappedPort(ctx context.Context, port int) (int, error)
	// Output returns the most recent lines of combined output.
	Output() []string
	// Stop terminates the process and releases its resources. Calling it more
	// than once is a no-op.
	Stop(ctx context.Context) error
}

// LaunchOptions contains the launch parameters of a sandboxed process.
type LaunchOptions struct {
	Image        string
	ExposedPort  int // internal TCP port registered for host mapping
	Env          map[string]string
	Entrypoint   []string
	ReadyPattern *regexp.Regexp
}

// EnvList returns the environment as KEY=VALUE pairs.
func (o LaunchOptions) EnvList() []string {
	vars := make([]string, 0, len(o.Env))
	for key, val := range o.Env {
		vars = append(vars, key+"="+val)
	}
	return vars
}

// These errors are wrapped by LaunchError.
var (
	ErrExited   = errors.New("terminated unexpectedly")
	ErrNotReady = errors.New("timed out waiting for readiness")
)

// LaunchError is returned by Launch when the process did not become ready.
type LaunchError struct {
	ID     string   // process ID, empty if the process was never created
	Output []string // last captured output lines
	Err    error
}

func (e *LaunchError) Error() string {
	msg := fmt.Sprintf("sandbox %s did not start: %v", e.ID, e.Err)
	if e.ID == "" {
		msg = fmt.Sprintf("sandbox did not start: %v", e.Err)
	}
	if len(e.Output) > 0 {
		msg += "\n" + strings.Join(e.Output, "\n")
	}
	return msg
}

func (e *LaunchError) Unwrap() error { return e.Err }
