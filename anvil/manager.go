package anvil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hellaweb3/anvilsim/sandbox"
	"gopkg.in/inconshreveable/log15.v2"
)

// State is the lifecycle state of a Manager.
type State int

const (
	StateUnconfigured State = iota
	StateConfigured
	StateStarting
	StateReady
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfigured:
		return "configured"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Endpoint is the host address of the node's RPC port.
type Endpoint struct {
	Host string
	Port int
}

// URL returns the HTTP RPC URL of the endpoint.
func (e Endpoint) URL() string {
	return "http://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Manager owns the lifecycle of one sandboxed node.
type Manager struct {
	launcher sandbox.Launcher
	cfg      Config
	logger   log15.Logger

	mu          sync.Mutex
	state       State
	cancelStart context.CancelFunc
	startDone   chan struct{} // closed when Start has returned
	node        *Node
}

// NewManager creates a manager that launches nodes with cfg through launcher.
func NewManager(launcher sandbox.Launcher, cfg Config) *Manager {
	cfg = cfg.clone()
	return &Manager{
		launcher: launcher,
		cfg:      cfg,
		logger:   cfg.Logger().New("image", cfg.Image()),
		state:    StateConfigured,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Config returns the configuration of the manager.
func (m *Manager) Config() Config {
	return m.cfg
}

// Start launches the node and blocks until it accepts RPC calls. It fails with a
// *StartupError if the node doesn't become ready within the startup timeout, if its
// process exits, or if ctx is canceled. No process is left running on failure.
//
// Start can be called once per manager. To retry, create a new manager from the
// same Config.
func (m *Manager) Start(ctx context.Context) (*Node, error) {
	m.mu.Lock()
	if m.state != StateConfigured {
		state := m.state
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: can't start in state %v", ErrInvalidState, state)
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.StartupTimeout())
	defer cancel()
	done := make(chan struct{})
	defer close(done)
	m.state, m.cancelStart, m.startDone = StateStarting, cancel, done
	m.mu.Unlock()

	startTime := time.Now()
	entrypoint := m.cfg.Entrypoint()
	m.logger.Debug("starting node", "entrypoint", entrypoint)

	proc, err := m.launcher.Launch(ctx, sandbox.LaunchOptions{
		Image:        m.cfg.Image(),
		ExposedPort:  RPCPort,
		Env:          m.cfg.Env(),
		Entrypoint:   entrypoint,
		ReadyPattern: m.cfg.ReadyPattern(),
	})
	if err != nil {
		return nil, m.fail(nil, launchFailure(err))
	}
	logger := m.logger.New("container", proc.ID())

	endpoint, err := resolveEndpoint(ctx, proc)
	if err != nil {
		return nil, m.fail(proc, &StartupError{Reason: "can't resolve endpoint", Err: err, Output: proc.Output()})
	}
	client, err := Dial(ctx, endpoint.URL(),
		WithClientLogger(logger),
		WithReceiptTimeout(m.cfg.ReceiptTimeout()),
	)
	if err != nil {
		return nil, m.fail(proc, &StartupError{Reason: "can't connect", Err: err, Output: proc.Output()})
	}
	// The ready line is printed just before the listener serves requests, so the
	// first call is the real liveness check.
	if _, err := client.BlockNumber(ctx); err != nil {
		client.Close()
		return nil, m.fail(proc, &StartupError{Reason: "node not reachable", Err: err, Output: proc.Output()})
	}

	node := &Node{manager: m, proc: proc, endpoint: endpoint, client: client}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateStarting {
		// Stop was called while the liveness check was running.
		client.Close()
		m.stopProcess(proc)
		return nil, &StartupError{Reason: "stopped during startup", Err: context.Canceled, Output: proc.Output()}
	}
	m.state, m.node, m.cancelStart = StateReady, node, nil
	logger.Info("node ready", "url", endpoint.URL(), "time", time.Since(startTime))
	return node, nil
}

// fail records a failed start and removes the process, if any.
func (m *Manager) fail(proc sandbox.Process, err *StartupError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if proc != nil {
		m.stopProcess(proc)
	}
	if m.state == StateStarting {
		m.state = StateFailed
	}
	m.cancelStart = nil
	m.logger.Error("node startup failed", "err", err.Err, "reason", err.Reason)
	return err
}

// Stop terminates the node. It is safe to call from any goroutine and more than once;
// stopping a manager that never started is a no-op. A start in progress is aborted,
// and Stop returns once its process has been removed or ctx is done.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateStopped:
		m.mu.Unlock()
		return nil
	case StateStarting:
		m.cancelStart()
		m.state = StateStopped
		done := m.startDone
		m.mu.Unlock()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.state = StateStopped
	node := m.node
	m.node = nil
	m.mu.Unlock()

	if node == nil {
		return nil
	}
	node.client.Close()
	m.logger.Debug("stopping node", "container", node.proc.ID())
	return node.proc.Stop(ctx)
}

func (m *Manager) stopProcess(proc sandbox.Process) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := proc.Stop(ctx); err != nil {
		m.logger.Error("can't remove failed node", "container", proc.ID(), "err", err)
	}
}

func resolveEndpoint(ctx context.Context, proc sandbox.Process) (Endpoint, error) {
	host, err := proc.Host(ctx)
	if err != nil {
		return Endpoint{}, err
	}
	port, err := proc.MappedPort(ctx, RPCPort)
	if err != nil {
		return Endpoint{}, err
	}
	return Endpoint{Host: host, Port: port}, nil
}

func launchFailure(err error) *StartupError {
	se := &StartupError{Reason: "launch failed", Err: err}
	var le *sandbox.LaunchError
	if errors.As(err, &le) {
		se.Output = le.Output
		switch {
		case errors.Is(err, sandbox.ErrExited):
			se.Reason, se.exited = "node exited before becoming ready", true
		case errors.Is(err, sandbox.ErrNotReady):
			se.Reason = "readiness pattern not observed"
		}
	}
	return se
}

// Node is a running node.
type Node struct {
	manager  *Manager
	proc     sandbox.Process
	endpoint Endpoint
	client   *RPCClient
}

// Endpoint returns the host endpoint of the RPC port.
func (n *Node) Endpoint() Endpoint { return n.endpoint }

// RPCURL returns the HTTP URL of the node.
func (n *Node) RPCURL() string { return n.endpoint.URL() }

// Client returns the client bound to the node.
func (n *Node) Client() Client { return n.client }

// Process returns the sandboxed process running the node.
func (n *Node) Process() sandbox.Process { return n.proc }

// Output returns the last lines of node output.
func (n *Node) Output() []string { return n.proc.Output() }

// Stop terminates the node. See Manager.Stop.
func (n *Node) Stop(ctx context.Context) error { return n.manager.Stop(ctx) }

// Addresses lists the dev accounts of the node.
func (n *Node) Addresses(ctx context.Context) ([]common.Address, error) {
	return n.client.Addresses(ctx)
}
