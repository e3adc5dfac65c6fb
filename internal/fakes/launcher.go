package fakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/hellaweb3/anvilsim/sandbox"
)

// ReadyLine is the line a fake process prints by default.
const ReadyLine = "Listening on 0.0.0.0:8545"

// LauncherHooks can be used to override the behavior of the fake launcher.
type LauncherHooks struct {
	// Output returns the lines printed by the process. The default output contains
	// the node's ready line.
	Output func(opt sandbox.LaunchOptions) []string
	// Hang keeps a process whose output lacks the ready line running until the launch
	// context is done. Without it, such a process exits right away.
	Hang bool

	Host       func(id string) (string, error)
	MappedPort func(id string, port int) (int, error)
	Stop       func(id string) error
}

var _ sandbox.Launcher = (*Launcher)(nil)

// Launcher implements sandbox.Launcher without a container engine.
type Launcher struct {
	hooks LauncherHooks

	mu        sync.Mutex
	counter   uint64
	launched  []sandbox.LaunchOptions
	processes []*Process
	stops     int
}

// NewLauncher creates a new fake launcher.
func NewLauncher(hooks *LauncherHooks) *Launcher {
	l := &Launcher{}
	if hooks != nil {
		l.hooks = *hooks
	}
	return l
}

// Launched returns the options of all launch requests.
func (l *Launcher) Launched() []sandbox.LaunchOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]sandbox.LaunchOptions(nil), l.launched...)
}

// Processes returns all processes that became ready.
func (l *Launcher) Processes() []*Process {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Process(nil), l.processes...)
}

// Stops returns the number of process terminations, including the removal of
// processes that failed to start.
func (l *Launcher) Stops() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stops
}

func (l *Launcher) Launch(ctx context.Context, opt sandbox.LaunchOptions) (sandbox.Process, error) {
	l.mu.Lock()
	l.counter++
	id := fmt.Sprintf("%0.8x", l.counter)
	l.launched = append(l.launched, opt)
	l.mu.Unlock()

	lines := []string{ReadyLine}
	if l.hooks.Output != nil {
		lines = l.hooks.Output(opt)
	}
	w := sandbox.NewLineWatcher(opt.ReadyPattern, 0, nil)
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}

	var err error
	select {
	case <-w.Ready():
	default:
		if l.hooks.Hang {
			<-ctx.Done()
			err = fmt.Errorf("%w: %v", sandbox.ErrNotReady, ctx.Err())
		} else {
			err = sandbox.ErrExited
		}
	}
	if err != nil {
		l.mu.Lock()
		l.stops++
		l.mu.Unlock()
		return nil, &sandbox.LaunchError{ID: id, Output: w.Lines(), Err: err}
	}

	p := &Process{id: id, launcher: l, output: w.Lines()}
	l.mu.Lock()
	l.processes = append(l.processes, p)
	l.mu.Unlock()
	return p, nil
}

// Process is a fake sandboxed process.
type Process struct {
	id       string
	launcher *Launcher
	output   []string

	stopOnce sync.Once
	stopped  bool
}

func (p *Process) ID() string { return p.id }

func (p *Process) Host(ctx context.Context) (string, error) {
	if p.launcher.hooks.Host != nil {
		return p.launcher.hooks.Host(p.id)
	}
	return "127.0.0.1", nil
}

func (p *Process) MappedPort(ctx context.Context, port int) (int, error) {
	if p.launcher.hooks.MappedPort != nil {
		return p.launcher.hooks.MappedPort(p.id, port)
	}
	return port, nil
}

func (p *Process) Output() []string {
	return append([]string(nil), p.output...)
}

func (p *Process) Stop(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		p.launcher.mu.Lock()
		p.launcher.stops++
		p.stopped = true
		p.launcher.mu.Unlock()
		if p.launcher.hooks.Stop != nil {
			err = p.launcher.hooks.Stop(p.id)
		}
	})
	return err
}

// Stopped reports whether Stop has been called.
func (p *Process) Stopped() bool {
	p.launcher.mu.Lock()
	defer p.launcher.mu.Unlock()
	return p.stopped
}
