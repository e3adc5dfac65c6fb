// Package libtc launches sandboxed nodes with testcontainers. Containers started
// this way are also removed by the testcontainers reaper when the test process dies.
package libtc

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/hellaweb3/anvilsim/sandbox"
	"github.com/pkg/errors"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gopkg.in/inconshreveable/log15.v2"
)

// defaultStartupTimeout applies when the launch context has no deadline.
const defaultStartupTimeout = 60 * time.Second

// Config is the configuration of the testcontainers launcher.
type Config struct {
	Logger log15.Logger

	// If set, container output is copied here, prefixed with the container ID.
	ContainerOutput io.Writer

	// Number of output lines retained per container for diagnostics.
	OutputLines int
}

var _ sandbox.Launcher = (*Launcher)(nil)

// Launcher implements sandbox.Launcher on testcontainers.
type Launcher struct {
	config *Config
	logger log15.Logger
}

// NewLauncher creates a launcher. The container provider is resolved from the
// environment when the first container is launched.
func NewLauncher(cfg *Config) *Launcher {
	if cfg == nil {
		cfg = new(Config)
	}
	l := &Launcher{config: cfg, logger: cfg.Logger}
	if l.logger == nil {
		l.logger = log15.Root()
	}
	return l
}

// Launch starts a container and waits for the ready pattern in its logs.
func (l *Launcher) Launch(ctx context.Context, opt sandbox.LaunchOptions) (sandbox.Process, error) {
	timeout := defaultStartupTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	var tee io.Writer
	if l.config.ContainerOutput != nil {
		tee = sandbox.PrefixWriter(l.config.ContainerOutput, "[anvil] ")
	}
	watcher := sandbox.NewLineWatcher(opt.ReadyPattern, l.config.OutputLines, tee)

	port := nat.Port(fmt.Sprintf("%d/tcp", opt.ExposedPort))
	req := testcontainers.ContainerRequest{
		Image:        opt.Image,
		Env:          opt.Env,
		Entrypoint:   opt.Entrypoint,
		ExposedPorts: []string{string(port)},
		WaitingFor:   wait.ForLog(opt.ReadyPattern.String()).AsRegexp().WithStartupTimeout(timeout),
		LogConsumerCfg: &testcontainers.LogConsumerConfig{
			Consumers: []testcontainers.LogConsumer{&logConsumer{w: watcher}},
		},
	}
	startTime := time.Now()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
		Logger:           &tcLogger{l.logger},
	})
	if err != nil {
		return nil, l.launchFailure(c, watcher, err)
	}
	id := shortID(c.GetContainerID())
	l.logger.Debug("container online", "image", opt.Image, "container", id, "time", time.Since(startTime))
	return &process{c: c, id: id, watcher: watcher}, nil
}

// launchFailure classifies a failed start and removes the container.
func (l *Launcher) launchFailure(c testcontainers.Container, watcher *sandbox.LineWatcher, err error) error {
	lerr := &sandbox.LaunchError{Err: fmt.Errorf("%w: %v", sandbox.ErrNotReady, err)}
	if c == nil {
		lerr.Err = errors.Wrap(err, "can't create container")
		return lerr
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	lerr.ID = shortID(c.GetContainerID())
	if state, serr := c.State(ctx); serr == nil && !state.Running {
		lerr.Err = fmt.Errorf("%w: exit code %d", sandbox.ErrExited, state.ExitCode)
	}
	if len(watcher.Lines()) == 0 {
		if logs, lerr2 := c.Logs(ctx); lerr2 == nil {
			io.Copy(watcher, logs)
			logs.Close()
		}
	}
	watcher.Close()
	lerr.Output = watcher.Lines()

	if terr := c.Terminate(ctx); terr != nil {
		l.logger.Error("can't remove container", "container", lerr.ID, "err", terr)
	}
	return lerr
}

type process struct {
	c       testcontainers.Container
	id      string
	watcher *sandbox.LineWatcher

	stopOnce sync.Once
	stopErr  error
}

func (p *process) ID() string { return p.id }

func (p *process) Host(ctx context.Context) (string, error) {
	return p.c.Host(ctx)
}

func (p *process) MappedPort(ctx context.Context, port int) (int, error) {
	mapped, err := p.c.MappedPort(ctx, nat.Port(fmt.Sprintf("%d/tcp", port)))
	if err != nil {
		return 0, err
	}
	return mapped.Int(), nil
}

func (p *process) Output() []string {
	return p.watcher.Lines()
}

func (p *process) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() {
		p.stopErr = p.c.Terminate(ctx)
		p.watcher.Close()
	})
	return p.stopErr
}

// logConsumer feeds container logs into a LineWatcher.
type logConsumer struct {
	w *sandbox.LineWatcher
}

func (c *logConsumer) Accept(l testcontainers.Log) {
	c.w.Write(l.Content)
}

// tcLogger routes testcontainers logging to log15.
type tcLogger struct {
	log15.Logger
}

func (l *tcLogger) Printf(format string, v ...interface{}) {
	l.Debug(fmt.Sprintf(format, v...))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
