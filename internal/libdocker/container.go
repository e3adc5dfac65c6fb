package libdocker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	docker "github.com/fsouza/go-dockerclient"
	"github.com/hellaweb3/anvilsim/sandbox"
	"github.com/pkg/errors"
	"gopkg.in/inconshreveable/log15.v2"
)

var _ sandbox.Launcher = (*Launcher)(nil)

// Launcher implements sandbox.Launcher with docker containers.
type Launcher struct {
	client *docker.Client
	config *Config
	logger log15.Logger
	host   string
	auth   Authenticator
}

// NewLauncher creates a launcher on an existing docker client.
func NewLauncher(c *docker.Client, cfg *Config) *Launcher {
	if cfg == nil {
		cfg = new(Config)
	}
	l := &Launcher{client: c, config: cfg, logger: cfg.Logger, host: cfg.Host, auth: cfg.Authenticator}
	if l.logger == nil {
		l.logger = log15.Root()
	}
	if l.auth == nil {
		l.auth = NullAuthenticator{}
	}
	if l.host == "" {
		l.host = endpointHost(c.Endpoint())
	}
	return l
}

// Launch creates a container, starts it and waits for the ready pattern to appear in
// its output. The container is removed if it doesn't become ready.
func (l *Launcher) Launch(ctx context.Context, opt sandbox.LaunchOptions) (sandbox.Process, error) {
	if err := l.ensureImage(ctx, opt.Image); err != nil {
		return nil, &sandbox.LaunchError{Err: err}
	}
	port := docker.Port(fmt.Sprintf("%d/tcp", opt.ExposedPort))
	c, err := l.client.CreateContainer(docker.CreateContainerOptions{
		Context: ctx,
		Config: &docker.Config{
			Image:        opt.Image,
			Env:          opt.EnvList(),
			Entrypoint:   opt.Entrypoint,
			ExposedPorts: map[docker.Port]struct{}{port: {}},
		},
		HostConfig: &docker.HostConfig{
			PortBindings: map[docker.Port][]docker.PortBinding{port: {{HostIP: "0.0.0.0"}}},
		},
	})
	if err != nil {
		return nil, &sandbox.LaunchError{Err: errors.Wrap(err, "can't create container")}
	}
	id := c.ID[:8]
	logger := l.logger.New("image", opt.Image, "container", id)
	logger.Debug("container created")

	var tee = l.config.ContainerOutput
	if tee != nil {
		tee = sandbox.PrefixWriter(tee, fmt.Sprintf("[%s] ", id))
	}
	watcher := sandbox.NewLineWatcher(opt.ReadyPattern, l.config.OutputLines, tee)

	startTime := time.Now()
	waiter, err := l.runContainer(ctx, logger, c.ID, watcher)
	if err != nil {
		l.removeContainer(c.ID)
		return nil, &sandbox.LaunchError{ID: id, Output: watcher.Lines(), Err: errors.Wrap(err, "container did not start")}
	}

	// This goroutine waits for the container to end and flushes the output.
	containerExit := make(chan struct{})
	go func() {
		defer close(containerExit)
		err := waiter.Wait()
		waiter.Close()
		watcher.Close()
		logger.Debug("container exited", "err", err)
	}()

	var checkErr error
	select {
	case <-watcher.Ready():
		logger.Debug("container online", "time", time.Since(startTime))
	case <-containerExit:
		checkErr = sandbox.ErrExited
	case <-ctx.Done():
		checkErr = fmt.Errorf("%w: %v", sandbox.ErrNotReady, ctx.Err())
	}
	if checkErr != nil {
		l.removeContainer(c.ID)
		<-containerExit
		return nil, &sandbox.LaunchError{ID: id, Output: watcher.Lines(), Err: checkErr}
	}
	return &process{launcher: l, id: c.ID, port: port, watcher: watcher, exited: containerExit}, nil
}

// ensureImage pulls the image unless it is present locally.
func (l *Launcher) ensureImage(ctx context.Context, image string) error {
	if !l.config.PullEnabled {
		_, err := l.client.InspectImage(image)
		if err == nil {
			return nil
		}
		if err != docker.ErrNoSuchImage {
			return errors.Wrapf(err, "can't inspect image %s", image)
		}
	}
	repo, tag := docker.ParseRepositoryTag(image)
	if tag == "" {
		tag = "latest"
	}
	registry := imageRegistry(repo)
	l.logger.Info("pulling image", "image", image, "registry", registry)
	opts := docker.PullImageOptions{Context: ctx, Repository: repo, Tag: tag}
	if err := l.client.PullImage(opts, l.auth.AuthConfig(registry)); err != nil {
		return errors.Wrapf(err, "can't pull image %s", image)
	}
	return nil
}

// runContainer attaches to the output streams of an existing container, then
// starts executing the container and returns the CloseWaiter to allow the caller
// to wait for termination.
func (l *Launcher) runContainer(ctx context.Context, logger log15.Logger, id string, w *sandbox.LineWatcher) (docker.CloseWaiter, error) {
	logger.Debug("attaching to container")
	waiter, err := l.client.AttachToContainerNonBlocking(docker.AttachToContainerOptions{
		Container:    id,
		OutputStream: w,
		ErrorStream:  w,
		Stream:       true,
		Stdout:       true,
		Stderr:       true,
	})
	if err != nil {
		logger.Error("failed to attach to container", "err", err)
		return nil, err
	}

	logger.Debug("starting container")
	if err := l.client.StartContainerWithContext(id, nil, ctx); err != nil {
		waiter.Close()
		logger.Error("failed to start container", "err", err)
		return nil, err
	}
	return waiter, nil
}

// removeContainer removes the given container. If the container is running, it is stopped.
func (l *Launcher) removeContainer(id string) error {
	l.logger.Debug("removing container", "container", id[:8])
	err := l.client.RemoveContainer(docker.RemoveContainerOptions{ID: id, Force: true, RemoveVolumes: true})
	if err != nil {
		l.logger.Error("can't remove container", "container", id[:8], "err", err)
	}
	return err
}

type process struct {
	launcher *Launcher
	id       string
	port     docker.Port
	watcher  *sandbox.LineWatcher
	exited   <-chan struct{}

	stopOnce sync.Once
	stopErr  error
}

func (p *process) ID() string { return p.id[:8] }

func (p *process) Host(ctx context.Context) (string, error) {
	return p.launcher.host, nil
}

func (p *process) MappedPort(ctx context.Context, port int) (int, error) {
	c, err := p.launcher.client.InspectContainerWithOptions(docker.InspectContainerOptions{Context: ctx, ID: p.id})
	if err != nil {
		return 0, errors.Wrapf(err, "can't inspect container %s", p.ID())
	}
	key := docker.Port(fmt.Sprintf("%d/tcp", port))
	if c.NetworkSettings == nil {
		return 0, fmt.Errorf("container %s has no network settings", p.ID())
	}
	for _, binding := range c.NetworkSettings.Ports[key] {
		if binding.HostPort == "" {
			continue
		}
		hostPort, err := strconv.Atoi(binding.HostPort)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid host port %q", binding.HostPort)
		}
		return hostPort, nil
	}
	return 0, fmt.Errorf("port %s of container %s is not mapped", key, p.ID())
}

func (p *process) Output() []string {
	return p.watcher.Lines()
}

// Stop removes the container and waits for its output stream to end.
func (p *process) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() {
		p.stopErr = p.launcher.removeContainer(p.id)
		if p.stopErr != nil {
			return
		}
		select {
		case <-p.exited:
		case <-ctx.Done():
			p.stopErr = ctx.Err()
		}
	})
	return p.stopErr
}
