// Package libdocker launches sandboxed nodes through the Docker Engine API.
package libdocker

import (
	"fmt"
	"io"
	"net/url"

	docker "github.com/fsouza/go-dockerclient"
	"gopkg.in/inconshreveable/log15.v2"
)

// Config is the configuration of the docker launcher.
type Config struct {
	Logger log15.Logger

	// This forces pulling of images even when they are present locally.
	PullEnabled bool

	// If set, container output is copied here, prefixed with the container ID.
	ContainerOutput io.Writer

	// Number of output lines retained per container for diagnostics.
	OutputLines int

	// Registry credentials for image pulls. Pulls are anonymous when nil.
	Authenticator Authenticator

	// Host under which mapped ports are reached. It defaults to the docker
	// endpoint's host, or 127.0.0.1 for local sockets.
	Host string
}

// Connect connects to the docker daemon. An empty endpoint selects the daemon
// configured in the environment (DOCKER_HOST and friends).
func Connect(dockerEndpoint string, cfg *Config) (*Launcher, error) {
	if cfg == nil {
		cfg = new(Config)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log15.Root()
	}
	var client *docker.Client
	var err error
	if dockerEndpoint == "" {
		client, err = docker.NewClientFromEnv()
	} else {
		client, err = docker.NewClient(dockerEndpoint)
	}
	if err != nil {
		return nil, fmt.Errorf("can't connect to docker: %v", err)
	}
	env, err := client.Version()
	if err != nil {
		return nil, fmt.Errorf("can't get docker version: %v", err)
	}
	logger.Debug("docker daemon online", "version", env.Get("Version"))
	return NewLauncher(client, cfg), nil
}

// endpointHost returns the host under which ports published by the daemon at the
// given endpoint are reachable.
func endpointHost(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Hostname() == "" {
		return "127.0.0.1"
	}
	switch u.Scheme {
	case "unix", "npipe":
		return "127.0.0.1"
	}
	return u.Hostname()
}
