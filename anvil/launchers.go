package anvil

import (
	"context"
	"io"

	"github.com/hellaweb3/anvilsim/internal/libdocker"
	"github.com/hellaweb3/anvilsim/internal/libtc"
	"github.com/hellaweb3/anvilsim/sandbox"
	"gopkg.in/inconshreveable/log15.v2"
)

// LauncherOptions configures the container launchers.
type LauncherOptions struct {
	Logger log15.Logger
	// If set, node output is copied here.
	Output io.Writer
	// Number of output lines kept for startup diagnostics.
	OutputLines int
	// Use the docker credential helpers for image pulls. Docker launcher only.
	CredentialHelpers bool
}

// NewDockerLauncher connects to the docker daemon at endpoint, or the one configured
// in the environment when endpoint is empty.
func NewDockerLauncher(endpoint string, opt *LauncherOptions) (sandbox.Launcher, error) {
	if opt == nil {
		opt = new(LauncherOptions)
	}
	cfg := &libdocker.Config{
		Logger:          opt.Logger,
		ContainerOutput: opt.Output,
		OutputLines:     opt.OutputLines,
	}
	if opt.CredentialHelpers {
		auth, err := libdocker.NewCredHelperAuthenticator()
		if err != nil {
			return nil, err
		}
		cfg.Authenticator = auth
	}
	return libdocker.Connect(endpoint, cfg)
}

// NewTestcontainersLauncher returns a launcher backed by testcontainers.
func NewTestcontainersLauncher(opt *LauncherOptions) sandbox.Launcher {
	if opt == nil {
		opt = new(LauncherOptions)
	}
	return libtc.NewLauncher(&libtc.Config{
		Logger:          opt.Logger,
		ContainerOutput: opt.Output,
		OutputLines:     opt.OutputLines,
	})
}

// Start launches a node with testcontainers. The returned manager stops it.
func Start(ctx context.Context, cfg Config) (*Manager, *Node, error) {
	m := NewManager(NewTestcontainersLauncher(&LauncherOptions{Logger: cfg.Logger()}), cfg)
	node, err := m.Start(ctx)
	if err != nil {
		return nil, nil, err
	}
	return m, node, nil
}
