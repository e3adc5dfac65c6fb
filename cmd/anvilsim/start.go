package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hellaweb3/anvilsim/anvil"
	"github.com/hellaweb3/anvilsim/sandbox"
	"github.com/spf13/cobra"
	"gopkg.in/inconshreveable/log15.v2"
)

const stopTimeout = 30 * time.Second

// newLauncher creates the launcher of the selected backend.
var newLauncher = func(backend, endpoint string, opt *anvil.LauncherOptions) (sandbox.Launcher, error) {
	switch backend {
	case "docker":
		return anvil.NewDockerLauncher(endpoint, opt)
	case "testcontainers":
		return anvil.NewTestcontainersLauncher(opt), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

type startOptions struct {
	backend        string
	dockerEndpoint string
	profile        string
	image          string
	forkURL        string
	forkBlock      uint64
	nodeOutput     bool
	dockerAuth     bool
}

func newStartCommand() *cobra.Command {
	var opt startOptions
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a node and keep it running until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, &opt)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opt.backend, "backend", "docker", "Container backend (docker or testcontainers)")
	flags.StringVar(&opt.dockerEndpoint, "docker-endpoint", "", "Endpoint of the docker daemon, defaults to the environment")
	flags.StringVar(&opt.profile, "profile", "", "YAML node profile")
	flags.StringVar(&opt.image, "image", "", "Node container image")
	flags.StringVar(&opt.forkURL, "fork-url", "", "RPC URL of the chain to fork")
	flags.Uint64Var(&opt.forkBlock, "fork-block", 0, "Block number to fork at")
	flags.BoolVar(&opt.nodeOutput, "node-output", false, "Copy node output to stderr")
	flags.BoolVar(&opt.dockerAuth, "docker-auth", false, "Authenticate image pulls with the docker credential helpers")
	return cmd
}

func (opt *startOptions) config() (anvil.Config, error) {
	cfg := anvil.NewConfig().WithLogger(log15.Root())
	if opt.profile != "" {
		p, err := anvil.LoadProfile(opt.profile)
		if err != nil {
			return cfg, err
		}
		cfg = p.Config(cfg)
	}
	if opt.image != "" {
		cfg = cfg.WithImage(opt.image)
	}
	if opt.forkURL != "" {
		cfg = cfg.WithForkURL(opt.forkURL)
	}
	if opt.forkBlock != 0 {
		cfg = cfg.WithForkBlockNumber(opt.forkBlock)
	}
	return cfg, nil
}

func runStart(cmd *cobra.Command, opt *startOptions) error {
	cfg, err := opt.config()
	if err != nil {
		return err
	}
	lopt := &anvil.LauncherOptions{Logger: log15.Root(), CredentialHelpers: opt.dockerAuth}
	if opt.nodeOutput {
		lopt.Output = os.Stderr
	}
	launcher, err := newLauncher(opt.backend, opt.dockerEndpoint, lopt)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := anvil.NewManager(launcher, cfg)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := m.Stop(stopCtx); err != nil {
			log15.Error("failed to stop node", "err", err)
		}
	}()
	node, err := m.Start(ctx)
	if err != nil {
		return err
	}

	addrs, err := node.Addresses(ctx)
	if err != nil {
		return err
	}
	balances, err := node.Client().Balances(ctx, addrs)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Accounts:")
	for i, addr := range addrs {
		fmt.Fprintf(out, "  (%d) %s %s ETH\n", i, addr.Hex(), anvil.FormatEther(balances[i]))
	}
	fmt.Fprintln(out, "RPC endpoint:", node.RPCURL())

	<-ctx.Done()
	log15.Info("stopping node", "url", node.RPCURL())
	return nil
}
