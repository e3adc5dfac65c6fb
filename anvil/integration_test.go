package anvil_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/hellaweb3/anvilsim/anvil"
	"github.com/hellaweb3/anvilsim/sandbox"
)

// integrationLaunchers returns the container backends to test against. The tests
// need a docker daemon and are enabled by setting ANVILSIM_INTEGRATION.
func integrationLaunchers(t *testing.T) map[string]sandbox.Launcher {
	if os.Getenv("ANVILSIM_INTEGRATION") == "" {
		t.Skip("ANVILSIM_INTEGRATION not set")
	}
	docker, err := anvil.NewDockerLauncher("", nil)
	if err != nil {
		t.Skip("docker daemon unavailable:", err)
	}
	return map[string]sandbox.Launcher{
		"docker":         docker,
		"testcontainers": anvil.NewTestcontainersLauncher(nil),
	}
}

func TestIntegrationNode(t *testing.T) {
	for name, launcher := range integrationLaunchers(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
			defer cancel()

			m := anvil.NewManager(launcher, anvil.NewConfig().WithStartupTimeout(2*time.Minute))
			node, err := m.Start(ctx)
			if err != nil {
				t.Fatal("Start failed:", err)
			}
			defer m.Stop(context.Background())
			client := node.Client()

			if _, err := client.BlockNumber(ctx); err != nil {
				t.Fatal("BlockNumber failed:", err)
			}
			addrs, err := node.Addresses(ctx)
			if err != nil {
				t.Fatal("Addresses failed:", err)
			}
			if len(addrs) < 2 {
				t.Fatalf("%d accounts", len(addrs))
			}

			hash, err := client.SendValue(ctx, addrs[0], addrs[1], "1")
			if err != nil {
				t.Fatal("SendValue failed:", err)
			}
			if err := client.Mine(ctx, 1); err != nil {
				t.Fatal("Mine failed:", err)
			}
			receipt, err := client.AwaitReceipt(ctx, hash)
			if err != nil {
				t.Fatal("AwaitReceipt failed:", err)
			}
			if receipt.From != addrs[0] || receipt.To == nil || *receipt.To != addrs[1] {
				t.Fatal("wrong receipt:", spew.Sdump(receipt))
			}

			contractABI, err := anvil.LoadABI("testdata/Answer/Answer.json")
			if err != nil {
				t.Fatal(err)
			}
			code, err := anvil.LoadBytecode("testdata/Answer/Answer.bin")
			if err != nil {
				t.Fatal(err)
			}
			deployed, err := client.DeployContract(ctx, contractABI, code, addrs[0])
			if err != nil {
				t.Fatal("DeployContract failed:", err)
			}
			if !deployed.Succeeded() {
				t.Fatal("deployment failed:", spew.Sdump(deployed))
			}

			if err := m.Stop(ctx); err != nil {
				t.Fatal("Stop failed:", err)
			}
			if m.State() != anvil.StateStopped {
				t.Fatalf("state %v", m.State())
			}
		})
	}
}

func TestIntegrationBadFlag(t *testing.T) {
	for name, launcher := range integrationLaunchers(t) {
		t.Run(name, func(t *testing.T) {
			cfg := anvil.NewConfig().
				WithFlag("--fork-block-number", "not-a-number").
				WithStartupTimeout(2 * time.Minute)
			m := anvil.NewManager(launcher, cfg)
			_, err := m.Start(context.Background())
			if !errors.Is(err, anvil.ErrConfiguration) {
				t.Fatalf("wrong error: %v", err)
			}
			var serr *anvil.StartupError
			if !errors.As(err, &serr) || len(serr.Output) == 0 {
				t.Fatal("startup error lacks node output")
			}
		})
	}
}
