package anvil

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

const testProfile = `
image: ghcr.io/foundry-rs/foundry:stable
fork:
  url: https://example-rpc
  block: 12345678
chain-id: 10
accounts: 3
verbosity: 2
json-logs: true
flags:
  --gas-limit: "30000000"
switches: [--steps-tracing]
env:
  RUST_LOG: info
startup-timeout: 90s
receipt-timeout: 5s
`

func writeProfile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "node.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProfileConfig(t *testing.T) {
	p, err := LoadProfile(writeProfile(t, testProfile))
	if err != nil {
		t.Fatal(err)
	}
	cfg := p.Config(NewConfig())

	if cfg.Image() != "ghcr.io/foundry-rs/foundry:stable" {
		t.Errorf("image %q", cfg.Image())
	}
	wantFlags := []string{
		"--fork-url", "https://example-rpc",
		"--fork-block-number", "12345678",
		"--chain-id", "10",
		"--accounts", "3",
		"-vv",
		"--json",
		"--gas-limit", "30000000",
		"--steps-tracing",
	}
	if got := cfg.Flags().Args(); !reflect.DeepEqual(got, wantFlags) {
		t.Errorf("wrong flags:\n got %q\nwant %q", got, wantFlags)
	}
	wantEnv := map[string]string{
		EnvForkURL:         "https://example-rpc",
		EnvForkBlockNumber: "12345678",
		"RUST_LOG":         "info",
	}
	if got := cfg.Env(); !reflect.DeepEqual(got, wantEnv) {
		t.Errorf("wrong env %v", got)
	}
	if cfg.StartupTimeout() != 90*time.Second || cfg.ReceiptTimeout() != 5*time.Second {
		t.Errorf("wrong timeouts %v %v", cfg.StartupTimeout(), cfg.ReceiptTimeout())
	}
}

func TestProfileKeepsBase(t *testing.T) {
	p, err := LoadProfile(writeProfile(t, "accounts: 2\n"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := p.Config(NewConfig().WithImage("local/anvil").WithRandomMnemonic())
	if cfg.Image() != "local/anvil" {
		t.Errorf("image %q", cfg.Image())
	}
	want := []string{"--mnemonic-random", "--accounts", "2"}
	if got := cfg.Flags().Args(); !reflect.DeepEqual(got, want) {
		t.Errorf("wrong flags %q", got)
	}
}

func TestProfileInvalid(t *testing.T) {
	for _, content := range []string{
		"verbosity: 6\n",
		"ready-pattern: \"(\"\n",
		"accounts: [1]\n",
	} {
		if _, err := LoadProfile(writeProfile(t, content)); err == nil {
			t.Errorf("profile %q accepted", content)
		}
	}
}
