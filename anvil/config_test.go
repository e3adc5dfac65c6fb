package anvil

import (
	"reflect"
	"testing"
	"time"
)

func TestConfigFork(t *testing.T) {
	cfg := NewConfig().WithForkURL("https://example-rpc").WithForkBlockNumber(12345678)

	env := cfg.Env()
	if env[EnvForkURL] != "https://example-rpc" {
		t.Errorf("%s = %q", EnvForkURL, env[EnvForkURL])
	}
	if env[EnvForkBlockNumber] != "12345678" {
		t.Errorf("%s = %q", EnvForkBlockNumber, env[EnvForkBlockNumber])
	}
	if v, ok := cfg.Flags().Value("--fork-block-number"); !ok || v != "12345678" {
		t.Errorf("--fork-block-number = %q, %v", v, ok)
	}
	if v, ok := cfg.Flags().Value("--fork-url"); !ok || v != "https://example-rpc" {
		t.Errorf("--fork-url = %q, %v", v, ok)
	}
}

func TestConfigForkOverride(t *testing.T) {
	cfg := NewConfig().WithForkURL("https://a").WithJSONLogs().WithForkURL("https://b")
	if got := cfg.Env()[EnvForkURL]; got != "https://b" {
		t.Fatalf("env fork url %q", got)
	}
	want := []string{"--fork-url", "https://b", "--json"}
	if got := cfg.Flags().Args(); !reflect.DeepEqual(got, want) {
		t.Fatalf("wrong flags %q", got)
	}
}

func TestConfigEntrypoint(t *testing.T) {
	cfg := NewConfig().WithVerbosity(VerbosityFive).WithJSONLogs().WithRandomMnemonic()
	want := []string{
		"anvil", "--block-time", "1", "--auto-impersonate",
		"-vvvvv", "--json", "--mnemonic-random",
		"--host", "0.0.0.0",
	}
	if got := cfg.Entrypoint(); !reflect.DeepEqual(got, want) {
		t.Fatalf("wrong entrypoint:\n got %q\nwant %q", got, want)
	}
	// Building the entrypoint twice must not add the host flag twice.
	if got := cfg.Entrypoint(); !reflect.DeepEqual(got, want) {
		t.Fatalf("entrypoint changed on second call: %q", got)
	}
}

func TestConfigHostFlagOverride(t *testing.T) {
	cfg := NewConfig().WithFlag("--host", "127.0.0.1")
	got := cfg.Entrypoint()
	if got[len(got)-2] != "--host" || got[len(got)-1] != "0.0.0.0" || len(got) != 6 {
		t.Fatalf("host flag not forced to all interfaces: %q", got)
	}
}

func TestConfigValueSemantics(t *testing.T) {
	base := NewConfig().WithChainID(1)
	a := base.WithAccounts(3).WithEnv("A", "1")
	b := base.WithAccounts(5)

	if base.Flags().Has("--accounts") {
		t.Fatalf("derived config mutated base: %q", base.Flags().Args())
	}
	if _, ok := base.Env()["A"]; ok {
		t.Fatal("derived env mutated base")
	}
	if v, _ := a.Flags().Value("--accounts"); v != "3" {
		t.Fatalf("a: --accounts = %q", v)
	}
	if v, _ := b.Flags().Value("--accounts"); v != "5" {
		t.Fatalf("b: --accounts = %q", v)
	}
	// Mutating returned copies must not affect the config.
	a.Flags().Set("--accounts", "99")
	a.Env()["A"] = "2"
	if v, _ := a.Flags().Value("--accounts"); v != "3" || a.Env()["A"] != "1" {
		t.Fatal("accessor results alias config state")
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	if cfg.Image() != DefaultImage {
		t.Errorf("image %q", cfg.Image())
	}
	if cfg.StartupTimeout() != DefaultStartupTimeout {
		t.Errorf("startup timeout %v", cfg.StartupTimeout())
	}
	if cfg.ReceiptTimeout() != DefaultReceiptTimeout {
		t.Errorf("receipt timeout %v", cfg.ReceiptTimeout())
	}
	if cfg.ReadyPattern() != DefaultReadyPattern {
		t.Errorf("ready pattern %v", cfg.ReadyPattern())
	}
	if !cfg.ReadyPattern().MatchString("Listening on 0.0.0.0:8545") {
		t.Error("default pattern doesn't match the ready line")
	}
	if d := cfg.WithStartupTimeout(time.Second).StartupTimeout(); d != time.Second {
		t.Errorf("startup timeout override %v", d)
	}
}
