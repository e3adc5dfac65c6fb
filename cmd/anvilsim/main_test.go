package main

import (
	"bytes"
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hellaweb3/anvilsim/anvil"
	"github.com/hellaweb3/anvilsim/internal/fakes"
	"github.com/hellaweb3/anvilsim/sandbox"
)

// syncBuffer is a bytes.Buffer that calls onWrite after every write.
type syncBuffer struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	onWrite func(string)
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	n, err := b.buf.Write(p)
	s := b.buf.String()
	b.mu.Unlock()
	if b.onWrite != nil {
		b.onWrite(s)
	}
	return n, err
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func runCommand(ctx context.Context, out *syncBuffer, args ...string) error {
	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	return root.ExecuteContext(ctx)
}

func TestBlockNumber(t *testing.T) {
	chain := fakes.NewChain(2)
	srv := chain.NewHTTPServer()
	defer srv.Close()

	out := new(syncBuffer)
	if err := runCommand(context.Background(), out, "blocknumber", "--rpc", srv.URL, "--timeout", "5s"); err != nil {
		t.Fatal(err)
	}
	text := out.String()
	for _, want := range []string{"Block number: 0", `"number": "0x0"`, "New block number: 1", `"number": "0x1"`} {
		if !strings.Contains(text, want) {
			t.Errorf("output lacks %q:\n%s", want, text)
		}
	}
	if chain.Head() != 1 {
		t.Fatalf("head %d, want 1", chain.Head())
	}
	if i, j := strings.Index(text, `"number": "0x0"`), strings.Index(text, "New block:"); i > j {
		t.Errorf("block 0 header not printed before the new block:\n%s", text)
	}
}

func TestBlockNumberUnreachable(t *testing.T) {
	out := new(syncBuffer)
	err := runCommand(context.Background(), out, "blocknumber", "--rpc", "http://127.0.0.1:1")
	if err == nil {
		t.Fatal("no error for unreachable node")
	}
}

func TestStart(t *testing.T) {
	chain := fakes.NewChain(2)
	srv := chain.NewHTTPServer()
	defer srv.Close()
	u, _ := url.Parse(srv.URL)
	port, _ := strconv.Atoi(u.Port())

	launcher := fakes.NewLauncher(&fakes.LauncherHooks{
		MappedPort: func(id string, internal int) (int, error) { return port, nil },
	})
	defer func(orig func(string, string, *anvil.LauncherOptions) (sandbox.Launcher, error)) {
		newLauncher = orig
	}(newLauncher)
	var backend string
	newLauncher = func(b, endpoint string, opt *anvil.LauncherOptions) (sandbox.Launcher, error) {
		backend = b
		return launcher, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out := &syncBuffer{onWrite: func(s string) {
		if strings.Contains(s, "RPC endpoint:") {
			cancel()
		}
	}}
	args := []string{"start", "--backend", "testcontainers", "--fork-url", "https://example-rpc", "--fork-block", "12345678"}
	if err := runCommand(ctx, out, args...); err != nil {
		t.Fatal(err)
	}

	if backend != "testcontainers" {
		t.Errorf("backend %q", backend)
	}
	launched := launcher.Launched()
	if len(launched) != 1 {
		t.Fatalf("%d launches", len(launched))
	}
	if launched[0].Env[anvil.EnvForkBlockNumber] != "12345678" {
		t.Errorf("wrong env %v", launched[0].Env)
	}
	text := out.String()
	for _, addr := range chain.Accounts() {
		if !strings.Contains(text, addr.Hex()+" 10000 ETH") {
			t.Errorf("output lacks account %s:\n%s", addr.Hex(), text)
		}
	}
	if !strings.Contains(text, "RPC endpoint: http://127.0.0.1:"+u.Port()) {
		t.Errorf("output lacks endpoint:\n%s", text)
	}
	if launcher.Stops() != 1 {
		t.Fatalf("%d stops, want 1", launcher.Stops())
	}
}

func TestStartUnknownBackend(t *testing.T) {
	out := new(syncBuffer)
	if err := runCommand(context.Background(), out, "start", "--backend", "podman"); err == nil {
		t.Fatal("unknown backend accepted")
	}
}
