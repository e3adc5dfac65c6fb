package anvil

import (
	"regexp"
	"strconv"
	"time"

	"gopkg.in/inconshreveable/log15.v2"
)

const (
	// DefaultImage is the container image used when none is configured.
	DefaultImage = "hellaweb3/foundry-anvil:1.6"

	// RPCPort is the port the node listens on inside the container.
	RPCPort = 8545

	DefaultStartupTimeout = 60 * time.Second
	DefaultReceiptTimeout = 30 * time.Second

	// Environment variables read by the node as alternatives to the fork flags.
	EnvForkURL         = "ANVIL_FORK_URL"
	EnvForkBlockNumber = "ANVIL_FORK_BLOCK_NUMBER"
)

// baseEntrypoint is the fixed head of the node command line.
var baseEntrypoint = []string{"anvil", "--block-time", "1", "--auto-impersonate"}

// DefaultReadyPattern matches the line the node prints once it accepts connections.
var DefaultReadyPattern = regexp.MustCompile(`Listening on 0\.0\.0\.0:8545`)

// LogVerbosity is a node log verbosity flag.
type LogVerbosity string

const (
	VerbosityOne   LogVerbosity = "-v"
	VerbosityTwo   LogVerbosity = "-vv"
	VerbosityThree LogVerbosity = "-vvv"
	VerbosityFour  LogVerbosity = "-vvvv"
	VerbosityFive  LogVerbosity = "-vvvvv"
)

// Config describes a node. Config values are immutable: every With method returns a
// modified copy and leaves its receiver untouched, so a Config can be shared between
// managers and reused across start attempts.
type Config struct {
	image          string
	flags          *Flags
	env            map[string]string
	readyPattern   *regexp.Regexp
	startupTimeout time.Duration
	receiptTimeout time.Duration
	logger         log15.Logger
}

// NewConfig returns the default node configuration.
func NewConfig() Config {
	return Config{}
}

func (c Config) clone() Config {
	if c.flags != nil {
		c.flags = c.flags.Clone()
	} else {
		c.flags = NewFlags()
	}
	env := make(map[string]string, len(c.env))
	for k, v := range c.env {
		env[k] = v
	}
	c.env = env
	return c
}

// WithImage sets the container image.
func (c Config) WithImage(image string) Config {
	c = c.clone()
	c.image = image
	return c
}

// WithFlag sets a node flag that takes a value.
func (c Config) WithFlag(name, value string) Config {
	c = c.clone()
	c.flags.Set(name, value)
	return c
}

// WithPresenceFlag sets a node flag without value.
func (c Config) WithPresenceFlag(name string) Config {
	c = c.clone()
	c.flags.SetPresence(name)
	return c
}

// WithEnv sets an environment variable of the node container.
func (c Config) WithEnv(key, value string) Config {
	c = c.clone()
	c.env[key] = value
	return c
}

// WithRandomMnemonic makes the node derive its dev accounts from a random mnemonic.
func (c Config) WithRandomMnemonic() Config {
	return c.WithPresenceFlag("--mnemonic-random")
}

// WithVerbosity sets the node log verbosity.
func (c Config) WithVerbosity(v LogVerbosity) Config {
	return c.WithPresenceFlag(string(v))
}

// WithJSONLogs switches node logs to JSON.
func (c Config) WithJSONLogs() Config {
	return c.WithPresenceFlag("--json")
}

// WithForkURL forks the chain from the given RPC URL. The URL is passed as flag and
// as environment variable.
func (c Config) WithForkURL(url string) Config {
	return c.WithEnv(EnvForkURL, url).WithFlag("--fork-url", url)
}

// WithForkBlockNumber pins the fork to the given block.
func (c Config) WithForkBlockNumber(n uint64) Config {
	v := strconv.FormatUint(n, 10)
	return c.WithEnv(EnvForkBlockNumber, v).WithFlag("--fork-block-number", v)
}

// WithChainID sets the chain ID of the node.
func (c Config) WithChainID(id uint64) Config {
	return c.WithFlag("--chain-id", strconv.FormatUint(id, 10))
}

// WithAccounts sets the number of pre-funded dev accounts.
func (c Config) WithAccounts(n int) Config {
	return c.WithFlag("--accounts", strconv.Itoa(n))
}

// WithBalance sets the balance of every dev account, in ether.
func (c Config) WithBalance(ether uint64) Config {
	return c.WithFlag("--balance", strconv.FormatUint(ether, 10))
}

// WithReadyPattern replaces the output pattern that signals readiness.
func (c Config) WithReadyPattern(re *regexp.Regexp) Config {
	c = c.clone()
	c.readyPattern = re
	return c
}

// WithStartupTimeout bounds the wait for readiness.
func (c Config) WithStartupTimeout(d time.Duration) Config {
	c = c.clone()
	c.startupTimeout = d
	return c
}

// WithReceiptTimeout bounds AwaitReceipt on the node's client.
func (c Config) WithReceiptTimeout(d time.Duration) Config {
	c = c.clone()
	c.receiptTimeout = d
	return c
}

// WithLogger sets the logger of the manager and its client.
func (c Config) WithLogger(l log15.Logger) Config {
	c = c.clone()
	c.logger = l
	return c
}

// Image returns the container image.
func (c Config) Image() string {
	if c.image == "" {
		return DefaultImage
	}
	return c.image
}

// Flags returns a copy of the configured flags.
func (c Config) Flags() *Flags {
	if c.flags == nil {
		return NewFlags()
	}
	return c.flags.Clone()
}

// Env returns a copy of the container environment.
func (c Config) Env() map[string]string {
	return c.clone().env
}

// Entrypoint returns the complete node command line, including the host binding.
func (c Config) Entrypoint() []string {
	f := c.Flags()
	f.Set("--host", "0.0.0.0")
	return append(append([]string(nil), baseEntrypoint...), f.Args()...)
}

// ReadyPattern returns the readiness pattern.
func (c Config) ReadyPattern() *regexp.Regexp {
	if c.readyPattern == nil {
		return DefaultReadyPattern
	}
	return c.readyPattern
}

// StartupTimeout returns the readiness bound.
func (c Config) StartupTimeout() time.Duration {
	if c.startupTimeout <= 0 {
		return DefaultStartupTimeout
	}
	return c.startupTimeout
}

// ReceiptTimeout returns the receipt wait bound.
func (c Config) ReceiptTimeout() time.Duration {
	if c.receiptTimeout <= 0 {
		return DefaultReceiptTimeout
	}
	return c.receiptTimeout
}

// Logger returns the configured logger or the root logger.
func (c Config) Logger() log15.Logger {
	if c.logger == nil {
		return log15.Root()
	}
	return c.logger
}
