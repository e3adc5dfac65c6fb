package anvil

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is a node configuration stored as YAML.
//
//	image: hellaweb3/foundry-anvil:1.6
//	fork:
//	  url: https://eth.example.org
//	  block: 19000000
//	chain-id: 31337
//	accounts: 4
//	verbosity: 3
//	json-logs: true
//	flags:
//	  --gas-limit: "30000000"
//	switches: [--steps-tracing]
//	startup-timeout: 90s
type Profile struct {
	Image          string            `yaml:"image"`
	Fork           ForkProfile       `yaml:"fork"`
	ChainID        uint64            `yaml:"chain-id"`
	Accounts       int               `yaml:"accounts"`
	Balance        uint64            `yaml:"balance"`
	Verbosity      int               `yaml:"verbosity"`
	JSONLogs       bool              `yaml:"json-logs"`
	RandomMnemonic bool              `yaml:"random-mnemonic"`
	Flags          map[string]string `yaml:"flags"`
	Switches       []string          `yaml:"switches"`
	Env            map[string]string `yaml:"env"`
	ReadyPattern   string            `yaml:"ready-pattern"`
	StartupTimeout time.Duration     `yaml:"startup-timeout"`
	ReceiptTimeout time.Duration     `yaml:"receipt-timeout"`
}

// ForkProfile configures chain forking.
type ForkProfile struct {
	URL   string `yaml:"url"`
	Block uint64 `yaml:"block"`
}

var verbosities = []LogVerbosity{VerbosityOne, VerbosityTwo, VerbosityThree, VerbosityFour, VerbosityFive}

// LoadProfile reads a profile from a YAML file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p := new(Profile)
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %v", path, err)
	}
	if p.Verbosity < 0 || p.Verbosity > len(verbosities) {
		return nil, fmt.Errorf("invalid profile %s: verbosity must be between 0 and %d", path, len(verbosities))
	}
	if p.ReadyPattern != "" {
		if _, err := regexp.Compile(p.ReadyPattern); err != nil {
			return nil, fmt.Errorf("invalid profile %s: ready-pattern: %v", path, err)
		}
	}
	return p, nil
}

// Config applies the profile on top of base.
func (p *Profile) Config(base Config) Config {
	cfg := base
	if p.Image != "" {
		cfg = cfg.WithImage(p.Image)
	}
	if p.Fork.URL != "" {
		cfg = cfg.WithForkURL(p.Fork.URL)
	}
	if p.Fork.Block != 0 {
		cfg = cfg.WithForkBlockNumber(p.Fork.Block)
	}
	if p.ChainID != 0 {
		cfg = cfg.WithChainID(p.ChainID)
	}
	if p.Accounts != 0 {
		cfg = cfg.WithAccounts(p.Accounts)
	}
	if p.Balance != 0 {
		cfg = cfg.WithBalance(p.Balance)
	}
	if p.Verbosity > 0 {
		cfg = cfg.WithVerbosity(verbosities[p.Verbosity-1])
	}
	if p.JSONLogs {
		cfg = cfg.WithJSONLogs()
	}
	if p.RandomMnemonic {
		cfg = cfg.WithRandomMnemonic()
	}
	for _, name := range sortedKeys(p.Flags) {
		cfg = cfg.WithFlag(name, p.Flags[name])
	}
	for _, name := range p.Switches {
		cfg = cfg.WithPresenceFlag(name)
	}
	for _, key := range sortedKeys(p.Env) {
		cfg = cfg.WithEnv(key, p.Env[key])
	}
	if p.ReadyPattern != "" {
		cfg = cfg.WithReadyPattern(regexp.MustCompile(p.ReadyPattern))
	}
	if p.StartupTimeout != 0 {
		cfg = cfg.WithStartupTimeout(p.StartupTimeout)
	}
	if p.ReceiptTimeout != 0 {
		cfg = cfg.WithReceiptTimeout(p.ReceiptTimeout)
	}
	return cfg
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
