package libdocker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	docker "github.com/fsouza/go-dockerclient"
)

// defaultRegistry is the registry key docker uses for images without a registry host.
const defaultRegistry = "https://index.docker.io/v1/"

// Authenticator supplies registry credentials for image pulls.
type Authenticator interface {
	// AuthConfig returns the credentials for a registry.
	AuthConfig(registry string) docker.AuthConfiguration
}

// NullAuthenticator pulls anonymously.
type NullAuthenticator struct{}

func (NullAuthenticator) AuthConfig(registry string) (a docker.AuthConfiguration) { return }

// CredHelperAuthenticator resolves credentials through the credential helpers
// configured in $HOME/.docker/config.json.
type CredHelperAuthenticator struct {
	configs map[string]docker.AuthConfiguration
}

// NewCredHelperAuthenticator queries every configured credential helper once.
func NewCredHelperAuthenticator() (*CredHelperAuthenticator, error) {
	helpers, err := loadCredHelpers()
	if err != nil {
		return nil, err
	}
	a := &CredHelperAuthenticator{configs: make(map[string]docker.AuthConfiguration)}
	for registry := range helpers {
		auth, err := docker.NewAuthConfigurationsFromCredsHelpers(registry)
		if err != nil {
			return nil, err
		}
		a.configs[registry] = *auth
	}
	return a, nil
}

func (a *CredHelperAuthenticator) AuthConfig(registry string) docker.AuthConfiguration {
	return a.configs[registry]
}

func loadCredHelpers() (map[string]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(home, ".docker", "config.json"))
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var cfg struct {
		CredHelpers map[string]string `json:"credHelpers"`
	}
	err = json.Unmarshal(data, &cfg)
	return cfg.CredHelpers, err
}

// imageRegistry returns the registry an image repository is pulled from.
func imageRegistry(repo string) string {
	i := strings.IndexByte(repo, '/')
	if i < 0 {
		return defaultRegistry
	}
	host := repo[:i]
	if host == "localhost" || strings.ContainsAny(host, ".:") {
		return host
	}
	return defaultRegistry
}
