package libdocker

import "testing"

func TestEndpointHost(t *testing.T) {
	tests := map[string]string{
		"":                            "127.0.0.1",
		"unix:///var/run/docker.sock": "127.0.0.1",
		"npipe:////./pipe/docker":     "127.0.0.1",
		"tcp://10.0.0.5:2375":         "10.0.0.5",
		"https://docker.example:2376": "docker.example",
	}
	for endpoint, want := range tests {
		if got := endpointHost(endpoint); got != want {
			t.Errorf("endpointHost(%q) = %q, want %q", endpoint, got, want)
		}
	}
}

func TestImageRegistry(t *testing.T) {
	tests := map[string]string{
		"hellaweb3/foundry-anvil":         defaultRegistry,
		"anvil":                           defaultRegistry,
		"ghcr.io/foundry-rs/foundry":      "ghcr.io",
		"localhost:5000/anvil":            "localhost:5000",
		"localhost/anvil":                 "localhost",
		"registry.example:443/team/anvil": "registry.example:443",
	}
	for repo, want := range tests {
		if got := imageRegistry(repo); got != want {
			t.Errorf("imageRegistry(%q) = %q, want %q", repo, got, want)
		}
	}
}
