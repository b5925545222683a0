package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"authflow/pkg/logging"
	"authflow/pkg/oauth"
)

const (
	userConfigDir  = ".config/authflow"
	configFileName = "config.yaml"
)

var (
	// ErrNoClient is returned when no client was named and none is implied.
	ErrNoClient = errors.New("no client selected: pass --client or set defaultClient")

	// ErrUnknownClient is returned for a client name missing from the configuration.
	ErrUnknownClient = errors.New("unknown client")
)

// osUserHomeDir is replaced in tests.
var osUserHomeDir = os.UserHomeDir

// DefaultConfigDir returns ~/.config/authflow.
func DefaultConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// DefaultConfigPath returns ~/.config/authflow/config.yaml.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Load reads the configuration file at path, or the default path when path
// is empty. A missing file yields the defaults. Values in the file override
// the defaults; the result is validated.
func Load(path string) (Config, error) {
	if path == "" {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return Config{}, err
		}
	}

	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", path)
			return config, nil
		}
		return Config{}, fmt.Errorf("error reading config from %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		// config malformed
		return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	if config.Clients == nil {
		config.Clients = map[string]oauth.Config{}
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}

	logging.Info("ConfigLoader", "Loaded configuration from %s", path)
	return config, nil
}

// ClientName resolves name to a configured client name. An empty name
// selects the default client, or the only client when exactly one is
// configured.
func (c Config) ClientName(name string) (string, error) {
	if name == "" {
		name = c.DefaultClient
	}
	if name == "" {
		if len(c.Clients) != 1 {
			return "", ErrNoClient
		}
		for only := range c.Clients {
			name = only
		}
	}

	if _, ok := c.Clients[name]; !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownClient, name)
	}
	return name, nil
}

// Client returns the registration selected by name, see ClientName.
func (c Config) Client(name string) (oauth.Config, error) {
	name, err := c.ClientName(name)
	if err != nil {
		return oauth.Config{}, err
	}
	return c.Clients[name], nil
}
