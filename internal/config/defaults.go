package config

import (
	"time"

	"authflow/pkg/oauth"
)

const (
	// DefaultHTTPTimeout bounds each request to the provider.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultLoadTimeout bounds the reachability check of the authorization page.
	DefaultLoadTimeout = 10 * time.Second

	// DefaultLoginTimeout is how long a login waits for the user.
	DefaultLoginTimeout = 10 * time.Minute
)

// Default returns the configuration used when no config file exists.
func Default() Config {
	return Config{
		Clients: map[string]oauth.Config{},
		Storage: StorageConfig{
			Type:  StorageFile,
			Watch: true,
		},
		Timeouts: TimeoutsConfig{
			HTTP:  DefaultHTTPTimeout,
			Load:  DefaultLoadTimeout,
			Login: DefaultLoginTimeout,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
