package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authflow/pkg/oauth"
)

func validClient() oauth.Config {
	return oauth.Config{
		ClientID:              "app",
		AuthorizationEndpoint: "https://idp.example.com/authorize",
		AccessTokenEndpoint:   "https://idp.example.com/token",
		RedirectURL:           "http://127.0.0.1:8765/callback",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		fields []string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name: "redis without URL",
			mutate: func(c *Config) {
				c.Storage.Type = StorageRedis
			},
			fields: []string{"storage.redisURL"},
		},
		{
			name: "negative timeout",
			mutate: func(c *Config) {
				c.Timeouts.Load = -time.Second
			},
			fields: []string{"timeouts.load"},
		},
		{
			name: "unknown log level",
			mutate: func(c *Config) {
				c.Logging.Level = "trace"
			},
			fields: []string{"logging.level"},
		},
		{
			name: "invalid client",
			mutate: func(c *Config) {
				client := validClient()
				client.RedirectURL = ""
				c.Clients["broken"] = client
			},
			fields: []string{"clients.broken"},
		},
		{
			name: "unknown default client",
			mutate: func(c *Config) {
				c.Clients["app"] = validClient()
				c.DefaultClient = "other"
			},
			fields: []string{"defaultClient"},
		},
		{
			name: "relative trace endpoint",
			mutate: func(c *Config) {
				c.Telemetry.TraceEndpoint = "/v1/traces"
			},
			fields: []string{"telemetry.traceEndpoint"},
		},
		{
			name: "several problems",
			mutate: func(c *Config) {
				c.Storage.Type = "s3"
				c.Logging.Format = "xml"
			},
			fields: []string{"storage.type", "logging.format"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}

			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			var fields []string
			for _, e := range verrs {
				fields = append(fields, e.Field)
			}
			assert.ElementsMatch(t, tt.fields, fields)
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	var errs ValidationErrors
	assert.Equal(t, "no validation errors", errs.Error())

	errs.Add("storage.type", "must be one of: memory, file, redis", "s3")
	assert.Equal(t, "field 'storage.type': must be one of: memory, file, redis", errs.Error())

	errs.Add("", "something else")
	assert.Equal(t, "validation failed: field 'storage.type': must be one of: memory, file, redis; something else", errs.Error())
}
