package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"authflow/internal/config"
	"authflow/internal/flow"
	"authflow/internal/lifecycle"
	"authflow/internal/metrics"
	"authflow/internal/session"
	"authflow/internal/telemetry"
	"authflow/internal/transport"
	"authflow/internal/useragent"
	"authflow/pkg/logging"
	"authflow/pkg/oauth"
)

// telemetryFlushTimeout bounds the export of pending spans on exit.
const telemetryFlushTimeout = 5 * time.Second

// runtime holds the collaborators shared by the controllers of one command.
type runtime struct {
	cfg       config.Config
	store     *session.Store
	transport *transport.Client
	lifecycle *lifecycle.Broadcaster
	metrics   *metrics.Metrics
	registry  *prometheus.Registry
	launcher  useragent.Launcher
	closers   []func() error
}

// client is one client registration wired to a controller.
type client struct {
	name    string
	config  oauth.Config
	ctrl    *flow.Controller
	browser *useragent.Browser
}

// newRuntime loads the configuration and opens the session backend.
// Telemetry flags override the configuration file.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if traceEndpoint != "" {
		cfg.Telemetry.TraceEndpoint = traceEndpoint
	}
	if metricsFile != "" {
		cfg.Telemetry.MetricsFile = metricsFile
	}
	return newRuntimeFromConfig(ctx, cfg)
}

func newRuntimeFromConfig(ctx context.Context, cfg config.Config) (*runtime, error) {
	tracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry.TraceEndpoint, GetVersion())
	if err != nil {
		return nil, err
	}

	backend, closeBackend, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		_ = tracing.Shutdown(ctx)
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	transportOpts := []transport.Option{
		transport.WithHTTPClient(&http.Client{Timeout: cfg.Timeouts.HTTP}),
		transport.WithLogger(logging.Logger("Transport")),
		transport.WithMetrics(m),
		transport.WithUserAgent("authflow/" + GetVersion()),
	}
	if tracing != nil {
		transportOpts = append(transportOpts, transport.WithTracerProvider(tracing.TracerProvider()))
	}

	rt := &runtime{
		cfg:       cfg,
		store:     session.NewStore(backend, session.WithLogger(logging.Logger("Session"))),
		transport: transport.NewClient(transportOpts...),
		lifecycle: lifecycle.NewBroadcaster(),
		metrics:   m,
		registry:  registry,
		launcher:  useragent.OpenBrowser,
	}

	// Closers run in reverse order: telemetry is flushed after the
	// controllers and the backend are closed.
	if tracing != nil {
		rt.closers = append(rt.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
			defer cancel()
			return tracing.Shutdown(ctx)
		})
	}
	if path := cfg.Telemetry.MetricsFile; path != "" {
		rt.closers = append(rt.closers, func() error {
			return rt.writeMetrics(path)
		})
	}
	if closeBackend != nil {
		rt.closers = append(rt.closers, closeBackend)
	}
	return rt, nil
}

// writeMetrics writes the collected metrics in the Prometheus text format.
func (rt *runtime) writeMetrics(path string) error {
	if err := prometheus.WriteToTextfile(path, rt.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	logging.Debug("Metrics", "Wrote metrics to %s", path)
	return nil
}

// openBackend creates the session backend selected in the configuration.
// The returned close function may be nil.
func openBackend(ctx context.Context, storage config.StorageConfig) (session.Backend, func() error, error) {
	switch storage.Type {
	case config.StorageMemory:
		return session.NewMemoryBackend(), nil, nil
	case config.StorageFile, "":
		backend, err := session.NewFileBackend(session.FileBackendConfig{
			Dir:    storage.Dir,
			Watch:  storage.Watch,
			Logger: logging.Logger("SessionFile"),
		})
		if err != nil {
			return nil, nil, err
		}
		return backend, backend.Close, nil
	case config.StorageRedis:
		redisClient, err := session.NewRedisClient(ctx, storage.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		var opts []session.RedisBackendOption
		if storage.RedisKeyPrefix != "" {
			opts = append(opts, session.WithKeyPrefix(storage.RedisKeyPrefix))
		}
		return session.NewRedisBackend(redisClient, opts...), redisClient.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage type %q", storage.Type)
	}
}

// client builds the controller of the named client registration.
func (rt *runtime) client(name string) (*client, error) {
	name, err := rt.cfg.ClientName(name)
	if err != nil {
		return nil, err
	}
	registration := rt.cfg.Clients[name]

	browser, err := useragent.NewBrowser(registration.RedirectURL,
		useragent.WithLauncher(rt.launcher),
		useragent.WithLoadTimeout(rt.cfg.Timeouts.Load),
		useragent.WithLogger(logging.Logger("Browser")),
		useragent.WithClientName(name),
	)
	if err != nil {
		return nil, &oauth.ConfigurationError{Field: "RedirectURL", Message: err.Error()}
	}

	ctrl, err := flow.New(registration,
		flow.WithStore(rt.store),
		flow.WithTransport(rt.transport),
		flow.WithUserAgent(browser),
		flow.WithLifecycle(rt.lifecycle),
		flow.WithMetrics(rt.metrics),
		flow.WithLogger(logging.Logger("Flow").With("client", name)),
	)
	if err != nil {
		return nil, fmt.Errorf("client %q: %w", name, err)
	}
	rt.closers = append(rt.closers, ctrl.Close)

	return &client{
		name:    name,
		config:  ctrl.Config(),
		ctrl:    ctrl,
		browser: browser,
	}, nil
}

// Close releases the controllers and the session backend.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// requireSession fails with AuthRequiredError unless c holds a usable or
// refreshable session.
func requireSession(ctx context.Context, c *client) error {
	s, err := c.ctrl.Session(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	if s.IsAuthorized(now) || s.CanRefresh(now) {
		return nil
	}
	return &AuthRequiredError{Client: c.name}
}
