// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading, logger setup, cache opening and wiring of
// the remote client so commands receive one ready App.
package appctx

import (
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lherron/labelsync/internal/config"
	"github.com/lherron/labelsync/internal/confluence"
	"github.com/lherron/labelsync/internal/logging"
	"github.com/lherron/labelsync/internal/metrics"
	"github.com/lherron/labelsync/internal/remote"
	"github.com/lherron/labelsync/internal/syncer"
	"github.com/lherron/labelsync/internal/visited"
)

// App holds the shared application context for commands.
type App struct {
	// Config is the loaded configuration
	Config *config.Config

	// Logger carries the run id on every event
	Logger zerolog.Logger

	// RunID identifies this invocation in logs and cache entries
	RunID string

	// Cache is the visited cache (nil if NeedsCache is false)
	Cache visited.Cache

	// Metrics collects counters for the run (nil if NeedsRemote is false)
	Metrics *metrics.Recorder

	// Executor, Client and Engine are set when NeedsRemote is true
	Executor *remote.Executor
	Client   *confluence.Client
	Engine   *syncer.Engine

	logCloser io.Closer
}

// Close releases resources held by the App.
// Safe to call multiple times.
func (a *App) Close() {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close visited cache")
		}
		a.Cache = nil
	}
	if a.logCloser != nil {
		a.logCloser.Close()
		a.logCloser = nil
	}
}

// Options configures the bootstrap behavior.
type Options struct {
	// NeedsCache indicates whether to open the visited cache.
	NeedsCache bool

	// NeedsRemote wires the executor, client and engine. It validates that
	// the connection settings are complete.
	NeedsRemote bool

	// FileLog enables the configured log file. Inspection commands only
	// log to the console.
	FileLog bool

	// HTTPClient overrides the executor's default client.
	HTTPClient *http.Client
}

// CacheOnly returns options for commands that only inspect the cache.
func CacheOnly() Options {
	return Options{NeedsCache: true}
}

// ForRun returns options for a synchronization run.
func ForRun() Options {
	return Options{NeedsCache: true, NeedsRemote: true, FileLog: true}
}

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
// Resources are released automatically when the wrapped function returns.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(app, cmd, args)
	}
}

// Bootstrap initializes the App according to the given options.
// Callers are responsible for calling App.Close() when done.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	app := &App{RunID: uuid.NewString()}

	cfg, err := config.Load(flagString(cmd, "config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg
	applyFlags(cmd, cfg)

	logPath := ""
	if opts.FileLog {
		logPath = cfg.LogPath
	}
	logger, closer, err := logging.New(logging.Config{
		Level:    cfg.LogLevel,
		Format:   cfg.LogFormat,
		FilePath: logPath,
		Console:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	app.Logger = logger.With().Str("run_id", app.RunID).Logger()
	app.logCloser = closer

	if opts.NeedsRemote {
		if err := cfg.Validate(); err != nil {
			app.Close()
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}

	if opts.NeedsCache {
		cache, err := visited.Open(visited.Backend(cfg.CacheBackend), cfg.DBPath)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to open visited cache: %w", err)
		}
		app.Cache = cache
	}

	if opts.NeedsRemote {
		if app.Cache == nil {
			app.Close()
			return nil, fmt.Errorf("a run requires the visited cache (set NeedsCache: true)")
		}
		app.Metrics = metrics.New()
		app.Executor = remote.NewExecutor(remote.Options{
			Host:          cfg.Host,
			Username:      cfg.Username,
			Password:      cfg.Password,
			HTTPClient:    opts.HTTPClient,
			MaxAttempts:   cfg.MaxRetries,
			RetryInterval: cfg.RetryInterval.Duration(),
			Timeout:       cfg.RequestTimeout.Duration(),
			Logger:        app.Logger,
			Metrics:       app.Metrics,
		})
		app.Client = confluence.NewClient(app.Executor, confluence.Options{
			SpaceKey: cfg.SpaceKey,
			DryRun:   cfg.DryRun,
			Logger:   app.Logger,
			Metrics:  app.Metrics,
		})
		app.Engine = syncer.New(app.Client, syncer.Options{
			Cache:   app.Cache,
			Logger:  app.Logger,
			Metrics: app.Metrics,
			RunID:   app.RunID,
			DryRun:  cfg.DryRun,
		})
	}

	return app, nil
}

// applyFlags lets command-line flags override the loaded config.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if v := flagString(cmd, "db"); v != "" {
		cfg.DBPath = v
	}
	if v := flagString(cmd, "root"); v != "" {
		cfg.RootPage = v
	}
	if f := cmd.Flag("dry-run"); f != nil && f.Changed {
		cfg.DryRun = f.Value.String() == "true"
	}
	if v := flagString(cmd, "log-level"); v != "" {
		cfg.LogLevel = v
	}
}

func flagString(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return ""
}
