// Package cmd provides CLI commands for the voxreel tool.
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/voxreel/config"
	"github.com/otherjamesbrown/voxreel/credentials"
	"github.com/otherjamesbrown/voxreel/pkg/audio"
	"github.com/otherjamesbrown/voxreel/pkg/cache"
	"github.com/otherjamesbrown/voxreel/pkg/compile"
	"github.com/otherjamesbrown/voxreel/pkg/conversation"
	"github.com/otherjamesbrown/voxreel/pkg/db"
	"github.com/otherjamesbrown/voxreel/pkg/logging"
	"github.com/otherjamesbrown/voxreel/pkg/observability"
	"github.com/otherjamesbrown/voxreel/pkg/segment"
	"github.com/otherjamesbrown/voxreel/pkg/snapshot"
)

// Environment variables that override stored secrets.
const (
	EnvDBPassword    = "VOXREEL_DB_PASSWORD"
	EnvRedisPassword = "VOXREEL_REDIS_PASSWORD"
)

// metricsNamespace prefixes collectors registered by commands.
const metricsNamespace = "voxreel"

// Deps holds the dependencies shared by voxreel commands. The root command
// fills Config, Logger, Metrics and Registry before any subcommand runs.
type Deps struct {
	Config     *config.CLIConfig
	LoadConfig func() (*config.CLIConfig, error)

	Logger   logging.Logger
	Metrics  *observability.Metrics
	Registry prometheus.Registerer
	Tracer   *observability.Tracer

	// Progress receives batch status lines when non-nil.
	Progress io.Writer
	// ProgressInPlace rewrites the status line instead of appending.
	ProgressInPlace bool

	Credentials credentials.Store

	// OpenCache returns nil when no analysis cache is configured.
	OpenCache func(context.Context, *Deps) (audio.Cache, func(), error)

	OpenSnapshots func(context.Context, *Deps) (snapshot.Store, func(), error)
}

// DefaultDeps returns the default dependencies for production use.
func DefaultDeps() *Deps {
	return &Deps{
		LoadConfig:    config.LoadConfig,
		Logger:        logging.NewNopLogger(),
		Tracer:        observability.NewTracer(),
		Credentials:   credentials.NewKeyringStore(),
		OpenCache:     openRedisCache,
		OpenSnapshots: openSnapshotStore,
	}
}

// config returns the loaded configuration, loading it on first use.
func (d *Deps) config() (*config.CLIConfig, error) {
	if d.Config != nil {
		return d.Config, nil
	}
	if d.LoadConfig == nil {
		d.Config = config.DefaultConfig()
		return d.Config, nil
	}
	cfg, err := d.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	d.Config = cfg
	return cfg, nil
}

func (d *Deps) logger() logging.Logger {
	if d.Logger == nil {
		return logging.NewNopLogger()
	}
	return d.Logger
}

// applyFlagOverrides copies every changed flag named in keys onto the
// matching configuration key and revalidates the result.
func (d *Deps) applyFlagOverrides(cmd *cobra.Command, keys map[string]string) (*config.CLIConfig, error) {
	cfg, err := d.config()
	if err != nil {
		return nil, err
	}
	for name, key := range keys {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := cfg.Set(key, f.Value.String()); err != nil {
			return nil, fmt.Errorf("--%s: %w", name, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// scannerConfig maps the CLI configuration onto the scanner settings.
func scannerConfig(cfg *config.CLIConfig) (segment.ScannerConfig, error) {
	conv, err := segment.NewConvention(cfg.Pattern)
	if err != nil {
		return segment.ScannerConfig{}, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return segment.ScannerConfig{}, err
	}
	conv.Location = loc
	conv.AllowMTimeFallback = cfg.AllowMTimeFallback

	return segment.ScannerConfig{
		Convention:   conv,
		ProbeTimeout: cfg.DecodeTimeout,
		Concurrency:  cfg.Concurrency,
	}, nil
}

func silenceParams(cfg *config.CLIConfig) audio.SilenceParams {
	return audio.SilenceParams{
		ThresholdDB: cfg.SilenceThresholdDB,
		MinDuration: cfg.MinSilence,
	}
}

// compileOptions maps the CLI configuration onto compiler options.
func compileOptions(cfg *config.CLIConfig) (compile.Options, error) {
	mode, err := compile.ParseSpacingMode(cfg.Spacing)
	if err != nil {
		return compile.Options{}, err
	}
	opts := compile.DefaultOptions()
	opts.Output = audio.OutputFormat{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	opts.Spacing = compile.Spacing{Mode: mode, Gap: cfg.Gap, MaxGap: cfg.MaxGap}
	opts.Trim = cfg.Trim
	opts.TrimPadding = cfg.TrimPadding
	opts.MaxOutputDuration = cfg.MaxOutputDuration
	opts.DecodeTimeout = cfg.DecodeTimeout
	return opts, nil
}

// scan builds a catalog of root.
func (d *Deps) scan(ctx context.Context, root string) (*segment.Catalog, error) {
	cfg, err := d.config()
	if err != nil {
		return nil, err
	}
	scfg, err := scannerConfig(cfg)
	if err != nil {
		return nil, err
	}
	scanner := segment.NewScanner(scfg, d.logger(), d.Metrics, d.Tracer)
	if d.Progress != nil {
		scanner.OnProgress(newProgressPrinter(d.Progress, "Scanning", d.ProgressInPlace).update)
	}
	return scanner.Scan(ctx, root)
}

// conversation scans root and groups its segments into turns.
func (d *Deps) conversation(ctx context.Context, root string) (*segment.Catalog, []conversation.Turn, error) {
	cat, err := d.scan(ctx, root)
	if err != nil {
		return nil, nil, err
	}
	turns, err := conversation.BuildTurns(cat.Segments(), d.Config.MergeThreshold)
	if err != nil {
		return nil, nil, err
	}
	return cat, turns, nil
}

// analyzer returns an analyzer configured from the CLI settings with the
// cache attached when one is available. The returned func releases it.
func (d *Deps) analyzer(ctx context.Context) (*audio.Analyzer, func(), error) {
	cfg, err := d.config()
	if err != nil {
		return nil, nil, err
	}
	a := audio.NewAnalyzer(d.logger(), d.Metrics, d.Tracer)
	a.Silence = silenceParams(cfg)
	a.Timeout = cfg.DecodeTimeout
	a.Concurrency = cfg.Concurrency

	release := func() {}
	if d.OpenCache != nil {
		c, closeFn, err := d.OpenCache(ctx, d)
		if err != nil {
			d.logger().Warn("Analysis cache unavailable, continuing without it", logging.Err(err))
		} else if c != nil {
			a.Cache = c
			release = closeFn
		}
	}
	return a, release, nil
}

// openRedisCache connects to the configured Redis server, if any.
func openRedisCache(ctx context.Context, d *Deps) (audio.Cache, func(), error) {
	cfg, err := d.config()
	if err != nil {
		return nil, nil, err
	}
	if cfg.RedisAddr == "" {
		return nil, func() {}, nil
	}
	password, err := credentials.Lookup(d.Credentials, EnvRedisPassword, credentials.RedisPassword)
	if err != nil {
		return nil, nil, fmt.Errorf("reading redis password: %w", err)
	}
	c, err := cache.Connect(ctx, cache.Config{
		Addr:     cfg.RedisAddr,
		Password: password,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}
	d.logger().Debug("Analysis cache connected", logging.F("addr", cfg.RedisAddr))
	return c, func() { _ = c.Close() }, nil
}

// openSnapshotStore opens the configured snapshot store.
func openSnapshotStore(ctx context.Context, d *Deps) (snapshot.Store, func(), error) {
	cfg, err := d.config()
	if err != nil {
		return nil, nil, err
	}

	switch cfg.SnapshotStore {
	case config.SnapshotStorePostgres:
		pool, _, err := d.connectDatabase(ctx)
		if err != nil {
			return nil, nil, err
		}
		store, err := snapshot.NewPostgresStore(ctx, pool)
		if err != nil {
			db.Close(pool)
			return nil, nil, err
		}
		return store, func() { db.Close(pool) }, nil
	default:
		return snapshot.NewFileStore(cfg.SnapshotDir), func() {}, nil
	}
}

// databaseConfig layers the config file's database section over the
// VOXREEL_DB_* environment and resolves the password.
func databaseConfig(cfg *config.CLIConfig, store credentials.Store) (*db.Config, error) {
	dbc := db.ConfigFromEnv()
	if cfg.Database.Host != "" {
		dbc.Host = cfg.Database.Host
	}
	if cfg.Database.Port != 0 {
		dbc.Port = cfg.Database.Port
	}
	if cfg.Database.Name != "" {
		dbc.Database = cfg.Database.Name
	}
	if cfg.Database.User != "" {
		dbc.User = cfg.Database.User
	}
	if cfg.Database.SSLMode != "" {
		dbc.SSLMode = cfg.Database.SSLMode
	}
	if cfg.Database.MaxConns != 0 {
		dbc.MaxConns = cfg.Database.MaxConns
	}
	if dbc.Password == "" {
		password, err := credentials.Lookup(store, EnvDBPassword, credentials.DBPassword)
		if err != nil {
			return nil, fmt.Errorf("reading database password: %w", err)
		}
		dbc.Password = password
	}
	return dbc, nil
}
