// Package config provides CLI configuration management for voxreel.
// It supports loading configuration from YAML files, environment variables, and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // timezone names resolve on hosts without zoneinfo

	"gopkg.in/yaml.v3"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// Snapshot store kinds.
const (
	SnapshotStoreFile     = "file"
	SnapshotStorePostgres = "postgres"
)

// Default configuration values.
const (
	DefaultOutputFormat      = OutputFormatText
	DefaultConfigDir         = ".voxreel"
	DefaultConfigFile        = "config.yaml"
	DefaultSnapshotDir       = "snapshots"
	DefaultTimezone          = "UTC"
	DefaultConcurrency       = 4
	DefaultDecodeTimeout     = 30 * time.Second
	DefaultMergeThreshold    = 1500 * time.Millisecond
	DefaultSessionGap        = 5 * time.Minute
	DefaultSilenceThreshold  = -50.0
	DefaultMinSilence        = 200 * time.Millisecond
	DefaultSampleRate        = 16000
	DefaultChannels          = 1
	DefaultSpacing           = "fixed"
	DefaultGap               = 500 * time.Millisecond
	DefaultMaxGap            = 10 * time.Second
	DefaultTrimPadding       = 100 * time.Millisecond
	DefaultMaxOutputDuration = 4 * time.Hour
	DefaultSnapshotStore     = SnapshotStoreFile
)

// DatabaseConfig holds PostgreSQL settings for the snapshot store. The
// password is never stored here; it comes from VOXREEL_DB_PASSWORD or the
// system keyring.
type DatabaseConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Name     string `yaml:"name,omitempty"`
	User     string `yaml:"user,omitempty"`
	SSLMode  string `yaml:"sslmode,omitempty"`
	MaxConns int32  `yaml:"max_conns,omitempty"`
}

// CLIConfig holds the CLI configuration settings.
type CLIConfig struct {
	OutputFormat OutputFormat
	Debug        bool
	LogJSON      bool

	// Timezone names the location filename timestamps are read in.
	Timezone string
	// Pattern overrides the filename convention regex. Empty uses the default.
	Pattern            string
	AllowMTimeFallback bool
	Concurrency        int
	DecodeTimeout      time.Duration

	MergeThreshold time.Duration
	SessionGap     time.Duration

	SilenceThresholdDB float64
	MinSilence         time.Duration

	SampleRate        int
	Channels          int
	Spacing           string
	Gap               time.Duration
	MaxGap            time.Duration
	Trim              bool
	TrimPadding       time.Duration
	MaxOutputDuration time.Duration

	SnapshotStore string
	// SnapshotDir defaults to <config dir>/snapshots.
	SnapshotDir string
	Database    DatabaseConfig

	// RedisAddr enables the analysis cache when set.
	RedisAddr string
	RedisDB   int
}

// fileConfig is the YAML form. Durations are written as strings.
type fileConfig struct {
	OutputFormat       OutputFormat   `yaml:"output_format,omitempty"`
	Debug              bool           `yaml:"debug,omitempty"`
	LogJSON            bool           `yaml:"log_json,omitempty"`
	Timezone           string         `yaml:"timezone,omitempty"`
	Pattern            string         `yaml:"pattern,omitempty"`
	AllowMTimeFallback bool           `yaml:"allow_mtime_fallback,omitempty"`
	Concurrency        int            `yaml:"concurrency,omitempty"`
	DecodeTimeout      string         `yaml:"decode_timeout,omitempty"`
	MergeThreshold     string         `yaml:"merge_threshold,omitempty"`
	SessionGap         string         `yaml:"session_gap,omitempty"`
	SilenceThresholdDB *float64       `yaml:"silence_threshold_db,omitempty"`
	MinSilence         string         `yaml:"min_silence,omitempty"`
	SampleRate         int            `yaml:"sample_rate,omitempty"`
	Channels           int            `yaml:"channels,omitempty"`
	Spacing            string         `yaml:"spacing,omitempty"`
	Gap                string         `yaml:"gap,omitempty"`
	MaxGap             string         `yaml:"max_gap,omitempty"`
	Trim               bool           `yaml:"trim,omitempty"`
	TrimPadding        string         `yaml:"trim_padding,omitempty"`
	MaxOutputDuration  string         `yaml:"max_output_duration,omitempty"`
	SnapshotStore      string         `yaml:"snapshot_store,omitempty"`
	SnapshotDir        string         `yaml:"snapshot_dir,omitempty"`
	Database           DatabaseConfig `yaml:"database,omitempty"`
	RedisAddr          string         `yaml:"redis_addr,omitempty"`
	RedisDB            int            `yaml:"redis_db,omitempty"`
}

// DefaultConfig returns a CLIConfig with default values.
func DefaultConfig() *CLIConfig {
	return &CLIConfig{
		OutputFormat:       DefaultOutputFormat,
		Timezone:           DefaultTimezone,
		Concurrency:        DefaultConcurrency,
		DecodeTimeout:      DefaultDecodeTimeout,
		MergeThreshold:     DefaultMergeThreshold,
		SessionGap:         DefaultSessionGap,
		SilenceThresholdDB: DefaultSilenceThreshold,
		MinSilence:         DefaultMinSilence,
		SampleRate:         DefaultSampleRate,
		Channels:           DefaultChannels,
		Spacing:            DefaultSpacing,
		Gap:                DefaultGap,
		MaxGap:             DefaultMaxGap,
		TrimPadding:        DefaultTrimPadding,
		MaxOutputDuration:  DefaultMaxOutputDuration,
		SnapshotStore:      DefaultSnapshotStore,
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			Name:    "voxreel",
			User:    "voxreel",
			SSLMode: "disable",
		},
	}
}

// ConfigDir returns the configuration directory path.
// Uses $VOXREEL_CONFIG_DIR if set, otherwise ~/.voxreel
func ConfigDir() (string, error) {
	if dir := os.Getenv("VOXREEL_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the CLI configuration from the default directory.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.voxreel/config.yaml or $VOXREEL_CONFIG_DIR/config.yaml)
// 3. Environment variables (VOXREEL_*)
func LoadConfig() (*CLIConfig, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}
	return LoadConfigFrom(dir)
}

// LoadConfigFrom loads configuration from dir/config.yaml and the environment.
func LoadConfigFrom(dir string) (*CLIConfig, error) {
	cfg := DefaultConfig()

	configPath := filepath.Join(dir, DefaultConfigFile)
	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if cfg.SnapshotDir == "" {
		cfg.SnapshotDir = filepath.Join(dir, DefaultSnapshotDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *CLIConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fc.OutputFormat != "" {
		cfg.OutputFormat = fc.OutputFormat
	}
	cfg.Debug = fc.Debug
	cfg.LogJSON = fc.LogJSON
	cfg.AllowMTimeFallback = fc.AllowMTimeFallback
	cfg.Trim = fc.Trim
	setString(&cfg.Timezone, fc.Timezone)
	setString(&cfg.Pattern, fc.Pattern)
	setString(&cfg.Spacing, fc.Spacing)
	setString(&cfg.SnapshotStore, fc.SnapshotStore)
	setString(&cfg.SnapshotDir, fc.SnapshotDir)
	setString(&cfg.RedisAddr, fc.RedisAddr)
	setInt(&cfg.Concurrency, fc.Concurrency)
	setInt(&cfg.SampleRate, fc.SampleRate)
	setInt(&cfg.Channels, fc.Channels)
	setInt(&cfg.RedisDB, fc.RedisDB)
	if fc.SilenceThresholdDB != nil {
		cfg.SilenceThresholdDB = *fc.SilenceThresholdDB
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"decode_timeout", fc.DecodeTimeout, &cfg.DecodeTimeout},
		{"merge_threshold", fc.MergeThreshold, &cfg.MergeThreshold},
		{"session_gap", fc.SessionGap, &cfg.SessionGap},
		{"min_silence", fc.MinSilence, &cfg.MinSilence},
		{"gap", fc.Gap, &cfg.Gap},
		{"max_gap", fc.MaxGap, &cfg.MaxGap},
		{"trim_padding", fc.TrimPadding, &cfg.TrimPadding},
		{"max_output_duration", fc.MaxOutputDuration, &cfg.MaxOutputDuration},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", d.key, err)
		}
		*d.dst = v
	}

	db := fc.Database
	setString(&cfg.Database.Host, db.Host)
	setInt(&cfg.Database.Port, db.Port)
	setString(&cfg.Database.Name, db.Name)
	setString(&cfg.Database.User, db.User)
	setString(&cfg.Database.SSLMode, db.SSLMode)
	if db.MaxConns != 0 {
		cfg.Database.MaxConns = db.MaxConns
	}

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// loadFromEnv overlays environment variables onto the configuration.
// Unparseable values are ignored.
func loadFromEnv(cfg *CLIConfig) {
	for _, key := range Keys() {
		env := "VOXREEL_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		// Invalid values are caught by Validate or keep the previous value.
		_ = cfg.Set(key, v)
	}
}

// Validate checks that the configuration is valid.
func (c *CLIConfig) Validate() error {
	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Pattern != "" {
		if _, err := regexp.Compile(c.Pattern); err != nil {
			return fmt.Errorf("invalid pattern: %w", err)
		}
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	positive := map[string]time.Duration{
		"decode_timeout":      c.DecodeTimeout,
		"session_gap":         c.SessionGap,
		"max_output_duration": c.MaxOutputDuration,
	}
	for _, k := range sortedKeys(positive) {
		if positive[k] <= 0 {
			return fmt.Errorf("%s must be positive", k)
		}
	}
	nonNegative := map[string]time.Duration{
		"merge_threshold": c.MergeThreshold,
		"min_silence":     c.MinSilence,
		"gap":             c.Gap,
		"max_gap":         c.MaxGap,
		"trim_padding":    c.TrimPadding,
	}
	for _, k := range sortedKeys(nonNegative) {
		if nonNegative[k] < 0 {
			return fmt.Errorf("%s must not be negative", k)
		}
	}
	if c.SilenceThresholdDB >= 0 {
		return fmt.Errorf("silence_threshold_db must be below 0 dBFS, got %g", c.SilenceThresholdDB)
	}
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000, got %d", c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", c.Channels)
	}
	if c.Spacing != "fixed" && c.Spacing != "original" {
		return fmt.Errorf("invalid spacing: %q (must be fixed or original)", c.Spacing)
	}
	if c.SnapshotStore != SnapshotStoreFile && c.SnapshotStore != SnapshotStorePostgres {
		return fmt.Errorf("invalid snapshot_store: %q (must be file or postgres)", c.SnapshotStore)
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("redis_db must not be negative")
	}
	return nil
}

func sortedKeys(m map[string]time.Duration) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Location resolves Timezone.
func (c *CLIConfig) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "UTC":
		return time.UTC, nil
	case "Local", "local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// SaveConfig saves the configuration to the default config file.
func SaveConfig(cfg *CLIConfig) error {
	configDir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}
	return SaveConfigTo(configDir, cfg)
}

// SaveConfigTo writes cfg to dir/config.yaml. A snapshot directory equal to
// the default is not written, so moving the config directory moves it too.
func SaveConfigTo(dir string, cfg *CLIConfig) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	snapshotDir := cfg.SnapshotDir
	if snapshotDir == filepath.Join(dir, DefaultSnapshotDir) {
		snapshotDir = ""
	}
	threshold := cfg.SilenceThresholdDB

	fc := fileConfig{
		OutputFormat:       cfg.OutputFormat,
		Debug:              cfg.Debug,
		LogJSON:            cfg.LogJSON,
		Timezone:           cfg.Timezone,
		Pattern:            cfg.Pattern,
		AllowMTimeFallback: cfg.AllowMTimeFallback,
		Concurrency:        cfg.Concurrency,
		DecodeTimeout:      cfg.DecodeTimeout.String(),
		MergeThreshold:     cfg.MergeThreshold.String(),
		SessionGap:         cfg.SessionGap.String(),
		SilenceThresholdDB: &threshold,
		MinSilence:         cfg.MinSilence.String(),
		SampleRate:         cfg.SampleRate,
		Channels:           cfg.Channels,
		Spacing:            cfg.Spacing,
		Gap:                cfg.Gap.String(),
		MaxGap:             cfg.MaxGap.String(),
		Trim:               cfg.Trim,
		TrimPadding:        cfg.TrimPadding.String(),
		MaxOutputDuration:  cfg.MaxOutputDuration.String(),
		SnapshotStore:      cfg.SnapshotStore,
		SnapshotDir:        snapshotDir,
		Database:           cfg.Database,
		RedisAddr:          cfg.RedisAddr,
		RedisDB:            cfg.RedisDB,
	}

	data, err := yaml.Marshal(&fc)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func parseBool(key, value string) (bool, error) {
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s value: %s (must be true or false)", key, value)
}

func parseInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s (must be an integer)", key, value)
	}
	return n, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return d, nil
}
