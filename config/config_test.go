package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDefaultConfig verifies default configuration values.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.OutputFormat != DefaultOutputFormat {
		t.Errorf("OutputFormat = %v, want %v", cfg.OutputFormat, DefaultOutputFormat)
	}
	if cfg.MergeThreshold != 1500*time.Millisecond {
		t.Errorf("MergeThreshold = %v, want 1.5s", cfg.MergeThreshold)
	}
	if cfg.SessionGap != 5*time.Minute {
		t.Errorf("SessionGap = %v, want 5m", cfg.SessionGap)
	}
	if cfg.SampleRate != 16000 || cfg.Channels != 1 {
		t.Errorf("output = %d Hz x %d, want 16000 Hz mono", cfg.SampleRate, cfg.Channels)
	}
	if cfg.Spacing != "fixed" || cfg.Gap != 500*time.Millisecond {
		t.Errorf("spacing = %s/%s, want fixed/500ms", cfg.Spacing, cfg.Gap)
	}
	if cfg.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", cfg.Timezone)
	}
	if cfg.Debug || cfg.Trim || cfg.AllowMTimeFallback {
		t.Error("boolean options should default to false")
	}
	if cfg.RedisAddr != "" {
		t.Error("analysis cache should be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

// TestOutputFormat_IsValid verifies output format validation.
func TestOutputFormat_IsValid(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{OutputFormatText, true},
		{OutputFormatJSON, true},
		{OutputFormatYAML, true},
		{"invalid", false},
		{"", false},
		{"JSON", false}, // Case sensitive
	}

	for _, tc := range tests {
		if got := tc.format.IsValid(); got != tc.valid {
			t.Errorf("OutputFormat(%q).IsValid() = %v, want %v", tc.format, got, tc.valid)
		}
	}
}

// TestCLIConfig_Validate verifies configuration validation.
func TestCLIConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CLIConfig)
		errMsg string
	}{
		{"valid config", func(*CLIConfig) {}, ""},
		{"bad output format", func(c *CLIConfig) { c.OutputFormat = "xml" }, "output_format"},
		{"bad timezone", func(c *CLIConfig) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"bad pattern", func(c *CLIConfig) { c.Pattern = "(" }, "pattern"},
		{"zero concurrency", func(c *CLIConfig) { c.Concurrency = 0 }, "concurrency"},
		{"negative merge threshold", func(c *CLIConfig) { c.MergeThreshold = -time.Second }, "merge_threshold"},
		{"negative session gap", func(c *CLIConfig) { c.SessionGap = -time.Second }, "session_gap"},
		{"negative gap", func(c *CLIConfig) { c.Gap = -time.Millisecond }, "gap"},
		{"positive threshold", func(c *CLIConfig) { c.SilenceThresholdDB = 3 }, "silence_threshold_db"},
		{"low sample rate", func(c *CLIConfig) { c.SampleRate = 4000 }, "sample_rate"},
		{"three channels", func(c *CLIConfig) { c.Channels = 3 }, "channels"},
		{"bad spacing", func(c *CLIConfig) { c.Spacing = "random" }, "spacing"},
		{"bad store", func(c *CLIConfig) { c.SnapshotStore = "s3" }, "snapshot_store"},
		{"local timezone", func(c *CLIConfig) { c.Timezone = "Local" }, ""},
		{"iana timezone", func(c *CLIConfig) { c.Timezone = "Europe/London" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.errMsg)
			}
		})
	}
}

// TestConfigDir verifies the config directory honours VOXREEL_CONFIG_DIR.
func TestConfigDir(t *testing.T) {
	t.Setenv("VOXREEL_CONFIG_DIR", "/custom/config/dir")

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	if dir != "/custom/config/dir" {
		t.Errorf("ConfigDir() = %v, want /custom/config/dir", dir)
	}

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() error = %v", err)
	}
	if path != filepath.Join("/custom/config/dir", DefaultConfigFile) {
		t.Errorf("ConfigPath() = %v", path)
	}
}

func TestConfigDir_Default(t *testing.T) {
	t.Setenv("VOXREEL_CONFIG_DIR", "")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	if dir != filepath.Join(home, DefaultConfigDir) {
		t.Errorf("ConfigDir() = %v, want ~/%s", dir, DefaultConfigDir)
	}
}

// TestLoadConfigFrom_Defaults verifies a missing file yields defaults.
func TestLoadConfigFrom_Defaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfigFrom(dir)
	if err != nil {
		t.Fatalf("LoadConfigFrom() error = %v", err)
	}
	if cfg.MergeThreshold != DefaultMergeThreshold {
		t.Errorf("MergeThreshold = %v, want default", cfg.MergeThreshold)
	}
	if cfg.SnapshotDir != filepath.Join(dir, DefaultSnapshotDir) {
		t.Errorf("SnapshotDir = %v, want under config dir", cfg.SnapshotDir)
	}
}

// TestLoadConfigFrom_File verifies values from the YAML file.
func TestLoadConfigFrom_File(t *testing.T) {
	dir := t.TempDir()
	content := `output_format: json
timezone: Europe/Berlin
merge_threshold: 2s
session_gap: 10m
silence_threshold_db: -60
sample_rate: 22050
channels: 2
spacing: original
max_gap: 3s
trim: true
snapshot_store: postgres
database:
  host: db.internal
  port: 6543
redis_addr: localhost:6379
`
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFrom(dir)
	if err != nil {
		t.Fatalf("LoadConfigFrom() error = %v", err)
	}

	if cfg.OutputFormat != OutputFormatJSON {
		t.Errorf("OutputFormat = %v, want json", cfg.OutputFormat)
	}
	if cfg.Timezone != "Europe/Berlin" {
		t.Errorf("Timezone = %v", cfg.Timezone)
	}
	if cfg.MergeThreshold != 2*time.Second || cfg.SessionGap != 10*time.Minute {
		t.Errorf("thresholds = %v/%v, want 2s/10m", cfg.MergeThreshold, cfg.SessionGap)
	}
	if cfg.SilenceThresholdDB != -60 {
		t.Errorf("SilenceThresholdDB = %v, want -60", cfg.SilenceThresholdDB)
	}
	if cfg.SampleRate != 22050 || cfg.Channels != 2 {
		t.Errorf("output = %d x %d", cfg.SampleRate, cfg.Channels)
	}
	if cfg.Spacing != "original" || cfg.MaxGap != 3*time.Second || !cfg.Trim {
		t.Errorf("compile options not loaded: %+v", cfg)
	}
	if cfg.Gap != DefaultGap {
		t.Errorf("Gap = %v, want default kept", cfg.Gap)
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.Port != 6543 || cfg.Database.Name != "voxreel" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %v", cfg.RedisAddr)
	}
}

func TestLoadConfigFrom_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("session_gap: soon\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := LoadConfigFrom(dir)
	if err == nil || !strings.Contains(err.Error(), "session_gap") {
		t.Errorf("LoadConfigFrom() error = %v, want session_gap parse error", err)
	}
}

func TestLoadConfigFrom_InvalidValue(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("channels: 6\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigFrom(dir); err == nil {
		t.Error("LoadConfigFrom() should reject 6 channels")
	}
}

// TestLoadConfigFrom_EnvOverrides verifies VOXREEL_* variables win over the file.
func TestLoadConfigFrom_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("gap: 2s\nspacing: original\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VOXREEL_GAP", "750ms")
	t.Setenv("VOXREEL_OUTPUT_FORMAT", "yaml")
	t.Setenv("VOXREEL_DATABASE_HOST", "pg.example")
	t.Setenv("VOXREEL_DEBUG", "true")
	t.Setenv("VOXREEL_SESSION_GAP", "not-a-duration")

	cfg, err := LoadConfigFrom(dir)
	if err != nil {
		t.Fatalf("LoadConfigFrom() error = %v", err)
	}
	if cfg.Gap != 750*time.Millisecond {
		t.Errorf("Gap = %v, want 750ms from env", cfg.Gap)
	}
	if cfg.Spacing != "original" {
		t.Errorf("Spacing = %v, want file value", cfg.Spacing)
	}
	if cfg.OutputFormat != OutputFormatYAML {
		t.Errorf("OutputFormat = %v, want yaml", cfg.OutputFormat)
	}
	if cfg.Database.Host != "pg.example" {
		t.Errorf("Database.Host = %v", cfg.Database.Host)
	}
	if !cfg.Debug {
		t.Error("Debug should be set from env")
	}
	if cfg.SessionGap != DefaultSessionGap {
		t.Errorf("SessionGap = %v, want default for unparseable env", cfg.SessionGap)
	}
}

// TestSaveConfigTo verifies a save/load round trip through YAML.
func TestSaveConfigTo(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "voxreel")

	cfg := DefaultConfig()
	cfg.SnapshotDir = filepath.Join(dir, DefaultSnapshotDir)
	cfg.MergeThreshold = 900 * time.Millisecond
	cfg.SilenceThresholdDB = -42.5
	cfg.Trim = true
	cfg.RedisAddr = "cache:6379"

	if err := SaveConfigTo(dir, cfg); err != nil {
		t.Fatalf("SaveConfigTo() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, DefaultConfigFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "merge_threshold: 900ms") {
		t.Errorf("durations should be written as strings:\n%s", data)
	}
	if strings.Contains(string(data), "snapshot_dir") {
		t.Errorf("default snapshot_dir should not be written:\n%s", data)
	}

	info, err := os.Stat(filepath.Join(dir, DefaultConfigFile))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file permissions = %o, want 600", perm)
	}

	loaded, err := LoadConfigFrom(dir)
	if err != nil {
		t.Fatalf("LoadConfigFrom() error = %v", err)
	}
	if loaded.MergeThreshold != cfg.MergeThreshold || loaded.SilenceThresholdDB != -42.5 || !loaded.Trim || loaded.RedisAddr != "cache:6379" {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
	if loaded.SnapshotDir != cfg.SnapshotDir {
		t.Errorf("SnapshotDir = %v, want %v", loaded.SnapshotDir, cfg.SnapshotDir)
	}
}

func TestSet(t *testing.T) {
	cfg := DefaultConfig()

	valid := map[string]string{
		"output_format":        "json",
		"debug":                "1",
		"merge_threshold":      "2s",
		"silence_threshold_db": "-45.5",
		"sample_rate":          "48000",
		"spacing":              "original",
		"trim":                 "yes",
		"database.port":        "6000",
		"database.max_conns":   "2",
		"redis_db":             "3",
	}
	for k, v := range valid {
		if err := cfg.Set(k, v); err != nil {
			t.Errorf("Set(%q, %q) error = %v", k, v, err)
		}
	}
	if cfg.OutputFormat != OutputFormatJSON || !cfg.Debug || cfg.MergeThreshold != 2*time.Second ||
		cfg.SilenceThresholdDB != -45.5 || cfg.SampleRate != 48000 || !cfg.Trim ||
		cfg.Database.Port != 6000 || cfg.Database.MaxConns != 2 || cfg.RedisDB != 3 {
		t.Errorf("values not applied: %+v", cfg)
	}

	invalid := map[string]string{
		"output_format":   "xml",
		"debug":           "maybe",
		"merge_threshold": "fast",
		"sample_rate":     "high",
		"nope":            "1",
	}
	for k, v := range invalid {
		if err := cfg.Set(k, v); err == nil {
			t.Errorf("Set(%q, %q) should fail", k, v)
		}
	}
}

// TestKeys verifies every documented key can be read back after Set.
func TestKeys(t *testing.T) {
	cfg := DefaultConfig()
	for _, info := range KeyInfos() {
		if info.Description == "" {
			t.Errorf("key %s has no description", info.Key)
		}
		v, err := cfg.Get(info.Key)
		if err != nil {
			t.Errorf("Get(%q) error = %v", info.Key, err)
			continue
		}
		if info.Key == "snapshot_dir" || info.Key == "pattern" || info.Key == "redis_addr" {
			continue
		}
		if err := cfg.Set(info.Key, v); err != nil {
			t.Errorf("Set(%q, %q) with its own value error = %v", info.Key, v, err)
		}
	}
	if _, err := cfg.Get("nope"); err == nil {
		t.Error("Get of unknown key should fail")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("config should stay valid after re-setting every key: %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ExpandPath("~/snapshots")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, "snapshots") {
		t.Errorf("ExpandPath() = %v", got)
	}
	if got, _ := ExpandPath("/abs"); got != "/abs" {
		t.Errorf("ExpandPath(/abs) = %v", got)
	}
}
