package config

import (
	"fmt"
	"strconv"
	"time"
)

// KeyInfo documents a settable configuration key.
type KeyInfo struct {
	Key         string
	Description string
}

var keyInfos = []KeyInfo{
	{"output_format", "Default output format (text, json, yaml)"},
	{"debug", "Enable debug logging (true/false)"},
	{"log_json", "Write logs as JSON (true/false)"},
	{"timezone", "Location of filename timestamps (UTC, Local, or an IANA name)"},
	{"pattern", "Filename regex with named groups ts, dir and optional text"},
	{"allow_mtime_fallback", "Use file mtime when a name has no timestamp (true/false)"},
	{"concurrency", "Parallel decoders during scan and analysis"},
	{"decode_timeout", "Per-file decode timeout (e.g. 30s)"},
	{"merge_threshold", "Largest same-speaker gap merged into one turn (e.g. 1.5s)"},
	{"session_gap", "Smallest silence that starts a new session (e.g. 5m)"},
	{"silence_threshold_db", "Level below which audio counts as silence (dBFS)"},
	{"min_silence", "Shortest leading/trailing silence that is reported"},
	{"sample_rate", "Compiled output sample rate in Hz"},
	{"channels", "Compiled output channels (1 or 2)"},
	{"spacing", "Gap policy between compiled segments (fixed, original)"},
	{"gap", "Silence between segments with fixed spacing"},
	{"max_gap", "Upper bound on gaps with original spacing"},
	{"trim", "Trim leading/trailing silence when compiling (true/false)"},
	{"trim_padding", "Silence kept at each trimmed edge"},
	{"max_output_duration", "Refuse to compile output longer than this"},
	{"snapshot_store", "Where session snapshots are kept (file, postgres)"},
	{"snapshot_dir", "Directory for the file snapshot store"},
	{"database.host", "PostgreSQL host for the snapshot store"},
	{"database.port", "PostgreSQL port"},
	{"database.name", "PostgreSQL database name"},
	{"database.user", "PostgreSQL user"},
	{"database.sslmode", "PostgreSQL sslmode"},
	{"database.max_conns", "PostgreSQL pool size"},
	{"redis_addr", "Redis host:port for the analysis cache (empty disables it)"},
	{"redis_db", "Redis database number"},
}

// Keys returns every settable key in documentation order.
func Keys() []string {
	keys := make([]string, len(keyInfos))
	for i, k := range keyInfos {
		keys[i] = k.Key
	}
	return keys
}

// KeyInfos returns every settable key with its description.
func KeyInfos() []KeyInfo {
	out := make([]KeyInfo, len(keyInfos))
	copy(out, keyInfos)
	return out
}

// Set parses value and assigns it to key. It does not validate the
// resulting configuration as a whole.
func (c *CLIConfig) Set(key, value string) error {
	var err error
	switch key {
	case "output_format":
		format := OutputFormat(value)
		if !format.IsValid() {
			return fmt.Errorf("invalid output format: %s (must be text, json, or yaml)", value)
		}
		c.OutputFormat = format
	case "debug":
		c.Debug, err = parseBool(key, value)
	case "log_json":
		c.LogJSON, err = parseBool(key, value)
	case "timezone":
		c.Timezone = value
	case "pattern":
		c.Pattern = value
	case "allow_mtime_fallback":
		c.AllowMTimeFallback, err = parseBool(key, value)
	case "concurrency":
		c.Concurrency, err = parseInt(key, value)
	case "decode_timeout":
		c.DecodeTimeout, err = parseDuration(key, value)
	case "merge_threshold":
		c.MergeThreshold, err = parseDuration(key, value)
	case "session_gap":
		c.SessionGap, err = parseDuration(key, value)
	case "silence_threshold_db":
		var f float64
		f, err = strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid %s value: %s (must be a number)", key, value)
		}
		c.SilenceThresholdDB = f
	case "min_silence":
		c.MinSilence, err = parseDuration(key, value)
	case "sample_rate":
		c.SampleRate, err = parseInt(key, value)
	case "channels":
		c.Channels, err = parseInt(key, value)
	case "spacing":
		c.Spacing = value
	case "gap":
		c.Gap, err = parseDuration(key, value)
	case "max_gap":
		c.MaxGap, err = parseDuration(key, value)
	case "trim":
		c.Trim, err = parseBool(key, value)
	case "trim_padding":
		c.TrimPadding, err = parseDuration(key, value)
	case "max_output_duration":
		c.MaxOutputDuration, err = parseDuration(key, value)
	case "snapshot_store":
		c.SnapshotStore = value
	case "snapshot_dir":
		var expanded string
		expanded, err = ExpandPath(value)
		c.SnapshotDir = expanded
	case "database.host":
		c.Database.Host = value
	case "database.port":
		c.Database.Port, err = parseInt(key, value)
	case "database.name":
		c.Database.Name = value
	case "database.user":
		c.Database.User = value
	case "database.sslmode":
		c.Database.SSLMode = value
	case "database.max_conns":
		var n int
		n, err = parseInt(key, value)
		c.Database.MaxConns = int32(n)
	case "redis_addr":
		c.RedisAddr = value
	case "redis_db":
		c.RedisDB, err = parseInt(key, value)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return err
}

// Get returns the string form of key's value.
func (c *CLIConfig) Get(key string) (string, error) {
	dur := func(d time.Duration) string { return d.String() }
	switch key {
	case "output_format":
		return c.OutputFormat.String(), nil
	case "debug":
		return strconv.FormatBool(c.Debug), nil
	case "log_json":
		return strconv.FormatBool(c.LogJSON), nil
	case "timezone":
		return c.Timezone, nil
	case "pattern":
		return c.Pattern, nil
	case "allow_mtime_fallback":
		return strconv.FormatBool(c.AllowMTimeFallback), nil
	case "concurrency":
		return strconv.Itoa(c.Concurrency), nil
	case "decode_timeout":
		return dur(c.DecodeTimeout), nil
	case "merge_threshold":
		return dur(c.MergeThreshold), nil
	case "session_gap":
		return dur(c.SessionGap), nil
	case "silence_threshold_db":
		return strconv.FormatFloat(c.SilenceThresholdDB, 'g', -1, 64), nil
	case "min_silence":
		return dur(c.MinSilence), nil
	case "sample_rate":
		return strconv.Itoa(c.SampleRate), nil
	case "channels":
		return strconv.Itoa(c.Channels), nil
	case "spacing":
		return c.Spacing, nil
	case "gap":
		return dur(c.Gap), nil
	case "max_gap":
		return dur(c.MaxGap), nil
	case "trim":
		return strconv.FormatBool(c.Trim), nil
	case "trim_padding":
		return dur(c.TrimPadding), nil
	case "max_output_duration":
		return dur(c.MaxOutputDuration), nil
	case "snapshot_store":
		return c.SnapshotStore, nil
	case "snapshot_dir":
		return c.SnapshotDir, nil
	case "database.host":
		return c.Database.Host, nil
	case "database.port":
		return strconv.Itoa(c.Database.Port), nil
	case "database.name":
		return c.Database.Name, nil
	case "database.user":
		return c.Database.User, nil
	case "database.sslmode":
		return c.Database.SSLMode, nil
	case "database.max_conns":
		return strconv.Itoa(int(c.Database.MaxConns)), nil
	case "redis_addr":
		return c.RedisAddr, nil
	case "redis_db":
		return strconv.Itoa(c.RedisDB), nil
	}
	return "", fmt.Errorf("unknown configuration key: %s", key)
}
