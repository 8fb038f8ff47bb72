// Package main provides the voxreel CLI entry point.
// voxreel turns a directory of recorded voice segments into conversations,
// sessions and compiled audio with matching transcripts.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/voxreel/cmd"
	"github.com/otherjamesbrown/voxreel/config"
	"github.com/otherjamesbrown/voxreel/pkg/buildinfo"
	"github.com/otherjamesbrown/voxreel/pkg/logging"
	"github.com/otherjamesbrown/voxreel/pkg/observability"
)

// app holds global flag values and the state shared with subcommands.
type app struct {
	deps *cmd.Deps

	configDir    string
	outputFormat string
	debug        bool
	logJSON      bool
	metricsFile  string
	traceFile    string

	// shutdownTracing flushes the trace file, when one is open.
	shutdownTracing func(context.Context) error

	// registry is nil until the root pre-run has built it.
	registry *prometheus.Registry
}

func newApp() *app {
	return &app{deps: cmd.DefaultDeps()}
}

// dir returns the configuration directory, honouring --config-dir.
func (a *app) dir() (string, error) {
	if a.configDir != "" {
		return a.configDir, nil
	}
	return config.ConfigDir()
}

func (a *app) loadConfig() (*config.CLIConfig, error) {
	dir, err := a.dir()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}
	return config.LoadConfigFrom(dir)
}

// setup loads configuration, applies global flags, and builds the logger
// and metrics registry for the run.
func (a *app) setup(c *cobra.Command) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if a.outputFormat != "" {
		cfg.OutputFormat = config.OutputFormat(a.outputFormat)
		if !cfg.OutputFormat.IsValid() {
			return fmt.Errorf("invalid --output %q (must be text, json, or yaml)", a.outputFormat)
		}
	}
	if a.debug {
		cfg.Debug = true
	}
	if a.logJSON {
		cfg.LogJSON = true
	}

	level := logging.LevelInfo
	if cfg.Debug {
		level = logging.LevelDebug
	}
	a.deps.Logger = logging.NewLogger(&logging.Config{
		Level:      level,
		Component:  "voxreel",
		JSONFormat: cfg.LogJSON,
		Output:     c.ErrOrStderr(),
	})

	// Batch progress goes to stderr for people watching the run.
	if stderr := c.ErrOrStderr(); cfg.Debug || logging.IsTerminal(stderr) {
		a.deps.Progress = stderr
		a.deps.ProgressInPlace = logging.IsTerminal(stderr)
	}

	if err := a.openTraceFile(); err != nil {
		return err
	}

	reg, metrics := observability.NewRegistry()
	a.registry = reg
	a.deps.Registry = reg
	a.deps.Metrics = metrics

	a.deps.Config = cfg
	a.deps.LoadConfig = a.loadConfig
	return nil
}

// envTraceFile names the trace file when --trace-file is not given.
const envTraceFile = "VOXREEL_TRACE_FILE"

// openTraceFile records spans for the run when --trace-file or
// VOXREEL_TRACE_FILE is set.
func (a *app) openTraceFile() error {
	path := a.traceFile
	if path == "" {
		path = os.Getenv(envTraceFile)
	}
	if path == "" || a.shutdownTracing != nil {
		return nil
	}
	tp, shutdown, err := observability.OpenTraceFile(path)
	if err != nil {
		return err
	}
	a.deps.Tracer = observability.NewTracerFrom(tp)
	a.shutdownTracing = shutdown
	return nil
}

// closeTraceFile flushes pending spans.
func (a *app) closeTraceFile() error {
	if a.shutdownTracing == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.shutdownTracing(ctx)
	a.shutdownTracing = nil
	if err != nil {
		return fmt.Errorf("closing trace file: %w", err)
	}
	return nil
}

// writeMetrics dumps the run's metrics when --metrics-file is set.
func (a *app) writeMetrics() error {
	if a.metricsFile == "" || a.registry == nil {
		return nil
	}
	if err := observability.WriteTextfile(a.metricsFile, a.registry); err != nil {
		return fmt.Errorf("writing metrics file: %w", err)
	}
	return nil
}

// skipsSetup reports whether c runs without configuration.
func skipsSetup(c *cobra.Command) bool {
	switch c.Name() {
	case "version", "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return true
	}
	return false
}

// newRootCommand builds the voxreel command tree around a.
func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "voxreel",
		Short: "Assemble recorded voice segments into conversations",
		Long: `voxreel works on a directory of short recorded voice clips, one file per
utterance, named with the time it was recorded and who spoke:

  20240301_100000-user-hello.wav
  20240301_100002-assistant.wav

It catalogs the clips, groups them into turns and sessions, measures their
levels, and compiles any selection into a single WAV file with a WebVTT, SRT,
text or JSON transcript aligned to it.

COMMON WORKFLOWS:
  Inspect a root:     voxreel scan ./recordings  →  voxreel turns ./recordings
  Split sessions:     voxreel sessions ./recordings --save
  Compile a session:  voxreel compile ./recordings --session 2 -o call.wav --transcript call.vtt
  Replay a snapshot:  voxreel compile ./recordings --snapshot 3f2a --session 2 -o call.wav

Every command supports --output json or yaml for structured output.
Run 'voxreel <command> --help' for flags and examples.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			if skipsSetup(c) {
				return nil
			}
			return a.setup(c)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "configuration directory (default is $VOXREEL_CONFIG_DIR or ~/.voxreel)")
	rootCmd.PersistentFlags().StringVar(&a.outputFormat, "output", "", "output format: text, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&a.logJSON, "log-json", false, "write logs as JSON")
	rootCmd.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "write run metrics to this file in Prometheus text format")
	rootCmd.PersistentFlags().StringVar(&a.traceFile, "trace-file", "", "write trace spans to this file as JSON lines (default is $VOXREEL_TRACE_FILE)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "catalog", Title: "Catalog & Conversation:"},
		&cobra.Group{ID: "compile", Title: "Compiling:"},
		&cobra.Group{ID: "storage", Title: "Storage:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	deps := a.deps

	// Catalog & Conversation
	scanCmd := cmd.NewScanCommand(deps)
	scanCmd.GroupID = "catalog"
	rootCmd.AddCommand(scanCmd)

	turnsCmd := cmd.NewTurnsCommand(deps)
	turnsCmd.GroupID = "catalog"
	rootCmd.AddCommand(turnsCmd)

	sessionsCmd := cmd.NewSessionsCommand(deps)
	sessionsCmd.GroupID = "catalog"
	rootCmd.AddCommand(sessionsCmd)

	analyzeCmd := cmd.NewAnalyzeCommand(deps)
	analyzeCmd.GroupID = "catalog"
	rootCmd.AddCommand(analyzeCmd)

	// Compiling
	compileCmd := cmd.NewCompileCommand(deps)
	compileCmd.GroupID = "compile"
	rootCmd.AddCommand(compileCmd)

	transcriptCmd := cmd.NewTranscriptCommand(deps)
	transcriptCmd.GroupID = "compile"
	rootCmd.AddCommand(transcriptCmd)

	// Storage
	snapshotCmd := cmd.NewSnapshotCommand(deps)
	snapshotCmd.GroupID = "storage"
	rootCmd.AddCommand(snapshotCmd)

	dbCmd := cmd.NewDbCommand(deps)
	dbCmd.GroupID = "storage"
	rootCmd.AddCommand(dbCmd)

	// Setup
	configCmd := newConfigCommand(a)
	configCmd.GroupID = "setup"
	rootCmd.AddCommand(configCmd)

	credentialsCmd := cmd.NewCredentialsCommand(deps)
	credentialsCmd.GroupID = "setup"
	rootCmd.AddCommand(credentialsCmd)

	completionCmd := newCompletionCommand()
	completionCmd.GroupID = "setup"
	rootCmd.AddCommand(completionCmd)

	versionCmd := newVersionCommand(a)
	versionCmd.GroupID = "setup"
	rootCmd.AddCommand(versionCmd)

	rootCmd.SetHelpCommandGroupID("setup")
	return rootCmd
}

// newVersionCommand prints build information.
func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the version, commit hash, and build time of voxreel.

Examples:
  voxreel version
  voxreel version --output json`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			info := buildinfo.Get("voxreel")
			out := c.OutOrStdout()
			switch config.OutputFormat(a.outputFormat) {
			case config.OutputFormatJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			case config.OutputFormatYAML:
				return yaml.NewEncoder(out).Encode(info)
			}
			fmt.Fprintf(out, "voxreel version %s\n", info.Version)
			fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "  built:      %s\n", info.BuildTime)
			fmt.Fprintf(out, "  go:         %s (%s)\n", info.GoVersion, info.Platform)
			return nil
		},
	}
}

// newConfigCommand manages the configuration file.
func newConfigCommand(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  `View and modify the voxreel configuration file.`,
	}
	configCmd.AddCommand(newConfigShowCommand(a))
	configCmd.AddCommand(newConfigInitCommand(a))
	configCmd.AddCommand(newConfigSetCommand(a))
	return configCmd
}

func newConfigShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long: `Display every configuration value after the config file and VOXREEL_*
environment variables have been applied.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			cfg := a.deps.Config
			if cfg == nil {
				var err error
				if cfg, err = a.loadConfig(); err != nil {
					return fmt.Errorf("loading configuration: %w", err)
				}
			}
			dir, err := a.dir()
			if err != nil {
				return err
			}

			infos := config.KeyInfos()
			values := make(map[string]string, len(infos))
			for _, k := range infos {
				v, err := cfg.Get(k.Key)
				if err != nil {
					return err
				}
				values[k.Key] = v
			}

			out := c.OutOrStdout()
			switch cfg.OutputFormat {
			case config.OutputFormatJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(values)
			case config.OutputFormatYAML:
				return yaml.NewEncoder(out).Encode(values)
			}

			fmt.Fprintln(out, "Current configuration:")
			fmt.Fprintf(out, "  Config file: %s\n\n", filepath.Join(dir, config.DefaultConfigFile))
			width := 0
			for _, k := range infos {
				width = max(width, len(k.Key))
			}
			for _, k := range infos {
				fmt.Fprintf(out, "  %-*s  %s\n", width, k.Key, valueOrDefault(values[k.Key], "(not set)"))
			}
			return nil
		},
	}
}

func newConfigInitCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file",
		Long:  `Create a new configuration file with default values if one doesn't exist.`,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			dir, err := a.dir()
			if err != nil {
				return fmt.Errorf("getting config path: %w", err)
			}
			configPath := filepath.Join(dir, config.DefaultConfigFile)
			out := c.OutOrStdout()

			if _, err := os.Stat(configPath); err == nil {
				fmt.Fprintf(out, "Configuration file already exists: %s\n", configPath)
				fmt.Fprintln(out, "Use 'voxreel config show' to view current settings.")
				return nil
			}

			defaultCfg := config.DefaultConfig()
			if err := config.SaveConfigTo(dir, defaultCfg); err != nil {
				return fmt.Errorf("saving configuration: %w", err)
			}

			fmt.Fprintf(out, "Created configuration file: %s\n", configPath)
			fmt.Fprintln(out, "\nDefault settings:")
			fmt.Fprintf(out, "  Output format:   %s\n", defaultCfg.OutputFormat)
			fmt.Fprintf(out, "  Merge threshold: %s\n", defaultCfg.MergeThreshold)
			fmt.Fprintf(out, "  Session gap:     %s\n", defaultCfg.SessionGap)
			fmt.Fprintf(out, "  Snapshot store:  %s\n", defaultCfg.SnapshotStore)
			return nil
		},
	}
}

func newConfigSetCommand(a *app) *cobra.Command {
	var keys strings.Builder
	width := 0
	for _, k := range config.KeyInfos() {
		width = max(width, len(k.Key))
	}
	for _, k := range config.KeyInfos() {
		fmt.Fprintf(&keys, "  %-*s  %s\n", width, k.Key, k.Description)
	}

	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value in the config file.

Available keys:
` + keys.String() + `
Examples:
  voxreel config set merge_threshold 2s
  voxreel config set timezone Europe/London
  voxreel config set snapshot_store postgres
  voxreel config set redis_addr localhost:6379`,
		Args: cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			dir, err := a.dir()
			if err != nil {
				return fmt.Errorf("getting config path: %w", err)
			}

			// Reload so global flag overrides are not persisted.
			currentCfg, err := config.LoadConfigFrom(dir)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if err := currentCfg.Set(key, value); err != nil {
				return err
			}
			if err := currentCfg.Validate(); err != nil {
				return err
			}
			if err := config.SaveConfigTo(dir, currentCfg); err != nil {
				return fmt.Errorf("saving configuration: %w", err)
			}

			fmt.Fprintf(c.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
}

// newCompletionCommand generates shell completion scripts.
func newCompletionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for voxreel.

To load completions:

Bash:
  $ source <(voxreel completion bash)

Zsh:
  $ voxreel completion zsh > "${fpath[1]}/_voxreel"

Fish:
  $ voxreel completion fish | source

PowerShell:
  PS> voxreel completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(c *cobra.Command, args []string) error {
			root := c.Root()
			out := c.OutOrStdout()
			switch args[0] {
			case "bash":
				return root.GenBashCompletion(out)
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
}

func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

// execute runs the command tree and then writes the metrics and trace
// files. Both are written even when the command fails.
func execute(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) error {
	rootCmd := newRootCommand(a)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	cmdErr := rootCmd.ExecuteContext(ctx)
	if err := a.writeMetrics(); err != nil {
		a.deps.Logger.Warn("Metrics not written", logging.Err(err))
	}
	if err := a.closeTraceFile(); err != nil {
		a.deps.Logger.Warn("Trace not written", logging.Err(err))
	}
	return cmdErr
}

func main() {
	// Cancel in-flight work on SIGINT/SIGTERM; partial outputs are removed
	// by the commands themselves.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, newApp(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
