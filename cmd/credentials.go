package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/otherjamesbrown/voxreel/credentials"
	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
)

// secretNames lists the secrets voxreel reads, with the environment
// variable that overrides each.
var secretNames = []struct {
	Name   string
	EnvVar string
}{
	{credentials.DBPassword, EnvDBPassword},
	{credentials.RedisPassword, EnvRedisPassword},
}

// SecretStatus reports where a secret would be read from.
type SecretStatus struct {
	Name   string `json:"name" yaml:"name"`
	EnvVar string `json:"env_var" yaml:"env_var"`
	Source string `json:"source" yaml:"source"`
}

// NewCredentialsCommand creates the credentials command with its subcommands.
func NewCredentialsCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage passwords kept in the system keyring",
		Long: `Manage the passwords voxreel uses for PostgreSQL and Redis.

Secrets are stored in the operating system keyring under the service name
"voxreel". An environment variable always takes precedence:
  db-password     VOXREEL_DB_PASSWORD
  redis-password  VOXREEL_REDIS_PASSWORD

Examples:
  voxreel credentials set db-password
  echo "$PASS" | voxreel credentials set redis-password
  voxreel credentials status
  voxreel credentials delete db-password`,
		Aliases: []string{"creds"},
	}
	cmd.AddCommand(newCredentialsSetCommand(deps))
	cmd.AddCommand(newCredentialsDeleteCommand(deps))
	cmd.AddCommand(newCredentialsStatusCommand(deps))
	return cmd
}

func validSecretName(name string) error {
	for _, s := range secretNames {
		if s.Name == name {
			return nil
		}
	}
	return vrerrors.Validationf("unknown secret %q (want %s or %s)", name, credentials.DBPassword, credentials.RedisPassword)
}

func newCredentialsSetCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:       "set <name>",
		Short:     "Store a secret in the system keyring",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{credentials.DBPassword, credentials.RedisPassword},
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := validSecretName(name); err != nil {
				return err
			}
			if deps.Credentials == nil {
				return credentials.ErrKeyringUnavailable
			}
			value, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), name)
			if err != nil {
				return err
			}
			if err := deps.Credentials.Set(name, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s in %s\n", name, deps.Credentials.Description())
			return nil
		},
	}
}

func newCredentialsDeleteCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:       "delete <name>",
		Short:     "Remove a secret from the system keyring",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{credentials.DBPassword, credentials.RedisPassword},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validSecretName(args[0]); err != nil {
				return err
			}
			if deps.Credentials == nil {
				return credentials.ErrKeyringUnavailable
			}
			if err := deps.Credentials.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newCredentialsStatusCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show where each secret will be read from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.config()
			if err != nil {
				return err
			}
			statuses := make([]SecretStatus, len(secretNames))
			for i, s := range secretNames {
				statuses[i] = SecretStatus{Name: s.Name, EnvVar: s.EnvVar, Source: secretSource(deps.Credentials, s.Name, s.EnvVar)}
			}
			return render(cmd.OutOrStdout(), cfg.OutputFormat, statuses, func(w io.Writer) error {
				tw := newTable(w)
				fmt.Fprintln(tw, "SECRET\tSOURCE")
				for _, s := range statuses {
					fmt.Fprintf(tw, "%s\t%s\n", s.Name, s.Source)
				}
				return tw.Flush()
			})
		},
	}
}

// secretSource names the place a secret resolves from: "env", "keyring",
// "unset" or "keyring unavailable".
func secretSource(store credentials.Store, name, envVar string) string {
	if os.Getenv(envVar) != "" {
		return "env"
	}
	if store == nil {
		return "unset"
	}
	_, err := store.Get(name)
	switch {
	case err == nil:
		return "keyring"
	case vrerrors.IsNotFound(err):
		return "unset"
	}
	return "keyring unavailable"
}

// readSecret prompts without echo on a terminal and otherwise reads the
// first line of in.
func readSecret(in io.Reader, prompt io.Writer, name string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(prompt, "%s: ", name)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", name, err)
		}
		return checkSecret(name, string(b))
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	return checkSecret(name, line)
}

func checkSecret(name, value string) (string, error) {
	value = strings.TrimRight(value, "\r\n")
	if value == "" {
		return "", vrerrors.Validationf("%s must not be empty", name)
	}
	return value, nil
}
