package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/voxreel/pkg/db"
	"github.com/otherjamesbrown/voxreel/pkg/logging"
	"github.com/otherjamesbrown/voxreel/pkg/snapshot"
)

// MigrateReport is the output of the db migrate command.
type MigrateReport struct {
	Database string   `json:"database" yaml:"database"`
	Applied  []string `json:"applied" yaml:"applied"`
	Skipped  []string `json:"skipped" yaml:"skipped"`
}

// NewDbCommand creates the db command with its subcommands.
func NewDbCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the PostgreSQL snapshot store",
		Long: `Manage the PostgreSQL database used when snapshot_store is postgres.

Connection settings come from the database section of the config file and
the VOXREEL_DB_* environment variables. The password is read from
VOXREEL_DB_PASSWORD or from the system keyring entry set with
'voxreel credentials set db-password'.

Examples:
  voxreel db migrate`,
		Aliases: []string{"database"},
	}
	cmd.AddCommand(newDbMigrateCommand(deps))
	return cmd
}

func newDbMigrateCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending snapshot schema migrations",
		Long: `Apply pending snapshot schema migrations.

Migrations are embedded in the binary and applied in order, each in its own
transaction. Applied versions are recorded in schema_migrations and never
re-run. Opening the postgres snapshot store applies them as well; this
command lets an operator do it ahead of time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := deps.config()
			if err != nil {
				return err
			}
			pool, dbc, err := deps.connectDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close(pool)

			result, err := db.RunMigrations(ctx, pool, snapshot.Migrations())
			if err != nil {
				return err
			}
			report := MigrateReport{
				Database: dbc.Redacted(),
				Applied:  nonNil(result.Applied),
				Skipped:  nonNil(result.Skipped),
			}
			return render(cmd.OutOrStdout(), cfg.OutputFormat, report, func(w io.Writer) error {
				return outputMigrateText(w, report)
			})
		},
	}
}

// connectDatabase opens a pool for the snapshot database and exposes its
// statistics on the run's metrics registry.
func (d *Deps) connectDatabase(ctx context.Context) (*pgxpool.Pool, *db.Config, error) {
	cfg, err := d.config()
	if err != nil {
		return nil, nil, err
	}
	dbc, err := databaseConfig(cfg, d.Credentials)
	if err != nil {
		return nil, nil, err
	}
	d.logger().Debug("Connecting to snapshot database", logging.F("dsn", dbc.Redacted()))
	pool, err := db.Connect(ctx, dbc)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	if d.Registry != nil {
		if _, err := db.RegisterPoolStats(d.Registry, pool, metricsNamespace, "snapshots"); err != nil {
			d.logger().Warn("Pool metrics not registered", logging.Err(err))
		}
	}
	return pool, dbc, nil
}

func outputMigrateText(w io.Writer, r MigrateReport) error {
	fmt.Fprintf(w, "Database: %s\n", r.Database)
	if len(r.Applied) == 0 {
		fmt.Fprintln(w, "No pending migrations.")
	} else {
		fmt.Fprintf(w, "Applied %d migration(s):\n", len(r.Applied))
		for _, v := range r.Applied {
			fmt.Fprintf(w, "  + %s\n", v)
		}
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintf(w, "Already applied: %d\n", len(r.Skipped))
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
