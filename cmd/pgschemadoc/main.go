package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/tordrt/pgschemadoc"
	"github.com/tordrt/pgschemadoc/internal/config"
	"github.com/tordrt/pgschemadoc/internal/db"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "pgschemadoc",
		Short: "Generate a Markdown reference of a PostgreSQL schema",
		Long: `pgschemadoc lists the tables of a PostgreSQL schema, reads their columns and
constraints from information_schema, and writes a single Markdown reference document.

Tables whose name matches the backup pattern (default %backup%) are skipped.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, cfgFile)
		},
	}

	tablesCmd := &cobra.Command{
		Use:          "tables",
		Short:        "List the tables that would be documented",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(cmd, cfgFile)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "pgschemadoc %s\n", version)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Config file (default: pgschemadoc.yaml in the working directory)")
	flags.String("db-url", "", "PostgreSQL connection string")
	flags.StringP("schema", "s", config.DefaultSchema, "Database schema name")
	flags.StringP("output", "o", config.DefaultOutput, "Output file, or - for stdout")
	flags.String("project", config.DefaultProject, "Project identifier shown in the document header")
	flags.StringP("format", "f", config.FormatMarkdown, "Output format: markdown or text")
	flags.String("backup-pattern", db.DefaultBackupPattern, "SQL LIKE pattern of backup tables to skip (empty keeps them)")
	flags.StringSliceP("tables", "t", nil, "Specific tables (comma-separated, optional)")
	flags.StringSliceP("exclude", "x", nil, "Tables to exclude (comma-separated, optional)")
	flags.String("query-mode", config.QueryModePsql, "Query mechanism: psql, psql-unaligned or native")
	flags.String("psql-path", db.DefaultPsqlPath, "Path to the psql client")
	flags.String("policy", string(db.PolicyLenient), "Fetch failure policy: lenient or strict")
	flags.Duration("query-timeout", 0, "Timeout for the whole run (0 disables)")
	flags.BoolP("verbose", "v", false, "Log executed queries")

	rootCmd.AddCommand(tablesCmd, versionCmd)
	return rootCmd
}

// setup loads configuration and opens the query runner.
// Progress goes to stdout unless stdout carries command output.
func setup(cmd *cobra.Command, cfgFile string, listing bool) (*config.Config, *slog.Logger, db.Runner, func() error, error) {
	cfg, used, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, nil, nil, err
	}

	logOut := cmd.OutOrStdout()
	if listing || cfg.Output == pgschemadoc.StdoutPath {
		logOut = cmd.ErrOrStderr()
	}
	logger := newLogger(logOut, cfg.Verbose)
	if used != "" {
		logger.Debug("loaded config file", "path", used)
	}

	runner, closeRunner, err := pgschemadoc.OpenRunner(cmd.Context(), pgschemadoc.RunnerOptions{
		Mode:        cfg.QueryMode,
		DatabaseURL: cfg.DatabaseURL,
		PsqlPath:    cfg.PsqlPath,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, nil, nil, err
	}

	return cfg, logger, runner, closeRunner, nil
}

func runGenerate(cmd *cobra.Command, cfgFile string) error {
	cfg, logger, runner, closeRunner, err := setup(cmd, cfgFile, false)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeRunner(); err != nil {
			logger.Warn("failed to close database connection", "error", err)
		}
	}()

	ctx, cancel := withTimeout(cmd.Context(), cfg)
	defer cancel()

	_, err = pgschemadoc.Generate(ctx, runner, extractOptions(cfg, logger), &pgschemadoc.OutputOptions{
		Path:    cfg.Output,
		Writer:  cmd.OutOrStdout(),
		Project: cfg.Project,
		Format:  cfg.Format,
	})
	return err
}

func runTables(cmd *cobra.Command, cfgFile string) error {
	cfg, logger, runner, closeRunner, err := setup(cmd, cfgFile, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeRunner(); err != nil {
			logger.Warn("failed to close database connection", "error", err)
		}
	}()

	ctx, cancel := withTimeout(cmd.Context(), cfg)
	defer cancel()

	names, err := pgschemadoc.ListTables(ctx, runner, extractOptions(cfg, logger))
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}
	for _, name := range names {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}

func extractOptions(cfg *config.Config, logger *slog.Logger) *pgschemadoc.Options {
	return &pgschemadoc.Options{
		SchemaName:    cfg.Schema,
		BackupPattern: &cfg.BackupPattern,
		Tables:        cfg.Tables,
		ExcludeTables: cfg.Exclude,
		Policy:        cfg.FailurePolicy(),
		Logger:        logger,
	}
}

func withTimeout(ctx context.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.QueryTimeout > 0 {
		return context.WithTimeout(ctx, cfg.QueryTimeout)
	}
	return context.WithCancel(ctx)
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
