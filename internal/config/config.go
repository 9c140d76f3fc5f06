// Package config loads pgschemadoc settings from defaults, a YAML file,
// PGSCHEMADOC_ environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/tordrt/pgschemadoc/internal/db"
)

// Query modes select the query mechanism
const (
	QueryModePsql          = "psql"
	QueryModePsqlUnaligned = "psql-unaligned"
	QueryModeNative        = "native"
)

// Output formats
const (
	FormatMarkdown = "markdown"
	FormatText     = "text"
)

// Defaults
const (
	DefaultSchema  = "public"
	DefaultOutput  = "docs/database-schema.md"
	DefaultProject = "pgschemadoc"
	EnvPrefix      = "PGSCHEMADOC_"
)

// ErrMissingDatabaseURL is returned when no connection string was configured
var ErrMissingDatabaseURL = errors.New("database_url is required (set --db-url, PGSCHEMADOC_DATABASE_URL or database_url in the config file)")

// Config holds all settings for a run
type Config struct {
	DatabaseURL   string        `koanf:"database_url"`
	Schema        string        `koanf:"schema"`
	Output        string        `koanf:"output"`
	Project       string        `koanf:"project"`
	Format        string        `koanf:"format"`
	BackupPattern string        `koanf:"backup_pattern"`
	Tables        []string      `koanf:"tables"`
	Exclude       []string      `koanf:"exclude"`
	QueryMode     string        `koanf:"query_mode"`
	PsqlPath      string        `koanf:"psql_path"`
	Policy        string        `koanf:"policy"`
	QueryTimeout  time.Duration `koanf:"query_timeout"`
	Verbose       bool          `koanf:"verbose"`
}

// Validate checks required values and enumerations
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.Schema == "" {
		return fmt.Errorf("schema must not be empty")
	}
	if c.Output == "" {
		return fmt.Errorf("output must not be empty")
	}

	switch c.QueryMode {
	case QueryModePsql, QueryModePsqlUnaligned, QueryModeNative:
	default:
		return fmt.Errorf("invalid query_mode: %s (must be '%s', '%s' or '%s')",
			c.QueryMode, QueryModePsql, QueryModePsqlUnaligned, QueryModeNative)
	}

	switch c.Format {
	case FormatMarkdown, FormatText:
	default:
		return fmt.Errorf("invalid format: %s (must be '%s' or '%s')", c.Format, FormatMarkdown, FormatText)
	}

	if _, err := db.ParseFailurePolicy(c.Policy); err != nil {
		return err
	}

	if c.QueryTimeout < 0 {
		return fmt.Errorf("query_timeout must not be negative")
	}
	return nil
}

// FailurePolicy returns the parsed failure policy
func (c *Config) FailurePolicy() db.FailurePolicy {
	p, err := db.ParseFailurePolicy(c.Policy)
	if err != nil {
		return db.PolicyLenient
	}
	return p
}
