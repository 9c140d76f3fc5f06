package db

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// OutputMode selects how psql prints result rows
type OutputMode string

const (
	// OutputCSV requests RFC 4180 output (psql 12+)
	OutputCSV OutputMode = "csv"
	// OutputUnaligned requests unaligned rows separated by FieldSeparator
	OutputUnaligned OutputMode = "unaligned"
)

// FieldSeparator is the field delimiter used in unaligned mode
const FieldSeparator = "|"

// DefaultPsqlPath is the psql binary looked up on PATH when none is configured
const DefaultPsqlPath = "psql"

// PsqlRunner runs queries through the psql command-line client
type PsqlRunner struct {
	path       string
	connString string
	mode       OutputMode
	logger     *slog.Logger
}

// NewPsqlRunner creates a runner that invokes psql once per query
func NewPsqlRunner(path, connString string, mode OutputMode, logger *slog.Logger) *PsqlRunner {
	if path == "" {
		path = DefaultPsqlPath
	}
	if mode == "" {
		mode = OutputCSV
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PsqlRunner{
		path:       path,
		connString: connString,
		mode:       mode,
		logger:     logger,
	}
}

// IsAvailable checks if the psql binary can be found
func (r *PsqlRunner) IsAvailable() bool {
	_, err := exec.LookPath(r.path)
	return err == nil
}

// args builds the psql argument list. The connection string is passed as
// the first positional argument.
func (r *PsqlRunner) args(query string) []string {
	args := []string{
		r.connString,
		"--no-psqlrc",
		"--quiet",
		"--tuples-only",
		"--set=ON_ERROR_STOP=1",
	}

	switch r.mode {
	case OutputUnaligned:
		args = append(args, "--no-align", "--field-separator="+FieldSeparator)
	default:
		args = append(args, "--csv")
	}

	return append(args, "--command="+query)
}

// Query runs the query and parses psql's stdout into records
func (r *PsqlRunner) Query(ctx context.Context, query string) ([]Record, error) {
	cmd := exec.CommandContext(ctx, r.path, r.args(query)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("executing psql", "mode", r.mode, "query", compactSQL(query))

	if err := cmd.Run(); err != nil {
		qerr := &QueryError{
			Command:  r.path,
			ExitCode: -1,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			qerr.ExitCode = exitErr.ExitCode()
		}
		return nil, qerr
	}

	if r.mode == OutputUnaligned {
		return parseUnaligned(stdout.String()), nil
	}

	records, err := parseCSV(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to parse psql output: %w", err)
	}
	return records, nil
}

func parseCSV(out []byte) ([]Record, error) {
	reader := csv.NewReader(bytes.NewReader(out))
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, Record(row))
	}
	return records, nil
}

// parseUnaligned splits every line on every separator occurrence.
// Field values containing the separator therefore yield extra fields.
func parseUnaligned(out string) []Record {
	var records []Record
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		records = append(records, Record(strings.Split(line, FieldSeparator)))
	}
	return records
}

// compactSQL collapses whitespace so queries log on one line
func compactSQL(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
