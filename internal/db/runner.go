package db

import (
	"context"
	"fmt"
)

// Record is a single result row as text fields. SQL NULL is the empty string.
type Record []string

// Runner executes a catalog query and returns its rows fully buffered
type Runner interface {
	Query(ctx context.Context, query string) ([]Record, error)
}

// QueryError reports a failed query execution
type QueryError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *QueryError) Error() string {
	if e.ExitCode >= 0 {
		if e.Stderr != "" {
			return fmt.Sprintf("%s exited with code %d: %s", e.Command, e.ExitCode, e.Stderr)
		}
		return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s failed: %v", e.Command, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
